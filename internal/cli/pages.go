package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pagefeed/internal/feed"
)

// PagesOptions holds flags for the pages command.
type PagesOptions struct {
	*RootOptions
	Database string
	Entities bool
}

// PageView is one page in chain order.
type PageView struct {
	feed.PageMetadata
	Entities []string `json:"entities,omitempty"`
}

// PagesResult lists the chain.
type PagesResult struct {
	Pages   []PageView `json:"pages"`
	Ordered bool       `json:"ordered"`
}

// NewPagesCommand creates the pages command.
func NewPagesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PagesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pages",
		Short: "List pages in chain order",
		Long: `List every stored page from oldest to newest.

When the pages do not form a single chain (for example while an
interrupted commit awaits recovery) they are listed by last-modified
time instead and "ordered" is false.

Examples:
  pagefeed pages --db ./feed.db
  pagefeed pages --db ./feed.db --entities --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPages(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().BoolVar(&opts.Entities, "entities", false, "include the content ids of each page")

	return cmd
}

func runPages(opts *PagesOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	st, _, err := openStore(opts.RootOptions, opts.Database, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	pages, err := st.ListPages(ctx)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeRead, "failed to list pages", err)
	}

	result := PagesResult{Pages: []PageView{}, Ordered: true}
	ordered, err := feed.OrderChain(pages)
	if err != nil {
		formatter.VerboseLog("Pages do not form a chain: %v", err)
		ordered = pages
		result.Ordered = false
	}

	for _, p := range ordered {
		view := PageView{PageMetadata: p}
		if opts.Entities {
			as, err := st.GetPageAssignments(ctx, p.PageID)
			if err != nil {
				return formatter.Fail(ExitFailure, ErrCodeRead, "failed to read page entities", err)
			}
			view.Entities = []string{}
			for _, a := range as {
				view.Entities = append(view.Entities, a.ContentID)
			}
		}
		result.Pages = append(result.Pages, view)
	}

	return formatter.Success(result, func(w io.Writer) {
		if len(result.Pages) == 0 {
			fmt.Fprintln(w, "No pages")
			return
		}
		if !result.Ordered {
			fmt.Fprintln(w, "⚠ pages do not form a single chain; listed by last-modified")
		}
		for _, p := range result.Pages {
			fmt.Fprintf(w, "%s  gen=%d  entities=%d  bytes=%d  last_modified=%s\n",
				p.PageID, p.Generation, p.NumberOfEntities, p.NumberOfBytes, p.LastModified.Format(time.RFC3339Nano))
			for _, id := range p.Entities {
				fmt.Fprintf(w, "    %s\n", id)
			}
		}
	})
}
