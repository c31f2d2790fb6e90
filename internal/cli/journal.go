package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pagefeed/internal/feed"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Database string
}

// JournalResult shows the write-ahead journal slot.
type JournalResult struct {
	Pending bool               `json:"pending"`
	Journal *feed.JournalState `json:"journal,omitempty"`
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show the pending commit journal",
		Long: `Show the write-ahead journal. An entry means an assign run was
interrupted mid-commit; the next assign run rolls it back.

Examples:
  pagefeed journal --db ./feed.db
  pagefeed journal --db ./feed.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

func runJournal(opts *JournalOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	st, _, err := openStore(opts.RootOptions, opts.Database, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	journal, err := st.GetJournal(ctx)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeRead, "failed to read journal", err)
	}

	result := JournalResult{Pending: journal != nil, Journal: journal}
	return formatter.Success(result, func(w io.Writer) {
		if journal == nil {
			fmt.Fprintln(w, "No pending commit")
			return
		}
		fmt.Fprintln(w, "Pending commit:")
		fmt.Fprintf(w, "  new latest page:      %s\n", journal.NewLatestPage)
		fmt.Fprintf(w, "  new pages:            %s\n", strings.Join(journal.NewPages, ", "))
		prev := journal.PreviousLatestPage
		if prev == "" {
			prev = "(none)"
		}
		fmt.Fprintf(w, "  previous latest page: %s\n", prev)
	})
}
