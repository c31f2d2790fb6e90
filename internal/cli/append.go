package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pagefeed/internal/feed"
	"github.com/roach88/pagefeed/internal/producer"
)

// AppendOptions holds flags for the append command.
type AppendOptions struct {
	*RootOptions
	Database    string
	ContentID   string
	ContentType string
	Data        string
	File        string
	Timestamp   string
}

// AppendResult is the stored form of the appended entity.
type AppendResult struct {
	ContentID     string    `json:"content_id"`
	ContentType   string    `json:"content_type"`
	ContentLength int64     `json:"content_length"`
	LastModified  time.Time `json:"last_modified"`
	PageID        string    `json:"page_id,omitempty"`
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append an entity to the feed",
		Long: `Append one entity. It stays unassigned until the next assign run.

Content comes from --data, or from --file (use "-" for stdin). Without
--timestamp the entity is stamped with the current time. Appending an id
that already exists leaves the stored entity unchanged.

Examples:
  pagefeed append --db ./feed.db --id order-42 --data '{"total": 12}'
  pagefeed append --db ./feed.db --id order-43 --file order.json --type application/json
  pagefeed append --id order-44 --timestamp 2024-03-01T12:00:00Z --data '{}'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppend(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.ContentID, "id", "", "content id (required)")
	_ = cmd.MarkFlagRequired("id")
	cmd.Flags().StringVar(&opts.ContentType, "type", "application/json", "content type")
	cmd.Flags().StringVar(&opts.Data, "data", "", "entity content")
	cmd.Flags().StringVar(&opts.File, "file", "", "read entity content from file (- for stdin)")
	cmd.Flags().StringVar(&opts.Timestamp, "timestamp", "", "last-modified timestamp (RFC 3339)")
	cmd.MarkFlagsMutuallyExclusive("data", "file")

	return cmd
}

func runAppend(opts *AppendOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	content, err := readContent(opts, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeContentSource, "failed to read content", err)
	}

	var lastModified time.Time
	if opts.Timestamp != "" {
		lastModified, err = time.Parse(time.RFC3339Nano, opts.Timestamp)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeAppend, "invalid --timestamp", err)
		}
	}

	st, cfg, err := openStore(opts.RootOptions, opts.Database, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := producer.New(st, st, st, cfg.Producer,
		producer.WithLogger(newLogger(cmd.ErrOrStderr(), opts.Verbose)),
	)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid producer limits", err)
	}

	err = p.Append(ctx, feed.Entity{
		PageAssignment: feed.PageAssignment{ContentID: opts.ContentID, LastModified: lastModified},
		ContentType:    opts.ContentType,
		Content:        content,
	})
	if err != nil {
		exit := ExitFailure
		if feed.IsContractError(err) {
			exit = ExitCommandError
		}
		return formatter.Fail(exit, ErrCodeAppend, "append failed", err)
	}

	stored, err := st.GetEntity(ctx, producer.NormalizeID(opts.ContentID))
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeRead, "failed to read back entity", err)
	}

	result := AppendResult{
		ContentID:     stored.ContentID,
		ContentType:   stored.ContentType,
		ContentLength: stored.ContentLength,
		LastModified:  stored.LastModified,
		PageID:        stored.PageID,
	}
	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Appended %s (%d bytes, %s)\n",
			result.ContentID, result.ContentLength, result.LastModified.Format(time.RFC3339Nano))
	})
}

func readContent(opts *AppendOptions, stdin io.Reader) ([]byte, error) {
	switch opts.File {
	case "":
		return []byte(opts.Data), nil
	case "-":
		return io.ReadAll(stdin)
	default:
		return os.ReadFile(opts.File)
	}
}
