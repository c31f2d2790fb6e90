package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/pagefeed/internal/feed"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database string
}

// VerifyResult reports chain verification.
type VerifyResult struct {
	Valid      bool             `json:"valid"`
	Pages      int              `json:"pages"`
	Violations []feed.Violation `json:"violations"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the page chain invariants",
		Long: `Check that the stored pages form one monotonic chain with a single
latest page, symmetric links, and pages within the configured bounds.

A journaled commit awaiting recovery is reported as a violation since
readers may observe more than one latest page until the next assign run.

Exit codes:
  0 - chain valid
  1 - violations found
  2 - command error

Examples:
  pagefeed verify --db ./feed.db
  pagefeed verify --config pagefeed.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	st, cfg, err := openStore(opts.RootOptions, opts.Database, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	pages, err := st.ListPages(ctx)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeRead, "failed to list pages", err)
	}
	journal, err := st.GetJournal(ctx)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeRead, "failed to read journal", err)
	}

	violations := feed.VerifyChain(pages, cfg.Producer.Bounds())
	if journal != nil {
		violations = append(violations, feed.Violation{
			Code:    feed.ViolationPendingRecovery,
			PageID:  journal.NewLatestPage,
			Message: "interrupted commit journaled; run assign to recover",
		})
	}

	result := VerifyResult{Valid: len(violations) == 0, Pages: len(pages), Violations: violations}
	if err := formatter.Success(result, func(w io.Writer) {
		if result.Valid {
			fmt.Fprintf(w, "✓ Chain valid (%d pages)\n", result.Pages)
			return
		}
		fmt.Fprintf(w, "✗ Chain invalid (%d pages, %d violations)\n", result.Pages, len(violations))
		for _, v := range violations {
			fmt.Fprintf(w, "  %s\n", v)
		}
	}); err != nil {
		return err
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %d chain violations", ErrCodeChainInvalid, len(violations)))
	}
	return nil
}
