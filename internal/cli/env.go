package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/pagefeed/internal/config"
	"github.com/roach88/pagefeed/internal/store"
)

// newFormatter builds the formatter for a command invocation.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// newLogger writes structured logs to w at Info, or Debug when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig loads --config and applies the --db override.
func loadConfig(opts *RootOptions, database string) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if database != "" {
		cfg.Database = database
	}
	return cfg, nil
}

// openStore loads the configuration and opens its database, reporting
// failures through f.
func openStore(opts *RootOptions, database string, f *OutputFormatter) (*store.Store, config.Config, error) {
	cfg, err := loadConfig(opts, database)
	if err != nil {
		return nil, config.Config{}, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	f.VerboseLog("Opening database %s", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, config.Config{}, f.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	return st, cfg, nil
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
