package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/chartgen/internal/source"
	"github.com/roach88/chartgen/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database string
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <records.yaml>",
		Short: "Load a YAML record file into an analysis database",
		Long: `Load a YAML record file into an analysis database, creating it if needed.

Records whose id is already stored are skipped.

Example:
  chartgen import --db ./scan/analysis.db records.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

type importResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

func (r importResult) String() string {
	return fmt.Sprintf("Imported %d records (%d already present)", r.Imported, r.Skipped)
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose)

	rf, err := source.LoadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load records", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := commandContext(cmd)
	var res importResult
	for _, rec := range rf.Records {
		inserted, err := st.PutRecord(ctx, rec)
		if err != nil {
			return WrapExitError(ExitFailure, "import failed", err)
		}
		if inserted {
			res.Imported++
		} else {
			res.Skipped++
			slog.Debug("record already present", "record", rec.ID)
		}
	}

	return opts.formatter(cmd).Success(res)
}
