package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/chartgen/internal/config"
	"github.com/roach88/chartgen/internal/ident"
	"github.com/roach88/chartgen/internal/pipeline"
	"github.com/roach88/chartgen/internal/render"
	"github.com/roach88/chartgen/internal/source"
	"github.com/roach88/chartgen/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Top       string
	Database  string
	Records   string
	EnvVars   string
	Renderers string
	Workers   int
	Report    string

	// Lookup overrides environment lookup (for testing).
	// If nil, defaults to os.LookupEnv.
	Lookup config.LookupFunc

	// Registry overrides the configured renderers (for testing).
	Registry render.Registry

	// Generator overrides run and temp file naming (for testing).
	Generator ident.Generator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate charts for every analyzed file",
		Long: `Generate pie charts and version tables for every record of a scan.

Records come from an analysis database (--db) or a YAML record file
(--records). Images are written to $BAT_IMAGEDIR (default <top>/images),
intermediate payloads to $BAT_PICKLEDIR (default <top>/pickles).
Set AGGREGATE_IMAGE_SYMLINK=1 to share identical images through symlinks.

Example:
  chartgen run --top ./scan --db ./scan/analysis.db
  chartgen run --top ./scan --records records.yaml --envvars AGGREGATE_IMAGE_SYMLINK=1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCharts(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Top, "top", "", "top-level scan directory (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to analysis database")
	cmd.Flags().StringVar(&opts.Records, "records", "", "path to YAML record file")
	cmd.Flags().StringVar(&opts.EnvVars, "envvars", "", "environment overrides as NAME=VALUE:NAME=VALUE")
	cmd.Flags().StringVar(&opts.Renderers, "renderers", "", "CUE renderer configuration (overrides $"+config.EnvRendererConfig+")")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "render workers (overrides $"+config.EnvWorkers+")")
	cmd.Flags().StringVar(&opts.Report, "report", "", "write the per-digest fan-out report (canonical JSON) to this file")
	_ = cmd.MarkFlagRequired("top")
	cmd.MarkFlagsMutuallyExclusive("db", "records")
	cmd.MarkFlagsOneRequired("db", "records")

	return cmd
}

func runCharts(opts *RunOptions, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := config.Load(opts.Top, opts.Lookup, opts.EnvVars)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if opts.Workers > 0 {
		cfg.Workers = opts.Workers
	}
	if opts.Renderers != "" {
		cfg.RendererConfig = opts.Renderers
	}

	registry := opts.Registry
	if registry == nil {
		renderers, err := config.LoadRenderers(cfg.RendererConfig)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid renderer configuration", err)
		}
		registry = renderers.Registry()
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, closeSrc, err := openSource(opts)
	if err != nil {
		return err
	}
	defer closeSrc()

	records, err := src.Records(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read records", err)
	}
	slog.Info("records loaded", "count", len(records))

	ctrl := pipeline.New(pipeline.Options{
		OutputDir: cfg.OutputDir,
		CacheDir:  cfg.CacheDir,
		Links:     cfg.Links,
		Workers:   cfg.Workers,
		Timeout:   cfg.Timeout,
		Renderers: registry,
		Generator: opts.Generator,
	})
	sum, err := ctrl.Run(ctx, records)
	if err != nil {
		var re *pipeline.RunError
		if errors.As(err, &re) {
			details := map[string]string{}
			if re.Path != "" {
				details["path"] = re.Path
			}
			if re.Err != nil {
				details["cause"] = re.Err.Error()
			}
			_ = opts.formatter(cmd).Error(string(re.Code), re.Message, details)
			if pipeline.IsInterruptedError(err) {
				return WrapExitError(ExitFailure, "run interrupted", err)
			}
			return WrapExitError(ExitCommandError, "run aborted", err)
		}
		return WrapExitError(ExitFailure, "run failed", err)
	}

	if opts.Report != "" {
		report, err := sum.Report()
		if err != nil {
			return WrapExitError(ExitFailure, "failed to build report", err)
		}
		if err := os.WriteFile(opts.Report, report, 0o644); err != nil {
			return WrapExitError(ExitFailure, "failed to write report", err)
		}
	}

	out := opts.formatter(cmd)
	for _, e := range sum.Errors {
		out.VerboseLog("error: %v", e)
	}
	return out.Success(runResult{Summary: sum, OutputDir: cfg.OutputDir})
}

// commandContext returns the command's context, or Background when the
// command was not started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// openSource opens the record source selected by the flags. The returned
// close function is never nil.
func openSource(opts *RunOptions) (source.Source, func(), error) {
	if opts.Records != "" {
		return &source.File{Path: opts.Records}, func() {}, nil
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, func() {
		if err := st.Close(); err != nil {
			slog.Error("error closing database", "error", err)
		}
	}, nil
}

// runResult is the printed outcome of a run.
type runResult struct {
	*pipeline.Summary
	OutputDir string `json:"output_dir"`
}

func (r runResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s\n", r.RunID)
	fmt.Fprintf(&b, "  records:  %d (%d duplicate)\n", r.Records, r.Duplicates)
	fmt.Fprintf(&b, "  payloads: %d -> %d unique\n", r.Payloads, r.Jobs)
	fmt.Fprintf(&b, "  rendered: %d, failed: %d\n", r.Rendered, r.Failed)
	fmt.Fprintf(&b, "  outputs:  %d (%d copies, %d links) in %s\n", r.Outputs, r.Copies, r.Links, r.OutputDir)
	fmt.Fprintf(&b, "  errors:   %d", r.ErrorCount)
	return b.String()
}
