package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/chartgen/internal/ir"
)

// Renderer produces the artifact for one job.
//
// Implementations must be deterministic for identical payload bytes, write
// exactly one file on success and return its path, and write nothing on
// failure.
type Renderer interface {
	Render(ctx context.Context, job ir.Job, outputDir string) (string, error)
}

// RenderFunc adapts a function to the Renderer interface.
type RenderFunc func(ctx context.Context, job ir.Job, outputDir string) (string, error)

// Render calls f.
func (f RenderFunc) Render(ctx context.Context, job ir.Job, outputDir string) (string, error) {
	return f(ctx, job, outputDir)
}

// Registry selects the renderer routine for each kind.
type Registry map[ir.Kind]Renderer

// DefaultExt is the artifact extension when none is configured.
const DefaultExt = "png"

// Command placeholders expanded in CommandRenderer arguments.
const (
	PlaceholderPayload = "{payload}"
	PlaceholderOutput  = "{output}"
	PlaceholderDigest  = "{digest}"
	PlaceholderOutDir  = "{outdir}"
)

// waitDelay bounds how long Run waits for output pipes after the process
// was killed.
const waitDelay = 5 * time.Second

// maxStderr caps the stderr excerpt carried in a CommandError.
const maxStderr = 4096

// CommandRenderer renders by running an external program.
//
// Example:
//
//	&CommandRenderer{
//		Command: []string{"bat-generate-version-chart.py", "-i", "{payload}", "-o", "{output}"},
//		Ext:     "png",
//	}
type CommandRenderer struct {
	// Command is the argv template; Command[0] is the program.
	Command []string

	// Ext is the artifact file extension without the dot.
	Ext string
}

// Render runs the command and returns <outputDir>/<digest>.<ext>.
func (c *CommandRenderer) Render(ctx context.Context, job ir.Job, outputDir string) (string, error) {
	if len(c.Command) == 0 {
		return "", fmt.Errorf("render %s: empty command", job.Kind)
	}

	ext := c.Ext
	if ext == "" {
		ext = DefaultExt
	}
	out := filepath.Join(outputDir, ir.ArtifactName(job.Digest, ext))

	r := strings.NewReplacer(
		PlaceholderPayload, job.PayloadPath,
		PlaceholderOutput, out,
		PlaceholderDigest, string(job.Digest),
		PlaceholderOutDir, outputDir,
	)
	argv := make([]string, len(c.Command))
	for i, a := range c.Command {
		argv[i] = r.Replace(a)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		// A failed renderer must leave nothing behind.
		os.Remove(out)

		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return "", &CommandError{
			Argv:     argv,
			ExitCode: exitCode,
			Stderr:   truncate(strings.TrimSpace(stderr.String()), maxStderr),
			Err:      err,
		}
	}
	return out, nil
}

// CommandError describes a failed renderer process.
type CommandError struct {
	Argv     []string
	ExitCode int // -1 if the process did not exit normally
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Argv[0], e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
