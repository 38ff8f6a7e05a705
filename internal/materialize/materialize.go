package materialize

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/chartgen/internal/ir"
)

// Mode is how one output was produced.
type Mode string

const (
	ModeCopy Mode = "copy"
	ModeLink Mode = "link"
)

// Output is one materialized file.
type Output struct {
	Requester ir.Requester `json:"requester"`
	Path      string       `json:"path"`
	Mode      Mode         `json:"mode"`
}

// DigestReport is the outcome of fanning out one digest.
type DigestReport struct {
	Kind      ir.Kind
	Digest    ir.Digest
	Discarded bool // render failed; nobody received an output
	Skipped   int  // requesters that received nothing because of Discarded
	Outputs   []Output
	Errors    []error // every entry is a *FanoutError

	// ArtifactRetained is true when the shared artifact is still on disk
	// after fan-out, i.e. a symlink references it or its removal failed.
	ArtifactRetained bool
}

// Links counts outputs produced as symlinks.
func (r DigestReport) Links() int {
	return r.count(ModeLink)
}

// Copies counts outputs produced as copies.
func (r DigestReport) Copies() int {
	return r.count(ModeCopy)
}

func (r DigestReport) count(m Mode) int {
	n := 0
	for _, o := range r.Outputs {
		if o.Mode == m {
			n++
		}
	}
	return n
}

// Materializer writes requester outputs into one output directory.
type Materializer struct {
	outputDir string
	links     bool
}

// New creates a Materializer. links enables symlink sharing for digests
// with more than one requester.
func New(outputDir string, links bool) *Materializer {
	return &Materializer{outputDir: outputDir, links: links}
}

// Materialize fans artifactPath out to requesters. ok reports whether the
// render produced an artifact at all.
func (m *Materializer) Materialize(kind ir.Kind, digest ir.Digest, artifactPath string, ok bool, requesters []ir.Requester) DigestReport {
	rep := DigestReport{Kind: kind, Digest: digest}
	if !ok {
		rep.Discarded = true
		rep.Skipped = len(requesters)
		return rep
	}

	ext := strings.TrimPrefix(filepath.Ext(artifactPath), ".")
	useLinks := m.links && len(requesters) > 1
	linked := false

	for _, req := range requesters {
		out := filepath.Join(m.outputDir, req.OutputName(ext))
		if out == artifactPath {
			rep.Errors = append(rep.Errors, &FanoutError{
				Op: OpCopy, Kind: kind, Digest: digest, Requester: req, Path: out,
				Err: errors.New("output name collides with artifact"),
			})
			continue
		}

		if err := removeExisting(out); err != nil {
			rep.Errors = append(rep.Errors, &FanoutError{Op: OpReplace, Kind: kind, Digest: digest, Requester: req, Path: out, Err: err})
			continue
		}

		if useLinks {
			if err := os.Symlink(m.linkTarget(artifactPath), out); err != nil {
				rep.Errors = append(rep.Errors, &FanoutError{Op: OpLink, Kind: kind, Digest: digest, Requester: req, Path: out, Err: err})
				continue
			}
			linked = true
			rep.Outputs = append(rep.Outputs, Output{Requester: req, Path: out, Mode: ModeLink})
			continue
		}

		if err := copyFile(artifactPath, out); err != nil {
			rep.Errors = append(rep.Errors, &FanoutError{Op: OpCopy, Kind: kind, Digest: digest, Requester: req, Path: out, Err: err})
			continue
		}
		rep.Outputs = append(rep.Outputs, Output{Requester: req, Path: out, Mode: ModeCopy})
	}

	// A linked artifact must outlive every link.
	if linked {
		rep.ArtifactRetained = true
		return rep
	}
	if err := os.Remove(artifactPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		rep.ArtifactRetained = true
		rep.Errors = append(rep.Errors, &FanoutError{Op: OpRemove, Kind: kind, Digest: digest, Path: artifactPath, Err: err})
	}
	return rep
}

// linkTarget returns the artifact path relative to the output directory so
// the output tree stays relocatable.
func (m *Materializer) linkTarget(artifactPath string) string {
	rel, err := filepath.Rel(m.outputDir, artifactPath)
	if err != nil {
		return artifactPath
	}
	return rel
}

func removeExisting(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := ir.CopyChunked(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}
