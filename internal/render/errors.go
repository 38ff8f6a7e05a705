package render

import (
	"errors"
	"fmt"

	"github.com/roach88/chartgen/internal/ir"
)

// RenderError is the failure recorded for one job.
type RenderError struct {
	Kind   ir.Kind
	Digest ir.Digest
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s/%s: %v", e.Kind, e.Digest.Short(), e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// ErrArtifactMissing is reported when a renderer claims success but the
// artifact file does not exist.
var ErrArtifactMissing = errors.New("renderer reported success but wrote no artifact")

// ErrNoRenderer is reported for a job whose kind has no registered renderer.
var ErrNoRenderer = errors.New("no renderer registered for kind")

// PanicError wraps a value recovered from a panicking renderer.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("renderer panicked: %v", e.Value)
}

// IsPanic reports whether err was caused by a renderer panic.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
