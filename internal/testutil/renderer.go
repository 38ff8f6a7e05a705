// Package testutil provides shared test doubles for chart generation.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/chartgen/internal/ir"
)

// ErrInjected is returned by FakeRenderer for jobs selected by FailIf.
var ErrInjected = errors.New("injected render failure")

// FakeRenderer is an in-process renderer that writes "rendered:" followed
// by the payload bytes to <outputDir>/<digest>.<ext>.
//
// It counts invocations per digest and tracks peak concurrency, so tests
// can assert at-most-once rendering and pool bounds.
//
// Thread-safety: all methods are safe for concurrent use.
type FakeRenderer struct {
	Ext string

	// FailIf selects jobs that fail; payload is the job's payload bytes.
	FailIf func(job ir.Job, payload []byte) bool

	// PanicIf selects jobs that panic instead of returning.
	PanicIf func(job ir.Job) bool

	// Delay is slept before each render, honoring ctx.
	Delay time.Duration

	mu        sync.Mutex
	calls     map[ir.Digest]int
	active    atomic.Int32
	maxActive atomic.Int32
}

// NewFakeRenderer creates a FakeRenderer writing files with extension ext.
func NewFakeRenderer(ext string) *FakeRenderer {
	return &FakeRenderer{Ext: ext, calls: make(map[ir.Digest]int)}
}

// Render implements render.Renderer.
func (f *FakeRenderer) Render(ctx context.Context, job ir.Job, outputDir string) (string, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[ir.Digest]int)
	}
	f.calls[job.Digest]++
	f.mu.Unlock()

	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.maxActive.Load()
		if n <= peak || f.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if f.PanicIf != nil && f.PanicIf(job) {
		panic(fmt.Sprintf("fake renderer panic for %s", job.Digest.Short()))
	}

	payload, err := os.ReadFile(job.PayloadPath)
	if err != nil {
		return "", fmt.Errorf("read payload: %w", err)
	}
	if f.FailIf != nil && f.FailIf(job, payload) {
		return "", ErrInjected
	}

	out := filepath.Join(outputDir, ir.ArtifactName(job.Digest, f.Ext))
	if err := os.WriteFile(out, append([]byte("rendered:"), payload...), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

// Calls returns how often digest was rendered.
func (f *FakeRenderer) Calls(d ir.Digest) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[d]
}

// TotalCalls returns the number of Render invocations.
func (f *FakeRenderer) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// MaxConcurrent returns the peak number of simultaneous Render calls.
func (f *FakeRenderer) MaxConcurrent() int {
	return int(f.maxActive.Load())
}
