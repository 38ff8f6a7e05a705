package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/roach88/chartgen/internal/ir"
)

// Result is the outcome of one job. ArtifactPath is set if and only if Err
// is nil.
type Result struct {
	Job          ir.Job
	ArtifactPath string
	Err          error
	Elapsed      time.Duration
}

// OK reports whether the job produced an artifact.
func (r Result) OK() bool {
	return r.Err == nil
}

// DefaultWorkers is the number of parallel execution units, minimum 1.
func DefaultWorkers() int {
	return max(runtime.NumCPU(), 1)
}

// Scheduler runs render jobs on a fixed-size worker pool.
//
// Workers share no mutable state: each job reads its payload file and
// writes one artifact named by its digest, so concurrent jobs never write
// the same file.
type Scheduler struct {
	renderers Registry
	outputDir string
	workers   int
	timeout   time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the pool size. Values below 1 select DefaultWorkers.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n < 1 {
			n = DefaultWorkers()
		}
		s.workers = n
	}
}

// WithTimeout bounds each job. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.timeout = d
	}
}

// NewScheduler creates a scheduler writing artifacts into outputDir.
func NewScheduler(renderers Registry, outputDir string, opts ...Option) *Scheduler {
	s := &Scheduler{
		renderers: renderers,
		outputDir: outputDir,
		workers:   DefaultWorkers(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Workers returns the pool size.
func (s *Scheduler) Workers() int {
	return s.workers
}

// Run executes every job exactly once and blocks until all of them have
// finished. Results are returned in submission order.
//
// A batch that names the same (kind, digest) twice is rejected before any
// job runs. Individual job failures never fail the batch; they are carried
// in the corresponding Result. Once ctx is done, jobs not yet started fail
// with ctx.Err() without reaching their renderer.
func (s *Scheduler) Run(ctx context.Context, jobs []ir.Job) ([]Result, error) {
	type jobKey struct {
		kind   ir.Kind
		digest ir.Digest
	}
	seen := make(map[jobKey]bool, len(jobs))
	for _, j := range jobs {
		k := jobKey{kind: j.Kind, digest: j.Digest}
		if seen[k] {
			return nil, fmt.Errorf("duplicate job for %s/%s", j.Kind, j.Digest.Short())
		}
		seen[k] = true
	}

	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results, nil
	}

	q := newJobQueue(len(jobs))
	for i, j := range jobs {
		q.Enqueue(queuedJob{pos: i, job: j})
	}
	q.Close()

	workers := min(s.workers, len(jobs))
	slog.Debug("render batch starting", "jobs", len(jobs), "workers", workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				qj, ok := q.TryDequeue()
				if !ok {
					return
				}
				// Each position is written by exactly one worker.
				if err := ctx.Err(); err != nil {
					results[qj.pos] = Result{
						Job: qj.job,
						Err: &RenderError{Kind: qj.job.Kind, Digest: qj.job.Digest, Err: err},
					}
					continue
				}
				results[qj.pos] = s.runOne(ctx, qj.job)
			}
		}()
	}
	wg.Wait()

	return results, nil
}

// runOne is the job boundary: nothing a renderer does escapes it.
func (s *Scheduler) runOne(ctx context.Context, job ir.Job) (res Result) {
	start := time.Now()
	res.Job = job

	defer func() {
		if p := recover(); p != nil {
			res.ArtifactPath = ""
			res.Err = &RenderError{Kind: job.Kind, Digest: job.Digest, Err: &PanicError{Value: p}}
		}
		res.Elapsed = time.Since(start)
		if res.Err != nil {
			slog.Warn("render failed", "kind", job.Kind, "digest", job.Digest.Short(), "error", res.Err)
		} else {
			slog.Debug("rendered", "kind", job.Kind, "digest", job.Digest.Short(), "elapsed", res.Elapsed)
		}
	}()

	r, ok := s.renderers[job.Kind]
	if !ok || r == nil {
		res.Err = &RenderError{Kind: job.Kind, Digest: job.Digest, Err: ErrNoRenderer}
		return res
	}

	jobCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	path, err := r.Render(jobCtx, job, s.outputDir)
	if err != nil {
		res.Err = &RenderError{Kind: job.Kind, Digest: job.Digest, Err: err}
		return res
	}
	if _, err := os.Stat(path); err != nil {
		res.Err = &RenderError{Kind: job.Kind, Digest: job.Digest, Err: fmt.Errorf("%w: %v", ErrArtifactMissing, err)}
		return res
	}

	res.ArtifactPath = path
	return res
}
