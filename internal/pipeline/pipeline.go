package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/roach88/chartgen/internal/canon"
	"github.com/roach88/chartgen/internal/ident"
	"github.com/roach88/chartgen/internal/index"
	"github.com/roach88/chartgen/internal/ir"
	"github.com/roach88/chartgen/internal/materialize"
	"github.com/roach88/chartgen/internal/render"
)

// Options configures a Controller.
type Options struct {
	OutputDir string
	CacheDir  string
	Links     bool
	Workers   int           // < 1 means render.DefaultWorkers
	Timeout   time.Duration // per job; 0 disables
	Renderers render.Registry

	// Generator names temporary payload files and the run. Defaults to
	// UUIDv7.
	Generator ident.Generator
}

// Summary reports the outcome of one run.
type Summary struct {
	RunID      string `json:"run_id"`
	Records    int    `json:"records"`
	Duplicates int    `json:"duplicate_records"`
	Payloads   int    `json:"payloads"`
	Jobs       int    `json:"jobs"`
	Rendered   int    `json:"rendered"`
	Failed     int    `json:"failed"`
	Outputs    int    `json:"outputs"`
	Links      int    `json:"links"`
	Copies     int    `json:"copies"`
	Skipped    int    `json:"skipped"`
	ErrorCount int    `json:"errors"`

	// Errors holds every non-fatal error of the run: canonicalization,
	// render, fan-out and purge failures.
	Errors []error `json:"-"`

	// Reports holds one fan-out report per digest, grouped by kind in
	// ir.Kinds order and sorted by digest within a kind.
	Reports []materialize.DigestReport `json:"-"`

	Elapsed time.Duration `json:"elapsed_ns"`
}

func (s *Summary) addError(err error) {
	s.Errors = append(s.Errors, err)
	s.ErrorCount = len(s.Errors)
}

// Controller owns the dedup index for the duration of a run.
type Controller struct {
	opts Options
}

// New creates a Controller.
func New(opts Options) *Controller {
	if opts.Generator == nil {
		opts.Generator = ident.UUIDv7Generator{}
	}
	return &Controller{opts: opts}
}

// Run processes records and returns the run summary. The returned error is
// always a *RunError.
//
// Cancelling ctx lets the current batch drain, removes its artifacts
// without fanning out, and returns an ErrCodeInterrupted error.
func (c *Controller) Run(ctx context.Context, records []ir.Record) (*Summary, error) {
	start := time.Now()
	sum := &Summary{RunID: c.opts.Generator.Generate()}

	for _, dir := range []string{c.opts.OutputDir, c.opts.CacheDir} {
		if err := ensureWritableDir(dir); err != nil {
			return nil, err
		}
	}

	idx := index.New(c.opts.CacheDir, c.opts.Generator)
	if err := c.collect(idx, records, sum); err != nil {
		for _, perr := range idx.Purge() {
			slog.Warn("payload purge failed", "error", perr)
		}
		return nil, err
	}

	sched := render.NewScheduler(c.opts.Renderers, c.opts.OutputDir,
		render.WithWorkers(c.opts.Workers),
		render.WithTimeout(c.opts.Timeout),
	)
	mat := materialize.New(c.opts.OutputDir, c.opts.Links)

	for _, kind := range ir.Kinds {
		if err := c.runKind(ctx, idx, sched, mat, kind, sum); err != nil {
			slog.Warn("run interrupted", "run", sum.RunID, "kind", kind, "error", err)
			for _, perr := range idx.Purge() {
				slog.Warn("payload purge failed", "error", perr)
			}
			return nil, err
		}
	}

	for _, err := range idx.Purge() {
		slog.Warn("payload purge failed", "error", err)
		sum.addError(err)
	}

	sum.Elapsed = time.Since(start)
	slog.Info("run complete",
		"run", sum.RunID,
		"records", sum.Records,
		"jobs", sum.Jobs,
		"rendered", sum.Rendered,
		"failed", sum.Failed,
		"outputs", sum.Outputs,
		"errors", sum.ErrorCount,
	)
	return sum, nil
}

// ensureWritableDir creates dir if missing and checks it with a temporary
// file.
func ensureWritableDir(dir string) error {
	if dir == "" {
		return newPreconditionError(dir, "directory not configured", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newPreconditionError(dir, "cannot create directory", err)
	}
	f, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return newPreconditionError(dir, "directory not writable", err)
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		return newPreconditionError(dir, "cannot remove write-check file", err)
	}
	return nil
}

// collect is phase one. A record ID seen before is skipped. Record IDs and
// package names that are not safe file name segments are counted as errors
// and skipped.
func (c *Controller) collect(idx *index.Index, records []ir.Record, sum *Summary) error {
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		if seen[rec.ID] {
			sum.Duplicates++
			slog.Debug("skipping duplicate record", "record", rec.ID)
			continue
		}
		seen[rec.ID] = true
		if err := ir.ValidateName(rec.ID); err != nil {
			slog.Warn("rejecting record", "error", err)
			sum.addError(fmt.Errorf("record id: %w", err))
			continue
		}
		sum.Records++

		payload, ok, err := canon.Shares(rec.Shares)
		if err != nil {
			slog.Warn("cannot canonicalize shares", "record", rec.ID, "error", err)
			sum.addError(fmt.Errorf("record %s: %w", rec.ID, err))
		} else if ok {
			req := ir.Requester{RecordID: rec.ID, Suffix: ir.SuffixPieChart}
			if err := c.put(idx, ir.KindPieChart, payload, req, sum); err != nil {
				return err
			}
		}

		if err := c.collectTables(idx, rec.ID, rec.Versions, ir.SuffixVersion, sum); err != nil {
			return err
		}
		if err := c.collectTables(idx, rec.ID, rec.FuncVersions, ir.SuffixFuncVersion, sum); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) collectTables(idx *index.Index, recordID string, tables map[string]ir.VersionMap, suffix ir.Suffix, sum *Summary) error {
	pkgs := make([]string, 0, len(tables))
	for pkg := range tables {
		pkgs = append(pkgs, pkg)
	}
	slices.Sort(pkgs)

	for _, pkg := range pkgs {
		if err := ir.ValidateName(pkg); err != nil {
			slog.Warn("rejecting version table", "record", recordID, "suffix", suffix, "error", err)
			sum.addError(fmt.Errorf("record %s package: %w", recordID, err))
			continue
		}
		payload, ok, err := canon.VersionTable(tables[pkg])
		if err != nil {
			slog.Warn("cannot canonicalize version table", "record", recordID, "package", pkg, "error", err)
			sum.addError(fmt.Errorf("record %s package %s: %w", recordID, pkg, err))
			continue
		}
		if !ok {
			continue
		}
		req := ir.Requester{RecordID: recordID, Descriptor: pkg, Suffix: suffix}
		if err := c.put(idx, ir.KindVersion, payload, req, sum); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) put(idx *index.Index, kind ir.Kind, payload []byte, req ir.Requester, sum *Summary) error {
	if _, err := idx.Put(kind, payload, req); err != nil {
		return newIndexError(fmt.Sprintf("cannot index payload for %s", req), err)
	}
	sum.Payloads++
	return nil
}

// runKind renders every unique digest of kind, waits for the batch, then
// fans out in digest order. It returns an interrupted RunError if ctx is
// done before the batch starts or by the time it has joined.
func (c *Controller) runKind(ctx context.Context, idx *index.Index, sched *render.Scheduler, mat *materialize.Materializer, kind ir.Kind, sum *Summary) error {
	if err := ctx.Err(); err != nil {
		return newInterruptedError(fmt.Sprintf("cancelled before rendering %s", kind), err)
	}
	entries := idx.UniqueDigests(kind)
	if len(entries) == 0 {
		return nil
	}

	jobs := make([]ir.Job, 0, len(entries))
	for _, e := range entries {
		c.transition(idx, kind, e.Digest, index.StateCollecting, index.StateQueued, sum)
		jobs = append(jobs, ir.Job{Kind: kind, Digest: e.Digest, PayloadPath: e.PayloadPath})
	}
	sum.Jobs += len(jobs)

	for _, j := range jobs {
		c.transition(idx, kind, j.Digest, index.StateQueued, index.StateRendering, sum)
	}
	slog.Info("rendering", "kind", kind, "jobs", len(jobs), "workers", min(sched.Workers(), len(jobs)))
	results, err := sched.Run(ctx, jobs)
	if err != nil {
		// Unique digests cannot collide, so this is a broken index.
		sum.addError(fmt.Errorf("render %s batch: %w", kind, err))
		results = make([]render.Result, len(jobs))
		for i, j := range jobs {
			results[i] = render.Result{Job: j, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		discardArtifacts(results)
		return newInterruptedError(fmt.Sprintf("cancelled while rendering %s", kind), err)
	}

	for i, res := range results {
		e := entries[i]
		if res.OK() {
			sum.Rendered++
			c.transition(idx, kind, e.Digest, index.StateRendering, index.StateRendered, sum)
		} else {
			sum.Failed++
			sum.addError(res.Err)
			c.transition(idx, kind, e.Digest, index.StateRendering, index.StateFailed, sum)
		}

		rep := mat.Materialize(kind, e.Digest, res.ArtifactPath, res.OK(), e.Requesters)
		sum.Reports = append(sum.Reports, rep)
		sum.Outputs += len(rep.Outputs)
		sum.Links += rep.Links()
		sum.Copies += rep.Copies()
		sum.Skipped += rep.Skipped
		for _, ferr := range rep.Errors {
			logFanoutError(ferr)
			sum.addError(ferr)
		}

		if rep.Discarded {
			c.transition(idx, kind, e.Digest, index.StateFailed, index.StateDiscarded, sum)
		} else {
			c.transition(idx, kind, e.Digest, index.StateRendered, index.StateMaterialized, sum)
		}
	}
	return nil
}

// discardArtifacts removes artifacts of a batch that will not be fanned out.
func discardArtifacts(results []render.Result) {
	for _, res := range results {
		if !res.OK() {
			continue
		}
		if err := os.Remove(res.ArtifactPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("cannot remove artifact", "path", res.ArtifactPath, "error", err)
		}
	}
}

func (c *Controller) transition(idx *index.Index, kind ir.Kind, digest ir.Digest, from, to index.State, sum *Summary) {
	if err := idx.Transition(kind, digest, from, to); err != nil {
		slog.Error("state transition rejected", "kind", kind, "digest", digest.Short(), "error", err)
		sum.addError(err)
	}
}

func logFanoutError(err error) {
	var fe *materialize.FanoutError
	if !errors.As(err, &fe) {
		slog.Warn("fan-out failed", "error", err)
		return
	}
	slog.Warn("fan-out failed",
		"op", fe.Op,
		"kind", fe.Kind,
		"digest", fe.Digest.Short(),
		"requester", fe.Requester.String(),
		"path", fe.Path,
		"error", fe.Err,
	)
}
