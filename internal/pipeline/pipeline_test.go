package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chartgen/internal/ident"
	"github.com/roach88/chartgen/internal/ir"
	"github.com/roach88/chartgen/internal/render"
	"github.com/roach88/chartgen/internal/testutil"
)

type fixture struct {
	out, cache string
	pie, ver   *testutil.FakeRenderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	top := t.TempDir()
	return &fixture{
		out:   filepath.Join(top, "images"),
		cache: filepath.Join(top, "pickles"),
		pie:   testutil.NewFakeRenderer("png"),
		ver:   testutil.NewFakeRenderer("png"),
	}
}

func (f *fixture) controller(links bool) *Controller {
	return New(Options{
		OutputDir: f.out,
		CacheDir:  f.cache,
		Links:     links,
		Workers:   4,
		Renderers: render.Registry{ir.KindPieChart: f.pie, ir.KindVersion: f.ver},
	})
}

func pieRecord(id string, shares ...ir.Share) ir.Record {
	return ir.Record{ID: id, Shares: shares}
}

func TestRunDedupsIdenticalPayloads(t *testing.T) {
	f := newFixture(t)
	records := []ir.Record{
		pieRecord("aaa", ir.Share{Label: "busybox", Percent: 60}, ir.Share{Label: "libc", Percent: 40}),
		pieRecord("bbb", ir.Share{Label: "busybox", Percent: 60}, ir.Share{Label: "libc", Percent: 40}),
		pieRecord("ccc", ir.Share{Label: "busybox", Percent: 60}, ir.Share{Label: "libc", Percent: 40}),
	}

	sum, err := f.controller(false).Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Records)
	assert.Equal(t, 3, sum.Payloads)
	assert.Equal(t, 1, sum.Jobs)
	assert.Equal(t, 1, sum.Rendered)
	assert.Equal(t, 1, f.pie.TotalCalls())
	assert.Equal(t, 3, sum.Copies)
	assert.Empty(t, sum.Errors)

	assert.Equal(t, []string{"aaa-piechart.png", "bbb-piechart.png", "ccc-piechart.png"}, testutil.ListDir(t, f.out))

	first, err := os.ReadFile(filepath.Join(f.out, "aaa-piechart.png"))
	require.NoError(t, err)
	for _, name := range []string{"bbb-piechart.png", "ccc-piechart.png"} {
		data, err := os.ReadFile(filepath.Join(f.out, name))
		require.NoError(t, err)
		assert.Equal(t, first, data)
	}
}

func TestRunDistinctPayloadsRenderSeparately(t *testing.T) {
	f := newFixture(t)
	records := []ir.Record{
		pieRecord("aaa", ir.Share{Label: "busybox", Percent: 100}),
		pieRecord("bbb", ir.Share{Label: "openssl", Percent: 100}),
	}

	sum, err := f.controller(false).Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Jobs)
	assert.Equal(t, 2, f.pie.TotalCalls())
	require.Len(t, sum.Reports, 2)
	assert.NotEqual(t, sum.Reports[0].Digest, sum.Reports[1].Digest)
}

func TestRunThousandRequestersRenderOnce(t *testing.T) {
	f := newFixture(t)
	records := make([]ir.Record, 1000)
	for i := range records {
		records[i] = pieRecord(fmt.Sprintf("rec%04d", i), ir.Share{Label: "busybox", Percent: 100})
	}

	sum, err := f.controller(true).Run(context.Background(), records)
	require.NoError(t, err)

	require.Len(t, sum.Reports, 1)
	assert.Equal(t, 1, f.pie.Calls(sum.Reports[0].Digest))
	assert.Equal(t, 1000, sum.Outputs)
	assert.Equal(t, 1000, sum.Links)
	// 1000 links plus the shared artifact.
	assert.Len(t, testutil.ListDir(t, f.out), 1001)
}

func TestRunLinkPolicy(t *testing.T) {
	records := []ir.Record{
		{ID: "aaa", Versions: map[string]ir.VersionMap{"libc": {"printf": "2.17"}}},
		{ID: "bbb", Versions: map[string]ir.VersionMap{"libc": {"printf": "2.17"}}},
		{ID: "ccc", FuncVersions: map[string]ir.VersionMap{"libc": {"printf": "2.17"}}},
	}
	want := []string{"aaa-libc-version.png", "bbb-libc-version.png", "ccc-libc-funcversion.png"}

	t.Run("links enabled", func(t *testing.T) {
		f := newFixture(t)
		sum, err := f.controller(true).Run(context.Background(), records)
		require.NoError(t, err)

		require.Len(t, sum.Reports, 1)
		rep := sum.Reports[0]
		assert.Equal(t, 3, rep.Links())
		assert.True(t, rep.ArtifactRetained)

		artifact := ir.ArtifactName(rep.Digest, "png")
		assert.ElementsMatch(t, append([]string{artifact}, want...), testutil.ListDir(t, f.out))
		for _, name := range want {
			assert.True(t, testutil.IsSymlink(t, filepath.Join(f.out, name)), name)
		}
	})

	t.Run("links disabled", func(t *testing.T) {
		f := newFixture(t)
		sum, err := f.controller(false).Run(context.Background(), records)
		require.NoError(t, err)

		assert.Equal(t, 3, sum.Copies)
		assert.Equal(t, 0, sum.Links)
		assert.Equal(t, want, testutil.ListDir(t, f.out), "artifact removed after copying")
		for _, name := range want {
			assert.False(t, testutil.IsSymlink(t, filepath.Join(f.out, name)), name)
		}
	})

	t.Run("sole requester copies even with links enabled", func(t *testing.T) {
		f := newFixture(t)
		sum, err := f.controller(true).Run(context.Background(), records[:1])
		require.NoError(t, err)

		assert.Equal(t, 1, sum.Copies)
		assert.Equal(t, []string{"aaa-libc-version.png"}, testutil.ListDir(t, f.out))
	})
}

func TestRunCleansCacheAfterSuccessAndFailure(t *testing.T) {
	f := newFixture(t)
	f.pie.FailIf = func(_ ir.Job, payload []byte) bool {
		return bytes.Contains(payload, []byte(`"label":"broken"`))
	}
	records := []ir.Record{
		pieRecord("aaa", ir.Share{Label: "broken", Percent: 100}),
		pieRecord("bbb", ir.Share{Label: "busybox", Percent: 100}),
		{ID: "ccc", Versions: map[string]ir.VersionMap{"zlib": {"inflate": "1.2.11"}}},
	}

	sum, err := f.controller(false).Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 2, sum.Rendered)
	assert.Empty(t, testutil.ListDir(t, f.cache), "no payload survives the run")
	assert.Equal(t, []string{"bbb-piechart.png", "ccc-zlib-version.png"}, testutil.ListDir(t, f.out))
}

func TestRunIsolatesRenderFailures(t *testing.T) {
	f := newFixture(t)
	f.pie.FailIf = func(_ ir.Job, payload []byte) bool {
		return bytes.Contains(payload, []byte(`"label":"broken"`))
	}
	records := []ir.Record{
		pieRecord("d1a", ir.Share{Label: "broken", Percent: 100}),
		pieRecord("d1b", ir.Share{Label: "broken", Percent: 100}),
		pieRecord("d2a", ir.Share{Label: "busybox", Percent: 100}),
	}

	sum, err := f.controller(true).Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Jobs)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Rendered)
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, 1, sum.Outputs)
	require.Len(t, sum.Errors, 1)
	assert.ErrorIs(t, sum.Errors[0], testutil.ErrInjected)

	assert.Equal(t, []string{"d2a-piechart.png"}, testutil.ListDir(t, f.out))

	var discarded int
	for _, rep := range sum.Reports {
		if rep.Discarded {
			discarded++
			assert.Empty(t, rep.Outputs)
		}
	}
	assert.Equal(t, 1, discarded)
}

func TestRunIsolatesRenderPanics(t *testing.T) {
	f := newFixture(t)
	f.ver.PanicIf = func(ir.Job) bool { return true }
	records := []ir.Record{
		{
			ID:       "aaa",
			Shares:   []ir.Share{{Label: "busybox", Percent: 100}},
			Versions: map[string]ir.VersionMap{"libc": {"printf": "2.17"}},
		},
	}

	sum, err := f.controller(false).Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Errors, 1)
	assert.True(t, render.IsPanic(sum.Errors[0]))
	assert.Equal(t, []string{"aaa-piechart.png"}, testutil.ListDir(t, f.out))
}

func TestRunVersionAndFuncVersionShareDigest(t *testing.T) {
	f := newFixture(t)
	table := ir.VersionMap{"printf": "2.17", "memcpy": "2.31"}
	records := []ir.Record{{
		ID:           "aaa",
		Versions:     map[string]ir.VersionMap{"libc": table, "empty": {}},
		FuncVersions: map[string]ir.VersionMap{"libc": table},
	}}

	sum, err := f.controller(false).Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Payloads, "empty table produces no payload")
	assert.Equal(t, 1, sum.Jobs)
	assert.Equal(t, 1, f.ver.TotalCalls())
	assert.Equal(t, []string{"aaa-libc-funcversion.png", "aaa-libc-version.png"}, testutil.ListDir(t, f.out))
}

func TestRunSkipsDuplicateRecords(t *testing.T) {
	f := newFixture(t)
	rec := pieRecord("aaa", ir.Share{Label: "busybox", Percent: 100})

	sum, err := f.controller(false).Run(context.Background(), []ir.Record{rec, rec})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Records)
	assert.Equal(t, 1, sum.Duplicates)
	assert.Equal(t, 1, sum.Payloads)
	assert.Equal(t, 1, sum.Outputs)
}

func TestRunEmptyResultsAreNotErrors(t *testing.T) {
	f := newFixture(t)
	records := []ir.Record{
		{ID: "aaa"},
		pieRecord("bbb", ir.Share{Label: "noise", Percent: 0.1}),
	}

	sum, err := f.controller(false).Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Records)
	assert.Zero(t, sum.Payloads)
	assert.Zero(t, sum.Jobs)
	assert.Empty(t, sum.Errors)
	assert.Zero(t, f.pie.TotalCalls())
	assert.Empty(t, testutil.ListDir(t, f.out))
}

func TestRunInvalidSharesAreIsolated(t *testing.T) {
	f := newFixture(t)
	records := []ir.Record{
		pieRecord("aaa", ir.Share{Label: "busybox", Percent: 150}),
		pieRecord("bbb", ir.Share{Label: "busybox", Percent: 100}),
	}

	sum, err := f.controller(false).Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.ErrorCount)
	assert.Equal(t, []string{"bbb-piechart.png"}, testutil.ListDir(t, f.out))
}

func TestRunPreconditionAbort(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(f.out), 0o755))
	require.NoError(t, os.WriteFile(f.out, []byte("not a directory"), 0o644))

	sum, err := f.controller(false).Run(context.Background(), []ir.Record{
		pieRecord("aaa", ir.Share{Label: "busybox", Percent: 100}),
	})

	require.Error(t, err)
	assert.Nil(t, sum)
	assert.True(t, IsPreconditionError(err))
	assert.False(t, IsIndexError(err))
	assert.Zero(t, f.pie.TotalCalls())
	assert.NoDirExists(t, f.cache, "nothing created after the failed check")
}

func TestRunCreatesMissingDirectories(t *testing.T) {
	f := newFixture(t)

	_, err := f.controller(false).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.DirExists(t, f.out)
	assert.DirExists(t, f.cache)
	assert.Empty(t, testutil.ListDir(t, f.cache), "write-check files removed")
}

func TestRunIndexFailurePurgesPayloads(t *testing.T) {
	f := newFixture(t)
	// The first token names the run; the third cannot be created in the
	// cache directory.
	gen := ident.NewFixedGenerator("run-1", "tmp-1", "missing/tmp-2")
	c := New(Options{
		OutputDir: f.out,
		CacheDir:  f.cache,
		Renderers: render.Registry{ir.KindPieChart: f.pie, ir.KindVersion: f.ver},
		Generator: gen,
	})

	_, err := c.Run(context.Background(), []ir.Record{
		pieRecord("aaa", ir.Share{Label: "busybox", Percent: 100}),
		pieRecord("bbb", ir.Share{Label: "openssl", Percent: 100}),
	})

	require.Error(t, err)
	assert.True(t, IsIndexError(err))
	assert.Empty(t, testutil.ListDir(t, f.cache))
	assert.Zero(t, f.pie.TotalCalls())
}

func TestRunDeterministicDigests(t *testing.T) {
	records := []ir.Record{
		{
			ID:       "aaa",
			Shares:   []ir.Share{{Label: "busybox", Percent: 70}, {Label: "libc", Percent: 30}},
			Versions: map[string]ir.VersionMap{"libc": {"printf": "2.17", "memcpy": "2.31"}},
		},
	}

	digests := func() []ir.Digest {
		f := newFixture(t)
		sum, err := f.controller(false).Run(context.Background(), records)
		require.NoError(t, err)
		var out []ir.Digest
		for _, rep := range sum.Reports {
			out = append(out, rep.Digest)
		}
		return out
	}

	first := digests()
	require.Len(t, first, 2)
	assert.Equal(t, first, digests())
}

func TestRunErrorMessage(t *testing.T) {
	err := newPreconditionError("/out", "directory not writable", os.ErrPermission)
	assert.Equal(t, "PRECONDITION: directory not writable (path=/out): permission denied", err.Error())
	assert.ErrorIs(t, err, os.ErrPermission)

	wrapped := fmt.Errorf("run: %w", newIndexError("cannot index payload", nil))
	assert.True(t, IsIndexError(wrapped))
	assert.False(t, IsPreconditionError(wrapped))
}

func TestRunInterruptedWhileRendering(t *testing.T) {
	f := newFixture(t)
	f.pie.Delay = time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sum, err := f.controller(false).Run(ctx, []ir.Record{
		pieRecord("aaa", ir.Share{Label: "busybox", Percent: 100}),
		{ID: "bbb", Versions: map[string]ir.VersionMap{"busybox": {"BusyBox v%s": "1.0"}}},
	})

	require.Error(t, err)
	assert.Nil(t, sum)
	assert.True(t, IsInterruptedError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, testutil.ListDir(t, f.out))
	assert.Empty(t, testutil.ListDir(t, f.cache))
	assert.Zero(t, f.ver.TotalCalls(), "later kinds never start")
}

func TestRunInterruptedBeforeStart(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.controller(false).Run(ctx, []ir.Record{
		pieRecord("aaa", ir.Share{Label: "busybox", Percent: 100}),
	})

	require.Error(t, err)
	assert.True(t, IsInterruptedError(err))
	assert.False(t, IsIndexError(err))
	assert.Zero(t, f.pie.TotalCalls())
	assert.Empty(t, testutil.ListDir(t, f.cache))
}

func TestRunInterruptedBatchDiscardsFinishedArtifacts(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The first job renders, then cancels the run; the second is never
	// started.
	cancelling := render.RenderFunc(func(ctx context.Context, job ir.Job, outputDir string) (string, error) {
		defer cancel()
		return f.pie.Render(ctx, job, outputDir)
	})
	c := New(Options{
		OutputDir: f.out,
		CacheDir:  f.cache,
		Workers:   1,
		Renderers: render.Registry{ir.KindPieChart: cancelling, ir.KindVersion: f.ver},
	})

	_, err := c.Run(ctx, []ir.Record{
		pieRecord("aaa", ir.Share{Label: "busybox", Percent: 100}),
		pieRecord("bbb", ir.Share{Label: "openssl", Percent: 100}),
	})

	require.Error(t, err)
	assert.True(t, IsInterruptedError(err))
	assert.Equal(t, 1, f.pie.TotalCalls())
	assert.Empty(t, testutil.ListDir(t, f.out), "no outputs and no artifacts")
	assert.Empty(t, testutil.ListDir(t, f.cache))
}

func TestRunKeepsKindsFinishedBeforeInterrupt(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Pie charts render and fan out first; the version batch cancels the run.
	cancelling := render.RenderFunc(func(ctx context.Context, job ir.Job, outputDir string) (string, error) {
		defer cancel()
		return f.ver.Render(ctx, job, outputDir)
	})
	c := New(Options{
		OutputDir: f.out,
		CacheDir:  f.cache,
		Renderers: render.Registry{ir.KindPieChart: f.pie, ir.KindVersion: cancelling},
	})

	_, err := c.Run(ctx, []ir.Record{
		{
			ID:       "aaa",
			Shares:   []ir.Share{{Label: "busybox", Percent: 100}},
			Versions: map[string]ir.VersionMap{"busybox": {"BusyBox v%s": "1.0"}},
		},
	})

	require.Error(t, err)
	assert.True(t, IsInterruptedError(err))
	assert.Equal(t, 1, f.ver.TotalCalls())
	assert.Equal(t, []string{"aaa-piechart.png"}, testutil.ListDir(t, f.out))
	assert.Empty(t, testutil.ListDir(t, f.cache))
}

func TestRunRejectsUnsafeNames(t *testing.T) {
	f := newFixture(t)
	records := []ir.Record{
		pieRecord("../evil", ir.Share{Label: "busybox", Percent: 100}),
		{
			ID:     "aaa",
			Shares: []ir.Share{{Label: "openssl", Percent: 100}},
			Versions: map[string]ir.VersionMap{
				"../x":    {"v%s": "1.0"},
				"busybox": {"BusyBox v%s": "1.0"},
			},
			FuncVersions: map[string]ir.VersionMap{"a/b": {"f": "2.0"}},
		},
	}

	sum, err := f.controller(false).Run(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Records)
	assert.Equal(t, 3, sum.ErrorCount)
	for _, e := range sum.Errors {
		assert.ErrorIs(t, e, ir.ErrUnsafeName)
	}
	assert.Equal(t, 2, sum.Jobs)
	assert.Equal(t, []string{"aaa-busybox-version.png", "aaa-piechart.png"}, testutil.ListDir(t, f.out))
	assert.Equal(t, []string{"images", "pickles"}, testutil.ListDir(t, filepath.Dir(f.out)),
		"nothing written next to the output directory")
}
