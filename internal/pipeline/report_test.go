package pipeline

import (
	"bytes"
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chartgen/internal/ir"
)

func TestRunReportGolden(t *testing.T) {
	f := newFixture(t)
	f.pie.FailIf = func(_ ir.Job, payload []byte) bool {
		return bytes.Contains(payload, []byte(`"label":"broken"`))
	}
	records := []ir.Record{
		{
			ID:       "aaa",
			Shares:   []ir.Share{{Label: "busybox", Percent: 70}, {Label: "libc", Percent: 30}},
			Versions: map[string]ir.VersionMap{"libc": {"printf": "2.17"}},
		},
		pieRecord("bbb", ir.Share{Label: "busybox", Percent: 70}, ir.Share{Label: "libc", Percent: 30}),
		{
			ID:           "ccc",
			Shares:       []ir.Share{{Label: "broken", Percent: 100}},
			FuncVersions: map[string]ir.VersionMap{"libc": {"printf": "2.17"}},
		},
	}

	sum, err := f.controller(true).Run(context.Background(), records)
	require.NoError(t, err)

	report, err := sum.Report()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "run_report", report)
}
