package pipeline

import (
	"path/filepath"

	"github.com/roach88/chartgen/internal/ir"
	"github.com/roach88/chartgen/internal/materialize"
)

// Digest outcomes recorded in a report.
const (
	OutcomeMaterialized = "materialized"
	OutcomeDiscarded    = "discarded"
)

// Report renders the per-digest fan-out of a run as canonical JSON.
//
// Output paths are reduced to file names so a report does not depend on
// where the run wrote its images. Two runs over the same records with the
// same link policy and failures produce byte-identical reports.
func (s *Summary) Report() ([]byte, error) {
	digests := make(ir.IRArray, 0, len(s.Reports))
	for _, rep := range s.Reports {
		digests = append(digests, reportEntry(rep))
	}
	return ir.MarshalCanonical(ir.IRObject{"digests": digests})
}

func reportEntry(rep materialize.DigestReport) ir.IRObject {
	outcome := OutcomeMaterialized
	if rep.Discarded {
		outcome = OutcomeDiscarded
	}
	outputs := make(ir.IRArray, 0, len(rep.Outputs))
	for _, o := range rep.Outputs {
		outputs = append(outputs, ir.IRObject{
			"mode": ir.IRString(o.Mode),
			"name": ir.IRString(filepath.Base(o.Path)),
		})
	}
	return ir.IRObject{
		"digest":  ir.IRString(rep.Digest),
		"kind":    ir.IRString(rep.Kind),
		"outcome": ir.IRString(outcome),
		"outputs": outputs,
		"skipped": ir.IRInt(rep.Skipped),
	}
}
