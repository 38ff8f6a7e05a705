package canon

import (
	"fmt"
	"math"

	"github.com/roach88/chartgen/internal/ir"
)

// Breakdown thresholds in ir.ShareScale units.
const (
	// SignificanceFloor is 0.5%: smaller entries are folded into "others".
	SignificanceFloor int64 = ir.ShareScale / 2
	// Cutoff is 99%: once the processed mass reaches it, the rest is "others".
	Cutoff int64 = 99 * ir.ShareScale
	// Whole is 100%.
	Whole int64 = 100 * ir.ShareScale
)

// OthersLabel labels the slice that absorbs insignificant entries.
const OthersLabel = "others"

// Slice is one pie-chart slice in fixed-point units.
type Slice struct {
	Label string
	Share int64
}

// Breakdown reduces a ranked category list (sorted descending) to slices.
//
// Entries below SignificanceFloor accumulate into an "others" mass. As soon
// as the processed total reaches Cutoff, a final "others" slice is emitted
// with the accumulated mass plus whatever is needed to reach exactly Whole,
// and the walk stops. If the cutoff is never reached, accumulated
// insignificant entries are dropped.
func Breakdown(shares []ir.Share) ([]Slice, error) {
	var (
		out    []Slice
		total  int64
		others int64
	)
	for i, s := range shares {
		v, err := toFixed(s.Percent)
		if err != nil {
			return nil, fmt.Errorf("share[%d] %q: %w", i, s.Label, err)
		}
		if v < SignificanceFloor {
			total += v
			others += v
			if total <= Cutoff {
				continue
			}
		}
		if total >= Cutoff {
			out = append(out, Slice{Label: OthersLabel, Share: others + Whole - total})
			break
		}
		out = append(out, Slice{Label: s.Label, Share: v})
		total += v
	}
	return out, nil
}

// Shares canonicalizes a category breakdown. ok is false when no slice
// survives the reduction. Surviving labels must be valid UTF-8 in NFC.
func Shares(shares []ir.Share) (payload []byte, ok bool, err error) {
	slices, err := Breakdown(shares)
	if err != nil {
		return nil, false, err
	}
	if len(slices) == 0 {
		return nil, false, nil
	}

	arr := make(ir.IRArray, len(slices))
	for i, s := range slices {
		if err := ir.ValidateString(s.Label); err != nil {
			return nil, false, fmt.Errorf("share label: %w", err)
		}
		arr[i] = ir.IRObject{
			"label": ir.IRString(s.Label),
			"share": ir.IRInt(s.Share),
		}
	}
	payload, err = ir.MarshalCanonical(ir.IRObject{
		"scale":  ir.IRInt(ir.ShareScale),
		"slices": arr,
	})
	if err != nil {
		return nil, false, fmt.Errorf("canonicalize shares: %w", err)
	}
	return payload, true, nil
}

// toFixed converts a percentage to ir.ShareScale units.
func toFixed(percent float64) (int64, error) {
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return 0, fmt.Errorf("percent is not finite")
	}
	if percent < 0 || percent > 100 {
		return 0, fmt.Errorf("percent %v out of range [0, 100]", percent)
	}
	return int64(math.Round(percent * ir.ShareScale)), nil
}
