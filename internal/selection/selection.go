// Package selection manages which measurements take part in a fit.
//
// Every function returns new slices; caller-owned measurements are never
// modified. Synthetic anchors may be switched on for exploratory fits, but
// they never appear in the flags that are persisted.
package selection

import (
	"fmt"
	"sort"

	"github.com/ppiankov/odcfit/internal/model"
)

// Options controls partitioning
type Options struct {
	// SkipAnchors drops synthetic anchors from both partitions, even when
	// they were switched on.
	SkipAnchors bool
}

// Partition splits measurements into the included set used for fitting
// and the excluded set shown for reference. Both keep the input order.
func Partition(ms []model.Measurement, opts Options) (included, excluded []model.Measurement) {
	included = make([]model.Measurement, 0, len(ms))
	excluded = make([]model.Measurement, 0, len(ms))
	for _, m := range ms {
		if m.Synthetic && opts.SkipAnchors {
			continue
		}
		if m.Included {
			included = append(included, m)
		} else {
			excluded = append(excluded, m)
		}
	}
	return included, excluded
}

// Samples returns the x (inspired O2) and y (SpO2) columns of ms
func Samples(ms []model.Measurement) (xs, ys []float64) {
	xs = make([]float64, len(ms))
	ys = make([]float64, len(ms))
	for i, m := range ms {
		xs[i] = m.InspiredO2
		ys[i] = m.SpO2
	}
	return xs, ys
}

// Sequence returns a copy of ms stably sorted by inspired O2 with sequence
// numbers 1..n assigned in that order.
func Sequence(ms []model.Measurement) []model.Measurement {
	out := make([]model.Measurement, len(ms))
	copy(out, ms)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].InspiredO2 < out[j].InspiredO2
	})
	for i := range out {
		out[i].Sequence = i + 1
	}
	return out
}

// WithAnchors returns the real measurements of ms numbered 1..n, as in the
// store, followed by the origin anchor (n+1) and the P50 anchor (n+2). Any
// anchors already present are replaced, so the call is idempotent.
func WithAnchors(ms []model.Measurement) []model.Measurement {
	out := WithoutAnchors(ms)
	n := len(out)
	for i, a := range model.Anchors() {
		a.Sequence = n + i + 1
		out = append(out, a)
	}
	return out
}

// AnchorSequence returns the sequence number WithAnchors gives anchor idx
// (1 for the origin, 2 for P50) next to n real measurements.
func AnchorSequence(n, idx int) (int, error) {
	if idx < 1 || idx > len(model.Anchors()) {
		return 0, fmt.Errorf("unknown anchor %d (use 1 for origin, 2 for P50)", idx)
	}
	return n + idx, nil
}

// WithoutAnchors returns the real measurements of ms, re-sequenced
func WithoutAnchors(ms []model.Measurement) []model.Measurement {
	out := make([]model.Measurement, 0, len(ms)+2)
	for _, m := range ms {
		if !m.Synthetic {
			out = append(out, m)
		}
	}
	return Sequence(out)
}

// Toggle returns a copy of ms with the measurement at sequence number seq
// set to included.
func Toggle(ms []model.Measurement, seq int, included bool) ([]model.Measurement, error) {
	out := make([]model.Measurement, len(ms))
	copy(out, ms)
	for i := range out {
		if out[i].Sequence == seq {
			out[i].Included = included
			return out, nil
		}
	}
	return nil, fmt.Errorf("no measurement with sequence number %d", seq)
}

// PersistableFlags returns the inclusion flag of every real measurement,
// keyed by store row. Anchors are left out.
func PersistableFlags(ms []model.Measurement) map[int]bool {
	flags := make(map[int]bool, len(ms))
	for _, m := range ms {
		if m.Synthetic {
			continue
		}
		flags[m.Row] = m.Included
	}
	return flags
}

// Update builds the write-back for a patient from its session state
func Update(p *model.Patient, ms []model.Measurement) model.PatientUpdate {
	return model.PatientUpdate{
		PatientID:   p.ID,
		Included:    PersistableFlags(ms),
		Ideal:       p.Ideal,
		Processed:   p.Processed,
		Problematic: p.Problematic,
	}
}
