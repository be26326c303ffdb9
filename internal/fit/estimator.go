// Package fit estimates curve parameters from noisy samples and evaluates
// the resulting fit.
package fit

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ppiankov/odcfit/internal/curve"
	"github.com/ppiankov/odcfit/internal/model"
)

// MinDistinctX is the smallest number of distinct x-values any model can
// be fitted to.
const MinDistinctX = 2

// Estimator fits model parameters with bounded least squares
type Estimator struct {
	cfg model.FitConfig
}

// NewEstimator creates a new estimator
func NewEstimator(cfg model.FitConfig) *Estimator {
	return &Estimator{cfg: cfg}
}

// Estimate fits kind to the samples. It is deterministic: identical
// inputs and configuration always give identical parameters.
func (e *Estimator) Estimate(kind model.ModelKind, xs, ys []float64) (model.Params, error) {
	m, err := curve.ForKind(kind)
	if err != nil {
		return nil, err
	}
	if err := CheckSamples(kind, xs, ys); err != nil {
		return nil, err
	}

	bounds, seeds, err := e.setup(kind, xs, ys)
	if err != nil {
		return nil, err
	}

	prob := problem{
		size:      len(xs),
		residuals: residualsFor(m, xs, ys),
		lower:     bounds.Lower,
		upper:     bounds.Upper,
	}

	var best *solution
	var lastErr error
	for i, seed := range seeds {
		sol, err := solve(prob, seed, e.cfg.Solver)
		if err != nil {
			slog.Debug("seed did not converge", "model", kind, "seed", i, "error", err)
			lastErr = err
			continue
		}
		slog.Debug("seed converged", "model", kind, "seed", i,
			"cost", sol.cost, "iterations", sol.iterations, "reason", sol.reason)
		if best == nil || sol.cost < best.cost {
			s := sol
			best = &s
		}
	}
	if best == nil {
		return nil, lastErr
	}
	return model.Params(best.params), nil
}

// setup returns the box and the ordered initial guesses for kind
func (e *Estimator) setup(kind model.ModelKind, xs, ys []float64) (model.Bounds, [][]float64, error) {
	switch kind {
	case model.ModelSigmoid:
		b := e.cfg.Sigmoid.Bounds
		if err := b.Validate(4); err != nil {
			return b, nil, fmt.Errorf("sigmoid bounds: %w", err)
		}
		seeds := [][]float64{sigmoidSeed(xs, ys, e.cfg.Sigmoid.InitialSteepness)}
		if e.cfg.Sigmoid.AlternativeSeed {
			yMin := floats.Min(ys)
			base := b.Lower[3]
			if math.IsInf(base, 0) {
				base = yMin
			}
			seeds = append(seeds, sigmoidCrossingSeed(xs, ys, base))
			if base != yMin {
				seeds = append(seeds, sigmoidCrossingSeed(xs, ys, yMin))
			}
		}
		return b, seeds, nil

	case model.ModelHill:
		b := e.cfg.Hill.Bounds
		if err := b.Validate(3); err != nil {
			return b, nil, fmt.Errorf("hill bounds: %w", err)
		}
		if len(e.cfg.Hill.Seed) != 3 {
			return b, nil, fmt.Errorf("hill seed has %d values: %w", len(e.cfg.Hill.Seed), model.ErrInvalidParameterCount)
		}
		seed := make([]float64, 3)
		copy(seed, e.cfg.Hill.Seed)
		return b, [][]float64{seed}, nil

	default:
		return model.Bounds{}, nil, fmt.Errorf("unknown model: %q", kind)
	}
}

// sigmoidSeed seeds (L, x0, k, b) from sample statistics
func sigmoidSeed(xs, ys []float64, steepness float64) []float64 {
	yMin, yMax := floats.Min(ys), floats.Max(ys)
	return []float64{yMax - yMin, stat.Mean(xs, nil), steepness, yMin}
}

// sigmoidCrossingSeed puts the baseline at base and the midpoint where the
// samples cross half height, extrapolating a quarter of the x-span past the
// data when they never cross.
func sigmoidCrossingSeed(xs, ys []float64, base float64) []float64 {
	height := floats.Max(ys) - base
	half := base + height/2

	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, c int) bool { return xs[idx[a]] < xs[idx[c]] })

	xMin, xMax := xs[idx[0]], xs[idx[len(idx)-1]]
	span := xMax - xMin

	x0 := xMax + span/4
	if ys[idx[0]] >= half {
		x0 = xMin - span/4
	} else {
		for k := 1; k < len(idx); k++ {
			x1, y1 := xs[idx[k-1]], ys[idx[k-1]]
			x2, y2 := xs[idx[k]], ys[idx[k]]
			if y2 >= half {
				x0 = x2
				if y2 != y1 {
					x0 = x1 + (half-y1)*(x2-x1)/(y2-y1)
				}
				break
			}
		}
	}
	return []float64{height, x0, 4 / span, base}
}

func residualsFor(m curve.Model, xs, ys []float64) func(dst, p []float64) {
	return func(dst, p []float64) {
		for i, x := range xs {
			// arity is fixed by setup
			v, _ := m.Eval(x, p)
			dst[i] = v - ys[i]
		}
	}
}

// CheckSamples rejects sample sets no model can be fitted to. Fewer than
// two distinct x-values is InsufficientSamples; a constant target is
// DegenerateInput.
func CheckSamples(kind model.ModelKind, xs, ys []float64) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("%d x-values but %d y-values: %w", len(xs), len(ys), model.ErrDegenerateInput)
	}
	if len(xs) < MinDistinctX {
		return fmt.Errorf("%d samples, need at least %d: %w", len(xs), MinDistinctX, model.ErrInsufficientSamples)
	}
	for i := range xs {
		if !isFinite(xs[i]) || !isFinite(ys[i]) {
			return fmt.Errorf("sample %d is not finite: %w", i+1, model.ErrDegenerateInput)
		}
		if kind == model.ModelHill && xs[i] < 0 {
			return fmt.Errorf("sample %d has negative x %g, Hill needs x >= 0: %w", i+1, xs[i], model.ErrDegenerateInput)
		}
	}
	if n := distinct(xs); n < MinDistinctX {
		return fmt.Errorf("%d distinct x-values, need at least %d: %w", n, MinDistinctX, model.ErrInsufficientSamples)
	}
	if floats.Min(ys) == floats.Max(ys) {
		return fmt.Errorf("all y-values equal %g: %w", ys[0], model.ErrDegenerateInput)
	}
	return nil
}

func distinct(xs []float64) int {
	seen := make(map[float64]struct{}, len(xs))
	for _, x := range xs {
		seen[x] = struct{}{}
	}
	return len(seen)
}
