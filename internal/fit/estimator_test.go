package fit

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ppiankov/odcfit/internal/curve"
	"github.com/ppiankov/odcfit/internal/model"
)

// Typical desaturation series
var (
	scenarioX = []float64{10, 15, 20, 30, 40}
	scenarioY = []float64{70, 85, 92, 97, 98}
)

func newEstimator() *Estimator {
	return NewEstimator(model.DefaultConfig().Fit)
}

func generate(t *testing.T, m curve.Model, xs []float64, params []float64) []float64 {
	t.Helper()
	ys, err := curve.EvalAll(m, xs, params)
	require.NoError(t, err)
	return ys
}

func mse(t *testing.T, m curve.Model, xs, ys []float64, params []float64) float64 {
	t.Helper()
	fitted := generate(t, m, xs, params)
	sum := 0.0
	for i := range ys {
		d := fitted[i] - ys[i]
		sum += d * d
	}
	return sum / float64(len(ys))
}

func TestEstimate_RecoversSigmoid(t *testing.T) {
	xSets := [][]float64{
		{0, 10, 20, 40},
		{5, 12, 18, 26, 35},
		{2, 8, 15, 21, 30, 40},
		{0, 5, 10, 15, 20, 25, 30, 35, 40},
	}

	for _, l := range []float64{20, 45} {
		// Midpoints left of, inside and right of the data
		for _, x0 := range []float64{-3, 12, 30, 45} {
			// Shallow to nearly a step
			for _, k := range []float64{0.05, 0.4, 3} {
				for _, b := range []float64{0, 25} {
					for _, xs := range xSets {
						want := model.Params{l, x0, k, b}
						name := fmt.Sprintf("L=%g/x0=%g/k=%g/b=%g/n=%d", l, x0, k, b, len(xs))
						t.Run(name, func(t *testing.T) {
							ys := generate(t, curve.Sigmoid{}, xs, want)

							got, err := newEstimator().Estimate(model.ModelSigmoid, xs, ys)
							require.NoError(t, err)
							require.Less(t, mse(t, curve.Sigmoid{}, xs, ys, got), 0.5)
						})
					}
				}
			}
		}
	}
}

func TestEstimate_RecoversStepLikeSigmoid(t *testing.T) {
	// Nearly a step between the two middle samples: the fit can only
	// steepen towards it.
	xs := []float64{0.77, 15.75, 31.0, 47.25}
	ys := generate(t, curve.Sigmoid{}, xs, model.Params{41.27, 12.06, 1.24, 31.33})

	got, err := newEstimator().Estimate(model.ModelSigmoid, xs, ys)
	require.NoError(t, err)
	require.Less(t, mse(t, curve.Sigmoid{}, xs, ys, got), 1e-6)
}

func TestEstimate_RecoversSigmoidParams(t *testing.T) {
	xs := []float64{2, 4, 6, 8, 10, 12, 14, 16, 18, 20, 25, 30}
	want := model.Params{90, 12, 0.5, 5}
	ys := generate(t, curve.Sigmoid{}, xs, want)

	got, err := newEstimator().Estimate(model.ModelSigmoid, xs, ys)
	require.NoError(t, err)
	require.Len(t, got, 4)
	require.InDeltaSlice(t, want, got, 1e-3)
}

func TestEstimate_RecoversHill(t *testing.T) {
	xs := []float64{2, 4, 6, 8, 10, 12, 14, 16, 18, 20, 25, 30}
	want := model.Params{97, 10, 2.5}
	ys := generate(t, curve.Hill{}, xs, want)

	got, err := newEstimator().Estimate(model.ModelHill, xs, ys)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.InDeltaSlice(t, want, got, 1e-3)
}

func TestEstimate_RespectsBounds(t *testing.T) {
	cfg := model.DefaultConfig().Fit
	for _, kind := range []model.ModelKind{model.ModelSigmoid, model.ModelHill} {
		params, err := NewEstimator(cfg).Estimate(kind, scenarioX, scenarioY)
		require.NoError(t, err, kind)

		b := cfg.Hill.Bounds
		if kind == model.ModelSigmoid {
			b = cfg.Sigmoid.Bounds
		}
		for i, p := range params {
			require.GreaterOrEqual(t, p, b.Lower[i], "%s param %d", kind, i)
			require.LessOrEqual(t, p, b.Upper[i], "%s param %d", kind, i)
		}
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	e := newEstimator()
	for _, kind := range []model.ModelKind{model.ModelSigmoid, model.ModelHill} {
		first, err := e.Estimate(kind, scenarioX, scenarioY)
		require.NoError(t, err)
		second, err := e.Estimate(kind, scenarioX, scenarioY)
		require.NoError(t, err)
		require.Equal(t, first, second, kind)
	}
}

func TestEstimate_DoesNotModifyInputs(t *testing.T) {
	xs := append([]float64(nil), scenarioX...)
	ys := append([]float64(nil), scenarioY...)

	_, err := newEstimator().Estimate(model.ModelSigmoid, xs, ys)
	require.NoError(t, err)
	require.Equal(t, scenarioX, xs)
	require.Equal(t, scenarioY, ys)
}

func TestEstimate_SinglePoint(t *testing.T) {
	for _, kind := range []model.ModelKind{model.ModelSigmoid, model.ModelHill} {
		_, err := newEstimator().Estimate(kind, []float64{20}, []float64{90})
		require.ErrorIs(t, err, model.ErrInsufficientSamples, kind)
	}
}

func TestEstimate_RepeatedX(t *testing.T) {
	_, err := newEstimator().Estimate(model.ModelHill, []float64{20, 20, 20}, []float64{88, 90, 91})
	require.ErrorIs(t, err, model.ErrInsufficientSamples)
}

func TestEstimate_ConstantY(t *testing.T) {
	for _, kind := range []model.ModelKind{model.ModelSigmoid, model.ModelHill} {
		_, err := newEstimator().Estimate(kind, []float64{10, 20, 30}, []float64{95, 95, 95})
		require.ErrorIs(t, err, model.ErrDegenerateInput, kind)
	}
}

func TestEstimate_NonFinite(t *testing.T) {
	_, err := newEstimator().Estimate(model.ModelSigmoid, []float64{10, math.NaN(), 30}, []float64{80, 90, 95})
	require.ErrorIs(t, err, model.ErrDegenerateInput)
}

func TestEstimate_LengthMismatch(t *testing.T) {
	_, err := newEstimator().Estimate(model.ModelSigmoid, []float64{10, 20, 30}, []float64{80, 90})
	require.ErrorIs(t, err, model.ErrDegenerateInput)
}

func TestEstimate_HillNegativeX(t *testing.T) {
	_, err := newEstimator().Estimate(model.ModelHill, []float64{-5, 10, 20}, []float64{10, 80, 95})
	require.ErrorIs(t, err, model.ErrDegenerateInput)
}

func TestEstimate_UnknownModel(t *testing.T) {
	_, err := newEstimator().Estimate("quadratic", scenarioX, scenarioY)
	require.Error(t, err)
}

func TestEstimate_BadHillSeed(t *testing.T) {
	cfg := model.DefaultConfig().Fit
	cfg.Hill.Seed = []float64{90, 15}

	_, err := NewEstimator(cfg).Estimate(model.ModelHill, scenarioX, scenarioY)
	require.ErrorIs(t, err, model.ErrInvalidParameterCount)
}

func TestEstimate_BudgetExhausted(t *testing.T) {
	cfg := model.DefaultConfig().Fit
	cfg.Solver.MaxIterations = 1
	cfg.Solver.FTol, cfg.Solver.XTol, cfg.Solver.GTol = 0, 0, 0
	cfg.Solver.ATol, cfg.Solver.StallMSE = 0, 0

	_, err := NewEstimator(cfg).Estimate(model.ModelHill, scenarioX, scenarioY)
	require.ErrorIs(t, err, model.ErrFitDidNotConverge)
}

func TestSigmoidCrossingSeed(t *testing.T) {
	xs, ys := []float64{0, 10, 20}, []float64{10, 40, 80}

	// Baseline 0, half height 40 is reached at x = 10
	require.InDeltaSlice(t, []float64{80, 10, 0.2, 0}, sigmoidCrossingSeed(xs, ys, 0), 1e-12)

	// Baseline min(y), half height 45 is crossed between x = 10 and 20
	require.InDeltaSlice(t, []float64{70, 11.25, 0.2, 10}, sigmoidCrossingSeed(xs, ys, 10), 1e-12)

	// Samples entirely above half height put the midpoint left of the data
	seed := sigmoidCrossingSeed([]float64{10, 20}, []float64{90, 98}, 0)
	require.InDelta(t, 7.5, seed[1], 1e-12)
}

func TestSetup_SigmoidSeeds(t *testing.T) {
	e := newEstimator()

	// Floor above the baseline bound adds a crossing seed on min(y)
	_, seeds, err := e.setup(model.ModelSigmoid, []float64{0, 10, 20}, []float64{10, 40, 80})
	require.NoError(t, err)
	require.Len(t, seeds, 3)
	require.Equal(t, 10.0, seeds[2][3])

	_, seeds, err = e.setup(model.ModelSigmoid, []float64{0, 10, 20}, []float64{0, 40, 80})
	require.NoError(t, err)
	require.Len(t, seeds, 2)

	cfg := model.DefaultConfig().Fit
	cfg.Sigmoid.AlternativeSeed = false
	_, seeds, err = NewEstimator(cfg).setup(model.ModelSigmoid, scenarioX, scenarioY)
	require.NoError(t, err)
	require.Len(t, seeds, 1)
}

func TestCheckSamples(t *testing.T) {
	require.NoError(t, CheckSamples(model.ModelHill, scenarioX, scenarioY))
	require.ErrorIs(t, CheckSamples(model.ModelHill, nil, nil), model.ErrInsufficientSamples)
}
