package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ppiankov/odcfit/internal/curve"
	"github.com/ppiankov/odcfit/internal/model"
)

// Evaluation is a dense display curve plus the error metric
type Evaluation struct {
	Curve []model.Point
	MSE   float64
}

// Evaluator turns fitted parameters into a curve and an error metric
type Evaluator struct {
	cfg       model.CurveConfig
	estimator *Estimator // refits folds in leave-one-out mode
}

// NewEvaluator creates a new evaluator
func NewEvaluator(cfg model.CurveConfig, estimator *Estimator) *Evaluator {
	return &Evaluator{
		cfg:       cfg,
		estimator: estimator,
	}
}

// Evaluate samples the fitted curve over the data range widened by the
// configured margin and computes the MSE for mode. Inputs are not modified.
func (v *Evaluator) Evaluate(kind model.ModelKind, params model.Params, xs, ys []float64, mode model.EvalMode) (Evaluation, error) {
	m, err := curve.ForKind(kind)
	if err != nil {
		return Evaluation{}, err
	}
	if len(params) != curve.Arity(m) {
		return Evaluation{}, fmt.Errorf("%s takes %d parameters, got %d: %w",
			kind, curve.Arity(m), len(params), model.ErrInvalidParameterCount)
	}
	if err := CheckSamples(kind, xs, ys); err != nil {
		return Evaluation{}, err
	}

	points, err := v.curve(m, params, xs)
	if err != nil {
		return Evaluation{}, err
	}

	var mse float64
	switch mode {
	case model.EvalInSample, "":
		mse, err = inSampleMSE(m, params, xs, ys)
	case model.EvalLeaveOneOut:
		mse, err = v.leaveOneOutMSE(m, xs, ys)
	default:
		return Evaluation{}, fmt.Errorf("unknown evaluation mode: %q", mode)
	}
	if err != nil {
		return Evaluation{}, err
	}
	if !isFinite(mse) {
		return Evaluation{}, fmt.Errorf("mse is %v: %w", mse, model.ErrFitDidNotConverge)
	}

	return Evaluation{Curve: points, MSE: mse}, nil
}

// curve evaluates m on an evenly spaced grid. Hill is undefined for
// negative x, so its grid starts at 0 at the earliest.
func (v *Evaluator) curve(m curve.Model, params model.Params, xs []float64) ([]model.Point, error) {
	resolution := v.cfg.Resolution
	if resolution < 2 {
		resolution = 2
	}
	lo := floats.Min(xs) - v.cfg.Margin
	hi := floats.Max(xs) + v.cfg.Margin
	if m.Kind() == model.ModelHill {
		lo = math.Max(lo, 0)
	}

	grid := floats.Span(make([]float64, resolution), lo, hi)
	ys, err := curve.EvalAll(m, grid, params)
	if err != nil {
		return nil, err
	}

	points := make([]model.Point, resolution)
	for i := range grid {
		if !isFinite(ys[i]) {
			return nil, fmt.Errorf("curve is %v at x=%g: %w", ys[i], grid[i], model.ErrFitDidNotConverge)
		}
		points[i] = model.Point{X: grid[i], Y: ys[i]}
	}
	return points, nil
}

func inSampleMSE(m curve.Model, params model.Params, xs, ys []float64) (float64, error) {
	pred, err := curve.EvalAll(m, xs, params)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range ys {
		d := ys[i] - pred[i]
		sum += d * d
	}
	return sum / float64(len(ys)), nil
}

// leaveOneOutMSE refits without each sample in turn and scores the
// prediction of the held-out sample. Every fold needs at least as many
// samples as the model has parameters.
func (v *Evaluator) leaveOneOutMSE(m curve.Model, xs, ys []float64) (float64, error) {
	if v.estimator == nil {
		return 0, fmt.Errorf("leave-one-out evaluation needs an estimator")
	}
	n := len(xs)
	need := curve.Arity(m)
	if need < MinDistinctX {
		need = MinDistinctX
	}
	if n-1 < need {
		return 0, fmt.Errorf("leave-one-out folds would hold %d samples, %s needs %d: %w",
			n-1, m.Kind(), need, model.ErrInsufficientSamples)
	}

	foldX := make([]float64, 0, n-1)
	foldY := make([]float64, 0, n-1)
	sum := 0.0
	for i := 0; i < n; i++ {
		foldX = append(append(foldX[:0], xs[:i]...), xs[i+1:]...)
		foldY = append(append(foldY[:0], ys[:i]...), ys[i+1:]...)

		params, err := v.estimator.Estimate(m.Kind(), foldX, foldY)
		if err != nil {
			return 0, fmt.Errorf("leave-one-out fold %d: %w", i+1, err)
		}
		pred, err := m.Eval(xs[i], params)
		if err != nil {
			return 0, err
		}
		d := ys[i] - pred
		sum += d * d
	}
	return sum / float64(n), nil
}
