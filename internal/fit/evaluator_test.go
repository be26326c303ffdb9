package fit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ppiankov/odcfit/internal/model"
)

func newEvaluator() *Evaluator {
	cfg := model.DefaultConfig().Fit
	return NewEvaluator(cfg.Curve, NewEstimator(cfg))
}

func TestEvaluate_ScenarioSigmoid(t *testing.T) {
	params, err := newEstimator().Estimate(model.ModelSigmoid, scenarioX, scenarioY)
	require.NoError(t, err)

	eval, err := newEvaluator().Evaluate(model.ModelSigmoid, params, scenarioX, scenarioY, model.EvalInSample)
	require.NoError(t, err)
	require.Less(t, eval.MSE, 5.0)
	require.GreaterOrEqual(t, eval.MSE, 0.0)

	// Curve spans the data widened by the margin
	require.Len(t, eval.Curve, 200)
	require.InDelta(t, 9.0, eval.Curve[0].X, 1e-9)
	require.InDelta(t, 41.0, eval.Curve[len(eval.Curve)-1].X, 1e-9)

	// and rises through the samples
	for i := 1; i < len(eval.Curve); i++ {
		require.Greater(t, eval.Curve[i].X, eval.Curve[i-1].X)
		require.GreaterOrEqual(t, eval.Curve[i].Y, eval.Curve[i-1].Y)
	}
}

func TestEvaluate_ScenarioHill(t *testing.T) {
	params, err := newEstimator().Estimate(model.ModelHill, scenarioX, scenarioY)
	require.NoError(t, err)

	eval, err := newEvaluator().Evaluate(model.ModelHill, params, scenarioX, scenarioY, model.EvalInSample)
	require.NoError(t, err)
	require.Less(t, eval.MSE, 5.0)
}

func TestEvaluate_HillCurveStartsAtZero(t *testing.T) {
	xs := []float64{0.5, 10, 20}
	ys := []float64{1, 60, 90}
	eval, err := newEvaluator().Evaluate(model.ModelHill, model.Params{95, 10, 2}, xs, ys, model.EvalInSample)
	require.NoError(t, err)
	require.Equal(t, 0.0, eval.Curve[0].X)
}

func TestEvaluate_InSampleExact(t *testing.T) {
	params := model.Params{100, 10, 1}
	xs := []float64{10, 30}
	ys := []float64{50, 75}

	eval, err := newEvaluator().Evaluate(model.ModelHill, params, xs, ys, model.EvalInSample)
	require.NoError(t, err)
	require.InDelta(t, 0.0, eval.MSE, 1e-12)

	// One residual of 2 over two samples
	eval, err = newEvaluator().Evaluate(model.ModelHill, params, xs, []float64{52, 75}, model.EvalInSample)
	require.NoError(t, err)
	require.InDelta(t, 2.0, eval.MSE, 1e-12)
}

func TestEvaluate_LeaveOneOut(t *testing.T) {
	for _, kind := range []model.ModelKind{model.ModelSigmoid, model.ModelHill} {
		params, err := newEstimator().Estimate(kind, scenarioX, scenarioY)
		require.NoError(t, err)

		in, err := newEvaluator().Evaluate(kind, params, scenarioX, scenarioY, model.EvalInSample)
		require.NoError(t, err)
		loo, err := newEvaluator().Evaluate(kind, params, scenarioX, scenarioY, model.EvalLeaveOneOut)
		require.NoError(t, err, kind)

		require.Greater(t, loo.MSE, in.MSE, kind)
		require.Less(t, loo.MSE, 10.0, kind)
	}
}

func TestEvaluate_LeaveOneOutTooFewSamples(t *testing.T) {
	xs := []float64{10, 20, 30}
	ys := []float64{70, 90, 97}

	_, err := newEvaluator().Evaluate(model.ModelSigmoid, model.Params{98, 5, 0.2, 0}, xs, ys, model.EvalLeaveOneOut)
	require.ErrorIs(t, err, model.ErrInsufficientSamples)

	_, err = newEvaluator().Evaluate(model.ModelHill, model.Params{98, 10, 2}, xs[:2], ys[:2], model.EvalLeaveOneOut)
	require.ErrorIs(t, err, model.ErrInsufficientSamples)
}

func TestEvaluate_WrongArity(t *testing.T) {
	_, err := newEvaluator().Evaluate(model.ModelHill, model.Params{98, 10}, scenarioX, scenarioY, model.EvalInSample)
	require.ErrorIs(t, err, model.ErrInvalidParameterCount)

	_, err = newEvaluator().Evaluate(model.ModelSigmoid, model.Params{98, 10, 1}, scenarioX, scenarioY, model.EvalInSample)
	require.ErrorIs(t, err, model.ErrInvalidParameterCount)
}

func TestEvaluate_Degenerate(t *testing.T) {
	_, err := newEvaluator().Evaluate(model.ModelHill, model.Params{98, 10, 2}, []float64{20}, []float64{90}, model.EvalInSample)
	require.ErrorIs(t, err, model.ErrInsufficientSamples)

	_, err = newEvaluator().Evaluate(model.ModelHill, model.Params{98, 10, 2}, []float64{10, 20}, []float64{90, 90}, model.EvalInSample)
	require.ErrorIs(t, err, model.ErrDegenerateInput)
}

func TestEvaluate_NonFiniteCurve(t *testing.T) {
	_, err := newEvaluator().Evaluate(model.ModelSigmoid, model.Params{math.Inf(1), 10, 1, 0}, scenarioX, scenarioY, model.EvalInSample)
	require.ErrorIs(t, err, model.ErrFitDidNotConverge)
}

func TestEvaluate_UnknownMode(t *testing.T) {
	_, err := newEvaluator().Evaluate(model.ModelHill, model.Params{98, 10, 2}, scenarioX, scenarioY, "k-fold")
	require.Error(t, err)
}
