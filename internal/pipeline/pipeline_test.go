package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ppiankov/odcfit/internal/cache"
	"github.com/ppiankov/odcfit/internal/model"
	"github.com/ppiankov/odcfit/internal/selection"
)

func scenario(t *testing.T) []model.Measurement {
	t.Helper()
	samples := [][2]float64{{10, 70}, {15, 85}, {20, 92}, {30, 97}, {40, 98}}
	ms := make([]model.Measurement, 0, len(samples))
	for i, s := range samples {
		m, err := model.NewMeasurement(s[0], s[1], true)
		require.NoError(t, err)
		m.Row = i + 1
		ms = append(ms, m)
	}
	return selection.Sequence(ms)
}

func newTestPipeline(c cache.Cache) *Pipeline {
	cfg := model.DefaultConfig()
	cfg.Cache.Enabled = false
	return NewPipelineWithCache(cfg, c)
}

func TestFit_Scenario(t *testing.T) {
	p := newTestPipeline(nil)
	ms := scenario(t)

	result, err := p.Fit(Request{PatientID: 1, Measurements: ms, Model: model.ModelSigmoid})
	require.NoError(t, err)

	require.Equal(t, 1, result.PatientID)
	require.Equal(t, model.ModelSigmoid, result.Model)
	require.Equal(t, model.EvalInSample, result.EvalMode, "in-sample is the default")
	require.Equal(t, []string{"L", "x0", "k", "b"}, result.ParamNames)
	require.Len(t, result.Params, 4)
	require.Less(t, result.MSE, 5.0)
	require.Equal(t, 5, result.SampleCount)
	require.Len(t, result.Included, 5)
	require.Empty(t, result.Excluded)
	require.GreaterOrEqual(t, len(result.Curve), 100)
	require.False(t, result.Cached)
}

func TestFit_ExcludedPointsReported(t *testing.T) {
	p := newTestPipeline(nil)
	ms, err := selection.Toggle(scenario(t), 2, false)
	require.NoError(t, err)

	result, err := p.Fit(Request{PatientID: 1, Measurements: ms, Model: model.ModelHill})
	require.NoError(t, err)
	require.Equal(t, 4, result.SampleCount)
	require.Len(t, result.Excluded, 1)
	require.Equal(t, 15.0, result.Excluded[0].InspiredO2)
}

func TestFit_NoSamplesSelected(t *testing.T) {
	ms := scenario(t)
	for i := range ms {
		ms[i].Included = false
	}

	_, err := newTestPipeline(nil).Fit(Request{PatientID: 8, Measurements: ms, Model: model.ModelHill})
	require.ErrorIs(t, err, model.ErrNoSamplesSelected)

	var fitErr *model.FitError
	require.True(t, errors.As(err, &fitErr))
	require.Equal(t, 8, fitErr.PatientID)
	require.Equal(t, model.StageIdle, fitErr.Stage)
}

func TestFit_SinglePoint(t *testing.T) {
	m, err := model.NewMeasurement(20, 90, true)
	require.NoError(t, err)

	for _, kind := range []model.ModelKind{model.ModelSigmoid, model.ModelHill} {
		_, err := newTestPipeline(nil).Fit(Request{PatientID: 2, Measurements: []model.Measurement{m}, Model: kind})
		require.ErrorIs(t, err, model.ErrInsufficientSamples)

		var fitErr *model.FitError
		require.True(t, errors.As(err, &fitErr))
		require.Equal(t, model.StageEstimating, fitErr.Stage)
		require.Equal(t, kind, fitErr.Model)
	}
}

func TestFit_LeaveOneOutTooFew(t *testing.T) {
	ms := scenario(t)[:3]

	_, err := newTestPipeline(nil).Fit(Request{PatientID: 3, Measurements: ms, Model: model.ModelSigmoid, EvalMode: model.EvalLeaveOneOut})
	require.ErrorIs(t, err, model.ErrInsufficientSamples)

	var fitErr *model.FitError
	require.True(t, errors.As(err, &fitErr))
	require.Equal(t, model.StageEvaluating, fitErr.Stage)
}

func TestFit_UnknownModel(t *testing.T) {
	_, err := newTestPipeline(nil).Fit(Request{PatientID: 1, Measurements: scenario(t), Model: "quadratic"})
	require.Error(t, err)

	var fitErr *model.FitError
	require.True(t, errors.As(err, &fitErr))
	require.Equal(t, model.StageIdle, fitErr.Stage)
}

func TestFit_AnchorsOnlyWhenSelected(t *testing.T) {
	p := newTestPipeline(nil)
	ms := selection.WithAnchors(scenario(t))

	plain, err := p.Fit(Request{PatientID: 1, Measurements: ms, Model: model.ModelHill})
	require.NoError(t, err)
	require.Equal(t, 5, plain.SampleCount)
	require.Len(t, plain.Excluded, 2)

	// Switch the P50 anchor on
	p50, err := selection.AnchorSequence(5, 2)
	require.NoError(t, err)
	ms, err = selection.Toggle(ms, p50, true)
	require.NoError(t, err)
	anchored, err := p.Fit(Request{PatientID: 1, Measurements: ms, Model: model.ModelHill})
	require.NoError(t, err)
	require.Equal(t, 6, anchored.SampleCount)
	require.NotEqual(t, plain.Params, anchored.Params)

	// SkipAnchors keeps it out of the fit entirely
	cfg := model.DefaultConfig()
	cfg.Fit.SkipAnchors = true
	skipped, err := NewPipelineWithCache(cfg, nil).Fit(Request{PatientID: 1, Measurements: ms, Model: model.ModelHill})
	require.NoError(t, err)
	require.Equal(t, plain.Params, skipped.Params)
	require.Empty(t, skipped.Excluded)
}

func TestFit_CacheHit(t *testing.T) {
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	p := newTestPipeline(c)
	ms := scenario(t)

	first, err := p.Fit(Request{PatientID: 1, Measurements: ms, Model: model.ModelHill})
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Equal(t, 1, c.Len())

	// Same samples under another patient reuse the fit
	second, err := p.Fit(Request{PatientID: 2, Measurements: ms, Model: model.ModelHill})
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, 2, second.PatientID)
	require.Equal(t, first.Params, second.Params)
	require.Equal(t, first.MSE, second.MSE)
	require.Equal(t, first.Included, second.Included)

	// Another evaluation mode is another key
	third, err := p.Fit(Request{PatientID: 1, Measurements: ms, Model: model.ModelHill, EvalMode: model.EvalLeaveOneOut})
	require.NoError(t, err)
	require.False(t, third.Cached)
	require.Equal(t, 2, c.Len())
}

func TestFit_FailuresNotCached(t *testing.T) {
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	p := newTestPipeline(c)

	ms := scenario(t)[:1]
	_, err := p.Fit(Request{PatientID: 1, Measurements: ms, Model: model.ModelHill})
	require.Error(t, err)
	require.Equal(t, 0, c.Len())
}

func TestFit_DoesNotModifyInput(t *testing.T) {
	ms := selection.WithAnchors(scenario(t))
	before := append([]model.Measurement(nil), ms...)

	_, err := newTestPipeline(nil).Fit(Request{PatientID: 1, Measurements: ms, Model: model.ModelSigmoid})
	require.NoError(t, err)
	require.Equal(t, before, ms)
}

func TestFitPatient(t *testing.T) {
	p := newTestPipeline(nil)
	patient := &model.Patient{ID: 5, Measurements: scenario(t)}

	result, err := p.FitPatient(context.Background(), patient, model.ModelHill, model.EvalInSample)
	require.NoError(t, err)
	require.Equal(t, 5, result.PatientID)
	require.Equal(t, 5, result.SampleCount)
	// Anchors are present for the session but excluded
	require.Len(t, result.Excluded, 2)
	require.Len(t, patient.Measurements, 5, "patient must not change")

	// Real measurements keep their stored numbers, anchors follow
	for i, m := range result.Included {
		require.Equal(t, patient.Measurements[i].Sequence, m.Sequence)
	}
	require.Equal(t, []int{6, 7}, []int{result.Excluded[0].Sequence, result.Excluded[1].Sequence})
	require.True(t, result.Excluded[0].Synthetic)
}

func TestFit_Repeatable(t *testing.T) {
	for _, kind := range []model.ModelKind{model.ModelSigmoid, model.ModelHill} {
		t.Run(string(kind), func(t *testing.T) {
			p := newTestPipeline(nil)
			ms := selection.WithAnchors(scenario(t))

			first, err := p.Fit(Request{PatientID: 1, Measurements: ms, Model: kind})
			require.NoError(t, err)
			second, err := p.Fit(Request{PatientID: 1, Measurements: ms, Model: kind})
			require.NoError(t, err)

			require.False(t, second.Cached)
			require.Equal(t, first.Params, second.Params)
			require.Equal(t, first.MSE, second.MSE)
			require.Equal(t, first.Curve, second.Curve)
		})
	}
}

func TestFitPatient_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPipeline(nil).FitPatient(ctx, &model.Patient{ID: 1, Measurements: scenario(t)}, model.ModelHill, model.EvalInSample)
	require.ErrorIs(t, err, context.Canceled)
}
