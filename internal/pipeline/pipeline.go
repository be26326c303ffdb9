// Package pipeline orchestrates a single fit: partition, estimate,
// evaluate, bundle.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ppiankov/odcfit/internal/cache"
	"github.com/ppiankov/odcfit/internal/curve"
	"github.com/ppiankov/odcfit/internal/fit"
	"github.com/ppiankov/odcfit/internal/model"
	"github.com/ppiankov/odcfit/internal/selection"
)

// Pipeline orchestrates the complete fit process. It holds no per-fit
// state and is safe for concurrent use.
type Pipeline struct {
	estimator *fit.Estimator
	evaluator *fit.Evaluator
	cache     cache.Cache // Optional result cache (nil if disabled)
	config    *model.Config
}

// NewPipeline creates a new pipeline with the given configuration
func NewPipeline(cfg *model.Config) *Pipeline {
	var c cache.Cache
	if cfg.Cache.Enabled {
		c = cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.DiskDir, cfg.Cache.DiskTTL)
	}
	return NewPipelineWithCache(cfg, c)
}

// NewPipelineWithCache creates a pipeline that uses c for results; c may
// be nil.
func NewPipelineWithCache(cfg *model.Config, c cache.Cache) *Pipeline {
	estimator := fit.NewEstimator(cfg.Fit)
	return &Pipeline{
		estimator: estimator,
		evaluator: fit.NewEvaluator(cfg.Fit.Curve, estimator),
		cache:     c,
		config:    cfg,
	}
}

// Request describes one fit
type Request struct {
	PatientID    int
	Measurements []model.Measurement
	Model        model.ModelKind
	EvalMode     model.EvalMode
}

// Fit runs partition, estimation and evaluation once. A failure is
// returned as *model.FitError naming the stage; no retry is attempted,
// since the same inputs would fail the same way.
func (p *Pipeline) Fit(req Request) (*model.FitResult, error) {
	stage := model.StageIdle
	fail := func(err error) (*model.FitResult, error) {
		return nil, &model.FitError{PatientID: req.PatientID, Model: req.Model, Stage: stage, Err: err}
	}

	m, err := curve.ForKind(req.Model)
	if err != nil {
		return fail(err)
	}
	mode := req.EvalMode
	if mode == "" {
		mode = model.EvalInSample
	}

	// Idle -> Partitioned
	included, excluded := selection.Partition(req.Measurements, selection.Options{
		SkipAnchors: p.config.Fit.SkipAnchors,
	})
	if len(included) == 0 {
		return fail(model.ErrNoSamplesSelected)
	}
	stage = model.StagePartitioned
	xs, ys := selection.Samples(included)

	key := p.cacheKey(req.Model, mode, xs, ys)
	if cached, ok := p.lookup(key); ok {
		cached.PatientID = req.PatientID
		cached.Included = included
		cached.Excluded = excluded
		return cached, nil
	}

	// Partitioned -> Estimating
	stage = model.StageEstimating
	params, err := p.estimator.Estimate(req.Model, xs, ys)
	if err != nil {
		return fail(err)
	}

	// Estimating -> Evaluating
	stage = model.StageEvaluating
	eval, err := p.evaluator.Evaluate(req.Model, params, xs, ys, mode)
	if err != nil {
		return fail(err)
	}

	// Evaluating -> Done
	result := &model.FitResult{
		PatientID:   req.PatientID,
		Model:       req.Model,
		EvalMode:    mode,
		ParamNames:  m.ParamNames(),
		Params:      params,
		Curve:       eval.Curve,
		MSE:         eval.MSE,
		SampleCount: len(included),
		Included:    included,
		Excluded:    excluded,
	}
	p.store(key, result)
	return result, nil
}

// FitPatient fits one patient's measurements with the configured anchors
// added for the session.
func (p *Pipeline) FitPatient(ctx context.Context, patient *model.Patient, kind model.ModelKind, mode model.EvalMode) (*model.FitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("patient %d: %w", patient.ID, err)
	}
	return p.Fit(Request{
		PatientID:    patient.ID,
		Measurements: selection.WithAnchors(patient.Measurements),
		Model:        kind,
		EvalMode:     mode,
	})
}

func (p *Pipeline) cacheKey(kind model.ModelKind, mode model.EvalMode, xs, ys []float64) string {
	f := p.config.Fit
	b := cache.NewKeyBuilder("fit").
		String(string(kind)).
		String(string(mode)).
		Floats(xs...).
		Floats(ys...)
	switch kind {
	case model.ModelSigmoid:
		b.Floats(f.Sigmoid.Bounds.Lower...).Floats(f.Sigmoid.Bounds.Upper...).Floats(f.Sigmoid.InitialSteepness)
		if f.Sigmoid.AlternativeSeed {
			b.String("alt")
		}
	case model.ModelHill:
		b.Floats(f.Hill.Bounds.Lower...).Floats(f.Hill.Bounds.Upper...).Floats(f.Hill.Seed...)
	}
	b.Floats(float64(f.Solver.MaxIterations), float64(f.Solver.MaxEvaluations), f.Solver.FTol, f.Solver.XTol, f.Solver.GTol, f.Solver.ATol, f.Solver.StallMSE)
	b.Floats(f.Curve.Margin, float64(f.Curve.Resolution))
	return b.Key()
}

func (p *Pipeline) lookup(key string) (*model.FitResult, bool) {
	if p.cache == nil {
		return nil, false
	}
	data, ok := p.cache.Get(key)
	if !ok {
		return nil, false
	}
	var result model.FitResult
	if err := json.Unmarshal(data, &result); err != nil {
		slog.Warn("discarding unreadable cached fit", "key", key, "error", err)
		_ = p.cache.Delete(key)
		return nil, false
	}
	result.Cached = true
	return &result, true
}

func (p *Pipeline) store(key string, result *model.FitResult) {
	if p.cache == nil {
		return
	}
	// Partitions depend on the session, not on the fit inputs
	entry := *result
	entry.Included, entry.Excluded = nil, nil
	data, err := json.Marshal(&entry)
	if err != nil {
		slog.Warn("cannot encode fit for cache", "error", err)
		return
	}
	if err := p.cache.Set(key, data, 0); err != nil {
		slog.Warn("cannot cache fit", "key", key, "error", err)
	}
}
