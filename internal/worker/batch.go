package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/odcfit/internal/model"
)

// Fitter defines the interface for fitting one patient
type Fitter interface {
	FitPatient(ctx context.Context, patient *model.Patient, kind model.ModelKind, mode model.EvalMode) (*model.FitResult, error)
}

// FitJob represents a single patient fit
type FitJob struct {
	Patient *model.Patient
	Model   model.ModelKind
	Mode    model.EvalMode
	Fitter  Fitter
}

// Execute executes the fit job
func (j *FitJob) Execute(ctx context.Context) Result {
	result, err := j.Fitter.FitPatient(ctx, j.Patient, j.Model, j.Mode)
	return &FitResult{
		Patient: j.Patient,
		Result:  result,
		Error:   err,
	}
}

// FitResult represents the result of a fit job
type FitResult struct {
	Patient *model.Patient
	Result  *model.FitResult
	Error   error
}

// GetError returns the error from the fit
func (r *FitResult) GetError() error {
	return r.Error
}

// PatientFit converts the job result into its report line
func (r *FitResult) PatientFit() model.PatientFit {
	line := model.PatientFit{
		PatientID:   r.Patient.ID,
		Status:      r.Patient.StatusLabel(),
		Ideal:       r.Patient.Ideal,
		Problematic: r.Patient.Problematic,
		Result:      r.Result,
	}
	if r.Error != nil {
		line.Result = nil
		line.Failure = model.FailureKind(r.Error)
		line.Error = r.Error.Error()
	}
	return line
}

// BatchProcessor fits many patients concurrently
type BatchProcessor struct {
	fitter      Fitter
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(fitter Fitter, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		fitter:      fitter,
		concurrency: concurrency,
	}
}

// ProcessPatients fits every patient and returns the results in input
// order. A failed fit is reported in its result, never dropped.
func (b *BatchProcessor) ProcessPatients(ctx context.Context, patients []*model.Patient, kind model.ModelKind, mode model.EvalMode) []*FitResult {
	if len(patients) == 0 {
		return []*FitResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, p := range patients {
		job := &FitJob{
			Patient: p,
			Model:   kind,
			Mode:    mode,
			Fitter:  b.fitter,
		}
		if !pool.Submit(job) {
			pool.Shutdown()
			break
		}
	}

	results := pool.Wait()

	byPatient := make(map[*model.Patient]*FitResult, len(results))
	for _, result := range results {
		fr := result.(*FitResult)
		byPatient[fr.Patient] = fr
	}

	// Patients never run because ctx ended still get a line
	fitResults := make([]*FitResult, len(patients))
	for i, p := range patients {
		if fr, ok := byPatient[p]; ok {
			fitResults[i] = fr
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		fitResults[i] = &FitResult{Patient: p, Error: err}
	}

	return fitResults
}

// Report runs ProcessPatients and bundles the outcome with a fresh run ID
func (b *BatchProcessor) Report(ctx context.Context, dataset string, patients []*model.Patient, kind model.ModelKind, mode model.EvalMode) *model.BatchReport {
	results := b.ProcessPatients(ctx, patients, kind, mode)

	report := &model.BatchReport{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Dataset:     dataset,
		Model:       kind,
		EvalMode:    mode,
		Patients:    make([]model.PatientFit, len(results)),
	}
	for i, r := range results {
		report.Patients[i] = r.PatientFit()
	}
	return report
}
