package model

import (
	"errors"
	"fmt"
)

// Fit failures. All are expected and recoverable by changing the selection.
var (
	ErrInsufficientSamples   = errors.New("insufficient samples")
	ErrDegenerateInput       = errors.New("degenerate input")
	ErrFitDidNotConverge     = errors.New("fit did not converge")
	ErrInvalidParameterCount = errors.New("invalid parameter count")
	ErrNoSamplesSelected     = errors.New("no samples selected")
)

// Stage is a state of one orchestrated fit
type Stage string

const (
	StageIdle        Stage = "idle"
	StagePartitioned Stage = "partitioned"
	StageEstimating  Stage = "estimating"
	StageEvaluating  Stage = "evaluating"
	StageDone        Stage = "done"
)

// FitError carries patient and model context for a failed fit
type FitError struct {
	PatientID int
	Model     ModelKind
	Stage     Stage // Stage the pipeline was in when it failed
	Err       error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("patient %d: %s fit failed while %s: %v", e.PatientID, e.Model, e.Stage, e.Err)
}

func (e *FitError) Unwrap() error {
	return e.Err
}

// FailureKind maps an error to a stable identifier for reports
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientSamples):
		return "insufficient_samples"
	case errors.Is(err, ErrDegenerateInput):
		return "degenerate_input"
	case errors.Is(err, ErrFitDidNotConverge):
		return "did_not_converge"
	case errors.Is(err, ErrInvalidParameterCount):
		return "invalid_parameter_count"
	case errors.Is(err, ErrNoSamplesSelected):
		return "no_samples_selected"
	default:
		return "error"
	}
}
