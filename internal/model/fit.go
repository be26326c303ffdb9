package model

import (
	"fmt"
	"strings"
	"time"
)

// ModelKind selects the parametric curve family
type ModelKind string

const (
	ModelSigmoid ModelKind = "sigmoid" // L / (1 + exp(-k(x - x0))) + b
	ModelHill    ModelKind = "hill"    // L x^n / (K^n + x^n)
)

// ParseModelKind parses a user-supplied model name
func ParseModelKind(s string) (ModelKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sigmoid", "logistic":
		return ModelSigmoid, nil
	case "hill":
		return ModelHill, nil
	default:
		return "", fmt.Errorf("unknown model: %q (supported: sigmoid, hill)", s)
	}
}

// EvalMode selects how the error metric is computed
type EvalMode string

const (
	EvalInSample    EvalMode = "in-sample"     // MSE over the fitted samples
	EvalLeaveOneOut EvalMode = "leave-one-out" // LOOCV MSE
)

// ParseEvalMode parses a user-supplied evaluation mode
func ParseEvalMode(s string) (EvalMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "in-sample", "insample":
		return EvalInSample, nil
	case "leave-one-out", "loo", "loocv":
		return EvalLeaveOneOut, nil
	default:
		return "", fmt.Errorf("unknown evaluation mode: %q (supported: in-sample, leave-one-out)", s)
	}
}

// Params is a fitted parameter tuple. Its arity and meaning depend on the
// model: (L, x0, k, b) for sigmoid, (L, K, n) for Hill.
type Params []float64

// Point is one (x, y) pair of a fitted curve
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FitResult is the complete output of one fit. It is only ever returned
// whole; failures are reported as errors instead.
type FitResult struct {
	PatientID   int           `json:"patient_id"`
	Model       ModelKind     `json:"model"`
	EvalMode    EvalMode      `json:"eval_mode"`
	ParamNames  []string      `json:"param_names"`
	Params      Params        `json:"params"`
	Curve       []Point       `json:"curve"`
	MSE         float64       `json:"mse"`
	SampleCount int           `json:"sample_count"`
	Included    []Measurement `json:"included"`
	Excluded    []Measurement `json:"excluded"`
	Cached      bool          `json:"cached,omitempty"`
}

// PatientFit is one line of a batch run: a result or a typed failure
type PatientFit struct {
	PatientID   int        `json:"patient_id"`
	Status      string     `json:"status"` // Patient.StatusLabel
	Ideal       bool       `json:"is_ideal"`
	Problematic bool       `json:"is_problematic"`
	Result      *FitResult `json:"result,omitempty"`
	Failure     string     `json:"failure,omitempty"` // FailureKind
	Error       string     `json:"error,omitempty"`
}

// BatchReport collects the fits of one batch run
type BatchReport struct {
	RunID       string       `json:"run_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Dataset     string       `json:"dataset"`
	Model       ModelKind    `json:"model"`
	EvalMode    EvalMode     `json:"eval_mode"`
	Patients    []PatientFit `json:"patients"`
}

// Succeeded counts patients with a result
func (r *BatchReport) Succeeded() int {
	n := 0
	for _, p := range r.Patients {
		if p.Result != nil {
			n++
		}
	}
	return n
}
