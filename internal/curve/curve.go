// Package curve defines the parametric oxygen dissociation curve models.
package curve

import (
	"fmt"
	"math"

	"github.com/ppiankov/odcfit/internal/model"
)

// Model evaluates a parametric curve y = f(x; params)
type Model interface {
	// Kind identifies the model family
	Kind() model.ModelKind

	// ParamNames returns the parameter names in tuple order
	ParamNames() []string

	// Eval evaluates the curve at x. It fails with
	// model.ErrInvalidParameterCount when len(params) is not the model arity.
	Eval(x float64, params []float64) (float64, error)
}

// Sigmoid is y = L / (1 + exp(-k(x - x0))) + b with params (L, x0, k, b).
// Increasing for k > 0, asymptotes b and b + L.
type Sigmoid struct{}

// Hill is y = L x^n / (K^n + x^n) with params (L, K, n). Defined for x >= 0;
// negative x with non-integer n yields NaN, so callers must keep x >= 0.
type Hill struct{}

// Arity returns the parameter count of m
func Arity(m Model) int {
	return len(m.ParamNames())
}

// ForKind returns the model implementation for kind
func ForKind(kind model.ModelKind) (Model, error) {
	switch kind {
	case model.ModelSigmoid:
		return Sigmoid{}, nil
	case model.ModelHill:
		return Hill{}, nil
	default:
		return nil, fmt.Errorf("unknown model: %q", kind)
	}
}

func (Sigmoid) Kind() model.ModelKind { return model.ModelSigmoid }

func (Sigmoid) ParamNames() []string { return []string{"L", "x0", "k", "b"} }

func (s Sigmoid) Eval(x float64, params []float64) (float64, error) {
	if err := checkArity(s, params); err != nil {
		return 0, err
	}
	return sigmoid(x, params[0], params[1], params[2], params[3]), nil
}

func sigmoid(x, l, x0, k, b float64) float64 {
	return l/(1+math.Exp(-k*(x-x0))) + b
}

func (Hill) Kind() model.ModelKind { return model.ModelHill }

func (Hill) ParamNames() []string { return []string{"L", "K", "n"} }

func (h Hill) Eval(x float64, params []float64) (float64, error) {
	if err := checkArity(h, params); err != nil {
		return 0, err
	}
	return hill(x, params[0], params[1], params[2]), nil
}

func hill(x, l, k, n float64) float64 {
	xn := math.Pow(x, n)
	den := math.Pow(k, n) + xn
	if den == 0 {
		// 0^n / (0^n + 0^n) at x = K = 0; the limit from the right is 0
		return 0
	}
	return l * xn / den
}

func checkArity(m Model, params []float64) error {
	if want := Arity(m); len(params) != want {
		return fmt.Errorf("%s takes %d parameters, got %d: %w", m.Kind(), want, len(params), model.ErrInvalidParameterCount)
	}
	return nil
}

// EvalAll evaluates m at every x into a new slice
func EvalAll(m Model, xs []float64, params []float64) ([]float64, error) {
	if err := checkArity(m, params); err != nil {
		return nil, err
	}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		// arity already checked
		ys[i], _ = m.Eval(x, params)
	}
	return ys, nil
}
