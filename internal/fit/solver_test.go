package fit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ppiankov/odcfit/internal/model"
)

// decaying has cost exp(-2p): it approaches zero forever without reaching
// it, and each LM step moves p by about one.
func decaying() problem {
	return problem{
		size: 1,
		residuals: func(dst, p []float64) {
			dst[0] = math.Exp(-p[0])
		},
		lower: []float64{0},
		upper: []float64{math.Inf(1)},
	}
}

func strictSolver() model.SolverConfig {
	return model.SolverConfig{MaxIterations: 1000, MaxEvaluations: 10000}
}

func TestSolve_StopsOnAbsoluteCost(t *testing.T) {
	cfg := strictSolver()
	cfg.ATol = 1e-10

	sol, err := solve(decaying(), []float64{0}, cfg)
	require.NoError(t, err)
	require.Equal(t, "cost below atol", sol.reason)
	require.LessOrEqual(t, sol.cost, 1e-10)
	require.Less(t, sol.iterations, 50)
}

func TestSolve_BudgetExhausted(t *testing.T) {
	cfg := strictSolver()
	cfg.MaxIterations = 5

	_, err := solve(decaying(), []float64{0}, cfg)
	require.ErrorIs(t, err, model.ErrFitDidNotConverge)

	// A floor below the reachable cost still fails
	cfg.StallMSE = 1e-30
	_, err = solve(decaying(), []float64{0}, cfg)
	require.ErrorIs(t, err, model.ErrFitDidNotConverge)
}

func TestSolve_AcceptsStalledNegligibleCost(t *testing.T) {
	cfg := strictSolver()
	cfg.MaxIterations = 5
	cfg.StallMSE = 0.01

	sol, err := solve(decaying(), []float64{0}, cfg)
	require.NoError(t, err)
	require.Equal(t, "budget exhausted at negligible cost", sol.reason)
	require.Equal(t, 5, sol.iterations)
	require.Less(t, sol.cost, 1e-3)
	require.Len(t, sol.params, 1)
}

func TestSolve_EvaluationBudgetAtNegligibleCost(t *testing.T) {
	cfg := strictSolver()
	cfg.MaxEvaluations = 12
	cfg.StallMSE = 0.01

	sol, err := solve(decaying(), []float64{0}, cfg)
	require.NoError(t, err)
	require.Equal(t, "budget exhausted at negligible cost", sol.reason)
	require.GreaterOrEqual(t, sol.evaluations, 12)

	cfg.StallMSE = 0
	_, err = solve(decaying(), []float64{0}, cfg)
	require.ErrorIs(t, err, model.ErrFitDidNotConverge)
}
