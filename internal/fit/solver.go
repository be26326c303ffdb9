package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ppiankov/odcfit/internal/model"
)

const (
	initialDamping = 1e-3
	minDamping     = 1e-15
	maxDamping     = 1e16
	scaleFloor     = 1e-12
)

// problem is a box-constrained nonlinear least-squares problem
type problem struct {
	size int
	// residuals sets dst[i] = f(x_i; p) - y_i
	residuals func(dst, p []float64)
	lower     []float64
	upper     []float64
}

// solution is the outcome of one solver run
type solution struct {
	params      []float64
	cost        float64 // sum of squared residuals
	iterations  int
	evaluations int
	reason      string
}

// solve minimises the sum of squared residuals with a projected
// Levenberg-Marquardt iteration. Every trial point is projected into the
// box, so the initial guess may lie outside it.
//
// A run stops early once the mean squared residual drops to cfg.ATol. When
// a budget runs out the run still succeeds if the mean squared residual is
// at most cfg.StallMSE: the solver is then crawling along a flat valley,
// such as a sigmoid steepening towards a step.
func solve(prob problem, p0 []float64, cfg model.SolverConfig) (solution, error) {
	n := len(p0)
	m := prob.size
	floor := cfg.ATol * float64(m)
	stall := cfg.StallMSE * float64(m)

	p := make([]float64, n)
	copy(p, p0)
	project(p, prob.lower, prob.upper)

	r := make([]float64, m)
	prob.residuals(r, p)
	cost := floats.Dot(r, r)
	sol := solution{evaluations: 1}
	if !isFinite(cost) {
		return sol, fmt.Errorf("non-finite residuals at initial guess: %w", model.ErrFitDidNotConverge)
	}
	if cost == 0 {
		sol.params, sol.cost, sol.reason = p, 0, "exact fit"
		return sol, nil
	}
	exhausted := func(err error) (solution, error) {
		if cost <= stall {
			sol.params, sol.cost, sol.reason = p, cost, "budget exhausted at negligible cost"
			return sol, nil
		}
		return sol, err
	}

	jac := mat.NewDense(m, n, nil)
	rv := mat.NewVecDense(m, r)
	grad := mat.NewVecDense(n, nil)
	jtj := mat.NewSymDense(n, nil)
	damped := mat.NewSymDense(n, nil)
	step := mat.NewVecDense(n, nil)
	trial := make([]float64, n)
	rTrial := make([]float64, m)
	var chol mat.Cholesky

	lambda := initialDamping
	// ftol must hold on two accepted steps in a row so one heavily damped
	// step cannot end the run early.
	smallReductions := 0
	for sol.iterations < cfg.MaxIterations {
		sol.iterations++

		sol.evaluations += jacobian(jac, prob, p, r)
		grad.MulVec(jac.T(), rv)
		if projectedGradientNorm(grad, p, prob.lower, prob.upper) <= cfg.GTol {
			sol.params, sol.cost, sol.reason = p, cost, "projected gradient below gtol"
			return sol, nil
		}
		jtj.SymOuterK(1, jac.T())

		improved := false
		for !improved {
			if sol.evaluations >= cfg.MaxEvaluations {
				return exhausted(fmt.Errorf("evaluation budget of %d exhausted (cost %g): %w", cfg.MaxEvaluations, cost, model.ErrFitDidNotConverge))
			}

			damped.CopySym(jtj)
			for j := 0; j < n; j++ {
				d := math.Max(jtj.At(j, j), scaleFloor)
				damped.SetSym(j, j, jtj.At(j, j)+lambda*d)
			}
			if !chol.Factorize(damped) {
				lambda *= 10
				if lambda > maxDamping {
					break
				}
				continue
			}
			if err := chol.SolveVecTo(step, grad); err != nil {
				lambda *= 10
				if lambda > maxDamping {
					break
				}
				continue
			}

			for j := range trial {
				trial[j] = p[j] - step.AtVec(j)
			}
			project(trial, prob.lower, prob.upper)
			prob.residuals(rTrial, trial)
			sol.evaluations++
			trialCost := floats.Dot(rTrial, rTrial)

			if isFinite(trialCost) && trialCost < cost {
				improved = true
				reduction := (cost - trialCost) / cost
				moved := floats.Distance(trial, p, 2)
				scale := floats.Norm(p, 2)

				copy(p, trial)
				copy(r, rTrial)
				cost = trialCost
				lambda = math.Max(lambda/10, minDamping)

				if reduction <= cfg.FTol {
					smallReductions++
				} else {
					smallReductions = 0
				}

				switch {
				case cost == 0:
					sol.params, sol.cost, sol.reason = p, cost, "exact fit"
					return sol, nil
				case cost <= floor:
					sol.params, sol.cost, sol.reason = p, cost, "cost below atol"
					return sol, nil
				case smallReductions >= 2:
					sol.params, sol.cost, sol.reason = p, cost, "cost reduction below ftol"
					return sol, nil
				case moved <= cfg.XTol*(scale+cfg.XTol):
					sol.params, sol.cost, sol.reason = p, cost, "step below xtol"
					return sol, nil
				}
				continue
			}

			lambda *= 10
			if lambda > maxDamping {
				break
			}
		}

		if !improved {
			// No damped step lowers the cost: p is a local minimum to
			// working precision.
			sol.params, sol.cost, sol.reason = p, cost, "no further decrease"
			return sol, nil
		}
	}

	return exhausted(fmt.Errorf("no convergence after %d iterations (cost %g): %w", cfg.MaxIterations, cost, model.ErrFitDidNotConverge))
}

// jacobian fills jac with forward differences of the residuals at p and
// returns the number of residual evaluations used. A step that would leave
// the box is taken backward instead.
func jacobian(jac *mat.Dense, prob problem, p, r []float64) int {
	m, n := jac.Dims()
	shifted := make([]float64, n)
	rShift := make([]float64, m)
	sqrtEps := math.Sqrt(0x1p-52)

	for j := 0; j < n; j++ {
		copy(shifted, p)
		h := sqrtEps * math.Max(math.Abs(p[j]), 1)
		if p[j]+h > prob.upper[j] {
			h = -h
		}
		shifted[j] = p[j] + h
		// h as actually represented
		h = shifted[j] - p[j]

		prob.residuals(rShift, shifted)
		for i := 0; i < m; i++ {
			jac.Set(i, j, (rShift[i]-r[i])/h)
		}
	}
	return n
}

// projectedGradientNorm is the infinity norm of the gradient with the
// components that point out of an active bound removed.
func projectedGradientNorm(grad *mat.VecDense, p, lower, upper []float64) float64 {
	norm := 0.0
	for j := range p {
		g := grad.AtVec(j)
		if p[j] <= lower[j] && g > 0 {
			continue
		}
		if p[j] >= upper[j] && g < 0 {
			continue
		}
		norm = math.Max(norm, math.Abs(g))
	}
	return norm
}

// project clamps p into [lower, upper] in place
func project(p, lower, upper []float64) {
	for j := range p {
		p[j] = math.Min(math.Max(p[j], lower[j]), upper[j])
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
