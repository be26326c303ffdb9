package model

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Config holds the complete odcfit configuration
type Config struct {
	Fit         FitConfig         `yaml:"fit" mapstructure:"fit"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
}

// FitConfig controls estimation and evaluation
type FitConfig struct {
	Model       string        `yaml:"model" mapstructure:"model"`               // sigmoid | hill
	EvalMode    string        `yaml:"eval_mode" mapstructure:"eval_mode"`       // in-sample | leave-one-out
	SkipAnchors bool          `yaml:"skip_anchors" mapstructure:"skip_anchors"` // Never fit anchors, even if toggled on
	Sigmoid     SigmoidConfig `yaml:"sigmoid" mapstructure:"sigmoid"`
	Hill        HillConfig    `yaml:"hill" mapstructure:"hill"`
	Solver      SolverConfig  `yaml:"solver" mapstructure:"solver"`
	Curve       CurveConfig   `yaml:"curve" mapstructure:"curve"`
}

// Bounds is a per-parameter box constraint
type Bounds struct {
	Lower []float64 `yaml:"lower" mapstructure:"lower"`
	Upper []float64 `yaml:"upper" mapstructure:"upper"`
}

// Validate checks arity and ordering of the bounds
func (b Bounds) Validate(arity int) error {
	if len(b.Lower) != arity || len(b.Upper) != arity {
		return fmt.Errorf("bounds need %d lower and upper values, got %d and %d: %w",
			arity, len(b.Lower), len(b.Upper), ErrInvalidParameterCount)
	}
	for i := range b.Lower {
		if math.IsNaN(b.Lower[i]) || math.IsNaN(b.Upper[i]) {
			return fmt.Errorf("bound %d is NaN", i)
		}
		if b.Lower[i] > b.Upper[i] {
			return fmt.Errorf("bound %d: lower %g > upper %g", i, b.Lower[i], b.Upper[i])
		}
	}
	return nil
}

// SigmoidConfig holds sigmoid estimation settings. Parameter order is
// (L, x0, k, b).
type SigmoidConfig struct {
	Bounds           Bounds  `yaml:"bounds" mapstructure:"bounds"`
	InitialSteepness float64 `yaml:"initial_steepness" mapstructure:"initial_steepness"`
	AlternativeSeed  bool    `yaml:"alternative_seed" mapstructure:"alternative_seed"` // Also try a data-derived seed
}

// HillConfig holds Hill estimation settings. Parameter order is (L, K, n).
type HillConfig struct {
	Bounds Bounds    `yaml:"bounds" mapstructure:"bounds"`
	Seed   []float64 `yaml:"seed" mapstructure:"seed"`
}

// SolverConfig bounds the least-squares solver
type SolverConfig struct {
	MaxIterations  int     `yaml:"max_iterations" mapstructure:"max_iterations"`
	MaxEvaluations int     `yaml:"max_evaluations" mapstructure:"max_evaluations"`
	FTol           float64 `yaml:"ftol" mapstructure:"ftol"` // Relative cost reduction
	XTol           float64 `yaml:"xtol" mapstructure:"xtol"` // Relative step size
	GTol           float64 `yaml:"gtol" mapstructure:"gtol"` // Projected gradient norm
	ATol           float64 `yaml:"atol" mapstructure:"atol"` // Mean squared residual that ends the run
	// StallMSE is the largest mean squared residual still accepted when a
	// budget runs out; 0 turns budget exhaustion into a failure.
	StallMSE       float64 `yaml:"stall_mse" mapstructure:"stall_mse"`
}

// CurveConfig controls the dense display curve
type CurveConfig struct {
	Margin     float64 `yaml:"margin" mapstructure:"margin"`
	Resolution int     `yaml:"resolution" mapstructure:"resolution"`
}

// CacheConfig holds result cache settings
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskDir   string        `yaml:"disk_dir" mapstructure:"disk_dir"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig holds batch settings
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// StoreConfig throttles write-back to the measurement store
type StoreConfig struct {
	WritesPerSecond float64 `yaml:"writes_per_second" mapstructure:"writes_per_second"`
	Burst           int     `yaml:"burst" mapstructure:"burst"`
}

// OutputConfig holds rendering settings
type OutputConfig struct {
	Verbose     bool `yaml:"verbose" mapstructure:"verbose"`
	ChartWidth  int  `yaml:"chart_width" mapstructure:"chart_width"`
	ChartHeight int  `yaml:"chart_height" mapstructure:"chart_height"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Fit: FitConfig{
			Model:    string(ModelHill),
			EvalMode: string(EvalInSample),
			Sigmoid: SigmoidConfig{
				Bounds: Bounds{
					Lower: []float64{0, math.Inf(-1), 0, 0},
					Upper: []float64{100, math.Inf(1), math.Inf(1), 100},
				},
				InitialSteepness: 0.1,
				AlternativeSeed:  true,
			},
			Hill: HillConfig{
				Bounds: Bounds{
					Lower: []float64{80, 1, 0.1},
					Upper: []float64{100, 40, 10},
				},
				Seed: []float64{90, 15, 1.5},
			},
			Solver: SolverConfig{
				MaxIterations:  1000,
				MaxEvaluations: 10000,
				FTol:           1e-8,
				XTol:           1e-8,
				GTol:           1e-8,
				ATol:           1e-10,
				StallMSE:       0.01,
			},
			Curve: CurveConfig{
				Margin:     1,
				Resolution: 200,
			},
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 30 * time.Minute,
			DiskDir:   defaultCacheDir(),
			DiskTTL:   7 * 24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers: runtime.NumCPU(),
		},
		Store: StoreConfig{
			WritesPerSecond: 1,
			Burst:           5,
		},
		Output: OutputConfig{
			ChartWidth:  800,
			ChartHeight: 500,
		},
	}
}

// Validate checks the configuration for values the fitter cannot use
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseModelKind(c.Fit.Model); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseEvalMode(c.Fit.EvalMode); err != nil {
		errs = append(errs, err)
	}
	if err := c.Fit.Sigmoid.Bounds.Validate(4); err != nil {
		errs = append(errs, fmt.Errorf("fit.sigmoid.bounds: %w", err))
	}
	if err := c.Fit.Hill.Bounds.Validate(3); err != nil {
		errs = append(errs, fmt.Errorf("fit.hill.bounds: %w", err))
	}
	if len(c.Fit.Hill.Seed) != 3 {
		errs = append(errs, fmt.Errorf("fit.hill.seed needs 3 values, got %d: %w", len(c.Fit.Hill.Seed), ErrInvalidParameterCount))
	}
	if c.Fit.Solver.MaxIterations <= 0 || c.Fit.Solver.MaxEvaluations <= 0 {
		errs = append(errs, errors.New("fit.solver: iteration and evaluation budgets must be positive"))
	}
	if c.Fit.Solver.ATol < 0 || c.Fit.Solver.StallMSE < 0 {
		errs = append(errs, fmt.Errorf("fit.solver: atol and stall_mse must be >= 0, got %g and %g", c.Fit.Solver.ATol, c.Fit.Solver.StallMSE))
	}
	if c.Fit.Curve.Resolution < 100 {
		errs = append(errs, fmt.Errorf("fit.curve.resolution must be >= 100, got %d", c.Fit.Curve.Resolution))
	}
	if c.Fit.Curve.Margin < 0 {
		errs = append(errs, fmt.Errorf("fit.curve.margin must be >= 0, got %g", c.Fit.Curve.Margin))
	}
	return errors.Join(errs...)
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".odcfit-cache"
	}
	return filepath.Join(dir, "odcfit")
}
