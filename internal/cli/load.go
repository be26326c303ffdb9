package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ppiankov/odcfit/internal/model"
)

// ODCFIT_FIT_MODEL maps to fit.model
var envKeyReplacer = strings.NewReplacer(".", "_")

// configKeys are the leaf keys viper resolves from the environment. Keys
// only present in a config file need no registration.
var configKeys = []string{
	"fit.model",
	"fit.eval_mode",
	"fit.skip_anchors",
	"fit.sigmoid.initial_steepness",
	"fit.sigmoid.alternative_seed",
	"fit.solver.max_iterations",
	"fit.solver.max_evaluations",
	"fit.solver.ftol",
	"fit.solver.xtol",
	"fit.solver.gtol",
	"fit.solver.atol",
	"fit.solver.stall_mse",
	"fit.curve.margin",
	"fit.curve.resolution",
	"cache.enabled",
	"cache.memory_ttl",
	"cache.disk_dir",
	"cache.disk_ttl",
	"concurrency.workers",
	"store.writes_per_second",
	"store.burst",
	"output.verbose",
	"output.chart_width",
	"output.chart_height",
}

// loadConfig layers config file and ODCFIT_* variables over the defaults
// and validates the result.
func loadConfig() (*model.Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fitSettings resolves the model and evaluation mode, letting non-empty
// flag values override the configuration.
func fitSettings(cfg *model.Config, modelFlag, evalFlag string) (model.ModelKind, model.EvalMode, error) {
	name := cfg.Fit.Model
	if modelFlag != "" {
		name = modelFlag
	}
	kind, err := model.ParseModelKind(name)
	if err != nil {
		return "", "", err
	}

	modeName := cfg.Fit.EvalMode
	if evalFlag != "" {
		modeName = evalFlag
	}
	mode, err := model.ParseEvalMode(modeName)
	if err != nil {
		return "", "", err
	}
	return kind, mode, nil
}
