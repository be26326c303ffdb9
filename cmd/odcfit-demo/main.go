// Demo program fitting both models to a typical desaturation series,
// with and without the P50 anchor, and a single-point series that must
// be rejected.
package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/odcfit/internal/model"
	"github.com/ppiankov/odcfit/internal/pipeline"
)

type series struct {
	name    string
	samples [][2]float64
	anchor  bool
}

func main() {
	fmt.Println("=== Oxygen Dissociation Fit Demo ===")
	fmt.Println()

	cfg := model.DefaultConfig()
	cfg.Cache.Enabled = false
	p := pipeline.NewPipeline(cfg)

	cases := []series{
		{name: "typical", samples: [][2]float64{{10, 70}, {15, 85}, {20, 92}, {30, 97}, {40, 98}}},
		{name: "typical + P50 anchor", samples: [][2]float64{{10, 70}, {15, 85}, {20, 92}, {30, 97}, {40, 98}}, anchor: true},
		{name: "single point", samples: [][2]float64{{20, 90}}},
	}

	for i, c := range cases {
		fmt.Printf("Series: %s\n", c.name)
		fmt.Println(strings.Repeat("-", 60))

		ms := make([]model.Measurement, 0, len(c.samples)+1)
		for _, s := range c.samples {
			m, err := model.NewMeasurement(s[0], s[1], true)
			if err != nil {
				fmt.Printf("  invalid sample %v: %v\n", s, err)
				continue
			}
			ms = append(ms, m)
		}
		if c.anchor {
			a := model.NewAnchor(model.P50InspiredO2, model.P50SpO2)
			a.Included = true
			ms = append(ms, a)
		}

		for _, kind := range []model.ModelKind{model.ModelSigmoid, model.ModelHill} {
			result, err := p.Fit(pipeline.Request{
				PatientID:    i + 1,
				Measurements: ms,
				Model:        kind,
				EvalMode:     model.EvalInSample,
			})
			var fitErr *model.FitError
			switch {
			case errors.As(err, &fitErr):
				fmt.Printf("  %-8s ✗ %s while %s\n", kind, model.FailureKind(err), fitErr.Stage)
			case err != nil:
				fmt.Printf("  %-8s ✗ %v\n", kind, err)
			default:
				fmt.Printf("  %-8s ✓ MSE %.3f  %s\n", kind, result.MSE, formatParams(result))
			}
		}
		fmt.Println()
	}
}

func formatParams(r *model.FitResult) string {
	parts := make([]string, len(r.Params))
	for i, v := range r.Params {
		parts[i] = fmt.Sprintf("%s=%.3f", r.ParamNames[i], v)
	}
	return strings.Join(parts, " ")
}
