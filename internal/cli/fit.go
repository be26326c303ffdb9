package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/odcfit/internal/model"
	"github.com/ppiankov/odcfit/internal/pipeline"
	"github.com/ppiankov/odcfit/internal/render"
	"github.com/ppiankov/odcfit/internal/selection"
	"github.com/ppiankov/odcfit/internal/store"
)

var (
	fitPatient     int
	fitModel       string
	fitEval        string
	fitAnchors     []int
	fitInclude     []int
	fitExclude     []int
	fitOutJSON     string
	fitOutMD       string
	fitOutPNG      string
	fitNoCache     bool
	fitSkipAnchors bool
)

// fitCmd represents the fit command
var fitCmd = &cobra.Command{
	Use:   "fit <dataset.csv>",
	Short: "Fit one patient's dissociation curve",
	Long: `Fit fits a sigmoid or Hill curve to the selected measurements of one
patient and reports the parameters and mean squared error.

The selection stored in the sheet is used unless --include/--exclude
override individual measurements by sequence number. Overrides apply to
this fit only; use 'odcfit select' to save them.

Anchors are numbered after the real measurements once added. Use --anchor
with 1 for (0, 0) and 2 for the P50 point.

Example:
  odcfit fit patients.csv --patient 12
  odcfit fit patients.csv --patient 12 --model sigmoid --exclude 3 --png p12.png
  odcfit fit patients.csv --patient 12 --anchor 2 --eval leave-one-out`,
	Args: cobra.ExactArgs(1),
	RunE: runFit,
}

func init() {
	rootCmd.AddCommand(fitCmd)

	fitCmd.Flags().IntVarP(&fitPatient, "patient", "p", 0, "patient ID (required)")
	fitCmd.Flags().StringVarP(&fitModel, "model", "m", "", "model: sigmoid or hill (default from config)")
	fitCmd.Flags().StringVar(&fitEval, "eval", "", "evaluation: in-sample or leave-one-out (default from config)")
	fitCmd.Flags().IntSliceVar(&fitAnchors, "anchor", nil, "anchors to include for this fit: 1=(0,0), 2=P50")
	fitCmd.Flags().IntSliceVar(&fitInclude, "include", nil, "sequence numbers to include for this fit")
	fitCmd.Flags().IntSliceVar(&fitExclude, "exclude", nil, "sequence numbers to exclude for this fit")
	fitCmd.Flags().BoolVar(&fitSkipAnchors, "skip-anchors", false, "never fit anchors, even when switched on")
	fitCmd.Flags().BoolVar(&fitNoCache, "no-cache", false, "disable the result cache")

	// Output flags
	fitCmd.Flags().StringVar(&fitOutJSON, "json", "", "output JSON path (optional)")
	fitCmd.Flags().StringVar(&fitOutMD, "md", "", "output Markdown path (optional)")
	fitCmd.Flags().StringVar(&fitOutPNG, "png", "", "output chart path (optional)")

	_ = fitCmd.MarkFlagRequired("patient")
}

func runFit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if fitNoCache {
		cfg.Cache.Enabled = false
	}
	if fitSkipAnchors {
		cfg.Fit.SkipAnchors = true
	}
	kind, mode, err := fitSettings(cfg, fitModel, fitEval)
	if err != nil {
		return err
	}

	ds, err := store.Load(args[0])
	if err != nil {
		return err
	}
	patient, err := ds.Patient(fitPatient)
	if err != nil {
		return err
	}

	ms, err := sessionMeasurements(patient.Measurements, fitAnchors, fitInclude, fitExclude)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Fitting patient %d (%s) with %s, %s MSE\n", patient.ID, patient.StatusLabel(), kind, mode)
	}

	p := pipeline.NewPipeline(cfg)
	result, err := p.Fit(pipeline.Request{
		PatientID:    patient.ID,
		Measurements: ms,
		Model:        kind,
		EvalMode:     mode,
	})
	if err != nil {
		return err
	}

	r := render.NewRenderer(os.Stdout, cfg.Output)
	r.RenderSummary(result)
	return writeFitOutputs(r, result, fitOutJSON, fitOutMD, fitOutPNG)
}

// sessionMeasurements adds the anchors and applies the per-fit overrides.
// Numbering follows selection.WithAnchors, as in batch fits.
func sessionMeasurements(ms []model.Measurement, anchors, include, exclude []int) ([]model.Measurement, error) {
	out := selection.WithAnchors(ms)
	n := len(out) - len(model.Anchors())
	var err error
	for _, seq := range include {
		if out, err = selection.Toggle(out, seq, true); err != nil {
			return nil, err
		}
	}
	for _, seq := range exclude {
		if out, err = selection.Toggle(out, seq, false); err != nil {
			return nil, err
		}
	}
	for _, idx := range anchors {
		seq, err := selection.AnchorSequence(n, idx)
		if err != nil {
			return nil, err
		}
		if out, err = selection.Toggle(out, seq, true); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeFitOutputs(r *render.Renderer, result *model.FitResult, jsonPath, mdPath, pngPath string) error {
	if jsonPath != "" {
		if err := r.RenderJSON(result, jsonPath); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ JSON report: %s\n", jsonPath)
	}
	if mdPath != "" {
		if err := r.RenderMarkdown(result, mdPath); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Markdown report: %s\n", mdPath)
	}
	if pngPath != "" {
		if err := r.RenderPNG(result, pngPath); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Chart: %s\n", pngPath)
	}
	return nil
}

