package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/odcfit/internal/pipeline"
	"github.com/ppiankov/odcfit/internal/render"
	"github.com/ppiankov/odcfit/internal/store"
	"github.com/ppiankov/odcfit/internal/worker"
)

var (
	concurrency      int
	outputDir        string
	batchTimeout     time.Duration
	batchModel       string
	batchEval        string
	batchNoCache     bool
	batchPNG         bool
	batchIdeal       bool
	batchProblematic bool
	batchUnprocessed bool
	batchProcessed   bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <dataset.csv>",
	Short: "Fit every patient in a sheet in parallel",
	Long: `Batch fits each patient's stored selection concurrently:
- Load the sheet and filter patients by review flags
- Fit patients in parallel with configurable worker count
- Report failures per patient without stopping the run
- Write a JSON and Markdown report, plus optional per-patient charts

Example:
  odcfit batch patients.csv
  odcfit batch patients.csv --model sigmoid --concurrency 8 --output-dir ./fits
  odcfit batch patients.csv --unprocessed --png`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default from config)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./odcfit-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().StringVarP(&batchModel, "model", "m", "", "model: sigmoid or hill (default from config)")
	batchCmd.Flags().StringVar(&batchEval, "eval", "", "evaluation: in-sample or leave-one-out (default from config)")
	batchCmd.Flags().BoolVar(&batchNoCache, "no-cache", false, "disable the result cache")
	batchCmd.Flags().BoolVar(&batchPNG, "png", false, "write a chart per fitted patient")

	// Filters
	batchCmd.Flags().BoolVar(&batchIdeal, "ideal", false, "only patients flagged ideal")
	batchCmd.Flags().BoolVar(&batchProblematic, "problematic", false, "only patients flagged problematic")
	batchCmd.Flags().BoolVar(&batchUnprocessed, "unprocessed", false, "only patients not yet processed")
	batchCmd.Flags().BoolVar(&batchProcessed, "processed", false, "only processed patients")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if batchNoCache {
		cfg.Cache.Enabled = false
	}
	if concurrency > 0 {
		cfg.Concurrency.Workers = concurrency
	}
	kind, mode, err := fitSettings(cfg, batchModel, batchEval)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  odcfit Batch Fitting\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Dataset:      %s\n", file)
	fmt.Fprintf(os.Stderr, "  Model:        %s (%s)\n", kind, mode)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	ds, err := store.Load(file)
	if err != nil {
		return err
	}
	patients := ds.Patients(store.Filter{
		Ideal:       batchIdeal,
		Problematic: batchProblematic,
		Unprocessed: batchUnprocessed,
		Processed:   batchProcessed,
	})
	if len(patients) == 0 {
		return fmt.Errorf("no patients match the filters")
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p := pipeline.NewPipeline(cfg)
	processor := worker.NewBatchProcessor(p, cfg.Concurrency.Workers)

	fmt.Fprintf(os.Stderr, "⚙️  Fitting %d patients with %d workers...\n", len(patients), cfg.Concurrency.Workers)
	report := processor.Report(ctx, filepath.Base(file), patients, kind, mode)

	r := render.NewRenderer(os.Stdout, cfg.Output)
	r.RenderBatchSummary(report)

	jsonPath := filepath.Join(outputDir, "report.json")
	if err := r.RenderJSON(report, jsonPath); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	mdPath := filepath.Join(outputDir, "report.md")
	if err := r.RenderBatchMarkdown(report, mdPath); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	if batchPNG {
		for _, line := range report.Patients {
			if line.Result == nil {
				continue
			}
			path := filepath.Join(outputDir, fmt.Sprintf("patient-%d.png", line.PatientID))
			if err := r.RenderPNG(line.Result, path); err != nil {
				fmt.Fprintf(os.Stderr, "✗ chart for patient %d: %v\n", line.PatientID, err)
			}
		}
	}

	fmt.Fprintf(os.Stderr, "\n✓ Reports written to %s\n", outputDir)
	if report.Succeeded() == 0 {
		return fmt.Errorf("no patient could be fitted")
	}
	return nil
}
