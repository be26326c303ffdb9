package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/odcfit/internal/selection"
	"github.com/ppiankov/odcfit/internal/store"
	"github.com/ppiankov/odcfit/internal/worker"
)

var (
	selPatient     int
	selInclude     []int
	selExclude     []int
	selIdeal       bool
	selProcessed   bool
	selProblematic bool
	selTimeout     time.Duration
)

// selectCmd represents the select command
var selectCmd = &cobra.Command{
	Use:   "select <dataset.csv>",
	Short: "Save a patient's measurement selection and review flags",
	Long: `Select switches measurements in or out by sequence number and writes
the selection back to the sheet, together with the review flags.

Flags not given keep their stored value. Anchors are never written.

Example:
  odcfit select patients.csv --patient 12 --exclude 3,4
  odcfit select patients.csv --patient 12 --include 3 --processed --ideal`,
	Args: cobra.ExactArgs(1),
	RunE: runSelect,
}

func init() {
	rootCmd.AddCommand(selectCmd)

	selectCmd.Flags().IntVarP(&selPatient, "patient", "p", 0, "patient ID (required)")
	selectCmd.Flags().IntSliceVar(&selInclude, "include", nil, "sequence numbers to include")
	selectCmd.Flags().IntSliceVar(&selExclude, "exclude", nil, "sequence numbers to exclude")
	selectCmd.Flags().BoolVar(&selIdeal, "ideal", false, "flag the patient as ideal")
	selectCmd.Flags().BoolVar(&selProcessed, "processed", false, "flag the patient as processed")
	selectCmd.Flags().BoolVar(&selProblematic, "problematic", false, "flag the patient as problematic")
	selectCmd.Flags().DurationVar(&selTimeout, "timeout", 30*time.Second, "how long to wait for the write")

	_ = selectCmd.MarkFlagRequired("patient")
}

func runSelect(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), selTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	limiter := worker.NewLimiter(cfg.Store.WritesPerSecond, cfg.Store.Burst)
	st, err := store.Open(args[0], limiter)
	if err != nil {
		return err
	}
	patient, err := st.Dataset().Patient(selPatient)
	if err != nil {
		return err
	}

	ms := patient.Measurements
	for _, seq := range selInclude {
		if ms, err = selection.Toggle(ms, seq, true); err != nil {
			return err
		}
	}
	for _, seq := range selExclude {
		if ms, err = selection.Toggle(ms, seq, false); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("ideal") {
		patient.Ideal = selIdeal
	}
	if flags.Changed("processed") {
		patient.Processed = selProcessed
	}
	if flags.Changed("problematic") {
		patient.Problematic = selProblematic
	}

	ds, err := st.SavePatient(ctx, selection.Update(patient, ms))
	if err != nil {
		return err
	}
	saved, err := ds.Patient(patient.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "✓ Saved patient %d to %s (%s)\n", saved.ID, st.Path(), saved.StatusLabel())
	printMeasurements(saved.Measurements)
	return nil
}
