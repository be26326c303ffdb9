package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/odcfit/internal/model"
	"github.com/ppiankov/odcfit/internal/store"
)

var (
	listIdeal       bool
	listProblematic bool
	listUnprocessed bool
	listProcessed   bool
	showPatient     int
	navUnprocessed  bool
)

// patientsCmd represents the patients command
var patientsCmd = &cobra.Command{
	Use:   "patients <dataset.csv>",
	Short: "List patients and their review status",
	Long: `Patients lists the patients of a sheet with their review status and
number of selected measurements.

Example:
  odcfit patients patients.csv
  odcfit patients patients.csv --unprocessed`,
	Args: cobra.ExactArgs(1),
	RunE: runPatients,
}

var showCmd = &cobra.Command{
	Use:   "show <dataset.csv>",
	Short: "Show one patient's measurements",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var nextCmd = &cobra.Command{
	Use:   "next <dataset.csv>",
	Short: "Print the patient ID after --patient",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return navigate(args[0], true)
	},
}

var prevCmd = &cobra.Command{
	Use:   "prev <dataset.csv>",
	Short: "Print the patient ID before --patient",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return navigate(args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(patientsCmd)
	patientsCmd.AddCommand(showCmd, nextCmd, prevCmd)

	patientsCmd.Flags().BoolVar(&listIdeal, "ideal", false, "only patients flagged ideal")
	patientsCmd.Flags().BoolVar(&listProblematic, "problematic", false, "only patients flagged problematic")
	patientsCmd.Flags().BoolVar(&listUnprocessed, "unprocessed", false, "only patients not yet processed")
	patientsCmd.Flags().BoolVar(&listProcessed, "processed", false, "only processed patients")

	patientsCmd.PersistentFlags().IntVarP(&showPatient, "patient", "p", 0, "patient ID")
	for _, c := range []*cobra.Command{nextCmd, prevCmd} {
		c.Flags().BoolVar(&navUnprocessed, "unprocessed", false, "skip processed patients")
	}
}

func runPatients(cmd *cobra.Command, args []string) error {
	ds, err := store.Load(args[0])
	if err != nil {
		return err
	}
	patients := ds.Patients(store.Filter{
		Ideal:       listIdeal,
		Problematic: listProblematic,
		Unprocessed: listUnprocessed,
		Processed:   listProcessed,
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATIENT\tMEASUREMENTS\tSELECTED\tSTATUS")
	for _, p := range patients {
		selected := 0
		for _, m := range p.Measurements {
			if m.Included {
				selected++
			}
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", p.ID, len(p.Measurements), selected, p.StatusLabel())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d of %d patients\n", len(patients), len(ds.PatientIDs()))
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	ds, err := store.Load(args[0])
	if err != nil {
		return err
	}
	p, err := ds.Patient(showPatient)
	if err != nil {
		return err
	}
	fmt.Printf("Patient %d (%s)\n\n", p.ID, p.StatusLabel())
	printMeasurements(p.Measurements)
	return nil
}

func navigate(path string, forward bool) error {
	ds, err := store.Load(path)
	if err != nil {
		return err
	}
	id, ok := ds.Previous(showPatient, navUnprocessed)
	direction := "before"
	if forward {
		id, ok = ds.Next(showPatient, navUnprocessed)
		direction = "after"
	}
	if !ok {
		return fmt.Errorf("no patient %s %d", direction, showPatient)
	}
	fmt.Println(id)
	return nil
}

// printMeasurements prints a numbered measurement table to stdout
func printMeasurements(ms []model.Measurement) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tINSP. O2 (%)\tSPO2 (%)\tSELECTED")
	for _, m := range ms {
		mark := " "
		if m.Included {
			mark = "✓"
		}
		fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%s\n", m.Sequence, m.InspiredO2, m.SpO2, mark)
	}
	_ = w.Flush()
}
