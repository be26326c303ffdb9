// Package store reads and writes the per-patient measurement sheet.
//
// The sheet is a CSV export of the review spreadsheet: one row per
// measurement, patient classification repeated on every row.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/odcfit/internal/model"
	"github.com/ppiankov/odcfit/internal/selection"
)

// Column names of the sheet
const (
	ColPatientID   = "Patient_ID"
	ColInspiredO2  = "Insp. O2 (%)"
	ColSpO2        = "SpO2 (%)"
	ColSelected    = "selected_measurement"
	ColIdeal       = "is_ideal"
	ColProcessed   = "is_processed"
	ColProblematic = "is_problematic"
)

// Header is the column order written by the store
var Header = []string{ColPatientID, ColInspiredO2, ColSpO2, ColSelected, ColIdeal, ColProcessed, ColProblematic}

// ErrPatientNotFound is returned for unknown patient IDs
var ErrPatientNotFound = errors.New("patient not found")

// Dataset is an immutable snapshot of the sheet
type Dataset struct {
	header   []string
	rows     [][]string // raw rows, header excluded; row r is rows[r-1]
	patients map[int]*model.Patient
	ids      []int
}

// Parse reads a sheet. Rows whose Patient_ID is blank or not numeric are
// skipped; malformed measurements are errors.
func Parse(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		header:   header,
		patients: make(map[int]*model.Patient),
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(ds.rows)+1, err)
		}
		ds.rows = append(ds.rows, rec)
		row := len(ds.rows)

		id, err := strconv.Atoi(strings.TrimSpace(field(rec, cols[ColPatientID])))
		if err != nil {
			continue
		}
		m, err := parseMeasurement(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("row %d (patient %d): %w", row, id, err)
		}
		m.Row = row

		p, ok := ds.patients[id]
		if !ok {
			p = &model.Patient{ID: id}
			ds.patients[id] = p
			ds.ids = append(ds.ids, id)
		}
		p.Measurements = append(p.Measurements, m)
	}

	for _, p := range ds.patients {
		p.Measurements = selection.Sequence(p.Measurements)
		// Classification is read from the first (lowest O2) row
		first := ds.rows[p.Measurements[0].Row-1]
		p.Ideal = parseFlag(field(first, cols[ColIdeal]))
		p.Processed = parseFlag(field(first, cols[ColProcessed]))
		p.Problematic = parseFlag(field(first, cols[ColProblematic]))
	}
	sort.Ints(ds.ids)
	return ds, nil
}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, name := range []string{ColPatientID, ColInspiredO2, ColSpO2} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	for _, name := range []string{ColSelected, ColIdeal, ColProcessed, ColProblematic} {
		if _, ok := cols[name]; !ok {
			cols[name] = -1
		}
	}
	return cols, nil
}

func parseMeasurement(rec []string, cols map[string]int) (model.Measurement, error) {
	o2, err := parseFloat(field(rec, cols[ColInspiredO2]))
	if err != nil {
		return model.Measurement{}, fmt.Errorf("%s: %w", ColInspiredO2, err)
	}
	spo2, err := parseFloat(field(rec, cols[ColSpO2]))
	if err != nil {
		return model.Measurement{}, fmt.Errorf("%s: %w", ColSpO2, err)
	}
	return model.NewMeasurement(o2, spo2, parseFlag(field(rec, cols[ColSelected])))
}

// parseFloat accepts a decimal comma as exported by some spreadsheet locales
func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty value")
	}
	return strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
}

func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "1.0":
		return true
	default:
		return false
	}
}

func formatFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func field(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return rec[idx]
}

// Patient returns a copy of one patient. The copy may be changed freely.
func (d *Dataset) Patient(id int) (*model.Patient, error) {
	p, ok := d.patients[id]
	if !ok {
		return nil, fmt.Errorf("patient %d: %w", id, ErrPatientNotFound)
	}
	cp := *p
	cp.Measurements = make([]model.Measurement, len(p.Measurements))
	copy(cp.Measurements, p.Measurements)
	return &cp, nil
}

// PatientIDs returns all patient IDs in ascending order
func (d *Dataset) PatientIDs() []int {
	out := make([]int, len(d.ids))
	copy(out, d.ids)
	return out
}

// Filter selects patients by review flags
type Filter struct {
	Ideal       bool
	Problematic bool
	Unprocessed bool
	Processed   bool
}

// Empty reports whether no flag is requested
func (f Filter) Empty() bool {
	return !f.Ideal && !f.Problematic && !f.Unprocessed && !f.Processed
}

// Match reports whether p has any of the requested flags. An empty filter
// matches every patient.
func (f Filter) Match(p *model.Patient) bool {
	if f.Empty() {
		return true
	}
	return (f.Ideal && p.Ideal) ||
		(f.Problematic && p.Problematic) ||
		(f.Unprocessed && !p.Processed) ||
		(f.Processed && p.Processed)
}

// Patients returns copies of the patients matching f, by ascending ID
func (d *Dataset) Patients(f Filter) []*model.Patient {
	var out []*model.Patient
	for _, id := range d.ids {
		if !f.Match(d.patients[id]) {
			continue
		}
		p, _ := d.Patient(id)
		out = append(out, p)
	}
	return out
}

// Next returns the first patient ID after id, optionally only unprocessed
// ones. ok is false when there is none.
func (d *Dataset) Next(id int, onlyUnprocessed bool) (next int, ok bool) {
	i := sort.SearchInts(d.ids, id+1)
	for ; i < len(d.ids); i++ {
		if !onlyUnprocessed || !d.patients[d.ids[i]].Processed {
			return d.ids[i], true
		}
	}
	return 0, false
}

// Previous returns the last patient ID before id, optionally only
// unprocessed ones.
func (d *Dataset) Previous(id int, onlyUnprocessed bool) (prev int, ok bool) {
	i := sort.SearchInts(d.ids, id) - 1
	for ; i >= 0; i-- {
		if !onlyUnprocessed || !d.patients[d.ids[i]].Processed {
			return d.ids[i], true
		}
	}
	return 0, false
}

// apply returns the raw rows with u applied. Rows of other patients and
// rows not named in u.Included keep their selection.
func (d *Dataset) apply(u model.PatientUpdate) ([][]string, error) {
	p, ok := d.patients[u.PatientID]
	if !ok {
		return nil, fmt.Errorf("patient %d: %w", u.PatientID, ErrPatientNotFound)
	}
	cols, err := columnIndex(d.header)
	if err != nil {
		return nil, err
	}

	out := make([][]string, len(d.rows))
	for i, rec := range d.rows {
		out[i] = append([]string(nil), rec...)
	}

	own := make(map[int]bool, len(p.Measurements))
	for _, m := range p.Measurements {
		own[m.Row] = true
	}
	for row, included := range u.Included {
		if !own[row] {
			// Anchors carry row 0 and are never written
			continue
		}
		setField(out[row-1], cols[ColSelected], formatFlag(included))
	}
	for row := range own {
		rec := out[row-1]
		setField(rec, cols[ColIdeal], formatFlag(u.Ideal))
		setField(rec, cols[ColProcessed], formatFlag(u.Processed))
		setField(rec, cols[ColProblematic], formatFlag(u.Problematic))
		out[row-1] = rec
	}
	return out, nil
}

func setField(rec []string, idx int, v string) {
	if idx < 0 || idx >= len(rec) {
		return
	}
	rec[idx] = v
}
