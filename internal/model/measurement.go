package model

import (
	"fmt"
	"math"
)

// Anchor coordinates shared by every patient. The P50 anchor is 19 mmHg
// converted to inspired O2 percent.
const (
	OriginInspiredO2 = 0.0
	OriginSpO2       = 0.0
	P50InspiredO2    = 9.7
	P50SpO2          = 50.0
)

// Measurement is one (inspired O2, SpO2) observation of a patient
type Measurement struct {
	InspiredO2 float64 `json:"inspired_o2"`         // Insp. O2 (%), 0-100
	SpO2       float64 `json:"spo2"`                // SpO2 (%), 0-100
	Sequence   int     `json:"sequence"`            // 1-based position after sorting by InspiredO2
	Included   bool    `json:"included"`            // Selected for model fitting
	Synthetic  bool    `json:"synthetic,omitempty"` // Session-only anchor, never persisted
	Row        int     `json:"row,omitempty"`       // Backing store row (0 for anchors)
}

// NewMeasurement validates both percentages and returns a measurement
func NewMeasurement(inspiredO2, spo2 float64, included bool) (Measurement, error) {
	if err := checkPercent("inspired O2", inspiredO2); err != nil {
		return Measurement{}, err
	}
	if err := checkPercent("SpO2", spo2); err != nil {
		return Measurement{}, err
	}
	return Measurement{
		InspiredO2: inspiredO2,
		SpO2:       spo2,
		Included:   included,
	}, nil
}

// NewAnchor returns a synthetic anchor point, excluded by default
func NewAnchor(inspiredO2, spo2 float64) Measurement {
	return Measurement{
		InspiredO2: inspiredO2,
		SpO2:       spo2,
		Synthetic:  true,
	}
}

// Anchors returns the two per-patient anchors: (0, 0) and the P50 point
func Anchors() []Measurement {
	return []Measurement{
		NewAnchor(OriginInspiredO2, OriginSpO2),
		NewAnchor(P50InspiredO2, P50SpO2),
	}
}

func checkPercent(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s is not a finite number", name)
	}
	if v < 0 || v > 100 {
		return fmt.Errorf("%s %.2f outside [0, 100]", name, v)
	}
	return nil
}

// Patient holds one patient's ordered measurements and review flags
type Patient struct {
	ID           int           `json:"id"`
	Measurements []Measurement `json:"measurements"`
	Ideal        bool          `json:"is_ideal"`
	Processed    bool          `json:"is_processed"`
	Problematic  bool          `json:"is_problematic"`
}

// StatusLabel describes the review state, e.g. "ideal, not processed"
func (p *Patient) StatusLabel() string {
	label := ""
	if p.Ideal {
		label = "ideal, "
	}
	if p.Processed {
		label += "processed"
	} else {
		label += "not processed"
	}
	if p.Problematic {
		label += ", problematic"
	}
	return label
}

// PatientUpdate is what gets written back for a patient: inclusion flags
// keyed by store row plus the classification flags.
type PatientUpdate struct {
	PatientID   int          `json:"patient_id"`
	Included    map[int]bool `json:"included"` // Row -> selected
	Ideal       bool         `json:"is_ideal"`
	Processed   bool         `json:"is_processed"`
	Problematic bool         `json:"is_problematic"`
}
