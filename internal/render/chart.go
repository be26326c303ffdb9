package render

import (
	"fmt"
	"io"
	"os"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/ppiankov/odcfit/internal/model"
)

var (
	curveColor    = drawing.Color{R: 200, G: 30, B: 45, A: 255}
	includedColor = chart.ColorBlue
	excludedColor = drawing.Color{R: 150, G: 150, B: 150, A: 255}
	anchorColor   = drawing.Color{R: 255, G: 165, B: 0, A: 255}
)

// Chart builds the plot of a fit: the curve, included and excluded
// measurements, and any anchors.
func (r *Renderer) Chart(result *model.FitResult) *chart.Chart {
	var series []chart.Series

	if len(result.Curve) > 0 {
		xs := make([]float64, len(result.Curve))
		ys := make([]float64, len(result.Curve))
		for i, p := range result.Curve {
			xs[i], ys[i] = p.X, p.Y
		}
		series = append(series, chart.ContinuousSeries{
			Name:    fmt.Sprintf("%s fit", result.Model),
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: curveColor, StrokeWidth: 2.0},
		})
	}

	var included, excluded, anchors []model.Measurement
	for _, m := range mergeBySequence(result.Included, result.Excluded) {
		switch {
		case m.Synthetic:
			anchors = append(anchors, m)
		case m.Included:
			included = append(included, m)
		default:
			excluded = append(excluded, m)
		}
	}
	series = appendDots(series, "included", included, includedColor)
	series = appendDots(series, "excluded", excluded, excludedColor)
	series = appendDots(series, "anchor", anchors, anchorColor)

	width, height := r.chartWidth, r.chartHeight
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 500
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("Patient %d: %s, MSE %.3f", result.PatientID, result.Model, result.MSE),
		Width:  width,
		Height: height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10},
		},
		XAxis: chart.XAxis{
			Name:  "Insp. O2 (%)",
			Style: chart.Style{FontSize: 10.0},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.0f", v.(float64))
			},
		},
		YAxis: chart.YAxis{
			Name:  "SpO2 (%)",
			Style: chart.Style{FontSize: 10.0},
			Range: &chart.ContinuousRange{Min: 0, Max: 105},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return &graph
}

func appendDots(series []chart.Series, name string, ms []model.Measurement, color drawing.Color) []chart.Series {
	if len(ms) == 0 {
		return series
	}
	xs := make([]float64, len(ms))
	ys := make([]float64, len(ms))
	for i, m := range ms {
		xs[i], ys[i] = m.InspiredO2, m.SpO2
	}
	return append(series, chart.ContinuousSeries{
		Name:    name,
		XValues: xs,
		YValues: ys,
		Style: chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    5,
			DotColor:    color,
		},
	})
}

// WritePNG renders the chart of result to w
func (r *Renderer) WritePNG(result *model.FitResult, w io.Writer) error {
	if err := r.Chart(result).Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// RenderPNG writes the chart of result to path
func (r *Renderer) RenderPNG(result *model.FitResult, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close chart: %w", closeErr)
		}
	}()
	return r.WritePNG(result, f)
}
