// Package render writes fit results as JSON, Markdown, terminal summaries
// and PNG charts.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/odcfit/internal/model"
)

// Renderer writes fit reports
type Renderer struct {
	out         io.Writer
	chartWidth  int
	chartHeight int
}

// NewRenderer creates a renderer that prints summaries to out
func NewRenderer(out io.Writer, cfg model.OutputConfig) *Renderer {
	if out == nil {
		out = os.Stdout
	}
	return &Renderer{
		out:         out,
		chartWidth:  cfg.ChartWidth,
		chartHeight: cfg.ChartHeight,
	}
}

// RenderJSON writes v as indented JSON to path
func (r *Renderer) RenderJSON(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write JSON: %w", err)
	}
	return nil
}

// RenderMarkdown writes the Markdown form of a single fit to path
func (r *Renderer) RenderMarkdown(result *model.FitResult, path string) error {
	return os.WriteFile(path, []byte(FitMarkdown(result)), 0644)
}

// RenderBatchMarkdown writes the Markdown form of a batch report to path
func (r *Renderer) RenderBatchMarkdown(report *model.BatchReport, path string) error {
	return os.WriteFile(path, []byte(BatchMarkdown(report)), 0644)
}

// FitMarkdown formats one fit
func FitMarkdown(result *model.FitResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Patient %d: %s fit\n\n", result.PatientID, result.Model)
	fmt.Fprintf(&b, "- **MSE (%s):** %.4f\n", result.EvalMode, result.MSE)
	fmt.Fprintf(&b, "- **Samples:** %d included, %d excluded\n", result.SampleCount, len(result.Excluded))
	if result.Cached {
		b.WriteString("- **Source:** cache\n")
	}
	b.WriteString("\n## Parameters\n\n")
	b.WriteString("| Parameter | Value |\n|---|---|\n")
	for i, name := range result.ParamNames {
		if i < len(result.Params) {
			fmt.Fprintf(&b, "| %s | %.4f |\n", name, result.Params[i])
		}
	}

	b.WriteString("\n## Measurements\n\n")
	b.WriteString("| # | Insp. O2 (%) | SpO2 (%) | Used | Note |\n|---|---|---|---|---|\n")
	for _, m := range mergeBySequence(result.Included, result.Excluded) {
		used := "no"
		if m.Included {
			used = "yes"
		}
		note := ""
		if m.Synthetic {
			note = "anchor"
		}
		fmt.Fprintf(&b, "| %d | %.2f | %.2f | %s | %s |\n", m.Sequence, m.InspiredO2, m.SpO2, used, note)
	}
	return b.String()
}

// BatchMarkdown formats a batch report. Problematic patients are flagged
// red and ideal ones green.
func BatchMarkdown(report *model.BatchReport) string {
	var b strings.Builder

	b.WriteString("# Oxygen dissociation fits\n\n")
	fmt.Fprintf(&b, "- **Run:** `%s`\n", report.RunID)
	fmt.Fprintf(&b, "- **Generated:** %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "- **Dataset:** %s\n", report.Dataset)
	fmt.Fprintf(&b, "- **Model:** %s (%s)\n", report.Model, report.EvalMode)
	fmt.Fprintf(&b, "- **Fitted:** %d/%d\n\n", report.Succeeded(), len(report.Patients))

	b.WriteString("| | Patient | Status | MSE | Parameters | Failure |\n|---|---|---|---|---|---|\n")
	for _, p := range report.Patients {
		mse, params := "-", "-"
		if p.Result != nil {
			mse = fmt.Sprintf("%.4f", p.Result.MSE)
			params = formatParams(p.Result)
		}
		failure := "-"
		if p.Failure != "" {
			failure = p.Failure
		}
		fmt.Fprintf(&b, "| %s | %d | %s | %s | %s | %s |\n", flag(p), p.PatientID, p.Status, mse, params, failure)
	}
	return b.String()
}

func flag(p model.PatientFit) string {
	switch {
	case p.Problematic:
		return "🔴"
	case p.Ideal:
		return "🟢"
	default:
		return ""
	}
}

func formatParams(result *model.FitResult) string {
	parts := make([]string, 0, len(result.Params))
	for i, v := range result.Params {
		name := fmt.Sprintf("p%d", i)
		if i < len(result.ParamNames) {
			name = result.ParamNames[i]
		}
		parts = append(parts, fmt.Sprintf("%s=%.3f", name, v))
	}
	return strings.Join(parts, ", ")
}

// mergeBySequence interleaves two partitions back into sequence order
func mergeBySequence(a, b []model.Measurement) []model.Measurement {
	out := make([]model.Measurement, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Sequence <= b[j].Sequence {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// RenderSummary prints a short human summary of one fit
func (r *Renderer) RenderSummary(result *model.FitResult) {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(r.out, "  Patient %d: %s fit\n", result.PatientID, result.Model)
	fmt.Fprintln(r.out, "═══════════════════════════════════════════════════════════")
	fmt.Fprintln(r.out)
	for i, name := range result.ParamNames {
		if i < len(result.Params) {
			fmt.Fprintf(r.out, "  %-4s %10.4f\n", name, result.Params[i])
		}
	}
	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "  MSE (%s): %.4f\n", result.EvalMode, result.MSE)
	fmt.Fprintf(r.out, "  Samples:  %d included, %d excluded\n", result.SampleCount, len(result.Excluded))
	if result.Cached {
		fmt.Fprintln(r.out, "  (from cache)")
	}
	fmt.Fprintln(r.out)
}

// RenderBatchSummary prints per-patient outcome lines and totals
func (r *Renderer) RenderBatchSummary(report *model.BatchReport) {
	fmt.Fprintln(r.out)
	for _, p := range report.Patients {
		if p.Result != nil {
			fmt.Fprintf(r.out, "✓ patient %d: MSE %.4f (%s)\n", p.PatientID, p.Result.MSE, formatParams(p.Result))
		} else {
			fmt.Fprintf(r.out, "✗ patient %d: %s\n", p.PatientID, p.Error)
		}
	}
	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "Fitted %d/%d patients (run %s)\n", report.Succeeded(), len(report.Patients), report.RunID)
}
