// Package report - Presentation of fused counts as JSON responses and tables.
package report

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/multierr"

	"github.com/nvr-ai/go-multiview/fusion"
)

// Response is the JSON body returned for one fusion cycle.
type Response struct {
	RequestID string `json:"request_id,omitempty"`
	Strategy  string `json:"strategy"`
	// TotalProducts is bottle + can.
	TotalProducts int `json:"total_products"`
	// CombinedResults is the bill: fused counts without the reserved labels.
	CombinedResults fusion.Counts `json:"combined_results"`
	// Fused holds every fused count, reserved labels included.
	Fused         fusion.Counts          `json:"fused"`
	Totals        fusion.ContainerTotals `json:"totals"`
	CombinedTotal int                    `json:"combined_total"`
	ConsistencyOK bool                   `json:"consistency_ok"`
	Diagnostic    string                 `json:"diagnostic,omitempty"`
	Fallbacks     []string               `json:"fallbacks,omitempty"`
	Duplicates    int                    `json:"duplicates,omitempty"`
	CameraErrors  []string               `json:"camera_errors,omitempty"`
	DurationMS    float64                `json:"duration_ms"`
}

// Bill returns the beverage-only view of a fused result.
func Bill(fused fusion.Counts, reserved fusion.ReservedLabels) fusion.Counts {
	return fused.Without(reserved.Labels()...)
}

// NewResponse builds the response for an outcome.
//
// Arguments:
//   - out: The fusion outcome.
//   - reserved: The container labels excluded from the bill.
//   - errs: The per-camera errors returned with the outcome, or nil.
//
// Returns:
//   - Response: The response body.
func NewResponse(out *fusion.Outcome, reserved fusion.ReservedLabels, errs error) Response {
	r := Response{
		Strategy:        string(out.Strategy),
		TotalProducts:   out.Consistency.Totals.Sum(),
		CombinedResults: Bill(out.Fused, reserved),
		Fused:           out.Fused.Clone(),
		Totals:          out.Consistency.Totals,
		CombinedTotal:   out.Consistency.CombinedTotal,
		ConsistencyOK:   out.Consistency.OK,
		Diagnostic:      out.Consistency.Diagnostic,
		Fallbacks:       out.Fallbacks,
		Duplicates:      out.Duplicates,
		DurationMS:      float64(out.Duration.Microseconds()) / 1000,
	}
	for _, err := range multierr.Errors(errs) {
		r.CameraErrors = append(r.CameraErrors, err.Error())
	}
	return r
}

// RenderTable renders the fused counts as a Label/Quantity table followed by
// the container totals and, on mismatch, a warning line.
func RenderTable(out *fusion.Outcome) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Label", "Quantity"})
	for _, l := range out.Fused.Labels() {
		t.AppendRow(table.Row{string(l), out.Fused[l]})
	}
	t.AppendFooter(table.Row{"Total", out.Consistency.CombinedTotal})

	var b strings.Builder
	b.WriteString(t.Render())
	b.WriteString("\n")
	fmt.Fprintf(&b, "Bottles: %d  Cans: %d  Products: %d\n",
		out.Consistency.Totals.Bottle, out.Consistency.Totals.Can, out.Consistency.Totals.Sum())
	if !out.Consistency.OK {
		fmt.Fprintf(&b, "Warning: %s\n", out.Consistency.Diagnostic)
	}
	for _, pair := range out.Fallbacks {
		fmt.Fprintf(&b, "Fallback: %s used max heuristic\n", pair)
	}
	return b.String()
}
