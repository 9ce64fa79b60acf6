package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/panbanda/vestige/pkg/models"
)

// DiagnosticReport renders an analysis report: one line per diagnostic in
// emission order, followed by a per-rule summary table.
type DiagnosticReport struct {
	Report *models.Report
}

// NewDiagnosticReport wraps a report for rendering.
func NewDiagnosticReport(r *models.Report) *DiagnosticReport {
	return &DiagnosticReport{Report: r}
}

func (r *DiagnosticReport) RenderData() any {
	return r.Report
}

func (r *DiagnosticReport) RenderText(w io.Writer, colored bool) error {
	for _, d := range r.Report.Diagnostics {
		sev := string(d.Severity)
		if colored {
			sev = severityColor(d.Severity, sev)
		}
		fmt.Fprintf(w, "%s: %s: %s [%s]\n", d.Location, sev, d.Message, d.Rule)
	}

	if len(r.Report.Diagnostics) > 0 {
		fmt.Fprintln(w)
	}

	return r.summaryTable().RenderText(w, colored)
}

func (r *DiagnosticReport) RenderMarkdown(w io.Writer) error {
	if len(r.Report.Diagnostics) > 0 {
		rows := make([][]string, 0, len(r.Report.Diagnostics))
		for _, d := range r.Report.Diagnostics {
			rows = append(rows, []string{
				d.Location.String(),
				string(d.Severity),
				string(d.Rule),
				d.Message,
			})
		}
		diags := NewTable("Diagnostics", []string{"Location", "Severity", "Rule", "Message"}, rows, nil, nil)
		if err := diags.RenderMarkdown(w); err != nil {
			return err
		}
	}

	return r.summaryTable().RenderMarkdown(w)
}

// summaryTable builds the per-rule count table with a files footer.
func (r *DiagnosticReport) summaryTable() *Table {
	counts := r.Report.CountByRule()

	order := []models.Rule{
		models.RuleUnusedStructMember,
		models.RuleUnusedVariable,
		models.RuleUnreadVariable,
		models.RuleUnassignedVariable,
		models.RuleUnusedAllocatedMemory,
		models.RuleInsufficientTypeInfo,
	}

	var rows [][]string
	for _, rule := range order {
		if counts[rule] > 0 {
			rows = append(rows, []string{string(rule), fmt.Sprintf("%d", counts[rule])})
		}
	}

	footer := []string{
		fmt.Sprintf("%d files", r.Report.FilesTotal),
		fmt.Sprintf("%d findings", r.Report.StyleCount()),
	}
	if r.Report.FilesFailed > 0 {
		footer[0] = fmt.Sprintf("%d files (%d failed)", r.Report.FilesTotal, r.Report.FilesFailed)
	}

	return NewTable("Summary", []string{"Rule", "Count"}, rows, footer, r.Report)
}

func severityColor(sev models.Severity, text string) string {
	switch sev {
	case models.SeverityStyle:
		return color.YellowString(text)
	case models.SeverityInformation:
		return color.CyanString(text)
	default:
		return text
	}
}
