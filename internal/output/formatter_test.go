package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/panbanda/vestige/pkg/models"
)

func sampleReport() *models.Report {
	return &models.Report{
		Diagnostics: []models.Diagnostic{
			{
				Location: models.Location{File: "src/a.c", Line: 3, Column: 9},
				Severity: models.SeverityStyle,
				Rule:     models.RuleUnreadVariable,
				Message:  "Variable 'i' is assigned a value that is never used.",
				Symbol:   "i",
			},
			{
				Location: models.Location{File: "src/b.c", Line: 1, Column: 5},
				Severity: models.SeverityInformation,
				Rule:     models.RuleInsufficientTypeInfo,
				Message:  "Insufficient type information to analyze variable 'h' (type 'H').",
				Symbol:   "h",
			},
		},
		FilesTotal: 2,
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"markdown", FormatMarkdown},
		{"md", FormatMarkdown},
		{"text", FormatText},
		{"", FormatText},
		{"bogus", FormatText},
	}

	for _, tt := range tests {
		if got := ParseFormat(tt.input); got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestFormatterWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")

	f, err := NewFormatter(FormatJSON, path, true)
	if err != nil {
		t.Fatalf("NewFormatter() error = %v", err)
	}
	if f.Colored() {
		t.Error("file output should disable color")
	}

	if err := f.Output(NewDiagnosticReport(sampleReport())); err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(report.Diagnostics) != 2 {
		t.Errorf("JSON round trip lost diagnostics: %v", report.Diagnostics)
	}
	if report.Diagnostics[0].Rule != models.RuleUnreadVariable {
		t.Errorf("Rule = %s, want unreadVariable", report.Diagnostics[0].Rule)
	}
}

func TestDiagnosticReportText(t *testing.T) {
	var buf bytes.Buffer
	r := NewDiagnosticReport(sampleReport())

	if err := r.RenderText(&buf, false); err != nil {
		t.Fatalf("RenderText() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "src/a.c:3:9: style: Variable 'i' is assigned a value that is never used. [unreadVariable]") {
		t.Errorf("missing diagnostic line in:\n%s", out)
	}
	if !strings.Contains(out, "src/b.c:1:5: information:") {
		t.Errorf("missing information diagnostic in:\n%s", out)
	}
	if !strings.Contains(out, "Summary") {
		t.Errorf("missing summary in:\n%s", out)
	}
	if !strings.Contains(out, "2 files") {
		t.Errorf("missing files footer in:\n%s", out)
	}
	if !strings.Contains(out, "1 findings") {
		t.Errorf("style count should exclude information diagnostics:\n%s", out)
	}
}

func TestDiagnosticReportTextOrderStable(t *testing.T) {
	r := NewDiagnosticReport(sampleReport())

	var a, b bytes.Buffer
	if err := r.RenderText(&a, false); err != nil {
		t.Fatalf("RenderText() error = %v", err)
	}
	if err := r.RenderText(&b, false); err != nil {
		t.Fatalf("RenderText() error = %v", err)
	}
	if a.String() != b.String() {
		t.Error("text rendering should be deterministic")
	}
}

func TestDiagnosticReportMarkdown(t *testing.T) {
	var buf bytes.Buffer
	r := NewDiagnosticReport(sampleReport())

	if err := r.RenderMarkdown(&buf); err != nil {
		t.Fatalf("RenderMarkdown() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "## Diagnostics") {
		t.Errorf("missing diagnostics heading in:\n%s", out)
	}
	if !strings.Contains(out, "| src/a.c:3:9 | style | unreadVariable |") {
		t.Errorf("missing diagnostic row in:\n%s", out)
	}
	if !strings.Contains(out, "## Summary") {
		t.Errorf("missing summary heading in:\n%s", out)
	}
}

func TestDiagnosticReportFailedFilesFooter(t *testing.T) {
	report := sampleReport()
	report.FilesFailed = 1

	var buf bytes.Buffer
	if err := NewDiagnosticReport(report).RenderText(&buf, false); err != nil {
		t.Fatalf("RenderText() error = %v", err)
	}
	if !strings.Contains(buf.String(), "(1 failed)") {
		t.Errorf("missing failed count in footer:\n%s", buf.String())
	}
}

func TestEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	r := NewDiagnosticReport(&models.Report{FilesTotal: 5})

	if err := r.RenderText(&buf, false); err != nil {
		t.Fatalf("RenderText() error = %v", err)
	}
	if !strings.Contains(buf.String(), "0 findings") {
		t.Errorf("clean run should report zero findings:\n%s", buf.String())
	}
}

func TestTableRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable("T", []string{"A", "B"}, [][]string{{"1", "2"}}, []string{"x", "y"}, nil)

	if err := table.RenderMarkdown(&buf); err != nil {
		t.Fatalf("RenderMarkdown() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"## T", "| A | B |", "| --- | --- |", "| 1 | 2 |", "| x | y |"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}
}

func TestTableRenderData(t *testing.T) {
	table := NewTable("", []string{"A", "B"}, [][]string{{"1", "2"}}, nil, nil)

	data, ok := table.RenderData().([]map[string]string)
	if !ok {
		t.Fatalf("RenderData() = %T, want []map[string]string", table.RenderData())
	}
	if data[0]["A"] != "1" || data[0]["B"] != "2" {
		t.Errorf("RenderData() = %v", data)
	}
}
