// Package analyzer wires the analysis pipeline for C/C++ translation
// units: parse, build the symbol fact base, classify function purity, then
// run the member-usage and variable-usage analyses. Member diagnostics are
// emitted before per-function diagnostics; within that, ordering follows
// the analyses' own deterministic emission so repeated runs over unchanged
// input produce byte-identical reports.
package analyzer

import (
	"context"

	"github.com/panbanda/vestige/internal/fileproc"
	"github.com/panbanda/vestige/pkg/analyzer/members"
	"github.com/panbanda/vestige/pkg/analyzer/purity"
	"github.com/panbanda/vestige/pkg/analyzer/usage"
	"github.com/panbanda/vestige/pkg/facts"
	"github.com/panbanda/vestige/pkg/library"
	"github.com/panbanda/vestige/pkg/models"
	"github.com/panbanda/vestige/pkg/parser"
)

// Analyzer runs the full unused-value analysis over files.
type Analyzer struct {
	lib        *library.Library
	jobs       int
	onProgress fileproc.ProgressFunc
	onError    fileproc.ErrorFunc
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLibrary sets the external-function knowledge base.
func WithLibrary(lib *library.Library) Option {
	return func(a *Analyzer) {
		a.lib = lib
	}
}

// WithJobs sets the parallel worker count; <= 0 selects the default.
func WithJobs(n int) Option {
	return func(a *Analyzer) {
		a.jobs = n
	}
}

// WithProgress sets a callback invoked after each analyzed file.
func WithProgress(fn fileproc.ProgressFunc) Option {
	return func(a *Analyzer) {
		a.onProgress = fn
	}
}

// WithErrorHandler sets a callback invoked for files that fail to parse.
func WithErrorHandler(fn fileproc.ErrorFunc) Option {
	return func(a *Analyzer) {
		a.onError = fn
	}
}

// New creates an analyzer with the builtin library knowledge unless
// overridden.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{lib: library.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type fileResult struct {
	path  string
	diags []models.Diagnostic
}

// AnalyzeFiles analyzes files in parallel and returns the combined report.
// Diagnostics appear grouped per file in the given file order; per-file
// failures are reported through the error callback and counted, never
// fatal.
func (a *Analyzer) AnalyzeFiles(ctx context.Context, files []string) (*models.Report, error) {
	report := &models.Report{FilesTotal: len(files)}

	procErrs := &fileproc.ProcessingErrors{}
	onError := func(path string, err error) {
		procErrs.Add(path, err)
		if a.onError != nil {
			a.onError(path, err)
		}
	}

	results := fileproc.MapFilesN(files, a.jobs, func(p *parser.Parser, path string) (fileResult, error) {
		if err := ctx.Err(); err != nil {
			return fileResult{}, err
		}
		diags, err := a.AnalyzeFile(p, path)
		if err != nil {
			return fileResult{}, err
		}
		return fileResult{path: path, diags: diags}, nil
	}, a.onProgress, onError)

	for _, r := range results {
		report.Diagnostics = append(report.Diagnostics, r.diags...)
	}
	report.FilesFailed = procErrs.Len()
	return report, nil
}

// AnalyzeFile parses and analyzes one file.
func (a *Analyzer) AnalyzeFile(p *parser.Parser, path string) ([]models.Diagnostic, error) {
	result, err := p.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return a.AnalyzeParsed(result), nil
}

// AnalyzeSource analyzes in-memory source, mainly for tests and tooling.
func (a *Analyzer) AnalyzeSource(p *parser.Parser, source []byte, lang parser.Language, path string) ([]models.Diagnostic, error) {
	result, err := p.Parse(source, lang, path)
	if err != nil {
		return nil, err
	}
	return a.AnalyzeParsed(result), nil
}

// AnalyzeParsed runs the pipeline over an already-parsed translation unit:
// fact base, purity classification, member usage, then variable usage.
func (a *Analyzer) AnalyzeParsed(result *parser.ParseResult) []models.Diagnostic {
	unit := facts.Build(result)

	cls := purity.NewClassifier(unit, a.lib)
	cls.ClassifyAll()

	var diags []models.Diagnostic
	diags = append(diags, members.New(unit, a.lib).Analyze()...)
	diags = append(diags, usage.New(unit, a.lib, cls).Analyze()...)
	return diags
}
