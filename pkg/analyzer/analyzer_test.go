package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/vestige/pkg/library"
	"github.com/panbanda/vestige/pkg/models"
	"github.com/panbanda/vestige/pkg/parser"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAnalyzeFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.c", `void foo()
{
    int unused;
}
`)
	b := writeFile(t, dir, "b.c", `int bar(void)
{
    return 0;
}
`)

	report, err := New().AnalyzeFiles(context.Background(), []string{a, b})
	require.NoError(t, err)

	assert.Equal(t, 2, report.FilesTotal)
	assert.Equal(t, 0, report.FilesFailed)
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, models.RuleUnusedVariable, report.Diagnostics[0].Rule)
	assert.Equal(t, a, report.Diagnostics[0].Location.File)
}

func TestAnalyzeFilesCountsFailures(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.c", "int x;\n")
	missing := filepath.Join(dir, "missing.c")

	var errPaths []string
	a := New(WithJobs(1), WithErrorHandler(func(path string, err error) {
		errPaths = append(errPaths, path)
	}))

	report, err := a.AnalyzeFiles(context.Background(), []string{good, missing})
	require.NoError(t, err)

	assert.Equal(t, 2, report.FilesTotal)
	assert.Equal(t, 1, report.FilesFailed)
	assert.Equal(t, []string{missing}, errPaths)
}

func TestAnalyzeFilesProgress(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "a.c", "int a;\n"),
		writeFile(t, dir, "b.c", "int b;\n"),
		writeFile(t, dir, "c.c", "int c;\n"),
	}

	var ticks atomic.Int64
	a := New(WithProgress(func() { ticks.Add(1) }))

	_, err := a.AnalyzeFiles(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, int64(3), ticks.Load())
}

func TestAnalyzeFilesOrderStable(t *testing.T) {
	dir := t.TempDir()
	var files []string
	names := []string{"z.c", "m.c", "a.c"}
	for _, n := range names {
		files = append(files, writeFile(t, dir, n, `void `+n[:1]+`()
{
    int dead;
}
`))
	}

	report, err := New().AnalyzeFiles(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, report.Diagnostics, 3)
	for i, f := range files {
		assert.Equal(t, f, report.Diagnostics[i].Location.File, "diagnostics follow input file order")
	}
}

func TestAnalyzeSource(t *testing.T) {
	p := parser.New()
	defer p.Close()

	a := New(WithLibrary(library.Default()))
	diags, err := a.AnalyzeSource(p, []byte(`struct abc {
    int a;
    int b;
    int c;
};
`), parser.LangC, "inline.c")
	require.NoError(t, err)
	require.Len(t, diags, 3)
	for _, d := range diags {
		assert.Equal(t, models.RuleUnusedStructMember, d.Rule)
	}
}

func TestMembersReportedBeforeFunctions(t *testing.T) {
	p := parser.New()
	defer p.Close()

	diags, err := New().AnalyzeSource(p, []byte(`void foo()
{
    int dead;
}
struct tail {
    int t;
};
`), parser.LangC, "order.c")
	require.NoError(t, err)
	require.Len(t, diags, 2)
	assert.Equal(t, models.RuleUnusedStructMember, diags[0].Rule)
	assert.Equal(t, models.RuleUnusedVariable, diags[1].Rule)
}

func TestAnalyzeFilesCancelled(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, dir, "a.c", "int a;\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := New().AnalyzeFiles(ctx, []string{f})
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesFailed)
	assert.Empty(t, report.Diagnostics)
}
