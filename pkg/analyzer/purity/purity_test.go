package purity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/vestige/pkg/facts"
	"github.com/panbanda/vestige/pkg/library"
	"github.com/panbanda/vestige/pkg/parser"
)

func classifierFor(t *testing.T, src string, lang parser.Language) (*Classifier, *facts.TranslationUnit) {
	t.Helper()
	p := parser.New()
	defer p.Close()

	path := "test.c"
	if lang == parser.LangCPP {
		path = "test.cpp"
	}
	res, err := p.Parse([]byte(src), lang, path)
	require.NoError(t, err)

	unit := facts.Build(res)
	c := NewClassifier(unit, library.Default())
	c.ClassifyAll()
	return c, unit
}

func classify(t *testing.T, c *Classifier, unit *facts.TranslationUnit, name string) Result {
	t.Helper()
	fn := unit.Lookup(name)
	require.NotNil(t, fn, "function %q not found in unit", name)
	return c.Classify(fn)
}

func TestPureArithmeticIsClean(t *testing.T) {
	src := `int add(int a, int b)
{
    return a + b;
}
`
	c, unit := classifierFor(t, src, parser.LangC)
	r := classify(t, c, unit, "add")
	assert.Equal(t, Clean, r.Verdict)
	assert.True(t, r.ReturnClean)
}

func TestLocalMutationStaysClean(t *testing.T) {
	src := `int sum(int n)
{
    int acc = 0;
    for (int i = 0; i < n; i++) {
        acc += i;
    }
    return acc;
}
`
	c, unit := classifierFor(t, src, parser.LangC)
	r := classify(t, c, unit, "sum")
	assert.Equal(t, Clean, r.Verdict)
}

func TestGlobalWriteIsDirty(t *testing.T) {
	src := `int counter;
void bump(void)
{
    counter = counter + 1;
}
`
	c, unit := classifierFor(t, src, parser.LangC)
	r := classify(t, c, unit, "bump")
	assert.Equal(t, Dirty, r.Verdict)
}

func TestStaticLocalWriteIsDirty(t *testing.T) {
	src := `int next(void)
{
    static int n = 0;
    n = n + 1;
    return n;
}
`
	c, unit := classifierFor(t, src, parser.LangC)
	r := classify(t, c, unit, "next")
	assert.Equal(t, Dirty, r.Verdict)
}

func TestWriteThroughPointerParam(t *testing.T) {
	src := `void store(int *out, int v)
{
    *out = v;
}
`
	c, unit := classifierFor(t, src, parser.LangC)
	r := classify(t, c, unit, "store")
	assert.Equal(t, Dirty, r.Verdict)
	require.Len(t, r.ParamWritten, 2)
	assert.True(t, r.ParamWritten[0])
	assert.False(t, r.ParamWritten[1])
}

func TestCallToUnknownIsDirty(t *testing.T) {
	src := `void mystery(void);
void wrapper(void)
{
    mystery();
}
`
	c, unit := classifierFor(t, src, parser.LangC)
	r := classify(t, c, unit, "wrapper")
	assert.Equal(t, Dirty, r.Verdict)
}

func TestCallToLibraryPureStaysClean(t *testing.T) {
	src := `#include <string.h>
int len(const char *s)
{
    return strlen(s);
}
`
	c, unit := classifierFor(t, src, parser.LangC)
	r := classify(t, c, unit, "len")
	assert.Equal(t, Clean, r.Verdict)
	assert.True(t, r.ReturnClean)
}

func TestCallToCleanUnitFunction(t *testing.T) {
	src := `int add(int a, int b)
{
    return a + b;
}
int twice(int x)
{
    return add(x, x);
}
`
	c, unit := classifierFor(t, src, parser.LangC)
	r := classify(t, c, unit, "twice")
	assert.Equal(t, Clean, r.Verdict)
}

func TestDirtinessPropagatesToCallers(t *testing.T) {
	src := `int g;
void poke(void)
{
    g = 1;
}
void outer(void)
{
    poke();
}
`
	c, unit := classifierFor(t, src, parser.LangC)
	r := classify(t, c, unit, "outer")
	assert.Equal(t, Dirty, r.Verdict)
}

func TestSelfRecursionAssumedClean(t *testing.T) {
	src := `int fact(int n)
{
    if (n <= 1) {
        return 1;
    }
    return n * fact(n - 1);
}
`
	c, unit := classifierFor(t, src, parser.LangC)
	r := classify(t, c, unit, "fact")
	assert.Equal(t, Clean, r.Verdict)
}

func TestMutualRecursionAssumedClean(t *testing.T) {
	src := `int odd(int n);
int even(int n)
{
    if (n == 0) {
        return 1;
    }
    return odd(n - 1);
}
int odd(int n)
{
    if (n == 0) {
        return 0;
    }
    return even(n - 1);
}
`
	c, unit := classifierFor(t, src, parser.LangC)
	assert.Equal(t, Clean, classify(t, c, unit, "even").Verdict)
	assert.Equal(t, Clean, classify(t, c, unit, "odd").Verdict)
}

func TestInlineAssemblyIsDirty(t *testing.T) {
	src := `void fence(void)
{
    asm volatile("" ::: "memory");
}
`
	c, unit := classifierFor(t, src, parser.LangC)
	r := classify(t, c, unit, "fence")
	assert.Equal(t, Dirty, r.Verdict)
}

func TestAddressOfGlobalIsDirty(t *testing.T) {
	src := `int g;
int *expose(void)
{
    return &g;
}
`
	c, unit := classifierFor(t, src, parser.LangC)
	r := classify(t, c, unit, "expose")
	assert.Equal(t, Dirty, r.Verdict)
}

func TestClassifyNameFallsBackToLibrary(t *testing.T) {
	src := `int noop(void) { return 0; }
`
	c, _ := classifierFor(t, src, parser.LangC)

	r, ok := c.ClassifyName("strlen")
	assert.True(t, ok)
	assert.Equal(t, Clean, r.Verdict)

	r, ok = c.ClassifyName("memcpy")
	assert.True(t, ok)
	assert.Equal(t, Dirty, r.Verdict)

	_, ok = c.ClassifyName("something_nobody_knows")
	assert.False(t, ok)
}

func TestCallHelpers(t *testing.T) {
	src := `int add(int a, int b)
{
    return a + b;
}
`
	c, _ := classifierFor(t, src, parser.LangC)
	assert.True(t, c.CallSideEffectFree("add"))
	assert.True(t, c.CallReturnClean("add"))
	assert.False(t, c.CallSideEffectFree("unseen"))
}

func TestTypeConstructionValueTypes(t *testing.T) {
	src := `struct Plain {
    int x;
};
`
	c, _ := classifierFor(t, src, parser.LangCPP)
	assert.True(t, c.TypeConstructionSideEffectFree("Plain"))
	assert.True(t, c.TypeConstructionSideEffectFree("std::string"))
	assert.False(t, c.TypeConstructionSideEffectFree("UnknownClass"))
}

func TestTypeConstructionWithDirtyConstructor(t *testing.T) {
	src := `int g;
class Noisy {
public:
    Noisy() { g = 1; }
};
class Quiet {
public:
    Quiet() {}
    int value() { return 0; }
};
`
	c, _ := classifierFor(t, src, parser.LangCPP)
	assert.False(t, c.TypeConstructionSideEffectFree("Noisy"))
	assert.True(t, c.TypeConstructionSideEffectFree("Quiet"))
}
