package members

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/vestige/pkg/facts"
	"github.com/panbanda/vestige/pkg/library"
	"github.com/panbanda/vestige/pkg/models"
	"github.com/panbanda/vestige/pkg/parser"
)

func analyze(t *testing.T, src string, lang parser.Language, path string) []models.Diagnostic {
	t.Helper()
	p := parser.New()
	defer p.Close()

	res, err := p.Parse([]byte(src), lang, path)
	require.NoError(t, err)

	return New(facts.Build(res), library.Default()).Analyze()
}

func analyzeC(t *testing.T, src string) []models.Diagnostic {
	t.Helper()
	return analyze(t, src, parser.LangC, "test.c")
}

func analyzeCPP(t *testing.T, src string) []models.Diagnostic {
	t.Helper()
	return analyze(t, src, parser.LangCPP, "test.cpp")
}

func TestAllMembersUnused(t *testing.T) {
	src := `struct abc {
    int a;
    int b;
    int c;
};
`
	diags := analyzeC(t, src)
	require.Len(t, diags, 3)

	wantSymbols := []string{"abc::a", "abc::b", "abc::c"}
	for i, d := range diags {
		assert.Equal(t, models.RuleUnusedStructMember, d.Rule)
		assert.Equal(t, models.SeverityStyle, d.Severity)
		assert.Equal(t, wantSymbols[i], d.Symbol)
	}
	assert.Equal(t, "struct member 'abc::a' is never used.", diags[0].Message)
}

func TestWriteCountsAsUse(t *testing.T) {
	src := `struct AB {
    int a;
    int b;
};
void reset(struct AB *ab)
{
    ab->a = 0;
}
`
	diags := analyzeC(t, src)
	require.Len(t, diags, 1)
	assert.Equal(t, "AB::b", diags[0].Symbol)
	assert.Equal(t, "struct member 'AB::b' is never used.", diags[0].Message)
}

func TestReadCountsAsUse(t *testing.T) {
	src := `struct P {
    int x;
    int y;
};
int getx(struct P *p)
{
    return p->x;
}
`
	diags := analyzeC(t, src)
	require.Len(t, diags, 1)
	assert.Equal(t, "P::y", diags[0].Symbol)
}

func TestDotAccessOnValue(t *testing.T) {
	src := `struct P {
    int x;
    int y;
};
int f(void)
{
    struct P p;
    p.y = 3;
    return p.y;
}
`
	diags := analyzeC(t, src)
	require.Len(t, diags, 1)
	assert.Equal(t, "P::x", diags[0].Symbol)
}

func TestSizeofSuppressesWholeType(t *testing.T) {
	src := `struct S {
    int a;
    int b;
};
unsigned long size(void)
{
    return sizeof(struct S);
}
`
	diags := analyzeC(t, src)
	assert.Empty(t, diags)
}

func TestCastSuppressesWholeType(t *testing.T) {
	src := `struct S {
    int a;
};
void f(void *raw)
{
    struct S *s = (struct S *)raw;
    (void)s;
}
`
	diags := analyzeC(t, src)
	assert.Empty(t, diags)
}

func TestFileScopeInstanceSuppresses(t *testing.T) {
	src := `struct G {
    int x;
};
struct G g_instance;
`
	diags := analyzeC(t, src)
	assert.Empty(t, diags)
}

func TestStaticFileScopeInstanceDoesNotSuppress(t *testing.T) {
	src := `struct G {
    int x;
};
static struct G g_instance;
`
	diags := analyzeC(t, src)
	require.Len(t, diags, 1)
	assert.Equal(t, "G::x", diags[0].Symbol)
}

func TestEscapeToUnknownFunctionSuppresses(t *testing.T) {
	src := `struct S {
    int a;
    int b;
};
void sink(struct S *);
void f(void)
{
    struct S s;
    sink(&s);
}
`
	diags := analyzeC(t, src)
	assert.Empty(t, diags)
}

func TestDesignatedInitializer(t *testing.T) {
	src := `struct S {
    int a;
    int b;
};
static struct S s = { .a = 1 };
int use(void)
{
    return s.a;
}
`
	diags := analyzeC(t, src)
	require.Len(t, diags, 1)
	assert.Equal(t, "S::b", diags[0].Symbol)
}

func TestPositionalInitializerMarksAll(t *testing.T) {
	src := `struct S {
    int a;
    int b;
};
int f(void)
{
    struct S s = { 1, 2 };
    return s.a;
}
`
	diags := analyzeC(t, src)
	assert.Empty(t, diags)
}

func TestUnionMemberLabel(t *testing.T) {
	src := `union U {
    int i;
    float f;
};
`
	diags := analyzeC(t, src)
	require.Len(t, diags, 2)
	assert.Equal(t, "union member 'U::i' is never used.", diags[0].Message)
	assert.Equal(t, "union member 'U::f' is never used.", diags[1].Message)
}

func TestClassMemberLabelAndMethodBodies(t *testing.T) {
	src := `class Counter {
public:
    int bump() { return ++count; }
private:
    int count;
    int spare;
};
`
	diags := analyzeCPP(t, src)
	require.Len(t, diags, 1)
	assert.Equal(t, "class member 'Counter::spare' is never used.", diags[0].Message)
}

func TestInheritancePropagation(t *testing.T) {
	src := `struct Base {
    int b;
};
struct Derived : Base {
    int d;
};
void sink(Derived *);
void f()
{
    Derived obj;
    sink(&obj);
}
`
	diags := analyzeCPP(t, src)
	assert.Empty(t, diags)
}

func TestBitfieldMembers(t *testing.T) {
	src := `struct Flags {
    unsigned a : 1;
    unsigned b : 1;
};
int f(struct Flags *fl)
{
    return fl->a;
}
`
	diags := analyzeC(t, src)
	require.Len(t, diags, 1)
	assert.Equal(t, "Flags::b", diags[0].Symbol)
}

func TestQualifiedStaticMemberAccess(t *testing.T) {
	src := `struct Cfg {
    static int limit;
    int other;
};
int f()
{
    return Cfg::limit;
}
`
	diags := analyzeCPP(t, src)
	require.Len(t, diags, 1)
	assert.Equal(t, "Cfg::other", diags[0].Symbol)
}

func TestStructuredBindingUsesWholeType(t *testing.T) {
	src := `struct Pair {
    int a;
    int b;
};
int use(int v);
int decompose(Pair pr)
{
    auto [x, y] = pr;
    return use(x);
}
`
	diags := analyzeCPP(t, src)
	assert.Empty(t, diags)
}

func TestStructuredBindingFromUnknownValue(t *testing.T) {
	src := `struct Pair {
    int a;
    int b;
};
Pair make();
int first()
{
    auto [x, y] = make();
    return x;
}
`
	diags := analyzeCPP(t, src)
	assert.Empty(t, diags)
}

func TestDeclarationOrderAcrossTypes(t *testing.T) {
	src := `struct First {
    int a;
};
struct Second {
    int b;
};
`
	diags := analyzeC(t, src)
	require.Len(t, diags, 2)
	assert.Equal(t, "First::a", diags[0].Symbol)
	assert.Equal(t, "Second::b", diags[1].Symbol)
}
