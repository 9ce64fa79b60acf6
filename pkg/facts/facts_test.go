package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/vestige/pkg/parser"
)

func build(t *testing.T, src string, lang parser.Language) *TranslationUnit {
	t.Helper()
	p := parser.New()
	defer p.Close()

	path := "test.c"
	if lang == parser.LangCPP {
		path = "test.cpp"
	}
	res, err := p.Parse([]byte(src), lang, path)
	require.NoError(t, err)
	return Build(res)
}

func TestBuildFunctions(t *testing.T) {
	src := `int add(int a, int b)
{
    return a + b;
}
void touch(char *buf, const int &ref)
{
}
`
	unit := build(t, src, parser.LangCPP)
	require.Len(t, unit.Functions, 2)

	add := unit.Lookup("add")
	require.NotNil(t, add)
	assert.Equal(t, 0, add.ID)
	require.Len(t, add.Params, 2)
	assert.Equal(t, "a", add.Params[0].Name)
	assert.Equal(t, "int", add.Params[0].TypeName)
	assert.False(t, add.Params[0].ByPointer)

	touch := unit.Lookup("touch")
	require.NotNil(t, touch)
	require.Len(t, touch.Params, 2)
	assert.True(t, touch.Params[0].ByPointer)
	assert.True(t, touch.Params[1].ByReference)
	assert.True(t, touch.Params[1].Const)
}

func TestBuildMethodOwner(t *testing.T) {
	src := `class Counter {
public:
    Counter() {}
    ~Counter() {}
    int get() { return n; }
private:
    int n;
};
int Counter_free(Counter *c) { return 0; }
`
	unit := build(t, src, parser.LangCPP)

	var ctor, dtor, get *Function
	for _, fn := range unit.Functions {
		switch fn.Name {
		case "Counter":
			ctor = fn
		case "~Counter":
			dtor = fn
		case "get":
			get = fn
		}
	}
	require.NotNil(t, ctor)
	require.NotNil(t, dtor)
	require.NotNil(t, get)

	assert.Equal(t, "Counter", ctor.Owner)
	assert.True(t, ctor.IsConstructor())
	assert.True(t, dtor.IsDestructor())
	assert.Equal(t, "Counter", get.Owner)
	assert.False(t, get.IsConstructor())

	free := unit.Lookup("Counter_free")
	require.NotNil(t, free)
	assert.Empty(t, free.Owner)
}

func TestBuildOutOfLineMethod(t *testing.T) {
	src := `class Box {
public:
    int open();
private:
    int lid;
};
int Box::open()
{
    return lid;
}
`
	unit := build(t, src, parser.LangCPP)
	open := unit.Lookup("open")
	require.NotNil(t, open)
	assert.Equal(t, "Box", open.Owner)
}

func TestBuildAggregates(t *testing.T) {
	src := `struct Point {
    int x;
    int y;
};
union Value {
    int i;
    float f;
};
`
	unit := build(t, src, parser.LangC)
	require.Len(t, unit.Aggregates, 2)

	pt := unit.AggregatesByName["Point"]
	require.NotNil(t, pt)
	assert.Equal(t, KindStruct, pt.Kind)
	require.Len(t, pt.Members, 2)
	assert.Equal(t, "x", pt.Members[0].Name)
	assert.Equal(t, "y", pt.Members[1].Name)
	assert.False(t, pt.HasMethods)

	val := unit.AggregatesByName["Value"]
	require.NotNil(t, val)
	assert.Equal(t, KindUnion, val.Kind)
}

func TestBuildClassWithMethodsAndBases(t *testing.T) {
	src := `class Base {
public:
    int b;
};
class Derived : public Base {
public:
    int value() { return d; }
private:
    int d;
};
`
	unit := build(t, src, parser.LangCPP)

	derived := unit.AggregatesByName["Derived"]
	require.NotNil(t, derived)
	assert.Equal(t, KindClass, derived.Kind)
	assert.True(t, derived.HasMethods)
	assert.Equal(t, []string{"Base"}, derived.Bases)
	require.Len(t, derived.Members, 1)
	assert.Equal(t, "d", derived.Members[0].Name)
}

func TestBuildBitfieldMembers(t *testing.T) {
	src := `struct Flags {
    unsigned a : 1;
    unsigned b : 2;
    unsigned : 5;
};
`
	unit := build(t, src, parser.LangC)
	fl := unit.AggregatesByName["Flags"]
	require.NotNil(t, fl)
	require.Len(t, fl.Members, 2, "unnamed padding bit-field is not a member")
	assert.True(t, fl.Members[0].BitField)
	assert.True(t, fl.Members[1].BitField)
}

func TestBuildAnonymousNestedAggregate(t *testing.T) {
	src := `struct Outer {
    int tag;
    struct {
        int inner_a;
        int inner_b;
    };
};
`
	unit := build(t, src, parser.LangC)
	outer := unit.AggregatesByName["Outer"]
	require.NotNil(t, outer)

	names := make([]string, 0, len(outer.Members))
	for _, m := range outer.Members {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"tag", "inner_a", "inner_b"}, names)
}

func TestBuildGlobals(t *testing.T) {
	src := `int plain;
static int hidden;
extern int elsewhere;
void not_a_var(void);
int f(void)
{
    int local;
    return local;
}
`
	unit := build(t, src, parser.LangC)

	assert.True(t, unit.IsGlobal("plain"))
	assert.Equal(t, StorageAuto, unit.Globals["plain"])
	assert.Equal(t, StorageStatic, unit.Globals["hidden"])
	assert.Equal(t, StorageExtern, unit.Globals["elsewhere"])
	assert.False(t, unit.IsGlobal("not_a_var"), "prototypes are not variables")
	assert.False(t, unit.IsGlobal("local"), "function locals are not globals")
}

func TestBuildTypeNames(t *testing.T) {
	src := `struct S { int a; };
typedef unsigned long word_t;
enum Color { RED, GREEN };
`
	unit := build(t, src, parser.LangC)
	assert.True(t, unit.DefinesType("S"))
	assert.True(t, unit.DefinesType("word_t"))
	assert.True(t, unit.DefinesType("Color"))
	assert.False(t, unit.DefinesType("Missing"))
}

func TestBuildNeverFailsOnBrokenSource(t *testing.T) {
	src := `void broken( {
    int x =
`
	unit := build(t, src, parser.LangC)
	require.NotNil(t, unit)
}
