// Package facts builds the read-only symbol fact base for one translation
// unit: function definitions, aggregate types with their members, and
// file-scope variables. The analyzers consume this instead of re-deriving
// symbol structure from the raw AST.
package facts

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/vestige/pkg/parser"
)

// StorageClass describes where a declared variable lives.
type StorageClass int

const (
	StorageAuto StorageClass = iota
	StorageStatic
	StorageExtern
	StorageRegister
)

// AggregateKind distinguishes struct, union and class definitions. The
// labels are part of the diagnostic message contract.
type AggregateKind int

const (
	KindStruct AggregateKind = iota
	KindUnion
	KindClass
)

// Label returns the member-kind label used in diagnostic messages.
func (k AggregateKind) Label() string {
	switch k {
	case KindUnion:
		return "union member"
	case KindClass:
		return "class member"
	default:
		return "struct member"
	}
}

// Param describes one function parameter.
type Param struct {
	Name        string
	NameNode    *sitter.Node
	TypeName    string
	ByPointer   bool
	ByReference bool
	Const       bool
}

// Function describes one function definition with a visible body.
type Function struct {
	ID     int
	Name   string
	Owner  string // enclosing class for C++ methods, empty otherwise
	Node   *sitter.Node
	Body   *sitter.Node
	Params []Param
}

// IsConstructor reports whether the function is a C++ constructor of its
// owning class.
func (f *Function) IsConstructor() bool {
	return f.Owner != "" && f.Name == f.Owner
}

// IsDestructor reports whether the function is a C++ destructor.
func (f *Function) IsDestructor() bool {
	return f.Owner != "" && f.Name == "~"+f.Owner
}

// Member describes one data member of an aggregate.
type Member struct {
	Name     string
	Node     *sitter.Node
	BitField bool
}

// Aggregate describes one struct, union or class definition.
type Aggregate struct {
	Kind    AggregateKind
	Name    string
	Node    *sitter.Node
	Members []*Member
	// HasMethods is set for C++ aggregates with member functions or
	// user-declared special members.
	HasMethods bool
	// Bases lists the names of directly inherited classes.
	Bases []string
}

// TranslationUnit is the fact base for one parsed file.
type TranslationUnit struct {
	Path     string
	Language parser.Language
	Source   []byte
	Root     *sitter.Node

	Functions       []*Function
	FunctionsByName map[string]*Function

	// Aggregates in first-seen order; the member analyzer reports in this
	// order.
	Aggregates       []*Aggregate
	AggregatesByName map[string]*Aggregate

	// Globals maps file-scope variable names to their storage class.
	Globals map[string]StorageClass

	// TypeNames holds every type name the unit defines (aggregates,
	// enums, typedefs, using aliases).
	TypeNames map[string]bool
}

// Lookup returns the function definition for name, or nil.
func (tu *TranslationUnit) Lookup(name string) *Function {
	return tu.FunctionsByName[name]
}

// IsGlobal reports whether name is a file-scope variable of the unit.
func (tu *TranslationUnit) IsGlobal(name string) bool {
	_, ok := tu.Globals[name]
	return ok
}

// DefinesType reports whether the unit defines the given type name.
func (tu *TranslationUnit) DefinesType(name string) bool {
	return tu.TypeNames[name]
}

// Text returns the source text of a node.
func (tu *TranslationUnit) Text(node *sitter.Node) string {
	return parser.GetNodeText(node, tu.Source)
}
