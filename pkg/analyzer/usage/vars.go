package usage

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// TypeCategory is the coarse shape of a declared variable's type.
type TypeCategory int

const (
	CategoryValue TypeCategory = iota
	CategoryPointer
	CategoryArray
	CategoryReference
	CategoryAggregate
	CategoryUnknown
)

const (
	aliasNone    = -1
	aliasUnknown = -2
)

// varEntry is one tracked variable: a parameter or a lexical local
// declaration. Shadowed redeclarations get independent entries.
type varEntry struct {
	id   int
	name string

	nameNode *sitter.Node // identifier token of the declarator
	initNode *sitter.Node // initializer value, nil when absent

	typeName string
	category TypeCategory

	isParam    bool
	static     bool
	extern     bool
	attrUnused bool
	// unknownType marks variables whose type the unit neither defines nor
	// the library describes; they are suppressed with a coverage note.
	unknownType bool

	// alias holds the forward-monotonic alias lattice: aliasNone, the id
	// of a known local, or aliasUnknown.
	alias int

	// Accumulated facts from the event walk.
	escaped   bool
	allocated bool
	freed     bool
	derefed   bool
	reads     int
	writes    int
}

// builtinTypedefs are standard type names accepted without a definition in
// the unit.
var builtinTypedefs = map[string]bool{
	"size_t": true, "ssize_t": true, "ptrdiff_t": true, "wchar_t": true,
	"int8_t": true, "int16_t": true, "int32_t": true, "int64_t": true,
	"uint8_t": true, "uint16_t": true, "uint32_t": true, "uint64_t": true,
	"intptr_t": true, "uintptr_t": true, "intmax_t": true, "uintmax_t": true,
	"bool": true, "FILE": true, "va_list": true, "time_t": true,
	"clock_t": true, "off_t": true, "pid_t": true, "uid_t": true,
	"gid_t": true, "DIR": true, "jmp_buf": true, "fpos_t": true,
	"errno_t": true, "sig_atomic_t": true,
}

// typeOf categorizes the type node of a declaration and resolves whether
// the analyzer knows enough about it to report on its variables.
func (an *analysis) typeOf(typeNode *sitter.Node) (name string, category TypeCategory, unknown bool) {
	if typeNode == nil {
		return "", CategoryUnknown, true
	}

	name = an.text(typeNode)
	switch typeNode.Type() {
	case "primitive_type", "sized_type_specifier":
		return name, CategoryValue, false
	case "enum_specifier":
		return name, CategoryValue, false
	case "struct_specifier", "union_specifier", "class_specifier":
		return strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(strings.TrimPrefix(name, "struct"), "union"), "class")), CategoryAggregate, false
	case "type_identifier":
		if an.unit.DefinesType(name) {
			if an.unit.AggregatesByName[name] != nil {
				return name, CategoryAggregate, false
			}
			return name, CategoryValue, false
		}
		if builtinTypedefs[name] {
			return name, CategoryValue, false
		}
		if an.lib.IsValueType(name) {
			return name, CategoryAggregate, false
		}
		return name, CategoryUnknown, true
	case "qualified_identifier", "template_type":
		if an.lib.IsValueType(name) {
			return name, CategoryAggregate, false
		}
		return name, CategoryUnknown, true
	case "placeholder_type_specifier": // auto
		return name, CategoryValue, false
	}
	return name, CategoryUnknown, true
}

// declareVar adds a tracked variable to the table and binds it in the
// innermost scope.
func (an *analysis) declareVar(name string, nameNode *sitter.Node, typeName string, cat TypeCategory, opts varOpts) *varEntry {
	v := &varEntry{
		id:          len(an.vars),
		name:        name,
		nameNode:    nameNode,
		typeName:    typeName,
		category:    cat,
		isParam:     opts.param,
		static:      opts.static_,
		extern:      opts.extern_,
		attrUnused:  opts.attrUnused,
		unknownType: cat == CategoryUnknown,
		alias:       aliasNone,
	}
	an.vars = append(an.vars, v)
	if len(an.scopes) > 0 {
		an.scopes[len(an.scopes)-1][name] = v.id
	}
	return v
}

type varOpts struct {
	param      bool
	static_    bool
	extern_    bool
	attrUnused bool
}

// resolve finds the innermost binding of name, or nil.
func (an *analysis) resolve(name string) *varEntry {
	for i := len(an.scopes) - 1; i >= 0; i-- {
		if id, ok := an.scopes[i][name]; ok {
			return an.vars[id]
		}
	}
	return nil
}

func (an *analysis) pushScope() {
	an.scopes = append(an.scopes, make(map[string]int))
}

func (an *analysis) popScope() {
	an.scopes = an.scopes[:len(an.scopes)-1]
}

// bindAlias updates the alias lattice monotonically: first binding records
// the target, any rebinding degrades to unknown.
func (v *varEntry) bindAlias(target int) {
	switch v.alias {
	case aliasNone:
		v.alias = target
	case target:
	default:
		v.alias = aliasUnknown
	}
}
