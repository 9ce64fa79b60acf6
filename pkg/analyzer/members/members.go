// Package members implements whole-translation-unit usage accumulation for
// struct, union and class data members. Usage is a monotonic OR across the
// unit: once a member is proven used it is never re-examined. Anything the
// analysis cannot attribute precisely errs toward marking members used, so
// the reported set never contains false positives.
package members

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/vestige/pkg/facts"
	"github.com/panbanda/vestige/pkg/library"
	"github.com/panbanda/vestige/pkg/models"
	"github.com/panbanda/vestige/pkg/parser"
)

// Analyzer accumulates member usage for one translation unit.
type Analyzer struct {
	unit *facts.TranslationUnit
	lib  *library.Library

	// usedAll suppresses every member of an aggregate: the instance
	// escaped as a whole, its layout was inspected, or it has external
	// linkage.
	usedAll map[string]bool
	// used is the per-member usage flag set, keyed by aggregate name.
	used map[string]map[string]bool
	// varTypes maps declared variable names to the aggregate they
	// instantiate, where resolvable.
	varTypes map[string]string
	// membersByName maps a member name to every aggregate declaring it,
	// for conservative attribution when the base type is unresolvable.
	membersByName map[string][]string
}

// New creates a member-usage analyzer over one fact base.
func New(unit *facts.TranslationUnit, lib *library.Library) *Analyzer {
	a := &Analyzer{
		unit:          unit,
		lib:           lib,
		usedAll:       make(map[string]bool),
		used:          make(map[string]map[string]bool),
		varTypes:      make(map[string]string),
		membersByName: make(map[string][]string),
	}
	for _, agg := range unit.Aggregates {
		a.used[agg.Name] = make(map[string]bool)
		for _, m := range agg.Members {
			a.membersByName[m.Name] = append(a.membersByName[m.Name], agg.Name)
		}
	}
	return a
}

// Analyze runs the accumulation pass and reports members never used
// anywhere in the unit, in declaration order within each type, types in
// first-seen order.
func (a *Analyzer) Analyze() []models.Diagnostic {
	if len(a.unit.Aggregates) == 0 {
		return nil
	}

	a.collectVariableTypes(a.unit.Root)
	a.scan(a.unit.Root)
	a.scanMethodBodies()
	a.applyInheritance()

	var diags []models.Diagnostic
	for _, agg := range a.unit.Aggregates {
		if a.usedAll[agg.Name] {
			continue
		}
		for _, m := range agg.Members {
			if a.used[agg.Name][m.Name] {
				continue
			}
			diags = append(diags, models.Diagnostic{
				Location: models.Location{
					File:   a.unit.Path,
					Line:   parser.Line(m.Node),
					Column: parser.Column(m.Node),
				},
				Severity: models.SeverityStyle,
				Rule:     models.RuleUnusedStructMember,
				Message:  fmt.Sprintf("%s '%s::%s' is never used.", agg.Kind.Label(), agg.Name, m.Name),
				Symbol:   agg.Name + "::" + m.Name,
			})
		}
	}
	return diags
}

// markUsed flags one member; unknown aggregate/member pairs are ignored.
func (a *Analyzer) markUsed(agg, member string) {
	if set, ok := a.used[agg]; ok {
		set[member] = true
	}
}

// markByName flags member in every aggregate declaring it; used when the
// base object's type cannot be resolved.
func (a *Analyzer) markByName(member string) {
	for _, agg := range a.membersByName[member] {
		a.markUsed(agg, member)
	}
}

// collectVariableTypes maps declared variables and parameters to aggregate
// types, and records external-linkage instances.
func (a *Analyzer) collectVariableTypes(node *sitter.Node) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "declaration", "parameter_declaration", "field_declaration":
		aggName := a.typeAggregate(node.ChildByFieldName("type"))
		if aggName != "" {
			for i := range int(node.ChildCount()) {
				child := node.Child(i)
				if child == nil {
					continue
				}
				switch child.Type() {
				case "identifier", "field_identifier", "init_declarator",
					"pointer_declarator", "array_declarator", "reference_declarator":
					info := parser.UnwrapDeclarator(child, a.unit.Source)
					if info.Name != "" && !info.IsFunction {
						a.varTypes[info.Name] = aggName
					}
				}
			}
			// A file-scope instance that is extern or non-static means
			// the type is visible to other units.
			if node.Type() == "declaration" && a.atFileScope(node) && !a.hasStatic(node) {
				a.usedAll[aggName] = true
			}
		}
	}

	for i := range int(node.ChildCount()) {
		a.collectVariableTypes(node.Child(i))
	}
}

// typeAggregate resolves a type node to the name of a unit-defined
// aggregate, or "".
func (a *Analyzer) typeAggregate(t *sitter.Node) string {
	if t == nil {
		return ""
	}
	switch t.Type() {
	case "struct_specifier", "union_specifier", "class_specifier":
		if name := t.ChildByFieldName("name"); name != nil {
			n := a.unit.Text(name)
			if a.unit.AggregatesByName[n] != nil {
				return n
			}
		}
	case "type_identifier":
		n := a.unit.Text(t)
		if a.unit.AggregatesByName[n] != nil {
			return n
		}
	}
	return ""
}

func (a *Analyzer) atFileScope(node *sitter.Node) bool {
	parent := node.Parent()
	for parent != nil {
		switch parent.Type() {
		case "function_definition", "compound_statement":
			return false
		case "translation_unit":
			return true
		}
		parent = parent.Parent()
	}
	return true
}

func (a *Analyzer) hasStatic(decl *sitter.Node) bool {
	for i := range int(decl.ChildCount()) {
		child := decl.Child(i)
		if child != nil && child.Type() == "storage_class_specifier" && a.unit.Text(child) == "static" {
			return true
		}
	}
	return false
}

// scan walks the whole unit accumulating member usage and whole-aggregate
// escapes.
func (a *Analyzer) scan(node *sitter.Node) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "field_expression":
		a.scanFieldExpression(node)
	case "field_designator":
		// Designated initializer: .name = value
		name := strings.TrimPrefix(a.unit.Text(node), ".")
		a.markByName(name)
	case "initializer_list":
		a.scanInitializerList(node)
	case "sizeof_expression":
		a.markTypeMentions(node)
	case "offsetof_expression":
		a.markTypeMentions(node)
	case "cast_expression":
		a.scanCast(node)
	case "call_expression":
		a.scanCall(node)
	case "qualified_identifier":
		a.scanQualified(node)
	case "structured_binding_declarator":
		a.scanStructuredBinding(node)
	case "pointer_expression":
		// &instance outside a call argument (stored somewhere): whole
		// aggregate escapes.
		if op := node.ChildByFieldName("operator"); op != nil && a.unit.Text(op) == "&" {
			if !insideCallArguments(node) {
				a.markEscape(node.ChildByFieldName("argument"))
			}
		}
	}

	for i := range int(node.ChildCount()) {
		a.scan(node.Child(i))
	}
}

func (a *Analyzer) scanFieldExpression(fe *sitter.Node) {
	fieldNode := fe.ChildByFieldName("field")
	if fieldNode == nil {
		return
	}
	field := a.unit.Text(fieldNode)

	base := baseVariable(fe.ChildByFieldName("argument"), a.unit)
	if base != "" {
		if agg, ok := a.varTypes[base]; ok {
			a.markUsed(agg, field)
			return
		}
	}
	a.markByName(field)
}

// scanInitializerList marks all members of an aggregate used on positional
// aggregate initialization, where the initialized type is resolvable.
func (a *Analyzer) scanInitializerList(list *sitter.Node) {
	parent := list.Parent()
	if parent == nil || parent.Type() != "init_declarator" {
		return
	}
	decl := parent.Parent()
	if decl == nil {
		return
	}
	aggName := a.typeAggregate(decl.ChildByFieldName("type"))
	if aggName == "" {
		return
	}
	// Designated initializers only touch named members; positional
	// initialization touches them all.
	for i := range int(list.NamedChildCount()) {
		if ch := list.NamedChild(i); ch != nil && ch.Type() == "initializer_pair" {
			return
		}
	}
	for _, m := range a.unit.AggregatesByName[aggName].Members {
		a.markUsed(aggName, m.Name)
	}
}

// markTypeMentions suppresses every aggregate whose name appears inside a
// sizeof/offsetof operand: layout inspection counts as use of the whole
// type.
func (a *Analyzer) markTypeMentions(node *sitter.Node) {
	text := a.unit.Text(node)
	for _, agg := range a.unit.Aggregates {
		if containsWord(text, agg.Name) {
			a.usedAll[agg.Name] = true
		}
	}
}

// scanCast suppresses aggregates cast away from their declared type.
func (a *Analyzer) scanCast(cast *sitter.Node) {
	if t := cast.ChildByFieldName("type"); t != nil {
		text := a.unit.Text(t)
		for _, agg := range a.unit.Aggregates {
			if containsWord(text, agg.Name) {
				a.usedAll[agg.Name] = true
			}
		}
	}
	a.markEscape(cast.ChildByFieldName("value"))
}

// scanCall handles aggregate instances handed to functions the unit has no
// body for: the whole aggregate is conservatively used.
func (a *Analyzer) scanCall(call *sitter.Node) {
	fnNode := call.ChildByFieldName("function")
	if fnNode == nil {
		return
	}
	if fnNode.Type() == "identifier" {
		name := a.unit.Text(fnNode)
		if a.unit.Lookup(name) != nil {
			// Unit-local callee: its body is scanned like any other
			// code, so precise attribution applies.
			return
		}
		if name == "offsetof" || name == "sizeof" {
			a.markTypeMentions(call)
			return
		}
	}

	args := call.ChildByFieldName("arguments")
	if args == nil {
		return
	}
	for i := range int(args.NamedChildCount()) {
		a.markEscape(args.NamedChild(i))
	}
}

// markEscape marks the whole aggregate used when expr is (the address of) an
// instance of it.
func (a *Analyzer) markEscape(expr *sitter.Node) {
	base := baseVariable(expr, a.unit)
	if base == "" {
		return
	}
	if agg, ok := a.varTypes[base]; ok {
		a.usedAll[agg] = true
	}
}

// scanStructuredBinding handles `auto [x, y] = expr`. The binding names
// positions rather than members, so the decomposed aggregate is used as a
// whole. An initializer whose aggregate cannot be resolved suppresses every
// aggregate: decomposition of an unknown value cannot be attributed.
func (a *Analyzer) scanStructuredBinding(sb *sitter.Node) {
	parent := sb.Parent()
	if parent == nil || parent.Type() != "init_declarator" {
		return
	}
	base := baseVariable(parent.ChildByFieldName("value"), a.unit)
	if base != "" {
		if agg, ok := a.varTypes[base]; ok {
			for _, m := range a.unit.AggregatesByName[agg].Members {
				a.markUsed(agg, m.Name)
			}
			return
		}
	}
	for _, agg := range a.unit.Aggregates {
		a.usedAll[agg.Name] = true
	}
}

// scanQualified marks S::m pointer-to-member style mentions.
func (a *Analyzer) scanQualified(q *sitter.Node) {
	scope := q.ChildByFieldName("scope")
	name := q.ChildByFieldName("name")
	if scope == nil || name == nil {
		return
	}
	a.markUsed(a.unit.Text(scope), a.unit.Text(name))
}

// scanMethodBodies marks members referenced by bare identifier inside the
// owning class's methods.
func (a *Analyzer) scanMethodBodies() {
	for _, fn := range a.unit.Functions {
		if fn.Owner == "" {
			continue
		}
		agg := a.unit.AggregatesByName[fn.Owner]
		if agg == nil {
			continue
		}
		memberNames := make(map[string]bool, len(agg.Members))
		for _, m := range agg.Members {
			memberNames[m.Name] = true
		}
		parser.WalkTyped(fn.Body, a.unit.Source, func(node *sitter.Node, nodeType string, source []byte) bool {
			if nodeType == "identifier" || nodeType == "field_identifier" {
				if name := a.unit.Text(node); memberNames[name] {
					a.markUsed(agg.Name, name)
				}
			}
			return true
		})
	}
}

// applyInheritance propagates whole-type usage from derived classes to their
// bases: a base reachable from a used derived class is not flagged merely
// because the base itself lacks direct accesses.
func (a *Analyzer) applyInheritance() {
	changed := true
	for changed {
		changed = false
		for _, agg := range a.unit.Aggregates {
			if !a.usedAll[agg.Name] {
				continue
			}
			for _, base := range agg.Bases {
				if a.unit.AggregatesByName[base] != nil && !a.usedAll[base] {
					a.usedAll[base] = true
					changed = true
				}
			}
		}
	}
}

func insideCallArguments(node *sitter.Node) bool {
	parent := node.Parent()
	for depth := 0; parent != nil && depth < 3; depth++ {
		if parent.Type() == "argument_list" {
			return true
		}
		parent = parent.Parent()
	}
	return false
}

// baseVariable resolves an expression to the variable at its base, looking
// through dereferences, subscripts, casts and address-of.
func baseVariable(node *sitter.Node, tu *facts.TranslationUnit) string {
	for node != nil {
		switch node.Type() {
		case "identifier":
			return tu.Text(node)
		case "field_expression", "subscript_expression", "pointer_expression":
			node = node.ChildByFieldName("argument")
		case "cast_expression":
			node = node.ChildByFieldName("value")
		case "parenthesized_expression":
			var next *sitter.Node
			for i := range int(node.NamedChildCount()) {
				if ch := node.NamedChild(i); ch != nil {
					next = ch
					break
				}
			}
			node = next
		default:
			return ""
		}
	}
	return ""
}

// containsWord reports whether text contains name as a whole identifier.
func containsWord(text, name string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], name)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isIdentChar(text[i-1])
		afterIdx := i + len(name)
		after := afterIdx >= len(text) || !isIdentChar(text[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(name)
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
