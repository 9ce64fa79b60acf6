package usage

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/vestige/pkg/parser"
)

func (an *analysis) text(node *sitter.Node) string {
	return parser.GetNodeText(node, an.source)
}

func (an *analysis) unwrapDeclarator(node *sitter.Node) parser.DeclaratorInfo {
	return parser.UnwrapDeclarator(node, an.source)
}

// declaration creates variable entries for one declaration statement and
// emits initializer events.
func (an *analysis) declaration(node *sitter.Node) {
	opts := varOpts{}
	for i := range int(node.ChildCount()) {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "storage_class_specifier":
			switch an.text(child) {
			case "static":
				opts.static_ = true
			case "extern":
				opts.extern_ = true
			}
		case "attribute_declaration", "attribute_specifier":
			if strings.Contains(an.text(child), "unused") {
				opts.attrUnused = true
			}
		}
	}

	typeName, baseCat, _ := an.typeOf(node.ChildByFieldName("type"))

	for i := range int(node.ChildCount()) {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "identifier":
			an.declareFrom(child, typeName, baseCat, opts, nil)
		case "init_declarator":
			decl := child.ChildByFieldName("declarator")
			value := child.ChildByFieldName("value")
			if decl != nil && decl.Type() == "structured_binding_declarator" {
				an.structuredBinding(decl, value)
				continue
			}
			an.declareFrom(decl, typeName, baseCat, opts, value)
		case "pointer_declarator", "array_declarator", "reference_declarator":
			an.declareFrom(child, typeName, baseCat, opts, nil)
		case "function_declarator":
			// Local function prototype, not a variable.
		}
	}
}

// declareFrom creates one variable from a declarator and emits its
// initializer write when present.
func (an *analysis) declareFrom(decl *sitter.Node, typeName string, baseCat TypeCategory, opts varOpts, value *sitter.Node) {
	if decl == nil {
		return
	}
	info := an.unwrapDeclarator(decl)
	if info.Name == "" || info.IsFunction {
		return
	}

	cat := baseCat
	switch {
	case info.PointerDepth > 0:
		cat = CategoryPointer
	case info.IsArray:
		cat = CategoryArray
	case info.IsReference:
		cat = CategoryReference
	}

	v := an.declareVar(info.Name, info.NameNode, typeName, cat, opts)

	// C++ direct initialization: int x(5); or int x{5};
	if value == nil && decl.Type() == "init_declarator" {
		value = decl.ChildByFieldName("value")
	}
	if value == nil {
		return
	}

	v.initNode = value
	an.initializerWrite(v, value, info.NameNode)
}

// initializerWrite emits the events of an initializer expression followed by
// the declaration write itself.
func (an *analysis) initializerWrite(v *varEntry, value, nameNode *sitter.Node) {
	// A reference declaration binds an alias rather than copying.
	if v.category == CategoryReference {
		if target := an.valueIdentifier(value); target != nil {
			an.emit(event{varID: target.id, kind: opEscape, node: value})
			v.bindAlias(target.id)
		} else {
			an.expr(value)
		}
		an.emit(event{varID: v.id, kind: opWrite, node: nameNode, sideEffect: true})
		return
	}

	// Pointer initialized from &local: tracked alias, not an escape.
	if v.category == CategoryPointer {
		if target := an.addressTarget(value); target != nil {
			v.bindAlias(target.id)
			an.emit(event{varID: v.id, kind: opWrite, node: nameNode, valueNode: value, initDecl: true, sideEffect: true})
			return
		}
	}

	an.expr(value)

	if an.allocationCall(value) {
		an.emit(event{varID: v.id, kind: opAlloc, node: nameNode, valueNode: value, initDecl: true})
		return
	}

	an.emit(event{
		varID:      v.id,
		kind:       opWrite,
		node:       nameNode,
		valueNode:  value,
		initDecl:   true,
		sideEffect: an.exprHasSideEffect(value),
	})
}

// structuredBinding declares one tracked variable per bound name.
func (an *analysis) structuredBinding(decl, value *sitter.Node) {
	an.expr(value)
	for i := range int(decl.NamedChildCount()) {
		child := decl.NamedChild(i)
		if child == nil || child.Type() != "identifier" {
			continue
		}
		v := an.declareVar(an.text(child), child, "", CategoryValue, varOpts{})
		an.emit(event{varID: v.id, kind: opWrite, node: child, sideEffect: an.exprHasSideEffect(value)})
	}
}

// statementExpr extracts events for an expression whose result is
// discarded. The distinction matters for increment/decrement, which counts
// as a plain write at statement level but as read-modify-write as a value.
func (an *analysis) statementExpr(node *sitter.Node) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "update_expression":
		arg := node.ChildByFieldName("argument")
		if v := an.valueIdentifier(arg); v != nil {
			an.emit(event{varID: v.id, kind: opWrite, node: arg})
			return
		}
		an.expr(node)
	case "comma_expression":
		an.statementExpr(node.ChildByFieldName("left"))
		an.statementExpr(node.ChildByFieldName("right"))
	default:
		an.expr(node)
	}
}

// expr walks an expression in value context, emitting classified events for
// every tracked-variable occurrence.
func (an *analysis) expr(node *sitter.Node) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "identifier":
		if v := an.resolve(an.text(node)); v != nil {
			an.emit(event{varID: v.id, kind: opRead, node: node})
		}

	case "assignment_expression":
		an.assignment(node)

	case "update_expression":
		arg := node.ChildByFieldName("argument")
		if v := an.valueIdentifier(arg); v != nil {
			an.emit(event{varID: v.id, kind: opReadWrite, node: arg})
			return
		}
		an.expr(arg)

	case "pointer_expression":
		op := node.ChildByFieldName("operator")
		arg := node.ChildByFieldName("argument")
		if op != nil && an.text(op) == "&" {
			// A bare address-of whose context did not claim it (call
			// arguments and initializers are handled by their parents):
			// the variable escapes.
			if v := an.valueIdentifier(arg); v != nil {
				an.emit(event{varID: v.id, kind: opEscape, node: arg})
				return
			}
			an.expr(arg)
			return
		}
		// Dereference: the pointer value is read, the pointee too.
		an.derefEvent(arg, opDerefRead)

	case "field_expression":
		an.derefEvent(node.ChildByFieldName("argument"), opDerefRead)

	case "subscript_expression":
		an.expr(node.ChildByFieldName("index"))
		an.derefEvent(node.ChildByFieldName("argument"), opDerefRead)

	case "call_expression":
		an.call(node)

	case "conditional_expression":
		an.expr(node.ChildByFieldName("condition"))
		an.expr(node.ChildByFieldName("consequence"))
		an.expr(node.ChildByFieldName("alternative"))

	case "binary_expression":
		an.expr(node.ChildByFieldName("left"))
		an.expr(node.ChildByFieldName("right"))

	case "unary_expression":
		an.expr(node.ChildByFieldName("argument"))

	case "comma_expression":
		an.expr(node.ChildByFieldName("left"))
		an.expr(node.ChildByFieldName("right"))

	case "cast_expression":
		// Includes the explicit discard idiom (void)x, which counts as
		// a read.
		an.expr(node.ChildByFieldName("value"))

	case "parenthesized_expression", "initializer_list", "argument_list",
		"initializer_pair", "condition_clause", "expression_statement":
		for i := range int(node.NamedChildCount()) {
			an.expr(node.NamedChild(i))
		}

	case "sizeof_expression":
		// sizeof does not evaluate its operand, but mentioning a
		// variable there still counts as use.
		for i := range int(node.NamedChildCount()) {
			an.expr(node.NamedChild(i))
		}

	case "lambda_expression":
		an.lambda(node)

	case "gnu_asm_expression":
		an.asmEvents(node)

	case "new_expression", "delete_expression":
		an.newDelete(node)

	case "number_literal", "string_literal", "char_literal", "true", "false",
		"null", "nullptr", "concatenated_string", "comment":

	default:
		for i := range int(node.NamedChildCount()) {
			an.expr(node.NamedChild(i))
		}
	}
}

// derefEvent reads the base variable's value and records a pointee access,
// following known aliases back to their target.
func (an *analysis) derefEvent(base *sitter.Node, kind opKind) {
	v := an.baseVariable(base)
	if v == nil {
		an.expr(base)
		return
	}
	an.emit(event{varID: v.id, kind: opRead, node: base})
	an.emit(event{varID: v.id, kind: kind, node: base})
	if v.alias >= 0 {
		target := an.vars[v.alias]
		if kind == opDerefWrite {
			an.emit(event{varID: target.id, kind: opWrite, node: base, sideEffect: true})
		} else {
			an.emit(event{varID: target.id, kind: opRead, node: base})
		}
	}
}

// assignment classifies the write target and emits RHS reads first.
func (an *analysis) assignment(node *sitter.Node) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	operator := node.ChildByFieldName("operator")
	compound := operator != nil && an.text(operator) != "="

	// Pointer rebinding to &local keeps the alias lattice current before
	// RHS reads are emitted.
	if v := an.valueIdentifier(left); v != nil && v.category == CategoryPointer && !compound {
		if target := an.addressTarget(right); target != nil {
			v.bindAlias(target.id)
			an.emit(event{varID: v.id, kind: opWrite, node: left, sideEffect: true})
			return
		}
	}

	an.expr(right)

	if v := an.valueIdentifier(left); v != nil {
		if compound {
			an.emit(event{varID: v.id, kind: opReadWrite, node: left})
			return
		}
		if an.allocationCall(right) {
			an.emit(event{varID: v.id, kind: opAlloc, node: left})
			return
		}
		an.emit(event{varID: v.id, kind: opWrite, node: left, sideEffect: an.exprHasSideEffect(right)})
		return
	}

	// Indirect target: write through a pointer, member or element.
	switch left.Type() {
	case "subscript_expression":
		an.expr(left.ChildByFieldName("index"))
		an.derefEvent(left.ChildByFieldName("argument"), opDerefWrite)
	case "field_expression", "pointer_expression":
		an.derefEvent(left.ChildByFieldName("argument"), opDerefWrite)
	case "parenthesized_expression":
		for i := range int(left.NamedChildCount()) {
			an.expr(left.NamedChild(i))
		}
	default:
		an.expr(left)
	}
}

// call emits argument events with library and purity knowledge: address-of
// arguments to functions known not to write through them are plain reads,
// deallocation calls are tracked for allocation pairing, everything else is
// conservative.
func (an *analysis) call(node *sitter.Node) {
	fnNode := node.ChildByFieldName("function")
	args := node.ChildByFieldName("arguments")

	name := ""
	if fnNode != nil {
		switch fnNode.Type() {
		case "identifier":
			name = an.text(fnNode)
		case "qualified_identifier":
			if n := fnNode.ChildByFieldName("name"); n != nil {
				name = an.text(n)
			}
		case "field_expression":
			// Method call: the receiver object is read and may be
			// mutated through its own pointer; base is read.
			an.derefEvent(fnNode.ChildByFieldName("argument"), opDerefRead)
		default:
			an.expr(fnNode)
		}
	}

	if args == nil {
		return
	}

	dealloc := an.lib.IsDeallocation(name)

	argIdx := 0
	for i := range int(args.NamedChildCount()) {
		arg := args.NamedChild(i)
		if arg == nil || arg.Type() == "comment" {
			continue
		}
		argIdx++

		if dealloc && argIdx == 1 {
			if v := an.valueIdentifier(arg); v != nil {
				an.emit(event{varID: v.id, kind: opFree, node: arg})
				continue
			}
		}

		// &x handed to a call.
		if target := an.addressTarget(arg); target != nil {
			if an.argumentNotWritten(name, argIdx) {
				an.emit(event{varID: target.id, kind: opRead, node: arg})
			} else {
				an.emit(event{varID: target.id, kind: opEscape, node: arg})
			}
			continue
		}

		// An array or pointer passed by name: the value is read; the
		// pointee may be touched unless the callee is known not to.
		if v := an.valueIdentifier(arg); v != nil && (v.category == CategoryArray || v.category == CategoryPointer) {
			if v.category == CategoryArray && !an.argumentNotWritten(name, argIdx) {
				an.emit(event{varID: v.id, kind: opEscape, node: arg})
				continue
			}
			an.emit(event{varID: v.id, kind: opRead, node: arg})
			if !an.argumentNotWritten(name, argIdx) {
				an.emit(event{varID: v.id, kind: opDerefRead, node: arg})
			}
			continue
		}

		an.expr(arg)
	}
}

// argumentNotWritten reports whether the callee provably does not write
// through its argIdx-th (1-based) argument.
func (an *analysis) argumentNotWritten(name string, argIdx int) bool {
	if name == "" {
		return false
	}
	if fn := an.unit.Lookup(name); fn != nil {
		r := an.purity.Classify(fn)
		if argIdx-1 < len(r.ParamWritten) {
			return !r.ParamWritten[argIdx-1]
		}
		return r.Verdict != 0 && !anyTrue(r.ParamWritten)
	}
	if written, known := an.lib.IsArgumentWritten(name, argIdx); known {
		return !written
	}
	return false
}

func anyTrue(bs []bool) bool {
	for _, b := range bs {
		if b {
			return true
		}
	}
	return false
}

// newDelete handles C++ allocation and deallocation expressions.
func (an *analysis) newDelete(node *sitter.Node) {
	if node.Type() == "delete_expression" {
		for i := range int(node.NamedChildCount()) {
			arg := node.NamedChild(i)
			if v := an.valueIdentifier(arg); v != nil {
				an.emit(event{varID: v.id, kind: opFree, node: arg})
				return
			}
			an.expr(arg)
		}
		return
	}
	if args := node.ChildByFieldName("arguments"); args != nil {
		an.expr(args)
	}
}

// lambda records capture effects in the enclosing scope and analyzes the
// body as an independent nested scope.
func (an *analysis) lambda(node *sitter.Node) {
	byRefDefault := false
	if captures := node.ChildByFieldName("captures"); captures != nil {
		text := an.text(captures)
		byRefDefault = strings.Contains(text, "&")
		for i := range int(captures.NamedChildCount()) {
			capture := captures.NamedChild(i)
			if capture == nil {
				continue
			}
			capText := an.text(capture)
			byRef := strings.HasPrefix(capText, "&")
			if v := an.resolve(strings.TrimPrefix(capText, "&")); v != nil {
				if byRef {
					an.emit(event{varID: v.id, kind: opEscape, node: capture})
				} else {
					an.emit(event{varID: v.id, kind: opRead, node: capture})
				}
			}
		}
	}

	// Bare identifiers in the body referring to enclosing locals:
	// by-reference default captures escape them, by-value captures read.
	body := node.ChildByFieldName("body")
	parser.WalkTyped(body, an.source, func(n *sitter.Node, nodeType string, _ []byte) bool {
		if nodeType == "identifier" {
			if v := an.resolve(an.text(n)); v != nil {
				if byRefDefault {
					an.emit(event{varID: v.id, kind: opEscape, node: n})
				} else {
					an.emit(event{varID: v.id, kind: opRead, node: n})
				}
			}
		}
		return nodeType != "lambda_expression" || n == node
	})

	// The lambda body gets its own analysis pass with its own variables.
	an.owner.analyzeNested(body, node)
}

// asmEvents treats every identifier in an inline assembly block as an
// opaque read and write.
func (an *analysis) asmEvents(node *sitter.Node) {
	parser.WalkTyped(node, an.source, func(n *sitter.Node, nodeType string, _ []byte) bool {
		if nodeType == "identifier" {
			if v := an.resolve(an.text(n)); v != nil {
				an.emit(event{varID: v.id, kind: opEscape, node: n})
			}
		}
		return true
	})
}

// valueIdentifier resolves node to a tracked variable when it is a bare
// (possibly parenthesized) identifier.
func (an *analysis) valueIdentifier(node *sitter.Node) *varEntry {
	for node != nil {
		switch node.Type() {
		case "identifier":
			return an.resolve(an.text(node))
		case "parenthesized_expression":
			var next *sitter.Node
			for i := range int(node.NamedChildCount()) {
				if ch := node.NamedChild(i); ch != nil && ch.Type() != "comment" {
					next = ch
					break
				}
			}
			node = next
		default:
			return nil
		}
	}
	return nil
}

// addressTarget resolves &x (possibly parenthesized or cast) to the tracked
// variable x.
func (an *analysis) addressTarget(node *sitter.Node) *varEntry {
	for node != nil {
		switch node.Type() {
		case "pointer_expression":
			if op := node.ChildByFieldName("operator"); op != nil && an.text(op) == "&" {
				return an.valueIdentifier(node.ChildByFieldName("argument"))
			}
			return nil
		case "cast_expression":
			node = node.ChildByFieldName("value")
		case "parenthesized_expression":
			var next *sitter.Node
			for i := range int(node.NamedChildCount()) {
				if ch := node.NamedChild(i); ch != nil && ch.Type() != "comment" {
					next = ch
					break
				}
			}
			node = next
		default:
			return nil
		}
	}
	return nil
}

// baseVariable digs to the tracked variable at the base of an lvalue chain.
func (an *analysis) baseVariable(node *sitter.Node) *varEntry {
	for node != nil {
		switch node.Type() {
		case "identifier":
			return an.resolve(an.text(node))
		case "field_expression", "subscript_expression", "pointer_expression":
			node = node.ChildByFieldName("argument")
		case "cast_expression":
			node = node.ChildByFieldName("value")
		case "parenthesized_expression":
			var next *sitter.Node
			for i := range int(node.NamedChildCount()) {
				if ch := node.NamedChild(i); ch != nil && ch.Type() != "comment" {
					next = ch
					break
				}
			}
			node = next
		default:
			return nil
		}
	}
	return nil
}

// allocationCall reports whether expr's value is a fresh heap allocation.
func (an *analysis) allocationCall(expr *sitter.Node) bool {
	for expr != nil {
		switch expr.Type() {
		case "call_expression":
			fnNode := expr.ChildByFieldName("function")
			return fnNode != nil && fnNode.Type() == "identifier" && an.lib.IsAllocation(an.text(fnNode))
		case "new_expression":
			return true
		case "cast_expression":
			expr = expr.ChildByFieldName("value")
		case "parenthesized_expression":
			var next *sitter.Node
			for i := range int(expr.NamedChildCount()) {
				if ch := expr.NamedChild(i); ch != nil && ch.Type() != "comment" {
					next = ch
					break
				}
			}
			expr = next
		default:
			return false
		}
	}
	return false
}

// exprHasSideEffect reports whether evaluating expr does more than produce
// a value: assignments, increments, or calls that are not provably clean.
func (an *analysis) exprHasSideEffect(expr *sitter.Node) bool {
	if expr == nil {
		return false
	}
	switch expr.Type() {
	case "assignment_expression", "update_expression", "new_expression", "delete_expression":
		return true
	case "call_expression":
		fnNode := expr.ChildByFieldName("function")
		if fnNode == nil || fnNode.Type() != "identifier" {
			return true
		}
		if !an.purity.CallReturnClean(an.text(fnNode)) {
			return true
		}
	case "lambda_expression":
		return false
	}
	for i := range int(expr.NamedChildCount()) {
		if an.exprHasSideEffect(expr.NamedChild(i)) {
			return true
		}
	}
	return false
}
