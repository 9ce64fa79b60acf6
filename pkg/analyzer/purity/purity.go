// Package purity classifies functions as side-effect free or not. A function
// is clean when its body provably writes nothing that outlives the call: no
// globals, no static locals, nothing reachable through pointer or reference
// parameters, and no calls to functions that are dirty or unknown.
//
// Results are memoized per function. Recursion is broken by an in-progress
// set: a function whose classification transitively needs its own result is
// assumed clean for the duration of that classification. This mirrors the
// accepted behavior of treating self-recursive local-only functions as clean
// and is deliberately kept even though a recursive side effect through a
// global could slip past it.
package purity

import (
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/vestige/pkg/facts"
	"github.com/panbanda/vestige/pkg/library"
)

// Verdict is the classification of one function.
type Verdict int

const (
	// Unknown means the function has no visible body and no library
	// entry. Callers must treat it as potentially dirty.
	Unknown Verdict = iota
	// Clean means calling the function has no observable side effect.
	Clean
	// Dirty means the function writes state that outlives the call, or
	// calls something that might.
	Dirty
)

func (v Verdict) String() string {
	switch v {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	default:
		return "unknown"
	}
}

// Result carries the full classification of one function.
type Result struct {
	Verdict Verdict
	// ReturnClean is true when every return path yields a value without
	// side effects in the returned expression itself.
	ReturnClean bool
	// ParamWritten marks parameters the function may write through.
	ParamWritten []bool
}

// maxClassifyDepth bounds transitive classification so adversarial call
// chains cannot exhaust the stack.
const maxClassifyDepth = 64

// Classifier computes and memoizes purity facts for the functions of one
// translation unit.
type Classifier struct {
	unit *facts.TranslationUnit
	lib  *library.Library

	memo       map[int]Result
	inProgress map[int]bool

	typeMemo map[string]bool
}

// NewClassifier creates a classifier over one translation unit.
func NewClassifier(unit *facts.TranslationUnit, lib *library.Library) *Classifier {
	return &Classifier{
		unit:       unit,
		lib:        lib,
		memo:       make(map[int]Result),
		inProgress: make(map[int]bool),
		typeMemo:   make(map[string]bool),
	}
}

// ClassifyAll classifies every function in the unit. Functions are visited
// in reverse topological order of the call graph's strongly connected
// components so that callees are memoized before their callers; verdicts do
// not depend on this ordering, only memo hit rates do.
func (c *Classifier) ClassifyAll() {
	g := simple.NewDirectedGraph()
	for _, fn := range c.unit.Functions {
		g.AddNode(simple.Node(fn.ID))
	}
	for _, fn := range c.unit.Functions {
		for _, callee := range c.callees(fn) {
			if callee.ID != fn.ID {
				g.SetEdge(g.NewEdge(simple.Node(fn.ID), simple.Node(callee.ID)))
			}
		}
	}

	// TarjanSCC returns components in reverse topological order.
	for _, scc := range topo.TarjanSCC(g) {
		for _, n := range scc {
			if fn := c.unit.Functions[int(n.ID())]; fn != nil {
				c.Classify(fn)
			}
		}
	}
}

// Classify returns the (memoized) classification of fn.
func (c *Classifier) Classify(fn *facts.Function) Result {
	return c.classify(fn, 0)
}

// ClassifyName resolves name against the unit and the library. The second
// return is false when nothing is known about the name at all.
func (c *Classifier) ClassifyName(name string) (Result, bool) {
	if fn := c.unit.Lookup(name); fn != nil {
		return c.Classify(fn), true
	}
	if c.lib.IsFunctionSideEffectFree(name) {
		return Result{Verdict: Clean, ReturnClean: true}, true
	}
	if c.lib.IsKnownFunction(name) {
		return Result{Verdict: Dirty}, true
	}
	return Result{Verdict: Unknown}, false
}

// CallSideEffectFree reports whether a call to name provably has no
// observable side effect.
func (c *Classifier) CallSideEffectFree(name string) bool {
	r, ok := c.ClassifyName(name)
	return ok && r.Verdict == Clean
}

// CallReturnClean reports whether a call to name both lacks side effects
// and returns a cleanly computed value.
func (c *Classifier) CallReturnClean(name string) bool {
	r, ok := c.ClassifyName(name)
	return ok && r.Verdict == Clean && r.ReturnClean
}

func (c *Classifier) classify(fn *facts.Function, depth int) Result {
	if r, ok := c.memo[fn.ID]; ok {
		return r
	}
	if c.inProgress[fn.ID] || depth > maxClassifyDepth {
		// Recursion break: provisionally clean.
		return Result{Verdict: Clean, ReturnClean: true}
	}
	c.inProgress[fn.ID] = true

	r := c.analyze(fn, depth)

	delete(c.inProgress, fn.ID)
	c.memo[fn.ID] = r
	return r
}

// scope tracks what counts as local while scanning one body.
type scope struct {
	locals map[string]bool
	// statics are local declarations with static storage; writes to them
	// outlive the call.
	statics map[string]bool
}

func (c *Classifier) analyze(fn *facts.Function, depth int) Result {
	sc := &scope{
		locals:  make(map[string]bool),
		statics: make(map[string]bool),
	}

	params := make(map[string]int)
	for i, p := range fn.Params {
		if p.Name == "" {
			continue
		}
		params[p.Name] = i
		if !p.ByPointer && !p.ByReference {
			sc.locals[p.Name] = true
		}
	}
	c.collectLocals(fn.Body, sc)

	r := Result{
		Verdict:      Clean,
		ReturnClean:  true,
		ParamWritten: make([]bool, len(fn.Params)),
	}

	c.scanBody(fn.Body, fn, sc, params, depth, &r)
	return r
}

func (c *Classifier) collectLocals(node *sitter.Node, sc *scope) {
	if node == nil {
		return
	}
	if node.Type() == "declaration" {
		static := false
		for i := range int(node.ChildCount()) {
			child := node.Child(i)
			if child != nil && child.Type() == "storage_class_specifier" && c.unit.Text(child) == "static" {
				static = true
			}
		}
		for i := range int(node.ChildCount()) {
			child := node.Child(i)
			if child == nil {
				continue
			}
			switch child.Type() {
			case "identifier", "init_declarator", "pointer_declarator", "array_declarator", "reference_declarator":
				if name := unwrap(child, c.unit); name != "" {
					if static {
						sc.statics[name] = true
					} else {
						sc.locals[name] = true
					}
				}
			}
		}
	}
	for i := range int(node.ChildCount()) {
		c.collectLocals(node.Child(i), sc)
	}
}

func unwrap(node *sitter.Node, tu *facts.TranslationUnit) string {
	for node != nil {
		switch node.Type() {
		case "identifier":
			return tu.Text(node)
		case "init_declarator", "pointer_declarator", "array_declarator", "function_declarator":
			node = node.ChildByFieldName("declarator")
		case "reference_declarator", "parenthesized_declarator":
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

// scanBody walks every expression looking for writes that outlive the call
// and for calls to dirty or unknown functions.
func (c *Classifier) scanBody(node *sitter.Node, fn *facts.Function, sc *scope, params map[string]int, depth int, r *Result) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "assignment_expression":
		c.checkWriteTarget(node.ChildByFieldName("left"), fn, sc, params, r)
	case "update_expression":
		c.checkWriteTarget(node.ChildByFieldName("argument"), fn, sc, params, r)
	case "call_expression":
		c.checkCall(node, fn, depth, r)
	case "pointer_expression":
		// Taking a mutable alias of a non-local is dirty in itself; the
		// alias may be stored and written later.
		if op := node.ChildByFieldName("operator"); op != nil && c.unit.Text(op) == "&" {
			base := baseIdentifier(node.ChildByFieldName("argument"), c.unit)
			if base != "" && !sc.locals[base] && !isEnumerator(base) {
				r.Verdict = Dirty
			}
		}
	case "return_statement":
		c.checkReturn(node, r)
	case "gnu_asm_expression", "asm_statement":
		r.Verdict = Dirty
	case "lambda_expression":
		// Lambdas with by-reference captures may leak mutable aliases.
		r.Verdict = Dirty
		return
	}

	for i := range int(node.ChildCount()) {
		c.scanBody(node.Child(i), fn, sc, params, depth, r)
	}
}

func (c *Classifier) checkWriteTarget(target *sitter.Node, fn *facts.Function, sc *scope, params map[string]int, r *Result) {
	if target == nil {
		return
	}

	switch target.Type() {
	case "identifier":
		name := c.unit.Text(target)
		if sc.locals[name] {
			return
		}
		if idx, ok := params[name]; ok {
			// Writing the parameter variable itself; only reference
			// parameters make this observable.
			if fn.Params[idx].ByReference {
				r.ParamWritten[idx] = true
				r.Verdict = Dirty
			}
			return
		}
		r.Verdict = Dirty

	case "subscript_expression", "field_expression", "pointer_expression", "parenthesized_expression":
		base := baseIdentifier(target, c.unit)
		if base == "" {
			r.Verdict = Dirty
			return
		}
		if idx, ok := params[base]; ok && (fn.Params[idx].ByPointer || fn.Params[idx].ByReference) {
			r.ParamWritten[idx] = true
			r.Verdict = Dirty
			return
		}
		if sc.locals[base] {
			// Writing through a local array or a local object is a
			// local effect. Writes through local pointers are treated
			// as dirty: the pointee may not be local.
			if isLocalValueWrite(target, base, c.unit) {
				return
			}
		}
		r.Verdict = Dirty

	default:
		r.Verdict = Dirty
	}
}

// isLocalValueWrite reports whether the write target is a direct member or
// element of a local (s.x = 1, buf[i] = 0) rather than an indirection
// through a pointer value.
func isLocalValueWrite(target *sitter.Node, base string, tu *facts.TranslationUnit) bool {
	switch target.Type() {
	case "subscript_expression":
		arg := target.ChildByFieldName("argument")
		return arg != nil && arg.Type() == "identifier" && tu.Text(arg) == base
	case "field_expression":
		if op := target.ChildByFieldName("operator"); op != nil && tu.Text(op) == "->" {
			return false
		}
		arg := target.ChildByFieldName("argument")
		return arg != nil && arg.Type() == "identifier" && tu.Text(arg) == base
	}
	return false
}

func (c *Classifier) checkCall(call *sitter.Node, fn *facts.Function, depth int, r *Result) {
	fnNode := call.ChildByFieldName("function")
	if fnNode == nil {
		r.Verdict = Dirty
		return
	}

	switch fnNode.Type() {
	case "identifier", "qualified_identifier":
		name := c.unit.Text(fnNode)
		if fnNode.Type() == "qualified_identifier" {
			if n := fnNode.ChildByFieldName("name"); n != nil {
				name = c.unit.Text(n)
			}
		}
		if callee := c.unit.Lookup(name); callee != nil {
			res := c.classify(callee, depth+1)
			if res.Verdict != Clean {
				r.Verdict = Dirty
			}
			return
		}
		if c.lib.IsFunctionSideEffectFree(name) {
			return
		}
		// Unknown or known-impure callee taints the caller.
		r.Verdict = Dirty
	default:
		// Indirect calls, method calls on objects: cannot resolve.
		r.Verdict = Dirty
	}
}

// checkReturn clears ReturnClean when the returned expression itself has a
// side effect or an unresolvable call.
func (c *Classifier) checkReturn(ret *sitter.Node, r *Result) {
	for i := range int(ret.NamedChildCount()) {
		expr := ret.NamedChild(i)
		if expr == nil {
			continue
		}
		if hasSideEffectExpr(expr, c) {
			r.ReturnClean = false
			return
		}
	}
}

func hasSideEffectExpr(node *sitter.Node, c *Classifier) bool {
	if node == nil {
		return false
	}
	switch node.Type() {
	case "assignment_expression", "update_expression":
		return true
	case "call_expression":
		if fnNode := node.ChildByFieldName("function"); fnNode != nil && fnNode.Type() == "identifier" {
			if !c.CallSideEffectFree(c.unit.Text(fnNode)) {
				return true
			}
		} else {
			return true
		}
	}
	for i := range int(node.ChildCount()) {
		if hasSideEffectExpr(node.Child(i), c) {
			return true
		}
	}
	return false
}

// callees lists the unit-local functions fn calls directly, for call-graph
// construction.
func (c *Classifier) callees(fn *facts.Function) []*facts.Function {
	var out []*facts.Function
	seen := make(map[int]bool)
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		if node.Type() == "call_expression" {
			if fnNode := node.ChildByFieldName("function"); fnNode != nil && fnNode.Type() == "identifier" {
				if callee := c.unit.Lookup(c.unit.Text(fnNode)); callee != nil && !seen[callee.ID] {
					seen[callee.ID] = true
					out = append(out, callee)
				}
			}
		}
		for i := range int(node.ChildCount()) {
			walk(node.Child(i))
		}
	}
	walk(fn.Body)
	return out
}

// baseIdentifier digs to the leftmost identifier of an lvalue expression.
func baseIdentifier(node *sitter.Node, tu *facts.TranslationUnit) string {
	for node != nil {
		switch node.Type() {
		case "identifier":
			return tu.Text(node)
		case "subscript_expression", "field_expression", "pointer_expression":
			node = node.ChildByFieldName("argument")
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

func isEnumerator(string) bool {
	// Enumerator detection is not tracked; the conservative answer keeps
	// address-of on unresolved names dirty.
	return false
}

// TypeConstructionSideEffectFree reports whether constructing and destroying
// a value of typeName has no observable side effect. Plain data aggregates
// qualify, as do the library's known value types. C++ aggregates with
// user-declared special members qualify only when every visible constructor
// and destructor classifies clean.
func (c *Classifier) TypeConstructionSideEffectFree(typeName string) bool {
	if v, ok := c.typeMemo[typeName]; ok {
		return v
	}
	c.typeMemo[typeName] = true // recursion break for self-referential types
	v := c.typeConstruction(typeName)
	c.typeMemo[typeName] = v
	return v
}

func (c *Classifier) typeConstruction(typeName string) bool {
	if c.lib.IsValueType(typeName) {
		return true
	}
	agg := c.unit.AggregatesByName[typeName]
	if agg == nil {
		return false
	}
	if !agg.HasMethods {
		return true
	}
	proved := false
	for _, fn := range c.unit.Functions {
		if fn.Owner != typeName {
			continue
		}
		if fn.IsConstructor() || fn.IsDestructor() {
			if c.Classify(fn).Verdict != Clean {
				return false
			}
			proved = true
		}
	}
	// Methods exist but no special-member bodies are visible: cannot
	// prove construction is inert.
	return proved
}
