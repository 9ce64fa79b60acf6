// Package usage implements the per-function variable usage analysis: every
// local variable is tracked through a control-flow graph of classified
// read/write/escape events, and variables whose values provably never
// matter are reported. The analysis is tuned to never produce a false
// positive: anything it cannot model (escapes, inline assembly, unknown
// types) suppresses reporting for the affected variable instead.
package usage

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/vestige/pkg/analyzer/purity"
	"github.com/panbanda/vestige/pkg/facts"
	"github.com/panbanda/vestige/pkg/library"
	"github.com/panbanda/vestige/pkg/models"
	"github.com/panbanda/vestige/pkg/parser"
)

// Analyzer runs the variable usage analysis for one translation unit.
type Analyzer struct {
	unit   *facts.TranslationUnit
	lib    *library.Library
	purity *purity.Classifier

	diags []models.Diagnostic
}

// New creates a usage analyzer. The purity classifier is shared with the
// rest of the pipeline so its memo table is reused.
func New(unit *facts.TranslationUnit, lib *library.Library, cls *purity.Classifier) *Analyzer {
	return &Analyzer{unit: unit, lib: lib, purity: cls}
}

// Analyze runs the analysis over every function definition in the unit, in
// definition order. It never fails; a function body the analyzer cannot
// model contributes no diagnostics.
func (a *Analyzer) Analyze() []models.Diagnostic {
	a.diags = nil
	for _, fn := range a.unit.Functions {
		a.analyzeFunction(fn)
	}
	return a.diags
}

// analysis is the per-function (or per-lambda) working state.
type analysis struct {
	owner  *Analyzer
	unit   *facts.TranslationUnit
	lib    *library.Library
	purity *purity.Classifier
	source []byte

	vars   []*varEntry
	scopes []map[string]int

	blocks []*block
	cur    *block
	entry  *block
	exit   *block

	breakTargets    []*block
	continueTargets []*block
	labels          map[string]*block
	gotos           []pendingGoto
}

func (a *Analyzer) newAnalysis() *analysis {
	return &analysis{
		owner:  a,
		unit:   a.unit,
		lib:    a.lib,
		purity: a.purity,
		source: a.unit.Source,
		labels: make(map[string]*block),
	}
}

func (a *Analyzer) analyzeFunction(fn *facts.Function) {
	// A malformed body must degrade to "no diagnostics for this
	// function", never abort the run.
	defer func() { _ = recover() }()

	an := a.newAnalysis()
	an.pushScope()
	an.entry = an.newBlock()
	an.exit = an.newBlock()
	an.cur = an.entry

	for _, p := range fn.Params {
		an.declareParam(p)
	}

	an.buildStmt(fn.Body)
	an.edge(an.cur, an.exit)
	an.resolveGotos()

	a.diags = append(a.diags, an.report()...)
}

// analyzeNested analyzes a lambda body as an independent scope with its own
// variable set. Captured enclosing variables were already accounted for by
// the caller's event walk.
func (a *Analyzer) analyzeNested(body, lambda *sitter.Node) {
	if body == nil {
		return
	}
	defer func() { _ = recover() }()

	an := a.newAnalysis()
	an.pushScope()
	an.entry = an.newBlock()
	an.exit = an.newBlock()
	an.cur = an.entry

	an.declareLambdaParams(lambda)

	an.buildStmt(body)
	an.edge(an.cur, an.exit)
	an.resolveGotos()

	a.diags = append(a.diags, an.report()...)
}

func (an *analysis) declareParam(p facts.Param) {
	if p.Name == "" {
		return
	}
	cat := CategoryValue
	switch {
	case p.ByPointer:
		cat = CategoryPointer
	case p.ByReference:
		cat = CategoryReference
	}
	an.declareVar(p.Name, p.NameNode, p.TypeName, cat, varOpts{param: true})
}

func (an *analysis) declareLambdaParams(lambda *sitter.Node) {
	if lambda == nil {
		return
	}
	decl := lambda.ChildByFieldName("declarator")
	if decl == nil {
		return
	}
	params := decl.ChildByFieldName("parameters")
	if params == nil {
		params = findDescendant(decl, "parameter_list")
	}
	if params == nil {
		return
	}
	for i := range int(params.NamedChildCount()) {
		pd := params.NamedChild(i)
		if pd == nil || pd.Type() != "parameter_declaration" {
			continue
		}
		typeName, cat, _ := an.typeOf(pd.ChildByFieldName("type"))
		if d := pd.ChildByFieldName("declarator"); d != nil {
			info := an.unwrapDeclarator(d)
			if info.Name == "" {
				continue
			}
			switch {
			case info.PointerDepth > 0:
				cat = CategoryPointer
			case info.IsReference:
				cat = CategoryReference
			}
			an.declareVar(info.Name, info.NameNode, typeName, cat, varOpts{param: true})
		}
	}
}

func findDescendant(node *sitter.Node, nodeType string) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Type() == nodeType {
		return node
	}
	for i := range int(node.ChildCount()) {
		if found := findDescendant(node.Child(i), nodeType); found != nil {
			return found
		}
	}
	return nil
}

// reportable decides whether dead-write and unused diagnostics may be
// emitted for v at all.
func (an *analysis) reportable(v *varEntry) bool {
	if v.escaped || v.attrUnused || v.unknownType || v.static || v.extern {
		return false
	}
	if v.category == CategoryReference {
		return false
	}
	if v.category == CategoryAggregate {
		// Construction or destruction with side effects is a use of
		// its own; only provably inert types stay reportable.
		if !an.purity.TypeConstructionSideEffectFree(v.typeName) {
			return false
		}
	}
	return true
}

// report turns the dataflow results into diagnostics: redundant-write
// findings first, then end-of-scope per-variable findings in declaration
// order.
func (an *analysis) report() []models.Diagnostic {
	an.propagateAliasEscapes()

	_, liveOut := an.liveness()
	dead := an.deadWrites(liveOut)
	uninit := an.definiteAssignment()

	var diags []models.Diagnostic

	for _, e := range dead {
		v := an.vars[e.varID]
		msg := fmt.Sprintf("Variable '%s' is assigned a value that is never used.", v.name)
		if e.initDecl && e.valueNode != nil {
			// Declaration with initializer: the condition is detected
			// both on the init-expression path and the declaration
			// path; both entries are part of the stable output.
			diags = append(diags, an.styleDiag(e.valueNode, models.RuleUnreadVariable, msg, v.name))
		}
		diags = append(diags, an.styleDiag(e.node, models.RuleUnreadVariable, msg, v.name))
	}

	for _, v := range an.vars {
		if v.isParam {
			continue
		}

		if v.unknownType {
			if v.reads+v.writes > 0 || v.derefed || v.escaped {
				continue
			}
			diags = append(diags, models.Diagnostic{
				Location: an.location(v.nameNode),
				Severity: models.SeverityInformation,
				Rule:     models.RuleInsufficientTypeInfo,
				Message:  fmt.Sprintf("Insufficient type information to analyze variable '%s' (type '%s').", v.name, v.typeName),
				Symbol:   v.name,
			})
			continue
		}

		if !an.reportable(v) {
			continue
		}

		switch {
		case v.reads == 0 && v.writes == 0 && !v.derefed && !v.freed && !v.allocated:
			diags = append(diags, an.styleDiag(v.nameNode, models.RuleUnusedVariable,
				fmt.Sprintf("Unused variable: %s", v.name), v.name))

		case v.allocated && !v.derefed && v.reads == 0:
			diags = append(diags, an.styleDiag(v.nameNode, models.RuleUnusedAllocatedMemory,
				fmt.Sprintf("Variable '%s' is allocated memory that is never used.", v.name), v.name))

		case uninit[v.id] && (v.category == CategoryValue || v.category == CategoryPointer) && !v.allocated:
			diags = append(diags, an.styleDiag(v.nameNode, models.RuleUnassignedVariable,
				fmt.Sprintf("Variable '%s' is not assigned a value.", v.name), v.name))
		}
	}

	return diags
}

// propagateAliasEscapes marks alias targets escaped when the aliasing
// pointer itself escaped: writes through the leaked pointer can no longer
// be tracked.
func (an *analysis) propagateAliasEscapes() {
	for _, v := range an.vars {
		if v.escaped && v.alias >= 0 {
			an.vars[v.alias].escaped = true
		}
	}
}

func (an *analysis) styleDiag(node *sitter.Node, rule models.Rule, msg, symbol string) models.Diagnostic {
	return models.Diagnostic{
		Location: an.location(node),
		Severity: models.SeverityStyle,
		Rule:     rule,
		Message:  msg,
		Symbol:   symbol,
	}
}

func (an *analysis) location(node *sitter.Node) models.Location {
	return models.Location{
		File:   an.unit.Path,
		Line:   parser.Line(node),
		Column: parser.Column(node),
	}
}
