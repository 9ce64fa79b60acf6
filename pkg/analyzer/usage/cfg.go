package usage

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// opKind classifies one occurrence of a variable.
type opKind int

const (
	opRead opKind = iota
	opWrite
	opReadWrite
	// opEscape marks an address escape: the variable may be read or
	// written by untracked code from here on.
	opEscape
	// opDerefRead/opDerefWrite are accesses through the variable's
	// pointee; they read the pointer value itself.
	opDerefRead
	opDerefWrite
	opAlloc
	opFree
)

// event is one classified occurrence in program order.
type event struct {
	varID int
	kind  opKind
	node  *sitter.Node
	// valueNode anchors the initializer value for declaration-with-
	// initializer writes; drives the documented double emission.
	valueNode *sitter.Node
	initDecl  bool
	// sideEffect marks writes whose right-hand side has observable side
	// effects; such writes are never reported as redundant.
	sideEffect bool
}

// block is one basic block of the function's control-flow graph.
type block struct {
	id     int
	events []event
	succs  []int
}

func (an *analysis) newBlock() *block {
	b := &block{id: len(an.blocks)}
	an.blocks = append(an.blocks, b)
	return b
}

func (an *analysis) edge(from, to *block) {
	if from == nil || to == nil {
		return
	}
	for _, s := range from.succs {
		if s == to.id {
			return
		}
	}
	from.succs = append(from.succs, to.id)
}

func (an *analysis) emit(e event) {
	if e.varID < 0 {
		return
	}
	v := an.vars[e.varID]
	switch e.kind {
	case opRead:
		v.reads++
	case opWrite:
		v.writes++
	case opReadWrite:
		v.reads++
		v.writes++
	case opEscape:
		v.escaped = true
	case opDerefRead, opDerefWrite:
		v.derefed = true
	case opAlloc:
		v.allocated = true
		v.writes++
	case opFree:
		v.freed = true
	}
	an.cur.events = append(an.cur.events, e)
}

type pendingGoto struct {
	from  *block
	label string
}

// buildStmt appends statement semantics to the CFG. an.cur is always the
// block new events flow into; statements that end control flow leave a
// fresh detached block as cur so trailing code is still analyzed.
func (an *analysis) buildStmt(node *sitter.Node) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "compound_statement":
		an.pushScope()
		for i := range int(node.ChildCount()) {
			an.buildStmt(node.Child(i))
		}
		an.popScope()

	case "declaration":
		an.declaration(node)

	case "expression_statement":
		for i := range int(node.NamedChildCount()) {
			an.statementExpr(node.NamedChild(i))
		}

	case "if_statement":
		an.buildIf(node)

	case "while_statement":
		an.buildWhile(node)

	case "do_statement":
		an.buildDoWhile(node)

	case "for_statement":
		an.buildFor(node)

	case "for_range_loop":
		an.buildForRange(node)

	case "switch_statement":
		an.buildSwitch(node)

	case "return_statement":
		for i := range int(node.NamedChildCount()) {
			an.expr(node.NamedChild(i))
		}
		an.edge(an.cur, an.exit)
		an.cur = an.newBlock()

	case "break_statement":
		if n := len(an.breakTargets); n > 0 {
			an.edge(an.cur, an.breakTargets[n-1])
		}
		an.cur = an.newBlock()

	case "continue_statement":
		if n := len(an.continueTargets); n > 0 {
			an.edge(an.cur, an.continueTargets[n-1])
		}
		an.cur = an.newBlock()

	case "goto_statement":
		if label := node.ChildByFieldName("label"); label != nil {
			an.gotos = append(an.gotos, pendingGoto{from: an.cur, label: an.text(label)})
		}
		an.cur = an.newBlock()

	case "labeled_statement":
		label := node.ChildByFieldName("label")
		blk := an.newBlock()
		an.edge(an.cur, blk)
		an.cur = blk
		if label != nil {
			an.labels[an.text(label)] = blk
		}
		for i := range int(node.NamedChildCount()) {
			child := node.NamedChild(i)
			if child != nil && child.Type() != "statement_identifier" {
				an.buildStmt(child)
			}
		}

	case "gnu_asm_statement", "asm_statement":
		an.asmEvents(node)

	case "comment", ";":

	default:
		// Unknown statement forms (try/throw, expression-ish nodes):
		// treat contained expressions as plain reads so no variable in
		// them is ever falsely reported.
		for i := range int(node.NamedChildCount()) {
			child := node.NamedChild(i)
			if child == nil {
				continue
			}
			if isStatementNode(child.Type()) {
				an.buildStmt(child)
			} else {
				an.expr(child)
			}
		}
	}
}

func isStatementNode(nodeType string) bool {
	switch nodeType {
	case "compound_statement", "declaration", "expression_statement",
		"if_statement", "while_statement", "do_statement", "for_statement",
		"for_range_loop", "switch_statement", "return_statement",
		"break_statement", "continue_statement", "goto_statement",
		"labeled_statement":
		return true
	}
	return false
}

func (an *analysis) buildIf(node *sitter.Node) {
	an.expr(node.ChildByFieldName("condition"))
	head := an.cur

	join := an.newBlock()

	thenBlk := an.newBlock()
	an.edge(head, thenBlk)
	an.cur = thenBlk
	an.buildStmt(node.ChildByFieldName("consequence"))
	an.edge(an.cur, join)

	if alt := node.ChildByFieldName("alternative"); alt != nil {
		elseBlk := an.newBlock()
		an.edge(head, elseBlk)
		an.cur = elseBlk
		// alternative is an else_clause wrapping the statement.
		for i := range int(alt.NamedChildCount()) {
			an.buildStmt(alt.NamedChild(i))
		}
		an.edge(an.cur, join)
	} else {
		an.edge(head, join)
	}
	an.cur = join
}

func (an *analysis) buildWhile(node *sitter.Node) {
	head := an.newBlock()
	an.edge(an.cur, head)
	an.cur = head
	an.expr(node.ChildByFieldName("condition"))
	head = an.cur

	join := an.newBlock()
	body := an.newBlock()
	an.edge(head, body)
	an.edge(head, join)

	an.breakTargets = append(an.breakTargets, join)
	an.continueTargets = append(an.continueTargets, head)
	an.cur = body
	an.buildStmt(node.ChildByFieldName("body"))
	an.edge(an.cur, head)
	an.breakTargets = an.breakTargets[:len(an.breakTargets)-1]
	an.continueTargets = an.continueTargets[:len(an.continueTargets)-1]

	an.cur = join
}

func (an *analysis) buildDoWhile(node *sitter.Node) {
	body := an.newBlock()
	an.edge(an.cur, body)
	join := an.newBlock()
	cond := an.newBlock()

	an.breakTargets = append(an.breakTargets, join)
	an.continueTargets = append(an.continueTargets, cond)
	an.cur = body
	an.buildStmt(node.ChildByFieldName("body"))
	an.edge(an.cur, cond)
	an.breakTargets = an.breakTargets[:len(an.breakTargets)-1]
	an.continueTargets = an.continueTargets[:len(an.continueTargets)-1]

	an.cur = cond
	an.expr(node.ChildByFieldName("condition"))
	an.edge(an.cur, body)
	an.edge(an.cur, join)
	an.cur = join
}

func (an *analysis) buildFor(node *sitter.Node) {
	an.pushScope()

	if init := node.ChildByFieldName("initializer"); init != nil {
		if init.Type() == "declaration" {
			an.declaration(init)
		} else {
			an.statementExpr(init)
		}
	}

	head := an.newBlock()
	an.edge(an.cur, head)
	an.cur = head
	cond := node.ChildByFieldName("condition")
	an.expr(cond)
	head = an.cur

	join := an.newBlock()
	body := an.newBlock()
	an.edge(head, body)
	if cond != nil {
		an.edge(head, join)
	}

	update := an.newBlock()
	an.breakTargets = append(an.breakTargets, join)
	an.continueTargets = append(an.continueTargets, update)
	an.cur = body
	an.buildStmt(node.ChildByFieldName("body"))
	an.edge(an.cur, update)
	an.breakTargets = an.breakTargets[:len(an.breakTargets)-1]
	an.continueTargets = an.continueTargets[:len(an.continueTargets)-1]

	an.cur = update
	if upd := node.ChildByFieldName("update"); upd != nil {
		an.statementExpr(upd)
	}
	an.edge(an.cur, head)

	an.cur = join
	an.popScope()
}

func (an *analysis) buildForRange(node *sitter.Node) {
	an.pushScope()

	// The range itself is read once.
	an.expr(node.ChildByFieldName("right"))

	head := an.newBlock()
	an.edge(an.cur, head)
	an.cur = head

	// The iteration variable is written each pass.
	typeName, cat, _ := an.typeOf(node.ChildByFieldName("type"))
	if d := node.ChildByFieldName("declarator"); d != nil {
		info := an.unwrapDeclarator(d)
		if info.Name != "" {
			if info.PointerDepth > 0 {
				cat = CategoryPointer
			} else if info.IsReference {
				cat = CategoryReference
			}
			v := an.declareVar(info.Name, info.NameNode, typeName, cat, varOpts{})
			an.emit(event{varID: v.id, kind: opWrite, node: info.NameNode, sideEffect: true})
		}
	}

	join := an.newBlock()
	body := an.newBlock()
	an.edge(head, body)
	an.edge(head, join)

	an.breakTargets = append(an.breakTargets, join)
	an.continueTargets = append(an.continueTargets, head)
	an.cur = body
	an.buildStmt(node.ChildByFieldName("body"))
	an.edge(an.cur, head)
	an.breakTargets = an.breakTargets[:len(an.breakTargets)-1]
	an.continueTargets = an.continueTargets[:len(an.continueTargets)-1]

	an.cur = join
	an.popScope()
}

func (an *analysis) buildSwitch(node *sitter.Node) {
	an.expr(node.ChildByFieldName("condition"))
	head := an.cur

	join := an.newBlock()
	an.breakTargets = append(an.breakTargets, join)

	body := node.ChildByFieldName("body")
	var fallthroughFrom *block
	hasDefault := false
	if body != nil {
		an.pushScope()
		for i := range int(body.NamedChildCount()) {
			caseNode := body.NamedChild(i)
			if caseNode == nil || caseNode.Type() != "case_statement" {
				continue
			}

			caseBlk := an.newBlock()
			an.edge(head, caseBlk)
			an.edge(fallthroughFrom, caseBlk)

			an.cur = caseBlk
			if value := caseNode.ChildByFieldName("value"); value != nil {
				an.expr(value)
			} else {
				hasDefault = true
			}
			for j := range int(caseNode.NamedChildCount()) {
				child := caseNode.NamedChild(j)
				if child == nil || child == caseNode.ChildByFieldName("value") {
					continue
				}
				an.buildStmt(child)
			}
			fallthroughFrom = an.cur
		}
		an.popScope()
	}
	an.edge(fallthroughFrom, join)
	if !hasDefault {
		an.edge(head, join)
	}

	an.breakTargets = an.breakTargets[:len(an.breakTargets)-1]
	an.cur = join
}

// resolveGotos wires pending goto edges once all labels are known. A goto
// to a label this function never defines simply drops the edge; the
// detached continuation already keeps the analysis conservative.
func (an *analysis) resolveGotos() {
	for _, g := range an.gotos {
		if target, ok := an.labels[g.label]; ok {
			an.edge(g.from, target)
		}
	}
}
