package facts

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/vestige/pkg/parser"
)

// Build constructs the fact base for a parsed translation unit. It never
// fails: malformed subtrees are skipped so one bad construct cannot take
// down analysis of the rest of the file.
func Build(res *parser.ParseResult) *TranslationUnit {
	tu := &TranslationUnit{
		Path:             res.Path,
		Language:         res.Language,
		Source:           res.Source,
		Root:             res.Tree.RootNode(),
		FunctionsByName:  make(map[string]*Function),
		AggregatesByName: make(map[string]*Aggregate),
		Globals:          make(map[string]StorageClass),
		TypeNames:        make(map[string]bool),
	}

	collect(tu, tu.Root, false)
	return tu
}

// collect walks the tree gathering functions, aggregates and globals.
// insideFunction suppresses global recording for declarations in bodies.
func collect(tu *TranslationUnit, node *sitter.Node, insideFunction bool) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "function_definition":
		if fn := buildFunction(tu, node); fn != nil {
			fn.ID = len(tu.Functions)
			tu.Functions = append(tu.Functions, fn)
			if fn.Name != "" && tu.FunctionsByName[fn.Name] == nil {
				tu.FunctionsByName[fn.Name] = fn
			}
		}
		// Keep walking the body: local structs and lambdas still
		// contribute type facts.
		collectChildren(tu, node, true)
		return

	case "struct_specifier", "union_specifier", "class_specifier":
		if body := node.ChildByFieldName("body"); body != nil {
			buildAggregate(tu, node, insideFunction)
		} else if name := node.ChildByFieldName("name"); name != nil {
			tu.TypeNames[tu.Text(name)] = true
		}
		collectChildren(tu, node, insideFunction)
		return

	case "enum_specifier":
		if name := node.ChildByFieldName("name"); name != nil {
			tu.TypeNames[tu.Text(name)] = true
		}

	case "type_definition":
		for i := range int(node.NamedChildCount()) {
			child := node.NamedChild(i)
			if child != nil && child.Type() == "type_identifier" {
				tu.TypeNames[tu.Text(child)] = true
			}
		}

	case "alias_declaration":
		if name := node.ChildByFieldName("name"); name != nil {
			tu.TypeNames[tu.Text(name)] = true
		}

	case "declaration":
		if !insideFunction {
			recordGlobal(tu, node)
		}
	}

	collectChildren(tu, node, insideFunction)
}

func collectChildren(tu *TranslationUnit, node *sitter.Node, insideFunction bool) {
	for i := range int(node.ChildCount()) {
		collect(tu, node.Child(i), insideFunction)
	}
}

func buildFunction(tu *TranslationUnit, def *sitter.Node) *Function {
	body := def.ChildByFieldName("body")
	if body == nil {
		return nil
	}

	fn := &Function{
		Node: def,
		Body: body,
	}

	decl := parser.FunctionDeclarator(def)
	if decl == nil {
		return nil
	}

	nameNode := decl.ChildByFieldName("declarator")
	if nameNode != nil && nameNode.Type() == "qualified_identifier" {
		if scope := nameNode.ChildByFieldName("scope"); scope != nil {
			fn.Owner = tu.Text(scope)
		}
	}
	fn.Name = parser.UnwrapDeclarator(decl, tu.Source).Name
	if fn.Name == "" {
		return nil
	}
	if fn.Owner == "" {
		fn.Owner = enclosingClassName(tu, def)
	}

	if params := decl.ChildByFieldName("parameters"); params != nil {
		for i := range int(params.NamedChildCount()) {
			pd := params.NamedChild(i)
			if pd == nil || pd.Type() != "parameter_declaration" {
				continue
			}
			fn.Params = append(fn.Params, buildParam(tu, pd))
		}
	}
	return fn
}

func buildParam(tu *TranslationUnit, pd *sitter.Node) Param {
	p := Param{}
	if t := pd.ChildByFieldName("type"); t != nil {
		p.TypeName = tu.Text(t)
	}
	for i := range int(pd.ChildCount()) {
		if child := pd.Child(i); child != nil && child.Type() == "type_qualifier" {
			if tu.Text(child) == "const" {
				p.Const = true
			}
		}
	}
	if d := pd.ChildByFieldName("declarator"); d != nil {
		info := parser.UnwrapDeclarator(d, tu.Source)
		p.Name = info.Name
		p.NameNode = info.NameNode
		p.ByPointer = info.PointerDepth > 0 || info.IsArray
		p.ByReference = info.IsReference
	}
	return p
}

func enclosingClassName(tu *TranslationUnit, node *sitter.Node) string {
	parent := node.Parent()
	for parent != nil {
		switch parent.Type() {
		case "class_specifier", "struct_specifier":
			if name := parent.ChildByFieldName("name"); name != nil {
				return tu.Text(name)
			}
			return ""
		case "function_definition":
			return ""
		}
		parent = parent.Parent()
	}
	return ""
}

func aggregateKind(nodeType string) AggregateKind {
	switch nodeType {
	case "union_specifier":
		return KindUnion
	case "class_specifier":
		return KindClass
	default:
		return KindStruct
	}
}

func buildAggregate(tu *TranslationUnit, node *sitter.Node, local bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		// Anonymous aggregates are handled by the enclosing named
		// aggregate's member walk.
		return
	}
	name := tu.Text(nameNode)
	if name == "" || tu.AggregatesByName[name] != nil {
		tu.TypeNames[name] = true
		return
	}

	agg := &Aggregate{
		Kind: aggregateKind(node.Type()),
		Name: name,
		Node: node,
	}

	if bases := findChildOfType(node, "base_class_clause"); bases != nil {
		for i := range int(bases.NamedChildCount()) {
			b := bases.NamedChild(i)
			if b != nil && b.Type() == "type_identifier" {
				agg.Bases = append(agg.Bases, tu.Text(b))
			}
		}
	}

	body := node.ChildByFieldName("body")
	collectMembers(tu, agg, body)

	tu.Aggregates = append(tu.Aggregates, agg)
	tu.AggregatesByName[name] = agg
	tu.TypeNames[name] = true
}

// collectMembers gathers the data members of an aggregate body, folding the
// members of anonymous nested structs/unions into the outer aggregate.
func collectMembers(tu *TranslationUnit, agg *Aggregate, body *sitter.Node) {
	if body == nil {
		return
	}
	for i := range int(body.ChildCount()) {
		child := body.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "field_declaration":
			collectFieldDeclaration(tu, agg, child)
		case "function_definition", "template_declaration", "friend_declaration":
			agg.HasMethods = true
		case "declaration":
			// A declaration inside a class body with a function
			// declarator is a method prototype.
			if len(parser.FindNodesByType(child, tu.Source, "function_declarator")) > 0 {
				agg.HasMethods = true
			}
		}
	}
}

func collectFieldDeclaration(tu *TranslationUnit, agg *Aggregate, fd *sitter.Node) {
	// Method prototypes inside field_declaration nodes (C++).
	declared := false
	bitField := findChildOfType(fd, "bitfield_clause") != nil

	for i := range int(fd.ChildCount()) {
		child := fd.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "field_identifier", "array_declarator", "pointer_declarator":
			info := parser.UnwrapDeclarator(child, tu.Source)
			if info.Name == "" {
				continue
			}
			if info.IsFunction {
				agg.HasMethods = true
				continue
			}
			agg.Members = append(agg.Members, &Member{
				Name:     info.Name,
				Node:     info.NameNode,
				BitField: bitField,
			})
			declared = true
		case "function_declarator":
			agg.HasMethods = true
			declared = true
		}
	}

	if declared {
		return
	}

	// No declarator: either an unnamed bit-field (never reported, it has
	// no identifier) or an anonymous nested aggregate whose members belong
	// to this aggregate.
	if t := fd.ChildByFieldName("type"); t != nil {
		switch t.Type() {
		case "struct_specifier", "union_specifier":
			if t.ChildByFieldName("name") == nil {
				collectMembers(tu, agg, t.ChildByFieldName("body"))
			}
		}
	}
}

func recordGlobal(tu *TranslationUnit, decl *sitter.Node) {
	storage := StorageAuto
	for i := range int(decl.ChildCount()) {
		child := decl.Child(i)
		if child != nil && child.Type() == "storage_class_specifier" {
			switch tu.Text(child) {
			case "static":
				storage = StorageStatic
			case "extern":
				storage = StorageExtern
			case "register":
				storage = StorageRegister
			}
		}
	}

	for i := range int(decl.ChildCount()) {
		child := decl.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "identifier", "init_declarator", "pointer_declarator", "array_declarator":
			info := parser.UnwrapDeclarator(child, tu.Source)
			if info.Name != "" && !info.IsFunction {
				tu.Globals[info.Name] = storage
			}
		case "function_declarator":
			// Forward declaration, not a variable.
		}
	}
}

func findChildOfType(node *sitter.Node, nodeType string) *sitter.Node {
	for i := range int(node.ChildCount()) {
		child := node.Child(i)
		if child != nil && child.Type() == nodeType {
			return child
		}
	}
	return nil
}
