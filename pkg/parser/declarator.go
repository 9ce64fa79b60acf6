package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// DeclaratorInfo describes the shape of a C/C++ declarator: the declared
// identifier plus how many levels of pointer/array/reference wrapping
// surround it.
type DeclaratorInfo struct {
	Name         string
	NameNode     *sitter.Node
	PointerDepth int
	IsArray      bool
	IsReference  bool
	IsFunction   bool
}

// UnwrapDeclarator digs through nested declarator nodes until it reaches the
// declared identifier. Handles pointer, array, function, reference,
// parenthesized and init declarators for both the C and C++ grammars.
func UnwrapDeclarator(node *sitter.Node, source []byte) DeclaratorInfo {
	var info DeclaratorInfo

	for node != nil {
		switch node.Type() {
		case "identifier", "field_identifier", "type_identifier":
			info.Name = GetNodeText(node, source)
			info.NameNode = node
			return info
		case "pointer_declarator", "abstract_pointer_declarator":
			info.PointerDepth++
			node = node.ChildByFieldName("declarator")
		case "array_declarator":
			info.IsArray = true
			node = node.ChildByFieldName("declarator")
		case "function_declarator":
			info.IsFunction = true
			node = node.ChildByFieldName("declarator")
		case "reference_declarator":
			info.IsReference = true
			node = firstNamedChild(node)
		case "init_declarator":
			node = node.ChildByFieldName("declarator")
		case "parenthesized_declarator":
			node = firstNamedChild(node)
		case "qualified_identifier":
			node = node.ChildByFieldName("name")
		case "operator_name", "destructor_name":
			info.Name = GetNodeText(node, source)
			info.NameNode = node
			return info
		default:
			return info
		}
	}
	return info
}

func firstNamedChild(node *sitter.Node) *sitter.Node {
	for i := range int(node.NamedChildCount()) {
		child := node.NamedChild(i)
		if child != nil && child.Type() != "comment" {
			return child
		}
	}
	return nil
}

// FunctionName extracts the name of a function_definition node.
func FunctionName(def *sitter.Node, source []byte) string {
	decl := def.ChildByFieldName("declarator")
	if decl == nil {
		return ""
	}
	return UnwrapDeclarator(decl, source).Name
}

// FunctionDeclarator returns the function_declarator node of a
// function_definition, unwrapping pointer declarators for functions that
// return pointers.
func FunctionDeclarator(def *sitter.Node) *sitter.Node {
	node := def.ChildByFieldName("declarator")
	for node != nil {
		switch node.Type() {
		case "function_declarator":
			return node
		case "pointer_declarator", "reference_declarator", "parenthesized_declarator":
			next := node.ChildByFieldName("declarator")
			if next == nil {
				next = firstNamedChild(node)
			}
			node = next
		default:
			return nil
		}
	}
	return nil
}

// HasAncestorOfType reports whether any ancestor of node (up to maxDepth
// levels) has the given type.
func HasAncestorOfType(node *sitter.Node, nodeType string, maxDepth int) bool {
	parent := node.Parent()
	for depth := 0; parent != nil && depth < maxDepth; depth++ {
		if parent.Type() == nodeType {
			return true
		}
		parent = parent.Parent()
	}
	return false
}
