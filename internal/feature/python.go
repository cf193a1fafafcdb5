package feature

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

var pythonStatements = map[string]Kind{
	"expression_statement":    KindExpr,
	"print_statement":         KindExpr,
	"exec_statement":          KindExpr,
	"return_statement":        KindReturn,
	"if_statement":            KindIf,
	"for_statement":           KindFor,
	"while_statement":         KindWhile,
	"try_statement":           KindTry,
	"with_statement":          KindWith,
	"function_definition":     KindFunctionDef,
	"class_definition":        KindClassDef,
	"decorated_definition":    KindFunctionDef,
	"raise_statement":         KindRaise,
	"assert_statement":        KindAssert,
	"delete_statement":        KindDelete,
	"import_statement":        KindImport,
	"import_from_statement":   KindImportFrom,
	"future_import_statement": KindImportFrom,
	"global_statement":        KindGlobal,
	"nonlocal_statement":      KindNonlocal,
	"pass_statement":          KindPass,
	"break_statement":         KindBreak,
	"continue_statement":      KindContinue,
	"match_statement":         KindMatch,
	"type_alias_statement":    KindTypeAlias,
}

// RegisterPython registers the Python grammar under "python".
func RegisterPython(r *Registry) {
	r.Register("python", &LanguageSpec{
		Language:   python.GetLanguage(),
		Extensions: []string{"py", "pyi"},
		Functions:  map[string]bool{"function_definition": true},
		Statements: pythonStatements,
		Refine:     refinePython,
		Describe:   describePython,
		Body: func(n *sitter.Node) []*sitter.Node {
			return namedChildren(n.ChildByFieldName("body"))
		},
	})
}

func refinePython(n *sitter.Node, k Kind) Kind {
	switch n.Type() {
	case "expression_statement":
		if n.NamedChildCount() == 0 {
			return k
		}
		expr := n.NamedChild(0)
		switch expr.Type() {
		case "assignment":
			if expr.ChildByFieldName("type") != nil {
				return KindAnnAssign
			}
			return KindAssign
		case "augmented_assignment":
			return KindAugAssign
		}
	case "for_statement":
		if isAsync(n) {
			return KindAsyncFor
		}
	case "with_statement":
		if isAsync(n) {
			return KindAsyncWith
		}
	case "function_definition":
		if isAsync(n) {
			return KindAsyncFunctionDef
		}
	case "decorated_definition":
		if def := n.ChildByFieldName("definition"); def != nil {
			if def.Type() == "class_definition" {
				return KindClassDef
			}
			if isAsync(def) {
				return KindAsyncFunctionDef
			}
		}
	}
	return k
}

func isAsync(n *sitter.Node) bool {
	return n.ChildCount() > 0 && n.Child(0).Type() == "async"
}

func describePython(n *sitter.Node, src []byte) (string, []string, string) {
	var name string
	if id := n.ChildByFieldName("name"); id != nil {
		name = id.Content(src)
	}

	var args []string
	for _, p := range namedChildren(n.ChildByFieldName("parameters")) {
		if arg := pythonParamName(p, src); arg != "" {
			args = append(args, arg)
		}
	}

	return name, args, pythonEnclosingClass(n, src)
}

// pythonParamName returns the declared name of one parameter node. Separators
// and tuple patterns have no name.
func pythonParamName(p *sitter.Node, src []byte) string {
	switch p.Type() {
	case "identifier":
		return p.Content(src)
	case "default_parameter", "typed_default_parameter":
		if id := p.ChildByFieldName("name"); id != nil {
			return pythonParamName(id, src)
		}
	case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
		if p.NamedChildCount() > 0 {
			return pythonParamName(p.NamedChild(0), src)
		}
	}
	return ""
}

// pythonEnclosingClass returns the name of the class whose body directly
// contains the function, looking through one decorator wrapper.
func pythonEnclosingClass(n *sitter.Node, src []byte) string {
	parent := n.Parent()
	if parent != nil && parent.Type() == "decorated_definition" {
		parent = parent.Parent()
	}
	if parent == nil || parent.Type() != "block" {
		return ""
	}
	class := parent.Parent()
	if class == nil || class.Type() != "class_definition" {
		return ""
	}
	if id := class.ChildByFieldName("name"); id != nil {
		return id.Content(src)
	}
	return ""
}
