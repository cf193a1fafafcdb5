package feature

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

var goStatements = map[string]Kind{
	"expression_statement":        KindExpr,
	"send_statement":              KindSend,
	"inc_statement":               KindIncDec,
	"dec_statement":               KindIncDec,
	"assignment_statement":        KindAssign,
	"short_var_declaration":       KindAssign,
	"var_declaration":             KindDecl,
	"const_declaration":           KindDecl,
	"type_declaration":            KindDecl,
	"return_statement":            KindReturn,
	"go_statement":                KindGo,
	"defer_statement":             KindDefer,
	"if_statement":                KindIf,
	"for_statement":               KindFor,
	"expression_switch_statement": KindSwitch,
	"type_switch_statement":       KindSwitch,
	"select_statement":            KindSelect,
	"labeled_statement":           KindLabeled,
	"goto_statement":              KindGoto,
	"break_statement":             KindBreak,
	"continue_statement":          KindContinue,
	"fallthrough_statement":       KindFallthrough,
	"block":                       KindBlock,
	"empty_statement":             KindEmpty,
}

// RegisterGo registers the Go grammar under "go".
func RegisterGo(r *Registry) {
	r.Register("go", &LanguageSpec{
		Language:   golang.GetLanguage(),
		Extensions: []string{"go"},
		Functions: map[string]bool{
			"function_declaration": true,
			"method_declaration":   true,
		},
		Statements: goStatements,
		Refine:     refineGo,
		Describe:   describeGo,
		Body:       goBody,
	})
}

func refineGo(n *sitter.Node, k Kind) Kind {
	if n.Type() != "assignment_statement" {
		return k
	}
	if op := n.ChildByFieldName("operator"); op != nil && op.Type() != "=" {
		return KindAugAssign
	}
	return k
}

// goBody returns the statements of a function body. Newer grammars wrap
// them in a statement_list node. Declarations without a body yield nothing.
func goBody(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for _, c := range namedChildren(n.ChildByFieldName("body")) {
		if c.Type() == "statement_list" {
			out = append(out, namedChildren(c)...)
			continue
		}
		out = append(out, c)
	}
	return out
}

func describeGo(n *sitter.Node, src []byte) (string, []string, string) {
	var name string
	if id := n.ChildByFieldName("name"); id != nil {
		name = id.Content(src)
	}

	var args []string
	for _, p := range namedChildren(n.ChildByFieldName("parameters")) {
		args = append(args, goParamNames(p, src)...)
	}

	var cls string
	if n.Type() == "method_declaration" {
		for _, p := range namedChildren(n.ChildByFieldName("receiver")) {
			if t := p.ChildByFieldName("type"); t != nil {
				cls = goBaseType(t, src)
				break
			}
		}
	}
	return name, args, cls
}

// goParamNames returns every name bound by one parameter declaration;
// "a, b int" binds two, an unnamed "int" binds none.
func goParamNames(p *sitter.Node, src []byte) []string {
	switch p.Type() {
	case "parameter_declaration", "variadic_parameter_declaration":
	default:
		return nil
	}
	var names []string
	for i := 0; i < int(p.ChildCount()); i++ {
		if p.FieldNameForChild(i) == "name" {
			names = append(names, p.Child(i).Content(src))
		}
	}
	return names
}

// goBaseType strips pointers, generics and package qualifiers from a
// receiver type.
func goBaseType(t *sitter.Node, src []byte) string {
	switch t.Type() {
	case "type_identifier":
		return t.Content(src)
	case "pointer_type", "parenthesized_type":
		if t.NamedChildCount() > 0 {
			return goBaseType(t.NamedChild(0), src)
		}
	case "generic_type":
		if inner := t.ChildByFieldName("type"); inner != nil {
			return goBaseType(inner, src)
		}
	case "qualified_type":
		if inner := t.ChildByFieldName("name"); inner != nil {
			return goBaseType(inner, src)
		}
	}
	return ""
}
