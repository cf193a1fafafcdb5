package feature

import (
	"context"
	"errors"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"
)

var (
	// ErrParse matches every *ParseError.
	ErrParse = errors.New("parse error")
	// ErrUnsupportedLanguage is returned for languages or file extensions
	// with no registered grammar.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// ParseError reports a file that could not be read or parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse: %v", e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrParse) true for any ParseError.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

var errSyntax = errors.New("syntax tree contains errors")

// Extractor turns source files into feature records. It is safe for
// concurrent use; each call gets its own parser.
type Extractor struct {
	registry *Registry
}

// NewExtractor creates an extractor backed by the given registry.
func NewExtractor(r *Registry) *Extractor {
	return &Extractor{registry: r}
}

// Registry returns the extractor's language registry.
func (e *Extractor) Registry() *Registry {
	return e.registry
}

// ExtractFile reads and parses the file at path. A path that cannot be read
// is a *ParseError whatever its extension; a readable file with an
// unregistered extension is ErrUnsupportedLanguage.
func (e *Extractor) ExtractFile(ctx context.Context, path string) ([]Record, error) {
	if path == "" {
		return nil, &ParseError{Err: errors.New("empty path")}
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	spec, _ := e.registry.Lookup(path)
	if spec == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, path)
	}
	records, err := extract(ctx, spec, src)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return records, nil
}

// ExtractSource parses in-memory source written in lang.
func (e *Extractor) ExtractSource(ctx context.Context, lang string, src []byte) ([]Record, error) {
	spec, ok := e.registry.Language(lang)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	records, err := extract(ctx, spec, src)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return records, nil
}

func extract(ctx context.Context, spec *LanguageSpec, src []byte) ([]Record, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(spec.Language)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, errSyntax
	}

	records := []Record{}
	walk(root, func(n *sitter.Node) {
		if spec.Functions[n.Type()] {
			records = append(records, describe(spec, n, src))
		}
	})
	return records, nil
}

// walk visits n and its named descendants in pre-order, which is source
// order.
func walk(n *sitter.Node, visit func(*sitter.Node)) {
	visit(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), visit)
	}
}

func describe(spec *LanguageSpec, n *sitter.Node, src []byte) Record {
	name, args, cls := spec.Describe(n, src)
	if args == nil {
		args = []string{}
	}
	body := []Kind{}
	for _, stmt := range spec.Body(n) {
		if k, ok := classify(spec, stmt); ok {
			body = append(body, k)
		}
	}
	return Record{
		Name: strPtr(Normalize(name)),
		Args: args,
		Body: body,
		Cls:  strPtr(cls),
	}
}

func classify(spec *LanguageSpec, n *sitter.Node) (Kind, bool) {
	k, ok := spec.Statements[n.Type()]
	if !ok {
		return "", false
	}
	if spec.Refine != nil {
		k = spec.Refine(n, k)
	}
	return k, true
}

// firstChildOfType returns the first child of n (named or not) with the
// given type.
func firstChildOfType(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c.Type() == typ {
			return c
		}
	}
	return nil
}

// namedChildren returns the named children of n, or nil when n is nil.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}
