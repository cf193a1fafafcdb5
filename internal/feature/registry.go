package feature

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// LanguageSpec describes how to find functions in one tree-sitter grammar.
type LanguageSpec struct {
	Language *sitter.Language
	// Extensions are file extensions without the dot.
	Extensions []string
	// Functions is the set of node types that define a function. Anonymous
	// functions are expressions and are not listed.
	Functions map[string]bool
	// Statements maps statement node types to their Kind. Node types missing
	// from the table, such as comments, are not statements.
	Statements map[string]Kind
	// Refine adjusts the table Kind for nodes whose Kind depends on their
	// children. Optional.
	Refine func(n *sitter.Node, k Kind) Kind
	// Describe returns the raw name, argument names and enclosing type of a
	// function node.
	Describe func(n *sitter.Node, src []byte) (name string, args []string, cls string)
	// Body returns the top-level statements of a function node.
	Body func(n *sitter.Node) []*sitter.Node
}

// Registry maps language names and file extensions to language specs.
type Registry struct {
	mu    sync.RWMutex
	langs map[string]*LanguageSpec
	exts  map[string]string // extension -> language name
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		langs: make(map[string]*LanguageSpec),
		exts:  make(map[string]string),
	}
}

// DefaultRegistry returns a registry with Python and Go registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterPython(r)
	RegisterGo(r)
	return r
}

// Register adds a language spec under the given name.
func (r *Registry) Register(name string, spec *LanguageSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.langs[name] = spec
	for _, ext := range spec.Extensions {
		r.exts[ext] = name
	}
}

// Language returns the spec registered under name.
func (r *Registry) Language(name string) (*LanguageSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.langs[name]
	return spec, ok
}

// Lookup returns the spec and language name for a file path based on its
// extension, or nil.
func (r *Registry) Lookup(path string) (*LanguageSpec, string) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.exts[ext]
	if !ok {
		return nil, ""
	}
	return r.langs[name], name
}

// Names returns the registered language names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.langs))
	for name := range r.langs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
