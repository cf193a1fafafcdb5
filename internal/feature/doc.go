// Package feature extracts structural features from function definitions.
//
// A source file is parsed with tree-sitter and every function definition in
// it becomes a Record: the snake-cased name, the declared parameter names,
// the kind of each top-level statement of the body and the enclosing class
// (or Go receiver type). Records serialize to a flat JSON string that is
// stored verbatim in the document store.
//
// Languages are pluggable through a Registry. DefaultRegistry knows Python
// and Go.
//
//	ex := feature.NewExtractor(feature.DefaultRegistry())
//	records, err := ex.ExtractFile(ctx, "wsgi.py")
package feature
