// Package repository resolves a repository to the feature records of every
// matching source file in it.
//
// A Source naming a local directory is walked in place and never modified.
// Anything else is shallow-cloned into a temporary directory that is removed
// before Resolve returns, whatever the outcome.
//
// Files the grammar rejects are skipped and logged at debug level; real
// repositories routinely contain a few. Directories holding VCS metadata,
// dependencies or build output are not descended into, and files above
// Options.MaxFileSize are skipped.
//
//	r := repository.NewResolver(feature.NewExtractor(feature.DefaultRegistry()), repository.Options{}, logger)
//	records, err := r.Resolve(ctx, repository.Source{URL: cloneURL, Branch: "main"}, "python")
package repository
