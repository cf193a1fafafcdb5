package repository

import (
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// DefaultMaxFileSize is the per-file size limit when Options leaves it unset.
const DefaultMaxFileSize = 1024 * 1024

// Source locates a repository snapshot.
type Source struct {
	// URL is a clone URL or a path to a local working copy. An empty URL
	// resolves to no records.
	URL string

	// Branch to clone. Empty means the remote's default branch.
	Branch string
}

// Options configures a Resolver.
type Options struct {
	// MaxFileSize is the largest file, in bytes, that is parsed.
	// Default: 1MB.
	MaxFileSize int64

	// WorkDir is the parent directory for temporary clones. Empty uses the
	// system temp directory.
	WorkDir string

	// Auth is used by the default GitFetcher. Nil clones anonymously.
	Auth *githttp.BasicAuth

	// Fetcher materializes remote sources. Defaults to a GitFetcher.
	Fetcher Fetcher
}

// Stats summarizes one resolution.
type Stats struct {
	// Files is the number of files parsed successfully.
	Files int
	// Skipped counts matching files that were too large or did not parse.
	Skipped int
	// Records is the number of function records extracted.
	Records int
}
