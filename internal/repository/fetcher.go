package repository

import (
	"context"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Fetcher materializes a source into an empty directory.
type Fetcher interface {
	Fetch(ctx context.Context, src Source, dir string) error
}

// GitFetcher shallow-clones sources with go-git.
type GitFetcher struct {
	Auth *githttp.BasicAuth
}

// Fetch clones src.URL at depth 1 into dir, restricted to src.Branch when set.
func (f *GitFetcher) Fetch(ctx context.Context, src Source, dir string) error {
	opts := &git.CloneOptions{
		URL:   src.URL,
		Depth: 1,
		Tags:  git.NoTags,
	}
	if src.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(src.Branch)
		opts.SingleBranch = true
	}
	if f.Auth != nil {
		opts.Auth = f.Auth
	}

	_, err := git.PlainCloneContext(ctx, dir, false, opts)
	return err
}
