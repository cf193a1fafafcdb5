package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/codetoname/internal/feature"
	"github.com/fyrsmithlabs/codetoname/internal/ignore"
	"github.com/fyrsmithlabs/codetoname/internal/logging"
	"go.uber.org/zap"
)

// defaultSkipDirs are directories that are never walked.
// These typically contain generated code, dependencies, or version control data.
var defaultSkipDirs = map[string]bool{
	".git":          true,
	".svn":          true,
	".hg":           true,
	"node_modules":  true,
	"vendor":        true,
	".venv":         true,
	"venv":          true,
	"__pycache__":   true,
	".tox":          true,
	".idea":         true,
	".vscode":       true,
	".cache":        true,
	"dist":          true,
	"build":         true,
	"site-packages": true,
}

// Resolver produces the feature records of a repository snapshot.
type Resolver struct {
	extractor *feature.Extractor
	fetcher   Fetcher
	opts      Options
	logger    *logging.Logger
}

// NewResolver creates a resolver. A nil logger discards output.
func NewResolver(extractor *feature.Extractor, opts Options, logger *logging.Logger) *Resolver {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = &GitFetcher{Auth: opts.Auth}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{
		extractor: extractor,
		fetcher:   fetcher,
		opts:      opts,
		logger:    logger,
	}
}

// Resolve returns the records of every function in the source's files
// written in language.
func (r *Resolver) Resolve(ctx context.Context, src Source, language string) ([]feature.Record, error) {
	records, _, err := r.ResolveWithStats(ctx, src, language)
	return records, err
}

// ResolveWithStats is Resolve plus walk statistics.
//
// The language is checked before anything else, so an unsupported language
// fails even for an empty source.
func (r *Resolver) ResolveWithStats(ctx context.Context, src Source, language string) ([]feature.Record, Stats, error) {
	spec, ok := r.extractor.Registry().Language(language)
	if !ok {
		return nil, Stats{}, fmt.Errorf("%w: %q", feature.ErrUnsupportedLanguage, language)
	}
	if src.URL == "" {
		return []feature.Record{}, Stats{}, nil
	}

	dir, cleanup, err := r.snapshot(ctx, src)
	if err != nil {
		return nil, Stats{}, err
	}
	defer cleanup()

	return r.walk(ctx, dir, spec)
}

// snapshot returns a directory holding the source and a func that releases
// it. Local directories are used as they are.
func (r *Resolver) snapshot(ctx context.Context, src Source) (string, func(), error) {
	if info, err := os.Stat(src.URL); err == nil && info.IsDir() {
		return filepath.Clean(src.URL), func() {}, nil
	}

	dir, err := os.MkdirTemp(r.opts.WorkDir, "codetoname-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating clone dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn(ctx, "failed to remove clone dir", zap.String("dir", dir), zap.Error(err))
		}
	}

	r.logger.Debug(ctx, "cloning repository",
		zap.String("url", logging.RedactURL(src.URL)),
		zap.String("branch", src.Branch))

	if err := r.fetcher.Fetch(ctx, src, dir); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("fetching %s: %w", logging.RedactURL(src.URL), err)
	}
	return dir, cleanup, nil
}

func (r *Resolver) walk(ctx context.Context, root string, spec *feature.LanguageSpec) ([]feature.Record, Stats, error) {
	exts := make(map[string]bool, len(spec.Extensions))
	for _, ext := range spec.Extensions {
		exts["."+ext] = true
	}

	ignored, err := ignore.Load(root, ignore.FileName)
	if err != nil {
		r.logger.Warn(ctx, "failed to read ignore files", zap.Error(err))
		ignored = nil
	}

	records := []feature.Record{}
	var stats Stats

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}

		if d.IsDir() {
			if defaultSkipDirs[d.Name()] || ignored.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if !d.Type().IsRegular() || !exts[filepath.Ext(path)] || ignored.Match(rel, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", rel, err)
		}
		if info.Size() > r.opts.MaxFileSize {
			stats.Skipped++
			r.logger.Debug(ctx, "skipping large file", zap.String("path", rel), zap.Int64("size", info.Size()))
			return nil
		}

		found, err := r.extractor.ExtractFile(ctx, path)
		if errors.Is(err, feature.ErrParse) {
			stats.Skipped++
			r.logger.Debug(ctx, "skipping unparsable file", zap.String("path", rel), zap.Error(err))
			return nil
		}
		if err != nil {
			return fmt.Errorf("extracting %s: %w", rel, err)
		}

		stats.Files++
		stats.Records += len(found)
		records = append(records, found...)
		r.logger.Trace(ctx, "extracted file", zap.String("path", rel), zap.Int("records", len(found)))
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("walking %s: %w", root, err)
	}

	return records, stats, nil
}
