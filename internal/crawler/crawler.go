// Package crawler drives the crawl: it pages through the repository feed,
// skips repositories that are already indexed, extracts features from the
// rest and appends them to the document store.
//
// Each step is sequential. Repositories within a batch are processed one at
// a time and the store is refreshed after every repository so the dedup
// check for the next one sees its writes.
package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/codetoname/internal/config"
	"github.com/fyrsmithlabs/codetoname/internal/cursor"
	"github.com/fyrsmithlabs/codetoname/internal/feature"
	"github.com/fyrsmithlabs/codetoname/internal/github"
	"github.com/fyrsmithlabs/codetoname/internal/logging"
	"github.com/fyrsmithlabs/codetoname/internal/repository"
	"github.com/fyrsmithlabs/codetoname/internal/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/codetoname/internal/crawler"

	// dedupField is the document field identifying a repository.
	dedupField = "repo.github_id"
)

// Feed lists repositories page by page.
type Feed interface {
	SearchRepositories(ctx context.Context, req github.SearchRequest) (*github.SearchResult, error)
	Close() error
}

// Resolver extracts the feature records of one repository.
type Resolver interface {
	Resolve(ctx context.Context, src repository.Source, language string) ([]feature.Record, error)
}

// Deps are the crawler's collaborators.
type Deps struct {
	Feed     Feed
	Store    store.Store
	Resolver Resolver
	Logger   *logging.Logger
}

// Crawler indexes repositories of one language into one index.
type Crawler struct {
	cfg         config.CrawlConfig
	feed        Feed
	store       store.Store
	resolver    Resolver
	cursor      *cursor.Cursor
	logger      *logging.Logger
	tracer      trace.Tracer
	runID       string
	createIndex bool
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithoutIndexCreation leaves a missing index missing. Commands that only
// read or delete the index use it.
func WithoutIndexCreation() Option {
	return func(c *Crawler) {
		c.createIndex = false
	}
}

// New creates a crawler, creating the index when it does not exist. With
// cfg.Resume set the cursor continues from the state saved by the previous
// run, if any.
func New(ctx context.Context, cfg config.CrawlConfig, deps Deps, opts ...Option) (*Crawler, error) {
	if deps.Feed == nil || deps.Store == nil || deps.Resolver == nil {
		return nil, errors.New("crawler requires a feed, a store and a resolver")
	}
	cfg.Language = strings.TrimSpace(cfg.Language)
	if cfg.Language == "" {
		return nil, errors.New("crawl language is required")
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = config.FailurePolicyContinue
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	c := &Crawler{
		cfg:         cfg,
		feed:        deps.Feed,
		store:       deps.Store,
		resolver:    deps.Resolver,
		logger:      logger.Named("crawler"),
		tracer:      otel.Tracer(instrumentationName),
		runID:       uuid.NewString(),
		createIndex: true,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.createIndex {
		if err := c.store.CreateIndex(ctx, cfg.Index); err != nil {
			return nil, fmt.Errorf("creating index: %w", err)
		}
	}

	cur, err := c.loadCursor(ctx)
	if err != nil {
		return nil, err
	}
	c.cursor = cur
	return c, nil
}

func (c *Crawler) cursorKey() string {
	return cursor.Key(c.cfg.Index, c.cfg.Language)
}

func (c *Crawler) loadCursor(ctx context.Context) (*cursor.Cursor, error) {
	if c.cfg.Resume {
		st, err := c.store.LoadCursor(ctx, c.cursorKey())
		if err != nil {
			return nil, fmt.Errorf("loading cursor: %w", err)
		}
		if st != nil {
			st.PageSize = c.cfg.PageSize
			cur, err := cursor.FromState(*st)
			if err != nil {
				return nil, fmt.Errorf("restoring cursor: %w", err)
			}
			c.logger.Info(ctx, "resuming crawl",
				zap.Int("page_number", st.PageNumber),
				zap.Timep("last_pushed", st.LastPushed))
			return cur, nil
		}
	}
	cur, err := cursor.New(c.cfg.PageSize, c.cfg.PageNum)
	if err != nil {
		return nil, fmt.Errorf("creating cursor: %w", err)
	}
	return cur, nil
}

// RunID identifies this crawler's run in logs.
func (c *Crawler) RunID() string {
	return c.runID
}

// Cursor returns the current cursor state.
func (c *Crawler) Cursor() cursor.State {
	return c.cursor.State()
}

// Exists reports whether the repository with the given id has any entry
// in the current language partition.
func (c *Crawler) Exists(ctx context.Context, id int64) (bool, error) {
	n, err := c.store.TermQueryCount(ctx, c.cfg.Index, c.cfg.Language, dedupField, id)
	if err != nil {
		return false, fmt.Errorf("checking repository %d: %w", id, err)
	}
	return n != 0, nil
}

// Next runs one crawl step.
//
// A feed error aborts the step before the cursor moves. Repository failures
// are recorded in the result; under the abort policy the first one is also
// returned as a *RepoError.
func (c *Crawler) Next(ctx context.Context) (*StepResult, error) {
	ctx = logging.WithRunID(ctx, c.runID)
	ctx, span := c.tracer.Start(ctx, "crawler.next")
	defer span.End()

	start := time.Now()
	defer func() { StepDuration.Observe(time.Since(start).Seconds()) }()

	q := c.cursor.Advance()
	span.SetAttributes(attribute.Int("page", q.Page), attribute.Int("per_page", q.PerPage))

	res, err := c.feed.SearchRepositories(ctx, github.SearchRequest{
		Language:    c.cfg.Language,
		PushedSince: q.PushedSince,
		Sort:        github.SortUpdated,
		Order:       github.OrderAsc,
		Page:        q.Page,
		PerPage:     q.PerPage,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetching repositories: %w", err)
	}

	pushed := make([]time.Time, 0, len(res.Items))
	for _, item := range res.Items {
		if !item.PushedAt.IsZero() {
			pushed = append(pushed, item.PushedAt)
		}
	}
	caughtUp := c.cursor.Observe(pushed)
	c.saveCursor(ctx)

	BatchSize.Observe(float64(len(res.Items)))
	result := &StepResult{Fetched: len(res.Items), CaughtUp: caughtUp}

	for _, item := range res.Items {
		repo := Repository{
			ID:     item.ID,
			URL:    item.CloneURL,
			Branch: item.DefaultBranch,
			Fork:   item.Fork,
		}
		if err := c.process(ctx, repo, result); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}
	}

	span.SetAttributes(
		attribute.Int("fetched", result.Fetched),
		attribute.Int("indexed", result.Indexed),
		attribute.Int("failures", len(result.Failures)),
	)
	c.logger.Info(ctx, "crawl step complete",
		zap.Int("fetched", result.Fetched),
		zap.Int("skipped", result.Skipped),
		zap.Int("indexed", result.Indexed),
		zap.Int("written", result.Written),
		zap.Int("failures", len(result.Failures)))
	return result, nil
}

// process handles one repository of a batch. It only returns an error under
// the abort policy.
func (c *Crawler) process(ctx context.Context, repo Repository, result *StepResult) error {
	ctx = logging.WithRepository(ctx, repo.ID, logging.RedactURL(repo.URL))

	if c.cfg.SkipForks && repo.Fork {
		result.Skipped++
		RepositoriesTotal.WithLabelValues(outcomeFork).Inc()
		c.logger.Debug(ctx, "skipping fork")
		return nil
	}

	exists, err := c.Exists(ctx, repo.ID)
	if err == nil && exists {
		result.Skipped++
		RepositoriesTotal.WithLabelValues(outcomeDuplicate).Inc()
		c.logger.Debug(ctx, "repository already indexed")
		return nil
	}

	var written int
	if err == nil {
		written, err = c.index(ctx, repo)
		result.Written += written
	}
	if err == nil {
		result.Indexed++
		RepositoriesTotal.WithLabelValues(outcomeIndexed).Inc()
		c.logger.Debug(ctx, "repository indexed", zap.Int("entries", written))
		return nil
	}

	failure := &RepoError{Repo: repo, Err: err}
	result.Failures = append(result.Failures, failure)
	RepositoriesTotal.WithLabelValues(outcomeFailed).Inc()
	c.logger.Error(ctx, "repository failed", zap.Error(err))

	if c.cfg.FailurePolicy == config.FailurePolicyAbort {
		return failure
	}
	return nil
}

// index resolves repo and writes its entries: one per record, or a single
// entry without a feature when there are none. It returns the number of
// entries written. On failure nothing of repo stays buffered, so a failed
// repository has no entries and is retried by a later pass.
func (c *Crawler) index(ctx context.Context, repo Repository) (int, error) {
	records, err := c.resolver.Resolve(ctx, repository.Source{URL: repo.URL, Branch: repo.Branch}, c.cfg.Language)
	if err != nil {
		return 0, fmt.Errorf("resolving features: %w", err)
	}

	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		s, err := rec.Serialize()
		if err != nil {
			return 0, err
		}
		entries = append(entries, Entry{Repo: repo, Feature: &s})
	}
	if len(entries) == 0 {
		entries = append(entries, Entry{Repo: repo})
	}

	for _, e := range entries {
		if err := c.store.Write(ctx, c.cfg.Index, c.cfg.Language, e); err != nil {
			return 0, c.discard(ctx, fmt.Errorf("writing entry: %w", err))
		}
	}
	if err := c.store.Refresh(ctx, c.cfg.Index); err != nil {
		return 0, c.discard(ctx, fmt.Errorf("refreshing index: %w", err))
	}
	EntriesWritten.Add(float64(len(entries)))
	return len(entries), nil
}

// discard drops the writes still buffered for the index and returns err.
func (c *Crawler) discard(ctx context.Context, err error) error {
	if n := c.store.Discard(c.cfg.Index); n > 0 {
		c.logger.Debug(ctx, "discarded buffered entries", zap.Int("entries", n))
	}
	return err
}

func (c *Crawler) saveCursor(ctx context.Context) {
	if !c.cfg.Resume {
		return
	}
	if err := c.store.SaveCursor(ctx, c.cursorKey(), c.cursor.State()); err != nil {
		c.logger.Warn(ctx, "failed to save cursor", zap.Error(err))
	}
}

// Run drives Next steps times. A negative steps runs until the feed is
// exhausted. Cancellation is checked between steps.
func (c *Crawler) Run(ctx context.Context, steps int) (RunSummary, error) {
	var summary RunSummary
	for i := 0; steps < 0 || i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res, err := c.Next(ctx)
		if res != nil {
			summary.add(res)
		}
		if err != nil {
			return summary, err
		}
		if steps < 0 && res.Exhausted() {
			break
		}
	}
	return summary, nil
}

// NumFeatures returns the number of stored entries. A missing index has
// none.
func (c *Crawler) NumFeatures(ctx context.Context) (int64, error) {
	n, err := c.store.Count(ctx, c.cfg.Index)
	if errors.Is(err, store.ErrIndexNotFound) {
		return 0, nil
	}
	return n, err
}

// NumRepos returns the number of distinct repositories indexed for the
// current language.
func (c *Crawler) NumRepos(ctx context.Context) (int64, error) {
	n, err := c.store.CardinalityAggregate(ctx, c.cfg.Index, c.cfg.Language, dedupField)
	if errors.Is(err, store.ErrIndexNotFound) {
		return 0, nil
	}
	return n, err
}

// Features returns up to limit stored entries of the current language in
// write order. A limit of 0 or less returns all of them.
func (c *Crawler) Features(ctx context.Context, limit int) ([]Entry, error) {
	docs, err := c.store.Search(ctx, c.cfg.Index, c.cfg.Language, limit)
	if errors.Is(err, store.ErrIndexNotFound) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(docs))
	for _, d := range docs {
		var e Entry
		if err := json.Unmarshal(d.Body, &e); err != nil {
			return nil, fmt.Errorf("decoding document %s: %w", d.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CreateIndex creates the index if it does not exist.
func (c *Crawler) CreateIndex(ctx context.Context) error {
	return c.store.CreateIndex(ctx, c.cfg.Index)
}

// DeleteIndex removes the index if it exists and rewinds the cursor, so
// the next crawl starts from the configured page.
func (c *Crawler) DeleteIndex(ctx context.Context) error {
	err := c.store.DeleteIndex(ctx, c.cfg.Index)
	if err != nil && !errors.Is(err, store.ErrIndexNotFound) {
		return err
	}
	cur, err := cursor.New(c.cfg.PageSize, c.cfg.PageNum)
	if err != nil {
		return err
	}
	c.cursor = cur
	c.saveCursor(ctx)
	return nil
}

// Close releases the feed and the store.
func (c *Crawler) Close() error {
	return errors.Join(c.feed.Close(), c.store.Close())
}
