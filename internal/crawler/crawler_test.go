package crawler

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/codetoname/internal/config"
	"github.com/fyrsmithlabs/codetoname/internal/feature"
	"github.com/fyrsmithlabs/codetoname/internal/github"
	"github.com/fyrsmithlabs/codetoname/internal/logging"
	"github.com/fyrsmithlabs/codetoname/internal/repository"
	"github.com/fyrsmithlabs/codetoname/internal/store"
	"github.com/fyrsmithlabs/codetoname/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeFeed serves pages in order, then empty pages.
type fakeFeed struct {
	pages    [][]github.Item
	err      error
	requests []github.SearchRequest
	closed   bool
}

func (f *fakeFeed) SearchRepositories(_ context.Context, req github.SearchRequest) (*github.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i >= len(f.pages) {
		return &github.SearchResult{}, nil
	}
	return &github.SearchResult{Total: len(f.pages[i]), Items: f.pages[i]}, nil
}

func (f *fakeFeed) Close() error {
	f.closed = true
	return nil
}

// fakeResolver returns canned records per clone URL.
type fakeResolver struct {
	records map[string][]feature.Record
	errs    map[string]error
	calls   []repository.Source
}

func (r *fakeResolver) Resolve(_ context.Context, src repository.Source, _ string) ([]feature.Record, error) {
	r.calls = append(r.calls, src)
	if err := r.errs[src.URL]; err != nil {
		return nil, err
	}
	return r.records[src.URL], nil
}

// searchFeed answers like the search API: it filters on the pushed time,
// sorts ascending and pages.
type searchFeed struct {
	items    []github.Item
	requests []github.SearchRequest
}

func (f *searchFeed) SearchRepositories(_ context.Context, req github.SearchRequest) (*github.SearchResult, error) {
	f.requests = append(f.requests, req)

	var matched []github.Item
	for _, it := range f.items {
		if req.PushedSince == nil || !it.PushedAt.Before(*req.PushedSince) {
			matched = append(matched, it)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].PushedAt.Equal(matched[j].PushedAt) {
			return matched[i].PushedAt.Before(matched[j].PushedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	start := (req.Page - 1) * req.PerPage
	if start >= len(matched) {
		return &github.SearchResult{Total: len(matched)}, nil
	}
	end := min(start+req.PerPage, len(matched))
	return &github.SearchResult{Total: len(matched), Items: matched[start:end]}, nil
}

func (f *searchFeed) Close() error { return nil }

func newSearchCrawler(t *testing.T, cfg config.CrawlConfig, feed *searchFeed) *Crawler {
	t.Helper()
	st, _ := openStore(t)
	c, err := New(context.Background(), cfg, Deps{
		Feed:     feed,
		Store:    st,
		Resolver: &fakeResolver{records: map[string][]feature.Record{}, errs: map[string]error{}},
		Logger:   logging.NewTestLogger().Logger,
	})
	require.NoError(t, err)
	return c
}

func item(id int64, pushed time.Time) github.Item {
	return github.Item{
		ID:            id,
		CloneURL:      cloneURL(id),
		DefaultBranch: "main",
		PushedAt:      pushed,
	}
}

func cloneURL(id int64) string {
	return "https://github.com/octo/repo" + string(rune('a'+id)) + ".git"
}

func record(name string) feature.Record {
	return feature.Record{Name: &name, Args: []string{"x"}, Body: []feature.Kind{feature.KindReturn}}
}

func testConfig() config.CrawlConfig {
	return config.CrawlConfig{
		Index:         "codetoname",
		Language:      "python",
		PageSize:      10,
		Resume:        true,
		FailurePolicy: config.FailurePolicyContinue,
	}
}

func openStore(t *testing.T) (*store.SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crawl.db")
	s, err := store.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

type harness struct {
	crawler  *Crawler
	feed     *fakeFeed
	resolver *fakeResolver
	store    store.Store
	logs     *logging.TestLogger
}

func newHarness(t *testing.T, cfg config.CrawlConfig, st store.Store, pages ...[]github.Item) *harness {
	t.Helper()
	h := &harness{
		feed:     &fakeFeed{pages: pages},
		resolver: &fakeResolver{records: map[string][]feature.Record{}, errs: map[string]error{}},
		store:    st,
		logs:     logging.NewTestLogger(),
	}
	c, err := New(context.Background(), cfg, Deps{
		Feed:     h.feed,
		Store:    st,
		Resolver: h.resolver,
		Logger:   h.logs.Logger,
	})
	require.NoError(t, err)
	h.crawler = c
	return h
}

func TestNew_CreatesIndex(t *testing.T) {
	st, _ := openStore(t)
	newHarness(t, testConfig(), st)

	ok, err := st.IndexExists(context.Background(), "codetoname")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew_WithoutIndexCreation(t *testing.T) {
	st, _ := openStore(t)
	ctx := context.Background()
	c, err := New(ctx, testConfig(), Deps{
		Feed:     &fakeFeed{},
		Store:    st,
		Resolver: &fakeResolver{},
	}, WithoutIndexCreation())
	require.NoError(t, err)

	ok, err := st.IndexExists(ctx, "codetoname")
	require.NoError(t, err)
	assert.False(t, ok)

	features, err := c.NumFeatures(ctx)
	require.NoError(t, err)
	assert.Zero(t, features)
	repos, err := c.NumRepos(ctx)
	require.NoError(t, err)
	assert.Zero(t, repos)
	entries, err := c.Features(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	require.NoError(t, c.DeleteIndex(ctx))
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(context.Background(), testConfig(), Deps{})
	assert.Error(t, err)
}

// A repository without features is stored once with no feature, and a
// second step over the same feed state writes nothing for it.
func TestNext_EndToEnd_EmptyRepository(t *testing.T) {
	st, _ := openStore(t)
	page := []github.Item{item(1, t0)}
	h := newHarness(t, testConfig(), st, page, page)
	ctx := context.Background()

	res, err := h.crawler.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, 1, res.Written)

	entries, err := h.crawler.Features(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Feature)
	assert.Equal(t, Repository{ID: 1, URL: cloneURL(1), Branch: "main"}, entries[0].Repo)

	res, err = h.crawler.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Written)
	assert.True(t, res.Exhausted(), "nothing pushed after the last batch")
	assert.Len(t, h.resolver.calls, 1)

	n, err := h.crawler.NumFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNext_WritesOneEntryPerRecord(t *testing.T) {
	st, _ := openStore(t)
	h := newHarness(t, testConfig(), st, []github.Item{item(1, t0), item(2, t0.Add(time.Minute))})
	h.resolver.records[cloneURL(1)] = []feature.Record{record("first"), record("second")}
	h.resolver.records[cloneURL(2)] = []feature.Record{record("third")}
	ctx := context.Background()

	res, err := h.crawler.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, 3, res.Written)

	features, err := h.crawler.NumFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), features)

	repos, err := h.crawler.NumRepos(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), repos)

	entries, err := h.crawler.Features(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Feature)
	rec, err := feature.Parse(*entries[0].Feature)
	require.NoError(t, err)
	assert.Equal(t, "first", *rec.Name)

	ok, err := h.crawler.Exists(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = h.crawler.Exists(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExists_Idempotent(t *testing.T) {
	st, _ := openStore(t)
	h := newHarness(t, testConfig(), st, []github.Item{item(1, t0)})
	ctx := context.Background()

	_, err := h.crawler.Next(ctx)
	require.NoError(t, err)

	tests := []struct {
		name string
		id   int64
		want bool
	}{
		{"indexed", 1, true},
		{"unknown", 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := h.crawler.Exists(ctx, tt.id)
			require.NoError(t, err)
			second, err := h.crawler.Exists(ctx, tt.id)
			require.NoError(t, err)

			assert.Equal(t, tt.want, first)
			assert.Equal(t, first, second)
		})
	}
}

func TestNext_DuplicateWithinBatch(t *testing.T) {
	st, _ := openStore(t)
	h := newHarness(t, testConfig(), st, []github.Item{item(1, t0), item(1, t0)})

	res, err := h.crawler.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, 1, res.Skipped)
}

func TestNext_ContinuesPastFailures(t *testing.T) {
	st, _ := openStore(t)
	h := newHarness(t, testConfig(), st, []github.Item{item(1, t0), item(2, t0), item(3, t0)})
	h.resolver.errs[cloneURL(2)] = errors.New("clone failed")
	h.resolver.records[cloneURL(3)] = []feature.Record{record("ok")}

	res, err := h.crawler.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Indexed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, int64(2), res.Failures[0].Repo.ID)
	assert.Contains(t, res.Failures[0].Error(), "clone failed")

	h.logs.AssertLogged(t, zapcore.ErrorLevel, "repository failed")
	h.logs.AssertNoSecrets(t)

	ok, err := h.crawler.Exists(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, ok, "failed repository is retried on a later pass")
}

func TestNext_AbortPolicy(t *testing.T) {
	st, _ := openStore(t)
	cfg := testConfig()
	cfg.FailurePolicy = config.FailurePolicyAbort
	h := newHarness(t, cfg, st, []github.Item{item(1, t0), item(2, t0), item(3, t0)})
	h.resolver.errs[cloneURL(2)] = errors.New("clone failed")

	res, err := h.crawler.Next(context.Background())
	require.Error(t, err)

	var repoErr *RepoError
	require.True(t, errors.As(err, &repoErr))
	assert.Equal(t, int64(2), repoErr.Repo.ID)
	assert.Equal(t, 1, res.Indexed)
	assert.Len(t, h.resolver.calls, 2, "third repository is not processed")
}

func TestNext_SkipForks(t *testing.T) {
	st, _ := openStore(t)
	cfg := testConfig()
	cfg.SkipForks = true
	fork := item(2, t0)
	fork.Fork = true
	h := newHarness(t, cfg, st, []github.Item{item(1, t0), fork})

	res, err := h.crawler.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, h.resolver.calls, 1)
}

func TestNext_ForksIndexedByDefault(t *testing.T) {
	st, _ := openStore(t)
	fork := item(2, t0)
	fork.Fork = true
	h := newHarness(t, testConfig(), st, []github.Item{fork})

	res, err := h.crawler.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)

	entries, err := h.crawler.Features(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Repo.Fork)
}

func TestNext_FeedErrorLeavesCursor(t *testing.T) {
	st, _ := openStore(t)
	h := newHarness(t, testConfig(), st)
	h.feed.err = errors.New("401 Bad credentials")

	before := h.crawler.Cursor()
	_, err := h.crawler.Next(context.Background())
	require.Error(t, err)
	assert.Equal(t, before, h.crawler.Cursor())
}

func TestNext_AdvancesCursor(t *testing.T) {
	st, _ := openStore(t)
	h := newHarness(t, testConfig(), st,
		[]github.Item{item(1, t0), item(2, t0.Add(time.Minute))},
		[]github.Item{item(3, t0.Add(2 * time.Minute))})
	ctx := context.Background()

	_, err := h.crawler.Next(ctx)
	require.NoError(t, err)
	_, err = h.crawler.Next(ctx)
	require.NoError(t, err)

	require.Len(t, h.feed.requests, 2)
	first, second := h.feed.requests[0], h.feed.requests[1]
	assert.Nil(t, first.PushedSince)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, "python", first.Language)
	assert.Equal(t, github.SortUpdated, first.Sort)
	assert.Equal(t, github.OrderAsc, first.Order)

	require.NotNil(t, second.PushedSince)
	assert.True(t, second.PushedSince.Equal(t0.Add(time.Minute)))
	assert.Equal(t, 1, second.Page)
}

// Repositories pushed after a short batch pinned at one timestamp are
// picked up by the next step.
func TestNext_PinnedShortBatchSeesNewRepositories(t *testing.T) {
	feed := &searchFeed{items: []github.Item{item(1, t0), item(2, t0)}}
	c := newSearchCrawler(t, testConfig(), feed)
	ctx := context.Background()

	summary, err := c.Run(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Indexed)

	feed.items = append(feed.items, item(3, t0.Add(time.Hour)))
	summary, err = c.Run(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Indexed)
	assert.Equal(t, 2, summary.Steps)

	ok, err := c.Exists(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, c.Cursor().Offset)
}

// More repositories share one timestamp than fit in a page.
func TestRun_PinnedTimestampOverflow(t *testing.T) {
	feed := &searchFeed{items: []github.Item{item(1, t0), item(2, t0), item(3, t0)}}
	cfg := testConfig()
	cfg.PageSize = 2
	c := newSearchCrawler(t, cfg, feed)
	ctx := context.Background()

	summary, err := c.Run(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Steps)
	assert.Equal(t, 3, summary.Indexed)

	feed.items = append(feed.items, item(4, t0.Add(time.Minute)))
	summary, err = c.Run(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Indexed)

	repos, err := c.NumRepos(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), repos)

	last := feed.requests[len(feed.requests)-1]
	require.NotNil(t, last.PushedSince)
	assert.True(t, last.PushedSince.Equal(t0.Add(time.Minute)))
	assert.Equal(t, 1, last.Page)
}

func TestNew_ResumesCursor(t *testing.T) {
	st, path := openStore(t)
	h := newHarness(t, testConfig(), st, []github.Item{item(1, t0)})
	_, err := h.crawler.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	reopened, err := store.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	h2 := newHarness(t, testConfig(), reopened)
	_, err = h2.crawler.Next(context.Background())
	require.NoError(t, err)

	require.Len(t, h2.feed.requests, 1)
	require.NotNil(t, h2.feed.requests[0].PushedSince)
	assert.True(t, h2.feed.requests[0].PushedSince.Equal(t0))
	h2.logs.AssertLogged(t, zapcore.InfoLevel, "resuming crawl")
}

func TestNew_NoResumeStartsAtConfiguredPage(t *testing.T) {
	st, _ := openStore(t)
	h := newHarness(t, testConfig(), st, []github.Item{item(1, t0)})
	_, err := h.crawler.Next(context.Background())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Resume = false
	cfg.PageNum = 3
	h2 := newHarness(t, cfg, st)
	_, err = h2.crawler.Next(context.Background())
	require.NoError(t, err)

	assert.Nil(t, h2.feed.requests[0].PushedSince)
	assert.Equal(t, 4, h2.feed.requests[0].Page)
}

func TestRun_UntilExhausted(t *testing.T) {
	st, _ := openStore(t)
	h := newHarness(t, testConfig(), st,
		[]github.Item{item(1, t0)},
		[]github.Item{item(2, t0.Add(time.Second))})

	summary, err := h.crawler.Run(context.Background(), -1)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Steps)
	assert.Equal(t, 2, summary.Indexed)
	assert.Equal(t, 2, summary.Written)
}

func TestRun_FixedSteps(t *testing.T) {
	st, _ := openStore(t)
	h := newHarness(t, testConfig(), st)

	summary, err := h.crawler.Run(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Steps)
	assert.Len(t, h.feed.requests, 2)
}

func TestRun_Cancelled(t *testing.T) {
	st, _ := openStore(t)
	h := newHarness(t, testConfig(), st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.crawler.Run(ctx, 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.feed.requests)
}

func TestDeleteIndex(t *testing.T) {
	st, _ := openStore(t)
	h := newHarness(t, testConfig(), st, []github.Item{item(1, t0)})
	ctx := context.Background()

	_, err := h.crawler.Next(ctx)
	require.NoError(t, err)

	require.NoError(t, h.crawler.DeleteIndex(ctx))
	require.NoError(t, h.crawler.DeleteIndex(ctx), "deleting a missing index is a no-op")

	repos, err := h.crawler.NumRepos(ctx)
	require.NoError(t, err)
	assert.Zero(t, repos)
	features, err := h.crawler.NumFeatures(ctx)
	require.NoError(t, err)
	assert.Zero(t, features)
	entries, err := h.crawler.Features(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Nil(t, h.crawler.Cursor().LastPushed)

	require.NoError(t, h.crawler.CreateIndex(ctx))
}

// failingStore rejects writes for one repository, or for entries whose
// feature mentions failFeature.
type failingStore struct {
	store.Store
	failID      int64
	failFeature string
}

func (s *failingStore) Write(ctx context.Context, index, partition string, doc interface{}) error {
	if e, ok := doc.(Entry); ok {
		if e.Repo.ID == s.failID {
			return errors.New("disk full")
		}
		if s.failFeature != "" && e.Feature != nil && strings.Contains(*e.Feature, s.failFeature) {
			return errors.New("disk full")
		}
	}
	return s.Store.Write(ctx, index, partition, doc)
}

// flakyRefreshStore fails its first refreshes.
type flakyRefreshStore struct {
	store.Store
	failures int
}

func (s *flakyRefreshStore) Refresh(ctx context.Context, index string) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("database is locked")
	}
	return s.Store.Refresh(ctx, index)
}

func TestNext_PartialWriteDiscarded(t *testing.T) {
	st, _ := openStore(t)
	h := newHarness(t, testConfig(), &failingStore{Store: st, failFeature: "second"},
		[]github.Item{item(1, t0), item(2, t0)})
	h.resolver.records[cloneURL(1)] = []feature.Record{record("first"), record("second")}
	ctx := context.Background()

	res, err := h.crawler.Next(ctx)
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, int64(1), res.Failures[0].Repo.ID)
	assert.Equal(t, 1, res.Written)

	ok, err := h.crawler.Exists(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "first entry of the failed repository is not committed")

	n, err := h.crawler.NumFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNext_RefreshFailureDiscardsEntries(t *testing.T) {
	st, _ := openStore(t)
	page := []github.Item{item(1, t0), item(2, t0)}
	h := newHarness(t, testConfig(), &flakyRefreshStore{Store: st, failures: 1}, page, page)
	h.resolver.records[cloneURL(1)] = []feature.Record{record("first")}
	ctx := context.Background()

	res, err := h.crawler.Next(ctx)
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, int64(1), res.Failures[0].Repo.ID)
	assert.Equal(t, 1, res.Indexed)

	ok, err := h.crawler.Exists(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// The next pass retries the failed repository.
	res, err = h.crawler.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, 1, res.Skipped)

	ok, err = h.crawler.Exists(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNext_StoreWriteFailure(t *testing.T) {
	st, _ := openStore(t)
	h := newHarness(t, testConfig(), &failingStore{Store: st, failID: 1}, []github.Item{item(1, t0), item(2, t0)})

	res, err := h.crawler.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.ErrorContains(t, res.Failures[0], "disk full")
	assert.Equal(t, 1, res.Indexed)
}

func TestClose(t *testing.T) {
	st, _ := openStore(t)
	h := newHarness(t, testConfig(), st)

	require.NoError(t, h.crawler.Close())
	assert.True(t, h.feed.closed)
}

func TestNext_RecordsSpan(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	tt.Install(t)

	st, _ := openStore(t)
	h := newHarness(t, testConfig(), st, []github.Item{item(1, t0), item(2, t0)})
	h.resolver.errs[cloneURL(2)] = errors.New("clone failed")

	_, err := h.crawler.Next(context.Background())
	require.NoError(t, err)

	tt.AssertSpanExists(t, "crawler.next")
	tt.AssertSpanAttribute(t, "crawler.next", "page", int64(1))
	tt.AssertSpanAttribute(t, "crawler.next", "indexed", int64(1))
	tt.AssertSpanAttribute(t, "crawler.next", "failures", int64(1))
	tt.AssertSpanExists(t, "store.refresh")
	h.logs.AssertTraceCorrelation(t, "repository failed")
}
