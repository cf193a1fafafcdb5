// Package github is the repository feed: a rate-limited client for the
// GitHub repository search API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fyrsmithlabs/codetoname/internal/config"
	gh "github.com/google/go-github/v57/github"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/codetoname/internal/github"

	defaultTimeout = 10 * time.Second

	// SortUpdated and OrderAsc give a pushed timestamp that only moves
	// forward across pages.
	SortUpdated = "updated"
	OrderAsc    = "asc"
)

// ErrClosed is returned by searches on a closed client.
var ErrClosed = errors.New("github client is closed")

// SearchRequest selects one page of repositories.
type SearchRequest struct {
	Language    string
	PushedSince *time.Time
	Sort        string
	Order       string
	Page        int
	PerPage     int
}

// Query returns the search qualifier string for the request.
func (r SearchRequest) Query() string {
	q := "language:" + r.Language
	if r.PushedSince != nil {
		q += " pushed:>=" + r.PushedSince.UTC().Format(time.RFC3339)
	}
	return q
}

// Item is one repository in a search result.
type Item struct {
	ID            int64
	CloneURL      string
	DefaultBranch string
	Fork          bool
	PushedAt      time.Time
}

// SearchResult is one page of search results.
type SearchResult struct {
	Total      int
	Incomplete bool
	Items      []Item
}

// Client searches GitHub repositories.
type Client struct {
	api     *gh.Client
	http    *http.Client
	limiter *rate.Limiter
	tracer  trace.Tracer
	metrics *instruments
	closed  bool
}

// NewClient creates a client from cfg.
//
// A token takes precedence over a username and password. With neither the
// client is anonymous. RequestsPerMinute of 0 disables rate limiting.
func NewClient(ctx context.Context, cfg config.GitHubConfig) (*Client, error) {
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var httpClient *http.Client
	switch {
	case cfg.Token.IsSet():
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token.Value()})
		httpClient = oauth2.NewClient(ctx, ts)
	case cfg.Username != "" && cfg.Password.IsSet():
		httpClient = (&gh.BasicAuthTransport{
			Username: cfg.Username,
			Password: cfg.Password.Value(),
		}).Client()
	default:
		httpClient = &http.Client{}
	}
	httpClient.Timeout = timeout

	api := gh.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
		api.BaseURL = u
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	inst, err := newInstruments(otel.Meter(instrumentationName))
	if err != nil {
		return nil, err
	}

	return &Client{
		api:     api,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
		tracer:  otel.Tracer(instrumentationName),
		metrics: inst,
	}, nil
}

// SearchRepositories fetches one page of repositories matching req.
func (c *Client) SearchRepositories(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if req.Language == "" {
		return nil, errors.New("search language is required")
	}

	ctx, span := c.tracer.Start(ctx, "github.search_repositories")
	defer span.End()
	span.SetAttributes(
		attribute.String("query", req.Query()),
		attribute.Int("page", req.Page),
		attribute.Int("per_page", req.PerPage),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	opts := &gh.SearchOptions{
		Sort:  req.Sort,
		Order: req.Order,
		ListOptions: gh.ListOptions{
			Page:    req.Page,
			PerPage: req.PerPage,
		},
	}
	res, resp, err := c.api.Search.Repositories(ctx, req.Query(), opts)
	c.metrics.record(ctx, resp, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching repositories: %w", err)
	}

	out := &SearchResult{
		Total:      res.GetTotal(),
		Incomplete: res.GetIncompleteResults(),
		Items:      make([]Item, 0, len(res.Repositories)),
	}
	for _, r := range res.Repositories {
		out.Items = append(out.Items, Item{
			ID:            r.GetID(),
			CloneURL:      r.GetCloneURL(),
			DefaultBranch: r.GetDefaultBranch(),
			Fork:          r.GetFork(),
			PushedAt:      r.GetPushedAt().Time,
		})
	}
	span.SetAttributes(attribute.Int("items", len(out.Items)))
	return out, nil
}

type instruments struct {
	requests      metric.Int64Counter
	rateRemaining metric.Int64Gauge
}

func newInstruments(m metric.Meter) (*instruments, error) {
	requests, err := m.Int64Counter("github.search.requests",
		metric.WithDescription("Repository search requests by outcome"))
	if err != nil {
		return nil, fmt.Errorf("creating request counter: %w", err)
	}
	remaining, err := m.Int64Gauge("github.rate_limit.remaining",
		metric.WithDescription("Search requests left in the current rate limit window"))
	if err != nil {
		return nil, fmt.Errorf("creating rate limit gauge: %w", err)
	}
	return &instruments{requests: requests, rateRemaining: remaining}, nil
}

func (i *instruments) record(ctx context.Context, resp *gh.Response, err error) {
	outcome := "ok"
	var rateErr *gh.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		outcome = "rate_limited"
	case err != nil:
		outcome = "error"
	}
	i.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if resp != nil && resp.Rate.Limit > 0 {
		i.rateRemaining.Record(ctx, int64(resp.Rate.Remaining))
	}
}

// Close releases idle connections. Further searches fail with ErrClosed.
func (c *Client) Close() error {
	c.closed = true
	c.http.CloseIdleConnections()
	return nil
}
