package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codetoname/internal/crawler"
	"github.com/fyrsmithlabs/codetoname/internal/logging"
)

var (
	crawlSteps       int
	crawlMetricsAddr string
)

func init() {
	rootCmd.AddCommand(crawlCmd)
	crawlCmd.Flags().IntVarP(&crawlSteps, "number", "n", 1, "number of batches to crawl; negative crawls until the feed is exhausted")
	crawlCmd.Flags().StringVar(&crawlMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while crawling (overrides metrics.addr)")
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl repositories and store their features",
	Long: `Crawl fetches batches of repositories from the GitHub search API, oldest
push first, and stores the features of every repository not yet indexed.

When no token or username/password is configured, crawl prompts for them.

Examples:
  # Crawl one batch of Python repositories
  codetoname crawl

  # Crawl ten batches of Go repositories into their own index
  codetoname crawl -n 10 --language go --index golang

  # Crawl until the feed is exhausted and expose metrics
  codetoname crawl -n -1 --metrics-addr :9090`,
	RunE: runCrawl,
}

func runCrawl(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	addr := crawlMetricsAddr
	if addr == "" {
		addr = a.cfg.Metrics.Addr
	}
	if addr != "" {
		stop := serveMetrics(ctx, addr, a.logger)
		defer stop()
	}

	a.logger.Info(ctx, "crawl started",
		zap.String("run_id", a.crawler.RunID()),
		zap.String("index", a.cfg.Crawl.Index),
		zap.String("language", a.cfg.Crawl.Language),
		zap.Int("steps", crawlSteps))

	summary, err := a.crawler.Run(ctx, crawlSteps)
	printSummary(cmd, summary)
	if err != nil {
		var repoErr *crawler.RepoError
		if errors.As(err, &repoErr) {
			return fmt.Errorf("crawl aborted: %w", err)
		}
		return fmt.Errorf("crawl failed: %w", err)
	}
	return nil
}

func printSummary(cmd *cobra.Command, s crawler.RunSummary) {
	fmt.Fprintf(cmd.OutOrStdout(),
		"steps: %d  fetched: %d  indexed: %d  skipped: %d  failed: %d  entries: %d\n",
		s.Steps, s.Fetched, s.Indexed, s.Skipped, s.Failures, s.Written)
}

// serveMetrics exposes /metrics on addr until the returned func is called.
func serveMetrics(ctx context.Context, addr string, logger *logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info(ctx, "serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn(ctx, "metrics server shutdown", zap.Error(err))
		}
	}
}
