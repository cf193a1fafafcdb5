// Package main implements the codetoname CLI, which crawls GitHub
// repositories and stores the function features found in them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/codetoname/internal/config"
	"github.com/fyrsmithlabs/codetoname/internal/crawler"
	"github.com/fyrsmithlabs/codetoname/internal/feature"
	"github.com/fyrsmithlabs/codetoname/internal/github"
	"github.com/fyrsmithlabs/codetoname/internal/logging"
	"github.com/fyrsmithlabs/codetoname/internal/repository"
	"github.com/fyrsmithlabs/codetoname/internal/store"
	"github.com/fyrsmithlabs/codetoname/internal/telemetry"

	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"
)

var (
	// configPath is the YAML config file; empty uses the default location.
	configPath string
	logLevel   string
	indexName  string
	language   string

	version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "codetoname",
	Short: "Crawl GitHub repositories into a function feature index",
	Long: `codetoname pages through GitHub repositories written in one language,
parses every source file and stores one feature per function: its name,
argument names, the kinds of statements in its body and its enclosing class.

Configuration is read from ~/.config/codetoname/config.yaml and
CODETONAME_* environment variables.`,
	Version:       version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/codetoname/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&indexName, "index", "", "index name (overrides crawl.index)")
	rootCmd.PersistentFlags().StringVarP(&language, "language", "l", "", "source language (overrides crawl.language)")
}

// loadConfig loads the config file and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config) {
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if indexName != "" {
		cfg.Crawl.Index = indexName
	}
	if language != "" {
		cfg.Crawl.Language = language
	}
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// app bundles what every subcommand needs.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	crawler   *crawler.Crawler
}

func (a *app) Close() error {
	err := errors.Join(a.crawler.Close(), a.telemetry.Shutdown(context.Background()))
	_ = a.logger.Sync()
	return err
}

// newApp wires the crawler from cfg. Credentials must already be in cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts ...crawler.Option) (*app, error) {
	registry := feature.DefaultRegistry()
	if _, ok := registry.Language(cfg.Crawl.Language); !ok {
		return nil, fmt.Errorf("%w: %q (supported: %v)",
			feature.ErrUnsupportedLanguage, cfg.Crawl.Language, registry.Names())
	}

	storePath, err := config.ExpandPath(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(storePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	client, err := github.NewClient(ctx, cfg.GitHub)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create github client: %w", err)
	}

	workDir, err := config.ExpandPath(cfg.Repository.WorkDir)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	resolver := repository.NewResolver(
		feature.NewExtractor(registry),
		repository.Options{
			MaxFileSize: cfg.Repository.MaxFileSize,
			WorkDir:     workDir,
			Auth:        cloneAuth(cfg.GitHub),
		},
		logger,
	)

	c, err := crawler.New(ctx, cfg.Crawl, crawler.Deps{
		Feed:     client,
		Store:    st,
		Resolver: resolver,
		Logger:   logger,
	}, opts...)
	if err != nil {
		return nil, errors.Join(err, client.Close(), st.Close())
	}
	return &app{cfg: cfg, logger: logger, crawler: c}, nil
}

// cloneAuth returns the git credentials matching the API credentials. With a
// token the username only needs to be non-empty.
func cloneAuth(g config.GitHubConfig) *githttp.BasicAuth {
	switch {
	case g.Token.IsSet():
		return &githttp.BasicAuth{Username: "x-access-token", Password: g.Token.Value()}
	case g.Username != "" && g.Password.IsSet():
		return &githttp.BasicAuth{Username: g.Username, Password: g.Password.Value()}
	default:
		return nil
	}
}

// setup loads config and builds the app. With prompt set, missing GitHub
// credentials are asked for on the terminal.
func setup(cmd *cobra.Command, prompt bool, opts ...crawler.Option) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	if prompt && !cfg.GitHub.HasCredentials() {
		if err := promptCredentials(cmd.InOrStdin(), cmd.ErrOrStderr(), &cfg.GitHub); err != nil {
			return nil, err
		}
	}

	ctx := cmd.Context()
	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return nil, err
	}
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Error(h.Reason))
	}

	a, err := newApp(ctx, cfg, logger, opts...)
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, err
	}
	a.telemetry = tel
	return a, nil
}
