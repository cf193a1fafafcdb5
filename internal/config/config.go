// Package config provides configuration loading for codetoname.
//
// Configuration is assembled from built-in defaults, an optional YAML file and
// CODETONAME_* environment variables. See LoadWithFile for precedence rules.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Failure policies for per-repository errors during a crawl step.
const (
	FailurePolicyContinue = "continue"
	FailurePolicyAbort    = "abort"
)

// maxPageSize is the largest per_page value the GitHub search API honours.
const maxPageSize = 100

var indexNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Config holds the complete codetoname configuration.
type Config struct {
	Crawl      CrawlConfig      `koanf:"crawl"`
	GitHub     GitHubConfig     `koanf:"github"`
	Store      StoreConfig      `koanf:"store"`
	Repository RepositoryConfig `koanf:"repository"`
	Logging    LoggingConfig    `koanf:"logging"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// CrawlConfig controls the crawl loop.
type CrawlConfig struct {
	Index         string `koanf:"index"`
	Language      string `koanf:"language"`
	PageSize      int    `koanf:"page_size"`
	PageNum       int    `koanf:"page_num"`
	Resume        bool   `koanf:"resume"`
	SkipForks     bool   `koanf:"skip_forks"`
	FailurePolicy string `koanf:"failure_policy"`
}

// GitHubConfig holds remote feed settings.
//
// Either Token or Username/Password may be set. When neither is configured
// the CLI prompts for an account and password.
type GitHubConfig struct {
	BaseURL           string   `koanf:"base_url"`
	Username          string   `koanf:"username"`
	Password          Secret   `koanf:"password"`
	Token             Secret   `koanf:"token"`
	Timeout           Duration `koanf:"timeout"`
	RequestsPerMinute int      `koanf:"requests_per_minute"`
}

// HasCredentials reports whether enough credentials are configured to skip
// the interactive prompt.
func (g GitHubConfig) HasCredentials() bool {
	return g.Token.IsSet() || (g.Username != "" && g.Password.IsSet())
}

// StoreConfig holds document store settings.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// RepositoryConfig controls how repository snapshots are read.
type RepositoryConfig struct {
	MaxFileSize int64  `koanf:"max_file_size"`
	WorkDir     string `koanf:"work_dir"`
}

// LoggingConfig holds the subset of logging settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// TelemetryConfig controls OTLP export of traces and metrics. Export is off
// unless Enabled is set.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"` // grpc or http/protobuf
	Insecure       bool     `koanf:"insecure"`
	SamplingRate   float64  `koanf:"sampling_rate"`
	ExportInterval Duration `koanf:"export_interval"`
}

// defaultValues are loaded into koanf before the file and environment so
// boolean defaults of true survive unmarshaling.
var defaultValues = map[string]interface{}{
	"crawl.index":                "codetoname",
	"crawl.language":             "python",
	"crawl.page_size":            10,
	"crawl.page_num":             0,
	"crawl.resume":               true,
	"crawl.skip_forks":           false,
	"crawl.failure_policy":       FailurePolicyContinue,
	"github.base_url":            "https://api.github.com/",
	"github.timeout":             "10s",
	"github.requests_per_minute": 30,
	"store.path":                 "~/.config/codetoname/codetoname.db",
	"repository.max_file_size":   1024 * 1024,
	"logging.level":              "info",
	"logging.format":             "json",
	"telemetry.enabled":          false,
	"telemetry.endpoint":         "localhost:4317",
	"telemetry.protocol":         "grpc",
	"telemetry.insecure":         true,
	"telemetry.sampling_rate":    1.0,
	"telemetry.export_interval":  "15s",
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Crawl: CrawlConfig{
			Index:         "codetoname",
			Language:      "python",
			PageSize:      10,
			Resume:        true,
			FailurePolicy: FailurePolicyContinue,
		},
		GitHub: GitHubConfig{
			BaseURL:           "https://api.github.com/",
			Timeout:           Duration(10 * time.Second),
			RequestsPerMinute: 30,
		},
		Store:      StoreConfig{Path: "~/.config/codetoname/codetoname.db"},
		Repository: RepositoryConfig{MaxFileSize: 1024 * 1024},
		Logging:    LoggingConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			SamplingRate:   1.0,
			ExportInterval: Duration(15 * time.Second),
		},
	}
}

// Validate validates the configuration.
//
// Returns an error if:
//   - the index name is not a lowercase identifier
//   - the language is empty
//   - page size is outside 1-100 or page number is negative
//   - the failure policy is unknown
//   - the GitHub timeout is not positive or the request rate is negative
//   - the maximum file size is not between 1 byte and 10MB
//   - the telemetry sampling rate or protocol is invalid
func (c *Config) Validate() error {
	if !indexNamePattern.MatchString(c.Crawl.Index) {
		return fmt.Errorf("invalid crawl index %q (lowercase letters, digits, '-' and '_')", c.Crawl.Index)
	}
	if strings.TrimSpace(c.Crawl.Language) == "" {
		return errors.New("crawl language is required")
	}
	if c.Crawl.PageSize < 1 || c.Crawl.PageSize > maxPageSize {
		return fmt.Errorf("invalid page size: %d (must be 1-%d)", c.Crawl.PageSize, maxPageSize)
	}
	if c.Crawl.PageNum < 0 {
		return fmt.Errorf("invalid page number: %d (must be >= 0)", c.Crawl.PageNum)
	}
	switch c.Crawl.FailurePolicy {
	case FailurePolicyContinue, FailurePolicyAbort:
	default:
		return fmt.Errorf("invalid failure policy %q (want %q or %q)",
			c.Crawl.FailurePolicy, FailurePolicyContinue, FailurePolicyAbort)
	}
	if c.GitHub.Timeout.Duration() <= 0 {
		return errors.New("github timeout must be positive")
	}
	if c.GitHub.RequestsPerMinute < 0 {
		return fmt.Errorf("github requests per minute cannot be negative: %d", c.GitHub.RequestsPerMinute)
	}
	if c.Store.Path == "" {
		return errors.New("store path is required")
	}
	if c.Repository.MaxFileSize <= 0 || c.Repository.MaxFileSize > 10*1024*1024 {
		return fmt.Errorf("invalid max file size: %d (must be 1-10485760)", c.Repository.MaxFileSize)
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("telemetry sampling rate must be between 0 and 1, got %g", c.Telemetry.SamplingRate)
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		return fmt.Errorf("invalid telemetry protocol %q (want grpc or http/protobuf)", c.Telemetry.Protocol)
	}
	return nil
}
