package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/codetoname/internal/crawler"
)

var (
	statsJSON     bool
	featuresLimit int
)

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(featuresCmd)
	rootCmd.AddCommand(resetCmd)

	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output results as JSON")
	featuresCmd.Flags().IntVar(&featuresLimit, "limit", 0, "maximum number of entries to print (0 for all)")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Long: `Show the number of stored features and distinct repositories for the
configured index and language.

Examples:
  codetoname stats
  codetoname stats --language go --json`,
	RunE: runStats,
}

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Print stored entries as JSON lines",
	Long: `Print stored entries of the configured language, one JSON document per
line, in the order they were written.

Examples:
  codetoname features --limit 100
  codetoname features | jq -r .feature`,
	RunE: runFeatures,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the index and rewind the crawl cursor",
	Long: `Delete every stored entry of the configured index and rewind the saved
cursor so the next crawl starts from the configured page.`,
	RunE: runReset,
}

// Stats is the stats command output.
type Stats struct {
	Index    string `json:"index"`
	Language string `json:"language"`
	Repos    int64  `json:"repos"`
	Features int64  `json:"features"`
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, false, crawler.WithoutIndexCreation())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	features, err := a.crawler.NumFeatures(ctx)
	if err != nil {
		return fmt.Errorf("failed to count features: %w", err)
	}
	repos, err := a.crawler.NumRepos(ctx)
	if err != nil {
		return fmt.Errorf("failed to count repositories: %w", err)
	}

	return writeStats(cmd.OutOrStdout(), Stats{
		Index:    a.cfg.Crawl.Index,
		Language: a.cfg.Crawl.Language,
		Repos:    repos,
		Features: features,
	}, statsJSON)
}

func writeStats(out io.Writer, s Stats, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "INDEX\t%s\n", s.Index)
	fmt.Fprintf(w, "LANGUAGE\t%s\n", s.Language)
	fmt.Fprintf(w, "REPOSITORIES\t%d\n", s.Repos)
	fmt.Fprintf(w, "FEATURES\t%d\n", s.Features)
	return w.Flush()
}

func runFeatures(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, false, crawler.WithoutIndexCreation())
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.crawler.Features(cmd.Context(), featuresLimit)
	if err != nil {
		return fmt.Errorf("failed to read features: %w", err)
	}
	return writeEntries(cmd.OutOrStdout(), entries)
}

func writeEntries(out io.Writer, entries []crawler.Entry) error {
	enc := json.NewEncoder(out)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, false, crawler.WithoutIndexCreation())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.crawler.DeleteIndex(cmd.Context()); err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted index %s\n", a.cfg.Crawl.Index)
	return nil
}
