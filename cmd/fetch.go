package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/airspace-go/internal/fetch"
	"github.com/wegman-software/airspace-go/internal/logger"
)

var fetchForce bool

var fetchCmd = &cobra.Command{
	Use:   "fetch [source...]",
	Short: "Download airspace exports into the data directory",
	Long: `Download OpenAIP country exports (or any GeoJSON URL) into --data-dir.

Each download is validated before it replaces the cached copy, and a state
file records its ETag and Last-Modified headers so later runs only download
changed files. Sources are given as arguments or with --source.

Examples:
  # Fetch Switzerland and Germany
  airspace-go fetch ch de

  # Re-download regardless of the cached state
  airspace-go fetch --force openaip/fr

  # List known sources
  airspace-go fetch list-sources`,
	Run: runFetch,
}

var fetchStatusCmd = &cobra.Command{
	Use:   "status [source...]",
	Short: "Show when sources were last fetched",
	Run:   runFetchStatus,
}

var fetchListCmd = &cobra.Command{
	Use:   "list-sources",
	Short: "List available airspace sources",
	Run: func(cmd *cobra.Command, args []string) {
		for _, line := range fetch.ListSources() {
			fmt.Println(line)
		}
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.AddCommand(fetchStatusCmd)
	fetchCmd.AddCommand(fetchListCmd)

	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, "Download even if the cached copy is current")
	fetchCmd.PersistentFlags().IntVar(&cfg.FetchRetries, "retries", cfg.FetchRetries, "Retries for failed downloads")
	fetchCmd.PersistentFlags().DurationVar(&cfg.FetchTimeout, "timeout", cfg.FetchTimeout, "Per-request timeout")
}

func fetchSources(args []string) ([]*fetch.Source, error) {
	names := args
	if len(names) == 0 {
		names = sourceNames
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no sources given (see 'fetch list-sources')")
	}
	return parseSources(names)
}

func newFetcher() *fetch.Fetcher {
	return fetch.NewFetcher(cfg.DataDir).
		WithRetries(cfg.FetchRetries, 5*time.Second).
		WithTimeout(cfg.FetchTimeout)
}

func runFetch(cmd *cobra.Command, args []string) {
	log := logger.Get()

	sources, err := fetchSources(args)
	if err != nil {
		exitWithError("Invalid sources", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	results, err := newFetcher().FetchAll(ctx, sources, fetchForce)
	if err != nil {
		exitWithError("Fetch failed", err)
	}

	downloaded := 0
	for _, res := range results {
		if res.NotModified {
			fmt.Printf("%-20s up to date (%d airspaces)\n", res.Source.Name, res.State.Airspaces)
			continue
		}
		downloaded++
		fmt.Printf("%-20s %d airspaces, %d bytes -> %s\n", res.Source.Name, res.State.Airspaces, res.State.Bytes, res.Path)
	}

	log.Info("Fetch complete",
		zap.Int("sources", len(results)),
		zap.Int("downloaded", downloaded),
		zap.Duration("duration", time.Since(start)),
	)
}

func runFetchStatus(cmd *cobra.Command, args []string) {
	sources, err := fetchSources(args)
	if err != nil {
		exitWithError("Invalid sources", err)
	}

	f := newFetcher()
	now := time.Now()
	for _, src := range sources {
		state, err := f.LoadState(src)
		if err != nil {
			exitWithError("Failed to read fetch state", err)
		}
		if state == nil {
			fmt.Printf("%-20s never fetched\n", src.Name)
			continue
		}

		age := state.Age(now).Truncate(time.Minute)
		due := ""
		if age > src.UpdateInterval {
			due = " (update due)"
		}
		fmt.Printf("%-20s %s, age %s%s\n", src.Name, state, age, due)
	}
}
