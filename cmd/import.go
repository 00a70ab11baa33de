package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/logger"
	"github.com/wegman-software/airspace-go/internal/store"
	"github.com/wegman-software/airspace-go/internal/tiles"
)

var (
	expireOutput  string
	expireMinZoom int
	expireMaxZoom int
)

var importCmd = &cobra.Command{
	Use:   "import [input.geojson]",
	Short: "Load airspaces into PostGIS",
	Long: `Load an airspace dataset into the PostGIS airspace table.

The table is created if missing and its contents are replaced in a single
transaction: rows are streamed through COPY into a temporary table, then
swapped in, so readers never observe a partial dataset.

The input is a GeoJSON or Parquet file, or the fetch cache (--source).

With --expire-output, the z/x/y tiles covered by the imported airspaces are
written to a file so cached map tiles can be invalidated.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&expireOutput, "expire-output", "e", "", "Path to expire tiles output file")
	importCmd.Flags().IntVar(&expireMinZoom, "expire-min-zoom", 1, "Minimum zoom level for tile expiry")
	importCmd.Flags().IntVar(&expireMaxZoom, "expire-max-zoom", 12, "Maximum zoom level for tile expiry")
}

func runImport(cmd *cobra.Command, args []string) {
	if len(args) == 1 {
		cfg.InputFile = args[0]
	}
	log := logger.Get()
	ctx := context.Background()
	start := time.Now()

	if err := cfg.Validate(); err != nil {
		exitWithError("Invalid configuration", err)
	}

	list, source, err := loadDataset(ctx)
	if err != nil {
		exitWithError("Failed to load airspaces", err)
	}

	log.Info("Starting import",
		zap.String("source", source),
		zap.String("database", cfg.DBName),
		zap.String("schema", cfg.DBSchema),
	)

	st, err := store.Open(ctx, cfg)
	if err != nil {
		exitWithError("Failed to connect to database", err)
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		exitWithError("Failed to create schema", err)
	}

	stats, err := st.Save(ctx, list)
	if err != nil {
		exitWithError("Import failed", err)
	}

	if expireOutput != "" {
		n, err := writeExpireTiles(expireOutput, list, expireMinZoom, expireMaxZoom)
		if err != nil {
			exitWithError("Failed to write expire tiles", err)
		}
		log.Info("Wrote expire tiles", zap.String("file", expireOutput), zap.Int("tiles", n))
	}

	log.Info("Import complete",
		zap.Int64("rows", stats.RowsLoaded),
		zap.Duration("copy", stats.Duration),
		zap.Duration("total", time.Since(start)),
	)
}

// writeExpireTiles writes every tile touched by an airspace bound, one
// z/x/y per line, sorted by zoom
func writeExpireTiles(path string, list []*airspace.Airspace, minZoom, maxZoom int) (int, error) {
	if minZoom < 0 || maxZoom > 22 || minZoom > maxZoom {
		return 0, fmt.Errorf("invalid expire zoom range %d-%d", minZoom, maxZoom)
	}

	seen := make(map[uint64]bool)
	var out []tiles.Tile
	for _, a := range list {
		for _, t := range tiles.CoveringTiles(tiles.FromBound(a.Bound()), minZoom, maxZoom) {
			if !seen[t.Key()] {
				seen[t.Key()] = true
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, t := range out {
		fmt.Fprintln(w, t.String())
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	return len(out), f.Close()
}
