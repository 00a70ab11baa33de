package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/engine"
	"github.com/wegman-software/airspace-go/internal/fetch"
	"github.com/wegman-software/airspace-go/internal/filter"
	"github.com/wegman-software/airspace-go/internal/logger"
	"github.com/wegman-software/airspace-go/internal/parquet"
	"github.com/wegman-software/airspace-go/internal/store"
	"github.com/wegman-software/airspace-go/internal/style"
)

var (
	sourceNames []string
	fromDB      bool
)

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&sourceNames, "source", "s", nil, "Fetched sources to load (country codes, openaip/<cc> or URLs)")
	rootCmd.PersistentFlags().BoolVar(&fromDB, "from-db", false, "Load airspaces from the PostGIS table instead of a file")
}

// loadDataset reads airspaces from the configured input: a GeoJSON or
// Parquet file, the PostGIS table or the fetch cache. The bbox filter is
// applied to the result.
func loadDataset(ctx context.Context) ([]*airspace.Airspace, string, error) {
	log := logger.Get()
	start := time.Now()

	var (
		list   []*airspace.Airspace
		source string
		err    error
	)

	switch {
	case cfg.InputFile != "":
		source = cfg.InputFile
		list, err = loadFile(cfg.InputFile)
	case fromDB:
		source = fmt.Sprintf("postgres://%s:%d/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)
		list, err = loadFromDB(ctx)
	case len(sourceNames) > 0:
		var sources []*fetch.Source
		sources, err = parseSources(sourceNames)
		if err != nil {
			return nil, "", err
		}
		source = strings.Join(sourceNames, ",")
		list, err = fetch.NewFetcher(cfg.DataDir).LoadCached(sources)
	default:
		return nil, "", fmt.Errorf("no airspace data: use --input, --source or --from-db")
	}
	if err != nil {
		return nil, "", err
	}

	total := len(list)
	if cfg.BBox != nil && cfg.BBox.IsSet {
		kept := list[:0]
		for _, a := range list {
			if cfg.BBox.Intersects(a.Bound()) {
				kept = append(kept, a)
			}
		}
		list = kept
	}

	log.Info("Airspaces loaded",
		zap.String("source", source),
		zap.Int("airspaces", len(list)),
		zap.Int("outside_bbox", total-len(list)),
		zap.Duration("duration", time.Since(start)),
	)
	return list, source, nil
}

func loadFile(path string) ([]*airspace.Airspace, error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return parquet.ReadFile(context.Background(), path)
	}

	list, stats, err := airspace.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if stats.Skipped() > 0 {
		logger.Get().Warn("Skipped features",
			zap.Int("features", stats.Features),
			zap.Int("bad_geometry", stats.SkippedGeometry),
			zap.Int("bad_limits", stats.SkippedLimits),
			zap.Int("duplicates", stats.Duplicates),
		)
	}
	return list, nil
}

func loadFromDB(ctx context.Context) ([]*airspace.Airspace, error) {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.Load(ctx)
}

func parseSources(names []string) ([]*fetch.Source, error) {
	sources := make([]*fetch.Source, 0, len(names))
	for _, name := range names {
		src, err := fetch.ParseSource(name)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// loadStyles reads the style file, or the built-in table when none is set
func loadStyles() (*style.Config, error) {
	if cfg.StyleFile == "" {
		return style.DefaultConfig(), nil
	}
	return style.LoadConfig(cfg.StyleFile)
}

// newEngine loads the dataset and assembles an engine over it. The returned
// cleanup stops background work and releases the style resolver.
func newEngine(ctx context.Context) (*engine.Engine, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	list, source, err := loadDataset(ctx)
	if err != nil {
		return nil, nil, err
	}

	styles, err := loadStyles()
	if err != nil {
		return nil, nil, err
	}
	resolver, closeStyles, err := style.NewResolver(styles, cfg.StyleCache)
	if err != nil {
		return nil, nil, err
	}

	opts := engine.DefaultOptions()
	opts.Identify.IndexZoom = cfg.IndexZoom
	opts.Identify.PolygonCache = cfg.PolygonCache
	opts.Overlay.Workers = cfg.Workers
	opts.Overlay.CacheSize = cfg.OverlayCache
	opts.Debounce = cfg.RefreshDelay

	e := engine.New(list, resolver, filter.NewFileStore(cfg.PrefsFile), opts)
	e.SetSource(source)

	return e, func() {
		e.Close()
		closeStyles()
	}, nil
}
