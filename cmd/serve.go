package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/airspace-go/internal/logger"
	"github.com/wegman-software/airspace-go/internal/metrics"
	"github.com/wegman-software/airspace-go/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve point queries and overlays over HTTP",
	Long: `Load the dataset and serve the engine over HTTP:

  GET  /api/health                  dataset, cache and process metrics
  GET  /api/airspaces/at?lat=&lon=  airspaces containing a point
  GET  /api/airspaces/{id}          one airspace
  GET  /api/airspaces/{id}/polygon  geometry with lower layers cut away
  GET  /api/airspaces/{id}/style    resolved style
  POST /api/overlay                 build layers for a viewport
  POST /api/viewport                schedule a debounced overlay refresh
  GET  /api/overlay/current         last refreshed layers
  POST /api/hit                     rendered layers under a point
  GET  /api/preferences             filter preferences
  PUT  /api/preferences             replace filter preferences

Send SIGHUP to reload the dataset from its source.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&cfg.ListenAddr, "listen", "l", cfg.ListenAddr, "Listen address")
	serveCmd.Flags().DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Per-request timeout")
}

func runServe(cmd *cobra.Command, args []string) {
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, cleanup, err := newEngine(ctx)
	if err != nil {
		exitWithError("Failed to start engine", err)
	}
	defer cleanup()

	collector := metrics.NewCollector(cfg.MetricsInterval, logger.Named("metrics")).
		WithStats(func() map[string]any {
			s := e.Stats()
			return map[string]any{
				"airspaces":       s.Airspaces,
				"cached_polygons": s.CachedPolygons,
				"cached_overlays": s.CachedOverlays,
				"cached_styles":   s.CachedStyles,
				"overlay_state":   s.OverlayState,
			}
		})
	go collector.Start(ctx)

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-reload:
				list, source, err := loadDataset(ctx)
				if err != nil {
					log.Error("Reload failed, keeping current dataset", zap.Error(err))
					continue
				}
				e.Reload(list, source)
			}
		}
	}()

	srv := server.New(e, server.Options{
		RequestTimeout: cfg.RequestTimeout,
		Metrics:        collector,
	})

	log.Info("Starting server",
		zap.String("addr", cfg.ListenAddr),
		zap.Int("airspaces", e.Stats().Airspaces),
		zap.Int("workers", cfg.Workers),
	)

	if err := srv.Run(ctx, cfg.ListenAddr); err != nil {
		exitWithError("Server failed", err)
	}
	log.Info("Server stopped")
}
