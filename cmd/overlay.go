package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/airspace-go/internal/config"
	"github.com/wegman-software/airspace-go/internal/logger"
	"github.com/wegman-software/airspace-go/internal/overlay"
	"github.com/wegman-software/airspace-go/internal/proj"
)

var (
	overlayView    string
	overlayZoom    float64
	overlayCeiling float64
	overlayOutput  string
)

var overlayCmd = &cobra.Command{
	Use:   "overlay",
	Short: "Build the airspace layers for a map viewport",
	Long: `Build the overlay layers for a viewport and write them as a GeoJSON
FeatureCollection, lowest layer first.

Each airspace is clipped against every visible airspace below it, so a
stack of sectors renders as non-overlapping layers. Layers above the
altitude ceiling (--ceiling, 0 = none) and airspaces excluded by the filter
preferences are left out.

Examples:
  airspace-go overlay -i ch_asp.geojson --view 5.9,45.8,10.5,47.8 --zoom 8
  airspace-go overlay -s ch --view Switzerland --ceiling 9500 --projection 3857 -f layers.geojson`,
	Run: runOverlay,
}

func init() {
	rootCmd.AddCommand(overlayCmd)

	overlayCmd.Flags().StringVar(&overlayView, "view", "", "Viewport: minlon,minlat,maxlon,maxlat or a region name (required)")
	overlayCmd.Flags().Float64VarP(&overlayZoom, "zoom", "z", 8, "Map zoom level")
	overlayCmd.Flags().Float64Var(&overlayCeiling, "ceiling", 0, "Altitude ceiling in feet (0 = none)")
	overlayCmd.Flags().IntVarP(&cfg.Projection, "projection", "E", cfg.Projection, "Output SRID (4326 or 3857)")
	overlayCmd.Flags().StringVarP(&overlayOutput, "file", "f", "", "Write GeoJSON to file instead of stdout")
	_ = overlayCmd.MarkFlagRequired("view")
}

func runOverlay(cmd *cobra.Command, args []string) {
	log := logger.Get()
	ctx := context.Background()

	view, err := config.ParseBBox(overlayView)
	if err != nil || !view.IsSet {
		exitWithError("Invalid viewport", err)
	}
	bound := view.Bound()
	vp := overlay.Viewport{
		Center: bound.Center(),
		Zoom:   overlayZoom,
		Bounds: bound,
	}

	var tr *proj.Transformer
	if cfg.Projection != proj.SRID4326 {
		tr, err = proj.NewTransformer(proj.SRID4326, cfg.Projection)
		if err != nil {
			exitWithError("Invalid projection", err)
		}
	}

	e, cleanup, err := newEngine(ctx)
	if err != nil {
		exitWithError("Failed to load airspaces", err)
	}
	defer cleanup()

	start := time.Now()
	layers, err := e.Overlay.Build(ctx, vp, overlayCeiling)
	if err != nil {
		exitWithError("Overlay build failed", err)
	}

	log.Info("Overlay built",
		zap.String("viewport", view.String()),
		zap.Float64("zoom", overlayZoom),
		zap.Int("layers", len(layers)),
		zap.Int("vertices", overlay.VertexCount(layers)),
		zap.Duration("duration", time.Since(start)),
	)

	if err := writeGeoJSON(overlay.FeatureCollection(layers, tr), overlayOutput); err != nil {
		exitWithError("Failed to write overlay", err)
	}
}

func writeGeoJSON(v any, path string) error {
	if path == "" {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(v)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

