// Package engine assembles the airspace dataset, point query service, style
// resolver and overlay builder into one reloadable unit.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/filter"
	"github.com/wegman-software/airspace-go/internal/identify"
	"github.com/wegman-software/airspace-go/internal/logger"
	"github.com/wegman-software/airspace-go/internal/overlay"
	"github.com/wegman-software/airspace-go/internal/style"
)

// Options configures an Engine
type Options struct {
	Identify identify.Options
	Overlay  overlay.Options
	Debounce time.Duration
}

// DefaultOptions returns the engine defaults
func DefaultOptions() Options {
	return Options{
		Identify: identify.DefaultOptions(),
		Overlay:  overlay.DefaultOptions(),
		Debounce: overlay.RefreshDebounce,
	}
}

// Stats summarizes the loaded dataset and cache occupancy
type Stats struct {
	Airspaces      int       `json:"airspaces"`
	Source         string    `json:"source,omitempty"`
	LoadedAt       time.Time `json:"loadedAt"`
	CachedPolygons int       `json:"cachedPolygons"`
	CachedOverlays int       `json:"cachedOverlays"`
	CachedStyles   int       `json:"cachedStyles"`
	OverlayState   string    `json:"overlayState"`
	OverlayLayers  int       `json:"overlayLayers"`
}

type purger interface {
	Purge()
	Len() int
}

// Engine is safe for concurrent use
type Engine struct {
	Identify *identify.Service
	Styles   style.Resolver
	Overlay  *overlay.Manager
	Loader   *overlay.Loader
	Prefs    filter.Store

	log *zap.Logger

	mu       sync.RWMutex
	source   string
	loadedAt time.Time
}

// New builds an engine over list
func New(list []*airspace.Airspace, resolver style.Resolver, prefs filter.Store, opts Options) *Engine {
	svc := identify.NewService(list, opts.Identify)
	mgr := overlay.NewManager(svc, resolver, prefs, opts.Overlay)

	return &Engine{
		Identify: svc,
		Styles:   resolver,
		Overlay:  mgr,
		Loader:   overlay.NewLoader(mgr, opts.Debounce),
		Prefs:    prefs,
		log:      logger.Named("engine"),
		loadedAt: time.Now(),
	}
}

// Close stops background refreshes
func (e *Engine) Close() {
	e.Loader.Close()
}

// SetSource records where the current dataset came from
func (e *Engine) SetSource(source string) {
	e.mu.Lock()
	e.source = source
	e.mu.Unlock()
}

// Reload swaps the dataset, purges every cache and invalidates in-flight
// overlay results
func (e *Engine) Reload(list []*airspace.Airspace, source string) {
	e.Identify.Reload(list)
	e.Overlay.Purge()
	if p, ok := e.Styles.(purger); ok {
		p.Purge()
	}
	e.Loader.Invalidate()

	e.mu.Lock()
	e.source = source
	e.loadedAt = time.Now()
	e.mu.Unlock()

	e.log.Info("Airspace dataset reloaded", zap.Int("airspaces", len(list)), zap.String("source", source))
}

// PreferencesChanged drops overlay results computed with old preferences
func (e *Engine) PreferencesChanged() {
	e.Overlay.Purge()
	e.Loader.Invalidate()
}

// Stats returns dataset and cache counters
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	source, loadedAt := e.source, e.loadedAt
	e.mu.RUnlock()

	s := Stats{
		Airspaces:      e.Identify.Index().Len(),
		Source:         source,
		LoadedAt:       loadedAt,
		CachedPolygons: e.Identify.CachedPolygons(),
		CachedOverlays: e.Overlay.CachedBuilds(),
		OverlayState:   e.Loader.State().String(),
		OverlayLayers:  len(e.Loader.Layers()),
	}
	if p, ok := e.Styles.(purger); ok {
		s.CachedStyles = p.Len()
	}
	return s
}

// PointResult is the annotated answer to a point query
type PointResult struct {
	Entries   []filter.Entry
	Highlight []string
}

// Query runs the point query and annotates the result with the user's
// filter state. Filtered entries are dropped unless ShowFiltered is set.
// Highlight holds the lowest non-filtered layer(s).
func (e *Engine) Query(ctx context.Context, lat, lon float64) (PointResult, error) {
	list, err := e.Identify.AirspacesAt(ctx, lat, lon)
	if err != nil {
		return PointResult{}, err
	}

	prefs, err := e.Prefs.Load(ctx)
	if err != nil {
		return PointResult{}, fmt.Errorf("failed to load filter preferences: %w", err)
	}

	entries := filter.Annotate(list, prefs)
	return PointResult{
		Entries:   filter.Visible(entries, prefs),
		Highlight: filter.Highlighted(entries),
	}, nil
}
