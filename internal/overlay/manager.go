package overlay

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/clip"
	"github.com/wegman-software/airspace-go/internal/filter"
	"github.com/wegman-software/airspace-go/internal/logger"
	"github.com/wegman-software/airspace-go/internal/style"
	"github.com/wegman-software/airspace-go/internal/tiles"
)

// Source supplies candidate airspaces for a bound, lowest first
type Source interface {
	Intersecting(b orb.Bound) []*airspace.Airspace
}

// Options configures a Manager
type Options struct {
	Workers   int
	CacheSize int
	CacheTTL  time.Duration
}

// DefaultOptions returns the manager defaults
func DefaultOptions() Options {
	return Options{
		Workers:   runtime.NumCPU(),
		CacheSize: 64,
		CacheTTL:  10 * time.Minute,
	}
}

// Manager builds overlay layers for viewports. It is safe for concurrent use.
type Manager struct {
	source   Source
	resolver style.Resolver
	prefs    filter.Store
	opts     Options
	cache    *expirable.LRU[string, []Layer]
	log      *zap.Logger

	// bumped by Purge; builds started before a purge are not cached
	generation atomic.Uint64

	mu           sync.RWMutex
	visibleTypes []airspace.Type
}

// NewManager creates a manager
func NewManager(source Source, resolver style.Resolver, prefs filter.Store, opts Options) *Manager {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultOptions().CacheSize
	}
	return &Manager{
		source:   source,
		resolver: resolver,
		prefs:    prefs,
		opts:     opts,
		cache:    expirable.NewLRU[string, []Layer](opts.CacheSize, nil, opts.CacheTTL),
		log:      logger.Named("overlay"),
	}
}

// Purge drops cached layer sets
func (m *Manager) Purge() {
	m.generation.Add(1)
	m.cache.Purge()
}

// CachedBuilds returns the number of cached layer sets
func (m *Manager) CachedBuilds() int {
	return m.cache.Len()
}

// VisibleTypes returns the airspace types present after filtering in the
// most recent build, in code order
func (m *Manager) VisibleTypes() []airspace.Type {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]airspace.Type(nil), m.visibleTypes...)
}

// Build returns the layers for vp: airspaces hidden by the user's filter or
// starting above ceilingFt (when > 0) are dropped, overlaps are reduced to
// the lowest layer, and the rest is clipped to the viewport, simplified for
// the zoom level and styled. Layers are ordered lowest first.
func (m *Manager) Build(ctx context.Context, vp Viewport, ceilingFt float64) ([]Layer, error) {
	if !vp.Ready() {
		return nil, ErrViewportNotReady
	}

	gen := m.generation.Load()
	prefs, err := m.prefs.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load filter preferences: %w", err)
	}

	key := fmt.Sprintf("%s|%g|%s", vp.Key(), ceilingFt, prefs.Fingerprint())
	if layers, ok := m.cache.Get(key); ok {
		m.setVisibleTypes(layers)
		return layers, nil
	}

	start := time.Now()
	bound := vp.RenderBound()
	// Simplify at the tile zoom so every viewport sharing the cache key
	// gets the same geometry
	zoom := float64(tiles.ClampZoom(vp.Zoom))

	var visible []*airspace.Airspace
	for _, a := range m.source.Intersecting(bound) {
		if filter.IsFiltered(a, prefs) {
			continue
		}
		if ceilingFt > 0 && a.Lower.Feet() > ceilingFt {
			continue
		}
		mp := clip.ToViewport(a.Geometry, bound)
		if len(mp) == 0 {
			continue
		}
		// Shadow record carrying only the in-view geometry
		v := airspace.New(a.ID, a.Name, a.Type, a.Class, a.Lower, a.Upper, mp)
		v.Country = a.Country
		visible = append(visible, v)
	}
	airspace.SortByAltitude(visible)

	slots := make([]*Layer, len(visible))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)

	for i, a := range visible {
		i, a := i, a
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			mp := clip.LowestLayer(a, visible[:i])
			mp = clip.Simplify(mp, zoom)
			if len(mp) == 0 {
				return nil
			}
			slots[i] = &Layer{
				AirspaceID: a.ID,
				Name:       a.Name,
				Type:       a.Type,
				Class:      a.Class,
				Lower:      a.Lower,
				Upper:      a.Upper,
				Style:      m.resolver.Resolve(a),
				Geometry:   mp,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	layers := make([]Layer, 0, len(slots))
	for _, l := range slots {
		if l != nil {
			layers = append(layers, *l)
		}
	}

	if m.generation.Load() == gen {
		m.cache.Add(key, layers)
	} else {
		m.log.Debug("Dataset changed during build, result not cached", zap.String("viewport", vp.Key()))
	}
	m.setVisibleTypes(layers)

	m.log.Debug("Overlay built",
		zap.String("viewport", vp.Key()),
		zap.Int("candidates", len(visible)),
		zap.Int("layers", len(layers)),
		zap.Int("vertices", VertexCount(layers)),
		zap.Duration("duration", time.Since(start)))

	return layers, nil
}

func (m *Manager) setVisibleTypes(layers []Layer) {
	seen := make(map[airspace.Type]bool)
	var types []airspace.Type
	for _, l := range layers {
		if !seen[l.Type] {
			seen[l.Type] = true
			types = append(types, l.Type)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	m.mu.Lock()
	m.visibleTypes = types
	m.mu.Unlock()
}
