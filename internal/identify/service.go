// Package identify answers "which airspaces are here" for a geographic point
// and serves the lowest-layer clipped polygon of each record.
package identify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/clip"
	"github.com/wegman-software/airspace-go/internal/geom"
	"github.com/wegman-software/airspace-go/internal/logger"
)

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrNotFound          = errors.New("airspace not found")
)

// Identifier is the point query and polygon retrieval capability
type Identifier interface {
	AirspacesAt(ctx context.Context, lat, lon float64) ([]*airspace.Airspace, error)
	Polygon(ctx context.Context, id string) (orb.MultiPolygon, bool)
	Boundary(ctx context.Context, id string) (orb.Ring, bool)
	Get(id string) (*airspace.Airspace, bool)
}

// Options configures a Service
type Options struct {
	IndexZoom    int
	PolygonCache int           // clipped polygons kept in memory
	PolygonTTL   time.Duration // 0 = no expiry
}

// DefaultOptions returns the service defaults
func DefaultOptions() Options {
	return Options{
		IndexZoom:    DefaultIndexZoom,
		PolygonCache: 2048,
	}
}

// Service is an in-memory Identifier. It is safe for concurrent use.
type Service struct {
	opts     Options
	index    atomic.Pointer[Index]
	polygons *expirable.LRU[string, orb.MultiPolygon]
	log      *zap.Logger
}

// NewService indexes list and returns a ready service
func NewService(list []*airspace.Airspace, opts Options) *Service {
	if opts.PolygonCache <= 0 {
		opts.PolygonCache = DefaultOptions().PolygonCache
	}
	s := &Service{
		opts:     opts,
		polygons: expirable.NewLRU[string, orb.MultiPolygon](opts.PolygonCache, nil, opts.PolygonTTL),
		log:      logger.Named("identify"),
	}
	s.index.Store(NewIndex(list, opts.IndexZoom))
	return s
}

// Reload swaps the dataset and drops every cached polygon
func (s *Service) Reload(list []*airspace.Airspace) {
	start := time.Now()
	s.index.Store(NewIndex(list, s.opts.IndexZoom))
	s.polygons.Purge()
	s.log.Info("Airspace index rebuilt",
		zap.Int("airspaces", len(list)),
		zap.Duration("duration", time.Since(start)))
}

// Index returns the current index
func (s *Service) Index() *Index {
	return s.index.Load()
}

// CachedPolygons returns the number of clipped polygons held in the cache
func (s *Service) CachedPolygons() int {
	return s.polygons.Len()
}

// ValidateCoordinate checks that lat/lon are finite WGS84 degrees
func ValidateCoordinate(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return fmt.Errorf("%w: %v, %v", ErrInvalidCoordinate, lat, lon)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinate, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinate, lon)
	}
	return nil
}

// AirspacesAt returns every airspace whose unclipped polygon contains the
// point, regardless of user filters, lowest layer first.
func (s *Service) AirspacesAt(ctx context.Context, lat, lon float64) ([]*airspace.Airspace, error) {
	if err := ValidateCoordinate(lat, lon); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := orb.Point{lon, lat}
	candidates := s.index.Load().Candidates(p)

	out := make([]*airspace.Airspace, 0, len(candidates))
	for _, a := range candidates {
		if a.Contains(p) {
			out = append(out, a)
		}
	}
	airspace.SortByAltitude(out)
	return out, nil
}

// Intersecting returns records whose bound intersects b, lowest first
func (s *Service) Intersecting(b orb.Bound) []*airspace.Airspace {
	return s.index.Load().Intersecting(b)
}

// Get returns the unclipped record
func (s *Service) Get(id string) (*airspace.Airspace, bool) {
	return s.index.Load().Get(id)
}

// Polygon returns the record's geometry with every lower layer removed.
// The result is computed on first use and cached.
func (s *Service) Polygon(ctx context.Context, id string) (orb.MultiPolygon, bool) {
	if mp, ok := s.polygons.Get(id); ok {
		return mp, len(mp) > 0
	}

	idx := s.index.Load()
	a, ok := idx.Get(id)
	if !ok {
		return nil, false
	}
	if ctx.Err() != nil {
		return nil, false
	}

	mp := clip.LowestLayer(a, idx.Intersecting(a.Bound()))
	// Skip caching results computed against a dataset replaced meanwhile
	if s.index.Load() == idx {
		s.polygons.Add(id, mp)
	}
	return mp, len(mp) > 0
}

// Boundary returns the outer ring of the largest clipped fragment
func (s *Service) Boundary(ctx context.Context, id string) (orb.Ring, bool) {
	mp, ok := s.Polygon(ctx, id)
	if !ok {
		return nil, false
	}
	poly, ok := geom.LargestPolygon(mp)
	if !ok {
		return nil, false
	}
	return poly[0], true
}
