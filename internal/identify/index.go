package identify

import (
	"github.com/paulmach/orb"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/tiles"
)

const (
	// DefaultIndexZoom is the tile zoom used for buckets (~2.8 degrees wide)
	DefaultIndexZoom = 7
	// Records spanning more tiles than this go to the always-checked list
	maxTilesPerRecord = 256
)

// Index buckets airspaces by the Web Mercator tiles their bounds cover
type Index struct {
	zoom    int
	buckets map[uint64][]*airspace.Airspace
	large   []*airspace.Airspace
	all     []*airspace.Airspace
	byID    airspace.Set
}

// NewIndex builds an index at the given zoom (DefaultIndexZoom when <= 0)
func NewIndex(list []*airspace.Airspace, zoom int) *Index {
	if zoom <= 0 {
		zoom = DefaultIndexZoom
	}

	idx := &Index{
		zoom:    zoom,
		buckets: make(map[uint64][]*airspace.Airspace),
		all:     make([]*airspace.Airspace, len(list)),
		byID:    airspace.NewSet(list),
	}
	copy(idx.all, list)
	airspace.SortByAltitude(idx.all)

	// Insert in altitude order so bucket contents are already sorted
	for _, a := range idx.all {
		r := tiles.BoundToTileRange(a.Bound(), zoom)
		if r.TileCount() > maxTilesPerRecord {
			idx.large = append(idx.large, a)
			continue
		}
		r.Each(func(t tiles.Tile) {
			k := t.Key()
			idx.buckets[k] = append(idx.buckets[k], a)
		})
	}
	return idx
}

// Len returns the number of indexed records
func (idx *Index) Len() int { return len(idx.all) }

// Zoom returns the bucket zoom level
func (idx *Index) Zoom() int { return idx.zoom }

// All returns every record, lowest first. The slice must not be modified.
func (idx *Index) All() []*airspace.Airspace { return idx.all }

// Get returns the record with the given ID
func (idx *Index) Get(id string) (*airspace.Airspace, bool) {
	return idx.byID.Get(id)
}

// Candidates returns records whose bound contains p, unsorted
func (idx *Index) Candidates(p orb.Point) []*airspace.Airspace {
	bucket := idx.buckets[tiles.PointToTile(p, idx.zoom).Key()]

	out := make([]*airspace.Airspace, 0, len(bucket)+len(idx.large))
	for _, a := range bucket {
		if a.Bound().Contains(p) {
			out = append(out, a)
		}
	}
	for _, a := range idx.large {
		if a.Bound().Contains(p) {
			out = append(out, a)
		}
	}
	return out
}

// Intersecting returns records whose bound intersects b, lowest first
func (idx *Index) Intersecting(b orb.Bound) []*airspace.Airspace {
	seen := make(map[*airspace.Airspace]struct{})
	var out []*airspace.Airspace

	add := func(a *airspace.Airspace) {
		if _, ok := seen[a]; ok {
			return
		}
		if a.Bound().Intersects(b) {
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}

	r := tiles.BoundToTileRange(b, idx.zoom)
	if r.TileCount() > len(idx.buckets) {
		// Viewport covers more tiles than are populated; scan everything
		for _, a := range idx.all {
			add(a)
		}
		return out
	}

	r.Each(func(t tiles.Tile) {
		for _, a := range idx.buckets[t.Key()] {
			add(a)
		}
	})
	for _, a := range idx.large {
		add(a)
	}
	airspace.SortByAltitude(out)
	return out
}
