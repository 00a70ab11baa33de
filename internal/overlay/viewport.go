// Package overlay builds renderable airspace layers for a map viewport and
// drives debounced, non-reentrant refreshes of the current layer set.
package overlay

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/wegman-software/airspace-go/internal/tiles"
)

// ErrViewportNotReady is returned when the map camera has not been set up yet
var ErrViewportNotReady = errors.New("viewport not ready")

// Viewport describes the visible map area
type Viewport struct {
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
	Bounds orb.Bound `json:"bounds"`
}

// Ready reports whether the viewport has usable bounds
func (v Viewport) Ready() bool {
	b := v.Bounds
	if b.IsZero() || b.IsEmpty() {
		return false
	}
	if b.Max[0] <= b.Min[0] || b.Max[1] <= b.Min[1] {
		return false
	}
	return b.Min[0] >= -180 && b.Max[0] <= 180 && b.Min[1] >= -90 && b.Max[1] <= 90
}

// tileRange is the tile-aligned area covering the viewport
func (v Viewport) tileRange() tiles.TileRange {
	return tiles.BoundToTileRange(v.Bounds, tiles.ClampZoom(v.Zoom))
}

// RenderBound is the tile-aligned bound layers are clipped to. Any viewport
// with the same zoom and tile range shares the same render bound.
func (v Viewport) RenderBound() orb.Bound {
	r := v.tileRange()
	nw := tiles.Tile{Z: r.Z, X: r.MinX, Y: r.MinY}.Bound()
	se := tiles.Tile{Z: r.Z, X: r.MaxX, Y: r.MaxY}.Bound()
	return nw.Union(se)
}

// Key quantizes the viewport for caching
func (v Viewport) Key() string {
	r := v.tileRange()
	return fmt.Sprintf("%d/%d-%d/%d-%d", r.Z, r.MinX, r.MaxX, r.MinY, r.MaxY)
}
