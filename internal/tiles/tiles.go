// Package tiles implements Web Mercator tile arithmetic used for spatial
// bucketing and viewport quantization.
package tiles

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Web Mercator latitude limits
const (
	MaxMercatorLat = 85.0511287798
	MinMercatorLat = -85.0511287798
	MaxZoom        = 22
)

// Tile represents a map tile at a specific zoom level
type Tile struct {
	Z int // Zoom level
	X int // X coordinate (column)
	Y int // Y coordinate (row)
}

// String returns the tile in z/x/y format
func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Key packs the tile into a single integer for map keys
func (t Tile) Key() uint64 {
	return uint64(t.Z)<<58 | uint64(t.X)<<29 | uint64(t.Y)
}

// Bound returns the geographic extent of the tile
func (t Tile) Bound() orb.Bound {
	n := math.Exp2(float64(t.Z))
	minLon := float64(t.X)/n*360.0 - 180.0
	maxLon := float64(t.X+1)/n*360.0 - 180.0
	return orb.Bound{
		Min: orb.Point{minLon, tileLat(t.Y+1, n)},
		Max: orb.Point{maxLon, tileLat(t.Y, n)},
	}
}

func tileLat(y int, n float64) float64 {
	return math.Atan(math.Sinh(math.Pi*(1-2*float64(y)/n))) * 180.0 / math.Pi
}

// BBox represents a geographic bounding box
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// FromBound converts an orb bound (lon/lat) to a BBox
func FromBound(b orb.Bound) BBox {
	return BBox{MinLon: b.Min[0], MinLat: b.Min[1], MaxLon: b.Max[0], MaxLat: b.Max[1]}
}

// Bound converts the BBox back to an orb bound
func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinLon, b.MinLat}, Max: orb.Point{b.MaxLon, b.MaxLat}}
}

// IsValid checks if the bounding box is valid
func (b BBox) IsValid() bool {
	return b.MinLon <= b.MaxLon && b.MinLat <= b.MaxLat &&
		b.MinLon >= -180 && b.MaxLon <= 180 &&
		b.MinLat >= -90 && b.MaxLat <= 90
}

// Expand expands the bounding box to include another bbox
func (b *BBox) Expand(other BBox) {
	b.MinLon = math.Min(b.MinLon, other.MinLon)
	b.MaxLon = math.Max(b.MaxLon, other.MaxLon)
	b.MinLat = math.Min(b.MinLat, other.MinLat)
	b.MaxLat = math.Max(b.MaxLat, other.MaxLat)
}

// LatLonToTile converts latitude/longitude to tile coordinates at a given zoom level
// Uses the standard Web Mercator tile scheme (OSM/Google style)
func LatLonToTile(lat, lon float64, zoom int) Tile {
	lat = math.Max(MinMercatorLat, math.Min(MaxMercatorLat, lat))
	lon = math.Max(-180, math.Min(180, lon))

	n := float64(int(1) << zoom) // 2^zoom

	x := int((lon + 180.0) / 360.0 * n)
	if x >= int(n) {
		x = int(n) - 1
	}

	latRad := lat * math.Pi / 180.0
	y := int((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n)
	if y >= int(n) {
		y = int(n) - 1
	}
	if y < 0 {
		y = 0
	}

	return Tile{Z: zoom, X: x, Y: y}
}

// PointToTile is LatLonToTile for an orb point (lon, lat)
func PointToTile(p orb.Point, zoom int) Tile {
	return LatLonToTile(p[1], p[0], zoom)
}

// TileRange represents a range of tiles at a specific zoom level
type TileRange struct {
	Z          int
	MinX, MaxX int
	MinY, MaxY int
}

// BBoxToTileRange converts a bounding box to a range of tiles at a given zoom level
func BBoxToTileRange(bbox BBox, zoom int) TileRange {
	// Y increases southward
	topLeft := LatLonToTile(bbox.MaxLat, bbox.MinLon, zoom)
	bottomRight := LatLonToTile(bbox.MinLat, bbox.MaxLon, zoom)

	return TileRange{
		Z:    zoom,
		MinX: topLeft.X,
		MaxX: bottomRight.X,
		MinY: topLeft.Y,
		MaxY: bottomRight.Y,
	}
}

// BoundToTileRange is BBoxToTileRange for an orb bound
func BoundToTileRange(b orb.Bound, zoom int) TileRange {
	return BBoxToTileRange(FromBound(b), zoom)
}

// TileCount returns the number of tiles in the range
func (r TileRange) TileCount() int {
	return (r.MaxX - r.MinX + 1) * (r.MaxY - r.MinY + 1)
}

// Tiles returns all tiles in the range
func (r TileRange) Tiles() []Tile {
	tiles := make([]Tile, 0, r.TileCount())
	for x := r.MinX; x <= r.MaxX; x++ {
		for y := r.MinY; y <= r.MaxY; y++ {
			tiles = append(tiles, Tile{Z: r.Z, X: x, Y: y})
		}
	}
	return tiles
}

// Each calls fn for every tile in the range without allocating a slice
func (r TileRange) Each(fn func(Tile)) {
	for x := r.MinX; x <= r.MaxX; x++ {
		for y := r.MinY; y <= r.MaxY; y++ {
			fn(Tile{Z: r.Z, X: x, Y: y})
		}
	}
}

// CoveringTiles returns all tiles touched by a bounding box across zoom levels
func CoveringTiles(bbox BBox, minZoom, maxZoom int) []Tile {
	if !bbox.IsValid() {
		return nil
	}

	var tiles []Tile
	for z := minZoom; z <= maxZoom; z++ {
		tiles = append(tiles, BBoxToTileRange(bbox, z).Tiles()...)
	}
	return tiles
}

// ClampZoom rounds a fractional map zoom to a valid tile zoom
func ClampZoom(zoom float64) int {
	z := int(math.Floor(zoom))
	if z < 0 {
		return 0
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}
