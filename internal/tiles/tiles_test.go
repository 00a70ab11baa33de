package tiles

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestLatLonToTile(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		zoom     int
		wantX    int
		wantY    int
	}{
		{
			name:  "London at zoom 10",
			lat:   51.5074,
			lon:   -0.1278,
			zoom:  10,
			wantX: 511,
			wantY: 340,
		},
		{
			name:  "Monaco at zoom 12",
			lat:   43.7384,
			lon:   7.4246,
			zoom:  12,
			wantX: 2132,
			wantY: 1493,
		},
		{
			name:  "Origin at zoom 0",
			lat:   0,
			lon:   0,
			zoom:  0,
			wantX: 0,
			wantY: 0,
		},
		{
			name:  "Origin at zoom 1",
			lat:   0,
			lon:   0,
			zoom:  1,
			wantX: 1,
			wantY: 1,
		},
		{
			name:  "Clamped north pole",
			lat:   90,
			lon:   180,
			zoom:  2,
			wantX: 3,
			wantY: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tile := LatLonToTile(tt.lat, tt.lon, tt.zoom)
			if tile.X != tt.wantX || tile.Y != tt.wantY {
				t.Errorf("LatLonToTile(%f, %f, %d) = (%d, %d), want (%d, %d)",
					tt.lat, tt.lon, tt.zoom, tile.X, tile.Y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestTileBoundContainsPoint(t *testing.T) {
	points := []orb.Point{
		{7.4246, 43.7384},
		{-0.1278, 51.5074},
		{8.55, 47.45},
	}
	for _, p := range points {
		for z := 3; z <= 12; z += 3 {
			tile := PointToTile(p, z)
			if !tile.Bound().Contains(p) {
				t.Errorf("tile %s bound %v does not contain %v", tile, tile.Bound(), p)
			}
		}
	}

	world := Tile{Z: 0}.Bound()
	if world.Min[0] != -180 || world.Max[0] != 180 {
		t.Errorf("zoom 0 lon range = %v..%v", world.Min[0], world.Max[0])
	}
	if math.Abs(world.Max[1]-MaxMercatorLat) > 1e-6 {
		t.Errorf("zoom 0 max lat = %v, want %v", world.Max[1], MaxMercatorLat)
	}
}

func TestBBoxToTileRange(t *testing.T) {
	bbox := BBox{
		MinLon: 7.409,
		MinLat: 43.724,
		MaxLon: 7.440,
		MaxLat: 43.752,
	}

	tileRange := BBoxToTileRange(bbox, 14)

	if tileRange.TileCount() < 1 {
		t.Error("expected at least 1 tile")
	}
	if tileRange.TileCount() > 100 {
		t.Errorf("expected fewer than 100 tiles, got %d", tileRange.TileCount())
	}
	if tileRange.Z != 14 {
		t.Errorf("expected zoom 14, got %d", tileRange.Z)
	}

	n := 0
	tileRange.Each(func(Tile) { n++ })
	if n != tileRange.TileCount() {
		t.Errorf("Each visited %d tiles, want %d", n, tileRange.TileCount())
	}
}

func TestCoveringTiles(t *testing.T) {
	bbox := BBox{MinLon: 7.4246, MaxLon: 7.4246, MinLat: 43.7384, MaxLat: 43.7384}

	tiles := CoveringTiles(bbox, 10, 12)
	if len(tiles) != 3 {
		t.Errorf("expected 3 tiles (one per zoom), got %d", len(tiles))
	}

	if got := CoveringTiles(BBox{MinLon: 10, MaxLon: 0}, 0, 3); got != nil {
		t.Errorf("invalid bbox should yield nil, got %d tiles", len(got))
	}
}

func TestTileKeyUnique(t *testing.T) {
	seen := make(map[uint64]Tile)
	for z := 0; z <= 4; z++ {
		n := 1 << z
		for x := 0; x < n; x++ {
			for y := 0; y < n; y++ {
				tile := Tile{Z: z, X: x, Y: y}
				if prev, ok := seen[tile.Key()]; ok {
					t.Fatalf("key collision between %s and %s", prev, tile)
				}
				seen[tile.Key()] = tile
			}
		}
	}
}

func TestClampZoom(t *testing.T) {
	tests := map[float64]int{-1: 0, 0: 0, 7.9: 7, 30: MaxZoom}
	for in, want := range tests {
		if got := ClampZoom(in); got != want {
			t.Errorf("ClampZoom(%v) = %d, want %d", in, got, want)
		}
	}
}
