package proj

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestTransform(t *testing.T) {
	tr, err := NewTransformer(SRID4326, SRID3857)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name         string
		lon, lat     float64
		wantX, wantY float64
	}{
		{"origin", 0, 0, 0, 0},
		{"antimeridian", 180, 0, maxExtent, 0},
		{"north edge", 0, maxLat, 0, maxExtent},
		{"clamped pole", 0, 90, 0, maxExtent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := tr.Transform(tt.lon, tt.lat)
			if math.Abs(x-tt.wantX) > 1 || math.Abs(y-tt.wantY) > 1 {
				t.Errorf("Transform(%v, %v) = (%v, %v), want (%v, %v)", tt.lon, tt.lat, x, y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestMultiPolygonCopy(t *testing.T) {
	tr, _ := NewTransformer(SRID4326, SRID3857)
	mp := orb.MultiPolygon{{{{8, 47}, {9, 47}, {9, 48}, {8, 47}}}}

	out := tr.MultiPolygon(mp)
	if mp[0][0][0] != (orb.Point{8, 47}) {
		t.Error("MultiPolygon modified its input")
	}
	if out[0][0][0][0] < 800000 || out[0][0][0][0] > 900000 {
		t.Errorf("projected x = %v", out[0][0][0][0])
	}

	same, _ := NewTransformer(SRID4326, SRID4326)
	if same.NeedsTransform() {
		t.Error("4326 -> 4326 should not transform")
	}
}

func TestParseSRID(t *testing.T) {
	tests := map[string]int{"": SRID4326, "epsg:3857": SRID3857, "4326": SRID4326}
	for in, want := range tests {
		got, err := ParseSRID(in)
		if err != nil || got != want {
			t.Errorf("ParseSRID(%q) = %d, %v, want %d", in, got, err, want)
		}
	}
	if _, err := ParseSRID("2056"); err == nil {
		t.Error("expected error for unsupported SRID")
	}
	if _, err := NewTransformer(SRID3857, SRID4326); err == nil {
		t.Error("expected error for unsupported source")
	}
}
