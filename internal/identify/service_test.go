package identify

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/geom"
)

func square(minLon, minLat, maxLon, maxLat float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}}}
}

func ft(v float64) airspace.Limit {
	return airspace.Limit{Value: v, Unit: airspace.UnitFeet, Datum: airspace.DatumMSL}
}

func testData() []*airspace.Airspace {
	return []*airspace.Airspace{
		airspace.New("tma", "Zurich TMA", airspace.TypeTMA, airspace.ClassC, ft(3500), airspace.Limit{Value: 195, Unit: airspace.UnitFlightLevel, Datum: airspace.DatumSTD}, square(8.0, 47.0, 9.0, 48.0)),
		airspace.New("ctr", "Zurich CTR", airspace.TypeCTR, airspace.ClassD, airspace.Ground, ft(3500), square(8.4, 47.3, 8.7, 47.6)),
		airspace.New("fir", "Switzerland FIR", airspace.TypeFIR, airspace.ClassNone, airspace.Ground, airspace.Limit{Value: 660, Unit: airspace.UnitFlightLevel, Datum: airspace.DatumSTD}, square(-30, 20, 60, 75)),
		airspace.New("r1", "R-1", airspace.TypeRestricted, airspace.ClassNone, airspace.Limit{Value: 300, Unit: airspace.UnitMeters, Datum: airspace.DatumGND}, ft(9000), square(10.0, 46.0, 10.5, 46.5)),
	}
}

func ids(list []*airspace.Airspace) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.ID
	}
	return out
}

func TestAirspacesAt(t *testing.T) {
	svc := NewService(testData(), DefaultOptions())
	ctx := context.Background()

	tests := []struct {
		name     string
		lat, lon float64
		want     []string
	}{
		{"inside ctr", 47.45, 8.55, []string{"ctr", "fir", "tma"}},
		{"tma only", 47.9, 8.1, []string{"fir", "tma"}},
		{"restricted", 46.2, 10.2, []string{"fir", "r1"}},
		{"outside everything", 10, 10, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.AirspacesAt(ctx, tt.lat, tt.lon)
			if err != nil {
				t.Fatalf("AirspacesAt() error = %v", err)
			}
			gotIDs := ids(got)
			if len(gotIDs) != len(tt.want) {
				t.Fatalf("AirspacesAt() = %v, want %v", gotIDs, tt.want)
			}
			for i := range gotIDs {
				if gotIDs[i] != tt.want[i] {
					t.Errorf("AirspacesAt()[%d] = %s, want %s", i, gotIDs[i], tt.want[i])
				}
			}
		})
	}
}

func TestAirspacesAtInvalid(t *testing.T) {
	svc := NewService(testData(), DefaultOptions())
	for _, c := range [][2]float64{{91, 0}, {0, 181}, {math.NaN(), 0}, {0, math.Inf(1)}} {
		if _, err := svc.AirspacesAt(context.Background(), c[0], c[1]); !errors.Is(err, ErrInvalidCoordinate) {
			t.Errorf("AirspacesAt(%v, %v) error = %v, want ErrInvalidCoordinate", c[0], c[1], err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.AirspacesAt(ctx, 47, 8); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context error = %v", err)
	}
}

// Every record returned for a point must contain it in its unclipped geometry
func TestAirspacesAtRoundTrip(t *testing.T) {
	svc := NewService(testData(), DefaultOptions())
	rng := rand.New(rand.NewSource(1))
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		lat := 45 + rng.Float64()*4
		lon := 7 + rng.Float64()*4
		got, err := svc.AirspacesAt(ctx, lat, lon)
		if err != nil {
			t.Fatal(err)
		}
		for _, a := range got {
			rec, ok := svc.Get(a.ID)
			if !ok {
				t.Fatalf("Get(%s) missing", a.ID)
			}
			if !geom.MultiPolygonContains(rec.Geometry, orb.Point{lon, lat}) {
				t.Errorf("%s returned for %v,%v but does not contain it", a.ID, lat, lon)
			}
		}
		for j := 1; j < len(got); j++ {
			if airspace.Less(got[j], got[j-1]) {
				t.Errorf("result not sorted at %v,%v: %v", lat, lon, ids(got))
			}
		}
	}
}

func TestPolygonClipped(t *testing.T) {
	svc := NewService(testData(), DefaultOptions())
	ctx := context.Background()

	tma, ok := svc.Polygon(ctx, "tma")
	if !ok {
		t.Fatal("Polygon(tma) not found")
	}
	if geom.MultiPolygonContains(tma, orb.Point{8.55, 47.45}) {
		t.Error("clipped TMA should exclude the CTR underneath")
	}
	if !geom.MultiPolygonContains(tma, orb.Point{8.1, 47.9}) {
		t.Error("clipped TMA should keep area outside the CTR")
	}
	if svc.CachedPolygons() != 1 {
		t.Errorf("CachedPolygons() = %d, want 1", svc.CachedPolygons())
	}

	ring, ok := svc.Boundary(ctx, "ctr")
	if !ok || len(ring) != 5 {
		t.Errorf("Boundary(ctr) = %v, %v", ring, ok)
	}

	if _, ok := svc.Polygon(ctx, "missing"); ok {
		t.Error("Polygon(missing) should report false")
	}
}

func TestReload(t *testing.T) {
	svc := NewService(testData(), DefaultOptions())
	ctx := context.Background()

	if _, ok := svc.Polygon(ctx, "tma"); !ok {
		t.Fatal("Polygon(tma) not found")
	}

	svc.Reload(testData()[:1])
	if svc.CachedPolygons() != 0 {
		t.Error("Reload should purge the polygon cache")
	}
	if _, ok := svc.Get("ctr"); ok {
		t.Error("ctr should be gone after reload")
	}

	tma, ok := svc.Polygon(ctx, "tma")
	if !ok || !geom.MultiPolygonContains(tma, orb.Point{8.55, 47.45}) {
		t.Error("without the CTR the TMA should be unclipped")
	}
}

func TestIndexIntersecting(t *testing.T) {
	idx := NewIndex(testData(), 0)
	if idx.Zoom() != DefaultIndexZoom {
		t.Errorf("Zoom() = %d, want %d", idx.Zoom(), DefaultIndexZoom)
	}

	got := ids(idx.Intersecting(orb.Bound{Min: orb.Point{8.5, 47.5}, Max: orb.Point{8.6, 47.6}}))
	want := []string{"ctr", "fir", "tma"}
	if len(got) != len(want) {
		t.Fatalf("Intersecting() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Intersecting()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	world := idx.Intersecting(orb.Bound{Min: orb.Point{-180, -85}, Max: orb.Point{180, 85}})
	if len(world) != idx.Len() {
		t.Errorf("world query returned %d records, want %d", len(world), idx.Len())
	}
}
