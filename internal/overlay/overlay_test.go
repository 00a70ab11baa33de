package overlay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/filter"
	"github.com/wegman-software/airspace-go/internal/identify"
	"github.com/wegman-software/airspace-go/internal/proj"
	"github.com/wegman-software/airspace-go/internal/style"
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
		airspace.New("tma", "TMA", airspace.TypeTMA, airspace.ClassC, ft(3500), ft(9500), square(8.0, 47.0, 9.0, 48.0)),
		airspace.New("ctr", "CTR", airspace.TypeCTR, airspace.ClassD, airspace.Ground, ft(3500), square(8.4, 47.3, 8.7, 47.6)),
		airspace.New("d1", "D1", airspace.TypeDanger, airspace.ClassNone, ft(2000), ft(12000), square(8.05, 47.85, 8.2, 47.95)),
		airspace.New("high", "High", airspace.TypeTRA, airspace.ClassNone, ft(12000), ft(20000), square(8.9, 46.92, 9.05, 46.98)),
	}
}

var zurich = Viewport{
	Center: orb.Point{8.5, 47.5},
	Zoom:   8,
	Bounds: orb.Bound{Min: orb.Point{7.9, 46.9}, Max: orb.Point{9.1, 48.1}},
}

func newManager(t *testing.T, prefs filter.Preferences) *Manager {
	t.Helper()
	svc := identify.NewService(testData(), identify.DefaultOptions())
	resolver, err := style.NewTableResolver(style.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	return NewManager(svc, resolver, filter.NewMemoryStore(prefs), DefaultOptions())
}

func layerIDs(layers []Layer) []string {
	out := make([]string, len(layers))
	for i, l := range layers {
		out[i] = l.AirspaceID
	}
	return out
}

func TestViewportReady(t *testing.T) {
	if (Viewport{}).Ready() {
		t.Error("zero viewport should not be ready")
	}
	if (Viewport{Bounds: orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{1, 1}}}).Ready() {
		t.Error("degenerate viewport should not be ready")
	}
	if !zurich.Ready() {
		t.Error("zurich viewport should be ready")
	}

	rb := zurich.RenderBound()
	if !rb.Contains(zurich.Bounds.Min) || !rb.Contains(zurich.Bounds.Max) {
		t.Errorf("render bound %v does not cover viewport %v", rb, zurich.Bounds)
	}

	nudged := zurich
	nudged.Bounds = orb.Bound{Min: orb.Point{7.91, 46.91}, Max: orb.Point{9.09, 48.09}}
	if nudged.Key() != zurich.Key() {
		t.Errorf("small pan changed key: %s vs %s", nudged.Key(), zurich.Key())
	}
}

func TestBuild(t *testing.T) {
	m := newManager(t, filter.DefaultPreferences())
	ctx := context.Background()

	layers, err := m.Build(ctx, zurich, 0)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []string{"ctr", "d1", "tma", "high"}
	got := layerIDs(layers)
	if len(got) != len(want) {
		t.Fatalf("Build() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Build()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	// The TMA fragment must not cover the CTR below it
	tma := layers[2]
	if hits := HitTest([]Layer{tma}, orb.Point{8.55, 47.45}); len(hits) != 0 {
		t.Error("clipped TMA should not contain a point inside the CTR")
	}

	// Class D CTR is styled by class
	if layers[0].Style != style.ClassStyle(airspace.ClassD) {
		t.Errorf("CTR style = %+v", layers[0].Style)
	}

	types := m.VisibleTypes()
	if len(types) != 4 || types[0] != airspace.TypeDanger {
		t.Errorf("VisibleTypes() = %v", types)
	}
}

func TestBuildFiltersAndCeiling(t *testing.T) {
	prefs := filter.DefaultPreferences()
	prefs.ExcludedTypes = []airspace.Type{airspace.TypeCTR}
	m := newManager(t, prefs)

	layers, err := m.Build(context.Background(), zurich, 10000)
	if err != nil {
		t.Fatal(err)
	}
	got := layerIDs(layers)
	if len(got) != 2 || got[0] != "d1" || got[1] != "tma" {
		t.Fatalf("Build() = %v, want [d1 tma]", got)
	}

	// With the CTR hidden the TMA is drawn over it
	if hits := HitTest(layers, orb.Point{8.55, 47.45}); len(hits) != 1 || hits[0].AirspaceID != "tma" {
		t.Errorf("HitTest() = %v, want [tma]", layerIDs(hits))
	}
}

func TestBuildCacheAndNotReady(t *testing.T) {
	m := newManager(t, filter.DefaultPreferences())
	ctx := context.Background()

	if _, err := m.Build(ctx, Viewport{}, 0); !errors.Is(err, ErrViewportNotReady) {
		t.Errorf("Build(zero viewport) error = %v, want ErrViewportNotReady", err)
	}

	first, _ := m.Build(ctx, zurich, 0)
	second, _ := m.Build(ctx, zurich, 0)
	if m.CachedBuilds() != 1 {
		t.Errorf("CachedBuilds() = %d, want 1", m.CachedBuilds())
	}
	if len(first) != len(second) {
		t.Error("cached build differs")
	}

	if _, err := m.Build(ctx, zurich, 5000); err != nil {
		t.Fatal(err)
	}
	if m.CachedBuilds() != 2 {
		t.Errorf("different ceiling should be cached separately, got %d", m.CachedBuilds())
	}

	m.Purge()
	if m.CachedBuilds() != 0 {
		t.Error("Purge() should empty the cache")
	}
}

func TestHitTestOrder(t *testing.T) {
	layers := []Layer{
		{AirspaceID: "low", Geometry: square(0, 0, 2, 2)},
		{AirspaceID: "mid", Geometry: square(1, 1, 3, 3)},
		{AirspaceID: "far", Geometry: square(10, 10, 11, 11)},
	}
	hits := HitTest(layers, orb.Point{1.5, 1.5})
	if len(hits) != 2 || hits[0].AirspaceID != "low" || hits[1].AirspaceID != "mid" {
		t.Errorf("HitTest() = %v, want [low mid]", layerIDs(hits))
	}
}

func TestFeatureCollection(t *testing.T) {
	layers := []Layer{{
		AirspaceID: "ctr",
		Name:       "CTR",
		Type:       airspace.TypeCTR,
		Class:      airspace.ClassD,
		Lower:      airspace.Ground,
		Upper:      ft(3500),
		Style:      style.ClassStyle(airspace.ClassD),
		Geometry:   square(8, 47, 9, 48),
	}}

	fc := FeatureCollection(layers, nil)
	if len(fc.Features) != 1 {
		t.Fatalf("features = %d", len(fc.Features))
	}
	f := fc.Features[0]
	if f.Properties["lower"] != "GND" || f.Properties["upper"] != "3500 ft AMSL" {
		t.Errorf("properties = %v", f.Properties)
	}

	tr, _ := proj.NewTransformer(proj.SRID4326, proj.SRID3857)
	projected := FeatureCollection(layers, tr)
	mp := projected.Features[0].Geometry.(orb.MultiPolygon)
	if mp[0][0][0][0] < 100000 {
		t.Errorf("expected projected coordinates, got %v", mp[0][0][0])
	}
}

type stubBuilder struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{}
	err     error
	lastVP  Viewport
	started chan struct{}
}

func (b *stubBuilder) Build(ctx context.Context, vp Viewport, ceilingFt float64) ([]Layer, error) {
	b.mu.Lock()
	b.calls++
	b.lastVP = vp
	block, err, started := b.block, b.err, b.started
	b.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return []Layer{{AirspaceID: "x", Geometry: square(0, 0, 1, 1)}}, nil
}

func (b *stubBuilder) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestLoaderInFlightGuard(t *testing.T) {
	b := &stubBuilder{block: make(chan struct{}), started: make(chan struct{}, 1)}
	l := NewLoader(b, 10*time.Millisecond)
	defer l.Close()

	done := make(chan error, 1)
	go func() { done <- l.Refresh(context.Background(), zurich, 0) }()
	<-b.started

	if l.State() != StateLoading {
		t.Errorf("State() = %s, want loading", l.State())
	}
	if err := l.Refresh(context.Background(), zurich, 0); !errors.Is(err, ErrRefreshInFlight) {
		t.Errorf("second Refresh() error = %v, want ErrRefreshInFlight", err)
	}

	close(b.block)
	if err := <-done; err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if l.State() != StateIdle {
		t.Errorf("State() = %s, want idle", l.State())
	}
	if len(l.Layers()) != 1 || b.callCount() != 1 {
		t.Errorf("layers = %d, calls = %d", len(l.Layers()), b.callCount())
	}
}

func TestLoaderDegradesToStale(t *testing.T) {
	b := &stubBuilder{}
	l := NewLoader(b, 10*time.Millisecond)
	defer l.Close()

	if err := l.Refresh(context.Background(), zurich, 0); err != nil {
		t.Fatal(err)
	}

	b.mu.Lock()
	b.err = errors.New("network down")
	b.mu.Unlock()

	if err := l.Refresh(context.Background(), zurich, 0); err == nil {
		t.Fatal("expected error")
	}
	snap := l.Snapshot()
	if len(snap.Layers) != 1 || !snap.Stale || snap.LastError == "" {
		t.Errorf("snapshot after failure = %+v", snap)
	}
	if snap.State != StateIdle {
		t.Errorf("state after failure = %s, want idle", snap.State)
	}

	// A loader that never succeeded serves an empty set
	empty := NewLoader(&stubBuilder{err: ErrViewportNotReady}, 10*time.Millisecond)
	defer empty.Close()
	_ = empty.Refresh(context.Background(), Viewport{}, 0)
	if len(empty.Layers()) != 0 {
		t.Error("expected empty layers")
	}
}

func TestLoaderInvalidateDiscardsResult(t *testing.T) {
	b := &stubBuilder{block: make(chan struct{}), started: make(chan struct{}, 1)}
	l := NewLoader(b, 10*time.Millisecond)
	defer l.Close()

	done := make(chan error, 1)
	go func() { done <- l.Refresh(context.Background(), zurich, 0) }()
	<-b.started
	l.Invalidate()
	close(b.block)
	<-done

	if len(l.Layers()) != 0 {
		t.Error("superseded result should be discarded")
	}
}

func TestLoaderScheduleDebounces(t *testing.T) {
	b := &stubBuilder{}
	l := NewLoader(b, 50*time.Millisecond)
	defer l.Close()

	last := zurich
	last.Zoom = 9
	for i := 0; i < 5; i++ {
		l.Schedule(zurich, 0)
		time.Sleep(5 * time.Millisecond)
	}
	l.Schedule(last, 0)

	deadline := time.Now().Add(2 * time.Second)
	for b.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	if got := b.callCount(); got != 1 {
		t.Errorf("builder called %d times, want 1", got)
	}
	b.mu.Lock()
	zoom := b.lastVP.Zoom
	b.mu.Unlock()
	if zoom != 9 {
		t.Errorf("last viewport zoom = %v, want 9 (last write wins)", zoom)
	}
}

func TestDebouncer(t *testing.T) {
	var n atomic.Int32
	d := NewDebouncer(20 * time.Millisecond)

	for i := 0; i < 10; i++ {
		d.Trigger(func() { n.Add(1) })
	}
	time.Sleep(80 * time.Millisecond)
	if n.Load() != 1 {
		t.Errorf("fired %d times, want 1", n.Load())
	}

	d.Trigger(func() { n.Add(1) })
	d.Cancel()
	d.Stop()
	d.Trigger(func() { n.Add(1) })
	time.Sleep(50 * time.Millisecond)
	if n.Load() != 1 {
		t.Errorf("cancelled/stopped debouncer fired, count = %d", n.Load())
	}
}

// swappingSource replaces its dataset and purges the manager in the middle
// of the first Intersecting call, as Engine.Reload does
type swappingSource struct {
	mu      sync.Mutex
	list    []*airspace.Airspace
	next    []*airspace.Airspace
	onSwap  func()
	swapped bool
}

func (s *swappingSource) Intersecting(b orb.Bound) []*airspace.Airspace {
	s.mu.Lock()
	list := s.list
	swap := !s.swapped
	if swap {
		s.swapped = true
		s.list = s.next
	}
	s.mu.Unlock()

	if swap {
		s.onSwap()
	}
	return list
}

func TestBuildNotCachedAcrossPurge(t *testing.T) {
	src := &swappingSource{
		list: []*airspace.Airspace{
			airspace.New("old", "Old", airspace.TypeCTR, airspace.ClassD, airspace.Ground, ft(3500), square(8.4, 47.3, 8.7, 47.6)),
		},
		next: []*airspace.Airspace{
			airspace.New("new", "New", airspace.TypeCTR, airspace.ClassD, airspace.Ground, ft(3500), square(8.4, 47.3, 8.7, 47.6)),
		},
	}
	resolver, err := style.NewTableResolver(style.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(src, resolver, filter.NewMemoryStore(filter.DefaultPreferences()), DefaultOptions())
	src.onSwap = m.Purge
	ctx := context.Background()

	first, err := m.Build(ctx, zurich, 0)
	if err != nil {
		t.Fatal(err)
	}
	if ids := layerIDs(first); len(ids) != 1 || ids[0] != "old" {
		t.Fatalf("first build = %v, want [old]", ids)
	}
	if m.CachedBuilds() != 0 {
		t.Errorf("CachedBuilds() = %d, want 0 for a build overtaken by Purge", m.CachedBuilds())
	}

	second, err := m.Build(ctx, zurich, 0)
	if err != nil {
		t.Fatal(err)
	}
	if ids := layerIDs(second); len(ids) != 1 || ids[0] != "new" {
		t.Errorf("build after purge = %v, want [new]", ids)
	}
}

func TestBuildSimplifiesAtTileZoom(t *testing.T) {
	// Bottom edge zig-zags by 0.002 deg: below the zoom 8 tolerance but
	// above the zoom 8.9 one
	ring := orb.Ring{}
	for k := 0; k <= 30; k++ {
		y := 47.3
		if k%2 == 1 {
			y += 0.002
		}
		ring = append(ring, orb.Point{8.4 + 0.01*float64(k), y})
	}
	ring = append(ring, orb.Point{8.7, 47.6}, orb.Point{8.4, 47.6}, orb.Point{8.4, 47.3})
	list := []*airspace.Airspace{
		airspace.New("zz", "Zigzag", airspace.TypeCTR, airspace.ClassD, airspace.Ground, ft(3500), orb.MultiPolygon{{ring}}),
	}

	build := func(zoom float64) []Layer {
		svc := identify.NewService(list, identify.DefaultOptions())
		resolver, err := style.NewTableResolver(style.DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}
		m := NewManager(svc, resolver, filter.NewMemoryStore(filter.DefaultPreferences()), DefaultOptions())
		vp := zurich
		vp.Zoom = zoom
		layers, err := m.Build(context.Background(), vp, 0)
		if err != nil {
			t.Fatal(err)
		}
		return layers
	}

	whole, frac := build(8), build(8.9)
	if VertexCount(whole) != VertexCount(frac) {
		t.Errorf("zoom 8 and 8.9 share a cache key but give %d vs %d vertices", VertexCount(whole), VertexCount(frac))
	}
	if VertexCount(whole) >= len(ring) {
		t.Errorf("vertices = %d, want the zig-zag simplified away", VertexCount(whole))
	}
}

func TestHitTestMatchesHighlightForEqualLimits(t *testing.T) {
	list := []*airspace.Airspace{
		airspace.New("a", "Alpha", airspace.TypeRMZ, airspace.ClassNone, airspace.Ground, ft(2500), square(8.3, 47.3, 8.6, 47.6)),
		airspace.New("b", "Bravo", airspace.TypeTMZ, airspace.ClassNone, airspace.Ground, ft(2500), square(8.5, 47.5, 8.8, 47.8)),
	}
	svc := identify.NewService(list, identify.DefaultOptions())
	resolver, err := style.NewTableResolver(style.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	prefs := filter.DefaultPreferences()
	m := NewManager(svc, resolver, filter.NewMemoryStore(prefs), DefaultOptions())
	ctx := context.Background()

	layers, err := m.Build(ctx, zurich, 0)
	if err != nil {
		t.Fatal(err)
	}

	at, err := svc.AirspacesAt(ctx, 47.55, 8.55)
	if err != nil {
		t.Fatal(err)
	}
	highlight := filter.Highlighted(filter.Annotate(at, prefs))
	hits := layerIDs(HitTest(layers, orb.Point{8.55, 47.55}))

	if len(highlight) != 2 || len(hits) != 2 {
		t.Fatalf("highlight = %v, hits = %v, want both layers", highlight, hits)
	}
	for i := range hits {
		if hits[i] != highlight[i] {
			t.Errorf("hits[%d] = %s, highlight[%d] = %s", i, hits[i], i, highlight[i])
		}
	}
}
