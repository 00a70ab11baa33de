package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/engine"
	"github.com/wegman-software/airspace-go/internal/filter"
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

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	list := []*airspace.Airspace{
		airspace.New("tma", "Zurich TMA", airspace.TypeTMA, airspace.ClassC, ft(3500), ft(9500), square(8, 47, 9, 48)),
		airspace.New("ctr", "Zurich CTR", airspace.TypeCTR, airspace.ClassD, airspace.Ground, ft(3500), square(8.4, 47.3, 8.7, 47.6)),
		airspace.New("rmz", "Glider RMZ", airspace.TypeRMZ, airspace.ClassNone, airspace.Ground, ft(1000), square(8.5, 47.4, 8.6, 47.5)),
	}
	table, err := style.NewTableResolver(style.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	opts := engine.DefaultOptions()
	opts.Debounce = 10 * time.Millisecond
	e := engine.New(list, style.NewCachedResolver(table, 0), filter.NewMemoryStore(filter.DefaultPreferences()), opts)
	t.Cleanup(e.Close)

	srv := httptest.NewServer(New(e, Options{}).Routes())
	t.Cleanup(srv.Close)
	return srv, e
}

func getJSON(t *testing.T, url string, dest any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func sendJSON(t *testing.T, method, url, body string, dest any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	var body struct {
		Status string       `json:"status"`
		Stats  engine.Stats `json:"stats"`
	}
	if code := getJSON(t, srv.URL+"/api/health", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body.Status != "ok" || body.Stats.Airspaces != 3 {
		t.Errorf("health = %+v", body)
	}
}

func TestAirspacesAt(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Airspaces []airspaceView `json:"airspaces"`
		Highlight []string       `json:"highlight"`
	}
	code := getJSON(t, srv.URL+"/api/airspaces/at?lat=47.45&lon=8.55", &body)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}

	want := []string{"rmz", "ctr", "tma"}
	if len(body.Airspaces) != len(want) {
		t.Fatalf("got %d airspaces, want %d", len(body.Airspaces), len(want))
	}
	for i, id := range want {
		if body.Airspaces[i].ID != id {
			t.Errorf("airspaces[%d] = %s, want %s", i, body.Airspaces[i].ID, id)
		}
	}
	if !body.Airspaces[0].Highlighted || body.Airspaces[1].Highlighted {
		t.Error("only the lowest layer should be highlighted")
	}
	if body.Airspaces[1].Lower != "GND" || body.Airspaces[2].Lower != "3500 ft AMSL" {
		t.Errorf("formatted limits = %q / %q", body.Airspaces[1].Lower, body.Airspaces[2].Lower)
	}
	if body.Airspaces[2].Style == nil {
		t.Error("style missing")
	}
}

func TestAirspacesAtInvalid(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, q := range []string{"lat=abc&lon=8", "lat=91&lon=8", "lat=47"} {
		if code := getJSON(t, srv.URL+"/api/airspaces/at?"+q, nil); code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, code)
		}
	}
}

func TestAirspaceDetail(t *testing.T) {
	srv, _ := newTestServer(t)

	var v airspaceView
	if code := getJSON(t, srv.URL+"/api/airspaces/tma", &v); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if v.Name != "Zurich TMA" || v.Type != "TMA" || v.ClassName != "Class C" {
		t.Errorf("detail = %+v", v)
	}

	if code := getJSON(t, srv.URL+"/api/airspaces/nope", nil); code != http.StatusNotFound {
		t.Errorf("missing id status = %d, want 404", code)
	}

	var st style.Style
	if code := getJSON(t, srv.URL+"/api/airspaces/tma/style", &st); code != http.StatusOK {
		t.Fatalf("style status = %d", code)
	}
	if st.BorderWidth <= 0 {
		t.Errorf("style = %+v", st)
	}
}

func TestAirspacePolygon(t *testing.T) {
	srv, _ := newTestServer(t)

	var clipped struct {
		Covered  bool            `json:"covered"`
		Geometry json.RawMessage `json:"geometry"`
		Boundary json.RawMessage `json:"boundary"`
	}
	if code := getJSON(t, srv.URL+"/api/airspaces/tma/polygon", &clipped); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if clipped.Covered || !bytes.Contains(clipped.Geometry, []byte("MultiPolygon")) || len(clipped.Boundary) == 0 {
		t.Errorf("clipped polygon = %+v", clipped)
	}

	var raw struct {
		Geometry json.RawMessage `json:"geometry"`
	}
	getJSON(t, srv.URL+"/api/airspaces/ctr/polygon?raw=true", &raw)
	if !bytes.Contains(raw.Geometry, []byte("MultiPolygon")) {
		t.Errorf("raw geometry = %s", raw.Geometry)
	}
}

const viewportBody = `{"center":{"lat":47.5,"lon":8.5},"zoom":8,"bounds":{"minLon":7.9,"minLat":46.9,"maxLon":9.1,"maxLat":48.1},"ceilingFt":0}`

func TestOverlay(t *testing.T) {
	srv, _ := newTestServer(t)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			ID         string         `json:"id"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if code := sendJSON(t, http.MethodPost, srv.URL+"/api/overlay", viewportBody, &fc); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 3 {
		t.Fatalf("overlay = %+v", fc)
	}
	if fc.Features[0].ID != "rmz" {
		t.Errorf("first layer = %s, want rmz", fc.Features[0].ID)
	}

	// Not-ready viewport degrades to an empty collection
	empty := `{"center":{"lat":0,"lon":0},"zoom":8,"bounds":{"minLon":0,"minLat":0,"maxLon":0,"maxLat":0}}`
	if code := sendJSON(t, http.MethodPost, srv.URL+"/api/overlay", empty, &fc); code != http.StatusOK || len(fc.Features) != 0 {
		t.Errorf("not-ready viewport: status %d, %d features", code, len(fc.Features))
	}

	if code := sendJSON(t, http.MethodPost, srv.URL+"/api/overlay?srid=1234", viewportBody, nil); code != http.StatusBadRequest {
		t.Errorf("bad srid status = %d, want 400", code)
	}
	if code := sendJSON(t, http.MethodPost, srv.URL+"/api/overlay", `{"zoom":"x"}`, nil); code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", code)
	}
}

func TestViewportScheduleAndHit(t *testing.T) {
	srv, e := newTestServer(t)

	if code := sendJSON(t, http.MethodPost, srv.URL+"/api/viewport", viewportBody, nil); code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", code)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(e.Loader.Layers()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	var snap struct {
		State  string `json:"state"`
		Layers struct {
			Features []json.RawMessage `json:"features"`
		} `json:"layers"`
	}
	getJSON(t, srv.URL+"/api/overlay/current?srid=3857", &snap)
	if len(snap.Layers.Features) != 3 {
		t.Fatalf("current overlay has %d layers, want 3", len(snap.Layers.Features))
	}

	var hits struct {
		Airspaces []airspaceView `json:"airspaces"`
	}
	sendJSON(t, http.MethodPost, srv.URL+"/api/hit", `{"lat":47.45,"lon":8.55}`, &hits)
	if len(hits.Airspaces) != 1 || hits.Airspaces[0].ID != "rmz" {
		t.Errorf("hits = %+v, want only the rmz (the rest is clipped away)", hits.Airspaces)
	}

	sendJSON(t, http.MethodPost, srv.URL+"/api/hit", `{"lat":47.9,"lon":8.1}`, &hits)
	if len(hits.Airspaces) != 1 || hits.Airspaces[0].ID != "tma" {
		t.Errorf("hits = %+v, want tma", hits.Airspaces)
	}
}

func TestPreferences(t *testing.T) {
	srv, _ := newTestServer(t)

	var prefs filter.Preferences
	if code := getJSON(t, srv.URL+"/api/preferences", &prefs); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !prefs.Enabled {
		t.Errorf("default prefs = %+v", prefs)
	}

	body := `{"enabled":true,"showFiltered":false,"excludedTypes":["RMZ"],"excludedClasses":[],"maxAltitudeFt":0}`
	if code := sendJSON(t, http.MethodPut, srv.URL+"/api/preferences", body, &prefs); code != http.StatusOK {
		t.Fatalf("put status = %d", code)
	}

	var at struct {
		Airspaces []airspaceView `json:"airspaces"`
		Highlight []string       `json:"highlight"`
	}
	getJSON(t, srv.URL+"/api/airspaces/at?lat=47.45&lon=8.55", &at)
	if len(at.Airspaces) != 2 || at.Highlight[0] != "ctr" {
		t.Errorf("after excluding RMZ: %d airspaces, highlight %v", len(at.Airspaces), at.Highlight)
	}

	if code := sendJSON(t, http.MethodPut, srv.URL+"/api/preferences", `{"unknown":1}`, nil); code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", code)
	}
}

type brokenPrefs struct{}

func (brokenPrefs) Load(ctx context.Context) (filter.Preferences, error) {
	return filter.Preferences{}, errors.New("preferences unavailable")
}

func (brokenPrefs) Save(ctx context.Context, prefs filter.Preferences) error {
	return errors.New("preferences unavailable")
}

func TestOverlayBuildFailureDegradesToEmpty(t *testing.T) {
	list := []*airspace.Airspace{
		airspace.New("ctr", "Zurich CTR", airspace.TypeCTR, airspace.ClassD, airspace.Ground, ft(3500), square(8.4, 47.3, 8.7, 47.6)),
	}
	table, err := style.NewTableResolver(style.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	e := engine.New(list, table, brokenPrefs{}, engine.DefaultOptions())
	t.Cleanup(e.Close)
	srv := httptest.NewServer(New(e, Options{}).Routes())
	t.Cleanup(srv.Close)

	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	code := sendJSON(t, http.MethodPost, srv.URL+"/api/overlay", viewportBody, &fc)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 0 {
		t.Errorf("overlay = %+v, want empty FeatureCollection", fc)
	}
}
