package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/filter"
	"github.com/wegman-software/airspace-go/internal/identify"
	"github.com/wegman-software/airspace-go/internal/overlay"
	"github.com/wegman-software/airspace-go/internal/proj"
	"github.com/wegman-software/airspace-go/internal/style"
)

type airspaceView struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	TypeName    string         `json:"typeName"`
	Class       string         `json:"icaoClass"`
	ClassName   string         `json:"icaoClassName"`
	Country     string         `json:"country,omitempty"`
	Lower       string         `json:"lower"`
	Upper       string         `json:"upper"`
	LowerLimit  airspace.Limit `json:"lowerLimit"`
	UpperLimit  airspace.Limit `json:"upperLimit"`
	Filtered    bool           `json:"filtered"`
	Highlighted bool           `json:"highlighted"`
	Style       *style.Style   `json:"style,omitempty"`
}

func newAirspaceView(a *airspace.Airspace) airspaceView {
	return airspaceView{
		ID:         a.ID,
		Name:       a.Name,
		Type:       a.Type.Abbrev(),
		TypeName:   a.Type.Tooltip(),
		Class:      a.Class.String(),
		ClassName:  a.Class.DisplayName(),
		Country:    a.Country,
		Lower:      a.Lower.String(),
		Upper:      a.Upper.String(),
		LowerLimit: a.Lower,
		UpperLimit: a.Upper,
	}
}

type boundsJSON struct {
	MinLon float64 `json:"minLon"`
	MinLat float64 `json:"minLat"`
	MaxLon float64 `json:"maxLon"`
	MaxLat float64 `json:"maxLat"`
}

type pointJSON struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type viewportRequest struct {
	Center    pointJSON  `json:"center"`
	Zoom      float64    `json:"zoom"`
	Bounds    boundsJSON `json:"bounds"`
	CeilingFt float64    `json:"ceilingFt"`
}

func (v viewportRequest) viewport() overlay.Viewport {
	return overlay.Viewport{
		Center: orb.Point{v.Center.Lon, v.Center.Lat},
		Zoom:   v.Zoom,
		Bounds: orb.Bound{
			Min: orb.Point{v.Bounds.MinLon, v.Bounds.MinLat},
			Max: orb.Point{v.Bounds.MaxLon, v.Bounds.MaxLat},
		},
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"stats":  s.engine.Stats(),
	}
	if s.metrics != nil {
		if m := s.metrics.GetMetrics(); m != nil {
			resp["metrics"] = m
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseCoordinate(r *http.Request) (lat, lon float64, err error) {
	q := r.URL.Query()
	lat, err = strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid lat: %q", q.Get("lat"))
	}
	lon, err = strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid lon: %q", q.Get("lon"))
	}
	return lat, lon, identify.ValidateCoordinate(lat, lon)
}

func (s *Server) airspacesAt(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := parseCoordinate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.engine.Query(r.Context(), lat, lon)
	if err != nil {
		if errors.Is(err, identify.ErrInvalidCoordinate) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("Point query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "point query failed")
		return
	}

	highlight := make(map[string]bool, len(res.Highlight))
	for _, id := range res.Highlight {
		highlight[id] = true
	}

	views := make([]airspaceView, 0, len(res.Entries))
	for _, e := range res.Entries {
		v := newAirspaceView(e.Airspace)
		v.Filtered = e.Filtered
		v.Highlighted = highlight[e.Airspace.ID]
		st := s.engine.Styles.Resolve(e.Airspace)
		v.Style = &st
		views = append(views, v)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lat":       lat,
		"lon":       lon,
		"airspaces": views,
		"highlight": res.Highlight,
	})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*airspace.Airspace, bool) {
	id := chi.URLParam(r, "id")
	a, ok := s.engine.Identify.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, identify.ErrNotFound.Error())
		return nil, false
	}
	return a, true
}

func (s *Server) getAirspace(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}
	v := newAirspaceView(a)
	if prefs, err := s.engine.Prefs.Load(r.Context()); err == nil {
		v.Filtered = filter.IsFiltered(a, prefs)
	}
	writeJSON(w, http.StatusOK, v)
}

type polygonResponse struct {
	ID       string            `json:"id"`
	Covered  bool              `json:"covered"`
	Geometry *geojson.Geometry `json:"geometry"`
	Boundary *geojson.Geometry `json:"boundary,omitempty"`
}

// getPolygon returns the airspace with every lower layer cut away. With
// raw=true the unclipped geometry is returned instead.
func (s *Server) getPolygon(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}

	resp := polygonResponse{ID: a.ID}
	if r.URL.Query().Get("raw") == "true" {
		resp.Geometry = geojson.NewGeometry(a.Geometry)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	mp, ok := s.engine.Identify.Polygon(r.Context(), a.ID)
	if !ok {
		resp.Covered = true
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Geometry = geojson.NewGeometry(mp)
	if ring, ok := s.engine.Identify.Boundary(r.Context(), a.ID); ok {
		resp.Boundary = geojson.NewGeometry(orb.Polygon{ring})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getStyle(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Styles.Resolve(a))
}

func transformerFor(r *http.Request) (*proj.Transformer, error) {
	srid, err := proj.ParseSRID(r.URL.Query().Get("srid"))
	if err != nil {
		return nil, err
	}
	if srid == proj.SRID4326 {
		return nil, nil
	}
	return proj.NewTransformer(proj.SRID4326, srid)
}

func (s *Server) buildOverlay(w http.ResponseWriter, r *http.Request) {
	var req viewportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tr, err := transformerFor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Build failures degrade to an empty overlay
	layers, err := s.engine.Overlay.Build(r.Context(), req.viewport(), req.CeilingFt)
	if err != nil {
		if !errors.Is(err, overlay.ErrViewportNotReady) {
			s.log.Warn("Overlay build failed", zap.Error(err))
		}
		layers = nil
	}
	writeJSON(w, http.StatusOK, overlay.FeatureCollection(layers, tr))
}

func (s *Server) scheduleViewport(w http.ResponseWriter, r *http.Request) {
	var req viewportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.engine.Loader.Schedule(req.viewport(), req.CeilingFt)
	writeJSON(w, http.StatusAccepted, map[string]string{"state": s.engine.Loader.State().String()})
}

type snapshotResponse struct {
	State     string                     `json:"state"`
	Stale     bool                       `json:"stale"`
	Updated   time.Time                  `json:"updated"`
	LastError string                     `json:"lastError,omitempty"`
	CeilingFt float64                    `json:"ceilingFt"`
	Bounds    boundsJSON                 `json:"bounds"`
	Zoom      float64                    `json:"zoom"`
	Layers    *geojson.FeatureCollection `json:"layers"`
}

func (s *Server) currentOverlay(w http.ResponseWriter, r *http.Request) {
	tr, err := transformerFor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap := s.engine.Loader.Snapshot()
	b := snap.Viewport.Bounds
	writeJSON(w, http.StatusOK, snapshotResponse{
		State:     snap.State.String(),
		Stale:     snap.Stale,
		Updated:   snap.Updated,
		LastError: snap.LastError,
		CeilingFt: snap.CeilingFt,
		Bounds:    boundsJSON{MinLon: b.Min[0], MinLat: b.Min[1], MaxLon: b.Max[0], MaxLat: b.Max[1]},
		Zoom:      snap.Viewport.Zoom,
		Layers:    overlay.FeatureCollection(snap.Layers, tr),
	})
}

func (s *Server) hitTest(w http.ResponseWriter, r *http.Request) {
	var req pointJSON
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := identify.ValidateCoordinate(req.Lat, req.Lon); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hits := overlay.HitTest(s.engine.Loader.Layers(), orb.Point{req.Lon, req.Lat})
	views := make([]airspaceView, 0, len(hits))
	for _, l := range hits {
		st := l.Style
		views = append(views, airspaceView{
			ID:         l.AirspaceID,
			Name:       l.Name,
			Type:       l.Type.Abbrev(),
			TypeName:   l.Type.Tooltip(),
			Class:      l.Class.String(),
			ClassName:  l.Class.DisplayName(),
			Lower:      l.Lower.String(),
			Upper:      l.Upper.String(),
			LowerLimit: l.Lower,
			UpperLimit: l.Upper,
			Style:      &st,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"airspaces": views})
}

func (s *Server) getPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.engine.Prefs.Load(r.Context())
	if err != nil {
		s.log.Error("Failed to load preferences", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) putPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs filter.Preferences
	if err := decodeJSON(w, r, &prefs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := prefs.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.Prefs.Save(r.Context(), prefs); err != nil {
		s.log.Error("Failed to save preferences", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	s.engine.PreferencesChanged()
	writeJSON(w, http.StatusOK, prefs)
}
