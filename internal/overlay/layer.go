package overlay

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/wegman-software/airspace-go/internal/airspace"
	"github.com/wegman-software/airspace-go/internal/geom"
	"github.com/wegman-software/airspace-go/internal/proj"
	"github.com/wegman-software/airspace-go/internal/style"
)

// Layer is one renderable airspace: filtered, clipped and styled
type Layer struct {
	AirspaceID string             `json:"id"`
	Name       string             `json:"name"`
	Type       airspace.Type      `json:"type"`
	Class      airspace.ICAOClass `json:"icaoClass"`
	Lower      airspace.Limit     `json:"lowerLimit"`
	Upper      airspace.Limit     `json:"upperLimit"`
	Style      style.Style        `json:"style"`
	Geometry   orb.MultiPolygon   `json:"-"`
}

// HitTest returns the layers whose rendered geometry contains p (lon, lat),
// using even-odd ray casting. Layers are expected lowest first and the
// result keeps that order.
func HitTest(layers []Layer, p orb.Point) []Layer {
	var hits []Layer
	for _, l := range layers {
		if !l.Geometry.Bound().Contains(p) {
			continue
		}
		if geom.MultiPolygonContains(l.Geometry, p) {
			hits = append(hits, l)
		}
	}
	return hits
}

// VertexCount returns the number of vertices across all layers
func VertexCount(layers []Layer) int {
	n := 0
	for _, l := range layers {
		for _, poly := range l.Geometry {
			for _, ring := range poly {
				n += len(ring)
			}
		}
	}
	return n
}

// FeatureCollection converts layers to GeoJSON, projecting when tr is non-nil
func FeatureCollection(layers []Layer, tr *proj.Transformer) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, l := range layers {
		g := l.Geometry
		if tr != nil {
			g = tr.MultiPolygon(g)
		}
		f := geojson.NewFeature(g)
		f.ID = l.AirspaceID
		f.Properties["name"] = l.Name
		f.Properties["type"] = l.Type.Abbrev()
		f.Properties["typeName"] = l.Type.Tooltip()
		f.Properties["icaoClass"] = l.Class.String()
		f.Properties["lower"] = l.Lower.String()
		f.Properties["upper"] = l.Upper.String()
		f.Properties["lowerFt"] = l.Lower.Feet()
		f.Properties["upperFt"] = l.Upper.Feet()
		f.Properties["fillColor"] = l.Style.FillColor.String()
		f.Properties["borderColor"] = l.Style.BorderColor.String()
		f.Properties["borderWidth"] = l.Style.BorderWidth
		fc.Append(f)
	}
	return fc
}
