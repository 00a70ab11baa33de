package airspace

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DecodeStats counts what happened to each feature during Decode
type DecodeStats struct {
	Features        int `json:"features"`
	Decoded         int `json:"decoded"`
	SkippedGeometry int `json:"skippedGeometry"`
	SkippedLimits   int `json:"skippedLimits"`
	Duplicates      int `json:"duplicates"`
}

// Skipped returns the number of features that were not decoded
func (s DecodeStats) Skipped() int {
	return s.SkippedGeometry + s.SkippedLimits + s.Duplicates
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Decode parses an OpenAIP GeoJSON export. Features without an areal geometry
// or with invalid vertical limits are skipped and counted.
func Decode(data []byte) ([]*Airspace, DecodeStats, error) {
	var stats DecodeStats

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to parse GeoJSON: %w", err)
	}

	stats.Features = len(fc.Features)
	out := make([]*Airspace, 0, len(fc.Features))
	seen := make(map[string]bool, len(fc.Features))

	for i, f := range fc.Features {
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		default:
			stats.SkippedGeometry++
			continue
		}
		if len(mp) == 0 || len(mp[0]) == 0 || len(mp[0][0]) < 4 {
			stats.SkippedGeometry++
			continue
		}

		lower, err := ParseLimit(limitProp(f.Properties, "lowerLimit"))
		if err != nil {
			stats.SkippedLimits++
			continue
		}
		upper, err := ParseLimit(limitProp(f.Properties, "upperLimit"))
		if err != nil {
			stats.SkippedLimits++
			continue
		}

		name := strings.TrimSpace(f.Properties.MustString("name", ""))
		id := featureID(f, name, i)
		if seen[id] {
			stats.Duplicates++
			continue
		}
		seen[id] = true

		typ := TypeOther
		if v, ok := f.Properties["type"]; ok && v != nil {
			if t, err := ParseType(toString(v)); err == nil {
				typ = t
			}
		}
		class := ClassNone
		if v, ok := f.Properties["icaoClass"]; ok && v != nil {
			if c, err := ParseICAOClass(toString(v)); err == nil {
				class = c
			}
		}

		a := New(id, name, typ, class, lower, upper, mp)
		a.Country = strings.ToUpper(f.Properties.MustString("country", ""))
		out = append(out, a)
	}

	stats.Decoded = len(out)
	return out, stats, nil
}

// LoadFile memory-maps a GeoJSON file and decodes it
func LoadFile(path string) ([]*Airspace, DecodeStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, DecodeStats{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, DecodeStats{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return nil, DecodeStats{}, fmt.Errorf("%s is empty", path)
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, DecodeStats{}, fmt.Errorf("failed to mmap %s: %w", path, err)
	}
	defer m.Unmap()

	return Decode(m)
}

func limitProp(props geojson.Properties, key string) map[string]any {
	if m, ok := props[key].(map[string]any); ok {
		return m
	}
	return nil
}

// featureID prefers the OpenAIP _id, then the feature id, then a name slug
func featureID(f *geojson.Feature, name string, index int) string {
	if id := f.Properties.MustString("_id", ""); id != "" {
		return id
	}
	if v, ok := f.Properties["id"]; ok && v != nil {
		if s := toString(v); s != "" {
			return s
		}
	}
	if f.ID != nil {
		if s := toString(f.ID); s != "" {
			return s
		}
	}
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		slug = "airspace"
	}
	return fmt.Sprintf("%s-%d", slug, index)
}
