package airspace

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Airspace is a decoded airspace record. Records are shared between the
// index, caches and HTTP handlers and must not be modified after New.
type Airspace struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Type     Type             `json:"type"`
	Class    ICAOClass        `json:"icaoClass"`
	Lower    Limit            `json:"lowerLimit"`
	Upper    Limit            `json:"upperLimit"`
	Country  string           `json:"country,omitempty"`
	Geometry orb.MultiPolygon `json:"-"`

	bound orb.Bound
}

// New builds a record and precomputes its bounding box
func New(id, name string, typ Type, class ICAOClass, lower, upper Limit, geometry orb.MultiPolygon) *Airspace {
	return &Airspace{
		ID:       id,
		Name:     name,
		Type:     typ,
		Class:    class,
		Lower:    lower,
		Upper:    upper,
		Geometry: geometry,
		bound:    geometry.Bound(),
	}
}

// Bound returns the bounding box of the geometry
func (a *Airspace) Bound() orb.Bound {
	if a.bound.IsZero() && len(a.Geometry) > 0 {
		return a.Geometry.Bound()
	}
	return a.bound
}

// Contains reports whether the unclipped geometry contains p (lon, lat)
func (a *Airspace) Contains(p orb.Point) bool {
	if !a.Bound().Contains(p) {
		return false
	}
	return planar.MultiPolygonContains(a.Geometry, p)
}

// Less orders airspaces lowest layer first: lower limit, upper limit, name, ID
func Less(a, b *Airspace) bool {
	if la, lb := a.Lower.Feet(), b.Lower.Feet(); la != lb {
		return la < lb
	}
	if ua, ub := a.Upper.Feet(), b.Upper.Feet(); ua != ub {
		return ua < ub
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}

// SortByAltitude sorts in place, lowest layer first
func SortByAltitude(list []*Airspace) {
	sort.SliceStable(list, func(i, j int) bool {
		return Less(list[i], list[j])
	})
}

// Lookup is a read-only view over a set of records keyed by ID
type Lookup interface {
	Get(id string) (*Airspace, bool)
}

// Set is a map-backed Lookup
type Set map[string]*Airspace

// NewSet indexes records by ID; later duplicates win
func NewSet(list []*Airspace) Set {
	s := make(Set, len(list))
	for _, a := range list {
		s[a.ID] = a
	}
	return s
}

// Get returns the record with the given ID
func (s Set) Get(id string) (*Airspace, bool) {
	a, ok := s[id]
	return a, ok
}
