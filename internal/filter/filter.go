// Package filter decides, at display time, which airspaces the user has
// excluded. Records are never modified; the filtered state is derived.
package filter

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/wegman-software/airspace-go/internal/airspace"
)

// Display toggle keys persisted alongside the filter
const (
	ShowFilteredKey = "show_filtered"
	SatelliteKey    = "satellite"
	LabelsKey       = "labels"
	LegendKey       = "legend"
)

// Preferences are the user's airspace exclusion settings
type Preferences struct {
	Enabled         bool                 `yaml:"enabled" json:"enabled"`
	ShowFiltered    bool                 `yaml:"show_filtered" json:"showFiltered"`
	ExcludedTypes   []airspace.Type      `yaml:"excluded_types" json:"excludedTypes"`
	ExcludedClasses []airspace.ICAOClass `yaml:"excluded_classes" json:"excludedClasses"`
	MaxAltitudeFt   float64              `yaml:"max_altitude_ft" json:"maxAltitudeFt"`
	Display         map[string]bool      `yaml:"display,omitempty" json:"display,omitempty"`
}

// DefaultPreferences returns an enabled filter that excludes nothing
func DefaultPreferences() Preferences {
	return Preferences{
		Enabled: true,
		Display: map[string]bool{},
	}
}

// Validate checks the preferences for values that cannot be applied
func (p Preferences) Validate() error {
	if p.MaxAltitudeFt < 0 {
		return fmt.Errorf("max altitude must be >= 0, got %v", p.MaxAltitudeFt)
	}
	return nil
}

// ExcludesType reports whether t is in the excluded type list
func (p Preferences) ExcludesType(t airspace.Type) bool {
	for _, x := range p.ExcludedTypes {
		if x == t {
			return true
		}
	}
	return false
}

// ExcludesClass reports whether c is in the excluded class list
func (p Preferences) ExcludesClass(c airspace.ICAOClass) bool {
	for _, x := range p.ExcludedClasses {
		if x == c {
			return true
		}
	}
	return false
}

// Fingerprint is a stable digest of the settings that affect filtering.
// Display toggles do not participate.
func (p Preferences) Fingerprint() string {
	types := make([]int, len(p.ExcludedTypes))
	for i, t := range p.ExcludedTypes {
		types[i] = int(t)
	}
	sort.Ints(types)
	classes := make([]int, len(p.ExcludedClasses))
	for i, c := range p.ExcludedClasses {
		classes[i] = int(c)
	}
	sort.Ints(classes)

	h := sha1.New()
	fmt.Fprintf(h, "%t|%v|%v|%g", p.Enabled, types, classes, p.MaxAltitudeFt)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Clone returns a deep copy
func (p Preferences) Clone() Preferences {
	out := p
	out.ExcludedTypes = append([]airspace.Type(nil), p.ExcludedTypes...)
	out.ExcludedClasses = append([]airspace.ICAOClass(nil), p.ExcludedClasses...)
	out.Display = make(map[string]bool, len(p.Display))
	for k, v := range p.Display {
		out.Display[k] = v
	}
	return out
}

// IsFiltered reports whether the user's preferences hide a.
// A disabled filter hides nothing.
func IsFiltered(a *airspace.Airspace, prefs Preferences) bool {
	if !prefs.Enabled {
		return false
	}
	if prefs.ExcludesType(a.Type) {
		return true
	}
	if prefs.ExcludesClass(a.Class) {
		return true
	}
	if prefs.MaxAltitudeFt > 0 && a.Lower.Feet() > prefs.MaxAltitudeFt {
		return true
	}
	return false
}

// Entry pairs a record with its derived filter state
type Entry struct {
	Airspace *airspace.Airspace
	Filtered bool
}

// Annotate computes the filter state for each record, preserving order
func Annotate(list []*airspace.Airspace, prefs Preferences) []Entry {
	out := make([]Entry, len(list))
	for i, a := range list {
		out[i] = Entry{Airspace: a, Filtered: IsFiltered(a, prefs)}
	}
	return out
}

// Visible drops filtered entries unless the user asked to see them
func Visible(entries []Entry, prefs Preferences) []Entry {
	if prefs.ShowFiltered {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Filtered {
			out = append(out, e)
		}
	}
	return out
}

// Highlighted returns the IDs of the lowest non-filtered layer(s) of an
// altitude-sorted list. Layers sharing the same lower and upper limit as the
// lowest one are all highlighted.
func Highlighted(entries []Entry) []string {
	var ids []string
	var lower, upper float64
	for _, e := range entries {
		if e.Filtered {
			continue
		}
		l, u := e.Airspace.Lower.Feet(), e.Airspace.Upper.Feet()
		if ids == nil {
			lower, upper = l, u
		} else if l != lower || u != upper {
			break
		}
		ids = append(ids, e.Airspace.ID)
	}
	return ids
}

// Apply returns the records that are not filtered
func Apply(list []*airspace.Airspace, prefs Preferences) []*airspace.Airspace {
	out := make([]*airspace.Airspace, 0, len(list))
	for _, a := range list {
		if !IsFiltered(a, prefs) {
			out = append(out, a)
		}
	}
	return out
}
