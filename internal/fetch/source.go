package fetch

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// OpenAIPBaseURL hosts the per-country OpenAIP GeoJSON exports
const OpenAIPBaseURL = "https://storage.googleapis.com/29f98e10-a489-4c82-ae5e-489dbcd4912f"

// Source is a downloadable airspace dataset
type Source struct {
	Name           string
	URL            string
	Country        string        // ISO 3166-1 alpha-2, lower case; empty for custom sources
	UpdateInterval time.Duration // Expected update interval
	Description    string
}

// FileName is the cache file name for the source
func (s *Source) FileName() string {
	if s.Country != "" {
		return s.Country + "_asp.geojson"
	}
	name := strings.NewReplacer("/", "_", ":", "_").Replace(s.Name)
	return name + ".geojson"
}

// StateFileName is the name of the state file kept next to the data file
func (s *Source) StateFileName() string {
	return strings.TrimSuffix(s.FileName(), ".geojson") + ".state.txt"
}

// Countries with OpenAIP airspace exports
var countries = map[string]string{
	// Europe
	"at": "Austria",
	"be": "Belgium",
	"ch": "Switzerland",
	"cz": "Czech Republic",
	"de": "Germany",
	"dk": "Denmark",
	"es": "Spain",
	"fi": "Finland",
	"fr": "France",
	"gb": "United Kingdom",
	"hr": "Croatia",
	"hu": "Hungary",
	"ie": "Ireland",
	"it": "Italy",
	"li": "Liechtenstein",
	"lu": "Luxembourg",
	"nl": "Netherlands",
	"no": "Norway",
	"pl": "Poland",
	"pt": "Portugal",
	"se": "Sweden",
	"si": "Slovenia",
	"sk": "Slovakia",

	// Americas
	"us": "United States",
	"ca": "Canada",
	"mx": "Mexico",
	"br": "Brazil",
	"ar": "Argentina",
	"cl": "Chile",

	// Oceania
	"au": "Australia",
	"nz": "New Zealand",

	// Asia and Africa
	"jp": "Japan",
	"in": "India",
	"za": "South Africa",
}

// countryAliases maps common names to codes
var countryAliases = map[string]string{
	"uk":          "gb",
	"usa":         "us",
	"switzerland": "ch",
	"germany":     "de",
	"austria":     "at",
	"france":      "fr",
	"italy":       "it",
}

// CountrySource returns the OpenAIP export for a two-letter country code
func CountrySource(code string) (*Source, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if alias, ok := countryAliases[code]; ok {
		code = alias
	}
	name, ok := countries[code]
	if !ok {
		return nil, fmt.Errorf("unknown country code: %s", code)
	}

	return &Source{
		Name:           "openaip/" + code,
		URL:            fmt.Sprintf("%s/%s_asp.geojson", OpenAIPBaseURL, code),
		Country:        code,
		UpdateInterval: 24 * time.Hour,
		Description:    fmt.Sprintf("OpenAIP airspaces for %s", name),
	}, nil
}

// ParseSource parses a source string and returns a Source
// Formats:
//   - "ch", "de", "uk" (country code or alias)
//   - "openaip/ch"
//   - Custom URL: "https://example.com/airspaces.geojson"
func ParseSource(s string) (*Source, error) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		u, err := url.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid source URL: %w", err)
		}
		return &Source{
			Name:           "custom/" + strings.TrimSuffix(pathBase(u.Path), ".geojson"),
			URL:            s,
			UpdateInterval: 24 * time.Hour,
			Description:    "Custom airspace source",
		}, nil
	}

	lower := strings.ToLower(s)
	lower = strings.TrimPrefix(lower, "openaip/")
	if src, err := CountrySource(lower); err == nil {
		return src, nil
	}

	return nil, fmt.Errorf("unknown airspace source: %s", s)
}

func pathBase(p string) string {
	p = strings.TrimSuffix(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	if p == "" {
		return "source"
	}
	return p
}

// ListSources returns a list of all predefined sources
func ListSources() []string {
	codes := make([]string, 0, len(countries))
	for code := range countries {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	sources := []string{"OpenAIP country exports (use the code or openaip/<code>):"}
	for _, code := range codes {
		sources = append(sources, fmt.Sprintf("  %s - %s", code, countries[code]))
	}
	sources = append(sources, "", "Any https:// URL to a GeoJSON FeatureCollection is accepted as a custom source.")
	return sources
}
