package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"
)

// BBox represents a geographic bounding box
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
	IsSet                          bool
	Region                         string // named region the box came from, if any
}

// Contains checks if a point is within the bounding box
func (b *BBox) Contains(lat, lon float64) bool {
	if !b.IsSet {
		return true
	}
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// Intersects reports whether bound overlaps the box. An unset box matches everything.
func (b *BBox) Intersects(bound orb.Bound) bool {
	if b == nil || !b.IsSet {
		return true
	}
	return b.Bound().Intersects(bound)
}

// Bound converts the box to an orb.Bound
func (b *BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinLon, b.MinLat}, Max: orb.Point{b.MaxLon, b.MaxLat}}
}

func (b *BBox) String() string {
	if b == nil || !b.IsSet {
		return ""
	}
	if b.Region != "" {
		return b.Region
	}
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// Region is a named coverage area
type Region struct {
	Name        string
	BBox        [4]float64 // minlon, minlat, maxlon, maxlat
	Description string
}

// Regions are the named coverage areas accepted by ParseBBox
var Regions = map[string]Region{
	"CONUS":                    {"Continental United States", [4]float64{-125.0, 24.5, -66.9, 49.6}, "Lower 48 states plus DC"},
	"Alaska":                   {"Alaska", [4]float64{-179.148909, 51.214183, 179.77847, 71.365162}, "Includes Aleutian Islands crossing the antimeridian"},
	"Hawaii":                   {"Hawaii", [4]float64{-178.334698, 18.910361, -154.806773, 28.402123}, "All Hawaiian Islands including Northwestern Hawaiian Islands"},
	"Puerto_Rico":              {"Puerto Rico", [4]float64{-67.945404, 17.88328, -65.220703, 18.515683}, "Main island of Puerto Rico"},
	"US_Virgin_Islands":        {"US Virgin Islands", [4]float64{-65.085452, 17.673976, -64.564907, 18.412655}, "St. Thomas, St. John, St. Croix"},
	"Caribbean":                {"Puerto Rico & US Virgin Islands Combined", [4]float64{-67.945404, 17.673976, -64.564907, 18.515683}, "Combined bounding box for Caribbean territories"},
	"Guam":                     {"Guam", [4]float64{144.618068, 13.234189, 144.956712, 13.654383}, "Territory of Guam"},
	"Northern_Mariana_Islands": {"Northern Mariana Islands", [4]float64{144.886331, 14.110472, 146.064818, 20.553802}, "Commonwealth including Saipan, Tinian, Rota"},
	"American_Samoa":           {"American Samoa", [4]float64{-171.089874, -14.548699, -168.1433, -11.046934}, "Territory in South Pacific"},
}

// RegionNames returns the region keys in sorted order
func RegionNames() []string {
	names := make([]string, 0, len(Regions))
	for k := range Regions {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func lookupRegion(s string) (Region, string, bool) {
	for k, r := range Regions {
		if strings.EqualFold(k, s) {
			return r, k, true
		}
	}
	return Region{}, "", false
}

// ParseBBox parses a bbox string in format "minlon,minlat,maxlon,maxlat" or
// a region name such as "CONUS"
func ParseBBox(s string) (*BBox, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return &BBox{IsSet: false}, nil
	}

	if r, key, ok := lookupRegion(s); ok {
		return &BBox{
			MinLon: r.BBox[0],
			MinLat: r.BBox[1],
			MaxLon: r.BBox[2],
			MaxLat: r.BBox[3],
			IsSet:  true,
			Region: key,
		}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values: minlon,minlat,maxlon,maxlat or a region name (%s)",
			strings.Join(RegionNames(), ", "))
	}

	var coords [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox coordinate %q: %w", p, err)
		}
		coords[i] = v
	}

	bbox := &BBox{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
		IsSet:  true,
	}

	// Validate
	if bbox.MinLon > bbox.MaxLon {
		return nil, fmt.Errorf("minlon (%f) must be <= maxlon (%f)", bbox.MinLon, bbox.MaxLon)
	}
	if bbox.MinLat > bbox.MaxLat {
		return nil, fmt.Errorf("minlat (%f) must be <= maxlat (%f)", bbox.MinLat, bbox.MaxLat)
	}

	return bbox, nil
}

// Config holds the global configuration shared by all commands
type Config struct {
	// Data settings
	InputFile string `yaml:"input"`    // GeoJSON airspace file
	DataDir   string `yaml:"data_dir"` // fetched country exports and fetch state
	BBoxSpec  string `yaml:"bbox"`
	BBox      *BBox  `yaml:"-"` // Geographic filter applied on import

	// User state
	PrefsFile string `yaml:"preferences"`
	StyleFile string `yaml:"style"` // Style YAML; may name a Lua script

	// Output settings
	OutputDir  string `yaml:"output_dir"`
	Projection int    `yaml:"projection"` // SRID for overlay output (4326 or 3857)

	// Database settings
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBName     string `yaml:"db_name"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBSchema   string `yaml:"db_schema"`

	// Engine settings
	Workers        int           `yaml:"workers"`
	IndexZoom      int           `yaml:"index_zoom"`
	OverlayCache   int           `yaml:"overlay_cache"`
	PolygonCache   int           `yaml:"polygon_cache"`
	StyleCache     int           `yaml:"style_cache"`
	RefreshDelay   time.Duration `yaml:"refresh_delay"`
	FetchRetries   int           `yaml:"fetch_retries"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	ListenAddr     string        `yaml:"listen"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Logging and metrics
	Verbose         bool          `yaml:"verbose"`
	LogFile         string        `yaml:"log_file"`         // Path to log file (empty = no file logging)
	MetricsInterval time.Duration `yaml:"metrics_interval"` // Interval for system metrics logging
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir:         "./airspace_data",
		BBox:            &BBox{},
		PrefsFile:       "./airspace_prefs.yaml",
		OutputDir:       "./airspace_data",
		Projection:      4326,
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "airspace",
		DBUser:          "postgres",
		DBSchema:        "public",
		Workers:         runtime.NumCPU(),
		IndexZoom:       7,
		OverlayCache:    64,
		PolygonCache:    512,
		StyleCache:      4096,
		RefreshDelay:    750 * time.Millisecond,
		FetchRetries:    3,
		FetchTimeout:    60 * time.Second,
		ListenAddr:      ":8080",
		RequestTimeout:  30 * time.Second,
		MetricsInterval: 30 * time.Second,
	}
}

// LoadFile overlays the YAML file at path onto c. Missing keys keep their
// current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if c.BBoxSpec != "" {
		bbox, err := ParseBBox(c.BBoxSpec)
		if err != nil {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		c.BBox = bbox
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1"))
	}
	if c.Projection != 4326 && c.Projection != 3857 {
		errs = append(errs, fmt.Errorf("projection must be 4326 or 3857, got %d", c.Projection))
	}
	if c.IndexZoom < 0 || c.IndexZoom > 22 {
		errs = append(errs, fmt.Errorf("index zoom must be between 0 and 22"))
	}
	if c.RefreshDelay < 0 {
		errs = append(errs, fmt.Errorf("refresh delay must not be negative"))
	}
	if c.FetchRetries < 0 {
		errs = append(errs, fmt.Errorf("fetch retries must not be negative"))
	}
	if c.DBSchema == "" {
		errs = append(errs, fmt.Errorf("database schema is required"))
	}
	return errors.Join(errs...)
}

// RequireInput checks that an input file was given
func (c *Config) RequireInput() error {
	if c.InputFile == "" {
		return fmt.Errorf("input file is required")
	}
	return nil
}
