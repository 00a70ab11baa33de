package style

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wegman-software/airspace-go/internal/airspace"
)

// Config is the YAML style table. Keys of Classes are ICAO letters
// ("C", "none"); keys of Types are type abbreviations or codes ("CTR", "4").
type Config struct {
	Default Style            `yaml:"default"`
	Classes map[string]Style `yaml:"classes,omitempty"`
	Types   map[string]Style `yaml:"types,omitempty"`
	// Lua script defining style(airspace); overrides the table when it returns a value
	Script string `yaml:"script,omitempty"`
}

// LoadConfig loads a style configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read style file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse style YAML: %w", err)
	}

	return cfg, nil
}

var typeColors = map[airspace.Type]Color{
	airspace.TypeRestricted: 0xFFE53935,
	airspace.TypeProhibited: 0xFFB71C1C,
	airspace.TypeDanger:     0xFFFF6F00,
	airspace.TypeCTR:        0xFF1565C0,
	airspace.TypeTMA:        0xFF6A1B9A,
	airspace.TypeTMZ:        0xFF00838F,
	airspace.TypeRMZ:        0xFF2E7D32,
	airspace.TypeATZ:        0xFF0277BD,
	airspace.TypeGliding:    0xFFF9A825,
	airspace.TypeTRA:        0xFFAD1457,
	airspace.TypeTSA:        0xFFAD1457,
	airspace.TypeFIR:        0xFF9E9E9E,
}

// DefaultConfig returns the built-in type styles and a grey default.
// Class styles come from the ICAO class colours unless overridden.
func DefaultConfig() *Config {
	cfg := &Config{
		Default: FromColor(0xFF9E9E9E),
		Classes: map[string]Style{},
		Types:   map[string]Style{},
	}
	for t, c := range typeColors {
		cfg.Types[t.Abbrev()] = FromColor(c)
	}
	return cfg
}

// TableResolver resolves styles from a Config: class, then type, then default
type TableResolver struct {
	def     Style
	classes map[airspace.ICAOClass]Style
	types   map[airspace.Type]Style
}

// NewTableResolver validates the table keys and builds a resolver
func NewTableResolver(cfg *Config) (*TableResolver, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	r := &TableResolver{
		def:     cfg.Default,
		classes: make(map[airspace.ICAOClass]Style, len(cfg.Classes)),
		types:   make(map[airspace.Type]Style, len(cfg.Types)),
	}
	for k, s := range cfg.Classes {
		c, err := airspace.ParseICAOClass(k)
		if err != nil {
			return nil, fmt.Errorf("style classes: %w", err)
		}
		r.classes[c] = s
	}
	for k, s := range cfg.Types {
		t, err := airspace.ParseType(k)
		if err != nil {
			return nil, fmt.Errorf("style types: %w", err)
		}
		r.types[t] = s
	}
	return r, nil
}

// Resolve implements Resolver
func (r *TableResolver) Resolve(a *airspace.Airspace) Style {
	if a.Class.Classified() {
		if s, ok := r.classes[a.Class]; ok {
			return s
		}
		return ClassStyle(a.Class)
	}
	if s, ok := r.types[a.Type]; ok {
		return s
	}
	if s, ok := r.classes[airspace.ClassNone]; ok {
		return s
	}
	return r.def
}

// NewResolver builds the resolver chain described by cfg: the table, a Lua
// script in front of it when configured, and an LRU cache on top.
func NewResolver(cfg *Config, cacheSize int) (Resolver, func(), error) {
	table, err := NewTableResolver(cfg)
	if err != nil {
		return nil, nil, err
	}

	var base Resolver = table
	closer := func() {}
	if cfg != nil && cfg.Script != "" {
		lr, err := NewLuaResolver(table)
		if err != nil {
			return nil, nil, err
		}
		if err := lr.LoadFile(cfg.Script); err != nil {
			lr.Close()
			return nil, nil, err
		}
		base = lr
		closer = lr.Close
	}

	return NewCachedResolver(base, cacheSize), closer, nil
}
