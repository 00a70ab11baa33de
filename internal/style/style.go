// Package style resolves the fill/border styling of an airspace. ICAO class
// styling always wins over type styling when the airspace is classified.
package style

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wegman-software/airspace-go/internal/airspace"
)

// Color is a 32-bit ARGB colour
type Color uint32

// ParseColor accepts "#RRGGBB", "#AARRGGBB" or the same with a 0x prefix
func ParseColor(s string) (Color, error) {
	h := strings.TrimSpace(s)
	h = strings.TrimPrefix(h, "#")
	h = strings.TrimPrefix(strings.TrimPrefix(h, "0x"), "0X")

	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q: %w", s, err)
	}
	switch len(h) {
	case 6:
		return Color(0xFF000000 | uint32(v)), nil
	case 8:
		return Color(v), nil
	}
	return 0, fmt.Errorf("invalid color %q: want 6 or 8 hex digits", s)
}

// Alpha returns the alpha channel
func (c Color) Alpha() uint8 { return uint8(c >> 24) }

// WithAlpha returns the colour with its alpha channel replaced
func (c Color) WithAlpha(a uint8) Color {
	return Color(uint32(c)&0x00FFFFFF | uint32(a)<<24)
}

// RGBA returns the channels in r, g, b, a order
func (c Color) RGBA() (r, g, b, a uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c), uint8(c >> 24)
}

func (c Color) String() string {
	return fmt.Sprintf("#%08X", uint32(c))
}

// MarshalText encodes the colour as "#AARRGGBB"
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts any form ParseColor does
func (c *Color) UnmarshalText(b []byte) error {
	v, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Style is the rendering descriptor for one airspace
type Style struct {
	FillColor   Color   `json:"fillColor" yaml:"fill"`
	BorderColor Color   `json:"borderColor" yaml:"border"`
	BorderWidth float64 `json:"borderWidth" yaml:"width"`
}

// Resolver maps an airspace to its style
type Resolver interface {
	Resolve(a *airspace.Airspace) Style
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(a *airspace.Airspace) Style

// Resolve calls f(a)
func (f ResolverFunc) Resolve(a *airspace.Airspace) Style { return f(a) }

const (
	defaultFillAlpha   = 0x40
	defaultBorderWidth = 1.5
)

// FromColor derives a translucent fill and opaque border from a base colour
func FromColor(c Color) Style {
	return Style{
		FillColor:   c.WithAlpha(defaultFillAlpha),
		BorderColor: c.WithAlpha(0xFF),
		BorderWidth: defaultBorderWidth,
	}
}

// ClassStyle is the built-in style of an ICAO class
func ClassStyle(c airspace.ICAOClass) Style {
	return FromColor(Color(c.Color()))
}
