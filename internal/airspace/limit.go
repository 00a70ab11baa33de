package airspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unit is the unit of a vertical limit value (OpenAIP codes)
type Unit int

const (
	UnitMeters      Unit = 0
	UnitFeet        Unit = 1
	UnitFlightLevel Unit = 6
)

// Datum is the reference a vertical limit is measured from (OpenAIP codes)
type Datum int

const (
	DatumGND Datum = 0 // above ground level
	DatumMSL Datum = 1 // above mean sea level
	DatumSTD Datum = 2 // standard pressure (flight levels)
)

const feetPerMeter = 3.28084

// ErrInvalidLimit is returned when a limit cannot be parsed
var ErrInvalidLimit = errors.New("invalid altitude limit")

// ParseUnit accepts a numeric code or "m", "ft", "FL"
func ParseUnit(s string) (Unit, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "0", "M", "METER", "METERS", "METRE", "METRES":
		return UnitMeters, nil
	case "1", "FT", "FEET", "F":
		return UnitFeet, nil
	case "6", "FL":
		return UnitFlightLevel, nil
	}
	return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidLimit, s)
}

func (u Unit) String() string {
	switch u {
	case UnitMeters:
		return "m"
	case UnitFeet:
		return "ft"
	case UnitFlightLevel:
		return "FL"
	}
	return "?"
}

// ParseDatum accepts a numeric code or GND/AGL/SFC, MSL/AMSL, STD
func ParseDatum(s string) (Datum, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "0", "GND", "AGL", "SFC":
		return DatumGND, nil
	case "1", "MSL", "AMSL":
		return DatumMSL, nil
	case "2", "STD":
		return DatumSTD, nil
	}
	return 0, fmt.Errorf("%w: unknown reference datum %q", ErrInvalidLimit, s)
}

func (d Datum) String() string {
	switch d {
	case DatumGND:
		return "AGL"
	case DatumMSL:
		return "AMSL"
	case DatumSTD:
		return "STD"
	}
	return "?"
}

// Limit is a vertical airspace boundary
type Limit struct {
	Value float64 `json:"value" yaml:"value"`
	Unit  Unit    `json:"unit" yaml:"unit"`
	Datum Datum   `json:"referenceDatum" yaml:"referenceDatum"`
}

// NewLimit builds a limit from stored codes, applying the same checks as
// ParseLimit
func NewLimit(value float64, unit Unit, datum Datum) (Limit, error) {
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return Limit{}, fmt.Errorf("%w: value %v out of range", ErrInvalidLimit, value)
	}
	switch unit {
	case UnitMeters, UnitFeet, UnitFlightLevel:
	default:
		return Limit{}, fmt.Errorf("%w: unknown unit code %d", ErrInvalidLimit, int(unit))
	}
	switch datum {
	case DatumGND, DatumMSL, DatumSTD:
	default:
		return Limit{}, fmt.Errorf("%w: unknown reference datum code %d", ErrInvalidLimit, int(datum))
	}
	if unit == UnitFlightLevel {
		datum = DatumSTD
	}
	return Limit{Value: value, Unit: unit, Datum: datum}, nil
}

// Ground is the surface limit
var Ground = Limit{Value: 0, Unit: UnitFeet, Datum: DatumGND}

// Feet returns the limit normalized to feet.
// AGL values are taken at face value since terrain elevation is unknown here.
func (l Limit) Feet() float64 {
	switch l.Unit {
	case UnitMeters:
		return l.Value * feetPerMeter
	case UnitFlightLevel:
		return l.Value * 100
	default:
		return l.Value
	}
}

// IsGround reports whether the limit is the surface
func (l Limit) IsGround() bool {
	return l.Value == 0 && l.Datum == DatumGND
}

// String renders the limit for display: "GND", "FL95", "4500 ft AMSL", "300 m AGL"
func (l Limit) String() string {
	if l.Unit == UnitFlightLevel {
		return "FL" + formatNumber(l.Value)
	}
	if l.IsGround() {
		return "GND"
	}
	return formatNumber(l.Value) + " " + l.Unit.String() + " " + l.Datum.String()
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseLimit validates a raw limit object as found in GeoJSON properties.
// Keys: value, unit, referenceDatum (or reference). Codes and strings are both accepted.
func ParseLimit(raw map[string]any) (Limit, error) {
	if raw == nil {
		return Limit{}, fmt.Errorf("%w: missing", ErrInvalidLimit)
	}

	var l Limit

	v, ok := raw["value"]
	if !ok {
		return Limit{}, fmt.Errorf("%w: missing value", ErrInvalidLimit)
	}
	value, err := toFloat(v)
	if err != nil {
		return Limit{}, err
	}
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return Limit{}, fmt.Errorf("%w: value %v out of range", ErrInvalidLimit, value)
	}
	l.Value = value

	l.Unit = UnitFeet
	if u, ok := raw["unit"]; ok && u != nil {
		if l.Unit, err = ParseUnit(toString(u)); err != nil {
			return Limit{}, err
		}
	}

	l.Datum = DatumMSL
	ref, ok := raw["referenceDatum"]
	if !ok {
		ref, ok = raw["reference"]
	}
	if ok && ref != nil {
		if l.Datum, err = ParseDatum(toString(ref)); err != nil {
			return Limit{}, err
		}
	}

	if l.Unit == UnitFlightLevel {
		l.Datum = DatumSTD
	}

	return l, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: value %q: %v", ErrInvalidLimit, n, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: value of type %T", ErrInvalidLimit, v)
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case json.Number:
		return s.String()
	}
	return fmt.Sprint(v)
}
