// Package airspace holds the airspace record model: categories, ICAO classes,
// vertical limits and the lowest-layer-first ordering shared by every consumer.
package airspace

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the airspace category, numbered as in the OpenAIP data model
type Type int

const (
	TypeOther Type = iota
	TypeRestricted
	TypeDanger
	TypeProhibited
	TypeCTR
	TypeTMZ
	TypeRMZ
	TypeTMA
	TypeTRA
	TypeTSA
	TypeFIR
	TypeUIR
	TypeADIZ
	TypeATZ
	TypeMATZ
	TypeAirway
	TypeMTR
	TypeAlert
	TypeWarning
	TypeProtected
	TypeHTZ
	TypeGliding
	TypeTRP
	TypeTIZ
	TypeTIA
	TypeMTA
	TypeCTA
	TypeACC
	TypeSporting
	TypeOverflight
	TypeMRT
	TypeTFR
	TypeVFRSector
	TypeFISSector
	TypeLTA
	TypeUTA
	TypeMCTR
)

type typeInfo struct {
	abbrev      string
	tooltip     string
	description string
}

var typeTable = map[Type]typeInfo{
	TypeOther:      {"OTHER", "Other", "Airspace without a more specific category"},
	TypeRestricted: {"R", "Restricted", "Flight restricted to specified conditions"},
	TypeDanger:     {"D", "Danger", "Activities dangerous to flight may exist"},
	TypeProhibited: {"P", "Prohibited", "Flight prohibited"},
	TypeCTR:        {"CTR", "Control Zone", "Controlled airspace from the surface around an aerodrome"},
	TypeTMZ:        {"TMZ", "Transponder Mandatory Zone", "Transponder required"},
	TypeRMZ:        {"RMZ", "Radio Mandatory Zone", "Radio contact required"},
	TypeTMA:        {"TMA", "Terminal Control Area", "Controlled airspace above the CTR serving arrivals and departures"},
	TypeTRA:        {"TRA", "Temporary Reserved Area", "Reserved for specific users during activation"},
	TypeTSA:        {"TSA", "Temporary Segregated Area", "Segregated for exclusive use during activation"},
	TypeFIR:        {"FIR", "Flight Information Region", "Region providing flight information and alerting service"},
	TypeUIR:        {"UIR", "Upper Flight Information Region", "Upper flight information region"},
	TypeADIZ:       {"ADIZ", "Air Defense Identification Zone", "Identification required for national security"},
	TypeATZ:        {"ATZ", "Aerodrome Traffic Zone", "Protects aerodrome traffic"},
	TypeMATZ:       {"MATZ", "Military Aerodrome Traffic Zone", "Protects military aerodrome traffic"},
	TypeAirway:     {"AWY", "Airway", "Controlled corridor for en-route traffic"},
	TypeMTR:        {"MTR", "Military Training Route", "Low level military training route"},
	TypeAlert:      {"ALERT", "Alert Area", "High volume of pilot training or unusual activity"},
	TypeWarning:    {"WARNING", "Warning Area", "Hazards to non-participating aircraft"},
	TypeProtected:  {"PROTECTED", "Protected Area", "Nature or other protected area"},
	TypeHTZ:        {"HTZ", "Helicopter Traffic Zone", "Protects helicopter traffic"},
	TypeGliding:    {"GLIDING", "Gliding Sector", "Glider flying activity"},
	TypeTRP:        {"TRP", "Transponder Setting", "Specific transponder setting required"},
	TypeTIZ:        {"TIZ", "Traffic Information Zone", "Traffic information service provided"},
	TypeTIA:        {"TIA", "Traffic Information Area", "Traffic information service provided"},
	TypeMTA:        {"MTA", "Military Training Area", "Military training activity"},
	TypeCTA:        {"CTA", "Control Area", "Controlled airspace above a specified limit"},
	TypeACC:        {"ACC", "ACC Sector", "Area control centre sector"},
	TypeSporting:   {"SPORT", "Sporting / Recreational", "Aerial sporting or recreational activity"},
	TypeOverflight: {"LOR", "Low Overflight Restriction", "Low altitude overflight restriction"},
	TypeMRT:        {"MRT", "Military Route", "Military route"},
	TypeTFR:        {"TFR", "Temporary Flight Restriction", "Temporary flight restriction"},
	TypeVFRSector:  {"VFR", "VFR Sector", "VFR sector"},
	TypeFISSector:  {"FIS", "FIS Sector", "Flight information service sector"},
	TypeLTA:        {"LTA", "Lower Traffic Area", "Lower traffic area"},
	TypeUTA:        {"UTA", "Upper Traffic Area", "Upper traffic area"},
	TypeMCTR:       {"MCTR", "Military Control Zone", "Military control zone"},
}

func (t Type) info() typeInfo {
	if info, ok := typeTable[t]; ok {
		return info
	}
	return typeTable[TypeOther]
}

// Abbrev returns the short display label, e.g. "CTR"
func (t Type) Abbrev() string { return t.info().abbrev }

// Tooltip returns the expanded name, e.g. "Control Zone"
func (t Type) Tooltip() string { return t.info().tooltip }

// Description returns a one-line explanation of the category
func (t Type) Description() string { return t.info().description }

func (t Type) String() string { return t.Abbrev() }

// Types returns every known category in code order
func Types() []Type {
	out := make([]Type, 0, len(typeTable))
	for t := TypeOther; t <= TypeMCTR; t++ {
		out = append(out, t)
	}
	return out
}

// ParseType accepts an OpenAIP numeric code or a display abbreviation
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if _, ok := typeTable[Type(n)]; ok {
			return Type(n), nil
		}
		return TypeOther, fmt.Errorf("unknown airspace type code %d", n)
	}
	upper := strings.ToUpper(s)
	for t, info := range typeTable {
		if info.abbrev == upper {
			return t, nil
		}
	}
	switch upper {
	case "RESTRICTED":
		return TypeRestricted, nil
	case "DANGER":
		return TypeDanger, nil
	case "PROHIBITED":
		return TypeProhibited, nil
	case "AIRWAY":
		return TypeAirway, nil
	}
	return TypeOther, fmt.Errorf("unknown airspace type %q", s)
}

// MarshalText encodes the type as its abbreviation
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.Abbrev()), nil
}

// UnmarshalText decodes a code or abbreviation
func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ICAOClass is the ICAO airspace classification
type ICAOClass int

const (
	ClassA ICAOClass = iota
	ClassB
	ClassC
	ClassD
	ClassE
	ClassF
	ClassG
	_
	ClassNone // unclassified / special use
)

var classColors = map[ICAOClass]uint32{
	ClassA: 0xFFD32F2F,
	ClassB: 0xFFC2185B,
	ClassC: 0xFF7B1FA2,
	ClassD: 0xFF1976D2,
	ClassE: 0xFF388E3C,
	ClassF: 0xFFF57C00,
	ClassG: 0xFF757575,
}

var classTooltips = map[ICAOClass]string{
	ClassA: "IFR only, ATC clearance required",
	ClassB: "IFR and VFR, ATC clearance required, all flights separated",
	ClassC: "IFR and VFR, ATC clearance required",
	ClassD: "IFR and VFR, ATC clearance required, traffic information to VFR",
	ClassE: "Controlled for IFR, VFR without clearance",
	ClassF: "Advisory service for IFR",
	ClassG: "Uncontrolled",
}

// Letter returns "A".."G", or "" for unclassified airspace
func (c ICAOClass) Letter() string {
	if c >= ClassA && c <= ClassG {
		return string(rune('A' + int(c)))
	}
	return ""
}

// DisplayName returns e.g. "Class D", or "Unclassified"
func (c ICAOClass) DisplayName() string {
	if l := c.Letter(); l != "" {
		return "Class " + l
	}
	return "Unclassified"
}

// Tooltip returns the service level summary for the class
func (c ICAOClass) Tooltip() string {
	if t, ok := classTooltips[c]; ok {
		return t
	}
	return "No ICAO classification"
}

// Color returns the default ARGB colour associated with the class
func (c ICAOClass) Color() uint32 {
	if col, ok := classColors[c]; ok {
		return col
	}
	return 0xFF9E9E9E
}

// Classified reports whether the class is one of A..G
func (c ICAOClass) Classified() bool {
	return c >= ClassA && c <= ClassG
}

func (c ICAOClass) String() string {
	if l := c.Letter(); l != "" {
		return l
	}
	return "none"
}

// ParseICAOClass accepts an OpenAIP code, a letter, or "none"/"unclassified"
func ParseICAOClass(s string) (ICAOClass, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		c := ICAOClass(n)
		if c.Classified() || c == ClassNone {
			return c, nil
		}
		return ClassNone, fmt.Errorf("unknown ICAO class code %d", n)
	}
	upper := strings.ToUpper(strings.TrimPrefix(strings.ToLower(s), "class "))
	if len(upper) == 1 && upper[0] >= 'A' && upper[0] <= 'G' {
		return ICAOClass(upper[0] - 'A'), nil
	}
	switch upper {
	case "", "NONE", "UNCLASSIFIED", "SUA":
		return ClassNone, nil
	}
	return ClassNone, fmt.Errorf("unknown ICAO class %q", s)
}

// MarshalText encodes the class as its letter or "none"
func (c ICAOClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a code, letter or "none"
func (c *ICAOClass) UnmarshalText(b []byte) error {
	v, err := ParseICAOClass(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
