package airspace

import (
	"errors"
	"math"
	"testing"
)

func TestLimitString(t *testing.T) {
	tests := []struct {
		name  string
		limit Limit
		want  string
	}{
		{"ground", Limit{Value: 0, Unit: UnitFeet, Datum: DatumGND}, "GND"},
		{"ground in meters", Limit{Value: 0, Unit: UnitMeters, Datum: DatumGND}, "GND"},
		{"flight level", Limit{Value: 95, Unit: UnitFlightLevel, Datum: DatumSTD}, "FL95"},
		{"flight level zero", Limit{Value: 0, Unit: UnitFlightLevel, Datum: DatumSTD}, "FL0"},
		{"feet amsl", Limit{Value: 4500, Unit: UnitFeet, Datum: DatumMSL}, "4500 ft AMSL"},
		{"meters agl", Limit{Value: 300, Unit: UnitMeters, Datum: DatumGND}, "300 m AGL"},
		{"fractional", Limit{Value: 1500.5, Unit: UnitFeet, Datum: DatumMSL}, "1500.5 ft AMSL"},
		{"zero msl", Limit{Value: 0, Unit: UnitFeet, Datum: DatumMSL}, "0 ft AMSL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.limit.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLimitFeet(t *testing.T) {
	tests := []struct {
		limit Limit
		want  float64
	}{
		{Limit{Value: 1000, Unit: UnitFeet}, 1000},
		{Limit{Value: 100, Unit: UnitMeters}, 328.084},
		{Limit{Value: 65, Unit: UnitFlightLevel}, 6500},
	}

	for _, tt := range tests {
		if got := tt.limit.Feet(); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%v.Feet() = %v, want %v", tt.limit, got, tt.want)
		}
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		want    Limit
		wantErr bool
	}{
		{
			name: "openaip codes",
			raw:  map[string]any{"value": float64(2500), "unit": float64(1), "referenceDatum": float64(1)},
			want: Limit{Value: 2500, Unit: UnitFeet, Datum: DatumMSL},
		},
		{
			name: "ground by string",
			raw:  map[string]any{"value": float64(0), "unit": "ft", "reference": "GND"},
			want: Limit{Value: 0, Unit: UnitFeet, Datum: DatumGND},
		},
		{
			name: "flight level forces std",
			raw:  map[string]any{"value": float64(95), "unit": "FL", "referenceDatum": float64(1)},
			want: Limit{Value: 95, Unit: UnitFlightLevel, Datum: DatumSTD},
		},
		{
			name: "flight level code",
			raw:  map[string]any{"value": float64(100), "unit": float64(6)},
			want: Limit{Value: 100, Unit: UnitFlightLevel, Datum: DatumSTD},
		},
		{
			name: "numeric string value",
			raw:  map[string]any{"value": "300", "unit": "m", "referenceDatum": "AGL"},
			want: Limit{Value: 300, Unit: UnitMeters, Datum: DatumGND},
		},
		{name: "nil", raw: nil, wantErr: true},
		{name: "missing value", raw: map[string]any{"unit": float64(1)}, wantErr: true},
		{name: "negative", raw: map[string]any{"value": float64(-10)}, wantErr: true},
		{name: "non numeric", raw: map[string]any{"value": "high"}, wantErr: true},
		{name: "bad unit", raw: map[string]any{"value": float64(10), "unit": "parsec"}, wantErr: true},
		{name: "bad datum", raw: map[string]any{"value": float64(10), "referenceDatum": float64(9)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLimit(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseLimit() = %v, want error", got)
				}
				if !errors.Is(err, ErrInvalidLimit) {
					t.Errorf("error %v does not wrap ErrInvalidLimit", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLimit() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLimit() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseTypeAndClass(t *testing.T) {
	if got, err := ParseType("4"); err != nil || got != TypeCTR {
		t.Errorf("ParseType(\"4\") = %v, %v, want CTR", got, err)
	}
	if got, err := ParseType("tma"); err != nil || got != TypeTMA {
		t.Errorf("ParseType(\"tma\") = %v, %v, want TMA", got, err)
	}
	if _, err := ParseType("99"); err == nil {
		t.Error("ParseType(\"99\") should fail")
	}

	classes := map[string]ICAOClass{
		"0":            ClassA,
		"3":            ClassD,
		"8":            ClassNone,
		"c":            ClassC,
		"Class E":      ClassE,
		"unclassified": ClassNone,
		"":             ClassNone,
	}
	for in, want := range classes {
		got, err := ParseICAOClass(in)
		if err != nil || got != want {
			t.Errorf("ParseICAOClass(%q) = %v, %v, want %v", in, got, err, want)
		}
	}
	if _, err := ParseICAOClass("7"); err == nil {
		t.Error("ParseICAOClass(\"7\") should fail")
	}

	if ClassD.DisplayName() != "Class D" {
		t.Errorf("DisplayName() = %q", ClassD.DisplayName())
	}
	if ClassNone.DisplayName() != "Unclassified" {
		t.Errorf("DisplayName() = %q", ClassNone.DisplayName())
	}
}

func TestNewLimit(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		unit    Unit
		datum   Datum
		want    Limit
		wantErr bool
	}{
		{name: "feet msl", value: 2500, unit: UnitFeet, datum: DatumMSL, want: Limit{Value: 2500, Unit: UnitFeet, Datum: DatumMSL}},
		{name: "flight level forces std", value: 95, unit: UnitFlightLevel, datum: DatumMSL, want: Limit{Value: 95, Unit: UnitFlightLevel, Datum: DatumSTD}},
		{name: "unknown unit", value: 10, unit: Unit(3), datum: DatumMSL, wantErr: true},
		{name: "unknown datum", value: 10, unit: UnitFeet, datum: Datum(9), wantErr: true},
		{name: "negative", value: -1, unit: UnitFeet, datum: DatumMSL, wantErr: true},
		{name: "nan", value: math.NaN(), unit: UnitFeet, datum: DatumMSL, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewLimit(tt.value, tt.unit, tt.datum)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidLimit) {
					t.Errorf("NewLimit() error = %v, want ErrInvalidLimit", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLimit() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("NewLimit() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
