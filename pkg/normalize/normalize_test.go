package normalize

import (
	"errors"
	"math"
	"testing"
)

func TestDate(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "20080910", want: "2008-09-10"},
		{raw: "2008-09-10", want: "2008-09-10"},
		{raw: "200809", want: "2008-09"},
		{raw: "2008-09", want: "2008-09"},
		{raw: "2008", want: "2008"},
		{raw: "", want: ""},
		{raw: "   ", want: ""},
		{raw: "2008-09-UN", want: "2008-09"},
		{raw: "2008-UNK-15", want: "2008"},
		{raw: "10SEP2008", want: "2008-09-10"},
		{raw: "1-sep-2008", want: "2008-09-01"},
		{raw: "UN-SEP-2008", want: "2008-09"},
		{raw: "UNK-UNK-2008", want: "2008"},
		{raw: "20081310", wantErr: true},
		{raw: "20080230", wantErr: true},
		{raw: "next tuesday", wantErr: true},
		{raw: "10XYZ2008", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Date(tt.raw)
			if tt.wantErr {
				var nerr *NormalizationError
				if !errors.As(err, &nerr) {
					t.Fatalf("expected NormalizationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Date(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDateTime(t *testing.T) {
	got, err := DateTime("2008-08-26", "9:30")
	if err != nil || got != "2008-08-26T09:30" {
		t.Errorf("expected 2008-08-26T09:30, got %q (%v)", got, err)
	}

	got, err = DateTime("2008-08", "09:30")
	if err != nil || got != "2008-08" {
		t.Errorf("time must not be attached to a partial date, got %q", got)
	}

	got, err = DateTime("2008-08-26", "25:00")
	if err == nil || got != "2008-08-26" {
		t.Errorf("expected error and date only, got %q (%v)", got, err)
	}
}

func TestValidISO8601(t *testing.T) {
	valid := []string{"2008", "2008-09", "2008-09-10", "2008-09-10T09:30", "2008-09-10T09:30:15"}
	for _, s := range valid {
		if !ValidISO8601(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	invalid := []string{"", "20080910", "2008-13", "2008-02-30", "2008-09-10T24:00", "2008/09/10"}
	for _, s := range invalid {
		if ValidISO8601(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestCompareDates(t *testing.T) {
	if c, ok := CompareDates("2008-09-01", "2008-09-10"); !ok || c >= 0 {
		t.Errorf("expected start before end, got %d %v", c, ok)
	}
	if c, ok := CompareDates("2008-09", "2008-09-10"); !ok || c != 0 {
		t.Errorf("expected partial dates to compare equal at shared precision, got %d", c)
	}
	if _, ok := CompareDates("", "2008-09-10"); ok {
		t.Error("expected empty date to be incomparable")
	}
}

func TestStudyDay(t *testing.T) {
	tests := []struct {
		dtc, ref string
		want     int
		ok       bool
	}{
		{dtc: "2008-08-26", ref: "2008-08-26", want: 1, ok: true},
		{dtc: "2008-08-27T10:00", ref: "2008-08-26", want: 2, ok: true},
		{dtc: "2008-08-25", ref: "2008-08-26", want: -1, ok: true},
		{dtc: "2008-08", ref: "2008-08-26", ok: false},
		{dtc: "2008-08-26", ref: "", ok: false},
	}
	for _, tt := range tests {
		got, ok := StudyDay(tt.dtc, tt.ref)
		if ok != tt.ok || got != tt.want {
			t.Errorf("StudyDay(%q, %q) = %d, %v; want %d, %v", tt.dtc, tt.ref, got, ok, tt.want, tt.ok)
		}
	}
}

func TestConvertUnit(t *testing.T) {
	tests := []struct {
		name      string
		q         Quantity
		value     float64
		unit      string
		want      float64
		wantUnit  string
		converted bool
		flagged   bool
	}{
		{name: "fahrenheit", q: Temperature, value: 98.6, unit: "F", want: 37.0, wantUnit: "C", converted: true},
		{name: "degree sign", q: Temperature, value: 98.6, unit: "°F", want: 37.0, wantUnit: "C", converted: true},
		{name: "pounds", q: Weight, value: 152, unit: "lbs", want: 68.9, wantUnit: "kg", converted: true},
		{name: "inches", q: Height, value: 72.8, unit: "in", want: 184.9, wantUnit: "cm", converted: true},
		{name: "already standard", q: Weight, value: 70, unit: "kg", want: 70, wantUnit: "kg"},
		{name: "pressure", q: Pressure, value: 120, unit: "mmHg", want: 120, wantUnit: "mmHg"},
		{name: "unknown unit", q: Weight, value: 10, unit: "stone", want: 10, wantUnit: "stone", flagged: true},
		{name: "unknown quantity", q: Quantity("volume"), value: 1, unit: "L", want: 1, wantUnit: "L", flagged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertUnit(tt.q, tt.value, tt.unit)
			if math.Abs(got.Value-tt.want) > 0.05 {
				t.Errorf("expected %.2f, got %.2f", tt.want, got.Value)
			}
			if got.Unit != tt.wantUnit {
				t.Errorf("expected unit %q, got %q", tt.wantUnit, got.Unit)
			}
			if got.Converted != tt.converted || got.Flagged != tt.flagged {
				t.Errorf("expected converted=%v flagged=%v, got %+v", tt.converted, tt.flagged, got)
			}
		})
	}
}

func TestStandardUnit(t *testing.T) {
	if got := StandardUnit(Temperature); got != "C" {
		t.Errorf("expected C, got %q", got)
	}
	if got := StandardUnit(Quantity("volume")); got != "" {
		t.Errorf("expected empty unit, got %q", got)
	}
}

func TestCanonical(t *testing.T) {
	if got := Canonical("  mild ", true); got != "MILD" {
		t.Errorf("expected MILD, got %q", got)
	}
	if got := Canonical("  Mild headache ", false); got != "Mild headache" {
		t.Errorf("expected free text preserved, got %q", got)
	}
}
