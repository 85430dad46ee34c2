package record

import (
	"strconv"
	"strings"
)

// Kind declares how a source column is interpreted at ingestion.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindDate   Kind = "date"
	KindTime   Kind = "time"
	KindCode   Kind = "code"
	KindFlag   Kind = "flag"
)

// Value is a typed source field. Exactly one of Str/Num is meaningful depending on Kind;
// Null marks a missing value and Invalid marks a value that could not be read as its Kind.
type Value struct {
	Kind    Kind
	Raw     string
	Str     string
	Num     float64
	Null    bool
	Invalid bool
}

// Parse reads raw as the declared kind. Empty and whitespace-only input is Null.
func Parse(kind Kind, raw string) Value {
	v := Value{Kind: kind, Raw: raw}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "null") || trimmed == "." {
		v.Null = true
		return v
	}
	v.Str = trimmed

	switch kind {
	case KindNumber:
		n, err := strconv.ParseFloat(strings.ReplaceAll(trimmed, ",", ""), 64)
		if err != nil {
			v.Invalid = true
			return v
		}
		v.Num = n
	case KindFlag:
		switch strings.ToUpper(trimmed) {
		case "Y", "YES", "TRUE", "1":
			v.Str = "Y"
		case "N", "NO", "FALSE", "0":
			v.Str = "N"
		}
	}
	return v
}

// String returns the canonical text form of the value, or "" for Null.
func (v Value) String() string {
	if v.Null {
		return ""
	}
	if v.Kind == KindNumber && !v.Invalid {
		return FormatNumber(v.Num)
	}
	return v.Str
}

// Float returns the numeric value when the kind is number and it parsed.
func (v Value) Float() (float64, bool) {
	if v.Null || v.Invalid || v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

// FormatNumber renders n without trailing zeros ("120", "37.5").
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
