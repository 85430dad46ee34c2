package normalize

import (
	"math"
	"strings"
)

// Quantity names the physical dimension of a measured variable; it selects the
// conversion table used for its units.
type Quantity string

const (
	Temperature Quantity = "temperature"
	Weight      Quantity = "weight"
	Height      Quantity = "height"
	Pressure    Quantity = "pressure"
	HeartRate   Quantity = "heart_rate"
	RespRate    Quantity = "respiratory_rate"
)

// Conversion is the outcome of a unit conversion. Flagged marks a unit that the
// table does not recognize; the value is then passed through unchanged.
type Conversion struct {
	Value     float64
	Unit      string
	Converted bool
	Flagged   bool
}

type unitRule struct {
	target string
	apply  func(float64) float64
}

func identity(v float64) float64 { return v }

var unitTable = map[Quantity]map[string]unitRule{
	Temperature: {
		"F": {target: "C", apply: func(v float64) float64 { return (v - 32) * 5 / 9 }},
		"C": {target: "C", apply: identity},
	},
	Weight: {
		"LB": {target: "kg", apply: func(v float64) float64 { return v * 0.453592 }},
		"KG": {target: "kg", apply: identity},
	},
	Height: {
		"IN": {target: "cm", apply: func(v float64) float64 { return v * 2.54 }},
		"CM": {target: "cm", apply: identity},
	},
	Pressure: {
		"MMHG": {target: "mmHg", apply: identity},
	},
	HeartRate: {
		"BEATS/MIN": {target: "beats/min", apply: identity},
	},
	RespRate: {
		"BREATHS/MIN": {target: "breaths/min", apply: identity},
	},
}

var unitAliases = map[string]string{
	"DEGF":       "F",
	"FAHRENHEIT": "F",
	"DEGC":       "C",
	"CELSIUS":    "C",
	"LBS":        "LB",
	"POUNDS":     "LB",
	"KILOGRAMS":  "KG",
	"INCHES":     "IN",
	"INCH":       "IN",
	"CENTIMETER": "CM",
	"BPM":        "BEATS/MIN",
	"/MIN":       "BEATS/MIN",
}

// UnitKey canonicalizes a unit spelling for table lookup ("°F", "deg F" -> "F").
func UnitKey(unit string) string {
	u := strings.ToUpper(strings.TrimSpace(unit))
	u = strings.ReplaceAll(u, "°", "")
	u = strings.ReplaceAll(u, " ", "")
	if alias, ok := unitAliases[u]; ok {
		return alias
	}
	return u
}

// ConvertUnit converts value from unit to the standard unit of its quantity.
func ConvertUnit(q Quantity, value float64, unit string) Conversion {
	rules, ok := unitTable[q]
	if !ok {
		return Conversion{Value: value, Unit: unit, Flagged: true}
	}
	rule, ok := rules[UnitKey(unit)]
	if !ok {
		return Conversion{Value: value, Unit: unit, Flagged: true}
	}
	converted := rule.apply(value)
	return Conversion{
		Value:     Round(converted, 1),
		Unit:      rule.target,
		Converted: UnitKey(unit) != UnitKey(rule.target),
	}
}

// StandardUnit returns the standard unit for a quantity, or "" when it is unknown.
func StandardUnit(q Quantity) string {
	for _, rule := range unitTable[q] {
		return rule.target
	}
	return ""
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
