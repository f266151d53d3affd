// Package validation evaluates raw soil-sample records against declarative
// field rulesets. Evaluation is pure: no I/O, no shared state, and every
// violated rule is reported in a single verdict.
package validation

import "fmt"

// Kind distinguishes numeric fields (presence + inclusive range) from text
// fields (presence only).
type Kind int

const (
	Numeric Kind = iota
	Text
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Text:
		return "text"
	default:
		return "unknown"
	}
}

// Rule declares the constraints for a single record field.
// Min and Max are inclusive and only apply to Numeric fields.
type Rule struct {
	Field    string  `json:"field"`
	Label    string  `json:"label"`
	Kind     Kind    `json:"kind"`
	Required bool    `json:"required"`
	Min      float64 `json:"min,omitempty"`
	Max      float64 `json:"max,omitempty"`
	Unit     string  `json:"unit,omitempty"`
}

// Range formats the inclusive bounds of a numeric rule for display.
func (r Rule) Range() string {
	if r.Unit == "" {
		return fmt.Sprintf("%g - %g", r.Min, r.Max)
	}
	return fmt.Sprintf("%g - %g %s", r.Min, r.Max, r.Unit)
}

// Ruleset is an ordered set of field rules. Declaration order determines the
// order in which field errors are reported.
type Ruleset struct {
	Name  string `json:"name"`
	Rules []Rule `json:"rules"`
}

// Fields returns the declared field names in order.
func (rs Ruleset) Fields() []string {
	fields := make([]string, len(rs.Rules))
	for i, r := range rs.Rules {
		fields[i] = r.Field
	}
	return fields
}

// Rule returns the rule for field, if declared.
func (rs Ruleset) Rule(field string) (Rule, bool) {
	for _, r := range rs.Rules {
		if r.Field == field {
			return r, true
		}
	}
	return Rule{}, false
}

// Extend returns a new ruleset with the rules of other appended.
func (rs Ruleset) Extend(name string, other Ruleset) Ruleset {
	rules := make([]Rule, 0, len(rs.Rules)+len(other.Rules))
	rules = append(rules, rs.Rules...)
	rules = append(rules, other.Rules...)
	return Ruleset{Name: name, Rules: rules}
}

// SoilParameters is the canonical manual-entry parameter set.
var SoilParameters = Ruleset{
	Name: "soil-parameters",
	Rules: []Rule{
		{Field: "ph", Label: "pH", Kind: Numeric, Required: true, Min: 3.5, Max: 9.0},
		{Field: "nitrogen", Label: "Nitrogen (N)", Kind: Numeric, Required: true, Min: 0, Max: 1400, Unit: "mg/kg"},
		{Field: "phosphorus", Label: "Phosphorus (P)", Kind: Numeric, Required: true, Min: 0, Max: 200, Unit: "mg/kg"},
		{Field: "potassium", Label: "Potassium (K)", Kind: Numeric, Required: true, Min: 0, Max: 1200, Unit: "mg/kg"},
		{Field: "moisture", Label: "Moisture", Kind: Numeric, Required: true, Min: 0, Max: 100, Unit: "%"},
		{Field: "organic_carbon", Label: "Organic Carbon", Kind: Numeric, Required: true, Min: 0, Max: 2.5, Unit: "%"},
		{Field: "ec", Label: "Electrical Conductivity", Kind: Numeric, Required: true, Min: 0, Max: 4, Unit: "dS/m"},
		{Field: "texture", Label: "Soil Texture", Kind: Text, Required: true},
	},
}

// SampleMetadata describes the sample itself. None of these fields block
// submission.
var SampleMetadata = Ruleset{
	Name: "sample-metadata",
	Rules: []Rule{
		{Field: "name", Label: "Sample Name", Kind: Text},
		{Field: "location", Label: "Location", Kind: Text},
		{Field: "date", Label: "Date", Kind: Text},
		{Field: "description", Label: "Description", Kind: Text},
	},
}

// ManualEntry is the ruleset applied to the manual capture form.
var ManualEntry = SoilParameters.Extend("manual-entry", SampleMetadata)

// CsvColumns declares the companion columns of a CSV bulk upload.
// File contents are forwarded untouched; only column presence is checked.
var CsvColumns = Ruleset{
	Name: "csv-columns",
	Rules: []Rule{
		{Field: "N", Label: "N", Kind: Text, Required: true},
		{Field: "P", Label: "P", Kind: Text, Required: true},
		{Field: "K", Label: "K", Kind: Text, Required: true},
		{Field: "pH", Label: "PH", Kind: Text, Required: true},
		{Field: "moisture", Label: "MOISTURE", Kind: Text, Required: true},
		{Field: "temperature", Label: "TEMPERATURE", Kind: Text, Required: true},
		{Field: "humidity", Label: "HUMIDITY", Kind: Text, Required: true},
		{Field: "rainfall", Label: "RAINFALL", Kind: Text, Required: true},
	},
}

// Lookup resolves a ruleset by name.
func Lookup(name string) (Ruleset, bool) {
	switch name {
	case "manual", ManualEntry.Name:
		return ManualEntry, true
	case SoilParameters.Name:
		return SoilParameters, true
	case "csv", CsvColumns.Name:
		return CsvColumns, true
	default:
		return Ruleset{}, false
	}
}
