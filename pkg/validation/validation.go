package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrValidationFailed is matched by every *Error returned from Verdict.Err.
var ErrValidationFailed = errors.New("validation failed")

// Record holds raw field values exactly as they were entered.
type Record map[string]string

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge copies fields into the record, overwriting existing values.
func (r Record) Merge(fields map[string]string) {
	for k, v := range fields {
		r[k] = v
	}
}

// Value returns the trimmed value of field and whether it is present.
// Whitespace-only values count as absent.
func (r Record) Value(field string) (string, bool) {
	v, ok := r[field]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Error codes reported in FieldError.Code.
const (
	CodeMissing    = "missing"
	CodeOutOfRange = "out_of_range"
	CodeNotANumber = "not_a_number"
)

// FieldError describes a single violated rule.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Status is the outcome of a validation run.
type Status int

const (
	Unvalidated Status = iota
	Valid
	Invalid
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unvalidated"
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "valid":
		*s = Valid
	case "invalid":
		*s = Invalid
	case "unvalidated", "":
		*s = Unvalidated
	default:
		return fmt.Errorf("unknown validation status %q", text)
	}
	return nil
}

// Verdict is the result of validating a record. The zero value is
// Unvalidated.
type Verdict struct {
	Status Status       `json:"status"`
	Errors []FieldError `json:"errors,omitempty"`
}

// Valid reports whether the verdict permits submission.
func (v Verdict) Valid() bool {
	return v.Status == Valid
}

// Err returns nil for a valid verdict and an *Error otherwise.
func (v Verdict) Err() error {
	switch v.Status {
	case Valid:
		return nil
	case Invalid:
		return &Error{Fields: v.Errors}
	default:
		return fmt.Errorf("%w: record not validated", ErrValidationFailed)
	}
}

// Pass returns a valid verdict.
func Pass() Verdict {
	return Verdict{Status: Valid}
}

// Fail returns an invalid verdict carrying errs.
func Fail(errs ...FieldError) Verdict {
	return Verdict{Status: Invalid, Errors: errs}
}

// Error carries every field error of an invalid verdict.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed, strings.Join(parts, "; "))
}

func (e *Error) Unwrap() error {
	return ErrValidationFailed
}

// Validate evaluates record against every rule of rs. Missing, malformed and
// out-of-range fields are all reported together, in rule declaration order.
// Fields in record that the ruleset does not declare are ignored.
func Validate(record Record, rs Ruleset) Verdict {
	var errs []FieldError
	for _, rule := range rs.Rules {
		if fe, ok := check(record, rule); !ok {
			errs = append(errs, fe)
		}
	}
	if len(errs) > 0 {
		return Fail(errs...)
	}
	return Pass()
}

func check(record Record, rule Rule) (FieldError, bool) {
	value, present := record.Value(rule.Field)
	if !present {
		if !rule.Required {
			return FieldError{}, true
		}
		return FieldError{
			Field:   rule.Field,
			Code:    CodeMissing,
			Message: label(rule) + " is required",
		}, false
	}

	if rule.Kind != Numeric {
		return FieldError{}, true
	}

	n, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return FieldError{
			Field:   rule.Field,
			Code:    CodeNotANumber,
			Message: label(rule) + " must be a number",
			Value:   value,
		}, false
	}

	if n < rule.Min || n > rule.Max {
		return FieldError{
			Field:   rule.Field,
			Code:    CodeOutOfRange,
			Message: fmt.Sprintf("%s must be in range %s", label(rule), rule.Range()),
			Value:   value,
		}, false
	}

	return FieldError{}, true
}

func label(rule Rule) string {
	if rule.Label != "" {
		return rule.Label
	}
	return rule.Field
}
