// Package validation collects per-field validation messages. The error map
// serializes to {"field": ["message", ...]}, which is the 400 body the
// frontend renders next to form inputs.
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Errors maps a field name to its messages.
type Errors map[string][]string

// Add records a message for field.
func (e Errors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Addf records a formatted message for field.
func (e Errors) Addf(field, format string, args ...interface{}) {
	e.Add(field, fmt.Sprintf(format, args...))
}

// Has reports whether field has at least one message.
func (e Errors) Has(field string) bool {
	return len(e[field]) > 0
}

// Merge copies all messages from other into e, prefixing keys with prefix
// when it is non-empty ("user.email").
func (e Errors) Merge(prefix string, other Errors) {
	for field, msgs := range other {
		key := field
		if prefix != "" {
			key = prefix + "." + field
		}
		e[key] = append(e[key], msgs...)
	}
}

// Err returns e as an error, or nil when no messages were recorded.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(e[f], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// As extracts Errors from an error chain.
func As(err error) (Errors, bool) {
	var ve Errors
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Single returns an error carrying one message for field.
func Single(field, msg string) error {
	return Errors{field: {msg}}
}

// Required records "This field is required." when value is blank.
func (e Errors) Required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		e.Add(field, "This field is required.")
		return false
	}
	return true
}

// MaxLength records an error when value is longer than n characters.
func (e Errors) MaxLength(field, value string, n int) bool {
	if utf8.RuneCountInString(value) > n {
		e.Addf(field, "Ensure this field has no more than %d characters.", n)
		return false
	}
	return true
}

// Choice records an error when value is not a key of choices.
func (e Errors) Choice(field, value string, choices map[string]string) bool {
	if _, ok := choices[value]; !ok {
		e.Addf(field, "%q is not a valid choice.", value)
		return false
	}
	return true
}

// Between records an error when v is outside [min, max].
func (e Errors) Between(field string, v, min, max float64) bool {
	if v < min {
		e.Addf(field, "Ensure this value is greater than or equal to %s.", trimFloat(min))
		return false
	}
	if v > max {
		e.Addf(field, "Ensure this value is less than or equal to %s.", trimFloat(max))
		return false
	}
	return true
}

func trimFloat(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}
