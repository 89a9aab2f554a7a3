package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// FieldIssue is one offending key in a SchemaError.
type FieldIssue struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// SchemaError is returned when an adapter supplies a key the dictionary does
// not recognize for its state, or a value of unusable shape. It signals an
// adapter bug and the record is not emitted.
type SchemaError struct {
	State  string       `json:"source_state"`
	URL    string       `json:"provider_url"`
	Issues []FieldIssue `json:"issues"`
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", is.Key, is.Reason))
	}
	return fmt.Sprintf("schema: %s %s: %s", e.State, e.URL, strings.Join(parts, "; "))
}

// Keys returns the offending keys in report order.
func (e *SchemaError) Keys() []string {
	keys := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		keys = append(keys, is.Key)
	}
	return keys
}

// ValidationError is returned when a built record fails a required-field or
// format check.
type ValidationError struct {
	State  string `json:"source_state"`
	URL    string `json:"provider_url"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s: %s: %s", e.State, e.URL, e.Field, e.Reason)
}

// Warning records a value that could not be fully normalized. The raw value
// is kept on the record; the warning only reports it.
type Warning struct {
	Field  string `json:"field"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s (%q)", w.Field, w.Reason, w.Raw)
}

// IsSchemaError reports whether err is or wraps a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
