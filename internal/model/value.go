package model

import (
	"encoding/json"
	"strings"
)

// Value is a normalized field value. It holds either a single string or an
// ordered list of strings. The zero Value is absent.
type Value struct {
	text  string
	items []string
	list  bool
}

// Text returns a scalar Value.
func Text(s string) Value {
	return Value{text: s}
}

// List returns a list Value. A nil or empty slice yields an absent list.
func List(items []string) Value {
	if len(items) == 0 {
		return Value{list: true}
	}
	out := make([]string, len(items))
	copy(out, items)
	return Value{items: out, list: true}
}

// IsList reports whether v holds a list.
func (v Value) IsList() bool { return v.list }

// IsAbsent reports whether v carries no data.
func (v Value) IsAbsent() bool {
	if v.list {
		return len(v.items) == 0
	}
	return v.text == ""
}

// String returns the scalar value, or the list items joined with ", ".
func (v Value) String() string {
	if v.list {
		return strings.Join(v.items, ", ")
	}
	return v.text
}

// Items returns a copy of the list items. A scalar value yields a one-item
// list, or nil when absent.
func (v Value) Items() []string {
	if !v.list {
		if v.text == "" {
			return nil
		}
		return []string{v.text}
	}
	if len(v.items) == 0 {
		return nil
	}
	out := make([]string, len(v.items))
	copy(out, v.items)
	return out
}

// Interface returns the value as a string or []string for serialization.
// Absent lists serialize as an empty slice, never null.
func (v Value) Interface() any {
	if v.list {
		if v.items == nil {
			return []string{}
		}
		return v.Items()
	}
	return v.text
}

// MarshalJSON encodes scalars as JSON strings and lists as arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON accepts either a JSON string or an array of strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*v = List(items)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = Text(s)
	return nil
}
