package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// rawValue is an adapter-supplied value reduced to text or a list of text.
type rawValue struct {
	text  string
	items []string
	list  bool
}

// scalarString converts JSON-ish scalars to their text form.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

// coerceValue accepts a scalar or a flat list of scalars.
func coerceValue(v any) (rawValue, error) {
	if s, ok := scalarString(v); ok {
		return rawValue{text: s}, nil
	}
	switch t := v.(type) {
	case []string:
		return rawValue{items: t, list: true}, nil
	case []any:
		items := make([]string, 0, len(t))
		for i, e := range t {
			s, ok := scalarString(e)
			if !ok {
				return rawValue{}, fmt.Errorf("list element %d has unsupported type %T", i, e)
			}
			items = append(items, s)
		}
		return rawValue{items: items, list: true}, nil
	}
	return rawValue{}, fmt.Errorf("unsupported value type %T", v)
}

// coerceRows accepts the inspection list shapes adapters produce.
func coerceRows(v any) ([]map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []map[string]any:
		return t, nil
	case []any:
		rows := make([]map[string]any, 0, len(t))
		for i, e := range t {
			row, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, expected an object", i, e)
			}
			rows = append(rows, row)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("unsupported value type %T, expected a list of objects", v)
}
