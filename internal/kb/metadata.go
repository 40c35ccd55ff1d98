package kb

import (
	"encoding/json"
	"fmt"
)

// UserMetadata is the nested form the knowledge box stores custom fields in.
type UserMetadata struct {
	Fields map[string]FieldValue `json:"fields"`
}

// FieldValue wraps a single user metadata value.
type FieldValue struct {
	Value string `json:"value"`
}

// FormatMetadata nests a flat map as {"fields": {k: {"value": v}}}. Empty
// values are skipped; nil is returned when nothing remains.
func FormatMetadata(flat map[string]string) *UserMetadata {
	fields := make(map[string]FieldValue, len(flat))
	for k, v := range flat {
		if v == "" {
			continue
		}
		fields[k] = FieldValue{Value: v}
	}
	if len(fields) == 0 {
		return nil
	}
	return &UserMetadata{Fields: fields}
}

// FlattenMetadata reverses FormatMetadata on a decoded usermetadata object.
// Entries without a "value" key are rendered as text.
func FlattenMetadata(raw any) map[string]string {
	out := map[string]string{}
	obj, ok := raw.(map[string]any)
	if !ok {
		return out
	}
	fields, ok := obj["fields"].(map[string]any)
	if !ok {
		return out
	}
	for k, v := range fields {
		if wrapped, ok := v.(map[string]any); ok {
			if value, ok := wrapped["value"]; ok {
				out[k] = stringify(value)
				continue
			}
		}
		out[k] = stringify(v)
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
