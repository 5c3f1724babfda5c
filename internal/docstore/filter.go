package docstore

import (
	"encoding/json"
	"strconv"
)

// Eq is an equality condition on a top-level field, compared as text.
type Eq struct {
	Field string
	Value string
}

// Filter is a conjunction of equality conditions. The empty Filter matches
// every document.
type Filter []Eq

func Where(field, value string) Filter {
	return Filter{{Field: field, Value: value}}
}

func (f Filter) And(field, value string) Filter {
	out := make(Filter, 0, len(f)+1)
	out = append(out, f...)
	return append(out, Eq{Field: field, Value: value})
}

// Match reports whether data satisfies every condition. Values are
// rendered the way postgres renders `data->>'field'`.
func (f Filter) Match(data json.RawMessage) bool {
	if len(f) == 0 {
		return true
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return false
	}
	for _, c := range f {
		if textValue(m[c.Field]) != c.Value {
			return false
		}
	}
	return true
}

func textValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
