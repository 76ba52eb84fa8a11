package calls

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Fields is a multi-valued name/value mapping used for headers and query strings.
// A name seen once is rendered as a string, a repeated name as an ordered array.
type Fields map[string][]string

// HeaderFields copies h with lower-cased names, keeping every value in order.
func HeaderFields(h http.Header) Fields {
	out := make(Fields, len(h))
	for name, values := range h {
		key := strings.ToLower(name)
		out[key] = append(out[key], values...)
	}
	return out
}

// QueryFields copies q as received.
func QueryFields(q url.Values) Fields {
	out := make(Fields, len(q))
	for name, values := range q {
		out[name] = append([]string(nil), values...)
	}
	return out
}

// Header converts f into an http.Header. Names are canonicalized, so names
// that only differ by case collapse into one entry.
func (f Fields) Header() http.Header {
	h := make(http.Header, len(f))
	for name, values := range f {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	return h
}

// Plain renders f the way it is serialized: string for single values, []string otherwise.
func (f Fields) Plain() map[string]any {
	out := make(map[string]any, len(f))
	for name, values := range f {
		if len(values) == 1 {
			out[name] = values[0]
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	return out
}

func (f Fields) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(f.Plain())
}

func (f *Fields) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Fields, len(raw))
	for name, value := range raw {
		var one string
		if err := json.Unmarshal(value, &one); err == nil {
			out[name] = []string{one}
			continue
		}
		var many []string
		if err := json.Unmarshal(value, &many); err != nil {
			return fmt.Errorf("field %q: expected string or array of strings", name)
		}
		out[name] = many
	}
	*f = out
	return nil
}

// FieldsFromPlain is the inverse of Plain for values decoded by a driver,
// which may hand back []any or []string for arrays.
func FieldsFromPlain(in map[string]any) (Fields, error) {
	out := make(Fields, len(in))
	for name, value := range in {
		switch v := value.(type) {
		case string:
			out[name] = []string{v}
		case []string:
			out[name] = append([]string(nil), v...)
		case []any:
			values := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("field %q: unexpected element %T", name, item)
				}
				values = append(values, s)
			}
			out[name] = values
		default:
			return nil, fmt.Errorf("field %q: unexpected value %T", name, value)
		}
	}
	return out, nil
}
