package calls

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"
)

// BodyKind tags which variant a captured payload was parsed into.
type BodyKind string

const (
	BodyEmpty BodyKind = "empty"
	BodyJSON  BodyKind = "json"
	BodyText  BodyKind = "text"
	BodyForm  BodyKind = "form"
)

// Body is the captured payload. Value always holds the JSON encoding of the
// payload as it is exposed to readers (a JSON document, a JSON string, or a
// JSON object of form fields); it is nil for BodyEmpty.
//
// Raw is the payload exactly as it arrived. When set, replay sends it
// byte for byte and Value is only the readable view.
type Body struct {
	Kind  BodyKind
	Value json.RawMessage
	Raw   []byte
}

func EmptyBody() Body { return Body{Kind: BodyEmpty} }

// JSONBody wraps an already-valid JSON document.
func JSONBody(raw []byte) Body {
	return Body{
		Kind:  BodyJSON,
		Value: append(json.RawMessage(nil), bytes.TrimSpace(raw)...),
		Raw:   bytes.Clone(raw),
	}
}

func TextBody(s string) Body {
	v, _ := json.Marshal(s)
	return Body{Kind: BodyText, Value: v, Raw: []byte(s)}
}

func FormBody(v url.Values) Body {
	enc, _ := json.Marshal(QueryFields(v))
	return Body{Kind: BodyForm, Value: enc}
}

// ParseBody picks the variant from the declared content type.
//
//   - application/json and */*+json: JSON document (malformed JSON is kept as text)
//   - text/*, application/xml: raw text
//   - application/x-www-form-urlencoded: form fields
//   - anything else, or no payload: empty
func ParseBody(contentType string, raw []byte) Body {
	if len(bytes.TrimSpace(raw)) == 0 {
		return EmptyBody()
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		if json.Valid(raw) {
			return JSONBody(raw)
		}
		return TextBody(string(raw))
	case strings.HasPrefix(mediaType, "text/"), mediaType == "application/xml":
		return TextBody(string(raw))
	case mediaType == "application/x-www-form-urlencoded":
		v, err := url.ParseQuery(string(raw))
		if err != nil {
			return TextBody(string(raw))
		}
		b := FormBody(v)
		b.Raw = bytes.Clone(raw)
		return b
	default:
		return EmptyBody()
	}
}

// IsEmpty reports whether there is no payload to replay.
func (b Body) IsEmpty() bool {
	return b.Kind == "" || b.Kind == BodyEmpty || len(b.Value) == 0
}

// Payload returns the wire bytes to send when the call is replayed.
func (b Body) Payload() ([]byte, error) {
	if b.IsEmpty() {
		return nil, nil
	}
	if len(b.Raw) > 0 {
		return bytes.Clone(b.Raw), nil
	}
	switch b.Kind {
	case BodyJSON:
		return []byte(b.Value), nil
	case BodyText:
		var s string
		if err := json.Unmarshal(b.Value, &s); err != nil {
			return nil, fmt.Errorf("text body: %w", err)
		}
		return []byte(s), nil
	case BodyForm:
		var f Fields
		if err := json.Unmarshal(b.Value, &f); err != nil {
			return nil, fmt.Errorf("form body: %w", err)
		}
		return []byte(url.Values(f).Encode()), nil
	default:
		return nil, fmt.Errorf("unknown body kind %q", b.Kind)
	}
}

// Decoded returns the payload as generic Go values (what a document store
// persists). Numbers stay json.Number so large integers survive.
func (b Body) Decoded() (any, error) {
	if b.IsEmpty() {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b.Value))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// bodyFromStored rebuilds a Body from its serialized value and tag.
func bodyFromStored(kind BodyKind, value json.RawMessage) (Body, error) {
	trimmed := bytes.TrimSpace(value)
	switch kind {
	case "", BodyEmpty:
		return EmptyBody(), nil
	case BodyJSON, BodyText, BodyForm:
		if len(trimmed) == 0 {
			return Body{}, fmt.Errorf("body kind %q without value", kind)
		}
		return Body{Kind: kind, Value: append(json.RawMessage(nil), trimmed...)}, nil
	default:
		return Body{}, fmt.Errorf("unknown body kind %q", kind)
	}
}

// BodyFromValue rebuilds a Body from a decoded driver value and its tag.
func BodyFromValue(kind BodyKind, value any) (Body, error) {
	if kind == "" || kind == BodyEmpty {
		return EmptyBody(), nil
	}
	enc, err := json.Marshal(value)
	if err != nil {
		return Body{}, err
	}
	return bodyFromStored(kind, enc)
}

// BodyFromRaw rebuilds a Body of the given kind from the bytes it was
// captured from. Backends that keep those bytes use it on read.
func BodyFromRaw(kind BodyKind, raw []byte) (Body, error) {
	switch kind {
	case "", BodyEmpty:
		return EmptyBody(), nil
	case BodyJSON:
		if !json.Valid(raw) {
			return Body{}, errors.New("json body: invalid document")
		}
		return JSONBody(raw), nil
	case BodyText:
		return TextBody(string(raw)), nil
	case BodyForm:
		v, err := url.ParseQuery(string(raw))
		if err != nil {
			return Body{}, fmt.Errorf("form body: %w", err)
		}
		b := FormBody(v)
		b.Raw = bytes.Clone(raw)
		return b, nil
	default:
		return Body{}, fmt.Errorf("unknown body kind %q", kind)
	}
}
