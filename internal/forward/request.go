package forward

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"webhook-recorder/internal/calls"
)

// Request is what the caller posts to the forward route.
type Request struct {
	TargetURL string `json:"targetUrl"`
	Method    string `json:"method"`
	// Headers override the stored headers; each value is a string or a list of strings.
	Headers calls.Fields `json:"headers,omitempty"`
}

// DecodeRequest parses a forward request body. An empty body decodes to
// an empty Request so Validate can name the first missing field.
func DecodeRequest(raw []byte) (Request, error) {
	var req Request
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, &ValidationError{Message: MsgInvalidBody}
	}
	return req, nil
}

// Validate checks required fields in order: targetUrl, then method.
func (r Request) Validate() error {
	if strings.TrimSpace(r.TargetURL) == "" {
		return &ValidationError{Message: MsgMissingTargetURL}
	}
	if strings.TrimSpace(r.Method) == "" {
		return &ValidationError{Message: MsgMissingMethod}
	}
	return nil
}

// MergeHeaders overlays override onto stored. Names compare case-insensitively
// and an override replaces every stored value under the same name.
func MergeHeaders(stored, override calls.Fields) http.Header {
	out := stored.Header()
	for name, values := range override {
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return out
}
