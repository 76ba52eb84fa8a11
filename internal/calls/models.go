package calls

import (
	"encoding/json"
	"errors"
	"time"
)

// Record is one captured inbound webhook call.
//
// Invariants:
// - Service is the partition key; every read is addressed by (Service, ID).
// - ID is assigned by the store exactly once, at insert time.
// - Records are append-only. There is no update or delete path.
//
// Body is rendered as two JSON fields: "body" carries the captured value and
// "bodyKind" tells readers which variant it is.
type Record struct {
	Service     string    `json:"service"`
	ID          string    `json:"id,omitempty"`
	OriginalURL string    `json:"originalUrl"`
	Path        string    `json:"path"`
	BaseURL     string    `json:"baseUrl"`
	IP          string    `json:"ip"`
	IPs         []string  `json:"ips"`
	Headers     Fields    `json:"headers"`
	Query       Fields    `json:"query"`
	Body        Body      `json:"-"`
	MoreInfo    MoreInfo  `json:"moreInfo"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MoreInfo is a diagnostic snapshot of the transport at capture time.
type MoreInfo struct {
	Protocol   string   `json:"protocol" bson:"protocol"`
	Hostname   string   `json:"hostname" bson:"hostname"`
	Method     string   `json:"method" bson:"method"`
	Subdomains []string `json:"subdomains" bson:"subdomains"`
	XHR        bool     `json:"xhr" bson:"xhr"`
	Fresh      bool     `json:"fresh" bson:"fresh"`
	Stale      bool     `json:"stale" bson:"stale"`
	Secure     bool     `json:"secure" bson:"secure"`
	Socket     Socket   `json:"socket" bson:"socket"`
	Version    string   `json:"version" bson:"version"`
	Route      string   `json:"route,omitempty" bson:"route,omitempty"`
}

type Socket struct {
	LocalAddress  string `json:"localAddress" bson:"localAddress"`
	LocalPort     int    `json:"localPort" bson:"localPort"`
	RemoteAddress string `json:"remoteAddress" bson:"remoteAddress"`
	RemoteFamily  string `json:"remoteFamily" bson:"remoteFamily"`
	RemotePort    int    `json:"remotePort" bson:"remotePort"`
}

type recordAlias Record

type recordJSON struct {
	recordAlias
	Body     json.RawMessage `json:"body"`
	BodyKind BodyKind        `json:"bodyKind"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	body := r.Body.Value
	if r.Body.Kind == BodyEmpty || len(body) == 0 {
		body = json.RawMessage("null")
	}
	kind := r.Body.Kind
	if kind == "" {
		kind = BodyEmpty
	}
	return json.Marshal(recordJSON{recordAlias: recordAlias(r), Body: body, BodyKind: kind})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Record(in.recordAlias)
	body, err := bodyFromStored(in.BodyKind, in.Body)
	if err != nil {
		return err
	}
	r.Body = body
	return nil
}

var ErrInvalidRecord = errors.New("calls: invalid record")

// Validate checks the fields every store relies on.
func (r Record) Validate() error {
	if r.Service == "" {
		return ErrInvalidRecord
	}
	if r.CreatedAt.IsZero() {
		return ErrInvalidRecord
	}
	return nil
}
