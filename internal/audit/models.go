package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Operator and IP capture are best-effort; do not block forwarding on audit failures.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`

	// Operator is the token subject, or "anonymous" when operator auth is off.
	Operator string `json:"operator"`
	Role     string `json:"role,omitempty"`

	// IPAddress is the resolved client IP of the operator request.
	IPAddress string `json:"ip_address,omitempty"`

	// Target identifiers.
	Service   string `json:"service"`
	CallID    string `json:"call_id"`
	Method    string `json:"method,omitempty"`
	TargetURL string `json:"target_url,omitempty"`

	// Status is the HTTP status returned to the operator.
	Status int `json:"status"`
	// Outcome is the forward terminal state (success, not_found, upstream_error, ...).
	Outcome string `json:"outcome"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeForward EventType = "call_forwarded"
)
