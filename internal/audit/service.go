package audit

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records who replayed which call, where, and how it ended.
//
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" || e.Service == "" || e.Operator == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// Forward describes one forward attempt.
type Forward struct {
	Operator  string
	Role      string
	IP        string
	Service   string
	CallID    string
	Method    string
	TargetURL string
	Status    int
	Outcome   string
}

// LogForward records a forward attempt. Credentials in the target URL are redacted.
func (s *Service) LogForward(ctx context.Context, f Forward) error {
	if f.Operator == "" {
		f.Operator = "anonymous"
	}
	return s.Append(ctx, Event{
		Type:      EventTypeForward,
		Operator:  f.Operator,
		Role:      f.Role,
		IPAddress: f.IP,
		Service:   f.Service,
		CallID:    f.CallID,
		Method:    f.Method,
		TargetURL: redact(f.TargetURL),
		Status:    f.Status,
		Outcome:   f.Outcome,
	})
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
