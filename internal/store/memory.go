package store

import (
	"context"
	"errors"
	"sync"

	"webhook-recorder/internal/calls"

	"github.com/google/uuid"
)

// Memory is an in-process Store useful for tests and local runs.
// It is not intended for production use.
//
// It counts opened and closed sessions so callers can assert the
// acquire/release contract.
type Memory struct {
	mu      sync.Mutex
	records []calls.Record

	opened int
	closed int

	// OpenErr, when set, makes Open fail.
	OpenErr error
	// InsertErr, when set, makes Insert fail.
	InsertErr error
	// FindErr, when set, makes FindAll and FindOne fail.
	FindErr error
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Open(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return nil, connectionFailed(m.OpenErr)
	}
	m.opened++
	return &memorySession{m: m}, nil
}

// Sessions returns how many sessions were opened and closed.
func (m *Memory) Sessions() (opened, closed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened, m.closed
}

// Records returns a copy of everything stored.
func (m *Memory) Records() []calls.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]calls.Record, len(m.records))
	copy(out, m.records)
	return out
}

type memorySession struct {
	m      *Memory
	closed bool
}

var errSessionClosed = errors.New("store: session closed")

func (s *memorySession) Insert(ctx context.Context, rec calls.Record) (string, error) {
	if s.closed {
		return "", errSessionClosed
	}
	if err := rec.Validate(); err != nil {
		return "", writeFailed(err)
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.InsertErr != nil {
		return "", writeFailed(s.m.InsertErr)
	}
	rec.ID = uuid.NewString()
	s.m.records = append(s.m.records, rec)
	return rec.ID, nil
}

func (s *memorySession) FindAll(ctx context.Context, service string) ([]calls.Record, error) {
	if s.closed {
		return nil, errSessionClosed
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.FindErr != nil {
		return nil, s.m.FindErr
	}
	out := make([]calls.Record, 0)
	for _, r := range s.m.records {
		if r.Service == service {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memorySession) FindOne(ctx context.Context, service, id string) (calls.Record, bool, error) {
	if s.closed {
		return calls.Record{}, false, errSessionClosed
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.FindErr != nil {
		return calls.Record{}, false, s.m.FindErr
	}
	for _, r := range s.m.records {
		if r.Service == service && r.ID == id {
			return r, true, nil
		}
	}
	return calls.Record{}, false, nil
}

func (s *memorySession) Close(ctx context.Context) error {
	if s.closed {
		return errSessionClosed
	}
	s.closed = true
	s.m.mu.Lock()
	s.m.closed++
	s.m.mu.Unlock()
	return nil
}
