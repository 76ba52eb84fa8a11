package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps audit events in process. Tests use it to assert what a
// forward left behind.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// ForCall returns the events recorded against one call, oldest first.
func (r *MemoryRepo) ForCall(service, callID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Service == service && e.CallID == callID {
			out = append(out, e)
		}
	}
	return out
}

func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
