package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webhook-recorder/internal/calls"
	"webhook-recorder/internal/metrics"
)

// Store opens sessions against a document-oriented backend.
//
// One session is opened per logical operation and released when that
// operation ends. Sessions are never shared between requests.
type Store interface {
	Open(ctx context.Context) (Session, error)
}

// Session is a single unit of work against the backend.
//
// Records are append-only: there is no update or delete.
type Session interface {
	// Insert appends rec and returns the id the backend assigned.
	Insert(ctx context.Context, rec calls.Record) (string, error)
	// FindAll returns every record for service in insertion order.
	FindAll(ctx context.Context, service string) ([]calls.Record, error)
	// FindOne looks up (service, id). A missing record is reported as
	// found == false with a nil error.
	FindOne(ctx context.Context, service, id string) (rec calls.Record, found bool, err error)
	// Close releases the session. It is called exactly once per Open.
	Close(ctx context.Context) error
}

var (
	ErrConnectionFailed = errors.New("store: connection failed")
	ErrWriteFailed      = errors.New("store: write failed")
)

// connectionFailed wraps a backend error so callers can match ErrConnectionFailed.
func connectionFailed(err error) error {
	return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
}

func writeFailed(err error) error {
	return fmt.Errorf("%w: %v", ErrWriteFailed, err)
}

// WithSession opens a session, runs fn and always closes the session,
// whichever way fn returns (including panics).
// - If Open fails, fn is not called and the error wraps ErrConnectionFailed.
// - A Close error is returned only when fn succeeded.
func WithSession(ctx context.Context, st Store, fn func(Session) error) (err error) {
	sess, err := st.Open(ctx)
	if err != nil {
		if !errors.Is(err, ErrConnectionFailed) {
			err = connectionFailed(err)
		}
		return err
	}

	defer func() {
		// Close with a context that outlives a canceled request.
		cerr := sess.Close(context.WithoutCancel(ctx))
		if err == nil && cerr != nil {
			err = fmt.Errorf("store: close session: %w", cerr)
		}
	}()

	return fn(sess)
}

// Observe starts timing a store operation; call the returned func when it ends.
func Observe(operation string) func() {
	start := time.Now()
	return func() {
		metrics.StoreDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// withRawBody rebuilds rec's body from the captured bytes when the backend
// kept them.
func withRawBody(rec calls.Record, raw []byte) (calls.Record, error) {
	if len(raw) == 0 {
		return rec, nil
	}
	body, err := calls.BodyFromRaw(rec.Body.Kind, raw)
	if err != nil {
		return calls.Record{}, fmt.Errorf("body: %w", err)
	}
	rec.Body = body
	return rec, nil
}
