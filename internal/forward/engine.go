package forward

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"webhook-recorder/internal/calls"
	"webhook-recorder/internal/metrics"
	"webhook-recorder/internal/store"
)

// Result is the upstream response, relayed to the caller as-is.
type Result struct {
	Status int
	Header http.Header
	Body   []byte
}

// Engine replays a recorded call to a caller-chosen target.
//
// A forward moves through Validate, Lookup, Dispatch and Relay. Each
// failure stops the run and is reported as one of the package errors, or
// as a store error for Lookup.
type Engine struct {
	store   store.Store
	client  *http.Client
	limiter Limiter

	storeTimeout time.Duration
	log          *slog.Logger
}

type Options struct {
	// Client issues the outbound request. Defaults to NewClient(30s).
	Client *http.Client
	// Limiter caps concurrent forwards per service. Nil disables the cap.
	Limiter Limiter
	// StoreTimeout bounds the lookup session.
	StoreTimeout time.Duration
}

func NewEngine(st store.Store, opts Options, log *slog.Logger) *Engine {
	if opts.Client == nil {
		opts.Client = NewClient(30 * time.Second)
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:        st,
		client:       opts.Client,
		limiter:      opts.Limiter,
		storeTimeout: opts.StoreTimeout,
		log:          log,
	}
}

// NewClient returns the outbound client: bounded by timeout and never
// following redirects, so a 3xx from the target reaches the caller unchanged.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Forward runs one replay of (service, id).
func (e *Engine) Forward(ctx context.Context, service, id string, req Request) (*Result, error) {
	res, err := e.forward(ctx, service, id, req)
	metrics.ForwardTotal.WithLabelValues(outcome(err)).Inc()
	return res, err
}

func (e *Engine) forward(ctx context.Context, service, id string, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rec, err := e.lookup(ctx, service, id)
	if err != nil {
		return nil, err
	}

	if e.limiter != nil {
		release, err := e.limiter.Acquire(ctx, service)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	return e.dispatch(ctx, rec, req)
}

// lookup holds the store session only for the read; it is released before dispatch.
func (e *Engine) lookup(ctx context.Context, service, id string) (calls.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	done := store.Observe("find_one")
	defer done()

	var (
		rec   calls.Record
		found bool
	)
	err := store.WithSession(ctx, e.store, func(s store.Session) error {
		var ferr error
		rec, found, ferr = s.FindOne(ctx, service, id)
		return ferr
	})
	if err != nil {
		return calls.Record{}, err
	}
	if !found {
		return calls.Record{}, ErrNotFound
	}
	return rec, nil
}

func (e *Engine) dispatch(ctx context.Context, rec calls.Record, req Request) (*Result, error) {
	payload, err := rec.Body.Payload()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	out, err := http.NewRequestWithContext(ctx, req.Method, req.TargetURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	out.Header = MergeHeaders(rec.Headers, req.Headers)

	e.log.Info("forwarding call", "service", rec.Service, "id", rec.ID, "method", out.Method, "target", out.URL.Redacted())

	start := time.Now()
	resp, err := e.client.Do(out)
	if err != nil {
		metrics.ForwardUpstreamDuration.Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	metrics.ForwardUpstreamDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}

	e.log.Info("forward response", "service", rec.Service, "id", rec.ID, "status", resp.StatusCode)
	return &Result{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: raw}, nil
}
