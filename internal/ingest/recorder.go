package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"webhook-recorder/internal/calls"
	"webhook-recorder/internal/metrics"
	"webhook-recorder/internal/store"
)

// Options tunes the background writer.
type Options struct {
	Workers   int
	QueueSize int
	// Timeout bounds one store session per captured call.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	return o
}

type job struct {
	rec calls.Record
	log *slog.Logger
}

// Recorder persists captured calls off the request path.
//
// Delivery is at most once: a full queue drops the call, and a failed
// insert is logged and counted, never retried.
type Recorder struct {
	st   store.Store
	opts Options
	log  *slog.Logger

	jobs chan job
	wg   sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
}

func NewRecorder(st store.Store, opts Options, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()
	return &Recorder{
		st:   st,
		opts: opts,
		log:  log,
		jobs: make(chan job, opts.QueueSize),
	}
}

// Start launches the workers. Calling it more than once is a no-op.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	for i := 0; i < r.opts.Workers; i++ {
		r.wg.Add(1)
		go r.run()
	}
}

// Enqueue hands rec to the workers without blocking. It reports false when
// the call was dropped because the queue is full or the recorder is closed.
func (r *Recorder) Enqueue(ctx context.Context, rec calls.Record) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l := loggerFrom(ctx, r.log)
	if r.closed {
		metrics.IngestCallsTotal.WithLabelValues("dropped").Inc()
		l.Warn("webhook call dropped: recorder closed", "service", rec.Service)
		return false
	}

	select {
	case r.jobs <- job{rec: rec, log: l}:
		metrics.IngestCallsTotal.WithLabelValues("queued").Inc()
		metrics.IngestQueueDepth.Inc()
		return true
	default:
		metrics.IngestCallsTotal.WithLabelValues("dropped").Inc()
		l.Warn("webhook call dropped: queue full", "service", rec.Service, "queue_size", r.opts.QueueSize)
		return false
	}
}

// Close stops accepting calls and waits until everything queued so far
// has been written (or has failed).
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.jobs)
	started := r.started
	r.mu.Unlock()

	if !started {
		// Nobody is reading; drain here so queued calls are not lost.
		for j := range r.jobs {
			metrics.IngestQueueDepth.Dec()
			r.persist(j)
		}
		return
	}
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for j := range r.jobs {
		metrics.IngestQueueDepth.Dec()
		r.persist(j)
	}
}

func (r *Recorder) persist(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.Timeout)
	defer cancel()

	done := store.Observe("insert")
	var id string
	err := store.WithSession(ctx, r.st, func(s store.Session) error {
		var ierr error
		id, ierr = s.Insert(ctx, j.rec)
		return ierr
	})
	done()

	if err != nil {
		metrics.IngestWriteErrors.Inc()
		j.log.Error("webhook call not recorded", "service", j.rec.Service, "err", err)
		return
	}
	j.log.Debug("webhook call recorded", "service", j.rec.Service, "id", id)
}
