package ingest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"webhook-recorder/internal/calls"
	"webhook-recorder/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Enqueuer accepts captured calls for background persistence.
type Enqueuer interface {
	Enqueue(ctx context.Context, rec calls.Record) bool
}

// Handler acknowledges inbound webhook calls and hands them off for storage.
//
// The sender always gets 200 with an empty body. Nothing that happens
// after the snapshot is taken can change that response.
type Handler struct {
	Recorder Enqueuer

	// TrustProxy makes capture honor X-Forwarded-{For,Proto,Host}.
	TrustProxy bool

	Now func() time.Time
}

func (h Handler) Receive(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}

	service := c.Param("service")
	req, err := calls.ReadRequest(c.Request, calls.RequestOptions{
		ClientIP:   c.ClientIP(),
		Route:      c.FullPath(),
		TrustProxy: h.TrustProxy,
	})
	now := h.Now()

	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	if err != nil {
		log.Warn("webhook call not captured", "service", service, "err", err)
		return
	}
	if h.Recorder == nil {
		log.Error("webhook recorder not configured", "service", service)
		return
	}

	// Detach from the request so the job outlives it, but keep the request logger.
	ctx := logger.With(context.WithoutCancel(c.Request.Context()), log)
	h.Recorder.Enqueue(ctx, calls.Capture(service, req, now))
}

func loggerFrom(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx == nil {
		return fallback
	}
	if l := logger.From(ctx); l != slog.Default() {
		return l
	}
	return fallback
}
