package forward

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"webhook-recorder/internal/audit"
	"webhook-recorder/internal/auth"
	"webhook-recorder/internal/httpapi"
	"webhook-recorder/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handler exposes the engine on POST /api/v1/webhook/:service/:id/forward.
type Handler struct {
	Engine *Engine
	// Audit, when set, records every forward attempt that got past body decoding.
	Audit *audit.Service
}

func (h Handler) Forward(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Engine == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "forward engine not configured"})
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": MsgInvalidBody})
		return
	}
	req, err := DecodeRequest(raw)
	if err != nil {
		abort(c, err)
		return
	}

	service, id := c.Param("service"), c.Param("id")
	res, err := h.Engine.Forward(c.Request.Context(), service, id, req)
	if err != nil {
		log.Warn("forward failed", "service", service, "id", id, "err", err)
		abort(c, err)
	} else {
		relay(c, res)
	}

	h.audit(c, service, id, req, err)
}

func relay(c *gin.Context, res *Result) {
	dst := c.Writer.Header()
	for name, values := range res.Header {
		dst[name] = append([]string(nil), values...)
	}
	// A HEAD reply declares a length it never sends.
	if n, err := strconv.Atoi(dst.Get("Content-Length")); err == nil && n != len(res.Body) {
		dst.Del("Content-Length")
	}
	c.Status(res.Status)
	if _, err := c.Writer.Write(res.Body); err != nil {
		logger.FromGin(c).Warn("forward relay write failed", "err", err)
	}
}

func (h Handler) audit(c *gin.Context, service, id string, req Request, err error) {
	if h.Audit == nil {
		return
	}
	ctx := c.Request.Context()
	operator, _ := auth.Operator(ctx)
	role, _ := auth.Role(ctx)

	aerr := h.Audit.LogForward(ctx, audit.Forward{
		Operator:  operator,
		Role:      role,
		IP:        c.ClientIP(),
		Service:   service,
		CallID:    id,
		Method:    req.Method,
		TargetURL: req.TargetURL,
		Status:    c.Writer.Status(),
		Outcome:   outcome(err),
	})
	if aerr != nil {
		logger.FromGin(c).Warn("forward audit failed", "service", service, "id", id, "err", aerr)
	}
}

func abort(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": verr.Message})
	case errors.Is(err, ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": MsgNotFound})
	case errors.Is(err, ErrThrottled):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": MsgThrottled})
	case errors.Is(err, ErrUpstream):
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": MsgUpstream, "error": upstreamCause(err)})
	default:
		httpapi.AbortStoreError(c, err)
	}
}

// upstreamCause strips the package prefix so callers see the transport error.
func upstreamCause(err error) string {
	msg := err.Error()
	if cause, ok := strings.CutPrefix(msg, ErrUpstream.Error()+": "); ok {
		return cause
	}
	return msg
}

func outcome(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &verr):
		return "client_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrThrottled):
		return "throttled"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	default:
		return "store_error"
	}
}
