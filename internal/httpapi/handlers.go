package httpapi

import (
	"context"
	"net/http"
	"time"

	"webhook-recorder/internal/calls"
	"webhook-recorder/internal/store"
	"webhook-recorder/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups the read-side HTTP handlers for dependency injection.
// Keep these thin: parse path params, run one store session, return JSON.
type Handlers struct {
	Store store.Store

	// Timeout bounds each store session. Zero means the request context only.
	Timeout time.Duration
}

func (h Handlers) sessionContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.Timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.Timeout)
}

// ListCalls returns every recorded call for :service as a JSON array.
func (h Handlers) ListCalls(c *gin.Context) {
	if h.Store == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "store not configured"})
		return
	}
	service := c.Param("service")

	ctx, cancel := h.sessionContext(c)
	defer cancel()

	done := store.Observe("find_all")
	var recs []calls.Record
	err := store.WithSession(ctx, h.Store, func(s store.Session) error {
		var ferr error
		recs, ferr = s.FindAll(ctx, service)
		return ferr
	})
	done()
	if err != nil {
		logger.FromGin(c).Error("list calls failed", "service", service, "err", err)
		AbortStoreError(c, err)
		return
	}
	if recs == nil {
		recs = []calls.Record{}
	}
	c.JSON(http.StatusOK, recs)
}

// GetCall returns one recorded call, or JSON null when (service, id) is unknown.
func (h Handlers) GetCall(c *gin.Context) {
	if h.Store == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "store not configured"})
		return
	}
	service, id := c.Param("service"), c.Param("id")

	ctx, cancel := h.sessionContext(c)
	defer cancel()

	done := store.Observe("find_one")
	var (
		rec   calls.Record
		found bool
	)
	err := store.WithSession(ctx, h.Store, func(s store.Session) error {
		var ferr error
		rec, found, ferr = s.FindOne(ctx, service, id)
		return ferr
	})
	done()
	if err != nil {
		logger.FromGin(c).Error("get call failed", "service", service, "id", id, "err", err)
		AbortStoreError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, rec)
}
