package main

import (
	"net/http"
	"time"

	"webhook-recorder/internal/audit"
	"webhook-recorder/internal/auth"
	"webhook-recorder/internal/forward"
	"webhook-recorder/internal/httpapi"
	"webhook-recorder/internal/ingest"
	"webhook-recorder/internal/rbac"
	"webhook-recorder/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routeDeps struct {
	store    store.Store
	recorder *ingest.Recorder
	engine   *forward.Engine
	audit    *audit.Service

	// auth is nil when operator auth is disabled.
	auth *auth.Manager

	trustProxy bool
	timeout    time.Duration
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	webhooks := r.Group("/api/v1/webhook")

	// Inbound webhook calls (public; senders are not authenticated).
	in := ingest.Handler{Recorder: d.recorder, TrustProxy: d.trustProxy}
	webhooks.POST("/:service", in.Receive)

	// Operator routes.
	var read, fwd []gin.HandlerFunc
	if d.auth != nil {
		guard := []gin.HandlerFunc{auth.RequireAccessToken(d.auth), rbac.RequireServiceAccess()}
		read = chain(guard, rbac.RequireAnyRole(rbac.RoleViewer, rbac.RoleOperator))
		fwd = chain(guard, rbac.RequireAnyRole(rbac.RoleOperator))
	}

	q := httpapi.Handlers{Store: d.store, Timeout: d.timeout}
	webhooks.GET("/:service", chain(read, q.ListCalls)...)
	webhooks.GET("/:service/:id", chain(read, q.GetCall)...)

	f := forward.Handler{Engine: d.engine, Audit: d.audit}
	webhooks.POST("/:service/:id/forward", chain(fwd, f.Forward)...)
}

func chain(base []gin.HandlerFunc, h ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(base)+len(h))
	out = append(out, base...)
	return append(out, h...)
}
