package main

import (
	"database/sql"

	"call-pipeline/internal/audit"
	"call-pipeline/internal/auth"
	"call-pipeline/internal/callrequest"
	"call-pipeline/internal/httpapi"
	"call-pipeline/internal/lifecycle"
	"call-pipeline/internal/provider"
	"call-pipeline/internal/rbac"
	"call-pipeline/internal/reconcile"
	"call-pipeline/internal/reporting"
	"call-pipeline/internal/webhook"

	"github.com/gin-gonic/gin"
)

type deps struct {
	auth       *auth.Manager
	db         *sql.DB
	calls      callrequest.Store
	lifecycle  *lifecycle.Service
	reconciler *reconcile.Reconciler
	fetcher    provider.CallFetcher
	reporting  *reporting.Service
	audit      *audit.Service
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d deps) {
	// public
	r.GET("/healthz", httpapi.Health(d.db))

	// Provider webhooks (public). The provider only needs a 200 once the
	// envelope is valid; everything else is logged.
	{
		h := webhook.Handler{Dispatcher: d.lifecycle}
		r.POST("/webhooks/vapi", h.HandleVapi)
	}

	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth))
	{
		h := httpapi.Handlers{
			Store:      d.calls,
			Reconciler: d.reconciler,
			Fetcher:    d.fetcher,
			Reporting:  d.reporting,
			Audit:      d.audit,
		}

		v1.GET("/me", func(c *gin.Context) {
			id, _ := auth.IdentityFrom(c.Request.Context())
			c.JSON(200, gin.H{"user_id": id.UserID, "business_id": id.BusinessID, "role": id.Role})
		})

		calls := v1.Group("/calls")
		calls.Use(httpapi.RequireBusinessAndAnyRole(rbac.RoleOwner, rbac.RoleStaff)...)
		{
			calls.POST("/reconcile", h.ReconcileCall)
			calls.GET("/summary", h.CallsSummary)
			calls.GET("/manual-queue", h.ManualQueue)
			calls.GET("/:call_id", h.GetCall)
			calls.GET("/:call_id/details", h.CallDetailsPreview)
		}
	}
}
