package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"call-pipeline/internal/auth"
	"call-pipeline/internal/callrequest"
	"call-pipeline/internal/extract"
	"call-pipeline/internal/provider"
	"call-pipeline/internal/rbac"
	"call-pipeline/internal/reconcile"
	"call-pipeline/internal/reporting"
	"call-pipeline/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Reconciler is the manual entry point into reconciliation.
type Reconciler interface {
	Reconcile(ctx context.Context, businessID, callID string) (reconcile.Result, error)
}

// Auditor records manual reconciliations.
type Auditor interface {
	LogManualReconcile(ctx context.Context, businessID, actorUserID, actorRole, ip, callID, outcome string) error
}

// Handlers groups the operations API for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Store      callrequest.Store
	Reconciler Reconciler
	Fetcher    provider.CallFetcher
	Reporting  *reporting.Service
	Audit      Auditor

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Reconciliation ---

type reconcileRequest struct {
	CallID     string `json:"callId"`
	BusinessID string `json:"businessId"`
}

type callDetails struct {
	Summary     string         `json:"summary"`
	Transcript  string         `json:"transcript"`
	BookingInfo map[string]any `json:"bookingInfo"`

	Status       callrequest.Status `json:"status"`
	CallDuration float64            `json:"callDuration,omitempty"`
	EndedReason  string             `json:"endedReason,omitempty"`
	RecordingURL string             `json:"recordingUrl,omitempty"`
	Attempts     int                `json:"attempts,omitempty"`
}

// ReconcileCall runs reconciliation synchronously for one call. It is the
// manual retry for records flagged needsManualProcessing, and a no-op
// returning the stored data once a call is processed.
// RBAC: owner, staff or super_admin.
func (h Handlers) ReconcileCall(c *gin.Context) {
	if h.Reconciler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reconciler not configured"})
		return
	}
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.CallID == "" || req.BusinessID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Call ID and Business ID are required"})
		return
	}
	businessID, ok := scope(c, req.BusinessID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	log := logger.ForCall(logger.FromGin(c), businessID, req.CallID)

	res, err := h.Reconciler.Reconcile(ctx, businessID, req.CallID)
	h.auditManual(c, businessID, req.CallID, outcome(res, err))
	switch {
	case err == nil:
	case errors.Is(err, callrequest.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Call request not found"})
		return
	case errors.Is(err, reconcile.ErrInProgress):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Call details are already being processed"})
		return
	case errors.Is(err, reconcile.ErrStopped):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Server is shutting down, retry later"})
		return
	case errors.Is(err, reconcile.ErrRetriesExhausted):
		log.Warn("manual reconcile exhausted", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "Failed to process call details", "details": err.Error()})
		return
	default:
		log.Error("manual reconcile failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to process call details", "details": err.Error()})
		return
	}

	msg := "Call details processed successfully"
	if res.AlreadyProcessed {
		msg = "Call details already processed"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg, "data": detailsFromResult(res)})
}

func detailsFromResult(res reconcile.Result) callDetails {
	return callDetails{
		Summary:      res.Summary,
		Transcript:   res.Transcript,
		BookingInfo:  res.BookingInfo,
		Status:       res.Record.Status,
		CallDuration: res.Record.CallDuration,
		EndedReason:  res.Record.EndedReason,
		RecordingURL: res.Record.RecordingURL,
		Attempts:     res.Attempts,
	}
}

func outcome(res reconcile.Result, err error) string {
	switch {
	case err != nil:
		return "error: " + err.Error()
	case res.AlreadyProcessed:
		return "already_processed"
	default:
		return "processed"
	}
}

func (h Handlers) auditManual(c *gin.Context, businessID, callID, result string) {
	if h.Audit == nil {
		return
	}
	ctx := context.WithoutCancel(c.Request.Context())
	id, _ := auth.IdentityFrom(ctx)
	if err := h.Audit.LogManualReconcile(ctx, businessID, id.UserID, id.Role, c.ClientIP(), callID, result); err != nil {
		logger.FromGin(c).Warn("audit manual reconcile failed", "err", err)
	}
}

// --- Reads ---

func (h Handlers) GetCall(c *gin.Context) {
	if h.Store == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store not configured"})
		return
	}
	businessID, ok := scope(c, c.Query("businessId"))
	if !ok {
		return
	}
	rec, err := h.Store.FindByCallID(c.Request.Context(), businessID, c.Param("call_id"))
	if errors.Is(err, callrequest.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Call request not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("call lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// CallDetailsPreview fetches the provider record once and runs extraction
// without persisting anything.
func (h Handlers) CallDetailsPreview(c *gin.Context) {
	if h.Store == nil || h.Fetcher == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "provider not configured"})
		return
	}
	businessID, ok := scope(c, c.Query("businessId"))
	if !ok {
		return
	}
	callID := c.Param("call_id")
	ctx := c.Request.Context()

	if _, err := h.Store.FindByCallID(ctx, businessID, callID); err != nil {
		if errors.Is(err, callrequest.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Call request not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}

	rec, err := h.Fetcher.FetchCall(ctx, callID)
	var apiErr *provider.APIError
	switch {
	case err == nil:
	case errors.Is(err, provider.ErrNotReady):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Call details not available yet"})
		return
	case errors.Is(err, provider.ErrNotConfigured):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "provider not configured"})
		return
	case errors.As(err, &apiErr):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch call details", "details": apiErr.Message})
		return
	default:
		logger.ForCall(logger.FromGin(c), businessID, callID).Warn("call details preview failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch call details", "details": err.Error()})
		return
	}

	res := extract.Extract(rec)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"callId":               callID,
			"status":               rec.Status,
			"endedReason":          rec.EndedReason,
			"duration":             rec.Duration,
			"recordingUrl":         rec.RecordingURL,
			"summary":              res.Summary,
			"transcript":           res.Transcript,
			"bookingInfo":          res.BookingInfo,
			"bookingAuthoritative": res.BookingAuthoritative,
		},
	})
}

func (h Handlers) ManualQueue(c *gin.Context) {
	if h.Reporting == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	businessID, ok := scope(c, c.Query("businessId"))
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.Reporting.ManualQueue(c.Request.Context(), businessID, limit)
	if err != nil {
		logger.FromGin(c).Error("manual queue failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "manual queue lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows, "count": len(rows)})
}

// CallsSummary aggregates the business's call requests over ?from&to
// (RFC 3339). The default window is the last 30 days.
func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reporting == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	businessID, ok := scope(c, c.Query("businessId"))
	if !ok {
		return
	}

	to := h.now().UTC()
	from := to.AddDate(0, 0, -30)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
	}

	out, err := h.Reporting.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		BusinessID: businessID,
		Range:      reporting.TimeRange{From: from, To: to},
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("calls summary failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// scope resolves the business a request acts on and writes the error
// response when the caller may not access it.
func scope(c *gin.Context, requested string) (string, bool) {
	businessID, err := rbac.ScopeBusiness(c.Request.Context(), requested)
	if errors.Is(err, rbac.ErrForbidden) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return "", false
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "business_id required"})
		return "", false
	}
	return businessID, true
}

// Convenience middleware bundle.
func RequireBusinessAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireBusiness(), rbac.RequireAnyRole(roles...)}
}
