// Package webhook exposes the provider's webhook endpoint.
package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"call-pipeline/internal/events"
	"call-pipeline/internal/lifecycle"
	"call-pipeline/pkg/logger"
)

// Dispatcher applies one decoded event.
type Dispatcher interface {
	Handle(ctx context.Context, ev events.Event) (lifecycle.Outcome, error)
}

// Handler validates the delivery and hands it to the Dispatcher.
//
// No business logic here. Once the envelope is valid the provider always
// gets a 200: internal failures are logged, never surfaced, so the
// provider does not start retrying.
type Handler struct {
	Dispatcher Dispatcher

	// MaxBodyBytes caps the request body. Zero means 1 MiB.
	MaxBodyBytes int64
}

type webhookData struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
	Status string `json:"status,omitempty"`
}

type ackResponse struct {
	Success     bool        `json:"success"`
	Message     string      `json:"message"`
	WebhookData webhookData `json:"webhookData"`
}

func (h Handler) HandleVapi(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Dispatcher == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook dispatcher not configured"})
		return
	}

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, limit))
	if err != nil {
		log.Error("webhook body read failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "details": err.Error()})
		return
	}
	log.Debug("webhook received", "bytes", len(body))

	ev, err := events.Parse(body)
	switch {
	case errors.Is(err, events.ErrMalformed):
		log.Warn("webhook payload is not json")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	case errors.Is(err, events.ErrMissingCallID):
		log.Warn("webhook payload rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Missing call ID in webhook payload"})
		return
	case err != nil:
		log.Error("webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "details": err.Error()})
		return
	}

	call := ev.Call()
	log.Info("webhook received", "type", ev.Type(), "call_id", call.ID)
	h.dispatch(c.Request.Context(), ev)

	c.JSON(http.StatusOK, ackResponse{
		Success: true,
		Message: "Webhook processed successfully",
		WebhookData: webhookData{
			Type:   ev.Type(),
			CallID: call.ID,
			Status: call.Status,
		},
	})
}

func (h Handler) dispatch(ctx context.Context, ev events.Event) {
	log := logger.ForCall(logger.From(ctx), ev.Call().BusinessID, ev.Call().ID)
	defer func() {
		if p := recover(); p != nil {
			log.Error("webhook dispatch panicked", "type", ev.Type(), "panic", p)
		}
	}()
	if _, err := h.Dispatcher.Handle(ctx, ev); err != nil {
		log.Error("webhook dispatch failed", "type", ev.Type(), "err", err)
	}
}
