package billing

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shiftline/shiftline/internal/account"
	"github.com/shiftline/shiftline/internal/auth"
	"github.com/shiftline/shiftline/internal/logging"
	"github.com/shiftline/shiftline/internal/metrics"
)

// Handler provides HTTP endpoints for the billing subsystem.
type Handler struct {
	svc      *Service
	verifier *Verifier
	plans    PlanBook
}

// NewHandler creates a new billing handler.
func NewHandler(svc *Service, verifier *Verifier, plans PlanBook) *Handler {
	return &Handler{svc: svc, verifier: verifier, plans: plans}
}

// RegisterWebhookRoutes sets up the unauthenticated event intake. The
// signature check is the authentication for this route.
func (h *Handler) RegisterWebhookRoutes(r *gin.RouterGroup) {
	r.POST("/billing/events", h.HandleEvent)
}

// RegisterProtectedRoutes sets up billing routes that require API key auth.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/tenants/:id/billing", h.GetBilling)
	r.POST("/tenants/:id/billing/resume", h.Resume)
}

// billingView is the read endpoint's shape: plan label instead of raw price
// ID, renewal window, lifecycle timestamps.
type billingView struct {
	Status             Status     `json:"status"`
	Plan               string     `json:"plan"`
	CancelAtPeriodEnd  bool       `json:"cancelAtPeriodEnd"`
	CurrentPeriodStart *time.Time `json:"currentPeriodStart"`
	CurrentPeriodEnd   *time.Time `json:"currentPeriodEnd"`
	BillingStartedAt   *time.Time `json:"billingStartedAt"`
	BillingCanceledAt  *time.Time `json:"billingCanceledAt"`
}

func (h *Handler) view(rec *Record) billingView {
	return billingView{
		Status:             rec.Status,
		Plan:               h.plans.Label(rec.StripePriceID),
		CancelAtPeriodEnd:  rec.CancelAtPeriodEnd,
		CurrentPeriodStart: rec.CurrentPeriodStart,
		CurrentPeriodEnd:   rec.CurrentPeriodEnd,
		BillingStartedAt:   rec.BillingStartedAt,
		BillingCanceledAt:  rec.BillingCanceledAt,
	}
}

// HandleEvent handles POST /v1/billing/events.
//
// The raw body bytes feed the signature check before any decoding; a
// re-encoded body would never verify. Any failure answers 400 so Stripe's
// redelivery takes over; there is no retry queue on our side.
func (h *Handler) HandleEvent(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "failed to read request body"})
		return
	}

	event, err := h.verifier.Verify(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		metrics.BillingSignatureFailuresTotal.Inc()
		logging.L(c.Request.Context()).Warn("webhook signature rejected", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature", "message": "webhook signature verification failed"})
		return
	}

	if err := h.svc.HandleEvent(c.Request.Context(), event); err != nil {
		metrics.BillingEventsTotal.WithLabelValues(string(event.Type), "error").Inc()
		logging.L(c.Request.Context()).Error("webhook processing failed",
			"type", event.Type, "event_id", event.ID, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "processing_failed", "message": "event processing failed"})
		return
	}

	metrics.BillingEventsTotal.WithLabelValues(string(event.Type), "ok").Inc()
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// GetBilling handles GET /v1/tenants/:id/billing.
//
// When the record is linked but missing its renewal window, a best-effort
// backfill from Stripe runs first; its failure never fails the read.
func (h *Handler) GetBilling(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	rec, ok := h.loadOwnedRecord(c)
	if !ok {
		return
	}

	if NeedsBackfill(rec) {
		rec = h.svc.Backfill(c.Request.Context(), rec)
	}

	c.JSON(http.StatusOK, gin.H{"billing": h.view(rec)})
}

// Resume handles POST /v1/tenants/:id/billing/resume (admin only).
func (h *Handler) Resume(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	actor, _ := auth.GetAccount(c)
	if actor == nil || actor.Role != account.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "admin role required"})
		return
	}

	rec, ok := h.loadOwnedRecord(c)
	if !ok {
		return
	}

	updated, err := h.svc.Resume(c.Request.Context(), rec.TenantID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoSubscription):
			c.JSON(http.StatusConflict, gin.H{"error": "no_subscription", "message": "tenant has no subscription to resume"})
		case errors.Is(err, ErrOperationFailed):
			c.JSON(http.StatusBadGateway, gin.H{"error": "operation_failed", "message": "could not update the subscription; nothing was changed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to resume subscription"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"billing": h.view(updated)})
}

// loadOwnedRecord fetches the :id tenant's billing record and enforces that
// the caller's account belongs to that tenant.
func (h *Handler) loadOwnedRecord(c *gin.Context) (*Record, bool) {
	actor, ok := auth.GetAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return nil, false
	}

	tenantID := c.Param("id")
	if actor.TenantID != tenantID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "not your business"})
		return nil, false
	}

	rec, err := h.svc.Get(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "billing record not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load billing record"})
		return nil, false
	}

	return rec, true
}
