package tenant

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shiftline/shiftline/internal/account"
	"github.com/shiftline/shiftline/internal/auth"
	"github.com/shiftline/shiftline/internal/idgen"
	"github.com/shiftline/shiftline/internal/validation"
)

// BillingProvisioner seeds the default billing record for a new tenant.
// Implemented by billing.Service; kept as an interface so this package does
// not depend on billing internals.
type BillingProvisioner interface {
	EnsureRecord(ctx context.Context, tenantID, accountID string) error
}

// Handler provides HTTP endpoints for tenant management.
type Handler struct {
	store    Store
	accounts account.Store
	billing  BillingProvisioner
}

// NewHandler creates a new tenant handler.
func NewHandler(store Store, accounts account.Store, billing BillingProvisioner) *Handler {
	return &Handler{store: store, accounts: accounts, billing: billing}
}

// RegisterProtectedRoutes sets up tenant routes that require API key auth.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/tenants", h.CreateTenant)
	r.GET("/tenants/:id", h.GetTenant)
	r.PATCH("/tenants/:id", h.UpdateTenant)
}

// CreateTenant handles POST /v1/tenants. The calling account becomes the
// tenant's owner and is promoted to admin.
func (h *Handler) CreateTenant(c *gin.Context) {
	actor, ok := auth.GetAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return
	}
	if actor.TenantID != "" {
		c.JSON(http.StatusConflict, gin.H{"error": "tenant_exists", "message": "account already owns a business"})
		return
	}

	var req struct {
		Name     string `json:"name" binding:"required"`
		Slug     string `json:"slug" binding:"required"`
		Timezone string `json:"timezone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "name and slug required"})
		return
	}

	// The slug is validated as sent, not canonicalized: clients wanting a
	// derived slug can use validation.Slugify themselves.
	req.Slug = strings.TrimSpace(req.Slug)
	if !validation.IsValidSlug(req.Slug) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_slug",
			"message": "slug must be lowercase letters, digits, and single dashes",
		})
		return
	}

	now := time.Now()
	t := &Tenant{
		ID:        idgen.WithPrefix("ten_"),
		AccountID: actor.ID,
		Name:      validation.SanitizeString(req.Name, 200),
		Slug:      req.Slug,
		Timezone:  validation.SanitizeString(req.Timezone, 64),
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.Create(c.Request.Context(), t); err != nil {
		if err == ErrSlugTaken {
			c.JSON(http.StatusConflict, gin.H{"error": "slug_taken", "message": "slug already in use"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create tenant"})
		return
	}

	// Seed the default (inactive) billing record so reads and webhook
	// resolution have a row to converge on.
	if h.billing != nil {
		if err := h.billing.EnsureRecord(c.Request.Context(), t.ID, actor.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to provision billing"})
			return
		}
	}

	// Bind the account to its new tenant and move onboarding forward.
	actor.TenantID = t.ID
	actor.Role = account.RoleAdmin
	actor.UpdatedAt = now
	if err := h.accounts.Update(c.Request.Context(), actor); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to bind account"})
		return
	}
	_ = h.accounts.AdvanceOnboarding(c.Request.Context(), actor.ID, account.StepBusinessDetails)

	c.JSON(http.StatusCreated, gin.H{"tenant": t})
}

// GetTenant handles GET /v1/tenants/:id
func (h *Handler) GetTenant(c *gin.Context) {
	t, ok := h.loadOwnedTenant(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// UpdateTenant handles PATCH /v1/tenants/:id (admin only).
func (h *Handler) UpdateTenant(c *gin.Context) {
	actor, _ := auth.GetAccount(c)
	if actor == nil || actor.Role != account.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "admin role required"})
		return
	}

	t, ok := h.loadOwnedTenant(c)
	if !ok {
		return
	}

	var req struct {
		Name     *string `json:"name"`
		Timezone *string `json:"timezone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid body"})
		return
	}

	if req.Name != nil {
		t.Name = validation.SanitizeString(*req.Name, 200)
	}
	if req.Timezone != nil {
		t.Timezone = validation.SanitizeString(*req.Timezone, 64)
	}
	t.UpdatedAt = time.Now()

	if err := h.store.Update(c.Request.Context(), t); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to update tenant"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// loadOwnedTenant fetches the :id tenant and enforces that the caller's
// account belongs to it. Writes the error response itself on failure.
func (h *Handler) loadOwnedTenant(c *gin.Context) (*Tenant, bool) {
	actor, ok := auth.GetAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
		return nil, false
	}

	id := c.Param("id")
	t, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if err == ErrTenantNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return nil, false
	}

	if actor.TenantID != t.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "not your business"})
		return nil, false
	}

	return t, true
}
