package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shiftline/shiftline/internal/account"
	"github.com/shiftline/shiftline/internal/idgen"
	"github.com/shiftline/shiftline/internal/validation"
)

// Handler provides signup and key management endpoints.
type Handler struct {
	mgr      *Manager
	accounts account.Store
}

// NewHandler creates a new auth handler.
func NewHandler(mgr *Manager, accounts account.Store) *Handler {
	return &Handler{mgr: mgr, accounts: accounts}
}

// RegisterPublicRoutes sets up unauthenticated routes.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.POST("/signup", h.Signup)
}

// RegisterProtectedRoutes sets up key management routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/keys", h.CreateKey)
	r.GET("/keys", h.ListKeys)
	r.DELETE("/keys/:keyId", h.RevokeKey)
}

// Signup handles POST /v1/signup: creates an account and issues its first key.
func (h *Handler) Signup(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "email required"})
		return
	}

	email := strings.ToLower(validation.SanitizeString(req.Email, 254))
	if !validation.IsValidEmail(email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email", "message": "not a valid email address"})
		return
	}

	now := time.Now()
	acct := &account.Account{
		ID:             idgen.WithPrefix("acc_"),
		Email:          email,
		Role:           account.RoleMember,
		OnboardingStep: account.StepCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.accounts.Create(c.Request.Context(), acct); err != nil {
		if err == account.ErrEmailTaken {
			c.JSON(http.StatusConflict, gin.H{"error": "email_taken", "message": "email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create account"})
		return
	}

	rawKey, keyInfo, err := h.mgr.GenerateKey(c.Request.Context(), acct.ID, "Signup key")
	if err != nil {
		c.JSON(http.StatusCreated, gin.H{
			"account": acct,
			"warning": "Account created but key generation failed. Retry key creation.",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"account": acct,
		"apiKey":  rawKey,
		"keyId":   keyInfo.ID,
		"warning": "Store this API key securely. It will not be shown again.",
	})
}

// CreateKey handles POST /v1/keys for the authenticated account.
func (h *Handler) CreateKey(c *gin.Context) {
	acct, ok := GetAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "API key required"})
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Name == "" {
		req.Name = "API key"
	}

	rawKey, keyInfo, err := h.mgr.GenerateKey(c.Request.Context(), acct.ID, validation.SanitizeString(req.Name, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create key"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"apiKey":  rawKey,
		"key":     keyInfo,
		"warning": "Store this API key securely. It will not be shown again.",
	})
}

// ListKeys handles GET /v1/keys.
func (h *Handler) ListKeys(c *gin.Context) {
	acct, ok := GetAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "API key required"})
		return
	}

	keys, err := h.mgr.Store().GetByAccount(c.Request.Context(), acct.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list keys"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// RevokeKey handles DELETE /v1/keys/:keyId.
func (h *Handler) RevokeKey(c *gin.Context) {
	acct, ok := GetAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "API key required"})
		return
	}

	if err := h.mgr.RevokeKey(c.Request.Context(), acct.ID, c.Param("keyId")); err != nil {
		if err == ErrKeyNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "key not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to revoke key"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"revoked": true})
}
