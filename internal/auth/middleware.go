package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shiftline/shiftline/internal/account"
)

const (
	// ContextKeyAPIKey is the gin context key for the validated API key.
	ContextKeyAPIKey = "apiKey"
	// ContextKeyAccount is the gin context key for the resolved account.
	ContextKeyAccount = "authAccount"
)

// Middleware extracts and validates the API key from the request and, when
// valid, resolves the owning account into the gin context. It never rejects
// by itself; pair with RequireAuth/RequireAdmin on protected routes.
func Middleware(m *Manager, accounts account.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("Authorization")
		if apiKey == "" {
			apiKey = c.GetHeader("X-API-Key")
		}

		if apiKey != "" {
			key, err := m.ValidateKey(c.Request.Context(), apiKey)
			if err == nil {
				if acct, err := accounts.Get(c.Request.Context(), key.AccountID); err == nil {
					c.Set(ContextKeyAPIKey, key)
					c.Set(ContextKeyAccount, acct)
				}
			}
		}

		c.Next()
	}
}

// RequireAuth rejects requests without a resolved account.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyAccount); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required. Include 'Authorization: Bearer sk_...' header.",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests whose account does not hold the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		acct, ok := GetAccount(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required.",
			})
			return
		}
		if acct.Role != account.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "admin role required",
			})
			return
		}
		c.Next()
	}
}

// GetAccount returns the authenticated account from context.
func GetAccount(c *gin.Context) (*account.Account, bool) {
	v, exists := c.Get(ContextKeyAccount)
	if !exists {
		return nil, false
	}
	acct, ok := v.(*account.Account)
	return acct, ok
}

// GetAPIKey returns the validated API key from context.
func GetAPIKey(c *gin.Context) (*APIKey, bool) {
	v, exists := c.Get(ContextKeyAPIKey)
	if !exists {
		return nil, false
	}
	key, ok := v.(*APIKey)
	return key, ok
}

// IsAuthenticated checks if the request carries a resolved account.
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ContextKeyAccount)
	return exists
}
