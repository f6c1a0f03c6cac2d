// Package account manages actor accounts for the Shiftline platform.
//
// An account is the identity behind API keys: it owns a tenant (business),
// carries a role, and tracks onboarding progress. Session handling and role
// resolution live elsewhere; this package only stores the facts they produce.
package account

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrAccountNotFound = errors.New("account: not found")
	ErrEmailTaken      = errors.New("account: email already registered")
)

// Role identifies what an account is allowed to do within its tenant.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Onboarding steps. An account's OnboardingStep only ever moves forward.
const (
	StepCreated           = 0
	StepBusinessDetails   = 1
	StepPlanSelected      = 2
	StepCheckoutCompleted = 3
)

// Account represents a person who signs in to the platform.
type Account struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	TenantID       string    `json:"tenantId,omitempty"`
	OnboardingStep int       `json:"onboardingStep"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Store persists accounts.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Update(ctx context.Context, a *Account) error
	// AdvanceOnboarding moves the account's onboarding step up to the given
	// step. Accounts already at or past the step are left untouched, so the
	// operation is idempotent and safe to repeat from webhook retries.
	AdvanceOnboarding(ctx context.Context, id string, step int) error
}

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleMember
}
