// Package tenant provides multi-tenancy for the Shiftline platform.
//
// A tenant is a business: the unit staff rosters, schedules, and billing
// attach to. Billing state lives in the billing package; this package owns
// the tenant identity record.
package tenant

import (
	"errors"
	"time"
)

// Errors
var (
	ErrTenantNotFound = errors.New("tenant: not found")
	ErrSlugTaken      = errors.New("tenant: slug already taken")
)

// Status represents a tenant's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Tenant represents a business using the platform.
type Tenant struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"` // owning account
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Timezone  string    `json:"timezone,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
