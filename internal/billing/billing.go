// Package billing maintains each tenant's locally-cached projection of its
// Stripe subscription.
//
// Three independent paths update the projection: webhook events pushed by
// Stripe, pull backfill triggered by a read, and the user-initiated resume
// action. All three converge on a single pure projection function and one
// idempotent store write, so concurrent or repeated updates settle on the
// same state instead of oscillating.
package billing

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	// ErrSignature is returned for any webhook authentication failure:
	// missing, malformed, stale, or mismatched signatures.
	ErrSignature = errors.New("billing: invalid webhook signature")
	// ErrRecordNotFound is returned when no billing record exists.
	ErrRecordNotFound = errors.New("billing: record not found")
	// ErrNoSubscription is returned when an action needs a linked
	// subscription but the tenant has none.
	ErrNoSubscription = errors.New("billing: tenant has no subscription")
	// ErrOperationFailed is returned when a remote mutation could not be
	// completed; local state is untouched.
	ErrOperationFailed = errors.New("billing: operation failed")
)

// Status is the internal billing-status vocabulary.
type Status string

const (
	StatusInactive Status = "inactive"
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusUnpaid   Status = "unpaid"
)

// StatusFromRemote maps a Stripe subscription status string onto the
// internal vocabulary. Total: anything unrecognized (including empty) maps
// to inactive rather than erroring.
func StatusFromRemote(s string) Status {
	switch s {
	case "trialing":
		return StatusTrialing
	case "active":
		return StatusActive
	case "past_due":
		return StatusPastDue
	case "canceled":
		return StatusCanceled
	case "unpaid":
		return StatusUnpaid
	default:
		return StatusInactive
	}
}

// Canceled reports whether st counts as a canceled-family status.
func (st Status) Canceled() bool {
	return st == StatusCanceled || st == StatusUnpaid
}

// Started reports whether st counts as an in-service status.
func (st Status) Started() bool {
	return st == StatusActive || st == StatusTrialing
}

// Record is a tenant's billing projection. One row per tenant, created when
// the tenant is provisioned and mutated only through Service.project.
type Record struct {
	TenantID  string `json:"tenantId"`
	AccountID string `json:"accountId"`

	Status Status `json:"status"`

	StripeCustomerID     string `json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID string `json:"stripeSubscriptionId,omitempty"`
	StripePriceID        string `json:"stripePriceId,omitempty"`

	CancelAtPeriodEnd  bool       `json:"cancelAtPeriodEnd"`
	CurrentPeriodStart *time.Time `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"currentPeriodEnd,omitempty"`

	// BillingStartedAt is set once, on the first transition into
	// active/trialing, and never cleared or moved afterward.
	BillingStartedAt *time.Time `json:"billingStartedAt,omitempty"`
	// BillingCanceledAt is non-nil exactly while the status is
	// canceled/unpaid.
	BillingCanceledAt *time.Time `json:"billingCanceledAt,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists billing records. The update is a keyed upsert with
// last-writer-wins semantics: every writer recomputes the same deterministic
// projection from the remote source of truth, so concurrent writers converge.
type Store interface {
	Get(ctx context.Context, tenantID string) (*Record, error)
	// FindByRemoteRef looks up the record whose stored subscription ID or
	// customer ID matches, in a single query. Empty arguments never match.
	FindByRemoteRef(ctx context.Context, subscriptionID, customerID string) (*Record, error)
	Upsert(ctx context.Context, rec *Record) error
}
