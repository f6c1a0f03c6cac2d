package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	stripe "github.com/stripe/stripe-go/v81"

	"github.com/shiftline/shiftline/internal/account"
	"github.com/shiftline/shiftline/internal/metrics"
	"github.com/shiftline/shiftline/internal/traces"
)

// Service owns the reconciliation engine. Every update path (webhook
// dispatch, pull backfill, resume action) funnels through project, the one
// code path allowed to mutate billing records.
type Service struct {
	store     Store
	accounts  account.Store
	processor ProcessorClient
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates the billing service.
func NewService(store Store, accounts account.Store, processor ProcessorClient, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		accounts:  accounts,
		processor: processor,
		logger:    logger,
		now:       time.Now,
	}
}

// EnsureRecord seeds the default (inactive) billing record for a tenant.
// Existing records are left untouched.
func (s *Service) EnsureRecord(ctx context.Context, tenantID, accountID string) error {
	if _, err := s.store.Get(ctx, tenantID); err == nil {
		return nil
	} else if !errors.Is(err, ErrRecordNotFound) {
		return err
	}
	return s.store.Upsert(ctx, &Record{
		TenantID:  tenantID,
		AccountID: accountID,
		Status:    StatusInactive,
		UpdatedAt: s.now(),
	})
}

// Get returns a tenant's billing record.
func (s *Service) Get(ctx context.Context, tenantID string) (*Record, error) {
	return s.store.Get(ctx, tenantID)
}

// -----------------------------------------------------------------------------
// Event dispatch
// -----------------------------------------------------------------------------

// HandleEvent classifies a verified webhook event and runs the matching
// resolution + projection sequence. Unrecognized event types are
// acknowledged without action so future Stripe types never fail delivery.
// Any returned error makes the caller answer non-2xx, which drives Stripe's
// own redelivery; there is no local retry queue.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	ctx, span := traces.StartSpan(ctx, "billing.HandleEvent", traces.EventType(string(event.Type)))
	defer span.End()

	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event.Data.Raw)
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		return s.handleSubscriptionEvent(ctx, event.Data.Raw)
	case "invoice.payment_succeeded", "invoice.payment_failed":
		return s.handleInvoiceEvent(ctx, event.Data.Raw)
	default:
		s.logger.Debug("ignoring webhook event", "type", event.Type, "event_id", event.ID)
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, raw json.RawMessage) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return fmt.Errorf("billing: decode checkout session: %w", err)
	}

	// Tenant linkage comes from session metadata, falling back to the
	// client reference ID set when the checkout was created.
	tenantID := session.Metadata["tenant_id"]
	if tenantID == "" {
		tenantID = session.ClientReferenceID
	}

	// Advance the buying account's onboarding regardless of how the billing
	// projection goes: a paid checkout is a completed checkout.
	if acctID := session.Metadata["account_id"]; acctID != "" && s.accounts != nil {
		if err := s.accounts.AdvanceOnboarding(ctx, acctID, account.StepCheckoutCompleted); err != nil {
			s.logger.Warn("failed to advance onboarding", "account", acctID, "error", err)
		}
	}

	if tenantID == "" {
		s.logger.Info("checkout session without tenant linkage, skipping", "session", session.ID)
		return nil
	}

	sub := session.Subscription
	if sub == nil {
		s.logger.Info("checkout session without subscription, skipping", "session", session.ID)
		return nil
	}
	// Webhook payloads usually carry the subscription as a bare ID; only an
	// expanded object (Status populated) can be used directly.
	if sub.Status == "" {
		fetched, err := s.processor.GetSubscription(ctx, sub.ID)
		if err != nil {
			return fmt.Errorf("billing: checkout subscription fetch: %w", err)
		}
		sub = fetched
	}

	snap := SnapshotFromSubscription(sub)
	if snap.CustomerID == "" && session.Customer != nil {
		snap.CustomerID = session.Customer.ID
	}

	rec, err := s.recordForTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.project(ctx, rec, snap)
}

func (s *Service) handleSubscriptionEvent(ctx context.Context, raw json.RawMessage) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("billing: decode subscription: %w", err)
	}

	// The event already carries the full subscription state; no fetch.
	snap := SnapshotFromSubscription(&sub)
	rec, err := s.resolveTenant(ctx, snap)
	if err != nil {
		return err
	}
	if rec == nil {
		s.logger.Info("no tenant for subscription event, skipping", "subscription", snap.SubscriptionID)
		return nil
	}
	return s.project(ctx, rec, snap)
}

func (s *Service) handleInvoiceEvent(ctx context.Context, raw json.RawMessage) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return fmt.Errorf("billing: decode invoice: %w", err)
	}

	// The invoice's subscription may arrive as a bare ID or a nested
	// object; either way only the ID is trustworthy here, so fetch the
	// authoritative state before projecting.
	if invoice.Subscription == nil || invoice.Subscription.ID == "" {
		s.logger.Info("invoice without subscription, skipping")
		return nil
	}
	sub, err := s.processor.GetSubscription(ctx, invoice.Subscription.ID)
	if err != nil {
		return fmt.Errorf("billing: invoice subscription fetch: %w", err)
	}

	snap := SnapshotFromSubscription(sub)
	if snap.CustomerID == "" && invoice.Customer != nil {
		snap.CustomerID = invoice.Customer.ID
	}

	rec, err := s.resolveTenant(ctx, snap)
	if err != nil {
		return err
	}
	if rec == nil {
		s.logger.Info("no tenant for invoice event, skipping", "subscription", snap.SubscriptionID)
		return nil
	}
	return s.project(ctx, rec, snap)
}

// -----------------------------------------------------------------------------
// Resolution
// -----------------------------------------------------------------------------

// resolveTenant finds the billing record an event belongs to. Embedded
// linking metadata wins outright; otherwise one store query matches on
// stored subscription ID or customer ID. A miss returns (nil, nil): events
// for subscriptions we never linked are no-ops, not errors.
func (s *Service) resolveTenant(ctx context.Context, snap Snapshot) (*Record, error) {
	if hint := snap.TenantHint(); hint != "" {
		return s.recordForTenant(ctx, hint)
	}

	rec, err := s.store.FindByRemoteRef(ctx, snap.SubscriptionID, snap.CustomerID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("billing: resolve tenant: %w", err)
	}
	return rec, nil
}

// recordForTenant loads a tenant's record, starting a fresh default when the
// provisioning seed has not run yet (first checkout racing tenant creation).
func (s *Service) recordForTenant(ctx context.Context, tenantID string) (*Record, error) {
	rec, err := s.store.Get(ctx, tenantID)
	if errors.Is(err, ErrRecordNotFound) {
		return &Record{TenantID: tenantID, Status: StatusInactive}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("billing: load record: %w", err)
	}
	return rec, nil
}

// -----------------------------------------------------------------------------
// Projection
// -----------------------------------------------------------------------------

// applySnapshot computes the new projection for rec from snap. Pure: all
// lifecycle-timestamp rules live here and nowhere else.
func applySnapshot(rec *Record, snap Snapshot, now time.Time) *Record {
	out := *rec

	out.Status = StatusFromRemote(snap.Status)
	out.StripeSubscriptionID = snap.SubscriptionID
	if snap.CustomerID != "" {
		out.StripeCustomerID = snap.CustomerID
	}
	out.StripePriceID = snap.PriceID
	out.CancelAtPeriodEnd = snap.CancelAtPeriodEnd
	out.CurrentPeriodStart = epochToTime(snap.PeriodStart)
	out.CurrentPeriodEnd = epochToTime(snap.PeriodEnd)

	if out.Status.Started() && out.BillingStartedAt == nil {
		t := now
		out.BillingStartedAt = &t
	}

	if out.Status.Canceled() {
		if out.BillingCanceledAt == nil {
			t := now
			out.BillingCanceledAt = &t
		}
	} else {
		out.BillingCanceledAt = nil
	}

	out.UpdatedAt = now
	return &out
}

// project applies snap to rec and persists the result.
func (s *Service) project(ctx context.Context, rec *Record, snap Snapshot) error {
	updated := applySnapshot(rec, snap, s.now())
	if err := s.store.Upsert(ctx, updated); err != nil {
		return fmt.Errorf("billing: write projection: %w", err)
	}
	metrics.BillingProjectionsTotal.WithLabelValues(string(updated.Status)).Inc()
	s.logger.Info("billing projection updated",
		"tenant", updated.TenantID,
		"status", updated.Status,
		"subscription", updated.StripeSubscriptionID,
	)
	return nil
}

// -----------------------------------------------------------------------------
// Pull backfill
// -----------------------------------------------------------------------------

// NeedsBackfill reports whether a record is linked to a subscription but is
// missing its renewal window, the state left behind by paths that did not
// have full remote detail yet.
func NeedsBackfill(rec *Record) bool {
	return rec.StripeSubscriptionID != "" && rec.CurrentPeriodEnd == nil
}

// Backfill refreshes rec from the live subscription. Best-effort: on any
// failure the caller keeps serving the existing stale record, so the read
// path never depends on Stripe being reachable.
func (s *Service) Backfill(ctx context.Context, rec *Record) *Record {
	ctx, span := traces.StartSpan(ctx, "billing.Backfill", traces.TenantID(rec.TenantID))
	defer span.End()

	sub, err := s.processor.GetSubscription(ctx, rec.StripeSubscriptionID)
	if err != nil {
		metrics.BillingBackfillsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("backfill fetch failed, serving stale record",
			"tenant", rec.TenantID, "error", err)
		return rec
	}

	updated := applySnapshot(rec, SnapshotFromSubscription(sub), s.now())
	if err := s.store.Upsert(ctx, updated); err != nil {
		metrics.BillingBackfillsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("backfill write failed, serving stale record",
			"tenant", rec.TenantID, "error", err)
		return rec
	}

	metrics.BillingBackfillsTotal.WithLabelValues("ok").Inc()
	return updated
}

// -----------------------------------------------------------------------------
// Resume action
// -----------------------------------------------------------------------------

// Resume clears cancel-at-period-end on the tenant's subscription and
// refreshes the local projection from the mutation's response. The caller
// has already established the actor is an admin on the tenant's account.
// If the remote mutation fails nothing is written locally.
func (s *Service) Resume(ctx context.Context, tenantID string) (*Record, error) {
	ctx, span := traces.StartSpan(ctx, "billing.Resume", traces.TenantID(tenantID))
	defer span.End()

	rec, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if rec.StripeSubscriptionID == "" {
		return nil, ErrNoSubscription
	}

	sub, err := s.processor.ResumeSubscription(ctx, rec.StripeSubscriptionID)
	if err != nil {
		metrics.BillingResumesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	updated := applySnapshot(rec, SnapshotFromSubscription(sub), s.now())
	if err := s.store.Upsert(ctx, updated); err != nil {
		metrics.BillingResumesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	metrics.BillingResumesTotal.WithLabelValues("ok").Inc()
	return updated, nil
}
