package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/shiftline/shiftline/internal/retry"
)

// ProcessorClient is the remote payment processor surface the reconciliation
// engine needs. Kept narrow so tests can swap in a fake.
type ProcessorClient interface {
	// GetSubscription fetches the live subscription by ID.
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	// ResumeSubscription clears cancel_at_period_end and returns the
	// updated subscription.
	ResumeSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

const (
	fetchAttempts  = 3
	fetchBaseDelay = 200 * time.Millisecond
)

// StripeClient implements ProcessorClient against the Stripe API.
type StripeClient struct {
	api *client.API
}

// NewStripeClient creates a Stripe-backed processor client.
func NewStripeClient(apiKey string) *StripeClient {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeClient{api: api}
}

// GetSubscription retries transient failures; a 4xx from Stripe (bad ID,
// revoked key) will not change on retry and fails immediately.
func (s *StripeClient) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	var sub *stripe.Subscription
	err := retry.Do(ctx, fetchAttempts, fetchBaseDelay, func() error {
		params := &stripe.SubscriptionParams{}
		params.Context = ctx
		got, err := s.api.Subscriptions.Get(id, params)
		if err != nil {
			return classifyStripeErr(err)
		}
		sub = got
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("billing: fetch subscription %s: %w", id, err)
	}
	return sub, nil
}

func (s *StripeClient) ResumeSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	params.Context = ctx
	sub, err := s.api.Subscriptions.Update(id, params)
	if err != nil {
		return nil, fmt.Errorf("billing: resume subscription %s: %w", id, err)
	}
	return sub, nil
}

func classifyStripeErr(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 && se.HTTPStatusCode != 429 {
		return retry.Permanent(err)
	}
	return err
}
