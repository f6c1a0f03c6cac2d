package billing

import (
	"errors"
	"net/http"
	"testing"

	stripe "github.com/stripe/stripe-go/v81"

	"github.com/shiftline/shiftline/internal/retry"
)

func stripeErr(status int) error {
	return &stripe.Error{HTTPStatusCode: status, Msg: "boom"}
}

func TestClassifyStripeErr(t *testing.T) {
	permanent := []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound}
	for _, status := range permanent {
		err := classifyStripeErr(stripeErr(status))
		var pe *retry.PermanentError
		if !errors.As(err, &pe) {
			t.Errorf("status %d should classify as permanent, got %v", status, err)
		}
	}

	// Server faults and rate limits are worth another attempt.
	retryable := []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway}
	for _, status := range retryable {
		err := classifyStripeErr(stripeErr(status))
		var pe *retry.PermanentError
		if errors.As(err, &pe) {
			t.Errorf("status %d should stay retryable", status)
		}
	}

	// Transport errors never carry a stripe.Error and stay retryable.
	plain := errors.New("connection reset")
	if got := classifyStripeErr(plain); got != plain {
		t.Errorf("expected plain error passed through, got %v", got)
	}
}
