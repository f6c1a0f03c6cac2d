package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v81"

	"github.com/shiftline/shiftline/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const integrationWebhookSecret = "whsec_integration"

// stubProcessor serves a single canned subscription.
type stubProcessor struct {
	sub *stripe.Subscription
}

func (p *stubProcessor) GetSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	if p.sub == nil || p.sub.ID != id {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	return p.sub, nil
}

func (p *stubProcessor) ResumeSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	if p.sub == nil || p.sub.ID != id {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	out := *p.sub
	out.CancelAtPeriodEnd = false
	return &out, nil
}

func newTestServer(t *testing.T, processor *stubProcessor) *Server {
	t.Helper()
	cfg := &config.Config{
		Port:                "8080",
		Env:                 "development",
		LogLevel:            "error",
		StripeWebhookSecret: integrationWebhookSecret,
		PlanPrices:          map[string]string{"price_starter": "Starter"},
	}
	srv, err := New(cfg, WithProcessor(processor))
	require.NoError(t, err)
	t.Cleanup(func() {
		if srv.rateLimiter != nil {
			srv.rateLimiter.Stop()
		}
	})
	return srv
}

func signEvent(body []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(integrationWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func doJSON(router *gin.Engine, method, path, apiKey string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestSignupToActiveBilling walks the whole onboarding path through the real
// router: signup, tenant creation, a signed checkout webhook, then the
// billing read reflecting the projected subscription.
func TestSignupToActiveBilling(t *testing.T) {
	processor := &stubProcessor{}
	srv := newTestServer(t, processor)
	router := srv.Router()

	// Signup issues the first API key.
	w := doJSON(router, "POST", "/v1/signup", "", map[string]string{"email": "owner@example.com"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var signup struct {
		Account struct {
			ID string `json:"id"`
		} `json:"account"`
		APIKey string `json:"apiKey"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &signup))
	require.NotEmpty(t, signup.APIKey)

	// Create the tenant; this also seeds the inactive billing record.
	w = doJSON(router, "POST", "/v1/tenants", signup.APIKey, map[string]string{
		"name": "Night Shift Staffing", "slug": "night-shift",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Tenant struct {
			ID string `json:"id"`
		} `json:"tenant"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	tenantID := created.Tenant.ID

	// Fresh tenants read back as inactive.
	w = doJSON(router, "GET", "/v1/tenants/"+tenantID+"/billing", signup.APIKey, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"inactive"`)

	// Checkout completes; the session carries the subscription as a bare ID,
	// so the processor serves the expanded state.
	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()
	processor.sub = &stripe.Subscription{
		ID:                 "sub_test",
		Status:             stripe.SubscriptionStatusActive,
		Customer:           &stripe.Customer{ID: "cus_test"},
		CurrentPeriodStart: time.Now().Unix(),
		CurrentPeriodEnd:   periodEnd,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{Price: &stripe.Price{ID: "price_starter"}},
			},
		},
	}

	body, err := json.Marshal(map[string]interface{}{
		"id":   "evt_checkout_1",
		"type": "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":           "cs_1",
				"subscription": "sub_test",
				"metadata": map[string]string{
					"tenant_id":  tenantID,
					"account_id": signup.Account.ID,
				},
			},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/v1/billing/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signEvent(body))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"received": true}`, w.Body.String())

	// The read now reflects the projected subscription.
	w = doJSON(router, "GET", "/v1/tenants/"+tenantID+"/billing", signup.APIKey, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view struct {
		Billing struct {
			Status           string     `json:"status"`
			Plan             string     `json:"plan"`
			BillingStartedAt *time.Time `json:"billingStartedAt"`
		} `json:"billing"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "active", view.Billing.Status)
	assert.Equal(t, "Starter", view.Billing.Plan)
	assert.NotNil(t, view.Billing.BillingStartedAt)
}

func TestWebhookRejectsUnsignedPayload(t *testing.T) {
	srv := newTestServer(t, &stubProcessor{})

	body := []byte(`{"id":"evt_1","type":"customer.subscription.updated","data":{"object":{}}}`)
	req := httptest.NewRequest("POST", "/v1/billing/events", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_signature")
}

func TestProtectedRoutesRequireKey(t *testing.T) {
	srv := newTestServer(t, &stubProcessor{})

	w := doJSON(srv.Router(), "POST", "/v1/tenants", "", map[string]string{"name": "Biz", "slug": "biz"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(srv.Router(), "POST", "/v1/tenants", "sk_bogus_key", map[string]string{"name": "Biz", "slug": "biz"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, &stubProcessor{})
	router := srv.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// Readiness flips only once Run has started.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSecurityHeadersApplied(t *testing.T) {
	srv := newTestServer(t, &stubProcessor{})

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("GET", "/api", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
