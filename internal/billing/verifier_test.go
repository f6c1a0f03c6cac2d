package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

// signHex computes the v1 signature hex for body at ts.
func signHex(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// signPayload produces a valid "t=...,v1=..." header for body at ts.
func signPayload(secret string, ts int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, signHex(secret, ts, body))
}

func newTestVerifier(at time.Time) *Verifier {
	v := NewVerifier(testSecret)
	v.now = func() time.Time { return at }
	return v
}

func TestVerify_ValidSignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := newTestVerifier(now)

	body := []byte(`{"id":"evt_1","type":"customer.subscription.updated","data":{"object":{}}}`)
	header := signPayload(testSecret, now.Unix(), body)

	event, err := v.Verify(body, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "customer.subscription.updated", string(event.Type))
}

func TestVerify_MutatedBodyRejected(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := newTestVerifier(now)

	body := []byte(`{"id":"evt_1","type":"x"}`)
	header := signPayload(testSecret, now.Unix(), body)

	// Flip one byte after signing
	tampered := append([]byte(nil), body...)
	tampered[2] ^= 0x01

	_, err := v.Verify(tampered, header)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSignature))
}

func TestVerify_WrongSecretRejected(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := newTestVerifier(now)

	body := []byte(`{"id":"evt_1"}`)
	header := signPayload("whsec_other", now.Unix(), body)

	_, err := v.Verify(body, header)
	assert.True(t, errors.Is(err, ErrSignature))
}

func TestVerify_StaleTimestampRejected(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := newTestVerifier(now)

	body := []byte(`{"id":"evt_1"}`)
	stale := now.Add(-DefaultTolerance - time.Second).Unix()
	header := signPayload(testSecret, stale, body)

	_, err := v.Verify(body, header)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSignature))
}

func TestVerify_FutureTimestampRejected(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := newTestVerifier(now)

	body := []byte(`{"id":"evt_1"}`)
	future := now.Add(DefaultTolerance + time.Second).Unix()
	header := signPayload(testSecret, future, body)

	_, err := v.Verify(body, header)
	assert.True(t, errors.Is(err, ErrSignature))
}

func TestVerify_TimestampAtToleranceBoundaryAccepted(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := newTestVerifier(now)

	body := []byte(`{"id":"evt_1"}`)
	edge := now.Add(-DefaultTolerance).Unix()
	header := signPayload(testSecret, edge, body)

	_, err := v.Verify(body, header)
	assert.NoError(t, err)
}

func TestVerify_MissingHeaderRejected(t *testing.T) {
	v := newTestVerifier(time.Unix(1700000000, 0))

	_, err := v.Verify([]byte(`{}`), "")
	assert.True(t, errors.Is(err, ErrSignature))
}

func TestVerify_HeaderWithoutSignaturesRejected(t *testing.T) {
	v := newTestVerifier(time.Unix(1700000000, 0))

	_, err := v.Verify([]byte(`{}`), "t=1700000000")
	assert.True(t, errors.Is(err, ErrSignature))
}

func TestVerify_MultipleCandidates_OneValidAccepted(t *testing.T) {
	// During secret rotation Stripe sends one v1 per active secret; any
	// matching candidate must authenticate the payload.
	now := time.Unix(1700000000, 0)
	v := newTestVerifier(now)

	body := []byte(`{"id":"evt_1"}`)
	header := fmt.Sprintf("t=%d,v1=deadbeef,v1=%s", now.Unix(), signHex(testSecret, now.Unix(), body))

	_, err := v.Verify(body, header)
	assert.NoError(t, err)
}

func TestVerify_UnknownSchemeIgnored(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := newTestVerifier(now)

	body := []byte(`{"id":"evt_1"}`)
	valid := signPayload(testSecret, now.Unix(), body)

	// A v0 element alongside a valid v1 must not break verification.
	header := valid + ",v0=ffff"
	_, err := v.Verify(body, header)
	assert.NoError(t, err)
}

func TestVerify_MalformedTimestampRejected(t *testing.T) {
	v := newTestVerifier(time.Unix(1700000000, 0))

	_, err := v.Verify([]byte(`{}`), "t=notanumber,v1=abcd")
	assert.True(t, errors.Is(err, ErrSignature))
}
