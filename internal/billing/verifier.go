package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v81"
)

// DefaultTolerance bounds the replay window for webhook signatures.
const DefaultTolerance = 300 * time.Second

// Verifier authenticates inbound webhook payloads against the shared
// signing secret. The clock is injectable so tests can pin time.
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier with the default tolerance.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret:    secret,
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
}

// Verify authenticates body against the signature header and, on success,
// parses the exact raw bytes into the event. Every failure path returns an
// error wrapping ErrSignature; the caller must not touch the body on error.
func (v *Verifier) Verify(body []byte, header string) (*stripe.Event, error) {
	timestamp, candidates, err := parseSignatureHeader(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age < 0 {
		age = -age
	}
	if age > v.tolerance {
		return nil, fmt.Errorf("%w: timestamp outside tolerance (%s)", ErrSignature, age)
	}

	// Signed payload is "{timestamp}.{raw body}". The body must be the exact
	// bytes received; re-encoding would break the MAC.
	mac := hmac.New(sha256.New, []byte(v.secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	// Accept if any candidate matches: Stripe sends one v1 entry per active
	// signing secret during rotation. Constant-time compare per candidate.
	matched := false
	for _, candidate := range candidates {
		if subtle.ConstantTimeCompare([]byte(expected), []byte(candidate)) == 1 {
			matched = true
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w: no matching signature", ErrSignature)
	}

	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: parse event: %v", ErrSignature, err)
	}
	return &event, nil
}

// parseSignatureHeader decomposes a "t=<unix>,v1=<hex>[,v1=<hex>...]"
// signature header into its timestamp and candidate signatures.
func parseSignatureHeader(header string) (int64, []string, error) {
	if header == "" {
		return 0, nil, fmt.Errorf("missing signature header")
	}

	var (
		timestamp  int64
		hasTS      bool
		candidates []string
	)
	for _, part := range strings.Split(header, ",") {
		k, val, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return 0, nil, fmt.Errorf("malformed signature element %q", part)
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("invalid timestamp %q", val)
			}
			timestamp = ts
			hasTS = true
		case "v1":
			candidates = append(candidates, val)
		default:
			// Unknown schemes (v0, future versions) are ignored.
		}
	}

	if !hasTS {
		return 0, nil, fmt.Errorf("signature header has no timestamp")
	}
	if len(candidates) == 0 {
		return 0, nil, fmt.Errorf("signature header has no v1 signatures")
	}
	return timestamp, candidates, nil
}
