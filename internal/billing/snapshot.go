package billing

import (
	"time"

	stripe "github.com/stripe/stripe-go/v81"
)

// Snapshot is the transient view of a remote subscription that the
// projection consumes. It is derived from a stripe.Subscription at the
// boundary and never stored verbatim.
type Snapshot struct {
	SubscriptionID    string
	Status            string // raw remote status, mapped via StatusFromRemote
	CustomerID        string
	CancelAtPeriodEnd bool
	PeriodStart       int64 // epoch seconds; <= 0 means unknown
	PeriodEnd         int64
	PriceID           string
	Metadata          map[string]string
}

// SnapshotFromSubscription converts a Stripe subscription into a Snapshot.
// The price ID comes from the first line item; customer may be a bare ID or
// an expanded object depending on where the subscription came from.
func SnapshotFromSubscription(sub *stripe.Subscription) Snapshot {
	snap := Snapshot{
		SubscriptionID:    sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		PeriodStart:       sub.CurrentPeriodStart,
		PeriodEnd:         sub.CurrentPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		if price := sub.Items.Data[0].Price; price != nil {
			snap.PriceID = price.ID
		}
	}
	return snap
}

// TenantHint returns the tenant ID embedded in the snapshot's linking
// metadata, if any.
func (s Snapshot) TenantHint() string {
	return s.Metadata["tenant_id"]
}

// epochToTime converts epoch seconds to a UTC timestamp. Zero, negative, or
// otherwise absent values mean "unknown" and map to nil, never to the epoch.
func epochToTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
