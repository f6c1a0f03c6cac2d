package billing

// PlanBook maps Stripe price IDs to human-readable plan labels. The read
// endpoint reports the label, never the raw price ID.
type PlanBook map[string]string

// DefaultPlanLabel is reported for price IDs the book does not know.
const DefaultPlanLabel = "unknown"

// Label returns the plan label for a price ID. Empty price IDs (no
// subscription yet) report "none".
func (b PlanBook) Label(priceID string) string {
	if priceID == "" {
		return "none"
	}
	if label, ok := b[priceID]; ok {
		return label
	}
	return DefaultPlanLabel
}
