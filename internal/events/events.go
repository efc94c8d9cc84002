package events

// Billing lifecycle event types written to the outbox.
const (
	EventCheckoutInitiated    = "billing.checkout_initiated"
	EventPlanChanged          = "billing.plan_changed"
	EventSubscriptionCanceled = "billing.subscription_canceled"
	EventSubscriptionResumed  = "billing.subscription_resumed"
	EventSubscriptionHealed   = "billing.subscription_healed"
	EventPlanActivated        = "billing.plan_activated"
)

// PlanChangePayload captures the minimal data downstream consumers need to
// react to a plan transition.
type PlanChangePayload struct {
	OrgID          string `json:"org_id"`
	FromPlan       string `json:"from_plan"`
	ToPlan         string `json:"to_plan"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

// ToMap converts the payload into an outbox-friendly map.
func (p PlanChangePayload) ToMap() map[string]any {
	payload := map[string]any{
		"org_id":    p.OrgID,
		"from_plan": p.FromPlan,
		"to_plan":   p.ToPlan,
	}
	if p.SubscriptionID != "" {
		payload["subscription_id"] = p.SubscriptionID
	}
	return payload
}

// HealPayload records a self-healing reset for audit and alerting.
type HealPayload struct {
	OrgID               string `json:"org_id"`
	StaleSubscriptionID string `json:"stale_subscription_id"`
}

// ToMap converts the payload into an outbox-friendly map.
func (p HealPayload) ToMap() map[string]any {
	return map[string]any{
		"org_id":                p.OrgID,
		"stale_subscription_id": p.StaleSubscriptionID,
	}
}
