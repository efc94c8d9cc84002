package authorization

import "context"

// Objects and actions the billing surface authorizes against.
const (
	ObjectBilling = "billing"

	ActionBillingView       = "billing:view"
	ActionBillingCheckout   = "billing:checkout"
	ActionBillingCancel     = "billing:cancel"
	ActionBillingResume     = "billing:resume"
	ActionBillingChangePlan = "billing:change_plan"
	ActionBillingPortal     = "billing:portal"
)

// Service answers whether an actor may perform an action on an object
// within an organization. Actors are "user:<id>" or "system".
type Service interface {
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error
}
