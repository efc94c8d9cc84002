package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Repository owns BillingRecord and SubscriptionHistory persistence. All
// writers that race the payment-events collaborator use compare-and-set
// predicates and surface ErrConflict when the record moved underneath
// them.
type Repository interface {
	// Get loads the tenant's billing record, or ErrOrganizationNotFound.
	Get(ctx context.Context, orgID snowflake.ID) (*BillingRecord, error)

	// Ensure loads the billing record, creating the free-plan row on first
	// access with the caller-supplied commission rate. The rate comes from
	// the policy layer so a configured rate and a freshly created record
	// never disagree.
	Ensure(ctx context.Context, orgID snowflake.ID, commissionRate decimal.Decimal) (*BillingRecord, error)

	// SetCustomerID persists a newly created processor customer id.
	SetCustomerID(ctx context.Context, orgID snowflake.ID, customerID string) error

	// ApplyPlanChange atomically moves the record to a new plan and, when
	// change.RecordHistory is set, appends the activation history row in
	// the same transaction. The update only applies while the record still
	// matches the expected plan and subscription id.
	ApplyPlanChange(ctx context.Context, change PlanChange) error

	// SetPlanStatus updates only the observed status column.
	SetPlanStatus(ctx context.Context, orgID snowflake.ID, status PlanStatus) error

	// Heal resets the record to the free-plan baseline: no subscription
	// reference, active status, default commission. Idempotent.
	Heal(ctx context.Context, orgID snowflake.ID, commissionRate decimal.Decimal) (*BillingRecord, error)

	// HasHistory reports whether any activation row exists for the tenant.
	HasHistory(ctx context.Context, orgID snowflake.ID) (bool, error)

	// ListHistory returns activation rows, newest first.
	ListHistory(ctx context.Context, orgID snowflake.ID) ([]SubscriptionHistory, error)
}

// PlanChange describes a compare-and-set plan transition.
type PlanChange struct {
	OrgID snowflake.ID

	// Expected state at read time; the update is abandoned with
	// ErrConflict when it no longer matches.
	ExpectedPlan           Plan
	ExpectedSubscriptionID *string

	NewPlan          Plan
	NewStatus        PlanStatus
	CommissionRate   decimal.Decimal
	SubscriptionID   *string
	CurrentPeriodEnd *time.Time

	// RecordHistory appends the activation row; only plan activations set
	// this, never cancellation toggles.
	RecordHistory bool
}
