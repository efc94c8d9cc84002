package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service is the billing engine's surface to the application tier, plus
// the two collaborator-facing transitions the payment-events listener
// drives.
type Service interface {
	InitiateCheckout(ctx context.Context, req InitiateCheckoutRequest) (*CheckoutResponse, error)
	CancelSubscription(ctx context.Context, orgID snowflake.ID) (*StatusResponse, error)
	ResumeSubscription(ctx context.Context, orgID snowflake.ID) (*StatusResponse, error)
	ChangePlan(ctx context.Context, req ChangePlanRequest) (*StatusResponse, error)
	GetStatus(ctx context.Context, orgID snowflake.ID) (*StatusResponse, error)
	CreatePortalSession(ctx context.Context, orgID snowflake.ID) (*PortalResponse, error)
	ListHistory(ctx context.Context, orgID snowflake.ID) ([]SubscriptionHistory, error)

	// ConfirmActivation records the first activation of a paid plan once
	// the payment-events collaborator has observed a completed checkout.
	ConfirmActivation(ctx context.Context, req ConfirmActivationRequest) error

	// ApplyExternalStatus accepts asynchronous status transitions
	// (payment succeeded/failed) as externally supplied facts.
	ApplyExternalStatus(ctx context.Context, orgID snowflake.ID, status PlanStatus) error
}

// InitiateCheckoutRequest starts a checkout session for a paid plan.
type InitiateCheckoutRequest struct {
	OrgID         snowflake.ID
	Plan          Plan
	BillingPeriod BillingPeriod
	Email         string
	DisplayName   string
}

// CheckoutResponse carries the processor session handle back to the UI.
type CheckoutResponse struct {
	SessionID    string `json:"session_id"`
	ClientSecret string `json:"client_secret"`
	TrialDays    int64  `json:"trial_days,omitempty"`
}

// ChangePlanRequest switches an active subscription to a different plan.
type ChangePlanRequest struct {
	OrgID snowflake.ID
	Plan  Plan
}

// ConfirmActivationRequest is submitted by the payment-events collaborator
// after checkout completes at the processor.
type ConfirmActivationRequest struct {
	OrgID                   snowflake.ID
	Plan                    Plan
	ProcessorSubscriptionID string
	CurrentPeriodEnd        *time.Time
}

// StatusResponse is the tenant-facing billing status. Processor-observed
// fields are merged into the response without being persisted.
type StatusResponse struct {
	Plan              Plan       `json:"plan"`
	PlanStatus        PlanStatus `json:"plan_status"`
	CommissionRate    string     `json:"commission_rate"`
	HasSubscription   bool       `json:"has_subscription"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	BillingPeriod     string     `json:"billing_period,omitempty"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	TrialEnd          *time.Time `json:"trial_end,omitempty"`

	// Healed is set when a stale processor reference was detected and the
	// tenant was reset to the free plan as part of this call.
	Healed  bool   `json:"healed,omitempty"`
	Message string `json:"message,omitempty"`
}

// PortalResponse carries the processor-hosted billing portal URL.
type PortalResponse struct {
	URL string `json:"url"`
}
