package domain

import "errors"

var (
	ErrAlreadySubscribed    = errors.New("already_subscribed")
	ErrPlanUnchanged        = errors.New("plan_unchanged")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrInvalidBillingPeriod = errors.New("invalid_billing_period")
	ErrInvalidPlanStatus    = errors.New("invalid_plan_status")
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrPriceNotConfigured   = errors.New("price_not_configured")
	ErrConflict             = errors.New("billing_record_conflict")
)
