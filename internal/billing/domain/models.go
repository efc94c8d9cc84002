// Package domain contains the billing engine's persistence models, service
// contract, and sentinel errors.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Plan identifies a subscription tier.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanStarter Plan = "starter"
	PlanPro     Plan = "pro"
)

// Valid reports whether the plan is one of the known tiers.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanStarter, PlanPro:
		return true
	}
	return false
}

// Paid reports whether the plan carries a processor subscription.
func (p Plan) Paid() bool {
	return p == PlanStarter || p == PlanPro
}

// PlanStatus is the authoritative status last observed from the processor,
// or the local default for tenants without a subscription.
type PlanStatus string

const (
	PlanStatusActive   PlanStatus = "active"
	PlanStatusPastDue  PlanStatus = "past_due"
	PlanStatusCanceled PlanStatus = "canceled"
)

// BillingPeriod selects the renewal interval at checkout.
type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodAnnual  BillingPeriod = "annual"
)

// Valid reports whether the period is a known interval.
func (b BillingPeriod) Valid() bool {
	return b == BillingPeriodMonthly || b == BillingPeriodAnnual
}

// BillingRecord is the per-tenant billing aggregate. One row per
// organization, created with free-plan defaults when the organization is
// created and mutated only through the billing service.
type BillingRecord struct {
	OrgID                   snowflake.ID    `gorm:"column:org_id;primaryKey" json:"org_id"`
	Plan                    Plan            `gorm:"type:text;not null;default:'free'" json:"plan"`
	PlanStatus              PlanStatus      `gorm:"type:text;not null;default:'active'" json:"plan_status"`
	ProcessorCustomerID     *string         `gorm:"type:text" json:"-"`
	ProcessorSubscriptionID *string         `gorm:"type:text" json:"-"`
	CommissionRate          decimal.Decimal `gorm:"type:numeric(6,4);not null" json:"commission_rate"`
	CurrentPeriodEnd        *time.Time      `gorm:"" json:"current_period_end,omitempty"`
	CreatedAt               time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt               time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (BillingRecord) TableName() string { return "billing_records" }

// SubscriptionHistory is an append-only log with one row per successful
// plan activation. Rows are never updated or deleted; a tenant with any
// row is permanently trial-ineligible.
type SubscriptionHistory struct {
	ID                      snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID                   snowflake.ID `gorm:"not null;index" json:"org_id"`
	Plan                    Plan         `gorm:"type:text;not null" json:"plan"`
	Status                  PlanStatus   `gorm:"type:text;not null" json:"status"`
	ProcessorSubscriptionID string       `gorm:"type:text;not null" json:"-"`
	CreatedAt               time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (SubscriptionHistory) TableName() string { return "subscription_histories" }
