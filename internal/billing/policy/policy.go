// Package policy holds the pure plan rules for the billing engine:
// commission rates, proration behavior, plan ordering, and trial
// eligibility. Nothing in this package performs I/O.
package policy

import (
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/bizboard/internal/billing/domain"
)

// ProrationBehavior mirrors the processor's proration options.
type ProrationBehavior string

const (
	ProrationCreateProrations ProrationBehavior = "create_prorations"
	ProrationNone             ProrationBehavior = "none"
)

// Config carries the injectable policy constants.
type Config struct {
	DefaultCommissionRate decimal.Decimal
	TrialDays             int64
}

// DefaultConfig returns the standard pricing regime: 5% commission on the
// free plan, 14-day trials.
func DefaultConfig() Config {
	return Config{
		DefaultCommissionRate: decimal.NewFromFloat(0.05),
		TrialDays:             14,
	}
}

// Policy evaluates plan rules against a fixed configuration.
type Policy struct {
	cfg Config
}

func New(cfg Config) *Policy {
	return &Policy{cfg: cfg}
}

var planRanks = map[billingdomain.Plan]int{
	billingdomain.PlanFree:    0,
	billingdomain.PlanStarter: 1,
	billingdomain.PlanPro:     2,
}

// CommissionRateFor derives the commission rate from the plan. Paid plans
// waive the commission entirely.
func (p *Policy) CommissionRateFor(plan billingdomain.Plan) decimal.Decimal {
	if plan == billingdomain.PlanFree {
		return p.cfg.DefaultCommissionRate
	}
	return decimal.Zero
}

// IsUpgrade reports whether target strictly outranks current in the fixed
// free < starter < pro order. Unknown plans rank as free.
func (p *Policy) IsUpgrade(current, target billingdomain.Plan) bool {
	return planRanks[target] > planRanks[current]
}

// ProrationBehaviorFor selects the proration mode for a plan transition.
// Upgrades bill the difference immediately; downgrades take effect without
// mid-cycle credits.
func (p *Policy) ProrationBehaviorFor(current, target billingdomain.Plan) ProrationBehavior {
	if p.IsUpgrade(current, target) {
		return ProrationCreateProrations
	}
	return ProrationNone
}

// TrialEligible grants the one-time trial only to tenants that have never
// activated a paid plan. Eligibility is derived from history emptiness,
// never stored.
func (p *Policy) TrialEligible(hasHistory bool) bool {
	return !hasHistory
}

// TrialDays returns the configured trial window length.
func (p *Policy) TrialDays() int64 {
	return p.cfg.TrialDays
}
