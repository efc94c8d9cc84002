package policy

import (
	"testing"

	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/bizboard/internal/billing/domain"
)

func TestCommissionRateFor(t *testing.T) {
	p := New(DefaultConfig())

	if got := p.CommissionRateFor(billingdomain.PlanFree); !got.Equal(decimal.NewFromFloat(0.05)) {
		t.Fatalf("free plan commission = %s, want 0.05", got)
	}
	if got := p.CommissionRateFor(billingdomain.PlanStarter); !got.IsZero() {
		t.Fatalf("starter plan commission = %s, want 0", got)
	}
	if got := p.CommissionRateFor(billingdomain.PlanPro); !got.IsZero() {
		t.Fatalf("pro plan commission = %s, want 0", got)
	}
}

func TestCommissionRateForUsesConfiguredDefault(t *testing.T) {
	p := New(Config{DefaultCommissionRate: decimal.NewFromFloat(0.08), TrialDays: 7})

	if got := p.CommissionRateFor(billingdomain.PlanFree); !got.Equal(decimal.NewFromFloat(0.08)) {
		t.Fatalf("free plan commission = %s, want 0.08", got)
	}
	if got := p.TrialDays(); got != 7 {
		t.Fatalf("trial days = %d, want 7", got)
	}
}

func TestProrationBehaviorFor(t *testing.T) {
	p := New(DefaultConfig())

	cases := []struct {
		current billingdomain.Plan
		target  billingdomain.Plan
		want    ProrationBehavior
	}{
		{billingdomain.PlanFree, billingdomain.PlanStarter, ProrationCreateProrations},
		{billingdomain.PlanFree, billingdomain.PlanPro, ProrationCreateProrations},
		{billingdomain.PlanStarter, billingdomain.PlanPro, ProrationCreateProrations},
		{billingdomain.PlanPro, billingdomain.PlanStarter, ProrationNone},
		{billingdomain.PlanPro, billingdomain.PlanFree, ProrationNone},
		{billingdomain.PlanStarter, billingdomain.PlanFree, ProrationNone},
		{billingdomain.PlanStarter, billingdomain.PlanStarter, ProrationNone},
		{billingdomain.PlanFree, billingdomain.PlanFree, ProrationNone},
		{billingdomain.PlanPro, billingdomain.PlanPro, ProrationNone},
	}
	for _, tc := range cases {
		if got := p.ProrationBehaviorFor(tc.current, tc.target); got != tc.want {
			t.Errorf("ProrationBehaviorFor(%s, %s) = %s, want %s", tc.current, tc.target, got, tc.want)
		}
	}
}

func TestProrationBehaviorForUnknownPlanRanksAsFree(t *testing.T) {
	p := New(DefaultConfig())

	if got := p.ProrationBehaviorFor(billingdomain.Plan("legacy"), billingdomain.PlanStarter); got != ProrationCreateProrations {
		t.Fatalf("unknown -> starter = %s, want create_prorations", got)
	}
	if got := p.ProrationBehaviorFor(billingdomain.PlanStarter, billingdomain.Plan("legacy")); got != ProrationNone {
		t.Fatalf("starter -> unknown = %s, want none", got)
	}
}

func TestTrialEligible(t *testing.T) {
	p := New(DefaultConfig())

	if !p.TrialEligible(false) {
		t.Fatal("tenant without history should be trial eligible")
	}
	if p.TrialEligible(true) {
		t.Fatal("tenant with history must never get a second trial")
	}
}
