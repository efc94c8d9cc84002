package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	auditdomain "github.com/smallbiznis/bizboard/internal/audit/domain"
	billingdomain "github.com/smallbiznis/bizboard/internal/billing/domain"
	"github.com/smallbiznis/bizboard/internal/billing/gateway"
	"github.com/smallbiznis/bizboard/internal/billing/gateway/gatewaytest"
	"github.com/smallbiznis/bizboard/internal/billing/policy"
	"github.com/smallbiznis/bizboard/internal/billing/repository"
	"github.com/smallbiznis/bizboard/internal/config"
	"github.com/smallbiznis/bizboard/internal/events"
	"github.com/smallbiznis/bizboard/internal/observability/metrics"
)

type auditStub struct{}

func (auditStub) AuditLog(ctx context.Context, orgID *snowflake.ID, actorID string, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func (auditStub) List(ctx context.Context, filter auditdomain.ListFilter) ([]*auditdomain.AuditLog, error) {
	return nil, nil
}

type fixture struct {
	svc    billingdomain.Service
	repo   *repository.Repository
	fake   *gatewaytest.Fake
	db     *gorm.DB
	policy *policy.Policy
}

var fixtureCounter int

func testConfig() config.Config {
	return config.Config{
		Stripe: config.StripeConfig{
			ReturnURL: "https://app.example.test/settings/billing",
			Prices: map[string]string{
				"starter:monthly": "price_starter_m",
				"starter:annual":  "price_starter_y",
				"pro:monthly":     "price_pro_m",
				"pro:annual":      "price_pro_y",
			},
		},
	}
}

func setupFixture(t *testing.T, fake *gatewaytest.Fake) *fixture {
	t.Helper()
	return setupFixtureWithPolicy(t, fake, policy.New(policy.DefaultConfig()))
}

func setupFixtureWithPolicy(t *testing.T, fake *gatewaytest.Fake, pol *policy.Policy) *fixture {
	t.Helper()
	fixtureCounter++
	dsn := fmt.Sprintf("file:billing_service_%d?mode=memory&cache=shared", fixtureCounter)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&billingdomain.BillingRecord{}, &billingdomain.SubscriptionHistory{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Exec(`CREATE TABLE IF NOT EXISTS billing_events (
		id INTEGER PRIMARY KEY,
		org_id INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		dedupe_key TEXT,
		published BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`).Error; err != nil {
		t.Fatalf("create billing_events: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS uq_billing_events_dedupe ON billing_events (org_id, dedupe_key)`).Error; err != nil {
		t.Fatalf("create dedupe index: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	repo := repository.New(db, node)

	svc := NewService(ServiceParam{
		Log:      zap.NewNop(),
		Cfg:      testConfig(),
		Repo:     repo,
		Gateway:  fake,
		Policy:   pol,
		Outbox:   events.NewOutbox(db, node),
		AuditSvc: auditStub{},
		Metrics:  metrics.Billing(),
	})

	return &fixture{svc: svc, repo: repo, fake: fake, db: db, policy: pol}
}

func mustEnsure(t *testing.T, fx *fixture, orgID snowflake.ID) *billingdomain.BillingRecord {
	t.Helper()
	record, err := fx.repo.Ensure(context.Background(), orgID, fx.policy.CommissionRateFor(billingdomain.PlanFree))
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	return record
}

func seedPaidRecord(t *testing.T, fx *fixture, orgID snowflake.ID, plan billingdomain.Plan, customerID, subscriptionID string) {
	t.Helper()
	ctx := context.Background()
	mustEnsure(t, fx, orgID)
	if err := fx.repo.SetCustomerID(ctx, orgID, customerID); err != nil {
		t.Fatalf("set customer: %v", err)
	}
	if err := fx.repo.ApplyPlanChange(ctx, billingdomain.PlanChange{
		OrgID:          orgID,
		ExpectedPlan:   billingdomain.PlanFree,
		NewPlan:        plan,
		NewStatus:      billingdomain.PlanStatusActive,
		CommissionRate: decimal.Zero,
		SubscriptionID: &subscriptionID,
		RecordHistory:  true,
	}); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
}

func mustGet(t *testing.T, fx *fixture, orgID snowflake.ID) *billingdomain.BillingRecord {
	t.Helper()
	record, err := fx.repo.Get(context.Background(), orgID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return record
}

func TestInitiateCheckoutCreatesSessionWithTrial(t *testing.T) {
	fx := setupFixture(t, gatewaytest.New())
	mustEnsure(t, fx, 1)

	resp, err := fx.svc.InitiateCheckout(context.Background(), billingdomain.InitiateCheckoutRequest{
		OrgID:         1,
		Plan:          billingdomain.PlanStarter,
		BillingPeriod: billingdomain.BillingPeriodMonthly,
		Email:         "owner@example.test",
		DisplayName:   "Example Org",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if resp.SessionID == "" || resp.ClientSecret == "" {
		t.Fatalf("incomplete session handle: %+v", resp)
	}
	if resp.TrialDays != 14 {
		t.Fatalf("trial days = %d, want 14", resp.TrialDays)
	}
	if fx.fake.LastCheckout.PriceID != "price_starter_m" {
		t.Fatalf("price = %s, want price_starter_m", fx.fake.LastCheckout.PriceID)
	}
	if fx.fake.LastCheckout.TrialDays != 14 {
		t.Fatalf("checkout trial days = %d, want 14", fx.fake.LastCheckout.TrialDays)
	}

	// The customer id is persisted eagerly; the plan only moves once the
	// collaborator confirms activation.
	record := mustGet(t, fx, 1)
	if record.ProcessorCustomerID == nil {
		t.Fatal("customer id was not persisted")
	}
	if record.Plan != billingdomain.PlanFree {
		t.Fatalf("plan = %s, checkout must not mutate the plan", record.Plan)
	}
	if record.ProcessorSubscriptionID != nil {
		t.Fatal("checkout must not record a subscription reference")
	}
}

func TestInitiateCheckoutAlreadySubscribed(t *testing.T) {
	fake := gatewaytest.New()
	fx := setupFixture(t, fake)
	seedPaidRecord(t, fx, 2, billingdomain.PlanStarter, "cus_001", "sub_001")
	before := fake.CallCount()

	_, err := fx.svc.InitiateCheckout(context.Background(), billingdomain.InitiateCheckoutRequest{
		OrgID:         2,
		Plan:          billingdomain.PlanStarter,
		BillingPeriod: billingdomain.BillingPeriodMonthly,
	})
	if !errors.Is(err, billingdomain.ErrAlreadySubscribed) {
		t.Fatalf("err = %v, want ErrAlreadySubscribed", err)
	}
	if fake.CallCount() != before {
		t.Fatal("no-op rejection must not touch the gateway")
	}
}

func TestInitiateCheckoutPriceNotConfigured(t *testing.T) {
	fake := gatewaytest.New()
	fx := setupFixture(t, fake)
	mustEnsure(t, fx, 3)

	svc := fx.svc.(*Service)
	svc.cfg.Stripe.Prices = map[string]string{}

	_, err := svc.InitiateCheckout(context.Background(), billingdomain.InitiateCheckoutRequest{
		OrgID:         3,
		Plan:          billingdomain.PlanPro,
		BillingPeriod: billingdomain.BillingPeriodAnnual,
	})
	if !errors.Is(err, billingdomain.ErrPriceNotConfigured) {
		t.Fatalf("err = %v, want ErrPriceNotConfigured", err)
	}
	if fake.CallCount() != 0 {
		t.Fatal("missing price must fail before any gateway call")
	}
}

func TestInitiateCheckoutRejectsFreePlan(t *testing.T) {
	fake := gatewaytest.New()
	fx := setupFixture(t, fake)
	mustEnsure(t, fx, 4)

	_, err := fx.svc.InitiateCheckout(context.Background(), billingdomain.InitiateCheckoutRequest{
		OrgID:         4,
		Plan:          billingdomain.PlanFree,
		BillingPeriod: billingdomain.BillingPeriodMonthly,
	})
	if !errors.Is(err, billingdomain.ErrInvalidPlan) {
		t.Fatalf("err = %v, want ErrInvalidPlan", err)
	}
	if fake.CallCount() != 0 {
		t.Fatal("invalid plan must fail before any gateway call")
	}
}

func TestInitiateCheckoutReplacesStaleCustomer(t *testing.T) {
	fake := gatewaytest.New()
	fx := setupFixture(t, fake)
	mustEnsure(t, fx, 5)
	if err := fx.repo.SetCustomerID(context.Background(), 5, "cus_gone"); err != nil {
		t.Fatalf("set customer: %v", err)
	}

	resp, err := fx.svc.InitiateCheckout(context.Background(), billingdomain.InitiateCheckoutRequest{
		OrgID:         5,
		Plan:          billingdomain.PlanStarter,
		BillingPeriod: billingdomain.BillingPeriodMonthly,
		Email:         "owner@example.test",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("expected a session despite the stale customer")
	}

	record := mustGet(t, fx, 5)
	if record.ProcessorCustomerID == nil || *record.ProcessorCustomerID == "cus_gone" {
		t.Fatalf("stale customer id was not replaced: %v", record.ProcessorCustomerID)
	}
}

func TestInitiateCheckoutNoSecondTrial(t *testing.T) {
	fake := gatewaytest.New()
	fx := setupFixture(t, fake)
	ctx := context.Background()

	// A past activation burns trial eligibility even after returning to
	// the free plan.
	seedPaidRecord(t, fx, 6, billingdomain.PlanStarter, "cus_t", "sub_t")
	if _, err := fx.repo.Heal(ctx, 6, decimal.NewFromFloat(0.05)); err != nil {
		t.Fatalf("heal: %v", err)
	}

	resp, err := fx.svc.InitiateCheckout(ctx, billingdomain.InitiateCheckoutRequest{
		OrgID:         6,
		Plan:          billingdomain.PlanPro,
		BillingPeriod: billingdomain.BillingPeriodMonthly,
		Email:         "owner@example.test",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if resp.TrialDays != 0 {
		t.Fatalf("trial days = %d, want 0 after prior activation", resp.TrialDays)
	}
}

func TestConfirmActivation(t *testing.T) {
	fx := setupFixture(t, gatewaytest.New())
	mustEnsure(t, fx, 7)
	ctx := context.Background()

	end := time.Now().UTC().Add(30 * 24 * time.Hour)
	req := billingdomain.ConfirmActivationRequest{
		OrgID:                   7,
		Plan:                    billingdomain.PlanStarter,
		ProcessorSubscriptionID: "sub_new",
		CurrentPeriodEnd:        &end,
	}
	if err := fx.svc.ConfirmActivation(ctx, req); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	record := mustGet(t, fx, 7)
	if record.Plan != billingdomain.PlanStarter || record.PlanStatus != billingdomain.PlanStatusActive {
		t.Fatalf("record = %s/%s, want starter/active", record.Plan, record.PlanStatus)
	}
	if record.ProcessorSubscriptionID == nil || *record.ProcessorSubscriptionID != "sub_new" {
		t.Fatalf("subscription id = %v, want sub_new", record.ProcessorSubscriptionID)
	}
	if !record.CommissionRate.IsZero() {
		t.Fatalf("commission = %s, want 0 on a paid plan", record.CommissionRate)
	}

	history, err := fx.repo.ListHistory(ctx, 7)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history))
	}

	// Duplicate webhook delivery is a no-op.
	if err := fx.svc.ConfirmActivation(ctx, req); err != nil {
		t.Fatalf("duplicate confirm: %v", err)
	}
	history, _ = fx.repo.ListHistory(ctx, 7)
	if len(history) != 1 {
		t.Fatalf("history rows after duplicate = %d, want 1", len(history))
	}
}

func TestChangePlanUpgradeUsesProration(t *testing.T) {
	end := time.Now().UTC().Add(20 * 24 * time.Hour)
	fake := gatewaytest.Seeded("cus_001", "sub_001", "price_starter_m", "month", end)
	fx := setupFixture(t, fake)
	seedPaidRecord(t, fx, 8, billingdomain.PlanStarter, "cus_001", "sub_001")

	resp, err := fx.svc.ChangePlan(context.Background(), billingdomain.ChangePlanRequest{
		OrgID: 8,
		Plan:  billingdomain.PlanPro,
	})
	if err != nil {
		t.Fatalf("change plan: %v", err)
	}
	if fake.LastProration != "create_prorations" {
		t.Fatalf("proration = %s, want create_prorations", fake.LastProration)
	}
	if resp.Plan != billingdomain.PlanPro {
		t.Fatalf("response plan = %s, want pro", resp.Plan)
	}
	if resp.CancelAtPeriodEnd {
		t.Fatal("plan change must clear pending cancellation")
	}
	// The monthly interval is preserved when swapping prices.
	if resp.BillingPeriod != string(billingdomain.BillingPeriodMonthly) {
		t.Fatalf("billing period = %s, want monthly", resp.BillingPeriod)
	}

	record := mustGet(t, fx, 8)
	if record.Plan != billingdomain.PlanPro {
		t.Fatalf("persisted plan = %s, want pro", record.Plan)
	}
	history, _ := fx.repo.ListHistory(context.Background(), 8)
	if len(history) != 2 {
		t.Fatalf("history rows = %d, want 2", len(history))
	}
	if history[0].Plan != billingdomain.PlanPro {
		t.Fatalf("latest history = %s, want pro", history[0].Plan)
	}
}

func TestChangePlanDowngradeSkipsProration(t *testing.T) {
	end := time.Now().UTC().Add(10 * 24 * time.Hour)
	fake := gatewaytest.Seeded("cus_002", "sub_002", "price_pro_y", "year", end)
	fx := setupFixture(t, fake)
	seedPaidRecord(t, fx, 9, billingdomain.PlanPro, "cus_002", "sub_002")

	resp, err := fx.svc.ChangePlan(context.Background(), billingdomain.ChangePlanRequest{
		OrgID: 9,
		Plan:  billingdomain.PlanStarter,
	})
	if err != nil {
		t.Fatalf("change plan: %v", err)
	}
	if fake.LastProration != "none" {
		t.Fatalf("proration = %s, want none", fake.LastProration)
	}
	// Annual interval preserved: the starter annual price is selected.
	if got := fx.fake.LastCheckout.PriceID; got != "" {
		t.Fatalf("unexpected checkout during plan change: %s", got)
	}
	if resp.BillingPeriod != string(billingdomain.BillingPeriodAnnual) {
		t.Fatalf("billing period = %s, want annual", resp.BillingPeriod)
	}
}

func TestChangePlanSamePlanIsNoOp(t *testing.T) {
	fake := gatewaytest.New()
	fx := setupFixture(t, fake)
	seedPaidRecord(t, fx, 10, billingdomain.PlanStarter, "cus_003", "sub_003")
	before := fake.CallCount()

	_, err := fx.svc.ChangePlan(context.Background(), billingdomain.ChangePlanRequest{
		OrgID: 10,
		Plan:  billingdomain.PlanStarter,
	})
	if !errors.Is(err, billingdomain.ErrPlanUnchanged) {
		t.Fatalf("err = %v, want ErrPlanUnchanged", err)
	}
	if fake.CallCount() != before {
		t.Fatal("no-op rejection must not touch the gateway")
	}
}

func TestChangePlanWithoutSubscription(t *testing.T) {
	fake := gatewaytest.New()
	fx := setupFixture(t, fake)
	mustEnsure(t, fx, 11)

	_, err := fx.svc.ChangePlan(context.Background(), billingdomain.ChangePlanRequest{
		OrgID: 11,
		Plan:  billingdomain.PlanPro,
	})
	if !errors.Is(err, billingdomain.ErrSubscriptionNotFound) {
		t.Fatalf("err = %v, want ErrSubscriptionNotFound", err)
	}
	if fake.CallCount() != 0 {
		t.Fatal("rejection must not touch the gateway")
	}
}

func TestChangePlanHealsStaleReference(t *testing.T) {
	fake := gatewaytest.New()
	fx := setupFixture(t, fake)
	seedPaidRecord(t, fx, 12, billingdomain.PlanStarter, "cus_004", "sub_gone")

	resp, err := fx.svc.ChangePlan(context.Background(), billingdomain.ChangePlanRequest{
		OrgID: 12,
		Plan:  billingdomain.PlanPro,
	})
	if err != nil {
		t.Fatalf("change plan: %v", err)
	}
	if !resp.Healed {
		t.Fatal("expected a healed response")
	}
	if resp.Plan != billingdomain.PlanFree || resp.Message == "" {
		t.Fatalf("healed response = %+v", resp)
	}

	record := mustGet(t, fx, 12)
	if record.Plan != billingdomain.PlanFree || record.ProcessorSubscriptionID != nil {
		t.Fatalf("record not reset: %+v", record)
	}
}

func TestChangePlanHealsWhenCancellationClearHitsStaleReference(t *testing.T) {
	// The subscription can vanish at the processor between the item update
	// and the cancellation clear; a stale reference there resets the
	// tenant like any other stale reference on this path.
	end := time.Now().UTC().Add(20 * 24 * time.Hour)
	fake := gatewaytest.Seeded("cus_012", "sub_012", "price_starter_m", "month", end)
	fake.ErrOn = map[string]error{"SetCancelAtPeriodEnd": gateway.ErrStaleReference}
	fx := setupFixture(t, fake)
	seedPaidRecord(t, fx, 24, billingdomain.PlanStarter, "cus_012", "sub_012")

	resp, err := fx.svc.ChangePlan(context.Background(), billingdomain.ChangePlanRequest{
		OrgID: 24,
		Plan:  billingdomain.PlanPro,
	})
	if err != nil {
		t.Fatalf("change plan: %v", err)
	}
	if !resp.Healed {
		t.Fatal("expected a healed response")
	}

	record := mustGet(t, fx, 24)
	if record.Plan != billingdomain.PlanFree || record.ProcessorSubscriptionID != nil {
		t.Fatalf("record not reset: %+v", record)
	}
}

func TestCancelAndResume(t *testing.T) {
	end := time.Now().UTC().Add(15 * 24 * time.Hour)
	fake := gatewaytest.Seeded("cus_005", "sub_005", "price_starter_m", "month", end)
	fx := setupFixture(t, fake)
	seedPaidRecord(t, fx, 13, billingdomain.PlanStarter, "cus_005", "sub_005")
	ctx := context.Background()

	resp, err := fx.svc.CancelSubscription(ctx, 13)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !resp.CancelAtPeriodEnd {
		t.Fatal("cancel must set cancel_at_period_end remotely")
	}
	// Cancellation never mutates the local plan; access runs to period end.
	record := mustGet(t, fx, 13)
	if record.Plan != billingdomain.PlanStarter {
		t.Fatalf("plan = %s, cancel must not change it", record.Plan)
	}
	if record.ProcessorSubscriptionID == nil {
		t.Fatal("cancel must keep the subscription reference")
	}

	// Cancel is idempotent.
	if _, err := fx.svc.CancelSubscription(ctx, 13); err != nil {
		t.Fatalf("second cancel: %v", err)
	}

	resumed, err := fx.svc.ResumeSubscription(ctx, 13)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.CancelAtPeriodEnd {
		t.Fatal("resume must clear cancel_at_period_end")
	}
	if resumed.PlanStatus != billingdomain.PlanStatusActive {
		t.Fatalf("status = %s, want active after resume", resumed.PlanStatus)
	}
}

func TestCancelWithoutSubscription(t *testing.T) {
	fake := gatewaytest.New()
	fx := setupFixture(t, fake)
	mustEnsure(t, fx, 14)

	_, err := fx.svc.CancelSubscription(context.Background(), 14)
	if !errors.Is(err, billingdomain.ErrSubscriptionNotFound) {
		t.Fatalf("err = %v, want ErrSubscriptionNotFound", err)
	}
	if fake.CallCount() != 0 {
		t.Fatal("rejection must not touch the gateway")
	}
}

func TestGetStatusLocalOnlyForFreeTenant(t *testing.T) {
	fake := gatewaytest.New()
	fx := setupFixture(t, fake)
	mustEnsure(t, fx, 15)

	resp, err := fx.svc.GetStatus(context.Background(), 15)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if resp.Plan != billingdomain.PlanFree || resp.HasSubscription {
		t.Fatalf("unexpected status: %+v", resp)
	}
	if resp.CommissionRate != "0.05" {
		t.Fatalf("commission = %s, want 0.05", resp.CommissionRate)
	}
	if fake.CallCount() != 0 {
		t.Fatal("a tenant without a subscription must not hit the gateway")
	}
}

func TestGetStatusReportsConfiguredFreeRate(t *testing.T) {
	// A deployment with a non-default free-plan rate must see that rate on
	// freshly created records, not a hardcoded 5%.
	fake := gatewaytest.New()
	pol := policy.New(policy.Config{
		DefaultCommissionRate: decimal.NewFromFloat(0.10),
		TrialDays:             14,
	})
	fx := setupFixtureWithPolicy(t, fake, pol)
	record := mustEnsure(t, fx, 27)

	if !record.CommissionRate.Equal(pol.CommissionRateFor(billingdomain.PlanFree)) {
		t.Fatalf("stored commission = %s, want 0.1", record.CommissionRate)
	}

	resp, err := fx.svc.GetStatus(context.Background(), 27)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if resp.CommissionRate != "0.1" {
		t.Fatalf("commission = %s, want 0.1", resp.CommissionRate)
	}
}

func TestGetStatusMergesRemoteObservations(t *testing.T) {
	end := time.Now().UTC().Add(5 * 24 * time.Hour)
	trialEnd := end.Add(-24 * time.Hour)
	fake := gatewaytest.New()
	fake.AddCustomer(gateway.Customer{ID: "cus_006"})
	fake.AddSubscription(gateway.Subscription{
		ID:                "sub_006",
		Status:            "trialing",
		CancelAtPeriodEnd: true,
		CurrentPeriodEnd:  end,
		TrialEnd:          &trialEnd,
		ItemID:            "si_006",
		PriceID:           "price_pro_y",
		Interval:          "year",
	})
	fx := setupFixture(t, fake)
	seedPaidRecord(t, fx, 16, billingdomain.PlanPro, "cus_006", "sub_006")

	resp, err := fx.svc.GetStatus(context.Background(), 16)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !resp.CancelAtPeriodEnd {
		t.Fatal("remote cancel flag was not merged")
	}
	if resp.TrialEnd == nil {
		t.Fatal("remote trial end was not merged")
	}
	if resp.BillingPeriod != string(billingdomain.BillingPeriodAnnual) {
		t.Fatalf("billing period = %s, want annual", resp.BillingPeriod)
	}

	// Observations are not persisted.
	record := mustGet(t, fx, 16)
	if record.PlanStatus != billingdomain.PlanStatusActive {
		t.Fatalf("persisted status = %s, observations must not persist", record.PlanStatus)
	}
}

func TestGetStatusHealsStaleReference(t *testing.T) {
	fake := gatewaytest.New()
	fx := setupFixture(t, fake)
	seedPaidRecord(t, fx, 17, billingdomain.PlanPro, "cus_007", "sub_gone")
	ctx := context.Background()

	resp, err := fx.svc.GetStatus(ctx, 17)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !resp.Healed {
		t.Fatal("expected a healed response")
	}
	if resp.Plan != billingdomain.PlanFree || resp.PlanStatus != billingdomain.PlanStatusActive {
		t.Fatalf("healed status = %s/%s, want free/active", resp.Plan, resp.PlanStatus)
	}
	if resp.CommissionRate != "0.05" {
		t.Fatalf("commission = %s, want default after heal", resp.CommissionRate)
	}
	if resp.Message == "" {
		t.Fatal("healed response must explain what happened")
	}

	// The next read is local only and no longer healed.
	calls := fake.CallCount()
	again, err := fx.svc.GetStatus(ctx, 17)
	if err != nil {
		t.Fatalf("second status: %v", err)
	}
	if again.Healed {
		t.Fatal("second read must not report healing")
	}
	if fake.CallCount() != calls {
		t.Fatal("healed tenant must not hit the gateway again")
	}
}

func TestGetStatusPropagatesTransientFailure(t *testing.T) {
	end := time.Now().UTC().Add(15 * 24 * time.Hour)
	fake := gatewaytest.Seeded("cus_008", "sub_008", "price_starter_m", "month", end)
	fx := setupFixture(t, fake)
	seedPaidRecord(t, fx, 18, billingdomain.PlanStarter, "cus_008", "sub_008")

	fake.Err = &gateway.TransientError{Op: "subscription.retrieve", Err: errors.New("network down")}

	_, err := fx.svc.GetStatus(context.Background(), 18)
	if !gateway.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}

	// A transient blip must not reset the tenant.
	record := mustGet(t, fx, 18)
	if record.Plan != billingdomain.PlanStarter || record.ProcessorSubscriptionID == nil {
		t.Fatalf("record mutated on transient failure: %+v", record)
	}
}

func TestCreatePortalSession(t *testing.T) {
	end := time.Now().UTC().Add(15 * 24 * time.Hour)
	fake := gatewaytest.Seeded("cus_009", "sub_009", "price_starter_m", "month", end)
	fx := setupFixture(t, fake)
	seedPaidRecord(t, fx, 19, billingdomain.PlanStarter, "cus_009", "sub_009")

	resp, err := fx.svc.CreatePortalSession(context.Background(), 19)
	if err != nil {
		t.Fatalf("portal: %v", err)
	}
	if resp.URL == "" {
		t.Fatal("expected a portal url")
	}
}

func TestCreatePortalSessionWithoutCustomer(t *testing.T) {
	fake := gatewaytest.New()
	fx := setupFixture(t, fake)
	mustEnsure(t, fx, 20)

	_, err := fx.svc.CreatePortalSession(context.Background(), 20)
	if !errors.Is(err, billingdomain.ErrSubscriptionNotFound) {
		t.Fatalf("err = %v, want ErrSubscriptionNotFound", err)
	}
	if fake.CallCount() != 0 {
		t.Fatal("rejection must not touch the gateway")
	}
}

func TestApplyExternalStatus(t *testing.T) {
	fx := setupFixture(t, gatewaytest.New())
	seedPaidRecord(t, fx, 21, billingdomain.PlanStarter, "cus_010", "sub_010")
	ctx := context.Background()

	if err := fx.svc.ApplyExternalStatus(ctx, 21, billingdomain.PlanStatusPastDue); err != nil {
		t.Fatalf("apply status: %v", err)
	}
	record := mustGet(t, fx, 21)
	if record.PlanStatus != billingdomain.PlanStatusPastDue {
		t.Fatalf("status = %s, want past_due", record.PlanStatus)
	}
	// Plan and subscription reference are untouched by status updates.
	if record.Plan != billingdomain.PlanStarter || record.ProcessorSubscriptionID == nil {
		t.Fatalf("status update mutated other fields: %+v", record)
	}

	if err := fx.svc.ApplyExternalStatus(ctx, 21, billingdomain.PlanStatus("weird")); !errors.Is(err, billingdomain.ErrInvalidPlanStatus) {
		t.Fatalf("err = %v, want ErrInvalidPlanStatus", err)
	}
}
