package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	auditdomain "github.com/smallbiznis/bizboard/internal/audit/domain"
	billingdomain "github.com/smallbiznis/bizboard/internal/billing/domain"
	"github.com/smallbiznis/bizboard/internal/billing/gateway"
	"github.com/smallbiznis/bizboard/internal/billing/policy"
	"github.com/smallbiznis/bizboard/internal/config"
	"github.com/smallbiznis/bizboard/internal/events"
	obscontext "github.com/smallbiznis/bizboard/internal/observability/context"
	"github.com/smallbiznis/bizboard/internal/observability/metrics"
)

const healedMessage = "Your subscription could not be found at the payment provider. Billing has been reset to the free plan."

type ServiceParam struct {
	fx.In

	Log      *zap.Logger
	Cfg      config.Config
	Repo     billingdomain.Repository
	Gateway  gateway.Gateway
	Policy   *policy.Policy
	Outbox   *events.Outbox
	AuditSvc auditdomain.Service
	Metrics  *metrics.BillingMetrics
}

// Service orchestrates checkout, plan lifecycle and reconciliation against
// the payment processor. The local record is only mutated after the
// processor confirms the corresponding remote change.
type Service struct {
	log      *zap.Logger
	cfg      config.Config
	repo     billingdomain.Repository
	gateway  gateway.Gateway
	policy   *policy.Policy
	outbox   *events.Outbox
	auditSvc auditdomain.Service
	metrics  *metrics.BillingMetrics
}

var _ billingdomain.Service = (*Service)(nil)

func NewService(p ServiceParam) billingdomain.Service {
	return &Service{
		log:      p.Log.Named("billing.service"),
		cfg:      p.Cfg,
		repo:     p.Repo,
		gateway:  p.Gateway,
		policy:   p.Policy,
		outbox:   p.Outbox,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) InitiateCheckout(ctx context.Context, req billingdomain.InitiateCheckoutRequest) (*billingdomain.CheckoutResponse, error) {
	if !req.Plan.Valid() || !req.Plan.Paid() {
		return nil, billingdomain.ErrInvalidPlan
	}
	if !req.BillingPeriod.Valid() {
		return nil, billingdomain.ErrInvalidBillingPeriod
	}

	record, err := s.repo.Get(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	if record.Plan == req.Plan && record.PlanStatus == billingdomain.PlanStatusActive {
		return nil, billingdomain.ErrAlreadySubscribed
	}

	priceID, err := s.priceFor(req.Plan, req.BillingPeriod)
	if err != nil {
		return nil, err
	}

	customerID, err := s.resolveCustomer(ctx, record, req.Email, req.DisplayName)
	if err != nil {
		return nil, err
	}

	var trialDays int64
	hasHistory, err := s.repo.HasHistory(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	if s.policy.TrialEligible(hasHistory) {
		trialDays = s.policy.TrialDays()
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, gateway.CreateCheckoutSessionRequest{
		CustomerID: customerID,
		PriceID:    priceID,
		TrialDays:  trialDays,
		ReturnURL:  s.cfg.Stripe.ReturnURL,
		Metadata: map[string]string{
			"org_id":         req.OrgID.String(),
			"plan":           string(req.Plan),
			"billing_period": string(req.BillingPeriod),
		},
	})
	if err != nil {
		s.noteGatewayError(err)
		return nil, err
	}

	s.metrics.IncCheckoutSession(string(req.Plan))
	s.publish(ctx, events.Event{
		OrgID: req.OrgID,
		Type:  events.EventCheckoutInitiated,
		Payload: map[string]any{
			"plan":           string(req.Plan),
			"billing_period": string(req.BillingPeriod),
			"session_id":     session.ID,
		},
		DedupeKey: "checkout:" + session.ID,
	})
	s.audit(ctx, req.OrgID, "billing.checkout_initiated", map[string]any{
		"plan":           string(req.Plan),
		"billing_period": string(req.BillingPeriod),
	})

	s.log.Info("checkout session created",
		zap.String("org_id", req.OrgID.String()),
		zap.String("plan", string(req.Plan)),
		zap.Int64("trial_days", trialDays),
	)

	return &billingdomain.CheckoutResponse{
		SessionID:    session.ID,
		ClientSecret: session.ClientSecret,
		TrialDays:    trialDays,
	}, nil
}

func (s *Service) CancelSubscription(ctx context.Context, orgID snowflake.ID) (*billingdomain.StatusResponse, error) {
	record, err := s.repo.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if record.ProcessorSubscriptionID == nil {
		return nil, billingdomain.ErrSubscriptionNotFound
	}
	subscriptionID := *record.ProcessorSubscriptionID

	sub, err := s.gateway.SetCancelAtPeriodEnd(ctx, subscriptionID, true)
	if err != nil {
		if errors.Is(err, gateway.ErrStaleReference) {
			return s.heal(ctx, record, subscriptionID)
		}
		s.noteGatewayError(err)
		return nil, err
	}

	s.metrics.IncLifecycleAction("cancel")
	s.publish(ctx, events.Event{
		OrgID:     orgID,
		Type:      events.EventSubscriptionCanceled,
		Payload:   map[string]any{"subscription_id": subscriptionID, "plan": string(record.Plan)},
		DedupeKey: "cancel:" + subscriptionID,
	})
	s.audit(ctx, orgID, "billing.subscription_canceled", map[string]any{"plan": string(record.Plan)})

	resp := s.statusFromRecord(record)
	mergeSubscription(resp, sub)
	return resp, nil
}

func (s *Service) ResumeSubscription(ctx context.Context, orgID snowflake.ID) (*billingdomain.StatusResponse, error) {
	record, err := s.repo.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if record.ProcessorSubscriptionID == nil {
		return nil, billingdomain.ErrSubscriptionNotFound
	}
	subscriptionID := *record.ProcessorSubscriptionID

	sub, err := s.gateway.SetCancelAtPeriodEnd(ctx, subscriptionID, false)
	if err != nil {
		if errors.Is(err, gateway.ErrStaleReference) {
			return s.heal(ctx, record, subscriptionID)
		}
		s.noteGatewayError(err)
		return nil, err
	}

	// The next invoice settles the real status; until then the tenant is
	// treated as active again.
	if err := s.repo.SetPlanStatus(ctx, orgID, billingdomain.PlanStatusActive); err != nil {
		return nil, err
	}
	record.PlanStatus = billingdomain.PlanStatusActive

	s.metrics.IncLifecycleAction("resume")
	s.publish(ctx, events.Event{
		OrgID:     orgID,
		Type:      events.EventSubscriptionResumed,
		Payload:   map[string]any{"subscription_id": subscriptionID, "plan": string(record.Plan)},
		DedupeKey: "resume:" + subscriptionID,
	})
	s.audit(ctx, orgID, "billing.subscription_resumed", map[string]any{"plan": string(record.Plan)})

	resp := s.statusFromRecord(record)
	mergeSubscription(resp, sub)
	return resp, nil
}

func (s *Service) ChangePlan(ctx context.Context, req billingdomain.ChangePlanRequest) (*billingdomain.StatusResponse, error) {
	if !req.Plan.Valid() {
		return nil, billingdomain.ErrInvalidPlan
	}

	record, err := s.repo.Get(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	if record.Plan == req.Plan {
		return nil, billingdomain.ErrPlanUnchanged
	}
	if record.ProcessorSubscriptionID == nil {
		return nil, billingdomain.ErrSubscriptionNotFound
	}
	// Dropping to free is a cancellation, not a price swap.
	if !req.Plan.Paid() {
		return nil, billingdomain.ErrInvalidPlan
	}
	subscriptionID := *record.ProcessorSubscriptionID

	sub, err := s.gateway.RetrieveSubscription(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, gateway.ErrStaleReference) {
			return s.heal(ctx, record, subscriptionID)
		}
		s.noteGatewayError(err)
		return nil, err
	}

	// Keep the tenant's current renewal interval when swapping prices.
	period := periodFromInterval(sub.Interval)
	if period == "" {
		period = billingdomain.BillingPeriodMonthly
	}
	priceID, err := s.priceFor(req.Plan, period)
	if err != nil {
		return nil, err
	}

	behavior := s.policy.ProrationBehaviorFor(record.Plan, req.Plan)
	updated, err := s.gateway.UpdateSubscriptionItem(ctx, subscriptionID, sub.ItemID, priceID, string(behavior))
	if err != nil {
		if errors.Is(err, gateway.ErrStaleReference) {
			return s.heal(ctx, record, subscriptionID)
		}
		s.noteGatewayError(err)
		return nil, err
	}

	// A plan change implies the tenant wants to stay; clear any pending
	// cancellation on the same subscription.
	if cleared, clearErr := s.gateway.SetCancelAtPeriodEnd(ctx, subscriptionID, false); clearErr != nil {
		if errors.Is(clearErr, gateway.ErrStaleReference) {
			return s.heal(ctx, record, subscriptionID)
		}
		s.log.Warn("failed to clear pending cancellation after plan change",
			zap.String("org_id", req.OrgID.String()),
			zap.Error(clearErr),
		)
	} else {
		updated = cleared
	}

	periodEnd := updated.CurrentPeriodEnd
	if err := s.repo.ApplyPlanChange(ctx, billingdomain.PlanChange{
		OrgID:                  req.OrgID,
		ExpectedPlan:           record.Plan,
		ExpectedSubscriptionID: record.ProcessorSubscriptionID,
		NewPlan:                req.Plan,
		NewStatus:              billingdomain.PlanStatusActive,
		CommissionRate:         s.policy.CommissionRateFor(req.Plan),
		SubscriptionID:         record.ProcessorSubscriptionID,
		CurrentPeriodEnd:       &periodEnd,
		RecordHistory:          true,
	}); err != nil {
		return nil, err
	}

	s.metrics.IncPlanChange(string(record.Plan), string(req.Plan))
	s.publish(ctx, events.Event{
		OrgID: req.OrgID,
		Type:  events.EventPlanChanged,
		Payload: events.PlanChangePayload{
			OrgID:          req.OrgID.String(),
			FromPlan:       string(record.Plan),
			ToPlan:         string(req.Plan),
			SubscriptionID: subscriptionID,
		}.ToMap(),
		DedupeKey: fmt.Sprintf("plan_change:%s:%s", subscriptionID, req.Plan),
	})
	s.audit(ctx, req.OrgID, "billing.plan_changed", map[string]any{
		"from_plan": string(record.Plan),
		"to_plan":   string(req.Plan),
		"proration": string(behavior),
	})

	s.log.Info("plan changed",
		zap.String("org_id", req.OrgID.String()),
		zap.String("from_plan", string(record.Plan)),
		zap.String("to_plan", string(req.Plan)),
		zap.String("proration", string(behavior)),
	)

	fresh, err := s.repo.Get(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	resp := s.statusFromRecord(fresh)
	mergeSubscription(resp, updated)
	return resp, nil
}

func (s *Service) GetStatus(ctx context.Context, orgID snowflake.ID) (*billingdomain.StatusResponse, error) {
	record, err := s.repo.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	resp := s.statusFromRecord(record)
	if record.ProcessorSubscriptionID == nil {
		return resp, nil
	}
	subscriptionID := *record.ProcessorSubscriptionID

	sub, err := s.gateway.RetrieveSubscription(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, gateway.ErrStaleReference) {
			return s.heal(ctx, record, subscriptionID)
		}
		s.noteGatewayError(err)
		return nil, err
	}

	// Remote observations enrich the response without being persisted;
	// persisted state only moves on confirmed transitions.
	mergeSubscription(resp, sub)
	return resp, nil
}

func (s *Service) CreatePortalSession(ctx context.Context, orgID snowflake.ID) (*billingdomain.PortalResponse, error) {
	record, err := s.repo.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if record.ProcessorCustomerID == nil {
		return nil, billingdomain.ErrSubscriptionNotFound
	}

	url, err := s.gateway.CreateBillingPortalSession(ctx, *record.ProcessorCustomerID, s.cfg.Stripe.ReturnURL)
	if err != nil {
		s.noteGatewayError(err)
		return nil, err
	}
	return &billingdomain.PortalResponse{URL: url}, nil
}

func (s *Service) ConfirmActivation(ctx context.Context, req billingdomain.ConfirmActivationRequest) error {
	if !req.Plan.Valid() || !req.Plan.Paid() {
		return billingdomain.ErrInvalidPlan
	}
	if req.ProcessorSubscriptionID == "" {
		return billingdomain.ErrSubscriptionNotFound
	}

	record, err := s.repo.Ensure(ctx, req.OrgID, s.policy.CommissionRateFor(billingdomain.PlanFree))
	if err != nil {
		return err
	}
	if record.ProcessorSubscriptionID != nil &&
		*record.ProcessorSubscriptionID == req.ProcessorSubscriptionID &&
		record.Plan == req.Plan {
		// Duplicate delivery of an activation already applied.
		return nil
	}

	subscriptionID := req.ProcessorSubscriptionID
	if err := s.repo.ApplyPlanChange(ctx, billingdomain.PlanChange{
		OrgID:                  req.OrgID,
		ExpectedPlan:           record.Plan,
		ExpectedSubscriptionID: record.ProcessorSubscriptionID,
		NewPlan:                req.Plan,
		NewStatus:              billingdomain.PlanStatusActive,
		CommissionRate:         s.policy.CommissionRateFor(req.Plan),
		SubscriptionID:         &subscriptionID,
		CurrentPeriodEnd:       req.CurrentPeriodEnd,
		RecordHistory:          true,
	}); err != nil {
		return err
	}

	s.publish(ctx, events.Event{
		OrgID: req.OrgID,
		Type:  events.EventPlanActivated,
		Payload: events.PlanChangePayload{
			OrgID:          req.OrgID.String(),
			FromPlan:       string(record.Plan),
			ToPlan:         string(req.Plan),
			SubscriptionID: subscriptionID,
		}.ToMap(),
		DedupeKey: "activation:" + subscriptionID,
	})
	s.audit(ctx, req.OrgID, "billing.plan_activated", map[string]any{
		"plan":            string(req.Plan),
		"subscription_id": subscriptionID,
	})

	s.log.Info("plan activated",
		zap.String("org_id", req.OrgID.String()),
		zap.String("plan", string(req.Plan)),
	)
	return nil
}

func (s *Service) ApplyExternalStatus(ctx context.Context, orgID snowflake.ID, status billingdomain.PlanStatus) error {
	switch status {
	case billingdomain.PlanStatusActive, billingdomain.PlanStatusPastDue, billingdomain.PlanStatusCanceled:
	default:
		return billingdomain.ErrInvalidPlanStatus
	}
	return s.repo.SetPlanStatus(ctx, orgID, status)
}

func (s *Service) ListHistory(ctx context.Context, orgID snowflake.ID) ([]billingdomain.SubscriptionHistory, error) {
	return s.repo.ListHistory(ctx, orgID)
}

// heal resets the tenant to the free plan after the processor disowned the
// stored subscription reference. Safe to run repeatedly.
func (s *Service) heal(ctx context.Context, record *billingdomain.BillingRecord, staleSubscriptionID string) (*billingdomain.StatusResponse, error) {
	healed, err := s.repo.Heal(ctx, record.OrgID, s.policy.CommissionRateFor(billingdomain.PlanFree))
	if err != nil {
		return nil, err
	}

	s.metrics.IncSubscriptionHeal()
	s.metrics.IncGatewayError("stale")
	s.publish(ctx, events.Event{
		OrgID: record.OrgID,
		Type:  events.EventSubscriptionHealed,
		Payload: events.HealPayload{
			OrgID:               record.OrgID.String(),
			StaleSubscriptionID: staleSubscriptionID,
		}.ToMap(),
		DedupeKey: "heal:" + staleSubscriptionID,
	})
	s.audit(ctx, record.OrgID, "billing.subscription_healed", map[string]any{
		"stale_subscription_id": staleSubscriptionID,
	})

	s.log.Warn("stale subscription reference healed",
		zap.String("org_id", record.OrgID.String()),
		zap.String("stale_subscription_id", staleSubscriptionID),
	)

	resp := s.statusFromRecord(healed)
	resp.Healed = true
	resp.Message = healedMessage
	return resp, nil
}

// resolveCustomer returns a live processor customer id for the tenant,
// creating or replacing the customer when the stored id is missing or no
// longer exists remotely.
func (s *Service) resolveCustomer(ctx context.Context, record *billingdomain.BillingRecord, email, displayName string) (string, error) {
	if record.ProcessorCustomerID != nil {
		cust, err := s.gateway.RetrieveCustomer(ctx, *record.ProcessorCustomerID)
		if err == nil {
			return cust.ID, nil
		}
		if !errors.Is(err, gateway.ErrStaleReference) {
			s.noteGatewayError(err)
			return "", err
		}
		s.log.Warn("stored processor customer is gone, creating a replacement",
			zap.String("org_id", record.OrgID.String()),
		)
	}

	cust, err := s.gateway.CreateCustomer(ctx, gateway.CreateCustomerRequest{
		Email:       email,
		DisplayName: displayName,
		Metadata:    map[string]string{"org_id": record.OrgID.String()},
	})
	if err != nil {
		s.noteGatewayError(err)
		return "", err
	}
	if err := s.repo.SetCustomerID(ctx, record.OrgID, cust.ID); err != nil {
		return "", err
	}
	return cust.ID, nil
}

func (s *Service) priceFor(plan billingdomain.Plan, period billingdomain.BillingPeriod) (string, error) {
	priceID, ok := s.cfg.Stripe.Prices[string(plan)+":"+string(period)]
	if !ok || priceID == "" {
		return "", billingdomain.ErrPriceNotConfigured
	}
	return priceID, nil
}

func (s *Service) statusFromRecord(record *billingdomain.BillingRecord) *billingdomain.StatusResponse {
	return &billingdomain.StatusResponse{
		Plan:             record.Plan,
		PlanStatus:       record.PlanStatus,
		CommissionRate:   record.CommissionRate.String(),
		HasSubscription:  record.ProcessorSubscriptionID != nil,
		CurrentPeriodEnd: record.CurrentPeriodEnd,
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.outbox.Publish(ctx, event); err != nil {
		s.log.Warn("failed to publish billing event",
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
	}
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, action string, metadata map[string]any) {
	_, actorID := obscontext.ActorFromContext(ctx)
	_ = s.auditSvc.AuditLog(ctx, &orgID, actorID, action, "billing_record", nil, metadata)
}

func (s *Service) noteGatewayError(err error) {
	switch {
	case errors.Is(err, gateway.ErrStaleReference):
		s.metrics.IncGatewayError("stale")
	case gateway.IsTransient(err):
		s.metrics.IncGatewayError("transient")
	default:
		s.metrics.IncGatewayError("other")
	}
}

func mergeSubscription(resp *billingdomain.StatusResponse, sub *gateway.Subscription) {
	if resp == nil || sub == nil {
		return
	}
	resp.HasSubscription = true
	resp.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	resp.TrialEnd = sub.TrialEnd
	if !sub.CurrentPeriodEnd.IsZero() {
		end := sub.CurrentPeriodEnd
		resp.CurrentPeriodEnd = &end
	}
	if period := periodFromInterval(sub.Interval); period != "" {
		resp.BillingPeriod = string(period)
	}
}

func periodFromInterval(interval string) billingdomain.BillingPeriod {
	switch interval {
	case "year":
		return billingdomain.BillingPeriodAnnual
	case "month":
		return billingdomain.BillingPeriodMonthly
	}
	return ""
}
