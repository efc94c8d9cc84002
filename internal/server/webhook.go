package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	billingdomain "github.com/smallbiznis/bizboard/internal/billing/domain"
	"github.com/smallbiznis/bizboard/internal/observability/logger"
)

const webhookBodyLimit = 1 << 16

// HandleStripeWebhook ingests processor events. Activation and status
// transitions reported here are applied as externally supplied facts.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, signature, s.cfg.Stripe.WebhookSecret)
	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("rejected webhook with bad signature",
			zap.String("signature", logger.MaskAPIKey(signature)),
			zap.Error(err),
		)
		c.Status(http.StatusBadRequest)
		return
	}

	log := logger.FromContext(c.Request.Context()).With(zap.String("event_type", string(event.Type)))

	switch event.Type {
	case "checkout.session.completed":
		err = s.handleCheckoutCompleted(c, event, log)
	case "customer.subscription.updated":
		err = s.handleSubscriptionUpdated(c, event, log)
	case "customer.subscription.deleted":
		err = s.handleSubscriptionDeleted(c, event, log)
	default:
		log.Debug("ignoring webhook event")
	}
	if err != nil {
		log.Error("webhook handling failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleCheckoutCompleted(c *gin.Context, event stripe.Event, log *zap.Logger) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return err
	}
	orgID, ok := orgIDFromMetadata(session.Metadata, log)
	if !ok {
		return nil
	}
	if session.Subscription == nil {
		log.Warn("checkout completed without a subscription", zap.String("session_id", session.ID))
		return nil
	}

	return s.billingSvc.ConfirmActivation(c.Request.Context(), billingdomain.ConfirmActivationRequest{
		OrgID:                   orgID,
		Plan:                    billingdomain.Plan(session.Metadata["plan"]),
		ProcessorSubscriptionID: session.Subscription.ID,
	})
}

func (s *Server) handleSubscriptionUpdated(c *gin.Context, event stripe.Event, log *zap.Logger) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return err
	}
	orgID, ok := orgIDFromMetadata(sub.Metadata, log)
	if !ok {
		return nil
	}

	var status billingdomain.PlanStatus
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		status = billingdomain.PlanStatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		status = billingdomain.PlanStatusPastDue
	case stripe.SubscriptionStatusCanceled:
		status = billingdomain.PlanStatusCanceled
	default:
		log.Debug("ignoring subscription status", zap.String("status", string(sub.Status)))
		return nil
	}

	return s.billingSvc.ApplyExternalStatus(c.Request.Context(), orgID, status)
}

func (s *Server) handleSubscriptionDeleted(c *gin.Context, event stripe.Event, log *zap.Logger) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return err
	}
	orgID, ok := orgIDFromMetadata(sub.Metadata, log)
	if !ok {
		return nil
	}
	return s.billingSvc.ApplyExternalStatus(c.Request.Context(), orgID, billingdomain.PlanStatusCanceled)
}

func orgIDFromMetadata(metadata map[string]string, log *zap.Logger) (snowflake.ID, bool) {
	raw := metadata["org_id"]
	if raw == "" {
		log.Warn("webhook event is missing org_id metadata")
		return 0, false
	}
	orgID, err := snowflake.ParseString(raw)
	if err != nil || orgID == 0 {
		log.Warn("webhook event carries an unparseable org_id", zap.String("org_id", raw))
		return 0, false
	}
	return orgID, true
}
