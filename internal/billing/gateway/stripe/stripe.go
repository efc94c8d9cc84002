// Package stripe implements the payment gateway against the Stripe API.
package stripe

import (
	"context"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	billingportalsession "github.com/stripe/stripe-go/v76/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/subscription"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/smallbiznis/bizboard/internal/billing/gateway"
	"github.com/smallbiznis/bizboard/internal/config"
	"github.com/smallbiznis/bizboard/internal/observability/tracing"
)

const tracerName = "bizboard/billing/gateway/stripe"

// Client implements gateway.Gateway using the Stripe SDK's package-level
// bindings. The constructor sets the global API key; the process talks to
// a single Stripe account.
type Client struct {
	tracer oteltrace.Tracer
}

func New(cfg config.StripeConfig) *Client {
	stripe.Key = cfg.SecretKey
	stripe.SetHTTPClient(tracing.WrapHTTPClient(&http.Client{Timeout: 30 * time.Second}))
	return &Client{tracer: otel.Tracer(tracerName)}
}

func (c *Client) CreateCustomer(ctx context.Context, req gateway.CreateCustomerRequest) (*gateway.Customer, error) {
	ctx, span := c.startSpan(ctx, "stripe.customer.create")
	defer span.End()

	params := &stripe.CustomerParams{
		Email: stripe.String(req.Email),
		Name:  stripe.String(req.DisplayName),
	}
	params.Context = ctx
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	cust, err := customer.New(params)
	if err != nil {
		return nil, mapError("customer.create", err)
	}
	return &gateway.Customer{ID: cust.ID, Email: cust.Email}, nil
}

func (c *Client) RetrieveCustomer(ctx context.Context, customerID string) (*gateway.Customer, error) {
	ctx, span := c.startSpan(ctx, "stripe.customer.retrieve")
	defer span.End()

	params := &stripe.CustomerParams{}
	params.Context = ctx
	cust, err := customer.Get(customerID, params)
	if err != nil {
		return nil, mapError("customer.retrieve", err)
	}
	// Stripe keeps deleted customers retrievable with a tombstone flag.
	if cust.Deleted {
		return nil, gateway.ErrStaleReference
	}
	return &gateway.Customer{ID: cust.ID, Email: cust.Email}, nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req gateway.CreateCheckoutSessionRequest) (*gateway.CheckoutSession, error) {
	ctx, span := c.startSpan(ctx, "stripe.checkout_session.create")
	defer span.End()

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(req.CustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		UIMode:   stripe.String(string(stripe.CheckoutSessionUIModeEmbedded)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		ReturnURL: stripe.String(req.ReturnURL),
	}
	params.Context = ctx
	// Metadata rides on both the session and the subscription it creates,
	// so webhook events can be traced back to the tenant.
	params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
		Metadata: req.Metadata,
	}
	if req.TrialDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(req.TrialDays)
		params.SubscriptionData.TrialSettings = &stripe.CheckoutSessionSubscriptionDataTrialSettingsParams{
			EndBehavior: &stripe.CheckoutSessionSubscriptionDataTrialSettingsEndBehaviorParams{
				MissingPaymentMethod: stripe.String("cancel"),
			},
		}
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, mapError("checkout_session.create", err)
	}
	return &gateway.CheckoutSession{ID: sess.ID, ClientSecret: sess.ClientSecret}, nil
}

func (c *Client) RetrieveSubscription(ctx context.Context, subscriptionID string) (*gateway.Subscription, error) {
	ctx, span := c.startSpan(ctx, "stripe.subscription.retrieve",
		attribute.String("subscription_id", subscriptionID))
	defer span.End()

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, mapError("subscription.retrieve", err)
	}
	return fromStripeSubscription(sub), nil
}

func (c *Client) UpdateSubscriptionItem(ctx context.Context, subscriptionID, itemID, newPriceID, prorationBehavior string) (*gateway.Subscription, error) {
	ctx, span := c.startSpan(ctx, "stripe.subscription.update_item",
		attribute.String("subscription_id", subscriptionID),
		attribute.String("proration_behavior", prorationBehavior))
	defer span.End()

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(itemID), Price: stripe.String(newPriceID)},
		},
		ProrationBehavior: stripe.String(prorationBehavior),
	}
	params.Context = ctx
	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, mapError("subscription.update_item", err)
	}
	return fromStripeSubscription(sub), nil
}

func (c *Client) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*gateway.Subscription, error) {
	ctx, span := c.startSpan(ctx, "stripe.subscription.set_cancel",
		attribute.String("subscription_id", subscriptionID),
		attribute.Bool("cancel_at_period_end", cancel))
	defer span.End()

	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	params.Context = ctx
	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, mapError("subscription.set_cancel", err)
	}
	return fromStripeSubscription(sub), nil
}

func (c *Client) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	ctx, span := c.startSpan(ctx, "stripe.billing_portal_session.create")
	defer span.End()

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", mapError("billing_portal_session.create", err)
	}
	return sess.URL, nil
}

func (c *Client) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return c.tracer.Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

func fromStripeSubscription(sub *stripe.Subscription) *gateway.Subscription {
	out := &gateway.Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	// An absent period end stays the zero time; mapping 0 through
	// time.Unix would fabricate a 1970 timestamp downstream code treats
	// as a real observation.
	if sub.CurrentPeriodEnd > 0 {
		out.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	if sub.TrialEnd > 0 {
		trialEnd := time.Unix(sub.TrialEnd, 0).UTC()
		out.TrialEnd = &trialEnd
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.ItemID = item.ID
		if item.Price != nil {
			out.PriceID = item.Price.ID
			if item.Price.Recurring != nil {
				out.Interval = string(item.Price.Recurring.Interval)
			}
		}
	}
	return out
}

// mapError translates SDK failures into the gateway error contract:
// missing resources become the stale-reference sentinel, 5xx and transport
// failures become transient.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	stripeErr, ok := err.(*stripe.Error)
	if !ok {
		return &gateway.TransientError{Op: op, Err: err}
	}
	if stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound {
		return gateway.ErrStaleReference
	}
	if stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
		return &gateway.TransientError{Op: op, Err: err}
	}
	return err
}
