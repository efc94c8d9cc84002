package stripe

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stripe/stripe-go/v76"

	"github.com/smallbiznis/bizboard/internal/billing/gateway"
)

func TestFromStripeSubscriptionAbsentPeriodEnd(t *testing.T) {
	out := fromStripeSubscription(&stripe.Subscription{
		ID:     "sub_001",
		Status: stripe.SubscriptionStatusTrialing,
	})
	if !out.CurrentPeriodEnd.IsZero() {
		t.Fatalf("period end = %v, want zero for an absent timestamp", out.CurrentPeriodEnd)
	}
	if out.TrialEnd != nil {
		t.Fatal("absent trial end must stay nil")
	}
}

func TestFromStripeSubscriptionMapsPeriodEnd(t *testing.T) {
	out := fromStripeSubscription(&stripe.Subscription{
		ID:               "sub_002",
		Status:           stripe.SubscriptionStatusActive,
		CurrentPeriodEnd: 1767225600,
	})
	if out.CurrentPeriodEnd.IsZero() || out.CurrentPeriodEnd.Unix() != 1767225600 {
		t.Fatalf("period end = %v, want 1767225600", out.CurrentPeriodEnd)
	}
}

func TestMapErrorNil(t *testing.T) {
	if got := mapError("customer.retrieve", nil); got != nil {
		t.Fatalf("mapError(nil) = %v, want nil", got)
	}
}

func TestMapErrorTransportFailure(t *testing.T) {
	err := mapError("subscription.retrieve", errors.New("dial tcp: connection refused"))
	if !gateway.IsTransient(err) {
		t.Fatalf("transport failure = %v, want transient", err)
	}
	if errors.Is(err, gateway.ErrStaleReference) {
		t.Fatal("transport failure must not look like a stale reference")
	}
}

func TestMapErrorResourceMissing(t *testing.T) {
	err := mapError("subscription.retrieve", &stripe.Error{
		Code:           stripe.ErrorCodeResourceMissing,
		HTTPStatusCode: http.StatusNotFound,
	})
	if !errors.Is(err, gateway.ErrStaleReference) {
		t.Fatalf("resource_missing = %v, want ErrStaleReference", err)
	}
}

func TestMapErrorNotFoundWithoutCode(t *testing.T) {
	err := mapError("customer.retrieve", &stripe.Error{HTTPStatusCode: http.StatusNotFound})
	if !errors.Is(err, gateway.ErrStaleReference) {
		t.Fatalf("404 = %v, want ErrStaleReference", err)
	}
}

func TestMapErrorServerError(t *testing.T) {
	err := mapError("checkout_session.create", &stripe.Error{HTTPStatusCode: http.StatusBadGateway})
	if !gateway.IsTransient(err) {
		t.Fatalf("502 = %v, want transient", err)
	}
}

func TestMapErrorClientErrorPassesThrough(t *testing.T) {
	cardErr := &stripe.Error{
		Code:           stripe.ErrorCodeCardDeclined,
		HTTPStatusCode: http.StatusPaymentRequired,
	}
	err := mapError("checkout_session.create", cardErr)
	if err != cardErr {
		t.Fatalf("4xx = %v, want the original error untouched", err)
	}
	if gateway.IsTransient(err) || errors.Is(err, gateway.ErrStaleReference) {
		t.Fatal("4xx must stay a terminal client error")
	}
}
