// Package gateway defines the narrow client interface to the external
// payment processor. It is the only billing component that performs
// network I/O; everything above it works against this contract.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStaleReference marks a customer or subscription id the processor
	// no longer recognizes. Callers treat it as a self-healing signal, not
	// a fatal failure.
	ErrStaleReference = errors.New("stale_processor_reference")
)

// TransientError wraps a retriable remote failure (network error or a
// processor 5xx). The engine never retries internally; the caller may
// resubmit.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient gateway failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retriable gateway failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Customer is the processor-side customer object, reduced to what the
// engine reads.
type Customer struct {
	ID    string
	Email string
}

// Subscription is the processor-side subscription object, reduced to what
// the engine reads.
type Subscription struct {
	ID                string
	Status            string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time
	TrialEnd          *time.Time

	// ItemID and PriceID identify the single subscription item this
	// engine manages.
	ItemID  string
	PriceID string

	// Interval is the processor billing interval ("month" or "year").
	Interval string
}

// CheckoutSession is the handle the UI needs to finish payment collection.
type CheckoutSession struct {
	ID           string
	ClientSecret string
}

// CreateCustomerRequest creates a processor customer for a tenant.
type CreateCustomerRequest struct {
	Email       string
	DisplayName string
	Metadata    map[string]string
}

// CreateCheckoutSessionRequest issues a subscription checkout session.
type CreateCheckoutSessionRequest struct {
	CustomerID string
	PriceID    string

	// TrialDays requests a trial window; zero means no trial. Trials end
	// in cancellation when no payment method was attached.
	TrialDays int64

	ReturnURL string
	Metadata  map[string]string
}

// Gateway wraps the processor operations the billing engine needs. Every
// method may fail with *TransientError or ErrStaleReference; none of them
// touch local persistence.
type Gateway interface {
	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error)
	RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error)
	CreateCheckoutSession(ctx context.Context, req CreateCheckoutSessionRequest) (*CheckoutSession, error)
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	UpdateSubscriptionItem(ctx context.Context, subscriptionID, itemID, newPriceID, prorationBehavior string) (*Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error)
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}
