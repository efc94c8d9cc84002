// Package gatewaytest provides an in-memory gateway fake for service
// tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smallbiznis/bizboard/internal/billing/gateway"
)

// Fake is a scriptable in-memory processor. Zero value is usable.
type Fake struct {
	mu sync.Mutex

	customers     map[string]gateway.Customer
	subscriptions map[string]*gateway.Subscription

	nextCustomer     int
	nextSubscription int
	nextSession      int

	// Err, when set, fails the next call and is then cleared.
	Err error

	// ErrOn fails the next call with the named method and is then
	// removed, leaving other methods untouched.
	ErrOn map[string]error

	Calls []string

	// LastCheckout records the most recent checkout session request.
	LastCheckout gateway.CreateCheckoutSessionRequest
	// LastProration records the proration behavior of the most recent
	// item update.
	LastProration string
}

func New() *Fake {
	return &Fake{
		customers:     map[string]gateway.Customer{},
		subscriptions: map[string]*gateway.Subscription{},
	}
}

// AddSubscription seeds a remote subscription.
func (f *Fake) AddSubscription(sub gateway.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := sub
	f.subscriptions[sub.ID] = &copied
}

// AddCustomer seeds a remote customer.
func (f *Fake) AddCustomer(cust gateway.Customer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[cust.ID] = cust
}

// DeleteSubscription simulates a subscription removed directly at the
// processor, leaving local references stale.
func (f *Fake) DeleteSubscription(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscriptions, id)
}

// CallCount returns the number of gateway calls made so far.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

func (f *Fake) record(name string) error {
	f.Calls = append(f.Calls, name)
	if f.Err != nil {
		err := f.Err
		f.Err = nil
		return err
	}
	if err, ok := f.ErrOn[name]; ok {
		delete(f.ErrOn, name)
		return err
	}
	return nil
}

func (f *Fake) CreateCustomer(ctx context.Context, req gateway.CreateCustomerRequest) (*gateway.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateCustomer"); err != nil {
		return nil, err
	}
	f.nextCustomer++
	cust := gateway.Customer{ID: fmt.Sprintf("cus_%03d", f.nextCustomer), Email: req.Email}
	f.customers[cust.ID] = cust
	return &cust, nil
}

func (f *Fake) RetrieveCustomer(ctx context.Context, customerID string) (*gateway.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RetrieveCustomer"); err != nil {
		return nil, err
	}
	cust, ok := f.customers[customerID]
	if !ok {
		return nil, gateway.ErrStaleReference
	}
	return &cust, nil
}

func (f *Fake) CreateCheckoutSession(ctx context.Context, req gateway.CreateCheckoutSessionRequest) (*gateway.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateCheckoutSession"); err != nil {
		return nil, err
	}
	if _, ok := f.customers[req.CustomerID]; !ok {
		return nil, gateway.ErrStaleReference
	}
	f.LastCheckout = req
	f.nextSession++
	return &gateway.CheckoutSession{
		ID:           fmt.Sprintf("cs_%03d", f.nextSession),
		ClientSecret: fmt.Sprintf("cs_%03d_secret", f.nextSession),
	}, nil
}

func (f *Fake) RetrieveSubscription(ctx context.Context, subscriptionID string) (*gateway.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RetrieveSubscription"); err != nil {
		return nil, err
	}
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, gateway.ErrStaleReference
	}
	copied := *sub
	return &copied, nil
}

func (f *Fake) UpdateSubscriptionItem(ctx context.Context, subscriptionID, itemID, newPriceID, prorationBehavior string) (*gateway.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateSubscriptionItem"); err != nil {
		return nil, err
	}
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, gateway.ErrStaleReference
	}
	sub.PriceID = newPriceID
	f.LastProration = prorationBehavior
	copied := *sub
	return &copied, nil
}

func (f *Fake) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*gateway.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetCancelAtPeriodEnd"); err != nil {
		return nil, err
	}
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, gateway.ErrStaleReference
	}
	sub.CancelAtPeriodEnd = cancel
	copied := *sub
	return &copied, nil
}

func (f *Fake) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateBillingPortalSession"); err != nil {
		return "", err
	}
	if _, ok := f.customers[customerID]; !ok {
		return "", gateway.ErrStaleReference
	}
	return "https://billing.example.test/p/" + customerID, nil
}

// NewSubscriptionID hands out deterministic subscription ids for seeding.
func (f *Fake) NewSubscriptionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSubscription++
	return fmt.Sprintf("sub_%03d", f.nextSubscription)
}

var _ gateway.Gateway = (*Fake)(nil)

// Seeded builds a fake with one customer and one active subscription, a
// common starting point for lifecycle tests.
func Seeded(customerID, subscriptionID, priceID, interval string, periodEnd time.Time) *Fake {
	f := New()
	f.AddCustomer(gateway.Customer{ID: customerID, Email: "owner@example.test"})
	f.AddSubscription(gateway.Subscription{
		ID:               subscriptionID,
		Status:           "active",
		CurrentPeriodEnd: periodEnd,
		ItemID:           "si_" + subscriptionID,
		PriceID:          priceID,
		Interval:         interval,
	})
	return f
}
