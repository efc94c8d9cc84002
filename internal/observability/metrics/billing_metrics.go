package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics tracks subscription lifecycle activity.
type BillingMetrics struct {
	checkoutSessions *prometheus.CounterVec
	planChanges      *prometheus.CounterVec
	lifecycleActions *prometheus.CounterVec
	subscriptionHeal prometheus.Counter
	gatewayErrors    *prometheus.CounterVec
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

func Billing() *BillingMetrics {
	return BillingWithConfig(Config{})
}

func BillingWithConfig(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

func newBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "bizboard"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	checkoutSessions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "bizboard_checkout_sessions_total",
			Help:        "Checkout sessions created, by requested plan.",
			ConstLabels: constLabels,
		},
		[]string{"plan"},
	)

	planChanges := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "bizboard_plan_changes_total",
			Help:        "Confirmed plan transitions on live subscriptions.",
			ConstLabels: constLabels,
		},
		[]string{"from_plan", "to_plan"},
	)

	lifecycleActions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "bizboard_lifecycle_actions_total",
			Help:        "Cancel and resume requests applied at the processor.",
			ConstLabels: constLabels,
		},
		[]string{"action"}, // cancel | resume
	)

	subscriptionHeal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "bizboard_subscription_heals_total",
			Help:        "Local records reset to the free plan after a stale processor reference.",
			ConstLabels: constLabels,
		},
	)

	gatewayErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "bizboard_gateway_errors_total",
			Help:        "Payment processor call failures by kind.",
			ConstLabels: constLabels,
		},
		[]string{"kind"}, // stale | transient | other
	)

	registerer.MustRegister(
		checkoutSessions,
		planChanges,
		lifecycleActions,
		subscriptionHeal,
		gatewayErrors,
	)

	return &BillingMetrics{
		checkoutSessions: checkoutSessions,
		planChanges:      planChanges,
		lifecycleActions: lifecycleActions,
		subscriptionHeal: subscriptionHeal,
		gatewayErrors:    gatewayErrors,
	}
}

func (m *BillingMetrics) IncCheckoutSession(plan string) {
	if m == nil {
		return
	}
	m.checkoutSessions.WithLabelValues(plan).Inc()
}

func (m *BillingMetrics) IncPlanChange(fromPlan, toPlan string) {
	if m == nil {
		return
	}
	m.planChanges.WithLabelValues(fromPlan, toPlan).Inc()
}

func (m *BillingMetrics) IncLifecycleAction(action string) {
	if m == nil {
		return
	}
	m.lifecycleActions.WithLabelValues(action).Inc()
}

func (m *BillingMetrics) IncSubscriptionHeal() {
	if m == nil {
		return
	}
	m.subscriptionHeal.Inc()
}

func (m *BillingMetrics) IncGatewayError(kind string) {
	if m == nil {
		return
	}
	m.gatewayErrors.WithLabelValues(kind).Inc()
}
