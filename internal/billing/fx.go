package billing

import (
	"github.com/shopspring/decimal"
	"go.uber.org/fx"

	"github.com/smallbiznis/bizboard/internal/billing/gateway"
	stripegateway "github.com/smallbiznis/bizboard/internal/billing/gateway/stripe"
	"github.com/smallbiznis/bizboard/internal/billing/policy"
	"github.com/smallbiznis/bizboard/internal/billing/repository"
	"github.com/smallbiznis/bizboard/internal/billing/service"
	"github.com/smallbiznis/bizboard/internal/config"
	"github.com/smallbiznis/bizboard/internal/events"
)

var Module = fx.Module("billing.service",
	fx.Provide(func(cfg config.Config) *policy.Policy {
		pcfg := policy.DefaultConfig()
		if rate, err := decimal.NewFromString(cfg.Billing.DefaultCommissionRate); err == nil {
			pcfg.DefaultCommissionRate = rate
		}
		if cfg.Billing.TrialDays > 0 {
			pcfg.TrialDays = cfg.Billing.TrialDays
		}
		return policy.New(pcfg)
	}),
	fx.Provide(func(cfg config.Config) gateway.Gateway {
		return stripegateway.New(cfg.Stripe)
	}),
	fx.Provide(repository.Provide),
	fx.Provide(events.NewOutbox),
	fx.Provide(events.NewDispatcher),
	fx.Invoke(events.Run),
	fx.Provide(service.NewService),
)
