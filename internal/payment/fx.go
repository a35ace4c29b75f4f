package payment

import (
	"github.com/billfold/billfold/internal/payment/adapters"
	"github.com/billfold/billfold/internal/payment/adapters/card"
	"github.com/billfold/billfold/internal/payment/adapters/paypal"
	paymentservice "github.com/billfold/billfold/internal/payment/service"
	"github.com/billfold/billfold/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			card.NewFactory(),
			paypal.NewFactory(),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
