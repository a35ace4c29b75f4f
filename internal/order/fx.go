package order

import (
	"github.com/billfold/billfold/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order",
	fx.Provide(
		service.NewService,
	),
)
