package coupon

import (
	"github.com/billfold/billfold/internal/coupon/service"
	"go.uber.org/fx"
)

var Module = fx.Module("coupon",
	fx.Provide(
		service.NewService,
	),
)
