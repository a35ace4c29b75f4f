package ticket

import (
	"github.com/billfold/billfold/internal/ticket/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ticket",
	fx.Provide(
		service.NewService,
	),
)
