package auth

import (
	"github.com/billfold/billfold/internal/auth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("auth",
	fx.Provide(
		service.NewService,
	),
)
