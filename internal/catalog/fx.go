package catalog

import (
	"github.com/billfold/billfold/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog",
	fx.Provide(
		service.NewCatalog,
	),
)
