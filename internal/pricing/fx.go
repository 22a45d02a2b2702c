package pricing

import (
	"github.com/airislabs/kassa/internal/pricing/repository"
	"github.com/airislabs/kassa/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
