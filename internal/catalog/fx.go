package catalog

import (
	"github.com/airislabs/kassa/internal/catalog/repository"
	"github.com/airislabs/kassa/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
