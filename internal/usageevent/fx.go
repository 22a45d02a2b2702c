package usageevent

import (
	"github.com/airislabs/kassa/internal/usageevent/repository"
	"github.com/airislabs/kassa/internal/usageevent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usageevent.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
