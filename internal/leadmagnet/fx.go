package leadmagnet

import (
	"github.com/airislabs/kassa/internal/leadmagnet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("leadmagnet.service",
	fx.Provide(
		service.NewService,
	),
)
