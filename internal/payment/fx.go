package payment

import (
	"github.com/airislabs/kassa/internal/payment/gateway"
	"github.com/airislabs/kassa/internal/payment/repository"
	"github.com/airislabs/kassa/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(
		gateway.NewManual,
		repository.Provide,
		service.NewService,
	),
)
