package gateway

import (
	"context"

	paymentdomain "github.com/airislabs/kassa/internal/payment/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manual is a gateway for environments without a real payment provider.
// Payments it creates stay pending until an operator reconciles them
// through the topup reconcile endpoint.
type Manual struct {
	log *zap.Logger
}

func NewManual(log *zap.Logger) paymentdomain.Gateway {
	return &Manual{log: log.Named("payment.gateway.manual")}
}

func (g *Manual) Name() string { return "manual" }

func (g *Manual) CreatePayment(ctx context.Context, req paymentdomain.GatewayRequest) (*paymentdomain.GatewayPayment, error) {
	id := "manual-" + uuid.NewString()
	g.log.Info("manual payment created",
		zap.String("provider_payment_id", id),
		zap.Int64("amount", req.Amount),
	)
	return &paymentdomain.GatewayPayment{
		ProviderPaymentID: id,
		ConfirmationURL:   req.ReturnURL,
	}, nil
}

func (g *Manual) ChargeSavedMethod(ctx context.Context, req paymentdomain.GatewayRequest) (*paymentdomain.GatewayPayment, error) {
	id := "manual-" + uuid.NewString()
	g.log.Info("manual saved-method charge created",
		zap.String("provider_payment_id", id),
		zap.Int64("amount", req.Amount),
	)
	return &paymentdomain.GatewayPayment{
		ProviderPaymentID: id,
		PaymentMethodID:   req.PaymentMethodID,
	}, nil
}
