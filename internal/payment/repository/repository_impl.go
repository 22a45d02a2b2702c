package repository

import (
	"context"

	paymentdomain "github.com/airislabs/kassa/internal/payment/domain"
	"github.com/airislabs/kassa/pkg/db/option"
	"github.com/airislabs/kassa/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[paymentdomain.Payment]
}

func Provide(db *gorm.DB) paymentdomain.Repository {
	return &repo{store: repository.ProvideStore[paymentdomain.Payment](db)}
}

func (r *repo) Create(ctx context.Context, payment *paymentdomain.Payment) error {
	return r.store.Create(ctx, payment)
}

func (r *repo) GetByID(ctx context.Context, id snowflake.ID) (*paymentdomain.Payment, error) {
	return r.store.FindOne(ctx, &paymentdomain.Payment{ID: id})
}

func (r *repo) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*paymentdomain.Payment, error) {
	return r.store.FindOne(ctx, &paymentdomain.Payment{},
		option.Where("provider_payment_id = ?", providerPaymentID),
	)
}

func (r *repo) Update(ctx context.Context, id snowflake.ID, updates map[string]any) error {
	return r.store.Update(ctx, id.String(), updates)
}

func (r *repo) HasPendingTopup(ctx context.Context, walletID snowflake.ID) (bool, error) {
	count, err := r.store.Count(ctx, &paymentdomain.Payment{
		WalletID: walletID,
		Status:   paymentdomain.PaymentStatusPending,
		Kind:     paymentdomain.PaymentKindTopup,
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) LatestSucceededPaymentMethod(ctx context.Context, walletID snowflake.ID) (*string, error) {
	payment, err := r.store.FindOne(ctx,
		&paymentdomain.Payment{
			WalletID: walletID,
			Status:   paymentdomain.PaymentStatusSucceeded,
			Kind:     paymentdomain.PaymentKindTopup,
		},
		option.Where("payment_method_id IS NOT NULL"),
		option.OrderBy("created_at DESC"),
	)
	if err != nil || payment == nil {
		return nil, err
	}
	return payment.PaymentMethodID, nil
}

func (r *repo) ListByUser(ctx context.Context, userID string, limit int) ([]*paymentdomain.Payment, error) {
	if limit < 1 {
		limit = 50
	}
	return r.store.Find(ctx, &paymentdomain.Payment{UserID: userID},
		option.OrderBy("created_at DESC"),
		option.Limit(limit),
	)
}
