package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/airislabs/kassa/internal/clock"
	"github.com/airislabs/kassa/internal/config"
	obsmetrics "github.com/airislabs/kassa/internal/observability/metrics"
	paymentdomain "github.com/airislabs/kassa/internal/payment/domain"
	walletdomain "github.com/airislabs/kassa/internal/wallet/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	Wallet     walletdomain.Service
	Gateway    paymentdomain.Gateway
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg        config.Config
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	wallet     walletdomain.Service
	gateway    paymentdomain.Gateway
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		cfg:        p.Cfg,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		wallet:     p.Wallet,
		gateway:    p.Gateway,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateTopupPayment(ctx context.Context, userID string, walletID snowflake.ID, amount int64, returnURL string) (*paymentdomain.CreateTopupResult, error) {
	if amount <= 0 {
		return nil, paymentdomain.ErrInvalidTopupAmount
	}
	if !s.allowedPackage(amount) {
		return nil, paymentdomain.ErrInvalidTopupAmount
	}

	wallet, err := s.wallet.GetWalletByID(ctx, walletID)
	if err != nil {
		return nil, err
	}

	gw, err := s.gateway.CreatePayment(ctx, paymentdomain.GatewayRequest{
		Amount:            amount,
		Currency:          wallet.Currency,
		Description:       fmt.Sprintf("Wallet topup %d %s", amount, wallet.Currency),
		ReturnURL:         returnURL,
		SavePaymentMethod: wallet.AutoTopupEnabled,
		Metadata: map[string]any{
			"kind":      string(paymentdomain.PaymentKindTopup),
			"user_id":   userID,
			"wallet_id": walletID.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway payment: %w", err)
	}

	payment, err := s.storePayment(ctx, userID, wallet.ID, wallet.Currency, amount, gw, nil)
	if err != nil {
		return nil, err
	}

	s.log.Info("topup payment created",
		zap.String("payment_id", payment.ID.String()),
		zap.String("user_id", userID),
		zap.Int64("amount", amount),
	)
	return &paymentdomain.CreateTopupResult{
		Payment:         payment,
		ConfirmationURL: gw.ConfirmationURL,
	}, nil
}

// ApplySucceededTopup credits the wallet for a payment the gateway reports
// as paid. Safe to replay: the ledger's idempotency key is the payment id.
func (s *Service) ApplySucceededTopup(ctx context.Context, providerPaymentID string) (*paymentdomain.Payment, error) {
	payment, err := s.repo.GetByProviderPaymentID(ctx, providerPaymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	if payment.Status == paymentdomain.PaymentStatusSucceeded {
		return payment, nil
	}

	var expiresAt *int64
	if days := s.cfg.Billing.TopupTTLDays; days > 0 {
		ts := s.clock.Now().Unix() + int64(days)*86400
		expiresAt = &ts
	}

	idempotencyKey := payment.ID.String()
	_, err = s.wallet.ApplyTopup(ctx, walletdomain.TopupRequest{
		WalletID:       payment.WalletID,
		Amount:         payment.Amount,
		ReferenceID:    providerPaymentID,
		ReferenceType:  "payment",
		IdempotencyKey: &idempotencyKey,
		ExpiresAt:      expiresAt,
		Metadata: map[string]any{
			"provider":   payment.Provider,
			"payment_id": providerPaymentID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("apply topup for payment %s: %w", payment.ID, err)
	}

	if payment.AutoTopup() {
		if _, err := s.wallet.UpdateWallet(ctx, payment.WalletID, map[string]any{
			"auto_topup_fail_count": 0,
		}); err != nil {
			s.log.Warn("reset auto-topup failures", zap.Error(err))
		}
	}

	now := s.clock.Now().Unix()
	if err := s.repo.Update(ctx, payment.ID, map[string]any{
		"status":     paymentdomain.PaymentStatusSucceeded,
		"updated_at": now,
	}); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, payment.ID)
}

func (s *Service) MarkPaymentFailed(ctx context.Context, providerPaymentID string, status paymentdomain.PaymentStatus) (*paymentdomain.Payment, error) {
	if status != paymentdomain.PaymentStatusFailed && status != paymentdomain.PaymentStatusCanceled {
		return nil, errors.New("status must be failed or canceled")
	}

	payment, err := s.repo.GetByProviderPaymentID(ctx, providerPaymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	if payment.Status != paymentdomain.PaymentStatusPending {
		return payment, nil
	}

	if err := s.repo.Update(ctx, payment.ID, map[string]any{
		"status":     status,
		"updated_at": s.clock.Now().Unix(),
	}); err != nil {
		return nil, err
	}

	if payment.AutoTopup() {
		if wallet, werr := s.wallet.GetWalletByID(ctx, payment.WalletID); werr == nil {
			s.recordAutoTopupFailure(ctx, wallet)
		}
	}
	return s.repo.GetByID(ctx, payment.ID)
}

// MaybeTriggerAutoTopup charges the user's saved payment method when the
// balance drops below the configured threshold. Never blocks the calling
// request on success or failure; the resulting payment completes through
// the normal gateway settlement path.
func (s *Service) MaybeTriggerAutoTopup(ctx context.Context, userID string, walletID snowflake.ID, available, required int64, reason string) (*paymentdomain.AutoTopupResult, error) {
	result, err := s.autoTopup(ctx, userID, walletID, available, required, reason)
	if result != nil {
		s.obsMetrics.RecordAutoTopupAttempt(ctx, result.Status)
	}
	return result, err
}

func (s *Service) autoTopup(ctx context.Context, userID string, walletID snowflake.ID, available, required int64, reason string) (*paymentdomain.AutoTopupResult, error) {
	wallet, err := s.wallet.GetWalletByID(ctx, walletID)
	if errors.Is(err, walletdomain.ErrWalletNotFound) {
		return &paymentdomain.AutoTopupResult{Status: paymentdomain.AutoTopupStatusWalletMissing}, nil
	}
	if err != nil {
		return nil, err
	}

	if !wallet.AutoTopupEnabled {
		return &paymentdomain.AutoTopupResult{Status: paymentdomain.AutoTopupStatusDisabled}, nil
	}
	if wallet.AutoTopupThreshold <= 0 || wallet.AutoTopupAmount <= 0 {
		return &paymentdomain.AutoTopupResult{Status: paymentdomain.AutoTopupStatusMissingConfig}, nil
	}
	if available > wallet.AutoTopupThreshold && available >= required {
		return &paymentdomain.AutoTopupResult{Status: paymentdomain.AutoTopupStatusAboveThreshold}, nil
	}

	if wallet.AutoTopupFailCount >= s.cfg.Billing.AutoTopupMaxFailures {
		if _, err := s.wallet.UpdateWallet(ctx, walletID, map[string]any{
			"auto_topup_enabled": false,
		}); err != nil {
			return nil, err
		}
		return &paymentdomain.AutoTopupResult{Status: paymentdomain.AutoTopupStatusFailLimit}, nil
	}

	pending, err := s.repo.HasPendingTopup(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if pending {
		return &paymentdomain.AutoTopupResult{Status: paymentdomain.AutoTopupStatusPending}, nil
	}

	if !s.allowedPackage(wallet.AutoTopupAmount) {
		return &paymentdomain.AutoTopupResult{Status: paymentdomain.AutoTopupStatusInvalidAmount}, nil
	}

	paymentMethodID := wallet.AutoTopupPaymentMethodID
	if paymentMethodID == nil {
		paymentMethodID, err = s.repo.LatestSucceededPaymentMethod(ctx, walletID)
		if err != nil {
			return nil, err
		}
	}
	if paymentMethodID == nil {
		return &paymentdomain.AutoTopupResult{
			Attempted: true,
			Status:    paymentdomain.AutoTopupStatusMissingPaymentMethod,
		}, nil
	}

	gw, err := s.gateway.ChargeSavedMethod(ctx, paymentdomain.GatewayRequest{
		Amount:          wallet.AutoTopupAmount,
		Currency:        wallet.Currency,
		Description:     fmt.Sprintf("Auto topup %d %s", wallet.AutoTopupAmount, wallet.Currency),
		PaymentMethodID: *paymentMethodID,
		Metadata: map[string]any{
			"kind":                            string(paymentdomain.PaymentKindTopup),
			"user_id":                         userID,
			"wallet_id":                       walletID.String(),
			paymentdomain.MetaAutoTopup:       true,
			paymentdomain.MetaAutoTopupReason: reason,
		},
	})
	if err != nil {
		s.recordAutoTopupFailure(ctx, wallet)
		return &paymentdomain.AutoTopupResult{
			Attempted: true,
			Status:    paymentdomain.AutoTopupStatusFailed,
			Message:   err.Error(),
		}, nil
	}

	autoMeta := datatypes.JSONMap{
		paymentdomain.MetaAutoTopup:       true,
		paymentdomain.MetaAutoTopupReason: reason,
	}
	payment, err := s.storePayment(ctx, userID, walletID, wallet.Currency, wallet.AutoTopupAmount, gw, autoMeta)
	if err != nil {
		return nil, err
	}

	s.log.Info("auto-topup payment created",
		zap.String("payment_id", payment.ID.String()),
		zap.String("wallet_id", walletID.String()),
		zap.String("reason", reason),
	)
	return &paymentdomain.AutoTopupResult{
		Attempted: true,
		Status:    paymentdomain.AutoTopupStatusCreated,
		PaymentID: &payment.ID,
	}, nil
}

func (s *Service) GetPayment(ctx context.Context, id snowflake.ID) (*paymentdomain.Payment, error) {
	payment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *Service) storePayment(ctx context.Context, userID string, walletID snowflake.ID, currency string, amount int64, gw *paymentdomain.GatewayPayment, metadata datatypes.JSONMap) (*paymentdomain.Payment, error) {
	now := s.clock.Now().Unix()
	idempotencyKey := uuid.NewString()

	payment := &paymentdomain.Payment{
		ID:             s.genID.Generate(),
		Provider:       s.gateway.Name(),
		Status:         paymentdomain.PaymentStatusPending,
		Kind:           paymentdomain.PaymentKindTopup,
		Amount:         amount,
		Currency:       currency,
		IdempotencyKey: &idempotencyKey,
		Metadata:       metadata,
		UserID:         userID,
		WalletID:       walletID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if gw.ProviderPaymentID != "" {
		payment.ProviderPaymentID = &gw.ProviderPaymentID
	}
	if gw.PaymentMethodID != "" {
		payment.PaymentMethodID = &gw.PaymentMethodID
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *Service) recordAutoTopupFailure(ctx context.Context, wallet *walletdomain.Wallet) {
	next := wallet.AutoTopupFailCount + 1
	updates := map[string]any{
		"auto_topup_fail_count": next,
	}
	if next >= s.cfg.Billing.AutoTopupMaxFailures {
		updates["auto_topup_enabled"] = false
	}
	if _, err := s.wallet.UpdateWallet(ctx, wallet.ID, updates); err != nil {
		s.log.Warn("record auto-topup failure", zap.Error(err))
	}
}

func (s *Service) allowedPackage(amount int64) bool {
	packages := s.cfg.Billing.TopupPackages
	if len(packages) == 0 {
		return true
	}
	for _, p := range packages {
		if p == amount {
			return true
		}
	}
	return false
}
