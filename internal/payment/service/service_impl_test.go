package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/airislabs/kassa/internal/clock"
	"github.com/airislabs/kassa/internal/config"
	paymentdomain "github.com/airislabs/kassa/internal/payment/domain"
	paymentrepo "github.com/airislabs/kassa/internal/payment/repository"
	walletdomain "github.com/airislabs/kassa/internal/wallet/domain"
	walletservice "github.com/airislabs/kassa/internal/wallet/service"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string { return "mock" }

func (m *mockGateway) CreatePayment(ctx context.Context, req paymentdomain.GatewayRequest) (*paymentdomain.GatewayPayment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentdomain.GatewayPayment), args.Error(1)
}

func (m *mockGateway) ChargeSavedMethod(ctx context.Context, req paymentdomain.GatewayRequest) (*paymentdomain.GatewayPayment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentdomain.GatewayPayment), args.Error(1)
}

type fixture struct {
	svc     paymentdomain.Service
	wallet  walletdomain.Service
	gateway *mockGateway
	clock   *clock.FakeClock
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&walletdomain.Wallet{},
		&walletdomain.LedgerEntry{},
		&paymentdomain.Payment{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	walletSvc := walletservice.NewService(walletservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fc,
	})

	gw := &mockGateway{}
	cfg := config.Config{}
	cfg.Billing.Currency = "RUB"
	cfg.Billing.TopupTTLDays = 365
	cfg.Billing.TopupPackages = []int64{10000, 50000}
	cfg.Billing.AutoTopupMaxFailures = 3

	svc := NewService(Params{
		Cfg:     cfg,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fc,
		Repo:    paymentrepo.Provide(conn),
		Wallet:  walletSvc,
		Gateway: gw,
	})
	return &fixture{svc: svc, wallet: walletSvc, gateway: gw, clock: fc}
}

func (f *fixture) newWallet(t *testing.T) *walletdomain.Wallet {
	t.Helper()
	wallet, err := f.wallet.GetOrCreateWallet(context.Background(), "user-1", "RUB")
	require.NoError(t, err)
	return wallet
}

func TestCreateTopupPayment(t *testing.T) {
	t.Run("creates a pending payment with confirmation url", func(t *testing.T) {
		f := setup(t)
		wallet := f.newWallet(t)

		f.gateway.On("CreatePayment", mock.Anything, mock.MatchedBy(func(req paymentdomain.GatewayRequest) bool {
			return req.Amount == 10000 && req.Currency == "RUB" && !req.SavePaymentMethod
		})).Return(&paymentdomain.GatewayPayment{
			ProviderPaymentID: "prov-1",
			ConfirmationURL:   "https://pay.example/confirm",
		}, nil)

		result, err := f.svc.CreateTopupPayment(context.Background(), "user-1", wallet.ID, 10000, "https://app.example/return")
		require.NoError(t, err)
		assert.Equal(t, paymentdomain.PaymentStatusPending, result.Payment.Status)
		assert.Equal(t, "https://pay.example/confirm", result.ConfirmationURL)
		require.NotNil(t, result.Payment.ProviderPaymentID)
		assert.Equal(t, "prov-1", *result.Payment.ProviderPaymentID)
	})

	t.Run("rejects amounts outside the packages", func(t *testing.T) {
		f := setup(t)
		wallet := f.newWallet(t)

		_, err := f.svc.CreateTopupPayment(context.Background(), "user-1", wallet.ID, 12345, "")
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidTopupAmount)

		_, err = f.svc.CreateTopupPayment(context.Background(), "user-1", wallet.ID, 0, "")
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidTopupAmount)
	})

	t.Run("requests card vaulting when auto-topup is on", func(t *testing.T) {
		f := setup(t)
		wallet := f.newWallet(t)
		_, err := f.wallet.UpdateWallet(context.Background(), wallet.ID, map[string]any{
			"auto_topup_enabled": true,
		})
		require.NoError(t, err)

		f.gateway.On("CreatePayment", mock.Anything, mock.MatchedBy(func(req paymentdomain.GatewayRequest) bool {
			return req.SavePaymentMethod
		})).Return(&paymentdomain.GatewayPayment{ProviderPaymentID: "prov-2"}, nil)

		_, err = f.svc.CreateTopupPayment(context.Background(), "user-1", wallet.ID, 10000, "")
		require.NoError(t, err)
		f.gateway.AssertExpectations(t)
	})
}

func TestApplySucceededTopup(t *testing.T) {
	create := func(t *testing.T, f *fixture, wallet *walletdomain.Wallet) *paymentdomain.Payment {
		t.Helper()
		f.gateway.On("CreatePayment", mock.Anything, mock.Anything).
			Return(&paymentdomain.GatewayPayment{ProviderPaymentID: "prov-1"}, nil).Once()
		result, err := f.svc.CreateTopupPayment(context.Background(), "user-1", wallet.ID, 10000, "")
		require.NoError(t, err)
		return result.Payment
	}

	t.Run("credits the wallet once", func(t *testing.T) {
		f := setup(t)
		wallet := f.newWallet(t)
		create(t, f, wallet)
		ctx := context.Background()

		payment, err := f.svc.ApplySucceededTopup(ctx, "prov-1")
		require.NoError(t, err)
		assert.Equal(t, paymentdomain.PaymentStatusSucceeded, payment.Status)

		wallet, err = f.wallet.GetWalletByID(ctx, wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), wallet.BalanceTopup)

		// Duplicate webhook delivery must not double-credit.
		_, err = f.svc.ApplySucceededTopup(ctx, "prov-1")
		require.NoError(t, err)
		wallet, err = f.wallet.GetWalletByID(ctx, wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), wallet.BalanceTopup)
	})

	t.Run("unknown provider payment id", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.ApplySucceededTopup(context.Background(), "prov-missing")
		assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)
	})
}

func TestMaybeTriggerAutoTopup(t *testing.T) {
	enable := func(t *testing.T, f *fixture, wallet *walletdomain.Wallet) {
		t.Helper()
		method := "pm-1"
		_, err := f.wallet.UpdateWallet(context.Background(), wallet.ID, map[string]any{
			"auto_topup_enabled":           true,
			"auto_topup_threshold":         int64(5000),
			"auto_topup_amount":            int64(10000),
			"auto_topup_payment_method_id": method,
		})
		require.NoError(t, err)
	}

	t.Run("disabled wallet does not attempt", func(t *testing.T) {
		f := setup(t)
		wallet := f.newWallet(t)

		result, err := f.svc.MaybeTriggerAutoTopup(context.Background(), "user-1", wallet.ID, 100, 500, "text_preflight")
		require.NoError(t, err)
		assert.False(t, result.Attempted)
		assert.Equal(t, paymentdomain.AutoTopupStatusDisabled, result.Status)
	})

	t.Run("above threshold does not attempt", func(t *testing.T) {
		f := setup(t)
		wallet := f.newWallet(t)
		enable(t, f, wallet)

		result, err := f.svc.MaybeTriggerAutoTopup(context.Background(), "user-1", wallet.ID, 9000, 500, "text_preflight")
		require.NoError(t, err)
		assert.Equal(t, paymentdomain.AutoTopupStatusAboveThreshold, result.Status)
	})

	t.Run("charges the saved method below threshold", func(t *testing.T) {
		f := setup(t)
		wallet := f.newWallet(t)
		enable(t, f, wallet)

		f.gateway.On("ChargeSavedMethod", mock.Anything, mock.MatchedBy(func(req paymentdomain.GatewayRequest) bool {
			return req.Amount == 10000 && req.PaymentMethodID == "pm-1"
		})).Return(&paymentdomain.GatewayPayment{ProviderPaymentID: "prov-auto-1"}, nil)

		result, err := f.svc.MaybeTriggerAutoTopup(context.Background(), "user-1", wallet.ID, 100, 500, "text_preflight")
		require.NoError(t, err)
		assert.True(t, result.Attempted)
		assert.Equal(t, paymentdomain.AutoTopupStatusCreated, result.Status)
		require.NotNil(t, result.PaymentID)

		payment, err := f.svc.GetPayment(context.Background(), *result.PaymentID)
		require.NoError(t, err)
		assert.True(t, payment.AutoTopup())
		assert.Equal(t, paymentdomain.PaymentStatusPending, payment.Status)
	})

	t.Run("pending topup blocks a second attempt", func(t *testing.T) {
		f := setup(t)
		wallet := f.newWallet(t)
		enable(t, f, wallet)

		f.gateway.On("ChargeSavedMethod", mock.Anything, mock.Anything).
			Return(&paymentdomain.GatewayPayment{ProviderPaymentID: "prov-auto-1"}, nil).Once()

		_, err := f.svc.MaybeTriggerAutoTopup(context.Background(), "user-1", wallet.ID, 100, 500, "text_preflight")
		require.NoError(t, err)

		result, err := f.svc.MaybeTriggerAutoTopup(context.Background(), "user-1", wallet.ID, 100, 500, "text_preflight")
		require.NoError(t, err)
		assert.Equal(t, paymentdomain.AutoTopupStatusPending, result.Status)
	})

	t.Run("gateway failures count toward the limit and disable at three", func(t *testing.T) {
		f := setup(t)
		wallet := f.newWallet(t)
		enable(t, f, wallet)
		ctx := context.Background()

		f.gateway.On("ChargeSavedMethod", mock.Anything, mock.Anything).
			Return(nil, errors.New("card declined"))

		for i := 0; i < 3; i++ {
			result, err := f.svc.MaybeTriggerAutoTopup(ctx, "user-1", wallet.ID, 100, 500, "text_preflight")
			require.NoError(t, err)
			assert.Equal(t, paymentdomain.AutoTopupStatusFailed, result.Status)
		}

		result, err := f.svc.MaybeTriggerAutoTopup(ctx, "user-1", wallet.ID, 100, 500, "text_preflight")
		require.NoError(t, err)
		assert.Equal(t, paymentdomain.AutoTopupStatusFailLimit, result.Status)

		wallet, err = f.wallet.GetWalletByID(ctx, wallet.ID)
		require.NoError(t, err)
		assert.False(t, wallet.AutoTopupEnabled)
	})

	t.Run("successful topup resets the failure counter", func(t *testing.T) {
		f := setup(t)
		wallet := f.newWallet(t)
		enable(t, f, wallet)
		ctx := context.Background()

		f.gateway.On("ChargeSavedMethod", mock.Anything, mock.Anything).
			Return(nil, errors.New("card declined")).Once()
		_, err := f.svc.MaybeTriggerAutoTopup(ctx, "user-1", wallet.ID, 100, 500, "text_preflight")
		require.NoError(t, err)

		f.gateway.On("ChargeSavedMethod", mock.Anything, mock.Anything).
			Return(&paymentdomain.GatewayPayment{ProviderPaymentID: "prov-auto-2"}, nil).Once()
		result, err := f.svc.MaybeTriggerAutoTopup(ctx, "user-1", wallet.ID, 100, 500, "text_preflight")
		require.NoError(t, err)
		assert.Equal(t, paymentdomain.AutoTopupStatusCreated, result.Status)

		_, err = f.svc.ApplySucceededTopup(ctx, "prov-auto-2")
		require.NoError(t, err)

		wallet, err = f.wallet.GetWalletByID(ctx, wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, wallet.AutoTopupFailCount)
		assert.Equal(t, int64(10000), wallet.BalanceTopup)
	})
}

func TestMarkPaymentFailed(t *testing.T) {
	f := setup(t)
	wallet := f.newWallet(t)

	f.gateway.On("CreatePayment", mock.Anything, mock.Anything).
		Return(&paymentdomain.GatewayPayment{ProviderPaymentID: "prov-1"}, nil)
	_, err := f.svc.CreateTopupPayment(context.Background(), "user-1", wallet.ID, 10000, "")
	require.NoError(t, err)

	payment, err := f.svc.MarkPaymentFailed(context.Background(), "prov-1", paymentdomain.PaymentStatusCanceled)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusCanceled, payment.Status)

	// The wallet was never credited.
	wallet, err = f.wallet.GetWalletByID(context.Background(), wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.Available())
}
