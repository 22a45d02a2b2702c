package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/airislabs/kassa/internal/clock"
	"github.com/airislabs/kassa/internal/wallet/domain"
	"github.com/airislabs/kassa/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, conn.AutoMigrate(&domain.Wallet{}, &domain.LedgerEntry{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fc,
	})
	return svc, conn, fc
}

func fundedWallet(t *testing.T, svc domain.Service, conn *gorm.DB, included, topup int64) *domain.Wallet {
	t.Helper()

	wallet, err := svc.GetOrCreateWallet(context.Background(), "user-1", "RUB")
	require.NoError(t, err)

	require.NoError(t, conn.Model(wallet).Updates(map[string]any{
		"balance_included": included,
		"balance_topup":    topup,
	}).Error)

	wallet, err = svc.GetWalletByID(context.Background(), wallet.ID)
	require.NoError(t, err)
	return wallet
}

// ledgerSum folds all entry amounts for a wallet. The fold must always equal
// the wallet's available balance.
func ledgerSum(t *testing.T, conn *gorm.DB, walletID snowflake.ID) int64 {
	t.Helper()

	var sum *int64
	require.NoError(t, conn.Model(&domain.LedgerEntry{}).
		Where("wallet_id = ?", walletID).
		Select("SUM(amount)").
		Scan(&sum).Error)
	if sum == nil {
		return 0
	}
	return *sum
}

func TestGetOrCreateWallet(t *testing.T) {
	svc, _, fc := setupService(t)
	ctx := context.Background()

	wallet, err := svc.GetOrCreateWallet(ctx, "user-1", "RUB")
	require.NoError(t, err)
	assert.Equal(t, "user-1", wallet.UserID)
	assert.Equal(t, "RUB", wallet.Currency)
	assert.Equal(t, int64(0), wallet.Available())
	assert.Equal(t, fc.Now().Unix()+86400, wallet.DailyResetAt)

	again, err := svc.GetOrCreateWallet(ctx, "user-1", "RUB")
	require.NoError(t, err)
	assert.Equal(t, wallet.ID, again.ID)

	other, err := svc.GetOrCreateWallet(ctx, "user-1", "USD")
	require.NoError(t, err)
	assert.NotEqual(t, wallet.ID, other.ID)
}

func TestHoldFunds(t *testing.T) {
	t.Run("debits included before topup", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 100, 500)

		entry, err := svc.HoldFunds(context.Background(), domain.HoldRequest{
			WalletID:      wallet.ID,
			Amount:        300,
			ReferenceID:   "req-1",
			ReferenceType: "chat_completion",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.EntryTypeHold, entry.Type)
		assert.Equal(t, int64(-300), entry.Amount)
		assert.EqualValues(t, 100, entry.Metadata[domain.MetaHeldIncluded])
		assert.EqualValues(t, 200, entry.Metadata[domain.MetaHeldTopup])

		wallet, err = svc.GetWalletByID(context.Background(), wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), wallet.BalanceIncluded)
		assert.Equal(t, int64(300), wallet.BalanceTopup)
		assert.Equal(t, wallet.Available(), ledgerSum(t, conn, wallet.ID))
	})

	t.Run("insufficient funds leaves balances untouched", func(t *testing.T) {
		svc, _, _ := setupService(t)
		ctx := context.Background()

		wallet, err := svc.GetOrCreateWallet(ctx, "user-1", "RUB")
		require.NoError(t, err)

		_, err = svc.HoldFunds(ctx, domain.HoldRequest{
			WalletID:      wallet.ID,
			Amount:        1,
			ReferenceID:   "req-1",
			ReferenceType: "chat_completion",
		})
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

		wallet, err = svc.GetWalletByID(ctx, wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), wallet.Available())
	})

	t.Run("replay returns the original hold", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 0, 1000)

		req := domain.HoldRequest{
			WalletID:      wallet.ID,
			Amount:        400,
			ReferenceID:   "req-1",
			ReferenceType: "chat_completion",
		}
		first, err := svc.HoldFunds(context.Background(), req)
		require.NoError(t, err)
		second, err := svc.HoldFunds(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		wallet, err = svc.GetWalletByID(context.Background(), wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(600), wallet.Available())
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 0, 1000)

		_, err := svc.HoldFunds(context.Background(), domain.HoldRequest{
			WalletID:      wallet.ID,
			Amount:        0,
			ReferenceID:   "req-1",
			ReferenceType: "chat_completion",
		})
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		svc, _, _ := setupService(t)

		_, err := svc.HoldFunds(context.Background(), domain.HoldRequest{
			WalletID:      snowflake.ID(42),
			Amount:        100,
			ReferenceID:   "req-1",
			ReferenceType: "chat_completion",
		})
		assert.ErrorIs(t, err, domain.ErrWalletNotFound)
	})
}

func TestSettleHold(t *testing.T) {
	hold := func(t *testing.T, svc domain.Service, walletID snowflake.ID, amount int64) {
		t.Helper()
		_, err := svc.HoldFunds(context.Background(), domain.HoldRequest{
			WalletID:      walletID,
			Amount:        amount,
			ReferenceID:   "req-1",
			ReferenceType: "chat_completion",
		})
		require.NoError(t, err)
	}

	t.Run("partial settle releases the remainder topup first", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 100, 500)
		hold(t, svc, wallet.ID, 300) // held_included=100, held_topup=200

		charge, err := svc.SettleHold(context.Background(), domain.SettleRequest{
			WalletID:      wallet.ID,
			ReferenceID:   "req-1",
			ReferenceType: "chat_completion",
			Amount:        120,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.EntryTypeCharge, charge.Type)
		assert.Equal(t, int64(0), charge.Amount)
		assert.EqualValues(t, 120, charge.Metadata[domain.MetaCharged])

		var release domain.LedgerEntry
		require.NoError(t, conn.
			Where("reference_id = ? AND type = ?", "req-1", domain.EntryTypeRelease).
			First(&release).Error)
		assert.Equal(t, int64(180), release.Amount)
		assert.EqualValues(t, 180, release.Metadata[domain.MetaReleaseTopup])
		assert.EqualValues(t, 0, release.Metadata[domain.MetaReleaseIncluded])

		wallet, err = svc.GetWalletByID(context.Background(), wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), wallet.BalanceIncluded)
		assert.Equal(t, int64(480), wallet.BalanceTopup)
		assert.Equal(t, int64(120), wallet.DailySpent)
		assert.Equal(t, wallet.Available(), ledgerSum(t, conn, wallet.ID))
	})

	t.Run("release remainder spills into included", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 250, 50)
		hold(t, svc, wallet.ID, 300) // held_included=250, held_topup=50

		_, err := svc.SettleHold(context.Background(), domain.SettleRequest{
			WalletID:      wallet.ID,
			ReferenceID:   "req-1",
			ReferenceType: "chat_completion",
			Amount:        100,
		})
		require.NoError(t, err)

		// 200 released: 50 from topup, 150 back to included.
		wallet, err = svc.GetWalletByID(context.Background(), wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(150), wallet.BalanceIncluded)
		assert.Equal(t, int64(50), wallet.BalanceTopup)
	})

	t.Run("full settle writes no release entry", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 0, 500)
		hold(t, svc, wallet.ID, 300)

		_, err := svc.SettleHold(context.Background(), domain.SettleRequest{
			WalletID:      wallet.ID,
			ReferenceID:   "req-1",
			ReferenceType: "chat_completion",
			Amount:        300,
		})
		require.NoError(t, err)

		var count int64
		require.NoError(t, conn.Model(&domain.LedgerEntry{}).
			Where("type = ?", domain.EntryTypeRelease).
			Count(&count).Error)
		assert.Equal(t, int64(0), count)

		wallet, err = svc.GetWalletByID(context.Background(), wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(200), wallet.Available())
		assert.Equal(t, int64(300), wallet.DailySpent)
	})

	t.Run("settle above hold fails", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 0, 500)
		hold(t, svc, wallet.ID, 300)

		_, err := svc.SettleHold(context.Background(), domain.SettleRequest{
			WalletID:      wallet.ID,
			ReferenceID:   "req-1",
			ReferenceType: "chat_completion",
			Amount:        301,
		})
		assert.ErrorIs(t, err, domain.ErrSettleExceedsHold)
	})

	t.Run("repeat settle returns the existing charge", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 0, 500)
		hold(t, svc, wallet.ID, 300)

		req := domain.SettleRequest{
			WalletID:      wallet.ID,
			ReferenceID:   "req-1",
			ReferenceType: "chat_completion",
			Amount:        200,
		}
		first, err := svc.SettleHold(context.Background(), req)
		require.NoError(t, err)

		req.Amount = 50
		second, err := svc.SettleHold(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		wallet, err = svc.GetWalletByID(context.Background(), wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(200), wallet.DailySpent)
	})

	t.Run("settle without hold fails", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 0, 500)

		_, err := svc.SettleHold(context.Background(), domain.SettleRequest{
			WalletID:      wallet.ID,
			ReferenceID:   "req-missing",
			ReferenceType: "chat_completion",
			Amount:        100,
		})
		assert.ErrorIs(t, err, domain.ErrHoldNotFound)
	})
}

func TestReleaseHold(t *testing.T) {
	t.Run("reverses the recorded breakdown", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 100, 500)

		_, err := svc.HoldFunds(context.Background(), domain.HoldRequest{
			WalletID:      wallet.ID,
			Amount:        300,
			ReferenceID:   "req-1",
			ReferenceType: "chat_completion",
		})
		require.NoError(t, err)

		entry, err := svc.ReleaseHold(context.Background(), wallet.ID, "req-1", "chat_completion")
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, int64(300), entry.Amount)

		wallet, err = svc.GetWalletByID(context.Background(), wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(100), wallet.BalanceIncluded)
		assert.Equal(t, int64(500), wallet.BalanceTopup)
		assert.Equal(t, wallet.Available(), ledgerSum(t, conn, wallet.ID))
	})

	t.Run("repeat release returns the same entry", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 0, 500)

		_, err := svc.HoldFunds(context.Background(), domain.HoldRequest{
			WalletID:      wallet.ID,
			Amount:        200,
			ReferenceID:   "req-1",
			ReferenceType: "chat_completion",
		})
		require.NoError(t, err)

		first, err := svc.ReleaseHold(context.Background(), wallet.ID, "req-1", "chat_completion")
		require.NoError(t, err)
		second, err := svc.ReleaseHold(context.Background(), wallet.ID, "req-1", "chat_completion")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		wallet, err = svc.GetWalletByID(context.Background(), wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(500), wallet.Available())
	})

	t.Run("release after settle is a no-op", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 0, 500)

		_, err := svc.HoldFunds(context.Background(), domain.HoldRequest{
			WalletID:      wallet.ID,
			Amount:        200,
			ReferenceID:   "req-1",
			ReferenceType: "chat_completion",
		})
		require.NoError(t, err)
		_, err = svc.SettleHold(context.Background(), domain.SettleRequest{
			WalletID:      wallet.ID,
			ReferenceID:   "req-1",
			ReferenceType: "chat_completion",
			Amount:        200,
		})
		require.NoError(t, err)

		entry, err := svc.ReleaseHold(context.Background(), wallet.ID, "req-1", "chat_completion")
		require.NoError(t, err)
		assert.Nil(t, entry)

		wallet, err = svc.GetWalletByID(context.Background(), wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(300), wallet.Available())
	})

	t.Run("release without hold fails", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 0, 500)

		_, err := svc.ReleaseHold(context.Background(), wallet.ID, "req-missing", "chat_completion")
		assert.ErrorIs(t, err, domain.ErrHoldNotFound)
	})
}

func TestApplyTopup(t *testing.T) {
	t.Run("credits topup balance", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		ctx := context.Background()

		wallet, err := svc.GetOrCreateWallet(ctx, "user-1", "RUB")
		require.NoError(t, err)

		key := "pay-1"
		entry, err := svc.ApplyTopup(ctx, domain.TopupRequest{
			WalletID:       wallet.ID,
			Amount:         10000,
			ReferenceID:    "pay-1",
			ReferenceType:  "payment",
			IdempotencyKey: &key,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(10000), entry.Amount)

		wallet, err = svc.GetWalletByID(ctx, wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), wallet.BalanceTopup)
		assert.Equal(t, wallet.Available(), ledgerSum(t, conn, wallet.ID))
	})

	t.Run("replay does not double-credit", func(t *testing.T) {
		svc, _, _ := setupService(t)
		ctx := context.Background()

		wallet, err := svc.GetOrCreateWallet(ctx, "user-1", "RUB")
		require.NoError(t, err)

		req := domain.TopupRequest{
			WalletID:      wallet.ID,
			Amount:        10000,
			ReferenceID:   "pay-1",
			ReferenceType: "payment",
		}
		first, err := svc.ApplyTopup(ctx, req)
		require.NoError(t, err)
		second, err := svc.ApplyTopup(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		wallet, err = svc.GetWalletByID(ctx, wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), wallet.BalanceTopup)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		svc, _, _ := setupService(t)
		ctx := context.Background()

		wallet, err := svc.GetOrCreateWallet(ctx, "user-1", "RUB")
		require.NoError(t, err)

		_, err = svc.ApplyTopup(ctx, domain.TopupRequest{
			WalletID:      wallet.ID,
			Amount:        -5,
			ReferenceID:   "pay-1",
			ReferenceType: "payment",
		})
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})
}

func TestApplyAdjustment(t *testing.T) {
	t.Run("debit clamps at available balance", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 100, 50)

		entry, err := svc.ApplyAdjustment(context.Background(), domain.AdjustmentRequest{
			WalletID:      wallet.ID,
			Amount:        -200,
			ReferenceID:   "req-1",
			ReferenceType: "overage",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(-150), entry.Amount)
		assert.EqualValues(t, 100, entry.Metadata[domain.MetaDebitIncluded])
		assert.EqualValues(t, 50, entry.Metadata[domain.MetaDebitTopup])
		assert.EqualValues(t, 50, entry.Metadata[domain.MetaDebitShortfall])

		wallet, err = svc.GetWalletByID(context.Background(), wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), wallet.Available())
		assert.Equal(t, wallet.Available(), ledgerSum(t, conn, wallet.ID))
	})

	t.Run("debit with sufficient funds applies in full", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 0, 100000)

		entry, err := svc.ApplyAdjustment(context.Background(), domain.AdjustmentRequest{
			WalletID:      wallet.ID,
			Amount:        -730,
			ReferenceID:   "req-1",
			ReferenceType: "chat_completion",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(-730), entry.Amount)
		assert.NotContains(t, entry.Metadata, domain.MetaDebitShortfall)
	})

	t.Run("credit goes to topup balance", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 0, 0)

		_, err := svc.ApplyAdjustment(context.Background(), domain.AdjustmentRequest{
			WalletID:      wallet.ID,
			Amount:        500,
			ReferenceID:   "req-1",
			ReferenceType: "goodwill",
		})
		require.NoError(t, err)

		wallet, err = svc.GetWalletByID(context.Background(), wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(500), wallet.BalanceTopup)
	})

	t.Run("replay returns the original entry", func(t *testing.T) {
		svc, conn, _ := setupService(t)
		wallet := fundedWallet(t, svc, conn, 0, 1000)

		req := domain.AdjustmentRequest{
			WalletID:      wallet.ID,
			Amount:        -100,
			ReferenceID:   "req-1",
			ReferenceType: "overage",
		}
		first, err := svc.ApplyAdjustment(context.Background(), req)
		require.NoError(t, err)
		second, err := svc.ApplyAdjustment(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		wallet, err = svc.GetWalletByID(context.Background(), wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(900), wallet.Available())
	})
}

func TestDailySpendWindow(t *testing.T) {
	svc, conn, fc := setupService(t)
	wallet := fundedWallet(t, svc, conn, 0, 10000)
	ctx := context.Background()

	_, err := svc.HoldFunds(ctx, domain.HoldRequest{
		WalletID:      wallet.ID,
		Amount:        500,
		ReferenceID:   "req-1",
		ReferenceType: "chat_completion",
	})
	require.NoError(t, err)
	_, err = svc.SettleHold(ctx, domain.SettleRequest{
		WalletID:      wallet.ID,
		ReferenceID:   "req-1",
		ReferenceType: "chat_completion",
		Amount:        500,
	})
	require.NoError(t, err)

	wallet, err = svc.GetWalletByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), wallet.DailySpent)

	fc.Advance(25 * time.Hour)

	wallet, err = svc.RefreshWallet(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.DailySpent)
	assert.Equal(t, fc.Now().Unix()+86400, wallet.DailyResetAt)
}

func TestIncludedBalanceExpiry(t *testing.T) {
	svc, conn, fc := setupService(t)
	ctx := context.Background()

	wallet, err := svc.GetOrCreateWallet(ctx, "user-1", "RUB")
	require.NoError(t, err)

	expiresAt := fc.Now().Add(time.Hour).Unix()
	require.NoError(t, conn.Model(wallet).Updates(map[string]any{
		"balance_included":    700,
		"included_expires_at": expiresAt,
	}).Error)

	fc.Advance(2 * time.Hour)

	wallet, err = svc.RefreshWallet(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.BalanceIncluded)
	assert.Nil(t, wallet.IncludedExpiresAt)

	var entry domain.LedgerEntry
	require.NoError(t, conn.
		Where("wallet_id = ? AND type = ?", wallet.ID, domain.EntryTypeAdjustment).
		First(&entry).Error)
	assert.Equal(t, int64(-700), entry.Amount)
	assert.Equal(t, "wallet_expiry", entry.ReferenceType)
	assert.EqualValues(t, "included_expired", entry.Metadata[domain.MetaReason])
	assert.Equal(t, wallet.Available(), ledgerSum(t, conn, wallet.ID))

	// A second refresh must not expire again.
	wallet, err = svc.RefreshWallet(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.Available(), ledgerSum(t, conn, wallet.ID))
}

func TestListEntriesByUser(t *testing.T) {
	svc, conn, _ := setupService(t)
	wallet := fundedWallet(t, svc, conn, 0, 100000)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.HoldFunds(ctx, domain.HoldRequest{
			WalletID:      wallet.ID,
			Amount:        100,
			ReferenceID:   fmt.Sprintf("req-%d", i),
			ReferenceType: "chat_completion",
		})
		require.NoError(t, err)
	}

	page, info, err := svc.ListEntriesByUser(ctx, domain.ListEntriesRequest{
		UserID: wallet.UserID,
		Page:   pageOf("", 3),
	})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.True(t, info.HasMore)
	assert.Equal(t, "req-4", page[0].ReferenceID)

	rest, info, err := svc.ListEntriesByUser(ctx, domain.ListEntriesRequest{
		UserID: wallet.UserID,
		Page:   pageOf(info.NextPageToken, 3),
	})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.False(t, info.HasMore)
	assert.Equal(t, "req-0", rest[1].ReferenceID)

	holds, _, err := svc.ListEntriesByUser(ctx, domain.ListEntriesRequest{
		UserID: wallet.UserID,
		Types:  []domain.EntryType{domain.EntryTypeHold},
		Page:   pageOf("", 50),
	})
	require.NoError(t, err)
	assert.Len(t, holds, 5)
}

func pageOf(token string, size int) pagination.Pagination {
	return pagination.Pagination{PageToken: token, PageSize: size}
}
