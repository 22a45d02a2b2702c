package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/airislabs/kassa/internal/clock"
	obsmetrics "github.com/airislabs/kassa/internal/observability/metrics"
	walletdomain "github.com/airislabs/kassa/internal/wallet/domain"
	"github.com/airislabs/kassa/pkg/db"
	"github.com/airislabs/kassa/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) walletdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("wallet.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) GetOrCreateWallet(ctx context.Context, userID, currency string) (*walletdomain.Wallet, error) {
	var wallet walletdomain.Wallet
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", userID, currency).
		First(&wallet).Error
	if err == nil {
		return &wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load wallet: %w", err)
	}

	now := s.clock.Now().Unix()
	wallet = walletdomain.Wallet{
		ID:           s.genID.Generate(),
		UserID:       userID,
		Currency:     currency,
		DailyResetAt: now + 86400,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&wallet).Error; err != nil {
		// Concurrent creation loses the race on the (user_id, currency)
		// unique index and reads the winner's row.
		if db.IsDuplicateKeyErr(err) {
			var existing walletdomain.Wallet
			if rerr := s.db.WithContext(ctx).
				Where("user_id = ? AND currency = ?", userID, currency).
				First(&existing).Error; rerr == nil {
				return &existing, nil
			}
		}
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	s.log.Info("wallet created", zap.String("user_id", userID), zap.String("currency", currency))
	return &wallet, nil
}

func (s *Service) GetWalletByID(ctx context.Context, walletID snowflake.ID) (*walletdomain.Wallet, error) {
	var wallet walletdomain.Wallet
	err := s.db.WithContext(ctx).First(&wallet, "id = ?", walletID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, walletdomain.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (s *Service) GetWalletByUser(ctx context.Context, userID, currency string) (*walletdomain.Wallet, error) {
	var wallet walletdomain.Wallet
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", userID, currency).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, walletdomain.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (s *Service) RefreshWallet(ctx context.Context, walletID snowflake.ID) (*walletdomain.Wallet, error) {
	var wallet *walletdomain.Wallet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.lockWallet(tx, walletID)
		if err != nil {
			return err
		}
		now := s.clock.Now().Unix()
		if err := s.refreshLocked(tx, w, now); err != nil {
			return err
		}
		w.UpdatedAt = now
		if err := tx.Save(w).Error; err != nil {
			return err
		}
		wallet = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (s *Service) UpdateWallet(ctx context.Context, walletID snowflake.ID, updates map[string]any) (*walletdomain.Wallet, error) {
	if len(updates) > 0 {
		updates["updated_at"] = s.clock.Now().Unix()
		if err := s.db.WithContext(ctx).
			Model(&walletdomain.Wallet{}).
			Where("id = ?", walletID).
			Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.GetWalletByID(ctx, walletID)
}

func (s *Service) HoldFunds(ctx context.Context, req walletdomain.HoldRequest) (*walletdomain.LedgerEntry, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("hold amount must be positive: %w", walletdomain.ErrInvalidAmount)
	}

	var entry *walletdomain.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.lockWallet(tx, req.WalletID)
		if err != nil {
			return err
		}
		now := s.clock.Now().Unix()
		if err := s.refreshLocked(tx, w, now); err != nil {
			return err
		}

		existing, err := findEntry(tx, req.ReferenceType, req.ReferenceID, walletdomain.EntryTypeHold)
		if err != nil {
			return err
		}
		if existing != nil {
			entry = existing
			return nil
		}

		heldIncluded := min64(w.BalanceIncluded, req.Amount)
		heldTopup := min64(w.BalanceTopup, req.Amount-heldIncluded)
		if heldIncluded+heldTopup < req.Amount {
			return walletdomain.ErrInsufficientFunds
		}

		w.BalanceIncluded -= heldIncluded
		w.BalanceTopup -= heldTopup
		w.UpdatedAt = now
		if err := tx.Save(w).Error; err != nil {
			return err
		}

		entry = &walletdomain.LedgerEntry{
			ID:                   s.genID.Generate(),
			UserID:               w.UserID,
			WalletID:             w.ID,
			Currency:             w.Currency,
			Type:                 walletdomain.EntryTypeHold,
			Amount:               -req.Amount,
			BalanceIncludedAfter: w.BalanceIncluded,
			BalanceTopupAfter:    w.BalanceTopup,
			ReferenceID:          req.ReferenceID,
			ReferenceType:        req.ReferenceType,
			IdempotencyKey:       req.IdempotencyKey,
			HoldExpiresAt:        req.HoldExpiresAt,
			Metadata: datatypes.JSONMap{
				walletdomain.MetaHeldIncluded: heldIncluded,
				walletdomain.MetaHeldTopup:    heldTopup,
			},
			CreatedAt: now,
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.findEntryByReference(ctx, req.ReferenceType, req.ReferenceID, walletdomain.EntryTypeHold)
		}
		return nil, err
	}
	s.obsMetrics.RecordHold(ctx, req.ReferenceType)
	return entry, nil
}

func (s *Service) SettleHold(ctx context.Context, req walletdomain.SettleRequest) (*walletdomain.LedgerEntry, error) {
	if req.Amount < 0 {
		return nil, fmt.Errorf("settle amount must be non-negative: %w", walletdomain.ErrInvalidAmount)
	}

	var entry *walletdomain.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.lockWallet(tx, req.WalletID)
		if err != nil {
			return err
		}
		now := s.clock.Now().Unix()

		hold, err := findEntry(tx, req.ReferenceType, req.ReferenceID, walletdomain.EntryTypeHold)
		if err != nil {
			return err
		}
		if hold == nil {
			return walletdomain.ErrHoldNotFound
		}

		charge, err := findEntry(tx, req.ReferenceType, req.ReferenceID, walletdomain.EntryTypeCharge)
		if err != nil {
			return err
		}
		if charge != nil {
			entry = charge
			return nil
		}

		held := abs64(hold.Amount)
		if req.Amount > held {
			return walletdomain.ErrSettleExceedsHold
		}

		if delta := held - req.Amount; delta > 0 {
			releaseTopup, releaseIncluded := releaseBreakdown(hold.Metadata, delta)
			w.BalanceTopup += releaseTopup
			w.BalanceIncluded += releaseIncluded

			release := &walletdomain.LedgerEntry{
				ID:                   s.genID.Generate(),
				UserID:               w.UserID,
				WalletID:             w.ID,
				Currency:             w.Currency,
				Type:                 walletdomain.EntryTypeRelease,
				Amount:               delta,
				BalanceIncludedAfter: w.BalanceIncluded,
				BalanceTopupAfter:    w.BalanceTopup,
				ReferenceID:          req.ReferenceID,
				ReferenceType:        req.ReferenceType,
				Metadata: datatypes.JSONMap{
					walletdomain.MetaReleaseTopup:    releaseTopup,
					walletdomain.MetaReleaseIncluded: releaseIncluded,
				},
				CreatedAt: now,
			}
			if err := tx.Create(release).Error; err != nil {
				return err
			}
		}

		w.DailySpent += req.Amount
		w.UpdatedAt = now
		if err := tx.Save(w).Error; err != nil {
			return err
		}

		entry = &walletdomain.LedgerEntry{
			ID:                   s.genID.Generate(),
			UserID:               w.UserID,
			WalletID:             w.ID,
			Currency:             w.Currency,
			Type:                 walletdomain.EntryTypeCharge,
			Amount:               0,
			ChargedInput:         req.ChargedInput,
			ChargedOutput:        req.ChargedOutput,
			BalanceIncludedAfter: w.BalanceIncluded,
			BalanceTopupAfter:    w.BalanceTopup,
			ReferenceID:          req.ReferenceID,
			ReferenceType:        req.ReferenceType,
			Metadata: datatypes.JSONMap{
				walletdomain.MetaCharged: req.Amount,
			},
			CreatedAt: now,
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.findEntryByReference(ctx, req.ReferenceType, req.ReferenceID, walletdomain.EntryTypeCharge)
		}
		return nil, err
	}
	s.obsMetrics.RecordSettle(ctx, req.ReferenceType, req.Amount)
	return entry, nil
}

// ReleaseHold returns the release entry, or nil when the hold was already
// settled and there is nothing to return.
func (s *Service) ReleaseHold(ctx context.Context, walletID snowflake.ID, referenceID, referenceType string) (*walletdomain.LedgerEntry, error) {
	var entry *walletdomain.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.lockWallet(tx, walletID)
		if err != nil {
			return err
		}
		now := s.clock.Now().Unix()
		if err := s.refreshLocked(tx, w, now); err != nil {
			return err
		}

		hold, err := findEntry(tx, referenceType, referenceID, walletdomain.EntryTypeHold)
		if err != nil {
			return err
		}
		if hold == nil {
			return walletdomain.ErrHoldNotFound
		}

		charge, err := findEntry(tx, referenceType, referenceID, walletdomain.EntryTypeCharge)
		if err != nil {
			return err
		}
		if charge != nil {
			return nil
		}

		released, err := findEntry(tx, referenceType, referenceID, walletdomain.EntryTypeRelease)
		if err != nil {
			return err
		}
		if released != nil {
			entry = released
			return nil
		}

		held := abs64(hold.Amount)
		releaseTopup, releaseIncluded := releaseBreakdown(hold.Metadata, held)

		w.BalanceTopup += releaseTopup
		w.BalanceIncluded += releaseIncluded
		w.UpdatedAt = now
		if err := tx.Save(w).Error; err != nil {
			return err
		}

		entry = &walletdomain.LedgerEntry{
			ID:                   s.genID.Generate(),
			UserID:               w.UserID,
			WalletID:             w.ID,
			Currency:             w.Currency,
			Type:                 walletdomain.EntryTypeRelease,
			Amount:               held,
			BalanceIncludedAfter: w.BalanceIncluded,
			BalanceTopupAfter:    w.BalanceTopup,
			ReferenceID:          referenceID,
			ReferenceType:        referenceType,
			Metadata: datatypes.JSONMap{
				walletdomain.MetaReleaseTopup:    releaseTopup,
				walletdomain.MetaReleaseIncluded: releaseIncluded,
			},
			CreatedAt: now,
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.findEntryByReference(ctx, referenceType, referenceID, walletdomain.EntryTypeRelease)
		}
		return nil, err
	}
	if entry != nil {
		s.obsMetrics.RecordRelease(ctx, referenceType)
	}
	return entry, nil
}

func (s *Service) ApplyTopup(ctx context.Context, req walletdomain.TopupRequest) (*walletdomain.LedgerEntry, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("topup amount must be positive: %w", walletdomain.ErrInvalidAmount)
	}

	var entry *walletdomain.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.lockWallet(tx, req.WalletID)
		if err != nil {
			return err
		}
		now := s.clock.Now().Unix()

		existing, err := findEntry(tx, req.ReferenceType, req.ReferenceID, walletdomain.EntryTypeTopup)
		if err != nil {
			return err
		}
		if existing != nil {
			entry = existing
			return nil
		}

		w.BalanceTopup += req.Amount
		w.UpdatedAt = now
		if err := tx.Save(w).Error; err != nil {
			return err
		}

		entry = &walletdomain.LedgerEntry{
			ID:                   s.genID.Generate(),
			UserID:               w.UserID,
			WalletID:             w.ID,
			Currency:             w.Currency,
			Type:                 walletdomain.EntryTypeTopup,
			Amount:               req.Amount,
			BalanceIncludedAfter: w.BalanceIncluded,
			BalanceTopupAfter:    w.BalanceTopup,
			ReferenceID:          req.ReferenceID,
			ReferenceType:        req.ReferenceType,
			IdempotencyKey:       req.IdempotencyKey,
			ExpiresAt:            req.ExpiresAt,
			Metadata:             datatypes.JSONMap(req.Metadata),
			CreatedAt:            now,
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.findEntryByReference(ctx, req.ReferenceType, req.ReferenceID, walletdomain.EntryTypeTopup)
		}
		return nil, err
	}
	s.obsMetrics.RecordTopup(ctx, req.ReferenceType)
	return entry, nil
}

func (s *Service) ApplyAdjustment(ctx context.Context, req walletdomain.AdjustmentRequest) (*walletdomain.LedgerEntry, error) {
	if req.Amount == 0 {
		return nil, fmt.Errorf("adjustment amount must be non-zero: %w", walletdomain.ErrInvalidAmount)
	}

	var entry *walletdomain.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.lockWallet(tx, req.WalletID)
		if err != nil {
			return err
		}
		now := s.clock.Now().Unix()

		existing, err := findEntry(tx, req.ReferenceType, req.ReferenceID, walletdomain.EntryTypeAdjustment)
		if err != nil {
			return err
		}
		if existing != nil {
			entry = existing
			return nil
		}

		metadata := datatypes.JSONMap{}
		for k, v := range req.Metadata {
			metadata[k] = v
		}

		applied := req.Amount
		if req.Amount < 0 {
			// Debits clamp at the available pools so balances never go
			// negative; any shortfall is recorded for reconciliation.
			debit := -req.Amount
			debitIncluded := min64(w.BalanceIncluded, debit)
			debitTopup := min64(w.BalanceTopup, debit-debitIncluded)
			shortfall := debit - debitIncluded - debitTopup

			w.BalanceIncluded -= debitIncluded
			w.BalanceTopup -= debitTopup
			applied = -(debitIncluded + debitTopup)

			metadata[walletdomain.MetaDebitIncluded] = debitIncluded
			metadata[walletdomain.MetaDebitTopup] = debitTopup
			if shortfall > 0 {
				metadata[walletdomain.MetaDebitShortfall] = shortfall
			}
		} else {
			w.BalanceTopup += req.Amount
		}

		w.UpdatedAt = now
		if err := tx.Save(w).Error; err != nil {
			return err
		}

		entry = &walletdomain.LedgerEntry{
			ID:                   s.genID.Generate(),
			UserID:               w.UserID,
			WalletID:             w.ID,
			Currency:             w.Currency,
			Type:                 walletdomain.EntryTypeAdjustment,
			Amount:               applied,
			BalanceIncludedAfter: w.BalanceIncluded,
			BalanceTopupAfter:    w.BalanceTopup,
			ReferenceID:          req.ReferenceID,
			ReferenceType:        req.ReferenceType,
			Metadata:             metadata,
			CreatedAt:            now,
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.findEntryByReference(ctx, req.ReferenceType, req.ReferenceID, walletdomain.EntryTypeAdjustment)
		}
		return nil, err
	}
	s.obsMetrics.RecordAdjustment(ctx, req.ReferenceType)
	return entry, nil
}

func (s *Service) ListEntriesByUser(ctx context.Context, req walletdomain.ListEntriesRequest) ([]*walletdomain.LedgerEntry, *pagination.PageInfo, error) {
	size := req.Page.PageSize
	if size < 1 {
		size = 50
	}
	if size > 250 {
		size = 250
	}

	q := s.db.WithContext(ctx).
		Where("user_id = ?", req.UserID).
		Order("id DESC").
		Limit(size + 1)

	if len(req.Types) > 0 {
		q = q.Where("type IN ?", req.Types)
	}
	if token := req.Page.PageToken; token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, nil, err
		}
		if cursor.ID != "" {
			q = q.Where("id < ?", cursor.ID)
		}
	}

	var entries []*walletdomain.LedgerEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	entries, pageInfo := pagination.BuildCursorPageInfo(entries, size, func(e *walletdomain.LedgerEntry) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: e.ID.String()})
		return token
	})
	return entries, pageInfo, nil
}

func (s *Service) lockWallet(tx *gorm.DB, walletID snowflake.ID) (*walletdomain.Wallet, error) {
	q := tx
	// sqlite does not support row locking; its writer lock covers the
	// transaction instead.
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var wallet walletdomain.Wallet
	err := q.First(&wallet, "id = ?", walletID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, walletdomain.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// refreshLocked rolls the daily spend window and expires included balance.
// Callers hold the wallet row lock and persist the wallet afterwards.
func (s *Service) refreshLocked(tx *gorm.DB, w *walletdomain.Wallet, now int64) error {
	if w.DailyResetAt <= now {
		w.DailySpent = 0
		w.DailyResetAt = now + 86400
	}

	if w.IncludedExpiresAt == nil || *w.IncludedExpiresAt > now || w.BalanceIncluded == 0 {
		return nil
	}

	expired := w.BalanceIncluded
	expiresAt := *w.IncludedExpiresAt
	w.BalanceIncluded = 0
	w.IncludedExpiresAt = nil

	entry := &walletdomain.LedgerEntry{
		ID:                   s.genID.Generate(),
		UserID:               w.UserID,
		WalletID:             w.ID,
		Currency:             w.Currency,
		Type:                 walletdomain.EntryTypeAdjustment,
		Amount:               -expired,
		BalanceIncludedAfter: 0,
		BalanceTopupAfter:    w.BalanceTopup,
		ReferenceType:        "wallet_expiry",
		ReferenceID:          w.ID.String() + ":" + strconv.FormatInt(expiresAt, 10),
		Metadata: datatypes.JSONMap{
			walletdomain.MetaReason: "included_expired",
		},
		CreatedAt: now,
	}
	if err := tx.Create(entry).Error; err != nil {
		return err
	}
	s.log.Info("included balance expired",
		zap.String("wallet_id", w.ID.String()),
		zap.Int64("amount", expired),
	)
	return nil
}

func (s *Service) findEntryByReference(ctx context.Context, referenceType, referenceID string, entryType walletdomain.EntryType) (*walletdomain.LedgerEntry, error) {
	return findEntry(s.db.WithContext(ctx), referenceType, referenceID, entryType)
}

func findEntry(tx *gorm.DB, referenceType, referenceID string, entryType walletdomain.EntryType) (*walletdomain.LedgerEntry, error) {
	var entry walletdomain.LedgerEntry
	err := tx.
		Where("reference_type = ? AND reference_id = ? AND type = ?", referenceType, referenceID, entryType).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// releaseBreakdown reverses a hold topup-first, bounded by the pools the
// hold actually debited.
func releaseBreakdown(metadata datatypes.JSONMap, amount int64) (releaseTopup, releaseIncluded int64) {
	heldIncluded := metaInt64(metadata, walletdomain.MetaHeldIncluded)
	heldTopup := metaInt64(metadata, walletdomain.MetaHeldTopup)

	releaseTopup = min64(heldTopup, amount)
	releaseIncluded = min64(heldIncluded, amount-releaseTopup)
	return releaseTopup, releaseIncluded
}

func metaInt64(metadata datatypes.JSONMap, key string) int64 {
	if metadata == nil {
		return 0
	}
	switch v := metadata[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
