package domain

import (
	"context"

	"github.com/airislabs/kassa/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// All monetary amounts are integer minor currency units. Timestamps are
// Unix epoch seconds.

// EntryType enumerates append-only ledger entry kinds.
type EntryType string

const (
	EntryTypeHold               EntryType = "hold"
	EntryTypeCharge             EntryType = "charge"
	EntryTypeRefund             EntryType = "refund"
	EntryTypeTopup              EntryType = "topup"
	EntryTypeSubscriptionCredit EntryType = "subscription_credit"
	EntryTypeAdjustment         EntryType = "adjustment"
	EntryTypeRelease            EntryType = "release"
)

// Metadata keys recorded on ledger entries. Hold entries carry the pool
// breakdown so settles and releases can reverse it precisely.
const (
	MetaHeldIncluded     = "held_included"
	MetaHeldTopup        = "held_topup"
	MetaReleaseIncluded  = "release_included"
	MetaReleaseTopup     = "release_topup"
	MetaCharged          = "charged"
	MetaDebitIncluded    = "debit_included"
	MetaDebitTopup       = "debit_topup"
	MetaDebitShortfall   = "debit_shortfall"
	MetaReason           = "reason"
)

// Wallet is a per-user, per-currency balance with two pools: expirable
// included credit and purchased topup credit.
type Wallet struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID            string       `gorm:"type:text;not null;uniqueIndex:ux_wallets_user_currency,priority:1" json:"user_id"`
	Currency          string       `gorm:"type:text;not null;uniqueIndex:ux_wallets_user_currency,priority:2" json:"currency"`
	BalanceTopup      int64        `gorm:"not null;default:0" json:"balance_topup"`
	BalanceIncluded   int64        `gorm:"not null;default:0" json:"balance_included"`
	IncludedExpiresAt *int64       `json:"included_expires_at,omitempty"`

	DailyCap     *int64 `json:"daily_cap,omitempty"`
	DailySpent   int64  `gorm:"not null;default:0" json:"daily_spent"`
	DailyResetAt int64  `gorm:"not null;default:0" json:"daily_reset_at"`
	MaxReplyCost *int64 `json:"max_reply_cost,omitempty"`

	AutoTopupEnabled         bool    `gorm:"not null;default:false" json:"auto_topup_enabled"`
	AutoTopupThreshold       int64   `gorm:"not null;default:0" json:"auto_topup_threshold"`
	AutoTopupAmount          int64   `gorm:"not null;default:0" json:"auto_topup_amount"`
	AutoTopupFailCount       int     `gorm:"not null;default:0" json:"auto_topup_fail_count"`
	AutoTopupPaymentMethodID *string `json:"auto_topup_payment_method_id,omitempty"`

	CreatedAt int64 `gorm:"not null" json:"created_at"`
	UpdatedAt int64 `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Wallet) TableName() string { return "wallets" }

// Available is the total spendable balance across both pools.
func (w *Wallet) Available() int64 {
	return w.BalanceIncluded + w.BalanceTopup
}

// LedgerEntry is an immutable money movement. Amount is negative for holds
// and debiting adjustments, positive for releases, topups and credits, and
// zero for charges: a charge only finalizes money the hold already moved,
// so the wallet balance always equals the fold of entry amounts.
type LedgerEntry struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID   string       `gorm:"type:text;not null;index" json:"user_id"`
	WalletID snowflake.ID `gorm:"not null;index" json:"wallet_id"`
	Currency string       `gorm:"type:text;not null" json:"currency"`

	Type   EntryType `gorm:"type:text;not null;uniqueIndex:ux_ledger_entries_reference,priority:3" json:"type"`
	Amount int64     `gorm:"not null" json:"amount"`

	ChargedInput  *int64 `json:"charged_input,omitempty"`
	ChargedOutput *int64 `json:"charged_output,omitempty"`

	BalanceIncludedAfter int64 `gorm:"not null" json:"balance_included_after"`
	BalanceTopupAfter    int64 `gorm:"not null" json:"balance_topup_after"`

	ReferenceType  string  `gorm:"type:text;not null;uniqueIndex:ux_ledger_entries_reference,priority:1" json:"reference_type"`
	ReferenceID    string  `gorm:"type:text;not null;uniqueIndex:ux_ledger_entries_reference,priority:2" json:"reference_id"`
	IdempotencyKey *string `gorm:"uniqueIndex:ux_ledger_entries_idempotency" json:"idempotency_key,omitempty"`

	HoldExpiresAt *int64 `json:"hold_expires_at,omitempty"`
	ExpiresAt     *int64 `json:"expires_at,omitempty"`

	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt int64             `gorm:"not null;index" json:"created_at"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// HoldRequest places funds on hold for a pending operation.
type HoldRequest struct {
	WalletID       snowflake.ID
	Amount         int64
	ReferenceID    string
	ReferenceType  string
	IdempotencyKey *string
	HoldExpiresAt  *int64
}

// SettleRequest finalizes a hold at the measured amount.
type SettleRequest struct {
	WalletID      snowflake.ID
	ReferenceID   string
	ReferenceType string
	Amount        int64
	ChargedInput  *int64
	ChargedOutput *int64
}

// TopupRequest credits purchased balance.
type TopupRequest struct {
	WalletID       snowflake.ID
	Amount         int64
	ReferenceID    string
	ReferenceType  string
	IdempotencyKey *string
	ExpiresAt      *int64
	Metadata       map[string]any
}

// AdjustmentRequest applies a signed correction. Negative amounts debit the
// wallet, included balance first; positive amounts credit topup balance.
type AdjustmentRequest struct {
	WalletID      snowflake.ID
	Amount        int64
	ReferenceID   string
	ReferenceType string
	Metadata      map[string]any
}

// ListEntriesRequest pages a user's ledger history, newest first.
type ListEntriesRequest struct {
	UserID string
	Types  []EntryType
	Page   pagination.Pagination
}

// Service exposes wallet ledger operations.
type Service interface {
	GetOrCreateWallet(ctx context.Context, userID, currency string) (*Wallet, error)
	GetWalletByID(ctx context.Context, walletID snowflake.ID) (*Wallet, error)
	GetWalletByUser(ctx context.Context, userID, currency string) (*Wallet, error)
	RefreshWallet(ctx context.Context, walletID snowflake.ID) (*Wallet, error)
	UpdateWallet(ctx context.Context, walletID snowflake.ID, updates map[string]any) (*Wallet, error)

	HoldFunds(ctx context.Context, req HoldRequest) (*LedgerEntry, error)
	SettleHold(ctx context.Context, req SettleRequest) (*LedgerEntry, error)
	ReleaseHold(ctx context.Context, walletID snowflake.ID, referenceID, referenceType string) (*LedgerEntry, error)
	ApplyTopup(ctx context.Context, req TopupRequest) (*LedgerEntry, error)
	ApplyAdjustment(ctx context.Context, req AdjustmentRequest) (*LedgerEntry, error)

	ListEntriesByUser(ctx context.Context, req ListEntriesRequest) ([]*LedgerEntry, *pagination.PageInfo, error)
}
