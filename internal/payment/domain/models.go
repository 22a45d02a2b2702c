package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCanceled  PaymentStatus = "canceled"
)

type PaymentKind string

const (
	PaymentKindTopup      PaymentKind = "topup"
	PaymentKindAdjustment PaymentKind = "adjustment"
)

// Metadata keys stored on payments.
const (
	MetaAutoTopup       = "auto_topup"
	MetaAutoTopupReason = "auto_topup_reason"
)

// Payment tracks one topup intent from creation through the gateway's
// terminal status. The wallet is only credited via ApplySucceededTopup.
type Payment struct {
	ID       snowflake.ID  `gorm:"primaryKey" json:"id"`
	Provider string        `gorm:"type:text;not null" json:"provider"`
	Status   PaymentStatus `gorm:"type:text;not null;index" json:"status"`
	Kind     PaymentKind   `gorm:"type:text;not null" json:"kind"`

	Amount   int64  `gorm:"not null" json:"amount"`
	Currency string `gorm:"type:text;not null" json:"currency"`

	IdempotencyKey    *string `gorm:"uniqueIndex:ux_payments_idempotency" json:"idempotency_key,omitempty"`
	ProviderPaymentID *string `gorm:"uniqueIndex:ux_payments_provider_id" json:"provider_payment_id,omitempty"`
	PaymentMethodID   *string `json:"payment_method_id,omitempty"`

	Metadata datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`

	UserID   string       `gorm:"type:text;not null;index" json:"user_id"`
	WalletID snowflake.ID `gorm:"not null;index" json:"wallet_id"`

	CreatedAt int64 `gorm:"not null;index" json:"created_at"`
	UpdatedAt int64 `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// AutoTopup reports whether this payment was created by the auto-topup
// policy rather than an explicit user action.
func (p *Payment) AutoTopup() bool {
	if p == nil || p.Metadata == nil {
		return false
	}
	flag, _ := p.Metadata[MetaAutoTopup].(bool)
	return flag
}

// GatewayRequest is a payment creation order for the external provider.
type GatewayRequest struct {
	Amount      int64
	Currency    string
	Description string
	ReturnURL   string

	// SavePaymentMethod asks the provider to vault the card for later
	// auto-topup charges. PaymentMethodID charges a vaulted card directly
	// without user interaction.
	SavePaymentMethod bool
	PaymentMethodID   string

	Metadata map[string]any
}

// GatewayPayment is the provider's view of a created payment.
type GatewayPayment struct {
	ProviderPaymentID string
	ConfirmationURL   string
	PaymentMethodID   string
	Paid              bool
}

// Gateway abstracts the payment provider. The engine never speaks the
// provider wire protocol itself; webhook verification lives behind this
// interface too.
type Gateway interface {
	Name() string
	CreatePayment(ctx context.Context, req GatewayRequest) (*GatewayPayment, error)
	ChargeSavedMethod(ctx context.Context, req GatewayRequest) (*GatewayPayment, error)
}

// AutoTopupResult reports what the auto-topup policy did, in a form the
// orchestrator can attach to an insufficient-funds response.
type AutoTopupResult struct {
	Attempted bool          `json:"attempted"`
	Status    string        `json:"status"`
	PaymentID *snowflake.ID `json:"payment_id,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// Auto-topup statuses surfaced to clients.
const (
	AutoTopupStatusWalletMissing        = "wallet_missing"
	AutoTopupStatusDisabled             = "disabled"
	AutoTopupStatusMissingConfig        = "missing_config"
	AutoTopupStatusAboveThreshold       = "above_threshold"
	AutoTopupStatusFailLimit            = "fail_limit"
	AutoTopupStatusPending              = "pending"
	AutoTopupStatusInvalidAmount        = "invalid_amount"
	AutoTopupStatusMissingPaymentMethod = "missing_payment_method"
	AutoTopupStatusFailed               = "failed"
	AutoTopupStatusCreated              = "created"
)

// CreateTopupResult pairs the stored payment with the URL the user must
// visit to confirm it.
type CreateTopupResult struct {
	Payment         *Payment `json:"payment"`
	ConfirmationURL string   `json:"confirmation_url,omitempty"`
}

type Repository interface {
	Create(ctx context.Context, payment *Payment) error
	GetByID(ctx context.Context, id snowflake.ID) (*Payment, error)
	GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*Payment, error)
	Update(ctx context.Context, id snowflake.ID, updates map[string]any) error
	HasPendingTopup(ctx context.Context, walletID snowflake.ID) (bool, error)
	LatestSucceededPaymentMethod(ctx context.Context, walletID snowflake.ID) (*string, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Payment, error)
}

type Service interface {
	CreateTopupPayment(ctx context.Context, userID string, walletID snowflake.ID, amount int64, returnURL string) (*CreateTopupResult, error)
	ApplySucceededTopup(ctx context.Context, providerPaymentID string) (*Payment, error)
	MarkPaymentFailed(ctx context.Context, providerPaymentID string, status PaymentStatus) (*Payment, error)
	MaybeTriggerAutoTopup(ctx context.Context, userID string, walletID snowflake.ID, available, required int64, reason string) (*AutoTopupResult, error)
	GetPayment(ctx context.Context, id snowflake.ID) (*Payment, error)
}
