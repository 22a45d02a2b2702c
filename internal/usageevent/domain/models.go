package domain

import (
	"context"

	"github.com/airislabs/kassa/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BillingSource tells how a request was paid for.
type BillingSource string

const (
	BillingSourcePAYG       BillingSource = "payg"
	BillingSourceLeadMagnet BillingSource = "lead_magnet"
)

// EstimateReasonUsageMissing marks events where the provider never reported
// real usage and the charge fell back to the preflight estimate.
const EstimateReasonUsageMissing = "usage_missing"

// UsageEvent is the immutable billing record for one finalized request. One
// row per (request_id, modality); written once by the orchestrator at
// settlement and never mutated.
type UsageEvent struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID   string       `gorm:"type:text;not null;index:idx_usage_events_user_time,priority:1" json:"user_id"`
	WalletID snowflake.ID `gorm:"not null;index" json:"wallet_id"`

	ChatID    *string `json:"chat_id,omitempty"`
	MessageID *string `json:"message_id,omitempty"`
	RequestID string  `gorm:"type:text;not null;uniqueIndex:ux_usage_events_request_modality,priority:1" json:"request_id"`

	ModelID  string  `gorm:"type:text;not null" json:"model_id"`
	Modality string  `gorm:"type:text;not null;uniqueIndex:ux_usage_events_request_modality,priority:2" json:"modality"`
	Provider *string `json:"provider,omitempty"`

	MeasuredUnits    datatypes.JSONMap `gorm:"type:json" json:"measured_units,omitempty"`
	PromptTokens     *int64            `json:"prompt_tokens,omitempty"`
	CompletionTokens *int64            `json:"completion_tokens,omitempty"`

	CostRaw           int64  `gorm:"not null;default:0" json:"cost_raw"`
	CostRawInput      *int64 `json:"cost_raw_input,omitempty"`
	CostRawOutput     *int64 `json:"cost_raw_output,omitempty"`
	CostCharged       int64  `gorm:"not null;default:0" json:"cost_charged"`
	CostChargedInput  *int64 `json:"cost_charged_input,omitempty"`
	CostChargedOutput *int64 `json:"cost_charged_output,omitempty"`

	BillingSource  BillingSource `gorm:"type:text;not null;default:payg" json:"billing_source"`
	IsEstimated    bool          `gorm:"not null;default:false" json:"is_estimated"`
	EstimateReason *string       `json:"estimate_reason,omitempty"`

	RateCardID       *snowflake.ID `json:"rate_card_id,omitempty"`
	RateCardInputID  *snowflake.ID `json:"rate_card_input_id,omitempty"`
	RateCardOutputID *snowflake.ID `json:"rate_card_output_id,omitempty"`

	CreatedAt int64 `gorm:"not null;index:idx_usage_events_user_time,priority:2" json:"created_at"`
}

// TableName sets the database table name.
func (UsageEvent) TableName() string { return "usage_events" }

// ListRequest pages a user's usage history, newest first.
type ListRequest struct {
	UserID   string
	Modality string
	Page     pagination.Pagination
}

type Repository interface {
	Create(ctx context.Context, event *UsageEvent) error
	GetByRequest(ctx context.Context, requestID, modality string) (*UsageEvent, error)
	ListByUser(ctx context.Context, req ListRequest) ([]*UsageEvent, *pagination.PageInfo, error)
}

// Service records finalized usage and serves billing history.
type Service interface {
	Record(ctx context.Context, event *UsageEvent) (*UsageEvent, error)
	GetByRequest(ctx context.Context, requestID, modality string) (*UsageEvent, error)
	ListByUser(ctx context.Context, req ListRequest) ([]*UsageEvent, *pagination.PageInfo, error)
}
