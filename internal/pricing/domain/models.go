package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Modalities and billing units understood by the rate card registry.
const (
	ModalityText  = "text"
	ModalityImage = "image"
	ModalityTTS   = "tts"
	ModalitySTT   = "stt"

	UnitTokens  = "tokens"
	UnitImages  = "images"
	UnitSeconds = "seconds"

	// Text models carry two cards, one per token direction.
	UnitTokenInput  = "token_in"
	UnitTokenOutput = "token_out"
)

// RateCard is one versioned price point for a (model, modality, unit) key.
// Superseded versions stay in the table so historical charges can be
// reproduced from a stored rate card id.
type RateCard struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	ModelID  string       `gorm:"type:text;not null;index;uniqueIndex:ux_rate_cards_version,priority:1" json:"model_id"`
	Modality string       `gorm:"type:text;not null;uniqueIndex:ux_rate_cards_version,priority:2" json:"modality"`
	Unit     string       `gorm:"type:text;not null;uniqueIndex:ux_rate_cards_version,priority:3" json:"unit"`
	Version  string       `gorm:"type:text;not null;uniqueIndex:ux_rate_cards_version,priority:4" json:"version"`

	// RawCostPerUnit, FixedFee and MinCharge are minor currency units.
	// PlatformFactor is a markup multiplier applied before the fixed fee.
	RawCostPerUnit int64   `gorm:"not null;default:0" json:"raw_cost_per_unit"`
	PlatformFactor float64 `gorm:"not null;default:1" json:"platform_factor"`
	FixedFee       int64   `gorm:"not null;default:0" json:"fixed_fee"`
	MinCharge      int64   `gorm:"not null;default:0" json:"min_charge"`

	Provider  *string `json:"provider,omitempty"`
	IsDefault bool    `gorm:"not null;default:false" json:"is_default"`
	IsActive  bool    `gorm:"not null;default:true" json:"is_active"`

	EffectiveFrom int64  `gorm:"not null;default:0" json:"effective_from"`
	EffectiveTo   *int64 `json:"effective_to,omitempty"`

	CreatedAt int64 `gorm:"not null;index" json:"created_at"`
	UpdatedAt int64 `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (RateCard) TableName() string { return "pricing_rate_cards" }

// ListFilter narrows rate card listings. Zero fields are ignored.
type ListFilter struct {
	ModelID  string
	Modality string
	Unit     string
	Version  string
	Active   *bool
}

type Repository interface {
	Create(ctx context.Context, card *RateCard) error
	GetByID(ctx context.Context, id snowflake.ID) (*RateCard, error)
	GetActive(ctx context.Context, modelID, modality, unit string, asOf int64) (*RateCard, error)
	GetByVersion(ctx context.Context, modelID, modality, unit, version string) (*RateCard, error)
	List(ctx context.Context, filter ListFilter) ([]*RateCard, error)
	ListByModelIDs(ctx context.Context, modelIDs []string) ([]*RateCard, error)
}

// Service resolves rate cards and turns unit counts into charges.
type Service interface {
	GetRateCard(ctx context.Context, modelID, modality, unit string, asOf int64) (*RateCard, error)
	GetRateCardByID(ctx context.Context, id snowflake.ID) (*RateCard, error)
	CreateRateCard(ctx context.Context, card *RateCard) error
	ListByModelIDs(ctx context.Context, modelIDs []string) ([]*RateCard, error)

	CalculateCost(units decimal.Decimal, card *RateCard, discountPercent int) int64
	CalculateCostRange(minUnits, maxUnits decimal.Decimal, card *RateCard, discountPercent int) (int64, int64)
}

// TokenUnits converts a token count into billing units. Token rates are
// quoted per thousand tokens.
func TokenUnits(tokens int64) decimal.Decimal {
	return decimal.NewFromInt(tokens).Div(decimal.NewFromInt(1000))
}
