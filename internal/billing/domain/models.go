package domain

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	pricingdomain "github.com/airislabs/kassa/internal/pricing/domain"
	usageeventdomain "github.com/airislabs/kassa/internal/usageevent/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Ledger reference types written by the orchestrator, one per modality.
// The (reference_type, reference_id) pair keys the hold, settle and release
// entries of a single request.
const (
	ReferenceChatCompletion   = "chat_completion"
	ReferenceImageGeneration  = "image_generation"
	ReferenceSpeechGeneration = "speech_generation"
	ReferenceTranscription    = "transcription"
)

// ReferenceTypeFor maps a modality to its ledger reference type.
func ReferenceTypeFor(modality string) string {
	switch modality {
	case pricingdomain.ModalityImage:
		return ReferenceImageGeneration
	case pricingdomain.ModalityTTS:
		return ReferenceSpeechGeneration
	case pricingdomain.ModalitySTT:
		return ReferenceTranscription
	default:
		return ReferenceChatCompletion
	}
}

// ChatMessage is the part of a chat payload the estimator needs.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context is the state a preflight hands to the matching settle or release.
// Callers treat it as opaque; it carries the resolved rate cards so the final
// charge is computed against the exact prices quoted at preflight.
type Context struct {
	UserID        string       `json:"user_id"`
	WalletID      snowflake.ID `json:"wallet_id"`
	RequestID     string       `json:"request_id"`
	ModelID       string       `json:"model_id"`
	Modality      string       `json:"modality"`
	Unit          string       `json:"unit"`
	ReferenceType string       `json:"reference_type"`
	Currency      string       `json:"currency"`

	BillingSource usageeventdomain.BillingSource `json:"billing_source"`

	EstimatedPromptTokens    int64           `json:"estimated_prompt_tokens"`
	EstimatedMaxOutputTokens int64           `json:"estimated_max_output_tokens"`
	Units                    decimal.Decimal `json:"units"`
	HoldAmount               int64           `json:"hold_amount"`

	// RateIn and RateOut are set for token billing, RateCard for
	// single-rate modalities.
	RateIn   *pricingdomain.RateCard `json:"rate_in,omitempty"`
	RateOut  *pricingdomain.RateCard `json:"rate_out,omitempty"`
	RateCard *pricingdomain.RateCard `json:"rate_card,omitempty"`
}

// FreeQuota reports whether the request was admitted on free quota and
// therefore carries no hold.
func (c *Context) FreeQuota() bool {
	return c != nil && c.BillingSource == usageeventdomain.BillingSourceLeadMagnet
}

// TokenHoldRequest asks for an estimate-based hold before a chat completion.
type TokenHoldRequest struct {
	UserID    string
	ModelID   string
	RequestID string
	Messages  []ChatMessage

	// MaxOutputTokens caps the reply length. Zero falls back to the
	// configured default.
	MaxOutputTokens int64

	ChatID    *string
	MessageID *string
}

// UnitHoldRequest asks for a hold priced from a single rate card, for
// modalities measured in one unit (images, speech characters, audio seconds).
type UnitHoldRequest struct {
	UserID    string
	ModelID   string
	Modality  string
	Unit      string
	Units     decimal.Decimal
	RequestID string
}

// Service coordinates preflight holds, settlement and release across the
// rate card registry, free-quota evaluator and wallet ledger.
type Service interface {
	// PreflightTokenHold estimates a chat completion's cost and places a
	// hold for it. Returns nil when billing is disabled.
	PreflightTokenHold(ctx context.Context, req TokenHoldRequest) (*Context, error)

	// PreflightUnitHold prices units against a single rate card and places
	// a hold. Returns nil when billing is disabled.
	PreflightUnitHold(ctx context.Context, req UnitHoldRequest) (*Context, error)

	// SettleTokenUsage finalizes a token hold at the provider-reported
	// usage. A nil usage map falls back to the preflight estimates and
	// marks the event estimated.
	SettleTokenUsage(ctx context.Context, bctx *Context, usage map[string]any, chatID, messageID *string) (*usageeventdomain.UsageEvent, error)

	// SettleUnitUsage finalizes a single-rate hold at the measured units.
	SettleUnitUsage(ctx context.Context, bctx *Context, measuredUnits map[string]any, units decimal.Decimal, chatID, messageID *string) (*usageeventdomain.UsageEvent, error)

	// ReleaseHold abandons a request and returns its held funds. No-op for
	// free-quota contexts and holds that were already settled.
	ReleaseHold(ctx context.Context, bctx *Context) error
}

// EstimateTokensFromMessages approximates the prompt token count of a chat
// payload at four characters per token. An empty payload estimates to zero.
func EstimateTokensFromMessages(messages []ChatMessage) int64 {
	var chars int64
	for _, m := range messages {
		chars += int64(utf8.RuneCountInString(m.Content))
	}
	return chars / 4
}

// ParseNonNegativeInt coerces a loosely typed usage field into a
// non-negative integer. Booleans and malformed values parse to zero,
// fractional numbers truncate toward zero, and negatives clamp to zero.
func ParseNonNegativeInt(v any) int64 {
	var n int64
	switch value := v.(type) {
	case bool:
		return 0
	case int:
		n = int64(value)
	case int32:
		n = int64(value)
	case int64:
		n = value
	case float32:
		n = int64(value)
	case float64:
		n = int64(value)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0
		}
		n = parsed
	default:
		return 0
	}
	if n < 0 {
		return 0
	}
	return n
}
