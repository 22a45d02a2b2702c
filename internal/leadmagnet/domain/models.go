package domain

import (
	"context"
	"math"

	"github.com/airislabs/kassa/internal/config"
	"github.com/bwmarrin/snowflake"
)

// State is one user's rolling free-quota cycle. Counters only grow within a
// cycle; crossing the cycle end or a config version bump resets them.
type State struct {
	ID     snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID string       `gorm:"type:text;not null;uniqueIndex:ux_lead_magnet_states_user" json:"user_id"`

	CycleStart int64 `gorm:"not null" json:"cycle_start"`
	CycleEnd   int64 `gorm:"not null" json:"cycle_end"`

	TokensInputUsed  int64 `gorm:"not null;default:0" json:"tokens_input_used"`
	TokensOutputUsed int64 `gorm:"not null;default:0" json:"tokens_output_used"`
	ImagesUsed       int64 `gorm:"not null;default:0" json:"images_used"`
	TTSSecondsUsed   int64 `gorm:"not null;default:0" json:"tts_seconds_used"`
	STTSecondsUsed   int64 `gorm:"not null;default:0" json:"stt_seconds_used"`

	ConfigVersion int `gorm:"not null" json:"config_version"`

	CreatedAt int64 `gorm:"not null" json:"created_at"`
	UpdatedAt int64 `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (State) TableName() string { return "lead_magnet_states" }

// Used returns the consumed amount for a quota resource.
func (s *State) Used(resource string) int64 {
	switch resource {
	case config.QuotaTokensInput:
		return s.TokensInputUsed
	case config.QuotaTokensOutput:
		return s.TokensOutputUsed
	case config.QuotaImages:
		return s.ImagesUsed
	case config.QuotaTTSSeconds:
		return s.TTSSecondsUsed
	case config.QuotaSTTSeconds:
		return s.STTSecondsUsed
	default:
		return 0
	}
}

// AddUsed increments the counter for a quota resource.
func (s *State) AddUsed(resource string, amount int64) {
	switch resource {
	case config.QuotaTokensInput:
		s.TokensInputUsed += amount
	case config.QuotaTokensOutput:
		s.TokensOutputUsed += amount
	case config.QuotaImages:
		s.ImagesUsed += amount
	case config.QuotaTTSSeconds:
		s.TTSSecondsUsed += amount
	case config.QuotaSTTSeconds:
		s.STTSecondsUsed += amount
	}
}

// Decision is the outcome of a quota evaluation. Remaining is reported per
// resource even when the request is denied so callers can surface it.
type Decision struct {
	Allowed   bool             `json:"allowed"`
	State     *State           `json:"state,omitempty"`
	Remaining map[string]int64 `json:"remaining"`
}

// Service evaluates and consumes free quota.
type Service interface {
	// Evaluate decides whether requirements fit into the user's remaining
	// quota. All-or-nothing: every requested resource must fit.
	Evaluate(ctx context.Context, userID, modelID string, requirements map[string]int64) (*Decision, error)

	// Consume adds measured usage to the counters. Sufficiency is not
	// re-checked here; allowance was granted at preflight against an
	// estimate and actuals may differ.
	Consume(ctx context.Context, userID string, increments map[string]int64) (*State, error)

	// GetState returns the user's refreshed state, or nil when the feature
	// is disabled or the user has none yet.
	GetState(ctx context.Context, userID string) (*State, error)
}

// EstimateTTSSeconds estimates billable speech seconds from input length,
// assuming 15 characters of text per second of audio. Any non-empty input
// bills at least one second.
func EstimateTTSSeconds(charCount int) int64 {
	if charCount <= 0 {
		return 0
	}
	return int64(math.Max(1, math.Ceil(float64(charCount)/15)))
}
