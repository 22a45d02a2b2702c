package service

import (
	"context"
	"errors"

	catalogdomain "github.com/airislabs/kassa/internal/catalog/domain"
	"github.com/airislabs/kassa/internal/clock"
	"github.com/airislabs/kassa/internal/config"
	leadmagnetdomain "github.com/airislabs/kassa/internal/leadmagnet/domain"
	obsmetrics "github.com/airislabs/kassa/internal/observability/metrics"
	"github.com/airislabs/kassa/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Holder     *config.LeadMagnetConfigHolder
	Catalog    catalogdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	holder     *config.LeadMagnetConfigHolder
	catalog    catalogdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) leadmagnetdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("leadmagnet.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		holder:     p.Holder,
		catalog:    p.Catalog,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Evaluate(ctx context.Context, userID, modelID string, requirements map[string]int64) (*leadmagnetdomain.Decision, error) {
	cfg := s.holder.Get()
	if !cfg.Enabled {
		return &leadmagnetdomain.Decision{Remaining: map[string]int64{}}, nil
	}

	eligible, err := s.catalog.IsLeadMagnetModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return &leadmagnetdomain.Decision{Remaining: map[string]int64{}}, nil
	}

	now := s.clock.Now().Unix()
	var state *leadmagnetdomain.State
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, err = s.getOrCreateState(tx, userID, cfg, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	remaining := remainingFor(state, cfg.Quotas)
	allowed := canConsume(remaining, requirements)
	s.obsMetrics.RecordQuotaDecision(ctx, allowed)

	return &leadmagnetdomain.Decision{
		Allowed:   allowed,
		State:     state,
		Remaining: remaining,
	}, nil
}

func (s *Service) Consume(ctx context.Context, userID string, increments map[string]int64) (*leadmagnetdomain.State, error) {
	cfg := s.holder.Get()
	if !cfg.Enabled {
		return nil, nil
	}

	now := s.clock.Now().Unix()
	var state *leadmagnetdomain.State
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		state, err = s.getOrCreateState(tx, userID, cfg, now)
		if err != nil {
			return err
		}

		changed := false
		for resource, amount := range config.NormalizeQuotas(increments) {
			if amount <= 0 {
				continue
			}
			state.AddUsed(resource, amount)
			changed = true
		}
		if !changed {
			return nil
		}

		state.UpdatedAt = now
		return tx.Save(state).Error
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Service) GetState(ctx context.Context, userID string) (*leadmagnetdomain.State, error) {
	cfg := s.holder.Get()
	if !cfg.Enabled {
		return nil, nil
	}

	var state leadmagnetdomain.State
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().Unix()
	if !resetDue(&state, cfg, now) {
		return &state, nil
	}

	refreshed := &state
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		refreshed, err = s.getOrCreateState(tx, userID, cfg, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return refreshed, nil
}

// getOrCreateState loads the user's state under a row lock, resetting the
// cycle when it has elapsed or the config version moved on.
func (s *Service) getOrCreateState(tx *gorm.DB, userID string, cfg config.LeadMagnetConfig, now int64) (*leadmagnetdomain.State, error) {
	q := tx
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var state leadmagnetdomain.State
	err := q.Where("user_id = ?", userID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fresh := &leadmagnetdomain.State{
			ID:            s.genID.Generate(),
			UserID:        userID,
			CycleStart:    now,
			CycleEnd:      now + int64(cfg.CycleDays)*86400,
			ConfigVersion: cfg.ConfigVersion,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if cerr := tx.Create(fresh).Error; cerr != nil {
			if db.IsDuplicateKeyErr(cerr) {
				return s.getOrCreateState(tx, userID, cfg, now)
			}
			return nil, cerr
		}
		return fresh, nil
	}
	if err != nil {
		return nil, err
	}

	if !resetDue(&state, cfg, now) {
		return &state, nil
	}

	state.CycleStart = now
	state.CycleEnd = now + int64(cfg.CycleDays)*86400
	state.TokensInputUsed = 0
	state.TokensOutputUsed = 0
	state.ImagesUsed = 0
	state.TTSSecondsUsed = 0
	state.STTSecondsUsed = 0
	state.ConfigVersion = cfg.ConfigVersion
	state.UpdatedAt = now
	if err := tx.Save(&state).Error; err != nil {
		return nil, err
	}
	s.log.Info("free quota cycle reset",
		zap.String("user_id", userID),
		zap.Int("config_version", cfg.ConfigVersion),
	)
	return &state, nil
}

// resetDue reports whether the cycle must restart: either the window
// elapsed or the quota configuration was rolled to a new version.
func resetDue(state *leadmagnetdomain.State, cfg config.LeadMagnetConfig, now int64) bool {
	return now >= state.CycleEnd || state.ConfigVersion != cfg.ConfigVersion
}

func remainingFor(state *leadmagnetdomain.State, quotas map[string]int64) map[string]int64 {
	remaining := make(map[string]int64, len(quotas))
	for resource, limit := range config.NormalizeQuotas(quotas) {
		left := limit - state.Used(resource)
		if left < 0 {
			left = 0
		}
		remaining[resource] = left
	}
	return remaining
}

func canConsume(remaining map[string]int64, requirements map[string]int64) bool {
	for resource, amount := range requirements {
		if amount <= 0 {
			continue
		}
		if remaining[resource] < amount {
			return false
		}
	}
	return true
}
