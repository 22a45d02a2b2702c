package service

import (
	"context"

	catalogdomain "github.com/airislabs/kassa/internal/catalog/domain"
	"github.com/airislabs/kassa/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Clock clock.Clock
	Repo  catalogdomain.Repository
}

type Service struct {
	log   *zap.Logger
	clock clock.Clock
	repo  catalogdomain.Repository
}

func NewService(p Params) catalogdomain.Service {
	return &Service{
		log:   p.Log.Named("catalog.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) GetModel(ctx context.Context, id string) (*catalogdomain.Model, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpsertModel(ctx context.Context, model *catalogdomain.Model) error {
	now := s.clock.Now().Unix()
	if model.CreatedAt == 0 {
		model.CreatedAt = now
	}
	model.UpdatedAt = now
	return s.repo.Upsert(ctx, model)
}

func (s *Service) ListModels(ctx context.Context, activeOnly bool) ([]*catalogdomain.Model, error) {
	return s.repo.List(ctx, activeOnly)
}

// IsLeadMagnetModel reports whether the model is flagged for free quota.
// Unknown models are never eligible.
func (s *Service) IsLeadMagnetModel(ctx context.Context, id string) (bool, error) {
	model, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return model.LeadMagnet(), nil
}
