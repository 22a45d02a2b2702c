package service

import (
	"context"
	"fmt"

	"github.com/airislabs/kassa/internal/clock"
	usageeventdomain "github.com/airislabs/kassa/internal/usageevent/domain"
	"github.com/airislabs/kassa/pkg/db"
	"github.com/airislabs/kassa/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  usageeventdomain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  usageeventdomain.Repository
}

func NewService(p Params) usageeventdomain.Service {
	return &Service{
		log:   p.Log.Named("usageevent.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Record persists a finalized usage event. Replays for the same
// (request_id, modality) return the stored row unchanged.
func (s *Service) Record(ctx context.Context, event *usageeventdomain.UsageEvent) (*usageeventdomain.UsageEvent, error) {
	if event.RequestID == "" || event.Modality == "" {
		return nil, fmt.Errorf("usage event requires request_id and modality")
	}
	if event.ID == 0 {
		event.ID = s.genID.Generate()
	}
	if event.BillingSource == "" {
		event.BillingSource = usageeventdomain.BillingSourcePAYG
	}
	if event.CreatedAt == 0 {
		event.CreatedAt = s.clock.Now().Unix()
	}

	if err := s.repo.Create(ctx, event); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.repo.GetByRequest(ctx, event.RequestID, event.Modality)
		}
		return nil, err
	}

	s.log.Debug("usage event recorded",
		zap.String("request_id", event.RequestID),
		zap.String("modality", event.Modality),
		zap.String("billing_source", string(event.BillingSource)),
		zap.Int64("cost_charged", event.CostCharged),
	)
	return event, nil
}

func (s *Service) GetByRequest(ctx context.Context, requestID, modality string) (*usageeventdomain.UsageEvent, error) {
	return s.repo.GetByRequest(ctx, requestID, modality)
}

func (s *Service) ListByUser(ctx context.Context, req usageeventdomain.ListRequest) ([]*usageeventdomain.UsageEvent, *pagination.PageInfo, error) {
	return s.repo.ListByUser(ctx, req)
}
