package repository

import (
	"context"

	pricingdomain "github.com/airislabs/kassa/internal/pricing/domain"
	"github.com/airislabs/kassa/pkg/db/option"
	"github.com/airislabs/kassa/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[pricingdomain.RateCard]
}

func Provide(db *gorm.DB) pricingdomain.Repository {
	return &repo{store: repository.ProvideStore[pricingdomain.RateCard](db)}
}

func (r *repo) Create(ctx context.Context, card *pricingdomain.RateCard) error {
	return r.store.Create(ctx, card)
}

func (r *repo) GetByID(ctx context.Context, id snowflake.ID) (*pricingdomain.RateCard, error) {
	return r.store.FindOne(ctx, &pricingdomain.RateCard{ID: id})
}

func (r *repo) GetActive(ctx context.Context, modelID, modality, unit string, asOf int64) (*pricingdomain.RateCard, error) {
	return r.store.FindOne(ctx,
		&pricingdomain.RateCard{ModelID: modelID, Modality: modality, Unit: unit, IsActive: true},
		option.Where("created_at <= ?", asOf),
		option.Where("effective_to IS NULL OR effective_to >= ?", asOf),
		option.OrderBy("created_at DESC, is_default DESC"),
	)
}

func (r *repo) GetByVersion(ctx context.Context, modelID, modality, unit, version string) (*pricingdomain.RateCard, error) {
	return r.store.FindOne(ctx,
		&pricingdomain.RateCard{ModelID: modelID, Modality: modality, Unit: unit, Version: version},
		option.OrderBy("effective_from DESC"),
	)
}

func (r *repo) List(ctx context.Context, filter pricingdomain.ListFilter) ([]*pricingdomain.RateCard, error) {
	query := &pricingdomain.RateCard{
		ModelID:  filter.ModelID,
		Modality: filter.Modality,
		Unit:     filter.Unit,
		Version:  filter.Version,
	}

	opts := []option.QueryOption{
		option.OrderBy("model_id ASC, modality ASC, unit ASC, created_at DESC"),
	}
	if filter.Active != nil {
		opts = append(opts, option.Where("is_active = ?", *filter.Active))
	}
	return r.store.Find(ctx, query, opts...)
}

func (r *repo) ListByModelIDs(ctx context.Context, modelIDs []string) ([]*pricingdomain.RateCard, error) {
	if len(modelIDs) == 0 {
		return nil, nil
	}
	return r.store.Find(ctx, &pricingdomain.RateCard{},
		option.Where("model_id IN ?", modelIDs),
		option.Where("is_active = ?", true),
		option.OrderBy("model_id ASC, modality ASC, unit ASC, created_at DESC"),
	)
}
