package repository

import (
	"context"

	catalogdomain "github.com/airislabs/kassa/internal/catalog/domain"
	"github.com/airislabs/kassa/pkg/db/option"
	"github.com/airislabs/kassa/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db    *gorm.DB
	store repository.Repository[catalogdomain.Model]
}

func Provide(db *gorm.DB) catalogdomain.Repository {
	return &repo{db: db, store: repository.ProvideStore[catalogdomain.Model](db)}
}

func (r *repo) Upsert(ctx context.Context, model *catalogdomain.Model) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

func (r *repo) GetByID(ctx context.Context, id string) (*catalogdomain.Model, error) {
	return r.store.FindOne(ctx, &catalogdomain.Model{ID: id})
}

func (r *repo) List(ctx context.Context, activeOnly bool) ([]*catalogdomain.Model, error) {
	opts := []option.QueryOption{option.OrderBy("id ASC")}
	if activeOnly {
		opts = append(opts, option.Where("is_active = ?", true))
	}
	return r.store.Find(ctx, &catalogdomain.Model{}, opts...)
}
