package repository

import (
	"context"

	usageeventdomain "github.com/airislabs/kassa/internal/usageevent/domain"
	"github.com/airislabs/kassa/pkg/db/option"
	"github.com/airislabs/kassa/pkg/db/pagination"
	"github.com/airislabs/kassa/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[usageeventdomain.UsageEvent]
}

func Provide(db *gorm.DB) usageeventdomain.Repository {
	return &repo{store: repository.ProvideStore[usageeventdomain.UsageEvent](db)}
}

func (r *repo) Create(ctx context.Context, event *usageeventdomain.UsageEvent) error {
	return r.store.Create(ctx, event)
}

func (r *repo) GetByRequest(ctx context.Context, requestID, modality string) (*usageeventdomain.UsageEvent, error) {
	return r.store.FindOne(ctx, &usageeventdomain.UsageEvent{
		RequestID: requestID,
		Modality:  modality,
	})
}

func (r *repo) ListByUser(ctx context.Context, req usageeventdomain.ListRequest) ([]*usageeventdomain.UsageEvent, *pagination.PageInfo, error) {
	size := req.Page.PageSize
	if size < 1 {
		size = 50
	}
	if size > 250 {
		size = 250
	}

	query := &usageeventdomain.UsageEvent{UserID: req.UserID, Modality: req.Modality}
	opts := []option.QueryOption{
		option.OrderBy("id DESC"),
		option.Limit(size + 1),
	}
	if token := req.Page.PageToken; token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, nil, err
		}
		if cursor.ID != "" {
			opts = append(opts, option.Where("id < ?", cursor.ID))
		}
	}

	events, err := r.store.Find(ctx, query, opts...)
	if err != nil {
		return nil, nil, err
	}

	events, pageInfo := pagination.BuildCursorPageInfo(events, size, func(e *usageeventdomain.UsageEvent) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: e.ID.String()})
		return token
	})
	return events, pageInfo, nil
}
