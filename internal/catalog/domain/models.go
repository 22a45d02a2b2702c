package domain

import (
	"context"

	"gorm.io/datatypes"
)

// MetaLeadMagnet marks a model as eligible for the free quota program.
const MetaLeadMagnet = "lead_magnet"

// Model is a catalog entry for a billable AI model. IDs are the opaque
// model identifiers used by rate cards and requests.
type Model struct {
	ID       string  `gorm:"type:text;primaryKey" json:"id"`
	Name     string  `gorm:"type:text;not null" json:"name"`
	Provider *string `json:"provider,omitempty"`

	Meta datatypes.JSONMap `gorm:"type:json" json:"meta,omitempty"`

	IsActive  bool  `gorm:"not null;default:true" json:"is_active"`
	CreatedAt int64 `gorm:"not null" json:"created_at"`
	UpdatedAt int64 `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Model) TableName() string { return "catalog_models" }

// LeadMagnet reports whether the model carries the free quota flag.
func (m *Model) LeadMagnet() bool {
	if m == nil || m.Meta == nil {
		return false
	}
	flag, _ := m.Meta[MetaLeadMagnet].(bool)
	return flag
}

type Repository interface {
	Upsert(ctx context.Context, model *Model) error
	GetByID(ctx context.Context, id string) (*Model, error)
	List(ctx context.Context, activeOnly bool) ([]*Model, error)
}

type Service interface {
	GetModel(ctx context.Context, id string) (*Model, error)
	UpsertModel(ctx context.Context, model *Model) error
	ListModels(ctx context.Context, activeOnly bool) ([]*Model, error)
	IsLeadMagnetModel(ctx context.Context, id string) (bool, error)
}
