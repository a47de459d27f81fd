package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/cellbank/cellbank-backend/pkg/database"
	"github.com/cellbank/cellbank-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContainerType describes a culture vessel geometry so that consumable
// planning can reason about surface area and working volume.
type ContainerType struct {
	ID                   string              `db:"id" json:"id"`
	Name                 string              `db:"name" json:"name"`
	SurfaceAreaCm2       decimal.NullDecimal `db:"surface_area_cm2" json:"surface_area_cm2,omitempty"`
	WorkingVolumeMl      decimal.NullDecimal `db:"working_volume_ml" json:"working_volume_ml,omitempty"`
	OptimalConfluencyPct decimal.NullDecimal `db:"optimal_confluency_pct" json:"optimal_confluency_pct,omitempty"`
	CreatedAt            time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time           `db:"updated_at" json:"updated_at"`
}

// ContainerTypeRepository handles container type persistence
type ContainerTypeRepository struct {
	db *database.DB
}

// NewContainerTypeRepository creates a new container type repository
func NewContainerTypeRepository(db *database.DB) *ContainerTypeRepository {
	return &ContainerTypeRepository{db: db}
}

// Create creates a new container type
func (r *ContainerTypeRepository) Create(ctx context.Context, ct *ContainerType) error {
	if ct.ID == "" {
		ct.ID = uuid.New().String()
	}

	query := `
		INSERT INTO container_types (
			id, name, surface_area_cm2, working_volume_ml, optimal_confluency_pct
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		ct.ID, ct.Name, ct.SurfaceAreaCm2, ct.WorkingVolumeMl, ct.OptimalConfluencyPct,
	).Scan(&ct.CreatedAt, &ct.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a container type by ID
func (r *ContainerTypeRepository) GetByID(ctx context.Context, id string) (*ContainerType, error) {
	var ct ContainerType
	query := `SELECT * FROM container_types WHERE id = $1`
	if err := r.db.GetContext(ctx, &ct, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("container type")
		}
		return nil, err
	}
	return &ct, nil
}

// List lists all container types, name-sorted
func (r *ContainerTypeRepository) List(ctx context.Context) ([]*ContainerType, error) {
	types := []*ContainerType{}
	query := `SELECT * FROM container_types ORDER BY name ASC`
	if err := r.db.SelectContext(ctx, &types, query); err != nil {
		return nil, err
	}
	return types, nil
}
