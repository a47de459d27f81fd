package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cellbank/cellbank-backend/pkg/database"
	"github.com/cellbank/cellbank-backend/pkg/errors"
	"github.com/google/uuid"
)

// Nomenclature categories
var ValidCategories = []string{
	"medium", "serum", "buffer", "supplement",
	"enzyme", "reagent", "consumable", "equipment",
}

// NomenclatureItem is a catalog entry describing a kind of consumable or
// piece of equipment. Stock is tracked per batch, never on the item itself.
type NomenclatureItem struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Category        string    `db:"category" json:"category"`
	Unit            string    `db:"unit" json:"unit"`
	ContainerTypeID *string   `db:"container_type_id" json:"container_type_id,omitempty"`
	Notes           *string   `db:"notes" json:"notes,omitempty"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// IsValidCategory reports whether c is a known nomenclature category.
func IsValidCategory(c string) bool {
	for _, v := range ValidCategories {
		if v == c {
			return true
		}
	}
	return false
}

// NomenclatureFilter narrows List results.
type NomenclatureFilter struct {
	Category   string
	Search     string
	ActiveOnly bool
	Page       int
	PerPage    int
}

// NomenclatureRepository handles catalog persistence
type NomenclatureRepository struct {
	db *database.DB
}

// NewNomenclatureRepository creates a new nomenclature repository
func NewNomenclatureRepository(db *database.DB) *NomenclatureRepository {
	return &NomenclatureRepository{db: db}
}

// Create creates a new nomenclature item
func (r *NomenclatureRepository) Create(ctx context.Context, item *NomenclatureItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	query := `
		INSERT INTO nomenclature_items (
			id, name, category, unit, container_type_id, notes, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		item.ID, item.Name, item.Category, item.Unit,
		item.ContainerTypeID, item.Notes, item.IsActive,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a nomenclature item by ID
func (r *NomenclatureRepository) GetByID(ctx context.Context, id string) (*NomenclatureItem, error) {
	var item NomenclatureItem
	query := `SELECT * FROM nomenclature_items WHERE id = $1`
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("nomenclature item")
		}
		return nil, err
	}
	return &item, nil
}

// List lists nomenclature items with optional filters, name-sorted.
func (r *NomenclatureRepository) List(ctx context.Context, filter NomenclatureFilter) ([]*NomenclatureItem, int64, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	argPos := 1

	if filter.ActiveOnly {
		conditions = append(conditions, "is_active = TRUE")
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argPos))
		args = append(args, filter.Category)
		argPos++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argPos))
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}

	where := strings.Join(conditions, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM nomenclature_items WHERE %s", where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 || filter.PerPage > 100 {
		filter.PerPage = 50
	}
	offset := (filter.Page - 1) * filter.PerPage

	query := fmt.Sprintf(`
		SELECT * FROM nomenclature_items
		WHERE %s
		ORDER BY name ASC
		LIMIT $%d OFFSET $%d
	`, where, argPos, argPos+1)
	args = append(args, filter.PerPage, offset)

	items := []*NomenclatureItem{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetAllActive gets all active nomenclature items
func (r *NomenclatureRepository) GetAllActive(ctx context.Context) ([]*NomenclatureItem, error) {
	items := []*NomenclatureItem{}
	query := `SELECT * FROM nomenclature_items WHERE is_active = TRUE ORDER BY name ASC`
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, err
	}
	return items, nil
}

// Update updates the mutable fields of a nomenclature item
func (r *NomenclatureRepository) Update(ctx context.Context, item *NomenclatureItem) error {
	query := `
		UPDATE nomenclature_items
		SET name = $2, category = $3, unit = $4, container_type_id = $5,
		    notes = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		item.ID, item.Name, item.Category, item.Unit,
		item.ContainerTypeID, item.Notes, item.IsActive,
	).Scan(&item.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return errors.NotFound("nomenclature item")
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// Deactivate retires a catalog entry. Existing batches keep referencing it;
// new batches for it are rejected at the service layer.
func (r *NomenclatureRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE nomenclature_items SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("nomenclature item")
	}
	return nil
}
