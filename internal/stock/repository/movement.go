package repository

import (
	"context"
	"time"

	"github.com/cellbank/cellbank-backend/pkg/database"
	"github.com/cellbank/cellbank-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Movement types
const (
	MovementReceive = "receive"
	MovementConsume = "consume"
	MovementAdjust  = "adjust"
)

// Movement is one immutable ledger entry for a stock-affecting event.
// UnitDelta is the signed change of the batch's unit count; VolumeDelta
// is the signed total-volume change for volume-granular batches.
type Movement struct {
	ID           string              `db:"id" json:"id"`
	BatchID      string              `db:"batch_id" json:"batch_id"`
	MovementType string              `db:"movement_type" json:"movement_type"`
	UnitDelta    int                 `db:"unit_delta" json:"unit_delta"`
	VolumeDelta  decimal.NullDecimal `db:"volume_delta" json:"volume_delta,omitempty"`
	Reason       *string             `db:"reason" json:"reason,omitempty"`
	OperationRef *string             `db:"operation_ref" json:"operation_ref,omitempty"`
	PerformedBy  *string             `db:"performed_by" json:"performed_by,omitempty"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
}

// MovementRepository handles the append-only movement log.
// There is deliberately no update or delete method.
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Append inserts a movement inside the caller's transaction so the ledger
// entry commits atomically with the batch mutation it documents.
func (r *MovementRepository) Append(ctx context.Context, tx *sqlx.Tx, m *Movement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if err := validateMovement(m); err != nil {
		return err
	}

	query := `
		INSERT INTO stock_movements (
			id, batch_id, movement_type, unit_delta, volume_delta,
			reason, operation_ref, performed_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := tx.QueryRowxContext(ctx, query,
		m.ID, m.BatchID, m.MovementType, m.UnitDelta, m.VolumeDelta,
		m.Reason, m.OperationRef, m.PerformedBy,
	).Scan(&m.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

func validateMovement(m *Movement) error {
	switch m.MovementType {
	case MovementReceive, MovementConsume, MovementAdjust:
	default:
		return errors.Validation(map[string]string{
			"movement_type": "must be one of: receive, consume, adjust",
		})
	}
	if m.BatchID == "" {
		return errors.Validation(map[string]string{
			"batch_id": "this field is required",
		})
	}
	return nil
}

// History lists a batch's movements newest-first with pagination. The read
// path exposes no mutation capability; reporting re-reads pages freely.
func (r *MovementRepository) History(ctx context.Context, batchID string, page, perPage int) ([]*Movement, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM stock_movements WHERE batch_id = $1`
	if err := r.db.GetContext(ctx, &total, countQuery, batchID); err != nil {
		return nil, 0, err
	}

	var movements []*Movement
	query := `
		SELECT * FROM stock_movements
		WHERE batch_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	offset := (page - 1) * perPage
	if err := r.db.SelectContext(ctx, &movements, query, batchID, perPage, offset); err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// ListChronological returns every movement of a batch oldest-first,
// starting from its receive event. Used by reconciliation replay.
func (r *MovementRepository) ListChronological(ctx context.Context, batchID string) ([]*Movement, error) {
	var movements []*Movement
	query := `
		SELECT * FROM stock_movements
		WHERE batch_id = $1
		ORDER BY created_at ASC, id ASC
	`
	if err := r.db.SelectContext(ctx, &movements, query, batchID); err != nil {
		return nil, err
	}
	return movements, nil
}
