package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/cellbank/cellbank-backend/pkg/database"
	"github.com/cellbank/cellbank-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Batch statuses
const (
	StatusAvailable = "available"
	StatusReserved  = "reserved"
	StatusExpired   = "expired"
	StatusDepleted  = "depleted"
)

// Batch represents a received lot of a nomenclature item.
//
// For volume-granular batches (VolumePerUnit set), Quantity counts
// un-depleted units and CurrentUnitVolume is the remainder of the one
// unit currently being drawn from. The open unit is counted in Quantity.
type Batch struct {
	ID                string              `db:"id" json:"id"`
	NomenclatureID    string              `db:"nomenclature_id" json:"nomenclature_id"`
	BatchNumber       string              `db:"batch_number" json:"batch_number"`
	Quantity          int                 `db:"quantity" json:"quantity"`
	VolumePerUnit     decimal.NullDecimal `db:"volume_per_unit" json:"volume_per_unit,omitempty"`
	CurrentUnitVolume decimal.NullDecimal `db:"current_unit_volume" json:"current_unit_volume,omitempty"`
	ExpirationDate    *time.Time          `db:"expiration_date" json:"expiration_date,omitempty"`
	Status            string              `db:"status" json:"status"`
	Manufacturer      *string             `db:"manufacturer" json:"manufacturer,omitempty"`
	Supplier          *string             `db:"supplier" json:"supplier,omitempty"`
	InvoiceNumber     *string             `db:"invoice_number" json:"invoice_number,omitempty"`
	Notes             *string             `db:"notes" json:"notes,omitempty"`
	ReceivedAt        time.Time           `db:"received_at" json:"received_at"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at" json:"updated_at"`
}

// IsVolumeGranular reports whether the batch's units hold a measurable,
// partially consumable volume.
func (b *Batch) IsVolumeGranular() bool {
	return b.VolumePerUnit.Valid
}

// AvailableVolume returns the total remaining volume of a volume-granular
// batch: the open unit's remainder plus full volumes for the other units.
// Returns zero for unit-granular or empty batches.
func (b *Batch) AvailableVolume() decimal.Decimal {
	if !b.IsVolumeGranular() || b.Quantity <= 0 {
		return decimal.Zero
	}
	full := b.VolumePerUnit.Decimal.Mul(decimal.NewFromInt(int64(b.Quantity - 1)))
	return b.CurrentUnitVolume.Decimal.Add(full)
}

// AvailableAmount returns the remaining stock in the batch's own terms:
// volume for volume-granular batches, unit count otherwise.
func (b *Batch) AvailableAmount() decimal.Decimal {
	if b.IsVolumeGranular() {
		return b.AvailableVolume()
	}
	return decimal.NewFromInt(int64(b.Quantity))
}

// IsExpiredAt reports whether the expiration date has passed at the given
// time. Batches without an expiration date never expire.
func (b *Batch) IsExpiredAt(t time.Time) bool {
	return b.ExpirationDate != nil && b.ExpirationDate.Before(t)
}

// IsDepleted reports whether the batch has no remaining stock.
func (b *Batch) IsDepleted() bool {
	if b.Quantity > 0 {
		return false
	}
	if b.IsVolumeGranular() {
		return !b.CurrentUnitVolume.Valid || b.CurrentUnitVolume.Decimal.IsZero()
	}
	return true
}

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts a new batch inside the caller's transaction so the batch
// row and its receive movement commit together.
func (r *BatchRepository) Create(ctx context.Context, tx *sqlx.Tx, batch *Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.Status == "" {
		batch.Status = StatusAvailable
	}

	query := `
		INSERT INTO stock_batches (
			id, nomenclature_id, batch_number, quantity, volume_per_unit,
			current_unit_volume, expiration_date, status, manufacturer,
			supplier, invoice_number, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING received_at, created_at, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		batch.ID, batch.NomenclatureID, batch.BatchNumber, batch.Quantity,
		batch.VolumePerUnit, batch.CurrentUnitVolume, batch.ExpirationDate,
		batch.Status, batch.Manufacturer, batch.Supplier, batch.InvoiceNumber,
		batch.Notes,
	).Scan(&batch.ReceivedAt, &batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM stock_batches WHERE id = $1`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// GetForUpdate locks a batch row inside the transaction. NOWAIT surfaces
// a concurrency conflict instead of queueing behind another mutation.
func (r *BatchRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM stock_batches WHERE id = $1 FOR UPDATE NOWAIT`
	if err := tx.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}
	return &batch, nil
}

// ListByNomenclature lists all batches of a nomenclature item in
// first-expired-first-out order (no expiration date sorts last).
func (r *BatchRepository) ListByNomenclature(ctx context.Context, nomenclatureID string) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM stock_batches
		WHERE nomenclature_id = $1
		ORDER BY expiration_date ASC NULLS LAST, received_at ASC, id ASC
	`
	if err := r.db.SelectContext(ctx, &batches, query, nomenclatureID); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListCandidatesForUpdate returns the allocatable batches of a nomenclature
// item in FEFO order with their rows locked for the rest of the transaction.
// Candidates are AVAILABLE batches whose expiration date has not passed;
// expiry is evaluated against the passed-in time, not a stored sweep.
func (r *BatchRepository) ListCandidatesForUpdate(ctx context.Context, tx *sqlx.Tx, nomenclatureID string, now time.Time) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM stock_batches
		WHERE nomenclature_id = $1
		AND status = $2
		AND (expiration_date IS NULL OR expiration_date >= $3)
		ORDER BY expiration_date ASC NULLS LAST, received_at ASC, id ASC
		FOR UPDATE
	`
	if err := tx.SelectContext(ctx, &batches, query, nomenclatureID, StatusAvailable, now); err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}
	return batches, nil
}

// UpdateStock writes back quantity, open-unit volume and status inside the
// caller's transaction. Only the ledger service calls this.
func (r *BatchRepository) UpdateStock(ctx context.Context, tx *sqlx.Tx, batch *Batch) error {
	query := `
		UPDATE stock_batches SET
			quantity = $2, current_unit_volume = $3, status = $4, updated_at = NOW()
		WHERE id = $1
	`
	result, err := tx.ExecContext(ctx, query,
		batch.ID, batch.Quantity, batch.CurrentUnitVolume, batch.Status,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}
	return nil
}

// UpdateStatus sets the batch status outside of a stock mutation (lazy
// expiration flips). No movement is recorded; stock is unchanged.
func (r *BatchRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE stock_batches SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}
	return nil
}

// GetExpiringBatches gets non-depleted batches expiring within the given
// number of days, including already-expired ones
func (r *BatchRepository) GetExpiringBatches(ctx context.Context, withinDays int) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM stock_batches
		WHERE status IN ($1, $2) AND quantity > 0
		AND expiration_date IS NOT NULL
		AND expiration_date <= NOW() + INTERVAL '1 day' * $3
		ORDER BY expiration_date ASC
	`
	if err := r.db.SelectContext(ctx, &batches, query, StatusAvailable, StatusReserved, withinDays); err != nil {
		return nil, err
	}
	return batches, nil
}

// GetAllActiveBatches gets all batches that still hold stock
func (r *BatchRepository) GetAllActiveBatches(ctx context.Context) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM stock_batches
		WHERE status != $1
		ORDER BY expiration_date ASC NULLS LAST, received_at ASC
	`
	if err := r.db.SelectContext(ctx, &batches, query, StatusDepleted); err != nil {
		return nil, err
	}
	return batches, nil
}
