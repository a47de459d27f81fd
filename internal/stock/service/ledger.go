package service

import (
	"context"
	"time"

	catalogrepo "github.com/cellbank/cellbank-backend/internal/catalog/repository"
	"github.com/cellbank/cellbank-backend/internal/stock/events"
	"github.com/cellbank/cellbank-backend/internal/stock/repository"
	"github.com/cellbank/cellbank-backend/pkg/database"
	"github.com/cellbank/cellbank-backend/pkg/errors"
	"github.com/cellbank/cellbank-backend/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// LedgerService owns all batch mutations. Every stock change goes through
// a single transaction that locks the batch row, applies the new state and
// appends the matching movement, so the ledger can always reproduce the
// live quantities.
type LedgerService struct {
	db                *database.DB
	batchRepo         *repository.BatchRepository
	movementRepo      *repository.MovementRepository
	catalogRepo       *catalogrepo.NomenclatureRepository
	publisher         *events.StockEventPublisher
	logger            *logger.Logger
	expiryWarningDays int
}

// NewLedgerService creates a new ledger service. warningWindowDays is the
// expiring-soon horizon shared with the scanner so summaries and scan
// events agree on what counts as expiring.
func NewLedgerService(
	db *database.DB,
	batchRepo *repository.BatchRepository,
	movementRepo *repository.MovementRepository,
	catalogRepo *catalogrepo.NomenclatureRepository,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
	warningWindowDays int,
) *LedgerService {
	return &LedgerService{
		db:                db,
		batchRepo:         batchRepo,
		movementRepo:      movementRepo,
		catalogRepo:       catalogRepo,
		publisher:         publisher,
		logger:            log,
		expiryWarningDays: warningWindowDays,
	}
}

// ReceiveInput describes a new batch entering the ledger.
type ReceiveInput struct {
	NomenclatureID    string
	BatchNumber       string
	Quantity          int
	VolumePerUnit     *decimal.Decimal
	CurrentUnitVolume *decimal.Decimal
	ExpirationDate    *time.Time
	Manufacturer      *string
	Supplier          *string
	InvoiceNumber     *string
	Notes             *string
	PerformedBy       string
}

// Receive registers a new batch and its opening receive movement in one
// transaction.
func (s *LedgerService) Receive(ctx context.Context, input ReceiveInput) (*repository.Batch, error) {
	if err := s.validateReceive(input); err != nil {
		return nil, err
	}

	item, err := s.catalogRepo.GetByID(ctx, input.NomenclatureID)
	if err != nil {
		return nil, err
	}
	if !item.IsActive {
		return nil, errors.BadRequest("nomenclature item is no longer active")
	}

	batch := &repository.Batch{
		NomenclatureID: input.NomenclatureID,
		BatchNumber:    input.BatchNumber,
		Quantity:       input.Quantity,
		ExpirationDate: input.ExpirationDate,
		Status:         repository.StatusAvailable,
		Manufacturer:   input.Manufacturer,
		Supplier:       input.Supplier,
		InvoiceNumber:  input.InvoiceNumber,
		Notes:          input.Notes,
	}
	if input.VolumePerUnit != nil {
		batch.VolumePerUnit = decimal.NewNullDecimal(*input.VolumePerUnit)
		// A freshly received batch has an untouched open unit unless the
		// caller says otherwise (e.g. transferring an opened bottle in).
		cuv := *input.VolumePerUnit
		if input.CurrentUnitVolume != nil {
			cuv = *input.CurrentUnitVolume
		}
		batch.CurrentUnitVolume = decimal.NewNullDecimal(cuv)
	}

	var movement *repository.Movement
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.batchRepo.Create(ctx, tx, batch); err != nil {
			return err
		}

		movement = &repository.Movement{
			BatchID:      batch.ID,
			MovementType: repository.MovementReceive,
			UnitDelta:    batch.Quantity,
			PerformedBy:  optional(input.PerformedBy),
		}
		if batch.IsVolumeGranular() {
			movement.VolumeDelta = decimal.NewNullDecimal(batch.AvailableVolume())
		}
		return s.movementRepo.Append(ctx, tx, movement)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishBatchReceived(ctx, batch)
	s.publisher.PublishMovementRecorded(ctx, batch, movement)

	s.logger.Info().
		Str("batch_id", batch.ID).
		Str("nomenclature_id", batch.NomenclatureID).
		Int("quantity", batch.Quantity).
		Msg("batch received")

	return batch, nil
}

func (s *LedgerService) validateReceive(input ReceiveInput) error {
	details := map[string]string{}
	if input.NomenclatureID == "" {
		details["nomenclature_id"] = "is required"
	}
	if input.BatchNumber == "" {
		details["batch_number"] = "is required"
	}
	if input.Quantity <= 0 {
		details["quantity"] = "must be greater than zero"
	}
	if input.VolumePerUnit != nil && input.VolumePerUnit.Sign() <= 0 {
		details["volume_per_unit"] = "must be greater than zero"
	}
	if input.CurrentUnitVolume != nil {
		if input.VolumePerUnit == nil {
			details["current_unit_volume"] = "requires volume_per_unit"
		} else if input.CurrentUnitVolume.Sign() <= 0 ||
			input.CurrentUnitVolume.GreaterThan(*input.VolumePerUnit) {
			details["current_unit_volume"] = "must be positive and at most volume_per_unit"
		}
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// Consume draws the given amount from one batch: volume for
// volume-granular batches, whole units otherwise. The open unit is drained
// first and further units are broken open as needed. Fails without effect
// when the batch cannot cover the amount.
func (s *LedgerService) Consume(ctx context.Context, batchID string, amount decimal.Decimal, reason, operationRef, performedBy string) (*repository.Batch, error) {
	var batch *repository.Batch
	var movement *repository.Movement

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		batch, err = s.batchRepo.GetForUpdate(ctx, tx, batchID)
		if err != nil {
			return err
		}

		if err := s.checkConsumable(batch); err != nil {
			return err
		}

		movement = &repository.Movement{
			BatchID:      batch.ID,
			MovementType: repository.MovementConsume,
			Reason:       optional(reason),
			OperationRef: optional(operationRef),
			PerformedBy:  optional(performedBy),
		}

		if batch.IsVolumeGranular() {
			result, err := Drain(batch.Quantity, batch.VolumePerUnit.Decimal, batch.CurrentUnitVolume.Decimal, amount)
			if err != nil {
				return err
			}
			movement.UnitDelta = result.Quantity - batch.Quantity
			movement.VolumeDelta = decimal.NewNullDecimal(amount.Neg())
			batch.Quantity = result.Quantity
			batch.CurrentUnitVolume = decimal.NewNullDecimal(result.CurrentUnitVolume)
		} else {
			units, err := wholeUnits(amount)
			if err != nil {
				return err
			}
			if units > batch.Quantity {
				return errors.InsufficientStock("batch", amount.String(),
					decimal.NewFromInt(int64(batch.Quantity)).String())
			}
			movement.UnitDelta = -units
			batch.Quantity -= units
		}

		if batch.IsDepleted() {
			batch.Status = repository.StatusDepleted
		}

		if err := s.batchRepo.UpdateStock(ctx, tx, batch); err != nil {
			return err
		}
		return s.movementRepo.Append(ctx, tx, movement)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishMovementRecorded(ctx, batch, movement)
	if batch.Status == repository.StatusDepleted {
		s.publisher.PublishBatchDepleted(ctx, batch)
	}

	return batch, nil
}

// Adjust corrects the stock of a batch by a signed amount (volume for
// volume-granular batches, whole units otherwise). A reason is mandatory;
// adjustments are for reconciliation with physical reality, not routine
// consumption. Positive adjustments revive a depleted batch.
func (s *LedgerService) Adjust(ctx context.Context, batchID string, delta decimal.Decimal, reason, performedBy string) (*repository.Batch, error) {
	if reason == "" {
		return nil, errors.Validation(map[string]string{"reason": "is required"})
	}
	if delta.IsZero() {
		return nil, errors.Validation(map[string]string{"delta": "must be non-zero"})
	}

	var batch *repository.Batch
	var movement *repository.Movement

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		batch, err = s.batchRepo.GetForUpdate(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if batch.Status == repository.StatusExpired {
			return errors.BadRequest("cannot adjust an expired batch")
		}

		movement = &repository.Movement{
			BatchID:      batch.ID,
			MovementType: repository.MovementAdjust,
			Reason:       optional(reason),
			PerformedBy:  optional(performedBy),
		}

		if batch.IsVolumeGranular() {
			var result DrainResult
			if delta.Sign() > 0 {
				result = Refill(batch.Quantity, batch.VolumePerUnit.Decimal, batch.CurrentUnitVolume.Decimal, delta)
			} else {
				result, err = Drain(batch.Quantity, batch.VolumePerUnit.Decimal, batch.CurrentUnitVolume.Decimal, delta.Neg())
				if err != nil {
					return err
				}
			}
			movement.UnitDelta = result.Quantity - batch.Quantity
			movement.VolumeDelta = decimal.NewNullDecimal(delta)
			batch.Quantity = result.Quantity
			batch.CurrentUnitVolume = decimal.NewNullDecimal(result.CurrentUnitVolume)
		} else {
			units, err := wholeUnitsSigned(delta)
			if err != nil {
				return err
			}
			if batch.Quantity+units < 0 {
				return errors.InsufficientStock("batch", delta.Abs().String(),
					decimal.NewFromInt(int64(batch.Quantity)).String())
			}
			movement.UnitDelta = units
			batch.Quantity += units
		}

		switch {
		case batch.IsDepleted():
			batch.Status = repository.StatusDepleted
		case batch.Status == repository.StatusDepleted:
			batch.Status = repository.StatusAvailable
		}

		if err := s.batchRepo.UpdateStock(ctx, tx, batch); err != nil {
			return err
		}
		return s.movementRepo.Append(ctx, tx, movement)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishMovementRecorded(ctx, batch, movement)
	if batch.Status == repository.StatusDepleted {
		s.publisher.PublishBatchDepleted(ctx, batch)
	}

	return batch, nil
}

// Dispose writes off whatever remains in a batch in one adjustment.
func (s *LedgerService) Dispose(ctx context.Context, batchID, reason, performedBy string) (*repository.Batch, error) {
	if reason == "" {
		return nil, errors.Validation(map[string]string{"reason": "is required"})
	}

	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	remaining := batch.AvailableAmount()
	if remaining.Sign() == 0 {
		return nil, errors.BadRequest("batch has no remaining stock")
	}

	// Expired batches may still be disposed; lift the expired guard by
	// adjusting through the same path with the expired status reset after.
	if batch.Status == repository.StatusExpired {
		return s.disposeExpired(ctx, batchID, reason, performedBy)
	}

	return s.Adjust(ctx, batchID, remaining.Neg(), reason, performedBy)
}

func (s *LedgerService) disposeExpired(ctx context.Context, batchID, reason, performedBy string) (*repository.Batch, error) {
	var batch *repository.Batch
	var movement *repository.Movement

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		batch, err = s.batchRepo.GetForUpdate(ctx, tx, batchID)
		if err != nil {
			return err
		}

		movement = &repository.Movement{
			BatchID:      batch.ID,
			MovementType: repository.MovementAdjust,
			UnitDelta:    -batch.Quantity,
			Reason:       optional(reason),
			PerformedBy:  optional(performedBy),
		}
		if batch.IsVolumeGranular() {
			movement.VolumeDelta = decimal.NewNullDecimal(batch.AvailableVolume().Neg())
			batch.CurrentUnitVolume = decimal.NewNullDecimal(decimal.Zero)
		}
		batch.Quantity = 0
		batch.Status = repository.StatusDepleted

		if err := s.batchRepo.UpdateStock(ctx, tx, batch); err != nil {
			return err
		}
		return s.movementRepo.Append(ctx, tx, movement)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishMovementRecorded(ctx, batch, movement)
	s.publisher.PublishBatchDepleted(ctx, batch)
	return batch, nil
}

// GetBatch gets a batch by ID
func (s *LedgerService) GetBatch(ctx context.Context, id string) (*repository.Batch, error) {
	return s.batchRepo.GetByID(ctx, id)
}

// ListBatches lists batches of a nomenclature item in first-expired-first-out
// order. Expired-on-paper batches are reported with their effective status
// even if the scanner has not flipped them yet.
func (s *LedgerService) ListBatches(ctx context.Context, nomenclatureID string) ([]*repository.Batch, error) {
	batches, err := s.batchRepo.ListByNomenclature(ctx, nomenclatureID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, b := range batches {
		if b.Status == repository.StatusAvailable && b.IsExpiredAt(now) {
			b.Status = repository.StatusExpired
		}
	}
	return batches, nil
}

// StockLevel aggregates usable stock of one nomenclature item.
type StockLevel struct {
	NomenclatureID string              `json:"nomenclature_id"`
	TotalUnits     int                 `json:"total_units"`
	TotalVolume    decimal.Decimal     `json:"total_volume"`
	BatchCount     int                 `json:"batch_count"`
	Batches        []*repository.Batch `json:"batches,omitempty"`
}

// AvailableStock aggregates usable stock across the item's batches,
// excluding expired and depleted ones.
func (s *LedgerService) AvailableStock(ctx context.Context, nomenclatureID string, includeBatches bool) (*StockLevel, error) {
	if _, err := s.catalogRepo.GetByID(ctx, nomenclatureID); err != nil {
		return nil, err
	}

	batches, err := s.batchRepo.ListByNomenclature(ctx, nomenclatureID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	level := &StockLevel{
		NomenclatureID: nomenclatureID,
		TotalVolume:    decimal.Zero,
	}
	for _, b := range batches {
		if b.IsDepleted() || b.Status == repository.StatusExpired || b.IsExpiredAt(now) {
			continue
		}
		level.TotalUnits += b.Quantity
		level.TotalVolume = level.TotalVolume.Add(b.AvailableVolume())
		level.BatchCount++
		if includeBatches {
			level.Batches = append(level.Batches, b)
		}
	}
	return level, nil
}

// MovementHistory returns the ledger of a batch, newest first.
func (s *LedgerService) MovementHistory(ctx context.Context, batchID string, page, perPage int) ([]*repository.Movement, int64, error) {
	if _, err := s.batchRepo.GetByID(ctx, batchID); err != nil {
		return nil, 0, err
	}
	return s.movementRepo.History(ctx, batchID, page, perPage)
}

func (s *LedgerService) checkConsumable(batch *repository.Batch) error {
	switch batch.Status {
	case repository.StatusDepleted:
		return errors.InsufficientStock("batch", "any", "0")
	case repository.StatusExpired:
		return errors.BadRequest("cannot consume from an expired batch")
	case repository.StatusReserved:
		return errors.Conflict("batch is reserved")
	}
	if batch.IsExpiredAt(time.Now().UTC()) {
		return errors.BadRequest("cannot consume from an expired batch")
	}
	return nil
}

// wholeUnits converts a positive amount to a unit count, rejecting
// fractional values for unit-granular batches.
func wholeUnits(amount decimal.Decimal) (int, error) {
	if amount.Sign() <= 0 {
		return 0, errors.Validation(map[string]string{"amount": "must be greater than zero"})
	}
	if !amount.IsInteger() {
		return 0, errors.Validation(map[string]string{"amount": "must be a whole number of units for this batch"})
	}
	return int(amount.IntPart()), nil
}

func wholeUnitsSigned(delta decimal.Decimal) (int, error) {
	if !delta.IsInteger() {
		return 0, errors.Validation(map[string]string{"delta": "must be a whole number of units for this batch"})
	}
	return int(delta.IntPart()), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
