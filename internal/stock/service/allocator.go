package service

import (
	"context"
	"time"

	"github.com/cellbank/cellbank-backend/internal/stock/repository"
	"github.com/cellbank/cellbank-backend/pkg/errors"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// AllocationLeg is one batch's contribution to an allocation.
type AllocationLeg struct {
	Batch  *repository.Batch `json:"batch"`
	Amount decimal.Decimal   `json:"amount"`
}

// AllocationPlan is the additive plan an allocation would execute:
// first-expiring batches first, each drained before the next is touched.
type AllocationPlan struct {
	NomenclatureID string          `json:"nomenclature_id"`
	Requested      decimal.Decimal `json:"requested"`
	Available      decimal.Decimal `json:"available"`
	Legs           []AllocationLeg `json:"legs"`
}

// Satisfiable reports whether the plan covers the requested amount.
func (p *AllocationPlan) Satisfiable() bool {
	return p.Available.GreaterThanOrEqual(p.Requested)
}

// BuildPlan walks candidate batches in first-expired-first-out order and
// assigns each its contribution until the requested amount is covered.
// Batches expired at now are skipped regardless of their stored status.
// The plan is advisory until applied; it never mutates the batches.
func BuildPlan(nomenclatureID string, batches []*repository.Batch, requested decimal.Decimal, now time.Time) *AllocationPlan {
	plan := &AllocationPlan{
		NomenclatureID: nomenclatureID,
		Requested:      requested,
		Available:      decimal.Zero,
	}

	remaining := requested
	for _, b := range batches {
		if b.Status != repository.StatusAvailable || b.IsExpiredAt(now) || b.IsDepleted() {
			continue
		}
		amount := b.AvailableAmount()
		plan.Available = plan.Available.Add(amount)

		if remaining.Sign() <= 0 {
			continue
		}
		take := decimal.Min(remaining, amount)
		plan.Legs = append(plan.Legs, AllocationLeg{Batch: b, Amount: take})
		remaining = remaining.Sub(take)
	}

	return plan
}

// Allocate satisfies a demand for a nomenclature item across batches in
// first-expired-first-out order, all-or-nothing: either every leg of the
// plan is applied and recorded, or no stock moves at all. The candidate
// rows stay locked from planning through application, so the plan cannot
// be invalidated by a concurrent consumer.
func (s *LedgerService) Allocate(ctx context.Context, nomenclatureID string, amount decimal.Decimal, reason, operationRef, performedBy string) (*AllocationPlan, error) {
	if amount.Sign() <= 0 {
		return nil, errors.Validation(map[string]string{"amount": "must be greater than zero"})
	}
	item, err := s.catalogRepo.GetByID(ctx, nomenclatureID)
	if err != nil {
		return nil, err
	}

	unitGranular := false
	var plan *AllocationPlan
	var movements []*repository.Movement

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		batches, err := s.batchRepo.ListCandidatesForUpdate(ctx, tx, nomenclatureID, now)
		if err != nil {
			return err
		}
		for _, b := range batches {
			if !b.IsVolumeGranular() {
				unitGranular = true
			}
		}
		if unitGranular && !amount.IsInteger() {
			return errors.Validation(map[string]string{
				"amount": "must be a whole number of units for " + item.Name,
			})
		}

		plan = BuildPlan(nomenclatureID, batches, amount, now)
		if !plan.Satisfiable() {
			return errors.InsufficientStock(item.Name, amount.String(), plan.Available.String())
		}

		for _, leg := range plan.Legs {
			batch := leg.Batch
			movement := &repository.Movement{
				BatchID:      batch.ID,
				MovementType: repository.MovementConsume,
				Reason:       optional(reason),
				OperationRef: optional(operationRef),
				PerformedBy:  optional(performedBy),
			}

			if batch.IsVolumeGranular() {
				result, err := Drain(batch.Quantity, batch.VolumePerUnit.Decimal, batch.CurrentUnitVolume.Decimal, leg.Amount)
				if err != nil {
					return err
				}
				movement.UnitDelta = result.Quantity - batch.Quantity
				movement.VolumeDelta = decimal.NewNullDecimal(leg.Amount.Neg())
				batch.Quantity = result.Quantity
				batch.CurrentUnitVolume = decimal.NewNullDecimal(result.CurrentUnitVolume)
			} else {
				// A leg on a unit-granular batch can pick up a fractional
				// remainder when earlier volume-granular legs consumed an
				// uneven amount; that split cannot be fulfilled in whole units.
				units, err := wholeUnits(leg.Amount)
				if err != nil {
					return err
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
			if err := s.movementRepo.Append(ctx, tx, movement); err != nil {
				return err
			}
			movements = append(movements, movement)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, leg := range plan.Legs {
		s.publisher.PublishMovementRecorded(ctx, leg.Batch, movements[i])
		if leg.Batch.Status == repository.StatusDepleted {
			s.publisher.PublishBatchDepleted(ctx, leg.Batch)
		}
	}

	s.logger.Info().
		Str("nomenclature_id", nomenclatureID).
		Str("amount", amount.String()).
		Int("legs", len(plan.Legs)).
		Msg("allocation applied")

	return plan, nil
}

// PreviewAllocation builds the plan an allocation would execute without
// applying it. Snapshot only; stock may change before Allocate is called.
func (s *LedgerService) PreviewAllocation(ctx context.Context, nomenclatureID string, amount decimal.Decimal) (*AllocationPlan, error) {
	if amount.Sign() <= 0 {
		return nil, errors.Validation(map[string]string{"amount": "must be greater than zero"})
	}
	if _, err := s.catalogRepo.GetByID(ctx, nomenclatureID); err != nil {
		return nil, err
	}

	batches, err := s.batchRepo.ListByNomenclature(ctx, nomenclatureID)
	if err != nil {
		return nil, err
	}
	return BuildPlan(nomenclatureID, batches, amount, time.Now().UTC()), nil
}
