package service

import (
	"github.com/cellbank/cellbank-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// DrainResult is the outcome of draining volume from a volume-granular
// batch: the new unit count, the new open-unit remainder, and how many
// units were fully used up along the way.
type DrainResult struct {
	Quantity          int
	CurrentUnitVolume decimal.Decimal
	UnitsBroken       int
}

// Drain consumes amount from a volume-granular batch: the open unit is
// drained first, then whole units are broken open one at a time until the
// amount is satisfied. The open unit counts toward quantity, so breaking
// a unit decrements quantity by one and resets the remainder to a full
// volumePerUnit.
//
// Fails without partial effect when amount exceeds the total remaining
// volume (open remainder plus quantity-1 full units).
func Drain(quantity int, volumePerUnit, currentUnitVolume, amount decimal.Decimal) (DrainResult, error) {
	if amount.Sign() <= 0 {
		return DrainResult{}, errors.Validation(map[string]string{
			"amount": "must be greater than zero",
		})
	}

	available := totalVolume(quantity, volumePerUnit, currentUnitVolume)
	if amount.GreaterThan(available) {
		return DrainResult{}, errors.InsufficientStock("batch", amount.String(), available.String())
	}

	qty := quantity
	cuv := currentUnitVolume
	broken := 0
	remaining := amount

	for remaining.GreaterThan(cuv) {
		remaining = remaining.Sub(cuv)
		qty--
		broken++
		cuv = volumePerUnit
	}
	cuv = cuv.Sub(remaining)

	// A remainder of exactly zero means the open unit is used up too.
	if cuv.IsZero() && qty > 0 {
		qty--
		broken++
		if qty > 0 {
			cuv = volumePerUnit
		}
	}

	return DrainResult{
		Quantity:          qty,
		CurrentUnitVolume: cuv,
		UnitsBroken:       broken,
	}, nil
}

// Refill is the inverse cascade used by positive adjustments: the new state
// is derived from the new total volume. A total that is an exact multiple
// of volumePerUnit yields a full open unit, never a zero remainder.
func Refill(quantity int, volumePerUnit, currentUnitVolume, amount decimal.Decimal) DrainResult {
	total := totalVolume(quantity, volumePerUnit, currentUnitVolume).Add(amount)
	return stateFromTotal(total, volumePerUnit)
}

// stateFromTotal derives (quantity, currentUnitVolume) from a total volume.
func stateFromTotal(total, volumePerUnit decimal.Decimal) DrainResult {
	if total.Sign() <= 0 {
		return DrainResult{Quantity: 0, CurrentUnitVolume: decimal.Zero}
	}

	qty := total.Div(volumePerUnit).Ceil()
	cuv := total.Sub(qty.Sub(decimal.NewFromInt(1)).Mul(volumePerUnit))
	return DrainResult{
		Quantity:          int(qty.IntPart()),
		CurrentUnitVolume: cuv,
	}
}

func totalVolume(quantity int, volumePerUnit, currentUnitVolume decimal.Decimal) decimal.Decimal {
	if quantity <= 0 {
		return decimal.Zero
	}
	full := volumePerUnit.Mul(decimal.NewFromInt(int64(quantity - 1)))
	return currentUnitVolume.Add(full)
}
