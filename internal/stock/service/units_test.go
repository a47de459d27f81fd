package service

import (
	"testing"

	apperrors "github.com/cellbank/cellbank-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDrain_WithinOpenUnit(t *testing.T) {
	result, err := Drain(3, dec("500"), dec("500"), dec("200"))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Quantity)
	assert.True(t, result.CurrentUnitVolume.Equal(dec("300")), "got %s", result.CurrentUnitVolume)
	assert.Equal(t, 0, result.UnitsBroken)
}

func TestDrain_CascadesThroughUnits(t *testing.T) {
	// Three 500ml bottles, consume 700ml: the open bottle is emptied, the
	// second is opened and drained to 300ml.
	result, err := Drain(3, dec("500"), dec("500"), dec("700"))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Quantity)
	assert.True(t, result.CurrentUnitVolume.Equal(dec("300")), "got %s", result.CurrentUnitVolume)
	assert.Equal(t, 1, result.UnitsBroken)
}

func TestDrain_PartialOpenUnitFirst(t *testing.T) {
	// Open bottle at 100ml, consume 150ml: finishes the open bottle and
	// takes 50ml from the next.
	result, err := Drain(3, dec("500"), dec("100"), dec("150"))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Quantity)
	assert.True(t, result.CurrentUnitVolume.Equal(dec("450")))
}

func TestDrain_ExactOpenUnit(t *testing.T) {
	// Consuming exactly the open remainder uses that unit up.
	result, err := Drain(3, dec("500"), dec("500"), dec("500"))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Quantity)
	assert.True(t, result.CurrentUnitVolume.Equal(dec("500")))
	assert.Equal(t, 1, result.UnitsBroken)
}

func TestDrain_FullDepletion(t *testing.T) {
	result, err := Drain(3, dec("500"), dec("500"), dec("1500"))
	require.NoError(t, err)

	assert.Equal(t, 0, result.Quantity)
	assert.True(t, result.CurrentUnitVolume.IsZero())
	assert.Equal(t, 3, result.UnitsBroken)
}

func TestDrain_LastDrop(t *testing.T) {
	result, err := Drain(1, dec("500"), dec("0.5"), dec("0.5"))
	require.NoError(t, err)

	assert.Equal(t, 0, result.Quantity)
	assert.True(t, result.CurrentUnitVolume.IsZero())
}

func TestDrain_InsufficientVolume(t *testing.T) {
	_, err := Drain(3, dec("500"), dec("500"), dec("1500.001"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientStock))

	var appErr *apperrors.AppError
	require.True(t, apperrors.As(err, &appErr))
	assert.Equal(t, "1500", appErr.Details["available"])
}

func TestDrain_FailsWithoutPartialEffect(t *testing.T) {
	// An oversized request must not touch the state at all: the caller's
	// inputs are untouched and the error carries no partial result.
	qty, cuv := 2, dec("100")
	_, err := Drain(qty, dec("250"), cuv, dec("400"))
	require.Error(t, err)
	assert.Equal(t, 2, qty)
	assert.True(t, cuv.Equal(dec("100")))
}

func TestDrain_RejectsNonPositiveAmount(t *testing.T) {
	_, err := Drain(3, dec("500"), dec("500"), decimal.Zero)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	_, err = Drain(3, dec("500"), dec("500"), dec("-10"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestDrain_FractionalVolumes(t *testing.T) {
	// Decimal arithmetic must not lose the 0.1 that binary floats cannot
	// represent.
	result, err := Drain(2, dec("10"), dec("10"), dec("9.9"))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Quantity)
	assert.True(t, result.CurrentUnitVolume.Equal(dec("0.1")), "got %s", result.CurrentUnitVolume)

	result, err = Drain(result.Quantity, dec("10"), result.CurrentUnitVolume, dec("0.2"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Quantity)
	assert.True(t, result.CurrentUnitVolume.Equal(dec("9.9")))
}

func TestRefill_ReopensDepletedBatch(t *testing.T) {
	result := Refill(0, dec("500"), decimal.Zero, dec("700"))

	assert.Equal(t, 2, result.Quantity)
	assert.True(t, result.CurrentUnitVolume.Equal(dec("200")))
}

func TestRefill_ExactMultipleYieldsFullOpenUnit(t *testing.T) {
	result := Refill(0, dec("500"), decimal.Zero, dec("1000"))

	assert.Equal(t, 2, result.Quantity)
	assert.True(t, result.CurrentUnitVolume.Equal(dec("500")))
}

func TestRefill_TopsUpOpenUnit(t *testing.T) {
	result := Refill(2, dec("500"), dec("300"), dec("100"))

	assert.Equal(t, 2, result.Quantity)
	assert.True(t, result.CurrentUnitVolume.Equal(dec("400")))
}

func TestDrainRefill_RoundTrip(t *testing.T) {
	drained, err := Drain(3, dec("500"), dec("500"), dec("700"))
	require.NoError(t, err)

	restored := Refill(drained.Quantity, dec("500"), drained.CurrentUnitVolume, dec("700"))
	assert.Equal(t, 3, restored.Quantity)
	assert.True(t, restored.CurrentUnitVolume.Equal(dec("500")))
}
