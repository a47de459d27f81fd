package service

import (
	"testing"
	"time"

	"github.com/cellbank/cellbank-backend/internal/stock/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func volumeBatch(id string, qty int, vpu, cuv string, expiresIn *int) *repository.Batch {
	b := &repository.Batch{
		ID:                id,
		NomenclatureID:    "nom-1",
		Quantity:          qty,
		VolumePerUnit:     decimal.NewNullDecimal(dec(vpu)),
		CurrentUnitVolume: decimal.NewNullDecimal(dec(cuv)),
		Status:            repository.StatusAvailable,
	}
	if expiresIn != nil {
		exp := time.Now().UTC().AddDate(0, 0, *expiresIn)
		b.ExpirationDate = &exp
	}
	return b
}

func days(n int) *int { return &n }

func TestBuildPlan_SingleBatchCoversRequest(t *testing.T) {
	batches := []*repository.Batch{
		volumeBatch("a", 3, "500", "500", days(10)),
	}

	plan := BuildPlan("nom-1", batches, dec("700"), time.Now().UTC())

	require.True(t, plan.Satisfiable())
	require.Len(t, plan.Legs, 1)
	assert.Equal(t, "a", plan.Legs[0].Batch.ID)
	assert.True(t, plan.Legs[0].Amount.Equal(dec("700")))
	assert.True(t, plan.Available.Equal(dec("1500")))
}

func TestBuildPlan_DrainsEarlierExpiringFirst(t *testing.T) {
	// Batches arrive pre-sorted first-expired-first-out; the plan must
	// empty each one before touching the next.
	batches := []*repository.Batch{
		volumeBatch("soon", 1, "500", "300", days(5)),
		volumeBatch("later", 3, "500", "500", days(30)),
	}

	plan := BuildPlan("nom-1", batches, dec("800"), time.Now().UTC())

	require.True(t, plan.Satisfiable())
	require.Len(t, plan.Legs, 2)
	assert.Equal(t, "soon", plan.Legs[0].Batch.ID)
	assert.True(t, plan.Legs[0].Amount.Equal(dec("300")))
	assert.Equal(t, "later", plan.Legs[1].Batch.ID)
	assert.True(t, plan.Legs[1].Amount.Equal(dec("500")))
}

func TestBuildPlan_SkipsExpiredRegardlessOfStatus(t *testing.T) {
	// A batch whose date passed yesterday still carries status available
	// until the scanner flips it. It must not contribute.
	expired := volumeBatch("old", 2, "500", "500", days(-1))
	fresh := volumeBatch("fresh", 1, "500", "400", days(20))

	plan := BuildPlan("nom-1", []*repository.Batch{expired, fresh}, dec("300"), time.Now().UTC())

	require.True(t, plan.Satisfiable())
	require.Len(t, plan.Legs, 1)
	assert.Equal(t, "fresh", plan.Legs[0].Batch.ID)
	assert.True(t, plan.Available.Equal(dec("400")))
}

func TestBuildPlan_SkipsReservedAndDepleted(t *testing.T) {
	reserved := volumeBatch("res", 2, "500", "500", days(5))
	reserved.Status = repository.StatusReserved
	depleted := volumeBatch("dep", 0, "500", "0", days(5))
	depleted.Status = repository.StatusDepleted
	usable := volumeBatch("ok", 1, "500", "500", days(10))

	plan := BuildPlan("nom-1", []*repository.Batch{reserved, depleted, usable}, dec("200"), time.Now().UTC())

	require.Len(t, plan.Legs, 1)
	assert.Equal(t, "ok", plan.Legs[0].Batch.ID)
}

func TestBuildPlan_ShortfallIsNotSatisfiable(t *testing.T) {
	batches := []*repository.Batch{
		volumeBatch("a", 1, "500", "200", days(5)),
		volumeBatch("b", 1, "500", "100", days(10)),
	}

	plan := BuildPlan("nom-1", batches, dec("400"), time.Now().UTC())

	assert.False(t, plan.Satisfiable())
	assert.True(t, plan.Available.Equal(dec("300")))
}

func TestBuildPlan_ReportsFullAvailabilityPastSatisfaction(t *testing.T) {
	// Available keeps accumulating after the request is covered so the
	// caller can report true headroom.
	batches := []*repository.Batch{
		volumeBatch("a", 2, "500", "500", days(5)),
		volumeBatch("b", 2, "500", "500", days(10)),
	}

	plan := BuildPlan("nom-1", batches, dec("100"), time.Now().UTC())

	require.Len(t, plan.Legs, 1)
	assert.True(t, plan.Available.Equal(dec("2000")))
}

func TestBuildPlan_UnitGranularBatches(t *testing.T) {
	pipettes := &repository.Batch{
		ID:             "units",
		NomenclatureID: "nom-1",
		Quantity:       40,
		Status:         repository.StatusAvailable,
	}

	plan := BuildPlan("nom-1", []*repository.Batch{pipettes}, dec("25"), time.Now().UTC())

	require.True(t, plan.Satisfiable())
	require.Len(t, plan.Legs, 1)
	assert.True(t, plan.Legs[0].Amount.Equal(dec("25")))
	assert.True(t, plan.Available.Equal(dec("40")))
}

func TestBuildPlan_NoExpirationSortsAfterDated(t *testing.T) {
	// The repository orders NULL expirations last; given that order the
	// dated batch must be consumed before the undated one.
	dated := volumeBatch("dated", 1, "500", "500", days(3))
	undated := volumeBatch("undated", 1, "500", "500", nil)

	plan := BuildPlan("nom-1", []*repository.Batch{dated, undated}, dec("600"), time.Now().UTC())

	require.True(t, plan.Satisfiable())
	require.Len(t, plan.Legs, 2)
	assert.Equal(t, "dated", plan.Legs[0].Batch.ID)
	assert.True(t, plan.Legs[0].Amount.Equal(dec("500")))
	assert.Equal(t, "undated", plan.Legs[1].Batch.ID)
	assert.True(t, plan.Legs[1].Amount.Equal(dec("100")))
}
