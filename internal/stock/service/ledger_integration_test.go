package service_test

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	catalogrepo "github.com/cellbank/cellbank-backend/internal/catalog/repository"
	"github.com/cellbank/cellbank-backend/internal/stock/events"
	"github.com/cellbank/cellbank-backend/internal/stock/repository"
	"github.com/cellbank/cellbank-backend/internal/stock/service"
	"github.com/cellbank/cellbank-backend/pkg/config"
	apperrors "github.com/cellbank/cellbank-backend/pkg/errors"
	"github.com/cellbank/cellbank-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}
	defer suite.Cleanup(ctx)
	defer testutil.TerminateContainer(ctx)

	os.Exit(m.Run())
}

// newLedger wires a ledger service against the shared test database. The
// publisher is nil; event publication is a no-op in these tests.
func newLedger() *service.LedgerService {
	return newLedgerWithWindow(config.DefaultWarningWindowDays)
}

func newLedgerWithWindow(warningWindowDays int) *service.LedgerService {
	return service.NewLedgerService(
		suite.DB,
		repository.NewBatchRepository(suite.DB),
		repository.NewMovementRepository(suite.DB),
		catalogrepo.NewNomenclatureRepository(suite.DB),
		(*events.StockEventPublisher)(nil),
		suite.Logger,
		warningWindowDays,
	)
}

func createItem(t *testing.T, ctx context.Context, name string) *catalogrepo.NomenclatureItem {
	t.Helper()
	fx := suite.Fixtures.Nomenclature(testutil.WithNomenclatureName(name))
	item := &catalogrepo.NomenclatureItem{
		Name:     fx.Name,
		Category: fx.Category,
		Unit:     fx.Unit,
		IsActive: fx.IsActive,
	}
	err := catalogrepo.NewNomenclatureRepository(suite.DB).Create(ctx, item)
	require.NoError(t, err)
	return item
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func receiveBatch(t *testing.T, ctx context.Context, svc *service.LedgerService, input service.ReceiveInput) *repository.Batch {
	t.Helper()
	batch, err := svc.Receive(ctx, input)
	require.NoError(t, err)
	return batch
}

func TestLedger_ReceiveWritesOpeningMovement(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	svc := newLedger()
	item := createItem(t, ctx, "Receive FBS")

	batch := receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-RCV-1",
		Quantity:       3,
		VolumePerUnit:  decPtr("500"),
		PerformedBy:    "tech@lab.local",
	})

	assert.Equal(t, repository.StatusAvailable, batch.Status)
	assert.True(t, batch.CurrentUnitVolume.Decimal.Equal(dec("500")),
		"fresh batch opens with a full unit")

	movements, total, err := svc.MovementHistory(ctx, batch.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, movements, 1)
	assert.Equal(t, repository.MovementReceive, movements[0].MovementType)
	assert.Equal(t, 3, movements[0].UnitDelta)
	assert.True(t, movements[0].VolumeDelta.Decimal.Equal(dec("1500")))
}

func TestLedger_Receive_RejectsInactiveItem(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	svc := newLedger()
	item := createItem(t, ctx, "Retired Medium")
	require.NoError(t, catalogrepo.NewNomenclatureRepository(suite.DB).Deactivate(ctx, item.ID))

	_, err := svc.Receive(ctx, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-RETIRED",
		Quantity:       1,
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestLedger_ConsumeCascadesAcrossUnits(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	svc := newLedger()
	item := createItem(t, ctx, "Cascade DMEM")

	batch := receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-CASCADE",
		Quantity:       3,
		VolumePerUnit:  decPtr("500"),
	})

	updated, err := svc.Consume(ctx, batch.ID, dec("700"), "media change", "op-42", "tech@lab.local")
	require.NoError(t, err)

	assert.Equal(t, 2, updated.Quantity)
	assert.True(t, updated.CurrentUnitVolume.Decimal.Equal(dec("300")))
	assert.Equal(t, repository.StatusAvailable, updated.Status)
}

func TestLedger_ConsumeToDepletion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	svc := newLedger()
	item := createItem(t, ctx, "Depletion Trypsin")

	batch := receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-DEPLETE",
		Quantity:       2,
		VolumePerUnit:  decPtr("100"),
	})

	updated, err := svc.Consume(ctx, batch.ID, dec("200"), "", "", "")
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Quantity)
	assert.True(t, updated.CurrentUnitVolume.Decimal.IsZero())
	assert.Equal(t, repository.StatusDepleted, updated.Status)

	// A depleted batch yields nothing more.
	_, err = svc.Consume(ctx, batch.ID, dec("1"), "", "", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientStock))
}

func TestLedger_ConsumeInsufficientLeavesStateUntouched(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	svc := newLedger()
	item := createItem(t, ctx, "Insufficient PBS")

	batch := receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-INSUF",
		Quantity:       1,
		VolumePerUnit:  decPtr("500"),
	})

	_, err := svc.Consume(ctx, batch.ID, dec("600"), "", "", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientStock))

	reloaded, err := svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Quantity)
	assert.True(t, reloaded.CurrentUnitVolume.Decimal.Equal(dec("500")))

	_, total, err := svc.MovementHistory(ctx, batch.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "failed consumption must not append a movement")
}

func TestLedger_UnitGranularConsumeRejectsFractions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	svc := newLedger()
	item := createItem(t, ctx, "Pipette Tips")

	batch := receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-TIPS",
		Quantity:       10,
	})

	_, err := svc.Consume(ctx, batch.ID, dec("2.5"), "", "", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	updated, err := svc.Consume(ctx, batch.ID, dec("4"), "", "", "")
	require.NoError(t, err)
	assert.Equal(t, 6, updated.Quantity)
}

func TestLedger_AdjustRequiresReason(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	svc := newLedger()
	item := createItem(t, ctx, "Adjust Medium")

	batch := receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-ADJ-REASON",
		Quantity:       2,
	})

	_, err := svc.Adjust(ctx, batch.ID, dec("-1"), "", "tech@lab.local")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestLedger_AdjustRevivesDepletedBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	svc := newLedger()
	item := createItem(t, ctx, "Revive Serum")

	batch := receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-REVIVE",
		Quantity:       1,
		VolumePerUnit:  decPtr("100"),
	})

	_, err := svc.Consume(ctx, batch.ID, dec("100"), "", "", "")
	require.NoError(t, err)

	// Stock count found a forgotten 40ml still in the bottle.
	revived, err := svc.Adjust(ctx, batch.ID, dec("40"), "physical count correction", "tech@lab.local")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusAvailable, revived.Status)
	assert.Equal(t, 1, revived.Quantity)
	assert.True(t, revived.CurrentUnitVolume.Decimal.Equal(dec("40")))
}

func TestLedger_ConservationAcrossMovements(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	svc := newLedger()
	item := createItem(t, ctx, "Conservation Medium")

	batch := receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-CONSERVE",
		Quantity:       4,
		VolumePerUnit:  decPtr("250"),
	})

	_, err := svc.Consume(ctx, batch.ID, dec("300"), "", "", "")
	require.NoError(t, err)
	_, err = svc.Adjust(ctx, batch.ID, dec("-50"), "spill", "")
	require.NoError(t, err)
	_, err = svc.Consume(ctx, batch.ID, dec("125.5"), "", "", "")
	require.NoError(t, err)

	reloaded, err := svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)

	// Received 1000, moved out 475.5: the batch must hold exactly 524.5.
	assert.True(t, reloaded.AvailableVolume().Equal(dec("524.5")),
		"got %s", reloaded.AvailableVolume())

	report, err := svc.Reconcile(ctx, batch.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent, "issues: %v", report.Issues)
	assert.Equal(t, reloaded.Quantity, report.DerivedQuantity)
}

func TestLedger_ReconcileDetectsBypassedMutation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	svc := newLedger()
	item := createItem(t, ctx, "Tampered Medium")

	batch := receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-TAMPER",
		Quantity:       3,
		VolumePerUnit:  decPtr("500"),
	})

	// Mutate the row behind the ledger's back.
	_, err := suite.RawDB.ExecContext(ctx,
		`UPDATE stock_batches SET quantity = 2 WHERE id = $1`, batch.ID)
	require.NoError(t, err)

	report, err := svc.Reconcile(ctx, batch.ID)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	assert.NotEmpty(t, report.Issues)
}

func TestLedger_AvailableStockExcludesExpired(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	svc := newLedger()
	item := createItem(t, ctx, "Expiry Glutamine")

	past := time.Now().UTC().AddDate(0, 0, -1)
	future := time.Now().UTC().AddDate(0, 1, 0)

	receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-STALE",
		Quantity:       5,
		VolumePerUnit:  decPtr("100"),
		ExpirationDate: &past,
	})
	receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-FRESH",
		Quantity:       2,
		VolumePerUnit:  decPtr("100"),
		ExpirationDate: &future,
	})

	level, err := svc.AvailableStock(ctx, item.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 2, level.TotalUnits)
	assert.True(t, level.TotalVolume.Equal(dec("200")))
	assert.Equal(t, 1, level.BatchCount)
}

func TestLedger_Allocate_FefoAcrossBatches(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	svc := newLedger()
	item := createItem(t, ctx, "Allocate DMEM")

	soon := time.Now().UTC().AddDate(0, 0, 10)
	later := time.Now().UTC().AddDate(0, 2, 0)

	first := receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-ALLOC-SOON",
		Quantity:       1,
		VolumePerUnit:  decPtr("500"),
		ExpirationDate: &soon,
	})
	second := receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-ALLOC-LATER",
		Quantity:       2,
		VolumePerUnit:  decPtr("500"),
		ExpirationDate: &later,
	})

	plan, err := svc.Allocate(ctx, item.ID, dec("800"), "passage", "op-7", "tech@lab.local")
	require.NoError(t, err)
	require.Len(t, plan.Legs, 2)
	assert.Equal(t, first.ID, plan.Legs[0].Batch.ID)
	assert.True(t, plan.Legs[0].Amount.Equal(dec("500")))
	assert.Equal(t, second.ID, plan.Legs[1].Batch.ID)
	assert.True(t, plan.Legs[1].Amount.Equal(dec("300")))

	// First batch fully applied and depleted, second drained to 200.
	b1, err := svc.GetBatch(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusDepleted, b1.Status)

	b2, err := svc.GetBatch(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, b2.AvailableVolume().Equal(dec("700")))
}

func TestLedger_Allocate_AllOrNothingOnShortfall(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	svc := newLedger()
	item := createItem(t, ctx, "Shortfall FBS")

	batch := receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-SHORT",
		Quantity:       2,
		VolumePerUnit:  decPtr("500"),
	})

	_, err := svc.Allocate(ctx, item.ID, dec("1200"), "", "", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientStock))

	// Nothing moved: the single candidate batch is untouched.
	reloaded, err := svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.AvailableVolume().Equal(dec("1000")))

	_, total, err := svc.MovementHistory(ctx, batch.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestLedger_Allocate_SkipsExpiredCandidates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	svc := newLedger()
	item := createItem(t, ctx, "Expired Alloc Medium")

	past := time.Now().UTC().AddDate(0, 0, -1)
	future := time.Now().UTC().AddDate(0, 1, 0)

	receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-ALLOC-STALE",
		Quantity:       10,
		VolumePerUnit:  decPtr("500"),
		ExpirationDate: &past,
	})
	fresh := receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-ALLOC-FRESH",
		Quantity:       1,
		VolumePerUnit:  decPtr("500"),
		ExpirationDate: &future,
	})

	plan, err := svc.Allocate(ctx, item.ID, dec("400"), "", "", "")
	require.NoError(t, err)
	require.Len(t, plan.Legs, 1)
	assert.Equal(t, fresh.ID, plan.Legs[0].Batch.ID)

	// Requesting more than the fresh batch holds must fail even though the
	// expired batch could physically cover it.
	_, err = svc.Allocate(ctx, item.ID, dec("300"), "", "", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientStock))
}

func TestLedger_Dispose(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	svc := newLedger()
	item := createItem(t, ctx, "Dispose Medium")

	batch := receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-DISPOSE",
		Quantity:       2,
		VolumePerUnit:  decPtr("500"),
	})

	disposed, err := svc.Dispose(ctx, batch.ID, "contamination", "tech@lab.local")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusDepleted, disposed.Status)
	assert.Equal(t, 0, disposed.Quantity)

	report, err := svc.Reconcile(ctx, batch.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent, "issues: %v", report.Issues)
}

func TestGetStockSummary_UsesConfiguredExpiryWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	wide := newLedgerWithWindow(30)
	narrow := newLedgerWithWindow(7)

	beforeWide, err := wide.GetStockSummary(ctx)
	require.NoError(t, err)
	beforeNarrow, err := narrow.GetStockSummary(ctx)
	require.NoError(t, err)

	item := createItem(t, ctx, "Summary Window Medium")
	expiry := time.Now().UTC().AddDate(0, 0, 20)
	receiveBatch(t, ctx, wide, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-WINDOW",
		Quantity:       1,
		VolumePerUnit:  decPtr("500"),
		ExpirationDate: &expiry,
	})

	afterWide, err := wide.GetStockSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, beforeWide.ExpiringCount+1, afterWide.ExpiringCount,
		"batch 20 days out is expiring inside a 30 day window")

	afterNarrow, err := narrow.GetStockSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, beforeNarrow.ExpiringCount, afterNarrow.ExpiringCount,
		"batch 20 days out is not expiring inside a 7 day window")
}

func TestLedger_Allocate_RejectsFractionalLegOnUnitBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	svc := newLedger()
	item := createItem(t, ctx, "Mixed Granularity Enzyme")

	soon := time.Now().UTC().AddDate(0, 0, 5)
	later := time.Now().UTC().AddDate(0, 0, 60)
	volumeBatch := receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-MIX-VOL",
		Quantity:       1,
		VolumePerUnit:  decPtr("0.5"),
		ExpirationDate: &soon,
	})
	unitBatch := receiveBatch(t, ctx, svc, service.ReceiveInput{
		NomenclatureID: item.ID,
		BatchNumber:    "LOT-MIX-UNIT",
		Quantity:       10,
		ExpirationDate: &later,
	})

	// The first leg drains 0.5 from the earlier batch, leaving 2.5 for
	// the unit-granular one. That split cannot be fulfilled in whole
	// units and must fail without touching either batch.
	_, err := svc.Allocate(ctx, item.ID, dec("3"), "", "", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	reloadedVol, err := svc.GetBatch(ctx, volumeBatch.ID)
	require.NoError(t, err)
	assert.True(t, reloadedVol.AvailableVolume().Equal(dec("0.5")))

	reloadedUnit, err := svc.GetBatch(ctx, unitBatch.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, reloadedUnit.Quantity)

	_, total, err := svc.MovementHistory(ctx, unitBatch.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "only the opening receive movement")
}
