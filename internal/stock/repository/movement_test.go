package repository_test

import (
	"context"
	"testing"

	"github.com/cellbank/cellbank-backend/internal/stock/repository"
	apperrors "github.com/cellbank/cellbank-backend/pkg/errors"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendMovement(t *testing.T, ctx context.Context, repo *repository.MovementRepository, m *repository.Movement) *repository.Movement {
	t.Helper()
	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		return repo.Append(ctx, tx, m)
	})
	require.NoError(t, err)
	return m
}

func TestMovementRepository_Append(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	item := createTestNomenclature(t, ctx, "Movement Medium")
	batchRepo := repository.NewBatchRepository(suite.DB)
	repo := repository.NewMovementRepository(suite.DB)

	batch := createBatch(t, ctx, batchRepo, &repository.Batch{
		NomenclatureID: item.ID, BatchNumber: "LOT-MOV", Quantity: 3,
	})

	m := appendMovement(t, ctx, repo, &repository.Movement{
		BatchID:      batch.ID,
		MovementType: repository.MovementReceive,
		UnitDelta:    3,
		VolumeDelta:  decimal.NewNullDecimal(dec("1500")),
	})

	assert.NotEmpty(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())
}

func TestMovementRepository_Append_RejectsUnknownType(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	item := createTestNomenclature(t, ctx, "Bad Movement Medium")
	batchRepo := repository.NewBatchRepository(suite.DB)
	repo := repository.NewMovementRepository(suite.DB)

	batch := createBatch(t, ctx, batchRepo, &repository.Batch{
		NomenclatureID: item.ID, BatchNumber: "LOT-BADMOV", Quantity: 1,
	})

	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		return repo.Append(ctx, tx, &repository.Movement{
			BatchID:      batch.ID,
			MovementType: "transfer",
			UnitDelta:    -1,
		})
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestMovementRepository_History_NewestFirstPaginated(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	item := createTestNomenclature(t, ctx, "History Medium")
	batchRepo := repository.NewBatchRepository(suite.DB)
	repo := repository.NewMovementRepository(suite.DB)

	batch := createBatch(t, ctx, batchRepo, &repository.Batch{
		NomenclatureID: item.ID, BatchNumber: "LOT-HIST", Quantity: 10,
	})

	appendMovement(t, ctx, repo, &repository.Movement{
		BatchID: batch.ID, MovementType: repository.MovementReceive, UnitDelta: 10,
	})
	appendMovement(t, ctx, repo, &repository.Movement{
		BatchID: batch.ID, MovementType: repository.MovementConsume, UnitDelta: -2,
	})
	appendMovement(t, ctx, repo, &repository.Movement{
		BatchID: batch.ID, MovementType: repository.MovementConsume, UnitDelta: -3,
	})

	page1, total, err := repo.History(ctx, batch.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page1, 2)
	assert.Equal(t, -3, page1[0].UnitDelta, "newest movement first")

	page2, _, err := repo.History(ctx, batch.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, repository.MovementReceive, page2[0].MovementType)
}

func TestMovementRepository_ListChronological(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	item := createTestNomenclature(t, ctx, "Replay Medium")
	batchRepo := repository.NewBatchRepository(suite.DB)
	repo := repository.NewMovementRepository(suite.DB)

	batch := createBatch(t, ctx, batchRepo, &repository.Batch{
		NomenclatureID: item.ID, BatchNumber: "LOT-REPLAY", Quantity: 5,
	})

	appendMovement(t, ctx, repo, &repository.Movement{
		BatchID: batch.ID, MovementType: repository.MovementReceive, UnitDelta: 5,
	})
	appendMovement(t, ctx, repo, &repository.Movement{
		BatchID: batch.ID, MovementType: repository.MovementConsume, UnitDelta: -1,
	})

	movements, err := repo.ListChronological(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, repository.MovementReceive, movements[0].MovementType)
	assert.Equal(t, repository.MovementConsume, movements[1].MovementType)
}
