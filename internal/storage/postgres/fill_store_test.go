package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/storage"
)

func testFill(id, address, asset, side string, size, price float64, ts int64) *domain.Fill {
	return &domain.Fill{
		FillID:    id,
		Address:   address,
		Asset:     asset,
		Side:      side,
		Size:      size,
		Price:     price,
		Timestamp: ts,
		Fees:      0.5,
	}
}

func TestFillStore_InsertAndGetByTraderAsset(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewFillStore(pool)

	fill := testFill("f1", "0xAbC", "BTC", domain.FillSideBuy, 2.0, 50000, 1700000001000)
	fill.RealizedPnl = ptr(120.5)

	err := store.Insert(ctx, fill)
	require.NoError(t, err)

	// Address lookup is case-insensitive via lowercasing.
	fills, err := store.GetByTraderAsset(ctx, "0xABC", "BTC")
	require.NoError(t, err)

	require.Len(t, fills, 1)
	assert.Equal(t, "f1", fills[0].FillID)
	assert.Equal(t, "0xabc", fills[0].Address)
	assert.Equal(t, domain.FillSideBuy, fills[0].Side)
	assert.InDelta(t, 2.0, fills[0].Size, 0.0001)
	assert.InDelta(t, 50000.0, fills[0].Price, 0.0001)
	assert.Equal(t, int64(1700000001000), fills[0].Timestamp)
	require.NotNil(t, fills[0].RealizedPnl)
	assert.InDelta(t, 120.5, *fills[0].RealizedPnl, 0.0001)
	assert.InDelta(t, 0.5, fills[0].Fees, 0.0001)
	assert.NotZero(t, fills[0].CreatedAt)
}

func TestFillStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewFillStore(pool)

	fill := testFill("f1", "0xabc", "BTC", domain.FillSideBuy, 1.0, 50000, 1700000001000)

	err := store.Insert(ctx, fill)
	require.NoError(t, err)

	err = store.Insert(ctx, fill)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestFillStore_InsertBulkAtomicity(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewFillStore(pool)

	err := store.Insert(ctx, testFill("f2", "0xabc", "BTC", domain.FillSideSell, 1.0, 50100, 1700000002000))
	require.NoError(t, err)

	// Batch contains a duplicate of f2; nothing from the batch may land.
	batch := []*domain.Fill{
		testFill("f1", "0xabc", "BTC", domain.FillSideBuy, 1.0, 50000, 1700000001000),
		testFill("f2", "0xabc", "BTC", domain.FillSideSell, 1.0, 50100, 1700000002000),
		testFill("f3", "0xabc", "BTC", domain.FillSideBuy, 1.0, 50200, 1700000003000),
	}
	err = store.InsertBulk(ctx, batch)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	fills, err := store.GetByTraderAsset(ctx, "0xabc", "BTC")
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, "f2", fills[0].FillID)
}

func TestFillStore_GetByAssetTimeRangeInclusive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewFillStore(pool)

	batch := []*domain.Fill{
		testFill("f1", "0xaaa", "BTC", domain.FillSideBuy, 1.0, 50000, 1000),
		testFill("f2", "0xbbb", "BTC", domain.FillSideBuy, 1.0, 50000, 2000),
		testFill("f3", "0xccc", "BTC", domain.FillSideBuy, 1.0, 50000, 3000),
		testFill("f4", "0xaaa", "ETH", domain.FillSideBuy, 1.0, 3000, 2000),
	}
	require.NoError(t, store.InsertBulk(ctx, batch))

	fills, err := store.GetByAsset(ctx, "BTC", 1000, 2000)
	require.NoError(t, err)

	require.Len(t, fills, 2)
	assert.Equal(t, "f1", fills[0].FillID)
	assert.Equal(t, "f2", fills[1].FillID)
}

func TestFillStore_OrderingByTimestampThenID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewFillStore(pool)

	batch := []*domain.Fill{
		testFill("f-b", "0xaaa", "BTC", domain.FillSideBuy, 1.0, 50000, 2000),
		testFill("f-a", "0xaaa", "BTC", domain.FillSideSell, 1.0, 50000, 2000),
		testFill("f-c", "0xaaa", "BTC", domain.FillSideBuy, 1.0, 50000, 1000),
	}
	require.NoError(t, store.InsertBulk(ctx, batch))

	fills, err := store.GetByTraderAsset(ctx, "0xaaa", "BTC")
	require.NoError(t, err)

	require.Len(t, fills, 3)
	assert.Equal(t, "f-c", fills[0].FillID)
	assert.Equal(t, "f-a", fills[1].FillID)
	assert.Equal(t, "f-b", fills[2].FillID)
}

func TestFillStore_GetAssets(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewFillStore(pool)

	batch := []*domain.Fill{
		testFill("f1", "0xaaa", "ETH", domain.FillSideBuy, 1.0, 3000, 1000),
		testFill("f2", "0xaaa", "BTC", domain.FillSideBuy, 1.0, 50000, 1000),
		testFill("f3", "0xbbb", "BTC", domain.FillSideBuy, 1.0, 50000, 2000),
	}
	require.NoError(t, store.InsertBulk(ctx, batch))

	assets, err := store.GetAssets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC", "ETH"}, assets)
}
