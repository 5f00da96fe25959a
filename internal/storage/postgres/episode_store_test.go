package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/storage"
)

func openEpisode(id, address string, openedAt int64) *domain.Episode {
	return &domain.Episode{
		EpisodeID:     id,
		Address:       address,
		Asset:         "BTC",
		Direction:     domain.DirectionLong,
		Status:        domain.EpisodeStatusOpen,
		OpenedAt:      openedAt,
		EntrySize:     2.0,
		EntryVwap:     50000,
		EntryNotional: 100000,
		RiskAmount:    1000,
		StopBps:       100,
		EntryFills:    []string{"f1"},
		ExitFills:     []string{},
	}
}

func TestEpisodeStore_UpsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEpisodeStore(pool)

	ep := openEpisode("e1", "0xAbC", 1700000001000)
	require.NoError(t, store.Upsert(ctx, ep))

	got, err := store.GetByID(ctx, "e1")
	require.NoError(t, err)

	assert.Equal(t, "e1", got.EpisodeID)
	assert.Equal(t, "0xabc", got.Address)
	assert.Equal(t, domain.EpisodeStatusOpen, got.Status)
	assert.InDelta(t, 50000.0, got.EntryVwap, 0.0001)
	assert.InDelta(t, 1000.0, got.RiskAmount, 0.0001)
	assert.Equal(t, []string{"f1"}, got.EntryFills)
	assert.Empty(t, got.ExitFills)
}

func TestEpisodeStore_UpsertReplacesOnClose(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEpisodeStore(pool)

	ep := openEpisode("e1", "0xabc", 1700000001000)
	require.NoError(t, store.Upsert(ctx, ep))

	ep.Status = domain.EpisodeStatusClosed
	ep.ClosedAt = 1700000005000
	ep.ExitVwap = 50500
	ep.ExitFills = []string{"f2", "f3"}
	ep.ClosedReason = domain.ClosedReasonFullClose
	ep.RealizedPnl = 1000
	ep.ResultR = 1.0
	ep.TotalFees = 2.5
	require.NoError(t, store.Upsert(ctx, ep))

	got, err := store.GetByID(ctx, "e1")
	require.NoError(t, err)

	assert.Equal(t, domain.EpisodeStatusClosed, got.Status)
	assert.Equal(t, int64(1700000005000), got.ClosedAt)
	assert.Equal(t, []string{"f2", "f3"}, got.ExitFills)
	assert.Equal(t, domain.ClosedReasonFullClose, got.ClosedReason)
	assert.InDelta(t, 1.0, got.ResultR, 0.0001)

	// Still exactly one row.
	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEpisodeStore_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEpisodeStore(pool)
	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEpisodeStore_GetByTraderAndStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEpisodeStore(pool)

	e1 := openEpisode("e1", "0xaaa", 2000)
	e2 := openEpisode("e2", "0xaaa", 1000)
	e2.Status = domain.EpisodeStatusClosed
	e2.ClosedAt = 1500
	e2.ClosedReason = domain.ClosedReasonDirectionFlip
	e3 := openEpisode("e3", "0xbbb", 3000)

	for _, ep := range []*domain.Episode{e1, e2, e3} {
		require.NoError(t, store.Upsert(ctx, ep))
	}

	byTrader, err := store.GetByTrader(ctx, "0xAAA")
	require.NoError(t, err)
	require.Len(t, byTrader, 2)
	assert.Equal(t, "e2", byTrader[0].EpisodeID)
	assert.Equal(t, "e1", byTrader[1].EpisodeID)

	open, err := store.GetByStatus(ctx, domain.EpisodeStatusOpen)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "e1", open[0].EpisodeID)
	assert.Equal(t, "e3", open[1].EpisodeID)
}
