package memory

import (
	"context"
	"errors"
	"testing"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/storage"
)

func testEpisode(id, status string, openedAt int64) *domain.Episode {
	return &domain.Episode{
		EpisodeID:  id,
		Address:    "0xaaa",
		Asset:      "BTC",
		Direction:  domain.DirectionLong,
		Status:     status,
		OpenedAt:   openedAt,
		EntryFills: []string{"f1"},
	}
}

func TestEpisodeStore_UpsertReplacesOpenEpisode(t *testing.T) {
	store := NewEpisodeStore()
	ctx := context.Background()

	open := testEpisode("e1", domain.EpisodeStatusOpen, 1000)
	if err := store.Upsert(ctx, open); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	closed := testEpisode("e1", domain.EpisodeStatusClosed, 1000)
	closed.ClosedAt = 2000
	closed.ClosedReason = domain.ClosedReasonFullClose
	if err := store.Upsert(ctx, closed); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "e1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != domain.EpisodeStatusClosed || got.ClosedAt != 2000 {
		t.Errorf("Expected replaced episode, got %+v", got)
	}
}

func TestEpisodeStore_GetByIDNotFound(t *testing.T) {
	store := NewEpisodeStore()
	_, err := store.GetByID(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestEpisodeStore_GetByStatus(t *testing.T) {
	store := NewEpisodeStore()
	ctx := context.Background()

	for _, ep := range []*domain.Episode{
		testEpisode("e1", domain.EpisodeStatusOpen, 1000),
		testEpisode("e2", domain.EpisodeStatusClosed, 2000),
		testEpisode("e3", domain.EpisodeStatusClosed, 3000),
	} {
		if err := store.Upsert(ctx, ep); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	closed, err := store.GetByStatus(ctx, domain.EpisodeStatusClosed)
	if err != nil {
		t.Fatalf("GetByStatus failed: %v", err)
	}
	if len(closed) != 2 {
		t.Errorf("Expected 2 closed, got %d", len(closed))
	}
}

func TestEpisodeStore_CallerCannotMutateStore(t *testing.T) {
	store := NewEpisodeStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, testEpisode("e1", domain.EpisodeStatusOpen, 1000)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "e1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	got.EntryFills[0] = "mutated"

	again, err := store.GetByID(ctx, "e1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if again.EntryFills[0] != "f1" {
		t.Error("Store state leaked through returned slice")
	}
}

func TestEpisodeStore_InvalidInput(t *testing.T) {
	store := NewEpisodeStore()
	if err := store.Upsert(context.Background(), nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
