package memory

import (
	"context"
	"errors"
	"testing"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/storage"
)

func testFill(id string, ts int64) *domain.Fill {
	return &domain.Fill{
		FillID:    id,
		Address:   "0xAAA",
		Asset:     "BTC",
		Side:      domain.FillSideBuy,
		Size:      1.0,
		Price:     50000,
		Timestamp: ts,
	}
}

func TestFillStore_InsertAndGet(t *testing.T) {
	store := NewFillStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testFill("f1", 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result, err := store.GetByTraderAsset(ctx, "0xAAA", "BTC")
	if err != nil {
		t.Fatalf("GetByTraderAsset failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Expected 1 fill, got %d", len(result))
	}
	if result[0].Address != "0xaaa" {
		t.Errorf("Expected lowercased address, got %s", result[0].Address)
	}
}

func TestFillStore_DuplicateKey(t *testing.T) {
	store := NewFillStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testFill("f1", 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	err := store.Insert(ctx, testFill("f1", 2000))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestFillStore_InsertBulkAtomic(t *testing.T) {
	store := NewFillStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testFill("f2", 2000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Batch contains an existing fill: entire batch must fail.
	err := store.InsertBulk(ctx, []*domain.Fill{testFill("f1", 1000), testFill("f2", 2000)})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	result, err := store.GetByTraderAsset(ctx, "0xaaa", "BTC")
	if err != nil {
		t.Fatalf("GetByTraderAsset failed: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("Expected batch rollback to leave 1 fill, got %d", len(result))
	}
}

func TestFillStore_OrderedByTimestampThenID(t *testing.T) {
	store := NewFillStore()
	ctx := context.Background()

	fills := []*domain.Fill{testFill("f3", 3000), testFill("f1", 1000), testFill("f2", 1000)}
	if err := store.InsertBulk(ctx, fills); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByTraderAsset(ctx, "0xaaa", "BTC")
	if err != nil {
		t.Fatalf("GetByTraderAsset failed: %v", err)
	}

	wantOrder := []string{"f1", "f2", "f3"}
	for i, want := range wantOrder {
		if result[i].FillID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, result[i].FillID)
		}
	}
}

func TestFillStore_GetByAssetTimeRange(t *testing.T) {
	store := NewFillStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*domain.Fill{
		testFill("f1", 1000), testFill("f2", 2000), testFill("f3", 3000),
	}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	// Inclusive bounds.
	result, err := store.GetByAsset(ctx, "BTC", 1000, 2000)
	if err != nil {
		t.Fatalf("GetByAsset failed: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("Expected 2 fills in range, got %d", len(result))
	}
}

func TestFillStore_GetAssets(t *testing.T) {
	store := NewFillStore()
	ctx := context.Background()

	eth := testFill("f2", 2000)
	eth.Asset = "ETH"
	if err := store.InsertBulk(ctx, []*domain.Fill{testFill("f1", 1000), eth}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	assets, err := store.GetAssets(ctx)
	if err != nil {
		t.Fatalf("GetAssets failed: %v", err)
	}
	if len(assets) != 2 || assets[0] != "BTC" || assets[1] != "ETH" {
		t.Errorf("Expected sorted [BTC ETH], got %v", assets)
	}
}

func TestFillStore_InvalidInput(t *testing.T) {
	store := NewFillStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Fill{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty fill_id, got %v", err)
	}
}
