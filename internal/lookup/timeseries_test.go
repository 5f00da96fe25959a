package lookup

import (
	"testing"

	"trader-consensus-lab/internal/domain"
)

func midSeries() []*domain.MidPoint {
	return []*domain.MidPoint{
		{Asset: "BTC", TimestampMs: 1000, Mid: 50000},
		{Asset: "BTC", TimestampMs: 2000, Mid: 50100},
		{Asset: "BTC", TimestampMs: 3000, Mid: 50050},
	}
}

func TestMidAt_EmptySlice(t *testing.T) {
	_, err := MidAt(1000, nil)
	if err != ErrNoMidData {
		t.Errorf("expected ErrNoMidData, got %v", err)
	}

	_, err = MidAt(1000, []*domain.MidPoint{})
	if err != ErrNoMidData {
		t.Errorf("expected ErrNoMidData, got %v", err)
	}
}

func TestMidAt_ExactMatch(t *testing.T) {
	mid, err := MidAt(2000, midSeries())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mid != 50100 {
		t.Errorf("expected 50100, got %f", mid)
	}
}

func TestMidAt_BetweenPoints(t *testing.T) {
	// Target 2500 should return mid at 2000
	mid, err := MidAt(2500, midSeries())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mid != 50100 {
		t.Errorf("expected 50100, got %f", mid)
	}
}

func TestMidAt_BeforeFirst(t *testing.T) {
	// Target 500 predates every point; a future price must not leak back.
	_, err := MidAt(500, midSeries())
	if err != ErrNoMidData {
		t.Errorf("expected ErrNoMidData, got %v", err)
	}
}

func TestMidAt_AfterLast(t *testing.T) {
	// Target 5000 should return last mid
	mid, err := MidAt(5000, midSeries())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mid != 50050 {
		t.Errorf("expected 50050, got %f", mid)
	}
}
