package consensus

import (
	"math"
	"testing"

	"trader-consensus-lab/internal/domain"
)

func fillAt(id, side string, size, price float64, ts int64) *domain.Fill {
	return &domain.Fill{
		FillID:    id,
		Address:   "0xABCDEF",
		Asset:     "BTC",
		Side:      side,
		Size:      size,
		Price:     price,
		Timestamp: ts,
	}
}

func TestCollapseVotes_NetLong(t *testing.T) {
	fills := []*domain.Fill{
		fillAt("f1", domain.FillSideBuy, 0.6, 50000, 1000),
		fillAt("f2", domain.FillSideBuy, 0.4, 50100, 2000),
		fillAt("f3", domain.FillSideSell, 0.2, 50050, 3000),
	}

	vote, ok := CollapseVotes("0xABCDEF", fills, 1.0)
	if !ok {
		t.Fatal("expected a vote, got none")
	}
	if vote.Direction != domain.DirectionLong {
		t.Errorf("expected direction long, got %s", vote.Direction)
	}
	// net = 0.6 + 0.4 - 0.2 = 0.8, cap 1.0 → weight 0.8
	if math.Abs(vote.Weight-0.8) > 1e-12 {
		t.Errorf("expected weight 0.8, got %f", vote.Weight)
	}
	// VWAP across all fills: (0.6*50000 + 0.4*50100 + 0.2*50050) / 1.2
	wantVwap := (0.6*50000 + 0.4*50100 + 0.2*50050) / 1.2
	if math.Abs(vote.Price-wantVwap) > 1e-9 {
		t.Errorf("expected vwap %f, got %f", wantVwap, vote.Price)
	}
	if vote.Timestamp != 3000 {
		t.Errorf("expected latest timestamp 3000, got %d", vote.Timestamp)
	}
	if vote.Address != "0xabcdef" {
		t.Errorf("expected lowercased address, got %s", vote.Address)
	}
}

func TestCollapseVotes_NetShort(t *testing.T) {
	fills := []*domain.Fill{
		fillAt("f1", domain.FillSideSell, 2.5, 50000, 1000),
		fillAt("f2", domain.FillSideBuy, 0.5, 50000, 2000),
	}

	vote, ok := CollapseVotes("0xabc", fills, 1.0)
	if !ok {
		t.Fatal("expected a vote, got none")
	}
	if vote.Direction != domain.DirectionShort {
		t.Errorf("expected direction short, got %s", vote.Direction)
	}
	// |net| = 2.0 exceeds cap → weight capped at 1
	if vote.Weight != 1.0 {
		t.Errorf("expected weight capped at 1.0, got %f", vote.Weight)
	}
}

func TestCollapseVotes_SelfCancellingFills(t *testing.T) {
	fills := []*domain.Fill{
		fillAt("f1", domain.FillSideBuy, 1.0, 50000, 1000),
		fillAt("f2", domain.FillSideSell, 1.0, 50100, 2000),
	}

	if _, ok := CollapseVotes("0xabc", fills, 1.0); ok {
		t.Error("expected no vote for self-cancelling fills")
	}
}

func TestCollapseVotes_NoFills(t *testing.T) {
	if _, ok := CollapseVotes("0xabc", nil, 1.0); ok {
		t.Error("expected no vote for empty fills")
	}
}

func TestCollapseVotes_OrderIndependent(t *testing.T) {
	a := []*domain.Fill{
		fillAt("f1", domain.FillSideBuy, 0.3, 50000, 1000),
		fillAt("f2", domain.FillSideSell, 0.1, 50200, 2000),
		fillAt("f3", domain.FillSideBuy, 0.5, 50100, 3000),
	}
	b := []*domain.Fill{a[2], a[0], a[1]}

	va, _ := CollapseVotes("0xabc", a, 1.0)
	vb, _ := CollapseVotes("0xabc", b, 1.0)

	// Float accumulation order shifts the sums by ulps, so the numeric
	// fields are compared with a tolerance rather than exactly.
	if va.Address != vb.Address || va.Direction != vb.Direction || va.Timestamp != vb.Timestamp {
		t.Errorf("vote identity should not depend on fill order: %+v vs %+v", va, vb)
	}
	if math.Abs(va.Weight-vb.Weight) > 1e-9 {
		t.Errorf("weight should not depend on fill order: %v vs %v", va.Weight, vb.Weight)
	}
	if math.Abs(va.Price-vb.Price) > 1e-9 {
		t.Errorf("price should not depend on fill order: %v vs %v", va.Price, vb.Price)
	}
}

func TestMedianPrice_OddCount(t *testing.T) {
	votes := []*domain.Vote{
		{Price: 50003},
		{Price: 50000},
		{Price: 50001},
	}
	if got := MedianPrice(votes); got != 50001 {
		t.Errorf("expected median 50001, got %f", got)
	}
}

func TestMedianPrice_EvenCount(t *testing.T) {
	votes := []*domain.Vote{
		{Price: 50000},
		{Price: 50002},
		{Price: 50001},
		{Price: 50003},
	}
	// middle pair is 50001, 50002
	if got := MedianPrice(votes); got != 50001.5 {
		t.Errorf("expected median 50001.5, got %f", got)
	}
}

func TestMedianPrice_Empty(t *testing.T) {
	if got := MedianPrice(nil); got != 0 {
		t.Errorf("expected 0 for empty votes, got %f", got)
	}
}
