package pipeline

import (
	"context"
	"fmt"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/storage"
)

// FixtureNow is the fixed evaluation instant for fixture runs
// (2024-01-11 19:06:40 UTC), so output is deterministic.
const FixtureNow int64 = 1705000000000

// FixtureTraders are the tracked addresses in the fixture cohort.
var FixtureTraders = []string{
	"0xf1a0000000000000000000000000000000000001",
	"0xf1a0000000000000000000000000000000000002",
	"0xf1a0000000000000000000000000000000000003",
	"0xf1a0000000000000000000000000000000000004",
}

// FixtureMids returns the venue mid prices at FixtureNow.
func FixtureMids() map[string]float64 {
	return map[string]float64{
		"BTC": 50000,
		"ETH": 3000,
	}
}

// LoadFixtures populates the fill store with a deterministic cohort:
// each trader carries a multi-day record of closed BTC round trips
// (mostly winners), every trader buys BTC inside the current evaluation
// window, and two traders buy ETH so that asset stays short of a
// supermajority. A fixture run therefore emits exactly one BTC ticket.
func LoadFixtures(ctx context.Context, fillStore storage.FillStore) error {
	var fills []*domain.Fill

	// Historical BTC round trips, 7 per trader, well before the
	// current evaluation window. 5 winners and 2 losers per trader
	// keep the pooled win probability above the EV gate.
	base := FixtureNow - 40*3600*1000
	for i, addr := range FixtureTraders {
		for j := 0; j < 7; j++ {
			open := base + int64(j)*3600*1000 + int64(i)*60*1000
			pnl := 2.0
			if j >= 5 {
				pnl = -2.0
			}
			entry := &domain.Fill{
				FillID:    fmt.Sprintf("fix-t%d-e%d-entry", i, j),
				Address:   addr,
				Asset:     "BTC",
				Side:      domain.FillSideBuy,
				Size:      1,
				Price:     100,
				Timestamp: open,
			}
			exit := &domain.Fill{
				FillID:      fmt.Sprintf("fix-t%d-e%d-exit", i, j),
				Address:     addr,
				Asset:       "BTC",
				Side:        domain.FillSideSell,
				Size:        1,
				Price:       100 + pnl,
				Timestamp:   open + 120*1000,
				RealizedPnl: &pnl,
				Fees:        0.01,
			}
			fills = append(fills, entry, exit)
		}
	}

	// Current window: all four traders buy BTC.
	for i, addr := range FixtureTraders {
		fills = append(fills, &domain.Fill{
			FillID:    fmt.Sprintf("fix-t%d-window-btc", i),
			Address:   addr,
			Asset:     "BTC",
			Side:      domain.FillSideBuy,
			Size:      1,
			Price:     50000,
			Timestamp: FixtureNow - 2000 + int64(i)*200,
		})
	}

	// Current window: only two traders buy ETH, below the minimum
	// headcount, so the ETH evaluation is rejected.
	for i, addr := range FixtureTraders[:2] {
		fills = append(fills, &domain.Fill{
			FillID:    fmt.Sprintf("fix-t%d-window-eth", i),
			Address:   addr,
			Asset:     "ETH",
			Side:      domain.FillSideBuy,
			Size:      1,
			Price:     3000,
			Timestamp: FixtureNow - 1500 + int64(i)*200,
		})
	}

	return fillStore.InsertBulk(ctx, fills)
}
