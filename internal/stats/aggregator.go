package stats

import (
	"context"
	"errors"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/storage"
)

// ErrNoEpisodes is returned when no closed episodes are available for
// aggregation.
var ErrNoEpisodes = errors.New("no closed episodes available for aggregation")

// Aggregator refreshes the trader win-rate table from the episode
// store. The consensus evaluator consumes its output as an immutable
// snapshot per evaluation tick.
type Aggregator struct {
	episodeStore storage.EpisodeStore
	winRateStore storage.WinRateStore
}

// NewAggregator creates a new stats aggregator.
func NewAggregator(episodeStore storage.EpisodeStore, winRateStore storage.WinRateStore) *Aggregator {
	return &Aggregator{
		episodeStore: episodeStore,
		winRateStore: winRateStore,
	}
}

// ComputeWinRates loads closed episodes and computes the win-rate
// table. Returns ErrNoEpisodes when nothing has closed yet.
func (a *Aggregator) ComputeWinRates(ctx context.Context) (domain.WinRateTable, error) {
	closed, err := a.episodeStore.GetByStatus(ctx, domain.EpisodeStatusClosed)
	if err != nil {
		return nil, err
	}
	if len(closed) == 0 {
		return nil, ErrNoEpisodes
	}
	return ComputeWinRates(closed), nil
}

// RefreshWinRates computes the table and swaps it into the win-rate
// store as a full snapshot.
func (a *Aggregator) RefreshWinRates(ctx context.Context) (domain.WinRateTable, error) {
	table, err := a.ComputeWinRates(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.winRateStore.Replace(ctx, table); err != nil {
		return nil, err
	}
	return table, nil
}

// TraderSummaries computes per-trader summaries for every address with
// at least one closed episode, for reporting.
func (a *Aggregator) TraderSummaries(ctx context.Context) ([]*domain.TraderSummary, error) {
	closed, err := a.episodeStore.GetByStatus(ctx, domain.EpisodeStatusClosed)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var summaries []*domain.TraderSummary
	for _, ep := range closed {
		if _, ok := seen[ep.Address]; ok {
			continue
		}
		seen[ep.Address] = struct{}{}
		summaries = append(summaries, ComputeTraderSummary(ep.Address, closed))
	}
	return summaries, nil
}
