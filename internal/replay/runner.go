package replay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"trader-consensus-lab/internal/consensus"
	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/episode"
	"trader-consensus-lab/internal/lookup"
	"trader-consensus-lab/internal/stats"
	"trader-consensus-lab/internal/storage"
)

// Replay defaults.
const (
	DefaultWindowMs = 5 * 60 * 1000
	DefaultStepMs   = 60 * 1000
	DefaultStopBps  = 100
)

// Runner re-runs the consensus gates over a historical period. Win
// rates and correlations are snapshotted from the fills before the
// replay range, so every tick sees the statistics that would have been
// available at the time.
type Runner struct {
	fillStore storage.FillStore

	windowMs     int64
	stepMs       int64
	stopBps      float64
	weightCap    float64
	consensusCfg domain.ConsensusConfig
	episodeCfg   domain.EpisodeConfig
}

// RunnerOptions configures a replay Runner. Zero values fall back to
// the package defaults.
type RunnerOptions struct {
	WindowMs        int64
	StepMs          int64
	StopBps         float64
	WeightCap       float64
	ConsensusConfig domain.ConsensusConfig
	EpisodeConfig   domain.EpisodeConfig
}

// NewRunner creates a new replay runner.
func NewRunner(fillStore storage.FillStore, opts RunnerOptions) *Runner {
	r := &Runner{
		fillStore:    fillStore,
		windowMs:     opts.WindowMs,
		stepMs:       opts.StepMs,
		stopBps:      opts.StopBps,
		weightCap:    opts.WeightCap,
		consensusCfg: opts.ConsensusConfig,
		episodeCfg:   opts.EpisodeConfig,
	}
	if r.windowMs <= 0 {
		r.windowMs = DefaultWindowMs
	}
	if r.stepMs <= 0 {
		r.stepMs = DefaultStepMs
	}
	if r.stopBps <= 0 {
		r.stopBps = DefaultStopBps
	}
	if r.weightCap <= 0 {
		r.weightCap = 1.0
	}
	if r.consensusCfg == (domain.ConsensusConfig{}) {
		r.consensusCfg = domain.DefaultConsensusConfig()
	}
	if r.episodeCfg == (domain.EpisodeConfig{}) {
		r.episodeCfg = domain.DefaultEpisodeConfig()
	}
	return r
}

// Run replays one asset's evaluation instants in [from, to], stepping
// by the configured interval. The mid price at each instant is the
// last execution price at or before it. Instants before the first
// known price are skipped.
func (r *Runner) Run(ctx context.Context, asset string, from, to int64, engine Engine) error {
	if from <= 0 || to < from {
		return ErrInvalidRange
	}

	fills, err := r.fillStore.GetByAsset(ctx, asset, 0, to)
	if err != nil {
		return fmt.Errorf("load fills for %s: %w", asset, err)
	}

	// Execution prices double as the historical mid series.
	points := make([]*domain.MidPoint, len(fills))
	for i, f := range fills {
		points[i] = &domain.MidPoint{Asset: asset, TimestampMs: f.Timestamp, Mid: f.Price}
	}

	var pre []*domain.Fill
	for _, f := range fills {
		if f.Timestamp < from {
			pre = append(pre, f)
		}
	}
	winRates := stats.ComputeWinRates(episode.Build(pre, r.episodeCfg))
	corr := r.historicalCorrelations(pre, from)

	for t := from; t <= to; t += r.stepMs {
		mid, err := lookup.MidAt(t, points)
		if err != nil {
			if errors.Is(err, lookup.ErrNoMidData) {
				continue
			}
			return err
		}

		votes := collapseWindow(fills, t-r.windowMs+1, t, r.weightCap)
		result := consensus.CheckConsensus(votes, mid, r.windowMs, r.stopBps, corr, winRates, t, r.consensusCfg)

		tick := &Tick{Asset: asset, At: t, Mid: mid, Votes: votes, Result: result}
		if err := engine.OnTick(ctx, tick); err != nil {
			return err
		}
	}
	return nil
}

// historicalCorrelations slices the pre-replay fills into evaluation
// windows ending at the replay start and estimates pairwise
// correlations from those ticks.
func (r *Runner) historicalCorrelations(pre []*domain.Fill, from int64) domain.CorrelationMatrix {
	if len(pre) == 0 {
		return domain.CorrelationMatrix{}
	}

	first := pre[0].Timestamp
	for _, f := range pre {
		if f.Timestamp < first {
			first = f.Timestamp
		}
	}

	var ticks [][]*domain.Vote
	for end := from - 1; end >= first; end -= r.windowMs {
		votes := collapseWindow(pre, end-r.windowMs+1, end, r.weightCap)
		if len(votes) >= 2 {
			ticks = append(ticks, votes)
		}
	}
	return stats.EstimateCorrelations(ticks, stats.DefaultMinOverlap)
}

// collapseWindow groups fills within [start, end] by trader and
// collapses each trader to at most one vote, in address order.
func collapseWindow(fills []*domain.Fill, start, end int64, weightCap float64) []*domain.Vote {
	byTrader := make(map[string][]*domain.Fill)
	for _, f := range fills {
		if f.Timestamp < start || f.Timestamp > end {
			continue
		}
		addr := strings.ToLower(f.Address)
		byTrader[addr] = append(byTrader[addr], f)
	}

	addrs := make([]string, 0, len(byTrader))
	for addr := range byTrader {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	var votes []*domain.Vote
	for _, addr := range addrs {
		vote, ok := consensus.CollapseVotes(addr, byTrader[addr], weightCap)
		if !ok {
			continue
		}
		v := vote
		votes = append(votes, &v)
	}
	return votes
}
