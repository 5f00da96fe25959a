// Package orchestrator runs the evaluation tick end to end.
// It coordinates: episodes → win rates → correlations → votes → consensus
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"trader-consensus-lab/internal/consensus"
	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/episode"
	"trader-consensus-lab/internal/idhash"
	"trader-consensus-lab/internal/stats"
	"trader-consensus-lab/internal/storage"
)

// Orchestrator defaults.
const (
	DefaultBaseWindowMs        = 5 * 60 * 1000 // 5 minute evaluation window
	DefaultStopBps             = 100           // DefaultEpisodeConfig stop fraction in bps
	DefaultWeightCap           = 1.0           // net base units for a full-weight vote
	DefaultCorrelationLookback = 50            // historical windows per asset
)

// MidProvider supplies the current mid price per asset.
type MidProvider interface {
	AllMids(ctx context.Context) (map[string]float64, error)
}

// Orchestrator coordinates one evaluation tick over stored fills.
// Flow: rebuild episodes → refresh win rates → refresh correlations →
// collapse votes per asset → run the consensus gates → persist tickets
type Orchestrator struct {
	// Stores
	fillStore        storage.FillStore
	episodeStore     storage.EpisodeStore
	winRateStore     storage.WinRateStore
	correlationStore storage.CorrelationStore
	ticketStore      storage.TicketStore
	historyStore     storage.EpisodeHistoryStore

	// Price feed
	mids MidProvider

	// Configs
	episodeCfg   domain.EpisodeConfig
	consensusCfg domain.ConsensusConfig

	// Options
	baseWindowMs         int64
	stopBps              float64
	weightCap            float64
	correlationLookback  int
	volatilityPercentile float64
	now                  func() int64
	verbose              bool
}

// Options for creating Orchestrator.
type Options struct {
	// Required stores
	FillStore        storage.FillStore
	EpisodeStore     storage.EpisodeStore
	WinRateStore     storage.WinRateStore
	CorrelationStore storage.CorrelationStore
	TicketStore      storage.TicketStore

	// Optional closed-episode archive
	EpisodeHistoryStore storage.EpisodeHistoryStore

	// Required price feed
	MidProvider MidProvider

	// Policy configs; zero values fall back to the package defaults
	EpisodeConfig   domain.EpisodeConfig
	ConsensusConfig domain.ConsensusConfig

	// Options
	BaseWindowMs         int64   // evaluation window before volatility scaling
	StopBps              float64 // policy stop for drift/EV normalization
	WeightCap            float64 // net size for a full-weight vote
	CorrelationLookback  int     // historical windows per asset for correlation ticks
	VolatilityPercentile float64 // supplied by the operator, 0.5 keeps the base window
	Now                  func() int64
	Verbose              bool
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		fillStore:            opts.FillStore,
		episodeStore:         opts.EpisodeStore,
		winRateStore:         opts.WinRateStore,
		correlationStore:     opts.CorrelationStore,
		ticketStore:          opts.TicketStore,
		historyStore:         opts.EpisodeHistoryStore,
		mids:                 opts.MidProvider,
		episodeCfg:           opts.EpisodeConfig,
		consensusCfg:         opts.ConsensusConfig,
		baseWindowMs:         opts.BaseWindowMs,
		stopBps:              opts.StopBps,
		weightCap:            opts.WeightCap,
		correlationLookback:  opts.CorrelationLookback,
		volatilityPercentile: opts.VolatilityPercentile,
		now:                  opts.Now,
		verbose:              opts.Verbose,
	}

	if o.episodeCfg == (domain.EpisodeConfig{}) {
		o.episodeCfg = domain.DefaultEpisodeConfig()
	}
	if o.consensusCfg == (domain.ConsensusConfig{}) {
		o.consensusCfg = domain.DefaultConsensusConfig()
	}
	if o.baseWindowMs <= 0 {
		o.baseWindowMs = DefaultBaseWindowMs
	}
	if o.stopBps <= 0 {
		o.stopBps = DefaultStopBps
	}
	if o.weightCap <= 0 {
		o.weightCap = DefaultWeightCap
	}
	if o.correlationLookback <= 0 {
		o.correlationLookback = DefaultCorrelationLookback
	}
	if o.volatilityPercentile <= 0 {
		o.volatilityPercentile = 0.5
	}
	if o.now == nil {
		o.now = func() int64 { return time.Now().UnixMilli() }
	}

	return o
}

// RunResult contains results from one evaluation tick.
type RunResult struct {
	AssetsEvaluated  int
	EpisodesUpserted int
	EpisodesClosed   int
	EpisodesArchived int
	TradersRated     int
	PairsCorrelated  int
	TicketsEmitted   int
	Errors           []string
}

// AssetEvaluation is one asset's gate outcome within a tick, retained
// for reporting.
type AssetEvaluation struct {
	Asset    string
	Votes    []*domain.Vote
	Mid      float64
	WindowMs int64
	Result   *consensus.ConsensusResult
}

// Run executes one full evaluation tick.
// Phases:
//  1. Rebuild episodes from the stored fill history
//  2. Refresh the trader win-rate table
//  3. Refresh the pairwise correlation matrix
//  4. Collapse votes and run the consensus gates per asset
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{}
	now := o.now()

	o.log("Phase 1: Rebuilding episodes...")
	assets, allFills, err := o.loadFills(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (load fills) failed: %w", err)
	}
	result.AssetsEvaluated = len(assets)
	o.log("  Loaded %d fills across %d assets", len(allFills), len(assets))

	if len(allFills) == 0 {
		return result, nil
	}

	episodes := episode.Build(allFills, o.episodeCfg)
	for _, ep := range episodes {
		if err := o.episodeStore.Upsert(ctx, ep); err != nil {
			return nil, fmt.Errorf("phase 1 (upsert episode %s) failed: %w", ep.EpisodeID, err)
		}
	}
	closed := episode.ClosedEpisodes(episodes)
	result.EpisodesUpserted = len(episodes)
	result.EpisodesClosed = len(closed)
	o.log("  Upserted %d episodes (%d closed)", len(episodes), len(closed))

	if o.historyStore != nil && len(closed) > 0 {
		if err := o.historyStore.InsertBulk(ctx, closed); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("archive episodes: %v", err))
		} else {
			result.EpisodesArchived = len(closed)
		}
	}

	o.log("Phase 2: Refreshing win rates...")
	winRates, err := o.refreshWinRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("phase 2 (win rates) failed: %w", err)
	}
	result.TradersRated = len(winRates)
	o.log("  Rated %d traders", len(winRates))

	o.log("Phase 3: Refreshing correlations...")
	corr, err := o.refreshCorrelations(ctx, assets, allFills, now)
	if err != nil {
		return nil, fmt.Errorf("phase 3 (correlations) failed: %w", err)
	}
	result.PairsCorrelated = len(corr)
	o.log("  Estimated %d trader pairs", len(corr))

	o.log("Phase 4: Evaluating consensus...")
	evals, tickets, evalErrors := o.evaluateAssets(ctx, assets, corr, winRates, now)
	result.TicketsEmitted = tickets
	result.Errors = append(result.Errors, evalErrors...)
	o.log("  Evaluated %d assets, emitted %d tickets (%d errors)",
		len(evals), tickets, len(evalErrors))

	o.log("Tick completed: %d assets, %d episodes, %d tickets",
		result.AssetsEvaluated, result.EpisodesUpserted, result.TicketsEmitted)

	return result, nil
}

// Evaluate runs only the vote/gate phase against the current store
// snapshots, without rebuilding episodes or statistics. Used by
// reporting to replay gate outcomes.
func (o *Orchestrator) Evaluate(ctx context.Context) ([]*AssetEvaluation, error) {
	now := o.now()

	assets, err := o.fillStore.GetAssets(ctx)
	if err != nil {
		return nil, err
	}

	winRates, err := o.winRateStore.Get(ctx)
	if err != nil {
		return nil, err
	}
	corr, err := o.correlationStore.Get(ctx)
	if err != nil {
		return nil, err
	}

	return o.assetEvaluations(ctx, assets, corr, winRates, now)
}

// loadFills loads the full stored fill history per asset.
func (o *Orchestrator) loadFills(ctx context.Context, now int64) ([]string, []*domain.Fill, error) {
	assets, err := o.fillStore.GetAssets(ctx)
	if err != nil {
		return nil, nil, err
	}

	var all []*domain.Fill
	for _, asset := range assets {
		fills, err := o.fillStore.GetByAsset(ctx, asset, 0, now)
		if err != nil {
			return nil, nil, fmt.Errorf("load fills for %s: %w", asset, err)
		}
		all = append(all, fills...)
	}
	return assets, all, nil
}

// refreshWinRates recomputes the win-rate table from closed episodes.
// An empty episode store yields an empty table, not an error.
func (o *Orchestrator) refreshWinRates(ctx context.Context) (domain.WinRateTable, error) {
	aggregator := stats.NewAggregator(o.episodeStore, o.winRateStore)

	table, err := aggregator.RefreshWinRates(ctx)
	if err != nil {
		if errors.Is(err, stats.ErrNoEpisodes) {
			return domain.WinRateTable{}, nil
		}
		return nil, err
	}
	return table, nil
}

// refreshCorrelations slices each asset's fill history into consecutive
// evaluation windows, collapses votes per window, and estimates the
// pairwise correlation matrix from those historical ticks.
func (o *Orchestrator) refreshCorrelations(ctx context.Context, assets []string, fills []*domain.Fill, now int64) (domain.CorrelationMatrix, error) {
	byAsset := make(map[string][]*domain.Fill)
	for _, f := range fills {
		byAsset[f.Asset] = append(byAsset[f.Asset], f)
	}

	var ticks [][]*domain.Vote
	for _, asset := range assets {
		for i := 0; i < o.correlationLookback; i++ {
			end := now - int64(i)*o.baseWindowMs
			start := end - o.baseWindowMs + 1
			votes := o.collapseWindow(byAsset[asset], start, end)
			if len(votes) >= 2 {
				ticks = append(ticks, votes)
			}
		}
	}

	matrix := stats.EstimateCorrelations(ticks, stats.DefaultMinOverlap)
	if err := o.correlationStore.Replace(ctx, matrix); err != nil {
		return nil, err
	}
	return matrix, nil
}

// evaluateAssets runs the consensus gates per asset and persists
// passing tickets.
func (o *Orchestrator) evaluateAssets(ctx context.Context, assets []string, corr domain.CorrelationMatrix, winRates domain.WinRateTable, now int64) ([]*AssetEvaluation, int, []string) {
	evals, err := o.assetEvaluations(ctx, assets, corr, winRates, now)
	if err != nil {
		return nil, 0, []string{err.Error()}
	}

	var emitted int
	var errs []string

	for _, eval := range evals {
		if eval.Result == nil || !eval.Result.Passes {
			continue
		}

		ticket := consensus.TicketInstrumentation(eval.Result, eval.Votes, eval.WindowMs, o.stopBps)
		ticket.Asset = eval.Asset
		ticket.TicketID = idhash.ComputeTicketID(eval.Asset, ticket.Direction, ticket.CreatedAt)

		if err := o.ticketStore.Insert(ctx, ticket); err != nil {
			// Skip duplicate key errors (already emitted this window)
			if errors.Is(err, storage.ErrDuplicateKey) {
				continue
			}
			errs = append(errs, fmt.Sprintf("ticket %s/%s: %v", eval.Asset, ticket.Direction, err))
			continue
		}
		emitted++
		o.log("  Ticket %s %s: %d/%d agree, effK=%.2f",
			eval.Asset, ticket.Direction, ticket.NAgree, ticket.NTraders, ticket.EffectiveK)
	}

	return evals, emitted, errs
}

// assetEvaluations collapses the current window's votes and runs the
// gates for every asset with a known mid price.
func (o *Orchestrator) assetEvaluations(ctx context.Context, assets []string, corr domain.CorrelationMatrix, winRates domain.WinRateTable, now int64) ([]*AssetEvaluation, error) {
	mids, err := o.mids.AllMids(ctx)
	if err != nil {
		return nil, fmt.Errorf("load mids: %w", err)
	}

	windowMs := consensus.AdaptiveWindowMs(o.volatilityPercentile, o.baseWindowMs)

	var evals []*AssetEvaluation
	for _, asset := range assets {
		mid, ok := mids[asset]
		if !ok || mid <= 0 {
			o.log("  Skipping %s: no mid price", asset)
			continue
		}

		fills, err := o.fillStore.GetByAsset(ctx, asset, now-windowMs+1, now)
		if err != nil {
			return nil, fmt.Errorf("window fills for %s: %w", asset, err)
		}

		votes := o.collapseWindow(fills, now-windowMs+1, now)
		result := consensus.CheckConsensus(votes, mid, windowMs, o.stopBps, corr, winRates, now, o.consensusCfg)

		evals = append(evals, &AssetEvaluation{
			Asset:    asset,
			Votes:    votes,
			Mid:      mid,
			WindowMs: windowMs,
			Result:   result,
		})
	}
	return evals, nil
}

// collapseWindow groups one asset's fills within [start, end] by trader
// and collapses each trader to at most one vote. Votes are returned in
// address order for deterministic evaluation.
func (o *Orchestrator) collapseWindow(fills []*domain.Fill, start, end int64) []*domain.Vote {
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
		vote, ok := consensus.CollapseVotes(addr, byTrader[addr], o.weightCap)
		if !ok {
			continue
		}
		v := vote
		votes = append(votes, &v)
	}
	return votes
}

// FailedGates lists the names of the gates a result failed, in fixed
// reporting order.
func FailedGates(result *consensus.ConsensusResult) []string {
	if result == nil {
		return nil
	}
	var failed []string
	if !result.Supermajority.Passed {
		failed = append(failed, "supermajority")
	}
	if !result.EffectiveK.Passed {
		failed = append(failed, "effectiveK")
	}
	if !result.Freshness.Passed {
		failed = append(failed, "freshness")
	}
	if !result.PriceDrift.Passed {
		failed = append(failed, "priceDrift")
	}
	if !result.EV.Passed {
		failed = append(failed, "ev")
	}
	return failed
}

func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.verbose {
		log.Printf("[orchestrator] "+format, args...)
	}
}
