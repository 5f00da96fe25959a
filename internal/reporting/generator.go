package reporting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/episode"
	"trader-consensus-lab/internal/orchestrator"
	"trader-consensus-lab/internal/stats"
	"trader-consensus-lab/internal/storage"
)

// Thresholds holds the data sufficiency criteria. A report generated
// below any threshold is flagged INSUFFICIENT_DATA rather than failing.
type Thresholds struct {
	MinFills          int
	MinTraders        int
	MinClosedEpisodes int
}

// DefaultThresholds returns the production sufficiency criteria.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinFills:          50,
		MinTraders:        3,
		MinClosedEpisodes: 10,
	}
}

// Evaluator replays the current window's gate outcomes per asset.
type Evaluator interface {
	Evaluate(ctx context.Context) ([]*orchestrator.AssetEvaluation, error)
}

// Generator produces reports from stored data.
type Generator struct {
	fillStore    storage.FillStore
	episodeStore storage.EpisodeStore
	ticketStore  storage.TicketStore
	aggregator   *stats.Aggregator
	evaluator    Evaluator
	thresholds   Thresholds
	now          func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(
	fillStore storage.FillStore,
	episodeStore storage.EpisodeStore,
	winRateStore storage.WinRateStore,
	ticketStore storage.TicketStore,
) *Generator {
	return &Generator{
		fillStore:    fillStore,
		episodeStore: episodeStore,
		ticketStore:  ticketStore,
		aggregator:   stats.NewAggregator(episodeStore, winRateStore),
		thresholds:   DefaultThresholds(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithEvaluator attaches an evaluator so the report includes per-asset
// gate outcomes for the current window.
func (g *Generator) WithEvaluator(e Evaluator) *Generator {
	g.evaluator = e
	return g
}

// WithThresholds sets custom sufficiency criteria.
func (g *Generator) WithThresholds(t Thresholds) *Generator {
	g.thresholds = t
	return g
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete consensus report.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	fills, err := g.loadFills(ctx)
	if err != nil {
		return nil, err
	}

	episodes, err := g.episodeStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	tickets, err := g.ticketStore.GetByTimeRange(ctx, 0, math.MaxInt64)
	if err != nil {
		return nil, err
	}

	summary := g.generateDataSummary(fills, episodes, tickets)
	quality := g.generateDataQuality(summary, episodes, fills)

	traderStats, err := g.generateTraderStats(ctx)
	if err != nil {
		return nil, err
	}

	gateOutcomes, err := g.generateGateOutcomes(ctx)
	if err != nil {
		return nil, err
	}

	return &Report{
		GeneratedAt:  g.now(),
		AssetCount:   summary.TotalAssets,
		TraderCount:  summary.TotalTraders,
		DataSummary:  summary,
		DataQuality:  quality,
		TraderStats:  traderStats,
		GateOutcomes: gateOutcomes,
		Tickets:      generateTicketRows(tickets),
	}, nil
}

// loadFills loads the full stored fill history across assets.
func (g *Generator) loadFills(ctx context.Context) ([]*domain.Fill, error) {
	assets, err := g.fillStore.GetAssets(ctx)
	if err != nil {
		return nil, err
	}

	var all []*domain.Fill
	for _, asset := range assets {
		fills, err := g.fillStore.GetByAsset(ctx, asset, 0, math.MaxInt64)
		if err != nil {
			return nil, err
		}
		all = append(all, fills...)
	}
	return all, nil
}

// generateDataSummary computes the data summary from stored records.
func (g *Generator) generateDataSummary(fills []*domain.Fill, episodes []*domain.Episode, tickets []*domain.Ticket) DataSummary {
	traders := make(map[string]struct{})
	assets := make(map[string]struct{})
	var start, end int64

	for i, f := range fills {
		traders[f.Address] = struct{}{}
		assets[f.Asset] = struct{}{}
		if i == 0 || f.Timestamp < start {
			start = f.Timestamp
		}
		if f.Timestamp > end {
			end = f.Timestamp
		}
	}

	var open, closed int
	for _, ep := range episodes {
		switch ep.Status {
		case domain.EpisodeStatusOpen:
			open++
		case domain.EpisodeStatusClosed:
			closed++
		}
	}

	return DataSummary{
		TotalFills:     len(fills),
		TotalTraders:   len(traders),
		TotalAssets:    len(assets),
		TotalEpisodes:  len(episodes),
		OpenEpisodes:   open,
		ClosedEpisodes: closed,
		TotalTickets:   len(tickets),
		DateRangeStart: start,
		DateRangeEnd:   end,
	}
}

// generateDataQuality runs sufficiency checks and episode reconciliation.
func (g *Generator) generateDataQuality(summary DataSummary, episodes []*domain.Episode, fills []*domain.Fill) DataQualitySection {
	checks := []SufficiencyCheckRow{
		{
			Name:      "Minimum fills",
			Threshold: fmt.Sprintf(">= %d", g.thresholds.MinFills),
			Actual:    fmt.Sprintf("%d", summary.TotalFills),
			Pass:      summary.TotalFills >= g.thresholds.MinFills,
		},
		{
			Name:      "Minimum traders",
			Threshold: fmt.Sprintf(">= %d", g.thresholds.MinTraders),
			Actual:    fmt.Sprintf("%d", summary.TotalTraders),
			Pass:      summary.TotalTraders >= g.thresholds.MinTraders,
		},
		{
			Name:      "Minimum closed episodes",
			Threshold: fmt.Sprintf(">= %d", g.thresholds.MinClosedEpisodes),
			Actual:    fmt.Sprintf("%d", summary.ClosedEpisodes),
			Pass:      summary.ClosedEpisodes >= g.thresholds.MinClosedEpisodes,
		},
	}

	validation := episode.Validate(episodes, fills)

	allPassed := validation.Valid
	for _, c := range checks {
		if !c.Pass {
			allPassed = false
		}
	}

	return DataQualitySection{
		SufficiencyChecks: checks,
		IntegrityErrors:   validation.Errors,
		AllChecksPassed:   allPassed,
	}
}

// generateTraderStats builds sorted per-trader statistics rows.
func (g *Generator) generateTraderStats(ctx context.Context) ([]TraderStatRow, error) {
	summaries, err := g.aggregator.TraderSummaries(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]TraderStatRow, len(summaries))
	for i, s := range summaries {
		rows[i] = TraderStatRow{
			Address:              s.Address,
			TotalEpisodes:        s.TotalEpisodes,
			Wins:                 s.Wins,
			Losses:               s.Losses,
			WinRate:              s.WinRate,
			RMean:                s.RMean,
			RMedian:              s.RMedian,
			RP10:                 s.RP10,
			RP90:                 s.RP90,
			MaxDrawdownR:         s.MaxDrawdownR,
			MaxConsecutiveLosses: s.MaxConsecutiveLosses,
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Address < rows[j].Address
	})
	return rows, nil
}

// generateGateOutcomes replays the current window's evaluation per
// asset when an evaluator is attached.
func (g *Generator) generateGateOutcomes(ctx context.Context) ([]GateOutcomeRow, error) {
	if g.evaluator == nil {
		return nil, nil
	}

	evals, err := g.evaluator.Evaluate(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]GateOutcomeRow, 0, len(evals))
	for _, eval := range evals {
		res := eval.Result
		if res == nil {
			continue
		}
		rows = append(rows, GateOutcomeRow{
			Asset:       eval.Asset,
			Voters:      res.Supermajority.Total,
			Agree:       res.Supermajority.MajorityCount,
			Direction:   res.Direction,
			EffectiveK:  res.EffectiveK.EffectiveK,
			Staleness:   res.Freshness.Staleness,
			DriftR:      res.PriceDrift.DriftR,
			EVNetR:      res.EV.EVNetR,
			Passes:      res.Passes,
			FailedGates: strings.Join(orchestrator.FailedGates(res), ","),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Asset < rows[j].Asset
	})
	return rows, nil
}

// generateTicketRows builds ticket rows sorted by creation time.
func generateTicketRows(tickets []*domain.Ticket) []TicketRow {
	rows := make([]TicketRow, len(tickets))
	for i, t := range tickets {
		rows[i] = TicketRow{
			TicketID:   t.TicketID,
			Asset:      t.Asset,
			Direction:  t.Direction,
			NAgree:     t.NAgree,
			NTraders:   t.NTraders,
			EffectiveK: t.EffectiveK,
			CreatedAt:  t.CreatedAt,
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt != rows[j].CreatedAt {
			return rows[i].CreatedAt < rows[j].CreatedAt
		}
		return rows[i].TicketID < rows[j].TicketID
	})
	return rows
}
