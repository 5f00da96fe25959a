package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"trader-consensus-lab/internal/consensus"
	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/orchestrator"
	"trader-consensus-lab/internal/storage/memory"
)

type testStores struct {
	fills    *memory.FillStore
	episodes *memory.EpisodeStore
	winRates *memory.WinRateStore
	tickets  *memory.TicketStore
}

func setupTestData(t *testing.T) *testStores {
	t.Helper()
	ctx := context.Background()

	s := &testStores{
		fills:    memory.NewFillStore(),
		episodes: memory.NewEpisodeStore(),
		winRates: memory.NewWinRateStore(),
		tickets:  memory.NewTicketStore(),
	}

	pnl := 5.0
	fills := []*domain.Fill{
		{FillID: "f1", Address: "0xaaa", Asset: "BTC", Side: domain.FillSideBuy, Size: 1, Price: 100, Timestamp: 1000},
		{FillID: "f2", Address: "0xaaa", Asset: "BTC", Side: domain.FillSideSell, Size: 1, Price: 105, Timestamp: 2000, RealizedPnl: &pnl},
		{FillID: "f3", Address: "0xbbb", Asset: "BTC", Side: domain.FillSideBuy, Size: 2, Price: 101, Timestamp: 1500},
		{FillID: "f4", Address: "0xccc", Asset: "ETH", Side: domain.FillSideBuy, Size: 1, Price: 2000, Timestamp: 3000},
	}
	if err := s.fills.InsertBulk(ctx, fills); err != nil {
		t.Fatalf("InsertBulk fills failed: %v", err)
	}

	episodes := []*domain.Episode{
		{
			EpisodeID: "e1", Address: "0xaaa", Asset: "BTC",
			Direction: domain.DirectionLong, Status: domain.EpisodeStatusClosed,
			OpenedAt: 1000, ClosedAt: 2000, ClosedReason: domain.ClosedReasonFullClose,
			EntryFills: []string{"f1"}, ExitFills: []string{"f2"},
			RiskAmount: 1, RealizedPnl: 5, ResultR: 2,
		},
		{
			EpisodeID: "e2", Address: "0xbbb", Asset: "BTC",
			Direction: domain.DirectionLong, Status: domain.EpisodeStatusOpen,
			OpenedAt: 1500, EntryFills: []string{"f3"},
		},
		{
			EpisodeID: "e3", Address: "0xccc", Asset: "ETH",
			Direction: domain.DirectionLong, Status: domain.EpisodeStatusOpen,
			OpenedAt: 3000, EntryFills: []string{"f4"},
		},
	}
	for _, ep := range episodes {
		if err := s.episodes.Upsert(ctx, ep); err != nil {
			t.Fatalf("Upsert episode failed: %v", err)
		}
	}

	ticket := &domain.Ticket{
		TicketID: "abcdef0123456789", Asset: "BTC", Direction: domain.DirectionLong,
		NTraders: 4, NAgree: 3, EffectiveK: 2.1,
		VoterAddresses: []string{"0xaaa", "0xbbb", "0xccc"},
		WindowMs:       300000, StopBps: 100, CreatedAt: 5000,
	}
	if err := s.tickets.Insert(ctx, ticket); err != nil {
		t.Fatalf("Insert ticket failed: %v", err)
	}

	return s
}

func newTestGenerator(s *testStores) *Generator {
	return NewGenerator(s.fills, s.episodes, s.winRates, s.tickets).
		WithClock(func() time.Time { return time.Unix(1700000000, 0).UTC() })
}

// stubEvaluator returns a fixed evaluation for gate outcome rows.
type stubEvaluator struct {
	evals []*orchestrator.AssetEvaluation
}

func (s *stubEvaluator) Evaluate(_ context.Context) ([]*orchestrator.AssetEvaluation, error) {
	return s.evals, nil
}

func TestGenerateDataSummary(t *testing.T) {
	g := newTestGenerator(setupTestData(t))

	report, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	s := report.DataSummary
	if s.TotalFills != 4 {
		t.Errorf("TotalFills = %d, want 4", s.TotalFills)
	}
	if s.TotalTraders != 3 {
		t.Errorf("TotalTraders = %d, want 3", s.TotalTraders)
	}
	if s.TotalAssets != 2 {
		t.Errorf("TotalAssets = %d, want 2", s.TotalAssets)
	}
	if s.TotalEpisodes != 3 || s.ClosedEpisodes != 1 || s.OpenEpisodes != 2 {
		t.Errorf("episodes = %d/%d open/%d closed, want 3/2/1",
			s.TotalEpisodes, s.OpenEpisodes, s.ClosedEpisodes)
	}
	if s.TotalTickets != 1 {
		t.Errorf("TotalTickets = %d, want 1", s.TotalTickets)
	}
	if s.DateRangeStart != 1000 || s.DateRangeEnd != 3000 {
		t.Errorf("date range = [%d, %d], want [1000, 3000]", s.DateRangeStart, s.DateRangeEnd)
	}
}

func TestGenerateSufficiencyChecks(t *testing.T) {
	g := newTestGenerator(setupTestData(t))

	report, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	checks := report.DataQuality.SufficiencyChecks
	if len(checks) != 3 {
		t.Fatalf("got %d checks, want 3", len(checks))
	}

	// 4 fills < 50 and 1 closed episode < 10 fail; 3 traders passes.
	if checks[0].Pass {
		t.Error("minimum fills check should fail with 4 fills")
	}
	if !checks[1].Pass {
		t.Error("minimum traders check should pass with 3 traders")
	}
	if checks[2].Pass {
		t.Error("minimum closed episodes check should fail with 1 episode")
	}
	if report.DataQuality.AllChecksPassed {
		t.Error("AllChecksPassed should be false")
	}
}

func TestGenerateCustomThresholdsPass(t *testing.T) {
	g := newTestGenerator(setupTestData(t)).
		WithThresholds(Thresholds{MinFills: 4, MinTraders: 3, MinClosedEpisodes: 1})

	report, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !report.DataQuality.AllChecksPassed {
		t.Errorf("AllChecksPassed = false, checks: %+v, integrity: %v",
			report.DataQuality.SufficiencyChecks, report.DataQuality.IntegrityErrors)
	}
	if len(report.DataQuality.IntegrityErrors) != 0 {
		t.Errorf("unexpected integrity errors: %v", report.DataQuality.IntegrityErrors)
	}
}

func TestGenerateIntegrityErrors(t *testing.T) {
	s := setupTestData(t)
	ctx := context.Background()

	// An unreferenced fill fails episode reconciliation.
	orphan := &domain.Fill{
		FillID: "f9", Address: "0xaaa", Asset: "BTC",
		Side: domain.FillSideBuy, Size: 1, Price: 100, Timestamp: 4000,
	}
	if err := s.fills.Insert(ctx, orphan); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	g := newTestGenerator(s).
		WithThresholds(Thresholds{MinFills: 1, MinTraders: 1, MinClosedEpisodes: 1})

	report, err := g.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(report.DataQuality.IntegrityErrors) == 0 {
		t.Fatal("expected integrity errors for unreferenced fill")
	}
	if report.DataQuality.AllChecksPassed {
		t.Error("AllChecksPassed should be false with integrity errors")
	}
}

func TestGenerateTraderStats(t *testing.T) {
	g := newTestGenerator(setupTestData(t))

	report, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// Only 0xaaa has a closed episode.
	if len(report.TraderStats) != 1 {
		t.Fatalf("got %d trader rows, want 1", len(report.TraderStats))
	}
	row := report.TraderStats[0]
	if row.Address != "0xaaa" {
		t.Errorf("Address = %q, want 0xaaa", row.Address)
	}
	if row.TotalEpisodes != 1 || row.Wins != 1 || row.Losses != 0 {
		t.Errorf("counts = %d/%d/%d, want 1/1/0", row.TotalEpisodes, row.Wins, row.Losses)
	}
	if row.WinRate != 1.0 {
		t.Errorf("WinRate = %.4f, want 1.0", row.WinRate)
	}
}

func TestGenerateGateOutcomes(t *testing.T) {
	evaluator := &stubEvaluator{
		evals: []*orchestrator.AssetEvaluation{
			{
				Asset: "ETH",
				Result: &consensus.ConsensusResult{
					Passes:    false,
					Direction: domain.DirectionLong,
					Supermajority: consensus.SupermajorityResult{
						Passed: true, Total: 4, MajorityCount: 3, Direction: domain.DirectionLong, Pct: 0.75,
					},
					EffectiveK: consensus.EffectiveKResult{Passed: false, EffectiveK: 1.875, RawK: 3},
					Freshness:  consensus.FreshnessResult{Passed: true, Staleness: 0.2},
					PriceDrift: consensus.PriceDriftResult{Passed: true, DriftR: 0.1},
					EV:         consensus.EVResult{Passed: true, EVNetR: 0.12},
				},
			},
			{
				Asset: "BTC",
				Result: &consensus.ConsensusResult{
					Passes:    true,
					Direction: domain.DirectionLong,
					Supermajority: consensus.SupermajorityResult{
						Passed: true, Total: 4, MajorityCount: 4, Direction: domain.DirectionLong, Pct: 1.0,
					},
					EffectiveK: consensus.EffectiveKResult{Passed: true, EffectiveK: 2.1, RawK: 4},
					Freshness:  consensus.FreshnessResult{Passed: true, Staleness: 0.1},
					PriceDrift: consensus.PriceDriftResult{Passed: true, DriftR: 0.05},
					EV:         consensus.EVResult{Passed: true, EVNetR: 0.2},
				},
			},
		},
	}

	g := newTestGenerator(setupTestData(t)).WithEvaluator(evaluator)

	report, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(report.GateOutcomes) != 2 {
		t.Fatalf("got %d gate rows, want 2", len(report.GateOutcomes))
	}

	// Sorted by asset.
	if report.GateOutcomes[0].Asset != "BTC" || report.GateOutcomes[1].Asset != "ETH" {
		t.Errorf("rows out of order: %s, %s", report.GateOutcomes[0].Asset, report.GateOutcomes[1].Asset)
	}
	if !report.GateOutcomes[0].Passes || report.GateOutcomes[0].FailedGates != "" {
		t.Errorf("BTC row = %+v, want passing", report.GateOutcomes[0])
	}
	if report.GateOutcomes[1].Passes || report.GateOutcomes[1].FailedGates != "effectiveK" {
		t.Errorf("ETH FailedGates = %q, want effectiveK", report.GateOutcomes[1].FailedGates)
	}
}

func TestRenderMarkdown(t *testing.T) {
	g := newTestGenerator(setupTestData(t))

	report, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	md := RenderMarkdown(report)
	for _, want := range []string{
		"# Consensus Report",
		"## Data Summary",
		"## Data Quality",
		"## Trader Statistics",
		"## Gate Outcomes",
		"## Tickets",
		"| Total Fills | 4 |",
		"INSUFFICIENT_DATA",
		"| 0xaaa |",
		"| abcdef012345 | BTC | long | 3/4 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderCSV(t *testing.T) {
	rows := []TraderStatRow{
		{
			Address: "0xaaa", TotalEpisodes: 10, Wins: 6, Losses: 4, WinRate: 0.6,
			RMean: 0.25, RMedian: 0.3, RP10: -1.2, RP90: 1.8,
			MaxDrawdownR: 2.5, MaxConsecutiveLosses: 2,
		},
	}

	csv := RenderCSV(rows)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[0], "address,total_episodes,") {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0xaaa,10,6,4,0.600000,") {
		t.Errorf("unexpected row: %s", lines[1])
	}
}
