package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trader-consensus-lab/internal/orchestrator"
	"trader-consensus-lab/internal/reporting"
	"trader-consensus-lab/internal/storage/memory"
)

type fixtureMids struct{}

func (fixtureMids) AllMids(_ context.Context) (map[string]float64, error) {
	return FixtureMids(), nil
}

func setupPipeline(t *testing.T) (*Pipeline, *memory.TicketStore, string) {
	t.Helper()
	ctx := context.Background()

	fillStore := memory.NewFillStore()
	episodeStore := memory.NewEpisodeStore()
	winRateStore := memory.NewWinRateStore()
	ticketStore := memory.NewTicketStore()

	if err := LoadFixtures(ctx, fillStore); err != nil {
		t.Fatalf("LoadFixtures failed: %v", err)
	}

	orch := orchestrator.New(orchestrator.Options{
		FillStore:        fillStore,
		EpisodeStore:     episodeStore,
		WinRateStore:     winRateStore,
		CorrelationStore: memory.NewCorrelationStore(),
		TicketStore:      ticketStore,
		MidProvider:      fixtureMids{},
		Now:              func() int64 { return FixtureNow },
	})

	gen := reporting.NewGenerator(fillStore, episodeStore, winRateStore, ticketStore).
		WithClock(func() time.Time { return time.UnixMilli(FixtureNow).UTC() })

	outputDir := t.TempDir()
	return New(orch, gen, outputDir), ticketStore, outputDir
}

func TestPipelineRunEmitsBTCTicket(t *testing.T) {
	p, tickets, _ := setupPipeline(t)

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}

	if result.TicketsEmitted != 1 {
		t.Fatalf("TicketsEmitted = %d, want 1", result.TicketsEmitted)
	}
	if result.EpisodesClosed != 28 {
		t.Errorf("EpisodesClosed = %d, want 28", result.EpisodesClosed)
	}

	btc, err := tickets.GetByAsset(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("GetByAsset failed: %v", err)
	}
	if len(btc) != 1 {
		t.Fatalf("got %d BTC tickets, want 1", len(btc))
	}
	if btc[0].NAgree != 4 {
		t.Errorf("NAgree = %d, want 4", btc[0].NAgree)
	}

	eth, err := tickets.GetByAsset(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("GetByAsset failed: %v", err)
	}
	if len(eth) != 0 {
		t.Errorf("got %d ETH tickets, want 0", len(eth))
	}
}

func TestPipelineWritesArtifacts(t *testing.T) {
	p, _, outputDir := setupPipeline(t)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	md, err := os.ReadFile(filepath.Join(outputDir, ReportFileName))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	report := string(md)
	for _, want := range []string{
		"# Consensus Report",
		"**All checks passed.**",
		"## Gate Outcomes",
		"| BTC |",
		"| ETH |",
		"supermajority",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}

	csvData, err := os.ReadFile(filepath.Join(outputDir, TraderStatsFileName))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	// Header plus one row per fixture trader.
	if len(lines) != len(FixtureTraders)+1 {
		t.Errorf("got %d csv lines, want %d", len(lines), len(FixtureTraders)+1)
	}
}
