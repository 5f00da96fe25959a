// Package main provides the end-to-end pipeline entry point.
// Executes: episodes → statistics → consensus evaluation → reporting
// over fixture data in memory stores.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trader-consensus-lab/internal/orchestrator"
	"trader-consensus-lab/internal/pipeline"
	"trader-consensus-lab/internal/reporting"
	"trader-consensus-lab/internal/storage/memory"
)

// fixtureMids serves the fixture mid prices as a MidProvider.
type fixtureMids struct{}

func (fixtureMids) AllMids(ctx context.Context) (map[string]float64, error) {
	return pipeline.FixtureMids(), nil
}

func main() {
	// Parse flags
	outputDir := flag.String("output-dir", "docs", "Output directory for generated files")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal %v, cancelling pipeline...\n", sig)
		cancel()
	}()

	// Create memory stores
	fillStore := memory.NewFillStore()
	episodeStore := memory.NewEpisodeStore()
	winRateStore := memory.NewWinRateStore()
	correlationStore := memory.NewCorrelationStore()
	ticketStore := memory.NewTicketStore()

	// Load fixture fills
	if err := pipeline.LoadFixtures(ctx, fillStore); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading fixtures: %v\n", err)
		os.Exit(1)
	}

	// Fixed clock pinned to the fixture timeline for deterministic output
	fixedTime := time.UnixMilli(pipeline.FixtureNow).UTC()

	fmt.Println("=== Consensus Pipeline ===")
	orch := orchestrator.New(orchestrator.Options{
		FillStore:        fillStore,
		EpisodeStore:     episodeStore,
		WinRateStore:     winRateStore,
		CorrelationStore: correlationStore,
		TicketStore:      ticketStore,
		MidProvider:      fixtureMids{},
		Now:              func() int64 { return pipeline.FixtureNow },
		Verbose:          *verbose,
	})

	reportGen := reporting.NewGenerator(fillStore, episodeStore, winRateStore, ticketStore).
		WithClock(func() time.Time { return fixedTime })

	p := pipeline.New(orch, reportGen, *outputDir)

	result, err := p.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pipeline error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Evaluation tick completed:\n")
	fmt.Printf("  Assets evaluated: %d\n", result.AssetsEvaluated)
	fmt.Printf("  Episodes upserted: %d\n", result.EpisodesUpserted)
	fmt.Printf("  Episodes closed: %d\n", result.EpisodesClosed)
	fmt.Printf("  Traders rated: %d\n", result.TradersRated)
	fmt.Printf("  Pairs correlated: %d\n", result.PairsCorrelated)
	fmt.Printf("  Tickets emitted: %d\n", result.TicketsEmitted)
	if len(result.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	fmt.Println("\nPipeline completed successfully:")
	fmt.Printf("  - %s/%s\n", *outputDir, pipeline.ReportFileName)
	fmt.Printf("  - %s/%s\n", *outputDir, pipeline.TraderStatsFileName)
}
