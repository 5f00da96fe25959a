// Package main replays historical consensus evaluation for one asset
// over the stored fill history and summarizes gate outcomes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trader-consensus-lab/internal/replay"
	"trader-consensus-lab/internal/storage"
	"trader-consensus-lab/internal/storage/memory"
	pgstore "trader-consensus-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	asset := flag.String("asset", "", "Asset to replay (required)")
	fromTime := flag.String("from-time", "", "Start time (RFC3339, required)")
	toTime := flag.String("to-time", "", "End time (RFC3339, required)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")
	windowMs := flag.Int64("window-ms", 0, "Evaluation window in ms (0 for default)")
	stepMs := flag.Int64("step-ms", 0, "Step between evaluation instants in ms (0 for default)")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	// Setup structured logger
	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	// Validate required flags
	if *asset == "" {
		logger.Fatal("--asset is required")
	}
	if *fromTime == "" || *toTime == "" {
		logger.Fatal("--from-time and --to-time are required for deterministic replay")
	}

	from, err := time.Parse(time.RFC3339, *fromTime)
	if err != nil {
		logger.Fatalf("parse from-time: %v", err)
	}
	to, err := time.Parse(time.RFC3339, *toTime)
	if err != nil {
		logger.Fatalf("parse to-time: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Create fill store
	var fillStore storage.FillStore = memory.NewFillStore()

	if !*useMemory && *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()

		fillStore = pgstore.NewFillStore(pool)
	}

	// Create replay runner
	runner := replay.NewRunner(fillStore, replay.RunnerOptions{
		WindowMs: *windowMs,
		StepMs:   *stepMs,
	})

	// Create logging engine
	engine := NewLoggingEngine(*asset, *outputJSON)

	logger.Printf("Replaying %s from %s to %s", *asset, from.Format(time.RFC3339), to.Format(time.RFC3339))
	if err := runner.Run(ctx, *asset, from.UnixMilli(), to.UnixMilli(), engine); err != nil {
		logger.Fatalf("replay failed: %v", err)
	}

	// Output summary
	stats := engine.Stats()
	if *outputJSON {
		output, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("\n=== Replay Summary ===\n")
		fmt.Printf("Asset:             %s\n", stats.Asset)
		fmt.Printf("Total Ticks:       %d\n", stats.TotalTicks)
		fmt.Printf("Ticks With Votes:  %d\n", stats.TicksWithVotes)
		fmt.Printf("Consensus Passes:  %d\n", stats.ConsensusPasses)
		if stats.TotalTicks > 0 {
			fmt.Printf("First Tick Time:   %s\n", time.UnixMilli(stats.FirstTickTime).Format(time.RFC3339))
			fmt.Printf("Last Tick Time:    %s\n", time.UnixMilli(stats.LastTickTime).Format(time.RFC3339))
		} else {
			fmt.Printf("First Tick Time:   N/A\n")
			fmt.Printf("Last Tick Time:    N/A\n")
		}
	}
}

// LoggingEngine implements replay.Engine and logs ticks.
type LoggingEngine struct {
	asset      string
	outputJSON bool
	stats      ReplayStats
}

// ReplayStats holds replay statistics.
type ReplayStats struct {
	Asset           string `json:"asset"`
	TotalTicks      int    `json:"total_ticks"`
	TicksWithVotes  int    `json:"ticks_with_votes"`
	ConsensusPasses int    `json:"consensus_passes"`
	FirstTickTime   int64  `json:"first_tick_time"`
	LastTickTime    int64  `json:"last_tick_time"`
}

// NewLoggingEngine creates a new logging engine.
func NewLoggingEngine(asset string, outputJSON bool) *LoggingEngine {
	return &LoggingEngine{
		asset:      asset,
		outputJSON: outputJSON,
		stats: ReplayStats{
			Asset: asset,
		},
	}
}

// OnTick processes one evaluation instant.
func (e *LoggingEngine) OnTick(ctx context.Context, tick *replay.Tick) error {
	e.stats.TotalTicks++

	// Update time bounds
	if e.stats.FirstTickTime == 0 || tick.At < e.stats.FirstTickTime {
		e.stats.FirstTickTime = tick.At
	}
	if tick.At > e.stats.LastTickTime {
		e.stats.LastTickTime = tick.At
	}

	if len(tick.Votes) > 0 {
		e.stats.TicksWithVotes++
	}
	if tick.Result != nil && tick.Result.Passes {
		e.stats.ConsensusPasses++
	}

	// Log tick if not in JSON mode
	if !e.outputJSON {
		passes := false
		if tick.Result != nil {
			passes = tick.Result.Passes
		}
		fmt.Printf("[%s] mid=%.6f votes=%d passes=%v\n",
			time.UnixMilli(tick.At).Format(time.RFC3339Nano),
			tick.Mid,
			len(tick.Votes),
			passes,
		)
	}

	return nil
}

// Stats returns replay statistics.
func (e *LoggingEngine) Stats() ReplayStats {
	return e.stats
}

// Ensure LoggingEngine implements replay.Engine
var _ replay.Engine = (*LoggingEngine)(nil)
