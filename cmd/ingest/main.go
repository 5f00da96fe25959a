// Package main provides the fill ingestion entry point.
// Live mode streams fills over WebSocket into storage; backfill mode
// pages historical fills from the venue's info endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"trader-consensus-lab/internal/exchange"
	"trader-consensus-lab/internal/ingestion"
	"trader-consensus-lab/internal/observability"
	"trader-consensus-lab/internal/storage"
	"trader-consensus-lab/internal/storage/memory"
	pgstore "trader-consensus-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	mode := flag.String("mode", "live", "Ingestion mode: live or backfill")
	wsURL := flag.String("ws-url", "", "Venue WebSocket endpoint")
	infoURL := flag.String("info-url", "", "Venue info HTTP endpoint")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	addresses := flag.String("addresses", "", "Comma-separated trader addresses to track")
	fromTime := flag.String("from-time", "", "Start time for backfill (RFC3339)")
	toTime := flag.String("to-time", "", "End time for backfill (RFC3339)")
	lagWindow := flag.Duration("lag-window", 2*time.Second, "Buffer window for late fills before commit")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Resolve tracked addresses
	addressList := resolveAddresses(*addresses)
	if len(addressList) == 0 {
		logger.Fatal("No trader addresses specified. Use --addresses")
	}
	logger.Printf("Tracking traders: %v", addressList)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal main goroutine completion
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Run based on mode
	var err error
	switch *mode {
	case "live":
		err = runLive(ctx, logger, *wsURL, *postgresDSN, addressList, *lagWindow, *useMemory)
	case "backfill":
		err = runBackfill(ctx, logger, *infoURL, *postgresDSN, addressList, *fromTime, *toTime, *useMemory)
	default:
		logger.Fatalf("Unknown mode: %s", *mode)
	}

	// Signal completion to shutdown handler
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// resolveAddresses splits and normalizes the tracked address list.
func resolveAddresses(addresses string) []string {
	var list []string
	for _, a := range strings.Split(addresses, ",") {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			list = append(list, a)
		}
	}
	return list
}

// createFillStore creates the fill store for the selected backend.
func createFillStore(ctx context.Context, postgresDSN string, useMemory bool) (storage.FillStore, func(), error) {
	if useMemory {
		return memory.NewFillStore(), func() {}, nil
	}

	if postgresDSN == "" {
		return nil, nil, fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return pgstore.NewFillStore(pool), func() { pool.Close() }, nil
}

// runLive runs continuous live ingestion from the WebSocket stream.
func runLive(ctx context.Context, logger *log.Logger, wsURL, postgresDSN string, addresses []string, lagWindow time.Duration, useMemory bool) error {
	if wsURL == "" {
		return fmt.Errorf("--ws-url is required for live mode")
	}

	fillStore, cleanup, err := createFillStore(ctx, postgresDSN, useMemory)
	if err != nil {
		return err
	}
	defer cleanup()

	ws, err := exchange.NewWSClient(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("create websocket client: %w", err)
	}
	defer ws.Close()

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Streamer:  ws,
		FillStore: fillStore,
		Addresses: addresses,
		LagWindow: lagWindow,
		Logger:    logger,
	})

	// Mirror runner and connection counters into Prometheus
	go reportStats(ctx, runner, ws)

	logger.Println("Starting live ingestion...")
	return runner.Run(ctx)
}

// reportStats publishes runner progress to the metrics registry.
func reportStats(ctx context.Context, runner *ingestion.Runner, ws *exchange.WSClient) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	var lastIngested, lastReconnects int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ingested := runner.Ingested()
			if delta := ingested - lastIngested; delta > 0 {
				observability.RecordFillsStored(int(delta))
				observability.DefaultMetrics.LastSuccessfulIngestion.SetToCurrentTime()
			}
			lastIngested = ingested

			reconnects := ws.Reconnects()
			if delta := reconnects - lastReconnects; delta > 0 {
				observability.DefaultMetrics.WSReconnects.Add(float64(delta))
			}
			lastReconnects = reconnects
		}
	}
}

// runBackfill pages historical fills from the info endpoint.
func runBackfill(ctx context.Context, logger *log.Logger, infoURL, postgresDSN string, addresses []string, fromTimeStr, toTimeStr string, useMemory bool) error {
	if infoURL == "" {
		return fmt.Errorf("--info-url is required for backfill mode")
	}
	if fromTimeStr == "" || toTimeStr == "" {
		return fmt.Errorf("--from-time and --to-time are required for backfill mode")
	}

	from, err := time.Parse(time.RFC3339, fromTimeStr)
	if err != nil {
		return fmt.Errorf("parse --from-time: %w", err)
	}
	to, err := time.Parse(time.RFC3339, toTimeStr)
	if err != nil {
		return fmt.Errorf("parse --to-time: %w", err)
	}

	fillStore, cleanup, err := createFillStore(ctx, postgresDSN, useMemory)
	if err != nil {
		return err
	}
	defer cleanup()

	info := exchange.NewInfoClient(infoURL)
	manager := ingestion.NewManager(ingestion.ManagerOptions{
		FillSource: &ingestion.InfoFillSource{Client: info},
		FillStore:  fillStore,
	})

	backfiller := ingestion.NewBackfiller(ingestion.BackfillOptions{
		Manager:   manager,
		Addresses: addresses,
		Logger:    logger,
	})

	logger.Printf("Backfilling %s to %s...", from.Format(time.RFC3339), to.Format(time.RFC3339))
	count, err := backfiller.Backfill(ctx, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return err
	}

	observability.RecordFillsStored(count)
	logger.Printf("Backfill complete: %d fills ingested", count)
	return nil
}
