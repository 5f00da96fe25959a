// Package main provides the unified server that runs all components together:
// - Ingestion (continuous): WebSocket fill stream for tracked traders
// - Evaluation (scheduled): episodes → statistics → consensus tickets
// - Reporting (scheduled): CONSENSUS_REPORT.md, trader_stats.csv
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"trader-consensus-lab/internal/exchange"
	"trader-consensus-lab/internal/ingestion"
	"trader-consensus-lab/internal/observability"
	"trader-consensus-lab/internal/orchestrator"
	"trader-consensus-lab/internal/pipeline"
	"trader-consensus-lab/internal/reporting"
	"trader-consensus-lab/internal/storage"
	chstore "trader-consensus-lab/internal/storage/clickhouse"
	"trader-consensus-lab/internal/storage/memory"
	pgstore "trader-consensus-lab/internal/storage/postgres"
)

// Server holds all components of the unified service.
type Server struct {
	// Configuration
	wsEndpoint     string
	infoEndpoint   string
	postgresDSN    string
	clickhouseDSN  string
	useMemory      bool
	addresses      []string
	outputDir      string
	tickInterval   time.Duration
	reportInterval time.Duration

	// Stores
	stores *allStores

	// Components
	ingestionRunner *ingestion.Runner
	mids            *exchange.InfoClient
	logger          *log.Logger

	// State
	mu               sync.Mutex
	lastTickRun      time.Time
	lastReportRun    time.Time
	tickRunning      bool
	reportRunning    bool
	ingestionStarted time.Time

	// Stats
	tickRuns      int
	reportRuns    int
	ticketsTotal  int
	episodesTotal int
}

// allStores holds all storage implementations.
type allStores struct {
	fillStore        storage.FillStore
	episodeStore     storage.EpisodeStore
	winRateStore     storage.WinRateStore
	correlationStore storage.CorrelationStore
	ticketStore      storage.TicketStore
	historyStore     storage.EpisodeHistoryStore // nil without ClickHouse
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	wsEndpoint := flag.String("ws-url", os.Getenv("VENUE_WS_URL"), "Venue WebSocket endpoint")
	infoEndpoint := flag.String("info-url", os.Getenv("VENUE_INFO_URL"), "Venue info HTTP endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional episode archive)")
	addresses := flag.String("addresses", os.Getenv("TRACKED_ADDRESSES"), "Comma-separated trader addresses to track")
	outputDir := flag.String("output-dir", "output", "Output directory for reports")
	tickInterval := flag.Duration("tick-interval", 1*time.Minute, "Evaluation tick interval")
	reportInterval := flag.Duration("report-interval", 6*time.Hour, "Report generation interval")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *wsEndpoint == "" {
		logger.Fatal("--ws-url is required")
	}
	if *infoEndpoint == "" {
		logger.Fatal("--info-url is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	// Resolve tracked traders
	addressList := resolveAddresses(*addresses)
	if len(addressList) == 0 {
		logger.Fatal("No trader addresses specified. Use --addresses")
	}
	logger.Printf("Tracking traders: %v", addressList)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Create server
	server := &Server{
		wsEndpoint:     *wsEndpoint,
		infoEndpoint:   *infoEndpoint,
		postgresDSN:    *postgresDSN,
		clickhouseDSN:  *clickhouseDSN,
		useMemory:      *useMemory,
		addresses:      addressList,
		outputDir:      *outputDir,
		tickInterval:   *tickInterval,
		reportInterval: *reportInterval,
		stores:         stores,
		mids:           exchange.NewInfoClient(*infoEndpoint),
		logger:         logger,
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

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

	// Start HTTP server
	go server.startHTTPServer(*metricsAddr)

	// Run the unified server
	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
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

// createStores creates all required stores.
// Win-rate and correlation snapshots always live in memory; they are
// recomputed from episodes on every tick.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	stores := &allStores{
		winRateStore:     memory.NewWinRateStore(),
		correlationStore: memory.NewCorrelationStore(),
	}

	if useMemory {
		stores.fillStore = memory.NewFillStore()
		stores.episodeStore = memory.NewEpisodeStore()
		stores.ticketStore = memory.NewTicketStore()
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	stores.fillStore = pgstore.NewFillStore(pool)
	stores.episodeStore = pgstore.NewEpisodeStore(pool)
	stores.ticketStore = pgstore.NewTicketStore(pool)

	cleanup := func() { pool.Close() }

	// ClickHouse archive is optional
	if clickhouseDSN != "" {
		chConn, err := chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		stores.historyStore = chstore.NewEpisodeHistoryStore(chConn)
		cleanup = func() {
			chConn.Close()
			pool.Close()
		}
	}

	return stores, cleanup, nil
}

// Run starts the unified server with all components.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("Starting unified server...")

	// Create error channel for goroutines
	errCh := make(chan error, 3)

	// Start ingestion in background
	go func() {
		err := s.runIngestion(ctx)
		if err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("ingestion: %w", err)
		}
	}()

	// Start tick scheduler in background
	go func() {
		err := s.runTickScheduler(ctx)
		if err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("tick scheduler: %w", err)
		}
	}()

	// Start report scheduler in background
	go func() {
		err := s.runReportScheduler(ctx)
		if err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("report scheduler: %w", err)
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// runIngestion runs continuous fill ingestion.
func (s *Server) runIngestion(ctx context.Context) error {
	s.logger.Println("Starting ingestion...")

	ws, err := exchange.NewWSClient(ctx, s.wsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("create websocket client: %w", err)
	}
	defer ws.Close()

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Streamer:  ws,
		FillStore: s.stores.fillStore,
		Addresses: s.addresses,
		Logger:    log.New(os.Stdout, "[ingestion] ", log.LstdFlags|log.Lshortfile),
	})

	s.mu.Lock()
	s.ingestionRunner = runner
	s.ingestionStarted = time.Now()
	s.mu.Unlock()

	s.logger.Println("Ingestion started")
	return runner.Run(ctx)
}

// runTickScheduler runs evaluation ticks on schedule.
func (s *Server) runTickScheduler(ctx context.Context) error {
	s.logger.Printf("Starting tick scheduler (interval: %v)...", s.tickInterval)

	// Run immediately on start
	s.runTick(ctx)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

// runTick executes one evaluation tick.
func (s *Server) runTick(ctx context.Context) {
	s.mu.Lock()
	if s.tickRunning {
		s.mu.Unlock()
		s.logger.Println("Tick already running, skipping...")
		return
	}
	s.tickRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.tickRunning = false
		s.lastTickRun = time.Now()
		s.tickRuns++
		s.mu.Unlock()
	}()

	s.logger.Println("Running evaluation tick...")
	start := time.Now()

	orch := orchestrator.New(orchestrator.Options{
		FillStore:           s.stores.fillStore,
		EpisodeStore:        s.stores.episodeStore,
		WinRateStore:        s.stores.winRateStore,
		CorrelationStore:    s.stores.correlationStore,
		TicketStore:         s.stores.ticketStore,
		EpisodeHistoryStore: s.stores.historyStore,
		MidProvider:         s.mids,
		Verbose:             true,
	})

	result, err := orch.Run(ctx)
	if err != nil {
		s.logger.Printf("Tick error: %v", err)
		return
	}

	s.mu.Lock()
	s.ticketsTotal += result.TicketsEmitted
	s.episodesTotal += result.EpisodesClosed
	s.mu.Unlock()

	observability.DefaultMetrics.EvaluationsTotal.Add(float64(result.AssetsEvaluated))
	observability.DefaultMetrics.LastSuccessfulTick.SetToCurrentTime()

	s.logger.Printf("Tick completed in %v: %d assets, %d episodes closed, %d tickets",
		time.Since(start), result.AssetsEvaluated, result.EpisodesClosed, result.TicketsEmitted)
}

// runReportScheduler runs report generation on schedule.
func (s *Server) runReportScheduler(ctx context.Context) error {
	s.logger.Printf("Starting report scheduler (interval: %v)...", s.reportInterval)

	// Wait for first tick before generating reports
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.tickInterval + 1*time.Minute):
	}

	// Run immediately after first tick
	s.runReport(ctx)

	ticker := time.NewTicker(s.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runReport(ctx)
		}
	}
}

// runReport generates reports.
func (s *Server) runReport(ctx context.Context) {
	s.mu.Lock()
	if s.reportRunning {
		s.mu.Unlock()
		s.logger.Println("Report generation already running, skipping...")
		return
	}
	s.reportRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reportRunning = false
		s.lastReportRun = time.Now()
		s.reportRuns++
		s.mu.Unlock()
	}()

	s.logger.Println("Generating reports...")
	start := time.Now()

	// Ensure output directory exists
	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		s.logger.Printf("Failed to create output directory: %v", err)
		return
	}

	// Gate outcomes replay the current window from store snapshots
	evaluator := orchestrator.New(orchestrator.Options{
		FillStore:        s.stores.fillStore,
		EpisodeStore:     s.stores.episodeStore,
		WinRateStore:     s.stores.winRateStore,
		CorrelationStore: s.stores.correlationStore,
		TicketStore:      s.stores.ticketStore,
		MidProvider:      s.mids,
	})

	gen := reporting.NewGenerator(
		s.stores.fillStore,
		s.stores.episodeStore,
		s.stores.winRateStore,
		s.stores.ticketStore,
	).WithEvaluator(evaluator)

	report, err := gen.Generate(ctx)
	if err != nil {
		s.logger.Printf("Report generation error: %v", err)
		return
	}

	reportPath := filepath.Join(s.outputDir, pipeline.ReportFileName)
	if err := os.WriteFile(reportPath, []byte(reporting.RenderMarkdown(report)), 0644); err != nil {
		s.logger.Printf("Failed to write report: %v", err)
		return
	}

	csvPath := filepath.Join(s.outputDir, pipeline.TraderStatsFileName)
	if err := os.WriteFile(csvPath, []byte(reporting.RenderCSV(report.TraderStats)), 0644); err != nil {
		s.logger.Printf("Failed to write trader stats: %v", err)
		return
	}

	s.logger.Printf("Reports generated in %v to %s/", time.Since(start), s.outputDir)
}

// startHTTPServer starts the HTTP server for health/metrics/status.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status           string    `json:"status"`
	Uptime           string    `json:"uptime"`
	IngestionStarted time.Time `json:"ingestion_started"`
	FillsIngested    int64     `json:"fills_ingested"`
	LastTickRun      time.Time `json:"last_tick_run,omitempty"`
	LastReportRun    time.Time `json:"last_report_run,omitempty"`
	TickRuns         int       `json:"tick_runs"`
	ReportRuns       int       `json:"report_runs"`
	TicketsEmitted   int       `json:"tickets_emitted"`
	EpisodesClosed   int       `json:"episodes_closed"`
	TickRunning      bool      `json:"tick_running"`
	ReportRunning    bool      `json:"report_running"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ingested int64
	if s.ingestionRunner != nil {
		ingested = s.ingestionRunner.Ingested()
	}

	resp := StatusResponse{
		Status:           "running",
		Uptime:           time.Since(s.ingestionStarted).String(),
		IngestionStarted: s.ingestionStarted,
		FillsIngested:    ingested,
		LastTickRun:      s.lastTickRun,
		LastReportRun:    s.lastReportRun,
		TickRuns:         s.tickRuns,
		ReportRuns:       s.reportRuns,
		TicketsEmitted:   s.ticketsTotal,
		EpisodesClosed:   s.episodesTotal,
		TickRunning:      s.tickRunning,
		ReportRunning:    s.reportRunning,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
