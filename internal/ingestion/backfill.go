package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"

	"trader-consensus-lab/internal/storage"
)

// Backfiller ingests historical fills over a time range, walking the
// range in fixed windows so one oversized response cannot stall an
// entire account's history.
type Backfiller struct {
	manager   *Manager
	addresses []string
	windowMs  int64
	logger    *log.Logger
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	Manager   *Manager
	Addresses []string
	// WindowMs is the per-request time window. Default: 6h.
	WindowMs int64
	Logger   *log.Logger
}

// NewBackfiller creates a new historical fill backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	windowMs := opts.WindowMs
	if windowMs == 0 {
		windowMs = 6 * 60 * 60 * 1000
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Backfiller{
		manager:   opts.Manager,
		addresses: opts.Addresses,
		windowMs:  windowMs,
		logger:    logger,
	}
}

// Backfill ingests fills for all tracked addresses over [from, to].
// Windows that collide with already-ingested fills are skipped.
// Returns the total number of fills ingested.
func (b *Backfiller) Backfill(ctx context.Context, from, to int64) (int, error) {
	if from > to {
		return 0, fmt.Errorf("invalid range: from %d > to %d", from, to)
	}

	total := 0
	for _, address := range b.addresses {
		n, err := b.backfillAddress(ctx, address, from, to)
		if err != nil {
			return total, fmt.Errorf("backfill %s: %w", address, err)
		}
		total += n
		b.logger.Printf("[backfill] %s: %d fills", address, n)
	}

	b.logger.Printf("[backfill] done, %d fills total", total)
	return total, nil
}

// backfillAddress walks one account's history window by window.
func (b *Backfiller) backfillAddress(ctx context.Context, address string, from, to int64) (int, error) {
	total := 0
	for start := from; start <= to; start += b.windowMs {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		end := start + b.windowMs - 1
		if end > to {
			end = to
		}

		n, err := b.manager.IngestFills(ctx, address, start, end)
		if err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				b.logger.Printf("[backfill] %s window [%d, %d] already ingested, skipping", address, start, end)
				continue
			}
			return total, err
		}
		total += n
	}
	return total, nil
}
