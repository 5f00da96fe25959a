package ingestion

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/storage"
)

// FillStreamer is the streaming surface the runner consumes,
// implemented by exchange.WSClient.
type FillStreamer interface {
	SubscribeFills(ctx context.Context, address string) (<-chan *domain.Fill, error)
}

// Runner orchestrates continuous fill ingestion from the venue stream.
// Incoming fills are buffered for a lag window so late arrivals within
// the window still commit in deterministic order.
type Runner struct {
	streamer  FillStreamer
	fillStore storage.FillStore
	addresses []string

	lagWindow     time.Duration
	flushInterval time.Duration
	logger        *log.Logger

	buffer   []*domain.Fill
	ingested atomic.Int64
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Streamer  FillStreamer
	FillStore storage.FillStore
	Addresses []string

	// LagWindow is how long a fill is buffered before commit. Default: 2s.
	LagWindow time.Duration
	// FlushInterval is how often the buffer is drained. Default: 1s.
	FlushInterval time.Duration
	Logger        *log.Logger
}

// NewRunner creates a new streaming ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	lagWindow := opts.LagWindow
	if lagWindow == 0 {
		lagWindow = 2 * time.Second
	}

	flushInterval := opts.FlushInterval
	if flushInterval == 0 {
		flushInterval = 1 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		streamer:      opts.Streamer,
		fillStore:     opts.FillStore,
		addresses:     opts.Addresses,
		lagWindow:     lagWindow,
		flushInterval: flushInterval,
		logger:        logger,
	}
}

// Ingested reports how many fills have been committed.
func (r *Runner) Ingested() int64 {
	return r.ingested.Load()
}

// Run subscribes to every tracked address and blocks until the context
// is cancelled, flushing any buffered fills on the way out.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Printf("[ingestion] starting runner for %d addresses", len(r.addresses))

	merged := make(chan *domain.Fill, 1024)
	var wg sync.WaitGroup

	for _, address := range r.addresses {
		ch, err := r.streamer.SubscribeFills(ctx, address)
		if err != nil {
			return err
		}
		r.logger.Printf("[ingestion] subscribed to fills for %s", address)

		wg.Add(1)
		go func(ch <-chan *domain.Fill) {
			defer wg.Done()
			for f := range ch {
				select {
				case merged <- f:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}

	flushTicker := time.NewTicker(r.flushInterval)
	defer flushTicker.Stop()

	r.logger.Printf("[ingestion] runner started, lag window: %v, flush interval: %v", r.lagWindow, r.flushInterval)

	for {
		select {
		case <-ctx.Done():
			r.flush(context.Background(), time.Now().Add(r.lagWindow))
			r.logger.Printf("[ingestion] runner stopping, %d fills ingested", r.ingested.Load())
			wg.Wait()
			return ctx.Err()

		case f := <-merged:
			r.buffer = append(r.buffer, f)

		case <-flushTicker.C:
			r.flush(ctx, time.Now().Add(-r.lagWindow))
		}
	}
}

// flush commits buffered fills with timestamps at or before the cutoff.
// Duplicates are skipped: reconnect replays re-deliver recent fills.
func (r *Runner) flush(ctx context.Context, cutoff time.Time) {
	if len(r.buffer) == 0 {
		return
	}

	cutoffMs := cutoff.UnixMilli()

	var ready, held []*domain.Fill
	for _, f := range r.buffer {
		if f.Timestamp <= cutoffMs {
			ready = append(ready, f)
		} else {
			held = append(held, f)
		}
	}
	if len(ready) == 0 {
		return
	}
	r.buffer = held

	SortFills(ready)

	committed := 0
	for _, f := range ready {
		err := r.fillStore.Insert(ctx, f)
		if err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				continue
			}
			r.logger.Printf("[ingestion] insert fill %s: %v", f.FillID, err)
			continue
		}
		committed++
	}

	if committed > 0 {
		r.ingested.Add(int64(committed))
		r.logger.Printf("[ingestion] committed %d fills", committed)
	}
}
