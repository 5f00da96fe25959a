package ingestion

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"trader-consensus-lab/internal/domain"
)

// Key identifies one logical fill stream.
type Key struct {
	Address string
	Asset   string
}

// NewKey builds the stream key for a fill, lowercasing the address.
func NewKey(f *domain.Fill) Key {
	return Key{Address: strings.ToLower(f.Address), Asset: f.Asset}
}

// Handler processes one fill. The sequencer guarantees a single
// in-flight call per key, in submission order.
type Handler func(ctx context.Context, key Key, fill *domain.Fill) error

// Sequencer fans incoming fills in by (address, asset) key: every key
// maps to exactly one worker, so fills for one stream apply in order
// with no cross-key synchronization.
type Sequencer struct {
	handler Handler
	inputs  []chan *domain.Fill
	wg      sync.WaitGroup
	logger  *log.Logger

	started atomic.Bool
	closed  atomic.Bool
}

// SequencerOptions contains configuration for creating a Sequencer.
type SequencerOptions struct {
	// Workers is the number of partitions. Default: 4.
	Workers int
	// Buffer is the per-worker channel depth. Default: 1024.
	Buffer  int
	Handler Handler
	Logger  *log.Logger
}

// NewSequencer creates a new sequencer. Handler is required.
func NewSequencer(opts SequencerOptions) *Sequencer {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	inputs := make([]chan *domain.Fill, workers)
	for i := range inputs {
		inputs[i] = make(chan *domain.Fill, buffer)
	}

	return &Sequencer{
		handler: opts.Handler,
		inputs:  inputs,
		logger:  logger,
	}
}

// Start launches the workers. It must be called once before Submit.
func (s *Sequencer) Start(ctx context.Context) {
	if s.started.Swap(true) {
		return
	}

	for i, input := range s.inputs {
		s.wg.Add(1)
		go func(worker int, input chan *domain.Fill) {
			defer s.wg.Done()
			for fill := range input {
				key := NewKey(fill)
				if err := s.handler(ctx, key, fill); err != nil {
					s.logger.Printf("[sequencer] worker %d: apply fill %s for %s/%s: %v",
						worker, fill.FillID, key.Address, key.Asset, err)
				}
			}
		}(i, input)
	}
}

// Submit routes a fill to its key's worker. Blocks when the worker's
// buffer is full so submission order is preserved under backpressure.
func (s *Sequencer) Submit(fill *domain.Fill) error {
	if !s.started.Load() {
		return fmt.Errorf("sequencer not started")
	}
	if s.closed.Load() {
		return fmt.Errorf("sequencer closed")
	}
	if fill == nil {
		return fmt.Errorf("nil fill")
	}

	s.inputs[s.partition(NewKey(fill))] <- fill
	return nil
}

// Close stops accepting fills and waits for in-flight work to drain.
func (s *Sequencer) Close() {
	if s.closed.Swap(true) {
		return
	}
	for _, input := range s.inputs {
		close(input)
	}
	s.wg.Wait()
}

// partition maps a key to its worker index.
func (s *Sequencer) partition(key Key) int {
	h := fnv.New32a()
	h.Write([]byte(key.Address))
	h.Write([]byte{0})
	h.Write([]byte(key.Asset))
	return int(h.Sum32() % uint32(len(s.inputs)))
}
