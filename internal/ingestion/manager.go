package ingestion

import (
	"context"
	"errors"
	"fmt"

	"trader-consensus-lab/internal/storage"
)

// Manager orchestrates ingestion from sources to storage.
// It enforces deterministic ordering and uses the storage layer for
// duplicate rejection.
type Manager struct {
	fillSource FillSource
	fillStore  storage.FillStore
}

// ManagerOptions contains configuration for creating a Manager.
type ManagerOptions struct {
	FillSource FillSource
	FillStore  storage.FillStore
}

// NewManager creates a new ingestion manager with the provided source and store.
func NewManager(opts ManagerOptions) *Manager {
	return &Manager{
		fillSource: opts.FillSource,
		fillStore:  opts.FillStore,
	}
}

// IngestFills fetches fills for one account and stores them.
// Enforces deterministic ordering by (timestamp, fill_id).
// Returns count of ingested fills and any error.
// Duplicates are rejected by the storage layer (ErrDuplicateKey).
func (m *Manager) IngestFills(ctx context.Context, address string, from, to int64) (int, error) {
	if m.fillSource == nil || m.fillStore == nil {
		return 0, nil
	}

	fills, err := m.fillSource.Fetch(ctx, address, from, to)
	if err != nil {
		return 0, err
	}

	if len(fills) == 0 {
		return 0, nil
	}

	// Enforce deterministic ordering
	SortFills(fills)

	// Store via bulk insert - storage layer handles duplicates
	if err := m.fillStore.InsertBulk(ctx, fills); err != nil {
		return 0, err
	}

	return len(fills), nil
}

// IngestAll ingests fills for every tracked address over [from, to].
// A duplicate batch for one address is skipped, not fatal: re-running
// over an overlapping range is expected.
func (m *Manager) IngestAll(ctx context.Context, addresses []string, from, to int64) (int, error) {
	total := 0
	for _, address := range addresses {
		n, err := m.IngestFills(ctx, address, from, to)
		if err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				continue
			}
			return total, fmt.Errorf("ingest fills for %s: %w", address, err)
		}
		total += n
	}
	return total, nil
}
