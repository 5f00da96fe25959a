package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/storage"
)

// FillStore is an in-memory implementation of storage.FillStore.
type FillStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Fill // keyed by fill_id
}

// NewFillStore creates a new in-memory fill store.
func NewFillStore() *FillStore {
	return &FillStore{
		data: make(map[string]*domain.Fill),
	}
}

// Compile-time interface check.
var _ storage.FillStore = (*FillStore)(nil)

// Insert adds a new fill. Returns ErrDuplicateKey if fill_id exists.
func (s *FillStore) Insert(_ context.Context, f *domain.Fill) error {
	if f == nil || f.FillID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[f.FillID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *f
	cp.Address = strings.ToLower(cp.Address)
	s.data[f.FillID] = &cp
	return nil
}

// InsertBulk adds multiple fills atomically. Fails entire batch on any duplicate.
func (s *FillStore) InsertBulk(_ context.Context, fills []*domain.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(fills))
	for _, f := range fills {
		if f == nil || f.FillID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[f.FillID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[f.FillID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[f.FillID] = struct{}{}
	}

	for _, f := range fills {
		cp := *f
		cp.Address = strings.ToLower(cp.Address)
		s.data[f.FillID] = &cp
	}
	return nil
}

// GetByTraderAsset retrieves all fills for one (address, asset),
// ordered by timestamp ASC, fill_id ASC.
func (s *FillStore) GetByTraderAsset(_ context.Context, address, asset string) ([]*domain.Fill, error) {
	address = strings.ToLower(address)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Fill
	for _, f := range s.data {
		if f.Address == address && f.Asset == asset {
			cp := *f
			out = append(out, &cp)
		}
	}

	sortFills(out)
	return out, nil
}

// GetByAsset retrieves fills for an asset within [start, end] (inclusive).
func (s *FillStore) GetByAsset(_ context.Context, asset string, start, end int64) ([]*domain.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Fill
	for _, f := range s.data {
		if f.Asset == asset && f.Timestamp >= start && f.Timestamp <= end {
			cp := *f
			out = append(out, &cp)
		}
	}

	sortFills(out)
	return out, nil
}

// GetAssets lists distinct assets present in the store, sorted.
func (s *FillStore) GetAssets(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, f := range s.data {
		seen[f.Asset] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for asset := range seen {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out, nil
}

// sortFills orders fills by (timestamp ASC, fill_id ASC).
func sortFills(fills []*domain.Fill) {
	sort.Slice(fills, func(i, j int) bool {
		if fills[i].Timestamp != fills[j].Timestamp {
			return fills[i].Timestamp < fills[j].Timestamp
		}
		return fills[i].FillID < fills[j].FillID
	})
}
