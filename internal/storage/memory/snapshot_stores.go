package memory

import (
	"context"
	"sync"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/storage"
)

// WinRateStore is an in-memory implementation of storage.WinRateStore.
// The table is replaced wholesale; readers get copies.
type WinRateStore struct {
	mu    sync.RWMutex
	table domain.WinRateTable
}

// NewWinRateStore creates a new in-memory win-rate store.
func NewWinRateStore() *WinRateStore {
	return &WinRateStore{table: make(domain.WinRateTable)}
}

// Compile-time interface check.
var _ storage.WinRateStore = (*WinRateStore)(nil)

// Replace swaps in a full snapshot of the table.
func (s *WinRateStore) Replace(_ context.Context, table domain.WinRateTable) error {
	cp := make(domain.WinRateTable, len(table))
	for addr, stat := range table {
		cp[addr] = stat
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = cp
	return nil
}

// Get returns a copy of the current snapshot.
func (s *WinRateStore) Get(_ context.Context) (domain.WinRateTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := make(domain.WinRateTable, len(s.table))
	for addr, stat := range s.table {
		cp[addr] = stat
	}
	return cp, nil
}

// CorrelationStore is an in-memory implementation of
// storage.CorrelationStore with the same snapshot semantics.
type CorrelationStore struct {
	mu     sync.RWMutex
	matrix domain.CorrelationMatrix
}

// NewCorrelationStore creates a new in-memory correlation store.
func NewCorrelationStore() *CorrelationStore {
	return &CorrelationStore{matrix: make(domain.CorrelationMatrix)}
}

// Compile-time interface check.
var _ storage.CorrelationStore = (*CorrelationStore)(nil)

// Replace swaps in a full snapshot of the matrix.
func (s *CorrelationStore) Replace(_ context.Context, matrix domain.CorrelationMatrix) error {
	cp := make(domain.CorrelationMatrix, len(matrix))
	for key, rho := range matrix {
		cp[key] = rho
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.matrix = cp
	return nil
}

// Get returns a copy of the current snapshot.
func (s *CorrelationStore) Get(_ context.Context) (domain.CorrelationMatrix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := make(domain.CorrelationMatrix, len(s.matrix))
	for key, rho := range s.matrix {
		cp[key] = rho
	}
	return cp, nil
}
