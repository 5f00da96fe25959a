package memory

import (
	"context"
	"sort"
	"sync"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/storage"
)

// TicketStore is an in-memory implementation of storage.TicketStore.
type TicketStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Ticket // keyed by ticket_id
}

// NewTicketStore creates a new in-memory ticket store.
func NewTicketStore() *TicketStore {
	return &TicketStore{
		data: make(map[string]*domain.Ticket),
	}
}

// Compile-time interface check.
var _ storage.TicketStore = (*TicketStore)(nil)

// Insert adds a new ticket. Returns ErrDuplicateKey if ticket_id exists.
func (s *TicketStore) Insert(_ context.Context, t *domain.Ticket) error {
	if t == nil || t.TicketID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TicketID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[t.TicketID] = cloneTicket(t)
	return nil
}

// GetByAsset retrieves all tickets for an asset, ordered by created_at ASC.
func (s *TicketStore) GetByAsset(_ context.Context, asset string) ([]*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Ticket
	for _, t := range s.data {
		if t.Asset == asset {
			out = append(out, cloneTicket(t))
		}
	}

	sortTickets(out)
	return out, nil
}

// GetByTimeRange retrieves tickets within [start, end] (inclusive).
func (s *TicketStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Ticket
	for _, t := range s.data {
		if t.CreatedAt >= start && t.CreatedAt <= end {
			out = append(out, cloneTicket(t))
		}
	}

	sortTickets(out)
	return out, nil
}

func sortTickets(tickets []*domain.Ticket) {
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].CreatedAt != tickets[j].CreatedAt {
			return tickets[i].CreatedAt < tickets[j].CreatedAt
		}
		return tickets[i].TicketID < tickets[j].TicketID
	})
}

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	cp := *t
	cp.VoterAddresses = append([]string(nil), t.VoterAddresses...)
	return &cp
}
