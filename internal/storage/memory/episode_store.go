package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/storage"
)

// EpisodeStore is an in-memory implementation of storage.EpisodeStore.
type EpisodeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Episode // keyed by episode_id
}

// NewEpisodeStore creates a new in-memory episode store.
func NewEpisodeStore() *EpisodeStore {
	return &EpisodeStore{
		data: make(map[string]*domain.Episode),
	}
}

// Compile-time interface check.
var _ storage.EpisodeStore = (*EpisodeStore)(nil)

// Upsert inserts a new episode or replaces an existing one by episode_id.
func (s *EpisodeStore) Upsert(_ context.Context, ep *domain.Episode) error {
	if ep == nil || ep.EpisodeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[ep.EpisodeID] = cloneEpisode(ep)
	return nil
}

// GetByID retrieves an episode by its ID. Returns ErrNotFound if not exists.
func (s *EpisodeStore) GetByID(_ context.Context, episodeID string) (*domain.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.data[episodeID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneEpisode(ep), nil
}

// GetByTrader retrieves all episodes for an address, ordered by opened_at ASC.
func (s *EpisodeStore) GetByTrader(_ context.Context, address string) ([]*domain.Episode, error) {
	address = strings.ToLower(address)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Episode
	for _, ep := range s.data {
		if ep.Address == address {
			out = append(out, cloneEpisode(ep))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt != out[j].OpenedAt {
			return out[i].OpenedAt < out[j].OpenedAt
		}
		return out[i].EpisodeID < out[j].EpisodeID
	})
	return out, nil
}

// GetByStatus retrieves all episodes with the given status.
func (s *EpisodeStore) GetByStatus(_ context.Context, status string) ([]*domain.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Episode
	for _, ep := range s.data {
		if ep.Status == status {
			out = append(out, cloneEpisode(ep))
		}
	}

	sortEpisodes(out)
	return out, nil
}

// GetAll retrieves every episode, ordered by (address, asset, opened_at).
func (s *EpisodeStore) GetAll(_ context.Context) ([]*domain.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Episode, 0, len(s.data))
	for _, ep := range s.data {
		out = append(out, cloneEpisode(ep))
	}

	sortEpisodes(out)
	return out, nil
}

// sortEpisodes orders episodes by (address, asset, opened_at, episode_id).
func sortEpisodes(eps []*domain.Episode) {
	sort.Slice(eps, func(i, j int) bool {
		if eps[i].Address != eps[j].Address {
			return eps[i].Address < eps[j].Address
		}
		if eps[i].Asset != eps[j].Asset {
			return eps[i].Asset < eps[j].Asset
		}
		if eps[i].OpenedAt != eps[j].OpenedAt {
			return eps[i].OpenedAt < eps[j].OpenedAt
		}
		return eps[i].EpisodeID < eps[j].EpisodeID
	})
}

// cloneEpisode deep-copies an episode so callers never share slices
// with the store.
func cloneEpisode(ep *domain.Episode) *domain.Episode {
	cp := *ep
	cp.EntryFills = append([]string(nil), ep.EntryFills...)
	cp.ExitFills = append([]string(nil), ep.ExitFills...)
	return &cp
}
