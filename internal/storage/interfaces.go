package storage

import (
	"context"

	"trader-consensus-lab/internal/domain"
)

// FillStore provides access to fills storage. Fills are immutable and
// append-only; duplicates are rejected by (fill_id).
type FillStore interface {
	// Insert adds a new fill. Returns ErrDuplicateKey if fill_id exists.
	Insert(ctx context.Context, f *domain.Fill) error

	// InsertBulk adds multiple fills atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, fills []*domain.Fill) error

	// GetByTraderAsset retrieves all fills for one (address, asset),
	// ordered by timestamp ASC, fill_id ASC.
	GetByTraderAsset(ctx context.Context, address, asset string) ([]*domain.Fill, error)

	// GetByAsset retrieves fills for an asset within [start, end] (inclusive),
	// across all traders, ordered by timestamp ASC, fill_id ASC.
	GetByAsset(ctx context.Context, asset string, start, end int64) ([]*domain.Fill, error)

	// GetAssets lists distinct assets present in the store.
	GetAssets(ctx context.Context) ([]string, error)
}

// EpisodeStore provides access to episodes storage. Open episodes are
// replaced in place as the builder advances; closed episodes are final.
type EpisodeStore interface {
	// Upsert inserts a new episode or replaces an existing one by episode_id.
	Upsert(ctx context.Context, ep *domain.Episode) error

	// GetByID retrieves an episode by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, episodeID string) (*domain.Episode, error)

	// GetByTrader retrieves all episodes for an address, ordered by opened_at ASC.
	GetByTrader(ctx context.Context, address string) ([]*domain.Episode, error)

	// GetByStatus retrieves all episodes with the given status,
	// ordered by (address, asset, opened_at).
	GetByStatus(ctx context.Context, status string) ([]*domain.Episode, error)

	// GetAll retrieves every episode, ordered by (address, asset, opened_at).
	GetAll(ctx context.Context) ([]*domain.Episode, error)
}

// WinRateStore holds the periodically refreshed trader win-rate table.
// The evaluator reads whole snapshots, never individual rows.
type WinRateStore interface {
	// Replace swaps in a full snapshot of the table.
	Replace(ctx context.Context, table domain.WinRateTable) error

	// Get returns the current snapshot. The returned map is a copy the
	// caller may hold immutably across an evaluation tick.
	Get(ctx context.Context) (domain.WinRateTable, error)
}

// CorrelationStore holds the periodically refreshed pairwise
// correlation matrix, same snapshot semantics as WinRateStore.
type CorrelationStore interface {
	// Replace swaps in a full snapshot of the matrix.
	Replace(ctx context.Context, matrix domain.CorrelationMatrix) error

	// Get returns a copy of the current snapshot.
	Get(ctx context.Context) (domain.CorrelationMatrix, error)
}

// EpisodeHistoryStore archives closed episodes into columnar storage
// for offline trader research. Archiving the same episode twice is
// harmless; history rows are final.
type EpisodeHistoryStore interface {
	// InsertBulk archives closed episodes. Rejects open episodes.
	InsertBulk(ctx context.Context, episodes []*domain.Episode) error

	// GetByTrader retrieves archived episodes for an address,
	// ordered by closed_at ASC.
	GetByTrader(ctx context.Context, address string) ([]*domain.Episode, error)

	// GetByAssetTimeRange retrieves archived episodes for an asset whose
	// close falls within [start, end] (inclusive).
	GetByAssetTimeRange(ctx context.Context, asset string, start, end int64) ([]*domain.Episode, error)

	// GetResultRs retrieves one trader's R-multiples ordered by close time.
	GetResultRs(ctx context.Context, address string) ([]float64, error)
}

// TicketStore provides access to emitted consensus tickets,
// append-only by ticket_id.
type TicketStore interface {
	// Insert adds a new ticket. Returns ErrDuplicateKey if ticket_id exists.
	Insert(ctx context.Context, t *domain.Ticket) error

	// GetByAsset retrieves all tickets for an asset, ordered by created_at ASC.
	GetByAsset(ctx context.Context, asset string) ([]*domain.Ticket, error)

	// GetByTimeRange retrieves tickets within [start, end] (inclusive),
	// ordered by created_at ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Ticket, error)
}
