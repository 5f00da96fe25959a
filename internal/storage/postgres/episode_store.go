package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/storage"
)

// EpisodeStore implements storage.EpisodeStore using PostgreSQL.
type EpisodeStore struct {
	pool *Pool
}

// NewEpisodeStore creates a new EpisodeStore.
func NewEpisodeStore(pool *Pool) *EpisodeStore {
	return &EpisodeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EpisodeStore = (*EpisodeStore)(nil)

const episodeColumns = `
	episode_id, address, asset, direction, status,
	opened_at, entry_size, entry_vwap, entry_notional, risk_amount, stop_bps, entry_fills,
	closed_at, exit_vwap, exit_fills, closed_reason,
	realized_pnl, result_r, total_fees
`

// Upsert inserts a new episode or replaces an existing one by episode_id.
// Open episodes advance in place as fills arrive.
func (s *EpisodeStore) Upsert(ctx context.Context, ep *domain.Episode) error {
	if ep == nil || ep.EpisodeID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO episodes (` + episodeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (episode_id) DO UPDATE SET
			status = EXCLUDED.status,
			entry_size = EXCLUDED.entry_size,
			entry_vwap = EXCLUDED.entry_vwap,
			entry_notional = EXCLUDED.entry_notional,
			risk_amount = EXCLUDED.risk_amount,
			entry_fills = EXCLUDED.entry_fills,
			closed_at = EXCLUDED.closed_at,
			exit_vwap = EXCLUDED.exit_vwap,
			exit_fills = EXCLUDED.exit_fills,
			closed_reason = EXCLUDED.closed_reason,
			realized_pnl = EXCLUDED.realized_pnl,
			result_r = EXCLUDED.result_r,
			total_fees = EXCLUDED.total_fees
	`

	_, err := s.pool.Exec(ctx, query,
		ep.EpisodeID,
		strings.ToLower(ep.Address),
		ep.Asset,
		ep.Direction,
		ep.Status,
		ep.OpenedAt,
		ep.EntrySize,
		ep.EntryVwap,
		ep.EntryNotional,
		ep.RiskAmount,
		ep.StopBps,
		ep.EntryFills,
		ep.ClosedAt,
		ep.ExitVwap,
		ep.ExitFills,
		ep.ClosedReason,
		ep.RealizedPnl,
		ep.ResultR,
		ep.TotalFees,
	)
	if err != nil {
		return fmt.Errorf("upsert episode: %w", err)
	}
	return nil
}

// GetByID retrieves an episode by its ID. Returns ErrNotFound if not exists.
func (s *EpisodeStore) GetByID(ctx context.Context, episodeID string) (*domain.Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE episode_id = $1`

	row := s.pool.QueryRow(ctx, query, episodeID)

	ep, err := scanEpisode(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get episode by id: %w", err)
	}
	return ep, nil
}

// GetByTrader retrieves all episodes for an address, ordered by opened_at ASC.
func (s *EpisodeStore) GetByTrader(ctx context.Context, address string) ([]*domain.Episode, error) {
	query := `
		SELECT ` + episodeColumns + `
		FROM episodes
		WHERE address = $1
		ORDER BY opened_at ASC, episode_id ASC
	`

	rows, err := s.pool.Query(ctx, query, strings.ToLower(address))
	if err != nil {
		return nil, fmt.Errorf("get episodes by trader: %w", err)
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

// GetByStatus retrieves all episodes with the given status.
func (s *EpisodeStore) GetByStatus(ctx context.Context, status string) ([]*domain.Episode, error) {
	query := `
		SELECT ` + episodeColumns + `
		FROM episodes
		WHERE status = $1
		ORDER BY address ASC, asset ASC, opened_at ASC, episode_id ASC
	`

	rows, err := s.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("get episodes by status: %w", err)
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

// GetAll retrieves every episode, ordered by (address, asset, opened_at).
func (s *EpisodeStore) GetAll(ctx context.Context) ([]*domain.Episode, error) {
	query := `
		SELECT ` + episodeColumns + `
		FROM episodes
		ORDER BY address ASC, asset ASC, opened_at ASC, episode_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all episodes: %w", err)
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

// scanEpisode scans a single row into an Episode.
func scanEpisode(row pgx.Row) (*domain.Episode, error) {
	var ep domain.Episode

	err := row.Scan(
		&ep.EpisodeID,
		&ep.Address,
		&ep.Asset,
		&ep.Direction,
		&ep.Status,
		&ep.OpenedAt,
		&ep.EntrySize,
		&ep.EntryVwap,
		&ep.EntryNotional,
		&ep.RiskAmount,
		&ep.StopBps,
		&ep.EntryFills,
		&ep.ClosedAt,
		&ep.ExitVwap,
		&ep.ExitFills,
		&ep.ClosedReason,
		&ep.RealizedPnl,
		&ep.ResultR,
		&ep.TotalFees,
	)
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

// scanEpisodes scans multiple rows into a slice of Episode.
func scanEpisodes(rows pgx.Rows) ([]*domain.Episode, error) {
	var episodes []*domain.Episode

	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		episodes = append(episodes, ep)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episodes: %w", err)
	}

	return episodes, nil
}
