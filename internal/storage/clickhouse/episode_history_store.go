package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/storage"
)

// EpisodeHistoryStore implements storage.EpisodeHistoryStore using ClickHouse.
// The backing table is a ReplacingMergeTree keyed by
// (address, asset, closed_at, episode_id), so re-archiving the same
// closed episode is harmless.
type EpisodeHistoryStore struct {
	conn *Conn
}

// NewEpisodeHistoryStore creates a new EpisodeHistoryStore.
func NewEpisodeHistoryStore(conn *Conn) *EpisodeHistoryStore {
	return &EpisodeHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EpisodeHistoryStore = (*EpisodeHistoryStore)(nil)

// InsertBulk archives closed episodes. Open episodes are rejected:
// history rows are final by construction.
func (s *EpisodeHistoryStore) InsertBulk(ctx context.Context, episodes []*domain.Episode) error {
	if len(episodes) == 0 {
		return nil
	}

	for _, ep := range episodes {
		if ep == nil || ep.EpisodeID == "" {
			return storage.ErrInvalidInput
		}
		if ep.Status != domain.EpisodeStatusClosed {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO episode_history (
			episode_id, address, asset, direction,
			opened_at, closed_at, closed_reason,
			entry_size, entry_vwap, entry_notional, risk_amount, stop_bps,
			exit_vwap, realized_pnl, result_r, total_fees
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, ep := range episodes {
		err = batch.Append(
			ep.EpisodeID, strings.ToLower(ep.Address), ep.Asset, ep.Direction,
			ep.OpenedAt, ep.ClosedAt, ep.ClosedReason,
			ep.EntrySize, ep.EntryVwap, ep.EntryNotional, ep.RiskAmount, ep.StopBps,
			ep.ExitVwap, ep.RealizedPnl, ep.ResultR, ep.TotalFees,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

const episodeHistoryColumns = `
	episode_id, address, asset, direction,
	opened_at, closed_at, closed_reason,
	entry_size, entry_vwap, entry_notional, risk_amount, stop_bps,
	exit_vwap, realized_pnl, result_r, total_fees
`

// GetByTrader retrieves archived episodes for an address, ordered by closed_at ASC.
func (s *EpisodeHistoryStore) GetByTrader(ctx context.Context, address string) ([]*domain.Episode, error) {
	query := `
		SELECT ` + episodeHistoryColumns + `
		FROM episode_history FINAL
		WHERE address = ?
		ORDER BY closed_at ASC, episode_id ASC
	`

	rows, err := s.conn.Query(ctx, query, strings.ToLower(address))
	if err != nil {
		return nil, fmt.Errorf("query episode history by trader: %w", err)
	}
	defer rows.Close()

	return scanEpisodeHistory(rows)
}

// GetByAssetTimeRange retrieves archived episodes for an asset whose
// close falls within [start, end] (inclusive).
func (s *EpisodeHistoryStore) GetByAssetTimeRange(ctx context.Context, asset string, start, end int64) ([]*domain.Episode, error) {
	query := `
		SELECT ` + episodeHistoryColumns + `
		FROM episode_history FINAL
		WHERE asset = ? AND closed_at >= ? AND closed_at <= ?
		ORDER BY closed_at ASC, episode_id ASC
	`

	rows, err := s.conn.Query(ctx, query, asset, start, end)
	if err != nil {
		return nil, fmt.Errorf("query episode history by asset time range: %w", err)
	}
	defer rows.Close()

	return scanEpisodeHistory(rows)
}

// GetResultRs retrieves one trader's R-multiples ordered by close time,
// scanning only the result column.
func (s *EpisodeHistoryStore) GetResultRs(ctx context.Context, address string) ([]float64, error) {
	query := `
		SELECT result_r
		FROM episode_history FINAL
		WHERE address = ?
		ORDER BY closed_at ASC, episode_id ASC
	`

	rows, err := s.conn.Query(ctx, query, strings.ToLower(address))
	if err != nil {
		return nil, fmt.Errorf("query result rs: %w", err)
	}
	defer rows.Close()

	var results []float64
	for rows.Next() {
		var r float64
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan result r: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rs: %w", err)
	}

	return results, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanEpisodeHistory scans multiple rows into a slice of Episode.
// History rows are closed by construction.
func scanEpisodeHistory(rows chRows) ([]*domain.Episode, error) {
	var episodes []*domain.Episode

	for rows.Next() {
		var ep domain.Episode

		err := rows.Scan(
			&ep.EpisodeID, &ep.Address, &ep.Asset, &ep.Direction,
			&ep.OpenedAt, &ep.ClosedAt, &ep.ClosedReason,
			&ep.EntrySize, &ep.EntryVwap, &ep.EntryNotional, &ep.RiskAmount, &ep.StopBps,
			&ep.ExitVwap, &ep.RealizedPnl, &ep.ResultR, &ep.TotalFees,
		)
		if err != nil {
			return nil, fmt.Errorf("scan episode history row: %w", err)
		}

		ep.Status = domain.EpisodeStatusClosed
		episodes = append(episodes, &ep)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episode history rows: %w", err)
	}

	return episodes, nil
}
