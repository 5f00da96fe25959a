package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/storage"
)

// FillStore implements storage.FillStore using PostgreSQL.
type FillStore struct {
	pool *Pool
}

// NewFillStore creates a new FillStore.
func NewFillStore(pool *Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FillStore = (*FillStore)(nil)

const insertFillQuery = `
	INSERT INTO fills (
		fill_id, address, asset, side, size, price, timestamp, realized_pnl, fees
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// Insert adds a new fill. Returns ErrDuplicateKey if fill_id exists.
func (s *FillStore) Insert(ctx context.Context, f *domain.Fill) error {
	if f == nil || f.FillID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertFillQuery,
		f.FillID,
		strings.ToLower(f.Address),
		f.Asset,
		f.Side,
		f.Size,
		f.Price,
		f.Timestamp,
		f.RealizedPnl,
		f.Fees,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert fill: %w", err)
	}
	return nil
}

// InsertBulk adds multiple fills atomically. Fails entire batch on any duplicate.
func (s *FillStore) InsertBulk(ctx context.Context, fills []*domain.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, f := range fills {
		if f == nil || f.FillID == "" {
			return storage.ErrInvalidInput
		}

		_, err := tx.Exec(ctx, insertFillQuery,
			f.FillID,
			strings.ToLower(f.Address),
			f.Asset,
			f.Side,
			f.Size,
			f.Price,
			f.Timestamp,
			f.RealizedPnl,
			f.Fees,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert fill in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByTraderAsset retrieves all fills for one (address, asset),
// ordered by timestamp ASC, fill_id ASC.
func (s *FillStore) GetByTraderAsset(ctx context.Context, address, asset string) ([]*domain.Fill, error) {
	query := `
		SELECT fill_id, address, asset, side, size, price, timestamp, realized_pnl, fees, created_at
		FROM fills
		WHERE address = $1 AND asset = $2
		ORDER BY timestamp ASC, fill_id ASC
	`

	rows, err := s.pool.Query(ctx, query, strings.ToLower(address), asset)
	if err != nil {
		return nil, fmt.Errorf("get fills by trader asset: %w", err)
	}
	defer rows.Close()

	return scanFills(rows)
}

// GetByAsset retrieves fills for an asset within [start, end] (inclusive).
func (s *FillStore) GetByAsset(ctx context.Context, asset string, start, end int64) ([]*domain.Fill, error) {
	query := `
		SELECT fill_id, address, asset, side, size, price, timestamp, realized_pnl, fees, created_at
		FROM fills
		WHERE asset = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC, fill_id ASC
	`

	rows, err := s.pool.Query(ctx, query, asset, start, end)
	if err != nil {
		return nil, fmt.Errorf("get fills by asset: %w", err)
	}
	defer rows.Close()

	return scanFills(rows)
}

// GetAssets lists distinct assets present in the store.
func (s *FillStore) GetAssets(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT asset FROM fills ORDER BY asset ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get assets: %w", err)
	}
	defer rows.Close()

	var assets []string
	for rows.Next() {
		var asset string
		if err := rows.Scan(&asset); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}

	return assets, nil
}

// scanFills scans multiple rows into a slice of Fill.
func scanFills(rows pgx.Rows) ([]*domain.Fill, error) {
	var fills []*domain.Fill

	for rows.Next() {
		var f domain.Fill

		err := rows.Scan(
			&f.FillID,
			&f.Address,
			&f.Asset,
			&f.Side,
			&f.Size,
			&f.Price,
			&f.Timestamp,
			&f.RealizedPnl,
			&f.Fees,
			&f.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fill: %w", err)
		}

		fills = append(fills, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fills: %w", err)
	}

	return fills, nil
}
