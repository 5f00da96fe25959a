package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/storage"
)

// TicketStore implements storage.TicketStore using PostgreSQL.
type TicketStore struct {
	pool *Pool
}

// NewTicketStore creates a new TicketStore.
func NewTicketStore(pool *Pool) *TicketStore {
	return &TicketStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TicketStore = (*TicketStore)(nil)

// Insert adds a new ticket. Returns ErrDuplicateKey if ticket_id exists.
func (s *TicketStore) Insert(ctx context.Context, t *domain.Ticket) error {
	if t == nil || t.TicketID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tickets (
			ticket_id, asset, direction, n_traders, n_agree, effective_k,
			voter_addresses, window_ms, stop_bps, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		t.TicketID,
		t.Asset,
		t.Direction,
		t.NTraders,
		t.NAgree,
		t.EffectiveK,
		t.VoterAddresses,
		t.WindowMs,
		t.StopBps,
		t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

// GetByAsset retrieves all tickets for an asset, ordered by created_at ASC.
func (s *TicketStore) GetByAsset(ctx context.Context, asset string) ([]*domain.Ticket, error) {
	query := `
		SELECT ticket_id, asset, direction, n_traders, n_agree, effective_k,
		       voter_addresses, window_ms, stop_bps, created_at
		FROM tickets
		WHERE asset = $1
		ORDER BY created_at ASC, ticket_id ASC
	`

	rows, err := s.pool.Query(ctx, query, asset)
	if err != nil {
		return nil, fmt.Errorf("get tickets by asset: %w", err)
	}
	defer rows.Close()

	return scanTickets(rows)
}

// GetByTimeRange retrieves tickets within [start, end] (inclusive).
func (s *TicketStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Ticket, error) {
	query := `
		SELECT ticket_id, asset, direction, n_traders, n_agree, effective_k,
		       voter_addresses, window_ms, stop_bps, created_at
		FROM tickets
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at ASC, ticket_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get tickets by time range: %w", err)
	}
	defer rows.Close()

	return scanTickets(rows)
}

// scanTickets scans multiple rows into a slice of Ticket.
func scanTickets(rows pgx.Rows) ([]*domain.Ticket, error) {
	var tickets []*domain.Ticket

	for rows.Next() {
		var t domain.Ticket

		err := rows.Scan(
			&t.TicketID,
			&t.Asset,
			&t.Direction,
			&t.NTraders,
			&t.NAgree,
			&t.EffectiveK,
			&t.VoterAddresses,
			&t.WindowMs,
			&t.StopBps,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}

		tickets = append(tickets, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickets: %w", err)
	}

	return tickets, nil
}
