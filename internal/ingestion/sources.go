package ingestion

import (
	"context"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/exchange"
)

// FillSource provides raw fills from external sources.
type FillSource interface {
	// Fetch returns fills for one account within time range [from, to] (inclusive).
	// Fills may be unordered; Manager enforces deterministic ordering.
	Fetch(ctx context.Context, address string, from, to int64) ([]*domain.Fill, error)
}

// MidSource provides current mid prices per asset.
type MidSource interface {
	AllMids(ctx context.Context) (map[string]float64, error)
}

// InfoFillSource adapts exchange.InfoClient to FillSource.
type InfoFillSource struct {
	Client *exchange.InfoClient
}

// Fetch returns fills for an account from the venue's info endpoint.
func (s *InfoFillSource) Fetch(ctx context.Context, address string, from, to int64) ([]*domain.Fill, error) {
	return s.Client.UserFills(ctx, address, from, to)
}

// Compile-time interface check.
var _ FillSource = (*InfoFillSource)(nil)
