// Package replay re-evaluates historical consensus decisions over the
// stored fill history, one evaluation instant at a time.
package replay

import (
	"context"

	"trader-consensus-lab/internal/consensus"
	"trader-consensus-lab/internal/domain"
)

// Tick is one historical evaluation instant for one asset.
type Tick struct {
	Asset  string
	At     int64 // evaluation instant (ms)
	Mid    float64
	Votes  []*domain.Vote
	Result *consensus.ConsensusResult
}

// Engine receives ticks in ascending time order.
type Engine interface {
	OnTick(ctx context.Context, tick *Tick) error
}
