package episode

import (
	"math"
	"sort"
	"strings"

	"trader-consensus-lab/internal/domain"
	"trader-consensus-lab/internal/idhash"
)

// flatEpsilon is the net size below which a position counts as flat.
const flatEpsilon = 1e-9

// Builder is the per-(trader, asset) position state machine. It must
// be driven by a single logical owner applying fills in strict
// timestamp order; it performs no locking itself.
type Builder struct {
	cfg     domain.EpisodeConfig
	address string
	asset   string

	open    *domain.Episode
	openNet float64 // signed remaining size of the open episode

	// exit volume bookkeeping for the open episode's running exit VWAP
	exitSize     float64
	exitNotional float64
}

// NewBuilder creates a builder starting flat.
func NewBuilder(address, asset string, cfg domain.EpisodeConfig) *Builder {
	return &Builder{
		cfg:     cfg,
		address: strings.ToLower(address),
		asset:   asset,
	}
}

// Open returns the currently open episode, or nil when flat. The
// returned value is a snapshot; the builder keeps ownership of its
// internal state.
func (b *Builder) Open() *domain.Episode {
	if b.open == nil {
		return nil
	}
	snap := cloneEpisode(b.open)
	return snap
}

// Apply advances the state machine by one fill and returns the
// episodes completed or opened by it, in order: zero for a plain add
// or partial close, one closed episode for a full close, and for a
// direction flip the closed episode followed by the newly opened one.
// The flip fill participates in both but its size and fees are
// consumed exactly once: the closing portion with its fee share zeroes
// the old episode, the excess opens the new one at the same price and
// timestamp.
func (b *Builder) Apply(f *domain.Fill) []*domain.Episode {
	signed := f.SignedSize()

	// Flat → open
	if b.open == nil {
		b.openFromFill(f, math.Abs(signed), signed > 0, f.Fees)
		return []*domain.Episode{cloneEpisode(b.open)}
	}

	sameDirection := (b.openNet > 0) == (signed > 0)
	if sameDirection {
		b.addEntry(f, math.Abs(signed))
		return nil
	}

	openAbs := math.Abs(b.openNet)
	fillAbs := math.Abs(signed)

	// Partial or full close
	if fillAbs <= openAbs+flatEpsilon {
		b.addExit(f, fillAbs, f.Fees)
		b.openNet += signed
		if math.Abs(b.openNet) < flatEpsilon {
			closed := b.close(f.Timestamp, domain.ClosedReasonFullClose)
			return []*domain.Episode{closed}
		}
		return nil
	}

	// Atomic flip: the closing portion zeroes the old episode, the
	// excess opens the opposite direction in the same step. The fee is
	// split by size so the two episodes together carry exactly what was
	// paid.
	closingSize := openAbs
	excess := fillAbs - openAbs
	closingFee := f.Fees * (closingSize / fillAbs)

	b.addExit(f, closingSize, closingFee)
	b.openNet = 0
	closed := b.close(f.Timestamp, domain.ClosedReasonDirectionFlip)

	b.openFromFill(f, excess, signed > 0, f.Fees-closingFee)
	opened := cloneEpisode(b.open)

	return []*domain.Episode{closed, opened}
}

// openFromFill starts a new episode from flat. fee is the portion of
// the fill's fee attributed to this episode (less than f.Fees when the
// fill also closed the previous episode).
func (b *Builder) openFromFill(f *domain.Fill, size float64, long bool, fee float64) {
	direction := domain.DirectionShort
	if long {
		direction = domain.DirectionLong
	}

	notional := f.Price * size
	ep := &domain.Episode{
		EpisodeID:     idhash.ComputeEpisodeID(b.address, b.asset, direction, f.Timestamp, f.FillID),
		Address:       b.address,
		Asset:         b.asset,
		Direction:     direction,
		Status:        domain.EpisodeStatusOpen,
		OpenedAt:      f.Timestamp,
		EntrySize:     size,
		EntryVwap:     f.Price,
		EntryNotional: notional,
		RiskAmount:    notional * b.cfg.DefaultStopFraction,
		StopBps:       b.cfg.DefaultStopFraction * 10000,
		EntryFills:    []string{f.FillID},
		TotalFees:     fee,
	}

	b.open = ep
	b.exitSize = 0
	b.exitNotional = 0
	if long {
		b.openNet = size
	} else {
		b.openNet = -size
	}
}

// addEntry folds a same-direction fill into the running entry VWAP.
// Risk tracks the accumulated entry notional until the episode closes.
func (b *Builder) addEntry(f *domain.Fill, size float64) {
	ep := b.open
	ep.EntryNotional += f.Price * size
	ep.EntrySize += size
	ep.EntryVwap = ep.EntryNotional / ep.EntrySize
	ep.RiskAmount = ep.EntryNotional * b.cfg.DefaultStopFraction
	ep.EntryFills = append(ep.EntryFills, f.FillID)
	ep.TotalFees += f.Fees

	if b.openNet > 0 {
		b.openNet += size
	} else {
		b.openNet -= size
	}
}

// addExit accumulates an opposite-direction fill into the exit VWAP
// using only the consumed portion of its size, and fee is the matching
// portion of the fill's fee. Venue-reported realized PnL is taken
// verbatim, never recomputed from VWAP deltas.
func (b *Builder) addExit(f *domain.Fill, size, fee float64) {
	ep := b.open
	b.exitSize += size
	b.exitNotional += f.Price * size
	ep.ExitVwap = b.exitNotional / b.exitSize
	ep.ExitFills = append(ep.ExitFills, f.FillID)
	ep.TotalFees += fee
	if f.RealizedPnl != nil {
		ep.RealizedPnl += *f.RealizedPnl
	}
}

// close finalizes the open episode and returns it. The builder goes
// flat.
func (b *Builder) close(timestamp int64, reason string) *domain.Episode {
	ep := b.open
	ep.Status = domain.EpisodeStatusClosed
	ep.ClosedAt = timestamp
	ep.ClosedReason = reason
	ep.ResultR = CalculateR(ep.RealizedPnl, ep.RiskAmount, b.cfg.RMin, b.cfg.RMax)

	b.open = nil
	b.openNet = 0
	b.exitSize = 0
	b.exitNotional = 0
	return ep
}

// builderKey groups fills per (address, asset).
type builderKey struct {
	address string
	asset   string
}

// Build reconstructs episodes from a fill stream. Fills are grouped by
// (address, asset) and processed in chronological order within each
// group, ties broken by arrival order. Returns all episodes, closed
// and still open, ordered by (address, asset, opened_at).
func Build(fills []*domain.Fill, cfg domain.EpisodeConfig) []*domain.Episode {
	if len(fills) == 0 {
		return nil
	}

	// Stable sort preserves arrival order for equal timestamps.
	ordered := make([]*domain.Fill, len(fills))
	copy(ordered, fills)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	builders := make(map[builderKey]*Builder)
	episodesByKey := make(map[builderKey][]*domain.Episode)
	var keys []builderKey

	for _, f := range ordered {
		key := builderKey{address: strings.ToLower(f.Address), asset: f.Asset}
		b, ok := builders[key]
		if !ok {
			b = NewBuilder(f.Address, f.Asset, cfg)
			builders[key] = b
			keys = append(keys, key)
		}

		for _, ep := range b.Apply(f) {
			episodesByKey[key] = upsertEpisode(episodesByKey[key], ep)
		}
	}

	// Capture still-open episodes with their current snapshot state.
	for key, b := range builders {
		if open := b.Open(); open != nil {
			episodesByKey[key] = upsertEpisode(episodesByKey[key], open)
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].address != keys[j].address {
			return keys[i].address < keys[j].address
		}
		return keys[i].asset < keys[j].asset
	})

	var out []*domain.Episode
	for _, key := range keys {
		out = append(out, episodesByKey[key]...)
	}
	return out
}

// upsertEpisode replaces an earlier snapshot of the same episode
// (matched by EpisodeID) or appends a new one, preserving open order.
func upsertEpisode(eps []*domain.Episode, ep *domain.Episode) []*domain.Episode {
	for i, existing := range eps {
		if existing.EpisodeID == ep.EpisodeID {
			eps[i] = ep
			return eps
		}
	}
	return append(eps, ep)
}

// OpenEpisodes filters episodes by open status.
func OpenEpisodes(episodes []*domain.Episode) []*domain.Episode {
	var out []*domain.Episode
	for _, ep := range episodes {
		if ep.Status == domain.EpisodeStatusOpen {
			out = append(out, ep)
		}
	}
	return out
}

// ClosedEpisodes filters episodes by closed status.
func ClosedEpisodes(episodes []*domain.Episode) []*domain.Episode {
	var out []*domain.Episode
	for _, ep := range episodes {
		if ep.Status == domain.EpisodeStatusClosed {
			out = append(out, ep)
		}
	}
	return out
}

// StaleOpenEpisodes returns open episodes older than the configured
// timeout at the given instant, for operator alerting.
func StaleOpenEpisodes(episodes []*domain.Episode, now int64, cfg domain.EpisodeConfig) []*domain.Episode {
	maxAgeMs := int64(cfg.TimeoutHours * 3600 * 1000)
	var out []*domain.Episode
	for _, ep := range episodes {
		if ep.Status == domain.EpisodeStatusOpen && now-ep.OpenedAt > maxAgeMs {
			out = append(out, ep)
		}
	}
	return out
}

// cloneEpisode deep-copies an episode so callers never observe builder
// mutations.
func cloneEpisode(ep *domain.Episode) *domain.Episode {
	snap := *ep
	snap.EntryFills = append([]string(nil), ep.EntryFills...)
	snap.ExitFills = append([]string(nil), ep.ExitFills...)
	return &snap
}
