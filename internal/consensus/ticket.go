package consensus

import "trader-consensus-lab/internal/domain"

// TicketInstrumentation projects a passing result into a flat audit
// ticket. Returns nil for a failing result. The input result is never
// mutated; voter addresses come from the result's agreeing headcount
// recorded at evaluation time, so the caller must pass the same votes
// the result was computed from.
func TicketInstrumentation(result *ConsensusResult, votes []*domain.Vote, windowMs int64, stopBps float64) *domain.Ticket {
	if result == nil || !result.Passes {
		return nil
	}

	agree := agreeingVotes(votes, result.Direction)
	addrs := make([]string, len(agree))
	for i, v := range agree {
		addrs[i] = v.Address
	}

	return &domain.Ticket{
		Direction:      result.Direction,
		NTraders:       result.Supermajority.Total,
		NAgree:         len(agree),
		EffectiveK:     result.EffectiveK.EffectiveK,
		VoterAddresses: addrs,
		WindowMs:       windowMs,
		StopBps:        stopBps,
		CreatedAt:      result.EvaluatedAt,
	}
}
