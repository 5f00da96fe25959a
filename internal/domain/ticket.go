package domain

// Ticket is the flat audit record projected from a passing consensus
// evaluation, suitable for downstream logging and alerting.
// Corresponds to tickets table in PostgreSQL.
type Ticket struct {
	TicketID       string   // deterministic hash, assigned at persist time
	Asset          string   // assigned by the caller, empty in the pure projection
	Direction      string   // "long" | "short"
	NTraders       int      // all voters at evaluation time
	NAgree         int      // agreeing voters
	EffectiveK     float64  // correlation-discounted agreeing count
	VoterAddresses []string // agreeing voter addresses, lowercased
	WindowMs       int64    // evaluation window used
	StopBps        float64  // policy stop used for R normalization
	CreatedAt      int64    // evaluation timestamp (ms)
}
