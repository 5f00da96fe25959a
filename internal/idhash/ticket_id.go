package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTicketID computes a deterministic ticket_id using SHA256.
// Formula: SHA256(asset|direction|created_at)
// Returns hex-encoded hash (64 characters).
func ComputeTicketID(
	asset string,
	direction string,
	createdAt int64,
) string {
	data := fmt.Sprintf("%s|%s|%d",
		asset,
		direction,
		createdAt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
