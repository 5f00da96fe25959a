package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeEpisodeID computes a deterministic episode_id using SHA256.
// Formula: SHA256(address|asset|direction|opened_at|entry_fill_id)
// The entry fill disambiguates a close-and-reopen landing on the same
// millisecond.
// Returns hex-encoded hash (64 characters).
func ComputeEpisodeID(
	address string,
	asset string,
	direction string,
	openedAt int64,
	entryFillID string,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%s",
		address,
		asset,
		direction,
		openedAt,
		entryFillID,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
