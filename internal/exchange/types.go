package exchange

import (
	"encoding/json"
	"fmt"
	"strings"

	"trader-consensus-lab/internal/domain"
)

// subscribeRequest is the outgoing subscribe frame.
type subscribeRequest struct {
	Method       string       `json:"method"`
	Subscription subscription `json:"subscription"`
}

// subscription identifies one feed. User is set for userFills only.
type subscription struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
}

// key returns the dedup/resubscribe key for a subscription.
func (s subscription) key() string {
	return s.Type + "|" + s.User
}

// Subscription channel types.
const (
	channelUserFills    = "userFills"
	channelAllMids      = "allMids"
	channelSubscribeAck = "subscriptionResponse"
)

// wsEnvelope is the incoming frame: a channel tag plus channel-specific data.
type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// subscribeAck confirms a subscribe request.
type subscribeAck struct {
	Subscription subscription `json:"subscription"`
}

// userFillsData carries a batch of fills for one account.
type userFillsData struct {
	User  string     `json:"user"`
	Fills []wireFill `json:"fills"`
}

// wireFill is the venue's fill representation.
type wireFill struct {
	FillID    string   `json:"fid"`
	Coin      string   `json:"coin"`
	Side      string   `json:"side"` // "B" = buy, "A" = sell
	Size      float64  `json:"sz"`
	Price     float64  `json:"px"`
	Time      int64    `json:"time"`
	ClosedPnl *float64 `json:"closedPnl,omitempty"`
	Fee       float64  `json:"fee"`
}

// allMidsData carries the current mid price per asset.
type allMidsData struct {
	Mids map[string]float64 `json:"mids"`
}

// toDomainFill converts a wire fill for one account into a domain fill.
func toDomainFill(user string, wf wireFill) (*domain.Fill, error) {
	side, err := parseSide(wf.Side)
	if err != nil {
		return nil, fmt.Errorf("fill %s: %w", wf.FillID, err)
	}
	if wf.FillID == "" {
		return nil, fmt.Errorf("fill missing id")
	}
	if wf.Size <= 0 || wf.Price <= 0 {
		return nil, fmt.Errorf("fill %s: non-positive size or price", wf.FillID)
	}

	return &domain.Fill{
		FillID:      wf.FillID,
		Address:     strings.ToLower(user),
		Asset:       wf.Coin,
		Side:        side,
		Size:        wf.Size,
		Price:       wf.Price,
		Timestamp:   wf.Time,
		RealizedPnl: wf.ClosedPnl,
		Fees:        wf.Fee,
	}, nil
}

// parseSide maps the venue side code to a domain side.
func parseSide(s string) (string, error) {
	switch s {
	case "B":
		return domain.FillSideBuy, nil
	case "A":
		return domain.FillSideSell, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}
