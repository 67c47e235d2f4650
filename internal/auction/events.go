package auction

import (
	"github.com/google/uuid"
)

// Routing keys for outcome events relayed to the broker.
const (
	EventTypeBidPlaced      = "auction.bid.placed"
	EventTypeAuctionSettled = "auction.settled"
)

// OutbidEntry names a bidder whose winning bid was demoted by a later
// placement. The notifier turns these into "you've been outbid" messages.
type OutbidEntry struct {
	UserID uuid.UUID `json:"user_id"`
	Amount string    `json:"amount"`
}

// BidPlacedEvent is the outcome event of a successful placement.
type BidPlacedEvent struct {
	ListingID       uuid.UUID     `json:"listing_id"`
	BidderUserID    uuid.UUID     `json:"bidder_user_id"`
	Amount          string        `json:"amount"`
	Currency        string        `json:"currency"`
	IsWinning       bool          `json:"is_winning"`
	PreviousWinners []OutbidEntry `json:"previous_winners"`
}

// AuctionSettledEvent is the outcome event of a settlement. The scheduling
// collaborator uses it to deregister the now-irrelevant end-time trigger.
type AuctionSettledEvent struct {
	ListingID    uuid.UUID  `json:"listing_id"`
	WinnerUserID *uuid.UUID `json:"winner_user_id,omitempty"`
	OrderID      *uuid.UUID `json:"order_id,omitempty"`
	HasWinner    bool       `json:"has_winner"`
}
