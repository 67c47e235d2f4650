package api

import "github.com/shopspring/decimal"

// PlaceBidRequest is the JSON body of POST /listings/:listing_id/bids.
type PlaceBidRequest struct {
	BidderUserID   string `json:"bidder_user_id" binding:"required"`
	BuyerProfileID string `json:"buyer_profile_id" binding:"required"`
	Amount         string `json:"amount" binding:"required"`
	Currency       string `json:"currency" binding:"required"`
	BidType        string `json:"bid_type"`
}

// PlaceBidResponse is returned on a successful placement.
type PlaceBidResponse struct {
	BidID     string `json:"bid_id"`
	ListingID string `json:"listing_id"`
	Amount    string `json:"amount"`
	IsWinning bool   `json:"is_winning"`
	Settled   bool   `json:"settled"`
}

// RejectionResponse is the error body for refused operations.
type RejectionResponse struct {
	Code                 string  `json:"code"`
	Message              string  `json:"message"`
	MinimumRequiredBid   *string `json:"minimum_required_bid,omitempty"`
	SuggestedBid         *string `json:"suggested_bid,omitempty"`
	TimeRemainingSeconds *int64  `json:"time_remaining_seconds,omitempty"`
	Attempts             int     `json:"attempts,omitempty"`
}

// BidResponse is one bid in GET /listings/:listing_id/bids.
type BidResponse struct {
	BidID        string `json:"bid_id"`
	ListingID    string `json:"listing_id"`
	BidderUserID string `json:"bidder_user_id"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	BidType      string `json:"bid_type"`
	IsWinning    bool   `json:"is_winning"`
	PlacedAt     string `json:"placed_at"`
}

// HistoryEntryResponse is one audit row in GET /listings/:listing_id/history.
type HistoryEntryResponse struct {
	PreviousAmount *string `json:"previous_amount,omitempty"`
	NewAmount      string  `json:"new_amount"`
	BidderUserID   *string `json:"bidder_user_id,omitempty"`
	Action         string  `json:"action"`
	CreatedAt      string  `json:"created_at"`
}

// SettlementResponse reports what POST /listings/:listing_id/settlement did.
type SettlementResponse struct {
	AuctionUpdated   bool    `json:"auction_updated"`
	OrderCreated     bool    `json:"order_created"`
	WinnerUserID     *string `json:"winner_user_id,omitempty"`
	OrderID          *string `json:"order_id,omitempty"`
	EventQueued      bool    `json:"event_queued"`
	ScheduleReleased bool    `json:"schedule_released"`
}

func decimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
