package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListingStatus is the overall commercial state of a listing.
type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "ACTIVE"
	ListingStatusCompleted ListingStatus = "COMPLETED"
	ListingStatusCancelled ListingStatus = "CANCELLED"
)

// AuctionStatus is the state of the bidding window on a listing.
type AuctionStatus string

const (
	AuctionStatusActive    AuctionStatus = "ACTIVE"
	AuctionStatusEnded     AuctionStatus = "ENDED"
	AuctionStatusCancelled AuctionStatus = "CANCELLED"
)

// IncrementType selects how the minimum required next bid is derived from the
// current bid.
type IncrementType string

const (
	IncrementFixed      IncrementType = "FIXED"
	IncrementPercentage IncrementType = "PERCENTAGE"
)

// BidType distinguishes regular bids from buy-now bids, which end the auction
// immediately at the offered price.
type BidType string

const (
	BidTypeRegular BidType = "REGULAR"
	BidTypeBuyNow  BidType = "BUY_NOW"
)

// HistoryAction tags entries in the append-only bid history.
type HistoryAction string

const (
	HistoryBidPlaced    HistoryAction = "BID_PLACED"
	HistoryBidRetracted HistoryAction = "BID_RETRACTED"
	HistoryAuctionWon   HistoryAction = "AUCTION_WON"
	HistoryAuctionEnded HistoryAction = "AUCTION_ENDED"
)

// OrderStatus is the lifecycle state of an order created at settlement.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "PENDING"
)

// TriggerSource identifies who asked for a settlement.
type TriggerSource string

const (
	TriggerScheduler TriggerSource = "SCHEDULER"
	TriggerManual    TriggerSource = "MANUAL"
)

// VerificationStatus of a buyer profile. Only verified buyers may bid.
type VerificationStatus string

const (
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationPending  VerificationStatus = "PENDING"
	VerificationRejected VerificationStatus = "REJECTED"
)

// Listing is one auction. Its commercial fields (current bid, current bidder,
// version) are mutated only by the placement transaction; auction_status and
// winner fields only by settlement.
type Listing struct {
	ID                     uuid.UUID        `db:"id"`
	PublicID               string           `db:"public_id"`
	Status                 ListingStatus    `db:"status"`
	AuctionStatus          AuctionStatus    `db:"auction_status"`
	MinimumBid             decimal.Decimal  `db:"minimum_bid"`
	Currency               string           `db:"currency"`
	CurrentBid             *decimal.Decimal `db:"current_bid"`
	BidIncrementValue      decimal.Decimal  `db:"bid_increment_value"`
	BidIncrementType       IncrementType    `db:"bid_increment_type"`
	AuctionEndTime         *time.Time       `db:"auction_end_time"`
	SellerUserID           uuid.UUID        `db:"seller_user_id"`
	CurrentBidderUserID    *uuid.UUID       `db:"current_bidder_user_id"`
	CurrentBidderProfileID *uuid.UUID       `db:"current_bidder_buyer_profile_id"`
	WinnerUserID           *uuid.UUID       `db:"winner_user_id"`
	WinnerProfileID        *uuid.UUID       `db:"winner_buyer_profile_id"`
	ShippingCost           decimal.Decimal  `db:"shipping_cost"`
	IsPrivate              bool             `db:"is_private"`
	Version                int64            `db:"version"`
	CreatedAt              time.Time        `db:"created_at"`
	UpdatedAt              time.Time        `db:"updated_at"`
}

// Bid is one admitted offer against a listing. At most one bid per listing has
// IsWinning set at any committed point in time.
type Bid struct {
	ID              uuid.UUID       `db:"id"`
	ListingID       uuid.UUID       `db:"auction_listing_id"`
	BidderUserID    uuid.UUID       `db:"bidder_user_id"`
	BidderProfileID uuid.UUID       `db:"bidder_buyer_profile_id"`
	Amount          decimal.Decimal `db:"bid_amount"`
	Currency        string          `db:"bid_amount_currency"`
	Type            BidType         `db:"bid_type"`
	IsWinning       bool            `db:"is_winning_bid"`
	PlacedAt        time.Time       `db:"bid_timestamp"`
}

// HistoryEntry is one immutable row of the bid audit trail.
type HistoryEntry struct {
	ID             uuid.UUID        `db:"id"`
	ListingID      uuid.UUID        `db:"auction_listing_id"`
	PreviousAmount *decimal.Decimal `db:"previous_bid_amount"`
	NewAmount      decimal.Decimal  `db:"new_bid_amount"`
	BidderUserID   uuid.UUID        `db:"bidder_user_id"`
	Action         HistoryAction    `db:"action_type"`
	CreatedAt      time.Time        `db:"created_at"`
}

// BuyerProfile is the buyer identity a bid is placed under.
type BuyerProfile struct {
	ID           uuid.UUID          `db:"id"`
	UserID       uuid.UUID          `db:"user_id"`
	Verification VerificationStatus `db:"verification_status"`
}

// VisibilityRuleType controls access to private listings.
type VisibilityRuleType string

const (
	VisibilityInclude VisibilityRuleType = "INCLUDE"
	VisibilityExclude VisibilityRuleType = "EXCLUDE"
)

// VisibilityRule grants or denies a user access to a private listing.
type VisibilityRule struct {
	ListingID uuid.UUID          `db:"auction_listing_id"`
	RuleType  VisibilityRuleType `db:"rule_type"`
	UserID    uuid.UUID          `db:"user_id"`
}

// ManifestLine is one product line of a listing's manifest. Order items are
// derived from it 1:1 at settlement.
type ManifestLine struct {
	ProductID uuid.UUID `db:"product_id"`
	Title     string    `db:"title"`
}

// Order is created exactly once per winning listing.
type Order struct {
	ID             uuid.UUID       `db:"id"`
	ListingID      uuid.UUID       `db:"auction_listing_id"`
	BuyerUserID    uuid.UUID       `db:"buyer_user_id"`
	BuyerProfileID uuid.UUID       `db:"buyer_profile_id"`
	SellerUserID   uuid.UUID       `db:"seller_user_id"`
	TotalAmount    decimal.Decimal `db:"total_amount"`
	Currency       string          `db:"currency"`
	ShippingCost   decimal.Decimal `db:"shipping_cost"`
	Status         OrderStatus     `db:"order_status"`
	PaymentDueDate time.Time       `db:"payment_due_date"`
	CreatedAt      time.Time       `db:"created_at"`
	Items          []OrderItem     `db:"-"`
}

// OrderItem is one manifest line priced at an even share of the total.
type OrderItem struct {
	ID        uuid.UUID       `db:"id"`
	OrderID   uuid.UUID       `db:"order_id"`
	ProductID uuid.UUID       `db:"product_id"`
	Title     string          `db:"title"`
	UnitPrice decimal.Decimal `db:"unit_price"`
}

// DemotedBid records a bidder who lost the winning flag during a placement,
// used to build the "you've been outbid" portion of the outcome event.
type DemotedBid struct {
	BidderUserID uuid.UUID
	Amount       decimal.Decimal
}
