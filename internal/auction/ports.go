package auction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mkellner/hammer/pkg/events"
)

// ListingRepository defines listing persistence. All mutations of commercial
// fields go through the version-conditioned UpdateCurrentBid; bypassing it
// reintroduces the race this engine exists to prevent.
type ListingRepository interface {
	// GetByID reads a listing inside a transaction. Returns (nil, nil) when
	// the listing does not exist.
	GetByID(ctx context.Context, tx pgx.Tx, listingID uuid.UUID) (*Listing, error)

	// ListVisibilityRules returns the access rules of a private listing.
	ListVisibilityRules(ctx context.Context, tx pgx.Tx, listingID uuid.UUID) ([]VisibilityRule, error)

	// ListManifest returns the listing's product manifest lines.
	ListManifest(ctx context.Context, tx pgx.Tx, listingID uuid.UUID) ([]ManifestLine, error)

	// UpdateCurrentBid applies the new current bid conditioned on the version
	// read earlier in the same transaction, incrementing the version in the
	// same write. Returns false when the version no longer matches.
	UpdateCurrentBid(ctx context.Context, tx pgx.Tx, listingID uuid.UUID, version int64,
		amount decimal.Decimal, bidderID, profileID uuid.UUID) (bool, error)

	// MarkEnded transitions the auction to ENDED (and the listing to
	// COMPLETED), recording the winner when there is one.
	MarkEnded(ctx context.Context, tx pgx.Tx, listingID uuid.UUID, winnerID, winnerProfileID *uuid.UUID) error

	// ListDueAuctions returns ids of ACTIVE auctions whose end time has
	// passed. Non-transactional read used by the settlement sweep.
	ListDueAuctions(ctx context.Context, asOf time.Time, limit int) ([]uuid.UUID, error)

	// ListUpcomingEndTimes returns (id, end time) pairs of ACTIVE auctions
	// ending within the horizon, for schedule registration.
	ListUpcomingEndTimes(ctx context.Context, until time.Time, limit int) (map[uuid.UUID]time.Time, error)
}

// BidRepository defines bid persistence.
type BidRepository interface {
	// Insert saves a new bid within a transaction.
	Insert(ctx context.Context, tx pgx.Tx, bid *Bid) error

	// DemoteWinning clears is_winning_bid on every winning bid of the
	// listing except the given one (uuid.Nil = demote all) and returns the
	// demoted bidders.
	DemoteWinning(ctx context.Context, tx pgx.Tx, listingID, exceptBidID uuid.UUID) ([]DemotedBid, error)

	// HasRecentDuplicate reports whether the bidder placed the identical
	// amount on the listing within the window.
	HasRecentDuplicate(ctx context.Context, tx pgx.Tx, listingID, bidderID uuid.UUID,
		amount decimal.Decimal, window time.Duration) (bool, error)

	// GetWinning returns the listing's current winning bid, newest first, or
	// (nil, nil) when there is none.
	GetWinning(ctx context.Context, tx pgx.Tx, listingID uuid.UUID) (*Bid, error)

	// ListByListing returns all bids for a listing, newest first.
	ListByListing(ctx context.Context, listingID uuid.UUID) ([]*Bid, error)
}

// BuyerProfileRepository resolves the buyer profile a bid is placed under.
type BuyerProfileRepository interface {
	// GetByID returns (nil, nil) when the profile does not exist.
	GetByID(ctx context.Context, tx pgx.Tx, profileID uuid.UUID) (*BuyerProfile, error)
}

// HistoryRepository appends to the immutable bid audit trail.
type HistoryRepository interface {
	Append(ctx context.Context, tx pgx.Tx, entry *HistoryEntry) error
	ListByListing(ctx context.Context, listingID uuid.UUID) ([]*HistoryEntry, error)
}

// OrderRepository creates the order produced by settlement or buy-now.
type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *Order) error
}

// OutboxRepository queues outcome events in the placement/settlement
// transaction.
type OutboxRepository interface {
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}

// EndSchedule is the external scheduling resource holding auction end-time
// triggers. Release after settlement is best-effort: a failure is reported in
// the result flags, never rolled into the transaction outcome.
type EndSchedule interface {
	Register(ctx context.Context, listingID uuid.UUID, endsAt time.Time) error
	Release(ctx context.Context, listingID uuid.UUID) error
	Due(ctx context.Context, asOf time.Time, limit int) ([]uuid.UUID, error)
}
