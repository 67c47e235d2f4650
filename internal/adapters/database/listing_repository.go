package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mkellner/hammer/internal/auction"
)

// PostgresListingRepository implements auction.ListingRepository using pgx.
type PostgresListingRepository struct {
	pool *pgxpool.Pool // non-transactional reads (scheduler sweep)
}

// NewPostgresListingRepository creates a new PostgreSQL listing repository.
func NewPostgresListingRepository(pool *pgxpool.Pool) *PostgresListingRepository {
	return &PostgresListingRepository{pool: pool}
}

const listingColumns = `
	id, public_id, status, auction_status, minimum_bid, currency, current_bid,
	bid_increment_value, bid_increment_type, auction_end_time, seller_user_id,
	current_bidder_user_id, current_bidder_buyer_profile_id,
	winner_user_id, winner_buyer_profile_id,
	shipping_cost, is_private, version, created_at, updated_at
`

// GetByID reads a listing inside the given transaction. Returns (nil, nil)
// when the listing does not exist.
func (r *PostgresListingRepository) GetByID(ctx context.Context, tx pgx.Tx, listingID uuid.UUID) (*auction.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM auction_listings WHERE id = $1`

	var (
		l              auction.Listing
		currentBid     decimal.NullDecimal
		endTime        *time.Time
		currentBidder  uuid.NullUUID
		currentProfile uuid.NullUUID
		winner         uuid.NullUUID
		winnerProfile  uuid.NullUUID
	)
	err := tx.QueryRow(ctx, query, listingID).Scan(
		&l.ID,
		&l.PublicID,
		&l.Status,
		&l.AuctionStatus,
		&l.MinimumBid,
		&l.Currency,
		&currentBid,
		&l.BidIncrementValue,
		&l.BidIncrementType,
		&endTime,
		&l.SellerUserID,
		&currentBidder,
		&currentProfile,
		&winner,
		&winnerProfile,
		&l.ShippingCost,
		&l.IsPrivate,
		&l.Version,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	if currentBid.Valid {
		l.CurrentBid = &currentBid.Decimal
	}
	l.AuctionEndTime = endTime
	if currentBidder.Valid {
		l.CurrentBidderUserID = &currentBidder.UUID
	}
	if currentProfile.Valid {
		l.CurrentBidderProfileID = &currentProfile.UUID
	}
	if winner.Valid {
		l.WinnerUserID = &winner.UUID
	}
	if winnerProfile.Valid {
		l.WinnerProfileID = &winnerProfile.UUID
	}
	return &l, nil
}

// ListVisibilityRules returns the access rules of a private listing.
func (r *PostgresListingRepository) ListVisibilityRules(ctx context.Context, tx pgx.Tx, listingID uuid.UUID) ([]auction.VisibilityRule, error) {
	query := `
		SELECT auction_listing_id, rule_type, user_id
		FROM listing_visibility_rules
		WHERE auction_listing_id = $1
		ORDER BY rule_type ASC, user_id ASC
	`
	rows, err := tx.Query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query visibility rules: %w", err)
	}
	defer rows.Close()

	var rules []auction.VisibilityRule
	for rows.Next() {
		var rule auction.VisibilityRule
		if err := rows.Scan(&rule.ListingID, &rule.RuleType, &rule.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan visibility rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating visibility rules: %w", err)
	}
	return rules, nil
}

// ListManifest returns the listing's product manifest lines.
func (r *PostgresListingRepository) ListManifest(ctx context.Context, tx pgx.Tx, listingID uuid.UUID) ([]auction.ManifestLine, error) {
	query := `
		SELECT product_id, title
		FROM listing_manifest
		WHERE auction_listing_id = $1
		ORDER BY position ASC
	`
	rows, err := tx.Query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query manifest: %w", err)
	}
	defer rows.Close()

	var lines []auction.ManifestLine
	for rows.Next() {
		var line auction.ManifestLine
		if err := rows.Scan(&line.ProductID, &line.Title); err != nil {
			return nil, fmt.Errorf("failed to scan manifest line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating manifest: %w", err)
	}
	return lines, nil
}

// UpdateCurrentBid applies the new current bid conditioned on the version read
// earlier in the same transaction. The version advances in the same write;
// zero matched rows means a concurrent transaction got there first.
func (r *PostgresListingRepository) UpdateCurrentBid(ctx context.Context, tx pgx.Tx, listingID uuid.UUID, version int64,
	amount decimal.Decimal, bidderID, profileID uuid.UUID) (bool, error) {
	query := `
		UPDATE auction_listings
		SET current_bid = $1,
		    current_bidder_user_id = $2,
		    current_bidder_buyer_profile_id = $3,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $4 AND version = $5
	`
	result, err := tx.Exec(ctx, query, amount, bidderID, profileID, listingID, version)
	if err != nil {
		return false, fmt.Errorf("failed to update current bid: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// MarkEnded transitions the auction to ENDED and the listing to COMPLETED,
// recording the winner when there is one.
func (r *PostgresListingRepository) MarkEnded(ctx context.Context, tx pgx.Tx, listingID uuid.UUID, winnerID, winnerProfileID *uuid.UUID) error {
	query := `
		UPDATE auction_listings
		SET auction_status = $1,
		    status = $2,
		    winner_user_id = $3,
		    winner_buyer_profile_id = $4,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $5
	`
	result, err := tx.Exec(ctx, query,
		auction.AuctionStatusEnded, auction.ListingStatusCompleted,
		winnerID, winnerProfileID, listingID)
	if err != nil {
		return fmt.Errorf("failed to mark listing ended: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("listing not found")
	}
	return nil
}

// ListDueAuctions returns ids of ACTIVE auctions whose end time has passed.
func (r *PostgresListingRepository) ListDueAuctions(ctx context.Context, asOf time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM auction_listings
		WHERE auction_status = $1
		  AND auction_end_time IS NOT NULL
		  AND auction_end_time <= $2
		ORDER BY auction_end_time ASC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, auction.AuctionStatusActive, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due auctions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan due auction id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due auctions: %w", err)
	}
	return ids, nil
}

// ListUpcomingEndTimes returns end times of ACTIVE auctions ending before the
// horizon, keyed by listing id.
func (r *PostgresListingRepository) ListUpcomingEndTimes(ctx context.Context, until time.Time, limit int) (map[uuid.UUID]time.Time, error) {
	query := `
		SELECT id, auction_end_time
		FROM auction_listings
		WHERE auction_status = $1
		  AND auction_end_time IS NOT NULL
		  AND auction_end_time <= $2
		ORDER BY auction_end_time ASC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, auction.AuctionStatusActive, until, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming end times: %w", err)
	}
	defer rows.Close()

	upcoming := make(map[uuid.UUID]time.Time)
	for rows.Next() {
		var (
			id    uuid.UUID
			endAt time.Time
		)
		if err := rows.Scan(&id, &endAt); err != nil {
			return nil, fmt.Errorf("failed to scan upcoming end time: %w", err)
		}
		upcoming[id] = endAt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating upcoming end times: %w", err)
	}
	return upcoming, nil
}
