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

// PostgresBidRepository implements auction.BidRepository using pgx.
type PostgresBidRepository struct {
	pool *pgxpool.Pool // read-only operations
}

// NewPostgresBidRepository creates a new PostgreSQL bid repository.
func NewPostgresBidRepository(pool *pgxpool.Pool) *PostgresBidRepository {
	return &PostgresBidRepository{pool: pool}
}

const bidColumns = `
	id, auction_listing_id, bidder_user_id, bidder_buyer_profile_id,
	bid_amount, bid_amount_currency, bid_type, is_winning_bid, bid_timestamp
`

// Insert saves a bid within a transaction. The partial unique index on
// (auction_listing_id) WHERE is_winning_bid turns a lost winner race into a
// unique violation here.
func (r *PostgresBidRepository) Insert(ctx context.Context, tx pgx.Tx, bid *auction.Bid) error {
	query := `
		INSERT INTO bids (` + bidColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.Exec(ctx, query,
		bid.ID,
		bid.ListingID,
		bid.BidderUserID,
		bid.BidderProfileID,
		bid.Amount,
		bid.Currency,
		bid.Type,
		bid.IsWinning,
		bid.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

// DemoteWinning clears is_winning_bid on every winning bid of the listing
// except exceptBidID (uuid.Nil demotes all) and returns the demoted bidders
// with their amounts, newest first.
func (r *PostgresBidRepository) DemoteWinning(ctx context.Context, tx pgx.Tx, listingID, exceptBidID uuid.UUID) ([]auction.DemotedBid, error) {
	query := `
		UPDATE bids
		SET is_winning_bid = FALSE
		WHERE auction_listing_id = $1
		  AND is_winning_bid = TRUE
		  AND id <> $2
		RETURNING bidder_user_id, bid_amount
	`
	rows, err := tx.Query(ctx, query, listingID, exceptBidID)
	if err != nil {
		return nil, fmt.Errorf("failed to demote winning bids: %w", err)
	}
	defer rows.Close()

	var demoted []auction.DemotedBid
	for rows.Next() {
		var d auction.DemotedBid
		if err := rows.Scan(&d.BidderUserID, &d.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan demoted bid: %w", err)
		}
		demoted = append(demoted, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating demoted bids: %w", err)
	}
	return demoted, nil
}

// HasRecentDuplicate reports whether the bidder placed the identical amount
// on the listing within the window.
func (r *PostgresBidRepository) HasRecentDuplicate(ctx context.Context, tx pgx.Tx, listingID, bidderID uuid.UUID,
	amount decimal.Decimal, window time.Duration) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM bids
			WHERE auction_listing_id = $1
			  AND bidder_user_id = $2
			  AND bid_amount = $3
			  AND bid_timestamp > $4
		)
	`
	cutoff := time.Now().UTC().Add(-window)
	var exists bool
	if err := tx.QueryRow(ctx, query, listingID, bidderID, amount, cutoff).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check duplicate bid: %w", err)
	}
	return exists, nil
}

// GetWinning returns the listing's current winning bid, or (nil, nil) when
// there is none.
func (r *PostgresBidRepository) GetWinning(ctx context.Context, tx pgx.Tx, listingID uuid.UUID) (*auction.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE auction_listing_id = $1
		  AND is_winning_bid = TRUE
		ORDER BY bid_timestamp DESC
		LIMIT 1
	`
	var bid auction.Bid
	err := tx.QueryRow(ctx, query, listingID).Scan(
		&bid.ID,
		&bid.ListingID,
		&bid.BidderUserID,
		&bid.BidderProfileID,
		&bid.Amount,
		&bid.Currency,
		&bid.Type,
		&bid.IsWinning,
		&bid.PlacedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get winning bid: %w", err)
	}
	return &bid, nil
}

// ListByListing returns all bids for a listing, newest first.
func (r *PostgresBidRepository) ListByListing(ctx context.Context, listingID uuid.UUID) ([]*auction.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE auction_listing_id = $1
		ORDER BY bid_timestamp DESC
	`
	rows, err := r.pool.Query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var result []*auction.Bid
	for rows.Next() {
		var bid auction.Bid
		if err := rows.Scan(
			&bid.ID,
			&bid.ListingID,
			&bid.BidderUserID,
			&bid.BidderProfileID,
			&bid.Amount,
			&bid.Currency,
			&bid.Type,
			&bid.IsWinning,
			&bid.PlacedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		result = append(result, &bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}
	return result, nil
}
