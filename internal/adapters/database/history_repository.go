package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mkellner/hammer/internal/auction"
)

// PostgresHistoryRepository implements auction.HistoryRepository using pgx.
// History rows are append-only: there is no update or delete path.
type PostgresHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresHistoryRepository creates a new bid history repository.
func NewPostgresHistoryRepository(pool *pgxpool.Pool) *PostgresHistoryRepository {
	return &PostgresHistoryRepository{pool: pool}
}

// Append writes one history entry within a transaction.
func (r *PostgresHistoryRepository) Append(ctx context.Context, tx pgx.Tx, entry *auction.HistoryEntry) error {
	query := `
		INSERT INTO bid_history (id, auction_listing_id, previous_bid_amount,
			new_bid_amount, bidder_user_id, action_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var bidderID *uuid.UUID
	if entry.BidderUserID != uuid.Nil {
		bidderID = &entry.BidderUserID
	}
	_, err := tx.Exec(ctx, query,
		entry.ID,
		entry.ListingID,
		entry.PreviousAmount,
		entry.NewAmount,
		bidderID,
		entry.Action,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

// ListByListing returns the audit trail of a listing, newest first.
func (r *PostgresHistoryRepository) ListByListing(ctx context.Context, listingID uuid.UUID) ([]*auction.HistoryEntry, error) {
	query := `
		SELECT id, auction_listing_id, previous_bid_amount, new_bid_amount,
			bidder_user_id, action_type, created_at
		FROM bid_history
		WHERE auction_listing_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bid history: %w", err)
	}
	defer rows.Close()

	var entries []*auction.HistoryEntry
	for rows.Next() {
		var (
			entry    auction.HistoryEntry
			previous decimal.NullDecimal
			bidderID uuid.NullUUID
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.ListingID,
			&previous,
			&entry.NewAmount,
			&bidderID,
			&entry.Action,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if previous.Valid {
			entry.PreviousAmount = &previous.Decimal
		}
		if bidderID.Valid {
			entry.BidderUserID = bidderID.UUID
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bid history: %w", err)
	}
	return entries, nil
}
