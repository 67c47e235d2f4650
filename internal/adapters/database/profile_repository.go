package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkellner/hammer/internal/auction"
)

// PostgresBuyerProfileRepository implements auction.BuyerProfileRepository.
type PostgresBuyerProfileRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBuyerProfileRepository creates a new buyer profile repository.
func NewPostgresBuyerProfileRepository(pool *pgxpool.Pool) *PostgresBuyerProfileRepository {
	return &PostgresBuyerProfileRepository{pool: pool}
}

// GetByID reads a buyer profile inside the given transaction. Returns
// (nil, nil) when the profile does not exist.
func (r *PostgresBuyerProfileRepository) GetByID(ctx context.Context, tx pgx.Tx, profileID uuid.UUID) (*auction.BuyerProfile, error) {
	query := `
		SELECT id, user_id, verification_status
		FROM buyer_profiles
		WHERE id = $1
	`
	var profile auction.BuyerProfile
	err := tx.QueryRow(ctx, query, profileID).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.Verification,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get buyer profile: %w", err)
	}
	return &profile, nil
}
