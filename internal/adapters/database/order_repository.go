package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkellner/hammer/internal/auction"
)

// PostgresOrderRepository implements auction.OrderRepository using pgx.
type PostgresOrderRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresOrderRepository creates a new order repository.
func NewPostgresOrderRepository(pool *pgxpool.Pool) *PostgresOrderRepository {
	return &PostgresOrderRepository{pool: pool}
}

// Create inserts the order and its items within a transaction. Settlement
// calls this at most once per listing; the unique index on
// orders(auction_listing_id) backs that up.
func (r *PostgresOrderRepository) Create(ctx context.Context, tx pgx.Tx, order *auction.Order) error {
	query := `
		INSERT INTO orders (id, auction_listing_id, buyer_user_id, buyer_profile_id,
			seller_user_id, total_amount, currency, shipping_cost, order_status,
			payment_due_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := tx.Exec(ctx, query,
		order.ID,
		order.ListingID,
		order.BuyerUserID,
		order.BuyerProfileID,
		order.SellerUserID,
		order.TotalAmount,
		order.Currency,
		order.ShippingCost,
		order.Status,
		order.PaymentDueDate,
		order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, title, unit_price)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, item := range order.Items {
		if _, err := tx.Exec(ctx, itemQuery,
			item.ID, item.OrderID, item.ProductID, item.Title, item.UnitPrice); err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}
	return nil
}
