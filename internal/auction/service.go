package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/mkellner/hammer/pkg/database"
	"github.com/mkellner/hammer/pkg/events"
)

// Postgres error codes the placement transaction translates into the
// engine's conflict taxonomy.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgQueryCanceled        = "57014" // statement_timeout expiry
	pgUniqueViolation      = "23505"
)

// PlacementResult is the success outcome of a bid placement.
type PlacementResult struct {
	BidID     uuid.UUID
	ListingID uuid.UUID
	Amount    decimal.Decimal
	IsWinning bool
	Settled   bool // true for buy-now placements, which end the auction inline
}

// Service runs the bid placement transaction: re-validation, demotion of the
// prior winner, insert, version-conditioned listing update, history append and
// outcome event, all in one serializable transaction.
type Service struct {
	txManager       database.TransactionManager
	listingRepo     ListingRepository
	bidRepo         BidRepository
	profileRepo     BuyerProfileRepository
	historyRepo     HistoryRepository
	orderRepo       OrderRepository
	outboxRepo      OutboxRepository
	duplicateWindow time.Duration
	paymentDueIn    time.Duration
}

// NewService creates the placement service. duplicateWindow guards against
// client double-submits; paymentDueIn sets the payment deadline on orders
// created by buy-now placements.
func NewService(
	txManager database.TransactionManager,
	listingRepo ListingRepository,
	bidRepo BidRepository,
	profileRepo BuyerProfileRepository,
	historyRepo HistoryRepository,
	orderRepo OrderRepository,
	outboxRepo OutboxRepository,
	duplicateWindow time.Duration,
	paymentDueIn time.Duration,
) *Service {
	return &Service{
		txManager:       txManager,
		listingRepo:     listingRepo,
		bidRepo:         bidRepo,
		profileRepo:     profileRepo,
		historyRepo:     historyRepo,
		orderRepo:       orderRepo,
		outboxRepo:      outboxRepo,
		duplicateWindow: duplicateWindow,
		paymentDueIn:    paymentDueIn,
	}
}

// PlaceBid admits and applies one bid. On a transient conflict it returns a
// *Rejection with code TRANSACTION_CONFLICT or CONCURRENT_BID_CONFLICT, which
// the retry controller may resubmit; every other rejection is deterministic.
func (s *Service) PlaceBid(ctx context.Context, req BidRequest) (*PlacementResult, error) {
	tx, err := s.txManager.BeginSerializableTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	now := time.Now().UTC()

	// Re-validate against a snapshot read inside this transaction; an outer
	// pre-check may be stale by the time we get here.
	listing, err := s.listingRepo.GetByID(ctx, tx, req.ListingID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	input := ValidationInput{Listing: listing, Now: now}
	if listing != nil {
		input.Profile, err = s.profileRepo.GetByID(ctx, tx, req.BuyerProfileID)
		if err != nil {
			return nil, mapStoreError(err)
		}
		input.HasRecentDuplicate, err = s.bidRepo.HasRecentDuplicate(
			ctx, tx, listing.ID, req.BidderUserID, req.Amount, s.duplicateWindow)
		if err != nil {
			return nil, mapStoreError(err)
		}
		if listing.IsPrivate {
			input.VisibilityRules, err = s.listingRepo.ListVisibilityRules(ctx, tx, listing.ID)
			if err != nil {
				return nil, mapStoreError(err)
			}
		}
	}

	if rej := validateBid(input, req); rej != nil {
		return nil, rej
	}

	demoted, err := s.bidRepo.DemoteWinning(ctx, tx, listing.ID, uuid.Nil)
	if err != nil {
		return nil, mapStoreError(err)
	}

	bid := &Bid{
		ID:              uuid.New(),
		ListingID:       listing.ID,
		BidderUserID:    req.BidderUserID,
		BidderProfileID: req.BuyerProfileID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Type:            req.Type,
		IsWinning:       true,
		PlacedAt:        now,
	}
	if err := s.bidRepo.Insert(ctx, tx, bid); err != nil {
		return nil, mapStoreError(err)
	}

	// Optimistic version check on top of serializable isolation: if another
	// transaction advanced the listing since our read, zero rows match and
	// the whole placement aborts for the caller to retry.
	matched, err := s.listingRepo.UpdateCurrentBid(ctx, tx, listing.ID, listing.Version,
		req.Amount, req.BidderUserID, req.BuyerProfileID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if !matched {
		return nil, Reject(CodeTransactionConflict, "listing version advanced by a concurrent bid")
	}

	if err := s.historyRepo.Append(ctx, tx, &HistoryEntry{
		ID:             uuid.New(),
		ListingID:      listing.ID,
		PreviousAmount: listing.CurrentBid,
		NewAmount:      req.Amount,
		BidderUserID:   req.BidderUserID,
		Action:         HistoryBidPlaced,
		CreatedAt:      now,
	}); err != nil {
		return nil, mapStoreError(err)
	}

	settled := false
	if req.Type == BidTypeBuyNow {
		// Buy-now ends the auction in the same atomic unit: no reader may
		// ever observe the bid committed without the listing settled.
		if err := s.settleBuyNow(ctx, tx, listing, bid, now); err != nil {
			return nil, err
		}
		settled = true
	}

	if err := queueBidPlacedEvent(ctx, tx, s.outboxRepo, listing, bid, demoted, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapStoreError(err)
	}

	return &PlacementResult{
		BidID:     bid.ID,
		ListingID: listing.ID,
		Amount:    bid.Amount,
		IsWinning: true,
		Settled:   settled,
	}, nil
}

// settleBuyNow performs the inline settlement of a buy-now placement before
// the commit: winner fields, order, terminal history entry and settlement
// event. Prior winning bids were already demoted by the placement steps.
func (s *Service) settleBuyNow(ctx context.Context, tx pgx.Tx, listing *Listing, bid *Bid, now time.Time) error {
	if err := s.listingRepo.MarkEnded(ctx, tx, listing.ID, &bid.BidderUserID, &bid.BidderProfileID); err != nil {
		return mapStoreError(err)
	}

	order, err := buildOrder(ctx, tx, s.listingRepo, listing, bid, s.paymentDueIn, now)
	if err != nil {
		return err
	}
	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return mapStoreError(err)
	}

	if err := s.historyRepo.Append(ctx, tx, &HistoryEntry{
		ID:           uuid.New(),
		ListingID:    listing.ID,
		NewAmount:    bid.Amount,
		BidderUserID: bid.BidderUserID,
		Action:       HistoryAuctionWon,
		CreatedAt:    now,
	}); err != nil {
		return mapStoreError(err)
	}

	orderID := order.ID
	return queueSettledEvent(ctx, tx, s.outboxRepo, listing.ID, &bid.BidderUserID, &orderID, now)
}

// buildOrder assembles the order for a winning bid: total equals the bid
// amount, shipping is copied from the listing, and each manifest line becomes
// one item priced at an even share of the total.
func buildOrder(ctx context.Context, tx pgx.Tx, listingRepo ListingRepository,
	listing *Listing, bid *Bid, paymentDueIn time.Duration, now time.Time) (*Order, error) {
	manifest, err := listingRepo.ListManifest(ctx, tx, listing.ID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	order := &Order{
		ID:             uuid.New(),
		ListingID:      listing.ID,
		BuyerUserID:    bid.BidderUserID,
		BuyerProfileID: bid.BidderProfileID,
		SellerUserID:   listing.SellerUserID,
		TotalAmount:    bid.Amount,
		Currency:       bid.Currency,
		ShippingCost:   listing.ShippingCost,
		Status:         OrderStatusPending,
		PaymentDueDate: now.Add(paymentDueIn),
		CreatedAt:      now,
	}

	if len(manifest) > 0 {
		unitPrice := bid.Amount.DivRound(decimal.NewFromInt(int64(len(manifest))), 2)
		for _, line := range manifest {
			order.Items = append(order.Items, OrderItem{
				ID:        uuid.New(),
				OrderID:   order.ID,
				ProductID: line.ProductID,
				Title:     line.Title,
				UnitPrice: unitPrice,
			})
		}
	}

	return order, nil
}

func queueBidPlacedEvent(ctx context.Context, tx pgx.Tx, outboxRepo OutboxRepository,
	listing *Listing, bid *Bid, demoted []DemotedBid, now time.Time) error {
	previous := make([]OutbidEntry, 0, len(demoted))
	for _, d := range demoted {
		if d.BidderUserID == bid.BidderUserID {
			continue
		}
		previous = append(previous, OutbidEntry{UserID: d.BidderUserID, Amount: d.Amount.String()})
	}

	payload, err := json.Marshal(BidPlacedEvent{
		ListingID:       listing.ID,
		BidderUserID:    bid.BidderUserID,
		Amount:          bid.Amount.String(),
		Currency:        bid.Currency,
		IsWinning:       bid.IsWinning,
		PreviousWinners: previous,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal bid placed event: %w", err)
	}

	return saveEvent(ctx, tx, outboxRepo, EventTypeBidPlaced, payload, now)
}

func queueSettledEvent(ctx context.Context, tx pgx.Tx, outboxRepo OutboxRepository,
	listingID uuid.UUID, winnerID, orderID *uuid.UUID, now time.Time) error {
	payload, err := json.Marshal(AuctionSettledEvent{
		ListingID:    listingID,
		WinnerUserID: winnerID,
		OrderID:      orderID,
		HasWinner:    winnerID != nil,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal settlement event: %w", err)
	}
	return saveEvent(ctx, tx, outboxRepo, EventTypeAuctionSettled, payload, now)
}

func saveEvent(ctx context.Context, tx pgx.Tx, outboxRepo OutboxRepository,
	eventType string, payload []byte, now time.Time) error {
	event := &events.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payload,
		Status:    events.OutboxStatusPending,
		CreatedAt: now,
	}
	if err := outboxRepo.SaveEvent(ctx, tx, event); err != nil {
		return mapStoreError(err)
	}
	return nil
}

// mapStoreError translates datastore failures into the engine's taxonomy.
// Serialization failures, deadlocks and statement-timeout aborts are
// conflict-equivalent and retryable; a unique violation means a concurrent
// placement won the winning-bid index race; everything else is internal.
func mapStoreError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgQueryCanceled:
			return Reject(CodeTransactionConflict, "transaction aborted by a concurrent writer")
		case pgUniqueViolation:
			return Reject(CodeConcurrentBidConflict, "a concurrent bid reached the listing first")
		}
	}
	return &Rejection{Code: CodeInternalError, Message: fmt.Sprintf("datastore failure: %v", err)}
}
