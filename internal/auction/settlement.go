package auction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mkellner/hammer/pkg/database"
)

// SettlementResult reports what a settlement invocation did. Once the
// transaction commits, AuctionUpdated and OrderCreated are final; the
// best-effort flags only describe downstream cleanup.
type SettlementResult struct {
	AuctionUpdated   bool
	OrderCreated     bool
	WinnerUserID     *uuid.UUID
	OrderID          *uuid.UUID
	EventQueued      bool
	ScheduleReleased bool
}

// SettlementService ends auctions: it freezes bidding, picks the winner,
// creates the order and appends the terminal history entry, atomically and
// idempotently. Re-invoking on an ENDED auction is a no-op success.
type SettlementService struct {
	txManager    database.TransactionManager
	listingRepo  ListingRepository
	bidRepo      BidRepository
	historyRepo  HistoryRepository
	orderRepo    OrderRepository
	outboxRepo   OutboxRepository
	schedule     EndSchedule
	paymentDueIn time.Duration
	logger       *slog.Logger
}

// NewSettlementService creates the settlement service. schedule may be nil
// when no external end-time trigger store is wired (e.g. in tests).
func NewSettlementService(
	txManager database.TransactionManager,
	listingRepo ListingRepository,
	bidRepo BidRepository,
	historyRepo HistoryRepository,
	orderRepo OrderRepository,
	outboxRepo OutboxRepository,
	schedule EndSchedule,
	paymentDueIn time.Duration,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		txManager:    txManager,
		listingRepo:  listingRepo,
		bidRepo:      bidRepo,
		historyRepo:  historyRepo,
		orderRepo:    orderRepo,
		outboxRepo:   outboxRepo,
		schedule:     schedule,
		paymentDueIn: paymentDueIn,
		logger:       logger,
	}
}

// Settle runs the settlement procedure for one listing. trigger records
// whether the scheduler or an operator asked for it.
func (s *SettlementService) Settle(ctx context.Context, listingID uuid.UUID, trigger TriggerSource) (*SettlementResult, error) {
	result, err := s.settleTx(ctx, listingID)
	if err != nil {
		return nil, err
	}

	// Best-effort cleanup outside the transaction. Settlement is committed;
	// a failure here is logged and flagged, never propagated.
	if s.schedule != nil {
		if relErr := s.schedule.Release(ctx, listingID); relErr != nil {
			s.logger.Warn("failed to release end-time trigger",
				"listing_id", listingID, "trigger", trigger, "error", relErr)
		} else {
			result.ScheduleReleased = true
		}
	}

	s.logger.Info("auction settled",
		"listing_id", listingID,
		"trigger", trigger,
		"order_created", result.OrderCreated,
		"has_winner", result.WinnerUserID != nil)

	return result, nil
}

func (s *SettlementService) settleTx(ctx context.Context, listingID uuid.UUID) (*SettlementResult, error) {
	tx, err := s.txManager.BeginSerializableTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	now := time.Now().UTC()

	listing, err := s.listingRepo.GetByID(ctx, tx, listingID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if listing == nil {
		return nil, Reject(CodeAuctionNotFound, "auction listing not found")
	}

	switch listing.AuctionStatus {
	case AuctionStatusEnded:
		// Idempotent re-entry: the schedule fired twice or a manual trigger
		// raced the scheduled one. Nothing to write.
		return &SettlementResult{
			AuctionUpdated: true,
			WinnerUserID:   listing.WinnerUserID,
		}, nil
	case AuctionStatusCancelled:
		return nil, Reject(CodeAuctionAlreadyCancelled, "auction was cancelled")
	}

	winning, err := s.bidRepo.GetWinning(ctx, tx, listingID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	result := &SettlementResult{AuctionUpdated: true}

	var winnerID, winnerProfileID *uuid.UUID
	if winning != nil {
		winnerID = &winning.BidderUserID
		winnerProfileID = &winning.BidderProfileID
		result.WinnerUserID = winnerID
	}

	if err := s.listingRepo.MarkEnded(ctx, tx, listingID, winnerID, winnerProfileID); err != nil {
		return nil, mapStoreError(err)
	}

	if winning != nil {
		order, buildErr := buildOrder(ctx, tx, s.listingRepo, listing, winning, s.paymentDueIn, now)
		if buildErr != nil {
			return nil, buildErr
		}
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return nil, mapStoreError(err)
		}
		orderID := order.ID
		result.OrderCreated = true
		result.OrderID = &orderID
	}

	// Defensive cleanup: if an earlier race ever left more than one bid
	// flagged winning, settlement corrects it instead of propagating it.
	exceptID := uuid.Nil
	if winning != nil {
		exceptID = winning.ID
	}
	if _, err := s.bidRepo.DemoteWinning(ctx, tx, listingID, exceptID); err != nil {
		return nil, mapStoreError(err)
	}

	entry := &HistoryEntry{
		ID:        uuid.New(),
		ListingID: listingID,
		Action:    HistoryAuctionEnded,
		CreatedAt: now,
	}
	if winning != nil {
		entry.Action = HistoryAuctionWon
		entry.NewAmount = winning.Amount
		entry.BidderUserID = winning.BidderUserID
	}
	if err := s.historyRepo.Append(ctx, tx, entry); err != nil {
		return nil, mapStoreError(err)
	}

	if err := queueSettledEvent(ctx, tx, s.outboxRepo, listingID, winnerID, result.OrderID, now); err != nil {
		return nil, err
	}
	result.EventQueued = true

	if err := tx.Commit(ctx); err != nil {
		return nil, mapStoreError(err)
	}

	return result, nil
}
