package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mkellner/hammer/internal/auction"
)

// BidPlacer submits one bid. In production this is the retry controller
// wrapping the placement service; tests drop in a stub.
type BidPlacer interface {
	PlaceBid(ctx context.Context, req auction.BidRequest) (*auction.PlacementResult, error)
}

// Settler runs the settlement procedure for one listing.
type Settler interface {
	Settle(ctx context.Context, listingID uuid.UUID, trigger auction.TriggerSource) (*auction.SettlementResult, error)
}

// ListingReader serves the read endpoints.
type ListingReader interface {
	ListByListing(ctx context.Context, listingID uuid.UUID) ([]*auction.Bid, error)
}

// HistoryReader serves the audit trail endpoint.
type HistoryReader interface {
	ListByListing(ctx context.Context, listingID uuid.UUID) ([]*auction.HistoryEntry, error)
}

// AuctionHandler exposes the auction engine over HTTP.
type AuctionHandler struct {
	placer  BidPlacer
	settler Settler
	bids    ListingReader
	history HistoryReader
	logger  *slog.Logger
}

// NewAuctionHandler creates the HTTP handler.
func NewAuctionHandler(placer BidPlacer, settler Settler, bids ListingReader, history HistoryReader, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		placer:  placer,
		settler: settler,
		bids:    bids,
		history: history,
		logger:  logger,
	}
}

// PlaceBid handles POST /listings/:listing_id/bids.
func (h *AuctionHandler) PlaceBid(c *gin.Context) {
	listingID, ok := h.parseListingID(c)
	if !ok {
		return
	}

	var body PlaceBidRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, RejectionResponse{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || amount.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, RejectionResponse{
			Code:    "INVALID_REQUEST",
			Message: "amount must be a positive decimal string",
		})
		return
	}

	bidType := auction.BidTypeRegular
	if body.BidType != "" {
		bidType = auction.BidType(body.BidType)
		if bidType != auction.BidTypeRegular && bidType != auction.BidTypeBuyNow {
			c.JSON(http.StatusBadRequest, RejectionResponse{
				Code:    "INVALID_REQUEST",
				Message: "bid_type must be REGULAR or BUY_NOW",
			})
			return
		}
	}

	bidderID, err := uuid.Parse(body.BidderUserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, RejectionResponse{
			Code:    "INVALID_REQUEST",
			Message: "bidder_user_id must be a UUID",
		})
		return
	}

	profileID, err := uuid.Parse(body.BuyerProfileID)
	if err != nil {
		c.JSON(http.StatusBadRequest, RejectionResponse{
			Code:    "INVALID_REQUEST",
			Message: "buyer_profile_id must be a UUID",
		})
		return
	}

	req := auction.BidRequest{
		ListingID:      listingID,
		BidderUserID:   bidderID,
		BuyerProfileID: profileID,
		Amount:         amount,
		Currency:       body.Currency,
		Type:           bidType,
	}

	result, err := h.placer.PlaceBid(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("bid placed",
		"listing_id", result.ListingID,
		"bid_id", result.BidID,
		"amount", result.Amount.String(),
		"settled", result.Settled)

	c.JSON(http.StatusCreated, PlaceBidResponse{
		BidID:     result.BidID.String(),
		ListingID: result.ListingID.String(),
		Amount:    result.Amount.String(),
		IsWinning: result.IsWinning,
		Settled:   result.Settled,
	})
}

// SettleAuction handles POST /listings/:listing_id/settlement (manual trigger).
func (h *AuctionHandler) SettleAuction(c *gin.Context) {
	listingID, ok := h.parseListingID(c)
	if !ok {
		return
	}

	result, err := h.settler.Settle(c.Request.Context(), listingID, auction.TriggerManual)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := SettlementResponse{
		AuctionUpdated:   result.AuctionUpdated,
		OrderCreated:     result.OrderCreated,
		EventQueued:      result.EventQueued,
		ScheduleReleased: result.ScheduleReleased,
	}
	if result.WinnerUserID != nil {
		s := result.WinnerUserID.String()
		resp.WinnerUserID = &s
	}
	if result.OrderID != nil {
		s := result.OrderID.String()
		resp.OrderID = &s
	}
	c.JSON(http.StatusOK, resp)
}

// ListBids handles GET /listings/:listing_id/bids.
func (h *AuctionHandler) ListBids(c *gin.Context) {
	listingID, ok := h.parseListingID(c)
	if !ok {
		return
	}

	bids, err := h.bids.ListByListing(c.Request.Context(), listingID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, BidResponse{
			BidID:        b.ID.String(),
			ListingID:    b.ListingID.String(),
			BidderUserID: b.BidderUserID.String(),
			Amount:       b.Amount.String(),
			Currency:     b.Currency,
			BidType:      string(b.Type),
			IsWinning:    b.IsWinning,
			PlacedAt:     b.PlacedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, resp)
}

// ListHistory handles GET /listings/:listing_id/history.
func (h *AuctionHandler) ListHistory(c *gin.Context) {
	listingID, ok := h.parseListingID(c)
	if !ok {
		return
	}

	entries, err := h.history.ListByListing(c.Request.Context(), listingID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		item := HistoryEntryResponse{
			PreviousAmount: decimalString(e.PreviousAmount),
			NewAmount:      e.NewAmount.String(),
			Action:         string(e.Action),
			CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if e.BidderUserID != uuid.Nil {
			s := e.BidderUserID.String()
			item.BidderUserID = &s
		}
		resp = append(resp, item)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AuctionHandler) parseListingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("listing_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, RejectionResponse{
			Code:    "INVALID_REQUEST",
			Message: "listing_id must be a UUID",
		})
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps a domain error to an HTTP response. Rejections carry their
// structured detail through to the body; anything else is a 500.
func (h *AuctionHandler) writeError(c *gin.Context, err error) {
	rej, ok := auction.AsRejection(err)
	if !ok {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, RejectionResponse{
			Code:    string(auction.CodeInternalError),
			Message: "internal error",
		})
		return
	}

	status := rejectionStatus(rej.Code)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "code", rej.Code, "error", err)
	}

	c.JSON(status, RejectionResponse{
		Code:                 string(rej.Code),
		Message:              rej.Message,
		MinimumRequiredBid:   decimalString(rej.MinimumRequiredBid),
		SuggestedBid:         decimalString(rej.SuggestedBid),
		TimeRemainingSeconds: rej.TimeRemainingSeconds,
		Attempts:             rej.Attempts,
	})
}

func rejectionStatus(code auction.RejectCode) int {
	switch code {
	case auction.CodeAuctionNotFound:
		return http.StatusNotFound
	case auction.CodeSellerCannotBid, auction.CodeBuyerNotVerified, auction.CodeAccessDenied:
		return http.StatusForbidden
	case auction.CodeInvalidBuyerProfile, auction.CodeCurrencyMismatch, auction.CodeBidTooLow:
		return http.StatusUnprocessableEntity
	case auction.CodeAuctionNotActive, auction.CodeAuctionEnded, auction.CodeDuplicateBid,
		auction.CodeAuctionAlreadyCancelled, auction.CodeConcurrentBidConflict,
		auction.CodeTransactionConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
