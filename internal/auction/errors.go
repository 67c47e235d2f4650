package auction

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// RejectCode is a stable, machine-readable reason for refusing an operation.
type RejectCode string

const (
	CodeAuctionNotFound         RejectCode = "AUCTION_NOT_FOUND"
	CodeAuctionNotActive        RejectCode = "AUCTION_NOT_ACTIVE"
	CodeAuctionEnded            RejectCode = "AUCTION_ENDED"
	CodeSellerCannotBid         RejectCode = "SELLER_CANNOT_BID"
	CodeInvalidBuyerProfile     RejectCode = "INVALID_BUYER_PROFILE"
	CodeBuyerNotVerified        RejectCode = "BUYER_NOT_VERIFIED"
	CodeCurrencyMismatch        RejectCode = "CURRENCY_MISMATCH"
	CodeBidTooLow               RejectCode = "BID_TOO_LOW"
	CodeDuplicateBid            RejectCode = "DUPLICATE_BID"
	CodeAccessDenied            RejectCode = "ACCESS_DENIED"
	CodeConcurrentBidConflict   RejectCode = "CONCURRENT_BID_CONFLICT"
	CodeTransactionConflict     RejectCode = "TRANSACTION_CONFLICT"
	CodeAuctionAlreadyCancelled RejectCode = "AUCTION_ALREADY_CANCELLED"
	CodeInternalError           RejectCode = "INTERNAL_ERROR"
)

// Rejection is a typed business refusal. It carries enough structured detail
// for a client to render actionable guidance without parsing the message.
type Rejection struct {
	Code    RejectCode
	Message string

	// Set for BID_TOO_LOW rejections.
	MinimumRequiredBid *decimal.Decimal
	SuggestedBid       *decimal.Decimal

	// Set when the auction has a known end time.
	TimeRemainingSeconds *int64

	// Set by the retry controller when a conflict survived all attempts.
	Attempts int
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// Reject builds a plain rejection.
func Reject(code RejectCode, message string) *Rejection {
	return &Rejection{Code: code, Message: message}
}

// AsRejection unwraps err into a *Rejection if it is one.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// IsConflict reports whether err is a transient concurrency conflict that the
// retry controller may resubmit. Validation rejections are deterministic and
// must never be retried.
func IsConflict(err error) bool {
	rej, ok := AsRejection(err)
	if !ok {
		return false
	}
	return rej.Code == CodeConcurrentBidConflict || rej.Code == CodeTransactionConflict
}
