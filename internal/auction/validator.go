package auction

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BidRequest is a proposed bid as submitted by the request-handling layer.
// Identity resolution happens before this point.
type BidRequest struct {
	ListingID      uuid.UUID
	BidderUserID   uuid.UUID
	BuyerProfileID uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	Type           BidType
}

// ValidationInput is the consistent snapshot the validator decides on. It is
// assembled inside the placement transaction so validation and the subsequent
// writes observe the same committed state.
type ValidationInput struct {
	Listing            *Listing // nil when the listing does not exist
	Profile            *BuyerProfile
	VisibilityRules    []VisibilityRule
	HasRecentDuplicate bool
	Now                time.Time
}

// validateBid runs the admission checks in order; the first failure wins.
// A nil return means the bid is admitted. The function is pure: it never
// touches the datastore.
func validateBid(in ValidationInput, req BidRequest) *Rejection {
	l := in.Listing
	if l == nil {
		return Reject(CodeAuctionNotFound, "auction listing not found")
	}

	if l.Status != ListingStatusActive || l.AuctionStatus != AuctionStatusActive {
		if l.AuctionStatus == AuctionStatusEnded {
			return Reject(CodeAuctionEnded, "auction has ended")
		}
		return Reject(CodeAuctionNotActive, "auction is not active")
	}

	if l.AuctionEndTime != nil && !l.AuctionEndTime.After(in.Now) {
		return Reject(CodeAuctionEnded, "auction end time has passed")
	}

	if req.BidderUserID == l.SellerUserID {
		return Reject(CodeSellerCannotBid, "seller cannot bid on their own listing")
	}

	if in.Profile == nil || in.Profile.UserID != req.BidderUserID {
		return Reject(CodeInvalidBuyerProfile, "buyer profile does not belong to bidder")
	}
	if in.Profile.Verification != VerificationVerified {
		return Reject(CodeBuyerNotVerified, "buyer profile is not verified")
	}

	if req.Currency != l.Currency {
		return Reject(CodeCurrencyMismatch,
			fmt.Sprintf("bid currency %s does not match listing currency %s", req.Currency, l.Currency))
	}

	// Buy-now offers skip the increment floor: the buy-now price is validated
	// by the caller before it reaches this stage.
	if req.Type != BidTypeBuyNow {
		minimum := MinimumRequiredBid(l)
		if req.Amount.LessThan(minimum) {
			suggested := suggestedNextBid(l, minimum)
			rej := Reject(CodeBidTooLow,
				fmt.Sprintf("bid %s is below the minimum required bid %s", req.Amount, minimum))
			rej.MinimumRequiredBid = &minimum
			rej.SuggestedBid = &suggested
			if l.AuctionEndTime != nil {
				remaining := int64(l.AuctionEndTime.Sub(in.Now).Seconds())
				rej.TimeRemainingSeconds = &remaining
			}
			return rej
		}
	}

	if in.HasRecentDuplicate {
		return Reject(CodeDuplicateBid, "identical bid placed by this bidder moments ago")
	}

	if l.IsPrivate {
		if !visibilityAllows(in.VisibilityRules, req.BidderUserID) {
			return Reject(CodeAccessDenied, "bidder has no access to this private listing")
		}
	}

	return nil
}

// MinimumRequiredBid computes the lowest admissible regular bid for the
// listing's current state. With no current bid it is the listing minimum;
// otherwise the increment rule is applied to the current bid.
func MinimumRequiredBid(l *Listing) decimal.Decimal {
	if l.CurrentBid == nil {
		return l.MinimumBid
	}
	current := *l.CurrentBid
	switch l.BidIncrementType {
	case IncrementPercentage:
		hundred := decimal.NewFromInt(100)
		return current.Add(current.Mul(l.BidIncrementValue).Div(hundred))
	default: // FIXED
		return current.Add(l.BidIncrementValue)
	}
}

// suggestedNextBid is what a client should offer next. Percentage increments
// can produce sub-cent values, so they are rounded up to whole cents.
func suggestedNextBid(l *Listing, minimum decimal.Decimal) decimal.Decimal {
	if l.BidIncrementType == IncrementPercentage {
		return minimum.RoundUp(2)
	}
	return minimum
}

// visibilityAllows evaluates the access rules of a private listing.
// No rules means default-allow. A matching inclusion rule short-circuits to
// allow, a matching exclusion rule to deny. If inclusion rules exist and none
// matched, access is denied; exclusion-only rule sets default to allow.
func visibilityAllows(rules []VisibilityRule, bidderID uuid.UUID) bool {
	hasInclude := false
	for _, rule := range rules {
		switch rule.RuleType {
		case VisibilityInclude:
			hasInclude = true
			if rule.UserID == bidderID {
				return true
			}
		case VisibilityExclude:
			if rule.UserID == bidderID {
				return false
			}
		}
	}
	return !hasInclude
}
