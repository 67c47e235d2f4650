package auction

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// activeListing builds a plain ACTIVE listing with a FIXED 10.00 increment.
func activeListing(sellerID uuid.UUID) *Listing {
	endTime := time.Now().UTC().Add(time.Hour)
	return &Listing{
		ID:                uuid.New(),
		PublicID:          "LIST-001",
		Status:            ListingStatusActive,
		AuctionStatus:     AuctionStatusActive,
		MinimumBid:        dec("50.00"),
		Currency:          "USD",
		BidIncrementValue: dec("10.00"),
		BidIncrementType:  IncrementFixed,
		AuctionEndTime:    &endTime,
		SellerUserID:      sellerID,
		Version:           1,
	}
}

func verifiedProfile(userID uuid.UUID) *BuyerProfile {
	return &BuyerProfile{
		ID:           uuid.New(),
		UserID:       userID,
		Verification: VerificationVerified,
	}
}

func TestValidateBid(t *testing.T) {
	sellerID := uuid.New()
	bidderID := uuid.New()
	now := time.Now().UTC()

	baseRequest := func(l *Listing, profile *BuyerProfile, amount string) BidRequest {
		return BidRequest{
			ListingID:      l.ID,
			BidderUserID:   bidderID,
			BuyerProfileID: profile.ID,
			Amount:         dec(amount),
			Currency:       "USD",
			Type:           BidTypeRegular,
		}
	}

	tests := []struct {
		name     string
		setup    func() (ValidationInput, BidRequest)
		wantCode RejectCode // empty = admitted
	}{
		{
			name: "first bid at listing minimum is admitted",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				p := verifiedProfile(bidderID)
				return ValidationInput{Listing: l, Profile: p, Now: now}, baseRequest(l, p, "50.00")
			},
		},
		{
			name: "first bid below listing minimum is rejected",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				p := verifiedProfile(bidderID)
				return ValidationInput{Listing: l, Profile: p, Now: now}, baseRequest(l, p, "49.99")
			},
			wantCode: CodeBidTooLow,
		},
		{
			name: "missing listing",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				p := verifiedProfile(bidderID)
				return ValidationInput{Listing: nil, Profile: p, Now: now}, baseRequest(l, p, "60.00")
			},
			wantCode: CodeAuctionNotFound,
		},
		{
			name: "ended auction",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				l.AuctionStatus = AuctionStatusEnded
				p := verifiedProfile(bidderID)
				return ValidationInput{Listing: l, Profile: p, Now: now}, baseRequest(l, p, "60.00")
			},
			wantCode: CodeAuctionEnded,
		},
		{
			name: "cancelled auction",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				l.AuctionStatus = AuctionStatusCancelled
				p := verifiedProfile(bidderID)
				return ValidationInput{Listing: l, Profile: p, Now: now}, baseRequest(l, p, "60.00")
			},
			wantCode: CodeAuctionNotActive,
		},
		{
			name: "end time in the past",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				past := now.Add(-time.Minute)
				l.AuctionEndTime = &past
				p := verifiedProfile(bidderID)
				return ValidationInput{Listing: l, Profile: p, Now: now}, baseRequest(l, p, "60.00")
			},
			wantCode: CodeAuctionEnded,
		},
		{
			name: "seller bidding on own listing",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				p := verifiedProfile(sellerID)
				req := baseRequest(l, p, "60.00")
				req.BidderUserID = sellerID
				return ValidationInput{Listing: l, Profile: p, Now: now}, req
			},
			wantCode: CodeSellerCannotBid,
		},
		{
			name: "profile belongs to a different user",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				p := verifiedProfile(uuid.New())
				return ValidationInput{Listing: l, Profile: p, Now: now}, baseRequest(l, p, "60.00")
			},
			wantCode: CodeInvalidBuyerProfile,
		},
		{
			name: "unverified profile",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				p := verifiedProfile(bidderID)
				p.Verification = VerificationPending
				return ValidationInput{Listing: l, Profile: p, Now: now}, baseRequest(l, p, "60.00")
			},
			wantCode: CodeBuyerNotVerified,
		},
		{
			name: "currency mismatch",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				p := verifiedProfile(bidderID)
				req := baseRequest(l, p, "60.00")
				req.Currency = "EUR"
				return ValidationInput{Listing: l, Profile: p, Now: now}, req
			},
			wantCode: CodeCurrencyMismatch,
		},
		{
			name: "fixed increment floor: 100 current requires 110",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				l.CurrentBid = decPtr("100.00")
				p := verifiedProfile(bidderID)
				return ValidationInput{Listing: l, Profile: p, Now: now}, baseRequest(l, p, "109.99")
			},
			wantCode: CodeBidTooLow,
		},
		{
			name: "fixed increment floor met exactly",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				l.CurrentBid = decPtr("100.00")
				p := verifiedProfile(bidderID)
				return ValidationInput{Listing: l, Profile: p, Now: now}, baseRequest(l, p, "110.00")
			},
		},
		{
			name: "percentage increment floor: 100 current at 10 percent requires 110",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				l.BidIncrementType = IncrementPercentage
				l.BidIncrementValue = dec("10")
				l.CurrentBid = decPtr("100.00")
				p := verifiedProfile(bidderID)
				return ValidationInput{Listing: l, Profile: p, Now: now}, baseRequest(l, p, "109.99")
			},
			wantCode: CodeBidTooLow,
		},
		{
			name: "percentage increment floor met",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				l.BidIncrementType = IncrementPercentage
				l.BidIncrementValue = dec("10")
				l.CurrentBid = decPtr("100.00")
				p := verifiedProfile(bidderID)
				return ValidationInput{Listing: l, Profile: p, Now: now}, baseRequest(l, p, "110.00")
			},
		},
		{
			name: "buy-now skips the increment floor",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				l.CurrentBid = decPtr("100.00")
				p := verifiedProfile(bidderID)
				req := baseRequest(l, p, "105.00")
				req.Type = BidTypeBuyNow
				return ValidationInput{Listing: l, Profile: p, Now: now}, req
			},
		},
		{
			name: "duplicate bid inside the window",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				p := verifiedProfile(bidderID)
				return ValidationInput{Listing: l, Profile: p, HasRecentDuplicate: true, Now: now},
					baseRequest(l, p, "60.00")
			},
			wantCode: CodeDuplicateBid,
		},
		{
			name: "private listing denies bidders outside the include list",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				l.IsPrivate = true
				p := verifiedProfile(bidderID)
				rules := []VisibilityRule{
					{ListingID: l.ID, RuleType: VisibilityInclude, UserID: uuid.New()},
				}
				return ValidationInput{Listing: l, Profile: p, VisibilityRules: rules, Now: now},
					baseRequest(l, p, "60.00")
			},
			wantCode: CodeAccessDenied,
		},
		{
			name: "private listing allows included bidders",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				l.IsPrivate = true
				p := verifiedProfile(bidderID)
				rules := []VisibilityRule{
					{ListingID: l.ID, RuleType: VisibilityInclude, UserID: bidderID},
				}
				return ValidationInput{Listing: l, Profile: p, VisibilityRules: rules, Now: now},
					baseRequest(l, p, "60.00")
			},
		},
		{
			name: "private listing denies excluded bidders",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				l.IsPrivate = true
				p := verifiedProfile(bidderID)
				rules := []VisibilityRule{
					{ListingID: l.ID, RuleType: VisibilityExclude, UserID: bidderID},
				}
				return ValidationInput{Listing: l, Profile: p, VisibilityRules: rules, Now: now},
					baseRequest(l, p, "60.00")
			},
			wantCode: CodeAccessDenied,
		},
		{
			name: "private listing with exclusion rules only defaults to allow",
			setup: func() (ValidationInput, BidRequest) {
				l := activeListing(sellerID)
				l.IsPrivate = true
				p := verifiedProfile(bidderID)
				rules := []VisibilityRule{
					{ListingID: l.ID, RuleType: VisibilityExclude, UserID: uuid.New()},
				}
				return ValidationInput{Listing: l, Profile: p, VisibilityRules: rules, Now: now},
					baseRequest(l, p, "60.00")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, req := tt.setup()
			rej := validateBid(input, req)
			if tt.wantCode == "" {
				assert.Nil(t, rej)
				return
			}
			require.NotNil(t, rej)
			assert.Equal(t, tt.wantCode, rej.Code)
		})
	}
}

func TestValidateBid_TooLowCarriesGuidance(t *testing.T) {
	sellerID := uuid.New()
	bidderID := uuid.New()
	l := activeListing(sellerID)
	l.CurrentBid = decPtr("100.00")
	p := verifiedProfile(bidderID)

	rej := validateBid(ValidationInput{Listing: l, Profile: p, Now: time.Now().UTC()}, BidRequest{
		ListingID:      l.ID,
		BidderUserID:   bidderID,
		BuyerProfileID: p.ID,
		Amount:         dec("101.00"),
		Currency:       "USD",
		Type:           BidTypeRegular,
	})

	require.NotNil(t, rej)
	assert.Equal(t, CodeBidTooLow, rej.Code)
	require.NotNil(t, rej.MinimumRequiredBid)
	assert.True(t, rej.MinimumRequiredBid.Equal(dec("110.00")))
	require.NotNil(t, rej.SuggestedBid)
	assert.True(t, rej.SuggestedBid.Equal(dec("110.00")))
	require.NotNil(t, rej.TimeRemainingSeconds)
	assert.Greater(t, *rej.TimeRemainingSeconds, int64(0))
}

func TestMinimumRequiredBid(t *testing.T) {
	l := activeListing(uuid.New())

	t.Run("no current bid falls back to listing minimum", func(t *testing.T) {
		assert.True(t, MinimumRequiredBid(l).Equal(dec("50.00")))
	})

	t.Run("fixed increment adds the value", func(t *testing.T) {
		l.CurrentBid = decPtr("200.00")
		assert.True(t, MinimumRequiredBid(l).Equal(dec("210.00")))
	})

	t.Run("percentage increment scales with the current bid", func(t *testing.T) {
		l.BidIncrementType = IncrementPercentage
		l.BidIncrementValue = dec("5")
		l.CurrentBid = decPtr("200.00")
		assert.True(t, MinimumRequiredBid(l).Equal(dec("210.00")))
	})
}

func TestSuggestedNextBid_RoundsSubCentUp(t *testing.T) {
	l := activeListing(uuid.New())
	l.BidIncrementType = IncrementPercentage
	l.BidIncrementValue = dec("3")
	l.CurrentBid = decPtr("99.99")

	minimum := MinimumRequiredBid(l) // 102.9897
	suggested := suggestedNextBid(l, minimum)
	assert.True(t, suggested.Equal(dec("102.99")), "got %s", suggested)
}
