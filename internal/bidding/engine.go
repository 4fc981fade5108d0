package bidding

import (
	"fmt"
	"time"

	"github.com/archiveone/pan-auction/internal/auctionerrors"
	"github.com/archiveone/pan-auction/internal/types"
	"github.com/google/uuid"
)

// BidRequest is a candidate bid before validation. A zero MaxProxyAmount
// means a direct bid; anything above zero makes it a proxy bid with a
// hidden ceiling.
type BidRequest struct {
	AuctionID      string  `json:"auction_id"`
	BidderID       string  `json:"bidder_id"`
	Amount         float64 `json:"amount" binding:"required"`
	MaxProxyAmount float64 `json:"max_proxy_amount"`
}

// IsProxy reports whether the request carries a proxy ceiling.
func (r BidRequest) IsProxy() bool {
	return r.MaxProxyAmount > 0
}

// Ceiling is the highest amount the request commits to.
func (r BidRequest) Ceiling() float64 {
	if r.IsProxy() && r.MaxProxyAmount > r.Amount {
		return r.MaxProxyAmount
	}
	return r.Amount
}

// Resolution is the outcome of pushing one candidate bid through
// validation, proxy resolution and the anti-snipe decision, computed
// against a snapshot of auction state. It is applied to the store as a
// single atomic commit.
type Resolution struct {
	// Accepted is the incoming bid row to append, status already decided.
	Accepted *types.Bid
	// Synthetic is the at-most-one system-attributed counter bid. The
	// one-per-submission bound is the termination guard for duelling
	// proxies.
	Synthetic *types.Bid

	NewCurrentBid  float64
	NewWinnerID    string
	WinningBidID   string
	OutbidPrevious bool
	// NewEndTime is set when the bid landed inside the extension window.
	NewEndTime *time.Time
	// BuyNow closes the auction sold at the buy-now price in the same
	// commit.
	BuyNow bool
}

// Bids returns the rows to append, in bid_number order.
func (r *Resolution) Bids() []*types.Bid {
	if r.Synthetic == nil {
		return []*types.Bid{r.Accepted}
	}
	if r.Synthetic.BidNumber < r.Accepted.BidNumber {
		return []*types.Bid{r.Synthetic, r.Accepted}
	}
	return []*types.Bid{r.Accepted, r.Synthetic}
}

// Validate checks a candidate bid against auction state. Pure, no side
// effects; each failure is a distinct error kind. The enterprise credit
// gate runs before this and is independent of it.
func Validate(a *types.Auction, req BidRequest, now time.Time) error {
	if a.Status != types.AuctionStatusLive || now.Before(a.StartTime) || !now.Before(a.EndTime) {
		return fmt.Errorf("auction %s (status %s): %w", a.AuctionID, a.Status, auctionerrors.ErrAuctionNotLive)
	}
	if req.BidderID == a.SellerID {
		return fmt.Errorf("auction %s: %w", a.AuctionID, auctionerrors.ErrSelfBidNotAllowed)
	}
	if a.BidCount == 0 {
		if req.Amount < a.StartingPrice {
			return fmt.Errorf("amount %.2f below starting price %.2f: %w",
				req.Amount, a.StartingPrice, auctionerrors.ErrBidTooLow)
		}
	} else if req.Amount < a.CurrentBid+a.MinBidIncrement {
		return fmt.Errorf("amount %.2f below current %.2f plus increment %.2f: %w",
			req.Amount, a.CurrentBid, a.MinBidIncrement, auctionerrors.ErrBidTooLow)
	}
	if req.IsProxy() && req.MaxProxyAmount < req.Amount {
		return fmt.Errorf("ceiling %.2f below amount %.2f: %w",
			req.MaxProxyAmount, req.Amount, auctionerrors.ErrProxyCeilingBelowBid)
	}
	return nil
}

// Resolve runs ascending-proxy resolution for one candidate bid. leader is
// the currently winning bid, nil when the auction has none. The resolution
// runs to a fixed point in a single pass: no branch records more than one
// synthetic counter bid.
func Resolve(a *types.Auction, leader *types.Bid, req BidRequest, now time.Time) (*Resolution, error) {
	if err := Validate(a, req, now); err != nil {
		return nil, err
	}

	res := &Resolution{
		NewCurrentBid: a.CurrentBid,
		NewWinnerID:   a.CurrentWinnerID,
	}
	nextNumber := a.BidCount + 1

	accepted := &types.Bid{
		BidID:          "BID_" + uuid.New().String(),
		AuctionID:      a.AuctionID,
		BidderID:       req.BidderID,
		Amount:         req.Amount,
		MaxProxyAmount: req.MaxProxyAmount,
		IsProxy:        req.IsProxy(),
		PlacedAt:       now,
	}
	res.Accepted = accepted

	switch {
	case a.BuyNowPrice > 0 && req.Amount >= a.BuyNowPrice:
		// Buy-now short-circuits resolution entirely. The sale closes in
		// this commit, so the bid finalizes as WON rather than WINNING.
		accepted.Amount = a.BuyNowPrice
		accepted.Status = types.BidStatusWon
		accepted.BidNumber = nextNumber
		res.NewCurrentBid = a.BuyNowPrice
		res.NewWinnerID = req.BidderID
		res.WinningBidID = accepted.BidID
		res.OutbidPrevious = leader != nil
		res.BuyNow = true

	case leader == nil:
		// The very first bid opens at the starting price; the submitted
		// amount survives as the bid's ceiling.
		if req.Ceiling() > a.StartingPrice {
			accepted.MaxProxyAmount = req.Ceiling()
		}
		accepted.Amount = a.StartingPrice
		accepted.Status = types.BidStatusWinning
		accepted.BidNumber = nextNumber
		res.NewCurrentBid = a.StartingPrice
		res.NewWinnerID = req.BidderID
		res.WinningBidID = accepted.BidID

	default:
		leaderCeiling := leader.Ceiling()
		incomingCeiling := req.Ceiling()

		switch {
		case leaderCeiling < req.Amount:
			// No standing proxy covers the new bid: it wins at its own
			// amount.
			accepted.Status = types.BidStatusWinning
			accepted.BidNumber = nextNumber
			res.NewCurrentBid = req.Amount
			res.NewWinnerID = req.BidderID
			res.WinningBidID = accepted.BidID
			res.OutbidPrevious = true

		case incomingCeiling == leaderCeiling:
			// Equal ceilings: the earlier bid_number keeps the lead and
			// the price does not move.
			accepted.Status = types.BidStatusOutbid
			accepted.BidNumber = nextNumber

		case incomingCeiling > leaderCeiling:
			// The incoming proxy overtakes the leader. The leader defends
			// up to its ceiling with one synthetic bid, then loses.
			price := leaderCeiling + a.MinBidIncrement
			if price > incomingCeiling {
				price = incomingCeiling
			}
			if leaderCeiling > a.CurrentBid {
				res.Synthetic = &types.Bid{
					BidID:          "BID_" + uuid.New().String(),
					AuctionID:      a.AuctionID,
					BidderID:       leader.BidderID,
					Amount:         leaderCeiling,
					MaxProxyAmount: leaderCeiling,
					IsProxy:        true,
					Status:         types.BidStatusOutbid,
					BidNumber:      nextNumber,
					PlacedAt:       now,
				}
				nextNumber++
			}
			accepted.Amount = price
			accepted.Status = types.BidStatusWinning
			accepted.BidNumber = nextNumber
			res.NewCurrentBid = price
			res.NewWinnerID = req.BidderID
			res.WinningBidID = accepted.BidID
			res.OutbidPrevious = true

		default:
			// The standing proxy still covers the incoming ceiling: one
			// synthetic counter keeps the leader minimally ahead.
			price := incomingCeiling + a.MinBidIncrement
			if price > leaderCeiling {
				price = leaderCeiling
			}
			accepted.Status = types.BidStatusOutbid
			accepted.BidNumber = nextNumber
			nextNumber++
			res.Synthetic = &types.Bid{
				BidID:          "BID_" + uuid.New().String(),
				AuctionID:      a.AuctionID,
				BidderID:       leader.BidderID,
				Amount:         price,
				MaxProxyAmount: leaderCeiling,
				IsProxy:        true,
				Status:         types.BidStatusWinning,
				BidNumber:      nextNumber,
				PlacedAt:       now,
			}
			res.NewCurrentBid = price
			res.NewWinnerID = leader.BidderID
			res.WinningBidID = res.Synthetic.BidID
			res.OutbidPrevious = true
		}
	}

	// Anti-snipe: any accepted bid inside the window pushes the end out,
	// repeatedly and without bound, until bids stop arriving inside it.
	if a.AutoExtend && !res.BuyNow && a.ExtensionWindow > 0 {
		windowStart := a.EndTime.Add(-a.ExtensionDuration())
		if !now.Before(windowStart) {
			extended := now.Add(a.ExtensionDuration())
			res.NewEndTime = &extended
		}
	}

	return res, nil
}
