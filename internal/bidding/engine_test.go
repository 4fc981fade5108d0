package bidding

import (
	"testing"
	"time"

	"github.com/archiveone/pan-auction/internal/auctionerrors"
	"github.com/archiveone/pan-auction/internal/types"
	"github.com/stretchr/testify/require"
)

func liveAuction(now time.Time) *types.Auction {
	return &types.Auction{
		AuctionID:       "AUC_test",
		SellerID:        "seller-1",
		Title:           "Test Lot",
		Currency:        "USD",
		StartingPrice:   100,
		MinBidIncrement: 5,
		StartTime:       now.Add(-time.Hour),
		EndTime:         now.Add(time.Hour),
		Status:          types.AuctionStatusLive,
	}
}

func TestValidate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		mutate  func(a *types.Auction)
		req     BidRequest
		wantErr error
	}{
		{
			name:    "valid_first_bid",
			req:     BidRequest{BidderID: "bidder-1", Amount: 100},
			wantErr: nil,
		},
		{
			name:    "auction_not_live",
			mutate:  func(a *types.Auction) { a.Status = types.AuctionStatusScheduled },
			req:     BidRequest{BidderID: "bidder-1", Amount: 100},
			wantErr: auctionerrors.ErrAuctionNotLive,
		},
		{
			name:    "before_start_time",
			mutate:  func(a *types.Auction) { a.StartTime = now.Add(time.Minute) },
			req:     BidRequest{BidderID: "bidder-1", Amount: 100},
			wantErr: auctionerrors.ErrAuctionNotLive,
		},
		{
			name:    "after_end_time",
			mutate:  func(a *types.Auction) { a.EndTime = now.Add(-time.Minute) },
			req:     BidRequest{BidderID: "bidder-1", Amount: 100},
			wantErr: auctionerrors.ErrAuctionNotLive,
		},
		{
			name:    "seller_bidding_on_own_lot",
			req:     BidRequest{BidderID: "seller-1", Amount: 100},
			wantErr: auctionerrors.ErrSelfBidNotAllowed,
		},
		{
			name:    "first_bid_below_starting_price",
			req:     BidRequest{BidderID: "bidder-1", Amount: 99.99},
			wantErr: auctionerrors.ErrBidTooLow,
		},
		{
			name: "subsequent_bid_below_increment",
			mutate: func(a *types.Auction) {
				a.CurrentBid = 120
				a.BidCount = 3
			},
			req:     BidRequest{BidderID: "bidder-1", Amount: 124},
			wantErr: auctionerrors.ErrBidTooLow,
		},
		{
			name: "subsequent_bid_meets_increment",
			mutate: func(a *types.Auction) {
				a.CurrentBid = 120
				a.BidCount = 3
			},
			req:     BidRequest{BidderID: "bidder-1", Amount: 125},
			wantErr: nil,
		},
		{
			name:    "proxy_ceiling_below_amount",
			req:     BidRequest{BidderID: "bidder-1", Amount: 150, MaxProxyAmount: 120},
			wantErr: auctionerrors.ErrProxyCeilingBelowBid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := liveAuction(now)
			if tt.mutate != nil {
				tt.mutate(a)
			}
			err := Validate(a, tt.req, now)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestResolveFirstBidOpensAtStartingPrice(t *testing.T) {
	now := time.Now()
	a := liveAuction(now)

	res, err := Resolve(a, nil, BidRequest{BidderID: "bidder-1", Amount: 150}, now)
	require.NoError(t, err)

	require.Equal(t, 100.0, res.Accepted.Amount)
	require.Equal(t, 150.0, res.Accepted.MaxProxyAmount)
	require.Equal(t, types.BidStatusWinning, res.Accepted.Status)
	require.Equal(t, int64(1), res.Accepted.BidNumber)
	require.Equal(t, 100.0, res.NewCurrentBid)
	require.Equal(t, "bidder-1", res.NewWinnerID)
	require.Nil(t, res.Synthetic)
	require.False(t, res.OutbidPrevious)
}

func TestResolveFirstBidExactlyAtStartingPrice(t *testing.T) {
	now := time.Now()
	a := liveAuction(now)

	res, err := Resolve(a, nil, BidRequest{BidderID: "bidder-1", Amount: 100}, now)
	require.NoError(t, err)

	require.Equal(t, 100.0, res.Accepted.Amount)
	require.Equal(t, 0.0, res.Accepted.MaxProxyAmount)
}

func TestResolveDirectBidBeatsUncoveredLeader(t *testing.T) {
	now := time.Now()
	a := liveAuction(now)
	a.CurrentBid = 100
	a.CurrentWinnerID = "bidder-1"
	a.BidCount = 1
	leader := &types.Bid{BidID: "BID_1", BidderID: "bidder-1", Amount: 100, BidNumber: 1, Status: types.BidStatusWinning}

	res, err := Resolve(a, leader, BidRequest{BidderID: "bidder-2", Amount: 110}, now)
	require.NoError(t, err)

	require.Equal(t, types.BidStatusWinning, res.Accepted.Status)
	require.Equal(t, 110.0, res.NewCurrentBid)
	require.Equal(t, "bidder-2", res.NewWinnerID)
	require.Nil(t, res.Synthetic)
	require.True(t, res.OutbidPrevious)
}

func TestResolveStandingProxyDefends(t *testing.T) {
	now := time.Now()
	a := liveAuction(now)
	a.StartingPrice = 20
	a.CurrentBid = 20
	a.CurrentWinnerID = "bidder-a"
	a.BidCount = 1
	leader := &types.Bid{
		BidID: "BID_a", BidderID: "bidder-a",
		Amount: 20, MaxProxyAmount: 100, IsProxy: true,
		BidNumber: 1, Status: types.BidStatusWinning,
	}

	res, err := Resolve(a, leader, BidRequest{BidderID: "bidder-b", Amount: 50}, now)
	require.NoError(t, err)

	// The standing proxy keeps the lead at one increment above the challenge.
	require.Equal(t, types.BidStatusOutbid, res.Accepted.Status)
	require.NotNil(t, res.Synthetic)
	require.Equal(t, "bidder-a", res.Synthetic.BidderID)
	require.Equal(t, 55.0, res.Synthetic.Amount)
	require.Equal(t, types.BidStatusWinning, res.Synthetic.Status)
	require.Equal(t, 55.0, res.NewCurrentBid)
	require.Equal(t, "bidder-a", res.NewWinnerID)
	require.Equal(t, res.Synthetic.BidID, res.WinningBidID)

	bids := res.Bids()
	require.Len(t, bids, 2)
	require.Equal(t, int64(2), bids[0].BidNumber)
	require.Equal(t, int64(3), bids[1].BidNumber)
}

func TestResolveDefenseCappedAtLeaderCeiling(t *testing.T) {
	now := time.Now()
	a := liveAuction(now)
	a.StartingPrice = 20
	a.CurrentBid = 20
	a.CurrentWinnerID = "bidder-a"
	a.BidCount = 1
	leader := &types.Bid{
		BidID: "BID_a", BidderID: "bidder-a",
		Amount: 20, MaxProxyAmount: 100, IsProxy: true,
		BidNumber: 1, Status: types.BidStatusWinning,
	}

	// 98 + 5 would overshoot the ceiling; the counter stops at 100.
	res, err := Resolve(a, leader, BidRequest{BidderID: "bidder-b", Amount: 98}, now)
	require.NoError(t, err)
	require.NotNil(t, res.Synthetic)
	require.Equal(t, 100.0, res.Synthetic.Amount)
	require.Equal(t, "bidder-a", res.NewWinnerID)
}

func TestResolveIncomingProxyOvertakesLeader(t *testing.T) {
	now := time.Now()
	a := liveAuction(now)
	a.CurrentBid = 60
	a.CurrentWinnerID = "bidder-a"
	a.BidCount = 2
	leader := &types.Bid{
		BidID: "BID_a", BidderID: "bidder-a",
		Amount: 60, MaxProxyAmount: 100, IsProxy: true,
		BidNumber: 2, Status: types.BidStatusWinning,
	}

	res, err := Resolve(a, leader, BidRequest{BidderID: "bidder-b", Amount: 70, MaxProxyAmount: 200}, now)
	require.NoError(t, err)

	// The old leader defends up to its ceiling once, then the incoming proxy
	// wins one increment above it.
	require.NotNil(t, res.Synthetic)
	require.Equal(t, "bidder-a", res.Synthetic.BidderID)
	require.Equal(t, 100.0, res.Synthetic.Amount)
	require.Equal(t, types.BidStatusOutbid, res.Synthetic.Status)
	require.Equal(t, types.BidStatusWinning, res.Accepted.Status)
	require.Equal(t, 105.0, res.Accepted.Amount)
	require.Equal(t, 105.0, res.NewCurrentBid)
	require.Equal(t, "bidder-b", res.NewWinnerID)

	bids := res.Bids()
	require.Equal(t, res.Synthetic, bids[0])
	require.Equal(t, res.Accepted, bids[1])
}

func TestResolveOvertakeCappedAtIncomingCeiling(t *testing.T) {
	now := time.Now()
	a := liveAuction(now)
	a.CurrentBid = 60
	a.CurrentWinnerID = "bidder-a"
	a.BidCount = 2
	leader := &types.Bid{
		BidID: "BID_a", BidderID: "bidder-a",
		Amount: 60, MaxProxyAmount: 100, IsProxy: true,
		BidNumber: 2, Status: types.BidStatusWinning,
	}

	// Incoming ceiling 102 beats the leader's 100 but cannot reach 105.
	res, err := Resolve(a, leader, BidRequest{BidderID: "bidder-b", Amount: 70, MaxProxyAmount: 102}, now)
	require.NoError(t, err)
	require.Equal(t, 102.0, res.Accepted.Amount)
	require.Equal(t, "bidder-b", res.NewWinnerID)
}

func TestResolveEqualCeilingsEarlierBidKeepsLead(t *testing.T) {
	now := time.Now()
	a := liveAuction(now)
	a.CurrentBid = 60
	a.CurrentWinnerID = "bidder-a"
	a.BidCount = 2
	leader := &types.Bid{
		BidID: "BID_a", BidderID: "bidder-a",
		Amount: 60, MaxProxyAmount: 100, IsProxy: true,
		BidNumber: 2, Status: types.BidStatusWinning,
	}

	res, err := Resolve(a, leader, BidRequest{BidderID: "bidder-b", Amount: 65, MaxProxyAmount: 100}, now)
	require.NoError(t, err)

	// Price does not move and the earlier bid keeps the lead.
	require.Equal(t, types.BidStatusOutbid, res.Accepted.Status)
	require.Nil(t, res.Synthetic)
	require.Equal(t, 60.0, res.NewCurrentBid)
	require.Equal(t, "bidder-a", res.NewWinnerID)
	require.False(t, res.OutbidPrevious)
}

func TestResolveBuyNowShortCircuits(t *testing.T) {
	now := time.Now()
	a := liveAuction(now)
	a.BuyNowPrice = 500
	a.AutoExtend = true
	a.ExtensionWindow = 7200
	a.CurrentBid = 100
	a.CurrentWinnerID = "bidder-a"
	a.BidCount = 1
	leader := &types.Bid{BidID: "BID_a", BidderID: "bidder-a", Amount: 100, BidNumber: 1, Status: types.BidStatusWinning}

	res, err := Resolve(a, leader, BidRequest{BidderID: "bidder-b", Amount: 600}, now)
	require.NoError(t, err)

	require.True(t, res.BuyNow)
	require.Equal(t, types.BidStatusWon, res.Accepted.Status)
	require.Equal(t, 500.0, res.Accepted.Amount)
	require.Equal(t, 500.0, res.NewCurrentBid)
	require.Equal(t, "bidder-b", res.NewWinnerID)
	require.True(t, res.OutbidPrevious)
	// A buy-now close never extends the auction.
	require.Nil(t, res.NewEndTime)
}

func TestResolveAntiSnipeExtension(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name         string
		autoExtend   bool
		window       int64
		endsIn       time.Duration
		wantExtended bool
	}{
		{"inside_window", true, 120, 60 * time.Second, true},
		{"at_window_boundary", true, 120, 120 * time.Second, true},
		{"outside_window", true, 120, 121 * time.Second, false},
		{"auto_extend_disabled", false, 120, 60 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := liveAuction(now)
			a.AutoExtend = tt.autoExtend
			a.ExtensionWindow = tt.window
			a.EndTime = now.Add(tt.endsIn)

			res, err := Resolve(a, nil, BidRequest{BidderID: "bidder-1", Amount: 100}, now)
			require.NoError(t, err)

			if tt.wantExtended {
				require.NotNil(t, res.NewEndTime)
				require.Equal(t, now.Add(a.ExtensionDuration()), *res.NewEndTime)
			} else {
				require.Nil(t, res.NewEndTime)
			}
		})
	}
}

func TestResolveRepeatedExtensionsUnbounded(t *testing.T) {
	now := time.Now()
	a := liveAuction(now)
	a.AutoExtend = true
	a.ExtensionWindow = 120
	a.EndTime = now.Add(60 * time.Second)

	// Each late bid pushes the end out again; no extension cap applies.
	amount := 100.0
	for i := 0; i < 5; i++ {
		bidTime := a.EndTime.Add(-30 * time.Second)
		res, err := Resolve(a, nil, BidRequest{BidderID: "bidder-1", Amount: amount}, bidTime)
		require.NoError(t, err)
		require.NotNil(t, res.NewEndTime)
		require.True(t, res.NewEndTime.After(a.EndTime))
		a.EndTime = *res.NewEndTime
	}
}

func TestResolveRejectsInvalidBid(t *testing.T) {
	now := time.Now()
	a := liveAuction(now)

	res, err := Resolve(a, nil, BidRequest{BidderID: "bidder-1", Amount: 50}, now)
	require.ErrorIs(t, err, auctionerrors.ErrBidTooLow)
	require.Nil(t, res)
}
