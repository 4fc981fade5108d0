package auction

import (
	"fmt"
	"testing"
	"time"

	"github.com/archiveone/pan-auction/internal/auctionerrors"
	"github.com/archiveone/pan-auction/internal/notification"
	"github.com/archiveone/pan-auction/internal/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&types.Auction{}, &types.Bid{}))
	return db
}

// recordingSettler captures which sold auctions were handed to settlement.
type recordingSettler struct {
	settled []string
	err     error
}

func (s *recordingSettler) SettleAuction(auctionID string) error {
	s.settled = append(s.settled, auctionID)
	return s.err
}

func validCreateRequest() CreateAuctionRequest {
	now := time.Now()
	return CreateAuctionRequest{
		SellerID:      "seller-1",
		Title:         "Test Lot",
		StartingPrice: 100,
		StartTime:     now.Add(time.Hour),
		EndTime:       now.Add(2 * time.Hour),
	}
}

func TestCreateAuctionDefaults(t *testing.T) {
	db := newTestDB(t)
	service := NewService(db, notification.NopNotifier{}, nil)

	a, err := service.CreateAuction(validCreateRequest())
	require.NoError(t, err)

	require.Equal(t, types.AuctionStatusDraft, a.Status)
	require.Equal(t, DefaultCurrency, a.Currency)
	require.Equal(t, DefaultMinIncrement, a.MinBidIncrement)
	require.Equal(t, DefaultPremiumPct, a.PremiumPct)
	require.Equal(t, DefaultCommissionPct, a.CommissionPct)
	require.NotEmpty(t, a.AuctionID)
}

func TestCreateAuctionRejectsInvertedWindow(t *testing.T) {
	db := newTestDB(t)
	service := NewService(db, notification.NopNotifier{}, nil)

	req := validCreateRequest()
	req.EndTime = req.StartTime.Add(-time.Minute)

	_, err := service.CreateAuction(req)
	require.ErrorIs(t, err, auctionerrors.ErrInvalidStateTransition)
}

func TestPublishAuction(t *testing.T) {
	db := newTestDB(t)
	service := NewService(db, notification.NopNotifier{}, nil)

	t.Run("future_start_goes_scheduled", func(t *testing.T) {
		a, err := service.CreateAuction(validCreateRequest())
		require.NoError(t, err)

		published, err := service.PublishAuction(a.AuctionID)
		require.NoError(t, err)
		require.Equal(t, types.AuctionStatusScheduled, published.Status)
	})

	t.Run("past_start_goes_live", func(t *testing.T) {
		req := validCreateRequest()
		req.StartTime = time.Now().Add(-time.Minute)
		a, err := service.CreateAuction(req)
		require.NoError(t, err)

		published, err := service.PublishAuction(a.AuctionID)
		require.NoError(t, err)
		require.Equal(t, types.AuctionStatusLive, published.Status)
	})

	t.Run("republish_rejected", func(t *testing.T) {
		a, err := service.CreateAuction(validCreateRequest())
		require.NoError(t, err)

		_, err = service.PublishAuction(a.AuctionID)
		require.NoError(t, err)

		_, err = service.PublishAuction(a.AuctionID)
		require.ErrorIs(t, err, auctionerrors.ErrInvalidStateTransition)
	})
}

func TestCancelAuction(t *testing.T) {
	db := newTestDB(t)
	service := NewService(db, notification.NopNotifier{}, nil)

	t.Run("only_seller_may_cancel", func(t *testing.T) {
		a, err := service.CreateAuction(validCreateRequest())
		require.NoError(t, err)

		_, err = service.CancelAuction(a.AuctionID, "someone-else", "changed my mind")
		require.ErrorIs(t, err, auctionerrors.ErrNotAuthorized)
	})

	t.Run("draft_is_withdrawn", func(t *testing.T) {
		a, err := service.CreateAuction(validCreateRequest())
		require.NoError(t, err)

		cancelled, err := service.CancelAuction(a.AuctionID, "seller-1", "listing error")
		require.NoError(t, err)
		require.Equal(t, types.AuctionStatusWithdrawn, cancelled.Status)
		require.Equal(t, "listing error", cancelled.CancelReason)
	})

	t.Run("live_is_cancelled", func(t *testing.T) {
		req := validCreateRequest()
		req.StartTime = time.Now().Add(-time.Minute)
		a, err := service.CreateAuction(req)
		require.NoError(t, err)
		_, err = service.PublishAuction(a.AuctionID)
		require.NoError(t, err)

		cancelled, err := service.CancelAuction(a.AuctionID, "seller-1", "item damaged")
		require.NoError(t, err)
		require.Equal(t, types.AuctionStatusCancelled, cancelled.Status)
	})

	t.Run("terminal_state_rejected", func(t *testing.T) {
		a, err := service.CreateAuction(validCreateRequest())
		require.NoError(t, err)
		_, err = service.CancelAuction(a.AuctionID, "seller-1", "first")
		require.NoError(t, err)

		_, err = service.CancelAuction(a.AuctionID, "seller-1", "again")
		require.ErrorIs(t, err, auctionerrors.ErrInvalidStateTransition)
	})
}

func seedEndedLive(t *testing.T, db *gorm.DB, mutate func(a *types.Auction)) *types.Auction {
	t.Helper()
	now := time.Now()
	a := &types.Auction{
		AuctionID:       "AUC_" + uuid.New().String(),
		SellerID:        "seller-1",
		Title:           "Test Lot",
		Currency:        "USD",
		StartingPrice:   100,
		MinBidIncrement: 5,
		StartTime:       now.Add(-2 * time.Hour),
		EndTime:         now.Add(-time.Minute),
		Status:          types.AuctionStatusLive,
	}
	if mutate != nil {
		mutate(a)
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

func seedWinningBid(t *testing.T, db *gorm.DB, a *types.Auction, bidderID string, amount float64) *types.Bid {
	t.Helper()
	bid := &types.Bid{
		BidID:     "BID_" + uuid.New().String(),
		AuctionID: a.AuctionID,
		BidNumber: a.BidCount,
		BidderID:  bidderID,
		Amount:    amount,
		Status:    types.BidStatusWinning,
		PlacedAt:  time.Now(),
	}
	require.NoError(t, db.Create(bid).Error)
	return bid
}

func TestCloseDueAuctionsSellsAboveReserve(t *testing.T) {
	db := newTestDB(t)
	settler := &recordingSettler{}
	service := NewService(db, notification.NopNotifier{}, settler)

	a := seedEndedLive(t, db, func(a *types.Auction) {
		a.ReservePrice = 150
		a.CurrentBid = 200
		a.CurrentWinnerID = "bidder-1"
		a.BidCount = 1
	})
	seedWinningBid(t, db, a, "bidder-1", 200)

	transitions, err := service.CloseDueAuctions()
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	require.Equal(t, a.AuctionID, transitions[0].AuctionID)
	require.Equal(t, types.AuctionStatusSold, transitions[0].NewStatus)

	stored, err := service.GetAuction(a.AuctionID)
	require.NoError(t, err)
	require.Equal(t, types.AuctionStatusSold, stored.Status)
	require.NotNil(t, stored.SoldAt)

	var bid types.Bid
	require.NoError(t, db.Where("auction_id = ?", a.AuctionID).First(&bid).Error)
	require.Equal(t, types.BidStatusWon, bid.Status)

	require.Equal(t, []string{a.AuctionID}, settler.settled)
}

func TestCloseDueAuctionsReserveNotMet(t *testing.T) {
	db := newTestDB(t)
	settler := &recordingSettler{}
	service := NewService(db, notification.NopNotifier{}, settler)

	a := seedEndedLive(t, db, func(a *types.Auction) {
		a.ReservePrice = 500
		a.CurrentBid = 200
		a.CurrentWinnerID = "bidder-1"
		a.BidCount = 1
	})
	seedWinningBid(t, db, a, "bidder-1", 200)

	transitions, err := service.CloseDueAuctions()
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	require.Equal(t, types.AuctionStatusUnsold, transitions[0].NewStatus)

	var bid types.Bid
	require.NoError(t, db.Where("auction_id = ?", a.AuctionID).First(&bid).Error)
	require.Equal(t, types.BidStatusLost, bid.Status)

	require.Empty(t, settler.settled)
}

func TestCloseDueAuctionsNoBidsUnsold(t *testing.T) {
	db := newTestDB(t)
	service := NewService(db, notification.NopNotifier{}, nil)

	a := seedEndedLive(t, db, nil)

	transitions, err := service.CloseDueAuctions()
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	require.Equal(t, types.AuctionStatusUnsold, transitions[0].NewStatus)

	stored, err := service.GetAuction(a.AuctionID)
	require.NoError(t, err)
	require.Nil(t, stored.SoldAt)
}

func TestCloseDueAuctionsIdempotent(t *testing.T) {
	db := newTestDB(t)
	settler := &recordingSettler{}
	service := NewService(db, notification.NopNotifier{}, settler)

	a := seedEndedLive(t, db, func(a *types.Auction) {
		a.CurrentBid = 200
		a.CurrentWinnerID = "bidder-1"
		a.BidCount = 1
	})
	seedWinningBid(t, db, a, "bidder-1", 200)

	first, err := service.CloseDueAuctions()
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A double-fired sweep finds nothing left to do.
	second, err := service.CloseDueAuctions()
	require.NoError(t, err)
	require.Empty(t, second)

	require.Len(t, settler.settled, 1)
}

func TestCloseDueAuctionsActivatesScheduled(t *testing.T) {
	db := newTestDB(t)
	service := NewService(db, notification.NopNotifier{}, nil)

	now := time.Now()
	a := &types.Auction{
		AuctionID:     "AUC_" + uuid.New().String(),
		SellerID:      "seller-1",
		Title:         "Test Lot",
		StartingPrice: 100,
		StartTime:     now.Add(-time.Minute),
		EndTime:       now.Add(time.Hour),
		Status:        types.AuctionStatusScheduled,
	}
	require.NoError(t, db.Create(a).Error)

	transitions, err := service.CloseDueAuctions()
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	require.Equal(t, types.AuctionStatusLive, transitions[0].NewStatus)

	stored, err := service.GetAuction(a.AuctionID)
	require.NoError(t, err)
	require.Equal(t, types.AuctionStatusLive, stored.Status)
}

func TestCloseDueAuctionsEndingSoonNotifiedOnce(t *testing.T) {
	db := newTestDB(t)
	recorder := &notification.Recorder{}
	service := NewService(db, recorder, nil)

	now := time.Now()
	a := &types.Auction{
		AuctionID:       "AUC_" + uuid.New().String(),
		SellerID:        "seller-1",
		Title:           "Test Lot",
		StartingPrice:   100,
		StartTime:       now.Add(-time.Hour),
		EndTime:         now.Add(5 * time.Minute),
		Status:          types.AuctionStatusLive,
		CurrentWinnerID: "bidder-1",
	}
	require.NoError(t, db.Create(a).Error)

	_, err := service.CloseDueAuctions()
	require.NoError(t, err)
	_, err = service.CloseDueAuctions()
	require.NoError(t, err)

	var endingSoon int
	for _, e := range recorder.Events {
		if e.Kind == notification.KindAuctionEndingSoon {
			endingSoon++
		}
	}
	require.Equal(t, 1, endingSoon)
}

func TestCloseDueAuctionsSettlementFailureIsIsolated(t *testing.T) {
	db := newTestDB(t)
	settler := &recordingSettler{err: fmt.Errorf("settlement store down")}
	service := NewService(db, notification.NopNotifier{}, settler)

	a := seedEndedLive(t, db, func(a *types.Auction) {
		a.CurrentBid = 200
		a.CurrentWinnerID = "bidder-1"
		a.BidCount = 1
	})
	seedWinningBid(t, db, a, "bidder-1", 200)

	// The close itself still succeeds when settlement errors.
	transitions, err := service.CloseDueAuctions()
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	require.Equal(t, types.AuctionStatusSold, transitions[0].NewStatus)
}
