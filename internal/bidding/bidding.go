package bidding

import (
	"errors"
	"fmt"
	"time"

	"github.com/archiveone/pan-auction/internal/auctionerrors"
	"github.com/archiveone/pan-auction/internal/notification"
	"github.com/archiveone/pan-auction/internal/payments"
	"github.com/archiveone/pan-auction/internal/types"
	"github.com/archiveone/pan-auction/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// maxCommitRetries bounds the optimistic-concurrency retry loop. A bid that
// keeps losing the race surfaces ErrTransientConflict and the caller may
// resubmit.
const maxCommitRetries = 3

// CreditGate is the enterprise registration check consulted before
// ordinary validation. The open-market path uses a nil-free no-op via
// Service wiring.
type CreditGate interface {
	CheckBidAllowed(eventID, bidderID string, amount float64) error
}

// Settler settles a sold auction. Buy-now sales never reach the closing
// sweep, so the bid pipeline hands them to settlement itself.
type Settler interface {
	SettleAuction(auctionID string) error
}

// Service runs the full bid pipeline: credit gate, validation, proxy
// resolution, anti-snipe, atomic commit.
type Service struct {
	db         *Database
	gate       CreditGate
	authorizer payments.Authorizer
	settler    Settler
	notifier   notification.Notifier
}

func NewService(gormDB *gorm.DB, gate CreditGate, authorizer payments.Authorizer, settler Settler, notifier notification.Notifier) *Service {
	return &Service{
		db:         NewDatabase(gormDB),
		gate:       gate,
		authorizer: authorizer,
		settler:    settler,
		notifier:   notifier,
	}
}

// PlaceBid validates, resolves and commits one bid as a single atomic unit
// per attempt. On a commit conflict the whole resolution is retried against
// the latest state rather than aborting the bid.
func (s *Service) PlaceBid(req BidRequest, idempotencyKey string) (*BidResult, error) {
	logger := log.With().
		Str("auction_id", req.AuctionID).
		Str("bidder_id", req.BidderID).
		Float64("amount", req.Amount).
		Str("service", "bidding").
		Logger()

	if idempotencyKey != "" {
		record, err := s.db.GetIdempotencyRecord(idempotencyKey)
		if err != nil {
			return nil, err
		}
		if record != nil && record.ExpiresAt.After(time.Now()) {
			logger.Info().Str("bid_id", record.ResourceID).Msg("returning existing bid for idempotency key")
			return s.resultForBid(record.ResourceID)
		}
	}

	if req.IsProxy() && req.MaxProxyAmount < req.Amount {
		return nil, fmt.Errorf("ceiling %.2f below amount %.2f: %w",
			req.MaxProxyAmount, req.Amount, auctionerrors.ErrProxyCeilingBelowBid)
	}

	if err := s.authorizer.AuthorizeFunds(req.BidderID, req.Ceiling()); err != nil {
		logger.Warn().Err(err).Msg("funds authorization declined")
		return nil, fmt.Errorf("%w: %v", auctionerrors.ErrFundsNotAuthorized, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		auction, err := s.db.GetAuction(req.AuctionID)
		if err != nil {
			return nil, err
		}

		// Enterprise lots pass the credit gate before, and independently
		// of, ordinary bid validation.
		if auction.EventID != "" && s.gate != nil {
			if err := s.gate.CheckBidAllowed(auction.EventID, req.BidderID, req.Amount); err != nil {
				logger.Warn().Err(err).Msg("credit gate rejected bid")
				return nil, err
			}
		}

		leader, err := s.db.GetWinningBid(req.AuctionID)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		res, err := Resolve(auction, leader, req, now)
		if err != nil {
			return nil, err
		}

		if err := s.db.CommitResolution(auction, res, idempotencyKey); err != nil {
			if errors.Is(err, auctionerrors.ErrTransientConflict) {
				logger.Debug().Int("attempt", attempt+1).Msg("commit lost optimistic race, retrying")
				lastErr = err
				continue
			}
			return nil, err
		}

		if res.BuyNow && s.settler != nil {
			// Settlement failure does not unwind the committed sale; the
			// settle endpoint can be retried for this auction.
			if err := s.settler.SettleAuction(auction.AuctionID); err != nil {
				logger.Error().Err(err).Msg("buy-now settlement failed")
			}
		}

		s.dispatchBidNotifications(auction, leader, res)

		endTime := auction.EndTime
		if res.NewEndTime != nil {
			endTime = *res.NewEndTime
		}

		logger.Info().
			Str("bid_id", res.Accepted.BidID).
			Int64("bid_number", res.Accepted.BidNumber).
			Float64("current_bid", res.NewCurrentBid).
			Str("winner_id", res.NewWinnerID).
			Bool("extended", res.NewEndTime != nil).
			Bool("buy_now", res.BuyNow).
			Msg("bid committed")

		return &BidResult{
			Bid:        res.Accepted,
			CurrentBid: res.NewCurrentBid,
			WinnerID:   res.NewWinnerID,
			Winning:    res.WinningBidID == res.Accepted.BidID,
			EndTime:    endTime,
			Extended:   res.NewEndTime != nil,
			BoughtNow:  res.BuyNow,
			BidNumber:  res.Accepted.BidNumber,
			AuctionID:  auction.AuctionID,
			PlacedAt:   res.Accepted.PlacedAt,
			TotalBids:  auction.BidCount + int64(len(res.Bids())),
		}, nil
	}

	logger.Warn().Int("attempts", maxCommitRetries).Msg("bid abandoned after repeated commit conflicts")
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, auctionerrors.ErrTransientConflict
}

// GetBids returns the append-only bid history of an auction.
func (s *Service) GetBids(auctionID string) ([]types.Bid, error) {
	if _, err := s.db.GetAuction(auctionID); err != nil {
		return nil, err
	}
	return s.db.GetBidsByAuction(auctionID)
}

func (s *Service) resultForBid(bidID string) (*BidResult, error) {
	bid, err := s.db.GetBid(bidID)
	if err != nil {
		return nil, err
	}
	auction, err := s.db.GetAuction(bid.AuctionID)
	if err != nil {
		return nil, err
	}
	return &BidResult{
		Bid:        bid,
		CurrentBid: auction.CurrentBid,
		WinnerID:   auction.CurrentWinnerID,
		Winning:    bid.Status == types.BidStatusWinning || bid.Status == types.BidStatusWon,
		EndTime:    auction.EndTime,
		BidNumber:  bid.BidNumber,
		AuctionID:  auction.AuctionID,
		PlacedAt:   bid.PlacedAt,
		TotalBids:  auction.BidCount,
	}, nil
}

func (s *Service) dispatchBidNotifications(auction *types.Auction, leader *types.Bid, res *Resolution) {
	s.notifier.Notify(notification.Event{
		Kind:      notification.KindBidPlaced,
		UserID:    res.Accepted.BidderID,
		AuctionID: auction.AuctionID,
		Payload: map[string]interface{}{
			"current_bid": res.NewCurrentBid,
			"winning":     res.WinningBidID == res.Accepted.BidID,
		},
	})

	if leader != nil && res.OutbidPrevious && res.NewWinnerID != leader.BidderID {
		s.notifier.Notify(notification.Event{
			Kind:      notification.KindOutbid,
			UserID:    leader.BidderID,
			AuctionID: auction.AuctionID,
			Payload:   map[string]interface{}{"current_bid": res.NewCurrentBid},
		})
	}

	if res.NewEndTime != nil {
		s.notifier.Notify(notification.Event{
			Kind:      notification.KindAuctionExtended,
			UserID:    auction.SellerID,
			AuctionID: auction.AuctionID,
			Payload:   map[string]interface{}{"end_time": res.NewEndTime},
		})
	}

	if res.BuyNow {
		s.notifier.Notify(notification.Event{
			Kind:      notification.KindAuctionSold,
			UserID:    res.Accepted.BidderID,
			AuctionID: auction.AuctionID,
			Payload:   map[string]interface{}{"hammer_price": res.NewCurrentBid},
		})
	}
}

// GinHandlers contains HTTP handlers for bidding endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// PlaceBidHandler handles POST requests to place a bid on an auction
// Requires a valid JWT token and idempotency key in headers
// URL parameter: auction_id
func (h *GinHandlers) PlaceBidHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		var req BidRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		req.AuctionID = c.Param("auction_id")
		if req.BidderID == "" {
			req.BidderID = c.GetString("clientID")
		}

		result, err := h.service.PlaceBid(req, idempotencyKey)
		response.Handle(c, result, err)
	}
}

// GetBidsHandler handles GET requests for an auction's bid history
// URL parameter: auction_id
func (h *GinHandlers) GetBidsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bids, err := h.service.GetBids(c.Param("auction_id"))
		response.Handle(c, bids, err)
	}
}
