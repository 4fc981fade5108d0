package auction

import (
	"fmt"
	"time"

	"github.com/archiveone/pan-auction/internal/auctionerrors"
	"github.com/archiveone/pan-auction/internal/notification"
	"github.com/archiveone/pan-auction/internal/types"
	"github.com/archiveone/pan-auction/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Settler runs post-close settlement for a sold auction. A settlement
// failure is fatal to that item only; the sweep keeps closing the rest.
type Settler interface {
	SettleAuction(auctionID string) error
}

// Service drives the auction lifecycle:
// draft → scheduled → live → ended → sold|unsold, plus cancellation and
// withdrawal.
type Service struct {
	db       *Database
	notifier notification.Notifier
	settler  Settler
}

func NewService(gormDB *gorm.DB, notifier notification.Notifier, settler Settler) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		notifier: notifier,
		settler:  settler,
	}
}

// CreateAuction records a new listing in DRAFT.
func (s *Service) CreateAuction(req CreateAuctionRequest) (*types.Auction, error) {
	if !req.EndTime.After(req.StartTime) {
		return nil, fmt.Errorf("end_time must be after start_time: %w", auctionerrors.ErrInvalidStateTransition)
	}

	auction := &types.Auction{
		AuctionID:       "AUC_" + uuid.New().String(),
		EventID:         req.EventID,
		SellerID:        req.SellerID,
		Title:           req.Title,
		Currency:        req.Currency,
		StartingPrice:   req.StartingPrice,
		ReservePrice:    req.ReservePrice,
		BuyNowPrice:     req.BuyNowPrice,
		MinBidIncrement: req.MinBidIncrement,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		AutoExtend:      req.AutoExtend,
		ExtensionWindow: req.ExtensionWindow,
		PremiumPct:      req.PremiumPct,
		CommissionPct:   req.CommissionPct,
		Status:          types.AuctionStatusDraft,
	}
	if auction.Currency == "" {
		auction.Currency = DefaultCurrency
	}
	if auction.MinBidIncrement <= 0 {
		auction.MinBidIncrement = DefaultMinIncrement
	}
	if auction.AutoExtend && auction.ExtensionWindow <= 0 {
		auction.ExtensionWindow = defaultExtensionSecs
	}
	if auction.PremiumPct <= 0 {
		auction.PremiumPct = DefaultPremiumPct
	}
	if auction.CommissionPct <= 0 {
		auction.CommissionPct = DefaultCommissionPct
	}

	if err := s.db.CreateAuction(auction); err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	log.Info().
		Str("auction_id", auction.AuctionID).
		Str("seller_id", auction.SellerID).
		Float64("starting_price", auction.StartingPrice).
		Msg("auction created")

	return auction, nil
}

// PublishAuction moves a draft to SCHEDULED or straight to LIVE, decided by
// comparing start_time to now at publish time.
func (s *Service) PublishAuction(auctionID string) (*types.Auction, error) {
	a, err := s.db.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if a.Status != types.AuctionStatusDraft {
		return nil, fmt.Errorf("publish from %s: %w", a.Status, auctionerrors.ErrInvalidStateTransition)
	}

	now := time.Now()
	if !a.EndTime.After(now) {
		return nil, fmt.Errorf("end_time already passed: %w", auctionerrors.ErrInvalidStateTransition)
	}

	newStatus := types.AuctionStatusScheduled
	if !a.StartTime.After(now) {
		newStatus = types.AuctionStatusLive
	}

	ok, err := s.db.CompareAndSwapStatus(a, map[string]interface{}{"status": newStatus})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, auctionerrors.ErrTransientConflict
	}

	log.Info().
		Str("auction_id", auctionID).
		Str("status", newStatus).
		Msg("auction published")

	return s.db.GetAuction(auctionID)
}

// GetAuction retrieves current auction state.
func (s *Service) GetAuction(auctionID string) (*types.Auction, error) {
	return s.db.GetAuction(auctionID)
}

// CancelAuction removes a listing before sale completes. Allowed from any
// pre-sold state; drafts and scheduled listings are withdrawn instead of
// cancelled. Only the seller may cancel.
func (s *Service) CancelAuction(auctionID, actorID, reason string) (*types.Auction, error) {
	a, err := s.db.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if actorID != a.SellerID {
		return nil, fmt.Errorf("actor %s on auction %s: %w", actorID, auctionID, auctionerrors.ErrNotAuthorized)
	}
	if a.IsTerminal() || a.Status == types.AuctionStatusSold || a.Status == types.AuctionStatusUnsold {
		return nil, fmt.Errorf("cancel from %s: %w", a.Status, auctionerrors.ErrInvalidStateTransition)
	}

	newStatus := types.AuctionStatusCancelled
	if a.Status == types.AuctionStatusDraft || a.Status == types.AuctionStatusScheduled {
		newStatus = types.AuctionStatusWithdrawn
	}

	ok, err := s.db.CompareAndSwapStatus(a, map[string]interface{}{
		"status":        newStatus,
		"cancel_reason": reason,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		// A bid or sweep moved the auction between read and write; the
		// caller decides whether cancellation still applies.
		return nil, auctionerrors.ErrTransientConflict
	}

	log.Info().
		Str("auction_id", auctionID).
		Str("actor_id", actorID).
		Str("status", newStatus).
		Str("reason", reason).
		Msg("auction cancelled")

	if a.Status == types.AuctionStatusLive && a.CurrentWinnerID != "" {
		s.notifier.Notify(notification.Event{
			Kind:      notification.KindAuctionCancelled,
			UserID:    a.CurrentWinnerID,
			AuctionID: auctionID,
			Payload:   map[string]interface{}{"reason": reason},
		})
	}

	return s.db.GetAuction(auctionID)
}

// CloseDueAuctions is the idempotent sweep: due SCHEDULED auctions go LIVE,
// LIVE auctions past end_time go ENDED and immediately SOLD or UNSOLD, and
// sold items are settled. Safe to invoke concurrently and repeatedly; every
// transition is guarded by a status compare-and-swap.
func (s *Service) CloseDueAuctions() ([]ClosedAuction, error) {
	logger := log.With().Str("service", "lifecycle").Logger()
	now := time.Now()
	var transitions []ClosedAuction

	due, err := s.db.GetDueScheduled(now)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due scheduled auctions: %w", err)
	}
	for i := range due {
		a := due[i]
		ok, err := s.db.CompareAndSwapStatus(&a, map[string]interface{}{"status": types.AuctionStatusLive})
		if err != nil {
			logger.Error().Err(err).Str("auction_id", a.AuctionID).Msg("failed to activate scheduled auction")
			continue
		}
		if ok {
			transitions = append(transitions, ClosedAuction{AuctionID: a.AuctionID, NewStatus: types.AuctionStatusLive})
		}
	}

	ending, err := s.db.GetEndingSoon(now, endingSoonHorizonSecs*time.Second)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch ending-soon auctions")
	} else {
		for i := range ending {
			a := ending[i]
			s.notifier.Notify(notification.Event{
				Kind:      notification.KindAuctionEndingSoon,
				UserID:    a.CurrentWinnerID,
				AuctionID: a.AuctionID,
				Payload:   map[string]interface{}{"end_time": a.EndTime},
			})
			if err := s.db.MarkEndingSoonNotified(a.AuctionID); err != nil {
				logger.Error().Err(err).Str("auction_id", a.AuctionID).Msg("failed to mark ending-soon notified")
			}
		}
	}

	overdue, err := s.db.GetDueLive(now)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch overdue auctions: %w", err)
	}

	for i := range overdue {
		a := overdue[i]
		finalStatus, performed, err := s.db.CloseAuction(&a, now)
		if err != nil {
			logger.Error().Err(err).Str("auction_id", a.AuctionID).Msg("failed to close auction")
			continue
		}
		if !performed {
			continue
		}

		transitions = append(transitions, ClosedAuction{AuctionID: a.AuctionID, NewStatus: finalStatus})
		logger.Info().
			Str("auction_id", a.AuctionID).
			Str("status", finalStatus).
			Float64("current_bid", a.CurrentBid).
			Msg("auction closed")

		if finalStatus == types.AuctionStatusSold {
			s.notifier.Notify(notification.Event{
				Kind:      notification.KindAuctionSold,
				UserID:    a.CurrentWinnerID,
				AuctionID: a.AuctionID,
				Payload:   map[string]interface{}{"hammer_price": a.CurrentBid},
			})
			if s.settler != nil {
				// Settlement failure is fatal to this item only.
				if err := s.settler.SettleAuction(a.AuctionID); err != nil {
					logger.Error().Err(err).Str("auction_id", a.AuctionID).Msg("settlement failed for sold auction")
				}
			}
		} else {
			s.notifier.Notify(notification.Event{
				Kind:      notification.KindAuctionUnsold,
				UserID:    a.SellerID,
				AuctionID: a.AuctionID,
				Payload:   map[string]interface{}{"reserve_price": a.ReservePrice},
			})
		}
	}

	return transitions, nil
}

// GinHandlers contains HTTP handlers for auction lifecycle endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateAuctionHandler handles POST requests to create a draft listing
// Requires a valid JWT token; the seller is taken from the token when not
// set in the body
func (h *GinHandlers) CreateAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAuctionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if req.SellerID == "" {
			req.SellerID = c.GetString("clientID")
		}

		auction, err := h.service.CreateAuction(req)
		response.Handle(c, auction, err)
	}
}

// PublishAuctionHandler handles POST requests to publish a draft
// URL parameter: auction_id
func (h *GinHandlers) PublishAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auction, err := h.service.PublishAuction(c.Param("auction_id"))
		response.Handle(c, auction, err)
	}
}

// GetAuctionHandler handles GET requests for auction state
// URL parameter: auction_id
func (h *GinHandlers) GetAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auction, err := h.service.GetAuction(c.Param("auction_id"))
		response.Handle(c, auction, err)
	}
}

// CancelAuctionHandler handles POST requests to cancel a listing
// URL parameter: auction_id
func (h *GinHandlers) CancelAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if req.ActorID == "" {
			req.ActorID = c.GetString("clientID")
		}

		auction, err := h.service.CancelAuction(c.Param("auction_id"), req.ActorID, req.Reason)
		response.Handle(c, auction, err)
	}
}

// CloseDueAuctionsHandler handles POST requests to run the closing sweep
// Requires internal authentication; externally scheduled and may double-fire
func (h *GinHandlers) CloseDueAuctionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		transitions, err := h.service.CloseDueAuctions()
		response.Handle(c, transitions, err)
	}
}
