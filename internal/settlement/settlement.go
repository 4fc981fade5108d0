package settlement

import (
	"errors"
	"fmt"

	"github.com/archiveone/pan-auction/internal/auctionerrors"
	"github.com/archiveone/pan-auction/internal/notification"
	"github.com/archiveone/pan-auction/internal/types"
	"github.com/archiveone/pan-auction/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service turns closed sales into financial documents: one invoice per
// buyer, one payout per seller, both referencing the immutable closing bid.
type Service struct {
	db       *Database
	notifier notification.Notifier
}

func NewService(gormDB *gorm.DB, notifier notification.Notifier) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		notifier: notifier,
	}
}

// SettleAuction settles a single standalone sale. It runs once per item:
// re-running for an already-settled auction is a no-op surfacing
// ErrAlreadySettled. Lots that belong to an enterprise event are settled in
// aggregate by SettleEvent instead.
func (s *Service) SettleAuction(auctionID string) error {
	logger := log.With().
		Str("auction_id", auctionID).
		Str("service", "settlement").
		Logger()

	a, err := s.db.GetAuction(auctionID)
	if err != nil {
		return err
	}
	if a.EventID != "" {
		logger.Debug().Str("event_id", a.EventID).Msg("lot deferred to event settlement")
		return nil
	}
	if a.Status != types.AuctionStatusSold {
		return fmt.Errorf("settle from %s: %w", a.Status, auctionerrors.ErrInvalidStateTransition)
	}

	settled, err := s.db.HasSettledLot(auctionID)
	if err != nil {
		return err
	}
	if settled {
		return fmt.Errorf("auction %s: %w", auctionID, auctionerrors.ErrAlreadySettled)
	}

	winningBid, err := s.db.GetWonBid(auctionID)
	if err != nil {
		return err
	}
	bidID := ""
	if winningBid != nil {
		bidID = winningBid.BidID
	}

	invoiceBuilder := NewInvoiceBuilder("", a.CurrentWinnerID, a.Currency)
	payoutBuilder := NewPayoutBuilder("", a.SellerID, a.Currency)
	if err := invoiceBuilder.AddLot(a, bidID); err != nil {
		return fmt.Errorf("invoice build failed: %w", err)
	}
	if err := payoutBuilder.AddLot(a, bidID); err != nil {
		return fmt.Errorf("payout build failed: %w", err)
	}

	invoice := invoiceBuilder.Build()
	payout := payoutBuilder.Build()
	if err := s.db.CreateDocuments([]*Invoice{invoice}, []*Payout{payout}); err != nil {
		return err
	}

	logger.Info().
		Str("invoice_id", invoice.InvoiceID).
		Str("payout_id", payout.PayoutID).
		Float64("hammer_price", a.CurrentBid).
		Float64("total_due", invoice.TotalDue).
		Float64("net_payout", payout.NetPayout).
		Msg("auction settled")

	s.notifier.Notify(notification.Event{
		Kind:      notification.KindInvoiceIssued,
		UserID:    a.CurrentWinnerID,
		AuctionID: auctionID,
		Payload: map[string]interface{}{
			"invoice_id": invoice.InvoiceID,
			"total_due":  invoice.TotalDue,
		},
	})

	return nil
}

// EventSettlementResult reports what an event settlement produced.
type EventSettlementResult struct {
	EventID  string     `json:"event_id"`
	Invoices []*Invoice `json:"invoices"`
	Payouts  []*Payout  `json:"payouts"`
	Skipped  []string   `json:"skipped_lots,omitempty"`
}

// SettleEvent aggregates every sold lot of an enterprise event into one
// invoice per buyer and one payout per seller. A malformed lot is skipped
// and reported; it never blocks settling the rest. Re-running for an
// already-settled event is a no-op surfacing ErrAlreadySettled.
func (s *Service) SettleEvent(eventID string) (*EventSettlementResult, error) {
	logger := log.With().
		Str("event_id", eventID).
		Str("service", "settlement").
		Logger()

	existing, err := s.db.CountEventInvoices(eventID)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, fmt.Errorf("event %s: %w", eventID, auctionerrors.ErrAlreadySettled)
	}

	lots, err := s.db.GetSoldEventAuctions(eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sold lots: %w", err)
	}

	invoiceBuilders := make(map[string]*InvoiceBuilder)
	payoutBuilders := make(map[string]*PayoutBuilder)
	var skipped []string

	for i := range lots {
		lot := lots[i]
		winningBid, err := s.db.GetWonBid(lot.AuctionID)
		if err != nil || winningBid == nil || lot.CurrentWinnerID == "" {
			logger.Error().
				Str("auction_id", lot.AuctionID).
				Msg("sold lot has no winning bid, skipping settlement for this lot")
			skipped = append(skipped, lot.AuctionID)
			continue
		}

		ib, ok := invoiceBuilders[lot.CurrentWinnerID]
		if !ok {
			ib = NewInvoiceBuilder(eventID, lot.CurrentWinnerID, lot.Currency)
			invoiceBuilders[lot.CurrentWinnerID] = ib
		}
		pb, ok := payoutBuilders[lot.SellerID]
		if !ok {
			pb = NewPayoutBuilder(eventID, lot.SellerID, lot.Currency)
			payoutBuilders[lot.SellerID] = pb
		}

		if err := ib.AddLot(&lot, winningBid.BidID); err != nil {
			logger.Error().Err(err).Str("auction_id", lot.AuctionID).Msg("lot failed invoice build, skipping")
			skipped = append(skipped, lot.AuctionID)
			continue
		}
		if err := pb.AddLot(&lot, winningBid.BidID); err != nil {
			logger.Error().Err(err).Str("auction_id", lot.AuctionID).Msg("lot failed payout build, skipping")
			skipped = append(skipped, lot.AuctionID)
			continue
		}
	}

	result := &EventSettlementResult{EventID: eventID, Skipped: skipped}
	for _, ib := range invoiceBuilders {
		if !ib.Empty() {
			result.Invoices = append(result.Invoices, ib.Build())
		}
	}
	for _, pb := range payoutBuilders {
		if !pb.Empty() {
			result.Payouts = append(result.Payouts, pb.Build())
		}
	}

	if len(result.Invoices) == 0 && len(result.Payouts) == 0 {
		logger.Info().Msg("no settleable lots for event")
		return result, nil
	}

	if err := s.db.CreateDocuments(result.Invoices, result.Payouts); err != nil {
		return nil, err
	}

	logger.Info().
		Int("invoices", len(result.Invoices)).
		Int("payouts", len(result.Payouts)).
		Int("skipped", len(skipped)).
		Msg("event settled")

	for _, inv := range result.Invoices {
		s.notifier.Notify(notification.Event{
			Kind:   notification.KindInvoiceIssued,
			UserID: inv.BuyerID,
			Payload: map[string]interface{}{
				"invoice_id": inv.InvoiceID,
				"event_id":   eventID,
				"total_due":  inv.TotalDue,
			},
		})
	}

	return result, nil
}

// GetInvoice returns the buyer-side settlement document for an event.
func (s *Service) GetInvoice(eventID, buyerID string) (*Invoice, error) {
	return s.db.GetInvoiceByEventAndBuyer(eventID, buyerID)
}

// GetPayout returns the seller-side settlement document for an event.
func (s *Service) GetPayout(eventID, sellerID string) (*Payout, error) {
	return s.db.GetPayoutByEventAndSeller(eventID, sellerID)
}

// GetAuctionSettlement returns both documents of a standalone sale.
func (s *Service) GetAuctionSettlement(auctionID string) (*Invoice, *Payout, error) {
	invoice, err := s.db.GetInvoiceByAuction(auctionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("auction %s not settled: %w", auctionID, gorm.ErrRecordNotFound)
		}
		return nil, nil, err
	}
	payout, err := s.db.GetPayoutByAuction(auctionID)
	if err != nil {
		return nil, nil, err
	}
	return invoice, payout, nil
}

// GinHandlers contains HTTP handlers for settlement endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SettleEventHandler handles POST requests to settle a whole event
// Requires internal authentication
// URL parameter: event_id
func (h *GinHandlers) SettleEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.SettleEvent(c.Param("event_id"))
		if errors.Is(err, auctionerrors.ErrAlreadySettled) {
			// Idempotent no-op, not a failure.
			response.Success(c, gin.H{"event_id": c.Param("event_id"), "status": "already_settled"})
			return
		}
		response.Handle(c, result, err)
	}
}

// SettleAuctionHandler handles POST requests to settle a single standalone
// sale, used to retry a buy-now whose inline settlement failed
// URL parameter: auction_id
func (h *GinHandlers) SettleAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auctionID := c.Param("auction_id")
		err := h.service.SettleAuction(auctionID)
		if errors.Is(err, auctionerrors.ErrAlreadySettled) {
			response.Success(c, gin.H{"auction_id": auctionID, "status": "already_settled"})
			return
		}
		response.Handle(c, gin.H{"auction_id": auctionID, "status": "settled"}, err)
	}
}

// GetInvoiceHandler handles GET requests for a buyer's event invoice
// URL parameters: event_id, buyer_id
func (h *GinHandlers) GetInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		invoice, err := h.service.GetInvoice(c.Param("event_id"), c.Param("buyer_id"))
		response.Handle(c, invoice, err)
	}
}

// GetPayoutHandler handles GET requests for a seller's event payout
// URL parameters: event_id, seller_id
func (h *GinHandlers) GetPayoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		payout, err := h.service.GetPayout(c.Param("event_id"), c.Param("seller_id"))
		response.Handle(c, payout, err)
	}
}

// GetAuctionSettlementHandler handles GET requests for a standalone sale's
// settlement documents
// URL parameter: auction_id
func (h *GinHandlers) GetAuctionSettlementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		invoice, payout, err := h.service.GetAuctionSettlement(c.Param("auction_id"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"invoice": invoice, "payout": payout})
	}
}
