package registration

import (
	"fmt"
	"time"

	"github.com/archiveone/pan-auction/internal/auctionerrors"
	"github.com/archiveone/pan-auction/internal/notification"
	"github.com/archiveone/pan-auction/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service handles enterprise bidder registrations and the credit gate
// consulted on every enterprise bid.
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

// Register creates a PENDING registration for a bidder against an event.
// A bidder registers at most once per event.
func (s *Service) Register(eventID string, req RegisterRequest) (*Registration, error) {
	if existing, err := s.db.GetByEventAndBidder(eventID, req.BidderID); err == nil {
		return existing, nil
	}

	reg := &Registration{
		RegistrationID: "REG_" + uuid.New().String(),
		EventID:        eventID,
		BidderID:       req.BidderID,
		Status:         StatusPending,
		CreditLimit:    req.CreditLimit,
		ContactName:    req.ContactName,
		ContactEmail:   req.ContactEmail,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if err := s.db.CreateRegistration(reg); err != nil {
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}

	log.Info().
		Str("registration_id", reg.RegistrationID).
		Str("event_id", eventID).
		Str("bidder_id", req.BidderID).
		Msg("bidder registered for event")

	return reg, nil
}

// Approve flips a registration to APPROVED and issues a paddle number.
func (s *Service) Approve(registrationID string) (*Registration, error) {
	reg, err := s.db.ApproveWithPaddle(registrationID)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("registration_id", reg.RegistrationID).
		Int64("paddle_number", reg.PaddleNumber).
		Msg("registration approved")

	s.notifier.Notify(notification.Event{
		Kind:   notification.KindRegistrationApproved,
		UserID: reg.BidderID,
		Payload: map[string]interface{}{
			"event_id":      reg.EventID,
			"paddle_number": reg.PaddleNumber,
		},
	})

	return reg, nil
}

// Reject marks a registration REJECTED.
func (s *Service) Reject(registrationID string) (*Registration, error) {
	return s.db.UpdateStatus(registrationID, StatusRejected)
}

// Suspend marks a registration SUSPENDED. Suspended bidders fail the gate
// until re-approved.
func (s *Service) Suspend(registrationID string) (*Registration, error) {
	return s.db.UpdateStatus(registrationID, StatusSuspended)
}

// GetRegistration retrieves a registration by ID.
func (s *Service) GetRegistration(registrationID string) (*Registration, error) {
	return s.db.GetRegistration(registrationID)
}

// CheckBidAllowed is the credit gate. It runs before ordinary bid
// validation and is independent of it: an unregistered or over-limit bidder
// is rejected whatever the bid would otherwise look like.
func (s *Service) CheckBidAllowed(eventID, bidderID string, amount float64) error {
	reg, err := s.db.GetByEventAndBidder(eventID, bidderID)
	if err != nil {
		return fmt.Errorf("bidder %s on event %s: %w", bidderID, eventID, auctionerrors.ErrBidderNotRegistered)
	}
	if reg.Status != StatusApproved {
		return fmt.Errorf("bidder %s on event %s (status %s): %w",
			bidderID, eventID, reg.Status, auctionerrors.ErrBidderNotRegistered)
	}
	if reg.CreditLimit > 0 && amount > reg.CreditLimit {
		return fmt.Errorf("amount %.2f above limit %.2f: %w",
			amount, reg.CreditLimit, auctionerrors.ErrCreditLimitExceeded)
	}
	return nil
}

// GinHandlers contains HTTP handlers for registration endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// RegisterBidderHandler handles POST requests to register a bidder for an event
// URL parameter: event_id
func (h *GinHandlers) RegisterBidderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID := c.Param("event_id")

		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		reg, err := h.service.Register(eventID, req)
		response.Handle(c, reg, err)
	}
}

// ApproveRegistrationHandler handles POST requests to approve a registration
// Requires internal authentication
// URL parameter: registration_id
func (h *GinHandlers) ApproveRegistrationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reg, err := h.service.Approve(c.Param("registration_id"))
		response.Handle(c, reg, err)
	}
}

// RejectRegistrationHandler handles POST requests to reject a registration
// Requires internal authentication
// URL parameter: registration_id
func (h *GinHandlers) RejectRegistrationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reg, err := h.service.Reject(c.Param("registration_id"))
		response.Handle(c, reg, err)
	}
}

// GetRegistrationHandler handles GET requests for a single registration
// URL parameter: registration_id
func (h *GinHandlers) GetRegistrationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reg, err := h.service.GetRegistration(c.Param("registration_id"))
		response.Handle(c, reg, err)
	}
}
