package registration

import (
	"time"

	"gorm.io/gorm"
)

const (
	StatusPending   = "PENDING"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
	StatusSuspended = "SUSPENDED"
)

// Registration pairs a bidder with an enterprise event. A bid against a lot
// in the event is acceptable only while an APPROVED registration exists and
// the amount fits the credit limit (0 means no limit).
type Registration struct {
	gorm.Model     `json:"-"`
	RegistrationID string    `gorm:"uniqueIndex" json:"registration_id"`
	EventID        string    `gorm:"index:idx_registrations_event_bidder,unique,priority:1" json:"event_id"`
	BidderID       string    `gorm:"index:idx_registrations_event_bidder,unique,priority:2" json:"bidder_id"`
	Status         string    `json:"status"`
	CreditLimit    float64   `json:"credit_limit"`
	PaddleNumber   int64     `json:"paddle_number,omitempty"`
	ContactName    string    `json:"contact_name,omitempty"`
	ContactEmail   string    `json:"contact_email,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RegisterRequest is the payload for registering a bidder to an event.
type RegisterRequest struct {
	BidderID     string  `json:"bidder_id" binding:"required"`
	CreditLimit  float64 `json:"credit_limit"`
	ContactName  string  `json:"contact_name"`
	ContactEmail string  `json:"contact_email"`
}
