package notification

import (
	"github.com/rs/zerolog/log"
)

// Kind is the tagged variant of auction events. Dispatchers switch on it
// exhaustively; adding a kind without handling it is a compile-visible gap,
// not a silent string mismatch.
type Kind int

const (
	KindBidPlaced Kind = iota
	KindOutbid
	KindAuctionExtended
	KindAuctionEndingSoon
	KindAuctionSold
	KindAuctionUnsold
	KindAuctionCancelled
	KindRegistrationApproved
	KindInvoiceIssued
)

func (k Kind) String() string {
	switch k {
	case KindBidPlaced:
		return "bid_placed"
	case KindOutbid:
		return "outbid"
	case KindAuctionExtended:
		return "auction_extended"
	case KindAuctionEndingSoon:
		return "auction_ending_soon"
	case KindAuctionSold:
		return "auction_sold"
	case KindAuctionUnsold:
		return "auction_unsold"
	case KindAuctionCancelled:
		return "auction_cancelled"
	case KindRegistrationApproved:
		return "registration_approved"
	case KindInvoiceIssued:
		return "invoice_issued"
	}
	return "unknown"
}

// Event is a single notification to a single user about an auction.
type Event struct {
	Kind      Kind
	UserID    string
	AuctionID string
	Payload   map[string]interface{}
}

// Notifier is the consumed notification-dispatch capability. Delivery
// transport is external; the engine only emits.
type Notifier interface {
	Notify(event Event)
}

// LogNotifier records events to the structured log. It stands in for the
// external dispatch service in development and tests.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(event Event) {
	log.Info().
		Str("component", "notifier").
		Str("kind", event.Kind.String()).
		Str("user_id", event.UserID).
		Str("auction_id", event.AuctionID).
		Interface("payload", event.Payload).
		Msg("notification dispatched")
}

// NopNotifier discards events. Used where tests do not assert on dispatch.
type NopNotifier struct{}

func (NopNotifier) Notify(Event) {}

// Recorder captures dispatched events for assertions.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Notify(event Event) {
	r.Events = append(r.Events, event)
}
