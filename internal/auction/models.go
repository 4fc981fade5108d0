package auction

import "time"

// Default settlement rates applied when a listing does not set its own.
const (
	DefaultPremiumPct     = 0.15
	DefaultCommissionPct  = 0.10
	DefaultMinIncrement   = 1.0
	DefaultCurrency       = "USD"
	defaultExtensionSecs  = 120
	endingSoonHorizonSecs = 600
)

// CreateAuctionRequest is the payload for creating a draft listing.
type CreateAuctionRequest struct {
	SellerID        string    `json:"seller_id"`
	EventID         string    `json:"event_id"`
	Title           string    `json:"title" binding:"required"`
	Currency        string    `json:"currency"`
	StartingPrice   float64   `json:"starting_price" binding:"required"`
	ReservePrice    float64   `json:"reserve_price"`
	BuyNowPrice     float64   `json:"buy_now_price"`
	MinBidIncrement float64   `json:"min_bid_increment"`
	StartTime       time.Time `json:"start_time" binding:"required"`
	EndTime         time.Time `json:"end_time" binding:"required"`
	AutoExtend      bool      `json:"auto_extend"`
	ExtensionWindow int64     `json:"extension_window_seconds"`
	PremiumPct      float64   `json:"premium_pct"`
	CommissionPct   float64   `json:"commission_pct"`
}

// CancelRequest is the payload for cancelling or withdrawing a listing.
type CancelRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason" binding:"required"`
}

// ClosedAuction reports one transition made by the closing sweep.
type ClosedAuction struct {
	AuctionID string `json:"auction_id"`
	NewStatus string `json:"new_status"`
}
