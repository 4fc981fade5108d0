package types

import (
	"time"

	"gorm.io/gorm"
)

// Auction statuses. Transitions are one-directional except cancellation,
// which is allowed from any pre-sold state.
const (
	AuctionStatusDraft     = "DRAFT"
	AuctionStatusScheduled = "SCHEDULED"
	AuctionStatusLive      = "LIVE"
	AuctionStatusEnded     = "ENDED"
	AuctionStatusSold      = "SOLD"
	AuctionStatusUnsold    = "UNSOLD"
	AuctionStatusCancelled = "CANCELLED"
	AuctionStatusWithdrawn = "WITHDRAWN"
)

// Bid statuses.
const (
	BidStatusActive    = "ACTIVE"
	BidStatusOutbid    = "OUTBID"
	BidStatusWinning   = "WINNING"
	BidStatusWon       = "WON"
	BidStatusLost      = "LOST"
	BidStatusWithdrawn = "WITHDRAWN"
	BidStatusInvalid   = "INVALID"
)

// Auction is a time-boxed listing accepting competitive bids. For enterprise
// events an auction is a single lot grouped under EventID.
type Auction struct {
	gorm.Model      `json:"-"`
	AuctionID       string     `gorm:"uniqueIndex" json:"auction_id"`
	EventID         string     `gorm:"index" json:"event_id,omitempty"`
	SellerID        string     `json:"seller_id"`
	Title           string     `json:"title"`
	Currency        string     `json:"currency"`
	StartingPrice   float64    `json:"starting_price"`
	ReservePrice    float64    `json:"reserve_price,omitempty"`
	BuyNowPrice     float64    `json:"buy_now_price,omitempty"`
	MinBidIncrement float64    `json:"min_bid_increment"`
	CurrentBid      float64    `json:"current_bid"`
	CurrentWinnerID string     `json:"current_winner_id,omitempty"`
	BidCount        int64      `json:"bid_count"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	AutoExtend      bool       `json:"auto_extend"`
	ExtensionWindow int64      `json:"extension_window_seconds"`
	PremiumPct      float64    `json:"premium_pct"`
	CommissionPct   float64    `json:"commission_pct"`
	Status          string     `json:"status"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	SoldAt          *time.Time `json:"sold_at,omitempty"`

	// EndingSoonNotified dedupes the ending-soon notification per auction.
	EndingSoonNotified bool `json:"-"`

	// Revision guards every mutation of the hot tuple
	// (current_bid, current_winner, bid_count, end_time, status).
	// Writers compare-and-swap on it and retry on a lost race.
	Revision int64 `json:"-"`
}

// ExtensionDuration returns the anti-snipe window as a duration.
func (a *Auction) ExtensionDuration() time.Duration {
	return time.Duration(a.ExtensionWindow) * time.Second
}

// IsTerminal reports whether no further status transition is possible.
func (a *Auction) IsTerminal() bool {
	switch a.Status {
	case AuctionStatusSold, AuctionStatusUnsold, AuctionStatusCancelled, AuctionStatusWithdrawn:
		return true
	}
	return false
}

// Bid is immutable once recorded: corrections are new rows, never edits.
type Bid struct {
	gorm.Model     `json:"-"`
	BidID          string    `gorm:"uniqueIndex" json:"bid_id"`
	AuctionID      string    `gorm:"index:idx_bids_auction_number,unique,priority:1" json:"auction_id"`
	BidNumber      int64     `gorm:"index:idx_bids_auction_number,unique,priority:2" json:"bid_number"`
	BidderID       string    `json:"bidder_id"`
	Amount         float64   `json:"amount"`
	MaxProxyAmount float64   `json:"max_proxy_amount,omitempty"`
	IsProxy        bool      `json:"is_proxy"`
	Status         string    `json:"status"`
	PlacedAt       time.Time `json:"placed_at"`
}

// Ceiling is the highest amount the bid is prepared to go to. For proxy
// bids that is the hidden ceiling; for a first bid recorded at the starting
// price it is the originally submitted amount, preserved in MaxProxyAmount.
func (b *Bid) Ceiling() float64 {
	if b.MaxProxyAmount > b.Amount {
		return b.MaxProxyAmount
	}
	return b.Amount
}
