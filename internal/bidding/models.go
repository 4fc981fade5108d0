package bidding

import (
	"time"

	"github.com/archiveone/pan-auction/internal/types"
	"gorm.io/gorm"
)

// IdempotencyRecord maps an Idempotency-Key header to the bid it produced,
// so a resubmitted request returns the original result instead of placing a
// second bid.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// BidResult is returned to the caller after a successful commit.
type BidResult struct {
	Bid        *types.Bid `json:"bid"`
	CurrentBid float64    `json:"current_bid"`
	WinnerID   string     `json:"current_winner_id"`
	Winning    bool       `json:"winning"`
	EndTime    time.Time  `json:"end_time"`
	Extended   bool       `json:"extended"`
	BoughtNow  bool       `json:"bought_now"`
	BidNumber  int64      `json:"bid_number"`
	AuctionID  string     `json:"auction_id"`
	PlacedAt   time.Time  `json:"placed_at"`
	TotalBids  int64      `json:"total_bids"`
}
