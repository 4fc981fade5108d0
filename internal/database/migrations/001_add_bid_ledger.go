package migrations

import (
	"github.com/archiveone/pan-auction/internal/types"
	"gorm.io/gorm"
)

// AddBidLedger creates the bid ledger tables and required indexes
func AddBidLedger(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Auction{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&types.Bid{}); err != nil {
		return err
	}

	// Add indexes for better query performance
	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Sweep queries scan by status and time bounds
		`CREATE INDEX IF NOT EXISTS idx_auctions_status_end_time
		 ON auctions(status, end_time)`,

		`CREATE INDEX IF NOT EXISTS idx_auctions_status_start_time
		 ON auctions(status, start_time)`,

		// Winning-bid lookup is on the hot path of every bid commit
		`CREATE INDEX IF NOT EXISTS idx_bids_auction_status
		 ON bids(auction_id, status)`,

		// Per-bidder history
		`CREATE INDEX IF NOT EXISTS idx_bids_bidder
		 ON bids(bidder_id)`,
	}

	// Execute each index creation
	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
