package bidding

import (
	"errors"
	"time"

	"github.com/archiveone/pan-auction/internal/auctionerrors"
	"github.com/archiveone/pan-auction/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetAuction(auctionID string) (*types.Auction, error) {
	var auction types.Auction
	if err := d.db.Where("auction_id = ?", auctionID).First(&auction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auctionerrors.ErrAuctionNotFound
		}
		return nil, err
	}
	return &auction, nil
}

// GetWinningBid returns the auction's single WINNING bid, or nil when the
// auction has none yet.
func (d *Database) GetWinningBid(auctionID string) (*types.Bid, error) {
	var bid types.Bid
	err := d.db.Where("auction_id = ? AND status = ?", auctionID, types.BidStatusWinning).First(&bid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bid, nil
}

func (d *Database) GetBidsByAuction(auctionID string) ([]types.Bid, error) {
	var bids []types.Bid
	if err := d.db.Where("auction_id = ?", auctionID).Order("bid_number ASC").Find(&bids).Error; err != nil {
		return nil, err
	}
	return bids, nil
}

func (d *Database) GetBid(bidID string) (*types.Bid, error) {
	var bid types.Bid
	if err := d.db.Where("bid_id = ?", bidID).First(&bid).Error; err != nil {
		return nil, err
	}
	return &bid, nil
}

// GetIdempotencyRecord retrieves an idempotency record by key
func (d *Database) GetIdempotencyRecord(key string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// CommitResolution applies a resolution as one atomic unit:
// compare-and-swap the auction's hot tuple on its revision, flip the
// previous WINNING rows, and append the new bid rows. The CAS runs first so
// a writer holding a stale snapshot surfaces ErrTransientConflict before it
// can trip the unique (auction_id, bid_number) index; the caller re-resolves
// against fresh state.
func (d *Database) CommitResolution(a *types.Auction, res *Resolution, idempotencyKey string) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		bids := res.Bids()

		updates := map[string]interface{}{
			"current_bid":       res.NewCurrentBid,
			"current_winner_id": res.NewWinnerID,
			"bid_count":         a.BidCount + int64(len(bids)),
			"revision":          a.Revision + 1,
			"updated_at":        time.Now(),
		}
		if res.NewEndTime != nil {
			updates["end_time"] = *res.NewEndTime
		}
		if res.BuyNow {
			now := time.Now()
			updates["status"] = types.AuctionStatusSold
			updates["sold_at"] = now
		}

		result := tx.Model(&types.Auction{}).
			Where("auction_id = ? AND revision = ? AND status = ?",
				a.AuctionID, a.Revision, types.AuctionStatusLive).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return auctionerrors.ErrTransientConflict
		}

		if res.OutbidPrevious {
			if err := tx.Model(&types.Bid{}).
				Where("auction_id = ? AND status = ?", a.AuctionID, types.BidStatusWinning).
				Update("status", types.BidStatusOutbid).Error; err != nil {
				return err
			}
		}

		for _, bid := range bids {
			if err := tx.Create(bid).Error; err != nil {
				return err
			}
		}

		if res.BuyNow {
			// The sale completes in this commit; standing bids lose now
			// rather than waiting for a closing sweep that will never see
			// this auction as LIVE.
			if err := tx.Model(&types.Bid{}).
				Where("auction_id = ? AND status IN ?", a.AuctionID,
					[]string{types.BidStatusActive, types.BidStatusOutbid}).
				Update("status", types.BidStatusLost).Error; err != nil {
				return err
			}
		}

		if idempotencyKey != "" {
			record := IdempotencyRecord{
				IdempotencyKey: idempotencyKey,
				ResourceID:     res.Accepted.BidID,
				ResourceType:   "bid",
				ExpiresAt:      time.Now().Add(24 * time.Hour),
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		}

		return nil
	})
}
