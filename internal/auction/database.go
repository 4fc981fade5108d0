package auction

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

func (d *Database) CreateAuction(auction *types.Auction) error {
	return d.db.Create(auction).Error
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

func (d *Database) GetEventAuctions(eventID string) ([]types.Auction, error) {
	var auctions []types.Auction
	if err := d.db.Where("event_id = ?", eventID).Order("created_at ASC").Find(&auctions).Error; err != nil {
		return nil, err
	}
	return auctions, nil
}

// CompareAndSwapStatus transitions an auction's status guarded by its
// revision. It reports false, without error, when another writer got there
// first; sweeps treat that as already-done.
func (d *Database) CompareAndSwapStatus(a *types.Auction, updates map[string]interface{}) (bool, error) {
	updates["revision"] = a.Revision + 1
	updates["updated_at"] = time.Now()
	result := d.db.Model(&types.Auction{}).
		Where("auction_id = ? AND revision = ? AND status = ?", a.AuctionID, a.Revision, a.Status).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (d *Database) GetDueScheduled(now time.Time) ([]types.Auction, error) {
	var auctions []types.Auction
	err := d.db.Where("status = ? AND start_time <= ?", types.AuctionStatusScheduled, now).
		Find(&auctions).Error
	if err != nil {
		return nil, err
	}
	return auctions, nil
}

func (d *Database) GetDueLive(now time.Time) ([]types.Auction, error) {
	var auctions []types.Auction
	err := d.db.Where("status = ? AND end_time <= ?", types.AuctionStatusLive, now).
		Find(&auctions).Error
	if err != nil {
		return nil, err
	}
	return auctions, nil
}

func (d *Database) GetEndingSoon(now time.Time, horizon time.Duration) ([]types.Auction, error) {
	var auctions []types.Auction
	err := d.db.Where("status = ? AND ending_soon_notified = ? AND end_time > ? AND end_time <= ?",
		types.AuctionStatusLive, false, now, now.Add(horizon)).
		Find(&auctions).Error
	if err != nil {
		return nil, err
	}
	return auctions, nil
}

func (d *Database) MarkEndingSoonNotified(auctionID string) error {
	return d.db.Model(&types.Auction{}).
		Where("auction_id = ?", auctionID).
		Update("ending_soon_notified", true).Error
}

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

// FinalizeBids settles the bid rows of a closed auction: the winning bid
// becomes WON (when sold) or LOST, everything else still ACTIVE or OUTBID
// becomes LOST.
func (d *Database) FinalizeBids(tx *gorm.DB, auctionID string, sold bool) error {
	winnerStatus := types.BidStatusLost
	if sold {
		winnerStatus = types.BidStatusWon
	}
	if err := tx.Model(&types.Bid{}).
		Where("auction_id = ? AND status = ?", auctionID, types.BidStatusWinning).
		Update("status", winnerStatus).Error; err != nil {
		return err
	}
	return tx.Model(&types.Bid{}).
		Where("auction_id = ? AND status IN ?", auctionID,
			[]string{types.BidStatusActive, types.BidStatusOutbid}).
		Update("status", types.BidStatusLost).Error
}

// CloseAuction runs the ended → sold|unsold transition in one transaction,
// guarded by the revision CAS on the live → ended step. Returns the final
// status and whether this invocation performed the close.
func (d *Database) CloseAuction(a *types.Auction, now time.Time) (string, bool, error) {
	var finalStatus string
	var performed bool

	err := d.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&types.Auction{}).
			Where("auction_id = ? AND revision = ? AND status = ?",
				a.AuctionID, a.Revision, types.AuctionStatusLive).
			Updates(map[string]interface{}{
				"status":     types.AuctionStatusEnded,
				"revision":   a.Revision + 1,
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Another sweep or a buy-now commit already moved it on.
			return nil
		}
		performed = true

		var winning types.Bid
		hasWinner := true
		if err := tx.Where("auction_id = ? AND status = ?", a.AuctionID, types.BidStatusWinning).
			First(&winning).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			hasWinner = false
		}

		sold := hasWinner && (a.ReservePrice == 0 || a.CurrentBid >= a.ReservePrice)
		finalStatus = types.AuctionStatusUnsold
		updates := map[string]interface{}{
			"status":     types.AuctionStatusUnsold,
			"revision":   a.Revision + 2,
			"updated_at": now,
		}
		if sold {
			finalStatus = types.AuctionStatusSold
			updates["status"] = types.AuctionStatusSold
			updates["sold_at"] = now
		}

		if err := tx.Model(&types.Auction{}).
			Where("auction_id = ?", a.AuctionID).
			Updates(updates).Error; err != nil {
			return err
		}

		return d.FinalizeBids(tx, a.AuctionID, sold)
	})
	if err != nil {
		return "", false, err
	}
	return finalStatus, performed, nil
}
