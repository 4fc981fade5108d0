package settlement

import (
	"errors"
	"fmt"

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

func (d *Database) GetSoldEventAuctions(eventID string) ([]types.Auction, error) {
	var auctions []types.Auction
	err := d.db.Where("event_id = ? AND status = ?", eventID, types.AuctionStatusSold).
		Order("created_at ASC").Find(&auctions).Error
	if err != nil {
		return nil, err
	}
	return auctions, nil
}

func (d *Database) GetWonBid(auctionID string) (*types.Bid, error) {
	var bid types.Bid
	err := d.db.Where("auction_id = ? AND status IN ?", auctionID,
		[]string{types.BidStatusWon, types.BidStatusWinning}).First(&bid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bid, nil
}

// HasSettledLot reports whether the auction already appears on an invoice.
func (d *Database) HasSettledLot(auctionID string) (bool, error) {
	var count int64
	if err := d.db.Model(&InvoiceLine{}).Where("auction_id = ?", auctionID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateDocuments writes a batch of invoices and payouts, with their lines,
// in one transaction. The unique auction_id index on the line tables makes
// a concurrent duplicate settlement fail the whole batch.
func (d *Database) CreateDocuments(invoices []*Invoice, payouts []*Payout) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		for _, inv := range invoices {
			if err := tx.Create(inv).Error; err != nil {
				return fmt.Errorf("failed to create invoice %s: %w", inv.InvoiceID, err)
			}
		}
		for _, p := range payouts {
			if err := tx.Create(p).Error; err != nil {
				return fmt.Errorf("failed to create payout %s: %w", p.PayoutID, err)
			}
		}
		return nil
	})
}

func (d *Database) GetInvoiceByEventAndBuyer(eventID, buyerID string) (*Invoice, error) {
	var invoice Invoice
	err := d.db.Preload("Lines").
		Where("event_id = ? AND buyer_id = ?", eventID, buyerID).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (d *Database) GetPayoutByEventAndSeller(eventID, sellerID string) (*Payout, error) {
	var payout Payout
	err := d.db.Preload("Lines").
		Where("event_id = ? AND seller_id = ?", eventID, sellerID).
		First(&payout).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (d *Database) GetInvoiceByAuction(auctionID string) (*Invoice, error) {
	var line InvoiceLine
	if err := d.db.Where("auction_id = ?", auctionID).First(&line).Error; err != nil {
		return nil, err
	}
	var invoice Invoice
	if err := d.db.Preload("Lines").Where("invoice_id = ?", line.InvoiceID).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (d *Database) GetPayoutByAuction(auctionID string) (*Payout, error) {
	var line PayoutLine
	if err := d.db.Where("auction_id = ?", auctionID).First(&line).Error; err != nil {
		return nil, err
	}
	var payout Payout
	if err := d.db.Preload("Lines").Where("payout_id = ?", line.PayoutID).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (d *Database) CountEventInvoices(eventID string) (int64, error) {
	var count int64
	if err := d.db.Model(&Invoice{}).Where("event_id = ?", eventID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (d *Database) CreateAdjustment(adj *Adjustment) error {
	return d.db.Create(adj).Error
}
