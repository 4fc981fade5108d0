package database

import (
	"fmt"
	"os"

	"github.com/archiveone/pan-auction/internal/bidding"
	"github.com/archiveone/pan-auction/internal/database/migrations"
	"github.com/archiveone/pan-auction/internal/registration"
	"github.com/archiveone/pan-auction/internal/settlement"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase() (*gorm.DB, error) {
	path := os.Getenv("DATABASE_PATH")
	if path == "" {
		path = "auction.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddBidLedger(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&bidding.IdempotencyRecord{},
		&registration.Registration{},
		&settlement.Invoice{},
		&settlement.InvoiceLine{},
		&settlement.Payout{},
		&settlement.PayoutLine{},
		&settlement.Adjustment{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
