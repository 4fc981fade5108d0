package registration

import (
	"errors"
	"fmt"

	"github.com/archiveone/pan-auction/internal/auctionerrors"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateRegistration(reg *Registration) error {
	return d.db.Create(reg).Error
}

func (d *Database) GetRegistration(registrationID string) (*Registration, error) {
	var reg Registration
	if err := d.db.Where("registration_id = ?", registrationID).First(&reg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auctionerrors.ErrRegistrationNotFound
		}
		return nil, err
	}
	return &reg, nil
}

func (d *Database) GetByEventAndBidder(eventID, bidderID string) (*Registration, error) {
	var reg Registration
	if err := d.db.Where("event_id = ? AND bidder_id = ?", eventID, bidderID).First(&reg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auctionerrors.ErrRegistrationNotFound
		}
		return nil, err
	}
	return &reg, nil
}

func (d *Database) GetEventRegistrations(eventID string) ([]Registration, error) {
	var regs []Registration
	if err := d.db.Where("event_id = ?", eventID).Order("created_at ASC").Find(&regs).Error; err != nil {
		return nil, err
	}
	return regs, nil
}

// ApproveWithPaddle flips a registration to APPROVED and assigns the next
// paddle number for its event inside one transaction.
func (d *Database) ApproveWithPaddle(registrationID string) (*Registration, error) {
	var reg Registration
	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("registration_id = ?", registrationID).First(&reg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return auctionerrors.ErrRegistrationNotFound
			}
			return err
		}

		if reg.Status == StatusApproved {
			return nil
		}
		if reg.Status == StatusRejected {
			return fmt.Errorf("registration %s: %w", registrationID, auctionerrors.ErrInvalidStateTransition)
		}

		var maxPaddle int64
		if err := tx.Model(&Registration{}).
			Where("event_id = ?", reg.EventID).
			Select("COALESCE(MAX(paddle_number), 0)").
			Scan(&maxPaddle).Error; err != nil {
			return err
		}

		reg.Status = StatusApproved
		reg.PaddleNumber = maxPaddle + 1
		return tx.Save(&reg).Error
	})
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (d *Database) UpdateStatus(registrationID, status string) (*Registration, error) {
	var reg Registration
	if err := d.db.Where("registration_id = ?", registrationID).First(&reg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auctionerrors.ErrRegistrationNotFound
		}
		return nil, err
	}
	reg.Status = status
	if err := d.db.Save(&reg).Error; err != nil {
		return nil, err
	}
	return &reg, nil
}
