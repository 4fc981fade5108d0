package settlement

import (
	"fmt"
	"time"

	"github.com/archiveone/pan-auction/internal/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	StatusIssued = "ISSUED"
	StatusPaid   = "PAID"
	StatusVoid   = "VOID"
)

// Invoice bills the buyer for every lot won within one event (or for a
// single standalone auction). Line items reference the immutable closing
// bid and are never edited; corrections are adjustment records.
type Invoice struct {
	gorm.Model   `json:"-"`
	InvoiceID    string        `gorm:"uniqueIndex" json:"invoice_id"`
	EventID      string        `gorm:"index" json:"event_id,omitempty"`
	BuyerID      string        `gorm:"index" json:"buyer_id"`
	Currency     string        `json:"currency"`
	HammerTotal  float64       `json:"hammer_total"`
	PremiumTotal float64       `json:"premium_total"`
	TotalDue     float64       `json:"total_due"`
	Status       string        `json:"status"`
	IssuedAt     time.Time     `json:"issued_at"`
	Lines        []InvoiceLine `gorm:"foreignKey:InvoiceID;references:InvoiceID" json:"lines"`
}

// InvoiceLine is one won lot. The unique index on auction_id is the
// settlement idempotency key: a lot can be billed exactly once.
type InvoiceLine struct {
	gorm.Model    `json:"-"`
	InvoiceID     string  `gorm:"index" json:"invoice_id"`
	AuctionID     string  `gorm:"uniqueIndex" json:"auction_id"`
	WinningBidID  string  `json:"winning_bid_id"`
	Description   string  `json:"description"`
	HammerPrice   float64 `json:"hammer_price"`
	BuyersPremium float64 `json:"buyers_premium"`
	LineTotal     float64 `json:"line_total"`
}

// Payout pays the seller for every lot sold within one event (or for a
// single standalone auction).
type Payout struct {
	gorm.Model      `json:"-"`
	PayoutID        string       `gorm:"uniqueIndex" json:"payout_id"`
	EventID         string       `gorm:"index" json:"event_id,omitempty"`
	SellerID        string       `gorm:"index" json:"seller_id"`
	Currency        string       `json:"currency"`
	HammerTotal     float64      `json:"hammer_total"`
	CommissionTotal float64      `json:"commission_total"`
	NetPayout       float64      `json:"net_payout"`
	Status          string       `json:"status"`
	IssuedAt        time.Time    `json:"issued_at"`
	Lines           []PayoutLine `gorm:"foreignKey:PayoutID;references:PayoutID" json:"lines"`
}

type PayoutLine struct {
	gorm.Model        `json:"-"`
	PayoutID          string  `gorm:"index" json:"payout_id"`
	AuctionID         string  `gorm:"uniqueIndex" json:"auction_id"`
	WinningBidID      string  `json:"winning_bid_id"`
	Description       string  `json:"description"`
	HammerPrice       float64 `json:"hammer_price"`
	SellersCommission float64 `json:"sellers_commission"`
	NetAmount         float64 `json:"net_amount"`
}

// Adjustment corrects an already-issued document. Issued documents are
// never edited in place.
type Adjustment struct {
	gorm.Model   `json:"-"`
	AdjustmentID string    `gorm:"uniqueIndex" json:"adjustment_id"`
	DocumentID   string    `gorm:"index" json:"document_id"`
	AuctionID    string    `json:"auction_id"`
	Amount       float64   `json:"amount"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// Fees is the financial breakdown of one hammer price.
type Fees struct {
	HammerPrice       float64 `json:"hammer_price"`
	BuyersPremium     float64 `json:"buyers_premium"`
	SellersCommission float64 `json:"sellers_commission"`
	TotalBuyerPrice   float64 `json:"total_buyer_price"`
	TotalSellerPayout float64 `json:"total_seller_payout"`
}

// ComputeFees derives all fee amounts from a hammer price using decimal
// arithmetic rounded to cents.
func ComputeFees(hammerPrice, premiumPct, commissionPct float64) Fees {
	hammer := decimal.NewFromFloat(hammerPrice)
	premium := hammer.Mul(decimal.NewFromFloat(premiumPct)).Round(2)
	commission := hammer.Mul(decimal.NewFromFloat(commissionPct)).Round(2)

	return Fees{
		HammerPrice:       hammerPrice,
		BuyersPremium:     premium.InexactFloat64(),
		SellersCommission: commission.InexactFloat64(),
		TotalBuyerPrice:   hammer.Add(premium).InexactFloat64(),
		TotalSellerPayout: hammer.Sub(commission).InexactFloat64(),
	}
}

// InvoiceBuilder accumulates won lots for one buyer and produces a single
// immutable invoice. Nothing is written until Build, so a failed lot never
// leaves a partially written document behind.
type InvoiceBuilder struct {
	eventID  string
	buyerID  string
	currency string
	lines    []InvoiceLine
	hammer   decimal.Decimal
	premium  decimal.Decimal
}

func NewInvoiceBuilder(eventID, buyerID, currency string) *InvoiceBuilder {
	return &InvoiceBuilder{
		eventID:  eventID,
		buyerID:  buyerID,
		currency: currency,
	}
}

// AddLot appends one sold lot. The lot must be sold to this builder's buyer
// with a positive hammer price.
func (b *InvoiceBuilder) AddLot(a *types.Auction, winningBidID string) error {
	if a.CurrentWinnerID != b.buyerID {
		return fmt.Errorf("lot %s won by %s, not %s", a.AuctionID, a.CurrentWinnerID, b.buyerID)
	}
	if a.CurrentBid <= 0 {
		return fmt.Errorf("lot %s has no hammer price", a.AuctionID)
	}

	fees := ComputeFees(a.CurrentBid, a.PremiumPct, a.CommissionPct)
	b.lines = append(b.lines, InvoiceLine{
		AuctionID:     a.AuctionID,
		WinningBidID:  winningBidID,
		Description:   a.Title,
		HammerPrice:   fees.HammerPrice,
		BuyersPremium: fees.BuyersPremium,
		LineTotal:     fees.TotalBuyerPrice,
	})
	b.hammer = b.hammer.Add(decimal.NewFromFloat(fees.HammerPrice))
	b.premium = b.premium.Add(decimal.NewFromFloat(fees.BuyersPremium))
	return nil
}

// Empty reports whether no lots were added.
func (b *InvoiceBuilder) Empty() bool {
	return len(b.lines) == 0
}

// Build produces the invoice. The builder must not be reused afterwards.
func (b *InvoiceBuilder) Build() *Invoice {
	invoiceID := "INV_" + uuid.New().String()
	lines := make([]InvoiceLine, len(b.lines))
	copy(lines, b.lines)
	for i := range lines {
		lines[i].InvoiceID = invoiceID
	}
	return &Invoice{
		InvoiceID:    invoiceID,
		EventID:      b.eventID,
		BuyerID:      b.buyerID,
		Currency:     b.currency,
		HammerTotal:  b.hammer.InexactFloat64(),
		PremiumTotal: b.premium.InexactFloat64(),
		TotalDue:     b.hammer.Add(b.premium).InexactFloat64(),
		Status:       StatusIssued,
		IssuedAt:     time.Now(),
		Lines:        lines,
	}
}

// PayoutBuilder is the seller-side counterpart of InvoiceBuilder.
type PayoutBuilder struct {
	eventID    string
	sellerID   string
	currency   string
	lines      []PayoutLine
	hammer     decimal.Decimal
	commission decimal.Decimal
}

func NewPayoutBuilder(eventID, sellerID, currency string) *PayoutBuilder {
	return &PayoutBuilder{
		eventID:  eventID,
		sellerID: sellerID,
		currency: currency,
	}
}

func (b *PayoutBuilder) AddLot(a *types.Auction, winningBidID string) error {
	if a.SellerID != b.sellerID {
		return fmt.Errorf("lot %s sold by %s, not %s", a.AuctionID, a.SellerID, b.sellerID)
	}
	if a.CurrentBid <= 0 {
		return fmt.Errorf("lot %s has no hammer price", a.AuctionID)
	}

	fees := ComputeFees(a.CurrentBid, a.PremiumPct, a.CommissionPct)
	b.lines = append(b.lines, PayoutLine{
		AuctionID:         a.AuctionID,
		WinningBidID:      winningBidID,
		Description:       a.Title,
		HammerPrice:       fees.HammerPrice,
		SellersCommission: fees.SellersCommission,
		NetAmount:         fees.TotalSellerPayout,
	})
	b.hammer = b.hammer.Add(decimal.NewFromFloat(fees.HammerPrice))
	b.commission = b.commission.Add(decimal.NewFromFloat(fees.SellersCommission))
	return nil
}

func (b *PayoutBuilder) Empty() bool {
	return len(b.lines) == 0
}

func (b *PayoutBuilder) Build() *Payout {
	payoutID := "PAY_" + uuid.New().String()
	lines := make([]PayoutLine, len(b.lines))
	copy(lines, b.lines)
	for i := range lines {
		lines[i].PayoutID = payoutID
	}
	return &Payout{
		PayoutID:        payoutID,
		EventID:         b.eventID,
		SellerID:        b.sellerID,
		Currency:        b.currency,
		HammerTotal:     b.hammer.InexactFloat64(),
		CommissionTotal: b.commission.InexactFloat64(),
		NetPayout:       b.hammer.Sub(b.commission).InexactFloat64(),
		Status:          StatusIssued,
		IssuedAt:        time.Now(),
		Lines:           lines,
	}
}
