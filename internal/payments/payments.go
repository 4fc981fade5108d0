package payments

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Authorizer is the consumed payment-processor capability: reserve funds
// for a bidder up to the given amount. Capture and refund live with the
// external processor, not here.
type Authorizer interface {
	AuthorizeFunds(bidderID string, amount float64) error
}

// MockProcessor simulates the external payment processor. It authorizes
// everything up to an optional per-bidder cap, tracking the highest
// outstanding authorization per bidder.
type MockProcessor struct {
	mu             sync.Mutex
	caps           map[string]float64 // 0 or absent = unlimited
	authorizations map[string]float64
}

func NewMockProcessor() *MockProcessor {
	return &MockProcessor{
		caps:           make(map[string]float64),
		authorizations: make(map[string]float64),
	}
}

// SetCap limits how much can be authorized for a bidder. Used by tests and
// the simulation to exercise declined authorizations.
func (p *MockProcessor) SetCap(bidderID string, limit float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.caps[bidderID] = limit
}

// AuthorizeFunds reserves funds for a bidder up to amount. A repeat
// authorization for a lower amount is a no-op; a higher one replaces the
// previous reservation.
func (p *MockProcessor) AuthorizeFunds(bidderID string, amount float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := log.With().
		Str("component", "payments").
		Str("bidder_id", bidderID).
		Float64("amount", amount).
		Logger()

	if limit, ok := p.caps[bidderID]; ok && limit > 0 && amount > limit {
		logger.Warn().Float64("cap", limit).Msg("funds authorization declined")
		return fmt.Errorf("processor declined authorization of %.2f for bidder %s", amount, bidderID)
	}

	if amount > p.authorizations[bidderID] {
		p.authorizations[bidderID] = amount
	}

	logger.Debug().Msg("funds authorized")
	return nil
}

// AuthorizedAmount reports the current reservation for a bidder.
func (p *MockProcessor) AuthorizedAmount(bidderID string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authorizations[bidderID]
}
