package auction

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper drives the closing sweep on a ticker. The sweep itself is
// idempotent, so running the in-process loop alongside an external
// scheduler hitting the internal endpoint is safe.
type Sweeper struct {
	service       *Service
	sweepInterval time.Duration
}

func NewSweeper(service *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		service:       service,
		sweepInterval: interval,
	}
}

// Start begins the sweep loop and blocks until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	logger := log.With().Str("component", "lifecycle_sweeper").Logger()
	logger.Info().Dur("interval", s.sweepInterval).Msg("starting lifecycle sweeper")

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down lifecycle sweeper")
			return
		case <-ticker.C:
			transitions, err := s.service.CloseDueAuctions()
			if err != nil {
				logger.Error().Err(err).Msg("closing sweep failed")
				continue
			}
			if len(transitions) > 0 {
				logger.Info().Int("transitions", len(transitions)).Msg("closing sweep applied transitions")
			}
		}
	}
}
