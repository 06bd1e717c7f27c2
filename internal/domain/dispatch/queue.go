package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Queue returns the pending cases in dispatch order: priority tier
// descending, then oldest reported first.
func (s *Service) Queue(ctx context.Context, limit int) ([]*Case, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.cases.Queue(ctx, limit)
}

// NextCase returns the highest-priority reported case not currently held
// by a live claim, or nil when the queue is empty.
func (s *Service) NextCase(ctx context.Context) (*Case, error) {
	pending, err := s.cases.Queue(ctx, 100)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, c := range pending {
		if s.claimLive(c, now) {
			continue
		}
		return c, nil
	}
	return nil, nil
}

func (s *Service) claimLive(c *Case, now time.Time) bool {
	if c.ClaimedBy == nil || c.ClaimedAt == nil {
		return false
	}
	return s.claimTTL <= 0 || now.Sub(*c.ClaimedAt) < s.claimTTL
}

// Claim marks the case as being worked by operator. At most one
// operator holds a case at a time; a claim lapses after the configured
// timeout if no acknowledge arrives, and acknowledge or cancel clears it.
func (s *Service) Claim(ctx context.Context, id uuid.UUID, operator string) (*Case, error) {
	return s.cases.Claim(ctx, id, operator, s.claimTTL)
}

// ReleaseClaim hands the case back to the queue without acting on it.
func (s *Service) ReleaseClaim(ctx context.Context, id uuid.UUID, operator string) error {
	return s.cases.ReleaseClaim(ctx, id, operator)
}

// StartClaimSweeper clears expired claims in the background until ctx is
// cancelled. Claims also expire lazily on read; the sweep keeps the
// stored rows from lingering when nobody is polling the queue.
func (s *Service) StartClaimSweeper(ctx context.Context, logger zerolog.Logger, interval time.Duration) {
	if s.claimTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = s.claimTTL / 2
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.cases.ExpireClaims(ctx, s.now().Add(-s.claimTTL))
				if err != nil {
					logger.Error().Err(err).Msg("claim sweep failed")
					continue
				}
				if n > 0 {
					logger.Info().Int("expired", n).Msg("released stale case claims")
				}
			}
		}
	}()
}
