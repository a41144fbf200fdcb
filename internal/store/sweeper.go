// Package store holds backend-independent helpers for message stores.
package store

import (
	"context"
	"time"

	"github.com/dtroode/secret-relay/internal/logger"
	"github.com/dtroode/secret-relay/internal/model"
)

// Sweepable is a store that can evict expired messages of all users at once.
type Sweepable interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Sweeper periodically evicts expired messages of users that are not being
// accessed. Stores stay correct without it; it only bounds memory held by
// idle users.
type Sweeper struct {
	store    Sweepable
	clock    model.Clock
	interval time.Duration
	logger   *logger.Logger
}

// NewSweeper creates a Sweeper running every interval.
func NewSweeper(store Sweepable, clock model.Clock, interval time.Duration, logger *logger.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		clock:    clock,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and logs its outcome.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	evicted, err := s.store.Sweep(ctx, s.clock.Now())
	if err != nil {
		s.logger.Error("sweep failed", "error", err, "evicted", evicted)
		return evicted
	}

	if evicted > 0 {
		s.logger.Debug("sweep completed", "evicted", evicted)
	}

	return evicted
}
