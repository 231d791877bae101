// Package sweeper expires overdue reservations on a fixed interval.
package sweeper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"media-lending/pkg/circuitbreaker"
	"media-lending/pkg/clock"
)

// Expirer is satisfied by service.ReservationService.
type Expirer interface {
	ExpireReservations(ctx context.Context, asOf time.Time) (int, error)
}

type Sweeper struct {
	expirer  Expirer
	interval time.Duration
	clock    clock.Clock
	breaker  *circuitbreaker.CircuitBreaker
	log      *zap.Logger
}

// DefaultInterval replaces a non-positive interval passed to New.
const DefaultInterval = time.Minute

func New(expirer Expirer, interval time.Duration, c clock.Clock, breaker *circuitbreaker.CircuitBreaker, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if c == nil {
		c = clock.Real{}
	}
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(5, 30*time.Second)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{expirer: expirer, interval: interval, clock: c, breaker: breaker, log: log}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("reservation sweeper started", zap.Duration("interval", s.interval))
	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("reservation sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep expires reservations once. It returns the number expired, or an
// error when the store failed or the breaker is open.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	var expired int
	err := s.breaker.Execute(func() error {
		n, err := s.expirer.ExpireReservations(ctx, s.clock.Now())
		expired = n
		return err
	}, nil)
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		s.log.Warn("reservation sweep skipped", zap.String("breaker", s.breaker.GetState().String()))
	case err != nil:
		s.log.Error("reservation sweep failed", zap.Error(err))
	case expired > 0:
		s.log.Info("reservation sweep finished", zap.Int("expired", expired))
	}
	return expired, err
}
