package service

import (
	"sync"
	"time"

	"media-lending/pkg/clock"
	"media-lending/pkg/config"
	"media-lending/pkg/models"
)

// Policy holds the lending rules applied by the services.
type Policy struct {
	BookLoanDays      int
	CDLoanDays        int
	DefaultLoanDays   int
	ReservationWindow time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		BookLoanDays:      14,
		CDLoanDays:        7,
		DefaultLoanDays:   14,
		ReservationWindow: 48 * time.Hour,
	}
}

func PolicyFromConfig(cfg config.Lending) Policy {
	return Policy{
		BookLoanDays:      cfg.BookLoanDays,
		CDLoanDays:        cfg.CDLoanDays,
		DefaultLoanDays:   cfg.DefaultLoanDays,
		ReservationWindow: cfg.ReservationWindow,
	}
}

// LoanDays returns the loan period for t. Unknown kinds fall back to the default period.
func (p Policy) LoanDays(t models.MediaType) int {
	switch t {
	case models.MediaTypeBook:
		return p.BookLoanDays
	case models.MediaTypeCD:
		return p.CDLoanDays
	default:
		return p.DefaultLoanDays
	}
}

// Sequencer hands out strictly increasing values used to order reservations
// created within the same timestamp.
type Sequencer interface {
	Next() int64
}

// MonotonicSequencer derives sequence values from the clock and bumps them
// when the clock does not advance between calls.
type MonotonicSequencer struct {
	mu    sync.Mutex
	last  int64
	clock clock.Clock
}

func NewMonotonicSequencer(c clock.Clock) *MonotonicSequencer {
	if c == nil {
		c = clock.Real{}
	}
	return &MonotonicSequencer{clock: c}
}

func (s *MonotonicSequencer) Next() int64 {
	n := s.clock.Now().UnixNano()
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= s.last {
		n = s.last + 1
	}
	s.last = n
	return n
}
