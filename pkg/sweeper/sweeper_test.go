package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"media-lending/pkg/circuitbreaker"
	"media-lending/pkg/clock"
)

type fakeExpirer struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
}

func (f *fakeExpirer) ExpireReservations(_ context.Context, asOf time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, asOf)
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

func (f *fakeExpirer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSweepUsesClock(t *testing.T) {
	now := time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)
	exp := &fakeExpirer{}
	s := New(exp, time.Minute, clock.NewManual(now), nil, zap.NewNop())

	n, err := s.Sweep(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []time.Time{now}, exp.calls)
}

func TestSweepStopsCallingFailingStore(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC))
	exp := &fakeExpirer{err: errors.New("connection refused")}
	breaker := circuitbreaker.NewCircuitBreaker(1, time.Minute).WithClock(clk)
	s := New(exp, time.Minute, clk, breaker, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := s.Sweep(context.Background())
		assert.EqualError(t, err, "connection refused")
	}
	_, err := s.Sweep(context.Background())
	assert.Equal(t, circuitbreaker.ErrOpen, err)
	assert.Equal(t, 2, exp.count())

	exp.mu.Lock()
	exp.err = nil
	exp.mu.Unlock()
	clk.Advance(time.Minute)
	n, err := s.Sweep(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, circuitbreaker.StateClosed, breaker.GetState())
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	exp := &fakeExpirer{}
	s := New(exp, 10*time.Millisecond, nil, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return exp.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestNonPositiveIntervalUsesDefault(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		exp := &fakeExpirer{}
		s := New(exp, interval, nil, nil, zap.NewNop())
		assert.Equal(t, DefaultInterval, s.interval)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NotPanics(t, func() { s.Run(ctx) })
		assert.Equal(t, 1, exp.count())
	}
}
