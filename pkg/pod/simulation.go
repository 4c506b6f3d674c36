// Package pod drives a fixed-rate frame loop.
package pod

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrSimulationRunning    = errors.New("simulation is already running")
	ErrSimulationNotRunning = errors.New("simulation is not running")
)

type Simulation struct {
	tickRate  time.Duration
	lastTick  time.Time
	onTick    func(dt time.Duration)
	maxTicks  uint64
	ticks     uint64
	cancel    context.CancelFunc
	mu        sync.Mutex
	isRunning atomic.Bool
}

func NewSimulation(tickRate time.Duration) *Simulation {
	return &Simulation{
		tickRate: tickRate,
		onTick:   func(dt time.Duration) {},
	}
}

// Start blocks, calling the tick handler once per tick interval until ctx is
// done, Stop is called or the tick limit is reached. Ticks never overlap: a
// slow handler delays the next tick instead.
func (s *Simulation) Start(ctx context.Context) error {
	if !s.isRunning.CompareAndSwap(false, true) {
		return ErrSimulationRunning
	}
	defer s.isRunning.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	t := time.NewTicker(s.tickRate)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			s.step(now)
			if s.maxTicks > 0 && s.ticks >= s.maxTicks {
				return nil
			}
		}
	}
}

func (s *Simulation) Stop() error {
	if !s.isRunning.Load() {
		return ErrSimulationNotRunning
	}

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func (s *Simulation) IsRunning() bool {
	return s.isRunning.Load()
}

func (s *Simulation) step(now time.Time) {
	var d time.Duration
	if !s.lastTick.IsZero() {
		d = now.Sub(s.lastTick)
	}

	s.lastTick = now
	s.ticks++

	s.onTick(d)
}

func (s *Simulation) SetTickRate(d time.Duration) {
	s.tickRate = d
}

// SetMaxTicks makes Start return after n ticks. Zero means no limit.
func (s *Simulation) SetMaxTicks(n uint64) {
	s.maxTicks = n
}

func (s *Simulation) OnTick(fn func(dt time.Duration)) {
	s.onTick = fn
}
