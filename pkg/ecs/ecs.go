// Package ecs is a small entity-component-system: sparse-set component
// storage, deferred structural commands, a parent/child hierarchy and a
// scheduler that runs non-conflicting systems concurrently.
package ecs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/QYUbit/revolute/pkg/axlog"
	"github.com/QYUbit/revolute/pkg/pod"
)

var (
	ErrEngineRunning = errors.New("engine is already running")
	ErrNotStarted    = errors.New("engine has not been started")
	ErrTickRate      = errors.New("tick rate must be between 1 and 1e9 ticks per second")
)

// A Plugin bundles component, resource and system registrations.
type Plugin func(e *Engine)

type Engine struct {
	world     *World
	scheduler *Scheduler
	logger    axlog.Logger

	mu      sync.Mutex
	started atomic.Bool
	running atomic.Bool
	tick    atomic.Uint64
	sim     *pod.Simulation

	maxTicks uint64
}

type Option func(*Engine)

func WithLogger(logger axlog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMaxTicks makes Run return after n ticks. Zero means no limit.
func WithMaxTicks(n uint64) Option {
	return func(e *Engine) {
		e.maxTicks = n
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		world:     NewWorld(),
		scheduler: NewScheduler(),
		logger:    axlog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) World() *World { return e.world }

func (e *Engine) Scheduler() *Scheduler { return e.scheduler }

func (e *Engine) Logger() axlog.Logger { return e.logger }

// CurrentTick is the number of completed update ticks.
func (e *Engine) CurrentTick() uint64 { return e.tick.Load() }

func (e *Engine) mustNotBeStarted() {
	if e.started.Load() {
		panic("ecs: registration after engine start")
	}
}

func RegisterComponent[T any](e *Engine) {
	e.mustNotBeStarted()
	registerComponent[T](e.world)
}

func RegisterSingleton[T any](e *Engine, initial T) {
	e.mustNotBeStarted()
	registerSingleton(e.world, initial)
}

func RegisterMessage[T any](e *Engine) {
	e.mustNotBeStarted()
	registerMessage[T](e.world)
}

func (e *Engine) AddPlugin(plugins ...Plugin) {
	for _, p := range plugins {
		p(e)
	}
}

func (e *Engine) RegisterSystemFunc(sys SystemFunc, opts ...SystemOption) {
	e.mustNotBeStarted()
	e.scheduler.addSystem(e.world, sys, opts)
}

func (e *Engine) RegisterSystem(sys System, opts ...SystemOption) {
	e.RegisterSystemFunc(sys.Run, opts...)
}

// Startup runs all startup systems and compiles the update batches. It runs
// at most once; later calls are no-ops.
func (e *Engine) Startup() error {
	if !e.started.CompareAndSwap(false, true) {
		return nil
	}

	e.scheduler.Compile()
	e.logger.Debug("scheduler compiled", "systems", len(e.scheduler.systems), "batches", e.scheduler.Batches())

	if err := e.scheduler.RunInit(e.world); err != nil {
		e.logger.Error("startup commands failed", "err", err)
		return err
	}

	e.logger.Info("world initialized", "entities", e.world.EntityCount())
	return nil
}

// ExecuteTick advances the world by one frame of dt seconds.
func (e *Engine) ExecuteTick(dt float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.scheduler.batches == nil {
		e.scheduler.Compile()
	}

	tick := e.tick.Add(1)
	if err := e.scheduler.RunUpdate(e.world, dt, tick); err != nil {
		e.logger.Warn("tick commands failed", "tick", tick, "err", err)
	}
}

// Run starts the engine and ticks it tickRate times per second until ctx is
// done or Close is called.
func (e *Engine) Run(ctx context.Context, tickRate int) error {
	if tickRate < 1 || time.Duration(tickRate) > time.Second {
		return ErrTickRate
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrEngineRunning
	}
	defer e.running.Store(false)

	if err := e.Startup(); err != nil {
		return err
	}

	sim := pod.NewSimulation(time.Second / time.Duration(tickRate))
	sim.SetMaxTicks(e.maxTicks)
	sim.OnTick(func(dt time.Duration) {
		e.ExecuteTick(dt.Seconds())
	})

	e.mu.Lock()
	e.sim = sim
	e.mu.Unlock()

	e.logger.Info("engine running", "tick_rate", tickRate)
	return sim.Start(ctx)
}

// Close stops a running engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	sim := e.sim
	e.mu.Unlock()

	if sim == nil {
		return ErrNotStarted
	}
	return sim.Stop()
}
