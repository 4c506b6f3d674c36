package ecs

import (
	"reflect"
	"sync"
)

type SystemTrigger int

const (
	OnStartup SystemTrigger = iota
	OnUpdate
	OnEndOfTick
)

type SystemFunc func(ctx SystemContext)

type System interface {
	Run(ctx SystemContext)
}

type SystemContext struct {
	*World
	Dt       float64
	Tick     uint64
	Commands *CommandBuffer
}

type Scheduler struct {
	initSystems []*systemNode
	systems     []*systemNode
	batches     [][]*systemNode
	endSystems  []*systemNode
}

type systemNode struct {
	name     string
	reads    map[reflect.Type]struct{}
	writes   map[reflect.Type]struct{}
	runner   SystemFunc
	commands *CommandBuffer
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		initSystems: make([]*systemNode, 0),
		systems:     make([]*systemNode, 0),
		endSystems:  make([]*systemNode, 0),
	}
}

type SystemConfig struct {
	Name    string
	System  SystemFunc
	Trigger SystemTrigger
	Reads   map[reflect.Type]struct{}
	Writes  map[reflect.Type]struct{}
}

func buildSystemConfig(sys SystemFunc, opts []SystemOption) SystemConfig {
	config := SystemConfig{
		System:  sys,
		Reads:   make(map[reflect.Type]struct{}),
		Writes:  make(map[reflect.Type]struct{}),
		Trigger: OnUpdate,
	}

	for _, opt := range opts {
		opt(&config)
	}

	return config
}

type SystemOption func(*SystemConfig)

func Trigger(trigger SystemTrigger) SystemOption {
	return func(config *SystemConfig) {
		config.Trigger = trigger
	}
}

// Name labels the system in logs.
func Name(name string) SystemOption {
	return func(config *SystemConfig) {
		config.Name = name
	}
}

func Reads(comps ...any) SystemOption {
	return func(config *SystemConfig) {
		for _, comp := range comps {
			config.Reads[reflect.TypeOf(comp)] = struct{}{}
		}
	}
}

func Writes(comps ...any) SystemOption {
	return func(config *SystemConfig) {
		for _, comp := range comps {
			config.Writes[reflect.TypeOf(comp)] = struct{}{}
		}
	}
}

func (s *Scheduler) addSystem(w *World, sys SystemFunc, opts []SystemOption) {
	config := buildSystemConfig(sys, opts)

	node := &systemNode{
		name:     config.Name,
		reads:    config.Reads,
		writes:   config.Writes,
		runner:   config.System,
		commands: &CommandBuffer{world: w},
	}

	switch config.Trigger {
	case OnStartup:
		s.initSystems = append(s.initSystems, node)
	case OnEndOfTick:
		s.endSystems = append(s.endSystems, node)
	default:
		s.systems = append(s.systems, node)
	}
}

func (s *Scheduler) Compile() {
	s.batches = s.computeBatches(s.systems)
}

// Batches reports how many sequential stages the update systems were split into.
func (s *Scheduler) Batches() int {
	return len(s.batches)
}

// computeBatches groups non-conflicting systems. A system deferred to a later
// batch also defers every later system it conflicts with, so conflicting
// systems always run in registration order.
func (s *Scheduler) computeBatches(systems []*systemNode) [][]*systemNode {
	var batches [][]*systemNode
	remaining := make([]*systemNode, len(systems))
	copy(remaining, systems)

	for len(remaining) > 0 {
		var currentBatch []*systemNode
		var nextRemaining []*systemNode

		for _, sys := range remaining {
			canRun := !conflictsWithAny(sys, currentBatch) && !conflictsWithAny(sys, nextRemaining)

			if canRun {
				currentBatch = append(currentBatch, sys)
			} else {
				nextRemaining = append(nextRemaining, sys)
			}
		}

		batches = append(batches, currentBatch)
		remaining = nextRemaining
	}

	return batches
}

func conflictsWithAny(sys *systemNode, others []*systemNode) bool {
	for _, other := range others {
		if systemsConflict(sys, other) {
			return true
		}
	}
	return false
}

func systemsConflict(a, b *systemNode) bool {
	for id := range a.writes {
		if _, ok := b.writes[id]; ok {
			return true
		}
	}

	for id := range a.writes {
		if _, ok := b.reads[id]; ok {
			return true
		}
	}
	for id := range b.writes {
		if _, ok := a.reads[id]; ok {
			return true
		}
	}

	return false
}

// RunInit runs every startup system once, applying each system's commands
// before the next one starts.
func (s *Scheduler) RunInit(w *World) error {
	var firstErr error

	for _, sys := range s.initSystems {
		sys.runner(SystemContext{
			World:    w,
			Commands: sys.commands,
		})

		if err := w.processCommands(sys.commands.GetCommands()); err != nil && firstErr == nil {
			firstErr = err
		}
		sys.commands.Reset()
	}

	return firstErr
}

func (s *Scheduler) RunUpdate(w *World, dt float64, tick uint64) error {
	for _, batch := range s.batches {
		s.executeBatch(w, dt, tick, batch)
	}

	var commands []Command
	for _, sys := range s.systems {
		commands = append(commands, sys.commands.GetCommands()...)
		sys.commands.Reset()
	}

	end := &CommandBuffer{world: w, commands: commands}
	for _, sys := range s.endSystems {
		sys.runner(SystemContext{
			World:    w,
			Dt:       dt,
			Tick:     tick,
			Commands: end,
		})
	}

	err := w.processCommands(end.GetCommands())

	for _, msgStore := range w.messages {
		msgStore.swap()
	}

	return err
}

func (s *Scheduler) executeBatch(w *World, dt float64, tick uint64, batch []*systemNode) {
	if len(batch) == 1 {
		batch[0].runner(SystemContext{
			World:    w,
			Dt:       dt,
			Tick:     tick,
			Commands: batch[0].commands,
		})
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(batch))

	for _, sys := range batch {
		go func(node *systemNode) {
			defer wg.Done()

			node.runner(SystemContext{
				World:    w,
				Dt:       dt,
				Tick:     tick,
				Commands: node.commands,
			})
		}(sys)
	}

	wg.Wait()
}

// ==================================================================
// Commands
// ==================================================================

type CommandOperation int

const (
	CreateEntityCommand CommandOperation = iota
	DestroyEntityCommand
	AddComponentToEntity
	RemoveComponentFromEntity
	PushChildrenCommand
)

// Command represents a structural change instruction.
type Command struct {
	Op       CommandOperation
	Entity   EntityID
	Type     reflect.Type
	Value    any
	Values   []any
	Children []EntityID
}

// A CommandBuffer collects commands from a system. They are applied after a
// startup system returns, or at the end of the tick for update systems.
type CommandBuffer struct {
	world    *World
	commands []Command
}

// Reset resets the command buffer.
func (cb *CommandBuffer) Reset() {
	cb.commands = cb.commands[:0]
}

// GetCommands retrieves all queued commands from cb.
func (cb *CommandBuffer) GetCommands() []Command {
	return cb.commands
}

// Spawn reserves a new entity id and queues its creation with the given
// components. The id is valid for use in later commands right away.
func (cb *CommandBuffer) Spawn(components ...any) EntityID {
	id := cb.world.allocate()
	cb.CreateEntity(id, components...)
	return id
}

// SpawnChild is Spawn followed by PushChildren(parent, child).
func (cb *CommandBuffer) SpawnChild(parent EntityID, components ...any) EntityID {
	child := cb.Spawn(components...)
	cb.PushChildren(parent, child)
	return child
}

// CreateEntity queues creation of an entity with a caller-chosen id.
func (cb *CommandBuffer) CreateEntity(e EntityID, initial ...any) {
	cb.commands = append(cb.commands, Command{
		Op:     CreateEntityCommand,
		Entity: e,
		Values: initial,
	})
}

// DestroyEntity inserts a destroy-entity-command to cb.
func (cb *CommandBuffer) DestroyEntity(e EntityID) {
	cb.commands = append(cb.commands, Command{
		Op:     DestroyEntityCommand,
		Entity: e,
	})
}

// AddComponent inserts an add-component-command to cb. Adding a component
// the entity already has replaces it.
func (cb *CommandBuffer) AddComponent(e EntityID, v any) {
	cb.commands = append(cb.commands, Command{
		Op:     AddComponentToEntity,
		Entity: e,
		Type:   reflect.TypeOf(v),
		Value:  v,
	})
}

// RemoveComponentFor inserts a remove-component-command to cb.
func RemoveComponentFor[T any](cb *CommandBuffer, e EntityID) {
	cb.commands = append(cb.commands, Command{
		Op:     RemoveComponentFromEntity,
		Entity: e,
		Type:   reflect.TypeFor[T](),
	})
}

// PushChildren makes children direct descendants of parent, detaching them
// from any previous parent.
func (cb *CommandBuffer) PushChildren(parent EntityID, children ...EntityID) {
	cb.commands = append(cb.commands, Command{
		Op:       PushChildrenCommand,
		Entity:   parent,
		Children: children,
	})
}
