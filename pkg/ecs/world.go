package ecs

import (
	"errors"
	"fmt"
	"iter"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
)

type EntityID uint64

// NoEntity is never handed out by a World.
const NoEntity EntityID = 0

type World struct {
	entities   map[EntityID]struct{}
	stores     map[reflect.Type]TypedStore
	singletons map[reflect.Type]any
	messages   map[reflect.Type]TypedMessageStore

	nextID atomic.Uint64
}

func NewWorld() *World {
	w := &World{
		entities:   make(map[EntityID]struct{}),
		stores:     make(map[reflect.Type]TypedStore),
		singletons: make(map[reflect.Type]any),
		messages:   make(map[reflect.Type]TypedMessageStore),
	}

	registerComponent[Parent](w)
	registerComponent[Children](w)

	return w
}

// ==================================================================
// Errors
// ==================================================================

var ErrHierarchyCycle = errors.New("entity cannot become a descendant of itself")

type ErrEntityNotFound struct {
	ID EntityID
}

func (e ErrEntityNotFound) Error() string {
	return fmt.Sprintf("entity %d does not exist", e.ID)
}

type ErrComponentNotRegistered struct {
	Type reflect.Type
}

func (e ErrComponentNotRegistered) Error() string {
	return fmt.Sprintf("component type %s not registered", e.Type)
}

// ==================================================================
// Entities
// ==================================================================

func (w *World) allocate() EntityID {
	return EntityID(w.nextID.Add(1))
}

func (w *World) EntityExists(id EntityID) bool {
	_, ok := w.entities[id]
	return ok
}

func (w *World) EntityCount() int {
	return len(w.entities)
}

func (w *World) processCommands(commands []Command) error {
	var errs []error

	for _, cmd := range commands {
		var err error

		switch cmd.Op {
		case CreateEntityCommand:
			err = w.createEntity(cmd.Entity, cmd.Values)
		case DestroyEntityCommand:
			w.destroyEntity(cmd.Entity)
		case AddComponentToEntity:
			err = w.addComponent(cmd.Entity, cmd.Type, cmd.Value)
		case RemoveComponentFromEntity:
			w.removeComponent(cmd.Entity, cmd.Type)
		case PushChildrenCommand:
			err = w.pushChildren(cmd.Entity, cmd.Children)
		}

		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (w *World) createEntity(id EntityID, values []any) error {
	w.entities[id] = struct{}{}

	var errs []error
	for _, v := range values {
		if err := w.addComponent(id, reflect.TypeOf(v), v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *World) destroyEntity(id EntityID) {
	if !w.EntityExists(id) {
		return
	}

	w.detach(id)

	if children, ok := lookup[Children](w, id); ok {
		for _, child := range children.IDs {
			removeFrom[Parent](w, child)
		}
	}

	delete(w.entities, id)

	for _, store := range w.stores {
		if store.HasEntity(id) {
			store.Remove(id)
		}
	}
}

func (w *World) addComponent(id EntityID, typ reflect.Type, value any) error {
	if !w.EntityExists(id) {
		return ErrEntityNotFound{id}
	}

	s, ok := w.stores[typ]
	if !ok {
		return ErrComponentNotRegistered{typ}
	}

	s.Set(id, value)
	return nil
}

func (w *World) removeComponent(id EntityID, typ reflect.Type) {
	s, ok := w.stores[typ]
	if ok {
		s.Remove(id)
	}
}

// ==================================================================
// Messages
// ==================================================================

type TypedMessageStore interface {
	swap()
}

type MessageStore[T any] struct {
	read  []T
	write []T
	mu    sync.Mutex
}

func (s *MessageStore[T]) swap() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.read = append(s.read[:0], s.write...)
	s.write = s.write[:0]
}

func registerMessage[T any](w *World) {
	t := reflect.TypeFor[T]()
	if _, ok := w.messages[t]; ok {
		return
	}

	w.messages[t] = &MessageStore[T]{
		read:  make([]T, 0),
		write: make([]T, 0),
	}
}

// PushMessage queues msg for readers in the next tick. Safe to call from
// systems of the same batch.
func PushMessage[T any](w *World, msg T) {
	s, ok := w.messages[reflect.TypeFor[T]()]
	if !ok {
		return
	}

	store, ok := s.(*MessageStore[T])
	if ok {
		store.mu.Lock()
		store.write = append(store.write, msg)
		store.mu.Unlock()
	}
}

// CollectMessages returns a copy of the messages pushed during the previous
// tick.
func CollectMessages[T any](w *World) []T {
	s, ok := w.messages[reflect.TypeFor[T]()]
	if !ok {
		return nil
	}

	store, ok := s.(*MessageStore[T])
	if !ok {
		return nil
	}

	return slices.Clone(store.read)
}

// ==================================================================
// Singletons
// ==================================================================

type SingletonStore[T any] struct {
	data T
}

func registerSingleton[T any](w *World, initial T) {
	w.singletons[reflect.TypeFor[T]()] = &SingletonStore[T]{data: initial}
}

// GetSingleton returns a pointer to the registered resource of type T.
func GetSingleton[T any](w *World) (*T, bool) {
	store, ok := w.singletons[reflect.TypeFor[T]()].(*SingletonStore[T])
	if !ok {
		return nil, false
	}
	return &store.data, true
}

func GetStaticSingleton[T any](w *World) T {
	store, ok := w.singletons[reflect.TypeFor[T]()].(*SingletonStore[T])
	if !ok {
		var zero T
		return zero
	}
	return store.data
}

// ==================================================================
// Components
// ==================================================================

func registerComponent[T any](w *World) {
	t := reflect.TypeFor[T]()
	if _, ok := w.stores[t]; ok {
		return
	}

	w.stores[t] = &Store[T]{
		typ:    t,
		sparse: make(map[EntityID]int),
	}
}

func getStoreFromWorld[T any](w *World) (*Store[T], bool) {
	s, ok := w.stores[reflect.TypeFor[T]()]
	if !ok {
		return nil, false
	}
	store, ok := s.(*Store[T])
	return store, ok
}

func lookup[T any](w *World, id EntityID) (*T, bool) {
	store, ok := getStoreFromWorld[T](w)
	if !ok {
		return nil, false
	}
	return store.Lookup(id)
}

func removeFrom[T any](w *World, id EntityID) {
	if store, ok := getStoreFromWorld[T](w); ok {
		store.Remove(id)
	}
}

// Get returns entity id's component of type T.
func Get[T any](w *World, id EntityID) (*T, bool) {
	return lookup[T](w, id)
}

func HasComponent[T any](w *World, id EntityID) bool {
	store, ok := getStoreFromWorld[T](w)
	return ok && store.HasEntity(id)
}

// SetComponent writes value directly, bypassing command buffers. Only for
// systems that own the component type for the current batch.
func SetComponent[T any](w *World, id EntityID, value T) error {
	if !w.EntityExists(id) {
		return ErrEntityNotFound{id}
	}
	store, ok := getStoreFromWorld[T](w)
	if !ok {
		return ErrComponentNotRegistered{reflect.TypeFor[T]()}
	}
	store.Set(id, value)
	return nil
}

// EntitiesWith lists the entities holding a component of type T in storage order.
func EntitiesWith[T any](w *World) []EntityID {
	store, ok := getStoreFromWorld[T](w)
	if !ok {
		return nil
	}
	return slices.Collect(store.Entities())
}

type TypedStore interface {
	HasEntity(id EntityID) bool
	Set(id EntityID, value any)
	Remove(id EntityID)
	Len() int
}

type Store[T any] struct {
	typ    reflect.Type
	sparse map[EntityID]int
	dense  []EntityID
	data   []T
}

// Set inserts value for id or replaces the existing one.
func (s *Store[T]) Set(id EntityID, value any) {
	v, ok := value.(T)
	if !ok {
		return
	}

	if idx, exists := s.sparse[id]; exists {
		s.data[idx] = v
		return
	}

	s.sparse[id] = len(s.data)
	s.data = append(s.data, v)
	s.dense = append(s.dense, id)
}

func (s *Store[T]) Remove(id EntityID) {
	idx, exists := s.sparse[id]
	if !exists {
		return
	}

	lastIndex := len(s.data) - 1
	lastEntityID := s.dense[lastIndex]

	if idx != lastIndex {
		s.data[idx] = s.data[lastIndex]
		s.dense[idx] = lastEntityID
		s.sparse[lastEntityID] = idx
	}

	s.data = s.data[:lastIndex]
	s.dense = s.dense[:lastIndex]

	delete(s.sparse, id)
}

func (s *Store[T]) Entities() iter.Seq[EntityID] {
	return func(yield func(EntityID) bool) {
		for _, id := range s.dense {
			if !yield(id) {
				break
			}
		}
	}
}

func (s *Store[T]) Len() int {
	return len(s.dense)
}

func (s *Store[T]) HasEntity(id EntityID) bool {
	_, ok := s.sparse[id]
	return ok
}

func (s *Store[T]) Lookup(id EntityID) (*T, bool) {
	idx, ok := s.sparse[id]
	if !ok {
		return nil, false
	}
	return &s.data[idx], true
}
