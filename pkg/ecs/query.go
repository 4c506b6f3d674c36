package ecs

import (
	"iter"
	"reflect"
)

type QueryOption func(*queryFilter)

type queryFilter struct {
	require []reflect.Type
	exclude []reflect.Type
}

// Require restricts a query to entities that also hold the given components.
func Require(comps ...any) QueryOption {
	return func(f *queryFilter) {
		for _, c := range comps {
			f.require = append(f.require, reflect.TypeOf(c))
		}
	}
}

// Exclude drops entities holding any of the given components.
func Exclude(comps ...any) QueryOption {
	return func(f *queryFilter) {
		for _, c := range comps {
			f.exclude = append(f.exclude, reflect.TypeOf(c))
		}
	}
}

func buildFilter(opts []QueryOption) queryFilter {
	var f queryFilter
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

func (f queryFilter) matches(w *World, id EntityID) bool {
	for _, t := range f.require {
		s, ok := w.stores[t]
		if !ok || !s.HasEntity(id) {
			return false
		}
	}
	for _, t := range f.exclude {
		if s, ok := w.stores[t]; ok && s.HasEntity(id) {
			return false
		}
	}
	return true
}

// ==================================================================
// Query1
// ==================================================================

type Row1[A any] struct {
	ID EntityID
	a  *A
}

func (r Row1[A]) Get() A { return *r.a }

func (r Row1[A]) Mut() *A { return r.a }

type Q1[A any] struct {
	world  *World
	filter queryFilter
}

func Query1[A any](w *World, opts ...QueryOption) Q1[A] {
	return Q1[A]{world: w, filter: buildFilter(opts)}
}

func (q Q1[A]) Iter() iter.Seq[Row1[A]] {
	return func(yield func(Row1[A]) bool) {
		sa, ok := getStoreFromWorld[A](q.world)
		if !ok {
			return
		}

		for i := 0; i < len(sa.dense); i++ {
			id := sa.dense[i]
			if !q.filter.matches(q.world, id) {
				continue
			}
			if !yield(Row1[A]{ID: id, a: &sa.data[i]}) {
				return
			}
		}
	}
}

func (q Q1[A]) Count() int {
	n := 0
	for range q.Iter() {
		n++
	}
	return n
}

// ==================================================================
// Query2
// ==================================================================

type Row2[A, B any] struct {
	ID EntityID
	a  *A
	b  *B
}

func (r Row2[A, B]) Get1() *A { return r.a }

func (r Row2[A, B]) Get2() *B { return r.b }

type Q2[A, B any] struct {
	world  *World
	filter queryFilter
}

func Query2[A, B any](w *World, opts ...QueryOption) Q2[A, B] {
	return Q2[A, B]{world: w, filter: buildFilter(opts)}
}

func (q Q2[A, B]) Iter() iter.Seq[Row2[A, B]] {
	return func(yield func(Row2[A, B]) bool) {
		sa, ok := getStoreFromWorld[A](q.world)
		if !ok {
			return
		}
		sb, ok := getStoreFromWorld[B](q.world)
		if !ok {
			return
		}

		for i := 0; i < len(sa.dense); i++ {
			id := sa.dense[i]
			b, ok := sb.Lookup(id)
			if !ok || !q.filter.matches(q.world, id) {
				continue
			}
			if !yield(Row2[A, B]{ID: id, a: &sa.data[i], b: b}) {
				return
			}
		}
	}
}

// ==================================================================
// Query3
// ==================================================================

type Row3[A, B, C any] struct {
	ID EntityID
	a  *A
	b  *B
	c  *C
}

func (r Row3[A, B, C]) Get1() *A { return r.a }

func (r Row3[A, B, C]) Get2() *B { return r.b }

func (r Row3[A, B, C]) Get3() *C { return r.c }

type Q3[A, B, C any] struct {
	world  *World
	filter queryFilter
}

func Query3[A, B, C any](w *World, opts ...QueryOption) Q3[A, B, C] {
	return Q3[A, B, C]{world: w, filter: buildFilter(opts)}
}

func (q Q3[A, B, C]) Iter() iter.Seq[Row3[A, B, C]] {
	return func(yield func(Row3[A, B, C]) bool) {
		sa, ok := getStoreFromWorld[A](q.world)
		if !ok {
			return
		}
		sb, ok := getStoreFromWorld[B](q.world)
		if !ok {
			return
		}
		sc, ok := getStoreFromWorld[C](q.world)
		if !ok {
			return
		}

		for i := 0; i < len(sa.dense); i++ {
			id := sa.dense[i]
			b, ok := sb.Lookup(id)
			if !ok {
				continue
			}
			c, ok := sc.Lookup(id)
			if !ok || !q.filter.matches(q.world, id) {
				continue
			}
			if !yield(Row3[A, B, C]{ID: id, a: &sa.data[i], b: b, c: c}) {
				return
			}
		}
	}
}
