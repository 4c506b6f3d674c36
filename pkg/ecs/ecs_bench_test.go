package ecs

import (
	"strconv"
	"testing"
)

// Benchmark Components
type BenchPosition struct{ X, Y, Z float64 }
type BenchVelocity struct{ X, Y, Z float64 }
type BenchHealth struct{ Current, Max int }
type BenchDamage struct{ Value int }

func benchWorld(b *testing.B, n int) *World {
	b.Helper()
	w := NewWorld()
	registerComponent[BenchPosition](w)
	registerComponent[BenchVelocity](w)
	registerComponent[BenchHealth](w)

	cb := &CommandBuffer{world: w}
	for i := range n {
		if i%2 == 0 {
			cb.Spawn(BenchPosition{X: float64(i)}, BenchVelocity{X: 1, Y: 1, Z: 1})
		} else {
			cb.Spawn(BenchPosition{X: float64(i)}, BenchHealth{Current: 100, Max: 100})
		}
	}
	if err := w.processCommands(cb.GetCommands()); err != nil {
		b.Fatal(err)
	}
	return w
}

// BenchmarkEntityCreation benchmarks entity creation
func BenchmarkEntityCreation(b *testing.B) {
	w := NewWorld()
	registerComponent[BenchPosition](w)
	registerComponent[BenchVelocity](w)
	cb := &CommandBuffer{world: w}

	for b.Loop() {
		cb.Spawn(BenchPosition{X: 1, Y: 2, Z: 3}, BenchVelocity{X: 1})
		w.processCommands(cb.GetCommands())
		cb.Reset()
	}
}

// BenchmarkEntityDestruction benchmarks spawning and destroying an entity
func BenchmarkEntityDestruction(b *testing.B) {
	w := benchWorld(b, 1000)
	cb := &CommandBuffer{world: w}

	for b.Loop() {
		id := cb.Spawn(BenchPosition{}, BenchHealth{})
		cb.DestroyEntity(id)
		w.processCommands(cb.GetCommands())
		cb.Reset()
	}
}

// BenchmarkQuery1 benchmarks single component iteration
func BenchmarkQuery1(b *testing.B) {
	for _, n := range []int{100, 10000} {
		w := benchWorld(b, n)
		b.Run(strconv.Itoa(n), func(b *testing.B) {
			for b.Loop() {
				for row := range Query1[BenchPosition](w).Iter() {
					_ = row.Get()
				}
			}
		})
	}
}

// BenchmarkQuery2 benchmarks two component iteration
func BenchmarkQuery2(b *testing.B) {
	for _, n := range []int{100, 10000} {
		w := benchWorld(b, n)
		b.Run(strconv.Itoa(n), func(b *testing.B) {
			for b.Loop() {
				for row := range Query2[BenchPosition, BenchVelocity](w).Iter() {
					pos, vel := row.Get1(), row.Get2()
					pos.X += vel.X
				}
			}
		})
	}
}

// BenchmarkQueryWithExclude benchmarks filtered iteration
func BenchmarkQueryWithExclude(b *testing.B) {
	w := benchWorld(b, 10000)

	for b.Loop() {
		for row := range Query1[BenchPosition](w, Exclude(BenchHealth{})).Iter() {
			_ = row.Get()
		}
	}
}

// BenchmarkComponentGet benchmarks random access
func BenchmarkComponentGet(b *testing.B) {
	w := benchWorld(b, 1000)
	ids := EntitiesWith[BenchPosition](w)

	i := 0
	for b.Loop() {
		_, _ = Get[BenchPosition](w, ids[i%len(ids)])
		i++
	}
}

// BenchmarkMessagePush benchmarks message pushing
func BenchmarkMessagePush(b *testing.B) {
	w := NewWorld()
	registerMessage[BenchDamage](w)

	for b.Loop() {
		PushMessage(w, BenchDamage{Value: 1})
	}
}

// BenchmarkParallelSystemsTick benchmarks a tick with independent systems
func BenchmarkParallelSystemsTick(b *testing.B) {
	engine := NewEngine()
	RegisterComponent[BenchPosition](engine)
	RegisterComponent[BenchVelocity](engine)
	RegisterComponent[BenchHealth](engine)

	engine.RegisterSystemFunc(func(ctx SystemContext) {
		for i := range 1000 {
			ctx.Commands.Spawn(
				BenchPosition{X: float64(i)},
				BenchVelocity{X: 0.1, Y: 0.2, Z: 0.3},
				BenchHealth{Current: 100, Max: 100},
			)
		}
	}, Trigger(OnStartup))

	engine.RegisterSystemFunc(func(ctx SystemContext) {
		for row := range Query2[BenchPosition, BenchVelocity](ctx.World).Iter() {
			pos, vel := row.Get1(), row.Get2()
			pos.X += vel.X * ctx.Dt
			pos.Y += vel.Y * ctx.Dt
			pos.Z += vel.Z * ctx.Dt
		}
	}, Reads(BenchVelocity{}), Writes(BenchPosition{}))

	engine.RegisterSystemFunc(func(ctx SystemContext) {
		for row := range Query1[BenchHealth](ctx.World).Iter() {
			h := row.Mut()
			h.Current = min(h.Current+1, h.Max)
		}
	}, Writes(BenchHealth{}))

	if err := engine.Startup(); err != nil {
		b.Fatal(err)
	}

	for b.Loop() {
		engine.ExecuteTick(1.0 / 60.0)
	}
}
