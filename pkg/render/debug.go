package render

import (
	"cmp"
	"slices"

	"github.com/QYUbit/revolute/pkg/ecs"
	"github.com/QYUbit/revolute/pkg/mathx"
	"github.com/QYUbit/revolute/pkg/physics"
)

// DebugRenderPlugin builds a Frame at the end of every tick and hands it to
// each sink. It expects the physics plugin to be registered.
func DebugRenderPlugin(sinks ...Sink) ecs.Plugin {
	return func(e *ecs.Engine) {
		logger := e.Logger().With("system", "debug_render")

		e.RegisterSystemFunc(func(ctx ecs.SystemContext) {
			f := BuildFrame(ctx.World, ctx.Tick)
			for _, s := range sinks {
				s.Publish(f)
			}
			if ctx.Tick%600 == 0 {
				logger.Debug("frame published", "frame", f.Number, "bodies", len(f.Bodies))
			}
		}, ecs.Trigger(ecs.OnEndOfTick), ecs.Name("render.debug"))
	}
}

// BuildFrame snapshots every collider of w. Bodies are ordered by entity id.
func BuildFrame(w *ecs.World, number uint64) Frame {
	f := Frame{
		Number:     number,
		Camera:     mathx.Identity(),
		ClearColor: ecs.GetStaticSingleton[ClearColor](w),
	}

	for row := range ecs.Query1[Camera3D](w).Iter() {
		f.Camera = physics.GlobalOf(w, row.ID)
		if !ecs.HasComponent[physics.GlobalTransform](w, row.ID) {
			if t, ok := ecs.Get[mathx.Transform](w, row.ID); ok {
				f.Camera = t.Normalize()
			}
		}
		break
	}

	for row := range ecs.Query1[physics.Collider](w).Iter() {
		c := row.Get()
		view := BodyView{
			Entity:      uint64(row.ID),
			Shape:       c.Shape,
			HalfExtents: c.HalfExtents,
			Radius:      c.Radius,
			Kind:        physics.Fixed,
			Transform:   physics.GlobalOf(w, row.ID),
		}

		if body, ok := physics.BodyOf(w, row.ID); ok {
			rb, _ := ecs.Get[physics.RigidBody](w, body)
			view.Kind = rb.Kind
			if s, ok := ecs.Get[physics.Sleeping](w, body); ok {
				view.Asleep = s.Asleep
			}
		}

		f.Bodies = append(f.Bodies, view)
	}

	slices.SortFunc(f.Bodies, func(a, b BodyView) int {
		return cmp.Compare(a.Entity, b.Entity)
	})

	return f
}
