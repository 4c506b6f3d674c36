package physics

import (
	"github.com/QYUbit/revolute/pkg/ecs"
	"github.com/QYUbit/revolute/pkg/mathx"
)

// PropagateTransforms recomputes GlobalTransform for every entity that has a
// Transform, a Collider or a RigidBody. A missing local Transform counts as
// identity.
func PropagateTransforms(w *ecs.World) {
	cache := make(map[ecs.EntityID]mathx.Transform)

	var global func(id ecs.EntityID) mathx.Transform
	global = func(id ecs.EntityID) mathx.Transform {
		if g, ok := cache[id]; ok {
			return g
		}

		local := mathx.Identity()
		if t, ok := ecs.Get[mathx.Transform](w, id); ok {
			local = t.Normalize()
		}

		g := local
		if parent, ok := w.ParentOf(id); ok {
			g = global(parent).Mul(local)
		}

		cache[id] = g
		return g
	}

	seen := make(map[ecs.EntityID]struct{})
	visit := func(ids []ecs.EntityID) {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ecs.SetComponent(w, id, GlobalTransform{global(id)})
		}
	}

	visit(ecs.EntitiesWith[mathx.Transform](w))
	visit(ecs.EntitiesWith[Collider](w))
	visit(ecs.EntitiesWith[RigidBody](w))
}

// GlobalOf returns the last propagated world transform of id, or identity.
func GlobalOf(w *ecs.World, id ecs.EntityID) mathx.Transform {
	if g, ok := ecs.Get[GlobalTransform](w, id); ok {
		return g.Transform
	}
	return mathx.Identity()
}

// BodyOf finds the entity holding the RigidBody that owns id: id itself or
// its nearest ancestor with one.
func BodyOf(w *ecs.World, id ecs.EntityID) (ecs.EntityID, bool) {
	if ecs.HasComponent[RigidBody](w, id) {
		return id, true
	}
	for _, a := range w.Ancestors(id) {
		if ecs.HasComponent[RigidBody](w, a) {
			return a, true
		}
	}
	return ecs.NoEntity, false
}
