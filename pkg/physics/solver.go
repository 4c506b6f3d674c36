package physics

import (
	"math"

	"github.com/QYUbit/revolute/pkg/ecs"
	"github.com/QYUbit/revolute/pkg/mathx"
	"github.com/go-gl/mathgl/mgl64"
)

type body struct {
	id    ecs.EntityID
	kind  BodyKind
	pose  mathx.Transform
	lin   mgl64.Vec3
	ang   mgl64.Vec3
	mass  MassProperties
	sleep *Sleeping
	ccd   bool
	// minExtent is the smallest collider extent, used to size CCD substeps.
	minExtent float64
	hinge     *joint
	woken     bool
}

func (b *body) dynamic() bool {
	return b.kind == Dynamic
}

func (b *body) asleep() bool {
	return b.sleep != nil && b.sleep.Asleep
}

func (b *body) wake() {
	b.woken = true
	if b.sleep != nil {
		b.sleep.Asleep = false
		b.sleep.idle = 0
	}
}

type collider struct {
	id     ecs.EntityID
	shape  Collider
	body   *body
	offset mathx.Transform
}

func (c *collider) pose() mathx.Transform {
	return c.body.pose.Mul(c.offset)
}

type joint struct {
	id     ecs.EntityID
	comp   *ImpulseJoint
	b1, b2 *body
}

type solver struct {
	world     *ecs.World
	cfg       Config
	bodies    []*body
	byID      map[ecs.EntityID]*body
	colliders []*collider
	joints    []*joint
	contacts  map[pairKey]Contact
}

func newSolver(w *ecs.World, cfg Config) *solver {
	s := &solver{
		world:    w,
		cfg:      cfg,
		byID:     make(map[ecs.EntityID]*body),
		contacts: make(map[pairKey]Contact),
	}

	for row := range ecs.Query1[RigidBody](w).Iter() {
		b := &body{
			id:        row.ID,
			kind:      row.Get().Kind,
			pose:      GlobalOf(w, row.ID),
			minExtent: math.Inf(1),
		}
		if v, ok := ecs.Get[Velocity](w, row.ID); ok && b.dynamic() {
			b.lin, b.ang = v.Linear, v.Angular
		}
		if sl, ok := ecs.Get[Sleeping](w, row.ID); ok {
			b.sleep = sl
		}
		if c, ok := ecs.Get[Ccd](w, row.ID); ok {
			b.ccd = c.Enabled
		}
		s.bodies = append(s.bodies, b)
		s.byID[row.ID] = b
	}

	for row := range ecs.Query1[Collider](w).Iter() {
		shape := row.Get()
		owner := s.bodyOf(row.ID)
		global := GlobalOf(w, row.ID)

		var offset mathx.Transform
		if owner == nil {
			// A collider without a rigid body behaves as fixed geometry.
			owner = &body{id: row.ID, kind: Fixed, pose: global, minExtent: math.Inf(1)}
			offset = mathx.Identity()
		} else {
			offset = owner.pose.Inverse().Mul(global)
		}

		owner.minExtent = math.Min(owner.minExtent, shape.MinExtent())
		s.colliders = append(s.colliders, &collider{id: row.ID, shape: shape, body: owner, offset: offset})
	}

	s.computeMass()

	for row := range ecs.Query1[ImpulseJoint](w).Iter() {
		comp := row.Mut()
		j := &joint{
			id:   row.ID,
			comp: comp,
			b1:   s.bodyOf(comp.Parent),
			b2:   s.bodyOf(row.ID),
		}
		if j.b1 == nil || j.b2 == nil || j.b1 == j.b2 {
			continue
		}
		if j.b2.dynamic() && j.b2.hinge == nil {
			j.b2.hinge = j
			j.init()
		}
		s.joints = append(s.joints, j)
	}

	return s
}

// bodyOf finds the rigid body of id itself or of its nearest ancestor.
func (s *solver) bodyOf(id ecs.EntityID) *body {
	if b, ok := s.byID[id]; ok {
		return b
	}
	for _, a := range s.world.Ancestors(id) {
		if b, ok := s.byID[a]; ok {
			return b
		}
	}
	return nil
}

func (s *solver) computeMass() {
	for _, b := range s.bodies {
		if !b.dynamic() {
			continue
		}
		if mp, ok := ecs.Get[MassProperties](s.world, b.id); ok {
			b.mass = *mp
			continue
		}

		var mass float64
		var inertia mgl64.Vec3
		for _, c := range s.colliders {
			if c.body != b {
				continue
			}
			m := c.shape.Density * c.shape.Volume()
			mass += m
			inertia = inertia.Add(c.shape.PrincipalInertia(m))
		}
		if mass <= 0 {
			mass = 1
			inertia = mathx.One
		}

		b.mass = MassProperties{
			Mass:       mass,
			InvMass:    1 / mass,
			Inertia:    inertia,
			InvInertia: invElem(inertia),
		}
	}
}

func invElem(v mgl64.Vec3) mgl64.Vec3 {
	var out mgl64.Vec3
	for i := range 3 {
		if v[i] > 0 {
			out[i] = 1 / v[i]
		}
	}
	return out
}

// angularResponse rotates torque into the body frame, scales it by the
// inverse principal inertia and rotates it back.
func (b *body) angularResponse(torque mgl64.Vec3) mgl64.Vec3 {
	q := b.pose.Rotation
	local := q.Conjugate().Rotate(torque)
	local = mgl64.Vec3{local[0] * b.mass.InvInertia[0], local[1] * b.mass.InvInertia[1], local[2] * b.mass.InvInertia[2]}
	return q.Rotate(local)
}

func (s *solver) applyImpulses() {
	for _, b := range s.bodies {
		imp, ok := ecs.Get[ExternalImpulse](s.world, b.id)
		if !ok || imp.IsZero() {
			continue
		}
		if b.dynamic() {
			b.wake()
			if b.hinge != nil {
				b.hinge.applyImpulseAt(b.pose.Translation, imp.Impulse, imp.TorqueImpulse)
			} else {
				b.lin = b.lin.Add(imp.Impulse.Mul(b.mass.InvMass))
				b.ang = b.ang.Add(b.angularResponse(imp.TorqueImpulse))
			}
		}
		*imp = ExternalImpulse{}
	}
}

// substeps is the number of solver iterations needed so that no CCD body
// moves further than its smallest extent in one iteration.
func (s *solver) substeps(dt float64) int {
	n := max(s.cfg.Substeps, 1)
	limit := max(s.cfg.MaxCcdSubsteps, n)

	for _, b := range s.bodies {
		if !b.ccd || !b.dynamic() || b.hinge != nil || math.IsInf(b.minExtent, 1) {
			continue
		}
		speed := b.lin.Add(s.cfg.Gravity.Mul(dt)).Len()
		need := int(math.Ceil(speed * dt / b.minExtent))
		n = max(n, min(need, limit))
	}
	return n
}

func (s *solver) integrate(h float64) {
	for _, b := range s.bodies {
		if !b.dynamic() || b.asleep() {
			continue
		}

		if b.hinge != nil {
			b.hinge.applyGravity(s.cfg.Gravity, h)
			continue
		}

		b.lin = b.lin.Add(s.cfg.Gravity.Mul(h))
		b.pose.Translation = b.pose.Translation.Add(b.lin.Mul(h))

		if b.ang.LenSqr() > 0 {
			spin := mgl64.Quat{W: 0, V: b.ang}.Mul(b.pose.Rotation).Scale(0.5 * h)
			b.pose.Rotation = b.pose.Rotation.Add(spin).Normalize()
		}
	}
}

func (s *solver) solveJoints(h float64) {
	for _, j := range s.joints {
		if j.b2.hinge == j {
			j.step(h)
		}
	}
}

func (s *solver) updateSleep(dt float64) {
	for _, b := range s.bodies {
		if !b.dynamic() || b.sleep == nil || b.sleep.Disabled || b.hinge != nil {
			continue
		}
		if b.woken {
			continue
		}

		sl := b.sleep
		if b.lin.Len() < sl.LinearThreshold && b.ang.Len() < sl.AngularThreshold {
			sl.idle += dt
			if sl.idle >= s.cfg.SleepTime {
				sl.Asleep = true
				b.lin, b.ang = mgl64.Vec3{}, mgl64.Vec3{}
			}
		} else {
			sl.idle = 0
			sl.Asleep = false
		}
	}
}

func (s *solver) writeBack() {
	for _, b := range s.bodies {
		if !b.dynamic() {
			continue
		}

		parentGlobal := mathx.Identity()
		if parent, ok := s.world.ParentOf(b.id); ok {
			parentGlobal = GlobalOf(s.world, parent)
		}

		local := parentGlobal.Inverse().Mul(b.pose)
		if old, ok := ecs.Get[mathx.Transform](s.world, b.id); ok {
			local.Scale = old.Normalize().Scale
		}

		ecs.SetComponent(s.world, b.id, local)
		ecs.SetComponent(s.world, b.id, Velocity{Linear: b.lin, Angular: b.ang})
		if !ecs.HasComponent[MassProperties](s.world, b.id) {
			ecs.SetComponent(s.world, b.id, b.mass)
		}
	}
}

// Step advances the simulation by one configured timestep.
func Step(ctx ecs.SystemContext) {
	cfg, ok := ecs.GetSingleton[Config](ctx.World)
	if !ok || !cfg.PhysicsPipelineActive {
		return
	}

	dt := cfg.Timestep
	if dt <= 0 {
		dt = ctx.Dt
	}
	if dt <= 0 {
		return
	}

	PropagateTransforms(ctx.World)

	s := newSolver(ctx.World, *cfg)
	s.applyImpulses()

	n := s.substeps(dt)
	h := dt / float64(n)
	for range n {
		s.integrate(h)
		s.solveJoints(h)
		s.resolveContacts()
	}

	s.updateSleep(dt)
	s.writeBack()
	s.publishContacts()

	PropagateTransforms(ctx.World)
}
