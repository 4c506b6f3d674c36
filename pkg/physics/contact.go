package physics

import (
	"math"

	"github.com/QYUbit/revolute/pkg/ecs"
	"github.com/QYUbit/revolute/pkg/mathx"
	"github.com/go-gl/mathgl/mgl64"
)

// Contact is one touching collider pair. Normal points from B towards A.
type Contact struct {
	A, B   ecs.EntityID
	Point  mgl64.Vec3
	Normal mgl64.Vec3
	Depth  float64
}

type ContactStarted struct {
	A, B   ecs.EntityID
	Point  mgl64.Vec3
	Normal mgl64.Vec3
}

type ContactEnded struct {
	A, B ecs.EntityID
}

type pairKey struct {
	a, b ecs.EntityID
}

func keyOf(a, b ecs.EntityID) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// contactCache remembers the pairs touching at the end of the previous step.
type contactCache struct {
	pairs map[pairKey]struct{}
}

// sphereCuboid tests a ball of radius r centred at c against a cuboid.
func sphereCuboid(c mgl64.Vec3, r float64, box mathx.Transform, he mgl64.Vec3) (point, normal mgl64.Vec3, depth float64, ok bool) {
	inv := box.Rotation.Conjugate()
	local := inv.Rotate(c.Sub(box.Translation))

	var closest mgl64.Vec3
	inside := true
	for i := range 3 {
		closest[i] = math.Max(-he[i], math.Min(he[i], local[i]))
		if closest[i] != local[i] {
			inside = false
		}
	}

	if !inside {
		diff := local.Sub(closest)
		dist := diff.Len()
		if dist >= r {
			return point, normal, 0, false
		}
		return box.TransformPoint(closest), box.Rotation.Rotate(diff.Mul(1 / dist)), r - dist, true
	}

	// Centre inside the box: push out through the nearest face.
	axis, gap := 0, math.Inf(1)
	for i := range 3 {
		if g := he[i] - math.Abs(local[i]); g < gap {
			axis, gap = i, g
		}
	}
	sign := 1.0
	if local[axis] < 0 {
		sign = -1
	}
	var n mgl64.Vec3
	n[axis] = sign
	face := local
	face[axis] = sign * he[axis]

	return box.TransformPoint(face), box.Rotation.Rotate(n), r + gap, true
}

func sphereSphere(ca mgl64.Vec3, ra float64, cb mgl64.Vec3, rb float64) (point, normal mgl64.Vec3, depth float64, ok bool) {
	d := ca.Sub(cb)
	dist := d.Len()
	if dist >= ra+rb {
		return point, normal, 0, false
	}
	n := mathx.AxisZ
	if dist > 1e-12 {
		n = d.Mul(1 / dist)
	}
	return cb.Add(n.Mul(rb)), n, ra + rb - dist, true
}

func (s *solver) collide(a, b *collider) (Contact, bool) {
	pa, pb := a.pose(), b.pose()

	var (
		point, normal mgl64.Vec3
		depth         float64
		ok            bool
	)
	switch {
	case a.shape.Shape == ShapeBall && b.shape.Shape == ShapeCuboid:
		point, normal, depth, ok = sphereCuboid(pa.Translation, a.shape.Radius, pb, b.shape.HalfExtents)
	case a.shape.Shape == ShapeBall && b.shape.Shape == ShapeBall:
		point, normal, depth, ok = sphereSphere(pa.Translation, a.shape.Radius, pb.Translation, b.shape.Radius)
	}
	if !ok {
		return Contact{}, false
	}

	return Contact{A: a.id, B: b.id, Point: point, Normal: normal, Depth: depth}, true
}

// pointVelocity is the velocity of the material point of b at p.
func pointVelocity(b *body, p mgl64.Vec3) mgl64.Vec3 {
	if !b.dynamic() {
		return mgl64.Vec3{}
	}
	return b.lin.Add(b.ang.Cross(p.Sub(b.pose.Translation)))
}

// response is the velocity change along dir at p per unit impulse along dir.
func response(b *body, p, dir mgl64.Vec3) float64 {
	if !b.dynamic() {
		return 0
	}
	if b.hinge != nil {
		d := b.hinge.hingeResponse(p, dir)
		if b.hinge.blocked(d) {
			return 0
		}
		return d * b.hinge.pivotLever(p, dir)
	}
	r := p.Sub(b.pose.Translation)
	return b.mass.InvMass + r.Cross(b.angularResponse(r.Cross(dir))).Dot(dir)
}

func applyAt(b *body, p, impulse mgl64.Vec3) {
	if !b.dynamic() {
		return
	}
	if b.hinge != nil {
		if b.hinge.blocked(b.hinge.hingeResponse(p, impulse)) {
			return
		}
		b.wake()
		b.hinge.applyImpulseAt(p, impulse, mgl64.Vec3{})
		b.hinge.place()
		return
	}
	b.wake()
	b.lin = b.lin.Add(impulse.Mul(b.mass.InvMass))
	b.ang = b.ang.Add(b.angularResponse(p.Sub(b.pose.Translation).Cross(impulse)))
}

// free bodies can be moved to remove penetration.
func free(b *body) bool {
	return b.dynamic() && b.hinge == nil
}

func (s *solver) resolveContacts() {
	for i := 0; i < len(s.colliders); i++ {
		for k := i + 1; k < len(s.colliders); k++ {
			a, b := s.colliders[i], s.colliders[k]
			if a.body == b.body || (!a.body.dynamic() && !b.body.dynamic()) {
				continue
			}
			if a.shape.Shape != ShapeBall {
				a, b = b, a
			}
			if a.shape.Shape != ShapeBall {
				continue
			}

			c, ok := s.collide(a, b)
			if !ok {
				continue
			}
			s.contacts[keyOf(a.id, b.id)] = c
			s.resolve(a, b, c)
		}
	}
}

func (s *solver) resolve(a, b *collider, c Contact) {
	ba, bb := a.body, b.body
	n := c.Normal

	// Positional correction, shared between free bodies by inverse mass.
	wa, wb := 0.0, 0.0
	if free(ba) {
		wa = ba.mass.InvMass
	}
	if free(bb) {
		wb = bb.mass.InvMass
	}
	if sum := wa + wb; sum > 0 {
		ba.pose.Translation = ba.pose.Translation.Add(n.Mul(c.Depth * wa / sum))
		bb.pose.Translation = bb.pose.Translation.Sub(n.Mul(c.Depth * wb / sum))
	}

	rel := pointVelocity(ba, c.Point).Sub(pointVelocity(bb, c.Point))
	vn := rel.Dot(n)
	if vn >= 0 {
		return
	}

	k := response(ba, c.Point, n) + response(bb, c.Point, n.Mul(-1))
	if k <= 0 {
		return
	}

	e := math.Max(a.shape.Restitution, b.shape.Restitution)
	jn := -(1 + e) * vn / k
	applyAt(ba, c.Point, n.Mul(jn))
	applyAt(bb, c.Point, n.Mul(-jn))

	// Coulomb friction against the remaining tangential slip.
	rel = pointVelocity(ba, c.Point).Sub(pointVelocity(bb, c.Point))
	tangent := rel.Sub(n.Mul(rel.Dot(n)))
	slip := tangent.Len()
	if slip < 1e-9 {
		return
	}
	t := tangent.Mul(1 / slip)

	kt := response(ba, c.Point, t) + response(bb, c.Point, t.Mul(-1))
	if kt <= 0 {
		return
	}
	mu := math.Sqrt(a.shape.Friction * b.shape.Friction)
	jt := math.Min(slip/kt, mu*jn)
	applyAt(ba, c.Point, t.Mul(-jt))
	applyAt(bb, c.Point, t.Mul(jt))
}

func (s *solver) publishContacts() {
	cache, ok := ecs.GetSingleton[contactCache](s.world)
	if !ok {
		return
	}
	if cache.pairs == nil {
		cache.pairs = make(map[pairKey]struct{})
	}

	for key, c := range s.contacts {
		if _, seen := cache.pairs[key]; !seen {
			ecs.PushMessage(s.world, ContactStarted{A: c.A, B: c.B, Point: c.Point, Normal: c.Normal})
		}
	}
	for key := range cache.pairs {
		if _, still := s.contacts[key]; !still {
			ecs.PushMessage(s.world, ContactEnded{A: key.a, B: key.b})
		}
	}

	cache.pairs = make(map[pairKey]struct{}, len(s.contacts))
	for key := range s.contacts {
		cache.pairs[key] = struct{}{}
	}
}
