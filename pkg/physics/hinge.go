package physics

import (
	"math"

	"github.com/QYUbit/revolute/pkg/mathx"
	"github.com/go-gl/mathgl/mgl64"
)

// A hinged body's pose is fully determined by the joint angle, so the solver
// integrates that angle instead of the body's free motion.

func (j *joint) init() {
	st := &j.comp.State
	if st.Initialized {
		return
	}
	st.Rest = j.b1.pose.Rotation.Conjugate().Mul(j.b2.pose.Rotation).Normalize()
	st.Angle = j.comp.Data.ClampAngle(0)
	st.Rate = 0
	st.Initialized = true
	j.place()
}

func (j *joint) axis() mgl64.Vec3 {
	return j.b1.pose.Rotation.Rotate(j.comp.Data.Axis).Normalize()
}

func (j *joint) pivot() mgl64.Vec3 {
	return j.b1.pose.TransformPoint(j.comp.Data.LocalAnchor1)
}

// place moves the second body so that both anchors coincide at the current
// joint angle, and derives its velocities from the hinge rate.
func (j *joint) place() {
	st := &j.comp.State
	b := j.b2

	rot := j.b1.pose.Rotation.Mul(mathx.AxisAngle(j.comp.Data.Axis, st.Angle)).Mul(st.Rest).Normalize()
	b.pose.Rotation = rot

	p := j.pivot()
	b.pose.Translation = p.Sub(rot.Rotate(j.comp.Data.LocalAnchor2))

	a := j.axis()
	omega1 := j.b1.ang
	b.ang = omega1.Add(a.Mul(st.Rate))
	b.lin = j.b1.lin.Add(omega1.Cross(p.Sub(j.b1.pose.Translation))).Add(b.ang.Cross(b.pose.Translation.Sub(p)))
}

// inertia is the moment of inertia of the second body about the hinge line.
func (j *joint) inertia() float64 {
	b := j.b2
	a := j.axis()

	local := b.pose.Rotation.Conjugate().Rotate(a)
	iAxis := b.mass.Inertia[0]*local[0]*local[0] +
		b.mass.Inertia[1]*local[1]*local[1] +
		b.mass.Inertia[2]*local[2]*local[2]

	r := b.pose.Translation.Sub(j.pivot())
	perp := r.Sub(a.Mul(a.Dot(r)))

	return iAxis + b.mass.Mass*perp.LenSqr()
}

// hingeResponse is the change in hinge rate caused by a unit impulse along
// dir applied at point.
func (j *joint) hingeResponse(point, dir mgl64.Vec3) float64 {
	i := j.inertia()
	if i <= 0 {
		return 0
	}
	return point.Sub(j.pivot()).Cross(dir).Dot(j.axis()) / i
}

// pivotLever is the velocity along dir at point per unit of hinge rate.
func (j *joint) pivotLever(point, dir mgl64.Vec3) float64 {
	return j.axis().Cross(point.Sub(j.pivot())).Dot(dir)
}

// blocked reports whether a rate change of sign delta would push the hinge
// further past a limit it already rests on.
func (j *joint) blocked(delta float64) bool {
	angle := j.comp.State.Angle
	return (delta < 0 && j.comp.Data.AtLowerLimit(angle)) ||
		(delta > 0 && j.comp.Data.AtUpperLimit(angle))
}

func (j *joint) applyImpulseAt(point, impulse, torque mgl64.Vec3) {
	i := j.inertia()
	if i <= 0 {
		return
	}
	t := point.Sub(j.pivot()).Cross(impulse).Add(torque)
	j.comp.State.Rate += t.Dot(j.axis()) / i
}

func (j *joint) applyGravity(g mgl64.Vec3, h float64) {
	i := j.inertia()
	if i <= 0 {
		return
	}
	b := j.b2
	r := b.pose.Translation.Sub(j.pivot())
	torque := r.Cross(g.Mul(b.mass.Mass))
	j.comp.State.Rate += torque.Dot(j.axis()) / i * h
}

// step integrates the hinge angle and enforces the limits. Hitting a limit
// stops the hinge instead of letting it pass.
func (j *joint) step(h float64) {
	st := &j.comp.State
	data := j.comp.Data

	st.Angle = data.ClampAngle(st.Angle)

	next := st.Angle + st.Rate*h
	clamped := data.ClampAngle(next)
	if clamped != next {
		st.Rate = 0
	}
	st.Angle = clamped

	if math.IsNaN(st.Angle) {
		st.Angle, st.Rate = data.ClampAngle(0), 0
	}

	j.place()
}
