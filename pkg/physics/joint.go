package physics

import (
	"fmt"
	"math"

	"github.com/QYUbit/revolute/pkg/ecs"
	"github.com/go-gl/mathgl/mgl64"
)

// RevoluteJoint allows rotation about a single axis, expressed in the first
// body's local frame, optionally restricted to [Limits[0], Limits[1]].
type RevoluteJoint struct {
	Axis         mgl64.Vec3
	LocalAnchor1 mgl64.Vec3
	LocalAnchor2 mgl64.Vec3
	Limits       [2]float64
	Limited      bool
}

// ClampAngle enforces the angular limits on angle.
func (j RevoluteJoint) ClampAngle(angle float64) float64 {
	if !j.Limited {
		return angle
	}
	return math.Max(j.Limits[0], math.Min(j.Limits[1], angle))
}

func (j RevoluteJoint) AtLowerLimit(angle float64) bool {
	return j.Limited && angle <= j.Limits[0]+1e-9
}

func (j RevoluteJoint) AtUpperLimit(angle float64) bool {
	return j.Limited && angle >= j.Limits[1]-1e-9
}

type RevoluteJointBuilder struct {
	joint RevoluteJoint
}

func NewRevoluteJointBuilder(axis mgl64.Vec3) *RevoluteJointBuilder {
	if axis.LenSqr() == 0 {
		panic("physics: revolute joint axis must be non-zero")
	}
	return &RevoluteJointBuilder{joint: RevoluteJoint{Axis: axis.Normalize()}}
}

// Limits panics when limits[0] > limits[1].
func (b *RevoluteJointBuilder) Limits(limits [2]float64) *RevoluteJointBuilder {
	if limits[0] > limits[1] {
		panic(fmt.Sprintf("physics: invalid joint limits [%g, %g]", limits[0], limits[1]))
	}
	b.joint.Limits = limits
	b.joint.Limited = true
	return b
}

func (b *RevoluteJointBuilder) LocalAnchor1(v mgl64.Vec3) *RevoluteJointBuilder {
	b.joint.LocalAnchor1 = v
	return b
}

func (b *RevoluteJointBuilder) LocalAnchor2(v mgl64.Vec3) *RevoluteJointBuilder {
	b.joint.LocalAnchor2 = v
	return b
}

func (b *RevoluteJointBuilder) Build() RevoluteJoint {
	return b.joint
}

// ImpulseJoint links Parent's rigid body to the rigid body owning the
// entity that holds this component (the entity itself or its nearest
// ancestor with a RigidBody).
type ImpulseJoint struct {
	Parent ecs.EntityID
	Data   RevoluteJoint
	State  JointState
}

func NewImpulseJoint(parent ecs.EntityID, data RevoluteJoint) ImpulseJoint {
	return ImpulseJoint{Parent: parent, Data: data}
}

// JointState is owned by the solver.
type JointState struct {
	Initialized bool
	Angle       float64
	Rate        float64
	// Rest is the second body's rotation relative to the first at angle zero.
	Rest mgl64.Quat
}
