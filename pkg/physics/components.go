package physics

import (
	"fmt"
	"math"

	"github.com/QYUbit/revolute/pkg/mathx"
	"github.com/go-gl/mathgl/mgl64"
)

type BodyKind uint8

const (
	// Dynamic bodies have finite mass and react to gravity, impulses and contacts.
	Dynamic BodyKind = iota
	// Fixed bodies have infinite mass and never move.
	Fixed
	// KinematicPositionBased bodies are moved only by writing their Transform.
	KinematicPositionBased
)

func (k BodyKind) String() string {
	switch k {
	case Dynamic:
		return "dynamic"
	case Fixed:
		return "fixed"
	case KinematicPositionBased:
		return "kinematic"
	}
	return fmt.Sprintf("BodyKind(%d)", uint8(k))
}

type RigidBody struct {
	Kind BodyKind
}

type ShapeKind uint8

const (
	ShapeCuboid ShapeKind = iota
	ShapeBall
)

func (s ShapeKind) String() string {
	switch s {
	case ShapeCuboid:
		return "cuboid"
	case ShapeBall:
		return "ball"
	}
	return fmt.Sprintf("ShapeKind(%d)", uint8(s))
}

// Collider attaches a shape to the rigid body of its own entity or, failing
// that, of its nearest ancestor.
type Collider struct {
	Shape       ShapeKind
	HalfExtents mgl64.Vec3 // cuboid
	Radius      float64    // ball
	Density     float64
	Restitution float64
	Friction    float64
}

func Cuboid(hx, hy, hz float64) Collider {
	return Collider{
		Shape:       ShapeCuboid,
		HalfExtents: mgl64.Vec3{hx, hy, hz},
		Density:     1,
		Friction:    0.5,
	}
}

func Ball(radius float64) Collider {
	return Collider{
		Shape:    ShapeBall,
		Radius:   radius,
		Density:  1,
		Friction: 0.5,
	}
}

func (c Collider) Volume() float64 {
	switch c.Shape {
	case ShapeBall:
		return 4.0 / 3.0 * math.Pi * c.Radius * c.Radius * c.Radius
	default:
		return 8 * c.HalfExtents[0] * c.HalfExtents[1] * c.HalfExtents[2]
	}
}

// PrincipalInertia is the diagonal of the inertia tensor about the centre of
// mass, in the collider's local frame.
func (c Collider) PrincipalInertia(mass float64) mgl64.Vec3 {
	switch c.Shape {
	case ShapeBall:
		i := 2.0 / 5.0 * mass * c.Radius * c.Radius
		return mgl64.Vec3{i, i, i}
	default:
		x, y, z := c.HalfExtents[0], c.HalfExtents[1], c.HalfExtents[2]
		return mgl64.Vec3{
			mass / 3 * (y*y + z*z),
			mass / 3 * (x*x + z*z),
			mass / 3 * (x*x + y*y),
		}
	}
}

// MinExtent is the smallest distance from the shape centre to its surface.
func (c Collider) MinExtent() float64 {
	if c.Shape == ShapeBall {
		return c.Radius
	}
	return math.Min(c.HalfExtents[0], math.Min(c.HalfExtents[1], c.HalfExtents[2]))
}

// Sleeping controls whether a dynamic body may be put to rest.
type Sleeping struct {
	Disabled         bool
	LinearThreshold  float64
	AngularThreshold float64
	Asleep           bool
	idle             float64
}

func SleepingDisabled() Sleeping {
	return Sleeping{Disabled: true}
}

func DefaultSleeping() Sleeping {
	return Sleeping{LinearThreshold: 0.4, AngularThreshold: 0.5}
}

// Ccd enables continuous collision detection for fast, small bodies.
type Ccd struct {
	Enabled bool
}

func CcdEnabled() Ccd {
	return Ccd{Enabled: true}
}

// ExternalImpulse is applied once at the next step and then cleared.
type ExternalImpulse struct {
	Impulse       mgl64.Vec3
	TorqueImpulse mgl64.Vec3
}

func (i ExternalImpulse) IsZero() bool {
	return i.Impulse == (mgl64.Vec3{}) && i.TorqueImpulse == (mgl64.Vec3{})
}

type Velocity struct {
	Linear  mgl64.Vec3
	Angular mgl64.Vec3
}

// MassProperties is computed from the body's colliders on its first step.
type MassProperties struct {
	Mass       float64
	InvMass    float64
	Inertia    mgl64.Vec3
	InvInertia mgl64.Vec3
}

// GlobalTransform is the world-space transform of an entity, derived from its
// Transform and those of its ancestors.
type GlobalTransform struct {
	mathx.Transform
}

// Config is the physics resource.
type Config struct {
	Gravity mgl64.Vec3
	// Timestep is the fixed step length in seconds. Zero steps by frame time.
	Timestep float64
	// Substeps is the minimum number of solver iterations per step.
	Substeps int
	// MaxCcdSubsteps bounds the extra substeps CCD bodies may request.
	MaxCcdSubsteps int
	// SleepTime is how long a body must stay below its thresholds before it sleeps.
	SleepTime float64

	PhysicsPipelineActive bool
}

func DefaultConfig() Config {
	return Config{
		Gravity:               mgl64.Vec3{0, -9.81, 0},
		Timestep:              1.0 / 60.0,
		Substeps:              1,
		MaxCcdSubsteps:        32,
		SleepTime:             2,
		PhysicsPipelineActive: true,
	}
}
