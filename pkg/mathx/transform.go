// Package mathx holds the rigid transform type shared by the scene, physics
// and render packages.
package mathx

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	AxisX = mgl64.Vec3{1, 0, 0}
	AxisY = mgl64.Vec3{0, 1, 0}
	AxisZ = mgl64.Vec3{0, 0, 1}
	One   = mgl64.Vec3{1, 1, 1}
)

// Transform is translation, rotation and scale, applied scale first.
// The zero value is not usable; start from Identity or one of the From
// constructors.
type Transform struct {
	Translation mgl64.Vec3
	Rotation    mgl64.Quat
	Scale       mgl64.Vec3
}

func Identity() Transform {
	return Transform{Rotation: mgl64.QuatIdent(), Scale: One}
}

func FromXYZ(x, y, z float64) Transform {
	return FromTranslation(mgl64.Vec3{x, y, z})
}

func FromTranslation(v mgl64.Vec3) Transform {
	t := Identity()
	t.Translation = v
	return t
}

func FromRotation(q mgl64.Quat) Transform {
	t := Identity()
	t.Rotation = q
	return t
}

// RotationX is a right-handed rotation of angle radians about +X.
func RotationX(angle float64) mgl64.Quat {
	return mgl64.QuatRotate(angle, AxisX)
}

// Normalize replaces a zero rotation with identity, a zero scale with one and
// renormalizes the rotation.
func (t Transform) Normalize() Transform {
	if t.Rotation.W == 0 && t.Rotation.V == (mgl64.Vec3{}) {
		t.Rotation = mgl64.QuatIdent()
	} else {
		t.Rotation = t.Rotation.Normalize()
	}
	if t.Scale == (mgl64.Vec3{}) {
		t.Scale = One
	}
	return t
}

// Merge overlays the non-default fields of over onto base. Two partial
// transforms, one carrying only a translation and one only a rotation,
// merge into a single transform with both.
func Merge(base, over Transform) Transform {
	base = base.Normalize()
	over = over.Normalize()

	if over.Translation != (mgl64.Vec3{}) {
		base.Translation = over.Translation
	}
	if !over.Rotation.ApproxEqualThreshold(mgl64.QuatIdent(), 1e-12) {
		base.Rotation = over.Rotation
	}
	if over.Scale != One {
		base.Scale = over.Scale
	}
	return base
}

// LookingAt keeps the translation and rotates t so that its local -Z axis
// points at target and its local +Y axis lies in the plane of up.
func (t Transform) LookingAt(target, up mgl64.Vec3) Transform {
	t = t.Normalize()

	back := t.Translation.Sub(target)
	if back.LenSqr() == 0 {
		return t
	}
	back = back.Normalize()

	right := up.Cross(back)
	if right.LenSqr() == 0 {
		return t
	}
	right = right.Normalize()
	newUp := back.Cross(right)

	t.Rotation = mgl64.Mat4ToQuat(mgl64.Mat3FromCols(right, newUp, back).Mat4()).Normalize()
	return t
}

// Forward is the world direction of the local -Z axis.
func (t Transform) Forward() mgl64.Vec3 {
	return t.Normalize().Rotation.Rotate(mgl64.Vec3{0, 0, -1})
}

// Mul composes t (parent) with child, yielding child's transform in t's space.
func (t Transform) Mul(child Transform) Transform {
	t = t.Normalize()
	child = child.Normalize()

	return Transform{
		Translation: t.TransformPoint(child.Translation),
		Rotation:    t.Rotation.Mul(child.Rotation).Normalize(),
		Scale:       mulElem(t.Scale, child.Scale),
	}
}

func (t Transform) TransformPoint(p mgl64.Vec3) mgl64.Vec3 {
	t = t.Normalize()
	return t.Translation.Add(t.Rotation.Rotate(mulElem(p, t.Scale)))
}

func (t Transform) TransformVector(v mgl64.Vec3) mgl64.Vec3 {
	return t.Normalize().Rotation.Rotate(v)
}

// Inverse is exact for uniform scale.
func (t Transform) Inverse() Transform {
	t = t.Normalize()

	invRot := t.Rotation.Conjugate()
	invScale := mgl64.Vec3{1 / t.Scale[0], 1 / t.Scale[1], 1 / t.Scale[2]}

	return Transform{
		Translation: mulElem(invRot.Rotate(t.Translation.Mul(-1)), invScale),
		Rotation:    invRot,
		Scale:       invScale,
	}
}

func (t Transform) InverseTransformPoint(p mgl64.Vec3) mgl64.Vec3 {
	return t.Inverse().TransformPoint(p)
}

func (t Transform) ApproxEqual(o Transform, eps float64) bool {
	t, o = t.Normalize(), o.Normalize()

	sameRot := t.Rotation.ApproxEqualThreshold(o.Rotation, eps) ||
		t.Rotation.Scale(-1).ApproxEqualThreshold(o.Rotation, eps)

	return t.Translation.ApproxEqualThreshold(o.Translation, eps) &&
		sameRot &&
		t.Scale.ApproxEqualThreshold(o.Scale, eps)
}

func (t Transform) String() string {
	return fmt.Sprintf("{t=(%.3f, %.3f, %.3f) r=(%.3f, %.3f, %.3f, %.3f)}",
		t.Translation[0], t.Translation[1], t.Translation[2],
		t.Rotation.W, t.Rotation.V[0], t.Rotation.V[1], t.Rotation.V[2])
}

func mulElem(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

// AxisAngle is a rotation of angle radians about the unit vector axis.
func AxisAngle(axis mgl64.Vec3, angle float64) mgl64.Quat {
	return mgl64.QuatRotate(angle, axis.Normalize())
}
