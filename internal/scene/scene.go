// Package scene builds the one-way gate pinball table: a tilted floor, a
// hinged gate that only opens one way, a bumper and a ball.
package scene

import (
	"math"

	"github.com/QYUbit/revolute/pkg/ecs"
	"github.com/QYUbit/revolute/pkg/mathx"
	"github.com/QYUbit/revolute/pkg/physics"
	"github.com/QYUbit/revolute/pkg/render"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	Gravity = mgl64.Vec3{0, 0, -1}

	cameraEye    = mgl64.Vec3{0.1, -0.9, 0.3}
	cameraTarget = mgl64.Vec3{0.1, -0.35, 0}

	floorHalfExtents = mgl64.Vec3{0.4, 0.7, 0.01}
	floorOffset      = mgl64.Vec3{0, 0, -0.05}
	floorTilt        = 0.1

	gateAnchorPos   = mgl64.Vec3{0.1, -0.43, 0.09}
	gatePos         = mgl64.Vec3{0.1, -0.43, 0.05}
	gateHalfExtents = mgl64.Vec3{0.03, 0.003, 0.04}
	gateLimits      = [2]float64{0, math.Pi / 2}

	bumperPos         = mgl64.Vec3{0.14, -0.1, 0.01}
	bumperHalfExtents = mgl64.Vec3{0.03, 0.01, 0.02}

	ballPos     = mgl64.Vec3{0.13, -0.5, 0.01}
	ballRadius  = 0.015
	ballImpulse = mgl64.Vec3{0, 0.00003, 0}
)

// Handles are the entity ids Setup spawned.
type Handles struct {
	Camera        ecs.EntityID
	Floor         ecs.EntityID
	FloorCollider ecs.EntityID
	GateAnchor    ecs.EntityID
	Gate          ecs.EntityID
	GateJoint     ecs.EntityID
	Bumper        ecs.EntityID
	Ball          ecs.EntityID
}

// GateJoint is the hinge between the gate and its anchor. It swings from 0
// to pi/2 about +X and no further in either direction.
func GateJoint() physics.RevoluteJoint {
	return physics.NewRevoluteJointBuilder(mathx.AxisX).
		Limits(gateLimits).
		LocalAnchor1(mgl64.Vec3{0, 0, 0}).
		LocalAnchor2(mgl64.Vec3{-0.03, 0, 0.04}).
		Build()
}

// FloorTransform carries both the floor's offset and its tilt. The floor is
// described by two partial transforms, one translating and one rotating;
// they are merged rather than letting one replace the other.
func FloorTransform() mathx.Transform {
	return mathx.Merge(
		mathx.FromTranslation(floorOffset),
		mathx.FromRotation(mathx.RotationX(floorTilt)),
	)
}

func dynamicBody() []any {
	return []any{
		physics.RigidBody{Kind: physics.Dynamic},
		physics.SleepingDisabled(),
		physics.CcdEnabled(),
	}
}

// Setup queues the scene on ctx's command buffer and points gravity along -Z.
func Setup(ctx ecs.SystemContext) Handles {
	var h Handles
	cmd := ctx.Commands

	if cfg, ok := ecs.GetSingleton[physics.Config](ctx.World); ok {
		cfg.Gravity = Gravity
	}

	h.Camera = cmd.Spawn(render.Camera3DBundle(mathx.FromTranslation(cameraEye).LookingAt(cameraTarget, mathx.AxisZ))...)

	h.Floor = cmd.Spawn(physics.RigidBody{Kind: physics.Fixed}, FloorTransform())
	h.FloorCollider = cmd.SpawnChild(h.Floor, physics.Cuboid(floorHalfExtents[0], floorHalfExtents[1], floorHalfExtents[2]))

	h.GateAnchor = cmd.Spawn(physics.RigidBody{Kind: physics.Fixed}, mathx.FromTranslation(gateAnchorPos))

	joint := GateJoint()

	h.Gate = cmd.Spawn(append(dynamicBody(),
		physics.Cuboid(gateHalfExtents[0], gateHalfExtents[1], gateHalfExtents[2]),
		mathx.FromTranslation(gatePos),
	)...)
	h.GateJoint = cmd.SpawnChild(h.Gate, physics.NewImpulseJoint(h.GateAnchor, joint))

	h.Bumper = cmd.Spawn(
		physics.RigidBody{Kind: physics.Fixed},
		physics.Cuboid(bumperHalfExtents[0], bumperHalfExtents[1], bumperHalfExtents[2]),
		mathx.FromTranslation(bumperPos),
	)

	h.Ball = cmd.Spawn(append(dynamicBody(),
		physics.Ball(ballRadius),
		physics.ExternalImpulse{Impulse: ballImpulse},
		mathx.FromTranslation(ballPos),
	)...)

	cmd.PushChildren(h.Floor, h.Gate, h.GateAnchor, h.Bumper)

	return h
}

// Plugin runs Setup once at startup and stores the Handles as a resource.
// It needs the physics and render plugins.
func Plugin() ecs.Plugin {
	return func(e *ecs.Engine) {
		ecs.RegisterSingleton(e, Handles{})
		logger := e.Logger().With("system", "scene")

		e.RegisterSystemFunc(func(ctx ecs.SystemContext) {
			h := Setup(ctx)
			if out, ok := ecs.GetSingleton[Handles](ctx.World); ok {
				*out = h
			}
			logger.Info("scene queued", "floor", h.Floor, "gate", h.Gate, "ball", h.Ball)
		}, ecs.Trigger(ecs.OnStartup), ecs.Name("scene.setup"))
	}
}
