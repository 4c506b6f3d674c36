package physics

import (
	"github.com/QYUbit/revolute/pkg/ecs"
	"github.com/QYUbit/revolute/pkg/mathx"
)

// Plugin registers the physics components and resources and the Step system.
func Plugin(cfg Config) ecs.Plugin {
	return func(e *ecs.Engine) {
		ecs.RegisterComponent[mathx.Transform](e)
		ecs.RegisterComponent[GlobalTransform](e)
		ecs.RegisterComponent[RigidBody](e)
		ecs.RegisterComponent[Collider](e)
		ecs.RegisterComponent[Sleeping](e)
		ecs.RegisterComponent[Ccd](e)
		ecs.RegisterComponent[ExternalImpulse](e)
		ecs.RegisterComponent[Velocity](e)
		ecs.RegisterComponent[MassProperties](e)
		ecs.RegisterComponent[ImpulseJoint](e)

		ecs.RegisterSingleton(e, cfg)
		ecs.RegisterSingleton(e, contactCache{})

		ecs.RegisterMessage[ContactStarted](e)
		ecs.RegisterMessage[ContactEnded](e)

		e.RegisterSystemFunc(Step,
			ecs.Name("physics.step"),
			ecs.Reads(RigidBody{}, Collider{}, Ccd{}),
			ecs.Writes(mathx.Transform{}, GlobalTransform{}, Velocity{}, ExternalImpulse{}, MassProperties{}, Sleeping{}, ImpulseJoint{}),
		)

		e.Logger().Debug("physics plugin registered", "gravity", cfg.Gravity, "timestep", cfg.Timestep)
	}
}
