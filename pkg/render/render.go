// Package render is a headless rendering host. It owns the window and
// camera resources and turns the physics world into debug frames.
package render

import (
	"math"

	"github.com/QYUbit/revolute/pkg/ecs"
	"github.com/QYUbit/revolute/pkg/mathx"
)

type WindowDescriptor struct {
	Title  string
	Width  int
	Height int
}

func DefaultWindow() WindowDescriptor {
	return WindowDescriptor{Title: "RevoluteJointTest", Width: 360, Height: 640}
}

// ClearColor is the RGBA background, each channel in [0, 1].
type ClearColor struct {
	R, G, B, A float64
}

var Black = ClearColor{A: 1}

type Msaa struct {
	Samples int
}

// Camera3D marks an entity whose Transform is a perspective viewpoint.
type Camera3D struct {
	FovY float64
	Near float64
	Far  float64
}

func DefaultCamera3D() Camera3D {
	return Camera3D{FovY: math.Pi / 4, Near: 0.01, Far: 100}
}

// Camera3DBundle is the component set of a camera entity.
func Camera3DBundle(t mathx.Transform) []any {
	return []any{DefaultCamera3D(), t}
}

type Settings struct {
	Window     WindowDescriptor
	ClearColor ClearColor
	Msaa       Msaa
}

func DefaultSettings() Settings {
	return Settings{
		Window:     DefaultWindow(),
		ClearColor: Black,
		Msaa:       Msaa{Samples: 4},
	}
}

// Plugin registers the window resources and the camera component.
func Plugin(s Settings) ecs.Plugin {
	return func(e *ecs.Engine) {
		ecs.RegisterComponent[mathx.Transform](e)
		ecs.RegisterComponent[Camera3D](e)

		ecs.RegisterSingleton(e, s.Window)
		ecs.RegisterSingleton(e, s.ClearColor)
		ecs.RegisterSingleton(e, s.Msaa)

		e.Logger().Info("window configured",
			"title", s.Window.Title,
			"width", s.Window.Width,
			"height", s.Window.Height,
			"msaa", s.Msaa.Samples,
		)
	}
}
