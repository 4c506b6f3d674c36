package render

import (
	"sync"

	"github.com/QYUbit/revolute/pkg/mathx"
	"github.com/QYUbit/revolute/pkg/physics"
	"github.com/go-gl/mathgl/mgl64"
)

// Frame is a snapshot of what the debug renderer would draw for one tick.
type Frame struct {
	Number     uint64
	Camera     mathx.Transform
	ClearColor ClearColor
	Bodies     []BodyView
}

// BodyView is one collider in world space together with its owning body.
type BodyView struct {
	Entity      uint64
	Shape       physics.ShapeKind
	HalfExtents mgl64.Vec3
	Radius      float64
	Kind        physics.BodyKind
	Asleep      bool
	Transform   mathx.Transform
}

// A Sink receives every frame built by the debug renderer. Publish is called
// from the engine's tick and must not block for long.
type Sink interface {
	Publish(f Frame)
}

type SinkFunc func(f Frame)

func (fn SinkFunc) Publish(f Frame) { fn(f) }

// Recorder keeps the most recent frames in a fixed-size ring.
type Recorder struct {
	mu     sync.RWMutex
	frames []Frame
	next   int
	full   bool
}

func NewRecorder(capacity int) *Recorder {
	if capacity < 1 {
		capacity = 1
	}
	return &Recorder{frames: make([]Frame, capacity)}
}

func (r *Recorder) Publish(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frames[r.next] = f
	r.next = (r.next + 1) % len(r.frames)
	if r.next == 0 {
		r.full = true
	}
}

// Frames returns the recorded frames, oldest first.
func (r *Recorder) Frames() []Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		return append([]Frame(nil), r.frames[:r.next]...)
	}
	out := make([]Frame, 0, len(r.frames))
	out = append(out, r.frames[r.next:]...)
	return append(out, r.frames[:r.next]...)
}

func (r *Recorder) Latest() (Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full && r.next == 0 {
		return Frame{}, false
	}
	i := (r.next - 1 + len(r.frames)) % len(r.frames)
	return r.frames[i], true
}

func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.full {
		return len(r.frames)
	}
	return r.next
}
