// Package codec is the binary wire format of debug frames.
package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/QYUbit/revolute/pkg/mathx"
	"github.com/QYUbit/revolute/pkg/physics"
	"github.com/QYUbit/revolute/pkg/render"
)

const Version byte = 1

// smallest encoded body: id, shape, kind, asleep, radius, transform
const minBodySize = 1 + 1 + 1 + 1 + 8 + 10*8

var ErrTruncated = errors.New("codec: frame truncated")

type ErrUnknownShape struct {
	Shape physics.ShapeKind
}

func (e ErrUnknownShape) Error() string {
	return fmt.Sprintf("codec: unknown shape %d", uint8(e.Shape))
}

// ErrTrailingData reports bytes left over after the last body.
type ErrTrailingData struct {
	N int
}

func (e ErrTrailingData) Error() string {
	return fmt.Sprintf("codec: %d trailing bytes after frame", e.N)
}

type ErrUnsupportedVersion struct {
	Version byte
}

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("codec: unsupported version %d", e.Version)
}

func EncodeFrame(f render.Frame) ([]byte, error) {
	b := NewBuffer()
	if err := AppendFrame(b, f); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// AppendFrame writes f to the end of b.
func AppendFrame(b *Buffer, f render.Frame) error {
	b.WriteByte(Version)
	b.WriteUvarint(f.Number)
	writeTransform(b, f.Camera)
	b.WriteFloat64s(f.ClearColor.R, f.ClearColor.G, f.ClearColor.B, f.ClearColor.A)

	b.WriteUvarint(uint64(len(f.Bodies)))
	for _, body := range f.Bodies {
		b.WriteUvarint(body.Entity)
		b.WriteByte(byte(body.Shape))
		b.WriteByte(byte(body.Kind))
		b.WriteBool(body.Asleep)

		switch body.Shape {
		case physics.ShapeCuboid:
			b.WriteFloat64s(body.HalfExtents[0], body.HalfExtents[1], body.HalfExtents[2])
		case physics.ShapeBall:
			b.WriteFloat64(body.Radius)
		default:
			return ErrUnknownShape{body.Shape}
		}

		writeTransform(b, body.Transform)
	}
	return nil
}

// DecodeFrame decodes exactly one frame. Short input is reported as
// ErrTruncated and leftover bytes as ErrTrailingData.
func DecodeFrame(data []byte) (render.Frame, error) {
	b := NewBufferFrom(data)
	f, err := decodeFrame(b)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return render.Frame{}, fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	if err != nil {
		return render.Frame{}, err
	}
	if n := b.Remaining(); n != 0 {
		return render.Frame{}, ErrTrailingData{n}
	}
	return f, nil
}

func decodeFrame(b *Buffer) (render.Frame, error) {
	var f render.Frame

	v, err := b.ReadByte()
	if err != nil {
		return f, err
	}
	if v != Version {
		return f, ErrUnsupportedVersion{v}
	}

	if f.Number, err = b.ReadUvarint(); err != nil {
		return f, err
	}
	if f.Camera, err = readTransform(b); err != nil {
		return f, err
	}
	c := &f.ClearColor
	if err := b.ReadFloat64s(&c.R, &c.G, &c.B, &c.A); err != nil {
		return f, err
	}

	n, err := b.ReadUvarint()
	if err != nil {
		return f, err
	}
	if n > uint64(b.Remaining()/minBodySize) {
		return f, fmt.Errorf("%w: %d bodies announced, %d bytes left", ErrTruncated, n, b.Remaining())
	}

	f.Bodies = make([]render.BodyView, 0, n)
	for range n {
		body, err := readBody(b)
		if err != nil {
			return f, err
		}
		f.Bodies = append(f.Bodies, body)
	}
	return f, nil
}

func readBody(b *Buffer) (render.BodyView, error) {
	var body render.BodyView
	var err error

	if body.Entity, err = b.ReadUvarint(); err != nil {
		return body, err
	}
	shape, err := b.ReadByte()
	if err != nil {
		return body, err
	}
	body.Shape = physics.ShapeKind(shape)

	kind, err := b.ReadByte()
	if err != nil {
		return body, err
	}
	body.Kind = physics.BodyKind(kind)

	if body.Asleep, err = b.ReadBool(); err != nil {
		return body, err
	}

	switch body.Shape {
	case physics.ShapeCuboid:
		he := &body.HalfExtents
		err = b.ReadFloat64s(&he[0], &he[1], &he[2])
	case physics.ShapeBall:
		body.Radius, err = b.ReadFloat64()
	default:
		return body, ErrUnknownShape{body.Shape}
	}
	if err != nil {
		return body, err
	}

	body.Transform, err = readTransform(b)
	return body, err
}

func writeTransform(b *Buffer, t mathx.Transform) {
	t = t.Normalize()
	b.WriteFloat64s(t.Translation[0], t.Translation[1], t.Translation[2])
	b.WriteFloat64s(t.Rotation.W, t.Rotation.V[0], t.Rotation.V[1], t.Rotation.V[2])
	b.WriteFloat64s(t.Scale[0], t.Scale[1], t.Scale[2])
}

func readTransform(b *Buffer) (mathx.Transform, error) {
	var t mathx.Transform
	err := b.ReadFloat64s(
		&t.Translation[0], &t.Translation[1], &t.Translation[2],
		&t.Rotation.W, &t.Rotation.V[0], &t.Rotation.V[1], &t.Rotation.V[2],
		&t.Scale[0], &t.Scale[1], &t.Scale[2],
	)
	return t, err
}
