package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrInvalidUvarint reports a varint that overflows 64 bits.
var ErrInvalidUvarint = errors.New("codec: invalid uvarint encoding")

// Buffer is a growable little-endian byte buffer with a read cursor.
type Buffer struct {
	buf []byte
	pos int
}

func NewBuffer() *Buffer {
	return &Buffer{buf: make([]byte, 0, 256)}
}

func NewBufferFrom(data []byte) *Buffer {
	return &Buffer{buf: data}
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer[pos=%d len=%d cap=%d]", b.pos, len(b.buf), cap(b.buf))
}

func (b *Buffer) Bytes() []byte {
	return b.buf
}

func (b *Buffer) Len() int {
	return len(b.buf)
}

func (b *Buffer) Remaining() int {
	return len(b.buf) - b.pos
}

func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.pos = 0
}

func (b *Buffer) WriteByte(v byte) error {
	b.buf = append(b.buf, v)
	return nil
}

func (b *Buffer) WriteBool(v bool) {
	if v {
		b.buf = append(b.buf, 1)
		return
	}
	b.buf = append(b.buf, 0)
}

func (b *Buffer) WriteUvarint(x uint64) {
	b.buf = binary.AppendUvarint(b.buf, x)
}

func (b *Buffer) WriteFloat64(f float64) {
	b.buf = binary.LittleEndian.AppendUint64(b.buf, math.Float64bits(f))
}

func (b *Buffer) WriteFloat64s(fs ...float64) {
	for _, f := range fs {
		b.WriteFloat64(f)
	}
}

func (b *Buffer) ReadByte() (byte, error) {
	if b.pos >= len(b.buf) {
		return 0, io.EOF
	}
	v := b.buf[b.pos]
	b.pos++
	return v, nil
}

func (b *Buffer) ReadBool() (bool, error) {
	v, err := b.ReadByte()
	return v != 0, err
}

func (b *Buffer) ReadUvarint() (uint64, error) {
	if b.pos >= len(b.buf) {
		return 0, io.EOF
	}
	val, n := binary.Uvarint(b.buf[b.pos:])
	if n == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	if n < 0 {
		return 0, ErrInvalidUvarint
	}
	b.pos += n
	return val, nil
}

func (b *Buffer) ReadFloat64() (float64, error) {
	remaining := len(b.buf) - b.pos
	if remaining == 0 {
		return 0, io.EOF
	}
	if remaining < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	val := binary.LittleEndian.Uint64(b.buf[b.pos:])
	b.pos += 8
	return math.Float64frombits(val), nil
}

// ReadFloat64s fills dst in order.
func (b *Buffer) ReadFloat64s(dst ...*float64) error {
	for _, d := range dst {
		v, err := b.ReadFloat64()
		if err != nil {
			return err
		}
		*d = v
	}
	return nil
}
