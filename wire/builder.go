package wire

import (
	"encoding/binary"
	"math"
)

// Builder accumulates a frame's bytes in wire order. All multi-byte
// primitives are little-endian. A Builder created with NewBuilder carries a
// command byte as its first byte; one created with NewNestedBuilder does not
// (used for the content of an opaque-buffer property, which embeds its own
// sub-frame with no command of its own).
type Builder struct {
	buf     []byte
	command Command
	hasCode bool
}

// NewBuilder starts a top-level frame tagged with the given command.
func NewBuilder(cmd Command) *Builder {
	b := &Builder{command: cmd, hasCode: true}
	b.buf = make([]byte, 0, 128)
	b.buf = append(b.buf, byte(cmd))
	return b
}

// NewNestedBuilder starts a frame with no command byte.
func NewNestedBuilder() *Builder {
	return &Builder{command: NoCode, hasCode: false, buf: make([]byte, 0, 32)}
}

// Command returns the command this builder was created with.
func (b *Builder) Command() Command { return b.command }

// Empty reports whether any payload has been written beyond the command byte.
func (b *Builder) Empty() bool {
	if b.hasCode {
		return len(b.buf) <= 1
	}
	return len(b.buf) == 0
}

// Bytes returns the packed frame. The returned slice must not be mutated.
func (b *Builder) Bytes() []byte { return b.buf }

func (b *Builder) WriteInt32(v int32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	b.buf = append(b.buf, tmp[:]...)
}

func (b *Builder) WriteByte(v byte) {
	b.buf = append(b.buf, v)
}

func (b *Builder) WriteBool(v bool) {
	if v {
		b.buf = append(b.buf, 1)
	} else {
		b.buf = append(b.buf, 0)
	}
}

func (b *Builder) WriteID(v int64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	b.buf = append(b.buf, tmp[:]...)
}

func (b *Builder) WriteFloat32(v float32) {
	b.WriteInt32(int32(math.Float32bits(v)))
}

func (b *Builder) WriteFloat64(v float64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
	b.buf = append(b.buf, tmp[:]...)
}

func (b *Builder) WriteString(s string) {
	b.writeLengthPrefixed([]byte(s))
}

func (b *Builder) WriteBuffer(data []byte) {
	b.writeLengthPrefixed(data)
}

func (b *Builder) writeLengthPrefixed(data []byte) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(len(data)))
	b.buf = append(b.buf, tmp[:]...)
	b.buf = append(b.buf, data...)
}

func (b *Builder) WriteStatePos(s StatePos) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], s.Step)
	b.buf = append(b.buf, tmp[:]...)
	for _, f := range s.Position {
		b.WriteFloat32(f)
	}
}

func (b *Builder) WriteStatePosRot(s StatePosRot) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], s.Step)
	b.buf = append(b.buf, tmp[:]...)
	for _, f := range s.Position {
		b.WriteFloat32(f)
	}
	for _, f := range s.Orientation {
		b.WriteFloat32(f)
	}
}
