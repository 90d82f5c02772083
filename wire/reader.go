package wire

import (
	"encoding/binary"
	"math"
)

// Reader walks a frame's bytes in wire order. A malformed read — one that
// would consume bytes past the end of the frame — returns the zero value for
// the requested type and calls End() on the reader, so the caller's parsing
// loop terminates instead of looping on a read that can never succeed.
type Reader struct {
	data    []byte
	offset  int
	command Command
	hasCode bool
}

// NewReader wraps a top-level frame. The first byte is consumed as the
// command code, unless the frame is empty, in which case the command is NoOp.
func NewReader(data []byte) *Reader {
	r := &Reader{data: data, hasCode: true}
	if len(data) > 0 {
		r.command = Command(data[0])
		r.offset = 1
	} else {
		r.command = NoOp
		r.offset = 0
	}
	return r
}

// NewNestedReader wraps a payload with no command byte, such as the content
// of an opaque-buffer property.
func NewNestedReader(data []byte) *Reader {
	return &Reader{data: data, command: NoCode, hasCode: false}
}

// Command returns the frame's command code.
func (r *Reader) Command() Command { return r.command }

// Done reports whether the read cursor has reached or passed the end of the
// frame.
func (r *Reader) Done() bool {
	return r.offset >= len(r.data)
}

// End seeks the cursor to the end of the frame, used as a defensive abort
// when a malformed or unrecognized frame is detected mid-parse.
func (r *Reader) End() {
	r.offset = len(r.data)
}

// Advance moves the cursor forward by n bytes, clamped to the frame length.
func (r *Reader) Advance(n int) {
	r.offset += n
	if r.offset > len(r.data) {
		r.offset = len(r.data)
	}
}

// read returns a slice of exactly size bytes at the cursor and advances past
// it, or nil (with the reader ended) if that would read past the frame.
func (r *Reader) read(size int) []byte {
	if r.offset+size > len(r.data) {
		r.End()
		return nil
	}
	p := r.data[r.offset : r.offset+size]
	r.offset += size
	return p
}

func (r *Reader) ReadInt32() int32 {
	p := r.read(4)
	if p == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(p))
}

func (r *Reader) ReadByte() byte {
	p := r.read(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (r *Reader) ReadBool() bool {
	p := r.read(1)
	if p == nil {
		return false
	}
	return p[0] != 0
}

func (r *Reader) ReadID() int64 {
	p := r.read(8)
	if p == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(p))
}

func (r *Reader) ReadFloat32() float32 {
	p := r.read(4)
	if p == nil {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(p))
}

func (r *Reader) ReadFloat64() float64 {
	p := r.read(8)
	if p == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(p))
}

// PeekBufferLength reads the 2-byte length prefix at the cursor without
// advancing past the payload it describes. Returns 0 if the prefix itself
// cannot be read.
func (r *Reader) PeekBufferLength() int {
	if r.offset+2 > len(r.data) {
		return 0
	}
	return int(binary.LittleEndian.Uint16(r.data[r.offset : r.offset+2]))
}

func (r *Reader) ReadString() string {
	return string(r.ReadBuffer())
}

func (r *Reader) ReadBuffer() []byte {
	lp := r.read(2)
	if lp == nil {
		return nil
	}
	length := int(binary.LittleEndian.Uint16(lp))
	p := r.read(length)
	if p == nil {
		return nil
	}
	out := make([]byte, length)
	copy(out, p)
	return out
}

func (r *Reader) ReadStatePos() StatePos {
	p := r.read(SizeStatePos)
	if p == nil {
		return StatePos{}
	}
	var s StatePos
	s.Step = binary.LittleEndian.Uint64(p[0:8])
	for i := 0; i < 3; i++ {
		s.Position[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[8+i*4 : 12+i*4]))
	}
	return s
}

func (r *Reader) ReadStatePosRot() StatePosRot {
	p := r.read(SizeStatePosRot)
	if p == nil {
		return StatePosRot{}
	}
	var s StatePosRot
	s.Step = binary.LittleEndian.Uint64(p[0:8])
	for i := 0; i < 3; i++ {
		s.Position[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[8+i*4 : 12+i*4]))
	}
	for i := 0; i < 4; i++ {
		s.Orientation[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[20+i*4 : 24+i*4]))
	}
	return s
}
