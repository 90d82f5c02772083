// Package property implements the typed data cell that backs every
// controller, entity, and world property value. A cell tracks its own dirty
// flag and revision counter and packs/unpacks itself against the wire
// codec.
package property

import (
	"math"
	"sync"

	"github.com/JeffM2501/EntityNetwork/descriptor"
	"github.com/JeffM2501/EntityNetwork/wire"
)

// Cell holds one property's current value alongside its dirty flag and
// monotonic revision counter. All access is under the cell's own lock —
// readers that need dirty and revision together must fetch both while
// holding it, which is why the exported accessors group them.
type Cell struct {
	mu       sync.Mutex
	desc     descriptor.Property
	dirty    bool
	revision byte

	i32  int32
	f32  float32
	f64  float64
	v3   [3]float64
	v4   [4]float64
	str  string
	buf  []byte
	pos  wire.StatePos
	posR wire.StatePosRot
}

// New creates a zero-valued cell for the given property descriptor.
func New(desc descriptor.Property) *Cell {
	return &Cell{desc: desc}
}

// Descriptor returns the property descriptor this cell was created from.
func (c *Cell) Descriptor() descriptor.Property {
	return c.desc
}

// Dirty reports whether the cell has been locally mutated since the last
// GetDirtyProperties-style clear.
func (c *Cell) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Revision returns the cell's current monotonic revision counter.
func (c *Cell) Revision() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revision
}

// DirtyAndRevision returns both fields atomically, since engine code that
// compares a cell against a peer's known-dataset entry needs a consistent
// snapshot of both.
func (c *Cell) DirtyAndRevision() (bool, byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty, c.revision
}

// ClearDirty clears the dirty flag without touching the revision counter.
// Used after a value has been published to the wire.
func (c *Cell) ClearDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = false
}

func (c *Cell) markDirtyLocked() {
	c.dirty = true
	c.revision++ // wraps modulo 256 by virtue of being a byte
}

// --- typed accessors -------------------------------------------------
//
// Every getter returns the zero value on a type mismatch; every setter is a
// silent no-op on a type mismatch. A mismatch indicates an application bug,
// not a protocol failure, so neither path reports an error.

func (c *Cell) Int32() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc.Type != descriptor.Int32 {
		return 0
	}
	return c.i32
}

func (c *Cell) SetInt32(v int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc.Type != descriptor.Int32 {
		return
	}
	c.i32 = v
	c.markDirtyLocked()
}

func (c *Cell) Float32() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc.Type != descriptor.Float32 {
		return 0
	}
	return c.f32
}

func (c *Cell) SetFloat32(v float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc.Type != descriptor.Float32 {
		return
	}
	c.f32 = v
	c.markDirtyLocked()
}

func (c *Cell) Float64() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc.Type != descriptor.Float64 {
		return 0
	}
	return c.f64
}

func (c *Cell) SetFloat64(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc.Type != descriptor.Float64 {
		return
	}
	c.f64 = v
	c.markDirtyLocked()
}

func (c *Cell) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc.Type != descriptor.String {
		return ""
	}
	return c.str
}

func (c *Cell) SetString(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc.Type != descriptor.String {
		return
	}
	c.str = v
	c.markDirtyLocked()
}

func (c *Cell) Buffer() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc.Type != descriptor.Buffer {
		return nil
	}
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	return out
}

func (c *Cell) SetBuffer(v []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc.Type != descriptor.Buffer {
		return
	}
	c.buf = append([]byte(nil), v...)
	c.markDirtyLocked()
}

func (c *Cell) StatePos() wire.StatePos {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc.Type != descriptor.StatePos {
		return wire.StatePos{}
	}
	return c.pos
}

func (c *Cell) SetStatePos(v wire.StatePos) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc.Type != descriptor.StatePos {
		return
	}
	c.pos = v
	c.markDirtyLocked()
}

func (c *Cell) StatePosRot() wire.StatePosRot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc.Type != descriptor.StatePosRot {
		return wire.StatePosRot{}
	}
	return c.posR
}

func (c *Cell) SetStatePosRot(v wire.StatePosRot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc.Type != descriptor.StatePosRot {
		return
	}
	c.posR = v
	c.markDirtyLocked()
}

// Vector3 and Vector4 cover the i/f32/f64 vector variants; components are
// stored widened to float64 and narrowed on pack.

func (c *Cell) Vector3() [3]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.desc.Type {
	case descriptor.Vector3I, descriptor.Vector3F, descriptor.Vector3D:
		return c.v3
	default:
		return [3]float64{}
	}
}

func (c *Cell) SetVector3(v [3]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.desc.Type {
	case descriptor.Vector3I, descriptor.Vector3F, descriptor.Vector3D:
		c.v3 = v
		c.markDirtyLocked()
	}
}

func (c *Cell) Vector4() [4]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.desc.Type {
	case descriptor.Vector4I, descriptor.Vector4F, descriptor.Vector4D:
		return c.v4
	default:
		return [4]float64{}
	}
}

func (c *Cell) SetVector4(v [4]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.desc.Type {
	case descriptor.Vector4I, descriptor.Vector4F, descriptor.Vector4D:
		c.v4 = v
		c.markDirtyLocked()
	}
}

// --- wire transfer -----------------------------------------------------

// Pack appends this cell's current value to b as a length-prefixed opaque
// buffer whose payload is the raw encoding for the declared type. Every
// value crosses the wire in this framing, so a receiver can skip a value it
// chooses not to accept without knowing its type.
func (c *Cell) Pack(b *wire.Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.desc.Type {
	case descriptor.String:
		b.WriteBuffer([]byte(c.str))
		return
	case descriptor.Buffer:
		b.WriteBuffer(c.buf)
		return
	}
	nested := wire.NewNestedBuilder()
	switch c.desc.Type {
	case descriptor.Int32:
		nested.WriteInt32(c.i32)
	case descriptor.Float32:
		nested.WriteFloat32(c.f32)
	case descriptor.Float64:
		nested.WriteFloat64(c.f64)
	case descriptor.Vector3I:
		nested.WriteInt32(int32(c.v3[0]))
		nested.WriteInt32(int32(c.v3[1]))
		nested.WriteInt32(int32(c.v3[2]))
	case descriptor.Vector3F:
		nested.WriteFloat32(float32(c.v3[0]))
		nested.WriteFloat32(float32(c.v3[1]))
		nested.WriteFloat32(float32(c.v3[2]))
	case descriptor.Vector3D:
		nested.WriteFloat64(c.v3[0])
		nested.WriteFloat64(c.v3[1])
		nested.WriteFloat64(c.v3[2])
	case descriptor.Vector4I:
		for _, f := range c.v4 {
			nested.WriteInt32(int32(f))
		}
	case descriptor.Vector4F:
		for _, f := range c.v4 {
			nested.WriteFloat32(float32(f))
		}
	case descriptor.Vector4D:
		for _, f := range c.v4 {
			nested.WriteFloat64(f)
		}
	case descriptor.StatePos:
		nested.WriteStatePos(c.pos)
	case descriptor.StatePosRot:
		nested.WriteStatePosRot(c.posR)
	}
	b.WriteBuffer(nested.Bytes())
}

// Unpack reads this property's length-prefixed value buffer out of r. If
// save is false the cursor advances past the buffer (length + 2) and
// nothing else happens; if true the payload replaces the stored value and
// the dirty flag is set. A malformed buffer ends the reader and leaves the
// cell untouched.
func (c *Cell) Unpack(r *wire.Reader, save bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !save {
		r.Advance(r.PeekBufferLength() + 2)
		return
	}
	payload := r.ReadBuffer()
	if payload == nil {
		return
	}
	switch c.desc.Type {
	case descriptor.String:
		c.str = string(payload)
	case descriptor.Buffer:
		c.buf = payload
	default:
		nr := wire.NewNestedReader(payload)
		switch c.desc.Type {
		case descriptor.Int32:
			c.i32 = nr.ReadInt32()
		case descriptor.Float32:
			c.f32 = nr.ReadFloat32()
		case descriptor.Float64:
			c.f64 = nr.ReadFloat64()
		case descriptor.Vector3I:
			x, y, z := nr.ReadInt32(), nr.ReadInt32(), nr.ReadInt32()
			c.v3 = [3]float64{float64(x), float64(y), float64(z)}
		case descriptor.Vector3F:
			x, y, z := nr.ReadFloat32(), nr.ReadFloat32(), nr.ReadFloat32()
			c.v3 = [3]float64{float64(x), float64(y), float64(z)}
		case descriptor.Vector3D:
			c.v3 = [3]float64{nr.ReadFloat64(), nr.ReadFloat64(), nr.ReadFloat64()}
		case descriptor.Vector4I:
			for i := range c.v4 {
				c.v4[i] = float64(nr.ReadInt32())
			}
		case descriptor.Vector4F:
			for i := range c.v4 {
				c.v4[i] = float64(nr.ReadFloat32())
			}
		case descriptor.Vector4D:
			for i := range c.v4 {
				c.v4[i] = nr.ReadFloat64()
			}
		case descriptor.StatePos:
			c.pos = nr.ReadStatePos()
		case descriptor.StatePosRot:
			c.posR = nr.ReadStatePosRot()
		}
	}
	c.dirty = true
}

// RevisionDistance returns the forward distance (modulo 256) from `from` to
// the cell's current revision, i.e. how many wraps-inclusive increments
// separate them. Exists for tests asserting wrap behavior; engine code
// only needs equality comparison against a known-dataset entry.
func (c *Cell) RevisionDistance(from byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (int(c.revision) - int(from) + math.MaxUint8 + 1) % (math.MaxUint8 + 1)
}
