package property

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JeffM2501/EntityNetwork/descriptor"
	"github.com/JeffM2501/EntityNetwork/wire"
)

func TestSetterMarksDirtyAndIncrementsRevision(t *testing.T) {
	c := New(descriptor.Property{Name: "Score", Type: descriptor.Int32})
	assert.False(t, c.Dirty())
	assert.EqualValues(t, 0, c.Revision())

	c.SetInt32(42)

	assert.True(t, c.Dirty())
	assert.EqualValues(t, 1, c.Revision())
	assert.EqualValues(t, 42, c.Int32())
}

func TestTypeMismatchGetIsSilentZero(t *testing.T) {
	c := New(descriptor.Property{Name: "Score", Type: descriptor.Int32})
	assert.Equal(t, float32(0), c.Float32())
}

func TestTypeMismatchSetIsSilentNoop(t *testing.T) {
	c := New(descriptor.Property{Name: "Score", Type: descriptor.Int32})
	c.SetFloat32(1.5)
	assert.False(t, c.Dirty())
	assert.EqualValues(t, 0, c.Int32())
}

func TestPackUnpackRoundTripWithSave(t *testing.T) {
	src := New(descriptor.Property{Name: "Pos", Type: descriptor.StatePosRot})
	src.SetStatePosRot(wire.StatePosRot{Step: 7, Position: [3]float32{1, 2, 3}, Orientation: [4]float32{0, 0, 0, 1}})

	b := wire.NewNestedBuilder()
	src.Pack(b)

	dst := New(descriptor.Property{Name: "Pos", Type: descriptor.StatePosRot})
	r := wire.NewNestedReader(b.Bytes())
	dst.Unpack(r, true)

	assert.True(t, dst.Dirty())
	assert.Equal(t, src.StatePosRot(), dst.StatePosRot())
}

func TestUnpackWithoutSaveConsumesButDiscards(t *testing.T) {
	src := New(descriptor.Property{Name: "Name", Type: descriptor.String})
	src.SetString("Alice")

	b := wire.NewNestedBuilder()
	src.Pack(b)
	b.WriteInt32(99) // sentinel to prove the reader advanced correctly

	dst := New(descriptor.Property{Name: "Name", Type: descriptor.String})
	r := wire.NewNestedReader(b.Bytes())
	dst.Unpack(r, false)

	assert.False(t, dst.Dirty())
	assert.Equal(t, "", dst.String())
	assert.EqualValues(t, 99, r.ReadInt32())
}

func TestRevisionWrapsModulo256(t *testing.T) {
	c := New(descriptor.Property{Name: "N", Type: descriptor.Int32})
	for i := 0; i < 256; i++ {
		c.SetInt32(int32(i))
	}
	assert.EqualValues(t, 0, c.Revision())
}

func TestClearDirtyLeavesRevisionAlone(t *testing.T) {
	c := New(descriptor.Property{Name: "N", Type: descriptor.Int32})
	c.SetInt32(1)
	c.ClearDirty()
	assert.False(t, c.Dirty())
	assert.EqualValues(t, 1, c.Revision())
}
