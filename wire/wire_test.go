package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrimitivesRoundTrip(t *testing.T) {
	b := NewBuilder(CallRPC)
	b.WriteInt32(-42)
	b.WriteByte(7)
	b.WriteBool(true)
	b.WriteID(-9000000000)
	b.WriteString("hello")
	b.WriteBuffer([]byte{1, 2, 3, 4})
	b.WriteStatePos(StatePos{Step: 5, Position: [3]float32{1, 2, 3}})
	b.WriteStatePosRot(StatePosRot{Step: 6, Position: [3]float32{1, 2, 3}, Orientation: [4]float32{0, 0, 0, 1}})

	r := NewReader(b.Bytes())
	assert.Equal(t, CallRPC, r.Command())
	assert.Equal(t, int32(-42), r.ReadInt32())
	assert.Equal(t, byte(7), r.ReadByte())
	assert.Equal(t, true, r.ReadBool())
	assert.Equal(t, int64(-9000000000), r.ReadID())
	assert.Equal(t, "hello", r.ReadString())
	assert.Equal(t, []byte{1, 2, 3, 4}, r.ReadBuffer())
	assert.Equal(t, StatePos{Step: 5, Position: [3]float32{1, 2, 3}}, r.ReadStatePos())
	assert.Equal(t, StatePosRot{Step: 6, Position: [3]float32{1, 2, 3}, Orientation: [4]float32{0, 0, 0, 1}}, r.ReadStatePosRot())
	assert.True(t, r.Done())
}

func TestNestedBuilderHasNoCommandByte(t *testing.T) {
	b := NewNestedBuilder()
	b.WriteInt32(123)
	assert.Len(t, b.Bytes(), 4)

	r := NewNestedReader(b.Bytes())
	assert.Equal(t, NoCode, r.Command())
	assert.Equal(t, int32(123), r.ReadInt32())
}

func TestMalformedFrameEndsReaderAndReturnsZeroValue(t *testing.T) {
	b := NewBuilder(SetWorldDataValues)
	b.WriteInt32(1) // declare an int32, but frame is truncated below

	truncated := b.Bytes()[:len(b.Bytes())-2] // chop off 2 of the 4 int bytes
	r := NewReader(truncated)
	v := r.ReadInt32()
	assert.Equal(t, int32(0), v)
	assert.True(t, r.Done())
}

func TestPeekBufferLengthDoesNotAdvance(t *testing.T) {
	b := NewNestedBuilder()
	b.WriteBuffer([]byte{9, 9, 9})
	r := NewNestedReader(b.Bytes())
	assert.Equal(t, 3, r.PeekBufferLength())
	assert.Equal(t, 3, r.PeekBufferLength())
	assert.Equal(t, []byte{9, 9, 9}, r.ReadBuffer())
}

func TestEmptyFrameHasNoOpCommand(t *testing.T) {
	r := NewReader(nil)
	assert.Equal(t, NoOp, r.Command())
	assert.True(t, r.Done())
}

func TestBuilderEmpty(t *testing.T) {
	b := NewBuilder(NoOp)
	assert.True(t, b.Empty())
	b.WriteByte(1)
	assert.False(t, b.Empty())

	nb := NewNestedBuilder()
	assert.True(t, nb.Empty())
}
