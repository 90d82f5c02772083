package property

import (
	"github.com/JeffM2501/EntityNetwork/descriptor"
	"github.com/JeffM2501/EntityNetwork/wire"
)

// UnpackArgs reads one cell per descriptor off r, in order, and returns
// each cell's value as an any. It is shared by the server and client RPC
// dispatch paths so an RPC handler sees the same argument shape regardless
// of which side received the call.
func UnpackArgs(r *wire.Reader, args []descriptor.Property) []any {
	values := make([]any, len(args))
	for i, arg := range args {
		cell := New(arg)
		cell.Unpack(r, true)
		values[i] = Value(cell, arg)
	}
	return values
}

// Value extracts a cell's current value as an any, switching on the
// property's declared wire type.
func Value(c *Cell, desc descriptor.Property) any {
	switch desc.Type {
	case descriptor.Int32:
		return c.Int32()
	case descriptor.Float32:
		return c.Float32()
	case descriptor.Float64:
		return c.Float64()
	case descriptor.String:
		return c.String()
	case descriptor.Buffer:
		return c.Buffer()
	case descriptor.StatePos:
		return c.StatePos()
	case descriptor.StatePosRot:
		return c.StatePosRot()
	case descriptor.Vector3I, descriptor.Vector3F, descriptor.Vector3D:
		return c.Vector3()
	default:
		return c.Vector4()
	}
}
