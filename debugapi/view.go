package debugapi

import (
	"fmt"

	"github.com/JeffM2501/EntityNetwork/descriptor"
	"github.com/JeffM2501/EntityNetwork/property"
)

// cellString renders a property cell's current value as a human-readable
// string for the JSON introspection views above; it never panics on a
// cell/descriptor type mismatch since this endpoint is read-only diagnostic
// output, not a protocol path.
func cellString(c *property.Cell) string {
	if c == nil {
		return ""
	}
	desc := c.Descriptor()
	switch desc.Type {
	case descriptor.Int32:
		return fmt.Sprintf("%d", c.Int32())
	case descriptor.Float32:
		return fmt.Sprintf("%g", c.Float32())
	case descriptor.Float64:
		return fmt.Sprintf("%g", c.Float64())
	case descriptor.String:
		return c.String()
	case descriptor.Buffer:
		return fmt.Sprintf("<%d bytes>", len(c.Buffer()))
	case descriptor.Vector3I, descriptor.Vector3F, descriptor.Vector3D:
		v := c.Vector3()
		return fmt.Sprintf("(%g, %g, %g)", v[0], v[1], v[2])
	case descriptor.Vector4I, descriptor.Vector4F, descriptor.Vector4D:
		v := c.Vector4()
		return fmt.Sprintf("(%g, %g, %g, %g)", v[0], v[1], v[2], v[3])
	case descriptor.StatePos:
		p := c.StatePos()
		return fmt.Sprintf("step=%d pos=(%g, %g, %g)", p.Step, p.Position[0], p.Position[1], p.Position[2])
	case descriptor.StatePosRot:
		p := c.StatePosRot()
		return fmt.Sprintf("step=%d pos=(%g, %g, %g) rot=(%g, %g, %g, %g)",
			p.Step, p.Position[0], p.Position[1], p.Position[2],
			p.Orientation[0], p.Orientation[1], p.Orientation[2], p.Orientation[3])
	default:
		return ""
	}
}
