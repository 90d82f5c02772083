package world

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JeffM2501/EntityNetwork/descriptor"
	"github.com/JeffM2501/EntityNetwork/entity"
	"github.com/JeffM2501/EntityNetwork/property"
	"github.com/JeffM2501/EntityNetwork/wire"
)

func TestRegisterControllerPropertyAssignsDenseIDsAndCaches(t *testing.T) {
	w := New()
	id := w.RegisterControllerProperty("Name", descriptor.String, descriptor.BidirectionalSync, false)
	assert.Equal(t, 0, id)

	frames := w.ControllerPropertyDefs.Replay()
	assert.Len(t, frames, 1)

	r := wire.NewReader(frames[0])
	assert.Equal(t, wire.AddControllerPropertyDef, r.Command())
	assert.EqualValues(t, 0, r.ReadInt32())
	assert.Equal(t, "Name", r.ReadString())
}

func TestRegisterWorldPropertyCreatesCellAndCachesDef(t *testing.T) {
	w := New()
	id := w.RegisterWorldProperty("Width", descriptor.Int32)
	cell, ok := w.WorldCell(id)
	assert.True(t, ok)
	cell.SetInt32(800)
	assert.EqualValues(t, 800, cell.Int32())

	assert.Len(t, w.WorldDataDefs.Replay(), 1)
}

func TestRegisterEntityTypeBuildsPerPropertyDef(t *testing.T) {
	w := New()
	tank := descriptor.Entity{Name: "Tank", CreateScope: descriptor.ServerSync}
	tank.AddProperty(descriptor.Property{Name: "Pos", Type: descriptor.Vector3F, Scope: descriptor.ServerPushSync})

	id := w.RegisterEntityType(tank)
	got, ok := w.EntityType(id)
	assert.True(t, ok)
	assert.Equal(t, "Tank", got.Name)
	assert.Len(t, w.EntityDefs.Replay(), 1)
}

func TestPackWorldDataValuesEncodesByteIDs(t *testing.T) {
	w := New()
	w.RegisterWorldProperty("Width", descriptor.Int32)
	cell, _ := w.WorldCell(0)
	cell.SetInt32(42)

	b := PackWorldDataValues(w.WorldCells())
	r := wire.NewReader(b.Bytes())
	assert.Equal(t, wire.SetWorldDataValues, r.Command())
	assert.EqualValues(t, 0, r.ReadByte())
	buf := r.ReadBuffer()
	nested := wire.NewNestedReader(buf)
	assert.EqualValues(t, 42, nested.ReadInt32())
}

func TestNewInstanceUsesDefaultFactoryWhenNoneRegistered(t *testing.T) {
	w := New()
	tank := descriptor.Entity{Name: "Tank", CreateScope: descriptor.ServerSync}
	tank.AddProperty(descriptor.Property{Name: "Pos", Type: descriptor.Vector3F, Scope: descriptor.ServerPushSync})
	id := w.RegisterEntityType(tank)

	inst, ok := w.NewInstance(id, 7, 3, nil)
	assert.True(t, ok)
	assert.EqualValues(t, 7, inst.ID())
	assert.EqualValues(t, 3, inst.Owner())
}

func TestNewInstanceUsesRegisteredFactoryByName(t *testing.T) {
	w := New()
	tank := descriptor.Entity{Name: "Tank", CreateScope: descriptor.ServerSync}
	id := w.RegisterEntityType(tank)

	usedFactory := false
	w.RegisterEntityFactoryByName("Tank", func(desc descriptor.Entity, id, owner int64, onPropertyChanged func(*entity.Instance, *property.Cell)) *entity.Instance {
		usedFactory = true
		return entity.NewInstance(desc, id, owner, onPropertyChanged)
	})

	inst, ok := w.NewInstance(id, 1, 1, nil)
	assert.True(t, ok)
	assert.NotNil(t, inst)
	assert.True(t, usedFactory)
}

func TestRegisterRPCCachesAddRPCDefFrame(t *testing.T) {
	w := New()
	id, err := w.RegisterRPC("Spawn", descriptor.ClientToServer, []descriptor.Property{{Name: "X", Type: descriptor.Float32}})
	assert.NoError(t, err)

	frames := w.RPCDefs.Replay()
	assert.Len(t, frames, 1)

	r := wire.NewReader(frames[0])
	assert.Equal(t, wire.AddRPCDef, r.Command())
	assert.EqualValues(t, id, r.ReadInt32())
	assert.Equal(t, "Spawn", r.ReadString())
	assert.EqualValues(t, descriptor.ClientToServer, r.ReadByte())
	assert.EqualValues(t, descriptor.Float32, r.ReadByte())
}

func TestDefinitionCacheReplayPreservesOrder(t *testing.T) {
	var c DefinitionCache
	c.Append([]byte{1})
	c.Append([]byte{2})
	assert.Equal(t, [][]byte{{1}, {2}}, c.Replay())
}
