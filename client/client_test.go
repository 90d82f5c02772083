package client

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JeffM2501/EntityNetwork/descriptor"
	"github.com/JeffM2501/EntityNetwork/entity"
	"github.com/JeffM2501/EntityNetwork/server"
	"github.com/JeffM2501/EntityNetwork/wire"
	"github.com/JeffM2501/EntityNetwork/world"
)

func setupWorlds() (*server.Engine, *Engine) {
	sw := world.New()
	sw.RegisterControllerProperty("Name", descriptor.String, descriptor.BidirectionalSync, false)
	sw.RegisterWorldProperty("Width", descriptor.Int32)
	cell, _ := sw.WorldCell(0)
	cell.SetInt32(800)
	cell.ClearDirty()

	tank := descriptor.Entity{Name: "Tank", CreateScope: descriptor.ServerSync}
	tank.AddProperty(descriptor.Property{Name: "Pos", Type: descriptor.Vector3F, Scope: descriptor.ServerPushSync})
	sw.RegisterEntityType(tank)

	car := descriptor.Entity{Name: "Car", CreateScope: descriptor.ClientSync}
	car.AddProperty(descriptor.Property{Name: "Pos", Type: descriptor.Vector3F, Scope: descriptor.ServerPushSync})
	sw.RegisterEntityType(car)

	se := server.New(sw, "entnet/1")

	cw := world.New()
	ce := New(cw)
	return se, ce
}

func pump(se *server.Engine, ce *Engine, peer int64) {
	for {
		frame, ok := se.PopOutbound(peer)
		if !ok {
			break
		}
		ce.Dispatch(frame)
	}
}

func TestClientReachesActiveSyncingAfterAdmission(t *testing.T) {
	se, ce := setupWorlds()
	peer := se.AddPeer(-1)
	pump(se, ce, peer)

	assert.Equal(t, ActiveSyncing, ce.State())
	self, ok := ce.Self()
	assert.True(t, ok)
	assert.EqualValues(t, peer, self.ID())
}

func TestClientResynthesizesWorldTables(t *testing.T) {
	se, ce := setupWorlds()
	peer := se.AddPeer(-1)
	pump(se, ce, peer)

	assert.Len(t, ce.World.ControllerPropertyTable(), 1)
	assert.Len(t, ce.World.WorldCells(), 1)
	cell, ok := ce.World.WorldCell(0)
	assert.True(t, ok)
	assert.EqualValues(t, 800, cell.Int32())
}

func TestClientSelfPropertyPushFlowsToServer(t *testing.T) {
	se, ce := setupWorlds()
	peer := se.AddPeer(-1)
	pump(se, ce, peer)

	self, _ := ce.Self()
	nameCell, _ := self.CellByName("Name")
	nameCell.SetString("Alice")

	ce.Update()
	frame, ok := ce.PopOutbound()
	assert.True(t, ok)
	r := wire.NewReader(frame)
	assert.Equal(t, wire.SetControllerPropertyDataValues, r.Command())

	se.Dispatch(peer, frame)
	ctrl, _ := se.Peer(peer)
	cell, _ := ctrl.CellByName("Name")
	assert.Equal(t, "Alice", cell.String())
}

func TestClientAcceptsServerPushedEntity(t *testing.T) {
	se, ce := setupWorlds()
	peer := se.AddPeer(-1)
	pump(se, ce, peer)

	_, err := se.CreateInstance(0, peer, func(i *entity.Instance) {
		i.Cell(0).SetVector3([3]float64{1, 2, 3})
	})
	assert.NoError(t, err)
	se.Update()
	pump(se, ce, peer)

	assert.Equal(t, 1, ce.World.Entities.Len())
}

func TestClientAuthoredEntityAcceptedFlow(t *testing.T) {
	se, ce := setupWorlds()
	peer := se.AddPeer(-1)
	pump(se, ce, peer)

	inst, err := ce.CreateLocalEntity(1, func(i *entity.Instance) {
		i.Cell(0).SetVector3([3]float64{0, 0, 0})
	})
	assert.NoError(t, err)
	assert.EqualValues(t, -1, inst.ID())

	ce.Update()
	frame, ok := ce.PopOutbound()
	assert.True(t, ok)
	se.Dispatch(peer, frame)

	pump(se, ce, peer)

	_, stillLocal := ce.World.Entities.Get(-1)
	assert.False(t, stillLocal)
	assert.Equal(t, 1, ce.World.Entities.Len())
}

func TestClientAuthoredEntityRejectedFlow(t *testing.T) {
	se, ce := setupWorlds()
	peer := se.AddPeer(-1)
	pump(se, ce, peer)

	var removed bool
	ce.Events.Subscribe(EntityRemoved, func() { removed = true })

	_, err := ce.CreateLocalEntity(0, func(i *entity.Instance) { // Tank is ServerSync, not client-authorable
		i.Cell(0).SetVector3([3]float64{0, 0, 0})
	})
	assert.Error(t, err)
	_ = removed
}

func TestClientEntityDeltaArrivesAfterServerMutation(t *testing.T) {
	se, ce := setupWorlds()
	peer := se.AddPeer(-1)
	pump(se, ce, peer)

	inst, _ := se.CreateInstance(0, peer, func(i *entity.Instance) {
		i.Cell(0).SetVector3([3]float64{1, 2, 3})
	})
	se.Update()
	pump(se, ce, peer)

	inst.Cell(0).SetVector3([3]float64{1, 2, 4})
	se.Update()
	pump(se, ce, peer)

	cinst, ok := ce.World.Entities.Get(inst.ID())
	assert.True(t, ok)
	assert.Equal(t, [3]float64{1, 2, 4}, cinst.Cell(0).Vector3())
}
