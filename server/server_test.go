package server

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JeffM2501/EntityNetwork/descriptor"
	"github.com/JeffM2501/EntityNetwork/entity"
	"github.com/JeffM2501/EntityNetwork/wire"
	"github.com/JeffM2501/EntityNetwork/world"
)

func setupBasicWorld() *world.World {
	w := world.New()
	w.RegisterControllerProperty("Name", descriptor.String, descriptor.BidirectionalSync, false)
	w.RegisterWorldProperty("Width", descriptor.Int32)
	cell, _ := w.WorldCell(0)
	cell.SetInt32(800)
	cell.ClearDirty()

	tank := descriptor.Entity{Name: "Tank", CreateScope: descriptor.ServerSync}
	tank.AddProperty(descriptor.Property{Name: "Pos", Type: descriptor.Vector3F, Scope: descriptor.ServerPushSync})
	w.RegisterEntityType(tank)

	w.RegisterRPC("Spawn", descriptor.ClientToServer, nil)
	return w
}

func drainAll(e *Engine, peer int64) []*wire.Reader {
	var out []*wire.Reader
	for {
		frame, ok := e.PopOutbound(peer)
		if !ok {
			break
		}
		out = append(out, wire.NewReader(frame))
	}
	return out
}

func TestAdmissionOrder(t *testing.T) {
	w := setupBasicWorld()
	e := New(w, "entnet/1")

	id := e.AddPeer(-1)
	assert.EqualValues(t, 0, id)

	frames := drainAll(e, id)
	var commands []wire.Command
	for _, r := range frames {
		commands = append(commands, r.Command())
	}

	assert.Equal(t, []wire.Command{
		wire.HailCheck,
		wire.AddRPCDef,
		wire.AddWorldDataDef,
		wire.SetWorldDataValues,
		wire.InitialWorldDataComplete,
		wire.AddEntityDef,
		wire.AddControllerPropertyDef,
		wire.AcceptController,
		wire.AddController,
	}, commands)
}

func TestSecondPeerGetsFirstPeersControllerValues(t *testing.T) {
	w := setupBasicWorld()
	e := New(w, "entnet/1")

	first := e.AddPeer(-1)
	ctrl, _ := e.Peer(first)
	cell, _ := ctrl.CellByName("Name")
	cell.SetString("Alice")
	cell.ClearDirty() // simulate it having already been broadcast once

	second := e.AddPeer(-1)
	frames := drainAll(e, second)

	var sawSetControllerValues bool
	for _, r := range frames {
		if r.Command() == wire.SetControllerPropertyDataValues {
			sawSetControllerValues = true
		}
	}
	assert.True(t, sawSetControllerValues)
}

func TestEntityDeltaOnlyWhenChanged(t *testing.T) {
	w := setupBasicWorld()
	e := New(w, "entnet/1")
	peer := e.AddPeer(-1)
	drainAll(e, peer) // discard admission frames

	inst, err := e.CreateInstance(0, peer, func(i *entity.Instance) {
		i.Cell(0).SetVector3([3]float64{1, 2, 3})
	})
	assert.NoError(t, err)

	e.Update()
	frames := drainAll(e, peer)
	assert.Len(t, frames, 1)
	assert.Equal(t, wire.AddEntity, frames[0].Command())

	// No further mutation: the next update cycle must not enqueue anything.
	e.Update()
	assert.Empty(t, drainAll(e, peer))

	// Mutate and expect exactly one delta frame.
	inst.Cell(0).SetVector3([3]float64{1, 2, 4})
	e.Update()
	frames = drainAll(e, peer)
	assert.Len(t, frames, 1)
	assert.Equal(t, wire.SetEntityDataValues, frames[0].Command())
}

func TestPrivateControllerPropertyNeverBroadcast(t *testing.T) {
	w := world.New()
	w.RegisterControllerProperty("Secret", descriptor.Int32, descriptor.BidirectionalSync, true)
	e := New(w, "entnet/1")

	peerA := e.AddPeer(-1)
	drainAll(e, peerA)
	peerB := e.AddPeer(-1)
	drainAll(e, peerB)
	drainAll(e, peerA) // admitting peerB broadcast AddController(peerB) to peerA

	ctrlA, _ := e.Peer(peerA)
	ctrlA.Cell(0).SetInt32(42)

	e.Update()
	assert.Empty(t, drainAll(e, peerA))
	assert.Empty(t, drainAll(e, peerB))
}

func TestClientAuthoredEntityRejectedWhenAllowClientCreateFalse(t *testing.T) {
	w := setupBasicWorld() // Tank has CreateScope ServerSync: AllowClientCreate() is false
	e := New(w, "entnet/1")
	peer := e.AddPeer(-1)
	drainAll(e, peer)

	b := wire.NewBuilder(wire.AddEntity)
	b.WriteInt32(0) // typeId
	b.WriteID(-1)   // localId
	// one property, Pos
	nested := wire.NewNestedBuilder()
	nested.WriteFloat32(1)
	nested.WriteFloat32(2)
	nested.WriteFloat32(3)
	b.WriteByte(0)
	b.WriteBuffer(nested.Bytes())

	e.Dispatch(peer, b.Bytes())

	frames := drainAll(e, peer)
	assert.Len(t, frames, 1)
	r := frames[0]
	assert.Equal(t, wire.AcceptClientEntity, r.Command())
	assert.EqualValues(t, -1, r.ReadID())
	assert.EqualValues(t, -1, r.ReadID())
}

func TestRuntimeRegistrationBroadcastsToAdmittedPeers(t *testing.T) {
	w := setupBasicWorld()
	e := New(w, "entnet/1")
	peer := e.AddPeer(-1)
	drainAll(e, peer) // discard admission frames

	e.RegisterWorldProperty("Height", descriptor.Int32)
	e.RegisterControllerProperty("Guild", descriptor.String, descriptor.BidirectionalSync, false)

	frames := drainAll(e, peer)
	var commands []wire.Command
	for _, r := range frames {
		commands = append(commands, r.Command())
	}
	assert.Equal(t, []wire.Command{wire.AddWorldDataDef, wire.AddControllerPropertyDef}, commands)

	// The existing peer's controller picks up a cell for the new property.
	ctrl, _ := e.Peer(peer)
	_, ok := ctrl.CellByName("Guild")
	assert.True(t, ok)
}

func TestRemovePeerBroadcastsRemoveController(t *testing.T) {
	w := setupBasicWorld()
	e := New(w, "entnet/1")
	a := e.AddPeer(-1)
	drainAll(e, a)
	b := e.AddPeer(-1)
	drainAll(e, b)

	e.RemovePeer(a)
	frames := drainAll(e, b)
	assert.Len(t, frames, 1)
	assert.Equal(t, wire.RemoveController, frames[0].Command())
}
