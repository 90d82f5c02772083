// Package server implements the server side of the replication engine:
// peer admission, the per-tick update cycle (world, controller, and entity
// replication), inbound frame dispatch, and server-authored entity
// create/remove. Entity deltas are computed per peer from a known-dataset
// of revision bytes; a delta frame is only enqueued when at least one
// property qualified for transmission.
package server

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/JeffM2501/EntityNetwork/controller"
	"github.com/JeffM2501/EntityNetwork/descriptor"
	"github.com/JeffM2501/EntityNetwork/ecode"
	"github.com/JeffM2501/EntityNetwork/entity"
	"github.com/JeffM2501/EntityNetwork/event"
	"github.com/JeffM2501/EntityNetwork/lockedmap"
	"github.com/JeffM2501/EntityNetwork/logger"
	"github.com/JeffM2501/EntityNetwork/metrics"
	"github.com/JeffM2501/EntityNetwork/property"
	"github.com/JeffM2501/EntityNetwork/telemetry"
	"github.com/JeffM2501/EntityNetwork/wire"
	"github.com/JeffM2501/EntityNetwork/world"
)

// Kind identifies a server-level entity lifecycle event.
type Kind int

const (
	EntityAdded Kind = iota
	EntityRemoved
	EntityAccepted
	EntityUpdated
)

// ControllerFactory builds the controller installed for a newly admitted
// peer. isSelf is always false on the server; the type is shared with the
// client package so application code can register one factory for both.
type ControllerFactory func(id int64, isSelf bool) *controller.Controller

func defaultControllerFactory(id int64, isSelf bool) *controller.Controller {
	return controller.New(id, isSelf)
}

type peerState struct {
	controller *controller.Controller
	known      *lockedmap.Map[int64, *entity.KnownDataset]
	outbound   *lockedmap.Slice[[]byte]
}

// Engine is the server-side replication engine: one World plus one
// peerState per connected controller.
type Engine struct {
	World          *world.World
	ProtocolHeader string
	Factory        ControllerFactory

	// Events fires entity lifecycle notifications (EntityAdded, EntityRemoved,
	// EntityAccepted, EntityUpdated).
	Events *event.Bus[Kind, func(int64, *entity.Instance)]
	// ControllerEvents fires controller lifecycle notifications.
	ControllerEvents *event.Bus[controller.Kind, func(*controller.Controller)]

	admissionMu sync.Mutex
	peers       *lockedmap.Map[int64, *peerState]
}

// New creates a server engine over w.
func New(w *world.World, protocolHeader string) *Engine {
	return &Engine{
		World:            w,
		ProtocolHeader:   protocolHeader,
		Factory:          defaultControllerFactory,
		Events:           event.NewBus[Kind, func(int64, *entity.Instance)](),
		ControllerEvents: event.NewBus[controller.Kind, func(*controller.Controller)](),
		peers:            lockedmap.New[int64, *peerState](),
	}
}

func (e *Engine) enqueue(peerID int64, frame []byte) {
	if ps, ok := e.peers.Get(peerID); ok {
		e.push(peerID, ps, frame)
	}
}

func (e *Engine) push(peerID int64, ps *peerState, frame []byte) {
	ps.outbound.PushBack(frame)
	if len(frame) > 0 {
		metrics.FrameEncoded(wire.Command(frame[0]).String())
	}
	metrics.SetOutboundQueueDepth(peerID, ps.outbound.Len())
}

func (e *Engine) broadcast(frame []byte) {
	for _, id := range e.peers.Keys() {
		e.enqueue(id, frame)
	}
}

// PopOutbound drains the next pending outbound frame for peerID, if any.
// The host transport calls this once per send opportunity; the pop is
// atomic, so multiple transport threads may drain the same queue.
func (e *Engine) PopOutbound(peerID int64) ([]byte, bool) {
	ps, ok := e.peers.Get(peerID)
	if !ok {
		return nil, false
	}
	head, ok := ps.outbound.PopFront()
	if !ok {
		return nil, false
	}
	metrics.SetOutboundQueueDepth(peerID, ps.outbound.Len())
	return head, true
}

// packWorldValues builds a SetWorldDataValues frame carrying every current
// world property cell, used once at admission to seed a new peer.
func packWorldValues(w *world.World) *wire.Builder {
	return world.PackWorldDataValues(w.WorldCells())
}

// packAddController builds the AddController frame broadcast when a peer is
// admitted: the peer's id followed by every transmittable property.
func packAddController(id int64, table []descriptor.Property, ctrl *controller.Controller) *wire.Builder {
	b := wire.NewBuilder(wire.AddController)
	b.WriteID(id)
	for i, desc := range table {
		if !desc.TransmitDef() || desc.Private {
			continue
		}
		cell := ctrl.Cell(i)
		if cell == nil {
			continue
		}
		b.WriteByte(byte(i))
		cell.Pack(b)
	}
	return b
}

// packSetControllerValues builds a SetControllerPropertyDataValues frame for
// ownerID's current transmittable (and, if onlyDirty, dirty) properties. It
// returns nil if nothing qualified.
func packSetControllerValues(ownerID int64, table []descriptor.Property, ctrl *controller.Controller, onlyDirty bool) []byte {
	b := wire.NewBuilder(wire.SetControllerPropertyDataValues)
	b.WriteID(ownerID)
	wrote := false
	for i, desc := range table {
		if !desc.TransmitDef() || desc.Private {
			continue
		}
		cell := ctrl.Cell(i)
		if cell == nil {
			continue
		}
		if onlyDirty && !cell.Dirty() {
			continue
		}
		b.WriteInt32(int32(i))
		cell.Pack(b)
		wrote = true
	}
	if !wrote {
		return nil
	}
	return b.Bytes()
}

// AddPeer runs the admission protocol for a newly connected peer. If
// requestedID is negative, the engine allocates max(existing)+1 (floor 0);
// allocation is serialized by admissionMu across concurrent admissions.
func (e *Engine) AddPeer(requestedID int64) int64 {
	e.admissionMu.Lock()
	id := requestedID
	if id < 0 {
		id = 0
		for _, k := range e.peers.Keys() {
			if k >= id {
				id = k + 1
			}
		}
	}
	ctrl := e.Factory(id, false)
	ctrl.SetPropertyInfo(e.World.ControllerPropertyTable())
	ps := &peerState{
		controller: ctrl,
		known:      lockedmap.New[int64, *entity.KnownDataset](),
		outbound:   lockedmap.NewSlice[[]byte](),
	}
	e.peers.Set(id, ps)
	e.admissionMu.Unlock()

	hail := wire.NewBuilder(wire.HailCheck)
	hail.WriteString(e.ProtocolHeader)
	e.enqueue(id, hail.Bytes())

	for _, f := range e.World.RPCDefs.Replay() {
		e.enqueue(id, f)
	}
	for _, f := range e.World.WorldDataDefs.Replay() {
		e.enqueue(id, f)
	}
	e.enqueue(id, packWorldValues(e.World).Bytes())

	e.enqueue(id, wire.NewBuilder(wire.InitialWorldDataComplete).Bytes())

	for _, f := range e.World.EntityDefs.Replay() {
		e.enqueue(id, f)
	}
	for _, f := range e.World.ControllerPropertyDefs.Replay() {
		e.enqueue(id, f)
	}

	accept := wire.NewBuilder(wire.AcceptController)
	accept.WriteID(id)
	e.enqueue(id, accept.Bytes())

	e.ControllerEvents.Publish(controller.Created, func(cb func(*controller.Controller)) { cb(ctrl) })
	metrics.AdmissionRecorded()
	logger.Info("peer admitted", logger.KeyPeerID, id)

	table := e.World.ControllerPropertyTable()
	addFrame := packAddController(id, table, ctrl)
	e.broadcast(addFrame.Bytes())

	for _, other := range e.peers.Keys() {
		if other == id {
			continue
		}
		ops, ok := e.peers.Get(other)
		if !ok {
			continue
		}
		if frame := packSetControllerValues(other, table, ops.controller, false); frame != nil {
			e.enqueue(id, frame)
		}
	}

	return id
}

// RemovePeer runs the disconnect path: drop the controller, purge it from
// every entity's known-dataset bookkeeping (which lives inside the peer's
// own state, so dropping the peer is sufficient), fire Destroyed, and
// broadcast RemoveController.
func (e *Engine) RemovePeer(id int64) {
	ps, ok := e.peers.Get(id)
	if !ok {
		return
	}
	e.peers.Delete(id)
	e.ControllerEvents.Publish(controller.Destroyed, func(cb func(*controller.Controller)) { cb(ps.controller) })
	logger.Info("peer removed", logger.KeyPeerID, id)

	frame := wire.NewBuilder(wire.RemoveController)
	frame.WriteID(id)
	e.broadcast(frame.Bytes())
}

// RegisterControllerProperty registers a controller property descriptor,
// broadcasts its definition to every admitted peer, and rebuilds each peer
// controller's cell list against the new table.
func (e *Engine) RegisterControllerProperty(name string, dt descriptor.DataType, scope descriptor.Scope, private bool) int {
	id := e.World.RegisterControllerProperty(name, dt, scope, private)
	e.broadcastLastDef(&e.World.ControllerPropertyDefs)
	table := e.World.ControllerPropertyTable()
	for _, peerID := range e.peers.Keys() {
		if ps, ok := e.peers.Get(peerID); ok {
			ps.controller.SetPropertyInfo(table)
		}
	}
	return id
}

// RegisterWorldProperty registers a world property descriptor and
// broadcasts its definition to every admitted peer.
func (e *Engine) RegisterWorldProperty(name string, dt descriptor.DataType) int {
	id := e.World.RegisterWorldProperty(name, dt)
	e.broadcastLastDef(&e.World.WorldDataDefs)
	return id
}

// RegisterEntityType registers an entity descriptor and broadcasts its
// definition to every admitted peer.
func (e *Engine) RegisterEntityType(desc descriptor.Entity) int {
	id := e.World.RegisterEntityType(desc)
	e.broadcastLastDef(&e.World.EntityDefs)
	return id
}

// RegisterRPC registers an RPC descriptor and broadcasts its definition to
// every admitted peer.
func (e *Engine) RegisterRPC(name string, scope descriptor.RPCScope, args []descriptor.Property) (int, error) {
	id, err := e.World.RegisterRPC(name, scope, args)
	if err != nil {
		return 0, err
	}
	e.broadcastLastDef(&e.World.RPCDefs)
	return id, nil
}

func (e *Engine) broadcastLastDef(cache *world.DefinitionCache) {
	if frame, ok := cache.Last(); ok {
		e.broadcast(frame)
	}
}

// Peer returns the controller installed for a connected peer id.
func (e *Engine) Peer(id int64) (*controller.Controller, bool) {
	ps, ok := e.peers.Get(id)
	if !ok {
		return nil, false
	}
	return ps.controller, true
}

// PeerIDs returns a snapshot of currently connected peer ids.
func (e *Engine) PeerIDs() []int64 {
	return e.peers.Keys()
}

// Update runs one tick: world property replication, controller property
// replication, then entity replication. The enqueue order within a tick is
// fixed so clients always see world data before controller data before
// entity data.
func (e *Engine) Update() {
	_, end := telemetry.StartSpan(context.Background(), "server.Update")
	defer end()
	e.replicateWorldProperties()
	e.replicateControllerProperties()
	e.replicateEntities()
}

func (e *Engine) replicateWorldProperties() {
	cells := e.World.WorldCells()
	var dirty []int
	for i, c := range cells {
		if c.Dirty() {
			dirty = append(dirty, i)
		}
	}
	if len(dirty) == 0 {
		return
	}
	metrics.DirtyPropertiesFlushed("world", len(dirty))
	b := wire.NewBuilder(wire.SetWorldDataValues)
	for _, i := range dirty {
		b.WriteByte(byte(i))
		cells[i].Pack(b)
		cells[i].ClearDirty()
	}
	e.broadcast(b.Bytes())
}

func (e *Engine) replicateControllerProperties() {
	table := e.World.ControllerPropertyTable()
	for _, id := range e.peers.Keys() {
		ps, ok := e.peers.Get(id)
		if !ok {
			continue
		}
		dirty := ps.controller.GetDirtyProperties()
		if len(dirty) == 0 {
			continue
		}
		metrics.DirtyPropertiesFlushed("controller", len(dirty))
		b := wire.NewBuilder(wire.SetControllerPropertyDataValues)
		b.WriteID(id)
		wrote := false
		for _, propID := range dirty {
			if propID >= len(table) || table[propID].Private {
				continue
			}
			cell := ps.controller.Cell(propID)
			if cell == nil {
				continue
			}
			b.WriteInt32(int32(propID))
			cell.Pack(b)
			wrote = true
		}
		if wrote {
			e.broadcast(b.Bytes())
		}
	}
}

// replicateEntities runs the per-peer delta pass. A peer with no
// known-dataset record for an entity gets a full AddEntity; otherwise only
// changed, transmittable, scope-permitted properties are sent, and a
// SetEntityDataValues frame is enqueued only when at least one qualified.
func (e *Engine) replicateEntities() {
	for _, eid := range e.World.Entities.Keys() {
		inst, ok := e.World.Entities.Get(eid)
		if !ok {
			continue
		}
		desc := inst.Desc
		if !desc.SyncCreate() {
			continue
		}
		cells := inst.Cells()
		owner := inst.Owner()
		for _, peerID := range e.peers.Keys() {
			ps, ok := e.peers.Get(peerID)
			if !ok {
				continue
			}
			kd, known := ps.known.Get(eid)
			if !known {
				e.sendFullAdd(peerID, ps, eid, inst, desc, cells)
				continue
			}
			e.sendDelta(ps, peerID, eid, desc, cells, owner, kd)
		}
	}
}

func (e *Engine) sendFullAdd(peerID int64, ps *peerState, eid int64, inst *entity.Instance, desc descriptor.Entity, cells []*property.Cell) {
	revisions := make([]byte, len(cells))
	b := wire.NewBuilder(wire.AddEntity)
	b.WriteID(eid)
	b.WriteInt32(int32(desc.ID))
	b.WriteID(inst.Owner())
	for i, c := range cells {
		b.WriteByte(byte(i))
		c.Pack(b)
		revisions[i] = c.Revision()
	}
	ps.known.Set(eid, entity.NewKnownDataset(revisions))
	metrics.SetKnownDatasetSize(peerID, ps.known.Len())
	e.push(peerID, ps, b.Bytes())
}

func (e *Engine) sendDelta(ps *peerState, peerID, eid int64, desc descriptor.Entity, cells []*property.Cell, owner int64, kd *entity.KnownDataset) {
	b := wire.NewBuilder(wire.SetEntityDataValues)
	b.WriteID(eid)
	wrote := false
	for i, c := range cells {
		rev := c.Revision()
		known := kd.Get(i)
		if rev == known {
			continue
		}
		propDesc := desc.Properties[i]
		transmit := propDesc.TransmitDef() && (propDesc.Scope != descriptor.ClientPushSync || owner == peerID)
		if transmit {
			b.WriteInt32(int32(i))
			c.Pack(b)
			wrote = true
		}
		// Revision is recorded even when not transmitted; a later scope
		// change does not replay the missed update.
		kd.Set(i, rev)
	}
	if wrote {
		e.push(peerID, ps, b.Bytes())
	}
}

// CreateInstance builds a server-authored entity of the given type, valid
// only when the type's AllowServerCreate holds. setup is invoked
// synchronously before any delta computation runs, to seed initial values.
func (e *Engine) CreateInstance(descID int, owner int64, setup func(*entity.Instance)) (*entity.Instance, error) {
	desc, ok := e.World.EntityType(descID)
	if !ok {
		return nil, ecode.New(ecode.UnknownID, "unknown entity type")
	}
	if !desc.AllowServerCreate() {
		return nil, ecode.New(ecode.CreatePolicyViolation, "entity type does not allow server create")
	}
	id := int64(len(e.World.Entities.Keys()) + 1)
	for e.World.Entities.Has(id) {
		id++
	}
	inst, ok := e.World.NewInstance(descID, id, owner, func(i *entity.Instance, c *property.Cell) {})
	if !ok {
		return nil, ecode.New(ecode.UnknownID, "unknown entity type")
	}
	if setup != nil {
		setup(inst)
	}
	e.World.Entities.Set(id, inst)
	e.Events.Publish(EntityAdded, func(cb func(int64, *entity.Instance)) { cb(id, inst) })
	metrics.EntityLifecycle("server_created")
	logger.Debug("server entity created", logger.KeyEntityID, id, logger.KeyEntityType, desc.Name)
	return inst, nil
}

// RemoveInstance erases the instance, broadcasts RemoveEntity, fires
// EntityRemoved, and purges the entity from every peer's known-dataset map.
func (e *Engine) RemoveInstance(id int64) {
	if !e.World.Entities.Has(id) {
		return
	}
	e.World.Entities.Delete(id)

	frame := wire.NewBuilder(wire.RemoveEntity)
	frame.WriteID(id)
	e.broadcast(frame.Bytes())

	for _, peerID := range e.peers.Keys() {
		if ps, ok := e.peers.Get(peerID); ok {
			ps.known.Delete(id)
			metrics.SetKnownDatasetSize(peerID, ps.known.Len())
		}
	}
	e.Events.Publish(EntityRemoved, func(cb func(int64, *entity.Instance)) { cb(id, nil) })
	metrics.EntityLifecycle("removed")
}

// Dispatch processes one inbound frame received from peerID.
func (e *Engine) Dispatch(peerID int64, frame []byte) {
	ps, ok := e.peers.Get(peerID)
	if !ok {
		return
	}
	r := wire.NewReader(frame)
	metrics.FrameDecoded(r.Command().String())
	_, end := telemetry.StartSpan(context.Background(), "server.Dispatch",
		attribute.String(telemetry.AttrCommand, r.Command().String()),
		attribute.Int64(telemetry.AttrPeerID, peerID),
	)
	defer end()
	switch r.Command() {
	case wire.SetControllerPropertyDataValues:
		e.dispatchSetControllerValues(ps, r)
	case wire.CallRPC:
		e.dispatchCallRPC(peerID, r)
	case wire.AddEntity:
		e.dispatchClientAddEntity(peerID, ps, r)
	case wire.RemoveEntity:
		e.dispatchClientRemoveEntity(r)
	case wire.SetEntityDataValues:
		e.dispatchClientSetEntityValues(peerID, r)
	default:
		// Server does not accept definition frames or acceptance frames from
		// clients; drop silently.
	}
}

func (e *Engine) dispatchSetControllerValues(ps *peerState, r *wire.Reader) {
	r.ReadID() // ownerId: implicitly the sender; present on the wire for symmetry with the client path
	table := e.World.ControllerPropertyTable()
	saved := false
	for !r.Done() {
		propID := int(r.ReadInt32())
		if propID < 0 || propID >= len(table) {
			r.End()
			break
		}
		cell := ps.controller.Cell(propID)
		if cell == nil {
			r.End()
			break
		}
		save := table[propID].UpdateFromClient()
		cell.Unpack(r, save)
		saved = saved || save
	}
	if saved {
		e.ControllerEvents.Publish(controller.RemoteUpdate, func(cb func(*controller.Controller)) { cb(ps.controller) })
	}
}

func (e *Engine) dispatchCallRPC(peerID int64, r *wire.Reader) {
	id := int(r.ReadInt32())
	rpc, ok := e.World.RPCs.ByID(id)
	if !ok || rpc.Scope != descriptor.ClientToServer {
		r.End()
		return
	}
	handler, ok := e.World.RPCs.Handler(id)
	values := property.UnpackArgs(r, rpc.Arguments)
	if !ok {
		return
	}
	metrics.RPCDispatched(rpc.Name, "client_to_server")
	handler(peerID, rpc.Arguments, values)
}

func (e *Engine) dispatchClientAddEntity(peerID int64, ps *peerState, r *wire.Reader) {
	typeID := int(r.ReadInt32())
	localID := r.ReadID()

	desc, ok := e.World.EntityType(typeID)
	reject := !ok || !desc.AllowClientCreate() || !desc.SyncCreate()
	if reject {
		// Still consume the property bundle so framing stays aligned, then
		// reply with a rejection.
		if ok {
			drainProperties(r, len(desc.Properties))
		} else {
			r.End()
		}
		e.replyAcceptClientEntity(peerID, ps, -1, localID)
		metrics.EntityLifecycle("client_rejected")
		return
	}

	serverID := int64(len(e.World.Entities.Keys()) + 1)
	for e.World.Entities.Has(serverID) {
		serverID++
	}
	inst, ok := e.World.NewInstance(typeID, serverID, peerID, func(i *entity.Instance, c *property.Cell) {})
	if !ok {
		r.End()
		e.replyAcceptClientEntity(peerID, ps, -1, localID)
		return
	}
	cells := inst.Cells()
	revisions := make([]byte, len(cells))
	for range cells {
		if r.Done() {
			break
		}
		propID := int(r.ReadByte())
		if propID < 0 || propID >= len(cells) {
			r.End()
			break
		}
		cells[propID].Unpack(r, true)
		revisions[propID] = cells[propID].Revision()
	}
	e.World.Entities.Set(serverID, inst)
	e.Events.Publish(EntityAdded, func(cb func(int64, *entity.Instance)) { cb(serverID, inst) })

	e.replyAcceptClientEntity(peerID, ps, serverID, localID)
	metrics.EntityLifecycle("client_accepted")

	// Seed the sender's known-dataset so the next update cycle never echoes
	// the just-created entity back to its author.
	ps.known.Set(serverID, entity.NewKnownDataset(revisions))
	metrics.SetKnownDatasetSize(peerID, ps.known.Len())
}

func drainProperties(r *wire.Reader, count int) {
	for i := 0; i < count && !r.Done(); i++ {
		r.ReadByte()
		r.ReadBuffer()
	}
}

func (e *Engine) replyAcceptClientEntity(peerID int64, ps *peerState, serverID, localID int64) {
	b := wire.NewBuilder(wire.AcceptClientEntity)
	b.WriteID(serverID)
	b.WriteID(localID)
	e.push(peerID, ps, b.Bytes())
}

func (e *Engine) dispatchClientRemoveEntity(r *wire.Reader) {
	id := r.ReadID()
	e.RemoveInstance(id)
}

func (e *Engine) dispatchClientSetEntityValues(peerID int64, r *wire.Reader) {
	eid := r.ReadID()
	inst, ok := e.World.Entities.Get(eid)
	if !ok {
		r.End()
		return
	}
	if inst.Owner() != peerID {
		r.End()
		return
	}
	cells := inst.Cells()
	updated := false
	for !r.Done() {
		propID := int(r.ReadInt32())
		if propID < 0 || propID >= len(cells) {
			r.End()
			break
		}
		desc := inst.Desc.Properties[propID]
		save := desc.UpdateFromClient()
		cells[propID].Unpack(r, save)
		if save {
			inst.NotifyPropertyChanged(cells[propID])
			updated = true
		}
	}
	if updated {
		e.Events.Publish(EntityUpdated, func(cb func(int64, *entity.Instance)) { cb(eid, inst) })
	}
}

// CallRPC sends an RPC from the server. If the RPC's scope is
// ServerToSingleClient it is sent only to target; if ServerToAllClients it
// is broadcast. Rejects ClientToServer RPCs.
func (e *Engine) CallRPC(name string, target int64, pack func(*wire.Builder)) error {
	rpc, ok := e.World.RPCs.ByName(name)
	if !ok {
		return ecode.New(ecode.UnknownID, "unknown rpc "+name)
	}
	if rpc.Scope == descriptor.ClientToServer {
		return ecode.New(ecode.ScopeViolation, "rpc "+name+" is client-to-server only")
	}
	b := wire.NewBuilder(wire.CallRPC)
	b.WriteInt32(int32(rpc.ID))
	if pack != nil {
		pack(b)
	}
	if rpc.Scope == descriptor.ServerToSingleClient {
		e.enqueue(target, b.Bytes())
		metrics.RPCDispatched(name, "server_to_single_client")
	} else {
		e.broadcast(b.Bytes())
		metrics.RPCDispatched(name, "server_to_all_clients")
	}
	return nil
}
