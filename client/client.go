// Package client implements the client side of the replication engine:
// definition reception, the Disconnected/Negotiating/ActiveSyncing state
// machine, self bootstrap, inbound dispatch, client-authored entity
// creation/removal, and the per-tick upload of local dirty state.
package client

import (
	"context"
	"fmt"
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

// State is the client's connection-lifecycle state.
type State int

const (
	Disconnected State = iota
	Negotiating
	ActiveSyncing
)

// String renders a State for logging and CLI output.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Negotiating:
		return "Negotiating"
	case ActiveSyncing:
		return "ActiveSyncing"
	default:
		return "Unknown"
	}
}

// Kind identifies a client-level lifecycle event.
type Kind int

const (
	SelfCreated Kind = iota
	RemoteCreated
	RemoteDestroyed
	EntityAdded
	EntityRemoved
	EntityAccepted
	EntityUpdated
	WorldDataChanged
	InitialWorldData
	StateChanged
)

// ControllerFactory builds a controller for self or a remote peer.
type ControllerFactory func(id int64, isSelf bool) *controller.Controller

func defaultControllerFactory(id int64, isSelf bool) *controller.Controller {
	return controller.New(id, isSelf)
}

// Engine is the client-side replication engine.
type Engine struct {
	World   *world.World
	Factory ControllerFactory

	Events *event.Bus[Kind, func()]

	mu        sync.Mutex
	state     State
	selfID    int64
	self      *controller.Controller
	peers     *lockedmap.Map[int64, *controller.Controller]
	localIDs  *entity.LocalIDAllocator
	newLocal  *lockedmap.Slice[int64]
	deadLocal *lockedmap.Map[int64, struct{}]
	outbound  *lockedmap.Slice[[]byte]
}

// New creates a client engine over w.
func New(w *world.World) *Engine {
	return &Engine{
		World:     w,
		Factory:   defaultControllerFactory,
		Events:    event.NewBus[Kind, func()](),
		state:     Disconnected,
		peers:     lockedmap.New[int64, *controller.Controller](),
		localIDs:  entity.NewLocalIDAllocator(),
		newLocal:  lockedmap.NewSlice[int64](),
		deadLocal: lockedmap.New[int64, struct{}](),
		outbound:  lockedmap.NewSlice[[]byte](),
	}
}

// State returns the client's current connection state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.Events.Publish(StateChanged, func(cb func()) { cb() })
}

// Self returns the client's own controller, or false before AcceptController
// has been received.
func (e *Engine) Self() (*controller.Controller, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.self, e.self != nil
}

func (e *Engine) enterNegotiatingIfFirstDefinition() {
	e.mu.Lock()
	if e.state == Disconnected {
		e.state = Negotiating
		e.mu.Unlock()
		e.Events.Publish(StateChanged, func(cb func()) { cb() })
		return
	}
	e.mu.Unlock()
}

func (e *Engine) push(frame []byte) {
	e.outbound.PushBack(frame)
	if len(frame) > 0 {
		metrics.FrameEncoded(wire.Command(frame[0]).String())
	}
}

// PopOutbound drains the next pending outbound frame for the host transport
// to send to the server. The pop is atomic, so multiple transport threads
// may drain the queue.
func (e *Engine) PopOutbound() ([]byte, bool) {
	return e.outbound.PopFront()
}

// Dispatch processes one inbound frame received from the server.
func (e *Engine) Dispatch(frame []byte) {
	r := wire.NewReader(frame)
	metrics.FrameDecoded(r.Command().String())
	_, end := telemetry.StartSpan(context.Background(), "client.Dispatch",
		attribute.String(telemetry.AttrCommand, r.Command().String()),
	)
	defer end()
	switch r.Command() {
	case wire.HailCheck:
		r.ReadString()
	case wire.AddControllerPropertyDef:
		e.dispatchAddControllerPropertyDef(r)
	case wire.AddWorldDataDef:
		e.dispatchAddWorldDataDef(r)
	case wire.AddRPCDef:
		e.dispatchAddRPCDef(r)
	case wire.AddEntityDef:
		e.dispatchAddEntityDef(r)
	case wire.AcceptController:
		e.dispatchAcceptController(r)
	case wire.AddController:
		e.dispatchAddController(r)
	case wire.RemoveController:
		e.dispatchRemoveController(r)
	case wire.SetControllerPropertyDataValues:
		e.dispatchSetControllerValues(r)
	case wire.SetWorldDataValues:
		e.dispatchSetWorldValues(r)
	case wire.InitialWorldDataComplete:
		e.Events.Publish(InitialWorldData, func(cb func()) { cb() })
	case wire.AddEntity:
		e.dispatchAddEntity(r)
	case wire.RemoveEntity:
		e.dispatchRemoveEntity(r)
	case wire.AcceptClientEntity:
		e.dispatchAcceptClientEntity(r)
	case wire.SetEntityDataValues:
		e.dispatchSetEntityValues(r)
	case wire.CallRPC:
		e.dispatchCallRPC(r)
	default:
	}
}

func (e *Engine) dispatchAddControllerPropertyDef(r *wire.Reader) {
	e.enterNegotiatingIfFirstDefinition()
	r.ReadInt32()
	name := r.ReadString()
	dt := descriptor.DataType(r.ReadByte())
	scope := descriptor.Scope(r.ReadByte())
	private := r.ReadBool()
	e.World.RegisterControllerProperty(name, dt, scope, private)
	e.resynthesizeControllerProperties()
}

func (e *Engine) resynthesizeControllerProperties() {
	table := e.World.ControllerPropertyTable()
	if self, ok := e.Self(); ok {
		self.SetPropertyInfo(table)
	}
	for _, id := range e.peers.Keys() {
		if p, ok := e.peers.Get(id); ok {
			p.SetPropertyInfo(table)
		}
	}
}

func (e *Engine) dispatchAddWorldDataDef(r *wire.Reader) {
	e.enterNegotiatingIfFirstDefinition()
	r.ReadInt32()
	name := r.ReadString()
	dt := descriptor.DataType(r.ReadByte())
	e.World.RegisterWorldProperty(name, dt)
}

func (e *Engine) dispatchAddRPCDef(r *wire.Reader) {
	e.enterNegotiatingIfFirstDefinition()
	r.ReadInt32()
	name := r.ReadString()
	scope := descriptor.RPCScope(r.ReadByte())
	var args []descriptor.Property
	for !r.Done() {
		// The definition frame carries only data types; names are synthesized
		// so the signature passes the duplicate-argument-name check.
		args = append(args, descriptor.Property{
			Name: fmt.Sprintf("arg%d", len(args)),
			Type: descriptor.DataType(r.ReadByte()),
		})
	}
	e.World.RegisterRPC(name, scope, args)
}

func (e *Engine) dispatchAddEntityDef(r *wire.Reader) {
	e.enterNegotiatingIfFirstDefinition()
	r.ReadInt32()
	name := r.ReadString()
	isAvatar := r.ReadBool()
	createScope := descriptor.CreateScope(r.ReadByte())
	desc := descriptor.Entity{Name: name, IsAvatar: isAvatar, CreateScope: createScope}
	for !r.Done() {
		propID := int(r.ReadInt32())
		scope := descriptor.Scope(r.ReadByte())
		pname := r.ReadString()
		dt := descriptor.DataType(r.ReadByte())
		desc.AddProperty(descriptor.Property{ID: propID, Name: pname, Type: dt, Scope: scope})
	}
	e.World.RegisterEntityType(desc)
}

func (e *Engine) dispatchAcceptController(r *wire.Reader) {
	id := r.ReadID()
	e.mu.Lock()
	e.selfID = id
	self := e.Factory(id, true)
	e.self = self
	e.mu.Unlock()
	self.SetPropertyInfo(e.World.ControllerPropertyTable())
	e.Events.Publish(SelfCreated, func(cb func()) { cb() })
	logger.Info("self controller created", logger.KeyControllerID, id)
}

func (e *Engine) dispatchAddController(r *wire.Reader) {
	id := r.ReadID()

	e.mu.Lock()
	isSelf := e.self != nil && id == e.selfID
	e.mu.Unlock()

	var ctrl *controller.Controller
	if isSelf {
		ctrl, _ = e.Self()
	} else {
		ctrl = e.Factory(id, false)
		ctrl.SetPropertyInfo(e.World.ControllerPropertyTable())
		e.peers.Set(id, ctrl)
	}

	table := e.World.ControllerPropertyTable()
	for !r.Done() {
		propID := int(r.ReadByte())
		cell := ctrl.Cell(propID)
		if propID >= len(table) || cell == nil {
			r.Advance(r.PeekBufferLength() + 2)
			continue
		}
		cell.Unpack(r, true)
		cell.ClearDirty()
	}

	if isSelf {
		e.setState(ActiveSyncing)
		logger.Info("client active syncing", logger.KeyControllerID, id)
	} else {
		e.Events.Publish(RemoteCreated, func(cb func()) { cb() })
	}
}

func (e *Engine) dispatchRemoveController(r *wire.Reader) {
	id := r.ReadID()
	e.peers.Delete(id)
	e.Events.Publish(RemoteDestroyed, func(cb func()) { cb() })
}

func (e *Engine) controllerFor(id int64) (*controller.Controller, bool) {
	e.mu.Lock()
	self, selfID := e.self, e.selfID
	e.mu.Unlock()
	if self != nil && id == selfID {
		return self, true
	}
	return e.peers.Get(id)
}

func (e *Engine) dispatchSetControllerValues(r *wire.Reader) {
	ownerID := r.ReadID()
	ctrl, ok := e.controllerFor(ownerID)
	if !ok {
		r.End()
		return
	}
	table := e.World.ControllerPropertyTable()
	for !r.Done() {
		propID := int(r.ReadInt32())
		if propID < 0 || propID >= len(table) {
			r.End()
			return
		}
		cell := ctrl.Cell(propID)
		if cell == nil {
			r.End()
			return
		}
		save := table[propID].UpdateFromServer()
		cell.Unpack(r, save)
		cell.ClearDirty()
		if save {
			ctrl.Events.Publish(controller.PropertyModified, func(cb func(*controller.Controller)) { cb(ctrl) })
		}
	}
}

func (e *Engine) dispatchSetWorldValues(r *wire.Reader) {
	cells := e.World.WorldCells()
	descTable := worldDescTable(e.World)
	changed := false
	for !r.Done() {
		propID := int(r.ReadByte())
		if propID < 0 || propID >= len(cells) {
			r.End()
			break
		}
		save := propID < len(descTable) && descTable[propID].UpdateFromServer()
		cells[propID].Unpack(r, save)
		cells[propID].ClearDirty()
		changed = changed || save
	}
	if changed {
		e.Events.Publish(WorldDataChanged, func(cb func()) { cb() })
	}
}

func worldDescTable(w *world.World) []descriptor.Property {
	// World property descriptors are ServerPushSync-only by construction
	// (see world.RegisterWorldProperty), so UpdateFromServer is always true;
	// kept as a lookup for symmetry with controller/entity dispatch and in
	// case a future descriptor carries a different scope.
	cells := w.WorldCells()
	out := make([]descriptor.Property, len(cells))
	for i, c := range cells {
		out[i] = c.Descriptor()
	}
	return out
}

func (e *Engine) dispatchAddEntity(r *wire.Reader) {
	entityID := r.ReadID()
	typeID := int(r.ReadInt32())
	ownerID := r.ReadID()

	desc, ok := e.World.EntityType(typeID)
	if !ok || !desc.SyncCreate() || desc.AllowClientCreate() {
		// Only server-authored types may be pushed this way.
		for !r.Done() {
			r.ReadByte()
			r.ReadBuffer()
		}
		return
	}
	inst, ok := e.World.NewInstance(typeID, entityID, ownerID, func(i *entity.Instance, c *property.Cell) {})
	if !ok {
		r.End()
		return
	}
	cells := inst.Cells()
	for !r.Done() {
		propID := int(r.ReadByte())
		if propID < 0 || propID >= len(cells) {
			r.End()
			return
		}
		cells[propID].Unpack(r, true)
		cells[propID].ClearDirty()
	}
	e.World.Entities.Set(entityID, inst)
	e.Events.Publish(EntityAdded, func(cb func()) { cb() })
}

func (e *Engine) dispatchRemoveEntity(r *wire.Reader) {
	id := r.ReadID()
	inst, ok := e.World.Entities.Get(id)
	if !ok || !inst.Desc.SyncCreate() {
		return
	}
	e.World.Entities.Delete(id)
	e.Events.Publish(EntityRemoved, func(cb func()) { cb() })
}

func (e *Engine) dispatchAcceptClientEntity(r *wire.Reader) {
	serverID := r.ReadID()
	localID := r.ReadID()

	if e.deadLocal.Has(localID) {
		e.deadLocal.Delete(localID)
		e.localIDs.Release(localID)
		b := wire.NewBuilder(wire.RemoveEntity)
		b.WriteID(serverID)
		e.push(b.Bytes())
		return
	}

	inst, ok := e.World.Entities.Get(localID)
	e.mu.Lock()
	selfID := e.selfID
	e.mu.Unlock()
	if !ok || inst.Owner() != selfID || !inst.Desc.SyncCreate() {
		return
	}

	if serverID < 0 {
		e.World.Entities.Delete(localID)
		e.localIDs.Release(localID)
		e.Events.Publish(EntityRemoved, func(cb func()) { cb() })
		metrics.EntityLifecycle("client_create_rejected")
		return
	}

	inst.Rekey(serverID)
	e.World.Entities.Delete(localID)
	e.World.Entities.Set(serverID, inst)
	e.localIDs.Release(localID)
	e.Events.Publish(EntityAccepted, func(cb func()) { cb() })
	metrics.EntityLifecycle("client_create_accepted")
}

func (e *Engine) dispatchSetEntityValues(r *wire.Reader) {
	id := r.ReadID()
	inst, ok := e.World.Entities.Get(id)
	if !ok {
		r.End()
		return
	}
	e.mu.Lock()
	selfID := e.selfID
	e.mu.Unlock()
	cells := inst.Cells()
	updated := false
	for !r.Done() {
		propID := int(r.ReadInt32())
		if propID < 0 || propID >= len(cells) {
			r.End()
			break
		}
		desc := inst.Desc.Properties[propID]
		save := desc.UpdateFromServer() || (desc.Scope == descriptor.ClientPushSync && inst.Owner() != selfID)
		cells[propID].Unpack(r, save)
		if save {
			inst.NotifyPropertyChanged(cells[propID])
			updated = true
		}
	}
	if updated {
		e.Events.Publish(EntityUpdated, func(cb func()) { cb() })
	}
}

func (e *Engine) dispatchCallRPC(r *wire.Reader) {
	id := int(r.ReadInt32())
	rpc, ok := e.World.RPCs.ByID(id)
	if !ok || rpc.Scope == descriptor.ClientToServer {
		r.End()
		return
	}
	handler, bound := e.World.RPCs.Handler(id)
	values := property.UnpackArgs(r, rpc.Arguments)
	if bound {
		metrics.RPCDispatched(rpc.Name, "server_to_client")
		handler(0, rpc.Arguments, values)
	}
}

// CallRPC sends an RPC from the client to the server. Only ClientToServer
// RPCs may originate here; any other scope is rejected.
func (e *Engine) CallRPC(name string, pack func(*wire.Builder)) error {
	rpc, ok := e.World.RPCs.ByName(name)
	if !ok {
		return ecode.New(ecode.UnknownID, "unknown rpc "+name)
	}
	if rpc.Scope != descriptor.ClientToServer {
		return ecode.New(ecode.ScopeViolation, "rpc "+name+" is not client-to-server")
	}
	b := wire.NewBuilder(wire.CallRPC)
	b.WriteInt32(int32(rpc.ID))
	if pack != nil {
		pack(b)
	}
	e.push(b.Bytes())
	metrics.RPCDispatched(name, "client_to_server")
	return nil
}

// CreateLocalEntity allocates a negative local id for a client-authored
// entity, validates the type allows client creation, instantiates it, and
// queues it for the next update-flush.
func (e *Engine) CreateLocalEntity(typeID int, setup func(*entity.Instance)) (*entity.Instance, error) {
	desc, ok := e.World.EntityType(typeID)
	if !ok {
		return nil, ecode.New(ecode.UnknownID, "unknown entity type")
	}
	if !desc.AllowClientCreate() || desc.AllowServerCreate() {
		return nil, ecode.New(ecode.CreatePolicyViolation, "entity type is not client-authorable")
	}
	localID, err := e.localIDs.Allocate()
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	selfID := e.selfID
	e.mu.Unlock()
	inst, ok := e.World.NewInstance(typeID, localID, selfID, func(i *entity.Instance, c *property.Cell) {})
	if !ok {
		return nil, ecode.New(ecode.UnknownID, "unknown entity type")
	}
	if setup != nil {
		setup(inst)
	}
	e.World.Entities.Set(localID, inst)
	e.newLocal.PushBack(localID)
	e.Events.Publish(EntityAdded, func(cb func()) { cb() })
	return inst, nil
}

// RemoveLocalEntity implements client removal: for id < 0 with SyncCreate,
// either drops it from the not-yet-flushed new-local list or marks it dead
// (awaiting server acceptance); for id >= 0 it sends RemoveEntity. The
// instance is always erased locally and EntityRemoved fires.
func (e *Engine) RemoveLocalEntity(id int64) {
	inst, ok := e.World.Entities.Get(id)
	if !ok {
		return
	}
	if id < 0 && inst.Desc.SyncCreate() {
		if !e.removeFromNewLocal(id) {
			e.deadLocal.Set(id, struct{}{})
		}
	} else {
		b := wire.NewBuilder(wire.RemoveEntity)
		b.WriteID(id)
		e.push(b.Bytes())
	}
	e.World.Entities.Delete(id)
	e.Events.Publish(EntityRemoved, func(cb func()) { cb() })
}

func (e *Engine) removeFromNewLocal(id int64) bool {
	return e.newLocal.RemoveFunc(func(v int64) bool { return v == id })
}

// Update runs one tick: flush newly created local entities, then upload
// dirty self properties.
func (e *Engine) Update() {
	_, end := telemetry.StartSpan(context.Background(), "client.Update")
	defer end()
	e.flushNewLocalEntities()
	e.flushSelfProperties()
}

func (e *Engine) flushNewLocalEntities() {
	for _, id := range e.newLocal.Drain() {
		inst, ok := e.World.Entities.Get(id)
		if !ok {
			continue
		}
		b := wire.NewBuilder(wire.AddEntity)
		b.WriteInt32(int32(inst.Desc.ID))
		b.WriteID(id)
		for i, c := range inst.Cells() {
			b.WriteByte(byte(i))
			c.Pack(b)
		}
		e.push(b.Bytes())
	}
}

func (e *Engine) flushSelfProperties() {
	self, ok := e.Self()
	if !ok {
		return
	}
	table := e.World.ControllerPropertyTable()
	dirty := self.GetDirtyProperties()
	if len(dirty) == 0 {
		return
	}
	metrics.DirtyPropertiesFlushed("self", len(dirty))
	b := wire.NewBuilder(wire.SetControllerPropertyDataValues)
	e.mu.Lock()
	b.WriteID(e.selfID)
	e.mu.Unlock()
	wrote := false
	for _, propID := range dirty {
		if propID >= len(table) || !table[propID].UpdateFromClient() {
			continue
		}
		cell := self.Cell(propID)
		b.WriteInt32(int32(propID))
		cell.Pack(b)
		wrote = true
	}
	if wrote {
		e.push(b.Bytes())
	}
}
