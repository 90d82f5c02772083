// Package world holds the top-level replicated state shared by the server
// and client engines: descriptor tables for controller properties, world
// properties, entity types, and RPCs; the world's own property cells; the
// entity instance table; and, for the server, the per-kind cache of
// already-built definition frames replayed to a newly admitted peer.
// One shared type serves both endpoints, with server-only fields guarded
// the same way as everything else: one lock per container.
package world

import (
	"sync"

	"github.com/JeffM2501/EntityNetwork/descriptor"
	"github.com/JeffM2501/EntityNetwork/entity"
	"github.com/JeffM2501/EntityNetwork/lockedmap"
	"github.com/JeffM2501/EntityNetwork/property"
	"github.com/JeffM2501/EntityNetwork/rpcdef"
	"github.com/JeffM2501/EntityNetwork/wire"
)

// DefinitionCache accumulates the encoded frames for one command kind, in
// registration order, so a newly admitted peer can be replayed the full
// history of definitions without the engine re-deriving them.
type DefinitionCache struct {
	mu     sync.Mutex
	frames [][]byte
}

// Append adds a newly built definition frame to the cache.
func (c *DefinitionCache) Append(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
}

// Replay returns every cached frame, in the order they were appended.
func (c *DefinitionCache) Replay() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

// Last returns the most recently appended frame, or false if the cache is
// empty. Used to broadcast a definition registered at runtime to peers that
// were admitted before it existed.
func (c *DefinitionCache) Last() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return nil, false
	}
	return c.frames[len(c.frames)-1], true
}

// EntityFactory builds an entity instance from its descriptor, assigned id,
// and owning controller id. onPropertyChanged is wired through to the
// instance so inbound unpacks can notify application code.
type EntityFactory func(desc descriptor.Entity, id, owner int64, onPropertyChanged func(*entity.Instance, *property.Cell)) *entity.Instance

func defaultEntityFactory(desc descriptor.Entity, id, owner int64, onPropertyChanged func(*entity.Instance, *property.Cell)) *entity.Instance {
	return entity.NewInstance(desc, id, owner, onPropertyChanged)
}

// World is the shared replicated state. The server additionally tracks
// peer controllers and known-datasets through the controller and server
// packages; World itself only owns descriptors, world property values, and
// entity instances, which both engines need.
type World struct {
	controllerProps *lockedmap.Slice[descriptor.Property]
	worldProps      *lockedmap.Slice[descriptor.Property]
	worldCells      *lockedmap.Slice[*property.Cell]
	entityDescs     *lockedmap.Map[int, descriptor.Entity]
	entityDescOrder *lockedmap.Slice[int]
	Entities        *lockedmap.Map[int64, *entity.Instance]
	RPCs            *rpcdef.Table

	factoriesByID   *lockedmap.Map[int, EntityFactory]
	factoriesByName *lockedmap.Map[string, EntityFactory]

	ControllerPropertyDefs DefinitionCache
	WorldDataDefs          DefinitionCache
	RPCDefs                DefinitionCache
	EntityDefs             DefinitionCache
}

// New creates an empty world.
func New() *World {
	return &World{
		controllerProps: lockedmap.NewSlice[descriptor.Property](),
		worldProps:      lockedmap.NewSlice[descriptor.Property](),
		worldCells:      lockedmap.NewSlice[*property.Cell](),
		entityDescs:     lockedmap.New[int, descriptor.Entity](),
		entityDescOrder: lockedmap.NewSlice[int](),
		Entities:        lockedmap.New[int64, *entity.Instance](),
		RPCs:            rpcdef.NewTable(),
		factoriesByID:   lockedmap.New[int, EntityFactory](),
		factoriesByName: lockedmap.New[string, EntityFactory](),
	}
}

// RegisterEntityFactoryByID overrides the instance constructor used for a
// given entity type id. Deferred registration is supported: the factory
// may be attached before or after the type itself is registered.
func (w *World) RegisterEntityFactoryByID(id int, f EntityFactory) {
	w.factoriesByID.Set(id, f)
}

// RegisterEntityFactoryByName overrides the instance constructor used for
// entity types with the given name.
func (w *World) RegisterEntityFactoryByName(name string, f EntityFactory) {
	w.factoriesByName.Set(name, f)
}

// NewInstance builds an instance of the given entity type using its
// registered factory (by id, then by name, else the default factory).
func (w *World) NewInstance(descID int, id, owner int64, onPropertyChanged func(*entity.Instance, *property.Cell)) (*entity.Instance, bool) {
	desc, ok := w.EntityType(descID)
	if !ok {
		return nil, false
	}
	factory := defaultEntityFactory
	if f, ok := w.factoriesByID.Get(descID); ok {
		factory = f
	} else if f, ok := w.factoriesByName.Get(desc.Name); ok {
		factory = f
	}
	return factory(desc, id, owner, onPropertyChanged), true
}

// RegisterControllerProperty adds a descriptor to the controller property
// table, appends its AddControllerPropertyDef frame to the cache, and
// returns the assigned dense id.
func (w *World) RegisterControllerProperty(name string, dt descriptor.DataType, scope descriptor.Scope, private bool) int {
	id := w.controllerProps.Len()
	desc := descriptor.Property{ID: id, Name: name, Type: dt, Scope: scope, Private: private}
	w.controllerProps.PushBack(desc)

	b := wire.NewBuilder(wire.AddControllerPropertyDef)
	b.WriteInt32(int32(id))
	b.WriteString(name)
	b.WriteByte(byte(dt))
	b.WriteByte(byte(scope))
	b.WriteBool(private)
	w.ControllerPropertyDefs.Append(b.Bytes())
	return id
}

// ControllerPropertyTable returns a snapshot of the controller property
// descriptor table in id order.
func (w *World) ControllerPropertyTable() []descriptor.Property {
	return w.controllerProps.Snapshot()
}

// RegisterWorldProperty adds a world (global) property descriptor, a
// zero-valued cell for it, and caches its AddWorldDataDef frame.
func (w *World) RegisterWorldProperty(name string, dt descriptor.DataType) int {
	id := w.worldProps.Len()
	desc := descriptor.Property{ID: id, Name: name, Type: dt, Scope: descriptor.ServerPushSync}
	w.worldProps.PushBack(desc)
	w.worldCells.PushBack(property.New(desc))

	b := wire.NewBuilder(wire.AddWorldDataDef)
	b.WriteInt32(int32(id))
	b.WriteString(name)
	b.WriteByte(byte(dt))
	w.WorldDataDefs.Append(b.Bytes())
	return id
}

// WorldCell returns the property cell for a world property id.
func (w *World) WorldCell(id int) (*property.Cell, bool) {
	return w.worldCells.Get(id)
}

// WorldCells returns a snapshot of every world property cell in id order.
func (w *World) WorldCells() []*property.Cell {
	return w.worldCells.Snapshot()
}

// RegisterEntityType adds an entity descriptor and caches its
// AddEntityDef frame. The descriptor's property list must already be
// finalized (via descriptor.Entity.AddProperty) before registration.
func (w *World) RegisterEntityType(desc descriptor.Entity) int {
	id := w.entityDescs.Len()
	desc.ID = id
	w.entityDescs.Set(id, desc)
	w.entityDescOrder.PushBack(id)

	b := wire.NewBuilder(wire.AddEntityDef)
	b.WriteInt32(int32(id))
	b.WriteString(desc.Name)
	b.WriteBool(desc.IsAvatar)
	b.WriteByte(byte(desc.CreateScope))
	for _, p := range desc.Properties {
		b.WriteInt32(int32(p.ID))
		b.WriteByte(byte(p.Scope))
		b.WriteString(p.Name)
		b.WriteByte(byte(p.Type))
	}
	w.EntityDefs.Append(b.Bytes())
	return id
}

// EntityType looks up a registered entity descriptor by id.
func (w *World) EntityType(id int) (descriptor.Entity, bool) {
	return w.entityDescs.Get(id)
}

// RegisterRPC validates and adds an RPC descriptor via the world's RPC
// table, and caches its AddRPCDef frame: id, name, scope, then the
// argument list's data types in order.
func (w *World) RegisterRPC(name string, scope descriptor.RPCScope, args []descriptor.Property) (int, error) {
	id, err := w.RPCs.Register(name, scope, args)
	if err != nil {
		return 0, err
	}

	b := wire.NewBuilder(wire.AddRPCDef)
	b.WriteInt32(int32(id))
	b.WriteString(name)
	b.WriteByte(byte(scope))
	for _, a := range args {
		b.WriteByte(byte(a.Type))
	}
	w.RPCDefs.Append(b.Bytes())
	return id, nil
}

// PackWorldDataValues builds a SetWorldDataValues frame carrying every cell
// in cells (caller filters by dirty or "all", per use site).
func PackWorldDataValues(cells []*property.Cell) *wire.Builder {
	b := wire.NewBuilder(wire.SetWorldDataValues)
	for id, c := range cells {
		b.WriteByte(byte(id))
		c.Pack(b)
	}
	return b
}
