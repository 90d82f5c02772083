package descriptor

// CreateScope controls who is allowed to create instances of an entity type
// and whether creation is replicated to other peers.
type CreateScope byte

const (
	ClientLocal CreateScope = iota
	ClientSync
	ServerLocal
	ServerSync
)

// String renders a CreateScope for logging and CLI output.
func (s CreateScope) String() string {
	switch s {
	case ClientLocal:
		return "ClientLocal"
	case ClientSync:
		return "ClientSync"
	case ServerLocal:
		return "ServerLocal"
	case ServerSync:
		return "ServerSync"
	default:
		return "Unknown"
	}
}

// Entity is the immutable descriptor for an entity type: its identity, its
// creation policy, and its ordered property list.
type Entity struct {
	ID          int
	Name        string
	IsAvatar    bool
	CreateScope CreateScope
	Properties  []Property
}

// AllowServerCreate reports whether the server may originate instances of
// this type.
func (e Entity) AllowServerCreate() bool {
	return e.CreateScope == ServerLocal || e.CreateScope == ServerSync
}

// AllowClientCreate reports whether a client may originate instances of
// this type.
func (e Entity) AllowClientCreate() bool {
	return e.CreateScope == ClientLocal || e.CreateScope == ClientSync
}

// SyncCreate reports whether instances of this type are replicated to
// other peers at all (as opposed to staying purely local to their creator).
func (e Entity) SyncCreate() bool {
	return e.CreateScope == ServerSync || e.CreateScope == ClientSync
}

// AddProperty appends a property descriptor, assigning it the next dense id
// in this entity's property list, and returns that id.
func (e *Entity) AddProperty(p Property) int {
	p.ID = len(e.Properties)
	e.Properties = append(e.Properties, p)
	return p.ID
}
