// Package entity implements entity instances, the per-(peer, entity)
// known-dataset used for server-side delta replication, and the client's
// negative local-id allocator.
package entity

import (
	"math"
	"sync"

	"github.com/JeffM2501/EntityNetwork/descriptor"
	"github.com/JeffM2501/EntityNetwork/ecode"
	"github.com/JeffM2501/EntityNetwork/property"
)

// InvalidID is the distinguished sentinel for "no entity." It sits well
// outside the valid negative local-id range so it can never collide with
// an allocated local id.
const InvalidID int64 = math.MinInt64

// Instance is a descriptor reference plus identity, ownership, and an
// ordered list of property cells parallel to the descriptor's property
// list.
type Instance struct {
	mu                sync.Mutex
	Desc              descriptor.Entity
	id                int64
	owner             int64
	cells             []*property.Cell
	onPropertyChanged func(*Instance, *property.Cell)
}

// NewInstance builds an instance from a descriptor, id, and owner
// controller id. onPropertyChanged, if non-nil, is invoked through
// NotifyPropertyChanged, which the engines' inbound entity-value paths call
// whenever an inbound value is accepted.
func NewInstance(desc descriptor.Entity, id, owner int64, onPropertyChanged func(*Instance, *property.Cell)) *Instance {
	cells := make([]*property.Cell, len(desc.Properties))
	for i, p := range desc.Properties {
		cells[i] = property.New(p)
	}
	return &Instance{Desc: desc, id: id, owner: owner, cells: cells, onPropertyChanged: onPropertyChanged}
}

func (i *Instance) ID() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.id
}

// Rekey replaces the instance's id, used when a client-authored entity is
// accepted by the server and moves from its negative local id to a
// positive server id.
func (i *Instance) Rekey(newID int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.id = newID
}

func (i *Instance) Owner() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.owner
}

// Cells returns the property cells, parallel to Desc.Properties.
func (i *Instance) Cells() []*property.Cell {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]*property.Cell, len(i.cells))
	copy(out, i.cells)
	return out
}

func (i *Instance) Cell(propID int) *property.Cell {
	i.mu.Lock()
	defer i.mu.Unlock()
	if propID < 0 || propID >= len(i.cells) {
		return nil
	}
	return i.cells[propID]
}

// Dirty reports whether any property cell has been locally mutated.
func (i *Instance) Dirty() bool {
	for _, c := range i.Cells() {
		if c.Dirty() {
			return true
		}
	}
	return false
}

// NotifyPropertyChanged invokes the PropertyChanged hook, if one was
// configured, for the given cell. Called by unpack paths after a value is
// accepted.
func (i *Instance) NotifyPropertyChanged(cell *property.Cell) {
	if i.onPropertyChanged != nil {
		i.onPropertyChanged(i, cell)
	}
}

// KnownDataset is the server's per-(peer, entity) record: one revision byte
// per property, used to decide which properties changed since the peer was
// last told about this entity. Its mere presence in a peer's map denotes
// "the peer has seen this entity at least once."
type KnownDataset struct {
	mu        sync.Mutex
	revisions []byte
}

// NewKnownDataset seeds a dataset with the given revision vector, typically
// the entity's current per-property revisions at the moment of first
// replication or server-side creation acceptance.
func NewKnownDataset(revisions []byte) *KnownDataset {
	cp := make([]byte, len(revisions))
	copy(cp, revisions)
	return &KnownDataset{revisions: cp}
}

// Len returns the number of tracked properties.
func (k *KnownDataset) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.revisions)
}

// Get returns the known revision for property i.
func (k *KnownDataset) Get(i int) byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	if i < 0 || i >= len(k.revisions) {
		return 0
	}
	return k.revisions[i]
}

// Set writes the known revision for property i.
func (k *KnownDataset) Set(i int, rev byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if i < 0 || i >= len(k.revisions) {
		return
	}
	k.revisions[i] = rev
}

// LocalIDAllocator hands out negative provisional entity ids for
// client-authored entities, decrementing a counter and skipping any value
// already in use.
type LocalIDAllocator struct {
	mu        sync.Mutex
	next      int64
	wrapFloor int64
	inUse     map[int64]struct{}
}

// NewLocalIDAllocator creates an allocator whose first issued id is -1.
func NewLocalIDAllocator() *LocalIDAllocator {
	return &LocalIDAllocator{next: -1, wrapFloor: InvalidID + 1, inUse: make(map[int64]struct{})}
}

// Allocate returns a fresh negative id not currently in use. If the counter
// would reach the wrap floor (one above the invalid sentinel), it wraps back
// to -1; if every negative
// id between -1 and the wrap floor is in use, it reports local id
// exhaustion rather than looping forever.
func (a *LocalIDAllocator) Allocate() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.next
	for attempts := int64(0); ; attempts++ {
		candidate := a.next
		a.next--
		if a.next <= a.wrapFloor {
			a.next = -1
		}
		if _, taken := a.inUse[candidate]; !taken && candidate != InvalidID {
			a.inUse[candidate] = struct{}{}
			return candidate, nil
		}
		if a.next == start || attempts > (start-a.wrapFloor) {
			return 0, ecode.New(ecode.LocalIDExhausted, "no local entity id available")
		}
	}
}

// Release frees a previously allocated local id for reuse.
func (a *LocalIDAllocator) Release(id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, id)
}
