// Package controller implements the per-participant state container: one
// per connected peer on the server, one for self plus one per known remote
// peer on the client. A single type serves both roles, distinguished by
// IsSelf.
package controller

import (
	"sync"

	"github.com/JeffM2501/EntityNetwork/descriptor"
	"github.com/JeffM2501/EntityNetwork/event"
	"github.com/JeffM2501/EntityNetwork/property"
)

// Kind identifies a controller-level or per-property lifecycle event.
type Kind int

const (
	Created Kind = iota
	Destroyed
	RemoteUpdate
	PropertyAdded
	PropertyModified
	PropertyDeleted
)

// Controller is a per-participant record: an id, an ordered list of
// property cells parallel to the world's controller property descriptor
// table, and an IsSelf flag used on the client to distinguish the local
// participant from remote peers.
type Controller struct {
	mu sync.Mutex

	id     int64
	isSelf bool
	cells  []*property.Cell
	byName map[string]*property.Cell
	Events *event.Bus[Kind, func(*Controller)]
}

// New creates a controller with the given id. isSelf marks the client's own
// controller; it is meaningless on the server, where every controller
// represents a remote peer.
func New(id int64, isSelf bool) *Controller {
	return &Controller{
		id:     id,
		isSelf: isSelf,
		byName: make(map[string]*property.Cell),
		Events: event.NewBus[Kind, func(*Controller)](),
	}
}

func (c *Controller) ID() int64    { return c.id }
func (c *Controller) IsSelf() bool { return c.isSelf }

// SetPropertyInfo rebuilds the cell list against the given descriptor
// table. A descriptor matched by name to an existing cell keeps that cell
// (and its value); unmatched descriptors get a fresh zero-valued cell;
// cells whose descriptor no longer appears are dropped. Matching is by
// name only, so descriptor tables must not carry duplicate names.
func (c *Controller) SetPropertyInfo(table []descriptor.Property) {
	c.mu.Lock()
	defer c.mu.Unlock()

	newCells := make([]*property.Cell, len(table))
	newByName := make(map[string]*property.Cell, len(table))
	for i, desc := range table {
		if existing, ok := c.byName[desc.Name]; ok {
			newCells[i] = existing
		} else {
			newCells[i] = property.New(desc)
		}
		newByName[desc.Name] = newCells[i]
	}
	c.cells = newCells
	c.byName = newByName
}

// Cells returns the live cell list, parallel to the descriptor table passed
// to the last SetPropertyInfo call. Callers must not mutate the slice.
func (c *Controller) Cells() []*property.Cell {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*property.Cell, len(c.cells))
	copy(out, c.cells)
	return out
}

// Cell returns the cell at the given property id (index), or nil if out of
// range.
func (c *Controller) Cell(propID int) *property.Cell {
	c.mu.Lock()
	defer c.mu.Unlock()
	if propID < 0 || propID >= len(c.cells) {
		return nil
	}
	return c.cells[propID]
}

// CellByName looks up a cell by its descriptor's name.
func (c *Controller) CellByName(name string) (*property.Cell, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cell, ok := c.byName[name]
	return cell, ok
}

// GetDirtyProperties returns the property ids whose cells are currently
// dirty and clears their dirty flags in the same critical section, so a
// concurrent setter cannot have its mutation both reported and dropped.
func (c *Controller) GetDirtyProperties() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var dirty []int
	for i, cell := range c.cells {
		if cell.Dirty() {
			dirty = append(dirty, i)
			cell.ClearDirty()
		}
	}
	return dirty
}
