package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JeffM2501/EntityNetwork/descriptor"
)

func nameProp(name string) descriptor.Property {
	return descriptor.Property{Name: name, Type: descriptor.String, Scope: descriptor.BidirectionalSync}
}

func TestSetPropertyInfoAllocatesFreshCells(t *testing.T) {
	c := New(1, false)
	c.SetPropertyInfo([]descriptor.Property{nameProp("Name"), nameProp("Guild")})

	cells := c.Cells()
	assert.Len(t, cells, 2)
	_, ok := c.CellByName("Name")
	assert.True(t, ok)
}

func TestSetPropertyInfoPreservesValueForMatchedName(t *testing.T) {
	c := New(1, false)
	c.SetPropertyInfo([]descriptor.Property{nameProp("Name")})
	cell, _ := c.CellByName("Name")
	cell.SetString("Alice")

	c.SetPropertyInfo([]descriptor.Property{nameProp("Name"), nameProp("Guild")})

	again, _ := c.CellByName("Name")
	assert.Same(t, cell, again)
	assert.Equal(t, "Alice", again.String())
}

func TestSetPropertyInfoDropsUnmatchedCells(t *testing.T) {
	c := New(1, false)
	c.SetPropertyInfo([]descriptor.Property{nameProp("Name"), nameProp("Guild")})
	c.SetPropertyInfo([]descriptor.Property{nameProp("Name")})

	_, ok := c.CellByName("Guild")
	assert.False(t, ok)
	assert.Len(t, c.Cells(), 1)
}

func TestGetDirtyPropertiesReadsAndClearsAtomically(t *testing.T) {
	c := New(1, false)
	c.SetPropertyInfo([]descriptor.Property{nameProp("Name"), nameProp("Guild")})
	cell, _ := c.CellByName("Name")
	cell.SetString("Bob")

	dirty := c.GetDirtyProperties()
	assert.Equal(t, []int{0}, dirty)

	assert.Empty(t, c.GetDirtyProperties())
	assert.False(t, cell.Dirty())
}

func TestIsSelfFlag(t *testing.T) {
	self := New(1, true)
	peer := New(2, false)
	assert.True(t, self.IsSelf())
	assert.False(t, peer.IsSelf())
}
