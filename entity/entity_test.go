package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JeffM2501/EntityNetwork/descriptor"
	"github.com/JeffM2501/EntityNetwork/ecode"
	"github.com/JeffM2501/EntityNetwork/property"
)

func tankDesc() descriptor.Entity {
	e := descriptor.Entity{Name: "Tank", CreateScope: descriptor.ServerSync}
	e.AddProperty(descriptor.Property{Name: "Pos", Type: descriptor.Vector3F, Scope: descriptor.ServerPushSync})
	return e
}

func TestNewInstanceBuildsParallelCellList(t *testing.T) {
	inst := NewInstance(tankDesc(), 7, 3, nil)
	assert.EqualValues(t, 7, inst.ID())
	assert.EqualValues(t, 3, inst.Owner())
	assert.Len(t, inst.Cells(), 1)
}

func TestRekeyChangesID(t *testing.T) {
	inst := NewInstance(tankDesc(), -1, 3, nil)
	inst.Rekey(42)
	assert.EqualValues(t, 42, inst.ID())
}

func TestDirtyIsTrueWhenAnyCellDirty(t *testing.T) {
	inst := NewInstance(tankDesc(), 1, 1, nil)
	assert.False(t, inst.Dirty())
	inst.Cell(0).SetVector3([3]float64{1, 2, 3})
	assert.True(t, inst.Dirty())
}

func TestNotifyPropertyChangedInvokesHook(t *testing.T) {
	var gotInst *Instance
	var gotCell string
	inst := NewInstance(tankDesc(), 1, 1, func(i *Instance, c *property.Cell) {
		gotInst = i
		gotCell = c.Descriptor().Name
	})
	inst.NotifyPropertyChanged(inst.Cell(0))
	assert.Same(t, inst, gotInst)
	assert.Equal(t, "Pos", gotCell)
}

func TestKnownDatasetGetSetRoundTrip(t *testing.T) {
	ds := NewKnownDataset([]byte{0, 0})
	ds.Set(1, 5)
	assert.EqualValues(t, 5, ds.Get(1))
	assert.Equal(t, 2, ds.Len())
}

func TestKnownDatasetOutOfRangeIsZero(t *testing.T) {
	ds := NewKnownDataset([]byte{1})
	assert.EqualValues(t, 0, ds.Get(5))
}

func TestLocalIDAllocatorStartsAtNegativeOne(t *testing.T) {
	a := NewLocalIDAllocator()
	id, err := a.Allocate()
	assert.NoError(t, err)
	assert.EqualValues(t, -1, id)
}

func TestLocalIDAllocatorSkipsInUseIDs(t *testing.T) {
	a := NewLocalIDAllocator()
	first, _ := a.Allocate()
	second, _ := a.Allocate()
	assert.NotEqual(t, first, second)
}

func TestLocalIDAllocatorReleaseAllowsReuse(t *testing.T) {
	a := NewLocalIDAllocator()
	id, _ := a.Allocate()
	a.Release(id)

	a.next = -1 // force the counter back so the freed id is reachable again
	reused, err := a.Allocate()
	assert.NoError(t, err)
	assert.Equal(t, id, reused)
}

func TestLocalIDAllocatorReportsExhaustion(t *testing.T) {
	a := NewLocalIDAllocator()
	a.wrapFloor = -4 // shrink the representable range so exhaustion is reachable
	a.next = -1
	a.inUse[-1] = struct{}{}
	a.inUse[-2] = struct{}{}
	a.inUse[-3] = struct{}{}

	_, err := a.Allocate()
	assert.True(t, ecode.Is(err, ecode.LocalIDExhausted))
}
