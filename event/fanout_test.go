package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishInvokesAllSubscribers(t *testing.T) {
	bus := NewBus[string, func(int)]()
	var got []int
	bus.Subscribe("tick", func(n int) { got = append(got, n) })
	bus.Subscribe("tick", func(n int) { got = append(got, n*10) })

	bus.Publish("tick", func(cb func(int)) { cb(3) })

	assert.Equal(t, []int{3, 30}, got)
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	bus := NewBus[string, func(int)]()
	assert.NotPanics(t, func() {
		bus.Publish("nothing", func(cb func(int)) { cb(1) })
	})
}

func TestUnsubscribeRemovesOnlyThatToken(t *testing.T) {
	bus := NewBus[string, func(int)]()
	var got []int
	tokA := bus.Subscribe("tick", func(n int) { got = append(got, n) })
	bus.Subscribe("tick", func(n int) { got = append(got, n*100) })

	bus.Unsubscribe("tick", tokA)
	bus.Publish("tick", func(cb func(int)) { cb(1) })

	assert.Equal(t, []int{100}, got)
	assert.Equal(t, 1, bus.Count("tick"))
}

func TestUnsubscribeUnknownTokenIsNoop(t *testing.T) {
	bus := NewBus[string, func(int)]()
	bus.Subscribe("tick", func(int) {})
	assert.NotPanics(t, func() { bus.Unsubscribe("tick", 9999) })
	assert.Equal(t, 1, bus.Count("tick"))
}

func TestCountPerKindIsIndependent(t *testing.T) {
	bus := NewBus[string, func()]()
	bus.Subscribe("a", func() {})
	bus.Subscribe("a", func() {})
	bus.Subscribe("b", func() {})

	assert.Equal(t, 2, bus.Count("a"))
	assert.Equal(t, 1, bus.Count("b"))
	assert.Equal(t, 0, bus.Count("c"))
}
