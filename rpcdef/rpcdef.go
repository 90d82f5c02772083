// Package rpcdef manages remote-procedure-call registration and the
// deferred binding of application handlers to RPC definitions that may
// arrive from the wire before the handler is registered locally (or vice
// versa). Registration ids are dense and assigned in registration order.
package rpcdef

import (
	"sync"

	"github.com/JeffM2501/EntityNetwork/descriptor"
)

// Handler is invoked when a CallRPC frame for a bound RPC is dispatched.
// caller is the originating controller id on the server (unused/zero on
// the client); args are unpacked in descriptor order.
type Handler func(caller int64, args []descriptor.Property, values []any)

// Table owns the set of registered RPC descriptors, assigning dense
// integer ids in registration order, and the name-keyed cache of handler
// bindings — which may be attached before or after the corresponding
// descriptor is known, mirroring how descriptor definitions can arrive
// over the wire asynchronously from application registration calls.
type Table struct {
	mu       sync.Mutex
	byID     []descriptor.RPC
	byName   map[string]int
	handlers map[string]Handler
}

// NewTable creates an empty RPC table.
func NewTable() *Table {
	return &Table{byName: make(map[string]int), handlers: make(map[string]Handler)}
}

// Register validates and adds a new RPC descriptor, assigning it the next
// dense id. Returns the assigned id, or an error if the argument signature
// is invalid (descriptor.RPC.Validate).
func (t *Table) Register(name string, scope descriptor.RPCScope, args []descriptor.Property) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rpc := descriptor.RPC{ID: len(t.byID), Name: name, Scope: scope, Arguments: args}
	if err := rpc.Validate(); err != nil {
		return 0, err
	}
	t.byID = append(t.byID, rpc)
	t.byName[name] = rpc.ID
	return rpc.ID, nil
}

// ByID returns the descriptor for id, or false if unknown.
func (t *Table) ByID(id int) (descriptor.RPC, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.byID) {
		return descriptor.RPC{}, false
	}
	return t.byID[id], true
}

// ByName returns the descriptor registered under name, or false if none.
func (t *Table) ByName(name string) (descriptor.RPC, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byName[name]
	if !ok {
		return descriptor.RPC{}, false
	}
	return t.byID[id], true
}

// All returns a snapshot of every registered descriptor in id order.
func (t *Table) All() []descriptor.RPC {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]descriptor.RPC, len(t.byID))
	copy(out, t.byID)
	return out
}

// Bind attaches a handler to an RPC by name, ahead of or behind its
// descriptor's registration.
func (t *Table) Bind(name string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[name] = h
}

// Handler returns the bound handler for an RPC id, or false if no handler
// has been bound for that name yet.
func (t *Table) Handler(id int) (Handler, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.byID) {
		return nil, false
	}
	h, ok := t.handlers[t.byID[id].Name]
	return h, ok
}
