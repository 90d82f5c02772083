// Package event implements the subscriber fan-out used to publish the
// engine's client and server event kinds to application code: a map from
// event kind to a list of subscriber callbacks guarded by one mutex,
// firing synchronously.
package event

import "sync"

// Bus maps event kinds of type K to subscriber callbacks of type V. Calls
// fire synchronously while the bus's lock is held; a handler that mutates
// the same Bus (subscribing or unsubscribing reentrantly) will deadlock.
type Bus[K comparable, V any] struct {
	mu          sync.Mutex
	subscribers map[K][]V
	nextToken   int
	tokens      map[K][]int
}

// NewBus creates an empty event bus.
func NewBus[K comparable, V any]() *Bus[K, V] {
	return &Bus[K, V]{
		subscribers: make(map[K][]V),
		tokens:      make(map[K][]int),
	}
}

// Subscribe registers callback for the given event kind and returns a token
// that Unsubscribe can use to remove it.
func (b *Bus[K, V]) Subscribe(kind K, callback V) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextToken++
	token := b.nextToken
	b.subscribers[kind] = append(b.subscribers[kind], callback)
	b.tokens[kind] = append(b.tokens[kind], token)
	return token
}

// Unsubscribe removes the subscription identified by token for the given
// event kind. It is a no-op if the token is unknown.
func (b *Bus[K, V]) Unsubscribe(kind K, token int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	toks := b.tokens[kind]
	for i, t := range toks {
		if t == token {
			b.tokens[kind] = append(toks[:i], toks[i+1:]...)
			subs := b.subscribers[kind]
			b.subscribers[kind] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish invokes fn with every subscriber callback currently registered
// for kind, in subscription order, under the bus's lock.
func (b *Bus[K, V]) Publish(kind K, fn func(callback V)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cb := range b.subscribers[kind] {
		fn(cb)
	}
}

// Count returns the number of subscribers registered for kind.
func (b *Bus[K, V]) Count(kind K) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[kind])
}
