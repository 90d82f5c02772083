// Package transport declares the boundary between the replication engine
// and whatever carries bytes between peers. The engine is transport
// agnostic by design — no concrete network implementation lives here or
// anywhere else in this module; a host application supplies one (TCP,
// WebSocket, an in-memory loopback for tests, ...).
package transport

// PeerID identifies a connection from the host transport's point of view.
// On the server it distinguishes one connected client from another; it has
// no meaning on the client, which has exactly one peer: the server.
type PeerID int64

// Inbound is one frame received from a peer, tagged with which peer sent
// it so the engine can dispatch per-controller state.
type Inbound struct {
	Peer PeerID
	Data []byte
}

// Channel is a transport surface a host can implement: submit an outbound
// frame to a specific peer (or broadcast with a Peer value the host defines
// as "all"), and drain inbound frames as they arrive. The server and client
// engines do not call it; the host moves frames between a Channel and the
// engines' Dispatch and PopOutbound methods.
type Channel interface {
	// Send enqueues a frame for delivery to peer. Implementations decide
	// buffering, backpressure, and delivery ordering per peer.
	Send(peer PeerID, frame []byte) error

	// Poll returns the next inbound frame and true, or false if none is
	// currently available. Non-blocking.
	Poll() (Inbound, bool)
}

// Disconnector is implemented by transports that can report peer loss
// asynchronously; Disconnected reports the next lost peer, and the host then
// runs the engine's removal path for it (server.Engine.RemovePeer).
type Disconnector interface {
	Disconnected() (PeerID, bool)
}
