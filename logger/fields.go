package logger

// Standard field keys for structured logging across the server and client
// engines. Use these consistently instead of ad-hoc strings so operators can
// query logs by a stable attribute name regardless of which engine emitted
// them.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	KeyOperation     = "op"
	KeyPeerID        = "peer_id"
	KeyControllerID  = "controller_id"
	KeyEntityID      = "entity_id"
	KeyEntityType    = "entity_type"
	KeyPropertyID    = "property_id"
	KeyPropertyName  = "property_name"
	KeyCommand       = "command"
	KeyRPCName       = "rpc_name"
	KeyReason        = "reason"
	KeyFrameBytes    = "frame_bytes"
	KeyDirtyCount    = "dirty_count"
	KeyKnownPeers    = "known_peers"
	KeyLocalEntityID = "local_entity_id"
)
