// Package signaling implements the SaltyRTC client-side state machine: the
// server handshake, the two peer-handshake roles, post-handshake message
// dispatch, and the reset/close convergence point (spec §4). It owns the
// transport, key material, peer records and CSNs exclusively, matching the
// teacher's xchg.Peer/xchg.Router ownership model (xchg/peer.go,
// xchg/router.go: one mutex-guarded struct, no handles escape it), driven
// here by the transport.Handler callbacks instead of xchg's UDP/HTTP
// processors.
package signaling

// State is the top-level signaling state (spec §3).
type State int

const (
	StateNew State = iota
	StateWSConnecting
	StateServerHandshake
	StatePeerHandshake
	StateTask
	StateClosing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateWSConnecting:
		return "WS_CONNECTING"
	case StateServerHandshake:
		return "SERVER_HANDSHAKE"
	case StatePeerHandshake:
		return "PEER_HANDSHAKE"
	case StateTask:
		return "TASK"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ServerHandshakeState is the server-handshake sub-state (spec §3, §4.4).
type ServerHandshakeState int

const (
	ServerHSNew ServerHandshakeState = iota
	ServerHSHelloSent
	ServerHSAuthSent
	ServerHSDone
)

func (s ServerHandshakeState) String() string {
	switch s {
	case ServerHSNew:
		return "NEW"
	case ServerHSHelloSent:
		return "HELLO_SENT"
	case ServerHSAuthSent:
		return "AUTH_SENT"
	case ServerHSDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Role is the fixed role of a Signaling instance, set at construction and
// never changed (spec §9: "sum type + shared behavior" instead of
// initiator/responder subclasses).
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// Channel identifies which transport currently carries signaling traffic
// (spec §6's signaling_channel_changed event; the data channel leg itself
// is out of scope, only the event is modeled).
type Channel int

const (
	ChannelWebSocket Channel = iota
	ChannelDataChannel
)

func (c Channel) String() string {
	if c == ChannelDataChannel {
		return "data-channel"
	}
	return "websocket"
}
