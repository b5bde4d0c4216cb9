// Package transport declares the external transport contract the signaling
// core consumes (spec §6): a binary, ordered, reliable, duplex,
// message-oriented channel. The core never depends on a concrete WebSocket
// library; it only calls Send/Close and is driven by OnBinary/OnText/OnClose
// callbacks. Modeled on the teacher's PeerTransport interface
// (xchg/peer.go), generalized from its Start/Stop lifecycle to an
// explicit Send/Close pair plus a Handler the transport drives.
package transport

import "github.com/saltyrtc/saltyrtc-go/closecode"

// Transport is the duplex channel the signaling core sends frames over and
// receives frames from. Implementations are expected to be a thin adapter
// over a WebSocket client (e.g. gorilla/websocket), kept outside this
// module per spec §1's scope boundary.
type Transport interface {
	// Send transmits one binary frame. It must preserve ordering relative
	// to other Send calls.
	Send(frame []byte) error
	// Close closes the underlying connection with the given close code.
	Close(code closecode.Code) error
}

// Handler receives events driven by a Transport. The signaling core
// implements Handler and is registered with the Transport at construction
// time by the caller wiring the two together.
type Handler interface {
	// OnBinary is invoked once per inbound binary frame, in order.
	OnBinary(frame []byte)
	// OnText is invoked for an inbound text frame. Per spec §6, text
	// frames are always a protocol error; the core's implementation
	// resets the connection with PROTOCOL_ERROR.
	OnText(text string)
	// OnClose is invoked once the transport has closed, whether
	// initiated locally or remotely.
	OnClose(code closecode.Code, reason string)
}
