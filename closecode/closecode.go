// Package closecode enumerates the WebSocket close codes the signaling core
// reacts to and emits, per spec §4.8, plus the one code the underlying
// transport library can report that spec.md itself does not define
// (SubprotocolError — see SPEC_FULL.md's supplemented-features list, taken
// from the original Java client's CloseCode constants).
package closecode

// Code is a WebSocket close code understood by the signaling core.
type Code int

const (
	// ClosingNormal is a regular, application-initiated close.
	ClosingNormal Code = 1000
	// GoingAway indicates the server is shutting down.
	GoingAway Code = 1001
	// ProtocolErrorTransport is the generic WebSocket-layer protocol
	// error code (distinct from SaltyRTC's own ProtocolError, 3001).
	ProtocolErrorTransport Code = 1002
	// SubprotocolError means no shared subprotocol could be negotiated
	// with the server (transport-reported, not part of the SaltyRTC
	// close-code range, but the original client reacts to it the same
	// way it reacts to a fatal handshake failure: state -> ERROR).
	SubprotocolError Code = 1003
	// Abnormal is a transport-only code: the connection dropped without
	// a close frame. The core never sends it.
	Abnormal Code = 1006

	// PathFull means the relay has no free responder slot left.
	PathFull Code = 3000
	// ProtocolError is SaltyRTC's own protocol-violation code.
	ProtocolError Code = 3001
	// InternalError marks a local invariant violation (spec §7).
	InternalError Code = 3002
	// Handover marks a deliberate transition off the WebSocket channel
	// onto a data channel; the signaling state must not become CLOSED
	// on this code (spec §9, design note 3 / open question 3).
	Handover Code = 3003
	// DroppedByInitiator is sent to every responder but the one that won
	// the peer handshake race.
	DroppedByInitiator Code = 3004
	// InitiatorCouldNotDecrypt reports a first-key decryption failure
	// during the peer handshake.
	InitiatorCouldNotDecrypt Code = 3005
	// NoSharedTask means the two peers advertised no common task name.
	NoSharedTask Code = 3006
)

func (c Code) String() string {
	switch c {
	case ClosingNormal:
		return "CLOSING_NORMAL"
	case GoingAway:
		return "GOING_AWAY"
	case ProtocolErrorTransport:
		return "PROTOCOL_ERROR (transport)"
	case SubprotocolError:
		return "SUBPROTOCOL_ERROR"
	case Abnormal:
		return "ABNORMAL"
	case PathFull:
		return "PATH_FULL"
	case ProtocolError:
		return "PROTOCOL_ERROR"
	case InternalError:
		return "INTERNAL_ERROR"
	case Handover:
		return "HANDOVER"
	case DroppedByInitiator:
		return "DROPPED_BY_INITIATOR"
	case InitiatorCouldNotDecrypt:
		return "INITIATOR_COULD_NOT_DECRYPT"
	case NoSharedTask:
		return "NO_SHARED_TASK"
	default:
		return "UNKNOWN"
	}
}

// IsHandover reports whether resetConnection must skip the terminal CLOSED
// transition and instead hand the signaling state over to the data channel
// (spec §9 open question 3).
func (c Code) IsHandover() bool {
	return c == Handover
}
