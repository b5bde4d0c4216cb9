package signaling

import "github.com/saltyrtc/saltyrtc-go/closecode"

// ProtocolError reports a violation of the state machine or framing
// contract: wrong envelope, wrong source/destination, CSN regression, or
// an unexpected message type for the current phase (spec §7).
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "signaling: protocol error: " + e.Reason }

// CryptoError reports a MAC failure or key mismatch while opening an
// envelope (spec §7). FirstKey marks the specific case of a peer's first
// key message failing to decrypt under the peer-permanent envelope, which
// spec §7 calls out with its own close code rather than the generic
// protocol-error fallback.
type CryptoError struct {
	Reason   string
	FirstKey bool
}

func (e *CryptoError) Error() string { return "signaling: crypto error: " + e.Reason }

// InvalidKeyError reports a supplied key of the wrong length, either at
// configuration time or while handling an inbound frame (spec §7).
type InvalidKeyError struct {
	Reason string
}

func (e *InvalidKeyError) Error() string { return "signaling: invalid key: " + e.Reason }

// InternalError reports an invariant violation in local state, such as a
// missing session key where one is required (spec §7).
type InternalError struct {
	Reason string
}

func (e *InternalError) Error() string { return "signaling: internal error: " + e.Reason }

// ConnectionError reports a transport-layer failure to connect or send. It
// is surfaced to the application rather than translated into a reset, and
// drives the instance into StateError (spec §7).
type ConnectionError struct {
	Reason string
}

func (e *ConnectionError) Error() string { return "signaling: connection error: " + e.Reason }

// ConfigError reports a configuration-time mistake, such as supplying both
// a trusted initiator key and an auth token (spec §4.5, scenario E3). The
// caller must fix the configuration; it is never translated into a reset.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "signaling: configuration error: " + e.Reason }

// closeCodeFor maps an error produced while handling an inbound frame or
// building an outbound packet to the close code reset_connection should
// use (spec §4.8, §7). Validation/serialization errors from the message
// package are treated the same as a ProtocolError.
func closeCodeFor(err error) closecode.Code {
	switch e := err.(type) {
	case *InternalError:
		return closecode.InternalError
	case *CryptoError:
		if e.FirstKey {
			return closecode.InitiatorCouldNotDecrypt
		}
		return closecode.ProtocolError
	default:
		return closecode.ProtocolError
	}
}
