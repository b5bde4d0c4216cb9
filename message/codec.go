package message

import (
	"github.com/vmihailenco/msgpack/v5"
)

// SerializationError covers codec failures: malformed msgpack, a missing or
// non-string "type" field, or an unrecognized type during a handshake phase
// (spec §4.3, §7, §8). It is always fatal: close PROTOCOL_ERROR.
type SerializationError struct {
	Reason string
}

func (e *SerializationError) Error() string { return "message: " + e.Reason }

func newSerializationError(reason string) *SerializationError {
	return &SerializationError{Reason: reason}
}

// Encode serializes a Message to msgpack bytes using the self-describing
// map codec contract (spec §6): a leading map header of known size,
// produced here by vmihailenco/msgpack's struct-tag driven encoder, the
// same library snsinfu-udp-puncher's rendezvous protocol uses for its
// ClientHello/ServerHello/Entry messages.
func Encode(m Message) ([]byte, error) {
	return msgpack.Marshal(m)
}

// peekType decodes just enough of data to read the "type" field, without
// committing to any specific message struct. It rejects non-map top-level
// values, a missing "type" key, and a non-string "type" value, per the
// codec contract in spec §6.
func peekType(data []byte) (string, error) {
	if len(data) == 0 {
		return "", newSerializationError("message does not contain a type field")
	}
	var raw map[string]interface{}
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return "", newSerializationError("deserialization failed: " + err.Error())
	}
	if raw == nil {
		return "", newSerializationError("message does not contain a type field")
	}
	typeVal, ok := raw["type"]
	if !ok {
		return "", newSerializationError("message does not contain a type field")
	}
	typeStr, ok := typeVal.(string)
	if !ok {
		return "", newSerializationError("message type must be a string")
	}
	return typeStr, nil
}

// Decode parses msgpack bytes into the concrete catalog message named by
// their "type" field, per the dispatch table in spec §4.3. An unknown type
// is a SerializationError; the caller decides whether that is fatal
// (handshake phases) or should fall through to opaque forwarding (TASK
// phase — use DecodeRaw there instead).
func Decode(data []byte) (Message, error) {
	typeStr, err := peekType(data)
	if err != nil {
		return nil, err
	}

	var target Message
	switch typeStr {
	case TypeServerHello:
		target = &ServerHello{}
	case TypeClientHello:
		target = &ClientHello{}
	case TypeClientAuth:
		target = &ClientAuth{}
	case TypeServerAuth:
		target = &ServerAuth{}
	case TypeNewInitiator:
		target = &NewInitiator{}
	case TypeNewResponder:
		target = &NewResponder{}
	case TypeSendError:
		target = &SendError{}
	case TypeDisconnected:
		target = &Disconnected{}
	case TypeToken:
		target = &Token{}
	case TypeKey:
		target = &Key{}
	case TypeAuth:
		target = &Auth{}
	case TypeDropResponder:
		target = &DropResponder{}
	default:
		return nil, newSerializationError("unknown message type: " + typeStr)
	}

	if err := msgpack.Unmarshal(data, target); err != nil {
		return nil, newSerializationError("deserialization failed: " + err.Error())
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	return target, nil
}

// DecodeRaw parses msgpack bytes into a Raw map without restricting "type"
// to the known catalog, for use once the connection has reached the TASK
// phase and unrecognized types are forwarded to the task rather than
// treated as fatal (spec §4.3, §4.7).
func DecodeRaw(data []byte) (Raw, error) {
	typeStr, err := peekType(data)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, newSerializationError("deserialization failed: " + err.Error())
	}
	raw["type"] = typeStr
	return Raw(raw), nil
}
