// Package message defines the SaltyRTC signaling message catalog (spec
// §4.3): every typed message that travels in a signaling frame, its field
// validation rules, and the self-describing msgpack codec used to move
// between wire bytes and Go structs. Grounded in snsinfu-udp-puncher's
// proto.ClientHello/ServerHello/Entry pattern (msgpack-tagged structs with a
// discriminator field), generalized to the full SaltyRTC catalog — the
// original Java MessageReader only covered server-hello/server-auth, which
// spec.md calls out as a bug this rewrite must not repeat.
package message

import "fmt"

// Type names as they appear on the wire, in the "type" field.
const (
	TypeServerHello   = "server-hello"
	TypeClientHello   = "client-hello"
	TypeClientAuth    = "client-auth"
	TypeServerAuth    = "server-auth"
	TypeNewInitiator  = "new-initiator"
	TypeNewResponder  = "new-responder"
	TypeSendError     = "send-error"
	TypeDisconnected  = "disconnected"
	TypeToken         = "token"
	TypeKey           = "key"
	TypeAuth          = "auth"
	TypeDropResponder = "drop-responder"
)

// Message is implemented by every struct in the catalog.
type Message interface {
	// Type returns the message's wire type string.
	Type() string
	// Validate checks field presence, lengths and ranges per spec §4.3.
	// It returns a *ValidationError on any violation.
	Validate() error
}

// ValidationError reports a malformed message field. The signaling layer
// treats any ValidationError as fatal: close PROTOCOL_ERROR (spec §7).
type ValidationError struct {
	Type   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("message: %s", e.Reason)
	}
	return fmt.Sprintf("message %q: %s", e.Type, e.Reason)
}

func newValidationError(msgType, reason string) *ValidationError {
	return &ValidationError{Type: msgType, Reason: reason}
}

func validateKeyField(msgType, field string, b []byte) error {
	if len(b) != 32 {
		return newValidationError(msgType, fmt.Sprintf("%s must be 32 bytes, got %d", field, len(b)))
	}
	return nil
}

func validateCookieField(msgType, field string, b []byte) error {
	if len(b) != 16 {
		return newValidationError(msgType, fmt.Sprintf("%s must be 16 bytes, got %d", field, len(b)))
	}
	return nil
}

// ServerHello is sent by the server immediately on connect: S -> C.
type ServerHello struct {
	MsgType string `msgpack:"type"`
	Key     []byte `msgpack:"key"`
}

func NewServerHello(key []byte) *ServerHello {
	return &ServerHello{MsgType: TypeServerHello, Key: key}
}

func (m *ServerHello) Type() string { return TypeServerHello }

func (m *ServerHello) Validate() error {
	return validateKeyField(TypeServerHello, "key", m.Key)
}

// ClientHello is sent by the responder only, carrying its permanent public
// key so the server can relay new-responder notices to the initiator: R -> S.
type ClientHello struct {
	MsgType string `msgpack:"type"`
	Key     []byte `msgpack:"key"`
}

func NewClientHello(key []byte) *ClientHello {
	return &ClientHello{MsgType: TypeClientHello, Key: key}
}

func (m *ClientHello) Type() string { return TypeClientHello }

func (m *ClientHello) Validate() error {
	return validateKeyField(TypeClientHello, "key", m.Key)
}

// ClientAuth is sent by both roles to complete the server handshake: C -> S.
type ClientAuth struct {
	MsgType      string   `msgpack:"type"`
	YourCookie   []byte   `msgpack:"your_cookie"`
	Subprotocols []string `msgpack:"subprotocols,omitempty"`
	PingInterval *uint32  `msgpack:"ping_interval,omitempty"`
	YourKey      []byte   `msgpack:"your_key,omitempty"`
}

func NewClientAuth(yourCookie []byte) *ClientAuth {
	return &ClientAuth{MsgType: TypeClientAuth, YourCookie: yourCookie}
}

func (m *ClientAuth) Type() string { return TypeClientAuth }

func (m *ClientAuth) Validate() error {
	if err := validateCookieField(TypeClientAuth, "your_cookie", m.YourCookie); err != nil {
		return err
	}
	if m.YourKey != nil {
		return validateKeyField(TypeClientAuth, "your_key", m.YourKey)
	}
	return nil
}

// ServerAuth is sent by the server to complete the handshake. Its shape
// differs by receiver role (spec §4.3): the initiator gets `responders`,
// the responder gets `initiator_connected`. Both are represented by one
// struct with optional fields so a single msgpack decode covers either.
type ServerAuth struct {
	MsgType            string `msgpack:"type"`
	YourCookie         []byte `msgpack:"your_cookie"`
	Responders         []byte `msgpack:"responders,omitempty"`
	InitiatorConnected *bool  `msgpack:"initiator_connected,omitempty"`
	SignedKeys         []byte `msgpack:"signed_keys,omitempty"`
}

func (m *ServerAuth) Type() string { return TypeServerAuth }

// ForInitiator reports whether this ServerAuth is the initiator-shaped
// variant (carries `responders`).
func (m *ServerAuth) ForInitiator() bool { return m.Responders != nil }

// ForResponder reports whether this ServerAuth is the responder-shaped
// variant (carries `initiator_connected`).
func (m *ServerAuth) ForResponder() bool { return m.InitiatorConnected != nil }

func (m *ServerAuth) Validate() error {
	if err := validateCookieField(TypeServerAuth, "your_cookie", m.YourCookie); err != nil {
		return err
	}
	if m.ForInitiator() == m.ForResponder() {
		return newValidationError(TypeServerAuth, "exactly one of responders/initiator_connected must be present")
	}
	for _, id := range m.Responders {
		if id < 0x02 {
			return newValidationError(TypeServerAuth, "responder id out of range")
		}
	}
	return nil
}

// NewInitiator is a server push notifying a responder that the initiator
// (re)connected: S -> R.
type NewInitiator struct {
	MsgType string `msgpack:"type"`
}

func NewNewInitiator() *NewInitiator { return &NewInitiator{MsgType: TypeNewInitiator} }

func (m *NewInitiator) Type() string    { return TypeNewInitiator }
func (m *NewInitiator) Validate() error { return nil }

// NewResponder is a server push notifying the initiator that a responder
// connected: S -> I.
type NewResponder struct {
	MsgType string `msgpack:"type"`
	ID      byte   `msgpack:"id"`
}

func NewNewResponder(id byte) *NewResponder {
	return &NewResponder{MsgType: TypeNewResponder, ID: id}
}

func (m *NewResponder) Type() string { return TypeNewResponder }

func (m *NewResponder) Validate() error {
	if m.ID < 0x02 {
		return newValidationError(TypeNewResponder, "id must be in 0x02..0xff")
	}
	return nil
}

// SendError is a server push reporting that a relayed frame could not be
// delivered: S -> C.
type SendError struct {
	MsgType string `msgpack:"type"`
	ID      []byte `msgpack:"id"`
}

func (m *SendError) Type() string { return TypeSendError }

func (m *SendError) Validate() error {
	if len(m.ID) == 0 {
		return newValidationError(TypeSendError, "id must not be empty")
	}
	return nil
}

// Disconnected is a server push reporting that a peer disconnected: S -> C.
type Disconnected struct {
	MsgType string `msgpack:"type"`
	ID      byte   `msgpack:"id"`
}

func (m *Disconnected) Type() string    { return TypeDisconnected }
func (m *Disconnected) Validate() error { return nil }

// Token carries the responder's permanent public key, sealed with the
// auth-token secretbox when the initiator does not already trust it: R -> I.
type Token struct {
	MsgType string `msgpack:"type"`
	Key     []byte `msgpack:"key"`
}

func NewToken(key []byte) *Token { return &Token{MsgType: TypeToken, Key: key} }

func (m *Token) Type() string { return TypeToken }

func (m *Token) Validate() error {
	return validateKeyField(TypeToken, "key", m.Key)
}

// Key carries an ephemeral session public key, exchanged in both
// directions during the peer handshake.
type Key struct {
	MsgType string `msgpack:"type"`
	Key     []byte `msgpack:"key"`
}

func NewKey(key []byte) *Key { return &Key{MsgType: TypeKey, Key: key} }

func (m *Key) Type() string { return TypeKey }

func (m *Key) Validate() error {
	return validateKeyField(TypeKey, "key", m.Key)
}

// Auth completes the peer handshake. The initiator's variant advertises a
// single chosen `task`; the responder's variant advertises an ordered
// `tasks` list. Both carry per-task `data`.
type Auth struct {
	MsgType    string                            `msgpack:"type"`
	YourCookie []byte                            `msgpack:"your_cookie"`
	Task       string                            `msgpack:"task,omitempty"`
	Tasks      []string                          `msgpack:"tasks,omitempty"`
	Data       map[string]map[string]interface{} `msgpack:"data"`
}

func NewInitiatorAuth(yourCookie []byte, task string, data map[string]map[string]interface{}) *Auth {
	return &Auth{MsgType: TypeAuth, YourCookie: yourCookie, Task: task, Data: data}
}

func NewResponderAuth(yourCookie []byte, tasks []string, data map[string]map[string]interface{}) *Auth {
	return &Auth{MsgType: TypeAuth, YourCookie: yourCookie, Tasks: tasks, Data: data}
}

func (m *Auth) Type() string { return TypeAuth }

// FromInitiator reports whether this Auth names a single chosen task
// (the shape sent by the initiator) rather than a candidate list.
func (m *Auth) FromInitiator() bool { return m.Task != "" }

func (m *Auth) Validate() error {
	if err := validateCookieField(TypeAuth, "your_cookie", m.YourCookie); err != nil {
		return err
	}
	if (m.Task == "") == (len(m.Tasks) == 0) {
		return newValidationError(TypeAuth, "exactly one of task/tasks must be present")
	}
	return nil
}

// DropResponder is sent by the initiator once a peer handshake with one
// responder completes, to reject every other candidate still in flight:
// I -> S. Not present in the original client's MessageReader; the reference server
// implementation accepts an optional numeric reason echoed as a close
// code to the dropped responder.
type DropResponder struct {
	MsgType string `msgpack:"type"`
	ID      byte   `msgpack:"id"`
	Reason  *int   `msgpack:"reason,omitempty"`
}

func NewDropResponder(id byte, reason int) *DropResponder {
	return &DropResponder{MsgType: TypeDropResponder, ID: id, Reason: &reason}
}

func (m *DropResponder) Type() string { return TypeDropResponder }

func (m *DropResponder) Validate() error {
	if m.ID < 0x02 {
		return newValidationError(TypeDropResponder, "id must be in 0x02..0xff")
	}
	return nil
}

// Raw is the catch-all for opaque, post-handshake application messages
// forwarded verbatim to the negotiated task (spec §4.7). Its only
// structural requirement is a "type" field; everything else is
// task-defined and passed through unexamined.
type Raw map[string]interface{}

// Type extracts the "type" field. Callers only reach a Raw after the
// generic decode step has already verified it is a string; Validate
// rejects an empty one.
func (m Raw) Type() string {
	t, _ := m["type"].(string)
	return t
}

func (m Raw) Validate() error {
	if m.Type() == "" {
		return newValidationError("", `missing or non-string "type" field`)
	}
	return nil
}
