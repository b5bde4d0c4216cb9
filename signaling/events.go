package signaling

import "github.com/saltyrtc/saltyrtc-go/closecode"

// Events is a registry of per-event handler lists, invoked synchronously
// on the signaling instance's own serialization domain (spec §9's "event
// callbacks" design note). The zero value has no handlers registered and
// every On* call below is a no-op to fire.
type Events struct {
	onStateChanged   []func(State)
	onChannelChanged []func(Channel)
	onConnectionLost []func(address byte)
	onData           []func([]byte)
	onClose          []func(code closecode.Code, reason string)
}

// OnStateChanged registers a handler fired whenever the top-level
// SignalingState changes.
func (e *Events) OnStateChanged(fn func(State)) {
	e.onStateChanged = append(e.onStateChanged, fn)
}

// OnChannelChanged registers a handler fired whenever signaling traffic
// moves between the WebSocket and a data channel.
func (e *Events) OnChannelChanged(fn func(Channel)) {
	e.onChannelChanged = append(e.onChannelChanged, fn)
}

// OnConnectionLost registers a handler fired when a send-error or
// transport failure indicates the peer is unreachable.
func (e *Events) OnConnectionLost(fn func(address byte)) {
	e.onConnectionLost = append(e.onConnectionLost, fn)
}

// OnData registers a handler fired with every post-handshake task payload
// delivered to the application rather than consumed internally.
func (e *Events) OnData(fn func([]byte)) {
	e.onData = append(e.onData, fn)
}

// OnClose registers a handler fired once, when the instance closes: at the
// end of resetConnection, or when the transport reports its own close
// first.
func (e *Events) OnClose(fn func(code closecode.Code, reason string)) {
	e.onClose = append(e.onClose, fn)
}

func (e *Events) fireStateChanged(s State) {
	for _, fn := range e.onStateChanged {
		fn(s)
	}
}

func (e *Events) fireChannelChanged(c Channel) {
	for _, fn := range e.onChannelChanged {
		fn(c)
	}
}

func (e *Events) fireConnectionLost(address byte) {
	for _, fn := range e.onConnectionLost {
		fn(address)
	}
}

func (e *Events) fireData(b []byte) {
	for _, fn := range e.onData {
		fn(b)
	}
}

func (e *Events) fireClose(code closecode.Code, reason string) {
	for _, fn := range e.onClose {
		fn(code, reason)
	}
}
