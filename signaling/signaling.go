package signaling

import (
	"sync"

	"github.com/saltyrtc/saltyrtc-go/closecode"
	"github.com/saltyrtc/saltyrtc-go/cookie"
	"github.com/saltyrtc/saltyrtc-go/crypto"
	"github.com/saltyrtc/saltyrtc-go/message"
	"github.com/saltyrtc/saltyrtc-go/metrics"
	"github.com/saltyrtc/saltyrtc-go/peer"
	"github.com/saltyrtc/saltyrtc-go/task"
	"github.com/saltyrtc/saltyrtc-go/transport"

	"github.com/ipoluianov/gomisc/logger"
)

// Signaling is the single state machine described in spec §4: it owns the
// transport, every key context, every peer record and every CSN, and is
// the sole mutator of all of them (spec §5's single-logical-lock
// requirement, spec §9's "mutable shared state" note). It is not safe to
// call from multiple goroutines without the transport already serializing
// delivery into Signaling's own mtx, which every exported method takes.
type Signaling struct {
	mtx sync.Mutex

	cfg       Config
	transport transport.Transport
	events    Events

	state       State
	serverState ServerHandshakeState

	ourAddress peer.Address
	server     peer.Record
	serverKey  [32]byte

	sessionKeys *crypto.KeyStore
	authToken   *crypto.AuthToken

	ingress *IngressLimiter

	// Responder role.
	initiator          *peer.InitiatorPeer
	initiatorPermanent [32]byte

	// Initiator role.
	responders map[peer.Address]*peer.ResponderPeer
	respPerm   map[peer.Address][32]byte

	selectedTask task.Task
}

// New constructs a Signaling instance in state NEW. The caller must call
// Attach once a transport is available to begin the server handshake.
func New(cfg Config) (*Signaling, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Signaling{
		cfg:        cfg,
		state:      StateNew,
		ourAddress: peer.AddressUnassigned,
		responders: make(map[peer.Address]*peer.ResponderPeer),
		respPerm:   make(map[peer.Address][32]byte),
	}
	if cfg.Role == RoleResponder {
		switch {
		case cfg.InitiatorTrustedKey != nil:
			s.initiatorPermanent = *cfg.InitiatorTrustedKey
		case cfg.InitiatorPublicKey != nil:
			s.initiatorPermanent = *cfg.InitiatorPublicKey
		}
	}
	if cfg.AuthToken != nil {
		// Shared out-of-band between the initiator and every untrusted
		// responder it pairs with; both roles need it to encrypt/decrypt
		// the token message (spec §4.2, §4.5, §4.6).
		s.authToken = crypto.NewAuthToken(*cfg.AuthToken)
	}
	if cfg.IngressRatePerSecond > 0 {
		limiter, err := NewIngressLimiter(cfg.IngressRatePerSecond, "conn")
		if err != nil {
			return nil, &ConfigError{Reason: err.Error()}
		}
		s.ingress = limiter
	}
	return s, nil
}

// Events returns the registry used to subscribe to signaling lifecycle
// events (spec §6).
func (s *Signaling) Events() *Events { return &s.events }

// Attach wires a connected transport to this instance and begins the
// server handshake by moving to SERVER_HANDSHAKE. The caller is
// responsible for registering s as the transport's Handler before or
// immediately after calling Attach, since frames may arrive as soon as
// the transport is live.
func (s *Signaling) Attach(t transport.Transport) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.transport = t
	metrics.ConnectedPeers.Inc()
	s.setState(StateServerHandshake)
}

func (s *Signaling) setState(next State) {
	if s.state == next {
		return
	}
	s.state = next
	metrics.StateTransitionsTotal.WithLabelValues(next.String()).Inc()
	s.events.fireStateChanged(next)
}

// State returns the current top-level signaling state.
func (s *Signaling) State() State {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.state
}

// Role returns the configured role, for introspection (statusserver).
func (s *Signaling) Role() Role { return s.cfg.Role }

// OurAddress returns the address assigned by the server, or
// peer.AddressUnassigned before the server handshake completes.
func (s *Signaling) OurAddress() byte {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return byte(s.ourAddress)
}

// ResponderCount returns the number of responder candidates currently
// tracked (initiator role only; zero for a responder).
func (s *Signaling) ResponderCount() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.responders)
}

// TaskName returns the negotiated task's name, or "" before TASK state.
func (s *Signaling) TaskName() string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.selectedTask == nil {
		return ""
	}
	return s.selectedTask.Name()
}

// OnBinary implements transport.Handler. It is the single entry point for
// every inbound frame, serialized by s.mtx per spec §5.
func (s *Signaling) OnBinary(frame []byte) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.ingress != nil {
		allowed, err := s.ingress.Allow()
		if err != nil {
			s.resetConnectionLocked(closecode.InternalError, err.Error())
			return
		}
		if !allowed {
			s.resetConnectionLocked(closecode.ProtocolError, "ingress frame rate exceeded")
			return
		}
	}
	if err := s.handleFrame(frame); err != nil {
		logger.Println("signaling: frame handling failed:", err)
		if ce, ok := err.(*ConnectionError); ok {
			s.failConnectionLocked(ce.Reason)
			return
		}
		s.resetConnectionLocked(closeCodeFor(err), err.Error())
	}
}

// OnText implements transport.Handler. Per spec §4.4, any text frame is
// an unconditional protocol error.
func (s *Signaling) OnText(string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.resetConnectionLocked(closecode.ProtocolError, "text frame received")
}

// OnClose implements transport.Handler: the transport itself closed.
func (s *Signaling) OnClose(code closecode.Code, reason string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if code.IsHandover() {
		s.events.fireChannelChanged(ChannelDataChannel)
		return
	}
	if s.state == StateClosed {
		// resetConnectionLocked already closed the instance and fired
		// OnClose; the transport's own close report adds nothing.
		return
	}
	metrics.ConnectedPeers.Dec()
	s.clearSessionStateLocked()
	if code == closecode.SubprotocolError {
		s.setState(StateError)
	} else {
		s.setState(StateClosed)
	}
	if s.ingress != nil {
		_ = s.ingress.Close()
	}
	s.events.fireClose(code, reason)
}

// Disconnect is the application-initiated close: transitions to CLOSING
// immediately and aborts any pending handshake (spec §5).
func (s *Signaling) Disconnect(reason string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.resetConnectionLocked(closecode.ClosingNormal, reason)
}

// SendSignalingMessage implements task.SignalingMessageSender: the task's
// escape hatch to emit application data once TASK state is reached
// (spec §4.7).
func (s *Signaling) SendSignalingMessage(msg map[string]interface{}) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.state != StateTask {
		return &InternalError{Reason: "send_signaling_message called outside TASK state"}
	}
	err := s.sendToActivePeerLocked(msg)
	if ce, ok := err.(*ConnectionError); ok {
		s.failConnectionLocked(ce.Reason)
	}
	return err
}

func (s *Signaling) activePeerRecordLocked() (*peer.Record, peer.Address, bool) {
	if s.cfg.Role == RoleResponder {
		if s.initiator == nil {
			return nil, 0, false
		}
		return &s.initiator.Record, s.initiator.Address, true
	}
	for addr, r := range s.responders {
		if r.State == peer.ResponderAuthReceived {
			return &r.Record, addr, true
		}
	}
	return nil, 0, false
}

func (s *Signaling) sendToActivePeerLocked(payload map[string]interface{}) error {
	rec, addr, ok := s.activePeerRecordLocked()
	if !ok {
		return &InternalError{Reason: "no active peer to send to"}
	}
	data, err := message.Encode(message.Raw(payload))
	if err != nil {
		return err
	}
	return s.sendPeerSessionLocked(rec, addr, data)
}

// resetConnection implements spec §4.8. It transitions CLOSING, closes the
// transport, notifies the active task, clears all session-scoped state and
// transitions CLOSED — except on a HANDOVER code, which leaves the
// instance in place for a data-channel-backed continuation (spec §9 open
// question 3).
func (s *Signaling) resetConnectionLocked(code closecode.Code, reason string) {
	if s.state == StateClosed {
		return
	}
	if code != closecode.ClosingNormal && !code.IsHandover() {
		metrics.HandshakeFailuresTotal.WithLabelValues(code.String()).Inc()
	}
	s.setState(StateClosing)
	if s.transport != nil {
		_ = s.transport.Close(code)
	}
	if s.selectedTask != nil {
		s.selectedTask.Close(int(code))
	}
	if code.IsHandover() {
		s.clearSessionStateLocked()
		s.events.fireChannelChanged(ChannelDataChannel)
		return
	}
	s.clearSessionStateLocked()
	s.setState(StateClosed)
	metrics.ConnectedPeers.Dec()
	if s.ingress != nil {
		_ = s.ingress.Close()
	}
	s.events.fireClose(code, reason)
}

// failConnectionLocked implements spec §7's ConnectionError action: a
// transport-layer failure to send is surfaced to the application via
// OnConnectionLost rather than driven through the close-code reset path,
// and leaves the instance in ERROR rather than CLOSED.
func (s *Signaling) failConnectionLocked(reason string) {
	if s.state == StateClosed || s.state == StateError {
		return
	}
	logger.Println("signaling: connection error:", reason)
	if s.transport != nil {
		_ = s.transport.Close(closecode.InternalError)
	}
	if s.selectedTask != nil {
		s.selectedTask.Close(int(closecode.InternalError))
	}
	s.clearSessionStateLocked()
	s.setState(StateError)
	if s.ingress != nil {
		_ = s.ingress.Close()
	}
	s.events.fireConnectionLost(0)
}

func (s *Signaling) clearSessionStateLocked() {
	s.sessionKeys = nil
	s.initiator = nil
	s.responders = make(map[peer.Address]*peer.ResponderPeer)
	s.selectedTask = nil
}

// newCookieAgainst draws a fresh cookie guaranteed distinct from theirCookie
// (spec §8 invariant 3).
func newCookieAgainst(theirCookie cookie.Cookie) (cookie.Pair, error) {
	return cookie.NewPairAgainst(theirCookie)
}
