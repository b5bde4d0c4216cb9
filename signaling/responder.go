package signaling

import (
	"bytes"

	"github.com/saltyrtc/saltyrtc-go/closecode"
	"github.com/saltyrtc/saltyrtc-go/crypto"
	"github.com/saltyrtc/saltyrtc-go/message"
	"github.com/saltyrtc/saltyrtc-go/nonce"
	"github.com/saltyrtc/saltyrtc-go/peer"
	"github.com/saltyrtc/saltyrtc-go/task"
)

// initPeerHandshakeResponder implements spec §4.5's init_peer_handshake
// for the responder role: create the initiator record, send token (unless
// trusted) and key, per scenario E1/E2.
func (s *Signaling) initPeerHandshakeResponder() error {
	initiator, err := peer.NewInitiatorPeer()
	if err != nil {
		return &InternalError{Reason: err.Error()}
	}
	initiator.PermanentSharedKey = s.cfg.PermanentKey.SharedKeyWith(s.initiatorPermanent)
	s.initiator = initiator

	if !s.cfg.isInitiatorTrusted() {
		// Each (re)started peer handshake sends its own token message, so
		// a new-initiator rebuild gets a fresh one-shot token instance.
		s.authToken = crypto.NewAuthToken(*s.cfg.AuthToken)
		tokenMsg := message.NewToken(pubKeySlice(s.cfg.PermanentKey.PublicKey()))
		if err := s.sendAuthTokenLocked(&s.initiator.Record, peer.AddressInitiator, tokenMsg); err != nil {
			return err
		}
	}
	s.initiator.State = peer.InitiatorTokenSent

	sk, err := crypto.NewKeyStore()
	if err != nil {
		return &InternalError{Reason: err.Error()}
	}
	s.sessionKeys = sk

	keyMsg := message.NewKey(pubKeySlice(s.sessionKeys.PublicKey()))
	if err := s.sendPeerPermanentLocked(&s.initiator.Record, peer.AddressInitiator, keyMsg); err != nil {
		return err
	}
	s.initiator.State = peer.InitiatorKeySent
	return nil
}

// handlePeerHandshakeFrame routes an inbound PEER_HANDSHAKE frame to the
// role-specific handler (spec §4.5, §4.6).
func (s *Signaling) handlePeerHandshakeFrame(frame []byte) error {
	n, body, err := splitFrame(frame)
	if err != nil {
		return err
	}
	source := peer.Address(n.Source)
	if source == peer.AddressServer {
		return s.handleServerPushDuringPeerHandshake(n, body)
	}
	switch s.cfg.Role {
	case RoleResponder:
		return s.handleInitiatorFrame(n, body)
	case RoleInitiator:
		return s.handleResponderFrame(source, n, body)
	}
	return &InternalError{Reason: "unreachable role"}
}

func (s *Signaling) handleServerPushDuringPeerHandshake(n nonce.Nonce, body []byte) error {
	if err := s.checkIncomingNonce(n, &s.server, peer.AddressServer); err != nil {
		return err
	}
	plain, err := s.openServerEnvelope(n, body)
	if err != nil {
		return err
	}
	msg, err := message.Decode(plain)
	if err != nil {
		return err
	}
	switch m := msg.(type) {
	case *message.NewInitiator:
		if s.cfg.Role != RoleResponder {
			return &ProtocolError{Reason: "new-initiator received by initiator"}
		}
		return s.initPeerHandshakeResponder()
	case *message.NewResponder:
		if s.cfg.Role != RoleInitiator {
			return &ProtocolError{Reason: "new-responder received by responder"}
		}
		s.addResponderCandidate(peer.Address(m.ID))
		return nil
	case *message.SendError:
		s.events.fireConnectionLost(0)
		return &ProtocolError{Reason: "send-error during peer handshake"}
	case *message.Disconnected:
		s.events.fireConnectionLost(m.ID)
		return nil
	default:
		return &ProtocolError{Reason: "unexpected server push during peer handshake"}
	}
}

// handleInitiatorFrame dispatches an inbound initiator frame by the
// responder's current sub-state (spec §4.5).
func (s *Signaling) handleInitiatorFrame(n nonce.Nonce, body []byte) error {
	if s.initiator == nil {
		return &ProtocolError{Reason: "frame from initiator before peer handshake started"}
	}
	switch s.initiator.State {
	case peer.InitiatorTokenSent, peer.InitiatorKeySent:
		return s.handleInitiatorKey(n, body)
	case peer.InitiatorAuthSent:
		return s.handleInitiatorAuth(n, body)
	default:
		return &ProtocolError{Reason: "unexpected initiator frame in sub-state " + s.initiator.State.String()}
	}
}

func (s *Signaling) handleInitiatorKey(n nonce.Nonce, ciphertext []byte) error {
	if err := s.checkIncomingNonce(n, &s.initiator.Record, peer.AddressInitiator); err != nil {
		return err
	}
	plain, err := s.openPeerPermanentLocked(&s.initiator.Record, n, ciphertext)
	if err != nil {
		return err
	}
	msg, err := message.Decode(plain)
	if err != nil {
		return err
	}
	keyMsg, ok := msg.(*message.Key)
	if !ok {
		return &ProtocolError{Reason: "expected key from initiator"}
	}
	var theirSessionKey [32]byte
	copy(theirSessionKey[:], keyMsg.Key)
	s.initiator.SessionSharedKey = s.sessionKeys.SharedKeyWith(theirSessionKey)
	s.initiator.State = peer.InitiatorKeyReceived

	tasks := make(map[string]map[string]interface{}, len(s.cfg.Tasks))
	names := make([]string, 0, len(s.cfg.Tasks))
	for _, t := range s.cfg.Tasks {
		tasks[t.Name()] = t.Data()
		names = append(names, t.Name())
	}
	authMsg := message.NewResponderAuth(s.initiator.Cookies.Theirs.Bytes(), names, tasks)
	if err := s.sendPeerSessionMessageLocked(&s.initiator.Record, peer.AddressInitiator, authMsg); err != nil {
		return err
	}
	s.initiator.State = peer.InitiatorAuthSent
	return nil
}

func (s *Signaling) handleInitiatorAuth(n nonce.Nonce, ciphertext []byte) error {
	if err := s.checkIncomingNonce(n, &s.initiator.Record, peer.AddressInitiator); err != nil {
		return err
	}
	plain, err := s.openPeerSessionLocked(&s.initiator.Record, n, ciphertext)
	if err != nil {
		return err
	}
	msg, err := message.Decode(plain)
	if err != nil {
		return err
	}
	authMsg, ok := msg.(*message.Auth)
	if !ok {
		return &ProtocolError{Reason: "expected auth from initiator"}
	}
	if !bytes.Equal(authMsg.YourCookie, s.initiator.Cookies.Ours.Bytes()) {
		return &ProtocolError{Reason: "auth your_cookie mismatch"}
	}
	if !authMsg.FromInitiator() {
		return &ProtocolError{Reason: "initiator auth must carry a single task"}
	}
	chosen := s.findTask(authMsg.Task)
	if chosen == nil {
		s.resetConnectionLocked(closecode.NoSharedTask, "initiator chose a task we do not support")
		return nil
	}
	if err := chosen.Init(authMsg.Data[authMsg.Task]); err != nil {
		return &InternalError{Reason: err.Error()}
	}
	s.selectedTask = chosen
	s.initiator.State = peer.InitiatorAuthReceived
	s.initiator.Connected = true
	s.setState(StateTask)
	s.selectedTask.OnPeerHandshakeDone()
	return nil
}

func (s *Signaling) findTask(name string) task.Task {
	for _, t := range s.cfg.Tasks {
		if t.Name() == name {
			return t
		}
	}
	return nil
}
