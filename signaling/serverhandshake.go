package signaling

import (
	"bytes"

	"github.com/saltyrtc/saltyrtc-go/cookie"
	"github.com/saltyrtc/saltyrtc-go/message"
	"github.com/saltyrtc/saltyrtc-go/nonce"
	"github.com/saltyrtc/saltyrtc-go/peer"
)

// handleFrame is the single dispatch point for every inbound frame,
// selected by the top-level state (spec §4).
func (s *Signaling) handleFrame(frame []byte) error {
	switch s.state {
	case StateServerHandshake:
		return s.handleServerHandshakeFrame(frame)
	case StatePeerHandshake:
		return s.handlePeerHandshakeFrame(frame)
	case StateTask:
		return s.handleTaskFrame(frame)
	default:
		return &InternalError{Reason: "frame received while in state " + s.state.String()}
	}
}

// handleServerHandshakeFrame implements spec §4.4.
func (s *Signaling) handleServerHandshakeFrame(frame []byte) error {
	n, body, err := splitFrame(frame)
	if err != nil {
		return err
	}
	if peer.Address(n.Source) != peer.AddressServer {
		return &ProtocolError{Reason: "server handshake frame from non-server source"}
	}

	switch s.serverState {
	case ServerHSNew:
		return s.handleServerHello(n, body)
	case ServerHSAuthSent:
		return s.handleServerAuth(n, body)
	default:
		return &ProtocolError{Reason: "unexpected frame in server handshake sub-state " + s.serverState.String()}
	}
}

func (s *Signaling) handleServerHello(n nonce.Nonce, body []byte) error {
	msg, err := message.Decode(body)
	if err != nil {
		return err
	}
	hello, ok := msg.(*message.ServerHello)
	if !ok {
		return &ProtocolError{Reason: "expected server-hello in sub-state NEW"}
	}
	copy(s.serverKey[:], hello.Key)

	theirCookie, err := cookie.FromBytes(n.Cookie[:])
	if err != nil {
		return &InternalError{Reason: err.Error()}
	}
	rec, err := peer.NewServerRecord(theirCookie)
	if err != nil {
		return &InternalError{Reason: err.Error()}
	}
	rec.PermanentSharedKey = s.cfg.PermanentKey.SharedKeyWith(s.serverKey)
	s.server = rec

	if err := s.checkIncomingNonce(n, &s.server, peer.AddressServer); err != nil {
		return err
	}

	if s.cfg.Role == RoleResponder {
		helloOut := message.NewClientHello(pubKeySlice(s.cfg.PermanentKey.PublicKey()))
		if err := s.sendCleartext(peer.AddressServer, helloOut); err != nil {
			return err
		}
	}
	s.serverState = ServerHSHelloSent

	authOut := message.NewClientAuth(s.server.Cookies.Theirs.Bytes())
	if err := s.sendServerEnvelope(authOut); err != nil {
		return err
	}
	s.serverState = ServerHSAuthSent
	return nil
}

func (s *Signaling) handleServerAuth(n nonce.Nonce, ciphertext []byte) error {
	if err := s.checkIncomingNonce(n, &s.server, peer.AddressServer); err != nil {
		return err
	}
	plain, err := s.openServerEnvelope(n, ciphertext)
	if err != nil {
		return err
	}
	msg, err := message.Decode(plain)
	if err != nil {
		return err
	}
	sa, ok := msg.(*message.ServerAuth)
	if !ok {
		return &ProtocolError{Reason: "expected server-auth in sub-state AUTH_SENT"}
	}
	if !bytes.Equal(sa.YourCookie, s.server.Cookies.Ours.Bytes()) {
		return &ProtocolError{Reason: "server-auth your_cookie mismatch"}
	}

	if s.cfg.ExpectedServerKey != nil {
		if err := s.verifySignedKeys(n, sa); err != nil {
			return err
		}
	}

	assigned := peer.Address(n.Destination)
	switch s.cfg.Role {
	case RoleInitiator:
		if assigned != peer.AddressInitiator || !sa.ForInitiator() {
			return &ProtocolError{Reason: "server-auth did not assign initiator address 0x01"}
		}
	case RoleResponder:
		if !assigned.IsResponder() || !sa.ForResponder() {
			return &ProtocolError{Reason: "server-auth did not assign a responder address"}
		}
	}
	s.ourAddress = assigned
	s.serverState = ServerHSDone
	s.setState(StatePeerHandshake)

	switch s.cfg.Role {
	case RoleResponder:
		if sa.InitiatorConnected != nil && *sa.InitiatorConnected {
			return s.initPeerHandshakeResponder()
		}
		return nil
	case RoleInitiator:
		for _, id := range sa.Responders {
			s.addResponderCandidate(peer.Address(id))
		}
		return nil
	}
	return nil
}

// verifySignedKeys authenticates that the server key announced in
// server-hello belongs to the pinned expected_server_key, by opening
// signed_keys as a NaCl box of server_key||our_permanent_key under the
// pinned key and the server-auth frame's own nonce (spec §4.4).
func (s *Signaling) verifySignedKeys(n nonce.Nonce, sa *message.ServerAuth) error {
	if len(sa.SignedKeys) == 0 {
		return &CryptoError{Reason: "server-auth missing signed_keys despite pinned server key"}
	}
	pinned := s.cfg.PermanentKey.SharedKeyWith(*s.cfg.ExpectedServerKey)
	plain, err := pinned.Decrypt(sa.SignedKeys, n.Encode())
	if err != nil {
		return &CryptoError{Reason: "signed_keys verification failed: " + err.Error()}
	}
	want := append(append([]byte{}, s.serverKey[:]...), pubKeySlice(s.cfg.PermanentKey.PublicKey())...)
	if !bytes.Equal(plain, want) {
		return &CryptoError{Reason: "signed_keys content mismatch"}
	}
	return nil
}

func pubKeySlice(k [32]byte) []byte {
	out := make([]byte, 32)
	copy(out, k[:])
	return out
}
