package signaling

import (
	"bytes"

	"github.com/ipoluianov/gomisc/logger"

	"github.com/saltyrtc/saltyrtc-go/crypto"
	"github.com/saltyrtc/saltyrtc-go/message"
	"github.com/saltyrtc/saltyrtc-go/nonce"
	"github.com/saltyrtc/saltyrtc-go/peer"
)

// addResponderCandidate creates a NEW-state responder record for a
// candidate address, ignoring duplicates (spec §4.6).
func (s *Signaling) addResponderCandidate(addr peer.Address) {
	if _, exists := s.responders[addr]; exists {
		return
	}
	rp, err := peer.NewResponderPeer(addr)
	if err != nil {
		logger.Println("signaling: rejected responder candidate:", err)
		return
	}
	s.responders[addr] = rp
}

// handleResponderFrame dispatches an inbound responder frame by that
// responder's current sub-state (spec §4.6).
//
// Trust-on-first-use note: a pre-trusted responder's permanent key is not
// knowable from its address alone (unlike the initiator, which is
// path-pinned), so this implementation always accepts a token first and
// only then checks it against TrustedResponderKeys, rejecting it if the
// revealed key turns out to be pre-trusted (spec §4.6 says the opposite
// direction — reject the token before it is read — which is not possible
// without already knowing who is on the other end; see DESIGN.md).
func (s *Signaling) handleResponderFrame(addr peer.Address, n nonce.Nonce, body []byte) error {
	rp, ok := s.responders[addr]
	if !ok {
		return &ProtocolError{Reason: "frame from unknown responder address"}
	}
	switch rp.State {
	case peer.ResponderNew:
		return s.handleResponderToken(rp, n, body)
	case peer.ResponderTokenReceived:
		return s.handleResponderKey(rp, n, body)
	case peer.ResponderKeyReceived:
		return s.handleResponderAuth(addr, rp, n, body)
	default:
		return &ProtocolError{Reason: "unexpected responder frame in sub-state " + rp.State.String()}
	}
}

func (s *Signaling) handleResponderToken(rp *peer.ResponderPeer, n nonce.Nonce, ciphertext []byte) error {
	if err := s.checkIncomingNonce(n, &rp.Record, rp.Address); err != nil {
		return err
	}
	if s.authToken == nil {
		return &InternalError{Reason: "no auth token configured to open responder token"}
	}
	plain, err := s.openAuthTokenLocked(n, ciphertext)
	if err != nil {
		return err
	}
	msg, err := message.Decode(plain)
	if err != nil {
		return err
	}
	tokenMsg, ok := msg.(*message.Token)
	if !ok {
		return &ProtocolError{Reason: "expected token from responder"}
	}
	var permanent [32]byte
	copy(permanent[:], tokenMsg.Key)
	if s.cfg.isResponderTrusted(permanent) {
		return &ProtocolError{Reason: "pre-trusted responder must not send token"}
	}
	s.respPerm[rp.Address] = permanent
	rp.PermanentSharedKey = s.cfg.PermanentKey.SharedKeyWith(permanent)
	rp.State = peer.ResponderTokenReceived
	return nil
}

func (s *Signaling) handleResponderKey(rp *peer.ResponderPeer, n nonce.Nonce, ciphertext []byte) error {
	if err := s.checkIncomingNonce(n, &rp.Record, rp.Address); err != nil {
		return err
	}
	plain, err := s.openPeerPermanentLocked(&rp.Record, n, ciphertext)
	if err != nil {
		return err
	}
	msg, err := message.Decode(plain)
	if err != nil {
		return err
	}
	keyMsg, ok := msg.(*message.Key)
	if !ok {
		return &ProtocolError{Reason: "expected key from responder"}
	}

	if s.sessionKeys == nil {
		sk, err := crypto.NewKeyStore()
		if err != nil {
			return &InternalError{Reason: err.Error()}
		}
		s.sessionKeys = sk
	}
	var theirSessionKey [32]byte
	copy(theirSessionKey[:], keyMsg.Key)
	rp.SessionSharedKey = s.sessionKeys.SharedKeyWith(theirSessionKey)

	replyKey := message.NewKey(pubKeySlice(s.sessionKeys.PublicKey()))
	if err := s.sendPeerPermanentLocked(&rp.Record, rp.Address, replyKey); err != nil {
		return err
	}
	rp.State = peer.ResponderKeyReceived
	return nil
}

func (s *Signaling) handleResponderAuth(addr peer.Address, rp *peer.ResponderPeer, n nonce.Nonce, ciphertext []byte) error {
	if err := s.checkIncomingNonce(n, &rp.Record, rp.Address); err != nil {
		return err
	}
	plain, err := s.openPeerSessionLocked(&rp.Record, n, ciphertext)
	if err != nil {
		return err
	}
	msg, err := message.Decode(plain)
	if err != nil {
		return err
	}
	authMsg, ok := msg.(*message.Auth)
	if !ok {
		return &ProtocolError{Reason: "expected auth from responder"}
	}
	if !bytes.Equal(authMsg.YourCookie, rp.Cookies.Ours.Bytes()) {
		return &ProtocolError{Reason: "auth your_cookie mismatch"}
	}
	if authMsg.FromInitiator() {
		return &ProtocolError{Reason: "responder auth must carry a task list"}
	}

	var chosenName string
	for _, candidate := range authMsg.Tasks {
		if s.findTask(candidate) != nil {
			chosenName = candidate
			break
		}
	}
	if chosenName == "" {
		return &ProtocolError{Reason: "no shared task with responder"}
	}
	chosen := s.findTask(chosenName)
	if err := chosen.Init(authMsg.Data[chosenName]); err != nil {
		return &InternalError{Reason: err.Error()}
	}

	ourData := map[string]map[string]interface{}{chosenName: chosen.Data()}
	reply := message.NewInitiatorAuth(rp.Cookies.Theirs.Bytes(), chosenName, ourData)
	if err := s.sendPeerSessionMessageLocked(&rp.Record, rp.Address, reply); err != nil {
		return err
	}

	rp.State = peer.ResponderAuthReceived
	s.selectedTask = chosen
	s.dropOtherResponders(addr)
	s.setState(StateTask)
	s.selectedTask.OnPeerHandshakeDone()
	return nil
}

// dropOtherResponders implements spec §4.6's "on first responder reaching
// AUTH_RECEIVED: drop all other responders". winner keeps its record; the
// rest are removed locally and told to leave via drop-responder.
func (s *Signaling) dropOtherResponders(winner peer.Address) {
	for addr := range s.responders {
		if addr == winner {
			continue
		}
		drop := message.NewDropResponder(byte(addr), int(0))
		if err := s.sendServerEnvelope(drop); err != nil {
			logger.Println("signaling: failed to drop responder", addr, ":", err)
		}
		delete(s.responders, addr)
		delete(s.respPerm, addr)
	}
}
