package signaling

import (
	"github.com/saltyrtc/saltyrtc-go/cookie"
	"github.com/saltyrtc/saltyrtc-go/message"
	"github.com/saltyrtc/saltyrtc-go/metrics"
	"github.com/saltyrtc/saltyrtc-go/nonce"
	"github.com/saltyrtc/saltyrtc-go/peer"
)

// splitFrame separates the fixed 24-byte nonce prefix from the remainder
// of an inbound frame (spec §6's wire layout).
func splitFrame(frame []byte) (nonce.Nonce, []byte, error) {
	if len(frame) < nonce.Size {
		return nonce.Nonce{}, nil, &ProtocolError{Reason: "frame shorter than nonce"}
	}
	n, err := nonce.Decode(frame[:nonce.Size])
	if err != nil {
		return nonce.Nonce{}, nil, &ProtocolError{Reason: "invalid nonce: " + err.Error()}
	}
	return n, frame[nonce.Size:], nil
}

// nextOutgoingNonce draws the next CSN for rec and assembles the full
// outgoing nonce addressed from s.ourAddress to dest.
func (s *Signaling) nextOutgoingNonce(rec *peer.Record, dest peer.Address) (nonce.Nonce, error) {
	overflow, sequence, err := rec.Outgoing.Next()
	if err != nil {
		return nonce.Nonce{}, &InternalError{Reason: err.Error()}
	}
	return nonce.New([16]byte(rec.Cookies.Ours), byte(s.ourAddress), byte(dest), overflow, sequence), nil
}

// checkIncomingNonce validates source/destination plausibility, learns or
// confirms the peer's cookie, and validates CSN advance for an inbound
// frame addressed through rec (spec §4.1, §4.4).
func (s *Signaling) checkIncomingNonce(n nonce.Nonce, rec *peer.Record, expectSource peer.Address) error {
	if peer.Address(n.Source) != expectSource {
		return &ProtocolError{Reason: "unexpected nonce source"}
	}
	if s.ourAddress != peer.AddressUnassigned && peer.Address(n.Destination) != s.ourAddress {
		return &ProtocolError{Reason: "nonce destination does not match our address"}
	}
	theirs, err := cookie.FromBytes(n.Cookie[:])
	if err != nil {
		return &InternalError{Reason: err.Error()}
	}
	if rec.TheirsKnown() {
		if !theirs.Equal(rec.Cookies.Theirs) {
			metrics.CookieViolationsTotal.Inc()
			return &ProtocolError{Reason: "nonce cookie does not match peer's cookie"}
		}
	} else if err := rec.LearnTheirCookie(theirs); err != nil {
		metrics.CookieViolationsTotal.Inc()
		return &ProtocolError{Reason: err.Error()}
	}
	overflow, sequence := n.CSN()
	if err := rec.Incoming.Check(overflow, sequence); err != nil {
		metrics.CSNViolationsTotal.Inc()
		return &ProtocolError{Reason: err.Error()}
	}
	return nil
}

// sendCleartext builds a frame consisting of a fresh nonce and an
// unencrypted payload, for the two server-handshake exceptions spec §6
// names (server-hello inbound, client-hello outbound).
func (s *Signaling) sendCleartext(dest peer.Address, m message.Message) error {
	body, err := message.Encode(m)
	if err != nil {
		return err
	}
	n, err := s.nextOutgoingNonce(&s.server, dest)
	if err != nil {
		return err
	}
	encoded := n.Encode()
	return s.sendFrame(append(encoded[:], body...))
}

// sendServerEnvelope seals m for the server using the server permanent
// shared key (spec §4.2's "Server envelope").
func (s *Signaling) sendServerEnvelope(m message.Message) error {
	body, err := message.Encode(m)
	if err != nil {
		return err
	}
	n, err := s.nextOutgoingNonce(&s.server, peer.AddressServer)
	if err != nil {
		return err
	}
	ct := s.server.PermanentSharedKey.Encrypt(body, n.Encode())
	encoded := n.Encode()
	return s.sendFrame(append(encoded[:], ct...))
}

// sendFrame hands a fully assembled frame to the transport, wrapping any
// failure as a ConnectionError (spec §7): a transport-layer send failure is
// surfaced to the application rather than treated as a protocol violation.
func (s *Signaling) sendFrame(frame []byte) error {
	if err := s.transport.Send(frame); err != nil {
		return &ConnectionError{Reason: err.Error()}
	}
	return nil
}

// openServerEnvelope opens a server-enveloped frame body.
func (s *Signaling) openServerEnvelope(n nonce.Nonce, ciphertext []byte) ([]byte, error) {
	plain, err := s.server.PermanentSharedKey.Decrypt(ciphertext, n.Encode())
	if err != nil {
		return nil, &CryptoError{Reason: err.Error()}
	}
	return plain, nil
}

// sendPeerPermanentLocked seals m for rec using the peer-permanent
// envelope (our permanent sk, peer permanent pk).
func (s *Signaling) sendPeerPermanentLocked(rec *peer.Record, dest peer.Address, m message.Message) error {
	body, err := message.Encode(m)
	if err != nil {
		return err
	}
	n, err := s.nextOutgoingNonce(rec, dest)
	if err != nil {
		return err
	}
	ct := rec.PermanentSharedKey.Encrypt(body, n.Encode())
	encoded := n.Encode()
	return s.sendFrame(append(encoded[:], ct...))
}

// openPeerPermanentLocked opens a peer-permanent envelope. It is only ever
// used to decrypt a peer's key message, the first encrypted frame received
// from that peer, so a decrypt failure here is always the peer-side
// first-key case spec §7 gives its own close code.
func (s *Signaling) openPeerPermanentLocked(rec *peer.Record, n nonce.Nonce, ciphertext []byte) ([]byte, error) {
	plain, err := rec.PermanentSharedKey.Decrypt(ciphertext, n.Encode())
	if err != nil {
		return nil, &CryptoError{Reason: err.Error(), FirstKey: true}
	}
	return plain, nil
}

// sendPeerSessionLocked seals body (already msgpack-encoded) for rec using
// the peer-session envelope. Used both for the auth message and for every
// post-handshake application message (spec §4.2, §4.7).
func (s *Signaling) sendPeerSessionLocked(rec *peer.Record, dest peer.Address, body []byte) error {
	n, err := s.nextOutgoingNonce(rec, dest)
	if err != nil {
		return err
	}
	if rec.SessionSharedKey == nil {
		return &InternalError{Reason: "session key not established"}
	}
	ct := rec.SessionSharedKey.Encrypt(body, n.Encode())
	encoded := n.Encode()
	return s.sendFrame(append(encoded[:], ct...))
}

func (s *Signaling) sendPeerSessionMessageLocked(rec *peer.Record, dest peer.Address, m message.Message) error {
	body, err := message.Encode(m)
	if err != nil {
		return err
	}
	return s.sendPeerSessionLocked(rec, dest, body)
}

func (s *Signaling) openPeerSessionLocked(rec *peer.Record, n nonce.Nonce, ciphertext []byte) ([]byte, error) {
	if rec.SessionSharedKey == nil {
		return nil, &InternalError{Reason: "session key not established"}
	}
	plain, err := rec.SessionSharedKey.Decrypt(ciphertext, n.Encode())
	if err != nil {
		return nil, &CryptoError{Reason: err.Error()}
	}
	return plain, nil
}

// sendAuthTokenLocked seals m with the one-shot secretbox auth token (spec
// §4.2's "Auth-token envelope"), used exactly once for the responder's
// token message (spec §8 invariant 4).
func (s *Signaling) sendAuthTokenLocked(rec *peer.Record, dest peer.Address, m message.Message) error {
	body, err := message.Encode(m)
	if err != nil {
		return err
	}
	n, err := s.nextOutgoingNonce(rec, dest)
	if err != nil {
		return err
	}
	encoded := n.Encode()
	ct, err := s.authToken.Encrypt(body, encoded)
	if err != nil {
		return &InternalError{Reason: err.Error()}
	}
	return s.sendFrame(append(encoded[:], ct...))
}

func (s *Signaling) openAuthTokenLocked(n nonce.Nonce, ciphertext []byte) ([]byte, error) {
	plain, err := s.authToken.Decrypt(ciphertext, n.Encode())
	if err != nil {
		return nil, &CryptoError{Reason: err.Error()}
	}
	return plain, nil
}
