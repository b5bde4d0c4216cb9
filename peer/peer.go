// Package peer holds the per-connection state records a signaling instance
// keeps about itself and its counterpart: addresses, cookie pairs, CSN
// trackers and key caches (spec §3). It mirrors the teacher's xchg.Peer
// struct (xchg/peer.go) — a mutex-free record owned exclusively by its
// caller, mutated in place rather than replaced — generalized from xchg's
// RSA/AES peer identity to SaltyRTC's three NaCl key contexts and explicit
// handshake sub-states.
package peer

import (
	"github.com/saltyrtc/saltyrtc-go/cookie"
	"github.com/saltyrtc/saltyrtc-go/crypto"
	"github.com/saltyrtc/saltyrtc-go/nonce"
)

// Address identifies a signaling party on the wire (spec §3).
type Address byte

const (
	// AddressServer is the relay server's fixed address.
	AddressServer Address = 0x00
	// AddressInitiator is the initiator's fixed address.
	AddressInitiator Address = 0x01
	// AddressResponderMin is the first address in the responder range.
	AddressResponderMin Address = 0x02
	// AddressUnassigned marks an address not yet handed out by the server.
	AddressUnassigned Address = 0x00
)

// IsResponder reports whether a is in the responder slot range.
func (a Address) IsResponder() bool { return a >= AddressResponderMin }

// Record holds the fields common to every peer a signaling instance
// tracks: its own assigned address, the cookie pair with that peer, CSN
// bookkeeping in both directions, and cached key material. The zero value
// is not usable; construct with NewServerRecord, or through
// NewInitiatorPeer/NewResponderPeer.
//
// Theirs is learned two different ways depending on who speaks first. The
// server always speaks first (server-hello), so its cookie is known before
// we choose ours, and NewServerRecord draws ours guaranteed distinct from
// it immediately. For a peer, whichever side sends the first peer-
// handshake message must choose its own cookie blind; newRecord leaves
// Theirs unset and LearnTheirCookie fills it in (and checks the invariant)
// on the first inbound frame from that peer.
type Record struct {
	Address Address

	Cookies     cookie.Pair
	theirsKnown bool
	Outgoing    *nonce.CombinedSequence
	Incoming    nonce.IncomingTracker

	// PermanentSharedKey caches the box precomputation between our
	// permanent key and this peer's permanent key, once known.
	PermanentSharedKey *crypto.SharedKeyStore
	// SessionSharedKey caches the box precomputation between our session
	// key and this peer's session key. Present only from KEY_RECEIVED
	// onward (spec §3's "Session keys exist only between PEER_HANDSHAKE
	// and CLOSED").
	SessionSharedKey *crypto.SharedKeyStore
}

// ErrCookieCollision is returned by LearnTheirCookie when the peer's
// cookie equals the one we already committed to using (spec §8 invariant
// 3); unlike the server case, a peer-record collision cannot be resolved
// by re-drawing since our cookie is already in flight, so the connection
// must be aborted instead.
var ErrCookieCollision = cookie.ErrCookieCollision

// LearnTheirCookie records the peer's cookie the first time it is observed
// on an inbound frame, and rejects it if it collides with our own.
func (r *Record) LearnTheirCookie(theirs cookie.Cookie) error {
	if r.theirsKnown {
		return nil
	}
	if theirs.Equal(r.Cookies.Ours) {
		return ErrCookieCollision
	}
	r.Cookies.Theirs = theirs
	r.theirsKnown = true
	return nil
}

// TheirsKnown reports whether a cookie has been learned from the peer yet.
func (r *Record) TheirsKnown() bool { return r.theirsKnown }

// newRecord draws our own cookie and outgoing CSN blind, before anything
// is known about the counterpart. Shared by InitiatorPeer and
// ResponderPeer constructors.
func newRecord(address Address) (Record, error) {
	ours, err := cookie.New()
	if err != nil {
		return Record{}, err
	}
	outgoing, err := nonce.NewCombinedSequence()
	if err != nil {
		return Record{}, err
	}
	return Record{
		Address:  address,
		Cookies:  cookie.Pair{Ours: ours},
		Outgoing: outgoing,
	}, nil
}

// NewServerRecord builds the record a signaling instance keeps about its
// relay server connection, paired against the server-assigned cookie
// carried by the inbound server-hello nonce (spec §4.4). Unlike a peer
// record, the server's cookie is already known at construction time, so
// our own is drawn guaranteed distinct from it rather than learned later.
func NewServerRecord(theirCookie cookie.Cookie) (Record, error) {
	pair, err := cookie.NewPairAgainst(theirCookie)
	if err != nil {
		return Record{}, err
	}
	outgoing, err := nonce.NewCombinedSequence()
	if err != nil {
		return Record{}, err
	}
	return Record{
		Address:     AddressServer,
		Cookies:     pair,
		theirsKnown: true,
		Outgoing:    outgoing,
	}, nil
}

// InitiatorHandshakeState enumerates the sub-states a responder tracks for
// the initiator it is handshaking with (spec §3).
type InitiatorHandshakeState int

const (
	InitiatorNew InitiatorHandshakeState = iota
	InitiatorTokenSent
	InitiatorKeySent
	InitiatorKeyReceived
	InitiatorAuthSent
	InitiatorAuthReceived
)

func (s InitiatorHandshakeState) String() string {
	switch s {
	case InitiatorNew:
		return "NEW"
	case InitiatorTokenSent:
		return "TOKEN_SENT"
	case InitiatorKeySent:
		return "KEY_SENT"
	case InitiatorKeyReceived:
		return "KEY_RECEIVED"
	case InitiatorAuthSent:
		return "AUTH_SENT"
	case InitiatorAuthReceived:
		return "AUTH_RECEIVED"
	default:
		return "UNKNOWN"
	}
}

// InitiatorPeer is the record a responder keeps about the initiator it is
// paired with through the relay. Exactly one exists per responder
// connection, created on first reference (spec §3's "created on first
// reference").
type InitiatorPeer struct {
	Record
	State     InitiatorHandshakeState
	Connected bool
}

// NewInitiatorPeer builds the responder's view of the initiator, fixed at
// AddressInitiator. Our own cookie is drawn immediately; the initiator's
// cookie is learned from its first inbound peer-handshake frame.
func NewInitiatorPeer() (*InitiatorPeer, error) {
	rec, err := newRecord(AddressInitiator)
	if err != nil {
		return nil, err
	}
	return &InitiatorPeer{Record: rec, State: InitiatorNew}, nil
}

// ResponderHandshakeState enumerates the sub-states an initiator tracks for
// each responder attempting a peer handshake (spec §3).
type ResponderHandshakeState int

const (
	ResponderNew ResponderHandshakeState = iota
	ResponderTokenReceived
	ResponderKeyReceived
	ResponderAuthReceived
)

func (s ResponderHandshakeState) String() string {
	switch s {
	case ResponderNew:
		return "NEW"
	case ResponderTokenReceived:
		return "TOKEN_RECEIVED"
	case ResponderKeyReceived:
		return "KEY_RECEIVED"
	case ResponderAuthReceived:
		return "AUTH_RECEIVED"
	default:
		return "UNKNOWN"
	}
}

// ResponderPeer is the record an initiator keeps about one candidate
// responder. The initiator may track several concurrently (one per address
// in 0x02..0xff) but at most one may ever reach ResponderAuthReceived
// (spec §3).
type ResponderPeer struct {
	Record
	State ResponderHandshakeState
}

// NewResponderPeer builds the initiator's view of one candidate responder
// at the given address. Our own cookie is drawn immediately; the
// responder's cookie is learned from its first inbound peer-handshake
// frame.
func NewResponderPeer(address Address) (*ResponderPeer, error) {
	if !address.IsResponder() {
		return nil, ErrInvalidResponderAddress
	}
	rec, err := newRecord(address)
	if err != nil {
		return nil, err
	}
	return &ResponderPeer{Record: rec, State: ResponderNew}, nil
}

// ErrInvalidResponderAddress is returned by NewResponderPeer when the
// address is outside 0x02..0xff.
var ErrInvalidResponderAddress = invalidResponderAddressError{}

type invalidResponderAddressError struct{}

func (invalidResponderAddressError) Error() string {
	return "peer: responder address must be in 0x02..0xff"
}
