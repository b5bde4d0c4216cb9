// Package cookie implements the 16-byte random tokens that tie a nonce to
// its direction's stream, and the our/their pairing invariant around them.
package cookie

import (
	"crypto/rand"
	"errors"
)

// Size is the fixed length of a Cookie.
const Size = 16

// Cookie is a 16-byte value drawn uniformly at random per direction.
type Cookie [Size]byte

// New draws a fresh random Cookie.
func New() (Cookie, error) {
	var c Cookie
	if _, err := rand.Read(c[:]); err != nil {
		return Cookie{}, err
	}
	return c, nil
}

// FromBytes copies a Cookie out of a byte slice of exactly Size length.
func FromBytes(b []byte) (Cookie, error) {
	if len(b) != Size {
		return Cookie{}, errors.New("cookie: wrong length")
	}
	var c Cookie
	copy(c[:], b)
	return c, nil
}

// Bytes returns the cookie as a byte slice.
func (c Cookie) Bytes() []byte {
	return c[:]
}

// Equal reports whether two cookies carry the same bytes.
func (c Cookie) Equal(other Cookie) bool {
	return c == other
}

// Pair holds a connection's own cookie alongside the counterpart's, and
// enforces that the two never collide.
type Pair struct {
	Ours   Cookie
	Theirs Cookie
}

// ErrCookieCollision is returned by NewPairAgainst when every freshly drawn
// cookie equals the counterpart's, which must never be used as-is.
var ErrCookieCollision = errors.New("cookie: drew a cookie equal to the peer's")

// NewPairAgainst draws a fresh "ours" cookie that is guaranteed to differ
// from theirs, re-drawing on any collision (spec invariant: ours != theirs).
func NewPairAgainst(theirs Cookie) (Pair, error) {
	for attempt := 0; attempt < 16; attempt++ {
		ours, err := New()
		if err != nil {
			return Pair{}, err
		}
		if !ours.Equal(theirs) {
			return Pair{ours, theirs}, nil
		}
	}
	return Pair{}, ErrCookieCollision
}
