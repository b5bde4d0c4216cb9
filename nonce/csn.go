package nonce

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math"
)

// ErrSequenceExhausted is fatal: the 48-bit combined sequence number for a
// (peer, direction) pair has been fully consumed and cannot advance further.
// The connection owning it must be reset with an internal-error close code.
var ErrSequenceExhausted = errors.New("nonce: combined sequence number exhausted")

// CombinedSequence is a 48-bit monotone counter (overflow:16 || sequence:32)
// used once per (role, direction, peer). A fresh value starts at a random
// 32-bit sequence with overflow zero, per spec; Next returns the value to
// stamp on the current outgoing packet and advances the counter for the
// packet after that (post-increment).
type CombinedSequence struct {
	overflow  uint16
	sequence  uint32
	exhausted bool
}

// NewCombinedSequence draws a fresh CombinedSequence: overflow zero, a
// uniformly random 32-bit starting sequence.
func NewCombinedSequence() (*CombinedSequence, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return nil, err
	}
	return &CombinedSequence{sequence: binary.BigEndian.Uint32(b[:])}, nil
}

// Next returns the (overflow, sequence) pair to use for the next outgoing
// packet and advances the counter. It returns ErrSequenceExhausted once the
// 48-bit space has been fully consumed.
func (c *CombinedSequence) Next() (overflow uint16, sequence uint32, err error) {
	if c.exhausted {
		return 0, 0, ErrSequenceExhausted
	}
	overflow, sequence = c.overflow, c.sequence
	if c.sequence == math.MaxUint32 {
		if c.overflow == math.MaxUint16 {
			c.exhausted = true
		} else {
			c.overflow++
			c.sequence = 0
		}
	} else {
		c.sequence++
	}
	return overflow, sequence, nil
}

// IncomingTracker validates that a peer's inbound CSN strictly increases
// packet over packet, per direction. The zero value accepts the first
// packet unconditionally and tracks it as the new baseline.
type IncomingTracker struct {
	seen     bool
	overflow uint16
	sequence uint32
}

// ErrSequenceRegression is returned by Check when an inbound CSN does not
// strictly exceed the last accepted value for its peer.
var ErrSequenceRegression = errors.New("nonce: combined sequence number did not advance")

// Check validates and, on success, records a newly observed inbound CSN.
func (t *IncomingTracker) Check(overflow uint16, sequence uint32) error {
	if !t.seen {
		t.seen = true
		t.overflow, t.sequence = overflow, sequence
		return nil
	}
	if overflow < t.overflow || (overflow == t.overflow && sequence <= t.sequence) {
		return ErrSequenceRegression
	}
	t.overflow, t.sequence = overflow, sequence
	return nil
}
