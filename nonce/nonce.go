// Package nonce implements the 24-byte SaltyRTC signaling nonce: a fixed
// layout carrying the sender's cookie, the source/destination addresses and
// the combined sequence number (CSN) that orders packets on the wire.
package nonce

import (
	"encoding/binary"
	"errors"
)

// Size is the wire length of an encoded nonce.
const Size = 24

const (
	cookieOffset      = 0
	cookieSize        = 16
	sourceOffset      = 16
	destinationOffset = 17
	overflowOffset    = 18
	sequenceOffset    = 20
)

// ErrInvalidNonce is returned by Decode when the input is not exactly Size
// bytes long.
var ErrInvalidNonce = errors.New("nonce: invalid length")

// Nonce is the decoded form of the 24-byte signaling nonce:
//
//	cookie[16] || source[1] || destination[1] || overflow_be[2] || sequence_be[4]
type Nonce struct {
	Cookie      [16]byte
	Source      byte
	Destination byte
	Overflow    uint16
	Sequence    uint32
}

// New builds a Nonce from its components.
func New(cookie [16]byte, source, destination byte, overflow uint16, sequence uint32) Nonce {
	return Nonce{
		Cookie:      cookie,
		Source:      source,
		Destination: destination,
		Overflow:    overflow,
		Sequence:    sequence,
	}
}

// Encode serializes the nonce into its fixed 24-byte big-endian layout.
func (n Nonce) Encode() [Size]byte {
	var out [Size]byte
	copy(out[cookieOffset:cookieOffset+cookieSize], n.Cookie[:])
	out[sourceOffset] = n.Source
	out[destinationOffset] = n.Destination
	binary.BigEndian.PutUint16(out[overflowOffset:], n.Overflow)
	binary.BigEndian.PutUint32(out[sequenceOffset:], n.Sequence)
	return out
}

// Decode parses a 24-byte buffer into a Nonce. It fails only on a length
// mismatch; field values are not otherwise constrained at this layer —
// source/destination plausibility and CSN ordering are signaling-layer
// concerns (see the signaling package).
func Decode(b []byte) (Nonce, error) {
	if len(b) != Size {
		return Nonce{}, ErrInvalidNonce
	}
	var n Nonce
	copy(n.Cookie[:], b[cookieOffset:cookieOffset+cookieSize])
	n.Source = b[sourceOffset]
	n.Destination = b[destinationOffset]
	n.Overflow = binary.BigEndian.Uint16(b[overflowOffset:])
	n.Sequence = binary.BigEndian.Uint32(b[sequenceOffset:])
	return n, nil
}

// CSN returns the combined sequence number pair carried by the nonce, in the
// (overflow, sequence) order used for lexicographic ordering comparisons.
func (n Nonce) CSN() (overflow uint16, sequence uint32) {
	return n.Overflow, n.Sequence
}
