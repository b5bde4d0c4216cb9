package crypto

import "golang.org/x/crypto/curve25519"

// curve25519ScalarBaseMult derives a public key from a private scalar,
// following the same curve25519.X25519(priv, Basepoint) pattern used by
// Klickk-SecuMSG-Server's crypto-core to derive device DH public keys.
func curve25519ScalarBaseMult(dst, priv *[KeyBytes]byte) {
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		// Only possible if priv has the wrong length, which [32]byte rules out.
		panic("crypto: curve25519 scalar base mult failed: " + err.Error())
	}
	copy(dst[:], pub)
}
