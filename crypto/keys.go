// Package crypto wires the NaCl box/secretbox primitives the signaling core
// needs into the three key contexts named by the spec: a long-term
// permanent keypair, a per-session ephemeral keypair, and the one-shot
// symmetric auth token. Grounded in the NaCl keypair/Precompute usage shown
// by jchv-curvecp's CurveCP implementation, generalized from its ad-hoc
// nonce-and-shared-key dance to the spec's explicit envelope selectors.
package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// KeyBytes is the length in bytes of a NaCl box public or private key.
const KeyBytes = 32

// NonceBytes is the length in bytes of a NaCl nonce, matching the signaling
// nonce's wire size (spec §6).
const NonceBytes = 24

// ErrInvalidKey is returned when a supplied key is not KeyBytes long.
var ErrInvalidKey = errors.New("crypto: invalid key length")

// ErrDecryptionFailed covers both authentication failures and corrupt boxes.
var ErrDecryptionFailed = errors.New("crypto: decryption failed")

// Box is an encrypted envelope: a signaling nonce plus its NaCl ciphertext.
type Box struct {
	Nonce      [NonceBytes]byte
	Ciphertext []byte
}

// KeyStore owns a long-term or ephemeral NaCl box keypair and performs
// public-key authenticated encryption against a chosen peer public key. It
// is the permanent key (owned by the process, possibly persisted) or the
// per-session ephemeral key (regenerated every peer handshake).
type KeyStore struct {
	publicKey  [KeyBytes]byte
	privateKey [KeyBytes]byte
}

// NewKeyStore generates a fresh NaCl box keypair.
func NewKeyStore() (*KeyStore, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyStore{publicKey: *pub, privateKey: *priv}, nil
}

// NewKeyStoreFromPrivateKey rebuilds a KeyStore from a persisted private
// key, deriving the matching public key via scalar multiplication.
func NewKeyStoreFromPrivateKey(private [KeyBytes]byte) *KeyStore {
	ks := &KeyStore{privateKey: private}
	curve25519ScalarBaseMult(&ks.publicKey, &ks.privateKey)
	return ks
}

// PublicKey returns the store's public key.
func (k *KeyStore) PublicKey() [KeyBytes]byte {
	return k.publicKey
}

// SharedKeyWith precomputes the NaCl shared key between this store's
// private key and peerPublicKey, for repeated use against one envelope
// selector (spec §4.2).
func (k *KeyStore) SharedKeyWith(peerPublicKey [KeyBytes]byte) *SharedKeyStore {
	return NewSharedKeyStore(k.privateKey, peerPublicKey)
}

// Encrypt seals data for peerPublicKey under a fresh random nonce, using
// this store's private key. It returns the full envelope.
func (k *KeyStore) Encrypt(data []byte, peerPublicKey [KeyBytes]byte) (Box, error) {
	var nonceArr [NonceBytes]byte
	if _, err := rand.Read(nonceArr[:]); err != nil {
		return Box{}, err
	}
	ct := box.Seal(nil, data, &nonceArr, &peerPublicKey, &k.privateKey)
	return Box{Nonce: nonceArr, Ciphertext: ct}, nil
}

// EncryptWithNonce seals data using a nonce chosen by the caller (the
// signaling layer supplies the signaling nonce here, rather than a fresh
// random one, so box and signaling nonce always agree).
func (k *KeyStore) EncryptWithNonce(data []byte, nonce [NonceBytes]byte, peerPublicKey [KeyBytes]byte) []byte {
	return box.Seal(nil, data, &nonce, &peerPublicKey, &k.privateKey)
}

// Decrypt opens an envelope sealed by peerPublicKey for this store.
func (k *KeyStore) Decrypt(b Box, peerPublicKey [KeyBytes]byte) ([]byte, error) {
	plain, ok := box.Open(nil, b.Ciphertext, &b.Nonce, &peerPublicKey, &k.privateKey)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

// DecryptWithNonce opens ciphertext sealed under an externally supplied
// nonce (the signaling nonce accompanying the frame).
func (k *KeyStore) DecryptWithNonce(ciphertext []byte, nonce [NonceBytes]byte, peerPublicKey [KeyBytes]byte) ([]byte, error) {
	plain, ok := box.Open(nil, ciphertext, &nonce, &peerPublicKey, &k.privateKey)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

// SharedKeyStore caches the precomputed NaCl shared key for a (our, their)
// keypair so repeated encrypt/decrypt calls against the same peer — the
// common case once a session or permanent peer key is known — skip the
// scalar multiplication every time.
type SharedKeyStore struct {
	sharedKey       [KeyBytes]byte
	remotePublicKey [KeyBytes]byte
}

// NewSharedKeyStore precomputes the shared key between ourPrivateKey and
// theirPublicKey.
func NewSharedKeyStore(ourPrivateKey, theirPublicKey [KeyBytes]byte) *SharedKeyStore {
	sks := &SharedKeyStore{remotePublicKey: theirPublicKey}
	box.Precompute(&sks.sharedKey, &theirPublicKey, &ourPrivateKey)
	return sks
}

// RemotePublicKey returns the counterpart's public key this store was
// derived against.
func (s *SharedKeyStore) RemotePublicKey() [KeyBytes]byte {
	return s.remotePublicKey
}

// Encrypt seals data under nonce using the precomputed shared key.
func (s *SharedKeyStore) Encrypt(data []byte, nonce [NonceBytes]byte) []byte {
	return box.SealAfterPrecomputation(nil, data, &nonce, &s.sharedKey)
}

// Decrypt opens ciphertext under nonce using the precomputed shared key.
func (s *SharedKeyStore) Decrypt(ciphertext []byte, nonce [NonceBytes]byte) ([]byte, error) {
	plain, ok := box.OpenAfterPrecomputation(nil, ciphertext, &nonce, &s.sharedKey)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

// AuthToken wraps the 32-byte symmetric secretbox key shared out-of-band
// between a responder and an initiator. It is consumed after a single
// encryption, matching the spec's "used exactly once" invariant: any
// further Encrypt call fails rather than silently reusing the key.
type AuthToken struct {
	key      [32]byte
	consumed bool
}

// NewAuthToken wraps an existing 32-byte token, typically received
// out-of-band (e.g. embedded in the pairing URL).
func NewAuthToken(key [32]byte) *AuthToken {
	return &AuthToken{key: key}
}

// GenerateAuthToken draws a fresh random 32-byte token.
func GenerateAuthToken() (*AuthToken, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	return &AuthToken{key: key}, nil
}

// Bytes returns the raw token bytes, for out-of-band transmission.
func (a *AuthToken) Bytes() [32]byte {
	return a.key
}

// ErrAuthTokenConsumed is returned by Encrypt once the token has already
// been used for its single permitted message.
var ErrAuthTokenConsumed = errors.New("crypto: auth token already consumed")

// Encrypt seals data under nonce with the auth-token secretbox key. It may
// be called at most once per AuthToken.
func (a *AuthToken) Encrypt(data []byte, nonce [NonceBytes]byte) ([]byte, error) {
	if a.consumed {
		return nil, ErrAuthTokenConsumed
	}
	a.consumed = true
	return secretbox.Seal(nil, data, &nonce, &a.key), nil
}

// Decrypt opens ciphertext sealed with the auth-token secretbox key. The
// receiving side also consumes the token after a single successful use.
func (a *AuthToken) Decrypt(ciphertext []byte, nonce [NonceBytes]byte) ([]byte, error) {
	if a.consumed {
		return nil, ErrAuthTokenConsumed
	}
	plain, ok := secretbox.Open(nil, ciphertext, &nonce, &a.key)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	a.consumed = true
	return plain, nil
}
