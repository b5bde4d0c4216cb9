package saltyconfig

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"strings"

	"github.com/saltyrtc/saltyrtc-go/crypto"
)

// LoadOrCreatePermanentKey reads a hex-encoded 32-byte private key from
// path, generating and persisting a fresh one if the file does not yet
// exist — the same convenience-write-on-first-run behavior
// LoadConfigFromFile uses for the JSON document itself.
func LoadOrCreatePermanentKey(path string) (*crypto.KeyStore, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		var private [32]byte
		if _, err := rand.Read(private[:]); err != nil {
			return nil, err
		}
		encoded := hex.EncodeToString(private[:])
		if writeErr := os.WriteFile(path, []byte(encoded), 0600); writeErr != nil {
			return nil, writeErr
		}
		return crypto.NewKeyStoreFromPrivateKey(private), nil
	}

	private, err := decodeKey32(strings.TrimSpace(string(bs)))
	if err != nil {
		return nil, errors.New("permanent key file " + path + ": " + err.Error())
	}
	return crypto.NewKeyStoreFromPrivateKey(private), nil
}
