package main

import (
	"encoding/hex"
	"errors"

	"github.com/saltyrtc/saltyrtc-go/saltyconfig"
	"github.com/saltyrtc/saltyrtc-go/signaling"
)

// applyPeerConfig translates the JSON-friendly hex fields of
// saltyconfig.Peer into the raw key material signaling.Config expects.
// conf.Peer.Check has already validated the field combination by the time
// this runs (saltyconfig.LoadConfigFromFile calls Config.Check).
func applyPeerConfig(cfg *signaling.Config, p saltyconfig.Peer) error {
	switch p.Role {
	case "responder":
		cfg.Role = signaling.RoleResponder
	case "initiator":
		cfg.Role = signaling.RoleInitiator
	default:
		return errors.New("peer config: unknown role " + p.Role)
	}

	if p.TrustedInitiatorKeyHex != "" {
		key, err := decodeKey32(p.TrustedInitiatorKeyHex)
		if err != nil {
			return err
		}
		cfg.InitiatorTrustedKey = &key
	}
	if p.InitiatorPublicKeyHex != "" {
		key, err := decodeKey32(p.InitiatorPublicKeyHex)
		if err != nil {
			return err
		}
		cfg.InitiatorPublicKey = &key
	}
	if p.AuthTokenHex != "" {
		key, err := decodeKey32(p.AuthTokenHex)
		if err != nil {
			return err
		}
		cfg.AuthToken = &key
	}
	for _, h := range p.TrustedResponderKeysHex {
		key, err := decodeKey32(h)
		if err != nil {
			return err
		}
		cfg.TrustedResponderKeys = append(cfg.TrustedResponderKeys, key)
	}
	return nil
}

func decodeKey32(h string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(h)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, errors.New("key must decode to 32 bytes")
	}
	copy(out[:], b)
	return out, nil
}
