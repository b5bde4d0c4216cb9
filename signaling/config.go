package signaling

import (
	"github.com/saltyrtc/saltyrtc-go/crypto"
	"github.com/saltyrtc/saltyrtc-go/task"
)

// Config holds the construction-time parameters for a Signaling instance.
// Which fields apply depends on Role; Validate enforces the combinations
// spec §4.5 requires (and scenario E3 forbids).
type Config struct {
	Role         Role
	PermanentKey *crypto.KeyStore

	// ExpectedServerKey pins the relay's long-term public key. When set,
	// the server-auth's signed_keys field must verify (spec §4.4, §8
	// invariant 7); when nil, verification is skipped.
	ExpectedServerKey *[32]byte

	Tasks []task.Task

	// AuthToken is the secretbox key shared out of band between the
	// initiator and its responders (spec §4.2). The initiator holds the
	// token it generated; a responder holds the token it received
	// alongside the initiator's public key.
	AuthToken *[32]byte

	// Responder-only. Exactly one of InitiatorTrustedKey, or the pair
	// (InitiatorPublicKey, AuthToken), must be set.
	InitiatorTrustedKey *[32]byte
	InitiatorPublicKey  *[32]byte

	// Initiator-only. Responder permanent keys considered pre-trusted; a
	// trusted responder is never expected to reveal its key via token
	// (spec §4.6, adapted — see handleResponderToken in the initiator
	// role's peer-handshake code for how trust is actually checked here).
	TrustedResponderKeys [][32]byte

	// IngressRatePerSecond caps inbound frames per second for this
	// connection; zero disables the limiter.
	IngressRatePerSecond uint64
}

// Validate checks the role-specific field combinations before a Signaling
// instance is constructed. This is where the configuration-conflict error
// from spec scenario E3 is raised.
func (c *Config) Validate() error {
	if c.PermanentKey == nil {
		return &ConfigError{Reason: "permanent key is required"}
	}
	if len(c.Tasks) == 0 {
		return &ConfigError{Reason: "at least one task is required"}
	}
	if c.Role == RoleResponder {
		trusted := c.InitiatorTrustedKey != nil
		untrustedPK := c.InitiatorPublicKey != nil
		untrustedAT := c.AuthToken != nil
		if trusted && (untrustedPK || untrustedAT) {
			return &ConfigError{Reason: "initiator_trusted_key cannot be combined with initiator_public_key or auth_token"}
		}
		if !trusted && (untrustedPK != untrustedAT) {
			return &ConfigError{Reason: "untrusted initiator requires both initiator_public_key and auth_token"}
		}
		if !trusted && !untrustedPK {
			return &ConfigError{Reason: "responder requires initiator_trusted_key or (initiator_public_key, auth_token)"}
		}
	}
	return nil
}

func (c *Config) isInitiatorTrusted() bool {
	return c.InitiatorTrustedKey != nil
}

func (c *Config) isResponderTrusted(key [32]byte) bool {
	for _, k := range c.TrustedResponderKeys {
		if k == key {
			return true
		}
	}
	return false
}
