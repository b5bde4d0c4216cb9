// Package saltyconfig is the JSON-file configuration loader for a
// SaltyRTC client process: relay address, permanent key material, peer
// trust, task selection and connect/backoff knobs. It follows the same
// Init/Check/LoadConfigFromFile shape as the teacher's xchg/config.go.
package saltyconfig

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"time"
)

// Server holds the relay connection address (spec §1, §6).
type Server struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// Path is appended to the WebSocket URL; for an initiator this is
	// normally empty (the server assigns the path from its permanent
	// key), for a responder it is the initiator's permanent key in hex
	// (spec §6's URL-path addressing scheme).
	Path string `json:"path"`
}

func (c *Server) Init() {
	c.Host = "localhost"
	c.Port = 8765
}

func (c *Server) Check() error {
	if c.Host == "" {
		return errors.New("server config error: host is empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("server config error: port")
	}
	return nil
}

// Keys holds the on-disk permanent key material and the pinned server
// key, all hex-encoded 32-byte NaCl box keys (spec §4.2, §4.4).
type Keys struct {
	// PermanentKeyFile holds our own permanent private key, hex-encoded.
	// Generated and written on first run if absent.
	PermanentKeyFile string `json:"permanent_key_file"`
	// ExpectedServerKeyHex pins the relay's long-term public key; empty
	// disables signed_keys verification (spec §4.4, §8 invariant 7).
	ExpectedServerKeyHex string `json:"expected_server_key_hex,omitempty"`
}

func (c *Keys) Init() {
	c.PermanentKeyFile = "permanent.key"
}

func (c *Keys) Check() error {
	if c.PermanentKeyFile == "" {
		return errors.New("keys config error: permanent_key_file is empty")
	}
	if c.ExpectedServerKeyHex != "" {
		if _, err := decodeKey32(c.ExpectedServerKeyHex); err != nil {
			return errors.New("keys config error: expected_server_key_hex: " + err.Error())
		}
	}
	return nil
}

// ExpectedServerKey decodes ExpectedServerKeyHex, returning ok=false if
// it is not set.
func (c *Keys) ExpectedServerKey() (key [32]byte, ok bool, err error) {
	if c.ExpectedServerKeyHex == "" {
		return key, false, nil
	}
	key, err = decodeKey32(c.ExpectedServerKeyHex)
	return key, err == nil, err
}

// Peer holds trust configuration for the role-specific counterpart
// (spec §4.5, §4.6, scenario E3).
type Peer struct {
	// Role is "initiator" or "responder".
	Role string `json:"role"`

	// Responder-only: exactly one of TrustedInitiatorKeyHex, or the pair
	// (InitiatorPublicKeyHex, AuthTokenHex), must be set.
	TrustedInitiatorKeyHex string `json:"trusted_initiator_key_hex,omitempty"`
	InitiatorPublicKeyHex  string `json:"initiator_public_key_hex,omitempty"`
	AuthTokenHex           string `json:"auth_token_hex,omitempty"`

	// Initiator-only: responder keys considered pre-trusted.
	TrustedResponderKeysHex []string `json:"trusted_responder_keys_hex,omitempty"`
}

func (c *Peer) Init() {
	c.Role = "responder"
}

func (c *Peer) Check() error {
	switch c.Role {
	case "initiator", "responder":
	default:
		return errors.New(`peer config error: role must be "initiator" or "responder"`)
	}
	if c.Role == "responder" {
		trusted := c.TrustedInitiatorKeyHex != ""
		untrustedPK := c.InitiatorPublicKeyHex != ""
		untrustedAT := c.AuthTokenHex != ""
		if trusted && (untrustedPK || untrustedAT) {
			return errors.New("peer config error: trusted_initiator_key_hex cannot be combined with initiator_public_key_hex/auth_token_hex")
		}
		if !trusted && untrustedPK != untrustedAT {
			return errors.New("peer config error: untrusted initiator requires both initiator_public_key_hex and auth_token_hex")
		}
		if !trusted && !untrustedPK {
			return errors.New("peer config error: responder requires trusted_initiator_key_hex or (initiator_public_key_hex, auth_token_hex)")
		}
	}
	for _, h := range c.TrustedResponderKeysHex {
		if _, err := decodeKey32(h); err != nil {
			return errors.New("peer config error: trusted_responder_keys_hex: " + err.Error())
		}
	}
	return nil
}

// Connect holds connect-attempt and backoff knobs, carried over from the
// original Java client's wsConnectAttemptsMax/wsConnectLinearBackoff
// constructor arguments (spec.md §5 only describes this in prose).
type Connect struct {
	TimeoutMs            int    `json:"timeout_ms"`
	PingIntervalMs       int    `json:"ping_interval_ms"`
	AttemptsMax          int    `json:"attempts_max"`
	LinearBackoffMs      int    `json:"linear_backoff_ms"`
	IngressRatePerSecond uint64 `json:"ingress_rate_per_second"`
}

func (c *Connect) Init() {
	c.TimeoutMs = 5000
	c.PingIntervalMs = 20000
	c.AttemptsMax = 0 // 0 = unlimited, matching the Java default
	c.LinearBackoffMs = 1000
	c.IngressRatePerSecond = 200
}

func (c *Connect) Check() error {
	if c.TimeoutMs < 1 || c.TimeoutMs > 600000 {
		return errors.New("connect config error: timeout_ms")
	}
	if c.PingIntervalMs < 0 || c.PingIntervalMs > 600000 {
		return errors.New("connect config error: ping_interval_ms")
	}
	if c.AttemptsMax < 0 {
		return errors.New("connect config error: attempts_max")
	}
	if c.LinearBackoffMs < 0 || c.LinearBackoffMs > 600000 {
		return errors.New("connect config error: linear_backoff_ms")
	}
	return nil
}

func (c *Connect) Timeout() time.Duration      { return time.Duration(c.TimeoutMs) * time.Millisecond }
func (c *Connect) PingInterval() time.Duration { return time.Duration(c.PingIntervalMs) * time.Millisecond }
func (c *Connect) LinearBackoff() time.Duration {
	return time.Duration(c.LinearBackoffMs) * time.Millisecond
}

// Config is the top-level JSON configuration document.
type Config struct {
	Server  Server   `json:"server"`
	Keys    Keys     `json:"keys"`
	Peer    Peer     `json:"peer"`
	Connect Connect  `json:"connect"`
	Tasks   []string `json:"tasks"`
}

func (c *Config) Init() {
	c.Server.Init()
	c.Keys.Init()
	c.Peer.Init()
	c.Connect.Init()
	c.Tasks = []string{"application"}
}

func (c *Config) Check() error {
	if err := c.Server.Check(); err != nil {
		return err
	}
	if err := c.Keys.Check(); err != nil {
		return err
	}
	if err := c.Peer.Check(); err != nil {
		return err
	}
	if err := c.Connect.Check(); err != nil {
		return err
	}
	if len(c.Tasks) == 0 {
		return errors.New("config error: tasks is empty")
	}
	return nil
}

// LoadConfigFromFile reads conf from filePath, writing a default
// configuration if the file does not yet exist (matching
// xchg/config.go's convenience-write-on-first-run behavior).
func LoadConfigFromFile(filePath string) (conf Config, err error) {
	conf.Init()

	fi, statErr := os.Stat(filePath)
	if statErr != nil {
		if !os.IsNotExist(statErr) {
			return conf, statErr
		}
		bs, marshalErr := json.MarshalIndent(conf, "", " ")
		if marshalErr == nil {
			_ = os.WriteFile(filePath, bs, 0660) // convenience only; ignore write errors
		}
	} else {
		if fi.IsDir() {
			return conf, errors.New("config error: " + filePath + " is a directory")
		}
		bs, readErr := os.ReadFile(filePath)
		if readErr != nil {
			return conf, readErr
		}
		if err = json.Unmarshal(bs, &conf); err != nil {
			return conf, err
		}
	}

	err = conf.Check()
	return conf, err
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
