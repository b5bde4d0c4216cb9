package saltyconfig

import (
	"path/filepath"
	"testing"
)

func TestLoadConfigFromFileWritesDefaultOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	conf, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile: %v", err)
	}
	if conf.Server.Port != 8765 {
		t.Fatalf("Server.Port = %d, want default 8765", conf.Server.Port)
	}

	again, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("second LoadConfigFromFile: %v", err)
	}
	if again.Server.Host != conf.Server.Host {
		t.Fatalf("re-read config does not match written default")
	}
}

func TestPeerCheckRejectsTrustedAndUntrustedTogether(t *testing.T) {
	p := Peer{
		Role:                   "responder",
		TrustedInitiatorKeyHex: "11" + repeatHex(31),
		InitiatorPublicKeyHex:  "22" + repeatHex(31),
		AuthTokenHex:           "33" + repeatHex(31),
	}
	if err := p.Check(); err == nil {
		t.Fatal("expected error for trusted+untrusted combination")
	}
}

func TestPeerCheckRequiresBothUntrustedFields(t *testing.T) {
	p := Peer{Role: "responder", InitiatorPublicKeyHex: "11" + repeatHex(31)}
	if err := p.Check(); err == nil {
		t.Fatal("expected error when auth_token_hex is missing")
	}
}

func TestConnectCheckRejectsNegativeBackoff(t *testing.T) {
	c := Connect{TimeoutMs: 1000, PingIntervalMs: 1000, AttemptsMax: 1, LinearBackoffMs: -1}
	if err := c.Check(); err == nil {
		t.Fatal("expected error for negative linear_backoff_ms")
	}
}

func repeatHex(n int) string {
	out := make([]byte, n*2)
	for i := range out {
		out[i] = 'a'
	}
	return string(out)
}
