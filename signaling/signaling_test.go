package signaling

import (
	"bytes"
	"errors"
	"testing"

	"github.com/saltyrtc/saltyrtc-go/closecode"
	"github.com/saltyrtc/saltyrtc-go/crypto"
	"github.com/saltyrtc/saltyrtc-go/message"
	"github.com/saltyrtc/saltyrtc-go/nonce"
	"github.com/saltyrtc/saltyrtc-go/peer"
	"github.com/saltyrtc/saltyrtc-go/task"
)

type fakeTransport struct {
	sent      [][]byte
	sendErr   error
	closeCode closecode.Code
}

func (f *fakeTransport) Send(frame []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte{}, frame...))
	return nil
}

func (f *fakeTransport) Close(code closecode.Code) error {
	f.closeCode = code
	return nil
}

type fakeTask struct {
	name         string
	initData     map[string]interface{}
	handshakeRan bool
	messages     []map[string]interface{}
}

func (t *fakeTask) Name() string                    { return t.name }
func (t *fakeTask) SupportedMessageTypes() []string { return []string{"application"} }
func (t *fakeTask) Data() map[string]interface{}    { return map[string]interface{}{"ready": true} }
func (t *fakeTask) Init(peerData map[string]interface{}) error {
	t.initData = peerData
	return nil
}
func (t *fakeTask) OnPeerHandshakeDone()                     { t.handshakeRan = true }
func (t *fakeTask) OnTaskMessage(msg map[string]interface{}) { t.messages = append(t.messages, msg) }
func (t *fakeTask) Close(int)                                {}

func newTestResponder(t *testing.T) (*Signaling, *crypto.KeyStore, [32]byte, *fakeTransport) {
	t.Helper()
	permKey, err := crypto.NewKeyStore()
	if err != nil {
		t.Fatalf("NewKeyStore: %v", err)
	}
	initiatorKey, err := crypto.NewKeyStore()
	if err != nil {
		t.Fatalf("NewKeyStore: %v", err)
	}
	initiatorPub := initiatorKey.PublicKey()
	authToken, err := crypto.GenerateAuthToken()
	if err != nil {
		t.Fatalf("GenerateAuthToken: %v", err)
	}
	tokenBytes := authToken.Bytes()

	cfg := Config{
		Role:               RoleResponder,
		PermanentKey:       permKey,
		InitiatorPublicKey: &initiatorPub,
		AuthToken:          &tokenBytes,
		Tasks:              []task.Task{&fakeTask{name: "t"}},
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ft := &fakeTransport{}
	s.Attach(ft)
	return s, permKey, initiatorPub, ft
}

func frameFor(n nonce.Nonce, body []byte) []byte {
	encoded := n.Encode()
	return append(encoded[:], body...)
}

func serverHelloFrame(serverCookie [16]byte, serverPub [32]byte) []byte {
	n := nonce.New(serverCookie, byte(peer.AddressServer), byte(peer.AddressUnassigned), 0, 0)
	body, _ := message.Encode(message.NewServerHello(pubKeySlice(serverPub)))
	return frameFor(n, body)
}

func TestConfigRejectsTrustedAndUntrustedTogether(t *testing.T) {
	permKey, _ := crypto.NewKeyStore()
	trusted := [32]byte{1}
	pub := [32]byte{2}
	token := [32]byte{3}
	cfg := Config{
		Role:                RoleResponder,
		PermanentKey:        permKey,
		InitiatorTrustedKey: &trusted,
		InitiatorPublicKey:  &pub,
		AuthToken:           &token,
		Tasks:               []task.Task{&fakeTask{name: "t"}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected configuration error for trusted+untrusted combination")
	}
}

func TestResponderServerHandshakeSendsClientHelloThenAuth(t *testing.T) {
	s, permKey, _, ft := newTestResponder(t)

	var serverCookie [16]byte
	for i := range serverCookie {
		serverCookie[i] = 0xAB
	}
	serverKey, _ := crypto.NewKeyStore()
	serverPub := serverKey.PublicKey()

	s.OnBinary(serverHelloFrame(serverCookie, serverPub))

	if len(ft.sent) != 2 {
		t.Fatalf("sent %d frames, want 2 (client-hello, client-auth)", len(ft.sent))
	}

	helloFrame := ft.sent[0]
	helloMsg, err := message.Decode(helloFrame[nonce.Size:])
	if err != nil {
		t.Fatalf("decode client-hello: %v", err)
	}
	hello, ok := helloMsg.(*message.ClientHello)
	if !ok {
		t.Fatalf("first frame = %T, want *message.ClientHello", helloMsg)
	}
	if !bytes.Equal(hello.Key, pubKeySlice(permKey.PublicKey())) {
		t.Fatal("client-hello key does not match our permanent public key")
	}

	authFrame := ft.sent[1]
	n, err := nonce.Decode(authFrame[:nonce.Size])
	if err != nil {
		t.Fatalf("decode nonce: %v", err)
	}
	serverShared := serverKey.SharedKeyWith(permKey.PublicKey())
	plain, err := serverShared.Decrypt(authFrame[nonce.Size:], n.Encode())
	if err != nil {
		t.Fatalf("decrypt client-auth: %v", err)
	}
	authMsg, err := message.Decode(plain)
	if err != nil {
		t.Fatalf("decode client-auth: %v", err)
	}
	if _, ok := authMsg.(*message.ClientAuth); !ok {
		t.Fatalf("second frame = %T, want *message.ClientAuth", authMsg)
	}
	if s.serverState != ServerHSAuthSent {
		t.Fatalf("serverState = %v, want AUTH_SENT", s.serverState)
	}
}

func TestResponderPeerHandshakeStartsOnServerAuth(t *testing.T) {
	s, permKey, _, ft := newTestResponder(t)

	var serverCookie [16]byte
	for i := range serverCookie {
		serverCookie[i] = 0xAB
	}
	serverKey, _ := crypto.NewKeyStore()
	serverPub := serverKey.PublicKey()
	s.OnBinary(serverHelloFrame(serverCookie, serverPub))
	ft.sent = nil

	ourCookie := s.server.Cookies.Ours.Bytes()
	assigned := byte(0x02)
	n := nonce.New(serverCookie, byte(peer.AddressServer), assigned, 0, 1)
	connected := true
	authMsg := &message.ServerAuth{
		MsgType:            message.TypeServerAuth,
		YourCookie:         ourCookie,
		InitiatorConnected: &connected,
	}
	body, _ := message.Encode(authMsg)
	serverShared := serverKey.SharedKeyWith(permKey.PublicKey())
	ct := serverShared.Encrypt(body, n.Encode())
	s.OnBinary(frameFor(n, ct))

	if s.State() != StatePeerHandshake {
		t.Fatalf("state = %v, want PEER_HANDSHAKE", s.State())
	}
	if s.ourAddress != peer.Address(assigned) {
		t.Fatalf("ourAddress = %#x, want 0x02", s.ourAddress)
	}
	if s.initiator == nil {
		t.Fatal("expected initiator record to be created")
	}
	if s.initiator.State != peer.InitiatorKeySent {
		t.Fatalf("initiator.State = %v, want KEY_SENT", s.initiator.State)
	}
	// token (auth-token secretbox) + key (peer-permanent box).
	if len(ft.sent) != 2 {
		t.Fatalf("sent %d frames after peer handshake init, want 2", len(ft.sent))
	}
}

// establishServerHandshake drives a fresh responder through the server
// handshake far enough to reach PEER_HANDSHAKE, without an initiator
// present yet, and returns the server keystore used to speak for it.
func establishServerHandshake(t *testing.T) (*Signaling, *crypto.KeyStore, *crypto.KeyStore, *fakeTransport, [16]byte) {
	t.Helper()
	s, permKey, _, ft := newTestResponder(t)

	var serverCookie [16]byte
	for i := range serverCookie {
		serverCookie[i] = 0xAB
	}
	serverKey, _ := crypto.NewKeyStore()
	s.OnBinary(serverHelloFrame(serverCookie, serverKey.PublicKey()))
	ft.sent = nil

	ourCookie := s.server.Cookies.Ours.Bytes()
	n := nonce.New(serverCookie, byte(peer.AddressServer), 0x02, 0, 1)
	connected := false
	authMsg := &message.ServerAuth{
		MsgType:            message.TypeServerAuth,
		YourCookie:         ourCookie,
		InitiatorConnected: &connected,
	}
	body, _ := message.Encode(authMsg)
	serverShared := serverKey.SharedKeyWith(permKey.PublicKey())
	ct := serverShared.Encrypt(body, n.Encode())
	s.OnBinary(frameFor(n, ct))

	if s.State() != StatePeerHandshake {
		t.Fatalf("state = %v, want PEER_HANDSHAKE", s.State())
	}
	return s, permKey, serverKey, ft, serverCookie
}

func TestMismatchedCookieFromServerIsRejected(t *testing.T) {
	s, permKey, serverKey, _, _ := establishServerHandshake(t)

	// The server's cookie was learned during server-hello; a later frame
	// claiming a different one must be rejected rather than silently
	// re-learned (spec §8 invariant 3: a peer's cookie is fixed for the
	// life of the connection once seen).
	var wrongCookie [16]byte
	for i := range wrongCookie {
		wrongCookie[i] = 0xCD
	}
	n := nonce.New(wrongCookie, byte(peer.AddressServer), byte(s.ourAddress), 0, 2)
	disc := &message.Disconnected{MsgType: message.TypeDisconnected, ID: 0x02}
	body, _ := message.Encode(disc)
	serverShared := serverKey.SharedKeyWith(permKey.PublicKey())
	ct := serverShared.Encrypt(body, n.Encode())

	s.OnBinary(frameFor(n, ct))

	if s.State() != StateClosed {
		t.Fatalf("state = %v, want CLOSED after cookie mismatch", s.State())
	}
}

func TestCSNRegressionFromServerIsRejected(t *testing.T) {
	s, permKey, serverKey, _, serverCookie := establishServerHandshake(t)

	n := nonce.New(serverCookie, byte(peer.AddressServer), byte(s.ourAddress), 0, 0)
	disc := &message.Disconnected{MsgType: message.TypeDisconnected, ID: 0x02}
	body, _ := message.Encode(disc)
	serverShared := serverKey.SharedKeyWith(permKey.PublicKey())
	ct := serverShared.Encrypt(body, n.Encode())

	s.OnBinary(frameFor(n, ct))

	if s.State() != StateClosed {
		t.Fatalf("state = %v, want CLOSED after CSN regression", s.State())
	}
}

func TestNewInitiatorDuringPeerHandshakeRebuildsInitiatorRecord(t *testing.T) {
	s, permKey, serverKey, ft, serverCookie := establishServerHandshake(t)
	if s.initiator != nil {
		t.Fatal("expected no initiator record before new-initiator push")
	}

	n := nonce.New(serverCookie, byte(peer.AddressServer), byte(s.ourAddress), 0, 2)
	newInit := message.NewNewInitiator()
	body, _ := message.Encode(newInit)
	serverShared := serverKey.SharedKeyWith(permKey.PublicKey())
	ct := serverShared.Encrypt(body, n.Encode())

	s.OnBinary(frameFor(n, ct))

	if s.initiator == nil {
		t.Fatal("expected new-initiator push to create an initiator record")
	}
	if s.initiator.State != peer.InitiatorKeySent {
		t.Fatalf("initiator.State = %v, want KEY_SENT", s.initiator.State)
	}
	if len(ft.sent) != 2 {
		t.Fatalf("sent %d frames after new-initiator, want 2 (token, key)", len(ft.sent))
	}
}

// TestServerAuthWithSameCSNAsHelloIsRejected guards against the
// server-hello frame's CSN never being recorded: without seeding the
// baseline from it, server-auth's own nonce check would treat itself as
// the first packet ever seen and accept any CSN, including one that
// duplicates server-hello's (spec §4.1).
func TestServerAuthWithSameCSNAsHelloIsRejected(t *testing.T) {
	s, permKey, _, _ := newTestResponder(t)

	var serverCookie [16]byte
	for i := range serverCookie {
		serverCookie[i] = 0xAB
	}
	serverKey, _ := crypto.NewKeyStore()
	s.OnBinary(serverHelloFrame(serverCookie, serverKey.PublicKey()))
	if s.serverState != ServerHSAuthSent {
		t.Fatalf("serverState = %v, want AUTH_SENT", s.serverState)
	}

	ourCookie := s.server.Cookies.Ours.Bytes()
	n := nonce.New(serverCookie, byte(peer.AddressServer), 0x02, 0, 0)
	connected := false
	authMsg := &message.ServerAuth{
		MsgType:            message.TypeServerAuth,
		YourCookie:         ourCookie,
		InitiatorConnected: &connected,
	}
	body, _ := message.Encode(authMsg)
	serverShared := serverKey.SharedKeyWith(permKey.PublicKey())
	ct := serverShared.Encrypt(body, n.Encode())

	s.OnBinary(frameFor(n, ct))

	if s.State() != StateClosed {
		t.Fatalf("state = %v, want CLOSED after server-auth replays server-hello's CSN", s.State())
	}
}

// TestInitiatorFirstKeyDecryptFailureUsesSpecificCloseCode checks that a
// peer's first key message failing to decrypt under the peer-permanent
// envelope maps to closecode.InitiatorCouldNotDecrypt rather than the
// generic PROTOCOL_ERROR fallback (spec §7).
func TestInitiatorFirstKeyDecryptFailureUsesSpecificCloseCode(t *testing.T) {
	s, permKey, _, ft := newTestResponder(t)

	var serverCookie [16]byte
	for i := range serverCookie {
		serverCookie[i] = 0xAB
	}
	serverKey, _ := crypto.NewKeyStore()
	s.OnBinary(serverHelloFrame(serverCookie, serverKey.PublicKey()))
	ft.sent = nil

	ourCookie := s.server.Cookies.Ours.Bytes()
	n := nonce.New(serverCookie, byte(peer.AddressServer), 0x02, 0, 1)
	connected := true
	authMsg := &message.ServerAuth{
		MsgType:            message.TypeServerAuth,
		YourCookie:         ourCookie,
		InitiatorConnected: &connected,
	}
	body, _ := message.Encode(authMsg)
	serverShared := serverKey.SharedKeyWith(permKey.PublicKey())
	ct := serverShared.Encrypt(body, n.Encode())
	s.OnBinary(frameFor(n, ct))
	if s.initiator == nil {
		t.Fatal("expected initiator record to be created")
	}

	var initiatorCookie [16]byte
	for i := range initiatorCookie {
		initiatorCookie[i] = 0xEF
	}
	keyFrameNonce := nonce.New(initiatorCookie, byte(peer.AddressInitiator), byte(s.ourAddress), 0, 0)
	garbage := []byte("not a valid nacl box ciphertext at all")
	s.OnBinary(frameFor(keyFrameNonce, garbage))

	if s.State() != StateClosed {
		t.Fatalf("state = %v, want CLOSED", s.State())
	}
	if ft.closeCode != closecode.InitiatorCouldNotDecrypt {
		t.Fatalf("close code = %v, want InitiatorCouldNotDecrypt", ft.closeCode)
	}
}

// TestTransportSendFailureDrivesStateError checks that a transport-layer
// send failure is surfaced to the application via OnConnectionLost and
// leaves the instance in ERROR rather than running through the normal
// close-code reset path (spec §7's ConnectionError action).
func TestTransportSendFailureDrivesStateError(t *testing.T) {
	s, _, _, ft := newTestResponder(t)

	var lostAddr byte
	var lostCalled bool
	s.Events().OnConnectionLost(func(addr byte) {
		lostCalled = true
		lostAddr = addr
	})

	ft.sendErr = errors.New("connection reset by peer")

	var serverCookie [16]byte
	for i := range serverCookie {
		serverCookie[i] = 0xAB
	}
	serverKey, _ := crypto.NewKeyStore()
	s.OnBinary(serverHelloFrame(serverCookie, serverKey.PublicKey()))

	if s.State() != StateError {
		t.Fatalf("state = %v, want ERROR", s.State())
	}
	if !lostCalled {
		t.Fatal("expected OnConnectionLost to fire")
	}
	if lostAddr != 0 {
		t.Fatalf("lostAddr = %#x, want 0", lostAddr)
	}
}
