package signaling

import (
	"testing"

	"github.com/saltyrtc/saltyrtc-go/crypto"
	"github.com/saltyrtc/saltyrtc-go/message"
	"github.com/saltyrtc/saltyrtc-go/nonce"
	"github.com/saltyrtc/saltyrtc-go/peer"
	"github.com/saltyrtc/saltyrtc-go/task"
)

// newTestInitiator mirrors newTestResponder for the initiator role: the
// auth token is generated here (the initiator is the party that mints it
// in a real deployment) rather than received out of band.
func newTestInitiator(t *testing.T) (*Signaling, *crypto.KeyStore, [32]byte, *fakeTransport) {
	t.Helper()
	permKey, err := crypto.NewKeyStore()
	if err != nil {
		t.Fatalf("NewKeyStore: %v", err)
	}
	authToken, err := crypto.GenerateAuthToken()
	if err != nil {
		t.Fatalf("GenerateAuthToken: %v", err)
	}
	tokenBytes := authToken.Bytes()

	cfg := Config{
		Role:         RoleInitiator,
		PermanentKey: permKey,
		AuthToken:    &tokenBytes,
		Tasks:        []task.Task{&fakeTask{name: "t"}},
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ft := &fakeTransport{}
	s.Attach(ft)
	return s, permKey, tokenBytes, ft
}

func TestInitiatorServerHandshakeSendsOnlyClientAuth(t *testing.T) {
	s, permKey, _, ft := newTestInitiator(t)

	var serverCookie [16]byte
	for i := range serverCookie {
		serverCookie[i] = 0xAB
	}
	serverKey, _ := crypto.NewKeyStore()
	serverPub := serverKey.PublicKey()

	s.OnBinary(serverHelloFrame(serverCookie, serverPub))

	// Unlike a responder, the initiator never sends client-hello: the
	// server already knows which path (permanent key) it dialed.
	if len(ft.sent) != 1 {
		t.Fatalf("sent %d frames, want 1 (client-auth only)", len(ft.sent))
	}
	authFrame := ft.sent[0]
	n, err := nonce.Decode(authFrame[:nonce.Size])
	if err != nil {
		t.Fatalf("decode nonce: %v", err)
	}
	serverShared := serverKey.SharedKeyWith(permKey.PublicKey())
	plain, err := serverShared.Decrypt(authFrame[nonce.Size:], n.Encode())
	if err != nil {
		t.Fatalf("decrypt client-auth: %v", err)
	}
	msg, err := message.Decode(plain)
	if err != nil {
		t.Fatalf("decode client-auth: %v", err)
	}
	if _, ok := msg.(*message.ClientAuth); !ok {
		t.Fatalf("frame = %T, want *message.ClientAuth", msg)
	}
	if s.serverState != ServerHSAuthSent {
		t.Fatalf("serverState = %v, want AUTH_SENT", s.serverState)
	}
}

// establishInitiatorServerHandshake drives a fresh initiator through the
// server handshake to PEER_HANDSHAKE with the given candidate responder
// addresses already registered, returning the server keystore used to
// speak for it.
func establishInitiatorServerHandshake(t *testing.T, responderIDs ...byte) (*Signaling, *crypto.KeyStore, *crypto.KeyStore, *fakeTransport, [16]byte) {
	t.Helper()
	s, permKey, _, ft := newTestInitiator(t)

	var serverCookie [16]byte
	for i := range serverCookie {
		serverCookie[i] = 0xAB
	}
	serverKey, _ := crypto.NewKeyStore()
	s.OnBinary(serverHelloFrame(serverCookie, serverKey.PublicKey()))
	ft.sent = nil

	ourCookie := s.server.Cookies.Ours.Bytes()
	n := nonce.New(serverCookie, byte(peer.AddressServer), byte(peer.AddressInitiator), 0, 1)
	authMsg := &message.ServerAuth{
		MsgType:    message.TypeServerAuth,
		YourCookie: ourCookie,
		Responders: responderIDs,
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

func TestInitiatorPeerHandshakeTracksServerAuthResponders(t *testing.T) {
	s, _, _, ft, _ := establishInitiatorServerHandshake(t, 0x02, 0x03)

	if s.ourAddress != peer.AddressInitiator {
		t.Fatalf("ourAddress = %#x, want 0x01", s.ourAddress)
	}
	if len(s.responders) != 2 {
		t.Fatalf("got %d responder candidates, want 2", len(s.responders))
	}
	if _, ok := s.responders[peer.Address(0x02)]; !ok {
		t.Fatal("missing responder candidate 0x02")
	}
	if _, ok := s.responders[peer.Address(0x03)]; !ok {
		t.Fatal("missing responder candidate 0x03")
	}
	// The initiator only tracks candidates locally; it never speaks first.
	if len(ft.sent) != 0 {
		t.Fatalf("sent %d frames after server-auth, want 0", len(ft.sent))
	}
}

// fakeResponder drives the responder side of a peer handshake by hand,
// encrypting each step against the initiator under test's real key
// material, to exercise handleResponderFrame end to end.
type fakeResponder struct {
	t          *testing.T
	addr       peer.Address
	cookie     [16]byte
	key        *crypto.KeyStore
	seq        uint32
	authToken  *crypto.AuthToken
	initPerm   [32]byte
	sessionKey *crypto.KeyStore
	shared     *crypto.SharedKeyStore
}

func newFakeResponder(t *testing.T, addr peer.Address, initiatorPermPub [32]byte, authTokenBytes [32]byte) *fakeResponder {
	t.Helper()
	key, err := crypto.NewKeyStore()
	if err != nil {
		t.Fatalf("NewKeyStore: %v", err)
	}
	var cookie [16]byte
	for i := range cookie {
		cookie[i] = 0xEE
	}
	return &fakeResponder{
		t:         t,
		addr:      addr,
		cookie:    cookie,
		key:       key,
		authToken: crypto.NewAuthToken(authTokenBytes),
		initPerm:  initiatorPermPub,
		shared:    key.SharedKeyWith(initiatorPermPub),
	}
}

func (r *fakeResponder) nextNonce() nonce.Nonce {
	n := nonce.New(r.cookie, byte(r.addr), byte(peer.AddressInitiator), 0, r.seq)
	r.seq++
	return n
}

func (r *fakeResponder) tokenFrame() []byte {
	n := r.nextNonce()
	body, _ := message.Encode(message.NewToken(pubKeySlice(r.key.PublicKey())))
	ct, err := r.authToken.Encrypt(body, n.Encode())
	if err != nil {
		r.t.Fatalf("auth token encrypt: %v", err)
	}
	return frameFor(n, ct)
}

func (r *fakeResponder) keyFrame() []byte {
	sk, err := crypto.NewKeyStore()
	if err != nil {
		r.t.Fatalf("NewKeyStore: %v", err)
	}
	r.sessionKey = sk
	n := r.nextNonce()
	body, _ := message.Encode(message.NewKey(pubKeySlice(sk.PublicKey())))
	ct := r.shared.Encrypt(body, n.Encode())
	return frameFor(n, ct)
}

func (r *fakeResponder) authFrame(yourCookie [16]byte, theirSessionPub [32]byte, tasks []string) []byte {
	sessionShared := r.sessionKey.SharedKeyWith(theirSessionPub)
	n := r.nextNonce()
	data := map[string]map[string]interface{}{tasks[0]: {"ready": true}}
	body, _ := message.Encode(message.NewResponderAuth(yourCookie[:], tasks, data))
	ct := sessionShared.Encrypt(body, n.Encode())
	return frameFor(n, ct)
}

func TestInitiatorPeerHandshakeFullFlowReachesTask(t *testing.T) {
	s, permKey, _, ft, _ := establishInitiatorServerHandshake(t, 0x02)

	respAddr := peer.Address(0x02)
	fr := newFakeResponder(t, respAddr, permKey.PublicKey(), *s.cfg.AuthToken)

	// 1. token: responder reveals its permanent key.
	s.OnBinary(fr.tokenFrame())
	rp := s.responders[respAddr]
	if rp == nil || rp.State != peer.ResponderTokenReceived {
		t.Fatalf("after token: rp.State = %v, want TOKEN_RECEIVED", rp)
	}

	// 2. key: responder sends its session public key; initiator replies
	// with its own session key.
	ft.sent = nil
	s.OnBinary(fr.keyFrame())
	if rp.State != peer.ResponderKeyReceived {
		t.Fatalf("after key: rp.State = %v, want KEY_RECEIVED", rp.State)
	}
	if len(ft.sent) != 1 {
		t.Fatalf("sent %d frames after key, want 1 (initiator's key reply)", len(ft.sent))
	}
	replyFrame := ft.sent[0]
	replyN, err := nonce.Decode(replyFrame[:nonce.Size])
	if err != nil {
		t.Fatalf("decode nonce: %v", err)
	}
	replyShared := fr.key.SharedKeyWith(permKey.PublicKey())
	plain, err := replyShared.Decrypt(replyFrame[nonce.Size:], replyN.Encode())
	if err != nil {
		t.Fatalf("decrypt initiator key reply: %v", err)
	}
	replyMsg, err := message.Decode(plain)
	if err != nil {
		t.Fatalf("decode initiator key reply: %v", err)
	}
	keyReply, ok := replyMsg.(*message.Key)
	if !ok {
		t.Fatalf("reply = %T, want *message.Key", replyMsg)
	}
	var initiatorSessionPub [32]byte
	copy(initiatorSessionPub[:], keyReply.Key)

	// 3. auth: responder confirms the handshake and proposes tasks.
	ft.sent = nil
	s.OnBinary(fr.authFrame(rp.Cookies.Ours, initiatorSessionPub, []string{"t"}))

	if s.State() != StateTask {
		t.Fatalf("state = %v, want TASK", s.State())
	}
	if rp.State != peer.ResponderAuthReceived {
		t.Fatalf("rp.State = %v, want AUTH_RECEIVED", rp.State)
	}
	if len(ft.sent) != 1 {
		t.Fatalf("sent %d frames after auth, want 1 (initiator auth reply)", len(ft.sent))
	}
	ft2, ok := s.selectedTask.(*fakeTask)
	if !ok {
		t.Fatalf("selectedTask = %T, want *fakeTask", s.selectedTask)
	}
	if !ft2.handshakeRan {
		t.Fatal("expected OnPeerHandshakeDone to have run")
	}
}
