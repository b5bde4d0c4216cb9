package main

import (
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/ipoluianov/gomisc/logger"
	"github.com/saltyrtc/saltyrtc-go/closecode"
	"github.com/saltyrtc/saltyrtc-go/saltyconfig"
	"github.com/saltyrtc/saltyrtc-go/transport"
)

// frameSignature and frameHeaderSize mirror the teacher's own 0xAA-prefixed,
// length-prefixed TCP framing in xchg/connection.go, reused here as the
// stand-in transport the daemon dials with: a real net.Conn carrying
// length-prefixed binary frames, since a WebSocket client library is kept
// outside this module's dependency surface (see transport.Transport's doc).
const (
	frameSignature  = 0xAA
	frameHeaderSize = 5 // signature(1) + length(4, little-endian)
	maxFrameSize    = 256 * 1024
)

// tcpTransport implements transport.Transport over a single net.Conn,
// redialing with the configured linear backoff on disconnect, following
// the dial-loop shape of xchg/connection.go's thReceive.
type tcpTransport struct {
	addr    string
	connect saltyconfig.Connect
	handler transport.Handler

	mtx  sync.Mutex
	conn net.Conn

	stop chan struct{}
}

func newTCPTransport(addr string, connect saltyconfig.Connect, handler transport.Handler) *tcpTransport {
	return &tcpTransport{addr: addr, connect: connect, handler: handler, stop: make(chan struct{})}
}

// Run dials addr and processes inbound frames until Close is called or the
// connection is refused for good. It blocks; callers run it in a goroutine.
func (t *tcpTransport) Run() {
	attempts := 0
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		conn, err := net.DialTimeout("tcp", t.addr, t.connect.Timeout())
		if err != nil {
			attempts++
			if t.connect.AttemptsMax > 0 && attempts >= t.connect.AttemptsMax {
				logger.Println("[ERROR]", "tcpTransport.Run", "giving up after", attempts, "attempts:", err)
				return
			}
			logger.Println("tcpTransport.Run", "dial failed, retrying:", err)
			time.Sleep(t.connect.LinearBackoff() * time.Duration(attempts))
			continue
		}
		attempts = 0

		t.mtx.Lock()
		t.conn = conn
		t.mtx.Unlock()

		t.receiveLoop(conn)

		select {
		case <-t.stop:
			return
		default:
		}
	}
}

func (t *tcpTransport) receiveLoop(conn net.Conn) {
	buf := make([]byte, maxFrameSize)
	offset := 0
	for {
		n, err := conn.Read(buf[offset:])
		if err != nil {
			_ = conn.Close()
			t.handler.OnClose(closecode.Abnormal, err.Error())
			return
		}
		offset += n

		processed := 0
		for {
			rest := offset - processed
			if rest < frameHeaderSize {
				break
			}
			if buf[processed] != frameSignature {
				processed++
				continue
			}
			frameLen := int(binary.LittleEndian.Uint32(buf[processed+1:]))
			if frameLen < frameHeaderSize || frameLen > maxFrameSize {
				_ = conn.Close()
				t.handler.OnClose(closecode.ProtocolErrorTransport, "invalid frame length")
				return
			}
			if rest < frameLen {
				break
			}
			body := buf[processed+frameHeaderSize : processed+frameLen]
			t.handler.OnBinary(append([]byte(nil), body...))
			processed += frameLen
		}
		copy(buf, buf[processed:offset])
		offset -= processed
	}
}

// Send implements transport.Transport.
func (t *tcpTransport) Send(frame []byte) error {
	t.mtx.Lock()
	conn := t.conn
	t.mtx.Unlock()
	if conn == nil {
		return errors.New("tcpTransport: not connected")
	}
	header := make([]byte, frameHeaderSize)
	header[0] = frameSignature
	binary.LittleEndian.PutUint32(header[1:], uint32(frameHeaderSize+len(frame)))
	out := append(header, frame...)

	sent := 0
	for sent < len(out) {
		n, err := conn.Write(out[sent:])
		if err != nil {
			return err
		}
		sent += n
	}
	return nil
}

// Close implements transport.Transport.
func (t *tcpTransport) Close(code closecode.Code) error {
	close(t.stop)
	t.mtx.Lock()
	conn := t.conn
	t.mtx.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
