package router

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/kryptco/sshkeyd/internal/agentproto"
)

// echoHandler replies with the single byte of the request type, doubled,
// so tests can tell requests and responses apart.
type echoHandler struct{}

func (echoHandler) Handle(cs *agentproto.ClientState, req []byte) []byte {
	if len(req) == 0 {
		return []byte{0}
	}
	return []byte{req[0], req[0]}
}

func frame(body []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	return append(lenBuf[:], body...)
}

func readFrame(t *testing.T, r io.Reader) []byte {
	t.Helper()
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		t.Fatalf("read length: %v", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return body
}

func TestResponsesArriveInRequestOrder(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	router := New(1, serverConn, echoHandler{}, nil)
	go router.Serve()

	reqs := [][]byte{{0x01}, {0x02}, {0x03}}
	go func() {
		for _, req := range reqs {
			clientConn.Write(frame(req))
		}
	}()

	for _, req := range reqs {
		got := readFrame(t, clientConn)
		want := []byte{req[0], req[0]}
		if !bytes.Equal(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestOverlongFrameGetsImmediateFailureThenNextRequestServed(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	router := New(1, serverConn, echoHandler{}, nil)
	go router.Serve()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Declare an overlong body, then actually send that many bytes so
		// the router can drain it, followed by a normal request.
		overlongLen := AgentMaxMsgLen // > AgentMaxMsgLen-4
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(overlongLen))
		clientConn.Write(lenBuf[:])
		clientConn.Write(make([]byte, overlongLen))
		clientConn.Write(frame([]byte{0x07}))
	}()

	first := readFrame(t, clientConn)
	if len(first) != 1 || first[0] != agentFailureByte {
		t.Fatalf("first response = %v, want single-byte failure", first)
	}
	second := readFrame(t, clientConn)
	if !bytes.Equal(second, []byte{0x07, 0x07}) {
		t.Fatalf("second response = %v, want echoed 0x07", second)
	}
	<-done
}

const agentFailureByte = 5 // agentproto.SSHAgentFailure

// TestTeardownDiscardsPendingWithoutPanic exercises the callback-on-freed-
// object hazard guard (spec.md §9): a response that arrives for an
// AsyncOp after its client has already been torn down must be silently
// dropped rather than written to a closed socket or panicking.
func TestTeardownDiscardsPendingWithoutPanic(t *testing.T) {
	_, serverConn := net.Pipe()
	router := New(1, serverConn, echoHandler{}, nil)

	op := router.reserveSlot()
	if router.PendingCount() != 1 {
		t.Fatalf("pending count = %d, want 1", router.PendingCount())
	}

	router.teardown()
	if got := router.PendingCount(); got != 0 {
		t.Fatalf("pending count after teardown = %d, want 0", got)
	}

	// A stray late fill for the now-torn-down op must be a no-op, not a
	// panic or a write to the closed socket.
	router.fill(op, []byte{0x01})
}
