// Package router implements C3, the ConnectionRouter: per-client framing,
// request serialization into the handler, and strictly ordered response
// delivery, per spec.md §4.3.
package router

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/op/go-logging"

	"github.com/kryptco/sshkeyd/internal/agentproto"
	"github.com/kryptco/sshkeyd/internal/wire"
)

// AgentMaxMsgLen bounds a single agent message (spec.md §6). A message
// whose declared length would exceed it is "overlong" and gets an
// immediate failure reply without ever reaching the handler.
const AgentMaxMsgLen = 256 * 1024

// RequestHandler is the subset of agentproto.Handler the router depends
// on, so tests can substitute a fake.
type RequestHandler interface {
	Handle(cs *agentproto.ClientState, req []byte) []byte
}

// asyncOp is the reserved response slot named in spec.md §4.3 and §3's
// "Async request (AsyncOp)" entity: created when a request is accepted,
// filled when its response is ready, and flushed once every slot ahead of
// it in the queue is also filled.
type asyncOp struct {
	reqIndex int
	resp     []byte
	filled   bool
}

// Router is C3: one instance per accepted client connection.
type Router struct {
	ConnIndex int

	conn    net.Conn
	handler RequestHandler
	cs      agentproto.ClientState
	log     *logging.Logger

	mu           sync.Mutex
	queue        []*asyncOp
	nextReqIndex int
	closed       bool
}

// New builds a Router for an accepted connection. handler is shared across
// every client (the process-wide KeyStore behind it, per spec.md §5).
func New(connIndex int, conn net.Conn, handler RequestHandler, log *logging.Logger) *Router {
	return &Router{
		ConnIndex: connIndex,
		conn:      conn,
		handler:   handler,
		log:       log,
	}
}

// Serve reads framed requests until the connection closes or errors,
// dispatching each to the handler and writing responses back in strict
// request order (spec.md §4.3's ordering contract, testable property 4).
// It owns conn and closes it before returning.
func (r *Router) Serve() {
	defer r.teardown()
	for {
		length, err := r.readLength()
		if err != nil {
			if err != io.EOF && r.log != nil {
				r.log.Debug("connection closed: " + err.Error())
			}
			return
		}

		op := r.reserveSlot()

		if int(length) > AgentMaxMsgLen-4 {
			// Give the client prompt feedback even while we still have to
			// drain the oversized body off the wire (spec.md §4.3).
			r.fill(op, []byte{agentproto.SSHAgentFailure})
			if err := r.drain(int64(length)); err != nil {
				return
			}
			continue
		}

		body := make([]byte, length)
		if _, err := io.ReadFull(r.conn, body); err != nil {
			return
		}
		resp := r.handler.Handle(&r.cs, body)
		r.fill(op, resp)
	}
}

func (r *Router) readLength() (uint32, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.conn, lenBuf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(lenBuf[:]), nil
}

func (r *Router) drain(n int64) error {
	_, err := io.CopyN(io.Discard, r.conn, n)
	return err
}

// reserveSlot appends an empty response slot before any processing of the
// new request begins, reserving its output position in the queue.
func (r *Router) reserveSlot() *asyncOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := &asyncOp{reqIndex: r.nextReqIndex}
	r.nextReqIndex++
	r.queue = append(r.queue, op)
	return op
}

// fill completes op's response and flushes any filled prefix of the queue.
// A no-op if the client has already been torn down, matching the
// callback-on-freed-object hazard guard in spec.md §9.
func (r *Router) fill(op *asyncOp, resp []byte) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	op.resp = resp
	op.filled = true
	var toWrite [][]byte
	for len(r.queue) > 0 && r.queue[0].filled {
		toWrite = append(toWrite, r.queue[0].resp)
		r.queue = r.queue[1:]
	}
	r.mu.Unlock()

	for _, resp := range toWrite {
		if _, err := r.conn.Write(wire.FrameMessage(resp)); err != nil {
			r.teardown()
			return
		}
	}
}

// teardown closes the socket, discards every still-pending AsyncOp
// without delivering a response, and marks the router invalid so a stray
// fill becomes a no-op (spec.md §4.3, §5 cancellation rules).
func (r *Router) teardown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.queue = nil
	r.mu.Unlock()
	r.conn.Close()
}

// PendingCount reports the number of AsyncOps still awaiting a response —
// exposed for tests.
func (r *Router) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}
