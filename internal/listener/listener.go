// Package listener implements C4: it accepts client connections on a
// stream listener and spawns a ConnectionRouter for each, surviving
// individual connection failures (spec.md §4.4). Platform-specific
// listener socket creation (named pipe vs Unix socket) is out of scope —
// callers hand this package an already-constructed net.Listener, following
// the accept-loop shape of kryptco-kr/krd/ssh_agent.go's ServeKRAgent and
// tailscale-tskagent/tskagent.go's Server.Serve.
package listener

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/op/go-logging"

	"github.com/kryptco/sshkeyd/internal/agentproto"
	"github.com/kryptco/sshkeyd/internal/klog"
	"github.com/kryptco/sshkeyd/internal/router"
)

// Listener is C4.
type Listener struct {
	handler router.RequestHandler
	log     *logging.Logger

	nextConnIndex int64
	wg            sync.WaitGroup
}

// New builds a Listener that dispatches every accepted connection to
// handler (normally a shared *agentproto.Handler backed by the process's
// single KeyStore, per spec.md §5).
func New(handler router.RequestHandler, log *logging.Logger) *Listener {
	return &Listener{handler: handler, log: log}
}

// Serve accepts connections from lst until it closes or ctx is cancelled.
// Each connection gets its own ConnectionRouter and its own goroutine,
// wrapped in klog.RecoverToLog so one client's panic cannot take the
// daemon down.
func (l *Listener) Serve(ctx context.Context, lst net.Listener) {
	go func() {
		<-ctx.Done()
		lst.Close()
	}()

	for {
		conn, err := lst.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && l.log != nil {
				l.log.Error("accept error: " + err.Error())
			}
			break
		}
		connIndex := int(atomic.AddInt64(&l.nextConnIndex, 1))
		r := router.New(connIndex, conn, l.handler, l.log)

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			klog.RecoverToLog(l.log, r.Serve)
		}()
	}
	l.wg.Wait()
}

// NewHandlerAdapter is a convenience constructor for the common case of
// wiring a fresh agentproto.Handler straight into a Listener.
func NewHandlerAdapter(h *agentproto.Handler) router.RequestHandler {
	return h
}
