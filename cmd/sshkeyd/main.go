// Command sshkeyd is the daemon entrypoint: it wires the process-wide
// KeyStore and AgentRequestHandler into a Listener bound to a per-user
// Unix socket, following kryptco-kr/krd/main/krd.go's signal-driven
// startup/shutdown shape.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/op/go-logging"

	"github.com/kryptco/sshkeyd/internal/agentproto"
	"github.com/kryptco/sshkeyd/internal/config"
	"github.com/kryptco/sshkeyd/internal/keystore"
	"github.com/kryptco/sshkeyd/internal/klog"
	"github.com/kryptco/sshkeyd/internal/listener"
)

const agentSocketFilename = "sshkeyd-agent.sock"

func useSyslog() bool {
	if env := os.Getenv("SSHKEYD_LOG_SYSLOG"); env != "" {
		return env == "true"
	}
	return true
}

func main() {
	log := klog.Setup("sshkeyd", logging.INFO, useSyslog())

	defer func() {
		if x := recover(); x != nil {
			log.Error(fmt.Sprintf("run time panic: %v", x))
			log.Error(string(debug.Stack()))
			panic(x)
		}
	}()

	stateDir, err := config.StateDir(".sshkeyd")
	if err != nil {
		log.Fatal(err)
	}

	socketPath := filepath.Join(stateDir, agentSocketFilename)
	os.Remove(socketPath)
	lst, err := net.Listen("unix", socketPath)
	if err != nil {
		log.Fatal(err)
	}
	defer lst.Close()

	store := keystore.New()
	handler := &agentproto.Handler{Store: store, Log: log}
	l := listener.New(listener.NewHandlerAdapter(handler), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Serve(ctx, lst)
	}()

	log.Notice("sshkeyd listening on " + socketPath)

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, os.Interrupt, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM)
	sig := <-stopSignal
	log.Notice(fmt.Sprintf("stopping on signal %v", sig))
	cancel()
	<-done
}
