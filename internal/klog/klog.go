// Package klog sets up the process-wide logger and contains the
// recover-to-log helper used to keep one connection's panic from taking
// down the daemon.
package klog

import (
	"fmt"
	stdlog "log"
	"log/syslog"
	"os"
	"runtime/debug"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("")

var syslogFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.6s} ▶ %{message}`,
)

var stderrFormat = logging.MustStringFormatter(
	`%{color}sshkeyd ▶ %{message}%{color:reset}`,
)

// Setup configures the process logger. prefix identifies the process in
// syslog; defaultLevel is used unless SSHKEYD_LOG_LEVEL overrides it.
func Setup(prefix string, defaultLevel logging.Level, trySyslog bool) *logging.Logger {
	// The level below is set per module name, so the logger must log
	// under prefix for it to take effect.
	log.Module = prefix
	var backend logging.Backend
	if trySyslog {
		b, err := logging.NewSyslogBackendPriority(prefix, syslog.LOG_NOTICE)
		if err == nil {
			logging.SetFormatter(syslogFormat)
			if sb, ok := b.(*logging.SyslogBackend); ok {
				stdlog.SetOutput(sb.Writer)
			}
			backend = b
		}
	}
	if backend == nil {
		backend = logging.NewLogBackend(os.Stderr, prefix, 0)
		logging.SetFormatter(stderrFormat)
	}

	leveled := logging.AddModuleLevel(backend)
	switch os.Getenv("SSHKEYD_LOG_LEVEL") {
	case "CRITICAL":
		leveled.SetLevel(logging.CRITICAL, prefix)
	case "ERROR":
		leveled.SetLevel(logging.ERROR, prefix)
	case "WARNING":
		leveled.SetLevel(logging.WARNING, prefix)
	case "NOTICE":
		leveled.SetLevel(logging.NOTICE, prefix)
	case "INFO":
		leveled.SetLevel(logging.INFO, prefix)
	case "DEBUG":
		leveled.SetLevel(logging.DEBUG, prefix)
	default:
		leveled.SetLevel(defaultLevel, prefix)
	}

	logging.SetBackend(leveled)
	return log
}

// Get returns the process logger, configured or not.
func Get() *logging.Logger { return log }

// RecoverToLog recovers a panic in f and logs it rather than crashing the
// process. Intended for goroutines spawned per client connection.
func RecoverToLog(log *logging.Logger, f func()) {
	defer func() {
		if x := recover(); x != nil {
			if log != nil {
				log.Error(fmt.Sprintf("run time panic: %v", x))
				log.Error(string(debug.Stack()))
			}
		}
	}()
	f()
}
