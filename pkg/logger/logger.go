package logger

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"

	"github.com/op/go-logging"
)

// Module is the go-logging module name shared by all packages
const Module = "upcache"

var format = logging.MustStringFormatter("[%{level}] %{module}: %{message}")

/*
InitLogger points the shared logging backend at logFile (or stderr when
logFile is empty) and returns the application logger. Every package that
calls logging.MustGetLogger writes through the same backend.
*/
func InitLogger(logFile string, level logging.Level) (*logging.Logger, error) {
	var writer io.Writer = os.Stderr
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", logFile, err)
		}
		writer = file
	}

	backend := logging.NewLogBackend(writer, "", stdlog.LstdFlags|stdlog.LUTC)
	leveled := logging.AddModuleLevel(logging.NewBackendFormatter(backend, format))
	leveled.SetLevel(level, "")
	logging.SetBackend(leveled)

	return logging.MustGetLogger(Module), nil
}

// New returns a logger with its own backend writing to w, leaving the
// shared backend alone
func New(w io.Writer, level logging.Level) *logging.Logger {
	log := logging.MustGetLogger(Module)
	backend := logging.NewLogBackend(w, "", 0)
	leveled := logging.AddModuleLevel(logging.NewBackendFormatter(backend, format))
	leveled.SetLevel(level, "")
	log.SetBackend(leveled)
	return log
}

// ParseLevel maps a level name (debug, info, warning, error, ...) to a
// logging.Level. Empty means WARNING.
func ParseLevel(name string) (logging.Level, error) {
	if strings.TrimSpace(name) == "" {
		return logging.WARNING, nil
	}
	level, err := logging.LogLevel(strings.ToUpper(strings.TrimSpace(name)))
	if err != nil {
		return logging.WARNING, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}
