package log

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"

	"symgrep/internal/logging"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
	logger      *logging.LoggerCloser
)

// Setup installs the charm logger as the slog default. debug forces the
// debug level and caller reporting regardless of SYMGREP_LOG_LEVEL. Only the
// first call has an effect.
func Setup(debug bool) {
	initOnce.Do(func() {
		logger = logging.NewLogger()
		if debug || logging.IsDebug() {
			logger.SetLevel(charmlog.DebugLevel)
			logger.SetReportCaller(true)
		}

		slog.SetDefault(slog.New(logger.Logger))
		initialized.Store(true)
	})
}

// Close flushes and closes the log file, if any.
func Close() error {
	if logger == nil {
		return nil
	}
	return logger.Close()
}

func Initialized() bool {
	return initialized.Load()
}

func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		if Initialized() {
			slog.Error(fmt.Sprintf("Panic in %s", name),
				"panic", r,
				"stack", string(debug.Stack()))
		}
		if cleanup != nil {
			cleanup()
		}
	}
}
