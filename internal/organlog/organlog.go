// Package organlog wraps charmbracelet/log for init-time and
// control-thread logging. The audio callback itself never
// logs: logging blocks, and nothing may block on the audio thread.
package organlog

import (
	"os"

	"github.com/charmbracelet/log"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Prefix:          "organd",
})

// Logger returns the package-level logger, for callers that want direct
// access to charmbracelet/log's structured With()/WithPrefix() API.
func Logger() *log.Logger { return logger }

// Info logs an init-time or control-thread decision.
func Info(msg string, keyvals ...interface{}) {
	logger.Info(msg, keyvals...)
}

// Warn logs a recoverable configuration error.
func Warn(msg string, keyvals ...interface{}) {
	logger.Warn(msg, keyvals...)
}

// Fatal logs and exits, for allocation failures at init.
func Fatal(msg string, keyvals ...interface{}) {
	logger.Fatal(msg, keyvals...)
}
