package wsipc

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// EnvLogLevel overrides the level of the default logger, e.g. WSIPC_LOG_LEVEL=debug
const EnvLogLevel = "WSIPC_LOG_LEVEL"

var pkgLogger atomic.Pointer[zerolog.Logger]

func init() {
	level := zerolog.InfoLevel
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}
	SetLogger(NewConsoleLogger(os.Stderr, level))
}

// NewConsoleLogger returns a human-readable logger writing to `w`
func NewConsoleLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(level).With().Timestamp().Str("component", "wsipc").Logger()
}

// SetLogger replaces the logger used by the package. Use zerolog.Nop() to silence it.
func SetLogger(l zerolog.Logger) {
	pkgLogger.Store(&l)
}

// Logger returns the logger used by the package
func Logger() *zerolog.Logger {
	return pkgLogger.Load()
}

// ParseLevel maps a level name to a zerolog level. The second result is false for unknown or
// empty names.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}
