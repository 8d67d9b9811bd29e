package observability

import (
	"io"
	"os"
	"strings"

	"github.com/labstack/gommon/log"
)

// NewLogger returns the process logger.  Entries written with the *j
// methods come out as one JSON object per line.
func NewLogger(prefix, level string) *log.Logger {
	l := log.New(prefix)
	l.SetOutput(os.Stdout)
	l.SetHeader(`{"time":"${time_rfc3339}","level":"${level}","prefix":"${prefix}"}`)
	l.SetLevel(ParseLevel(level))
	return l
}

// Discard returns a logger that drops everything; used in tests and as the
// default for components that were not given one.
func Discard() *log.Logger {
	l := log.New("-")
	l.SetOutput(io.Discard)
	return l
}

// ParseLevel maps debug|info|warn|error|off to a gommon level; anything
// else selects info.
func ParseLevel(s string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}
