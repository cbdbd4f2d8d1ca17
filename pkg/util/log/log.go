// Package log provides the process-wide bootstrap logger and a leveled
// logger constructor shared by all four services.
package log

import (
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is used for messages emitted before a service's configured logger
// is available (flag parsing, config load failures). Components that are
// already running must use the logger passed to their constructor instead.
var Logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))

// New builds a leveled logfmt logger writing to stdout, filtered by the
// LOG_LEVEL value ("debug", "info", "warn", "error"; defaults to "info").
func New(levelName string) log.Logger {
	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))
	l = log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.Caller(5))
	return level.NewFilter(l, parseLevel(levelName))
}

func parseLevel(name string) level.Option {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return level.AllowDebug()
	case "warn", "warning":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
