// Package scanlog is the scanner's structured logging ambient stack: a thin
// set of leveled helpers over go-kit/log, the shape frostdb wires its own
// compaction/WAL logging through.
package scanlog

import (
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// NewLogfmt returns a logfmt-encoded logger writing to stderr, timestamped
// and annotated with the calling file:line.
func NewLogfmt() log.Logger {
	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	return log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

// NewNop returns a logger that discards everything, the default for
// contexts that never configure one.
func NewNop() log.Logger { return log.NewNopLogger() }

// WithScanID returns l annotated with a scan identifier, attached to every
// line a given scan emits.
func WithScanID(l log.Logger, scanID string) log.Logger {
	return log.With(l, "scan_id", scanID)
}

func orNop(l log.Logger) log.Logger {
	if l == nil {
		return NewNop()
	}
	return l
}

func Debugf(l log.Logger, msg string, kvs ...interface{}) {
	_ = level.Debug(orNop(l)).Log(append([]interface{}{"msg", msg}, kvs...)...)
}

func Warnf(l log.Logger, msg string, kvs ...interface{}) {
	_ = level.Warn(orNop(l)).Log(append([]interface{}{"msg", msg}, kvs...)...)
}

func Errorf(l log.Logger, msg string, kvs ...interface{}) {
	_ = level.Error(orNop(l)).Log(append([]interface{}{"msg", msg}, kvs...)...)
}
