// Package scannerctx carries the process-wide configuration and per-scan
// mutable state (parse status, memory tracker) that would otherwise be a
// parent pointer shared by every column reader. Passing it explicitly keeps
// readers acyclic.
package scannerctx

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/hexlake/pqscan/internal/scanlog"
	"github.com/hexlake/pqscan/internal/scanmetrics"
	"github.com/hexlake/pqscan/schema"
)

// MemTracker is the injected memory-accounting collaborator (§6).
type MemTracker interface {
	TryConsume(bytes int64) bool
	Release(bytes int64)
	LimitExceeded(state, detail string, size int64) error
}

// UnboundedTracker is a MemTracker that never rejects an allocation; useful
// for tests and for embedding contexts with no memory budget.
type UnboundedTracker struct{}

func (UnboundedTracker) TryConsume(int64) bool                          { return true }
func (UnboundedTracker) Release(int64)                                  {}
func (UnboundedTracker) LimitExceeded(state, detail string, size int64) error {
	return errors.Newf("mem_limit_exceeded: %s: %s (%d bytes)", state, detail, size)
}

// Config holds the four process-wide options of §6.
type Config struct {
	ConvertLegacyHiveParquetUTCTimestamps bool
	ParquetMinFilterRejectRatio           float64
	MaxPageHeaderSize                     int
	FallbackSchemaResolution              schema.NameResolution
	AbortOnError                          bool
	BatchSize                             int
}

// DefaultConfig matches the §6 table's defaults.
func DefaultConfig() Config {
	return Config{
		ParquetMinFilterRejectRatio: 0.1,
		MaxPageHeaderSize:           8 << 20,
		FallbackSchemaResolution:    schema.ByPosition,
		AbortOnError:                true,
		BatchSize:                   1024,
	}
}

// Ctx is the per-scan context threaded through every reader call: the
// config, a sticky parse_status that decoder-level errors accumulate into
// without unwinding the tight inner loops, the memory tracker, and the
// scan's logging/metrics identity.
type Ctx struct {
	Config  Config
	Mem     MemTracker
	Logger  log.Logger
	Metrics *scanmetrics.Metrics
	ScanID  uuid.UUID

	mu        sync.Mutex
	parseErr  error
	cancelled bool
}

// New constructs a Ctx with a freshly generated scan identifier. mem, when
// nil, defaults to an UnboundedTracker; Logger defaults to a no-op logger
// annotated with the scan id once set via WithLogger; Metrics is nil
// (disabled) until set via WithMetrics.
func New(cfg Config, mem MemTracker) *Ctx {
	if mem == nil {
		mem = UnboundedTracker{}
	}
	scanID := uuid.New()
	return &Ctx{
		Config: cfg,
		Mem:    mem,
		Logger: scanlog.WithScanID(scanlog.NewNop(), scanID.String()),
		ScanID: scanID,
	}
}

// WithLogger replaces c's logger, re-annotating it with c's scan id.
func (c *Ctx) WithLogger(l log.Logger) *Ctx {
	c.Logger = scanlog.WithScanID(l, c.ScanID.String())
	return c
}

// WithMetrics attaches a metrics sink to c.
func (c *Ctx) WithMetrics(m *scanmetrics.Metrics) *Ctx {
	c.Metrics = m
	return c
}

// SetParseError records a decoder-level error if one is not already
// recorded; first error wins, matching the source's "capture, don't
// unwind" policy.
func (c *Ctx) SetParseError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.parseErr == nil {
		c.parseErr = err
		scanlog.Warnf(c.Logger, "captured parse error", "err", err)
	}
}

// ParseError returns the currently recorded parse error, if any.
func (c *Ctx) ParseError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parseErr
}

// ResetParseError clears the recorded error; called between row groups so
// one bad group need not poison the scan when AbortOnError is false.
func (c *Ctx) ResetParseError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parseErr = nil
}

// Cancel marks the scan cancelled; checked at the top of each assemble-loop
// iteration.
func (c *Ctx) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
}

func (c *Ctx) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// ErrCancelled and ErrLimitReached are control-flow signals, not failures.
var (
	ErrCancelled    = errors.New("cancelled")
	ErrLimitReached = errors.New("limit reached")
)
