package monitoring

import (
	"io"
	"log"
	"sync"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

var (
	writersMu sync.RWMutex
	writers   LogWriters
)

// SetLogWriters configures all three logging streams at once.
// Pass nil for any writer to disable that stream.
func SetLogWriters(w LogWriters) {
	writersMu.Lock()
	defer writersMu.Unlock()
	writers = w
}

// CurrentLogWriters returns the configured writers.
func CurrentLogWriters() LogWriters {
	writersMu.RLock()
	defer writersMu.RUnlock()
	return writers
}

// Streams logs to the shared ops/diag/trace writers with a fixed prefix,
// e.g. "[pipeline] ".
type Streams struct {
	prefix string
}

// NewStreams returns a Streams for the given prefix.
func NewStreams(prefix string) *Streams {
	return &Streams{prefix: prefix}
}

func (s *Streams) printf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		return
	}
	log.New(w, s.prefix, log.LstdFlags|log.Lmicroseconds).Printf(format, args...)
}

// Opsf logs to the ops stream (actionable warnings, errors, lifecycle events).
func (s *Streams) Opsf(format string, args ...interface{}) {
	s.printf(CurrentLogWriters().Ops, format, args...)
}

// Diagf logs to the diag stream (run parameters, partition layout, timing).
func (s *Streams) Diagf(format string, args ...interface{}) {
	s.printf(CurrentLogWriters().Diag, format, args...)
}

// Tracef logs to the trace stream (per-collective telemetry).
func (s *Streams) Tracef(format string, args ...interface{}) {
	s.printf(CurrentLogWriters().Trace, format, args...)
}
