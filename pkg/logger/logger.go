// Package logger configures slog for the compass pipeline.
//
// Two concerns live here: process-wide logger setup (level parsing, file
// handling, output formats) and per-jurisdiction log routing. Thousands of
// jurisdiction tasks run concurrently and each one gets its own log file;
// records are tagged with the active jurisdiction taken from the
// context.Context and routed through a queued listener so that log-producing
// tasks never block on disk I/O.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// jurisdictionKey is the context key carrying the active jurisdiction name.
type jurisdictionKey struct{}

// WithJurisdiction returns a context tagged with the given jurisdiction name.
// All log records emitted with this context are routed to that jurisdiction's
// log file by the Listener.
func WithJurisdiction(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, jurisdictionKey{}, name)
}

// JurisdictionFromContext returns the jurisdiction name bound to ctx, if any.
func JurisdictionFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(jurisdictionKey{}).(string)
	return name, ok
}

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error. Unknown levels fall back to warn.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// record is a log line captured off the hot path, already rendered.
type record struct {
	jurisdiction string
	line         string
}

// Listener fans log records out to per-jurisdiction files through a buffered
// queue. Records with no jurisdiction binding go to the main writer. The
// queue decouples producers from disk I/O and preserves per-jurisdiction
// ordering because a single goroutine drains it.
type Listener struct {
	mu      sync.Mutex
	sinks   map[string]io.WriteCloser
	main    io.Writer
	queue   chan record
	done    chan struct{}
	dropped int
}

// NewListener starts a listener draining into main for untagged records.
func NewListener(main io.Writer) *Listener {
	l := &Listener{
		sinks: make(map[string]io.WriteCloser),
		main:  main,
		queue: make(chan record, 4096),
		done:  make(chan struct{}),
	}
	go l.drain()
	return l
}

// AddSink registers a per-jurisdiction sink. The listener takes ownership of
// the writer and closes it on RemoveSink or Close.
func (l *Listener) AddSink(jurisdiction string, w io.WriteCloser) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks[jurisdiction] = w
}

// RemoveSink detaches and closes the sink for a jurisdiction.
func (l *Listener) RemoveSink(jurisdiction string) {
	l.mu.Lock()
	w, ok := l.sinks[jurisdiction]
	delete(l.sinks, jurisdiction)
	l.mu.Unlock()
	if ok {
		_ = w.Close()
	}
}

// Close flushes the queue and closes every sink.
func (l *Listener) Close() {
	close(l.queue)
	<-l.done
	l.mu.Lock()
	defer l.mu.Unlock()
	for name, w := range l.sinks {
		_ = w.Close()
		delete(l.sinks, name)
	}
}

func (l *Listener) enqueue(rec record) {
	select {
	case l.queue <- rec:
	default:
		// Queue full: drop rather than block a pipeline task on logging.
		l.mu.Lock()
		l.dropped++
		l.mu.Unlock()
	}
}

func (l *Listener) drain() {
	defer close(l.done)
	for rec := range l.queue {
		l.mu.Lock()
		var w io.Writer
		if sink, ok := l.sinks[rec.jurisdiction]; ok && rec.jurisdiction != "" {
			w = sink
		} else {
			w = l.main
		}
		_, _ = io.WriteString(w, rec.line)
		l.mu.Unlock()
	}
}

// routingHandler renders records and hands them to the listener, keyed by the
// jurisdiction bound to the record's context.
type routingHandler struct {
	listener *Listener
	minLevel slog.Level
	attrs    []slog.Attr
	group    string
}

// NewRoutingHandler returns a slog.Handler that routes records through the
// given listener.
func NewRoutingHandler(listener *Listener, level slog.Level) slog.Handler {
	return &routingHandler{listener: listener, minLevel: level}
}

func (h *routingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *routingHandler) Handle(ctx context.Context, r slog.Record) error {
	var buf strings.Builder
	if !r.Time.IsZero() {
		buf.WriteString(r.Time.Format("2006/01/02 15:04:05 "))
	}
	levelStr := r.Level.String()
	if levelStr == "WARNING" {
		levelStr = "WARN"
	}
	buf.WriteString(strings.ToUpper(levelStr))
	buf.WriteString(" ")
	buf.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&buf, h.group, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, h.group, a)
		return true
	})
	buf.WriteString("\n")

	jurisdiction, _ := JurisdictionFromContext(ctx)
	h.listener.enqueue(record{jurisdiction: jurisdiction, line: buf.String()})
	return nil
}

func writeAttr(buf *strings.Builder, group string, a slog.Attr) {
	buf.WriteString(" ")
	if group != "" {
		buf.WriteString(group)
		buf.WriteString(".")
	}
	buf.WriteString(a.Key)
	buf.WriteString("=")
	buf.WriteString(a.Value.String())
}

func (h *routingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *routingHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

// Init installs a routing logger as the process default and returns the
// listener that owns the per-jurisdiction sinks.
func Init(level slog.Level, main io.Writer) *Listener {
	listener := NewListener(main)
	slog.SetDefault(slog.New(NewRoutingHandler(listener, level)))
	return listener
}

// OpenLogFile opens or creates a log file at the specified path.
func OpenLogFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
