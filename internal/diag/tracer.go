// Package diag provides per-job diagnostic tracing. Each job owns one
// DiagnosticContext for its lifetime; the tracer keeps live contexts in a
// registry and hands finished ones to a Sink for persistence.
package diag

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"revq.app/revq/common/id"
)

// TraceEntry is one timestamped event within a context.
type TraceEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

// ErrorEntry is one recorded error within a context.
type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
}

// DiagnosticContext accumulates the trace of one job. While the context is
// live all mutation goes through the tracer, under its lock; readers only
// ever see detached copies.
type DiagnosticContext struct {
	CorrelationID string       `json:"correlation_id"`
	Operation     string       `json:"operation"`
	StartTime     time.Time    `json:"start_time"`
	EndTime       *time.Time   `json:"end_time,omitempty"`
	Traces        []TraceEntry `json:"traces"`
	Errors        []ErrorEntry `json:"errors"`
}

// Elapsed returns how long the operation has run, or its total duration once
// ended.
func (d *DiagnosticContext) Elapsed() time.Duration {
	if d.EndTime != nil {
		return d.EndTime.Sub(d.StartTime)
	}
	return time.Since(d.StartTime)
}

// Tracer owns the live registry of diagnostic contexts.
type Tracer struct {
	mu       sync.RWMutex
	contexts map[string]*DiagnosticContext
	sink     Sink
}

func NewTracer(sink Sink) *Tracer {
	if sink == nil {
		sink = NopSink{}
	}
	return &Tracer{
		contexts: make(map[string]*DiagnosticContext),
		sink:     sink,
	}
}

// Start registers a new context for the given operation. If correlationID is
// empty a fresh one is generated. Returns the correlation id used.
func (t *Tracer) Start(operation, correlationID string) string {
	if correlationID == "" {
		correlationID = id.NewString()
	}
	dc := &DiagnosticContext{
		CorrelationID: correlationID,
		Operation:     operation,
		StartTime:     time.Now().UTC(),
	}

	t.mu.Lock()
	t.contexts[correlationID] = dc
	t.mu.Unlock()
	return correlationID
}

// AddTrace appends a timestamped event to the context. Unknown correlation
// ids are ignored; after End the job's trace is closed.
func (t *Tracer) AddTrace(correlationID, event string, data map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dc := t.contexts[correlationID]
	if dc == nil {
		return
	}
	dc.Traces = append(dc.Traces, TraceEntry{
		Timestamp: time.Now().UTC(),
		Event:     event,
		Data:      data,
	})
}

// AddError records an error against the context.
func (t *Tracer) AddError(correlationID, errType, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dc := t.contexts[correlationID]
	if dc == nil {
		return
	}
	dc.Errors = append(dc.Errors, ErrorEntry{
		Timestamp: time.Now().UTC(),
		Type:      errType,
		Message:   message,
	})
}

// End stamps the end time, removes the context from the live registry, and
// hands it to the sink. Sink failures are logged, never propagated: a broken
// diagnostics store must not fail jobs.
func (t *Tracer) End(ctx context.Context, correlationID string) {
	t.mu.Lock()
	dc := t.contexts[correlationID]
	delete(t.contexts, correlationID)
	t.mu.Unlock()
	if dc == nil {
		return
	}

	now := time.Now().UTC()
	dc.EndTime = &now

	if err := t.sink.Persist(ctx, dc); err != nil {
		slog.ErrorContext(ctx, "failed to persist diagnostic context",
			"correlation_id", correlationID,
			"operation", dc.Operation,
			"error", err)
	}
}

// Active returns a copy-on-read snapshot of the live contexts. The copies
// are detached from the registry: workers keep appending to the originals
// while callers inspect the snapshot.
func (t *Tracer) Active() []DiagnosticContext {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]DiagnosticContext, 0, len(t.contexts))
	for _, dc := range t.contexts {
		out = append(out, snapshot(dc))
	}
	return out
}

// Get returns a snapshot of the live context for a correlation id, or nil
// once ended.
func (t *Tracer) Get(correlationID string) *DiagnosticContext {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dc := t.contexts[correlationID]
	if dc == nil {
		return nil
	}
	cp := snapshot(dc)
	return &cp
}

func snapshot(dc *DiagnosticContext) DiagnosticContext {
	cp := *dc
	cp.Traces = append([]TraceEntry(nil), dc.Traces...)
	cp.Errors = append([]ErrorEntry(nil), dc.Errors...)
	return cp
}
