package diag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sink receives finished diagnostic contexts for persistence.
type Sink interface {
	Persist(ctx context.Context, dc *DiagnosticContext) error
}

// NopSink discards everything. Used in tests and when diagnostics
// persistence is disabled.
type NopSink struct{}

func (NopSink) Persist(context.Context, *DiagnosticContext) error { return nil }

// MultiSink fans one context out to several sinks. Every sink is attempted;
// errors are joined so one failing backend does not hide the others.
type MultiSink []Sink

func (m MultiSink) Persist(ctx context.Context, dc *DiagnosticContext) error {
	var errs []error
	for _, s := range m {
		if err := s.Persist(ctx, dc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StreamPublisher is the slice of the redis client the stream sink needs.
type StreamPublisher interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// StreamSinkConfig tunes the Redis stream sink. Zero values fall back to
// defaults.
type StreamSinkConfig struct {
	Stream string
	MaxLen int64
}

func (c StreamSinkConfig) withDefaults() StreamSinkConfig {
	if c.Stream == "" {
		c.Stream = "revq:diagnostics"
	}
	if c.MaxLen <= 0 {
		c.MaxLen = 10_000
	}
	return c
}

// StreamSink appends finished contexts to a capped Redis stream so an
// operator can tail recent job diagnostics live.
type StreamSink struct {
	client StreamPublisher
	cfg    StreamSinkConfig
}

func NewStreamSink(client StreamPublisher, cfg StreamSinkConfig) *StreamSink {
	return &StreamSink{client: client, cfg: cfg.withDefaults()}
}

func (s *StreamSink) Persist(ctx context.Context, dc *DiagnosticContext) error {
	traces, err := json.Marshal(dc.Traces)
	if err != nil {
		return fmt.Errorf("marshaling traces: %w", err)
	}
	errorsJSON, err := json.Marshal(dc.Errors)
	if err != nil {
		return fmt.Errorf("marshaling errors: %w", err)
	}

	values := map[string]any{
		"correlation_id": dc.CorrelationID,
		"operation":      dc.Operation,
		"started_at":     dc.StartTime.Format(time.RFC3339Nano),
		"elapsed_ms":     dc.Elapsed().Milliseconds(),
		"trace_count":    len(dc.Traces),
		"error_count":    len(dc.Errors),
		"traces":         string(traces),
		"errors":         string(errorsJSON),
	}
	if dc.EndTime != nil {
		values["ended_at"] = dc.EndTime.Format(time.RFC3339Nano)
	}

	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.cfg.Stream,
		MaxLen: s.cfg.MaxLen,
		Approx: true,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd diagnostic context: %w", err)
	}
	return nil
}

// DiagnosticWriter is implemented by the durable store; declared here so the
// sink does not depend on the store package.
type DiagnosticWriter interface {
	SaveDiagnosticContext(ctx context.Context, dc *DiagnosticContext) error
}

// StoreSink persists finished contexts durably.
type StoreSink struct {
	writer DiagnosticWriter
}

func NewStoreSink(writer DiagnosticWriter) *StoreSink {
	return &StoreSink{writer: writer}
}

func (s *StoreSink) Persist(ctx context.Context, dc *DiagnosticContext) error {
	if err := s.writer.SaveDiagnosticContext(ctx, dc); err != nil {
		return fmt.Errorf("saving diagnostic context: %w", err)
	}
	return nil
}
