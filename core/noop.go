package core

import "context"

// NoopLogger discards every log line.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any) {}
func (NoopLogger) Info(string, ...any) {}
func (NoopLogger) Warn(string, ...any) {}
func (NoopLogger) Error(string, ...any) {}

// NoopMetrics is a default metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) IncCounter(string, map[string]string) {}
func (NoopMetrics) ObserveHistogram(string, float64, map[string]string) {}

// NoopTracer is a default tracer that does nothing.
type NoopTracer struct{}

func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, NoopSpan{}
}

// NoopSpan is the span returned by NoopTracer.
type NoopSpan struct{}

func (NoopSpan) SetTag(string, any) {}
func (NoopSpan) RecordError(error) {}
func (NoopSpan) End() {}
