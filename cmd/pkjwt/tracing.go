package main

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/pkjwt/pkjwt/internal/config"
)

const instrumentationName = "github.com/pkjwt/pkjwt"

// newTracerProvider returns the provider spans are recorded with and a
// shutdown func that flushes it.
func newTracerProvider(cfg config.TracingConfig, w io.Writer) (trace.TracerProvider, func(context.Context) error, error) {
	switch cfg.GetExporter() {
	case config.TraceExporterStdout:
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(exporter),
			sdktrace.WithResource(sdkresource.NewSchemaless(
				attribute.String("service.name", cfg.GetServiceName()),
			)),
		)
		return tp, tp.Shutdown, nil
	default:
		return otel.GetTracerProvider(), func(context.Context) error { return nil }, nil
	}
}
