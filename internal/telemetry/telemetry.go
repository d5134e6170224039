// Package telemetry sets up OpenTelemetry tracing. Spans are written as
// JSON to a rotating file; with tracing disabled a no-op tracer is returned.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "reelscrape"

// Config controls span export.
type Config struct {
	Enabled bool
	File    string
}

// Telemetry holds the tracer and the resources behind it.
type Telemetry struct {
	Tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	file     *lumberjack.Logger
}

// Setup builds the tracer described by cfg and installs its provider
// globally. Call Shutdown to flush pending spans.
func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{Tracer: noop.NewTracerProvider().Tracer(serviceName)}, nil
	}
	if cfg.File == "" {
		return nil, fmt.Errorf("tracing enabled without a file")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(file))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Telemetry{
		Tracer:   tp.Tracer(serviceName),
		provider: tp,
		file:     file,
	}, nil
}

// Shutdown flushes spans and closes the trace file.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	err := t.provider.Shutdown(ctx)
	if cerr := t.file.Close(); cerr != nil {
		slog.Error("failed to close trace file", "error", cerr)
	}
	if err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	return nil
}
