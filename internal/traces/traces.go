// Package traces wires OpenTelemetry for Safe Shield.
//
// An analysis produces one span per call to the shield service
// (shield.AnalyzeRecipients, shield.AnalyzeContract, shield.AnalyzeThreat)
// with a child span for each source it consults: backend.*, activity.Check
// and hypernative.Assess. Spans carry the chain id and Safe address, so a
// slow or failing source can be traced back to the Safe that triggered it.
package traces

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName     = "github.com/mbd888/safeshield"
	serviceName    = "safeshield"
	serviceVersion = "0.1.0"
)

// Init installs a batching OTLP/gRPC tracer provider and returns its
// shutdown func. An empty endpoint leaves the global no-op provider in place.
func Init(ctx context.Context, otlpEndpoint string, logger *slog.Logger) (func(context.Context) error, error) {
	if otlpEndpoint == "" {
		logger.Info("tracing disabled (no OTEL_EXPORTER_OTLP_ENDPOINT set)")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled", "endpoint", otlpEndpoint, "service", serviceName)
	return tp.Shutdown, nil
}

// StartSpan opens a span named after the operation, e.g. "backend.AnalyzeContract".
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// Fail records err on span and marks it failed. A nil err is ignored.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func ChainID(id string) attribute.KeyValue {
	return attribute.String("chain.id", id)
}

func SafeAddr(addr string) attribute.KeyValue {
	return attribute.String("safe.addr", addr)
}

// Source names the analysis source ("backend", "hypernative", "activity").
func Source(name string) attribute.KeyValue {
	return attribute.String("shield.source", name)
}

func AddressCount(n int) attribute.KeyValue {
	return attribute.Int("shield.address_count", n)
}

func Severity(level string) attribute.KeyValue {
	return attribute.String("shield.severity", level)
}
