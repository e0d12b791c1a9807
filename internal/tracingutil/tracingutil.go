// Package tracingutil wires the OpenTelemetry SDK into provd when an OTLP
// endpoint is configured, and otherwise leaves the global no-op
// TracerProvider/MeterProvider in place (SPEC_FULL.md C.2). It is the
// thing cmd/provd calls right after flag.Parse so that processor.go's
// otel.Meter/otel.Tracer calls — which always read the global registry —
// resolve to a real exporter pipeline instead of doing nothing.
package tracingutil

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Shutdown flushes and stops whatever providers Setup installed. It is a
// no-op when Setup did not activate the SDK.
type Shutdown func(context.Context) error

// endpointEnvVars are checked in order; the standard OTLP exporter env
// vars (https://opentelemetry.io/docs/specs/otel/protocol/exporter/)
// already carry endpoint, header and protocol configuration, so Setup
// only needs to decide whether any of them is present.
var endpointEnvVars = []string{
	"OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT",
	"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT",
}

// Setup installs real OTLP-backed TracerProvider and MeterProvider
// implementations when one of the OTEL_EXPORTER_OTLP_* endpoint vars is
// set in the environment. With none set, it does nothing and returns a
// no-op Shutdown — provd then runs with the otel API's default no-op
// providers, exactly as it does today.
func Setup(ctx context.Context) (Shutdown, error) {
	if !anyEndpointConfigured() {
		return func(context.Context) error { return nil }, nil
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("tracingutil: new trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp))
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("tracingutil: new metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
	otel.SetMeterProvider(mp)

	return func(shutdownCtx context.Context) error {
		tErr := tp.Shutdown(shutdownCtx)
		mErr := mp.Shutdown(shutdownCtx)
		if tErr != nil {
			return tErr
		}
		return mErr
	}, nil
}

func anyEndpointConfigured() bool {
	for _, name := range endpointEnvVars {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}
