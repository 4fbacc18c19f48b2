package telemetry

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Setup installs a global MeterProvider that exports over OTLP/HTTP.
//
// Export is opt-in: with an empty endpoint Setup returns a no-op shutdown
// function and the global no-op provider stays in place.
//
// The returned shutdown function flushes pending measurements.
func Setup(ctx context.Context, endpoint, serviceName string, interval time.Duration) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(endpoint))
	if err != nil {
		return noop, fmt.Errorf("metric exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return noop, fmt.Errorf("metric resource: %w", err)
	}

	mp := NewMeterProvider(res, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)))
	otel.SetMeterProvider(mp)

	log.Printf("Exporting metrics: endpoint=%s interval=%v", endpoint, interval)
	return mp.Shutdown, nil
}

// NewMeterProvider builds an SDK provider that reports through reader
func NewMeterProvider(res *resource.Resource, reader sdkmetric.Reader) *sdkmetric.MeterProvider {
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
}
