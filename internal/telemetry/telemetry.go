// Package telemetry configures the OpenTelemetry meter provider.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const exportInterval = 15 * time.Second

// Provider holds the meter provider and its shutdown function.
type Provider struct {
	MeterProvider *metric.MeterProvider
	Shutdown      func(context.Context) error
}

// NewMeterProvider creates a MeterProvider exporting via OTLP gRPC to endpoint.
// An empty endpoint yields a provider without readers, which records nothing.
// Endpoints without an https scheme are dialed without TLS.
func NewMeterProvider(ctx context.Context, endpoint, serviceName string) (*Provider, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return &Provider{
			MeterProvider: metric.NewMeterProvider(),
			Shutdown:      func(context.Context) error { return nil },
		}, nil
	}

	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(u.Host)}
	if u.Scheme != "https" {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := metric.NewMeterProvider(
		metric.WithResource(resource.NewSchemaless(semconv.ServiceName(serviceName))),
		metric.WithReader(metric.NewPeriodicReader(exp, metric.WithInterval(exportInterval))),
	)

	return &Provider{MeterProvider: mp, Shutdown: mp.Shutdown}, nil
}

// SetGlobal installs the meter provider as the global one.
func (p *Provider) SetGlobal() {
	otel.SetMeterProvider(p.MeterProvider)
}
