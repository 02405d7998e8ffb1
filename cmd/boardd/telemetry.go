package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// telemetry exposes OpenTelemetry metrics in Prometheus format.
type telemetry struct {
	provider metric.MeterProvider
	handler  http.Handler
	shutdown func(context.Context) error
}

func setupTelemetry(cfg MetricsConfig) (*telemetry, error) {
	if !cfg.Enabled {
		return &telemetry{
			provider: metricnoop.NewMeterProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return &telemetry{
		provider: provider,
		handler:  promhttp.Handler(),
		shutdown: provider.Shutdown,
	}, nil
}
