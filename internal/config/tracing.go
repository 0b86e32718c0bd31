package config

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/manthysbr/viyaOS/internal/core/domain"
)

// NewTracerProvider builds the process tracer provider. With the "none"
// exporter spans are still recorded in process but never leave it.
func NewTracerProvider(ctx context.Context, cfg domain.TraceConfig) (*sdktrace.TracerProvider, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "viya-kernel"
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
	}

	switch strings.ToLower(cfg.Exporter) {
	case "", "none":
	case "otlp":
		var exporterOpts []otlptracehttp.Option
		if cfg.Endpoint != "" {
			exporterOpts = append(exporterOpts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("%w: otlp trace exporter: %v", domain.ErrConfiguration, err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	default:
		return nil, fmt.Errorf("%w: trace exporter %q", domain.ErrConfiguration, cfg.Exporter)
	}

	return sdktrace.NewTracerProvider(opts...), nil
}
