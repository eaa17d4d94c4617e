// Package tracing configures the OpenTelemetry tracer provider for the shell.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config mirrors the [tracing] config section.
type Config struct {
	Enabled     bool
	Output      string // stdout | stderr | file path
	ServiceName string
}

// Provider wraps the SDK provider and the output it writes to.
type Provider struct {
	tp  trace.TracerProvider
	sdk *sdktrace.TracerProvider
	out io.Closer
}

// Setup builds a provider. A disabled config yields a no-op provider.
// The provider is also installed as the otel global.
func Setup(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tp: noop.NewTracerProvider()}, nil
	}
	w, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("stdout trace exporter: %w", err)
	}
	name := cfg.ServiceName
	if name == "" {
		name = "chicken"
	}
	res := resource.NewSchemaless(attribute.String("service.name", name))
	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(sdk)
	return &Provider{tp: sdk, sdk: sdk, out: closer}, nil
}

// TracerProvider returns the provider to hand to components.
func (p *Provider) TracerProvider() trace.TracerProvider { return p.tp }

// Shutdown flushes pending spans and closes the output.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	if p.sdk != nil {
		err = p.sdk.Shutdown(ctx)
	}
	if p.out != nil {
		if cerr := p.out.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func openOutput(out string) (io.Writer, io.Closer, error) {
	switch out {
	case "", "stderr":
		return os.Stderr, nil, nil
	case "stdout":
		return os.Stdout, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Clean(out), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}
