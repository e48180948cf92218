// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package daemon

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/z5labs/tinyhttpd/config"
	"github.com/z5labs/tinyhttpd/config/configtmpl"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

//go:embed default_config.yaml
var defaultConfig []byte

// DefaultConfig returns the built in config. Every value can be
// overridden through the environment variables it references.
func DefaultConfig() config.Source {
	return ConfigSource(bytes.NewReader(defaultConfig))
}

// ConfigSource renders r as a config template and parses the result as YAML.
func ConfigSource(r io.Reader) config.Source {
	return config.FromYaml(renderTemplate(r))
}

// JSONConfigSource renders r as a config template and parses the result as JSON.
func JSONConfigSource(r io.Reader) config.Source {
	return config.FromJson(renderTemplate(r))
}

func renderTemplate(r io.Reader) *config.TextTemplateRenderer {
	opts := make([]config.RenderTextTemplateOption, 0, len(configtmpl.Funcs()))
	for name, f := range configtmpl.Funcs() {
		opts = append(opts, config.TemplateFunc(name, f))
	}
	return config.RenderTextTemplate(r, opts...)
}

// Exporters supported for traces and metrics.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Config is the complete server configuration.
type Config struct {
	Server struct {
		Host           string        `config:"host"`
		Port           int           `config:"port"`
		MaxConnections int           `config:"max_connections"`
		ReadTimeout    time.Duration `config:"read_timeout"`
		WriteTimeout   time.Duration `config:"write_timeout"`
	} `config:"server"`

	Httpd struct {
		DocumentRoot  string `config:"document_root"`
		MaxLineLength int    `config:"max_line_length"`
	} `config:"httpd"`

	Logging struct {
		Level     slog.Level `config:"level"`
		MaskQuery bool       `config:"mask_query"`
	} `config:"logging"`

	OTel struct {
		Exporter    string `config:"exporter"`
		ServiceName string `config:"service_name"`
	} `config:"otel"`

	// telemetry is written here when the stdout exporter is selected.
	telemetry io.Writer
}

// UnknownExporterError is returned for an otel.exporter value other
// than "none" or "stdout".
type UnknownExporterError struct {
	Exporter string
}

// Error implements the error interface.
func (e UnknownExporterError) Error() string {
	return fmt.Sprintf("unknown otel exporter: %q", e.Exporter)
}

func (cfg Config) exporter() (string, error) {
	switch cfg.OTel.Exporter {
	case "", ExporterNone:
		return ExporterNone, nil
	case ExporterStdout:
		return ExporterStdout, nil
	default:
		return "", UnknownExporterError{Exporter: cfg.OTel.Exporter}
	}
}

func (cfg Config) telemetryWriter() io.Writer {
	if cfg.telemetry != nil {
		return cfg.telemetry
	}
	return os.Stdout
}

func (cfg Config) resource(ctx context.Context) (*resource.Resource, error) {
	return resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.OTel.ServiceName),
		),
	)
}

// InitTextMapPropagator implements the appbuilder.TextMapPropagatorInitializer interface.
func (cfg Config) InitTextMapPropagator(ctx context.Context) (propagation.TextMapPropagator, error) {
	tmp := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	return tmp, nil
}

// InitTracerProvider implements the appbuilder.TracerProviderInitializer interface.
// No provider is returned when exporting is disabled.
func (cfg Config) InitTracerProvider(ctx context.Context) (trace.TracerProvider, error) {
	exporter, err := cfg.exporter()
	if err != nil || exporter == ExporterNone {
		return nil, err
	}

	res, err := cfg.resource(ctx)
	if err != nil {
		return nil, err
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.telemetryWriter()))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	return tp, nil
}

// InitMeterProvider implements the appbuilder.MeterProviderInitializer interface.
// No provider is returned when exporting is disabled.
func (cfg Config) InitMeterProvider(ctx context.Context) (metric.MeterProvider, error) {
	exporter, err := cfg.exporter()
	if err != nil || exporter == ExporterNone {
		return nil, err
	}

	res, err := cfg.resource(ctx)
	if err != nil {
		return nil, err
	}

	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.telemetryWriter()))
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	return mp, nil
}
