// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package appbuilder

import (
	"context"

	"github.com/z5labs/tinyhttpd"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TextMapPropagatorInitializer
type TextMapPropagatorInitializer interface {
	InitTextMapPropagator(context.Context) (propagation.TextMapPropagator, error)
}

// TracerProviderInitializer
type TracerProviderInitializer interface {
	InitTracerProvider(context.Context) (trace.TracerProvider, error)
}

// MeterProviderInitializer
type MeterProviderInitializer interface {
	InitMeterProvider(context.Context) (metric.MeterProvider, error)
}

// OTelInitializer is implemented by config types which know how to set up
// the OpenTelemetry globals used for connection spans and request metrics.
type OTelInitializer interface {
	TextMapPropagatorInitializer
	TracerProviderInitializer
	MeterProviderInitializer
}

// OTel installs the providers returned by cfg as the OpenTelemetry globals
// before delegating to builder. A nil provider leaves the global untouched.
func OTel[T OTelInitializer](builder tinyhttpd.AppBuilder[T]) tinyhttpd.AppBuilder[T] {
	return tinyhttpd.AppBuilderFunc[T](func(ctx context.Context, cfg T) (tinyhttpd.App, error) {
		fs := []func(context.Context) error{
			func(ctx context.Context) error {
				tmp, err := cfg.InitTextMapPropagator(ctx)
				if err != nil || tmp == nil {
					return err
				}
				otel.SetTextMapPropagator(tmp)
				return nil
			},
			func(ctx context.Context) error {
				tp, err := cfg.InitTracerProvider(ctx)
				if err != nil || tp == nil {
					return err
				}
				otel.SetTracerProvider(tp)
				return nil
			},
			func(ctx context.Context) error {
				mp, err := cfg.InitMeterProvider(ctx)
				if err != nil || mp == nil {
					return err
				}
				otel.SetMeterProvider(mp)
				return nil
			},
		}

		for _, f := range fs {
			err := f(ctx)
			if err != nil {
				return nil, err
			}
		}

		return builder.Build(ctx, cfg)
	})
}
