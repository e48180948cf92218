// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package daemon assembles the server from its config.
package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"syscall"

	"github.com/z5labs/tinyhttpd"
	"github.com/z5labs/tinyhttpd/cgi"
	"github.com/z5labs/tinyhttpd/pkg/app"
	"github.com/z5labs/tinyhttpd/pkg/appbuilder"
	"github.com/z5labs/tinyhttpd/pkg/maskslog"
	"github.com/z5labs/tinyhttpd/pkg/otelslog"
	"github.com/z5labs/tinyhttpd/server"

	"go.opentelemetry.io/otel"
)

// Builder returns the AppBuilder for the server with panic recovery and
// OpenTelemetry initialization applied.
func Builder() tinyhttpd.AppBuilder[Config] {
	return appbuilder.Recover[Config](
		appbuilder.OTel[Config](
			tinyhttpd.AppBuilderFunc[Config](Build),
		),
	)
}

// Build creates the listener runtime described by cfg.
func Build(ctx context.Context, cfg Config) (tinyhttpd.App, error) {
	log := NewLogger(os.Stderr, cfg)

	h, err := server.NewHandler(
		server.DocumentRoot(cfg.Httpd.DocumentRoot),
		server.MaxLineLength(cfg.Httpd.MaxLineLength),
		server.Logger(log),
		server.Bridge(cgi.NewBridge(cgi.Logger(log))),
	)
	if err != nil {
		return nil, err
	}

	rt := server.NewRuntime(
		h,
		server.Addr(net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))),
		server.MaxConnections(cfg.Server.MaxConnections),
		server.ReadTimeout(cfg.Server.ReadTimeout),
		server.WriteTimeout(cfg.Server.WriteTimeout),
		server.RuntimeLogger(log),
	)

	var a tinyhttpd.App = rt
	a = app.WithLifecycleHooks(a, app.Lifecycle{
		PostRun: app.LifecycleHookFunc(shutdownOTel),
	})
	a = app.WithSignalNotifications(a, os.Interrupt, syscall.SIGTERM)
	a = app.Recover(a)
	return a, nil
}

// NewLogger returns the JSON logger every component shares. Records
// logged within a connection span carry its trace and span ids.
func NewLogger(w io.Writer, cfg Config) *slog.Logger {
	var h slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     cfg.Logging.Level,
	})
	if cfg.Logging.MaskQuery {
		h = maskslog.NewHandler(h, maskslog.Attr("query", maskslog.AnonymousStringAttr))
	}
	return otelslog.New(h)
}

type shutdowner interface {
	Shutdown(context.Context) error
}

// shutdownOTel flushes any SDK providers installed by appbuilder.OTel.
func shutdownOTel(ctx context.Context) error {
	var errs []error
	if tp, ok := otel.GetTracerProvider().(shutdowner); ok {
		errs = append(errs, tp.Shutdown(ctx))
	}
	if mp, ok := otel.GetMeterProvider().(shutdowner); ok {
		errs = append(errs, mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
