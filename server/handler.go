// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/z5labs/tinyhttpd/cgi"
	"github.com/z5labs/tinyhttpd/pkg/slogfield"
	"github.com/z5labs/tinyhttpd/request"
	"github.com/z5labs/tinyhttpd/resource"
	"github.com/z5labs/tinyhttpd/static"
	"github.com/z5labs/tinyhttpd/wire"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/z5labs/tinyhttpd/server"

// Route identifies which part of the server produced a response.
type Route string

// Routes reported in logs and metrics.
const (
	RouteStatic Route = "static"
	RouteCGI    Route = "cgi"
	RouteError  Route = "error"
)

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// DocumentRoot sets the directory request paths are resolved against.
func DocumentRoot(root string) HandlerOption {
	return func(h *Handler) {
		h.root = root
	}
}

// MaxLineLength bounds every request line and header line read.
func MaxLineLength(n int) HandlerOption {
	return func(h *Handler) {
		h.maxLineLength = n
	}
}

// Bridge sets the CGI bridge used for dynamic requests.
func Bridge(b *cgi.Bridge) HandlerOption {
	return func(h *Handler) {
		h.bridge = b
	}
}

// Logger sets the logger for per connection logs.
func Logger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.log = logger
	}
}

// TracerProvider overrides the global tracer provider.
func TracerProvider(tp trace.TracerProvider) HandlerOption {
	return func(h *Handler) {
		h.tp = tp
	}
}

// MeterProvider overrides the global meter provider.
func MeterProvider(mp metric.MeterProvider) HandlerOption {
	return func(h *Handler) {
		h.mp = mp
	}
}

// Handler serves exactly one request per connection.
type Handler struct {
	root          string
	maxLineLength int
	bridge        *cgi.Bridge
	log           *slog.Logger
	tp            trace.TracerProvider
	mp            metric.MeterProvider

	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewHandler returns a Handler. The tracer and meter are taken from the
// OpenTelemetry globals unless overridden.
func NewHandler(opts ...HandlerOption) (*Handler, error) {
	h := &Handler{
		root:          "res",
		maxLineLength: wire.DefaultMaxLineLength,
		log:           slog.Default(),
		tp:            otel.GetTracerProvider(),
		mp:            otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.bridge == nil {
		h.bridge = cgi.NewBridge(cgi.Logger(h.log))
	}

	h.tracer = h.tp.Tracer(instrumentationName)

	meter := h.mp.Meter(instrumentationName)
	requests, err := meter.Int64Counter(
		"tinyhttpd.requests",
		metric.WithDescription("Number of requests handled."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"tinyhttpd.request.duration",
		metric.WithDescription("Time from accepting a connection to closing it."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	h.requests = requests
	h.duration = duration
	return h, nil
}

type outcome struct {
	req    request.Request
	status int
	route  Route
	err    error
}

// Handle reads one request from conn, writes the response and closes conn.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) {
	start := time.Now()

	spanCtx, span := h.tracer.Start(
		ctx,
		"tinyhttpd.handle",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("net.peer.addr", conn.RemoteAddr().String())),
	)
	defer span.End()

	out := h.serve(spanCtx, conn, wire.NewReader(conn, h.maxLineLength))

	err := conn.Close()
	if err != nil {
		h.log.DebugContext(spanCtx, "failed to close connection", slogfield.Error(err))
	}

	elapsed := time.Since(start)
	attrs := metric.WithAttributes(
		attribute.Int("status", out.status),
		attribute.String("route", string(out.route)),
	)
	h.requests.Add(spanCtx, 1, attrs)
	h.duration.Record(spanCtx, elapsed.Seconds(), attrs)

	span.SetAttributes(
		attribute.String("http.method", string(out.req.Method)),
		attribute.String("http.target", out.req.Path),
		attribute.Int("http.status_code", out.status),
		attribute.String("tinyhttpd.route", string(out.route)),
	)
	if out.err != nil {
		span.RecordError(out.err)
	}
	if out.status >= wire.StatusInternalServerError {
		span.SetStatus(codes.Error, "server error")
	}

	h.logOutcome(spanCtx, out, elapsed)
}

func (h *Handler) serve(ctx context.Context, conn io.Writer, r *wire.Reader) outcome {
	req, err := request.ParseLine(r.ReadLine())

	var unsupported request.UnsupportedMethodError
	if errors.As(err, &unsupported) {
		werr := wire.WriteUnimplemented(conn)
		return outcome{status: wire.StatusNotImplemented, route: RouteError, err: errors.Join(err, werr)}
	}
	if err != nil {
		r.Drain()
		werr := wire.WriteBadRequest(conn)
		return outcome{req: req, status: wire.StatusBadRequest, route: RouteError, err: errors.Join(err, werr)}
	}

	res, err := resource.Resolve(h.root, req.Path)
	if err != nil {
		r.Drain()
		werr := wire.WriteNotFound(conn)
		return outcome{req: req, status: wire.StatusNotFound, route: RouteError, err: errors.Join(err, werr)}
	}

	if !req.Dynamic && !res.Executable {
		status, err := static.Serve(conn, r, res.Path)
		return outcome{req: req, status: status, route: RouteStatic, err: err}
	}

	status, err := h.bridge.Run(ctx, conn, r, cgi.Invocation{
		Path:   res.Path,
		Method: req.Method,
		Query:  req.Query,
	})
	return outcome{req: req, status: status, route: RouteCGI, err: err}
}

func (h *Handler) logOutcome(ctx context.Context, out outcome, elapsed time.Duration) {
	attrs := []slog.Attr{
		slogfield.String("method", string(out.req.Method)),
		slogfield.String("path", out.req.Path),
		slogfield.Int("status", out.status),
		slogfield.String("route", string(out.route)),
		slogfield.Duration("duration", elapsed),
	}
	if out.req.HasQuery {
		attrs = append(attrs, slogfield.String("query", out.req.Query))
	}
	if out.err == nil {
		h.log.LogAttrs(ctx, slog.LevelInfo, "handled request", attrs...)
		return
	}

	attrs = append(attrs, slogfield.Error(out.err))

	var spawnErr cgi.SpawnError
	var execErr cgi.ExecError
	switch {
	case errors.As(out.err, &spawnErr), errors.As(out.err, &execErr):
		h.log.LogAttrs(ctx, slog.LevelError, "failed to run cgi program", attrs...)
	case out.route == RouteError:
		h.log.LogAttrs(ctx, slog.LevelInfo, "rejected request", attrs...)
	default:
		h.log.LogAttrs(ctx, slog.LevelWarn, "failed to complete response", attrs...)
	}
}
