// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package server accepts TCP connections and answers one HTTP/1.0 request
// on each, dispatching to the static file responder or the CGI bridge.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/z5labs/tinyhttpd/internal/fixedpool"
	"github.com/z5labs/tinyhttpd/internal/try"
	"github.com/z5labs/tinyhttpd/pkg/slogfield"

	"golang.org/x/sync/errgroup"
)

// ListenError is returned when the server socket could not be bound.
type ListenError struct {
	Addr  string
	Cause error
}

// Error implements the error interface.
func (e ListenError) Error() string {
	return fmt.Sprintf("failed to listen on %s: %s", e.Addr, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e ListenError) Unwrap() error {
	return e.Cause
}

// AcceptError is returned when the listener fails for any reason other
// than being closed on shutdown.
type AcceptError struct {
	Cause error
}

// Error implements the error interface.
func (e AcceptError) Error() string {
	return fmt.Sprintf("failed to accept connection: %s", e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e AcceptError) Unwrap() error {
	return e.Cause
}

// Listen binds a TCP listener to addr. A port of 0 lets the
// operating system choose one.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	ls, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, ListenError{Addr: addr, Cause: err}
	}
	return ls, nil
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// Listener sets the listener to accept connections from. When it is not
// set the Runtime calls Listen with its address.
func Listener(ls net.Listener) RuntimeOption {
	return func(rt *Runtime) {
		rt.ls = ls
	}
}

// Addr sets the address to listen on. Defaults to ":4000".
func Addr(addr string) RuntimeOption {
	return func(rt *Runtime) {
		rt.addr = addr
	}
}

// MaxConnections bounds the number of connections handled at once.
// Zero means no bound.
func MaxConnections(n int) RuntimeOption {
	return func(rt *Runtime) {
		rt.maxConns = n
	}
}

// ReadTimeout sets a read deadline on every connection.
func ReadTimeout(d time.Duration) RuntimeOption {
	return func(rt *Runtime) {
		rt.readTimeout = d
	}
}

// WriteTimeout sets a write deadline on every connection.
func WriteTimeout(d time.Duration) RuntimeOption {
	return func(rt *Runtime) {
		rt.writeTimeout = d
	}
}

// RuntimeLogger sets the logger for listener lifecycle events.
func RuntimeLogger(logger *slog.Logger) RuntimeOption {
	return func(rt *Runtime) {
		rt.log = logger
	}
}

// Runtime accepts connections and hands each one to a Handler on its
// own goroutine.
type Runtime struct {
	handler *Handler

	ls           net.Listener
	addr         string
	maxConns     int
	readTimeout  time.Duration
	writeTimeout time.Duration
	log          *slog.Logger

	listen func(context.Context, string) (net.Listener, error)
}

// NewRuntime returns a Runtime serving connections with h.
func NewRuntime(h *Handler, opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		handler: h,
		addr:    ":4000",
		log:     slog.Default(),
		listen:  Listen,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Run serves connections until ctx is cancelled. In flight connections
// are allowed to finish before Run returns.
func (rt *Runtime) Run(ctx context.Context) error {
	ls, err := rt.listener(ctx)
	if err != nil {
		return err
	}

	attrs := []slog.Attr{slogfield.String("addr", ls.Addr().String())}
	if addr, ok := ls.Addr().(*net.TCPAddr); ok {
		attrs = append(attrs, slogfield.Int("port", addr.Port))
	}
	rt.log.LogAttrs(ctx, slog.LevelInfo, "httpd running", attrs...)

	var conns errgroup.Group
	if rt.maxConns > 0 {
		conns.SetLimit(rt.maxConns)
	}

	err = fixedpool.Wait(
		ctx,
		func(ctx context.Context) error {
			<-ctx.Done()
			err := ls.Close()
			if err != nil && !errors.Is(err, net.ErrClosed) {
				return err
			}
			return nil
		},
		func(ctx context.Context) error {
			return rt.accept(ctx, ls, &conns)
		},
	)

	// handlers never fail, panics included
	conns.Wait()

	rt.log.InfoContext(ctx, "httpd stopped")
	return err
}

func (rt *Runtime) listener(ctx context.Context) (net.Listener, error) {
	if rt.ls != nil {
		return rt.ls, nil
	}
	return rt.listen(ctx, rt.addr)
}

func (rt *Runtime) accept(ctx context.Context, ls net.Listener, conns *errgroup.Group) error {
	for {
		conn, err := ls.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return AcceptError{Cause: err}
		}

		conns.Go(func() error {
			rt.handle(ctx, conn)
			return nil
		})
	}
}

func (rt *Runtime) handle(ctx context.Context, conn net.Conn) {
	var err error
	defer func() {
		if err != nil {
			conn.Close()
			rt.log.ErrorContext(ctx, "recovered from panic while handling connection", slogfield.Error(err))
		}
	}()
	defer try.Recover(&err)

	now := time.Now()
	if rt.readTimeout > 0 {
		conn.SetReadDeadline(now.Add(rt.readTimeout))
	}
	if rt.writeTimeout > 0 {
		conn.SetWriteDeadline(now.Add(rt.writeTimeout))
	}

	rt.handler.Handle(ctx, conn)
}
