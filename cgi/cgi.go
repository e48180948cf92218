// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package cgi runs executables on behalf of dynamic requests.
//
// The executable receives the request through its environment and, for
// POST, its stdin. Whatever it writes to stdout, its own headers
// included, is sent to the client after the server's status line.
package cgi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/z5labs/tinyhttpd/internal/ioutil"
	"github.com/z5labs/tinyhttpd/pkg/slogfield"
	"github.com/z5labs/tinyhttpd/request"
	"github.com/z5labs/tinyhttpd/wire"

	"golang.org/x/sync/errgroup"
)

// Invocation describes a single run of an executable.
type Invocation struct {
	Path   string
	Method request.Method

	// Query is only passed to GET invocations.
	Query string
}

// SpawnError is returned when no process could be created. A 500 has
// been written to the client.
type SpawnError struct {
	Path  string
	Cause error
}

// Error implements the error interface.
func (e SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %s", e.Path, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e SpawnError) Unwrap() error {
	return e.Cause
}

// ExecError is returned when a process was created but the executable
// could not be loaded into it. The client has only received the 200
// status line.
type ExecError struct {
	Path  string
	Cause error
}

// Error implements the error interface.
func (e ExecError) Error() string {
	return fmt.Sprintf("failed to exec %s: %s", e.Path, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e ExecError) Unwrap() error {
	return e.Cause
}

// ForwardError is returned when the request body or the program output
// could not be fully forwarded.
type ForwardError struct {
	Stream string
	Cause  error
}

// Error implements the error interface.
func (e ForwardError) Error() string {
	return fmt.Sprintf("failed to forward %s: %s", e.Stream, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e ForwardError) Unwrap() error {
	return e.Cause
}

// Option configures a Bridge.
type Option func(*Bridge)

// Logger sets the logger used for per invocation diagnostics.
func Logger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.log = logger
	}
}

// Environ sets the function which snapshots the base environment passed
// to every child. It defaults to os.Environ.
func Environ(f func() []string) Option {
	return func(b *Bridge) {
		b.environ = f
	}
}

// Stderr sets where the child's stderr goes. It defaults to os.Stderr.
func Stderr(w io.Writer) Option {
	return func(b *Bridge) {
		b.stderr = w
	}
}

// Bridge runs executables for dynamic requests. It holds no per request
// state and is safe for concurrent use.
type Bridge struct {
	log     *slog.Logger
	environ func() []string
	stderr  io.Writer
	start   func(*exec.Cmd) error
}

// NewBridge returns a Bridge.
func NewBridge(opts ...Option) *Bridge {
	b := &Bridge{
		log:     slog.Default(),
		environ: os.Environ,
		stderr:  os.Stderr,
		start:   (*exec.Cmd).Start,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run executes inv on behalf of the request being read from r and
// streams its output to w. The returned status is the one the client
// observed. A non-nil error never means the connection is unusable for
// logging purposes; the caller should close it regardless.
func (b *Bridge) Run(ctx context.Context, w io.Writer, r *wire.Reader, inv Invocation) (int, error) {
	var contentLength int64
	switch inv.Method {
	case request.MethodPost:
		n, err := r.ContentLength()
		if err != nil {
			werr := wire.WriteBadRequest(w)
			return wire.StatusBadRequest, errors.Join(err, werr)
		}
		contentLength = n
	default:
		r.Drain()
	}

	cmd := exec.Command(inv.Path)
	cmd.Env = b.env(inv, contentLength)
	cmd.Stderr = b.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return b.cannotExecute(w, inv, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return b.cannotExecute(w, inv, err)
	}

	err = b.start(cmd)
	if err != nil {
		stdin.Close()
		stdout.Close()
		if resourceExhausted(err) {
			return b.cannotExecute(w, inv, err)
		}

		// the client can't tell this apart from a program which exits
		// without writing anything
		werr := wire.WriteStatusOK(w)
		return wire.StatusOK, errors.Join(ExecError{Path: inv.Path, Cause: err}, werr)
	}

	ferr := b.forward(ctx, w, r, stdin, stdout, contentLength)

	err = cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		b.log.InfoContext(
			ctx,
			"cgi program exited with non-zero status",
			slogfield.String("path", inv.Path),
			slogfield.Int("exit_code", exitErr.ExitCode()),
		)
		err = nil
	}
	return wire.StatusOK, errors.Join(ferr, err)
}

func (b *Bridge) cannotExecute(w io.Writer, inv Invocation, cause error) (int, error) {
	werr := wire.WriteCannotExecute(w)
	return wire.StatusInternalServerError, errors.Join(SpawnError{Path: inv.Path, Cause: cause}, werr)
}

func (b *Bridge) env(inv Invocation, contentLength int64) []string {
	base := b.environ()
	env := make([]string, 0, len(base)+2)
	for _, kv := range base {
		if isRequestVariable(kv) {
			continue
		}
		env = append(env, kv)
	}
	env = append(env, "REQUEST_METHOD="+string(inv.Method))
	switch inv.Method {
	case request.MethodPost:
		env = append(env, "CONTENT_LENGTH="+strconv.FormatInt(contentLength, 10))
	default:
		env = append(env, "QUERY_STRING="+inv.Query)
	}
	return env
}

// isRequestVariable reports whether kv sets one of the variables that
// describe the request, which must only ever come from the invocation.
func isRequestVariable(kv string) bool {
	name, _, _ := strings.Cut(kv, "=")
	switch name {
	case "REQUEST_METHOD", "QUERY_STRING", "CONTENT_LENGTH":
		return true
	default:
		return false
	}
}

// forward writes the status line, feeds the request body to stdin and
// copies stdout to w. Both directions run concurrently so a program which
// writes before it has consumed its input can't stall the exchange.
func (b *Bridge) forward(ctx context.Context, w io.Writer, r *wire.Reader, stdin io.WriteCloser, stdout io.Reader, n int64) error {
	var eg errgroup.Group
	eg.Go(func() error {
		defer stdin.Close()
		if n == 0 {
			return nil
		}

		copied, err := ioutil.CopyN(stdin, r, n)
		if err == nil {
			return nil
		}
		b.log.WarnContext(
			ctx,
			"stopped forwarding request body",
			slogfield.Int64("content_length", n),
			slogfield.Int64("forwarded", copied),
			slogfield.Error(err),
		)
		return ForwardError{Stream: "request body", Cause: err}
	})

	err := wire.WriteStatusOK(w)
	if err == nil {
		_, err = ioutil.CopyChunked(w, stdout)
	}
	if err != nil {
		b.log.WarnContext(ctx, "stopped forwarding program output", slogfield.Error(err))

		// keep the pipe flowing so the program can run to completion
		io.Copy(io.Discard, stdout)
		err = ForwardError{Stream: "program output", Cause: err}
	}

	return errors.Join(err, eg.Wait())
}

func resourceExhausted(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.EAGAIN, syscall.ENOMEM, syscall.EMFILE, syscall.ENFILE:
		return true
	default:
		return false
	}
}
