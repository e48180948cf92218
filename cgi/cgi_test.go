// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package cgi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/z5labs/tinyhttpd/request"
	"github.com/z5labs/tinyhttpd/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "prog.cgi")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	require.NoError(t, os.Chmod(path, 0o755))
	return path
}

func newTestBridge(opts ...Option) *Bridge {
	base := []Option{
		Logger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		Environ(func() []string {
			return []string{"PATH=" + os.Getenv("PATH")}
		}),
		Stderr(io.Discard),
	}
	return NewBridge(append(base, opts...)...)
}

func TestBridge_Run(t *testing.T) {
	t.Run("will pass the query string", func(t *testing.T) {
		t.Run("if the method is GET", func(t *testing.T) {
			path := writeScript(t, "#!/bin/sh\n"+
				"printf 'Content-Type: text/html\\r\\n\\r\\n'\n"+
				"printf '%s %s' \"$REQUEST_METHOD\" \"$QUERY_STRING\"\n")

			r := wire.NewReader(strings.NewReader("Host: x\r\n\r\n"), wire.DefaultMaxLineLength)

			var buf bytes.Buffer
			b := newTestBridge()
			status, err := b.Run(context.Background(), &buf, r, Invocation{
				Path:   path,
				Method: request.MethodGet,
				Query:  "color=red",
			})
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, wire.StatusOK, status) {
				return
			}

			expected := "HTTP/1.0 200 OK\r\n" +
				"Content-Type: text/html\r\n\r\n" +
				"GET color=red"
			if !assert.Equal(t, expected, buf.String()) {
				return
			}
		})
	})

	t.Run("will forward exactly content length bytes", func(t *testing.T) {
		t.Run("if the method is POST", func(t *testing.T) {
			path := writeScript(t, "#!/bin/sh\n"+
				"printf '%s %s ' \"$REQUEST_METHOD\" \"$CONTENT_LENGTH\"\n"+
				"cat\n")

			r := wire.NewReader(
				strings.NewReader("Content-Length: 11\r\n\r\ncolor=bluetrailing"),
				wire.DefaultMaxLineLength,
			)

			var buf bytes.Buffer
			b := newTestBridge()
			status, err := b.Run(context.Background(), &buf, r, Invocation{
				Path:   path,
				Method: request.MethodPost,
			})
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, wire.StatusOK, status) {
				return
			}
			if !assert.Equal(t, "HTTP/1.0 200 OK\r\nPOST 11 color=bluet", buf.String()) {
				return
			}
		})
	})

	t.Run("will not pass QUERY_STRING", func(t *testing.T) {
		t.Run("if the method is POST", func(t *testing.T) {
			path := writeScript(t, "#!/bin/sh\n"+
				"printf '[%s]' \"${QUERY_STRING-unset}\"\n")

			r := wire.NewReader(strings.NewReader("Content-Length: 0\r\n\r\n"), wire.DefaultMaxLineLength)

			var buf bytes.Buffer
			b := newTestBridge()
			_, err := b.Run(context.Background(), &buf, r, Invocation{
				Path:   path,
				Method: request.MethodPost,
			})
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "HTTP/1.0 200 OK\r\n[unset]", buf.String()) {
				return
			}
		})
	})

	t.Run("will write a 400 and not spawn anything", func(t *testing.T) {
		t.Run("if a POST has no content length", func(t *testing.T) {
			marker := filepath.Join(t.TempDir(), "ran")
			path := writeScript(t, "#!/bin/sh\ntouch "+marker+"\n")

			r := wire.NewReader(strings.NewReader("Host: x\r\n\r\n"), wire.DefaultMaxLineLength)

			var buf bytes.Buffer
			b := newTestBridge()
			status, err := b.Run(context.Background(), &buf, r, Invocation{
				Path:   path,
				Method: request.MethodPost,
			})
			if !assert.ErrorIs(t, err, wire.ErrMissingContentLength) {
				return
			}
			if !assert.Equal(t, wire.StatusBadRequest, status) {
				return
			}
			if !assert.True(t, strings.HasPrefix(buf.String(), "HTTP/1.0 400 BAD REQUEST\r\n")) {
				return
			}

			_, statErr := os.Stat(marker)
			if !assert.True(t, errors.Is(statErr, os.ErrNotExist)) {
				return
			}
		})
	})

	t.Run("will only write the status line", func(t *testing.T) {
		t.Run("if the executable can not be loaded", func(t *testing.T) {
			path := writeScript(t, "this is not a program\n")

			r := wire.NewReader(strings.NewReader("\r\n"), wire.DefaultMaxLineLength)

			var buf bytes.Buffer
			b := newTestBridge()
			status, err := b.Run(context.Background(), &buf, r, Invocation{
				Path:   path,
				Method: request.MethodGet,
			})

			var eerr ExecError
			if !assert.ErrorAs(t, err, &eerr) {
				return
			}
			if !assert.Equal(t, path, eerr.Path) {
				return
			}
			if !assert.Equal(t, wire.StatusOK, status) {
				return
			}
			if !assert.Equal(t, "HTTP/1.0 200 OK\r\n", buf.String()) {
				return
			}
		})
	})

	t.Run("will write a 500", func(t *testing.T) {
		t.Run("if the process can not be created", func(t *testing.T) {
			path := writeScript(t, "#!/bin/sh\necho hi\n")

			r := wire.NewReader(strings.NewReader("\r\n"), wire.DefaultMaxLineLength)

			b := newTestBridge()
			b.start = func(*exec.Cmd) error {
				return &os.PathError{Op: "fork/exec", Path: path, Err: syscall.EAGAIN}
			}

			var buf bytes.Buffer
			status, err := b.Run(context.Background(), &buf, r, Invocation{
				Path:   path,
				Method: request.MethodGet,
			})

			var serr SpawnError
			if !assert.ErrorAs(t, err, &serr) {
				return
			}
			if !assert.ErrorIs(t, err, syscall.EAGAIN) {
				return
			}
			if !assert.Equal(t, wire.StatusInternalServerError, status) {
				return
			}
			if !assert.True(t, strings.HasPrefix(buf.String(), "HTTP/1.0 500 Internal Server Error\r\n")) {
				return
			}
		})
	})

	t.Run("will still respond with 200", func(t *testing.T) {
		t.Run("if the program exits with a non-zero status", func(t *testing.T) {
			path := writeScript(t, "#!/bin/sh\nprintf partial\nexit 3\n")

			r := wire.NewReader(strings.NewReader("\r\n"), wire.DefaultMaxLineLength)

			var buf bytes.Buffer
			b := newTestBridge()
			status, err := b.Run(context.Background(), &buf, r, Invocation{
				Path:   path,
				Method: request.MethodGet,
			})
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, wire.StatusOK, status) {
				return
			}
			if !assert.Equal(t, "HTTP/1.0 200 OK\r\npartial", buf.String()) {
				return
			}
		})
	})

	t.Run("will return a ForwardError", func(t *testing.T) {
		t.Run("if the request body is shorter than its content length", func(t *testing.T) {
			path := writeScript(t, "#!/bin/sh\ncat\n")

			r := wire.NewReader(strings.NewReader("Content-Length: 10\r\n\r\nshort"), wire.DefaultMaxLineLength)

			var buf bytes.Buffer
			b := newTestBridge()
			status, err := b.Run(context.Background(), &buf, r, Invocation{
				Path:   path,
				Method: request.MethodPost,
			})

			var ferr ForwardError
			if !assert.ErrorAs(t, err, &ferr) {
				return
			}
			if !assert.ErrorIs(t, err, io.ErrUnexpectedEOF) {
				return
			}
			if !assert.Equal(t, wire.StatusOK, status) {
				return
			}
			if !assert.Equal(t, "HTTP/1.0 200 OK\r\nshort", buf.String()) {
				return
			}
		})
	})
}

func TestBridge_env(t *testing.T) {
	t.Run("will not modify the base environment", func(t *testing.T) {
		base := []string{"PATH=/bin", "HOME=/root"}
		b := NewBridge(Environ(func() []string {
			return base
		}))

		env := b.env(Invocation{Method: request.MethodGet, Query: "a=1"}, 0)
		if !assert.Equal(t, []string{"PATH=/bin", "HOME=/root", "REQUEST_METHOD=GET", "QUERY_STRING=a=1"}, env) {
			return
		}
		if !assert.Equal(t, []string{"PATH=/bin", "HOME=/root"}, base) {
			return
		}

		env = b.env(Invocation{Method: request.MethodPost}, 42)
		if !assert.Equal(t, []string{"PATH=/bin", "HOME=/root", "REQUEST_METHOD=POST", "CONTENT_LENGTH=42"}, env) {
			return
		}
	})
}

func TestBridge_env_requestVariables(t *testing.T) {
	t.Run("will drop inherited request variables", func(t *testing.T) {
		t.Run("if the server environment already sets them", func(t *testing.T) {
			base := []string{
				"PATH=/bin",
				"QUERY_STRING=leaked=1",
				"CONTENT_LENGTH=99",
				"REQUEST_METHOD=PUT",
			}
			b := NewBridge(Environ(func() []string {
				return base
			}))

			env := b.env(Invocation{Method: request.MethodPost}, 5)
			if !assert.Equal(t, []string{"PATH=/bin", "REQUEST_METHOD=POST", "CONTENT_LENGTH=5"}, env) {
				return
			}

			env = b.env(Invocation{Method: request.MethodGet, Query: "a=1"}, 0)
			if !assert.Equal(t, []string{"PATH=/bin", "REQUEST_METHOD=GET", "QUERY_STRING=a=1"}, env) {
				return
			}
		})
	})

	t.Run("will not pass QUERY_STRING to a POST child", func(t *testing.T) {
		t.Run("if the server process has one set", func(t *testing.T) {
			t.Setenv("QUERY_STRING", "leaked=1")

			path := writeScript(t, "#!/bin/sh\n"+
				"printf 'QS=%s' \"${QUERY_STRING-unset}\"\n")

			r := wire.NewReader(strings.NewReader("Content-Length: 0\r\n\r\n"), wire.DefaultMaxLineLength)

			var buf bytes.Buffer
			b := NewBridge(
				Logger(slog.New(slog.NewTextHandler(io.Discard, nil))),
				Stderr(io.Discard),
			)
			_, err := b.Run(context.Background(), &buf, r, Invocation{
				Path:   path,
				Method: request.MethodPost,
			})
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "HTTP/1.0 200 OK\r\nQS=unset", buf.String()) {
				return
			}
		})
	})
}

func TestResourceExhausted(t *testing.T) {
	testCases := []struct {
		Name     string
		Err      error
		Expected bool
	}{
		{Name: "EAGAIN", Err: &os.PathError{Err: syscall.EAGAIN}, Expected: true},
		{Name: "ENOMEM", Err: &os.PathError{Err: syscall.ENOMEM}, Expected: true},
		{Name: "EMFILE", Err: &os.PathError{Err: syscall.EMFILE}, Expected: true},
		{Name: "ENFILE", Err: &os.PathError{Err: syscall.ENFILE}, Expected: true},
		{Name: "ENOEXEC", Err: &os.PathError{Err: syscall.ENOEXEC}, Expected: false},
		{Name: "EACCES", Err: &os.PathError{Err: syscall.EACCES}, Expected: false},
		{Name: "not an errno", Err: errors.New("boom"), Expected: false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(t *testing.T) {
			if !assert.Equal(t, testCase.Expected, resourceExhausted(testCase.Err)) {
				return
			}
		})
	}
}
