// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package ioutil

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/z5labs/tinyhttpd/internal/try"

	"github.com/stretchr/testify/assert"
)

type readFunc func([]byte) (int, error)

func (f readFunc) Read(b []byte) (int, error) {
	return f(b)
}

type closeFunc func() error

func (f closeFunc) Close() error {
	return f()
}

type writeFunc func([]byte) (int, error)

func (f writeFunc) Write(b []byte) (int, error) {
	return f(b)
}

func TestCopyChunked(t *testing.T) {
	t.Run("will never read more than a chunk at a time", func(t *testing.T) {
		t.Run("if the source is larger than a chunk", func(t *testing.T) {
			src := strings.NewReader(strings.Repeat("x", 3*ChunkSize+10))

			var sizes []int
			r := readFunc(func(b []byte) (int, error) {
				sizes = append(sizes, len(b))
				return src.Read(b)
			})

			var buf bytes.Buffer
			n, err := CopyChunked(&buf, r)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, int64(3*ChunkSize+10), n) {
				return
			}
			for _, size := range sizes {
				if !assert.Equal(t, ChunkSize, size) {
					return
				}
			}
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the destination fails", func(t *testing.T) {
			writeErr := errors.New("broken pipe")
			w := writeFunc(func(b []byte) (int, error) {
				return 0, writeErr
			})

			_, err := CopyChunked(w, strings.NewReader("hello"))
			if !assert.ErrorIs(t, err, writeErr) {
				return
			}
		})
	})
}

func TestCopyAndTryClose(t *testing.T) {
	t.Run("will return a try.CloseError", func(t *testing.T) {
		t.Run("if the source fails to close", func(t *testing.T) {
			closeErr := errors.New("failed to close")
			src := struct {
				io.Reader
				io.Closer
			}{
				Reader: strings.NewReader("hello"),
				Closer: closeFunc(func() error {
					return closeErr
				}),
			}

			var buf bytes.Buffer
			_, err := CopyAndTryClose(&buf, src)

			var cerr try.CloseError
			if !assert.ErrorAs(t, err, &cerr) {
				return
			}
			if !assert.ErrorIs(t, cerr, closeErr) {
				return
			}
			if !assert.Equal(t, "hello", buf.String()) {
				return
			}
		})
	})
}

func TestCopyN(t *testing.T) {
	t.Run("will copy exactly n bytes", func(t *testing.T) {
		t.Run("if the source has more", func(t *testing.T) {
			var buf bytes.Buffer
			n, err := CopyN(&buf, strings.NewReader("hello world"), 5)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, int64(5), n) {
				return
			}
			if !assert.Equal(t, "hello", buf.String()) {
				return
			}
		})
	})

	t.Run("will return io.ErrUnexpectedEOF", func(t *testing.T) {
		t.Run("if the source ends early", func(t *testing.T) {
			var buf bytes.Buffer
			n, err := CopyN(&buf, strings.NewReader("hi"), 5)
			if !assert.ErrorIs(t, err, io.ErrUnexpectedEOF) {
				return
			}
			if !assert.Equal(t, int64(2), n) {
				return
			}
		})
	})
}
