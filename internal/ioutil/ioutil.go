// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package ioutil copies request and response bodies in fixed size chunks.
package ioutil

import (
	"io"

	"github.com/z5labs/tinyhttpd/internal/try"
)

// ChunkSize is the size of every read issued while copying.
const ChunkSize = 1024

// CopyChunked copies src to dst one ChunkSize read at a time, writing each
// chunk verbatim. It stops at the first read or write failure.
func CopyChunked(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	return io.CopyBuffer(onlyWriter{dst}, onlyReader{src}, buf)
}

// CopyAndTryClose copies src to dst and then closes src, if it is an
// io.Closer, joining any close failure into the returned error.
func CopyAndTryClose(dst io.Writer, src io.Reader) (_ int64, err error) {
	defer try.Close(&err, src)
	return CopyChunked(dst, src)
}

// CopyN copies exactly n bytes from src to dst in ChunkSize reads.
// A source which ends early yields io.ErrUnexpectedEOF.
func CopyN(dst io.Writer, src io.Reader, n int64) (int64, error) {
	written, err := CopyChunked(dst, io.LimitReader(src, n))
	if err != nil {
		return written, err
	}
	if written < n {
		return written, io.ErrUnexpectedEOF
	}
	return written, nil
}

// onlyReader and onlyWriter hide ReaderFrom and WriterTo so io.CopyBuffer
// always goes through the fixed buffer.
type onlyReader struct {
	io.Reader
}

type onlyWriter struct {
	io.Writer
}
