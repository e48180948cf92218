// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package wire implements the byte level framing of HTTP/1.0 requests and
// the fixed responses produced by the server itself.
package wire

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
)

// DefaultMaxLineLength bounds a single request or header line.
const DefaultMaxLineLength = 1024

// Line is a single request line with its terminator normalized to '\n'.
//
// A line read up to the length bound, or cut short by the peer, carries
// no terminator. An empty Line means nothing more could be read.
type Line []byte

// Blank reports whether l is the empty line which ends the header block.
func (l Line) Blank() bool {
	return len(l) == 1 && l[0] == '\n'
}

// Drained reports whether the underlying stream had nothing left to read.
func (l Line) Drained() bool {
	return len(l) == 0
}

// Text returns the line without its terminator.
func (l Line) Text() string {
	return string(bytes.TrimSuffix(l, []byte{'\n'}))
}

// Reader reads CR, LF and CRLF terminated lines from a byte stream.
//
// Reader must be used for all reads from the stream, including any request
// body, since it buffers bytes beyond the current line.
type Reader struct {
	br     *bufio.Reader
	maxLen int
}

// NewReader returns a Reader which stores at most maxLen-1 bytes per line.
// A maxLen below 2 falls back to DefaultMaxLineLength.
func NewReader(r io.Reader, maxLen int) *Reader {
	if maxLen < 2 {
		maxLen = DefaultMaxLineLength
	}
	return &Reader{
		br:     bufio.NewReaderSize(r, maxLen),
		maxLen: maxLen,
	}
}

// ReadLine reads the next line.
//
// A lone '\r' and a "\r\n" pair are both reported as '\n'. A failed or
// empty read ends the line without a terminator and is never reported as
// an error, so callers only ever observe a possibly empty Line.
func (r *Reader) ReadLine() Line {
	line := make(Line, 0, 64)
	for len(line) < r.maxLen-1 {
		c, err := r.br.ReadByte()
		if err != nil {
			return line
		}
		if c == '\r' {
			next, err := r.br.Peek(1)
			if err == nil && next[0] == '\n' {
				r.br.ReadByte()
			}
			c = '\n'
		}
		line = append(line, c)
		if c == '\n' {
			return line
		}
	}
	return line
}

// Drain reads and discards lines up to and including the blank line which
// ends the header block, or until the stream is drained.
func (r *Reader) Drain() {
	for {
		line := r.ReadLine()
		if line.Blank() || line.Drained() {
			return
		}
	}
}

// ErrMissingContentLength is returned by ContentLength when the header
// block ends without a usable Content-Length field.
var ErrMissingContentLength = errors.New("wire: missing content length")

var contentLengthField = []byte("content-length:")

// ContentLength consumes the remaining header block and returns the value
// of its Content-Length field. The field name is matched case-insensitively.
// When the field repeats the last valid occurrence wins.
func (r *Reader) ContentLength() (int64, error) {
	n := int64(-1)
	for {
		line := r.ReadLine()
		if line.Blank() || line.Drained() {
			break
		}
		if len(line) < len(contentLengthField) {
			continue
		}
		if !bytes.EqualFold(line[:len(contentLengthField)], contentLengthField) {
			continue
		}

		value := bytes.TrimSpace(line[len(contentLengthField):])
		v, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil || v < 0 {
			continue
		}
		n = v
	}
	if n < 0 {
		return 0, ErrMissingContentLength
	}
	return n, nil
}

// Read reads raw bytes, such as a request body, past the lines
// already consumed.
func (r *Reader) Read(b []byte) (int, error) {
	return r.br.Read(b)
}
