// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package static responds to requests for regular files.
package static

import (
	"fmt"
	"io"
	"os"

	"github.com/z5labs/tinyhttpd/internal/ioutil"
	"github.com/z5labs/tinyhttpd/wire"
)

// OpenError is returned when the resolved file could not be opened.
// A 404 has already been written when it is returned.
type OpenError struct {
	Path  string
	Cause error
}

// Error implements the error interface.
func (e OpenError) Error() string {
	return fmt.Sprintf("failed to open %s: %s", e.Path, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e OpenError) Unwrap() error {
	return e.Cause
}

// TransferError is returned when the response could not be fully written.
type TransferError struct {
	Path  string
	Cause error
}

// Error implements the error interface.
func (e TransferError) Error() string {
	return fmt.Sprintf("failed to send %s: %s", e.Path, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e TransferError) Unwrap() error {
	return e.Cause
}

// Serve drains the rest of the request headers from r and writes the file
// at path to w as a 200 response. The returned status is the one written,
// even when an error is also returned.
func Serve(w io.Writer, r *wire.Reader, path string) (int, error) {
	r.Drain()

	f, err := os.Open(path)
	if err != nil {
		werr := wire.WriteNotFound(w)
		if werr != nil {
			return wire.StatusNotFound, TransferError{Path: path, Cause: werr}
		}
		return wire.StatusNotFound, OpenError{Path: path, Cause: err}
	}

	err = wire.WriteHeaders(w, wire.StatusOK)
	if err != nil {
		f.Close()
		return wire.StatusOK, TransferError{Path: path, Cause: err}
	}

	_, err = ioutil.CopyAndTryClose(w, f)
	if err != nil {
		return wire.StatusOK, TransferError{Path: path, Cause: err}
	}
	return wire.StatusOK, nil
}
