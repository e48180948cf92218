// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package request parses the request line of an HTTP/1.0 request.
package request

import (
	"fmt"
	"strings"

	"github.com/z5labs/tinyhttpd/wire"
)

// MaxTokenLength bounds both the method and the target token.
const MaxTokenLength = 254

// Method is a supported request method.
type Method string

// Supported methods.
const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// Request is the parsed form of a request line.
type Request struct {
	Method Method

	// RawTarget is the target exactly as it appeared on the request line.
	RawTarget string

	// Path is the part of the target used to locate the resource.
	Path string

	// Query is everything after the first '?' of a GET target.
	Query    string
	HasQuery bool

	// Dynamic is set for every POST and for any GET carrying a query.
	Dynamic bool
}

// UnsupportedMethodError is returned for any method other than GET or POST.
type UnsupportedMethodError struct {
	Method string
}

// Error implements the error interface.
func (e UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported request method: %q", e.Method)
}

// TargetTooLongError is returned when the target exceeds MaxTokenLength.
type TargetTooLongError struct {
	Length int
}

// Error implements the error interface.
func (e TargetTooLongError) Error() string {
	return fmt.Sprintf("request target of %d bytes exceeds %d bytes", e.Length, MaxTokenLength)
}

// ParseLine parses the method and target of a request line. The protocol
// version and anything after it are ignored.
func ParseLine(line wire.Line) (Request, error) {
	s := line.Text()

	rawMethod, rest := cutToken(s)
	method, ok := parseMethod(rawMethod)
	if !ok {
		return Request{}, UnsupportedMethodError{Method: truncate(rawMethod)}
	}

	target, _ := nextToken(rest)
	if len(target) > MaxTokenLength {
		return Request{}, TargetTooLongError{Length: len(target)}
	}

	req := Request{
		Method:    method,
		RawTarget: target,
		Path:      target,
		Dynamic:   method == MethodPost,
	}
	if method != MethodGet {
		return req, nil
	}

	path, query, found := strings.Cut(target, "?")
	if !found {
		return req, nil
	}
	req.Path = path
	req.Query = query
	req.HasQuery = true
	req.Dynamic = true
	return req, nil
}

func parseMethod(s string) (Method, bool) {
	if len(s) > MaxTokenLength {
		return "", false
	}
	switch {
	case strings.EqualFold(s, string(MethodGet)):
		return MethodGet, true
	case strings.EqualFold(s, string(MethodPost)):
		return MethodPost, true
	default:
		return "", false
	}
}

func truncate(s string) string {
	if len(s) > MaxTokenLength {
		return s[:MaxTokenLength]
	}
	return s
}

const whitespace = " \t\r\n\v\f"

// cutToken returns the run of non-whitespace bytes at the start of s
// along with the remainder.
func cutToken(s string) (string, string) {
	i := strings.IndexAny(s, whitespace)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

func nextToken(s string) (string, string) {
	return cutToken(strings.TrimLeft(s, whitespace))
}
