// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package request

import (
	"errors"
	"strings"
	"testing"

	"github.com/z5labs/tinyhttpd/wire"

	"github.com/stretchr/testify/assert"
)

func TestParseLine(t *testing.T) {
	testCases := []struct {
		Name     string
		Line     string
		Expected Request
	}{
		{
			Name: "static get",
			Line: "GET /index.html HTTP/1.0\n",
			Expected: Request{
				Method:    MethodGet,
				RawTarget: "/index.html",
				Path:      "/index.html",
			},
		},
		{
			Name: "lower case get",
			Line: "get /a HTTP/1.0\n",
			Expected: Request{
				Method:    MethodGet,
				RawTarget: "/a",
				Path:      "/a",
			},
		},
		{
			Name: "get with query",
			Line: "GET /color.cgi?color=red HTTP/1.0\n",
			Expected: Request{
				Method:    MethodGet,
				RawTarget: "/color.cgi?color=red",
				Path:      "/color.cgi",
				Query:     "color=red",
				HasQuery:  true,
				Dynamic:   true,
			},
		},
		{
			Name: "get with empty query",
			Line: "GET /a? HTTP/1.0\n",
			Expected: Request{
				Method:    MethodGet,
				RawTarget: "/a?",
				Path:      "/a",
				HasQuery:  true,
				Dynamic:   true,
			},
		},
		{
			Name: "get splits at the first question mark",
			Line: "GET /a?b?c HTTP/1.0\n",
			Expected: Request{
				Method:    MethodGet,
				RawTarget: "/a?b?c",
				Path:      "/a",
				Query:     "b?c",
				HasQuery:  true,
				Dynamic:   true,
			},
		},
		{
			Name: "post is always dynamic",
			Line: "POST /post.cgi HTTP/1.0\n",
			Expected: Request{
				Method:    MethodPost,
				RawTarget: "/post.cgi",
				Path:      "/post.cgi",
				Dynamic:   true,
			},
		},
		{
			Name: "post target is not split",
			Line: "POST /post.cgi?x=1 HTTP/1.0\n",
			Expected: Request{
				Method:    MethodPost,
				RawTarget: "/post.cgi?x=1",
				Path:      "/post.cgi?x=1",
				Dynamic:   true,
			},
		},
		{
			Name: "extra whitespace between tokens",
			Line: "GET  \t /a   HTTP/1.0\n",
			Expected: Request{
				Method:    MethodGet,
				RawTarget: "/a",
				Path:      "/a",
			},
		},
		{
			Name: "missing target",
			Line: "GET\n",
			Expected: Request{
				Method: MethodGet,
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(t *testing.T) {
			req, err := ParseLine(wire.Line(testCase.Line))
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, testCase.Expected, req) {
				return
			}
		})
	}

	t.Run("will return UnsupportedMethodError", func(t *testing.T) {
		methods := []string{"HEAD", "PUT", "DELETE", "GETS", ""}
		for _, method := range methods {
			_, err := ParseLine(wire.Line(method + " / HTTP/1.0\n"))

			var uerr UnsupportedMethodError
			if !assert.ErrorAs(t, err, &uerr) {
				return
			}
			if !assert.Equal(t, method, uerr.Method) {
				return
			}
			if !assert.NotEmpty(t, uerr.Error()) {
				return
			}
		}
	})

	t.Run("will return TargetTooLongError", func(t *testing.T) {
		t.Run("if the target is longer than the token bound", func(t *testing.T) {
			target := "/" + strings.Repeat("a", MaxTokenLength)
			_, err := ParseLine(wire.Line("GET " + target + " HTTP/1.0\n"))

			var terr TargetTooLongError
			if !assert.True(t, errors.As(err, &terr)) {
				return
			}
			if !assert.Equal(t, MaxTokenLength+1, terr.Length) {
				return
			}
		})
	})

	t.Run("will accept the target", func(t *testing.T) {
		t.Run("if it is exactly the token bound", func(t *testing.T) {
			target := "/" + strings.Repeat("a", MaxTokenLength-1)
			req, err := ParseLine(wire.Line("GET " + target + " HTTP/1.0\n"))
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, target, req.Path) {
				return
			}
		})
	})
}
