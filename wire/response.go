// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package wire

import (
	"io"
)

// ServerIdentifier is sent in the Server header of every response the
// server writes itself.
const ServerIdentifier = "tinyhttpd/0.1.0"

// Status codes the server can produce.
const (
	StatusOK                  = 200
	StatusBadRequest          = 400
	StatusNotFound            = 404
	StatusInternalServerError = 500
	StatusNotImplemented      = 501
)

var statusLines = map[int]string{
	StatusOK:                  "HTTP/1.0 200 OK\r\n",
	StatusBadRequest:          "HTTP/1.0 400 BAD REQUEST\r\n",
	StatusNotFound:            "HTTP/1.0 404 NOT FOUND\r\n",
	StatusInternalServerError: "HTTP/1.0 500 Internal Server Error\r\n",
	StatusNotImplemented:      "HTTP/1.0 501 Method Not Implemented\r\n",
}

// StatusLine returns the literal status line, terminator included,
// for one of the supported status codes.
func StatusLine(code int) string {
	return statusLines[code]
}

const (
	notFoundBody = "<HTML><TITLE>Not Found</TITLE>\r\n" +
		"<BODY><P>The server could not fulfill\r\n" +
		"your request because the resource specified\r\n" +
		"is unavailable or nonexistent.\r\n" +
		"</BODY></HTML>\r\n"

	badRequestBody = "<P>Your browser sent a bad request, " +
		"such as a POST without a Content-Length.\r\n"

	cannotExecuteBody = "<P>Error prohibited CGI execution.\r\n"

	unimplementedBody = "<HTML><HEAD><TITLE>Method Not Implemented\r\n" +
		"</TITLE></HEAD>\r\n" +
		"<BODY><P>HTTP request method not supported.\r\n" +
		"</BODY></HTML>\r\n"
)

// WriteStatusOK writes only the success status line. It is used ahead of
// CGI output, which supplies its own headers.
func WriteStatusOK(w io.Writer) error {
	_, err := io.WriteString(w, statusLines[StatusOK])
	return err
}

// WriteHeaders writes a complete header block for code, ending with the
// blank line. No Content-Length is sent; the body ends when the
// connection closes.
func WriteHeaders(w io.Writer, code int) error {
	_, err := io.WriteString(w, statusLines[code]+
		"Server: "+ServerIdentifier+"\r\n"+
		"Content-Type: text/html\r\n"+
		"\r\n")
	return err
}

func writePage(w io.Writer, code int, body string) error {
	err := WriteHeaders(w, code)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, body)
	return err
}

// WriteNotFound writes the 404 response.
func WriteNotFound(w io.Writer) error {
	return writePage(w, StatusNotFound, notFoundBody)
}

// WriteBadRequest writes the 400 response.
func WriteBadRequest(w io.Writer) error {
	return writePage(w, StatusBadRequest, badRequestBody)
}

// WriteCannotExecute writes the 500 response used when a CGI program
// could not be started.
func WriteCannotExecute(w io.Writer) error {
	return writePage(w, StatusInternalServerError, cannotExecuteBody)
}

// WriteUnimplemented writes the 501 response.
func WriteUnimplemented(w io.Writer) error {
	return writePage(w, StatusNotImplemented, unimplementedBody)
}
