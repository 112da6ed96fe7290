package saver

import (
	"bytes"
	"fmt"
	"net/http"
)

// ResponseSaver is a http.ResponseWriter that saves the response to a buffer.
// The buffer holds the HTTP/1.1 representation of the response.
type ResponseSaver struct {
	b            *bytes.Buffer
	header       http.Header
	status       int
	wroteHeaders bool
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Header() http.Header {
	return t.header
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) WriteHeader(statusCode int) {
	// superfluous calls are ignored, like net/http does
	if t.wroteHeaders {
		return
	}
	t.wroteHeaders = true
	// set the status code so we can return it later
	t.status = statusCode
	// write http status, headers, and separator to buffer
	t.b.WriteString(fmt.Sprintf("HTTP/1.1 %d %s\r\n", statusCode, http.StatusText(statusCode)))
	t.header.Write(t.b)
	t.b.WriteString("\r\n")
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Write(b []byte) (int, error) {
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
	return t.b.Write(b)
}

// Response returns the recorded response as a byte slice.
// A handler that wrote nothing is recorded as an empty 200 OK.
func (t *ResponseSaver) Response() []byte {
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
	return t.b.Bytes()
}

// StatusCode returns the status code of the response,
// or zero if nothing was written yet.
func (t *ResponseSaver) StatusCode() int {
	return t.status
}

// NewResponseSaver returns a new, empty ResponseSaver.
func NewResponseSaver() *ResponseSaver {
	return &ResponseSaver{
		b:      &bytes.Buffer{},
		header: http.Header{},
	}
}
