package serializer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// Decode converts a stored payload (the HTTP/1.1 representation of a
// response) back to a http.Response.
func Decode(b []byte) (*http.Response, error) {
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return nil, fmt.Errorf("decode stored response: %w", err)
	}
	return res, nil
}

// Send writes the response to the client.
// Headers already set on w that the response does not carry are kept.
// It returns the number of body bytes written.
func Send(w http.ResponseWriter, res *http.Response) (int64, error) {
	if res.Body != nil {
		defer res.Body.Close()
	}
	copyHeadersTo(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	if res.Body == nil {
		return 0, nil
	}
	return io.Copy(w, res.Body)
}

// copyHeadersTo copies the headers from one http.Header to another,
// replacing values of headers present in both.
func copyHeadersTo(dst, src http.Header) {
	for name, values := range src {
		dst[name] = append([]string(nil), values...)
	}
}
