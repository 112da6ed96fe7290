package saver

import (
	"net/http"
	"strings"
	"testing"
)

func TestSaverRecordsResponse(t *testing.T) {
	rs := NewResponseSaver()
	rs.Header().Set("X-Test", "yes")
	rs.Write([]byte("Hello "))
	rs.Write([]byte("world"))

	if rs.StatusCode() != http.StatusOK {
		t.Fatalf("Status is %d", rs.StatusCode())
	}
	res := string(rs.Response())
	if !strings.HasPrefix(res, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("Response is %q", res)
	}
	if !strings.Contains(res, "X-Test: yes\r\n") || !strings.HasSuffix(res, "\r\n\r\nHello world") {
		t.Fatalf("Response is %q", res)
	}
}

func TestSaverEmptyResponse(t *testing.T) {
	rs := NewResponseSaver()
	if rs.StatusCode() != 0 {
		t.Fatalf("Status before write is %d", rs.StatusCode())
	}
	if res := string(rs.Response()); res != "HTTP/1.1 200 OK\r\n\r\n" {
		t.Fatalf("Response is %q", res)
	}
}

func TestSaverIgnoresSecondWriteHeader(t *testing.T) {
	rs := NewResponseSaver()
	rs.WriteHeader(http.StatusNotFound)
	rs.WriteHeader(http.StatusOK)
	if rs.StatusCode() != http.StatusNotFound {
		t.Fatalf("Status is %d", rs.StatusCode())
	}
}
