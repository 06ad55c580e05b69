package httpparse_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groove-net/ignis/internal/httpparse"
)

func TestParse_Complete(t *testing.T) {
	raw := "GET /index.html HTTP/1.1\r\nHost: example.com\r\nConnection: keep-alive\r\n\r\n"
	req, n, verdict := httpparse.Parse([]byte(raw))
	require.Equal(t, httpparse.Complete, verdict)
	require.NotNil(t, req)
	assert.Equal(t, len(raw), n)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/index.html", req.URI)
	assert.Equal(t, "HTTP/1.1", req.Version)
	assert.Equal(t, "example.com", req.Header.Get("host"))
	assert.True(t, req.KeepAlive())
}

func TestParse_PartialAwaitsMoreBytes(t *testing.T) {
	raw := "GET /index.html HTTP/1.1\r\nHost: example.com\r\n"
	_, _, verdict := httpparse.Parse([]byte(raw))
	assert.Equal(t, httpparse.Partial, verdict)
}

func TestParse_MalformedRequestLine(t *testing.T) {
	raw := "NOT A REQUEST LINE\r\n\r\n"
	_, _, verdict := httpparse.Parse([]byte(raw))
	assert.Equal(t, httpparse.Malformed, verdict)
}

func TestParse_MalformedHeaderLine(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nBadHeaderNoColon\r\n\r\n"
	_, _, verdict := httpparse.Parse([]byte(raw))
	assert.Equal(t, httpparse.Malformed, verdict)
}

func TestParse_RejectsChunkedTransferEncoding(t *testing.T) {
	raw := "POST /upload HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"
	_, _, verdict := httpparse.Parse([]byte(raw))
	assert.Equal(t, httpparse.Malformed, verdict)
}

func TestParse_HeadersTooLarge(t *testing.T) {
	var b strings.Builder
	b.WriteString("GET / HTTP/1.1\r\n")
	for i := 0; i < 1000; i++ {
		b.WriteString("X-Padding: 0123456789\r\n")
	}
	raw := b.String()
	_, _, verdict := httpparse.Parse([]byte(raw))
	assert.Equal(t, httpparse.Malformed, verdict)
}

func TestParse_TooManyHeaders(t *testing.T) {
	var b strings.Builder
	b.WriteString("GET / HTTP/1.1\r\n")
	for i := 0; i < httpparse.MaxHeaderCount+1; i++ {
		b.WriteString("X: 1\r\n")
	}
	b.WriteString("\r\n")
	raw := b.String()
	_, _, verdict := httpparse.Parse([]byte(raw))
	assert.Equal(t, httpparse.Malformed, verdict)
}

func TestParse_HeaderCountAtLimitIsAccepted(t *testing.T) {
	var b strings.Builder
	b.WriteString("GET / HTTP/1.1\r\n")
	for i := 0; i < httpparse.MaxHeaderCount; i++ {
		b.WriteString("X: 1\r\n")
	}
	b.WriteString("\r\n")
	raw := b.String()
	_, _, verdict := httpparse.Parse([]byte(raw))
	assert.Equal(t, httpparse.Complete, verdict)
}

func TestRequest_ContentLength(t *testing.T) {
	raw := "POST /data HTTP/1.1\r\nContent-Length: 42\r\n\r\n"
	req, _, verdict := httpparse.Parse([]byte(raw))
	require.Equal(t, httpparse.Complete, verdict)
	n, err := req.ContentLength()
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)
}

func TestRequest_ContentLengthInvalid(t *testing.T) {
	req := &httpparse.Request{Header: httpparse.Header{"content-length": {"not-a-number"}}}
	_, err := req.ContentLength()
	assert.Error(t, err)
}

func TestRequest_KeepAliveHTTP10RequiresOptIn(t *testing.T) {
	req := &httpparse.Request{Version: "HTTP/1.0", Header: httpparse.Header{}}
	assert.False(t, req.KeepAlive())

	req.Header.Get("connection")
	req2 := &httpparse.Request{Version: "HTTP/1.0", Header: httpparse.Header{"connection": {"keep-alive"}}}
	assert.True(t, req2.KeepAlive())
}

func TestRequest_ConnectionCloseOverridesHTTP11Default(t *testing.T) {
	req := &httpparse.Request{Version: "HTTP/1.1", Header: httpparse.Header{"connection": {"close"}}}
	assert.False(t, req.KeepAlive())
}

func TestParse_Pipelining(t *testing.T) {
	raw := "GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\n\r\n"
	req, n, verdict := httpparse.Parse([]byte(raw))
	require.Equal(t, httpparse.Complete, verdict)
	assert.Equal(t, "/a", req.URI)

	req2, _, verdict2 := httpparse.Parse([]byte(raw[n:]))
	require.Equal(t, httpparse.Complete, verdict2)
	assert.Equal(t, "/b", req2.URI)
}
