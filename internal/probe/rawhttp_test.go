package probe

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrycli/quarry/internal/errs"
)

// rawServer accepts one connection and writes payload verbatim, so tests
// can pin down exact wire shapes net/http would normalize away.
func rawServer(t *testing.T, payload string) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				_, _ = c.Read(buf)
				_, _ = c.Write([]byte(payload))
			}(conn)
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

func TestDo_ContentLengthBody(t *testing.T) {
	port := rawServer(t, "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 15\r\n\r\n{\"msg\":\"hello\"}")

	resp, err := Do(port, Request{Method: "GET", Path: "/api/v1/hello"}, DefaultTimeouts())
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "OK", resp.StatusText)
	assert.Equal(t, `{"msg":"hello"}`, string(resp.Body))
}

func TestDo_PreservesHeaderCasing(t *testing.T) {
	port := rawServer(t, "HTTP/1.1 200 OK\r\ncontent-TYPE: text/plain\r\nContent-Length: 2\r\n\r\nhi")

	resp, err := Do(port, Request{Method: "GET", Path: "/"}, DefaultTimeouts())
	require.NoError(t, err)
	require.Len(t, resp.Headers, 2)
	assert.Equal(t, "content-TYPE", resp.Headers[0].Name)

	v, ok := resp.Get("Content-Type")
	assert.True(t, ok)
	assert.Equal(t, "text/plain", v)
}

func TestDo_ChunkedBody(t *testing.T) {
	port := rawServer(t, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n")

	resp, err := Do(port, Request{Method: "GET", Path: "/"}, DefaultTimeouts())
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(resp.Body))
}

func TestDo_ReadUntilClose(t *testing.T) {
	port := rawServer(t, "HTTP/1.1 200 OK\r\n\r\nno framing at all")

	resp, err := Do(port, Request{Method: "GET", Path: "/"}, DefaultTimeouts())
	require.NoError(t, err)
	assert.Equal(t, "no framing at all", string(resp.Body))
}

func TestDo_ConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = Do(port, Request{Method: "GET", Path: "/"}, DefaultTimeouts())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ConnectTimeout)
}

func TestTCPListening_ReadinessTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	err = TCPListening(port, 200*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ReadinessTimeout)
}

func TestResolveJSONPointer(t *testing.T) {
	body := []byte(`{"user":{"name":"ada","id":7,"admin":true},"tags":["a","b"]}`)

	got, err := ResolveJSONPointer(body, "/user/name")
	require.NoError(t, err)
	assert.Equal(t, "ada", got)

	got, err = ResolveJSONPointer(body, "/user/id")
	require.NoError(t, err)
	assert.Equal(t, "7", got)

	got, err = ResolveJSONPointer(body, "/user/admin")
	require.NoError(t, err)
	assert.Equal(t, "true", got)

	got, err = ResolveJSONPointer(body, "/tags/1")
	require.NoError(t, err)
	assert.Equal(t, "b", got)

	_, err = ResolveJSONPointer(body, "/missing")
	assert.Error(t, err)

	_, err = ResolveJSONPointer([]byte("not json"), "/x")
	assert.Error(t, err)
}

func TestDecompress_Gzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("compressed payload"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	out, err := Decompress("gzip", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "compressed payload", string(out))

	_, err = Decompress("gzip", []byte("definitely not gzip"))
	assert.Error(t, err)
}

func TestProbeRateLimit_ObservesA429(t *testing.T) {
	var count int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count++
		if count > 5 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	port := srv.Listener.Addr().(*net.TCPAddr).Port

	res, err := ProbeRateLimit(port, "/", 10, 5)
	require.NoError(t, err)
	assert.True(t, res.BurstPassed)
	assert.True(t, res.Saw429)
}

func TestProbeRateLimit_NoLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()
	port := srv.Listener.Addr().(*net.TCPAddr).Port

	res, err := ProbeRateLimit(port, "/", 50, 5)
	require.NoError(t, err)
	assert.True(t, res.BurstPassed)
	assert.False(t, res.Saw429)
}
