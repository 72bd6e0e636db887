package probe

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/quarrycli/quarry/internal/errs"
)

// Header is one response header line in wire order, preserving casing as
// the server sent it — a high-level client would normalize this away.
type Header struct {
	Name  string
	Value string
}

// Response is a raw HTTP/1.1 response as read off the wire.
type Response struct {
	StatusCode int
	StatusText string
	Headers    []Header
	Body       []byte
}

// Get looks up the first header matching name case-insensitively.
func (r *Response) Get(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// Timeouts bounds every phase of a raw HTTP round trip.
type Timeouts struct {
	Connect time.Duration
	Write   time.Duration
	Read    time.Duration
	Total   time.Duration
}

// DefaultTimeouts is used when a validator doesn't need tighter bounds.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect: 2 * time.Second,
		Write:   2 * time.Second,
		Read:    5 * time.Second,
		Total:   10 * time.Second,
	}
}

// Request is one raw HTTP/1.1 request to send over a fresh TCP connection.
type Request struct {
	Method  string
	Path    string
	Host    string
	Headers []Header
	Body    []byte
}

// Do dials 127.0.0.1:port, writes req by hand, and parses the response
// status line, headers, and body. Body is read according to
// whichever framing the response declares: Content-Length, chunked
// Transfer-Encoding, or until the connection closes.
func Do(port int, req Request, t Timeouts) (*Response, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := net.DialTimeout("tcp", addr, t.Connect)
	if err != nil {
		return nil, errors.Wrapf(errs.ConnectTimeout, "connect to %s: %s", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(t.Total)
	_ = conn.SetDeadline(deadline)

	if req.Host == "" {
		req.Host = addr
	}
	if err := writeRequest(conn, req); err != nil {
		return nil, errors.Wrapf(errs.ConnectTimeout, "write request: %s", err)
	}

	reader := bufio.NewReader(conn)
	resp, err := readResponse(reader)
	if err != nil {
		return nil, errors.Wrapf(errs.ReadTimeout, "read response: %s", err)
	}
	return resp, nil
}

func writeRequest(w io.Writer, req Request) error {
	var buf bytes.Buffer
	method := req.Method
	if method == "" {
		method = "GET"
	}
	path := req.Path
	if path == "" {
		path = "/"
	}
	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\n", method, path)
	fmt.Fprintf(&buf, "Host: %s\r\n", req.Host)
	fmt.Fprintf(&buf, "Connection: close\r\n")

	hasContentLength := false
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "content-length") {
			hasContentLength = true
		}
		fmt.Fprintf(&buf, "%s: %s\r\n", h.Name, h.Value)
	}
	if len(req.Body) > 0 && !hasContentLength {
		fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(req.Body))
	}
	buf.WriteString("\r\n")
	buf.Write(req.Body)

	_, err := w.Write(buf.Bytes())
	return err
}

func readResponse(r *bufio.Reader) (*Response, error) {
	statusLine, err := readLine(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading status line")
	}
	code, text, err := parseStatusLine(statusLine)
	if err != nil {
		return nil, err
	}

	var headers []Header
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading headers")
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers = append(headers, Header{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}

	resp := &Response{StatusCode: code, StatusText: text, Headers: headers}

	body, err := readBody(r, resp)
	if err != nil {
		return nil, errors.Wrap(err, "reading body")
	}
	resp.Body = body
	return resp, nil
}

func parseStatusLine(line string) (int, string, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, "", errors.Newf("malformed status line %q", line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", errors.Wrapf(err, "malformed status code in %q", line)
	}
	text := ""
	if len(parts) == 3 {
		text = parts[2]
	}
	return code, text, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readBody reads the response body per whichever framing the headers
// declare: chunked transfer-encoding, a declared Content-Length, or (their
// absence) read-until-close.
func readBody(r *bufio.Reader, resp *Response) ([]byte, error) {
	if te, ok := resp.Get("Transfer-Encoding"); ok && strings.EqualFold(te, "chunked") {
		return readChunkedBody(r)
	}
	if clStr, ok := resp.Get("Content-Length"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(clStr))
		if err != nil {
			return nil, errors.Wrapf(err, "malformed Content-Length %q", clStr)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	return io.ReadAll(r)
}

func readChunkedBody(r *bufio.Reader) ([]byte, error) {
	var body bytes.Buffer
	for {
		sizeLine, err := readLine(r)
		if err != nil {
			return nil, err
		}
		sizeLine, _, _ = strings.Cut(sizeLine, ";")
		size, err := strconv.ParseInt(strings.TrimSpace(sizeLine), 16, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed chunk size %q", sizeLine)
		}
		if size == 0 {
			// Trailing headers (if any) end with a blank line.
			for {
				line, err := readLine(r)
				if err != nil {
					return nil, err
				}
				if line == "" {
					break
				}
			}
			return body.Bytes(), nil
		}
		chunk := make([]byte, size)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, err
		}
		body.Write(chunk)
		if _, err := readLine(r); err != nil { // trailing CRLF after chunk data
			return nil, err
		}
	}
}
