package waf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// DefaultRelayTimeout bounds the full origin round-trip. A slow or
// unresponsive origin must not occupy a handler indefinitely.
const DefaultRelayTimeout = 10 * time.Second

// Relay forwards allowed GET requests to the origin named by the raw
// request target and sanitizes the origin's response for the client.
type Relay struct {
	// Timeout bounds the outbound round-trip (default: DefaultRelayTimeout).
	Timeout time.Duration

	// Transport for outbound requests (optional, a tuned default is
	// used if nil).
	Transport http.RoundTripper
}

// RelayedResponse is the sanitized origin response: verbatim status,
// filtered headers, and the fully read, decoded body. Content-Length is
// set by the caller from the actual body length.
type RelayedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Request headers never forwarded to the origin. Host is set by the
// transport from the target URL; the rest are hop-by-hop or owned by
// the proxy leg.
var droppedRequestHeaders = []string{
	"Host",
	"Proxy-Connection",
	"Connection",
	"Keep-Alive",
}

// Response headers never relayed back to the client. Content-Encoding is
// dropped because the relayed body is already decoded; Content-Length is
// recomputed from the relayed bytes; the rest are hop-by-hop.
var droppedResponseHeaders = []string{
	"Content-Encoding",
	"Transfer-Encoding",
	"Content-Length",
	"Connection",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Upgrade",
	"Keep-Alive",
}

// NewRelay creates a Relay with the default timeout and transport.
func NewRelay() *Relay {
	return &Relay{
		Timeout: DefaultRelayTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultRelayTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Forward issues the outbound request for an allowed GET and returns the
// sanitized response. The target is the raw URL the client presented,
// preserving the exact path and query. Redirects are never followed; the
// origin's status is relayed verbatim. Each request gets exactly one
// attempt.
//
// Failures are classified: ErrUnsupportedScheme for non-http:// targets,
// UnsupportedMethodError for non-GET descriptors, UpstreamTimeoutError
// when the deadline passes, UpstreamUnreachableError for transport
// failures.
func (rl *Relay) Forward(ctx context.Context, d *RequestDescriptor, header http.Header) (*RelayedResponse, error) {
	if d.Method != MethodGet {
		return nil, &UnsupportedMethodError{Method: d.RawMethod}
	}

	if !strings.HasPrefix(strings.ToLower(d.RawTarget), "http://") {
		return nil, ErrUnsupportedScheme
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.RawTarget, nil)
	if err != nil {
		return nil, &UpstreamUnreachableError{Host: d.Host, Err: err}
	}

	// All client headers pass through unmodified, including conditional
	// and auth headers, minus the proxy-owned set.
	req.Header = header.Clone()
	for _, h := range droppedRequestHeaders {
		req.Header.Del(h)
	}

	timeout := rl.Timeout
	if timeout <= 0 {
		timeout = DefaultRelayTimeout
	}

	client := &http.Client{
		Transport: rl.transport(),
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyUpstreamError(d.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyUpstreamError(d.Host, err)
	}

	decoded, err := decodeBody(resp.Header.Get("Content-Encoding"), body)
	if err != nil {
		return nil, fmt.Errorf("decode %s response body: %w", resp.Header.Get("Content-Encoding"), err)
	}

	return &RelayedResponse{
		StatusCode: resp.StatusCode,
		Header:     relayHeader(resp.Header),
		Body:       decoded,
	}, nil
}

func (rl *Relay) transport() http.RoundTripper {
	if rl.Transport != nil {
		return rl.Transport
	}
	return http.DefaultTransport
}

func classifyUpstreamError(host string, err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return &UpstreamTimeoutError{Host: host}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamTimeoutError{Host: host}
	}
	return &UpstreamUnreachableError{Host: host, Err: err}
}

// relayHeader copies the origin response headers minus the dropped set.
func relayHeader(h http.Header) http.Header {
	out := h.Clone()
	for _, name := range droppedResponseHeaders {
		out.Del(name)
	}
	return out
}

// decodeBody decompresses the origin body according to its declared
// Content-Encoding, so the bytes relayed to the client match the
// recomputed Content-Length. Unknown encodings pass through as received.
func decodeBody(encoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil

	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer func() { _ = zr.Close() }()
		return io.ReadAll(zr)

	case "deflate":
		// HTTP deflate is zlib-wrapped DEFLATE, but some origins send
		// the raw stream without the wrapper. Accept both forms.
		if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer func() { _ = zr.Close() }()
			return io.ReadAll(zr)
		}
		fr := flate.NewReader(bytes.NewReader(body))
		defer func() { _ = fr.Close() }()
		return io.ReadAll(fr)

	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))

	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)

	default:
		return body, nil
	}
}
