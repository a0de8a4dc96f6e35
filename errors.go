package waf

import (
	"errors"
	"fmt"
)

// ErrMissingHost indicates the client request carried no Host header.
// The handler surfaces this as a denial, not a 400, so every rejection
// path produces the same response shape.
var ErrMissingHost = errors.New("missing Host header in request")

// ErrUnsupportedScheme indicates the request target is not a plaintext
// http:// URL. Encrypted forwarding is out of scope for the relay.
var ErrUnsupportedScheme = errors.New("target scheme is not http")

// UnsupportedMethodError indicates a method other than GET reached the
// forwarding stage.
type UnsupportedMethodError struct {
	Method string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("method %s is not forwarded by this proxy", e.Method)
}

// UpstreamTimeoutError indicates the origin did not respond within the
// relay timeout. There is no retry policy; a request gets one attempt.
type UpstreamTimeoutError struct {
	Host string
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("upstream %s did not respond in time", e.Host)
}

// UpstreamUnreachableError indicates a transport-level failure while
// contacting the origin.
type UpstreamUnreachableError struct {
	Host string
	Err  error
}

func (e *UpstreamUnreachableError) Error() string {
	return fmt.Sprintf("upstream %s unreachable: %v", e.Host, e.Err)
}

func (e *UpstreamUnreachableError) Unwrap() error {
	return e.Err
}
