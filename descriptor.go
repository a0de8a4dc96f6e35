package waf

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Method is the finite set of HTTP methods the handler dispatches on.
type Method int

// Method values. Anything outside GET/HEAD/POST collapses to MethodOther.
const (
	MethodGet Method = iota
	MethodHead
	MethodPost
	MethodOther
)

// ParseMethod maps an HTTP method string onto the Method enum.
func ParseMethod(s string) Method {
	switch s {
	case http.MethodGet:
		return MethodGet
	case http.MethodHead:
		return MethodHead
	case http.MethodPost:
		return MethodPost
	default:
		return MethodOther
	}
}

// String returns the canonical method name, or "OTHER" for methods
// outside the enumerated set.
func (m Method) String() string {
	switch m {
	case MethodGet:
		return http.MethodGet
	case MethodHead:
		return http.MethodHead
	case MethodPost:
		return http.MethodPost
	default:
		return "OTHER"
	}
}

// QueryParam is one query parameter with its values in the order they
// appeared in the query string. Repeated keys accumulate values under
// the first occurrence.
type QueryParam struct {
	Name   string
	Values []string
}

// RequestDescriptor holds the normalized fields the rule engine needs.
// One descriptor is built per inbound request and discarded when the
// request completes; nothing persists across requests.
type RequestDescriptor struct {
	// ClientIP is the transport-layer peer address, never a header value.
	ClientIP string

	// Method is the enumerated request method.
	Method Method

	// RawMethod is the method string as presented by the client,
	// kept for operator-facing messages about unsupported methods.
	RawMethod string

	// Host is the value of the Host header as declared by the client.
	Host string

	// Path is the path component of the request target, without the
	// query string. An absent path stays empty; it is not rewritten
	// to "/".
	Path string

	// Query holds the decoded query parameters in insertion order.
	Query []QueryParam

	// UserAgent is the User-Agent header, empty when absent.
	UserAgent string

	// RawTarget is the full request target as presented by the client,
	// used verbatim to build the outbound request.
	RawTarget string
}

// Normalize extracts a RequestDescriptor from an inbound request.
// It returns ErrMissingHost when the client declared no host; callers
// treat that as an immediate deny without rule evaluation.
func Normalize(r *http.Request) (*RequestDescriptor, error) {
	// net/http promotes the Host header into r.Host, so that is the
	// channel for what the client declared.
	if r.Host == "" {
		return nil, ErrMissingHost
	}

	clientIP := r.RemoteAddr
	if ip, _, err := net.SplitHostPort(clientIP); err == nil {
		clientIP = ip
	}

	d := &RequestDescriptor{
		ClientIP:  clientIP,
		Method:    ParseMethod(r.Method),
		RawMethod: r.Method,
		Host:      r.Host,
		UserAgent: r.Header.Get("User-Agent"),
		RawTarget: r.RequestURI,
	}

	// Parse the raw target rather than trusting r.URL so the path and
	// query reflect exactly what the client sent on the request line.
	if u, err := url.ParseRequestURI(d.RawTarget); err == nil {
		d.Path = u.Path
		d.Query = ParseQuery(u.RawQuery)
	} else {
		d.Path = r.URL.Path
		d.Query = ParseQuery(r.URL.RawQuery)
	}

	return d, nil
}

// ParseQuery decodes a raw query string into parameters, preserving the
// insertion order of keys and the order of values under repeated keys.
// Parameters without a value ("a" or "a=") are dropped. A "+" decodes
// to a space; segments with invalid percent-escapes are kept literally.
//
// The standard library's url.Values is a plain map and loses key order,
// which the engine needs for reproducible pattern-match reporting.
func ParseQuery(raw string) []QueryParam {
	if raw == "" {
		return nil
	}

	var params []QueryParam
	index := make(map[string]int)

	for _, segment := range strings.Split(raw, "&") {
		if segment == "" {
			continue
		}

		eq := strings.Index(segment, "=")
		if eq < 0 {
			continue
		}

		name := unescapeQuery(segment[:eq])
		value := unescapeQuery(segment[eq+1:])
		if value == "" {
			continue
		}

		if i, ok := index[name]; ok {
			params[i].Values = append(params[i].Values, value)
			continue
		}

		index[name] = len(params)
		params = append(params, QueryParam{Name: name, Values: []string{value}})
	}

	return params
}

func unescapeQuery(s string) string {
	if decoded, err := url.QueryUnescape(s); err == nil {
		return decoded
	}
	return s
}
