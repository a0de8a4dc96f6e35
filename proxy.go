package waf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Rule identifiers for denials produced outside the evaluation engine.
const (
	RuleMethod              = "unsupported_method"
	RuleScheme              = "unsupported_scheme"
	RuleUpstreamTimeout     = "upstream_timeout"
	RuleUpstreamUnreachable = "upstream_unreachable"
	RuleInternal            = "internal_error"
)

// Proxy is the reverse-proxying HTTP filter. Every inbound request is
// normalized, evaluated against the immutable RuleSet, and either
// rejected with a 403 denial page or forwarded to the origin by the
// Relay. The RuleSet is loaded before the first connection is accepted
// and never mutated, so handlers share it without locking.
type Proxy struct {
	// Addr is the address to listen on (e.g., ":8080").
	Addr string

	// Rules is the immutable rule snapshot consulted for every request.
	Rules *RuleSet

	// Relay forwards allowed GET requests to the origin (optional,
	// a default Relay is used if nil).
	Relay *Relay

	// DenialPage renders the 403 body (optional, uses the default
	// fixed-shape page if nil).
	DenialPage *DenialPage

	// Logger for proxy events and the denial audit trail.
	Logger *slog.Logger

	// Metrics collects Prometheus metrics (optional).
	Metrics *Metrics

	// AccessLog writes structured access log entries per request
	// (optional).
	AccessLog *AccessLogger

	// ReadTimeout, WriteTimeout, and IdleTimeout apply to the inbound
	// listener. Zero values leave the server defaults.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	listener net.Listener
	srv      *http.Server
}

// NewProxy creates a proxy filtering against the given rule set.
func NewProxy(addr string, rules *RuleSet) *Proxy {
	if rules == nil {
		rules = NewRuleSet()
	}
	return &Proxy{
		Addr:   addr,
		Rules:  rules,
		Relay:  NewRelay(),
		Logger: slog.Default(),
	}
}

// ListenAndServe starts the proxy server. It blocks until the listener
// is closed, typically via Shutdown.
func (p *Proxy) ListenAndServe() error {
	listener, err := net.Listen("tcp", p.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	p.listener = listener

	p.srv = &http.Server{
		Handler:      p,
		ReadTimeout:  p.ReadTimeout,
		WriteTimeout: p.WriteTimeout,
		IdleTimeout:  p.IdleTimeout,
	}

	p.logger().Info("waf listening", "addr", p.Addr, "rules", p.Rules.Count())
	return p.srv.Serve(listener)
}

// Shutdown gracefully stops the proxy. There is no persisted state to
// flush; only the listener is closed and in-flight handlers drained.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.srv != nil {
		return p.srv.Shutdown(ctx)
	}
	return nil
}

// ServeHTTP handles one inbound request: Normalizer, Engine, then Relay
// or denial. Each request runs independently; a failure here must never
// affect sibling requests, so the whole lifecycle sits inside a single
// recovery boundary.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if p.Metrics != nil {
		p.Metrics.RecordRequest(r.Method)
		p.Metrics.IncInFlight()
		defer p.Metrics.DecInFlight()
	}

	sw := &statusWriter{ResponseWriter: w}

	defer func() {
		if rec := recover(); rec != nil {
			p.logger().Error("panic during request handling",
				"panic", rec,
				"method", r.Method,
				"target", r.RequestURI,
				"client", r.RemoteAddr,
			)
			if p.Metrics != nil {
				p.Metrics.RecordDenied(RuleInternal)
			}
			if !sw.wrote {
				p.writeDenial(sw, "Internal Server Error during request processing")
			}
		}
	}()

	desc, err := Normalize(r)
	if err != nil {
		// Missing Host bypasses rule evaluation and denies directly.
		desc = descriptorForBadRequest(r)
		p.deny(sw, desc, start, RuleHost, "Bad Request: Host header missing in original request.")
		return
	}

	switch desc.Method {
	case MethodGet:
		verdict := Evaluate(desc, p.Rules)
		if !verdict.Allowed() {
			p.deny(sw, desc, start, verdict.Rule, verdict.Reason)
			return
		}
		p.relayRequest(sw, r, desc, start)

	case MethodPost, MethodHead:
		// IP and user-agent are policy gates applied to every method;
		// beyond those, these methods are not forwarded in this version.
		if verdict := EvaluateGates(desc, p.Rules); !verdict.Allowed() {
			p.deny(sw, desc, start, verdict.Rule, verdict.Reason)
			return
		}
		p.deny(sw, desc, start, RuleMethod,
			fmt.Sprintf("%s requests are not fully processed by this WAF version.", desc.RawMethod))

	default:
		if verdict := EvaluateGates(desc, p.Rules); !verdict.Allowed() {
			p.deny(sw, desc, start, verdict.Rule, verdict.Reason)
			return
		}
		p.deny(sw, desc, start, RuleMethod,
			fmt.Sprintf("Unsupported method ('%s')", desc.RawMethod))
	}
}

// relayRequest performs the origin round-trip for an allowed GET and
// writes the sanitized response. Forwarding failures surface to the
// client as denial-shaped responses, never as raw proxy errors.
func (p *Proxy) relayRequest(w *statusWriter, r *http.Request, desc *RequestDescriptor, start time.Time) {
	resp, err := p.relay().Forward(r.Context(), desc, r.Header)
	if err != nil {
		rule, reason := classifyRelayFailure(desc, err)
		if rule == RuleUpstreamTimeout || rule == RuleUpstreamUnreachable {
			if p.Metrics != nil {
				p.Metrics.RecordUpstreamError(desc.Host)
			}
		}
		p.logger().Warn("forwarding failed", "error", err, "target", desc.RawTarget)
		p.deny(w, desc, start, rule, reason)
		return
	}

	elapsed := time.Since(start)
	if p.Metrics != nil {
		p.Metrics.RecordRelayDuration(resp.StatusCode, elapsed)
	}

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.StatusCode)

	written, werr := w.Write(resp.Body)
	if werr != nil {
		// Client went away mid-write; abandon quietly.
		p.logger().Debug("write relayed response", "error", werr, "client", desc.ClientIP)
	}

	if p.AccessLog != nil {
		e := AccessLogEntry{
			Timestamp:    start,
			Method:       desc.RawMethod,
			Host:         desc.Host,
			Path:         desc.Path,
			Target:       desc.RawTarget,
			ClientAddr:   desc.ClientIP,
			StatusCode:   resp.StatusCode,
			Duration:     elapsed,
			BytesWritten: int64(written),
			UserAgent:    desc.UserAgent,
		}
		if werr != nil {
			e.Error = werr.Error()
		}
		p.AccessLog.Log(e)
	}
}

// deny records the audit trail and writes the fixed-shape 403 response.
// The log line precedes the response and includes enough context to
// reconstruct why the request was rejected.
func (p *Proxy) deny(w *statusWriter, desc *RequestDescriptor, start time.Time, rule, reason string) {
	p.logger().Info("blocked",
		"reason", reason,
		"rule", rule,
		"client", desc.ClientIP,
		"host", desc.Host,
		"target", desc.RawTarget,
	)
	if p.Metrics != nil {
		p.Metrics.RecordDenied(rule)
	}

	p.writeDenial(w, reason)

	if p.AccessLog != nil {
		p.AccessLog.Log(AccessLogEntry{
			Timestamp:  start,
			Method:     desc.RawMethod,
			Host:       desc.Host,
			Path:       desc.Path,
			Target:     desc.RawTarget,
			ClientAddr: desc.ClientIP,
			Duration:   time.Since(start),
			Denied:     true,
			Rule:       rule,
			Reason:     reason,
			UserAgent:  desc.UserAgent,
		})
	}
}

func (p *Proxy) writeDenial(w http.ResponseWriter, reason string) {
	page := p.DenialPage
	if page == nil {
		page = NewDenialPage()
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusForbidden)
	if err := page.Render(w, DenialData{Reason: reason}); err != nil {
		p.logger().Debug("write denial response", "error", err)
	}
}

func (p *Proxy) relay() *Relay {
	if p.Relay != nil {
		return p.Relay
	}
	return NewRelay()
}

func (p *Proxy) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func classifyRelayFailure(desc *RequestDescriptor, err error) (rule, reason string) {
	var (
		methodErr      *UnsupportedMethodError
		timeoutErr     *UpstreamTimeoutError
		unreachableErr *UpstreamUnreachableError
	)

	switch {
	case errors.Is(err, ErrUnsupportedScheme):
		return RuleScheme, "Bad Request: This WAF only forwards http:// URLs."
	case errors.As(err, &methodErr):
		return RuleMethod, fmt.Sprintf("Unsupported method ('%s')", methodErr.Method)
	case errors.As(err, &timeoutErr):
		return RuleUpstreamTimeout, fmt.Sprintf("Gateway Timeout: Could not connect to %s in time.", desc.Host)
	case errors.As(err, &unreachableErr):
		return RuleUpstreamUnreachable, fmt.Sprintf("Bad Gateway: Could not connect to %s", desc.Host)
	default:
		return RuleInternal, "Internal Server Error while proxying"
	}
}

// descriptorForBadRequest builds a minimal descriptor for requests that
// fail normalization, so denial logging still has client context.
func descriptorForBadRequest(r *http.Request) *RequestDescriptor {
	clientIP := r.RemoteAddr
	if ip, _, err := net.SplitHostPort(clientIP); err == nil {
		clientIP = ip
	}
	return &RequestDescriptor{
		ClientIP:  clientIP,
		Method:    ParseMethod(r.Method),
		RawMethod: r.Method,
		RawTarget: r.RequestURI,
		UserAgent: r.Header.Get("User-Agent"),
	}
}

// statusWriter tracks whether a response has been started, so the panic
// recovery boundary knows if a last-resort denial can still be written.
type statusWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.wrote = true
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}
