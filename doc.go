// Package waf provides a reverse-proxying HTTP filter. It sits between
// clients and an origin server, inspects every inbound request against a
// configurable rule set, and either rejects the request with a 403
// denial page or forwards it to the origin and relays the sanitized
// response back.
//
// # Architecture
//
// Each inbound request flows through a fixed pipeline: the normalizer
// extracts a [RequestDescriptor] from the raw request, the engine
// evaluates it against the immutable [RuleSet] with [Evaluate], and the
// verdict routes the request to either the [Relay] (allowed GETs) or the
// [DenialPage]. The RuleSet is built once at startup and never mutated,
// so request handlers share it without locking. The classifier is
// deterministic and stateless per request: identical inputs always
// produce the identical verdict.
//
// # Basic Proxy
//
// Load configuration, compile the rule set, and start serving:
//
//	cfg := waf.LoadConfigOrDefault("waf.json", slog.Default())
//	proxy := waf.NewProxy(cfg.ListenAddr(), cfg.BuildRuleSet())
//	log.Fatal(proxy.ListenAndServe())
//
// # Rules
//
// Rules are exact-match blocklists for client IPs, domains, paths
// (global or per-domain), and User-Agent values, plus an ordered list of
// substring patterns checked against every query parameter value:
//
//	rules := waf.Rules{
//	    BlockedIPs:              []string{"10.0.0.5"},
//	    BlockedDomains:          []string{"evil.com"},
//	    BlockedPathsGlobal:      []string{"/admin"},
//	    SuspiciousQueryPatterns: []string{"<script>"},
//	}
//	proxy := waf.NewProxy(":8080", rules.Compile())
//
// Rules evaluate in a fixed order (IP, host presence, domain, global
// path, per-domain path, user-agent, query patterns) and the first match
// determines the denial reason.
//
// # Forwarding
//
// Allowed GET requests are re-issued against the origin named by the
// client's request target, with hop-by-hop and proxy-owned headers
// stripped, a bounded timeout, and no redirect following. The origin's
// status relays verbatim; Content-Encoding, Transfer-Encoding, and
// Content-Length are dropped from the response, the body is delivered
// decoded, and Content-Length is recomputed from the relayed bytes.
// POST and HEAD pass only the IP and user-agent gates before being
// denied as unsupported.
//
// # Denial Pages
//
// Every rejection is a 403 with a small HTML body naming the reason.
// The template is customizable:
//
//	page, err := waf.NewDenialPageFromFile("denied.html")
//	proxy.DenialPage = page
//
// # Observability
//
// Structured denial audit logging and per-request access logs use
// log/slog:
//
//	f, _ := os.OpenFile("access.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
//	proxy.AccessLog = waf.NewAccessLogger(slog.New(slog.NewJSONHandler(f, nil)))
//
// Prometheus metrics, health probes, and a read-only status API are
// served on a separate ops listener:
//
//	proxy.Metrics = waf.NewMetrics()
//	ops := waf.NewOpsServer(":9090", proxy)
//	ops.Metrics = proxy.Metrics
//	ops.Health = waf.NewHealthChecker()
//	go ops.ListenAndServe()
//
// # Configuration
//
// Configuration is a JSON (or YAML/TOML) document with rule keys at the
// top level, loaded with environment variable overrides (WAF_ prefix).
// Missing keys default to empty collections. A malformed document makes
// [LoadConfig] fail; [LoadConfigOrDefault] preserves the historical
// fail-open behavior of continuing with an empty, permit-all rule set.
//
// # Graceful Shutdown
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	if err := proxy.Shutdown(ctx); err != nil {
//	    log.Printf("shutdown error: %v", err)
//	}
package waf
