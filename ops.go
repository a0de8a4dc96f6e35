package waf

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// OpsServer serves the operational endpoints on a listener separate from
// the proxy itself: the proxy listener only ever sees absolute-form
// proxy requests, so status, health, and metrics live on their own port.
//
// Routes:
//
//	GET /api/status   — proxy status and rule counts
//	GET /api/ruleset  — per-category rule counts
//	GET /healthz      — liveness probe
//	GET /readyz       — readiness probe
//	GET /metrics      — Prometheus metrics (when Metrics is set)
//
// The API is read-only; the RuleSet is immutable for the lifetime of the
// process.
type OpsServer struct {
	// Addr is the ops listen address (e.g., ":9090").
	Addr string

	// Proxy is the proxy instance being observed.
	Proxy *Proxy

	// Health provides the liveness/readiness probes.
	Health *HealthChecker

	// Metrics serves /metrics when set.
	Metrics *Metrics

	// Logger for ops server events.
	Logger *slog.Logger

	startTime time.Time
	srv       *http.Server
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Status    string `json:"status"`
	Addr      string `json:"proxy_addr"`
	RuleCount int    `json:"rule_count"`
	Uptime    string `json:"uptime"`
}

// NewOpsServer creates an OpsServer observing the given proxy.
func NewOpsServer(addr string, proxy *Proxy) *OpsServer {
	return &OpsServer{
		Addr:      addr,
		Proxy:     proxy,
		Logger:    slog.Default(),
		startTime: time.Now(),
	}
}

// Router builds the chi router for all ops routes.
func (o *OpsServer) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))
		r.Get("/status", o.handleStatus)
		r.Get("/ruleset", o.handleRuleSet)
	})

	if o.Health != nil {
		r.Get("/healthz", o.Health.HandleHealthz)
		r.Get("/readyz", o.Health.HandleReadyz)
	}

	if o.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", o.Metrics.Handler())
	}

	return r
}

// ListenAndServe starts the ops listener.
func (o *OpsServer) ListenAndServe() error {
	o.srv = &http.Server{
		Addr:    o.Addr,
		Handler: o.Router(),
	}

	o.logger().Info("ops endpoints listening", "addr", o.Addr)
	if err := o.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ops listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the ops listener.
func (o *OpsServer) Shutdown(ctx context.Context) error {
	if o.srv != nil {
		return o.srv.Shutdown(ctx)
	}
	return nil
}

func (o *OpsServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Status: "ok",
		Uptime: time.Since(o.startTime).Truncate(time.Second).String(),
	}
	if o.Proxy != nil {
		resp.Addr = o.Proxy.Addr
		resp.RuleCount = o.Proxy.Rules.Count()
	}
	o.writeJSON(w, http.StatusOK, resp)
}

func (o *OpsServer) handleRuleSet(w http.ResponseWriter, _ *http.Request) {
	if o.Proxy == nil {
		o.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no proxy attached"})
		return
	}
	o.writeJSON(w, http.StatusOK, o.Proxy.Rules.Counts())
}

func (o *OpsServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		o.logger().Debug("write ops response", "error", err)
	}
}

func (o *OpsServer) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
