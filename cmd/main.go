package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	waf "github.com/tiago-pino/Projeto-SSR-WAF"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (default: search ./waf.json, ~/.waf/, /etc/waf/)")
		genConfig  = flag.Bool("gen-config", false, "generate example config file and exit")
		addr       = flag.String("addr", "", "proxy listen address (overrides config listen_port)")
		strict     = flag.Bool("strict", false, "treat a malformed config file as fatal instead of failing open")
		opsAddr    = flag.String("ops-addr", "", "serve status/health/metrics endpoints on this address (overrides config)")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if *genConfig {
		if err := waf.WriteExampleConfig("waf.json"); err != nil {
			logger.Error("generate config", "error", err)
			os.Exit(1)
		}
		fmt.Println("Generated waf.json")
		return
	}

	var cfg *waf.Config
	if *strict {
		loaded, err := waf.LoadConfig(*configPath)
		if err != nil {
			logger.Error("load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = waf.LoadConfigOrDefault(*configPath, logger)
	}

	if cfgLogger, err := cfg.BuildLogger(); err == nil {
		logger = cfgLogger
		slog.SetDefault(logger)
	} else {
		logger.Warn("invalid logging config, keeping defaults", "error", err)
	}

	rules := cfg.BuildRuleSet()
	logger.Info("rule set loaded", "rules", rules.Count())

	effectiveAddr := cfg.ListenAddr()
	if *addr != "" {
		effectiveAddr = *addr
	}

	proxy := waf.NewProxy(effectiveAddr, rules)
	proxy.Logger = logger
	proxy.ReadTimeout = cfg.Server.ReadTimeout
	proxy.WriteTimeout = cfg.Server.WriteTimeout
	proxy.IdleTimeout = cfg.Server.IdleTimeout

	relay := waf.NewRelay()
	if cfg.Relay.Timeout > 0 {
		relay.Timeout = cfg.Relay.Timeout
	}
	proxy.Relay = relay

	proxy.AccessLog = waf.NewAccessLogger(logger)

	// Ops listener (status, health, metrics).
	effectiveOpsAddr := ""
	if cfg.Ops.Enabled {
		effectiveOpsAddr = cfg.Ops.Addr
	}
	if *opsAddr != "" {
		effectiveOpsAddr = *opsAddr
	}

	var ops *waf.OpsServer
	if effectiveOpsAddr != "" {
		proxy.Metrics = waf.NewMetrics()
		proxy.Metrics.SetRuleCount(rules.Count())

		health := waf.NewHealthChecker()
		health.SetAlive(true)
		health.ReadinessChecks = append(health.ReadinessChecks, func() error {
			if proxy.Rules == nil {
				return fmt.Errorf("rule set not loaded")
			}
			return nil
		})

		ops = waf.NewOpsServer(effectiveOpsAddr, proxy)
		ops.Logger = logger
		ops.Metrics = proxy.Metrics
		ops.Health = health

		go func() {
			if err := ops.ListenAndServe(); err != nil {
				logger.Error("ops server error", "error", err)
			}
		}()

		health.SetReady(true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if ops != nil {
			_ = ops.Shutdown(shutdownCtx)
		}
		_ = proxy.Shutdown(shutdownCtx)
	}()

	logger.Info("starting waf", "addr", effectiveAddr)
	if err := proxy.ListenAndServe(); err != nil {
		logger.Error("waf error", "error", err)
		os.Exit(1)
	}
}
