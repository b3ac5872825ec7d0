// Command nexus boots the control plane: it loads the TOML config, wires
// the Registry, Reconciler chain, Quality store, Request Queue, Router, and
// HTTP server together, then serves until an interrupt triggers graceful
// shutdown — grounded in the teacher's core/agent.go Start/Stop idiom,
// generalized from a single HTTP server lifecycle to one that also owns
// four background loops (discovery, health probe, quality recompute, queue
// drain).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nexuslb/nexus/internal/config"
	"github.com/nexuslb/nexus/internal/discovery"
	"github.com/nexuslb/nexus/internal/health"
	"github.com/nexuslb/nexus/internal/httpapi"
	"github.com/nexuslb/nexus/internal/logging"
	"github.com/nexuslb/nexus/internal/quality"
	"github.com/nexuslb/nexus/internal/queue"
	"github.com/nexuslb/nexus/internal/reconciler"
	"github.com/nexuslb/nexus/internal/registry"
	"github.com/nexuslb/nexus/internal/router"
	"github.com/nexuslb/nexus/internal/telemetry"
)

const defaultMDNSBackendType = registry.BackendOllama

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "nexus",
		Short: "Nexus is a stateless LLM backend routing control plane",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "nexus.toml", "path to the TOML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Nexus HTTP control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Component: "nexus", ServiceTag: "nexus"})

	tracingShutdown, err := telemetry.Init(context.Background(), "nexus", cfg.Tracing.Endpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingShutdown(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	reg := registry.New()
	qualityStore := quality.NewStore()
	reconcilerMetrics := newReconcilerMetrics(cfg)
	q := newQueue(cfg)

	chain := buildChain(reg, qualityStore, cfg, reconcilerMetrics)
	r := router.New(chain, q, router.Config{Aliases: cfg.Routing.Aliases})

	srv := httpapi.New(r, reg, qualityStore, queue.Config{Enabled: cfg.Queue.Enabled, MaxSize: cfg.Queue.MaxSize, MaxWaitSeconds: cfg.Queue.MaxWaitSeconds}, log)
	srv.SetQueueDepthFunc(q.Depth)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runBackgroundLoops(ctx, reg, qualityStore, q, chain, cfg, log)

	httpServer := &http.Server{Addr: cfg.Server.Address, Handler: srv.Handler()}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting http server", map[string]interface{}{"address": cfg.Server.Address})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", map[string]interface{}{"signal": sig.String()})
	case err := <-errCh:
		log.Error("http server failed", map[string]interface{}{"error": err.Error()})
	}

	cancel() // stops background loops, which drain the queue with shutdown rejections

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newQueue(cfg *config.Config) *queue.Queue {
	metrics := queue.NewMetrics(prometheus.DefaultRegisterer)
	return queue.New(queue.Config{
		Enabled:        cfg.Queue.Enabled,
		MaxSize:        cfg.Queue.MaxSize,
		MaxWaitSeconds: cfg.Queue.MaxWaitSeconds,
	}, metrics)
}

func newReconcilerMetrics(cfg *config.Config) *reconciler.SchedulerMetrics {
	return reconciler.NewSchedulerMetrics(prometheus.DefaultRegisterer)
}

func buildChain(reg *registry.Registry, qs *quality.Store, cfg *config.Config, metrics *reconciler.SchedulerMetrics) *reconciler.Chain {
	schedCfg := reconciler.SchedulerConfig{
		Strategy:        reconciler.Strategy(cfg.Routing.Strategy),
		PriorityWeight:  cfg.Routing.Weights.Priority,
		LoadWeight:      cfg.Routing.Weights.Load,
		LatencyWeight:   cfg.Routing.Weights.Latency,
		PendingCap:      cfg.Routing.PendingCap,
		LatencyCapMs:    cfg.Routing.LatencyCapMs,
		TTFTThresholdMs: float64(cfg.Quality.TTFTPenaltyThresholdMs),
		FallbackChains:  cfg.Routing.Fallbacks,
		QueueEnabled:    cfg.Queue.Enabled && cfg.Queue.MaxSize > 0,
	}
	if schedCfg.Strategy == "" {
		schedCfg.Strategy = reconciler.StrategySmart
	}

	qualityCfg := reconciler.QualityConfig{
		ErrorRateThreshold: cfg.Quality.ErrorRateThreshold,
	}

	return reconciler.NewChain(
		reconciler.NewAnalyzerReconciler(reg),
		reconciler.NewPrivacyReconciler(reg),
		reconciler.NewBudgetReconciler(reg),
		reconciler.NewTierReconciler(reg),
		reconciler.NewQualityReconciler(qs, qualityCfg),
		reconciler.NewSchedulerReconciler(reg, qs, schedCfg, metrics),
	)
}

func runBackgroundLoops(ctx context.Context, reg *registry.Registry, qs *quality.Store, q *queue.Queue, chain *reconciler.Chain, cfg *config.Config, log logging.Logger) {
	sources := []discovery.Source{discovery.NewStaticSource(cfg.BackendSeeds())}

	if cfg.Discovery.MDNSServiceName != "" {
		backendType := registry.BackendType(cfg.Discovery.MDNSBackendType)
		if backendType == "" {
			backendType = defaultMDNSBackendType
		}
		sources = append(sources, discovery.NewMDNSSource(cfg.Discovery.MDNSServiceName, backendType))
	}

	if cfg.Discovery.RedisURL != "" {
		redisSource, err := discovery.NewRedisSource(cfg.Discovery.RedisURL, cfg.Discovery.RedisNamespace, uuid.NewString())
		if err != nil {
			log.Warn("discovery: redis source disabled", map[string]interface{}{"error": err.Error()})
		} else {
			sources = append(sources, redisSource)
		}
	}

	discoveryLoop := discovery.NewLoop(reg, sources, 30*time.Second, log)
	go discoveryLoop.Run(ctx)

	healthLoop := health.NewLoop(reg, health.NewHTTPProber(""), 15*time.Second, log)
	go healthLoop.Run(ctx)

	qualityGauges := quality.NewGauges(prometheus.DefaultRegisterer)
	qualityLoop := quality.NewLoop(qs, qualityGauges, time.Duration(cfg.Quality.MetricsIntervalSeconds)*time.Second, log)
	go qualityLoop.Run(ctx)

	drainLoop := queue.NewDrainLoop(q, chain, 50*time.Millisecond, log)
	go drainLoop.Run(ctx)
}
