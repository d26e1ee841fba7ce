package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/routellm/llmrouter/internal/adapter/registry"
	"github.com/routellm/llmrouter/internal/config"
	"github.com/routellm/llmrouter/internal/engine/breaker"
	"github.com/routellm/llmrouter/internal/engine/estimator"
	"github.com/routellm/llmrouter/internal/engine/latency"
	"github.com/routellm/llmrouter/internal/engine/predictor"
	"github.com/routellm/llmrouter/internal/engine/scorer"
	"github.com/routellm/llmrouter/internal/engine/state"
	"github.com/routellm/llmrouter/internal/logger"
	"github.com/routellm/llmrouter/internal/observability"
	"github.com/routellm/llmrouter/internal/core/ports"
	"github.com/routellm/llmrouter/internal/router"
	"github.com/routellm/llmrouter/pkg/format"
)

// main wires a Router from a loaded RouterConfig and keeps the process
// alive until interrupted. Adapter construction -- turning a ProviderSpec's
// api_key into a working vendor client -- is an external collaborator this
// binary doesn't perform; embedders register adapters at runtime via
// Router.RegisterBYOC.
func main() {
	startTime := time.Now()

	lcfg := buildLoggerConfig()
	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(lcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()
	slog.SetDefault(logInstance)

	styledLogger.Info("initialising llmrouter", "pid", os.Getpid())

	cfg, err := config.Load(func() {
		styledLogger.Info("configuration file changed, restart to apply provider and weight changes")
	})
	if err != nil {
		logger.FatalWithLogger(logInstance, "failed to load configuration", "error", err)
	}

	r, err := buildRouter(cfg, styledLogger)
	if err != nil {
		logger.FatalWithLogger(logInstance, "failed to build router", "error", err)
	}
	defer r.Close()

	if len(cfg.Providers) > 0 {
		styledLogger.Info("configuration declares providers awaiting adapter registration",
			"count", len(cfg.Providers))
		for _, p := range cfg.Providers {
			styledLogger.InfoWithProvider("provider configured, call RegisterBYOC to activate", p.Name,
				"model", p.Model, "rpm_limit", p.RPMLimit, "tpm_limit", p.TPMLimit)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		styledLogger.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	go reportStatusPeriodically(ctx, r, styledLogger)

	<-ctx.Done()

	styledLogger.Info("llmrouter has shut down", "uptime", format.Duration(time.Since(startTime)))
}

// buildRouter assembles every collaborator an orchestrator needs, wiring
// a Redis-backed shared state if shared_state_url is set and an in-process
// one otherwise.
func buildRouter(cfg *config.RouterConfig, log *logger.StyledLogger) (*router.Router, error) {
	var backend ports.StateBackend
	var sharedCircuit ports.SharedCircuitStore
	if cfg.SharedStateURL != "" {
		redisBackend, err := state.NewRedis(cfg.SharedStateURL)
		if err != nil {
			return nil, fmt.Errorf("connecting shared state backend: %w", err)
		}
		backend = redisBackend
		sharedCircuit = redisBackend
	} else {
		backend = state.NewInMemory()
	}

	reg := registry.New()
	br := breaker.NewWithSharedStore(cfg.CircuitBreaker.FailureThreshold, time.Duration(cfg.CircuitBreaker.CooldownSeconds)*time.Second, sharedCircuit)
	lt := latency.New(latency.DefaultAlpha, latency.DefaultInitialMs)
	pr := predictor.New(predictor.DefaultWindow, predictor.DefaultLookAhead, predictor.DefaultMultiplier, predictor.DefaultReferenceUtilisation)
	sc := scorer.New(scorer.DefaultLatencyCeilingMs, cfg.Weights.Capacity, cfg.Weights.Latency, cfg.Weights.Static)
	est := estimator.New()
	hook := observability.New(nil)

	routerCfg := router.Config{
		WindowSeconds:          cfg.WindowSeconds,
		HighPriorityReservePct: cfg.HighPriorityReservePct,
		SessionTTL:             time.Duration(cfg.SessionTTLSeconds) * time.Second,
	}

	return router.New(routerCfg, reg, sc, lt, pr, br, backend, est, hook, log), nil
}

// reportStatusPeriodically logs each registered provider's usage snapshot
// every 30 seconds until ctx is cancelled.
func reportStatusPeriodically(ctx context.Context, r *router.Router, log *logger.StyledLogger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := r.Status(ctx)
			if err != nil {
				log.Warn("failed to read provider status", "error", err)
				continue
			}
			for name, st := range status {
				log.InfoProviderStatus(name, st)
			}
		}
	}
}

// buildLoggerConfig creates logger config from environment variables with defaults.
func buildLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      envOrDefault("LLMROUTER_LOG_LEVEL", "info"),
		FileOutput: envBoolOrDefault("LLMROUTER_FILE_OUTPUT", true),
		LogDir:     envOrDefault("LLMROUTER_LOG_DIR", "./logs"),
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Theme:      envOrDefault("LLMROUTER_THEME", "default"),
		PrettyLogs: true,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true"
}
