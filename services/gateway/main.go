/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Gateway entry point: wires the warehouse session,
             identity/quota/schema services, the plan compiler's
             runtime dependencies, the deployment gateway and
             consistency reader, and the orchestrator's WS+REST
             surface, then serves it with graceful shutdown.
             Same config -> logger -> dependencies -> router ->
             http.Server -> signal-handling shape the teacher's
             entry point uses, generalized from an LLM-proxy's
             provider registry to this gateway's warehouse-backed
             component graph.
Root Cause:  Sprint task G057 — runnable entrypoint wiring every
             previously-built component together.
Context:     The only process that opens the warehouse session;
             everything else receives it (or a narrow slice of
             it) by dependency injection.
Suitability: L3 — startup wiring and lifecycle management.
──────────────────────────────────────────────────────────────
*/

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/latticegw/mcp-gateway/services/gateway/config"
	"github.com/latticegw/mcp-gateway/services/gateway/consistency"
	"github.com/latticegw/mcp-gateway/services/gateway/credstore"
	"github.com/latticegw/mcp-gateway/services/gateway/deploy"
	"github.com/latticegw/mcp-gateway/services/gateway/eventlog"
	"github.com/latticegw/mcp-gateway/services/gateway/eventstore"
	"github.com/latticegw/mcp-gateway/services/gateway/executor"
	"github.com/latticegw/mcp-gateway/services/gateway/handler"
	"github.com/latticegw/mcp-gateway/services/gateway/identity"
	"github.com/latticegw/mcp-gateway/services/gateway/lanes"
	"github.com/latticegw/mcp-gateway/services/gateway/logger"
	"github.com/latticegw/mcp-gateway/services/gateway/observability"
	"github.com/latticegw/mcp-gateway/services/gateway/orchestrator"
	"github.com/latticegw/mcp-gateway/services/gateway/procedures"
	"github.com/latticegw/mcp-gateway/services/gateway/quota"
	"github.com/latticegw/mcp-gateway/services/gateway/ratelimit"
	"github.com/latticegw/mcp-gateway/services/gateway/redisclient"
	"github.com/latticegw/mcp-gateway/services/gateway/schema"
	"github.com/latticegw/mcp-gateway/services/gateway/smartrouter"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().Str("env", cfg.Env).Msg("mcp gateway starting")

	ctx := context.Background()

	// secrets holds the warehouse and Redis credentials config.Load read
	// from the environment; every consumer below resolves its secret
	// through this store rather than reading cfg fields a second time, so
	// a future credential-rotation path only has to call secrets.Set.
	secrets := credstore.NewMemoryStore(0)
	seedSecret(ctx, secrets, log, "snowflake", "account", cfg.Account)
	seedSecret(ctx, secrets, log, "snowflake", "username", cfg.Username)
	seedSecret(ctx, secrets, log, "snowflake", "password", cfg.Password)
	seedSecret(ctx, secrets, log, "snowflake", "private_key_path", cfg.PrivateKeyPath)
	seedSecret(ctx, secrets, log, "snowflake", "private_key_pass", cfg.PrivateKeyPass)
	seedSecret(ctx, secrets, log, "redis", "url", cfg.RedisURL)

	creds := eventstore.Credentials{
		Account:        mustSecret(ctx, secrets, log, "snowflake", "account"),
		Username:       mustSecret(ctx, secrets, log, "snowflake", "username"),
		Password:       getSecret(ctx, secrets, "snowflake", "password"),
		PrivateKeyPath: getSecret(ctx, secrets, "snowflake", "private_key_path"),
		PrivateKeyPass: getSecret(ctx, secrets, "snowflake", "private_key_pass"),
		Warehouse:      cfg.Warehouse,
		Database:       cfg.Database,
		Schema:         cfg.Schema,
		Role:           cfg.Role,
	}
	adapter, err := eventstore.Open(ctx, cfg, creds, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open warehouse session")
	}

	redisCfg := *cfg
	redisCfg.RedisURL = mustSecret(ctx, secrets, log, "redis", "url")
	rc, err := redisclient.New(&redisCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	if err := rc.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis ping failed — nonce replay checks will fail open")
	} else {
		log.Info().Msg("redis connected")
	}

	registry, err := schema.Load(cfg.SchemaContractPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SchemaContractPath).Msg("failed to load schema contract")
	}
	log.Info().Str("hash", registry.Hash()).Msg("schema contract loaded")

	eventLogger := eventlog.New(adapter, log, eventlog.Config{
		RateThreshold: cfg.LogRateThreshold,
		BufferWindow:  cfg.LogBatchWindow,
		BufferMax:     cfg.LogBatchMaxEvents,
	})

	nonces := identity.NewRedisNonceStore(rc)
	identitySvc := identity.New(adapter, nonces, cfg.TokenPepper, cfg.NonceWindow, log)

	quotaTracker := quota.NewTracker()

	exec := executor.New(adapter, adapter, eventLogger, log)

	router := smartrouter.New(eventLogger, log)

	versionStore := lanes.NewVersionStore(adapter, log)
	laneReader := lanes.NewLaneReader(adapter, log)

	// stage is nil: nothing in this deployment's object allow-list
	// references a staged DDL file yet, per deploy.New's own contract.
	deployGateway := deploy.New(adapter, nil, versionStore, eventLogger, log)

	consistencyReader := consistency.New(laneReader, laneReader, log)

	limiterMode := ratelimit.KeyModeUserTool
	if cfg.RateLimitKeyMode == "user" {
		limiterMode = ratelimit.KeyModeUser
	}
	limiter := ratelimit.New(cfg.RateLimitEnabled, cfg.RateLimitRPM, cfg.RateLimitBurst, limiterMode)
	sweep := time.NewTicker(time.Minute)
	go func() {
		for range sweep.C {
			limiter.Sweep()
		}
	}()

	orch := orchestrator.New(
		identitySvc, router, registry, exec, quotaTracker, eventLogger, limiter, log,
		time.Duration(cfg.Tier2BudgetMs)*time.Millisecond,
		time.Duration(cfg.Tier3BudgetMs)*time.Millisecond,
	)

	metrics := observability.NewMetrics(log)
	alerts := observability.NewLogAlertSink(log)

	healthPoller := procedures.NewHealthPoller(adapter, log, 15*time.Second)
	healthPoller.OnTransition(func(healthy bool, err error) {
		metrics.TrackWarehouseHealth(healthy)
		if healthy {
			log.Info().Msg("warehouse session recovered")
			_ = alerts.Resolve("warehouse_unreachable")
			return
		}
		log.Error().Err(err).Msg("warehouse session degraded")
		_ = alerts.Alert(observability.SeverityCritical, "warehouse_unreachable", "warehouse health check failing", map[string]any{"error": err.Error()})
	})
	healthPoller.Start()

	mux := orchestrator.NewMux(log, orch, healthPoller, smartrouter.TemplateCount())

	metaHandler := handler.NewMetaHandler(registry, identitySvc, log)
	validateHandler := handler.NewValidateHandler(registry, exec, log)
	queryHandler := handler.NewQueryHandler(identitySvc, registry, exec, quotaTracker, log)
	activityHandler := handler.NewActivityHandler(identitySvc, consistencyReader, log)
	activationHandler := handler.NewActivationHandler(identitySvc, log)
	devHandler := handler.NewDevHandler(identitySvc, deployGateway, log)
	scheduleHandler := handler.NewScheduleHandler(identitySvc, eventLogger, log)
	handler.Mount(mux, metaHandler, validateHandler, queryHandler, activityHandler, activationHandler, devHandler, scheduleHandler)

	mux.Get("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	healthPoller.Stop()
	eventLogger.Stop()
	sweep.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := adapter.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("warehouse session close failed")
	}
	if err := rc.Close(); err != nil {
		log.Error().Err(err).Msg("redis close failed")
	}

	log.Info().Msg("gateway stopped gracefully")
}

// seedSecret stores an env-sourced value in secrets, skipping blanks so
// mustSecret/getSecret's absence checks stay meaningful for credentials
// this deployment genuinely doesn't set (e.g. a password when key-pair
// auth is configured instead).
func seedSecret(ctx context.Context, secrets *credstore.MemoryStore, log zerolog.Logger, service, account, value string) {
	if value == "" {
		return
	}
	if err := secrets.Set(ctx, service, account, value); err != nil {
		log.Fatal().Err(err).Str("service", service).Str("account", account).Msg("failed to seed credential store")
	}
}

// mustSecret reads a required credential back out of the store, failing
// startup loudly rather than falling through to an empty warehouse/Redis
// connection string.
func mustSecret(ctx context.Context, secrets *credstore.MemoryStore, log zerolog.Logger, service, account string) string {
	v, err := secrets.Get(ctx, service, account)
	if err != nil {
		log.Fatal().Err(err).Str("service", service).Str("account", account).Msg("missing required credential")
	}
	return v
}

// getSecret reads an optional credential, returning "" if it was never
// seeded (e.g. PrivateKeyPass when private_key_path itself is unset).
func getSecret(ctx context.Context, secrets *credstore.MemoryStore, service, account string) string {
	v, _ := secrets.Get(ctx, service, account)
	return v
}
