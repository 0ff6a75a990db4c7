package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hospivibe/clinic/internal/auth"
	"github.com/hospivibe/clinic/internal/config"
	"github.com/hospivibe/clinic/internal/db"
	httpx "github.com/hospivibe/clinic/internal/http"
	"github.com/hospivibe/clinic/internal/http/handlers"
	"github.com/hospivibe/clinic/internal/idempotency"
	"github.com/hospivibe/clinic/internal/notifications"
	"github.com/hospivibe/clinic/internal/observability"
	"github.com/hospivibe/clinic/internal/redisclient"
	"github.com/hospivibe/clinic/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
			Endpoint:    cfg.OTLPEndpoint,
			Env:         cfg.Env,
			SampleRatio: cfg.OTelSampleRatio,
		})
		if err != nil {
			log.Error("tracer init failed", "err", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := config.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracer(ctx)
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	// persistence
	st, err := store.Open(ctx, cfg, prom, log)
	if err != nil {
		log.Error("store open failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			log.Error("store close failed", "err", err)
		}
	}()

	ready := map[string]handlers.Check{}

	var idem idempotency.Store = idempotency.NewMemoryStore(cfg.IdempotencyTTL)
	if cfg.RedisAddr != "" {
		rdb := redisclient.New(redisclient.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()

		pingCtx, cancel := config.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Error("redis ping failed", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}

		idem = idempotency.NewRedisStore(rdb.Raw())
		ready["redis"] = rdb.Ping
	}

	created, err := db.EnsureAdminUser(ctx, st.Users, cfg)
	if err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}
	if created {
		log.Info("admin user created", "email", cfg.AdminEmail)
	}

	router := httpx.NewRouter(log, cfg, httpx.Deps{
		Store:       st,
		JWT:         auth.NewManager(cfg.JWTSecret, cfg.AccessTTL()),
		Idempotency: idem,
		Prom:        prom,
		Gatherer:    reg,
		Ready:       ready,
		Notifier: notifications.NewProtectedNotifier(
			notifications.NewLogNotifier(log),
			notifications.ProtectedNotifierConfig{Timeout: 3 * time.Second},
		),
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", st.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error("server failed", "err", err)
	}
	log.Info("server shutting down")
	router.Drain()

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
