// Command server runs the faregate engine: an HTTP admission guard that
// applies access control and rate limit rules in front of a booking API,
// plus the admin surface for managing those rules.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"faregate/internal/platform/config"
	"faregate/internal/platform/logger"
	platformmw "faregate/internal/platform/middleware"
	"faregate/internal/platform/redis"
	"faregate/internal/ratelimit/admin"
	"faregate/internal/ratelimit/handler"
	"faregate/internal/ratelimit/metrics"
	ratelimitmw "faregate/internal/ratelimit/middleware"
	"faregate/internal/ratelimit/service/accesscontrol"
	"faregate/internal/ratelimit/service/limiter"
	"faregate/internal/ratelimit/store/counter"
	"faregate/internal/ratelimit/store/rules"
	"faregate/internal/ratelimit/store/violations"
	"faregate/internal/ratelimit/usage"
	"faregate/pkg/platform/audit"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	poolStatsEvery  = 15 * time.Second
)

func main() {
	log := logger.New()
	cfg := config.FromEnv()

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}

	// Counter store and rule cache share the Redis client; without Redis the
	// engine runs single-process on in-memory state.
	var counterStore counter.Store
	var ruleCache rules.Cache
	if redisClient != nil {
		counterStore = counter.NewRedisStore(redisClient.Client)
		ruleCache = rules.NewRedisCache(redisClient.Client)
		log.Info("counter store: redis")
	} else {
		counterStore = counter.NewInMemoryStore()
		log.Info("counter store: in-memory (no FAREGATE_REDIS_URL set)")
	}

	auditStore := audit.NewInMemoryStore(0)
	auditPublisher := audit.NewPublisher(auditStore,
		audit.WithAsyncBuffer(cfg.AuditBufferSize),
		audit.WithPublisherLogger(log),
	)
	defer auditPublisher.Close()

	ruleStore := rules.New(ruleCache, rules.WithLogger(log))
	violationStore := violations.NewInMemoryStore(cfg.ViolationBufferSize)
	usageRecorder := usage.NewRecorder()
	engineMetrics := metrics.New()

	limiterSvc, err := limiter.New(ruleStore, counterStore, violationStore,
		limiter.WithLogger(log),
		limiter.WithAuditPublisher(auditPublisher),
		limiter.WithMetrics(engineMetrics),
		limiter.WithCounterTimeout(cfg.CounterTimeout),
	)
	if err != nil {
		log.Error("limiter init failed", "error", err)
		os.Exit(1)
	}

	accessSvc, err := accesscontrol.New(ruleStore,
		accesscontrol.WithLogger(log),
		accesscontrol.WithAuditPublisher(auditPublisher),
		accesscontrol.WithMetrics(engineMetrics),
	)
	if err != nil {
		log.Error("access control init failed", "error", err)
		os.Exit(1)
	}

	adminSvc, err := admin.New(ruleStore,
		admin.WithLogger(log),
		admin.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		log.Error("admin service init failed", "error", err)
		os.Exit(1)
	}

	metadata := platformmw.NewMetadata(platformmw.MetadataConfig{})
	guard := ratelimitmw.NewGuard(limiterSvc, accessSvc, usageRecorder)
	adminHandler := handler.New(adminSvc, limiterSvc, usageRecorder, log)

	r := chi.NewRouter()
	r.Use(platformmw.Recovery(log))
	r.Use(platformmw.RequestID)
	r.Use(platformmw.Logger(log))
	r.Use(platformmw.Timeout(requestTimeout))
	r.Use(metadata.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(platformmw.AdminUser)
		adminHandler.RegisterAdmin(r)
	})

	// Everything else goes through the guard to the protected upstream. The
	// placeholder handler stands in for the host's reverse proxy.
	r.Group(func(r chi.Router) {
		r.Use(guard.Handler)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	if redisClient != nil {
		go func() {
			ticker := time.NewTicker(poolStatsEvery)
			defer ticker.Stop()
			for range ticker.C {
				redisClient.RecordPoolStats()
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
