package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webhook-recorder/internal/audit"
	"webhook-recorder/internal/auth"
	"webhook-recorder/internal/config"
	"webhook-recorder/internal/forward"
	"webhook-recorder/internal/ingest"
	"webhook-recorder/internal/store"
	"webhook-recorder/pkg/logger"
	"webhook-recorder/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is normal outside local runs.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("app is starting", "env", cfg.App.Env, "store", cfg.Store.Driver)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.Redis.Addr})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	st, closeStore, err := openStore(rootCtx, cfg, rdb, log)
	if err != nil {
		log.Error("store init failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	// Fail fast when the backend is unreachable.
	probeCtx, cancelProbe := context.WithTimeout(rootCtx, cfg.Store.Timeout)
	err = store.WithSession(probeCtx, st, func(store.Session) error { return nil })
	cancelProbe()
	if err != nil {
		log.Error("store connectivity probe failed", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	log.Info("store connected", "driver", cfg.Store.Driver)

	var authManager *auth.Manager
	if cfg.AuthEnabled() {
		authManager, err = auth.NewManager(cfg.Auth)
		if err != nil {
			log.Error("auth init failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("operator auth disabled; read and forward routes are open")
	}

	var limiter forward.Limiter
	if cfg.Forward.MaxInFlight > 0 {
		limiter, err = forward.NewRedisLimiter(rdb, cfg.Forward.MaxInFlight, 2*cfg.Forward.Timeout, log)
		if err != nil {
			log.Error("forward limiter init failed", "err", err)
			os.Exit(1)
		}
	}

	recorder := ingest.NewRecorder(st, ingest.Options{
		Workers:   cfg.Ingest.Workers,
		QueueSize: cfg.Ingest.QueueSize,
		Timeout:   cfg.Store.Timeout,
	}, log)
	recorder.Start()

	engine := forward.NewEngine(st, forward.Options{
		Client:       forward.NewClient(cfg.Forward.Timeout),
		Limiter:      limiter,
		StoreTimeout: cfg.Store.Timeout,
	}, log)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/healthz", "/metrics"))
	if !cfg.App.TrustProxy {
		_ = r.SetTrustedProxies(nil)
	}

	registerRoutes(r, routeDeps{
		store:      st,
		recorder:   recorder,
		engine:     engine,
		audit:      audit.NewService(audit.NewLogRepo(log)),
		auth:       authManager,
		trustProxy: cfg.App.TrustProxy,
		timeout:    cfg.Store.Timeout,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Forward relays wait on the upstream.
		WriteTimeout: cfg.Forward.Timeout + cfg.Store.Timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// Server is drained; persist whatever ingest still has queued.
	recorder.Close()
	log.Info("shutdown complete")
}
