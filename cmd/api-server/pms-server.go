package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"pms/db"
	"pms/db/migrations"
	"pms/internal/approval"
	"pms/internal/auth"
	"pms/internal/cache"
	"pms/internal/config"
	"pms/internal/handlers"
	"pms/internal/logger"
	"pms/internal/metrics"
	"pms/internal/programs"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	ctx := context.Background()

	pg := cfg.Database.Postgres
	conn, err := db.Connect(ctx, cfg.Database.DSN(), pg.MaxConnections, pg.MaxIdle)
	if err != nil {
		zapLog.Fatal("postgres connect failed", zap.Error(err))
	}
	defer conn.Close()

	if err := migrations.Run(conn.DB); err != nil {
		zapLog.Fatal("migrations failed", zap.Error(err))
	}
	if v, err := migrations.Version(conn.DB); err == nil {
		zapLog.Info("schema ready", zap.Int64("version", v))
	}

	rdb := cache.NewRedis(cfg.Redis)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// stats fall back to direct aggregation while redis is down
		zapLog.Warn("redis unavailable", zap.Error(err))
	}

	store := db.NewStorage(conn)
	engine := approval.NewEngine(approval.NewSQLRepository(store), log)
	programSvc := programs.NewService(programs.NewSQLRepository(store), log)
	stats := cache.NewStatsCache(rdb, cfg.Redis.StatsTTL, log)
	h := handlers.NewHandler(store, engine, programSvc, stats, log)

	authn := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Mount("/api", h.Routes(authn.Middleware(h.WriteError)))
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zapLog.Info("starting server", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("graceful shutdown failed", zap.Error(err))
	}
	zapLog.Info("server stopped")
}
