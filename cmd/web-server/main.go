package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aetheris-web/internal/authapi"
	"aetheris-web/internal/config"
	"aetheris-web/internal/domain"
	"aetheris-web/internal/handler"
	"aetheris-web/internal/messaging"
	"aetheris-web/internal/middleware"
	"aetheris-web/internal/observability"
	"aetheris-web/internal/repository/postgres"
	"aetheris-web/internal/repository/redis"
	"aetheris-web/internal/security"
	"aetheris-web/internal/service"
	"aetheris-web/internal/session"
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting web server",
		slog.String("environment", cfg.Environment),
		slog.String("session_strategy", cfg.SessionStrategy))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := authapi.NewClient(cfg.AuthAPIURL, cfg.AuthAPITimeout)
	ready := map[string]handler.Pinger{"auth_api": api}

	store, storePinger, closeStore, err := openSessionStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open session store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()
	if storePinger != nil {
		ready["session_store"] = storePinger
	}

	var events domain.EventPublisher = messaging.NoopPublisher{}
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()
		events = rmq
		ready["rabbitmq"] = rmq
		slog.Info("publishing session events to rabbitmq")
	}

	refresher := service.NewRefresher(api,
		service.WithBuffer(cfg.RefreshBuffer),
		service.WithDedup(cfg.RefreshDedup))
	manager := session.NewManager(store, refresher, events, session.Config{
		CookieName: cfg.SessionCookieName,
		MaxAge:     cfg.SessionMaxAge,
		Secure:     cfg.IsProduction(),
	})

	tm := security.NewTokenManager()
	table := middleware.MustRouteTable(middleware.DefaultRules())

	r := newRouter(routerDeps{
		table:    table,
		sessions: manager,
		auth:     handler.NewAuthHandler(service.NewAuthService(api), manager, tm, cfg.IsProduction()),
		pages:    handler.NewPages(cfg.StaticDir),
		csrf:     middleware.CSRF(tm),
		limiter:  middleware.NewRateLimiter(ctx, 5, 10),
		openapi:  middleware.DefaultOpenAPIValidatorConfig(cfg.Environment, cfg.OpenAPISpecPath),
		origins:  middleware.ParseOrigins(cfg.AllowedOrigins),
		ready:    ready,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("web server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	slog.Info("server stopped gracefully")
}

// openSessionStore builds the store selected by SESSION_STRATEGY. The
// returned pinger is nil for stores without a backend to check.
func openSessionStore(ctx context.Context, cfg *config.Config) (domain.SessionStore, handler.Pinger, func(), error) {
	connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connCancel()

	switch cfg.SessionStrategy {
	case config.StrategyPostgres:
		db, err := config.NewPostgresConnection(connCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := postgres.Migrate(connCtx, db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		store, err := postgres.NewSessionStore(db)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		store.StartCleanup(ctx, time.Hour)
		go config.RecordPoolStats(ctx, db, 15*time.Second)
		slog.Info("connected to postgresql")
		return store, store, func() {
			store.Close()
			db.Close()
		}, nil

	case config.StrategyRedis:
		client, err := config.NewRedisClient(connCtx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		store := redis.NewSessionStore(client)
		slog.Info("connected to redis")
		return store, store, func() { client.Close() }, nil

	default:
		sealer, err := security.NewSealer(cfg.SessionSecret, "session cookie")
		if err != nil {
			return nil, nil, nil, err
		}
		return session.NewCookieStore(sealer, cfg.SessionCookieName), nil, func() {}, nil
	}
}
