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

	"aetheris-web/internal/config"
	"aetheris-web/internal/handler"
	"aetheris-web/internal/messaging"
	"aetheris-web/internal/observability"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.RabbitMQURL == "" {
		slog.Error("RABBITMQ_URL is required")
		os.Exit(1)
	}

	slog.Info("starting session audit consumer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connCtx, connCancel := context.WithTimeout(ctx, 60*time.Second)
	rmq, err := messaging.NewRabbitMQWithRetry(connCtx, cfg.RabbitMQURL)
	connCancel()
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rmq.Close()

	msgs, err := rmq.ConsumeAudit()
	if err != nil {
		slog.Error("failed to consume audit queue", slog.String("error", err.Error()))
		os.Exit(1)
	}

	consumer := messaging.NewAuditConsumer(slog.Default())
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Run(ctx, msgs)
	}()

	r := chi.NewRouter()
	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(map[string]handler.Pinger{"rabbitmq": rmq}))
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("audit metrics listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("session audit consumer is running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-done:
		slog.Warn("audit consumer stopped unexpectedly")
	}

	slog.Info("shutting down session audit consumer")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	<-done
}
