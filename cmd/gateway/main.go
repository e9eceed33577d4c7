// Package main is the entry point for the chat gateway server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/app"
	"github.com/capitalize-ai/agent-chat/internal/config"
	"github.com/capitalize-ai/agent-chat/internal/handler"
	natsclient "github.com/capitalize-ai/agent-chat/internal/nats"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
	"github.com/capitalize-ai/agent-chat/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("gateway failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting gateway", zap.String("api_url", cfg.APIBaseURL))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "agent-chat-gateway", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	core, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer core.Close()

	// NATS fan-out is optional.
	var natsHealth handler.ConnectionChecker
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return err
		}
		defer natsClient.Close()

		if err := natsclient.EnsureStream(ctx, natsClient.JetStream()); err != nil {
			return err
		}
		go natsclient.NewPublisher(natsClient.JetStream(), core.Store, log).Run(ctx)
		natsHealth = natsClient
	}

	if err := core.Gate.Refresh(ctx); err != nil {
		log.Warn("initial usage refresh failed", zap.Error(err))
	}

	router := handler.NewRouter(handler.RouterConfig{
		Health:            handler.NewHealthHandler(natsHealth),
		Threads:           handler.NewThreadHandler(core.Threads, core.Messages, core.Store, core.View, log),
		Messages:          handler.NewMessageHandler(core.Controller, core.Messages, core.Store, core.View, log),
		Usage:             handler.NewUsageHandler(core.Gate, core.View),
		Stream:            handler.NewStreamHandler(core.View, 0, log),
		JWTSecret:         cfg.JWTSecret,
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Logger:            log,
	})
	if cfg.JWTSecret == "" {
		log.Warn("GATEWAY_JWT_SECRET not set, API is unauthenticated")
	}

	// WriteTimeout stays 0 by default so SSE and long generations are not cut.
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}
