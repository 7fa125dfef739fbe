package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	webAdapter "delivery-reconciler/internal/adapters/web"
	"delivery-reconciler/internal/app"
	"delivery-reconciler/internal/config"
)

func main() {
	cfg := config.MustLoad()
	logger := config.NewLogger(cfg.Log)

	ctx := context.Background()
	svc, cleanup, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("startup failed")
	}
	defer cleanup()

	handler := webAdapter.NewHandler(svc, logger.WithField("module", "web"), webAdapter.Options{
		AllowedOrigins: cfg.Server.Origins(),
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		config.LogError(logger, "server", "main", "graceful shutdown", nil, err)
	}
	logger.Info("server stopped")
}
