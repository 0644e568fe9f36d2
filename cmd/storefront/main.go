// Package main runs the storefront API: catalog, cart, checkout and account
// state over a hosted Supabase backend, plus the admin console routes.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/R3E-Network/storefront/internal/app"
	"github.com/R3E-Network/storefront/internal/config"
	"github.com/R3E-Network/storefront/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", config.DefaultPath, "Path to the YAML config overlay")
		envFile    = flag.String("env", ".env", "Path to a .env file")
		addr       = flag.String("addr", "", "Listen address, overrides http.addr")
	)
	flag.Parse()

	cfg, err := config.LoadFromPath(*configPath, *envFile)
	if err != nil {
		logger.NewDefault("storefront").WithError(err).Fatal("load config")
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	log := logger.New(cfg.Logging).Named("storefront")

	application, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("build application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Fatal("start application")
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           application.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("storefront listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var failed bool
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			failed = true
			log.WithError(err).Error("server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}
	log.Info("storefront stopped")

	if failed {
		os.Exit(1)
	}
}
