package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/retouchlab/retouchops/internal/api"
	"github.com/retouchlab/retouchops/internal/config"
	"github.com/retouchlab/retouchops/internal/logging"
	"github.com/retouchlab/retouchops/internal/mailer"
	"github.com/retouchlab/retouchops/internal/objstore"
	"github.com/retouchlab/retouchops/internal/service"
	"github.com/retouchlab/retouchops/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.Migrate(ctx, cfg.Database.DSN); err != nil {
		return err
	}

	pool, err := store.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	requests := store.New(pool)

	objects, err := objstore.New(cfg.Storage)
	if err != nil {
		return err
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return err
	}

	mail, err := mailer.New(cfg.Mail)
	if err != nil {
		return err
	}

	lifecycle := service.NewLifecycle(requests, objects, mail, log)
	handler := api.NewHandler(lifecycle, objects, pool, log, cfg.Server.MaxUploadBytes)

	router, err := api.NewRouter(handler, cfg.RateLimit)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("server stopped")
	return nil
}
