package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnknownOlympus/magma/internal/narrative"
	"github.com/UnknownOlympus/magma/internal/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var skipModel bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the geology and narrative HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Canceled on SIGINT/SIGTERM for graceful shutdown.
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reg, appMetrics := newRegistry()

		geologyService, store, err := newGeologyService(ctx, appMetrics)
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
		}

		var describer server.Describer
		if !skipModel {
			session, loadErr := loadModel(ctx)
			if loadErr != nil {
				return loadErr
			}
			defer session.Close()
			describer = narrative.NewGenerator(session, cfg.Model.MaxLength, logger, appMetrics)
		}

		api := server.New(logger, geologyService, describer, reg)
		if pinger, ok := store.(server.Pinger); ok {
			api.WithHealthCheck(pinger)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           api.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.InfoContext(ctx, "Starting HTTP server", "port", cfg.Port, "narratives", describer != nil)
			if serveErr := srv.ListenAndServe(); !errors.Is(serveErr, http.ErrServerClosed) {
				errCh <- serveErr
			}
			close(errCh)
		}()

		select {
		case err = <-errCh:
			return fmt.Errorf("http server failed: %w", err)
		case <-ctx.Done():
		}

		logger.InfoContext(ctx, "Shutdown signal received. Stopping application...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err = srv.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "Graceful shutdown failed", "error", err)
		}

		logger.InfoContext(shutdownCtx, "Application stopped gracefully.")

		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipModel, "no-model", false, "Serve geology data only, without loading the narrative model")
	rootCmd.AddCommand(serveCmd)
}
