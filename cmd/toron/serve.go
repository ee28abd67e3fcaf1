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

	"github.com/spf13/cobra"

	"github.com/alienxp03/toron/web/handlers"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			appConfig.Server.Port = servePort
		}

		store, err := getStorage()
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()

		orch, err := newOrchestrator(store)
		if err != nil {
			return err
		}

		h := handlers.New(orch, handlers.Options{
			RequestsPerSecond: appConfig.RateLimit.RequestsPerSecond,
			Burst:             appConfig.RateLimit.Burst,
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return startServer(ctx, h.Routes(), appConfig.Server.Port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8182, "Server port")
}

func startServer(ctx context.Context, handler http.Handler, port int) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting toron server",
			"url", fmt.Sprintf("http://localhost:%d", port),
			"provider", appConfig.Sandbox.Provider,
			"callback_base_url", appConfig.Server.BaseURL,
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Open SSE streams never finish on their own.
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Graceful shutdown timed out", "error", err)
		return server.Close()
	}
	return nil
}
