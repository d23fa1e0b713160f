package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/homehub/core/internal/app"
	"github.com/homehub/core/internal/config"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the homehub server",
	Long:  `Start the homehub telemetry and automation core`,
	Run:   serveRun,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8011", "HTTP listen address")
}

func serveRun(cmd *cobra.Command, args []string) {
	cfg := config.Load()

	a, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to build app", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		slog.Error("failed to start app", "error", err)
		os.Exit(1)
	}
	defer a.Stop()

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: a.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("homehubd listening", "addr", listenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
