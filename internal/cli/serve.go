package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/batchfetch/internal/control"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run batches on an interval and serve health and metrics",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.NewApp(ctx, *cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize batchfetch", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start batchfetch", "error", err)
		os.Exit(1)
	}

	slog.Info("batchfetch started",
		"config", cfgPath,
		"port", cfg.Server.Port,
		"targets", len(app.Handles()),
		"interval", cfg.Batch.Interval.String(),
	)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}
