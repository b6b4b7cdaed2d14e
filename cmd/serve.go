package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/reconmetrics/internal/eval"
	"github.com/cwbudde/reconmetrics/internal/server"
	"github.com/cwbudde/reconmetrics/internal/store"
)

var (
	serveAddr   string
	serveWindow int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server",
	Long: `Starts the HTTP API and web UI. Uploaded evaluations are stored under
--data-dir and listed on the index page.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().IntVar(&serveWindow, "window", eval.DefaultConfig().WindowSize, "Default SSIM window size")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	cfg := eval.DefaultConfig()
	cfg.WindowSize = serveWindow
	if err := cfg.Validate(); err != nil {
		return err
	}

	srv := server.NewServer(serveAddr, st, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
