package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/ragchat/internal/config"
	"github.com/kalambet/ragchat/internal/mockrag"
	"github.com/kalambet/ragchat/internal/storage"
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run a local mock of the chat service (foreground)",
	Long: `Run a local mock of the chat service. It speaks the same API as the
real service with canned generation, so the client can be used without a
GPU box. Collected conversations are persisted under the data directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		return runMock(addr, dataDir)
	},
}

func init() {
	mockCmd.Flags().String("addr", "127.0.0.1:8000", "listen address")
	mockCmd.Flags().String("data-dir", "", "data directory (default: storage.data_dir)")
}

func runMock(addr, dataDir string) error {
	fmt.Fprintf(os.Stderr, "ragchat version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dataDir == "" {
		dataDir = cfg.Storage.DataDir
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	store, err := storage.Open(dataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mock := mockrag.NewServer(store, mockrag.WithBatchSize(cfg.Mock.BatchSize))
	srv := &http.Server{
		Addr:    addr,
		Handler: mock.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "mock service listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
