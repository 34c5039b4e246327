package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"evnmonitor/internal/poller"
	"evnmonitor/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the poller and dashboard server",
	Long: `Starts the background poller, which fetches every configured account
on the poll interval, and serves the browser dashboard.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("no accounts configured; add accounts to %s or set EVN_* environment variables", getConfigPath())
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	log := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := poller.New(cfg, db, log)
	go func() {
		if err := p.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("poller exited", "error", err)
		}
	}()

	srv := server.New(cfg, db, p, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	case err := <-errCh:
		return fmt.Errorf("dashboard server: %w", err)
	}
}
