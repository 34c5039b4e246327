package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"evnmonitor/internal/poller"
)

var fetchAccount string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run one fetch cycle",
	Long: `Fetches daily readings, monthly summaries, bills and scheduled outages
for the configured accounts once, then exits. Data is stored in the
local SQLite database.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchAccount, "account", "", "Only fetch this customer id")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Fetch started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	accounts, err := selectAccounts(cfg, fetchAccount)
	if err != nil {
		return err
	}
	cfg.Accounts = accounts

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	p := poller.New(cfg, db, newLogger())
	p.RunOnce(context.Background())

	failures := 0
	for id, st := range p.Status() {
		if st.LastError != "" {
			fmt.Printf("✗ %s: %s\n", id, st.LastError)
			failures++
			continue
		}
		fmt.Printf("✓ %s fetched\n", id)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d accounts failed", failures, len(accounts))
	}
	return nil
}
