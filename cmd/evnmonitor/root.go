package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"evnmonitor/internal/config"
	"evnmonitor/internal/database"
)

var (
	cfgFile string
	dbPath  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "evnmonitor",
	Short: "Collect electricity usage data from the EVN regional portals",
	Long: `evnmonitor is a tool to collect electricity consumption, billing and
outage data from the five EVN regional customer-care portals (HN, NPC,
CPC, SPC, HCMC). Data is normalized to one schema, stored in a local
SQLite database, and served to a browser dashboard.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default from config)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	return config.Load(getConfigPath())
}

// newLogger builds the logger daemon commands use
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openDB opens the database connection
func openDB(cfg *config.Config) (*database.DB, error) {
	path := dbPath
	if path == "" {
		path = cfg.GetDatabase()
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}

// selectAccounts returns the configured accounts, narrowed to one
// customer id when the flag is set.
func selectAccounts(cfg *config.Config, customerID string) ([]config.Account, error) {
	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("no accounts configured; add accounts to %s or set EVN_* environment variables", getConfigPath())
	}
	if customerID == "" {
		return cfg.Accounts, nil
	}
	for _, acct := range cfg.Accounts {
		if acct.CustomerID == customerID {
			return []config.Account{acct}, nil
		}
	}
	return nil, fmt.Errorf("no configured account with customer id %s", customerID)
}
