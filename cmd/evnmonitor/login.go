package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"evnmonitor/internal/evn"
)

var loginAccount string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify portal credentials",
	Long: `Logs in to each configured account's portal and fetches a small sample
of daily readings to confirm the credentials and customer id work.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginAccount, "account", "", "Only verify this customer id")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	accounts, err := selectAccounts(cfg, loginAccount)
	if err != nil {
		return err
	}

	ctx := context.Background()
	failures := 0
	for _, acct := range accounts {
		fmt.Printf("Verifying %s (%s)... ", acct.CustomerID, acct.Region)

		if err := acct.Validate(); err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failures++
			continue
		}

		adapter, err := evn.NewAdapter(evn.Credentials{
			Region:     acct.Region,
			Username:   acct.Username,
			Password:   acct.Password,
			CustomerID: acct.CustomerID,
		})
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failures++
			continue
		}

		// A real lookup proves the token works end to end, not just
		// that the gateway accepted the password.
		to := time.Now()
		readings, err := adapter.FetchDaily(ctx, to.AddDate(0, 0, -7), to)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failures++
			continue
		}

		fmt.Printf("✓ (%d readings in the last week)\n", len(readings))
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d accounts failed verification", failures, len(accounts))
	}
	return nil
}
