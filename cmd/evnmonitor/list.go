package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	listAccount string
	listYear    int
	listDays    int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored data",
	Long:  `Displays stored daily readings, monthly bills and outstanding balances.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listAccount, "account", "", "Only list this customer id")
	listCmd.Flags().IntVar(&listYear, "year", time.Now().Year(), "Year to list monthly bills for")
	listCmd.Flags().IntVar(&listDays, "days", 30, "Number of recent days of readings to list")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	accounts, err := selectAccounts(cfg, listAccount)
	if err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	for _, acct := range accounts {
		fmt.Printf("\n%s (%s)\n", acct.CustomerID, acct.Region)
		fmt.Println("----------------------------------------")

		to := time.Now()
		readings, err := db.ListDailyReadings(acct.CustomerID, to.AddDate(0, 0, -listDays), to)
		if err != nil {
			return fmt.Errorf("listing readings for %s: %w", acct.CustomerID, err)
		}

		if len(readings) == 0 {
			fmt.Println("No daily readings stored")
		} else {
			fmt.Printf("%-12s  %12s  %10s\n", "Date", "Meter", "kWh")
			var total float64
			for _, r := range readings {
				meter, kwh := "-", "-"
				if r.MeterReading != nil {
					meter = humanize.CommafWithDigits(*r.MeterReading, 1)
				}
				if r.ConsumptionKWh != nil {
					kwh = fmt.Sprintf("%.2f", *r.ConsumptionKWh)
					total += *r.ConsumptionKWh
				}
				fmt.Printf("%-12s  %12s  %10s\n", r.Date, meter, kwh)
			}
			fmt.Printf("Total: %.2f kWh (%d readings)\n", total, len(readings))
		}

		bills, err := db.ListMonthlyBills(acct.CustomerID, listYear)
		if err != nil {
			return fmt.Errorf("listing bills for %s: %w", acct.CustomerID, err)
		}
		if len(bills) > 0 {
			fmt.Printf("\n%-8s  %12s  %16s\n", "Month", "kWh", "Amount (VND)")
			for _, b := range bills {
				kwh, amount := "-", "-"
				if b.ConsumptionKWh != nil {
					kwh = fmt.Sprintf("%.2f", *b.ConsumptionKWh)
				}
				if b.AmountDue != nil {
					amount = humanize.CommafWithDigits(*b.AmountDue, 0)
				}
				fmt.Printf("%02d/%d   %12s  %16s\n", b.Month, b.Year, kwh, amount)
			}
		}

		balance, err := db.GetOutstandingBalance(acct.CustomerID)
		if err != nil {
			return fmt.Errorf("getting balance for %s: %w", acct.CustomerID, err)
		}
		if balance != nil {
			fmt.Printf("\nOutstanding balance: %s VND (as of %s)\n",
				humanize.CommafWithDigits(balance.Amount, 0), balance.LastUpdated)
		}
	}

	return nil
}
