package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"evnmonitor/internal/publisher"
	"evnmonitor/pkg/models"
)

var (
	publishAccount string
	publishAll     bool
	publishLimit   int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish stored readings to Home Assistant and MQTT",
	Long: `Reads stored daily consumption data from the database and publishes it
to Home Assistant via HTTP API and to MQTT when a broker is configured.`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishAccount, "account", "", "Only publish this customer id")
	publishCmd.Flags().BoolVar(&publishAll, "all", false, "Force republish all readings (ignore published flag)")
	publishCmd.Flags().IntVar(&publishLimit, "limit", 0, "Limit number of readings to publish (0 = no limit)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if !cfg.HomeAssistant.Enabled && !cfg.MQTT.Enabled {
		return fmt.Errorf("neither Home Assistant nor MQTT is enabled in config")
	}

	accounts, err := selectAccounts(cfg, publishAccount)
	if err != nil {
		return err
	}

	pub, err := publisher.New(cfg.MQTT, cfg.HomeAssistant)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	totalPublished := 0
	for _, acct := range accounts {
		var readings []models.DailyReading
		if publishAll {
			readings, err = db.ListDailyReadings(acct.CustomerID, time.Time{}, time.Now().AddDate(1, 0, 0))
		} else {
			readings, err = db.ListUnpublishedReadings(acct.CustomerID)
		}
		if err != nil {
			return fmt.Errorf("listing readings for %s: %w", acct.CustomerID, err)
		}

		if len(readings) == 0 {
			fmt.Printf("No readings to publish for %s\n", acct.CustomerID)
			continue
		}

		if publishLimit > 0 && len(readings) > publishLimit {
			readings = readings[:publishLimit]
			fmt.Printf("Limiting to %d readings (--limit flag)\n", publishLimit)
		}

		fmt.Printf("Publishing %d readings for %s...\n", len(readings), acct.CustomerID)
		published := 0
		for i, r := range readings {
			kwh := 0.0
			if r.ConsumptionKWh != nil {
				kwh = *r.ConsumptionKWh
			}
			fmt.Printf("[%d/%d] Publishing %s (%.2f kWh)... ", i+1, len(readings), r.Date, kwh)
			if err := pub.Publish(r); err != nil {
				fmt.Printf("FAILED: %v\n", err)
				continue
			}

			if err := db.MarkPublished(r.Account, r.Date); err != nil {
				fmt.Printf("✓ (warning: failed to mark as published: %v)\n", err)
			} else {
				fmt.Printf("✓\n")
			}
			published++
		}

		fmt.Printf("Successfully published %d/%d readings for %s\n", published, len(readings), acct.CustomerID)
		totalPublished += published
	}

	fmt.Printf("\nTotal readings published: %d\n", totalPublished)
	return nil
}
