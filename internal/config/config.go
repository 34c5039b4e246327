package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Accounts      []Account  `yaml:"accounts"`
	Database      string     `yaml:"database,omitempty"`      // SQLite file path (fallback: evndata.db)
	Listen        string     `yaml:"listen,omitempty"`        // Dashboard listen address (fallback: :8090)
	WebUIDir      string     `yaml:"webui_dir,omitempty"`     // Directory with dashboard assets (fallback: webui)
	PollInterval  int        `yaml:"poll_interval,omitempty"` // Seconds between fetch cycles (fallback: 600)
	StartDate     string     `yaml:"start_date,omitempty"`    // First day of history to backfill, DD/MM/YYYY
	BatchDays     int        `yaml:"batch_days,omitempty"`    // Daily-reading window size per request (fallback: 15)
	HomeAssistant HAConfig   `yaml:"home_assistant,omitempty"`
	MQTT          MQTTConfig `yaml:"mqtt,omitempty"`
}

// Account holds credentials and settings for one utility subscription
type Account struct {
	Region               string `yaml:"region"` // HN, NPC, CPC, SPC or HCMC
	Username             string `yaml:"username"`
	Password             string `yaml:"password"`
	CustomerID           string `yaml:"customer_id"`
	BillingCycleStartDay int    `yaml:"billing_cycle_start_day,omitempty"` // 1-31, fallback: 1
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`       // e.g., "http://yourdomain.local:8123"
	Token    string `yaml:"token"`     // Long-lived access token
	EntityID string `yaml:"entity_id"` // e.g., "sensor.evn_daily_consumption"
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"` // fallback: evnmonitor
}

// Load reads the config file and applies environment overrides
func Load(configPath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// A single account can be configured entirely through the environment,
	// which is how container deployments pass credentials.
	if env, ok := accountFromEnv(); ok {
		cfg.Accounts = append(cfg.Accounts, env)
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

func accountFromEnv() (Account, bool) {
	acct := Account{
		Region:     os.Getenv("EVN_REGION"),
		Username:   os.Getenv("EVN_USERNAME"),
		Password:   os.Getenv("EVN_PASSWORD"),
		CustomerID: os.Getenv("EVN_CUSTOMER_ID"),
	}
	if day := os.Getenv("EVN_BILLING_START_DAY"); day != "" {
		if n, err := strconv.Atoi(day); err == nil {
			acct.BillingCycleStartDay = n
		}
	}
	if acct.Region == "" || acct.Username == "" || acct.CustomerID == "" {
		return Account{}, false
	}
	return acct, true
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// Validate checks that an account is usable before any network calls
func (a Account) Validate() error {
	if a.Region == "" {
		return fmt.Errorf("account %s: region is required", a.CustomerID)
	}
	if a.Username == "" || a.Password == "" {
		return fmt.Errorf("account %s: username and password are required", a.CustomerID)
	}
	if len(a.CustomerID) < 11 || (a.CustomerID[0] != 'P' && a.CustomerID[0] != 'S') {
		return fmt.Errorf("customer id %q must start with P or S and be at least 11 characters", a.CustomerID)
	}
	if a.BillingCycleStartDay < 0 || a.BillingCycleStartDay > 31 {
		return fmt.Errorf("account %s: billing_cycle_start_day must be between 1 and 31", a.CustomerID)
	}
	return nil
}

// GetBillingCycleStartDay returns the billing cycle start day with a default of 1
func (a Account) GetBillingCycleStartDay() int {
	if a.BillingCycleStartDay <= 0 {
		return 1
	}
	return a.BillingCycleStartDay
}

// GetDatabase returns the database path with a default of evndata.db
func (c *Config) GetDatabase() string {
	if c.Database == "" {
		return "evndata.db"
	}
	return c.Database
}

// GetListen returns the dashboard listen address with a default of :8090
func (c *Config) GetListen() string {
	if c.Listen == "" {
		return ":8090"
	}
	return c.Listen
}

// GetWebUIDir returns the dashboard asset directory with a default of webui
func (c *Config) GetWebUIDir() string {
	if c.WebUIDir == "" {
		return "webui"
	}
	return c.WebUIDir
}

// GetPollInterval returns the poll interval with a default of 10 minutes
func (c *Config) GetPollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.PollInterval) * time.Second
}

// GetBatchDays returns the daily-fetch window size with a default of 15
func (c *Config) GetBatchDays() int {
	if c.BatchDays <= 0 {
		return 15
	}
	return c.BatchDays
}

// GetStartDate returns the first day of history to backfill.
// Malformed values fall back to the fixed default of 01/01/2025.
func (c *Config) GetStartDate() time.Time {
	if c.StartDate != "" {
		if t, err := time.Parse("02/01/2006", c.StartDate); err == nil {
			return t
		}
	}
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local)
}

// GetTopicPrefix returns the MQTT topic prefix with a default of evnmonitor
func (m MQTTConfig) GetTopicPrefix() string {
	if m.TopicPrefix == "" {
		return "evnmonitor"
	}
	return m.TopicPrefix
}
