package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Empty(t, cfg.Accounts)
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := &Config{
		Accounts: []Account{{
			Region:     "SPC",
			Username:   "user@example.com",
			Password:   "secret",
			CustomerID: "PB0212345678",
		}},
		Listen:    ":9000",
		StartDate: "01/06/2025",
	}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Accounts, loaded.Accounts)
	require.Equal(t, ":9000", loaded.GetListen())
	require.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.Local), loaded.GetStartDate())
}

func TestAccountFromEnv(t *testing.T) {
	t.Setenv("EVN_REGION", "HCMC")
	t.Setenv("EVN_USERNAME", "user@example.com")
	t.Setenv("EVN_PASSWORD", "secret")
	t.Setenv("EVN_CUSTOMER_ID", "PE0312345678")
	t.Setenv("EVN_BILLING_START_DAY", "5")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Len(t, cfg.Accounts, 1)
	require.Equal(t, "HCMC", cfg.Accounts[0].Region)
	require.Equal(t, 5, cfg.Accounts[0].GetBillingCycleStartDay())
}

func TestDefaults(t *testing.T) {
	var cfg Config
	require.Equal(t, "evndata.db", cfg.GetDatabase())
	require.Equal(t, ":8090", cfg.GetListen())
	require.Equal(t, "webui", cfg.GetWebUIDir())
	require.Equal(t, 10*time.Minute, cfg.GetPollInterval())
	require.Equal(t, 15, cfg.GetBatchDays())
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local), cfg.GetStartDate())
	require.Equal(t, "evnmonitor", cfg.MQTT.GetTopicPrefix())
	require.Equal(t, 1, Account{}.GetBillingCycleStartDay())
}

func TestStartDateMalformedFallsBack(t *testing.T) {
	cfg := Config{StartDate: "15.06.2025"}
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local), cfg.GetStartDate())
}

func TestAccountValidate(t *testing.T) {
	valid := Account{
		Region:     "HN",
		Username:   "user@example.com",
		Password:   "secret",
		CustomerID: "PD0112345678",
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Account)
	}{
		{"missing region", func(a *Account) { a.Region = "" }},
		{"missing password", func(a *Account) { a.Password = "" }},
		{"wrong id prefix", func(a *Account) { a.CustomerID = "XD0112345678" }},
		{"short id", func(a *Account) { a.CustomerID = "PD01" }},
		{"billing day out of range", func(a *Account) { a.BillingCycleStartDay = 32 }},
	}
	for _, c := range cases {
		acct := valid
		c.mutate(&acct)
		require.Error(t, acct.Validate(), c.name)
	}
}

func TestSaveRestrictsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, Save(path, &Config{}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
