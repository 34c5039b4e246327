package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"evnmonitor/internal/config"
	"evnmonitor/internal/database"
	"evnmonitor/internal/poller"
	"evnmonitor/pkg/models"
)

func ptr(f float64) *float64 { return &f }

func newTestServer(t *testing.T) (*httptest.Server, *database.DB) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	webui := filepath.Join(dir, "webui")
	require.NoError(t, os.MkdirAll(webui, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(webui, "index.html"), []byte("<html>dash</html>"), 0644))

	cfg := &config.Config{
		Accounts: []config.Account{{
			Region:     "HN",
			Username:   "user@example.com",
			Password:   "secret",
			CustomerID: "PA0012345678",
		}},
		WebUIDir: webui,
	}

	log := slog.New(slog.DiscardHandler)
	srv := httptest.NewServer(New(cfg, db, poller.New(cfg, db, log), log).Handler())
	t.Cleanup(srv.Close)
	return srv, db
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.NewDecoder(res.Body).Decode(v))
}

func TestPing(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	getJSON(t, srv.URL+"/api/evn/ping", &body)
	require.Equal(t, "ok", body["status"])
}

func TestAccountsExcludeCredentials(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := http.Get(srv.URL + "/api/evn/accounts")
	require.NoError(t, err)
	defer res.Body.Close()

	var raw []map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&raw))
	require.Len(t, raw, 1)
	require.Equal(t, "PA0012345678", raw[0]["customer_id"])
	require.NotContains(t, raw[0], "password")
	require.NotContains(t, raw[0], "username")
}

func TestDailyAppliesCostEstimate(t *testing.T) {
	srv, db := newTestServer(t)

	date := time.Now().AddDate(0, 0, -1).Format("02-01-2006")
	require.NoError(t, db.UpsertDailyReading(models.DailyReading{
		Account:        "PA0012345678",
		Date:           date,
		MeterReading:   ptr(1110),
		ConsumptionKWh: ptr(8.5),
	}))

	var rows []map[string]any
	getJSON(t, srv.URL+"/api/evn/daily/PA0012345678", &rows)
	require.Len(t, rows, 1)
	require.Equal(t, date, rows[0]["Ngày"])
	require.Equal(t, 1110.0, rows[0]["CHISO"])
	require.Equal(t, 8.5, rows[0]["Điện tiêu thụ (kWh)"])
	require.Equal(t, 8.5*vndPerKWh, rows[0]["Tiền điện (VND)"])
}

func TestDailyDefaultsToLastYear(t *testing.T) {
	srv, db := newTestServer(t)

	inRange := time.Now().AddDate(0, 0, -300).Format("02-01-2006")
	tooOld := time.Now().AddDate(0, 0, -400).Format("02-01-2006")
	for _, date := range []string{inRange, tooOld} {
		require.NoError(t, db.UpsertDailyReading(models.DailyReading{
			Account:        "PA0012345678",
			Date:           date,
			ConsumptionKWh: ptr(8),
		}))
	}

	var rows []map[string]any
	getJSON(t, srv.URL+"/api/evn/daily/PA0012345678", &rows)
	require.Len(t, rows, 1)
	require.Equal(t, inRange, rows[0]["Ngày"])
}

func TestMonthlyUsesVietnameseKeys(t *testing.T) {
	srv, db := newTestServer(t)

	year := time.Now().Year()
	require.NoError(t, db.UpsertMonthlyBill(models.MonthlyBill{
		Account:        "PA0012345678",
		Month:          1,
		Year:           year,
		AmountDue:      ptr(480000),
		ConsumptionKWh: ptr(240),
	}))

	var rows []map[string]any
	getJSON(t, srv.URL+"/api/evn/monthly/PA0012345678", &rows)
	require.Len(t, rows, 1)
	require.Equal(t, 1.0, rows[0]["Tháng"])
	require.Equal(t, 240.0, rows[0]["Điện tiêu thụ (KWh)"])
	require.Equal(t, 480000.0, rows[0]["Tiền Điện"])
}

func TestMonthlyRejectsBadYear(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := http.Get(srv.URL + "/api/evn/monthly/PA0012345678?year=abc")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestStaticServesIndex(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestStaticRejectsTraversal(t *testing.T) {
	// ServeMux would clean most of these before routing, but the handler
	// must hold on its own for anything that slips through.
	dir := t.TempDir()
	db, err := database.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{WebUIDir: filepath.Join(dir, "webui")}
	log := slog.New(slog.DiscardHandler)
	s := New(cfg, db, poller.New(cfg, db, log), log)

	for _, path := range []string{"/../secret.txt", "/a/../../secret.txt", "/..%2fsecret.txt"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.URL.Path = path

		rec := httptest.NewRecorder()
		s.handleStatic(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code, "path %s", path)
	}
}

func TestStaticUnknownFileNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := http.Get(srv.URL + "/missing.css")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}
