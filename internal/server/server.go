package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"

	"evnmonitor/internal/config"
	"evnmonitor/internal/database"
	"evnmonitor/internal/poller"
)

// vndPerKWh is the flat tariff the dashboard uses to estimate daily
// cost. The real tariff is tiered; this is a rough indicator only.
const vndPerKWh = 2000

// Server exposes the stored data to the browser dashboard.
type Server struct {
	cfg    *config.Config
	db     *database.DB
	poller *poller.Poller
	log    *slog.Logger
}

// New creates the dashboard server.
func New(cfg *config.Config, db *database.DB, p *poller.Poller, log *slog.Logger) *Server {
	return &Server{cfg: cfg, db: db, poller: p, log: log}
}

// Handler builds the dashboard routes. All responses are gzipped when
// the client accepts it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/evn/ping", s.handlePing)
	mux.HandleFunc("GET /api/evn/accounts", s.handleAccounts)
	mux.HandleFunc("GET /api/evn/monthly/{account}", s.handleMonthly)
	mux.HandleFunc("GET /api/evn/daily/{account}", s.handleDaily)
	mux.HandleFunc("GET /api/evn/outages/{account}", s.handleOutages)
	mux.HandleFunc("GET /", s.handleStatic)
	return gziphandler.GzipHandler(mux)
}

// ListenAndServe runs the dashboard until the listener fails.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.cfg.GetListen(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("dashboard listening", "addr", s.cfg.GetListen())
	return srv.ListenAndServe()
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding response", "error", err)
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// handleAccounts lists the configured accounts and their fetch status,
// without credentials.
func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	status := s.poller.Status()

	type accountInfo struct {
		CustomerID string               `json:"customer_id"`
		Region     string               `json:"region"`
		Status     poller.AccountStatus `json:"status"`
	}

	accounts := make([]accountInfo, 0, len(s.cfg.Accounts))
	for _, acct := range s.cfg.Accounts {
		accounts = append(accounts, accountInfo{
			CustomerID: acct.CustomerID,
			Region:     acct.Region,
			Status:     status[acct.CustomerID],
		})
	}
	s.writeJSON(w, accounts)
}

// handleMonthly returns the year's bills keyed the way the dashboard
// charts label them.
func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")

	year := time.Now().Year()
	if y := r.URL.Query().Get("year"); y != "" {
		parsed, err := strconv.Atoi(y)
		if err != nil {
			http.Error(w, "invalid year", http.StatusBadRequest)
			return
		}
		year = parsed
	}

	bills, err := s.db.ListMonthlyBills(account, year)
	if err != nil {
		s.log.Error("listing monthly bills", "account", account, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	rows := make([]map[string]any, 0, len(bills))
	for _, b := range bills {
		row := map[string]any{
			"Tháng": b.Month,
			"Năm":   b.Year,
		}
		if b.ConsumptionKWh != nil {
			row["Điện tiêu thụ (KWh)"] = *b.ConsumptionKWh
		}
		if b.AmountDue != nil {
			row["Tiền Điện"] = *b.AmountDue
		}
		rows = append(rows, row)
	}
	s.writeJSON(w, rows)
}

// handleDaily returns readings over a date range, defaulting to the
// last 365 days. Cost is the flat-tariff estimate.
func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")

	to := time.Now()
	from := to.AddDate(-1, 0, 0)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse("02-01-2006", v)
		if err != nil {
			http.Error(w, "invalid from date, want DD-MM-YYYY", http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse("02-01-2006", v)
		if err != nil {
			http.Error(w, "invalid to date, want DD-MM-YYYY", http.StatusBadRequest)
			return
		}
		to = parsed
	}

	readings, err := s.db.ListDailyReadings(account, from, to)
	if err != nil {
		s.log.Error("listing daily readings", "account", account, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	rows := make([]map[string]any, 0, len(readings))
	for _, reading := range readings {
		row := map[string]any{
			"Ngày": reading.Date,
		}
		if reading.MeterReading != nil {
			row["CHISO"] = *reading.MeterReading
		}
		if reading.ConsumptionKWh != nil {
			row["Điện tiêu thụ (kWh)"] = *reading.ConsumptionKWh
			row["Tiền điện (VND)"] = *reading.ConsumptionKWh * vndPerKWh
		}
		rows = append(rows, row)
	}
	s.writeJSON(w, rows)
}

func (s *Server) handleOutages(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")

	events, err := s.db.ListOutageEvents(account)
	if err != nil {
		s.log.Error("listing outages", "account", account, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, events)
}

// handleStatic serves the dashboard assets. Anything trying to climb
// out of the asset directory gets a 403.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")
	if name == "" {
		name = "index.html"
	}

	if strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	path := filepath.Join(s.cfg.GetWebUIDir(), filepath.FromSlash(name))
	if _, err := os.Stat(path); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}
