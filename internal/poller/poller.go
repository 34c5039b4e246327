package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"evnmonitor/internal/config"
	"evnmonitor/internal/database"
	"evnmonitor/internal/evn"
	"evnmonitor/pkg/models"
)

// AccountStatus describes the last fetch outcome for one account. The
// dashboard reports it alongside the stored data.
type AccountStatus struct {
	Fetching   bool      `json:"fetching"`
	LastUpdate time.Time `json:"last_update"`
	LastError  string    `json:"last_error,omitempty"`
}

// Poller drives periodic fetch cycles for every configured account and
// persists the results. A cycle runs the account's operations in order
// (daily readings, monthly summaries, bills, outages) and aborts on the
// first error so a dead portal does not burn the rate budget.
type Poller struct {
	cfg *config.Config
	db  *database.DB
	log *slog.Logger

	// newAdapter is swapped out in tests
	newAdapter func(evn.Credentials) (evn.Adapter, error)

	mu       sync.Mutex
	adapters map[string]evn.Adapter
	status   map[string]*AccountStatus
}

// New creates a poller over the configured accounts.
func New(cfg *config.Config, db *database.DB, log *slog.Logger) *Poller {
	return &Poller{
		cfg:        cfg,
		db:         db,
		log:        log,
		newAdapter: evn.NewAdapter,
		adapters:   make(map[string]evn.Adapter),
		status:     make(map[string]*AccountStatus),
	}
}

// Run fetches immediately, then keeps fetching on the configured
// interval until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.cfg.GetPollInterval()
	p.log.Info("poller started",
		"accounts", len(p.cfg.Accounts),
		"interval", interval)

	p.RunOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce runs one fetch cycle for every configured account. Accounts
// are independent; one account's failure does not block the others.
func (p *Poller) RunOnce(ctx context.Context) {
	for _, acct := range p.cfg.Accounts {
		if ctx.Err() != nil {
			return
		}
		if err := p.fetchAccount(ctx, acct); err != nil {
			p.log.Error("fetch cycle failed",
				"account", acct.CustomerID,
				"region", acct.Region,
				"error", err)
		}
	}
}

// Status returns a copy of every account's last fetch outcome.
func (p *Poller) Status() map[string]AccountStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]AccountStatus, len(p.status))
	for id, st := range p.status {
		out[id] = *st
	}
	return out
}

func (p *Poller) setFetching(account string, fetching bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.status[account]
	if !ok {
		st = &AccountStatus{}
		p.status[account] = st
	}
	st.Fetching = fetching
}

func (p *Poller) setResult(account string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.status[account]
	if !ok {
		st = &AccountStatus{}
		p.status[account] = st
	}
	st.Fetching = false
	if err != nil {
		st.LastError = err.Error()
		return
	}
	st.LastError = ""
	st.LastUpdate = time.Now()
}

func (p *Poller) adapter(acct config.Account) (evn.Adapter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if a, ok := p.adapters[acct.CustomerID]; ok {
		return a, nil
	}
	a, err := p.newAdapter(evn.Credentials{
		Region:     acct.Region,
		Username:   acct.Username,
		Password:   acct.Password,
		CustomerID: acct.CustomerID,
	})
	if err != nil {
		return nil, err
	}
	p.adapters[acct.CustomerID] = a
	return a, nil
}

func (p *Poller) fetchAccount(ctx context.Context, acct config.Account) error {
	if err := acct.Validate(); err != nil {
		p.setResult(acct.CustomerID, err)
		return err
	}

	adapter, err := p.adapter(acct)
	if err != nil {
		p.setResult(acct.CustomerID, err)
		return err
	}

	p.setFetching(acct.CustomerID, true)
	err = p.runCycle(ctx, acct, adapter)
	p.setResult(acct.CustomerID, err)
	return err
}

// runCycle performs the four fetch operations in sequence, stopping at
// the first failure.
func (p *Poller) runCycle(ctx context.Context, acct config.Account, adapter evn.Adapter) error {
	if err := p.fetchDaily(ctx, acct, adapter); err != nil {
		return fmt.Errorf("daily readings: %w", err)
	}
	if err := p.fetchMonthly(ctx, acct, adapter); err != nil {
		return fmt.Errorf("monthly summaries: %w", err)
	}
	if err := p.fetchBills(ctx, acct, adapter); err != nil {
		return fmt.Errorf("bills: %w", err)
	}
	if err := p.fetchOutages(ctx, acct, adapter); err != nil {
		return fmt.Errorf("outages: %w", err)
	}
	return nil
}

// fetchDaily walks from the backfill start date to today in fixed-size
// windows, resuming from the newest stored reading so steady-state
// cycles only request the recent window. Windows are assembled into one
// series before consumption is derived: the adapter can only compute
// deltas within a single response, which would leave the first day of
// every later window without its predecessor.
func (p *Poller) fetchDaily(ctx context.Context, acct config.Account, adapter evn.Adapter) error {
	start, prev := p.resumePoint(acct.CustomerID, p.cfg.GetStartDate())

	today := time.Now()
	batch := p.cfg.GetBatchDays()

	var fetched []models.DailyReading
	for from := start; !from.After(today); from = from.AddDate(0, 0, batch) {
		to := from.AddDate(0, 0, batch-1)
		if to.After(today) {
			to = today
		}

		readings, err := adapter.FetchDaily(ctx, from, to)
		if err != nil {
			return err
		}
		p.log.Debug("fetched daily readings",
			"account", acct.CustomerID,
			"from", from.Format("02/01/2006"),
			"to", to.Format("02/01/2006"),
			"count", len(readings))

		fetched = append(fetched, readings...)
	}

	evn.DeriveConsumption(fetched, prev)

	for _, r := range fetched {
		if err := p.db.UpsertDailyReading(r); err != nil {
			return err
		}
	}
	return nil
}

// resumePoint returns the date the daily walk resumes from and the
// meter reading stored just before it, which seeds the delta for the
// refetched first day. The newest day is always refetched so late
// portal corrections still land.
func (p *Poller) resumePoint(account string, start time.Time) (time.Time, *float64) {
	readings, err := p.db.ListDailyReadings(account, time.Time{}, time.Now().AddDate(1, 0, 0))
	if err != nil || len(readings) == 0 {
		return start, nil
	}

	if latest, err := time.Parse(evn.CanonicalDateLayout, readings[len(readings)-1].Date); err == nil && latest.After(start) {
		start = latest
	}

	var prev *float64
	for _, r := range readings {
		when, err := time.Parse(evn.CanonicalDateLayout, r.Date)
		if err != nil || !when.Before(start) {
			continue
		}
		prev = r.MeterReading
	}
	return start, prev
}

// fetchMonthly refreshes the current and previous month. The previous
// month keeps updating until its bill is issued.
func (p *Poller) fetchMonthly(ctx context.Context, acct config.Account, adapter evn.Adapter) error {
	now := time.Now()
	prev := now.AddDate(0, -1, 0)

	for _, m := range []time.Time{prev, now} {
		bill, err := adapter.FetchMonthly(ctx, int(m.Month()), m.Year())
		if err != nil {
			return err
		}
		if bill == nil {
			continue
		}
		if err := p.db.UpsertMonthlyBill(*bill); err != nil {
			return err
		}
	}
	return nil
}

func (p *Poller) fetchBills(ctx context.Context, acct config.Account, adapter evn.Adapter) error {
	bills, balance, err := adapter.FetchBills(ctx)
	if err != nil {
		return err
	}
	for _, b := range bills {
		if err := p.db.UpsertMonthlyBill(b); err != nil {
			return err
		}
	}
	if balance != nil {
		if err := p.db.UpsertOutstandingBalance(*balance); err != nil {
			return err
		}
	}
	return nil
}

// fetchOutages queries the interruption schedule over the whole backfill
// range, start date to today.
func (p *Poller) fetchOutages(ctx context.Context, acct config.Account, adapter evn.Adapter) error {
	events, err := adapter.FetchOutages(ctx, p.cfg.GetStartDate(), time.Now())
	if err != nil {
		return err
	}
	for _, e := range events {
		if err := p.db.UpsertOutageEvent(e); err != nil {
			return err
		}
	}
	return nil
}
