package database

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"evnmonitor/pkg/models"
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS daily_readings (
		account TEXT NOT NULL,
		date TEXT NOT NULL,
		meter_reading REAL,
		consumption_kwh REAL,
		published INTEGER DEFAULT 0,
		PRIMARY KEY (account, date)
	);
	CREATE TABLE IF NOT EXISTS monthly_bills (
		account TEXT NOT NULL,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		amount_due REAL,
		consumption_kwh REAL,
		PRIMARY KEY (account, month, year)
	);
	CREATE TABLE IF NOT EXISTS outstanding_balance (
		account TEXT NOT NULL PRIMARY KEY,
		amount REAL NOT NULL,
		last_updated TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS outage_events (
		account TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		start_time TEXT NOT NULL,
		end_time TEXT,
		reason TEXT,
		area TEXT,
		PRIMARY KEY (account, start_date, start_time)
	);
	CREATE INDEX IF NOT EXISTS idx_daily_account ON daily_readings(account);
	CREATE INDEX IF NOT EXISTS idx_monthly_account_year ON monthly_bills(account, year);
	CREATE INDEX IF NOT EXISTS idx_outage_account ON outage_events(account);
	`

	_, err := db.conn.Exec(schema)
	if err != nil {
		return err
	}

	// Add columns to existing tables (migration)
	// These will fail silently if columns already exist
	db.conn.Exec(`ALTER TABLE daily_readings ADD COLUMN published INTEGER DEFAULT 0`)

	return nil
}

// UpsertDailyReading inserts or replaces one daily reading. Nil values
// never clobber stored ones: a refetch that cannot derive consumption
// for a day must not wipe the value an earlier cycle derived.
func (db *DB) UpsertDailyReading(r models.DailyReading) error {
	query := `
	INSERT INTO daily_readings (account, date, meter_reading, consumption_kwh)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(account, date) DO UPDATE SET
		meter_reading = COALESCE(excluded.meter_reading, meter_reading),
		consumption_kwh = COALESCE(excluded.consumption_kwh, consumption_kwh)
	`

	_, err := db.conn.Exec(query, r.Account, r.Date, r.MeterReading, r.ConsumptionKWh)
	if err != nil {
		return fmt.Errorf("inserting daily reading: %w", err)
	}

	return nil
}

// UpsertMonthlyBill inserts or replaces one monthly bill. A nil amount
// never clobbers an amount a previous billing fetch already stored.
func (db *DB) UpsertMonthlyBill(b models.MonthlyBill) error {
	query := `
	INSERT INTO monthly_bills (account, month, year, amount_due, consumption_kwh)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(account, month, year) DO UPDATE SET
		amount_due = COALESCE(excluded.amount_due, amount_due),
		consumption_kwh = COALESCE(excluded.consumption_kwh, consumption_kwh)
	`

	_, err := db.conn.Exec(query, b.Account, b.Month, b.Year, b.AmountDue, b.ConsumptionKWh)
	if err != nil {
		return fmt.Errorf("inserting monthly bill: %w", err)
	}

	return nil
}

// UpsertOutstandingBalance overwrites the account's unpaid amount
func (db *DB) UpsertOutstandingBalance(b models.OutstandingBalance) error {
	query := `
	INSERT OR REPLACE INTO outstanding_balance (account, amount, last_updated)
	VALUES (?, ?, ?)
	`

	_, err := db.conn.Exec(query, b.Account, b.Amount, b.LastUpdated)
	if err != nil {
		return fmt.Errorf("inserting outstanding balance: %w", err)
	}

	return nil
}

// UpsertOutageEvent inserts or replaces one outage event
func (db *DB) UpsertOutageEvent(e models.OutageEvent) error {
	query := `
	INSERT OR REPLACE INTO outage_events
	(account, start_date, end_date, start_time, end_time, reason, area)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.Exec(query, e.Account, e.StartDate, e.EndDate, e.StartTime, e.EndTime, e.Reason, e.Area)
	if err != nil {
		return fmt.Errorf("inserting outage event: %w", err)
	}

	return nil
}

// GetDailyReading retrieves one daily reading, or nil when absent
func (db *DB) GetDailyReading(account, date string) (*models.DailyReading, error) {
	query := `
	SELECT account, date, meter_reading, consumption_kwh
	FROM daily_readings
	WHERE account = ? AND date = ?
	`

	var r models.DailyReading
	err := db.conn.QueryRow(query, account, date).Scan(&r.Account, &r.Date, &r.MeterReading, &r.ConsumptionKWh)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying daily reading: %w", err)
	}

	return &r, nil
}

// ListDailyReadings retrieves an account's daily readings within the
// date range, ordered oldest first. Dates are stored in DD-MM-YYYY form
// which does not sort lexicographically, so ordering and filtering
// happen after parsing.
func (db *DB) ListDailyReadings(account string, from, to time.Time) ([]models.DailyReading, error) {
	query := `
	SELECT account, date, meter_reading, consumption_kwh
	FROM daily_readings
	WHERE account = ?
	`

	rows, err := db.conn.Query(query, account)
	if err != nil {
		return nil, fmt.Errorf("querying daily readings: %w", err)
	}
	defer rows.Close()

	type dated struct {
		reading models.DailyReading
		when    time.Time
	}
	var all []dated
	for rows.Next() {
		var r models.DailyReading
		if err := rows.Scan(&r.Account, &r.Date, &r.MeterReading, &r.ConsumptionKWh); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		when, err := time.Parse("02-01-2006", r.Date)
		if err != nil {
			continue
		}
		if when.Before(from) || when.After(to) {
			continue
		}
		all = append(all, dated{reading: r, when: when})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].when.Before(all[j].when) })

	results := make([]models.DailyReading, 0, len(all))
	for _, d := range all {
		results = append(results, d.reading)
	}
	return results, nil
}

// ListMonthlyBills retrieves an account's bills for one year, ordered by month
func (db *DB) ListMonthlyBills(account string, year int) ([]models.MonthlyBill, error) {
	query := `
	SELECT account, month, year, amount_due, consumption_kwh
	FROM monthly_bills
	WHERE account = ? AND year = ?
	ORDER BY month
	`

	rows, err := db.conn.Query(query, account, year)
	if err != nil {
		return nil, fmt.Errorf("querying monthly bills: %w", err)
	}
	defer rows.Close()

	var results []models.MonthlyBill
	for rows.Next() {
		var b models.MonthlyBill
		if err := rows.Scan(&b.Account, &b.Month, &b.Year, &b.AmountDue, &b.ConsumptionKWh); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		results = append(results, b)
	}

	return results, rows.Err()
}

// GetOutstandingBalance retrieves the account's unpaid amount, or nil
func (db *DB) GetOutstandingBalance(account string) (*models.OutstandingBalance, error) {
	query := `
	SELECT account, amount, last_updated
	FROM outstanding_balance
	WHERE account = ?
	`

	var b models.OutstandingBalance
	err := db.conn.QueryRow(query, account).Scan(&b.Account, &b.Amount, &b.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying outstanding balance: %w", err)
	}

	return &b, nil
}

// ListOutageEvents retrieves all outage events for an account
func (db *DB) ListOutageEvents(account string) ([]models.OutageEvent, error) {
	query := `
	SELECT account, start_date, end_date, start_time, end_time, reason, area
	FROM outage_events
	WHERE account = ?
	ORDER BY start_date, start_time
	`

	rows, err := db.conn.Query(query, account)
	if err != nil {
		return nil, fmt.Errorf("querying outage events: %w", err)
	}
	defer rows.Close()

	var results []models.OutageEvent
	for rows.Next() {
		var e models.OutageEvent
		if err := rows.Scan(&e.Account, &e.StartDate, &e.EndDate, &e.StartTime, &e.EndTime, &e.Reason, &e.Area); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

// ListUnpublishedReadings retrieves daily readings not yet pushed to
// Home Assistant, ordered oldest first
func (db *DB) ListUnpublishedReadings(account string) ([]models.DailyReading, error) {
	readings, err := db.ListDailyReadings(account, time.Time{}, time.Now().AddDate(100, 0, 0))
	if err != nil {
		return nil, err
	}

	var unpublished []models.DailyReading
	for _, r := range readings {
		var published int
		err := db.conn.QueryRow(
			`SELECT published FROM daily_readings WHERE account = ? AND date = ?`,
			r.Account, r.Date,
		).Scan(&published)
		if err != nil {
			return nil, fmt.Errorf("querying published flag: %w", err)
		}
		if published == 0 {
			unpublished = append(unpublished, r)
		}
	}
	return unpublished, nil
}

// MarkPublished marks a daily reading as pushed to Home Assistant
func (db *DB) MarkPublished(account, date string) error {
	_, err := db.conn.Exec(
		`UPDATE daily_readings SET published = 1 WHERE account = ? AND date = ?`,
		account, date,
	)
	if err != nil {
		return fmt.Errorf("marking reading as published: %w", err)
	}
	return nil
}
