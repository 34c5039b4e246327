package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"evnmonitor/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(f float64) *float64 { return &f }

func TestUpsertDailyReadingIdempotent(t *testing.T) {
	db := newTestDB(t)

	reading := models.DailyReading{
		Account:        "PA0012345678",
		Date:           "01-01-2026",
		MeterReading:   ptr(110),
		ConsumptionKWh: ptr(8),
	}
	require.NoError(t, db.UpsertDailyReading(reading))
	require.NoError(t, db.UpsertDailyReading(reading))

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	readings, err := db.ListDailyReadings("PA0012345678", from, from)
	require.NoError(t, err)
	require.Len(t, readings, 1)

	// A refetch with corrected values replaces the row.
	reading.ConsumptionKWh = ptr(9)
	require.NoError(t, db.UpsertDailyReading(reading))

	got, err := db.GetDailyReading("PA0012345678", "01-01-2026")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 9.0, *got.ConsumptionKWh)
}

func TestUpsertDailyReadingNilKeepsStoredValues(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.UpsertDailyReading(models.DailyReading{
		Account:        "PA0012345678",
		Date:           "01-01-2026",
		MeterReading:   ptr(110),
		ConsumptionKWh: ptr(8),
	}))

	// A refetch that could not derive consumption for this day must not
	// wipe the previously derived value.
	require.NoError(t, db.UpsertDailyReading(models.DailyReading{
		Account:      "PA0012345678",
		Date:         "01-01-2026",
		MeterReading: ptr(110),
	}))

	got, err := db.GetDailyReading("PA0012345678", "01-01-2026")
	require.NoError(t, err)
	require.NotNil(t, got.ConsumptionKWh)
	require.Equal(t, 8.0, *got.ConsumptionKWh)
}

func TestListDailyReadingsOrdersByDate(t *testing.T) {
	db := newTestDB(t)

	// DD-MM-YYYY strings do not sort lexicographically; these three are
	// deliberately out of lexical order.
	for _, date := range []string{"02-01-2026", "15-12-2025", "01-01-2026"} {
		require.NoError(t, db.UpsertDailyReading(models.DailyReading{
			Account: "PA0012345678",
			Date:    date,
		}))
	}

	from := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	readings, err := db.ListDailyReadings("PA0012345678", from, to)
	require.NoError(t, err)
	require.Len(t, readings, 3)
	require.Equal(t, "15-12-2025", readings[0].Date)
	require.Equal(t, "01-01-2026", readings[1].Date)
	require.Equal(t, "02-01-2026", readings[2].Date)
}

func TestUpsertMonthlyBillKeepsAmount(t *testing.T) {
	db := newTestDB(t)

	// Billing stores the amount first.
	require.NoError(t, db.UpsertMonthlyBill(models.MonthlyBill{
		Account:   "PA0012345678",
		Month:     1,
		Year:      2026,
		AmountDue: ptr(480000),
	}))

	// The monthly index only knows consumption; its nil amount must not
	// wipe what billing wrote.
	require.NoError(t, db.UpsertMonthlyBill(models.MonthlyBill{
		Account:        "PA0012345678",
		Month:          1,
		Year:           2026,
		ConsumptionKWh: ptr(240),
	}))

	bills, err := db.ListMonthlyBills("PA0012345678", 2026)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	require.Equal(t, 480000.0, *bills[0].AmountDue)
	require.Equal(t, 240.0, *bills[0].ConsumptionKWh)
}

func TestUpsertOutstandingBalanceOverwrites(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.UpsertOutstandingBalance(models.OutstandingBalance{
		Account: "PA0012345678", Amount: 480000, LastUpdated: "01-01-2026",
	}))
	require.NoError(t, db.UpsertOutstandingBalance(models.OutstandingBalance{
		Account: "PA0012345678", Amount: 0, LastUpdated: "02-01-2026",
	}))

	balance, err := db.GetOutstandingBalance("PA0012345678")
	require.NoError(t, err)
	require.NotNil(t, balance)
	require.Equal(t, 0.0, balance.Amount)
	require.Equal(t, "02-01-2026", balance.LastUpdated)
}

func TestGetOutstandingBalanceAbsent(t *testing.T) {
	db := newTestDB(t)

	balance, err := db.GetOutstandingBalance("PA0012345678")
	require.NoError(t, err)
	require.Nil(t, balance)
}

func TestUpsertOutageEventIdempotent(t *testing.T) {
	db := newTestDB(t)

	event := models.OutageEvent{
		Account:   "PA0012345678",
		StartDate: "01-02-2026",
		StartTime: "08:00:00",
		EndTime:   "12:00:00",
		Reason:    "Bảo trì",
	}
	require.NoError(t, db.UpsertOutageEvent(event))
	require.NoError(t, db.UpsertOutageEvent(event))

	events, err := db.ListOutageEvents("PA0012345678")
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestMarkPublished(t *testing.T) {
	db := newTestDB(t)

	for _, date := range []string{"01-01-2026", "02-01-2026"} {
		require.NoError(t, db.UpsertDailyReading(models.DailyReading{
			Account:        "PA0012345678",
			Date:           date,
			ConsumptionKWh: ptr(8),
		}))
	}

	unpublished, err := db.ListUnpublishedReadings("PA0012345678")
	require.NoError(t, err)
	require.Len(t, unpublished, 2)

	require.NoError(t, db.MarkPublished("PA0012345678", "01-01-2026"))

	unpublished, err = db.ListUnpublishedReadings("PA0012345678")
	require.NoError(t, err)
	require.Len(t, unpublished, 1)
	require.Equal(t, "02-01-2026", unpublished[0].Date)
}
