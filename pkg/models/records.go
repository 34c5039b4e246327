package models

// DailyReading is one day's cumulative meter reading and derived consumption.
// Dates are stored in canonical DD-MM-YYYY form.
type DailyReading struct {
	Account        string   `json:"account"`
	Date           string   `json:"date"`
	MeterReading   *float64 `json:"meter_reading"`
	ConsumptionKWh *float64 `json:"consumption_kwh"`
}

// MonthlyBill is one billing month's consumption and amount due.
// AmountDue stays nil until the billing endpoint supplies it.
type MonthlyBill struct {
	Account        string   `json:"account"`
	Month          int      `json:"month"`
	Year           int      `json:"year"`
	AmountDue      *float64 `json:"amount_due"`
	ConsumptionKWh *float64 `json:"consumption_kwh"`
}

// OutstandingBalance is the unpaid amount for an account, one row per account.
type OutstandingBalance struct {
	Account     string  `json:"account"`
	Amount      float64 `json:"amount"`
	LastUpdated string  `json:"last_updated"`
}

// OutageEvent is a scheduled power interruption.
type OutageEvent struct {
	Account   string `json:"account"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
	Area      string `json:"area"`
}
