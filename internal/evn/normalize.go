package evn

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"evnmonitor/pkg/models"
)

// Record is one raw JSON object from a portal response. The five regional
// APIs disagree on casing and naming for the same fields, so records are
// kept as maps and consulted through ordered candidate lists instead of
// fixed struct tags.
type Record map[string]any

// Candidate field names per canonical field, in priority order.
var (
	dateFields = []string{
		"NGAY", "ngay",
		"NGAY_DO", "ngay_do", "NGAY_DO_CS", "ngay_do_cs",
		"THOI_DIEM", "thoi_diem",
		"THOI_GIAN", "thoi_gian",
		"NGAY_BAT_DAU", "ngay_bat_dau",
		"NGAY_KET_THUC", "ngay_ket_thuc",
	}
	readingFields = []string{
		"CHISO_MOI", "chi_so_moi", "CHISO", "chi_so", "CHI_SO", "chiSo",
	}
	consumptionFields = []string{
		"dien_tieu_thu", "DIEN_TIEU_THU", "SAN_LUONG", "san_luong", "DIEN_TIEU_THU_KWH",
	}
	monthlyConsumptionFields = []string{
		"DIEN_TTHU", "dien_tthu", "SAN_LUONG", "san_luong",
	}
)

// Field returns the first non-empty value among the candidate keys.
func Field(rec Record, keys ...string) (any, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// StringField returns the first candidate value rendered as a string,
// or "" when none is present.
func StringField(rec Record, keys ...string) string {
	v, ok := Field(rec, keys...)
	if !ok {
		return ""
	}
	s, isStr := v.(string)
	if !isStr {
		return ""
	}
	return strings.TrimSpace(s)
}

// FloatField returns the first candidate value parsed as a float.
func FloatField(rec Record, keys ...string) *float64 {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		if f, ok := ParseFloat(v); ok {
			return &f
		}
	}
	return nil
}

// ParseFloat converts a portal numeric value to a float. Portals return
// numbers as JSON numbers or as strings with comma decimal separators
// and embedded spaces.
func ParseFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), ",", ".")
		s = strings.ReplaceAll(s, " ", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// dateString renders a raw date value as a string. Some portals send
// YYYYMMDD dates as JSON numbers.
func dateString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	}
	return ""
}

// RecordDate returns the record's date in canonical DD-MM-YYYY form,
// consulting the usual date field candidates.
func RecordDate(rec Record, now time.Time) string {
	for _, k := range dateFields {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		s := dateString(v)
		if low := strings.ToLower(s); low == "" || low == "null" || low == "none" {
			continue
		}
		return ParseDate(s, now)
	}
	return now.Format(CanonicalDateLayout)
}

// NormalizeDaily converts raw daily records into readings with derived
// consumption. Records are sorted by date first; the APIs return newest
// first but consumption is the delta between consecutive readings, so
// order matters. When a delta cannot be derived (missing or decreasing
// readings) the provider-supplied consumption field is used instead.
func NormalizeDaily(recs []Record, account string, now time.Time) []models.DailyReading {
	type dated struct {
		rec  Record
		date string
	}
	sorted := make([]dated, 0, len(recs))
	for _, rec := range recs {
		sorted = append(sorted, dated{rec: rec, date: RecordDate(rec, now)})
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return dateSortKey(sorted[i].date, now).Before(dateSortKey(sorted[j].date, now))
	})

	var out []models.DailyReading
	var prevReading *float64
	for _, d := range sorted {
		reading := FloatField(d.rec, readingFields...)

		var consumption *float64
		if prevReading != nil && reading != nil && *reading >= *prevReading {
			delta := *reading - *prevReading
			consumption = &delta
		} else {
			consumption = FloatField(d.rec, consumptionFields...)
		}

		out = append(out, models.DailyReading{
			Account:        account,
			Date:           d.date,
			MeterReading:   reading,
			ConsumptionKWh: consumption,
		})
		prevReading = reading
	}
	return out
}

// DeriveConsumption recomputes per-day consumption over an assembled
// series, in order. NormalizeDaily can only see one response at a time,
// so when a range is fetched in windows the first day of each later
// window lacks its predecessor. The walk is repeated over the combined
// series, seeded with the reading stored just before it; existing
// values are kept wherever a delta still cannot be derived.
func DeriveConsumption(readings []models.DailyReading, prev *float64) {
	for i := range readings {
		r := &readings[i]
		if prev != nil && r.MeterReading != nil && *r.MeterReading >= *prev {
			delta := *r.MeterReading - *prev
			r.ConsumptionKWh = &delta
		}
		prev = r.MeterReading
	}
}

// NormalizeMonthly extracts the month's consumption from a monthly-index
// record: the consumption field if present, otherwise the delta between
// the new and old meter readings. The amount due never comes from this
// endpoint; billing supplies it separately.
func NormalizeMonthly(rec Record, account string, month, year int) *models.MonthlyBill {
	consumption := FloatField(rec, monthlyConsumptionFields...)
	if consumption == nil {
		newReading := FloatField(rec, "CHISO_MOI", "chi_so_moi")
		oldReading := FloatField(rec, "CHISO_CU", "chi_so_cu")
		if newReading != nil && oldReading != nil {
			delta := *newReading - *oldReading
			consumption = &delta
		}
	}
	if consumption == nil {
		return nil
	}
	return &models.MonthlyBill{
		Account:        account,
		Month:          month,
		Year:           year,
		ConsumptionKWh: consumption,
	}
}

// unpaidStatus is the payment-state marker the billing endpoint uses for
// bills that have not been settled yet.
const unpaidStatus = "CHUATT"

// NormalizeBills converts billing records into per-month bills plus the
// outstanding balance taken from the first unpaid bill, if any.
func NormalizeBills(recs []Record, account string, now time.Time) ([]models.MonthlyBill, *models.OutstandingBalance) {
	var bills []models.MonthlyBill
	var balance *models.OutstandingBalance

	for _, rec := range recs {
		month := FloatField(rec, "THANG", "thang")
		year := FloatField(rec, "NAM", "nam")
		if month != nil && year != nil {
			bills = append(bills, models.MonthlyBill{
				Account:        account,
				Month:          int(*month),
				Year:           int(*year),
				AmountDue:      FloatField(rec, "TONG_TIEN", "tong_tien"),
				ConsumptionKWh: FloatField(rec, monthlyConsumptionFields...),
			})
		}

		if balance == nil && StringField(rec, "TTRANG_TTOAN", "ttrang_ttoan") == unpaidStatus {
			amount := FloatField(rec, "TONG_TIEN", "tong_tien")
			if amount != nil {
				balance = &models.OutstandingBalance{
					Account:     account,
					Amount:      *amount,
					LastUpdated: now.Format(CanonicalDateLayout),
				}
			}
		}
	}
	return bills, balance
}

// NormalizeOutage converts one outage record to the canonical event,
// handling the candidate naming variants and combined date+time strings.
func NormalizeOutage(rec Record, account string, now time.Time) models.OutageEvent {
	startDate := StringField(rec, "NGAY_BAT_DAU", "ngay_bat_dau", "NGAY", "ngay")
	endDate := StringField(rec, "NGAY_KET_THUC", "ngay_ket_thuc", "NGAY", "ngay")
	startTime := StringField(rec, "THOI_GIAN_BAT_DAU", "thoi_gian_bat_dau", "THOI_GIAN", "thoi_gian", "THOI_DIEM", "thoi_diem")
	endTime := StringField(rec, "THOI_GIAN_KET_THUC", "thoi_gian_ket_thuc")

	// Some regions pack "08:00:00 ngày 01/02/2026" into the time fields,
	// the date half wins over any separate date field.
	if t, d := SplitDateTime(startTime); d != "" {
		startTime, startDate = t, d
	}
	if t, d := SplitDateTime(endTime); d != "" {
		endTime, endDate = t, d
	}

	if startDate != "" {
		startDate = ParseDate(startDate, now)
	}
	if endDate != "" {
		endDate = ParseDate(endDate, now)
	}

	return models.OutageEvent{
		Account:   account,
		StartDate: startDate,
		EndDate:   endDate,
		StartTime: startTime,
		EndTime:   endTime,
		Reason:    StringField(rec, "LY_DO", "ly_do", "NOI_DUNG", "noi_dung"),
		Area:      StringField(rec, "KHU_VUC", "khu_vuc", "DIA_CHI", "dia_chi"),
	}
}
