package evn

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"evnmonitor/pkg/models"
)

// hcmcAdapter serves HCMC, the most divergent portal: every lookup is a
// form-encoded POST gated on the session cookie established during
// login, field names differ again, and there is no monthly-index
// endpoint at all, so monthly consumption is derived from the daily
// meter series.
type hcmcAdapter struct {
	client *Client
}

// hcmcFieldRenames maps HCMC response keys to their canonical names.
var hcmcFieldRenames = map[string]string{
	"ngay_su_dung": "NGAY",
	"ngay_cup":     "NGAY_BAT_DAU",
	"gio_bat_dau":  "THOI_GIAN_BAT_DAU",
	"gio_ket_thuc": "THOI_GIAN_KET_THUC",
	"so_tien":      "TONG_TIEN",
	"trang_thai":   "TTRANG_TTOAN",
}

func reshapeHCMC(recs []Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		canonical := make(Record, len(rec))
		for k, v := range rec {
			if name, ok := hcmcFieldRenames[k]; ok {
				canonical[name] = v
			} else {
				canonical[k] = v
			}
		}
		out = append(out, canonical)
	}
	return out
}

func (a *hcmcAdapter) postForm(ctx context.Context, path string, form map[string]string) ([]Record, error) {
	url := a.client.BaseURL() + path
	res, err := a.client.do(ctx, func() *resty.Request {
		return a.client.http.R().SetFormData(form)
	}, http.MethodPost, url)
	if err != nil {
		return nil, err
	}
	recs, err := decodeRecords(res.Body(), url)
	if err != nil {
		return nil, err
	}
	return reshapeHCMC(recs), nil
}

func (a *hcmcAdapter) FetchDaily(ctx context.Context, from, to time.Time) ([]models.DailyReading, error) {
	recs, err := a.postForm(ctx, "/api/v1/tra-cuu/san-luong-ngay", map[string]string{
		"input_makh":    a.client.creds.CustomerID,
		"input_tungay":  from.Format(portalDateLayout),
		"input_denngay": to.Format(portalDateLayout),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching daily readings: %w", err)
	}
	return NormalizeDaily(recs, a.client.creds.CustomerID, time.Now()), nil
}

// FetchMonthly has no endpoint to call on this portal: the month's
// consumption is derived from the daily series, preferring the delta
// between the first and last meter readings and falling back to summing
// the per-day consumption values.
func (a *hcmcAdapter) FetchMonthly(ctx context.Context, month, year int) (*models.MonthlyBill, error) {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.Local)
	last := first.AddDate(0, 1, -1)

	readings, err := a.FetchDaily(ctx, first, last)
	if err != nil {
		return nil, fmt.Errorf("deriving monthly summary: %w", err)
	}
	if len(readings) == 0 {
		return nil, nil
	}

	var firstReading, lastReading *float64
	var summed float64
	var haveSummed bool
	for _, r := range readings {
		if r.MeterReading != nil {
			if firstReading == nil {
				firstReading = r.MeterReading
			}
			lastReading = r.MeterReading
		}
		if r.ConsumptionKWh != nil {
			summed += *r.ConsumptionKWh
			haveSummed = true
		}
	}

	var consumption float64
	switch {
	case firstReading != nil && lastReading != nil && *lastReading >= *firstReading:
		consumption = *lastReading - *firstReading
	case haveSummed:
		consumption = summed
	default:
		return nil, nil
	}

	return &models.MonthlyBill{
		Account:        a.client.creds.CustomerID,
		Month:          month,
		Year:           year,
		ConsumptionKWh: &consumption,
	}, nil
}

func (a *hcmcAdapter) FetchBills(ctx context.Context) ([]models.MonthlyBill, *models.OutstandingBalance, error) {
	recs, err := a.postForm(ctx, "/api/v1/tra-cuu/hoa-don", map[string]string{
		"input_makh": a.client.creds.CustomerID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fetching bills: %w", err)
	}
	bills, balance := NormalizeBills(recs, a.client.creds.CustomerID, time.Now())
	return bills, balance, nil
}

func (a *hcmcAdapter) FetchOutages(ctx context.Context, from, to time.Time) ([]models.OutageEvent, error) {
	recs, err := a.postForm(ctx, "/api/v1/tra-cuu/lich-ngung-cap-dien", map[string]string{
		"input_makh":    a.client.creds.CustomerID,
		"input_tungay":  from.Format(portalDateLayout),
		"input_denngay": to.Format(portalDateLayout),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching outage schedule: %w", err)
	}
	events := make([]models.OutageEvent, 0, len(recs))
	for _, rec := range recs {
		events = append(events, NormalizeOutage(rec, a.client.creds.CustomerID, time.Now()))
	}
	return events, nil
}
