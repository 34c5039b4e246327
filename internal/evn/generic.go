package evn

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"evnmonitor/pkg/models"
)

// genericAdapter serves HN, NPC and CPC, which share one endpoint and
// payload shape: JSON POST bodies carrying the management-unit and
// metering-point codes plus a date or month range.
type genericAdapter struct {
	client *Client
}

func (a *genericAdapter) postLookup(ctx context.Context, path string, payload map[string]string) ([]Record, error) {
	url := a.client.BaseURL() + path
	res, err := a.client.do(ctx, func() *resty.Request {
		req := a.client.http.R().SetHeader("content-type", "application/json")
		if payload != nil {
			req.SetBody(payload)
		}
		return req
	}, http.MethodPost, url)
	if err != nil {
		return nil, err
	}
	return decodeRecords(res.Body(), url)
}

func (a *genericAdapter) FetchDaily(ctx context.Context, from, to time.Time) ([]models.DailyReading, error) {
	recs, err := a.postLookup(ctx, "/api/evn/tracuu/chisongay", map[string]string{
		"MA_DVIQLY": a.client.maDviqly,
		"MA_DDO":    a.client.maDdo,
		"TU_NGAY":   from.Format(portalDateLayout),
		"DEN_NGAY":  to.Format(portalDateLayout),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching daily readings: %w", err)
	}
	return NormalizeDaily(recs, a.client.creds.CustomerID, time.Now()), nil
}

func (a *genericAdapter) FetchMonthly(ctx context.Context, month, year int) (*models.MonthlyBill, error) {
	thangNam := fmt.Sprintf("%02d/%d", month, year)
	recs, err := a.postLookup(ctx, "/api/evn/tracuu/chisothang", map[string]string{
		"MA_DVIQLY":     a.client.maDviqly,
		"MA_DDO":        a.client.maDdo,
		"TU_THANG_NAM":  thangNam,
		"DEN_THANG_NAM": thangNam,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching monthly summary: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return NormalizeMonthly(recs[0], a.client.creds.CustomerID, month, year), nil
}

func (a *genericAdapter) FetchBills(ctx context.Context) ([]models.MonthlyBill, *models.OutstandingBalance, error) {
	recs, err := a.postLookup(ctx, "/api/evn/tracuu/hoadon", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching bills: %w", err)
	}
	bills, balance := NormalizeBills(recs, a.client.creds.CustomerID, time.Now())
	return bills, balance, nil
}

func (a *genericAdapter) FetchOutages(ctx context.Context, from, to time.Time) ([]models.OutageEvent, error) {
	recs, err := a.postLookup(ctx, "/api/evn/tracuu/ngungcapdien", map[string]string{
		"TU_NGAY":  from.Format(portalDateLayout),
		"DEN_NGAY": to.Format(portalDateLayout),
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
