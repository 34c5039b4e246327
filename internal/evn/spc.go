package evn

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"evnmonitor/pkg/models"
)

// spcAdapter serves SPC, whose portal ignores the shared lookup shape:
// requests are GETs with query parameters and responses use camelCase
// key names, with outage windows packed into combined date+time strings.
// Responses are reshaped to canonical field names before normalization.
type spcAdapter struct {
	client *Client
}

// spcFieldRenames maps SPC response keys to their canonical names.
var spcFieldRenames = map[string]string{
	"ngayGhi":            "NGAY",
	"chiSo":              "CHISO",
	"sanLuong":           "SAN_LUONG",
	"chiSoMoi":           "CHISO_MOI",
	"chiSoCu":            "CHISO_CU",
	"dienTthu":           "DIEN_TTHU",
	"thang":              "THANG",
	"nam":                "NAM",
	"tongTien":           "TONG_TIEN",
	"trangThaiThanhToan": "TTRANG_TTOAN",
	"thoiGianBatDau":     "THOI_GIAN_BAT_DAU",
	"thoiGianKetThuc":    "THOI_GIAN_KET_THUC",
	"lyDo":               "LY_DO",
	"khuVuc":             "KHU_VUC",
}

func reshapeSPC(recs []Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		canonical := make(Record, len(rec))
		for k, v := range rec {
			if name, ok := spcFieldRenames[k]; ok {
				canonical[name] = v
			} else {
				canonical[k] = v
			}
		}
		out = append(out, canonical)
	}
	return out
}

func (a *spcAdapter) getLookup(ctx context.Context, path string, params map[string]string) ([]Record, error) {
	url := a.client.BaseURL() + path
	res, err := a.client.do(ctx, func() *resty.Request {
		return a.client.http.R().SetQueryParams(params)
	}, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	recs, err := decodeRecords(res.Body(), url)
	if err != nil {
		return nil, err
	}
	return reshapeSPC(recs), nil
}

func (a *spcAdapter) FetchDaily(ctx context.Context, from, to time.Time) ([]models.DailyReading, error) {
	recs, err := a.getLookup(ctx, "/api/cskh/tra-cuu/chi-so-ngay", map[string]string{
		"maKhachHang": a.client.creds.CustomerID,
		"tuNgay":      from.Format(portalDateLayout),
		"denNgay":     to.Format(portalDateLayout),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching daily readings: %w", err)
	}
	return NormalizeDaily(recs, a.client.creds.CustomerID, time.Now()), nil
}

func (a *spcAdapter) FetchMonthly(ctx context.Context, month, year int) (*models.MonthlyBill, error) {
	recs, err := a.getLookup(ctx, "/api/cskh/tra-cuu/chi-so-thang", map[string]string{
		"maKhachHang": a.client.creds.CustomerID,
		"thangNam":    fmt.Sprintf("%02d/%d", month, year),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching monthly summary: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return NormalizeMonthly(recs[0], a.client.creds.CustomerID, month, year), nil
}

func (a *spcAdapter) FetchBills(ctx context.Context) ([]models.MonthlyBill, *models.OutstandingBalance, error) {
	recs, err := a.getLookup(ctx, "/api/cskh/tra-cuu/hoa-don", map[string]string{
		"maKhachHang": a.client.creds.CustomerID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fetching bills: %w", err)
	}
	bills, balance := NormalizeBills(recs, a.client.creds.CustomerID, time.Now())
	return bills, balance, nil
}

func (a *spcAdapter) FetchOutages(ctx context.Context, from, to time.Time) ([]models.OutageEvent, error) {
	recs, err := a.getLookup(ctx, "/api/cskh/tra-cuu/lich-ngung-cap-dien", map[string]string{
		"maKhachHang": a.client.creds.CustomerID,
		"tuNgay":      from.Format(portalDateLayout),
		"denNgay":     to.Format(portalDateLayout),
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
