package evn

import (
	"context"
	"fmt"
	"time"

	"evnmonitor/pkg/models"
)

// Region tags for the five utility subsidiaries.
const (
	RegionHN   = "HN"
	RegionNPC  = "NPC"
	RegionCPC  = "CPC"
	RegionSPC  = "SPC"
	RegionHCMC = "HCMC"
)

// Regions lists every supported region tag.
var Regions = []string{RegionHN, RegionNPC, RegionCPC, RegionSPC, RegionHCMC}

// portalDateLayout is the DD/MM/YYYY form the portals expect in requests.
const portalDateLayout = "02/01/2006"

// Adapter fetches one region's portal data in canonical form. HN, NPC
// and CPC share the generic endpoint shape; SPC and HCMC have bespoke
// endpoints and payloads, selected once at construction time.
type Adapter interface {
	// FetchDaily retrieves daily meter readings over a date range.
	FetchDaily(ctx context.Context, from, to time.Time) ([]models.DailyReading, error)
	// FetchMonthly retrieves the consumption summary for one month.
	FetchMonthly(ctx context.Context, month, year int) (*models.MonthlyBill, error)
	// FetchBills retrieves issued bills and the outstanding balance, if
	// any bill is unpaid.
	FetchBills(ctx context.Context) ([]models.MonthlyBill, *models.OutstandingBalance, error)
	// FetchOutages retrieves the scheduled outage list over a date range.
	FetchOutages(ctx context.Context, from, to time.Time) ([]models.OutageEvent, error)
}

// NewAdapter builds the adapter for the credentials' region.
func NewAdapter(creds Credentials) (Adapter, error) {
	client, err := NewClient(creds)
	if err != nil {
		return nil, err
	}
	return newAdapterWithClient(client)
}

// newAdapterWithClient selects the region implementation for a prepared
// client. Split from NewAdapter so tests can point the client at a
// local server first.
func newAdapterWithClient(client *Client) (Adapter, error) {
	switch client.creds.Region {
	case RegionHN, RegionNPC, RegionCPC:
		return &genericAdapter{client: client}, nil
	case RegionSPC:
		return &spcAdapter{client: client}, nil
	case RegionHCMC:
		return &hcmcAdapter{client: client}, nil
	default:
		return nil, fmt.Errorf("invalid region: %s", client.creds.Region)
	}
}
