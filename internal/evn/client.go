package evn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Base URLs for the regional portal APIs.
var regionBaseURLs = map[string]string{
	RegionHN:   "https://gwkong.evnhanoi.vn",
	RegionNPC:  "https://apicskhevn.npc.com.vn",
	RegionCPC:  "https://cskh-api.cpc.vn",
	RegionSPC:  "https://api.cskh.evnspc.vn",
	RegionHCMC: "https://cskh.evnhcmc.vn",
}

// All regions authenticate against the shared customer-care gateway.
const defaultAuthURL = "https://cskh.evn.com.vn/cskh/v1"

// AuthError represents an authentication failure
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return e.Message
}

// Credentials identify one subscription on one regional portal.
type Credentials struct {
	Region     string
	Username   string
	Password   string
	CustomerID string
}

// Client handles login and authenticated requests against one regional
// portal. A 401 triggers exactly one re-login and one retry of the
// original request; a second 401 is reported as an AuthError.
type Client struct {
	http    *resty.Client
	creds   Credentials
	baseURL string
	authURL string

	token    string
	maDviqly string
	maDdo    string
}

// NewClient creates an API client for the given credentials.
func NewClient(creds Credentials) (*Client, error) {
	baseURL, ok := regionBaseURLs[creds.Region]
	if !ok {
		return nil, fmt.Errorf("invalid region: %s", creds.Region)
	}

	httpClient := resty.New()
	httpClient.SetTimeout(time.Minute)
	httpClient.SetHeader("accept", "application/json, text/plain, */*")
	httpClient.SetHeader("user-agent", "okhttp/4.12.0")
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)

	// 2 requests max per second, the portals throttle aggressively
	rateLimiter := rate.NewLimiter(2, 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	return &Client{
		http:    httpClient,
		creds:   creds,
		baseURL: baseURL,
		authURL: defaultAuthURL,
	}, nil
}

// SetEndpoints overrides the portal and auth gateway URLs. Used in tests.
func (c *Client) SetEndpoints(baseURL, authURL string) {
	c.baseURL = baseURL
	c.authURL = authURL
}

// BaseURL returns the regional portal URL requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type loginRequest struct {
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	DeviceInfo loginDeviceInfo `json:"deviceInfo"`
}

type loginDeviceInfo struct {
	DeviceID   string `json:"deviceId"`
	DeviceType string `json:"deviceType"`
}

type loginResponse struct {
	Success bool `json:"success"`
	Data    struct {
		AccessToken string `json:"accessToken"`
		Data        struct {
			MaKhang string `json:"maKhang"`
		} `json:"data"`
	} `json:"data"`
}

// Login authenticates against the shared gateway and stores the bearer
// token. When the gateway account maps to a different customer than the
// configured one, a follow-up switch call retargets the token. For HCMC
// a second portal-local login establishes the session cookie the
// bespoke endpoints require on top of the bearer token.
func (c *Client) Login(ctx context.Context) error {
	body := loginRequest{
		Username: c.creds.Username,
		Password: c.creds.Password,
		DeviceInfo: loginDeviceInfo{
			DeviceID:   fmt.Sprintf("evnmonitor-%s", c.creds.CustomerID),
			DeviceType: "Android/HomeAssistant",
		},
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(body).
		Post(c.authURL + "/auth/login")
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		return &AuthError{
			StatusCode: res.StatusCode(),
			Message:    fmt.Sprintf("login failed with status %d", res.StatusCode()),
		}
	}

	var parsed loginResponse
	if err := json.Unmarshal(res.Body(), &parsed); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	if !parsed.Success || parsed.Data.AccessToken == "" {
		return &AuthError{
			StatusCode: res.StatusCode(),
			Message:    "no access token in login response",
		}
	}

	c.token = parsed.Data.AccessToken
	c.setMeterCodes(parsed.Data.Data.MaKhang)

	// The gateway account may own several customer codes; switch to the
	// configured one so subsequent lookups hit the right meter.
	if maKhang := parsed.Data.Data.MaKhang; maKhang != "" && maKhang != c.creds.CustomerID {
		if err := c.switchAccount(ctx); err != nil {
			return err
		}
	}

	if c.creds.Region == RegionHCMC {
		if err := c.sessionLogin(ctx); err != nil {
			return err
		}
	}

	return nil
}

// switchAccount retargets the bearer token at the configured customer id.
func (c *Client) switchAccount(ctx context.Context) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		Get(fmt.Sprintf("%s/user/switch/%s", c.authURL, c.creds.CustomerID))
	if err != nil {
		return fmt.Errorf("switch account request: %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		return &AuthError{
			StatusCode: res.StatusCode(),
			Message:    fmt.Sprintf("switch account failed with status %d", res.StatusCode()),
		}
	}

	var parsed loginResponse
	if err := json.Unmarshal(res.Body(), &parsed); err != nil {
		return fmt.Errorf("decoding switch response: %w", err)
	}
	if !parsed.Success || parsed.Data.AccessToken == "" {
		return &AuthError{
			StatusCode: res.StatusCode(),
			Message:    "no access token in switch response",
		}
	}

	c.token = parsed.Data.AccessToken
	c.setMeterCodes(parsed.Data.Data.MaKhang)
	return nil
}

// sessionLogin performs the HCMC portal's own form login. The response
// sets a session cookie (kept in the jar) that the bespoke endpoints
// check alongside the bearer token.
func (c *Client) sessionLogin(ctx context.Context) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"u": c.creds.Username,
			"p": c.creds.Password,
		}).
		Post(c.baseURL + "/api/login")
	if err != nil {
		return fmt.Errorf("session login request: %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		return &AuthError{
			StatusCode: res.StatusCode(),
			Message:    fmt.Sprintf("session login failed with status %d", res.StatusCode()),
		}
	}
	return nil
}

// setMeterCodes derives the management-unit and metering-point codes the
// lookup payloads require. HN and NPC always derive them from the
// configured customer id; the other regions use the customer code the
// gateway reported, falling back to the configured id.
func (c *Client) setMeterCodes(maKhang string) {
	switch {
	case c.creds.Region == RegionHN || c.creds.Region == RegionNPC:
		c.maDviqly = prefix6(c.creds.CustomerID)
		c.maDdo = c.creds.CustomerID + "001"
	case maKhang != "":
		c.maDviqly = prefix6(maKhang)
		c.maDdo = maKhang
	default:
		c.maDviqly = prefix6(c.creds.CustomerID)
		c.maDdo = c.creds.CustomerID
	}
}

func prefix6(s string) string {
	if len(s) > 6 {
		return s[:6]
	}
	return s
}

// do sends an authenticated request built by build, logging in first if
// no token is held yet. On a 401 it re-authenticates once and replays
// the request; a second 401 becomes an AuthError. Any other non-200
// status is a plain fetch error.
func (c *Client) do(ctx context.Context, build func() *resty.Request, method, url string) (*resty.Response, error) {
	if c.token == "" {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	res, err := build().SetContext(ctx).SetAuthToken(c.token).Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}

	if res.StatusCode() == http.StatusUnauthorized {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
		res, err = build().SetContext(ctx).SetAuthToken(c.token).Execute(method, url)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", url, err)
		}
		if res.StatusCode() == http.StatusUnauthorized {
			return nil, &AuthError{
				StatusCode: res.StatusCode(),
				Message:    fmt.Sprintf("token rejected after re-login for %s", url),
			}
		}
	}

	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d: %s", url, res.StatusCode(), truncate(res.String(), 500))
	}

	return res, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// apiEnvelope is the common response wrapper all regional endpoints use.
type apiEnvelope struct {
	Success bool            `json:"success"`
	State   string          `json:"state,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// decodeRecords unwraps an envelope into its raw record list.
func decodeRecords(body []byte, url string) ([]Record, error) {
	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", url, err)
	}
	if len(env.Data) == 0 {
		return nil, nil
	}
	var recs []Record
	if err := json.Unmarshal(env.Data, &recs); err != nil {
		return nil, fmt.Errorf("decoding records from %s: %w", url, err)
	}
	return recs, nil
}
