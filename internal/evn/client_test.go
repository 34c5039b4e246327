package evn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func loginOK(t *testing.T, w http.ResponseWriter, maKhang string) {
	t.Helper()
	err := json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data": map[string]any{
			"accessToken": "token-1",
			"data":        map[string]any{"maKhang": maKhang},
		},
	})
	require.NoError(t, err)
}

func newTestClient(t *testing.T, region string, baseURL, authURL string) *Client {
	t.Helper()
	client, err := NewClient(Credentials{
		Region:     region,
		Username:   "user@example.com",
		Password:   "secret",
		CustomerID: "PA0012345678",
	})
	require.NoError(t, err)
	client.SetEndpoints(baseURL, authURL)
	return client
}

func TestLoginSetsTokenAndMeterCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		var body loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "user@example.com", body.Username)
		loginOK(t, w, "PA0012345678")
	}))
	defer srv.Close()

	client := newTestClient(t, RegionHN, srv.URL, srv.URL)
	require.NoError(t, client.Login(context.Background()))

	require.Equal(t, "token-1", client.token)
	require.Equal(t, "PA0012", client.maDviqly)
	require.Equal(t, "PA0012345678001", client.maDdo)
}

func TestLoginSwitchesAccount(t *testing.T) {
	var switched atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			// The gateway account maps to a different customer.
			loginOK(t, w, "PA0099999999")
		case "/user/switch/PA0012345678":
			switched.Store(true)
			loginOK(t, w, "PA0012345678")
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, RegionCPC, srv.URL, srv.URL)
	require.NoError(t, client.Login(context.Background()))
	require.True(t, switched.Load())
}

func TestLoginRejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, RegionHN, srv.URL, srv.URL)
	err := client.Login(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

func TestLoginHCMCEstablishesSession(t *testing.T) {
	var sessionLogins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			loginOK(t, w, "PA0012345678")
		case "/api/login":
			require.NoError(t, r.ParseForm())
			require.Equal(t, "user@example.com", r.PostFormValue("u"))
			sessionLogins.Add(1)
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, RegionHCMC, srv.URL, srv.URL)
	require.NoError(t, client.Login(context.Background()))
	require.Equal(t, int32(1), sessionLogins.Load())
}

func TestDoRetriesOnceAfterExpiredToken(t *testing.T) {
	var lookups atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			loginOK(t, w, "PA0012345678")
		case "/lookup":
			if lookups.Add(1) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, `{"success": true, "data": [{"NGAY": "01/01/2026"}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, RegionHN, srv.URL, srv.URL)

	res, err := client.do(context.Background(), func() *resty.Request {
		return client.http.R()
	}, http.MethodPost, srv.URL+"/lookup")
	require.NoError(t, err)

	recs, err := decodeRecords(res.Body(), srv.URL+"/lookup")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, int32(2), lookups.Load())
}

func TestDoGivesUpAfterSecondRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			loginOK(t, w, "PA0012345678")
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, RegionHN, srv.URL, srv.URL)

	_, err := client.do(context.Background(), func() *resty.Request {
		return client.http.R()
	}, http.MethodGet, srv.URL+"/lookup")

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestDecodeRecordsEmptyData(t *testing.T) {
	recs, err := decodeRecords([]byte(`{"success": true}`), "test")
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestNewClientRejectsUnknownRegion(t *testing.T) {
	_, err := NewClient(Credentials{Region: "XX"})
	require.Error(t, err)
}
