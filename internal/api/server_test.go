package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"pegpool/internal/bank"
	"pegpool/internal/events"
	"pegpool/internal/metrics"
	"pegpool/internal/model"
	"pegpool/internal/oracle"
	"pegpool/internal/pool"
	"pegpool/internal/storage"
)

var (
	admin   = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	custody = common.HexToAddress("0x0000000000000000000000000000000000000001")
)

type testServer struct {
	http   *httptest.Server
	auth   *Authenticator
	bank   *bank.Bank
	engine *pool.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ledger := bank.New(custody)
	prices := oracle.NewStatic(uint256.MustFromDecimal("200000000000000000"), uint256.MustFromDecimal("1000000000000000000"))
	reg := prometheus.NewRegistry()
	poolMetrics := metrics.New(reg)

	engine, err := pool.New(context.Background(), pool.Config{
		Authority: admin,
		Genesis: pool.Params{
			CollateralRatio:   *uint256.NewInt(900_000),
			MintingFeeRate:    *uint256.NewInt(3_000),
			RedemptionFeeRate: *uint256.NewInt(5_000),
			Oracle:            common.HexToAddress("0x00000000000000000000000000000000000000c0"),
		},
		Controller: pool.DefaultControllerConfig(),
	}, pool.Deps{
		Store:      storage.NewMemoryStore(),
		Settlement: ledger,
		Binder:     oracle.StaticBinder{Source: prices},
		Emitter:    events.NewFanout(nil, poolMetrics, poolMetrics),
	})
	require.NoError(t, err)

	auth, err := NewAuthenticator("test-secret", "pegpool")
	require.NoError(t, err)
	srv, err := NewServer(Config{Engine: engine, Auth: auth, Metrics: poolMetrics, Gatherer: reg})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	require.NoError(t, ledger.Credit(context.Background(), alice, model.AssetCollateral, uint256.MustFromDecimal("100000000000000000000")))
	require.NoError(t, ledger.Credit(context.Background(), alice, model.AssetSeigniorage, uint256.MustFromDecimal("100000000000000000000")))
	return &testServer{http: ts, auth: auth, bank: ledger, engine: engine}
}

func (ts *testServer) do(t *testing.T, method, path string, as *common.Address, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.http.URL+path, reader)
	require.NoError(t, err)
	if as != nil {
		token, err := ts.auth.Issue(*as, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestQuoteEndpoints(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/v1/quote/mint?seigniorage=5000000000000000000", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "9970000000000000000", body["stable_out"])
	require.Equal(t, "9000000000000000000", body["required_collateral_in"])
	require.Equal(t, "27000000000000000", body["fee"])

	status, body = ts.do(t, http.MethodGet, "/v1/quote/redeem?stable=1000000000000000000", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "895500000000000000", body["collateral_out"])
	require.Equal(t, "497500000000000000", body["seigniorage_out"])

	status, body = ts.do(t, http.MethodGet, "/v1/quote/redeem?stable=abc", nil, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "INVALID_ARGUMENT", body["code"])
}

func TestMintCollectFlow(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.do(t, http.MethodPost, "/v1/mint", nil, mintRequest{CollateralIn: "9000000000000000000"})
	require.Equal(t, http.StatusUnauthorized, status)

	status, body := ts.do(t, http.MethodPost, "/v1/mint", &alice, mintRequest{
		CollateralIn:     "9000000000000000000",
		MaxSeigniorageIn: "5000000000000000000",
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "9970000000000000000", body["stable_out"])

	status, body = ts.do(t, http.MethodGet, "/v1/accounts/"+alice.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "9970000000000000000", body["pending_stable"])

	status, body = ts.do(t, http.MethodPost, "/v1/collect", &alice, nil)
	require.Equal(t, http.StatusOK, status)
	legs := body["legs"].([]interface{})
	require.Len(t, legs, 1)

	stable := ts.bank.BalanceOf(alice, model.AssetStable)
	require.Equal(t, "9970000000000000000", stable.Dec())

	status, body = ts.do(t, http.MethodGet, "/v1/info", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "9000000000000000000", body["collateral_balance"])
}

func TestErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/v1/admin/minting/pause", &alice, pausedRequest{Paused: true})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "AUTHORIZATION_ERROR", body["code"])

	status, _ = ts.do(t, http.MethodPost, "/v1/mint", &alice, mintRequest{
		CollateralIn:     "9000000000000000000",
		MaxSeigniorageIn: "1",
	})
	require.Equal(t, http.StatusConflict, status)

	status, _ = ts.do(t, http.MethodPost, "/v1/admin/minting/pause", &admin, pausedRequest{Paused: true})
	require.Equal(t, http.StatusOK, status)
	status, body = ts.do(t, http.MethodPost, "/v1/mint", &alice, mintRequest{CollateralIn: "9000000000000000000"})
	require.Equal(t, http.StatusLocked, status)
	require.Equal(t, "PAUSED", body["code"])

	status, _ = ts.do(t, http.MethodPost, "/v1/admin/oracle", &admin, addressRequest{Address: ""})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.do(t, http.MethodPost, "/v1/admin/fees", &admin, feesRequest{MintingFeeRate: "60000"})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.do(t, http.MethodPost, "/v1/redeem", &alice, nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestUnfundedMintIsClientError(t *testing.T) {
	ts := newTestServer(t)
	bob := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	status, body := ts.do(t, http.MethodPost, "/v1/mint", &bob, mintRequest{
		CollateralIn:     "9000000000000000000",
		MaxSeigniorageIn: "5000000000000000000",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "INVALID_ARGUMENT", body["code"])
	require.Contains(t, body["error"], "insufficient balance")

	status, body = ts.do(t, http.MethodGet, "/v1/accounts/"+bob.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "0", body["pending_stable"])
}

func TestRefreshIsPublic(t *testing.T) {
	ts := newTestServer(t)
	// genesis starts the cooldown
	status, body := ts.do(t, http.MethodPost, "/v1/ratio/refresh", nil, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "INVALID_ARGUMENT", body["code"])
}

func TestAuthenticatorRejectsForeignTokens(t *testing.T) {
	auth, err := NewAuthenticator("secret-a", "")
	require.NoError(t, err)
	other, err := NewAuthenticator("secret-b", "")
	require.NoError(t, err)

	token, err := other.Issue(alice, time.Minute)
	require.NoError(t, err)
	_, err = auth.Caller(token)
	require.Error(t, err)

	expired, err := auth.Issue(alice, -time.Hour)
	require.NoError(t, err)
	_, err = auth.Caller(expired)
	require.Error(t, err)

	good, err := auth.Issue(alice, time.Minute)
	require.NoError(t, err)
	caller, err := auth.Caller(good)
	require.NoError(t, err)
	require.Equal(t, alice, caller)

	_, err = NewAuthenticator(" ", "")
	require.Error(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp, err := ts.http.Client().Get(ts.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "pegpool_collateral_ratio 0.9")
}
