package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xrate "golang.org/x/time/rate"

	"github.com/dibs-shares/shares-server/pkg/rate"
	"github.com/dibs-shares/shares-server/pkg/shares/common"
	"github.com/dibs-shares/shares-server/pkg/shares/data"
	"github.com/dibs-shares/shares-server/pkg/shares/market"
	"github.com/dibs-shares/shares-server/pkg/shares/registry"
	"github.com/dibs-shares/shares-server/pkg/shares/reserve"
)

type testEnv struct {
	ctx     context.Context
	ledger  *reserve.Ledger
	mint    *common.Account
	handler http.Handler
}

func setup(t *testing.T, limiter rate.Limiter) *testEnv {
	provider := data.NewTestDatabaseProvider()
	env := &testEnv{
		ctx:    context.Background(),
		ledger: reserve.NewLedger(provider),
		mint:   common.NewRandomTestAccount(t),
	}

	t.Setenv(registry.AddressConfigEnvName, common.NewRandomTestAccount(t).String())
	t.Setenv(registry.ReserveMintConfigEnvName, env.mint.String())

	r, err := registry.New(env.ctx, provider, env.ledger, market.NewAuthorityAuthorizer(), registry.WithEnvConfigs())
	require.NoError(t, err)

	env.handler = NewServer(r, limiter, nil).Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var res struct {
		Code    int            `json:"code"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return rec.Code, res.Data
}

func (e *testEnv) createMarket(t *testing.T, creator *common.Account) string {
	status, res := e.do(t, http.MethodPost, "/v1/markets", map[string]any{
		"creator": creator.String(),
		"name":    "Creator Shares",
		"symbol":  "SHR",
	})
	require.Equal(t, http.StatusOK, status)
	return res["address"].(string)
}

func TestHealth(t *testing.T) {
	env := setup(t, nil)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMarketLifecycle(t *testing.T) {
	env := setup(t, nil)
	creator := common.NewRandomTestAccount(t)
	trader := common.NewRandomTestAccount(t)
	require.NoError(t, env.ledger.Fund(env.ctx, env.mint.String(), trader.String(), 1_000_000_000))

	address := env.createMarket(t, creator)

	status, res := env.do(t, http.MethodGet, "/v1/markets/"+address, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, creator.String(), res["creator"])
	assert.Equal(t, "0", res["supply"])
	assert.Nil(t, res["spot_price_per_token"])

	status, res = env.do(t, http.MethodGet, "/v1/creators/"+creator.String()+"/market", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, address, res["address"])

	status, _ = env.do(t, http.MethodGet, "/v1/markets/"+address+"/price", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, quote := env.do(t, http.MethodGet, "/v1/markets/"+address+"/quote?side=buy&amount=1000000", nil)
	require.Equal(t, http.StatusOK, status)

	status, bought := env.do(t, http.MethodPost, "/v1/markets/"+address+"/buy", map[string]any{
		"account": trader.String(),
		"amount":  "1000000",
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, bought["trade_id"])
	assert.Equal(t, quote["out"], bought["tokens_out"])
	assert.Equal(t, "10000", bought["fee"])

	status, price := env.do(t, http.MethodGet, "/v1/markets/"+address+"/price", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, price["spot_price_per_token"])

	status, holder := env.do(t, http.MethodGet, "/v1/markets/"+address+"/holders/"+trader.String(), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, bought["tokens_out"], holder["balance"])

	status, _ = env.do(t, http.MethodPost, "/v1/markets/"+address+"/sell", map[string]any{
		"account": trader.String(),
		"amount":  "99999999999999999",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, sold := env.do(t, http.MethodPost, "/v1/markets/"+address+"/sell", map[string]any{
		"account": trader.String(),
		"amount":  bought["tokens_out"],
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0", sold["supply"])
	assert.Equal(t, "0", sold["reserve"])
}

func TestCreateMarket_Errors(t *testing.T) {
	env := setup(t, nil)
	creator := common.NewRandomTestAccount(t)

	env.createMarket(t, creator)

	status, _ := env.do(t, http.MethodPost, "/v1/markets", map[string]any{
		"creator": creator.String(),
		"name":    "Again",
		"symbol":  "AGN",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = env.do(t, http.MethodPost, "/v1/markets", map[string]any{
		"creator":       common.NewRandomTestAccount(t).String(),
		"name":          "Bad Ratio",
		"symbol":        "BAD",
		"reserve_ratio": 0,
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/v1/markets", map[string]any{
		"creator": "not-an-account",
		"name":    "Bad Creator",
		"symbol":  "BAD",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodGet, "/v1/markets/"+common.NewRandomTestAccount(t).String(), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPauseAndClaim(t *testing.T) {
	env := setup(t, nil)
	creator := common.NewRandomTestAccount(t)
	trader := common.NewRandomTestAccount(t)
	require.NoError(t, env.ledger.Fund(env.ctx, env.mint.String(), trader.String(), 1_000_000_000))

	address := env.createMarket(t, creator)

	status, _ := env.do(t, http.MethodPost, "/v1/markets/"+address+"/pause", map[string]any{"caller": trader.String()})
	assert.Equal(t, http.StatusForbidden, status)

	status, res := env.do(t, http.MethodPost, "/v1/markets/"+address+"/pause", map[string]any{"caller": creator.String()})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, res["is_paused"])

	trade := map[string]any{"account": trader.String(), "amount": "1000000"}
	status, _ = env.do(t, http.MethodPost, "/v1/markets/"+address+"/buy", trade)
	assert.Equal(t, http.StatusLocked, status)

	status, _ = env.do(t, http.MethodPost, "/v1/markets/"+address+"/unpause", map[string]any{"caller": creator.String()})
	require.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodPost, "/v1/markets/"+address+"/buy", trade)
	require.Equal(t, http.StatusOK, status)

	// The creator is also the beneficiary without a platform account
	status, res = env.do(t, http.MethodPost, "/v1/markets/"+address+"/fees/claim", map[string]any{"caller": creator.String()})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "10000", res["claimed"])
}

func TestListMarkets_Paging(t *testing.T) {
	env := setup(t, nil)

	var expected []string
	for i := 0; i < 5; i++ {
		expected = append(expected, env.createMarket(t, common.NewRandomTestAccount(t)))
	}

	var actual []string
	path := "/v1/markets?limit=2"
	for page := 0; page < 5; page++ {
		status, res := env.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, status)

		for _, m := range res["markets"].([]any) {
			actual = append(actual, m.(map[string]any)["address"].(string))
		}

		next, _ := res["next_cursor"].(string)
		if len(next) == 0 {
			break
		}
		path = fmt.Sprintf("/v1/markets?limit=2&cursor=%s", next)
	}
	assert.Equal(t, expected, actual)

	status, _ := env.do(t, http.MethodGet, "/v1/markets?limit=1000", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodGet, "/v1/markets?cursor=0OIl", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRateLimit(t *testing.T) {
	env := setup(t, rate.NewLocalRateLimiter(xrate.Limit(2)))

	var limited bool
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited)
}
