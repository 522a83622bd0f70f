package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dibs-shares/shares-server/pkg/app"
	"github.com/dibs-shares/shares-server/pkg/shares/common"
	"github.com/dibs-shares/shares-server/pkg/shares/data"
	"github.com/dibs-shares/shares-server/pkg/shares/registry"
	"github.com/dibs-shares/shares-server/pkg/shares/reserve"
)

func TestDecodeConfig(t *testing.T) {
	conf, err := decodeConfig(app.Config{
		"use_memory_store":      false,
		"database_host":         "db.internal",
		"database_port":         6543,
		"rate_limit_per_second": 5.5,
		"etcd_endpoints":        []interface{}{"etcd-0:2379", "etcd-1:2379"},
	})
	require.NoError(t, err)

	assert.False(t, conf.UseMemoryStore)
	assert.Equal(t, "db.internal", conf.DatabaseHost)
	assert.Equal(t, 6543, conf.DatabasePort)
	assert.Equal(t, 5.5, conf.RateLimitPerSecond)
	assert.Equal(t, []string{"etcd-0:2379", "etcd-1:2379"}, conf.EtcdEndpoints)
	assert.Equal(t, defaultAppConfig.EtcdLockPrefix, conf.EtcdLockPrefix)

	conf, err = decodeConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultAppConfig, *conf)

	_, err = decodeConfig(app.Config{"database_port": "not a port"})
	assert.Error(t, err)
}

func TestDecodeConfig_DevFunding(t *testing.T) {
	conf, err := decodeConfig(app.Config{
		"dev_funding": []interface{}{
			map[string]interface{}{
				"account": "account-1",
				"mint":    "mint-1",
				"quarks":  1_000_000,
			},
		},
	})
	require.NoError(t, err)

	require.Len(t, conf.DevFunding, 1)
	assert.Equal(t, devFundingConfig{Account: "account-1", Mint: "mint-1", Quarks: 1_000_000}, conf.DevFunding[0])
}

func TestApplyDevFunding(t *testing.T) {
	ctx := context.Background()
	ledger := reserve.NewLedger(data.NewTestDatabaseProvider())
	a := NewApp().(*sharesApp)

	account := common.NewRandomTestAccount(t).String()
	mint := common.NewRandomTestAccount(t).String()
	entries := []devFundingConfig{{Account: account, Mint: mint, Quarks: 5_000}}

	require.NoError(t, a.applyDevFunding(ctx, ledger, entries))
	require.NoError(t, a.applyDevFunding(ctx, ledger, entries))

	balance, err := ledger.GetBalance(ctx, mint, account)
	require.NoError(t, err)
	assert.EqualValues(t, 5_000, balance)

	err = a.applyDevFunding(ctx, ledger, []devFundingConfig{{Account: "not-a-key", Mint: mint, Quarks: 1}})
	assert.Error(t, err)
}

func TestApp_InitWithMemoryStore(t *testing.T) {
	t.Setenv(registry.AddressConfigEnvName, common.NewRandomTestAccount(t).String())
	t.Setenv(registry.ReserveMintConfigEnvName, common.NewRandomTestAccount(t).String())

	a := NewApp()
	require.NoError(t, a.Init(app.Config{"use_memory_store": true}, nil))

	rec := httptest.NewRecorder()
	a.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	a.Stop()
	a.Stop()
	select {
	case <-a.ShutdownChan():
	default:
		assert.Fail(t, "shutdown channel not closed")
	}
}
