package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dibs-shares/shares-server/pkg/lock"
	"github.com/dibs-shares/shares-server/pkg/shares/common"
	"github.com/dibs-shares/shares-server/pkg/shares/data"
	"github.com/dibs-shares/shares-server/pkg/shares/market"
	"github.com/dibs-shares/shares-server/pkg/shares/reserve"
)

type testEnv struct {
	ctx      context.Context
	data     data.Provider
	ledger   *reserve.Ledger
	registry *Registry

	address *common.Account
	mint    *common.Account
}

func setup(t *testing.T) *testEnv {
	return setupWithOverrides(t, &testOverrides{})
}

func setupWithOverrides(t *testing.T, overrides *testOverrides) *testEnv {
	provider := data.NewTestDatabaseProvider()
	env := &testEnv{
		ctx:     context.Background(),
		data:    provider,
		ledger:  reserve.NewLedger(provider),
		address: common.NewRandomTestAccount(t),
		mint:    common.NewRandomTestAccount(t),
	}

	overrides.address = env.address.String()
	overrides.reserveMint = env.mint.String()

	var err error
	env.registry, err = New(env.ctx, env.data, env.ledger, market.NewAuthorityAuthorizer(), withManualTestOverrides(overrides))
	require.NoError(t, err)

	return env
}

func (e *testEnv) newConfig(t *testing.T, creator *common.Account) *market.Config {
	config, err := e.registry.NewConfig(e.ctx, creator, "Creator Shares", "SHR")
	require.NoError(t, err)
	return config
}

func TestNew_InvalidAddress(t *testing.T) {
	provider := data.NewTestDatabaseProvider()
	_, err := New(context.Background(), provider, reserve.NewLedger(provider), market.NewAuthorityAuthorizer(), withManualTestOverrides(&testOverrides{}))
	assert.Error(t, err)
}

func TestNewConfig_Defaults(t *testing.T) {
	env := setup(t)
	creator := common.NewRandomTestAccount(t)

	config := env.newConfig(t, creator)
	require.NoError(t, config.Validate())

	assert.True(t, config.Creator.Equals(creator))
	assert.True(t, config.Beneficiary.Equals(creator))
	assert.True(t, config.ReserveMint.Equals(env.mint))
	assert.EqualValues(t, defaultReserveRatio, config.ReserveRatio)
	assert.EqualValues(t, defaultBuyFeeBps, config.BuyFeeBps)
	assert.EqualValues(t, defaultSellFeeBps, config.SellFeeBps)

	platform := common.NewRandomTestAccount(t)
	env = setupWithOverrides(t, &testOverrides{platformBeneficiary: platform.String()})
	config = env.newConfig(t, creator)
	assert.True(t, config.Beneficiary.Equals(platform))
}

func TestCreateMarket_HappyPath(t *testing.T) {
	env := setup(t)

	for i := 0; i < 3; i++ {
		creator := common.NewRandomTestAccount(t)

		m, err := env.registry.CreateMarket(env.ctx, env.newConfig(t, creator))
		require.NoError(t, err)

		snapshot := m.Snapshot()
		assert.EqualValues(t, i, snapshot.Index)
		assert.Equal(t, creator.String(), snapshot.Creator)
		assert.Zero(t, snapshot.ContinuousSupply)
		assert.Zero(t, snapshot.ReserveBalance)

		expected, _, err := common.GetMarketAddress(env.address, creator)
		require.NoError(t, err)
		assert.Equal(t, expected.String(), snapshot.Address)

		byIndex, err := env.registry.GetMarketByIndex(env.ctx, uint64(i))
		require.NoError(t, err)
		assert.Same(t, m, byIndex)

		byCreator, err := env.registry.GetMarketByCreator(env.ctx, creator)
		require.NoError(t, err)
		assert.Same(t, m, byCreator)

		byAddress, err := env.registry.GetMarketByAddress(env.ctx, snapshot.Address)
		require.NoError(t, err)
		assert.Same(t, m, byAddress)

		count, err := env.registry.Count(env.ctx)
		require.NoError(t, err)
		assert.EqualValues(t, i+1, count)
	}
}

func TestCreateMarket_DuplicateCreator(t *testing.T) {
	env := setup(t)
	creator := common.NewRandomTestAccount(t)

	_, err := env.registry.CreateMarket(env.ctx, env.newConfig(t, creator))
	require.NoError(t, err)

	config := env.newConfig(t, creator)
	config.Name = "Another Name"
	_, err = env.registry.CreateMarket(env.ctx, config)
	assert.ErrorIs(t, err, ErrDuplicateCreator)

	count, err := env.registry.Count(env.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestCreateMarket_InvalidConfig(t *testing.T) {
	env := setup(t)

	for _, ratio := range []uint32{0, 1_000_001} {
		config := env.newConfig(t, common.NewRandomTestAccount(t))
		config.ReserveRatio = ratio

		_, err := env.registry.CreateMarket(env.ctx, config)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	}

	_, err := env.registry.CreateMarket(env.ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	count, err := env.registry.Count(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateMarket_Concurrent(t *testing.T) {
	env := setup(t)

	creators := make([]*common.Account, 20)
	for i := range creators {
		creators[i] = common.NewRandomTestAccount(t)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var duplicates int
	for _, creator := range creators {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(config *market.Config) {
				defer wg.Done()

				_, err := env.registry.CreateMarket(env.ctx, config)
				if err == ErrDuplicateCreator {
					mu.Lock()
					duplicates++
					mu.Unlock()
					return
				}
				assert.NoError(t, err)
			}(env.newConfig(t, creator))
		}
	}
	wg.Wait()

	assert.Equal(t, len(creators), duplicates)

	count, err := env.registry.Count(env.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, len(creators), count)

	seen := make(map[uint64]struct{})
	for i := range count {
		m, err := env.registry.GetMarketByIndex(env.ctx, i)
		require.NoError(t, err)
		seen[m.Snapshot().Index] = struct{}{}
	}
	assert.Len(t, seen, len(creators))
}

func TestGetMarket_NotFound(t *testing.T) {
	env := setup(t)

	_, err := env.registry.GetMarketByIndex(env.ctx, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.registry.GetMarketByCreator(env.ctx, common.NewRandomTestAccount(t))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.registry.GetMarketByAddress(env.ctx, common.NewRandomTestAccount(t).String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkets_LazyAndRestartable(t *testing.T) {
	env := setupWithOverrides(t, &testOverrides{pageSize: 3})

	var expected []string
	for i := 0; i < 8; i++ {
		config := env.newConfig(t, common.NewRandomTestAccount(t))
		config.Symbol = fmt.Sprintf("S%d", i)

		m, err := env.registry.CreateMarket(env.ctx, config)
		require.NoError(t, err)
		expected = append(expected, m.Address())
	}

	seq := env.registry.Markets(env.ctx)
	for run := 0; run < 2; run++ {
		var actual []string
		for summary, err := range seq {
			require.NoError(t, err)
			assert.EqualValues(t, len(actual), summary.Index)
			actual = append(actual, summary.Address)
		}
		assert.Equal(t, expected, actual)
	}

	var partial []string
	for summary, err := range seq {
		require.NoError(t, err)
		partial = append(partial, summary.Address)
		if len(partial) == 4 {
			break
		}
	}
	assert.Equal(t, expected[:4], partial)
}

func TestMarkets_Empty(t *testing.T) {
	env := setup(t)

	for range env.registry.Markets(env.ctx) {
		assert.Fail(t, "unexpected market")
	}
}

func TestListMarkets_Cursor(t *testing.T) {
	env := setup(t)

	for i := 0; i < 5; i++ {
		_, err := env.registry.CreateMarket(env.ctx, env.newConfig(t, common.NewRandomTestAccount(t)))
		require.NoError(t, err)
	}

	page, err := env.registry.ListMarkets(env.ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.EqualValues(t, 0, page[0].Index)

	page, err = env.registry.ListMarkets(env.ctx, page[1].Cursor, 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.EqualValues(t, 2, page[0].Index)

	page, err = env.registry.ListMarkets(env.ctx, page[2].Cursor, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestLoad_SharesInstances(t *testing.T) {
	env := setup(t)

	var addresses []string
	for i := 0; i < 4; i++ {
		m, err := env.registry.CreateMarket(env.ctx, env.newConfig(t, common.NewRandomTestAccount(t)))
		require.NoError(t, err)
		addresses = append(addresses, m.Address())
	}

	// A fresh registry over the same store starts with nothing in memory
	restarted, err := New(env.ctx, env.data, env.ledger, market.NewAuthorityAuthorizer(), withManualTestOverrides(&testOverrides{
		address:     env.address.String(),
		reserveMint: env.mint.String(),
	}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*market.Market, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := restarted.GetMarketByAddress(env.ctx, addresses[0])
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	wg.Wait()
	for _, m := range results {
		assert.Same(t, results[0], m)
	}

	count, err := restarted.Load(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, len(addresses), count)

	m, err := restarted.GetMarketByAddress(env.ctx, addresses[0])
	require.NoError(t, err)
	assert.Same(t, results[0], m)
}

func TestTradingThroughRegistry(t *testing.T) {
	env := setup(t)
	creator := common.NewRandomTestAccount(t)
	trader := common.NewRandomTestAccount(t)
	require.NoError(t, env.ledger.Fund(env.ctx, env.mint.String(), trader.String(), 1_000_000_000))

	_, err := env.registry.CreateMarket(env.ctx, env.newConfig(t, creator))
	require.NoError(t, err)

	m, err := env.registry.GetMarketByCreator(env.ctx, creator)
	require.NoError(t, err)

	bought, err := m.Buy(env.ctx, &market.BuyArgs{Buyer: trader, Amount: 1_000_000})
	require.NoError(t, err)

	var found bool
	for summary, err := range env.registry.Markets(env.ctx) {
		require.NoError(t, err)
		if summary.Address == m.Address() {
			found = true
			assert.Equal(t, bought.NewSupply, summary.ContinuousSupply)
			assert.Equal(t, bought.NewReserve, summary.ReserveBalance)
		}
	}
	assert.True(t, found)
}

type testLock struct {
	mu         sync.Mutex
	held       bool
	acquires   int
	unlocks    int
	acquireErr error
	lost       bool
}

func (l *testLock) Acquire(_ context.Context) (<-chan struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.acquireErr != nil {
		return nil, l.acquireErr
	}

	l.held = true
	l.acquires++

	lostCh := make(chan struct{})
	if l.lost {
		close(lostCh)
	}
	return lostCh, nil
}

func (l *testLock) Unlock(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		l.unlocks++
	}
	l.held = false
	return nil
}

func (l *testLock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

var _ lock.DistributedLock = (*testLock)(nil)

func setupWithLock(t *testing.T, l lock.DistributedLock) *testEnv {
	provider := data.NewTestDatabaseProvider()
	env := &testEnv{
		ctx:     context.Background(),
		data:    provider,
		ledger:  reserve.NewLedger(provider),
		address: common.NewRandomTestAccount(t),
		mint:    common.NewRandomTestAccount(t),
	}

	overrides := &testOverrides{
		address:     env.address.String(),
		reserveMint: env.mint.String(),
	}

	var err error
	env.registry, err = New(env.ctx, env.data, env.ledger, market.NewAuthorityAuthorizer(), withManualTestOverrides(overrides), WithCreationLock(l))
	require.NoError(t, err)
	return env
}

func TestCreateMarket_CreationLock(t *testing.T) {
	l := &testLock{}
	env := setupWithLock(t, l)

	for i := 0; i < 3; i++ {
		_, err := env.registry.CreateMarket(env.ctx, env.newConfig(t, common.NewRandomTestAccount(t)))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, l.acquires)
	assert.Equal(t, 3, l.unlocks)
	assert.False(t, l.IsLocked())

	// Validation failures never touch the lock
	config := env.newConfig(t, common.NewRandomTestAccount(t))
	config.ReserveRatio = 0
	_, err := env.registry.CreateMarket(env.ctx, config)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 3, l.acquires)
}

func TestCreateMarket_CreationLockFailures(t *testing.T) {
	l := &testLock{acquireErr: errors.New("etcd unavailable")}
	env := setupWithLock(t, l)

	creator := common.NewRandomTestAccount(t)
	_, err := env.registry.CreateMarket(env.ctx, env.newConfig(t, creator))
	require.Error(t, err)

	count, err := env.registry.Count(env.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	l.acquireErr = nil
	l.lost = true
	_, err = env.registry.CreateMarket(env.ctx, env.newConfig(t, creator))
	require.Error(t, err)
	assert.False(t, l.IsLocked())

	count, err = env.registry.Count(env.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	l.lost = false
	_, err = env.registry.CreateMarket(env.ctx, env.newConfig(t, creator))
	require.NoError(t, err)
}

func TestGetMarketByCreator_Cached(t *testing.T) {
	env := setup(t)
	creator := common.NewRandomTestAccount(t)

	created, err := env.registry.CreateMarket(env.ctx, env.newConfig(t, creator))
	require.NoError(t, err)

	address, ok := env.registry.creators.Retrieve(creator.String())
	require.True(t, ok)
	assert.Equal(t, created.Address(), address)

	// A fresh registry over the same store fills the cache on first lookup
	other, err := New(env.ctx, env.data, env.ledger, market.NewAuthorityAuthorizer(), withManualTestOverrides(&testOverrides{
		address:     env.address.String(),
		reserveMint: env.mint.String(),
	}))
	require.NoError(t, err)

	_, ok = other.creators.Retrieve(creator.String())
	require.False(t, ok)

	for i := 0; i < 2; i++ {
		m, err := other.GetMarketByCreator(env.ctx, creator)
		require.NoError(t, err)
		assert.Equal(t, created.Address(), m.Address())
	}

	_, ok = other.creators.Retrieve(creator.String())
	assert.True(t, ok)
}

// staleCountProvider undercounts markets to mimic another process claiming
// the next index between the count and the save
type staleCountProvider struct {
	data.Provider
	stale int
}

func (p *staleCountProvider) CountMarkets(ctx context.Context) (uint64, error) {
	count, err := p.Provider.CountMarkets(ctx)
	if err != nil || p.stale == 0 || count == 0 {
		return count, err
	}
	p.stale--
	return count - 1, nil
}

func TestCreateMarket_RetriesTakenIndex(t *testing.T) {
	env := setup(t)
	provider := &staleCountProvider{Provider: env.data}

	r, err := New(env.ctx, provider, env.ledger, market.NewAuthorityAuthorizer(), withManualTestOverrides(&testOverrides{
		address:     env.address.String(),
		reserveMint: env.mint.String(),
	}))
	require.NoError(t, err)

	_, err = r.CreateMarket(env.ctx, env.newConfig(t, common.NewRandomTestAccount(t)))
	require.NoError(t, err)

	provider.stale = 1
	m, err := r.CreateMarket(env.ctx, env.newConfig(t, common.NewRandomTestAccount(t)))
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.Snapshot().Index)

	provider.stale = maxIndexAttempts
	_, err = r.CreateMarket(env.ctx, env.newConfig(t, common.NewRandomTestAccount(t)))
	assert.ErrorIs(t, err, errIndexTaken)
}
