package tests

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dibs-shares/shares-server/pkg/curve"
	"github.com/dibs-shares/shares-server/pkg/database/query"
	"github.com/dibs-shares/shares-server/pkg/shares/data/market"
)

func RunTests(t *testing.T, s market.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s market.Store){
		testRoundTrip,
		testUpdateHappyPath,
		testUpdateStaleRecord,
		testUniqueness,
		testGetAllAndCount,
		testStorageRange,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s market.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		actual, err := s.GetByAddress(ctx, "test_address")
		require.Error(t, err)
		assert.Equal(t, market.ErrNotFound, err)
		assert.Nil(t, actual)

		actual, err = s.GetByCreator(ctx, "test_creator")
		require.Error(t, err)
		assert.Equal(t, market.ErrNotFound, err)
		assert.Nil(t, actual)

		actual, err = s.GetByIndex(ctx, 0)
		require.Error(t, err)
		assert.Equal(t, market.ErrNotFound, err)
		assert.Nil(t, actual)

		expected := newTestRecord(0)
		cloned := expected.Clone()
		err = s.Save(ctx, expected)
		require.NoError(t, err)
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 1, expected.Version)

		actual, err = s.GetByAddress(ctx, expected.Address)
		require.NoError(t, err)
		assertEquivalentRecords(t, &cloned, actual)

		actual, err = s.GetByCreator(ctx, expected.Creator)
		require.NoError(t, err)
		assertEquivalentRecords(t, &cloned, actual)

		actual, err = s.GetByIndex(ctx, 0)
		require.NoError(t, err)
		assertEquivalentRecords(t, &cloned, actual)
	})
}

func testUpdateHappyPath(t *testing.T, s market.Store) {
	t.Run("testUpdateHappyPath", func(t *testing.T) {
		ctx := context.Background()

		expected := newTestRecord(0)
		require.NoError(t, s.Save(ctx, expected))

		expected.ContinuousSupply = 1_000
		expected.ReserveBalance = 50
		expected.CreatorFeesAccrued = 3
		expected.BeneficiaryFeesAccrued = 2
		expected.IsPaused = true

		// Immutable fields are ignored on update
		expected.Name = "renamed"

		require.NoError(t, s.Save(ctx, expected))
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 2, expected.Version)

		actual, err := s.GetByAddress(ctx, expected.Address)
		require.NoError(t, err)
		assert.EqualValues(t, 1_000, actual.ContinuousSupply)
		assert.EqualValues(t, 50, actual.ReserveBalance)
		assert.EqualValues(t, 3, actual.CreatorFeesAccrued)
		assert.EqualValues(t, 2, actual.BeneficiaryFeesAccrued)
		assert.True(t, actual.IsPaused)
		assert.Equal(t, "test_name", actual.Name)
		assert.EqualValues(t, 2, actual.Version)
	})
}

func testUpdateStaleRecord(t *testing.T, s market.Store) {
	t.Run("testUpdateStaleRecord", func(t *testing.T) {
		ctx := context.Background()

		expected := newTestRecord(0)
		require.NoError(t, s.Save(ctx, expected))

		stale := expected.Clone()
		stale.ContinuousSupply = 100
		stale.ReserveBalance = 100
		stale.Version -= 1

		err := s.Save(ctx, &stale)
		assert.Equal(t, market.ErrStaleVersion, err)

		actual, err := s.GetByAddress(ctx, expected.Address)
		require.NoError(t, err)
		assert.EqualValues(t, 0, actual.ContinuousSupply)
		assert.EqualValues(t, 1, actual.Version)
	})
}

func testUniqueness(t *testing.T, s market.Store) {
	t.Run("testUniqueness", func(t *testing.T) {
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, newTestRecord(0)))

		sameCreator := newTestRecord(1)
		sameCreator.Creator = "test_creator_0"
		assert.Equal(t, market.ErrExists, s.Save(ctx, sameCreator))

		sameIndex := newTestRecord(1)
		sameIndex.Index = 0
		assert.Equal(t, market.ErrExists, s.Save(ctx, sameIndex))

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})
}

func testGetAllAndCount(t *testing.T, s market.Store) {
	t.Run("testGetAllAndCount", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetAll(ctx, query.EmptyCursor, 10, query.Ascending)
		assert.Equal(t, market.ErrNotFound, err)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)

		var expected []*market.Record
		for i := 0; i < 5; i++ {
			record := newTestRecord(uint64(i))
			require.NoError(t, s.Save(ctx, record))
			expected = append(expected, record)
		}

		count, err = s.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 5, count)

		actual, err := s.GetAll(ctx, query.EmptyCursor, 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 5)
		for i, record := range actual {
			assertEquivalentRecords(t, expected[i], record)
		}

		actual, err = s.GetAll(ctx, query.EmptyCursor, 2, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assert.Equal(t, expected[0].Address, actual[0].Address)
		assert.Equal(t, expected[1].Address, actual[1].Address)

		actual, err = s.GetAll(ctx, query.ToCursor(actual[1].Id), 2, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assert.Equal(t, expected[2].Address, actual[0].Address)
		assert.Equal(t, expected[3].Address, actual[1].Address)

		actual, err = s.GetAll(ctx, query.ToCursor(expected[4].Id), 2, query.Ascending)
		assert.Equal(t, market.ErrNotFound, err)
		assert.Nil(t, actual)

		actual, err = s.GetAll(ctx, query.EmptyCursor, 10, query.Descending)
		require.NoError(t, err)
		require.Len(t, actual, 5)
		assert.Equal(t, expected[4].Address, actual[0].Address)
		assert.Equal(t, expected[0].Address, actual[4].Address)
	})
}

func newTestRecord(index uint64) *market.Record {
	return &market.Record{
		Address:     fmt.Sprintf("test_address_%d", index),
		Index:       index,
		Creator:     fmt.Sprintf("test_creator_%d", index),
		Beneficiary: "test_beneficiary",
		Authority:   "test_authority",

		Name:        "test_name",
		Symbol:      "TEST",
		ReserveMint: "test_reserve_mint",

		ReserveRatio:  500_000,
		InitialSupply: 10_000_000_000_000_000,
		InitialPrice:  10_000,
		MaxSupply:     0,

		BuyFeeBps:          100,
		SellFeeBps:         100,
		CreatorFeeShareBps: 5_000,

		CreatedAt: time.Now(),
	}
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *market.Record) {
	assert.Equal(t, obj1.Address, obj2.Address)
	assert.Equal(t, obj1.Index, obj2.Index)
	assert.Equal(t, obj1.Creator, obj2.Creator)
	assert.Equal(t, obj1.Beneficiary, obj2.Beneficiary)
	assert.Equal(t, obj1.Authority, obj2.Authority)
	assert.Equal(t, obj1.Name, obj2.Name)
	assert.Equal(t, obj1.Symbol, obj2.Symbol)
	assert.Equal(t, obj1.ReserveMint, obj2.ReserveMint)
	assert.Equal(t, obj1.ReserveRatio, obj2.ReserveRatio)
	assert.Equal(t, obj1.InitialSupply, obj2.InitialSupply)
	assert.Equal(t, obj1.InitialPrice, obj2.InitialPrice)
	assert.Equal(t, obj1.MaxSupply, obj2.MaxSupply)
	assert.Equal(t, obj1.BuyFeeBps, obj2.BuyFeeBps)
	assert.Equal(t, obj1.SellFeeBps, obj2.SellFeeBps)
	assert.Equal(t, obj1.CreatorFeeShareBps, obj2.CreatorFeeShareBps)
	assert.Equal(t, obj1.ContinuousSupply, obj2.ContinuousSupply)
	assert.Equal(t, obj1.ReserveBalance, obj2.ReserveBalance)
	assert.Equal(t, obj1.CreatorFeesAccrued, obj2.CreatorFeesAccrued)
	assert.Equal(t, obj1.BeneficiaryFeesAccrued, obj2.BeneficiaryFeesAccrued)
	assert.Equal(t, obj1.IsPaused, obj2.IsPaused)
	assert.Equal(t, obj1.CreatedAt.Unix(), obj2.CreatedAt.Unix())
}

func testStorageRange(t *testing.T, s market.Store) {
	t.Run("testStorageRange", func(t *testing.T) {
		ctx := context.Background()

		expected := newTestRecord(0)
		require.NoError(t, s.Save(ctx, expected))

		updated := expected.Clone()
		updated.ContinuousSupply = math.MaxInt64 + 1
		updated.ReserveBalance = 1
		assert.ErrorIs(t, s.Save(ctx, &updated), curve.ErrArithmeticOverflow)

		updated = expected.Clone()
		updated.CreatorFeesAccrued = math.MaxInt64 + 1
		assert.ErrorIs(t, s.Save(ctx, &updated), curve.ErrArithmeticOverflow)

		actual, err := s.GetByAddress(ctx, expected.Address)
		require.NoError(t, err)
		assert.Equal(t, expected.Version, actual.Version)
		assert.Zero(t, actual.ContinuousSupply)
		assert.Zero(t, actual.CreatorFeesAccrued)

		tooLarge := newTestRecord(1)
		tooLarge.MaxSupply = math.MaxUint64
		assert.ErrorIs(t, s.Save(ctx, tooLarge), curve.ErrArithmeticOverflow)

		_, err = s.GetByIndex(ctx, 1)
		assert.Equal(t, market.ErrNotFound, err)
	})
}
