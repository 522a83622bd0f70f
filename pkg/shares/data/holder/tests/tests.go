package tests

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dibs-shares/shares-server/pkg/curve"
	"github.com/dibs-shares/shares-server/pkg/database/query"
	"github.com/dibs-shares/shares-server/pkg/shares/data/holder"
)

func RunTests(t *testing.T, s holder.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s holder.Store){
		testRoundTrip,
		testUpdateStaleRecord,
		testGetAllByMarket,
		testStorageRange,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s holder.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		actual, err := s.Get(ctx, "test_market", "test_owner")
		require.Error(t, err)
		assert.Equal(t, holder.ErrNotFound, err)
		assert.Nil(t, actual)

		expected := &holder.Record{
			Market:  "test_market",
			Owner:   "test_owner",
			Balance: 12345,
		}
		require.NoError(t, s.Save(ctx, expected))
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 1, expected.Version)

		actual, err = s.Get(ctx, "test_market", "test_owner")
		require.NoError(t, err)
		assert.Equal(t, expected.Market, actual.Market)
		assert.Equal(t, expected.Owner, actual.Owner)
		assert.EqualValues(t, 12345, actual.Balance)
		assert.EqualValues(t, 1, actual.Version)

		expected.Balance = 0
		require.NoError(t, s.Save(ctx, expected))
		assert.EqualValues(t, 2, expected.Version)

		actual, err = s.Get(ctx, "test_market", "test_owner")
		require.NoError(t, err)
		assert.EqualValues(t, 0, actual.Balance)
		assert.EqualValues(t, 2, actual.Version)

		_, err = s.Get(ctx, "other_market", "test_owner")
		assert.Equal(t, holder.ErrNotFound, err)
	})
}

func testUpdateStaleRecord(t *testing.T, s holder.Store) {
	t.Run("testUpdateStaleRecord", func(t *testing.T) {
		ctx := context.Background()

		expected := &holder.Record{
			Market:  "test_market",
			Owner:   "test_owner",
			Balance: 10,
		}
		require.NoError(t, s.Save(ctx, expected))

		stale := expected.Clone()
		stale.Balance = 1_000
		stale.Version -= 1
		assert.Equal(t, holder.ErrStaleVersion, s.Save(ctx, &stale))

		actual, err := s.Get(ctx, "test_market", "test_owner")
		require.NoError(t, err)
		assert.EqualValues(t, 10, actual.Balance)
	})
}

func testGetAllByMarket(t *testing.T, s holder.Store) {
	t.Run("testGetAllByMarket", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetAllByMarket(ctx, "test_market", query.EmptyCursor, 10, query.Ascending)
		assert.Equal(t, holder.ErrNotFound, err)

		for i := 0; i < 5; i++ {
			require.NoError(t, s.Save(ctx, &holder.Record{
				Market:  "test_market",
				Owner:   fmt.Sprintf("test_owner_%d", i),
				Balance: uint64(i + 1),
			}))
		}
		require.NoError(t, s.Save(ctx, &holder.Record{
			Market:  "other_market",
			Owner:   "test_owner_0",
			Balance: 1,
		}))

		count, err := s.CountByMarket(ctx, "test_market")
		require.NoError(t, err)
		assert.EqualValues(t, 5, count)

		actual, err := s.GetAllByMarket(ctx, "test_market", query.EmptyCursor, 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 5)
		for i, record := range actual {
			assert.Equal(t, fmt.Sprintf("test_owner_%d", i), record.Owner)
			assert.EqualValues(t, i+1, record.Balance)
		}

		actual, err = s.GetAllByMarket(ctx, "test_market", query.ToCursor(actual[2].Id), 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assert.Equal(t, "test_owner_3", actual[0].Owner)

		actual, err = s.GetAllByMarket(ctx, "test_market", query.EmptyCursor, 2, query.Descending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assert.Equal(t, "test_owner_4", actual[0].Owner)
		assert.Equal(t, "test_owner_3", actual[1].Owner)
	})
}

func testStorageRange(t *testing.T, s holder.Store) {
	t.Run("testStorageRange", func(t *testing.T) {
		ctx := context.Background()

		err := s.Save(ctx, &holder.Record{
			Market:  "test_market",
			Owner:   "test_owner",
			Balance: math.MaxInt64 + 1,
		})
		assert.ErrorIs(t, err, curve.ErrArithmeticOverflow)

		_, err = s.Get(ctx, "test_market", "test_owner")
		assert.Equal(t, holder.ErrNotFound, err)
	})
}
