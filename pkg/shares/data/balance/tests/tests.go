package tests

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dibs-shares/shares-server/pkg/curve"
	"github.com/dibs-shares/shares-server/pkg/shares/data/balance"
)

func RunTests(t *testing.T, s balance.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s balance.Store){
		testRoundTrip,
		testUpdateStaleRecord,
		testStorageRange,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s balance.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		actual, err := s.Get(ctx, "test_mint", "test_owner")
		require.Error(t, err)
		assert.Equal(t, balance.ErrNotFound, err)
		assert.Nil(t, actual)

		expected := &balance.Record{
			Mint:   "test_mint",
			Owner:  "test_owner",
			Quarks: 12345,
		}
		require.NoError(t, s.Save(ctx, expected))
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 1, expected.Version)
		assert.False(t, expected.LastUpdatedAt.IsZero())

		actual, err = s.Get(ctx, "test_mint", "test_owner")
		require.NoError(t, err)
		assert.Equal(t, expected.Mint, actual.Mint)
		assert.Equal(t, expected.Owner, actual.Owner)
		assert.EqualValues(t, 12345, actual.Quarks)
		assert.EqualValues(t, 1, actual.Version)

		expected.Quarks = 0
		require.NoError(t, s.Save(ctx, expected))
		assert.EqualValues(t, 2, expected.Version)

		actual, err = s.Get(ctx, "test_mint", "test_owner")
		require.NoError(t, err)
		assert.EqualValues(t, 0, actual.Quarks)
		assert.EqualValues(t, 2, actual.Version)

		_, err = s.Get(ctx, "other_mint", "test_owner")
		assert.Equal(t, balance.ErrNotFound, err)
	})
}

func testUpdateStaleRecord(t *testing.T, s balance.Store) {
	t.Run("testUpdateStaleRecord", func(t *testing.T) {
		ctx := context.Background()

		expected := &balance.Record{
			Mint:   "test_mint",
			Owner:  "test_owner",
			Quarks: 10,
		}
		require.NoError(t, s.Save(ctx, expected))

		// A second writer that never saw the first one
		concurrent := &balance.Record{
			Mint:   "test_mint",
			Owner:  "test_owner",
			Quarks: 500,
		}
		assert.Equal(t, balance.ErrStaleVersion, s.Save(ctx, concurrent))

		stale := expected.Clone()
		stale.Quarks = 1_000
		stale.Version -= 1
		assert.Equal(t, balance.ErrStaleVersion, s.Save(ctx, &stale))

		actual, err := s.Get(ctx, "test_mint", "test_owner")
		require.NoError(t, err)
		assert.EqualValues(t, 10, actual.Quarks)
	})
}

func testStorageRange(t *testing.T, s balance.Store) {
	t.Run("testStorageRange", func(t *testing.T) {
		ctx := context.Background()

		err := s.Save(ctx, &balance.Record{
			Mint:   "test_mint",
			Owner:  "test_owner",
			Quarks: math.MaxInt64 + 1,
		})
		assert.ErrorIs(t, err, curve.ErrArithmeticOverflow)

		_, err = s.Get(ctx, "test_mint", "test_owner")
		assert.Equal(t, balance.ErrNotFound, err)

		require.NoError(t, s.Save(ctx, &balance.Record{
			Mint:   "test_mint",
			Owner:  "test_owner",
			Quarks: math.MaxInt64,
		}))
	})
}
