package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMarketAddress(t *testing.T) {
	registry := NewRandomTestAccount(t)
	creator1 := NewRandomTestAccount(t)
	creator2 := NewRandomTestAccount(t)

	address1, bump1, err := GetMarketAddress(registry, creator1)
	require.NoError(t, err)

	again, bump, err := GetMarketAddress(registry, creator1)
	require.NoError(t, err)
	assert.True(t, address1.Equals(again))
	assert.Equal(t, bump1, bump)

	address2, _, err := GetMarketAddress(registry, creator2)
	require.NoError(t, err)
	assert.False(t, address1.Equals(address2))

	otherRegistry, _, err := GetMarketAddress(NewRandomTestAccount(t), creator1)
	require.NoError(t, err)
	assert.False(t, address1.Equals(otherRegistry))

	// Derived addresses never have a private key
	_, err = CreateDerivedAddress(registry.PublicKey().ToBytes(), []byte(marketSeedPrefix), creator1.PublicKey().ToBytes(), []byte{bump1})
	require.NoError(t, err)

	_, _, err = GetMarketAddress(nil, creator1)
	assert.Error(t, err)
}

func TestCreateDerivedAddress_Limits(t *testing.T) {
	namespace := NewRandomTestAccount(t).PublicKey().ToBytes()

	_, err := CreateDerivedAddress(namespace, make([]byte, maxSeedLength+1))
	assert.Equal(t, ErrMaxSeedLengthExceeded, err)

	seeds := make([][]byte, maxSeeds+1)
	_, err = CreateDerivedAddress(namespace, seeds...)
	assert.Equal(t, ErrTooManySeeds, err)
}
