package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// NewRandomTestAccount is a test helper generating a fresh account.
func NewRandomTestAccount(t *testing.T) *Account {
	account, err := NewRandomAccount()
	require.NoError(t, err)
	return account
}
