package env

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dibs-shares/shares-server/pkg/config"
)

func TestConfig(t *testing.T) {
	const key = "SHARES_ENV_CONFIG_TEST_VAR"
	ctx := context.Background()

	t.Setenv(key, "42")

	v, err := NewConfig(key).Get(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []byte("42"), v)

	assert.Equal(t, "42", NewStringConfig(key, "default").Get(ctx))
	assert.EqualValues(t, 42, NewUint64Config(key, 7).Get(ctx))

	t.Setenv(key, "")

	v, err = NewConfig(key).Get(ctx)
	assert.Nil(t, v)
	assert.Equal(t, config.ErrNoValue, err)
	assert.EqualValues(t, 7, NewUint64Config(key, 7).Get(ctx))
}
