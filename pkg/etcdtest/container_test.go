//go:build integration

package etcdtest

import (
	"context"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/require"
	v3 "go.etcd.io/etcd/client/v3"
)

func TestStartEtcd(t *testing.T) {
	ctx := context.Background()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	client, teardown, err := StartEtcd(pool)
	require.NoError(t, err)
	defer teardown()

	_, err = client.Put(ctx, "/markets/lock", "held")
	require.NoError(t, err)

	get, err := client.Get(ctx, "/markets/", v3.WithPrefix())
	require.NoError(t, err)
	require.Len(t, get.Kvs, 1)
	require.Equal(t, "held", string(get.Kvs[0].Value))
}
