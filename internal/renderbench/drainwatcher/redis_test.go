package drainwatcher

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/renderbench/internal/common/benchmarkerrors"
	"github.com/armadaproject/renderbench/internal/common/runcontext"
)

func TestRedisListSource_Depth(t *testing.T) {
	withRedis(func(client *redis.Client) {
		source := NewRedisListSource(client, "render:jobs")
		assert.Equal(t, "render:jobs", source.Name())

		depth, err := source.Depth(runcontext.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(0), depth)

		require.NoError(t, client.LPush("render:jobs", "a", "b", "c").Err())
		depth, err = source.Depth(runcontext.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3), depth)

		require.NoError(t, client.RPop("render:jobs").Err())
		depth, err = source.Depth(runcontext.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(2), depth)
	})
}

func TestRedisListSource_WrongType(t *testing.T) {
	withRedis(func(client *redis.Client) {
		require.NoError(t, client.Set("render:jobs", "not a list", 0).Err())
		_, err := NewRedisListSource(client, "render:jobs").Depth(runcontext.Background())
		assert.Error(t, err)
	})
}

func TestRedisListSource_Cancelled(t *testing.T) {
	withRedis(func(client *redis.Client) {
		require.NoError(t, client.LPush("render:jobs", "a").Err())
		ctx, cancel := runcontext.WithCancel(runcontext.Background())
		cancel()

		_, err := NewRedisListSource(client, "render:jobs").Depth(ctx)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.True(t, benchmarkerrors.IsInterrupted(err))
	})
}

func TestWithContext_BindsClient(t *testing.T) {
	withRedis(func(client *redis.Client) {
		ctx := context.WithValue(context.Background(), contextKey{}, "render")
		bound, ok := withContext(ctx, client).(*redis.Client)
		require.True(t, ok)
		assert.Equal(t, "render", bound.Context().Value(contextKey{}))
	})
}

type contextKey struct{}

func withRedis(action func(client *redis.Client)) {
	db, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer db.Close()
	client := redis.NewClient(&redis.Options{Addr: db.Addr()})
	defer client.Close()
	action(client)
}
