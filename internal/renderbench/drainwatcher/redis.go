package drainwatcher

import (
	"context"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/armadaproject/renderbench/internal/common/runcontext"
)

// RedisLister is the subset of the redis client used to read queue depth.
type RedisLister interface {
	LLen(key string) *redis.IntCmd
}

// RedisListSource reads the length of a redis list that workers pop jobs from.
type RedisListSource struct {
	client RedisLister
	key    string
}

func NewRedisListSource(client RedisLister, key string) *RedisListSource {
	return &RedisListSource{client: client, key: key}
}

func (s *RedisListSource) Name() string {
	return s.key
}

func (s *RedisListSource) Depth(ctx *runcontext.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := withContext(ctx, s.client).LLen(s.key).Result()
	if err != nil {
		if ctx.Err() != nil {
			return 0, errors.WithStack(ctx.Err())
		}
		return 0, errors.WithStack(err)
	}
	return n, nil
}

// withContext binds ctx to the clients go-redis can scope to a context.
func withContext(ctx context.Context, client RedisLister) RedisLister {
	switch c := client.(type) {
	case *redis.Client:
		return c.WithContext(ctx)
	case *redis.ClusterClient:
		return c.WithContext(ctx)
	case *redis.Ring:
		return c.WithContext(ctx)
	}
	return client
}
