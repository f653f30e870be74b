package dxinstrument

import (
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

type Option func(*options)

type options struct {
	logger      *log.Helper
	redisClient *redis.Client // 标的定义缓存, 可为空
	cacheTTL    time.Duration
}

func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = log.NewHelper(logger)
	}
}

func WithRedisClient(client *redis.Client) Option {
	return func(o *options) {
		o.redisClient = client
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.cacheTTL = ttl
	}
}
