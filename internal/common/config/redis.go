package config

import (
	"time"

	"github.com/go-redis/redis"
)

// RedisConfig holds connection settings for a redis server, cluster or sentinel group.
// Depth polling issues one command per tick, so the pool can stay small.
type RedisConfig struct {
	// A single address connects to a standalone server, several to a cluster.
	Addrs    []string `validate:"required"`
	DB       int      `validate:"gte=0,lte=16"`
	Password string
	// Set when the addresses point at sentinels.
	MasterName      string
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	PoolSize        int `validate:"required"`
}

func (rc RedisConfig) AsUniversalOptions() *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:           rc.Addrs,
		DB:              rc.DB,
		Password:        rc.Password,
		MasterName:      rc.MasterName,
		MaxRetries:      rc.MaxRetries,
		MinRetryBackoff: rc.MinRetryBackoff,
		MaxRetryBackoff: rc.MaxRetryBackoff,
		DialTimeout:     rc.DialTimeout,
		ReadTimeout:     rc.ReadTimeout,
		PoolSize:        rc.PoolSize,
	}
}
