package redis

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/config"
	"github.com/go-redis/redis/v8"
)

func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	addr := cfg.Redis.RedisAddr
	if addr == "" {
		addr = ":6379"
	}

	opts := &redis.Options{
		Addr:         addr,
		Password:     cfg.Redis.RedisPassword,
		DB:           cfg.Redis.DB,
		MinIdleConns: cfg.Redis.MinIdleConns,
		PoolSize:     cfg.Redis.PoolSize,
		PoolTimeout:  time.Duration(cfg.Redis.PoolTimeout) * time.Second,
	}
	if cfg.Redis.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
