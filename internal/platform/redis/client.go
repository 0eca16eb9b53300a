// Package redis opens the go-redis client used by the redis blob bucket.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"trailhead/internal/platform/config"
	"trailhead/pkg/platform/sentinel"
)

type Client struct {
	*redis.Client
}

// Options turns cfg into go-redis options. Zero pool and timeout values keep the
// go-redis defaults.
func Options(cfg config.RedisConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if d := cfg.DialTimeout.Std(); d > 0 {
		opts.DialTimeout = d
	}
	if d := cfg.ReadTimeout.Std(); d > 0 {
		opts.ReadTimeout = d
	}
	if d := cfg.WriteTimeout.Std(); d > 0 {
		opts.WriteTimeout = d
	}
	opts.ClientName = "trailhead"
	return opts, nil
}

// New connects and pings. It returns a nil client when no URL is configured. A
// failed ping matches sentinel.ErrUnavailable.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{Client: redis.NewClient(opts)}
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w: %w", opts.Addr, sentinel.ErrUnavailable, err)
	}
	return c, nil
}
