// Package redis backs the mark-price cache, the single-instance lock, the
// oracle rate limiter and the event bus with go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key the agent writes.
const DefaultKeyPrefix = "futuresbot:"

const (
	clientName  = "futuresbot"
	dialTimeout = 5 * time.Second
	pingTimeout = 3 * time.Second
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	KeyPrefix  string
}

// Client owns the connection pool shared by the cache, lock, limiter and
// bus adapters in this package. Every key it hands out carries the prefix.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// New connects and verifies the server answers within pingTimeout.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		ClientName:  clientName,
		DialTimeout: dialTimeout,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", cfg.Addr, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Client{rdb: rdb, prefix: prefix}, nil
}

// Close releases the pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// key joins parts with ":" behind the client prefix, e.g.
// futuresbot:price:BTCUSDT.
func (c *Client) key(parts ...string) string {
	return c.prefix + strings.Join(parts, ":")
}
