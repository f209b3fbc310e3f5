// Package redis implements the Redis side of the leveling engine: the
// event claim guard, the rolling-window XP limiter and the leaderboard
// read model.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Addr is the Redis server address in "host:port" form.
	Addr string

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number.
	DB int

	// KeyPrefix namespaces every key written by this package.
	KeyPrefix string

	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		KeyPrefix:    "lvl:",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client wraps a go-redis client together with the key namespace.
type Client struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewClient connects to Redis and verifies the connection with PING.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, classify("connect", err)
	}
	return &Client{rdb: rdb, prefix: cfg.KeyPrefix}, nil
}

// NewClientFrom wraps an existing go-redis client.
func NewClientFrom(rdb redis.UniversalClient, prefix string) *Client {
	return &Client{rdb: rdb, prefix: prefix}
}

// Redis returns the underlying client.
func (c *Client) Redis() redis.UniversalClient {
	return c.rdb
}

// Ping checks if Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return classify("ping", c.rdb.Ping(ctx).Err())
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ══════════════════════════════════════════════════════════════════════════════
// KEYS
// ══════════════════════════════════════════════════════════════════════════════

func (c *Client) eventKey(eventID string) string {
	return c.prefix + "event:" + eventID
}

func (c *Client) limitKey(key leveling.MemberKey) string {
	return c.prefix + "xp:" + strconv.FormatInt(key.ChatID, 10) + ":" + strconv.FormatInt(key.UserID, 10)
}

func (c *Client) leaderboardKey(chatID int64) string {
	return c.prefix + "lb:" + strconv.FormatInt(chatID, 10)
}

func (c *Client) leaderboardInfoKey(chatID int64) string {
	return c.prefix + "lb:info:" + strconv.FormatInt(chatID, 10)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// classify maps go-redis failures onto the shared error kinds so callers can
// decide whether to retry.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var kind error
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = shared.ErrTimeout
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, redis.ErrClosed), errors.As(err, &netErr):
		kind = shared.ErrServiceUnavailable
	case errors.Is(err, redis.TxFailedErr):
		kind = shared.ErrConcurrentModification
	default:
		return fmt.Errorf("redis: failed to %s: %w", op, err)
	}
	return fmt.Errorf("redis: failed to %s: %w", op, errors.Join(kind, err))
}
