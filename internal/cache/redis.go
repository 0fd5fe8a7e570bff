package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client caches the public event view served for booking links. The cached
// view is display-only: settlement decisions always query the datastore.
type Client struct {
	rdb      *redis.Client
	eventTTL time.Duration
}

type Config struct {
	Addr     string
	Password string
	EventTTL time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.EventTTL <= 0 {
		cfg.EventTTL = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb, eventTTL: cfg.EventTTL}, nil
}

func eventViewKey(slug string) string {
	return "event:view:" + slug
}

// GetEventViewRaw returns the cached JSON for a public event page
func (c *Client) GetEventViewRaw(ctx context.Context, slug string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, eventViewKey(slug)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("event view not cached")
		}
		return nil, fmt.Errorf("cache lookup error: %w", err)
	}
	return data, nil
}

// SetEventView stores a public event view with a short TTL
func (c *Client) SetEventView(ctx context.Context, slug string, view any) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal event view: %w", err)
	}
	return c.rdb.Set(ctx, eventViewKey(slug), data, c.eventTTL).Err()
}

// InvalidateEventView drops the cached view after a settlement transition
func (c *Client) InvalidateEventView(ctx context.Context, slug string) error {
	return c.rdb.Del(ctx, eventViewKey(slug)).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
