package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RoutesKey is the hash holding callsign → origin
const RoutesKey = "routes"

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// Client manages Redis connections and operations
type Client struct {
	client RedisClientInterface
}

// New creates a new Redis client
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// StoreRoutes merges routes into the routes hash
func (c *Client) StoreRoutes(ctx context.Context, routes map[string]string) error {
	if len(routes) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(routes)*2)
	for callsign, origin := range routes {
		values = append(values, callsign, origin)
	}
	if err := c.client.HSet(ctx, RoutesKey, values...).Err(); err != nil {
		return fmt.Errorf("failed to store routes: %w", err)
	}
	return nil
}

// LoadRoutes returns the routes hash. A missing hash yields an empty map.
func (c *Client) LoadRoutes(ctx context.Context) (map[string]string, error) {
	routes, err := c.client.HGetAll(ctx, RoutesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}
	return routes, nil
}

// Heartbeat returns the value last written by a Sentinel, if any
func (c *Client) Heartbeat(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get heartbeat: %w", err)
	}
	return val, true, nil
}

// Sentinel is a liveness signal kept in a Redis key that expires unless
// refreshed. Whoever supervises the process watches the key.
type Sentinel struct {
	client *Client
	key    string
	ttl    time.Duration
	now    func() time.Time
}

// NewSentinel creates a sentinel writing key with the given TTL
func NewSentinel(client *Client, key string, ttl time.Duration) *Sentinel {
	return &Sentinel{client: client, key: key, ttl: ttl, now: time.Now}
}

// Refresh writes the current time to the key and resets its TTL
func (s *Sentinel) Refresh(ctx context.Context) error {
	value := s.now().UTC().Format(time.RFC3339)
	if err := s.client.client.Set(ctx, s.key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh sentinel: %w", err)
	}
	return nil
}

// Clear removes the key
func (s *Sentinel) Clear(ctx context.Context) error {
	return s.client.client.Del(ctx, s.key).Err()
}
