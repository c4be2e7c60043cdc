package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jogardn/food-storefront/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	RestaurantListKey = "restaurant-list"
	RestaurantListTTL = time.Hour
	MenuTTL           = 30 * time.Minute
)

func MenuKey(restaurantID string) string {
	return "menu:" + restaurantID
}

// ReadThrough serves catalog reads from Redis and falls back to a loader on
// a miss. Redis failures are logged and never fail the read.
type ReadThrough struct {
	client  redis.Cmdable
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

func New(client redis.Cmdable, logger *logrus.Logger) *ReadThrough {
	return &ReadThrough{client: client, logger: logger}
}

func (c *ReadThrough) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// NewRedisClient connects to addr and checks the connection once.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (c *ReadThrough) observe(result string) {
	if c.metrics != nil {
		c.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

// Get returns the cached value for key or the result of load, which is then
// stored for ttl. Loader errors are returned and never cached.
func Get[T any](ctx context.Context, c *ReadThrough, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	logger := c.logger.WithField("key", key)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached T
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			c.observe("hit")
			logger.Debug("Cache hit")
			return cached, nil
		}
		logger.Warn("Discarding undecodable cache entry")
		c.observe("miss")
	case errors.Is(err, redis.Nil):
		c.observe("miss")
		logger.Debug("Cache miss")
	default:
		c.observe("error")
		logger.WithError(err).Warn("Cache read failed, falling back to store")
		return load(ctx)
	}

	fresh, err := load(ctx)
	if err != nil {
		return fresh, err
	}

	encoded, err := json.Marshal(fresh)
	if err != nil {
		logger.WithError(err).Warn("Failed to encode cache entry")
		return fresh, nil
	}
	if err := c.client.Set(ctx, key, encoded, ttl).Err(); err != nil {
		logger.WithError(err).Warn("Cache write failed")
	}
	return fresh, nil
}
