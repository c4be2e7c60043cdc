package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jogardn/food-storefront/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type restaurant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T) (*ReadThrough, *miniredis.Miniredis, *metrics.Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger, _ := test.NewNullLogger()
	m := metrics.New(prometheus.NewRegistry())
	c := New(client, logger)
	c.SetMetrics(m)
	return c, mr, m
}

func countingLoader(calls *int, value []restaurant) func(context.Context) ([]restaurant, error) {
	return func(context.Context) ([]restaurant, error) {
		*calls++
		return value, nil
	}
}

func TestGetMissThenHit(t *testing.T) {
	c, mr, m := newTestCache(t)
	want := []restaurant{{ID: "r1", Name: "Burger Joint"}}
	calls := 0

	got, err := Get(context.Background(), c, RestaurantListKey, RestaurantListTTL, countingLoader(&calls, want))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = Get(context.Background(), c, RestaurantListKey, RestaurantListTTL, countingLoader(&calls, nil))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Equal(t, 1, calls)
	assert.Equal(t, RestaurantListTTL, mr.TTL(RestaurantListKey))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
}

func TestGetCachesEmptyResult(t *testing.T) {
	c, mr, _ := newTestCache(t)
	calls := 0

	for i := 0; i < 2; i++ {
		got, err := Get(context.Background(), c, MenuKey("r1"), MenuTTL, countingLoader(&calls, []restaurant{}))
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Equal(t, 1, calls)
	assert.True(t, mr.Exists("menu:r1"))
	assert.Equal(t, MenuTTL, mr.TTL("menu:r1"))
}

func TestGetDegradesWhenRedisIsDown(t *testing.T) {
	c, mr, m := newTestCache(t)
	mr.Close()
	want := []restaurant{{ID: "r1"}}
	calls := 0

	got, err := Get(context.Background(), c, RestaurantListKey, time.Hour, countingLoader(&calls, want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("error")))
}

func TestGetDoesNotCacheLoaderErrors(t *testing.T) {
	c, mr, _ := newTestCache(t)
	boom := errors.New("store down")

	_, err := Get(context.Background(), c, RestaurantListKey, time.Hour, func(context.Context) ([]restaurant, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(RestaurantListKey))
}

func TestGetReplacesUndecodableEntry(t *testing.T) {
	c, mr, _ := newTestCache(t)
	require.NoError(t, mr.Set(RestaurantListKey, "not json"))
	want := []restaurant{{ID: "r2"}}
	calls := 0

	got, err := Get(context.Background(), c, RestaurantListKey, time.Hour, countingLoader(&calls, want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, calls)

	raw, err := mr.Get(RestaurantListKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"r2","name":""}]`, raw)
}

func TestNilCacheCallsLoader(t *testing.T) {
	calls := 0
	_, err := Get(context.Background(), nil, RestaurantListKey, time.Hour, countingLoader(&calls, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
