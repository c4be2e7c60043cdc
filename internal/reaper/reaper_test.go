package reaper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jogardn/food-storefront/internal/events"
	"github.com/jogardn/food-storefront/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	pending []string
	cutoffs []time.Time
	err     error
}

func (f *fakeStore) ExpirePendingBefore(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return nil, f.err
	}
	n := limit
	if n > len(f.pending) {
		n = len(f.pending)
	}
	batch := f.pending[:n]
	f.pending = f.pending[n:]
	return batch, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.OrderEvent
}

func (r *recorder) Publish(_ context.Context, evt events.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func TestSweepExpiresInBatchesAndAnnounces(t *testing.T) {
	logger, _ := test.NewNullLogger()
	st := &fakeStore{}
	for i := 0; i < 5; i++ {
		st.pending = append(st.pending, fmt.Sprintf("order-%d", i))
	}
	pub := &recorder{}
	m := metrics.New(prometheus.NewRegistry())

	s := NewSweeper(st, pub, Config{PendingTTL: 2 * time.Hour, BatchSize: 2}, logger)
	s.SetMetrics(m)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, result.Expired)
	assert.Equal(t, 3, result.Batches)
	assert.Equal(t, now.Add(-2*time.Hour), result.Cutoff)
	for _, c := range st.cutoffs {
		assert.Equal(t, result.Cutoff, c)
	}
	require.Len(t, pub.events, 5)
	assert.Equal(t, events.OrderExpired, pub.events[0].Type)
	assert.Equal(t, "order-0", pub.events[0].OrderID)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.OrdersExpired))
}

func TestSweepWithNothingToDo(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewSweeper(&fakeStore{}, nil, Config{PendingTTL: time.Hour}, logger)

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Expired)
	assert.Equal(t, 1, result.Batches)
}

func TestSweepSurfacesStoreError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewSweeper(&fakeStore{err: errors.New("db down")}, nil, Config{PendingTTL: time.Hour}, logger)

	_, err := s.Sweep(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestSweepRejectsNonPositiveTTL(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewSweeper(&fakeStore{}, nil, Config{}, logger)

	_, err := s.Sweep(context.Background())
	assert.Error(t, err)
}

func TestRunStopsWithContext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	st := &fakeStore{pending: []string{"order-1"}}
	s := NewSweeper(st, nil, Config{PendingTTL: time.Hour}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return len(st.pending) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
