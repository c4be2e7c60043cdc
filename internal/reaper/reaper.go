package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/jogardn/food-storefront/internal/events"
	"github.com/jogardn/food-storefront/internal/metrics"
	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

type Store interface {
	ExpirePendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

type Config struct {
	PendingTTL time.Duration
	BatchSize  int
}

type Result struct {
	Cutoff         time.Time     `json:"cutoff"`
	Expired        int           `json:"expired"`
	Batches        int           `json:"batches"`
	OrderIDs       []string      `json:"order_ids"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// Sweeper expires orders that stayed pending longer than any checkout
// session can live. It covers compensations that never ran, e.g. after a
// crash between order creation and session creation.
type Sweeper struct {
	store     Store
	publisher events.Publisher
	metrics   *metrics.Metrics
	config    Config
	now       func() time.Time
	logger    *logrus.Logger
}

func NewSweeper(store Store, publisher events.Publisher, config Config, logger *logrus.Logger) *Sweeper {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	return &Sweeper{
		store:     store,
		publisher: publisher,
		config:    config,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *Sweeper) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Sweep expires stale pending orders batch by batch until none are left.
func (s *Sweeper) Sweep(ctx context.Context) (*Result, error) {
	if s.config.PendingTTL <= 0 {
		return nil, fmt.Errorf("pending TTL must be positive, got %s", s.config.PendingTTL)
	}
	start := time.Now()
	result := &Result{Cutoff: s.now().Add(-s.config.PendingTTL), OrderIDs: []string{}}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		ids, err := s.store.ExpirePendingBefore(ctx, result.Cutoff, s.config.BatchSize)
		if err != nil {
			return result, fmt.Errorf("failed to expire pending orders: %w", err)
		}
		result.Batches++
		result.Expired += len(ids)
		result.OrderIDs = append(result.OrderIDs, ids...)

		for _, id := range ids {
			s.announce(ctx, id)
		}
		if s.metrics != nil {
			s.metrics.OrdersExpired.Add(float64(len(ids)))
		}
		if len(ids) < s.config.BatchSize {
			break
		}
	}

	result.ProcessingTime = time.Since(start)
	if result.Expired > 0 {
		s.logger.WithFields(logrus.Fields{
			"expired":  result.Expired,
			"batches":  result.Batches,
			"cutoff":   result.Cutoff,
			"duration": result.ProcessingTime,
		}).Info("Expired stale pending orders")
	}
	return result, nil
}

func (s *Sweeper) announce(ctx context.Context, orderID string) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.OrderEvent{
		Type:    events.OrderExpired,
		OrderID: orderID,
		Status:  models.StatusExpired,
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("Failed to publish order expiry")
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.WithFields(logrus.Fields{
		"interval":    interval,
		"pending_ttl": s.config.PendingTTL,
	}).Info("Pending order sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Pending order sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Error("Pending order sweep failed")
			}
		}
	}
}
