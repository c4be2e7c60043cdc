package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/jogardn/food-storefront/internal/config"
	"github.com/jogardn/food-storefront/internal/events"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	logger := cfg.NewLogger()
	if !cfg.KafkaEnabled() {
		logger.Fatal("KAFKA_BROKERS must be set")
	}

	group, producer, err := events.NewDLQConsumerGroup(strings.Split(cfg.KafkaBrokers, ","), "storefront-dlq-monitor")
	if err != nil {
		logger.WithError(err).Fatal("Failed to create DLQ consumer")
	}
	defer group.Close()
	defer producer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := &dlqHandler{
		replayer:   events.NewReplayer(producer, logger),
		autoReplay: cfg.DLQAutoReplay,
		logger:     logger,
	}

	go func() {
		for {
			if err := group.Consume(ctx, []string{events.OrderEventsDLQTopic}, handler); err != nil {
				logger.WithError(err).Error("Error consuming from DLQ")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	logger.WithFields(logrus.Fields{
		"topic":       events.OrderEventsDLQTopic,
		"auto_replay": cfg.DLQAutoReplay,
	}).Info("DLQ monitor started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down DLQ monitor...")
}

type dlqHandler struct {
	replayer   *events.Replayer
	autoReplay bool
	logger     *logrus.Logger
}

func (h *dlqHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *dlqHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *dlqHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		rec := events.ParseDLQMessage(message)

		fields := logrus.Fields{
			"partition":   message.Partition,
			"offset":      message.Offset,
			"key":         rec.Key,
			"retry_count": rec.Metadata.RetryCount,
			"error":       rec.Metadata.ErrorMessage,
		}
		if rec.Event != nil {
			fields["event_type"] = rec.Event.Type
			fields["order_id"] = rec.Event.OrderID
			fields["status"] = rec.Event.Status
		}
		h.logger.WithFields(fields).Warn("DLQ message detected")

		fmt.Printf("\n=== DLQ Message ===\n")
		fmt.Printf("Time: %s\n", time.Now().Format(time.RFC3339))
		fmt.Printf("Order Key: %s\n", rec.Key)
		fmt.Printf("Failed At: %s\n", rec.Metadata.FailedAt.Format(time.RFC3339))
		fmt.Printf("Error: %s\n", rec.Metadata.ErrorMessage)
		fmt.Printf("Retry Count: %d\n", rec.Metadata.RetryCount)
		fmt.Printf("==================\n\n")

		if h.autoReplay && rec.Event != nil {
			if err := h.replayer.Replay(rec); err != nil {
				h.logger.WithError(err).WithField("key", rec.Key).Error("DLQ replay skipped")
			}
		}

		session.MarkMessage(message, "")
	}
	return nil
}
