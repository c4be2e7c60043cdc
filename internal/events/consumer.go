package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const (
	MaxRetries        = 3
	InitialRetryDelay = 1 * time.Second
	MaxRetryDelay     = 30 * time.Second
)

// Consumer delivers order events to a Handler. A message that still fails
// after MaxRetries, or fails permanently, is parked on the DLQ topic.
type Consumer struct {
	group     sarama.ConsumerGroup
	dlq       sarama.SyncProducer
	processor *messageProcessor
	logger    *logrus.Logger
	topics    []string
}

// NewConsumer joins groupID. initialOffset is sarama.OffsetOldest or
// sarama.OffsetNewest and only matters the first time the group is seen.
func NewConsumer(brokers, groupID string, initialOffset int64, handler Handler, logger *logrus.Logger) (*Consumer, error) {
	config := newSaramaConfig()
	config.Consumer.Offsets.Initial = initialOffset
	addrs := strings.Split(brokers, ",")

	group, err := sarama.NewConsumerGroup(addrs, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	dlq, err := sarama.NewSyncProducer(addrs, newSaramaConfig())
	if err != nil {
		group.Close()
		return nil, fmt.Errorf("failed to create producer for DLQ: %w", err)
	}

	return &Consumer{
		group:     group,
		dlq:       dlq,
		processor: newMessageProcessor(handler, dlq, logger),
		logger:    logger,
		topics:    []string{OrderEventsTopic},
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	handler := &groupHandler{processor: c.processor, logger: c.logger}
	for {
		if err := c.group.Consume(ctx, c.topics, handler); err != nil {
			c.logger.WithError(err).Error("Error consuming from Kafka")
			return err
		}
		if ctx.Err() != nil {
			c.logger.Info("Kafka consumer context cancelled")
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	if err := c.dlq.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close DLQ producer")
	}
	return c.group.Close()
}

type groupHandler struct {
	processor *messageProcessor
	logger    *logrus.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session setup")
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.processor.process(session.Context(), message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

type messageProcessor struct {
	handler Handler
	dlq     sarama.SyncProducer
	logger  *logrus.Logger
	delay   func(attempt int) time.Duration
}

func newMessageProcessor(handler Handler, dlq sarama.SyncProducer, logger *logrus.Logger) *messageProcessor {
	return &messageProcessor{handler: handler, dlq: dlq, logger: logger, delay: backoff}
}

func backoff(attempt int) time.Duration {
	d := InitialRetryDelay << (attempt - 1)
	if d > MaxRetryDelay || d <= 0 {
		return MaxRetryDelay
	}
	return d
}

// process reports whether the message was handled; failures go to the DLQ.
func (p *messageProcessor) process(ctx context.Context, message *sarama.ConsumerMessage) bool {
	err := p.handleWithRetry(ctx, message)
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	p.logger.WithError(err).WithField("key", string(message.Key)).Error("Failed to process message after retries")
	if dlqErr := p.sendToDLQ(message, err); dlqErr != nil {
		p.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
	}
	return false
}

func (p *messageProcessor) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	var event OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return Permanent(fmt.Errorf("failed to unmarshal order event: %w", err))
	}

	var err error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.WithFields(logrus.Fields{
				"order_id": event.OrderID,
				"attempt":  attempt,
			}).Info("Retrying order event")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay(attempt)):
			}
		}

		err = p.handler.HandleOrderEvent(ctx, event)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		p.logger.WithError(err).WithField("attempt", attempt+1).Warn("Retryable error handling order event")
	}
	return fmt.Errorf("exhausted retries for order %s: %w", event.OrderID, err)
}

func (p *messageProcessor) sendToDLQ(message *sarama.ConsumerMessage, cause error) error {
	now := time.Now().UTC()
	meta := DLQMetadata{
		RetryCount:        replayCount(message) + 1,
		FailedAt:          now,
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		ErrorMessage:      cause.Error(),
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	partition, offset, err := p.dlq.SendMessage(&sarama.ProducerMessage{
		Topic: OrderEventsDLQTopic,
		Key:   sarama.ByteEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerMetadata), Value: metaBytes},
			{Key: []byte(headerRetryCount), Value: []byte(strconv.Itoa(meta.RetryCount))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send to DLQ: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"dlq_topic":     OrderEventsDLQTopic,
		"dlq_partition": partition,
		"dlq_offset":    offset,
		"original_key":  string(message.Key),
		"error":         cause.Error(),
	}).Warn("Message sent to dead letter queue")
	return nil
}
