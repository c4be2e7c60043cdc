package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const (
	headerMetadata   = "metadata"
	headerRetryCount = "retry_count"

	// MaxReplays bounds how often a message may travel DLQ -> topic -> DLQ.
	MaxReplays = 3
)

type DLQMetadata struct {
	RetryCount        int       `json:"retry_count"`
	FailedAt          time.Time `json:"failed_at"`
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	ErrorMessage      string    `json:"error_message"`
}

// DLQRecord is a parked message with its failure metadata.
type DLQRecord struct {
	Key      string
	Event    *OrderEvent
	Metadata DLQMetadata
	Raw      []byte
}

func ParseDLQMessage(message *sarama.ConsumerMessage) DLQRecord {
	rec := DLQRecord{Key: string(message.Key), Raw: message.Value}
	for _, h := range message.Headers {
		if string(h.Key) == headerMetadata {
			json.Unmarshal(h.Value, &rec.Metadata)
		}
	}
	var event OrderEvent
	if err := json.Unmarshal(message.Value, &event); err == nil {
		rec.Event = &event
	}
	return rec
}

func replayCount(message *sarama.ConsumerMessage) int {
	for _, h := range message.Headers {
		if string(h.Key) == headerRetryCount {
			if n, err := strconv.Atoi(string(h.Value)); err == nil {
				return n
			}
		}
	}
	return 0
}

// Replayer sends parked messages back to the order events topic.
type Replayer struct {
	producer sarama.SyncProducer
	logger   *logrus.Logger
}

func NewReplayer(producer sarama.SyncProducer, logger *logrus.Logger) *Replayer {
	return &Replayer{producer: producer, logger: logger}
}

func (r *Replayer) Replay(rec DLQRecord) error {
	if rec.Metadata.RetryCount >= MaxReplays {
		return fmt.Errorf("message %s exceeded %d replays", rec.Key, MaxReplays)
	}

	partition, offset, err := r.producer.SendMessage(&sarama.ProducerMessage{
		Topic: OrderEventsTopic,
		Key:   sarama.StringEncoder(rec.Key),
		Value: sarama.ByteEncoder(rec.Raw),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerRetryCount), Value: []byte(strconv.Itoa(rec.Metadata.RetryCount))},
			{Key: []byte("replayed_from_dlq"), Value: []byte("true")},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to replay message: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"replay_topic":     OrderEventsTopic,
		"replay_partition": partition,
		"replay_offset":    offset,
		"order_key":        rec.Key,
	}).Info("Message replayed from DLQ")
	return nil
}

// NewDLQConsumerGroup joins the DLQ topic for monitoring.
func NewDLQConsumerGroup(brokers []string, groupID string) (sarama.ConsumerGroup, sarama.SyncProducer, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, newSaramaConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create DLQ consumer: %w", err)
	}
	producer, err := sarama.NewSyncProducer(brokers, newSaramaConfig())
	if err != nil {
		group.Close()
		return nil, nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return group, producer, nil
}
