package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaProducerPublishesKeyedEvent(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var evt OrderEvent
		if err := json.Unmarshal(val, &evt); err != nil {
			return err
		}
		if evt.Type != OrderConfirmed || evt.OrderID != "order-1" || evt.OccurredAt.IsZero() {
			return errors.New("unexpected event payload")
		}
		return nil
	})

	logger, _ := test.NewNullLogger()
	p := NewKafkaProducerWith(sp, logger)
	require.NoError(t, p.Publish(context.Background(), OrderEvent{
		Type:    OrderConfirmed,
		OrderID: "order-1",
		Status:  models.StatusConfirmed,
	}))
	require.NoError(t, p.Close())
}

func TestKafkaProducerReturnsSendError(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	logger, _ := test.NewNullLogger()
	err := NewKafkaProducerWith(sp, logger).Publish(context.Background(), OrderEvent{OrderID: "o"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestDirectPublisherCallsHandler(t *testing.T) {
	var got OrderEvent
	p := NewDirectPublisher(HandlerFunc(func(_ context.Context, e OrderEvent) error {
		got = e
		return nil
	}))

	require.NoError(t, p.Publish(context.Background(), OrderEvent{Type: OrderPlaced, OrderID: "o1"}))
	assert.Equal(t, "o1", got.OrderID)
	assert.False(t, got.OccurredAt.IsZero())
}

func eventMessage(t *testing.T, evt OrderEvent) *sarama.ConsumerMessage {
	t.Helper()
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: OrderEventsTopic, Key: []byte(evt.OrderID), Value: data, Offset: 42}
}

func newTestProcessor(t *testing.T, h Handler) (*messageProcessor, *mocks.SyncProducer) {
	dlq := mocks.NewSyncProducer(t, nil)
	logger, _ := test.NewNullLogger()
	p := newMessageProcessor(h, dlq, logger)
	p.delay = func(int) time.Duration { return 0 }
	return p, dlq
}

func TestProcessorRetriesTransientFailures(t *testing.T) {
	calls := 0
	p, _ := newTestProcessor(t, HandlerFunc(func(context.Context, OrderEvent) error {
		calls++
		if calls < 3 {
			return errors.New("hub busy")
		}
		return nil
	}))

	ok := p.process(context.Background(), eventMessage(t, OrderEvent{OrderID: "o1"}))
	assert.True(t, ok)
	assert.Equal(t, 3, calls)
}

func TestProcessorParksExhaustedMessagesOnDLQ(t *testing.T) {
	calls := 0
	p, dlq := newTestProcessor(t, HandlerFunc(func(context.Context, OrderEvent) error {
		calls++
		return errors.New("still failing")
	}))
	dlq.ExpectSendMessageAndSucceed()

	ok := p.process(context.Background(), eventMessage(t, OrderEvent{OrderID: "o1"}))
	assert.False(t, ok)
	assert.Equal(t, MaxRetries+1, calls)
}

func TestProcessorDoesNotRetryPermanentFailures(t *testing.T) {
	calls := 0
	p, dlq := newTestProcessor(t, HandlerFunc(func(context.Context, OrderEvent) error {
		calls++
		return Permanent(errors.New("unknown order"))
	}))
	dlq.ExpectSendMessageAndSucceed()

	assert.False(t, p.process(context.Background(), eventMessage(t, OrderEvent{OrderID: "o1"})))
	assert.Equal(t, 1, calls)
}

func TestProcessorSendsUndecodableMessagesToDLQ(t *testing.T) {
	p, dlq := newTestProcessor(t, HandlerFunc(func(context.Context, OrderEvent) error {
		t.Fatal("handler must not be called")
		return nil
	}))
	dlq.ExpectSendMessageAndSucceed()

	assert.False(t, p.process(context.Background(), &sarama.ConsumerMessage{Key: []byte("k"), Value: []byte("{")}))
}

func TestParseDLQMessageAndReplayLimit(t *testing.T) {
	meta, err := json.Marshal(DLQMetadata{RetryCount: MaxReplays, ErrorMessage: "boom"})
	require.NoError(t, err)
	value, err := json.Marshal(OrderEvent{Type: OrderExpired, OrderID: "o9"})
	require.NoError(t, err)

	rec := ParseDLQMessage(&sarama.ConsumerMessage{
		Key:     []byte("o9"),
		Value:   value,
		Headers: []*sarama.RecordHeader{{Key: []byte(headerMetadata), Value: meta}},
	})
	require.NotNil(t, rec.Event)
	assert.Equal(t, OrderExpired, rec.Event.Type)
	assert.Equal(t, "boom", rec.Metadata.ErrorMessage)

	logger, _ := test.NewNullLogger()
	sp := mocks.NewSyncProducer(t, nil)
	assert.Error(t, NewReplayer(sp, logger).Replay(rec))

	rec.Metadata.RetryCount = 1
	sp.ExpectSendMessageAndSucceed()
	assert.NoError(t, NewReplayer(sp, logger).Replay(rec))
}

func TestBackoffIsBounded(t *testing.T) {
	assert.Equal(t, InitialRetryDelay, backoff(1))
	assert.Equal(t, 2*InitialRetryDelay, backoff(2))
	assert.Equal(t, MaxRetryDelay, backoff(20))
}
