package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go-faults/internal/faults"
	"go-faults/internal/observability"
	"go-faults/pkg/models"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConsumer(reader *MockReader, failures *MockFailureManager) (*Consumer, *MockDedupeStore, *observability.InMemoryMetrics) {
	logger, _ := test.NewNullLogger()
	dedupe := NewMockDedupeStore()
	metrics := observability.NewInMemoryMetrics()

	cfg := ConsumerConfig{
		Topic:   "orders",
		GroupID: "test-group",
		Workers: 2,
		RetryPolicy: RetryPolicy{
			MaxRetries:     2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			BackoffFactor:  2.0,
		},
		Metrics:     metrics,
		DedupeStore: dedupe,
		Logger:      logger,
	}

	return newConsumer(cfg, reader, failures), dedupe, metrics
}

func createKafkaMessage(id string, value []byte) kafka.Message {
	headers := []kafka.Header{}
	if id != "" {
		headers = append(headers, kafka.Header{Key: models.HeaderMessageID, Value: []byte(id)})
	}
	return kafka.Message{
		Topic:     "orders",
		Partition: 0,
		Offset:    1,
		Key:       []byte("order-key"),
		Value:     value,
		Headers:   headers,
		Time:      time.Now(),
	}
}

func TestConsumer_ProcessMessage_Success(t *testing.T) {
	reader := NewMockReader()
	failures := NewMockFailureManager()
	consumer, dedupe, metrics := newTestConsumer(reader, failures)

	handler := &MockHandler{}
	err := consumer.processMessage(context.Background(), createKafkaMessage("msg-123", []byte("hello")), handler, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, handler.Calls())
	assert.Equal(t, int64(1), metrics.GetProcessed())
	assert.True(t, dedupe.Exists("msg-123"))
	assert.Empty(t, failures.GetReports())
	assert.Len(t, reader.GetCommitted(), 1)
}

func TestConsumer_ProcessMessage_DecodeFailure(t *testing.T) {
	reader := NewMockReader()
	failures := NewMockFailureManager()
	consumer, _, metrics := newTestConsumer(reader, failures)

	decodeErr := errors.New("invalid character")
	handler := &MockHandler{
		DecodeFunc: func(msg *models.Message) (any, error) { return nil, decodeErr },
	}

	err := consumer.processMessage(context.Background(), createKafkaMessage("msg-1", []byte("{")), handler, 0)
	require.NoError(t, err)

	assert.Equal(t, 0, handler.Calls())
	assert.Equal(t, int64(1), metrics.GetSerializationFailed())

	reports := failures.GetReports()
	require.Len(t, reports, 1)
	assert.Equal(t, faults.ReasonSerializationFailed, reports[0].Reason)
	assert.Same(t, decodeErr, reports[0].Err)
	assert.Equal(t, "msg-1", reports[0].Message.ID)
	assert.Len(t, reader.GetCommitted(), 1)
}

func TestConsumer_ProcessMessage_RetriesThenReports(t *testing.T) {
	reader := NewMockReader()
	failures := NewMockFailureManager()
	consumer, dedupe, metrics := newTestConsumer(reader, failures)

	handler := &MockHandler{
		HandleFunc: func(ctx context.Context, msg *models.Message, payload any) error {
			return fmt.Errorf("processing failed")
		},
	}

	err := consumer.processMessage(context.Background(), createKafkaMessage("msg-456", []byte("x")), handler, 0)
	require.NoError(t, err)

	// one attempt plus MaxRetries retries
	assert.Equal(t, 3, handler.Calls())
	assert.Equal(t, int64(2), metrics.GetRetried())
	assert.Equal(t, int64(1), metrics.GetFailed())
	assert.True(t, dedupe.Exists("msg-456"))

	reports := failures.GetReports()
	require.Len(t, reports, 1)
	assert.Equal(t, faults.ReasonProcessingFailed, reports[0].Reason)
	assert.EqualError(t, reports[0].Err, "processing failed")
	assert.Len(t, reader.GetCommitted(), 1)
}

func TestConsumer_ProcessMessage_SucceedsOnRetry(t *testing.T) {
	reader := NewMockReader()
	failures := NewMockFailureManager()
	consumer, _, metrics := newTestConsumer(reader, failures)

	calls := 0
	handler := &MockHandler{
		HandleFunc: func(ctx context.Context, msg *models.Message, payload any) error {
			calls++
			if calls == 1 {
				return errors.New("transient")
			}
			return nil
		},
	}

	require.NoError(t, consumer.processMessage(context.Background(), createKafkaMessage("msg-2", []byte("x")), handler, 0))
	assert.Equal(t, int64(1), metrics.GetRetried())
	assert.Equal(t, int64(1), metrics.GetProcessed())
	assert.Empty(t, failures.GetReports())
}

func TestConsumer_ProcessMessage_PermanentErrorSkipsRetries(t *testing.T) {
	reader := NewMockReader()
	failures := NewMockFailureManager()
	consumer, _, metrics := newTestConsumer(reader, failures)

	handler := &MockHandler{
		HandleFunc: func(ctx context.Context, msg *models.Message, payload any) error {
			return Permanent(errors.New("order already cancelled"))
		},
	}

	require.NoError(t, consumer.processMessage(context.Background(), createKafkaMessage("msg-3", []byte("x")), handler, 0))
	assert.Equal(t, 1, handler.Calls())
	assert.Equal(t, int64(0), metrics.GetRetried())
	require.Len(t, failures.GetReports(), 1)
	assert.True(t, IsPermanent(failures.GetReports()[0].Err))
}

func TestConsumer_ProcessMessage_HandlerPanic(t *testing.T) {
	reader := NewMockReader()
	failures := NewMockFailureManager()
	consumer, _, _ := newTestConsumer(reader, failures)

	handler := &MockHandler{
		HandleFunc: func(ctx context.Context, msg *models.Message, payload any) error {
			panic("nil map")
		},
	}

	require.NoError(t, consumer.processMessage(context.Background(), createKafkaMessage("msg-4", []byte("x")), handler, 0))

	reports := failures.GetReports()
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].Err.Error(), "handler panicked: nil map")
	assert.Equal(t, 1, handler.Calls())
}

func TestConsumer_ProcessMessage_ForwardingBroken(t *testing.T) {
	reader := NewMockReader()
	failures := NewMockFailureManager()
	failures.ReportFunc = func(reason string, msg *models.Message, err error) error {
		return &faults.ConfigurationError{Message: "Could not forward failed message to error queue.", Err: errors.New("broker down")}
	}
	consumer, dedupe, _ := newTestConsumer(reader, failures)

	handler := &MockHandler{
		DecodeFunc: func(msg *models.Message) (any, error) { return nil, errors.New("bad payload") },
	}

	err := consumer.processMessage(context.Background(), createKafkaMessage("msg-5", []byte("x")), handler, 0)
	require.Error(t, err)
	assert.True(t, faults.IsConfigurationError(err))
	assert.Empty(t, reader.GetCommitted())
	assert.False(t, dedupe.Exists("msg-5"), "an unforwarded message must be retried on redelivery")
}

func TestConsumer_ProcessMessage_RedeliveredFailureForwardedOnce(t *testing.T) {
	tests := []struct {
		name    string
		handler *MockHandler
	}{
		{
			name: "serialization failure",
			handler: &MockHandler{
				DecodeFunc: func(msg *models.Message) (any, error) { return nil, errors.New("bad payload") },
			},
		},
		{
			name: "processing failure",
			handler: &MockHandler{
				HandleFunc: func(ctx context.Context, msg *models.Message, payload any) error {
					return Permanent(errors.New("invalid order"))
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewMockReader()
			failures := NewMockFailureManager()
			consumer, dedupe, _ := newTestConsumer(reader, failures)

			// the same offset arrives twice, as after a lost commit
			kafkaMsg := createKafkaMessage("msg-7", []byte("x"))
			require.NoError(t, consumer.processMessage(context.Background(), kafkaMsg, tt.handler, 0))
			require.NoError(t, consumer.processMessage(context.Background(), kafkaMsg, tt.handler, 0))

			assert.Len(t, failures.GetReports(), 1)
			assert.True(t, dedupe.Exists("msg-7"))
			assert.Len(t, reader.GetCommitted(), 2)
		})
	}
}

func TestConsumer_ProcessMessage_ReportSurvivesCancellation(t *testing.T) {
	reader := NewMockReader()
	failures := NewMockFailureManager()
	consumer, _, _ := newTestConsumer(reader, failures)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var reportCtxErr error
	failures.ReportFunc = func(reason string, msg *models.Message, err error) error {
		return nil
	}
	consumer.failures = &ctxCheckingManager{MockFailureManager: failures, seen: &reportCtxErr}

	handler := &MockHandler{
		DecodeFunc: func(msg *models.Message) (any, error) { return nil, errors.New("bad payload") },
	}

	require.NoError(t, consumer.processMessage(ctx, createKafkaMessage("msg-6", []byte("x")), handler, 0))
	assert.NoError(t, reportCtxErr)
}

type ctxCheckingManager struct {
	*MockFailureManager
	seen *error
}

func (m *ctxCheckingManager) ReportSerializationFailure(ctx context.Context, msg *models.Message, err error) error {
	*m.seen = ctx.Err()
	return m.MockFailureManager.ReportSerializationFailure(ctx, msg, err)
}

func TestConsumer_ProcessMessage_Deduplication(t *testing.T) {
	reader := NewMockReader()
	failures := NewMockFailureManager()
	consumer, dedupe, metrics := newTestConsumer(reader, failures)
	dedupe.Add("duplicate-msg")

	handler := &MockHandler{}
	require.NoError(t, consumer.processMessage(context.Background(), createKafkaMessage("duplicate-msg", []byte("x")), handler, 0))

	assert.Equal(t, 0, handler.Calls())
	assert.Equal(t, int64(0), metrics.GetProcessed())
	assert.Len(t, reader.GetCommitted(), 1)
}

func TestConsumer_Start_StopsWhenForwardingBroken(t *testing.T) {
	reader := NewMockReader(
		createKafkaMessage("msg-a", []byte("{")),
		createKafkaMessage("msg-b", []byte("{")),
	)
	failures := NewMockFailureManager()
	failures.ReportFunc = func(reason string, msg *models.Message, err error) error {
		return &faults.ConfigurationError{Message: "Could not forward failed message to error queue.", Err: errors.New("broker down")}
	}
	consumer, _, _ := newTestConsumer(reader, failures)

	handler := &MockHandler{
		DecodeFunc: func(msg *models.Message) (any, error) { return nil, errors.New("bad payload") },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := consumer.Start(ctx, handler)
	require.Error(t, err)
	assert.True(t, faults.IsConfigurationError(err))
	assert.NoError(t, ctx.Err(), "consumer should stop on its own")
}

func TestConsumer_Start_ProcessesUntilCancelled(t *testing.T) {
	reader := NewMockReader(
		createKafkaMessage("msg-a", []byte("a")),
		createKafkaMessage("msg-b", []byte("b")),
	)
	failures := NewMockFailureManager()
	consumer, _, metrics := newTestConsumer(reader, failures)

	ctx, cancel := context.WithCancel(context.Background())
	handler := &MockHandler{}

	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx, handler) }()

	require.Eventually(t, func() bool { return metrics.GetProcessed() == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, int64(2), metrics.GetReceived())
}

func TestToInternalMessage(t *testing.T) {
	msg := toInternalMessage(createKafkaMessage("msg-9", []byte("payload")))
	assert.Equal(t, "msg-9", msg.ID)
	assert.Equal(t, "order-key", msg.Key)
	assert.Equal(t, "orders", msg.Headers[models.HeaderOriginalTopic])

	generated := toInternalMessage(createKafkaMessage("", []byte("payload")))
	assert.NotEmpty(t, generated.ID)
	assert.Equal(t, generated.ID, generated.Headers[models.HeaderMessageID])
}

func TestInMemoryDedupeStore(t *testing.T) {
	store := NewInMemoryDedupeStore(50 * time.Millisecond)
	defer store.Close()

	assert.False(t, store.Exists("msg-1"))

	require.NoError(t, store.Add("msg-1"))
	assert.True(t, store.Exists("msg-1"))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, store.Exists("msg-1"), "expired IDs are not reported")

	store.evictExpired(time.Now())
	assert.Equal(t, 0, store.len())
}

func TestMockDedupeStore(t *testing.T) {
	mock := NewMockDedupeStore()

	assert.False(t, mock.Exists("msg-1"))

	err := mock.Add("msg-1")
	require.NoError(t, err)
	assert.True(t, mock.Exists("msg-1"))

	mock.ExistsFunc = func(messageID string) bool {
		return messageID == "always-exists"
	}

	assert.True(t, mock.Exists("always-exists"))
	assert.False(t, mock.Exists("msg-1"))

	mock.Reset()
	mock.ExistsFunc = nil
	assert.False(t, mock.Exists("msg-1"))
}
