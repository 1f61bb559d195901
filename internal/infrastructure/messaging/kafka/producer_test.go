package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/mapsync/internal/testutil"
	apperrors "github.com/turtacn/mapsync/pkg/errors"
)

// mockKafkaWriter
type mockKafkaWriter struct {
	mu        sync.Mutex
	written   []kafka.Message
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	closed    int
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		if err := m.writeFunc(ctx, msgs...); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.written = append(m.written, msgs...)
	m.mu.Unlock()
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	return nil
}

func (m *mockKafkaWriter) Stats() kafka.WriterStats { return kafka.WriterStats{} }

func newTestProducer(w WriterInterface) *Producer {
	return newProducerWithWriter(w, ProducerConfig{
		Brokers:         []string{"localhost:9092"},
		MaxMessageBytes: 1024,
	}, testutil.NewMockLogger())
}

func TestNewProducer_Validation(t *testing.T) {
	_, err := NewProducer(ProducerConfig{}, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	_, err = NewProducer(ProducerConfig{Brokers: []string{"b:9092"}, MaxRetries: -1}, nil)
	assert.Error(t, err)

	p, err := NewProducer(ProducerConfig{Brokers: []string{"b:9092"}, RequiredAcks: -1, CompressionCodec: "snappy"}, nil)
	require.NoError(t, err)
	w := p.writer.(*kafka.Writer)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
	assert.Equal(t, kafka.Snappy, w.Compression)
	assert.Equal(t, 4, w.MaxAttempts)
	require.NoError(t, p.Close())
}

func TestProducer_Publish_Success(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)

	err := p.Publish(context.Background(), &Message{
		Topic:   "t",
		Key:     []byte("k"),
		Value:   []byte(`{"a":1}`),
		Headers: map[string]string{"event_type": "x"},
	})
	require.NoError(t, err)

	require.Len(t, w.written, 1)
	got := w.written[0]
	assert.Equal(t, "t", got.Topic)
	assert.Equal(t, []byte("k"), got.Key)
	assert.False(t, got.Time.IsZero())
	require.Len(t, got.Headers, 1)
	assert.Equal(t, "event_type", got.Headers[0].Key)

	m := p.GetMetrics()
	assert.Equal(t, int64(1), m.MessagesSent.Load())
	assert.Equal(t, int64(7), m.BytesSent.Load())
}

func TestProducer_Publish_Validation(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{})
	ctx := context.Background()

	assert.Error(t, p.Publish(ctx, nil))
	assert.Error(t, p.Publish(ctx, &Message{Value: []byte("v")}))
	assert.Error(t, p.Publish(ctx, &Message{Topic: "t"}))
	assert.Error(t, p.Publish(ctx, &Message{Topic: "t", Value: make([]byte, 2048)}))
}

func TestProducer_Publish_WriteError(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error {
		return errors.New("broker down")
	}}
	p := newTestProducer(w)

	err := p.Publish(context.Background(), &Message{Topic: "t", Value: []byte("v")})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePublishFailed))
	assert.Contains(t, err.Error(), "broker down")
	m := p.GetMetrics()
	assert.Equal(t, int64(1), m.MessagesFailed.Load())
}

func TestProducer_Close(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)

	err := p.Publish(context.Background(), &Message{Topic: "t", Value: []byte("v")})
	assert.ErrorIs(t, err, ErrProducerClosed)
}

//Personal.AI order the ending
