package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/mapsync/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/mapsync/pkg/errors"
)

var (
	ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")
)

// ReceivedMessage is one record read from a topic.
type ReceivedMessage struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// MessageHandler processes one message.  A returned error is logged and the
// offset is committed anyway.
type MessageHandler func(ctx context.Context, msg *ReceivedMessage) error

// ConsumerConfig holds configuration for the Consumer.
type ConsumerConfig struct {
	Brokers         []string
	GroupID         string
	Topic           string
	AutoOffsetReset string // "earliest" | "latest"
	MaxWait         time.Duration
	ErrorBackoff    time.Duration
}

// ConsumerMetrics holds consumer counters.
type ConsumerMetrics struct {
	MessagesConsumed  atomic.Int64
	MessagesProcessed atomic.Int64
	MessagesFailed    atomic.Int64
	Lag               atomic.Int64
}

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic in a consumer group and hands each message to a
// handler.  The CLI uses it to tail visible-set events.
type Consumer struct {
	reader ReaderInterface
	config ConsumerConfig
	logger logging.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	metrics *ConsumerMetrics
}

// NewConsumer creates a Consumer.
func NewConsumer(cfg ConsumerConfig, logger logging.Logger) (*Consumer, error) {
	if err := ValidateConsumerConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.AutoOffsetReset == "" {
		cfg.AutoOffsetReset = "latest"
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 500 * time.Millisecond
	}

	start := kafka.LastOffset
	if cfg.AutoOffsetReset == "earliest" {
		start = kafka.FirstOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MaxWait:     cfg.MaxWait,
		StartOffset: start,
	})
	return newConsumerWithReader(reader, cfg, logger), nil
}

func newConsumerWithReader(r ReaderInterface, cfg ConsumerConfig, logger logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Consumer{
		reader:  r,
		config:  cfg,
		logger:  logger,
		metrics: &ConsumerMetrics{},
	}
}

// Start runs the consume loop in the background until ctx is done or Close
// is called.
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) error {
	if handler == nil {
		return errors.InvalidParam("handler is required")
	}
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx, handler)

	c.logger.Info("Kafka consumer started",
		logging.String("group", c.config.GroupID),
		logging.String("topic", c.config.Topic))
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context, handler MessageHandler) {
	defer c.wg.Done()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("FetchMessage error", logging.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.config.ErrorBackoff):
			}
			continue
		}

		c.metrics.MessagesConsumed.Add(1)
		if m.HighWaterMark > 0 {
			c.metrics.Lag.Store(m.HighWaterMark - m.Offset - 1)
		}

		msg := &ReceivedMessage{
			Topic:     m.Topic,
			Partition: m.Partition,
			Offset:    m.Offset,
			Key:       m.Key,
			Value:     m.Value,
			Timestamp: m.Time,
			Headers:   make(map[string]string, len(m.Headers)),
		}
		for _, h := range m.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}

		if err := handler(ctx, msg); err != nil {
			c.metrics.MessagesFailed.Add(1)
			c.logger.Warn("Message handler failed",
				logging.String("topic", m.Topic),
				logging.Int64("offset", m.Offset),
				logging.Err(err))
		} else {
			c.metrics.MessagesProcessed.Add(1)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("CommitMessages failed", logging.Err(err))
		}
	}
}

// GetMetrics returns a snapshot of the counters.
func (c *Consumer) GetMetrics() ConsumerMetrics {
	m := ConsumerMetrics{}
	m.MessagesConsumed.Store(c.metrics.MessagesConsumed.Load())
	m.MessagesProcessed.Store(c.metrics.MessagesProcessed.Load())
	m.MessagesFailed.Store(c.metrics.MessagesFailed.Load())
	m.Lag.Store(c.metrics.Lag.Load())
	return m
}

// Close stops the loop and closes the reader.  Safe to call more than once.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	err := c.reader.Close()
	c.logger.Info("Kafka consumer closed",
		logging.Int64("consumed", c.metrics.MessagesConsumed.Load()))
	return err
}

// ValidateConsumerConfig validates configuration.
func ValidateConsumerConfig(cfg ConsumerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if cfg.GroupID == "" {
		return errors.New(errors.ErrCodeValidation, "group id required")
	}
	if cfg.Topic == "" {
		return errors.New(errors.ErrCodeValidation, "topic required")
	}
	if cfg.AutoOffsetReset != "" && cfg.AutoOffsetReset != "earliest" && cfg.AutoOffsetReset != "latest" {
		return errors.New(errors.ErrCodeValidation, "invalid auto offset reset")
	}
	return nil
}

//Personal.AI order the ending
