package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/mapsync/internal/domain/visibleset"
	"github.com/turtacn/mapsync/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/mapsync/pkg/errors"
)

const (
	// TopicVisibleSet carries one event per accepted visible set.
	TopicVisibleSet = "mapsync.visibleset.v1"

	EventTypeVisibleSetChanged = "visibleset.changed"
	eventSource                = "mapsync-engine"
	schemaVersion              = "v1"
)

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func NewEventEnvelope(eventType string, source string, payload interface{}, at time.Time) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     at.UTC(),
		SchemaVersion: schemaVersion,
		Payload:       data,
	}, nil
}

func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeSerialization, "empty payload")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal payload")
	}
	return nil
}

// ToMessage encodes the envelope.  key selects the partition.
func (e *EventEnvelope) ToMessage(topic string, key string) (*Message, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return &Message{
		Topic: topic,
		Key:   []byte(key),
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"source_service": e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

func MessageToEventEnvelope(value []byte) (*EventEnvelope, error) {
	if len(value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

// Publisher is the subset of Producer used by VisibleSetPublisher.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// VisibleSetPublisher turns visible-set summaries into envelope messages
// keyed by session, so one session's events stay ordered on one partition.
type VisibleSetPublisher struct {
	producer Publisher
	topic    string
	logger   logging.Logger
}

func NewVisibleSetPublisher(p Publisher, topic string, logger logging.Logger) *VisibleSetPublisher {
	if topic == "" {
		topic = TopicVisibleSet
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &VisibleSetPublisher{producer: p, topic: topic, logger: logger}
}

// PublishVisibleSet encodes and writes s.
func (v *VisibleSetPublisher) PublishVisibleSet(ctx context.Context, s visibleset.Summary) error {
	env, err := NewEventEnvelope(EventTypeVisibleSetChanged, eventSource, s, s.At)
	if err != nil {
		return err
	}
	env.Metadata = map[string]string{"mode": string(s.Mode)}

	msg, err := env.ToMessage(v.topic, s.SessionID)
	if err != nil {
		return err
	}
	if err := v.producer.Publish(ctx, msg); err != nil {
		v.logger.Warn("visible set event not published",
			logging.String("session_id", s.SessionID),
			logging.Uint64("sequence", s.Sequence),
			logging.Err(err))
		return err
	}
	return nil
}

//Personal.AI order the ending
