package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/mapsync/internal/domain/visibleset"
	"github.com/turtacn/mapsync/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/mapsync/pkg/types/geo"
)

// replaySource hands a fixed list of messages to the handler.
type replaySource struct {
	msgs   []*kafka.ReceivedMessage
	wg     sync.WaitGroup
	closed bool
}

func (s *replaySource) Start(ctx context.Context, h kafka.MessageHandler) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, m := range s.msgs {
			if ctx.Err() != nil {
				return
			}
			_ = h(ctx, m)
		}
	}()
	return nil
}

func (s *replaySource) Close() error {
	s.wg.Wait()
	s.closed = true
	return nil
}

func summaryMessage(t *testing.T, seq uint64, ids ...string) *kafka.ReceivedMessage {
	t.Helper()
	s := visibleset.Summary{
		SessionID: "s-1",
		Sequence:  seq,
		Mode:      geo.ModeIndividual,
		Precision: 34,
		IDs:       ids,
		Count:     len(ids),
		At:        time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	env, err := kafka.NewEventEnvelope(kafka.EventTypeVisibleSetChanged, "test", s, s.At)
	require.NoError(t, err)
	msg, err := env.ToMessage(kafka.TopicVisibleSet, s.SessionID)
	require.NoError(t, err)
	return &kafka.ReceivedMessage{Topic: msg.Topic, Key: msg.Key, Value: msg.Value}
}

func TestRunTail_PrintsUntilLimit(t *testing.T) {
	other, err := kafka.NewEventEnvelope("something.else", "test", map[string]int{"n": 1}, time.Now())
	require.NoError(t, err)
	otherMsg, err := other.ToMessage(kafka.TopicVisibleSet, "k")
	require.NoError(t, err)

	src := &replaySource{msgs: []*kafka.ReceivedMessage{
		summaryMessage(t, 1, "X1", "A"),
		{Value: []byte("not json")},
		{Value: otherMsg.Value},
		summaryMessage(t, 2, "B"),
		summaryMessage(t, 3, "C"),
	}}

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, runTail(ctx, src, &out, false, 2))

	assert.True(t, src.closed)
	s := out.String()
	assert.Contains(t, s, "seq=1 mode=individual precision=34 count=2 session=s-1 ids=X1,A")
	assert.Contains(t, s, "seq=2")
	assert.NotContains(t, s, "seq=3")
}

func TestRunTail_JSON(t *testing.T) {
	src := &replaySource{msgs: []*kafka.ReceivedMessage{summaryMessage(t, 7, "X1")}}

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, runTail(ctx, src, &out, true, 1))

	var got visibleset.Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, uint64(7), got.Sequence)
	assert.Equal(t, []string{"X1"}, got.IDs)
}

func TestRunTail_StopsOnContext(t *testing.T) {
	src := &replaySource{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, runTail(ctx, src, &bytes.Buffer{}, false, 0))
	assert.True(t, src.closed)
}

//Personal.AI order the ending
