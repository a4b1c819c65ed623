package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/smukkama/weather-warehouse/internal/protocol"
)

// fakeSource replays messages, then blocks until cancelled
type fakeSource struct {
	mu        sync.Mutex
	messages  []kafka.Message
	failFirst bool
	committed []int64
}

func (f *fakeSource) Consume(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.failFirst {
		f.failFirst = false
		f.mu.Unlock()
		return kafka.Message{}, errors.New("broker unavailable")
	}
	if len(f.messages) > 0 {
		msg := f.messages[0]
		f.messages = f.messages[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeSource) Commit(ctx context.Context, msg kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msg.Offset)
	return nil
}

func (f *fakeSource) commits() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

func encode(t *testing.T, event *protocol.RunEvent) []byte {
	t.Helper()
	data, err := protocol.EncodeRunEvent(event)
	require.NoError(t, err)
	return data
}

func TestRunListenerHandlesAndCommits(t *testing.T) {
	source := &fakeSource{
		failFirst: true,
		messages: []kafka.Message{
			{Offset: 1, Value: encode(t, &protocol.RunEvent{RunID: "a", Status: protocol.RunStatusSucceeded})},
			{Offset: 2, Value: []byte("garbage")},
			{Offset: 3, Value: encode(t, &protocol.RunEvent{RunID: "b", Status: protocol.RunStatusFailed})},
		},
	}

	var mu sync.Mutex
	var seen []string
	handler := func(ctx context.Context, event *protocol.RunEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, event.RunID)
		return nil
	}

	l := NewRunListener(source, handler, zaptest.NewLogger(t))
	l.backoff = time.Millisecond
	l.Start(context.Background())

	require.Eventually(t, func() bool {
		return len(source.commits()) == 3
	}, time.Second, 5*time.Millisecond)
	l.Stop()

	assert.Equal(t, []int64{1, 2, 3}, source.commits())
	mu.Lock()
	assert.Equal(t, []string{"a", "b"}, seen)
	mu.Unlock()
}

func TestRunListenerRetriesFailedEventBeforeMovingOn(t *testing.T) {
	source := &fakeSource{
		messages: []kafka.Message{
			{Offset: 7, Value: encode(t, &protocol.RunEvent{RunID: "busy", Status: protocol.RunStatusSucceeded})},
			{Offset: 8, Value: encode(t, &protocol.RunEvent{RunID: "next", Status: protocol.RunStatusSucceeded})},
		},
	}

	var mu sync.Mutex
	var seen []string
	failures := 2
	handler := func(ctx context.Context, event *protocol.RunEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, event.RunID)
		if event.RunID == "busy" && failures > 0 {
			failures--
			return errors.New("cache busy")
		}
		return nil
	}

	l := NewRunListener(source, handler, zaptest.NewLogger(t))
	l.backoff = time.Millisecond
	l.Start(context.Background())

	require.Eventually(t, func() bool {
		return len(source.commits()) == 2
	}, time.Second, 5*time.Millisecond)
	l.Stop()

	assert.Equal(t, []int64{7, 8}, source.commits())
	mu.Lock()
	assert.Equal(t, []string{"busy", "busy", "busy", "next"}, seen)
	mu.Unlock()
}

func TestRunListenerStopDuringRetryLeavesOffsetUncommitted(t *testing.T) {
	source := &fakeSource{
		messages: []kafka.Message{
			{Offset: 1, Value: encode(t, &protocol.RunEvent{RunID: "stuck", Status: protocol.RunStatusSucceeded})},
			{Offset: 2, Value: encode(t, &protocol.RunEvent{RunID: "later", Status: protocol.RunStatusSucceeded})},
		},
	}

	attempts := make(chan string, 64)
	handler := func(ctx context.Context, event *protocol.RunEvent) error {
		select {
		case attempts <- event.RunID:
		default:
		}
		return errors.New("cache busy")
	}

	l := NewRunListener(source, handler, zaptest.NewLogger(t))
	l.backoff = time.Millisecond
	l.Start(context.Background())

	for range 2 {
		select {
		case id := <-attempts:
			assert.Equal(t, "stuck", id)
		case <-time.After(time.Second):
			t.Fatal("handler was not retried")
		}
	}
	l.Stop()

	assert.Empty(t, source.commits())
}

func TestRunListenerStopWithoutMessages(t *testing.T) {
	l := NewRunListener(&fakeSource{}, func(context.Context, *protocol.RunEvent) error { return nil }, zaptest.NewLogger(t))
	l.Start(context.Background())

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestNewProducerPartitionsByKey(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, DefaultRunTopic)
	defer p.Close()

	assert.Equal(t, DefaultRunTopic, p.writer.Topic)
	assert.IsType(t, &kafka.Hash{}, p.writer.Balancer)
	assert.Equal(t, kafka.RequireOne, p.writer.RequiredAcks)
	assert.Equal(t, 1, p.writer.BatchSize)
}

func TestCreateTopicRequiresBrokers(t *testing.T) {
	assert.Error(t, CreateTopic(nil, DefaultRunTopic, 1, 1))
}
