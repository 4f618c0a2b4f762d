package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digirix/Apexsaas-sub009/internal/testutil"
)

// mockKafkaReader serves queued messages, then blocks until cancelled.
type mockKafkaReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (m *mockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if len(m.queue) > 0 {
		msg := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockKafkaReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, msgs...)
	return nil
}

func (m *mockKafkaReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockKafkaReader) Stats() kafka.ReaderStats { return kafka.ReaderStats{} }

func (m *mockKafkaReader) committedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.committed)
}

func newTestConsumer(r ReaderInterface, retry RetryConfig) *Consumer {
	cfg := ConsumerConfig{
		Brokers: []string{"localhost:9092"},
		GroupID: "g",
		Topics:  []string{"topic"},
		Retry:   retry,
	}
	return NewConsumerWithReader(r, cfg, testutil.NewMockLogger(), nil)
}

func fastRetry(n int) RetryConfig {
	return RetryConfig{MaxRetries: n, RetryBackoff: time.Millisecond, MaxRetryBackoff: 2 * time.Millisecond}
}

func TestValidateConsumerConfig(t *testing.T) {
	ok := ConsumerConfig{Brokers: []string{"b"}, GroupID: "g", Topics: []string{"t"}}
	assert.NoError(t, ValidateConsumerConfig(ok))

	noGroup := ok
	noGroup.GroupID = ""
	assert.Error(t, ValidateConsumerConfig(noGroup))

	noTopics := ok
	noTopics.Topics = nil
	assert.Error(t, ValidateConsumerConfig(noTopics))

	badOffset := ok
	badOffset.StartOffset = "middle"
	assert.Error(t, ValidateConsumerConfig(badOffset))
}

func TestStart_AlreadyRunning(t *testing.T) {
	c := newTestConsumer(&mockKafkaReader{}, fastRetry(1))
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.Equal(t, ErrAlreadyRunning, c.Start(context.Background()))
}

func TestConsume_DispatchesAndCommits(t *testing.T) {
	r := &mockKafkaReader{queue: []kafka.Message{{
		Topic:   "topic",
		Offset:  7,
		Key:     []byte("e-1"),
		Value:   []byte("payload"),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte("x")}},
	}}}
	c := newTestConsumer(r, fastRetry(1))

	got := make(chan *Message, 1)
	c.Subscribe("topic", func(_ context.Context, msg *Message) error {
		got <- msg
		return nil
	})
	require.NoError(t, c.Start(context.Background()))

	select {
	case msg := <-got:
		assert.Equal(t, int64(7), msg.Offset)
		assert.Equal(t, "x", msg.Headers["event_type"])
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}

	assert.Eventually(t, func() bool { return r.committedCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
	assert.True(t, r.closed)
	assert.EqualValues(t, 1, c.Stats().Processed)
}

func TestConsume_RetriesThenSucceeds(t *testing.T) {
	r := &mockKafkaReader{queue: []kafka.Message{{Topic: "topic", Value: []byte("v")}}}
	c := newTestConsumer(r, fastRetry(3))

	var calls atomic.Int32
	c.Subscribe("topic", func(context.Context, *Message) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return r.committedCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	assert.EqualValues(t, 3, calls.Load())
	stats := c.Stats()
	assert.EqualValues(t, 2, stats.Retried)
	assert.EqualValues(t, 1, stats.Processed)
}

func TestConsume_ExhaustedRetriesDeadLetter(t *testing.T) {
	r := &mockKafkaReader{queue: []kafka.Message{{Topic: "topic", Key: []byte("k"), Value: []byte("v")}}}
	c := newTestConsumer(r, fastRetry(1))
	c.config.Retry.DeadLetterTopic = "dlq"
	w := &mockKafkaWriter{}
	c.deadLetter = newTestProducer(w)

	c.Subscribe("topic", func(context.Context, *Message) error { return errors.New("poison") })
	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return r.committedCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	msgs := w.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "dlq", msgs[0].Topic)
	headers := map[string]string{}
	for _, h := range msgs[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "topic", headers["original_topic"])
	assert.Equal(t, "poison", headers["error_message"])
	assert.EqualValues(t, 1, c.Stats().DeadLettered)
	assert.EqualValues(t, 1, c.Stats().Failed)
}

func TestConsume_NoHandlerStillCommits(t *testing.T) {
	r := &mockKafkaReader{queue: []kafka.Message{{Topic: "other", Value: []byte("v")}}}
	c := newTestConsumer(r, fastRetry(1))
	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return r.committedCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
}

func TestShutdown_DrainsInFlightMessage(t *testing.T) {
	r := &mockKafkaReader{queue: []kafka.Message{{Topic: "topic", Offset: 3, Value: []byte("v")}}}
	c := newTestConsumer(r, fastRetry(0))

	started := make(chan struct{})
	release := make(chan struct{})
	var handlerErr error
	c.Subscribe("topic", func(ctx context.Context, _ *Message) error {
		close(started)
		<-release
		handlerErr = ctx.Err()
		return nil
	})
	require.NoError(t, c.Start(context.Background()))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Shutdown(ctx) }()

	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-done)
	assert.NoError(t, handlerErr)
	assert.Equal(t, 1, r.committedCount())
	assert.True(t, r.closed)
	assert.EqualValues(t, 1, c.Stats().Processed)
}

func TestShutdown_DeadlineAbortsInFlightMessage(t *testing.T) {
	r := &mockKafkaReader{queue: []kafka.Message{{Topic: "topic", Value: []byte("v")}}}
	c := newTestConsumer(r, fastRetry(0))

	started := make(chan struct{})
	c.Subscribe("topic", func(ctx context.Context, _ *Message) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, c.Start(context.Background()))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Shutdown(ctx), context.DeadlineExceeded)
	assert.Equal(t, 0, r.committedCount())
	assert.True(t, r.closed)
}

func TestConsumerClose_NotStarted(t *testing.T) {
	c := newTestConsumer(&mockKafkaReader{}, fastRetry(1))
	assert.NoError(t, c.Close())
}
