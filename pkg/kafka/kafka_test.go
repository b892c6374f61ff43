package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func (w *memWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type memReader struct {
	ch        chan kafka.Message
	mu        sync.Mutex
	committed []kafka.Message
}

func newMemReader(msgs ...kafka.Message) *memReader {
	r := &memReader{ch: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.ch <- m
	}
	return r
}

func (r *memReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.ch:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *memReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *memReader) Close() error { return nil }

func (r *memReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type funcHandler struct {
	topic string
	fn    func([]byte) error
}

func (h funcHandler) Topic() string                            { return h.topic }
func (h funcHandler) Handle(_ context.Context, b []byte) error { return h.fn(b) }

func TestProducerEncodesJSON(t *testing.T) {
	w := &memWriter{}
	p := NewProducerWithWriter(w, "gzip")

	require.NoError(t, p.Publish(context.Background(), "intents", []byte("BTCUSDT"), map[string]any{"direction": "LONG"}))
	require.NoError(t, p.PublishBatch(context.Background(), "intents", []Message{{Key: []byte("a"), Value: "raw"}}))

	msgs := w.written()
	require.Len(t, msgs, 2)
	assert.Equal(t, "intents", msgs[0].Topic)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(msgs[0].Value, &decoded))
	assert.Equal(t, "LONG", decoded["direction"])
	assert.Equal(t, "raw", string(msgs[1].Value))

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), "intents", nil, "x"))
}

func TestConsumerHandlesAndCommits(t *testing.T) {
	reader := newMemReader(
		kafka.Message{Topic: "outcomes", Value: []byte("1")},
		kafka.Message{Topic: "outcomes", Value: []byte("2")},
		kafka.Message{Topic: "outcomes", Value: []byte("3")},
	)
	c := newConsumer(ConsumerConfig{WorkerCount: 2, RetryMax: 1, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond},
		func(string) MessageReader { return reader })

	var mu sync.Mutex
	var seen []string
	c.RegisterHandler(funcHandler{topic: "outcomes", fn: func(b []byte) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(b))
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return reader.commits() == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.ElementsMatch(t, []string{"1", "2", "3"}, seen)
}

func TestConsumerRoutesFailuresToDLQ(t *testing.T) {
	reader := newMemReader(kafka.Message{Topic: "outcomes", Value: []byte("poison")})
	dlq := &memWriter{}
	c := newConsumer(ConsumerConfig{RetryMax: 2, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond, DLQTopic: "outcomes.dlq"},
		func(string) MessageReader { return reader })
	c.dlq = dlq

	calls := 0
	c.RegisterHandler(funcHandler{topic: "outcomes", fn: func([]byte) error {
		calls++
		panic("bad payload")
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return reader.commits() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 3, calls)
	msgs := dlq.written()
	require.Len(t, msgs, 1)
	assert.Equal(t, "outcomes.dlq", msgs[0].Topic)
	assert.Equal(t, "poison", string(msgs[0].Value))
}

func TestBackoffBounds(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 100*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}
}

func TestPublishBatchSortsHeaders(t *testing.T) {
	w := &memWriter{}
	p := NewProducerWithWriter(w, "none")
	require.NoError(t, p.PublishBatch(context.Background(), "trades", []Message{{
		Key:     []byte("ETHUSDT"),
		Value:   []byte("{}"),
		Headers: map[string]string{"schema": "1", "event": "trade_closed"},
	}}))

	msgs := w.written()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Headers, 2)
	assert.Equal(t, "event", msgs[0].Headers[0].Key)
	assert.Equal(t, "schema", msgs[0].Headers[1].Key)
	assert.Nil(t, headers(nil))
}
