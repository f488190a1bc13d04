package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopJob struct{ typ string }

func (j noopJob) Name() string                                  { return j.typ + "-job" }
func (j noopJob) Type() string                                  { return j.typ }
func (j noopJob) Handle(context.Context, json.RawMessage) error { return nil }

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))

	base := errors.New("webhook returned 400")
	err := fmt.Errorf("deliver: %w", Permanent(base))
	assert.True(t, IsPermanent(err))
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, "deliver: webhook returned 400", err.Error())
	assert.False(t, IsPermanent(base))
}

func TestDecode(t *testing.T) {
	type event struct {
		Kind string `json:"kind"`
		N    int    `json:"n"`
	}
	v, err := Decode[event](json.RawMessage(`{"kind":"signal.approved","n":2}`))
	require.NoError(t, err)
	assert.Equal(t, event{Kind: "signal.approved", N: 2}, v)

	_, err = Decode[event](json.RawMessage(`{"n":"two"}`))
	assert.Error(t, err)
}

func TestRetryAtBacksOffLinearly(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(10*time.Second), retryAt(now, 1, 10*time.Second))
	assert.Equal(t, now.Add(30*time.Second), retryAt(now, 3, 10*time.Second))
}

func TestQueueModeString(t *testing.T) {
	assert.Equal(t, "producer-consumer", ModeProducerConsumer.String())
	assert.Equal(t, "producer-only", ModeProducerOnly.String())
	assert.Equal(t, "consumer-only", ModeConsumerOnly.String())
}

func TestRedisQueueDefaultsAndKeys(t *testing.T) {
	q := NewRedisQueue(nil, nil, nil, ModeProducerConsumer, WithKeyPrefix("test:q"), WithRetryPoll(time.Second))
	assert.Equal(t, 1, q.config.Workers)
	assert.Equal(t, 10*time.Second, q.config.RetryDelay)
	assert.Equal(t, time.Second, q.pollEvery)
	assert.Equal(t, "test:q:messages", q.readyKey())
	assert.Equal(t, "test:q:retry", q.retryKey())
	assert.Equal(t, "test:q:dlq", q.deadLetterKey())
}

func TestRedisQueueRegisterJob(t *testing.T) {
	q := NewRedisQueue(nil, &QueueConfig{Workers: 2}, nil, ModeConsumerOnly)
	q.RegisterJob(noopJob{typ: "webhook"})
	q.RegisterJob(noopJob{typ: "webhook"})
	assert.Len(t, q.jobs, 1)

	producer := NewRedisQueue(nil, nil, nil, ModeProducerOnly)
	producer.RegisterJob(noopJob{typ: "webhook"})
	assert.Empty(t, producer.jobs)
}

func TestRedisQueueEnqueueRequiresRunning(t *testing.T) {
	q := NewRedisQueue(nil, nil, nil, ModeProducerOnly)
	err := q.PublishMessage(context.Background(), "webhook", map[string]string{"id": "1"})
	assert.EqualError(t, err, "queue not running")
	assert.NoError(t, q.Stop(context.Background()), "stopping an idle queue is a no-op")
}
