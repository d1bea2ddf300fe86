package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, BackoffBase: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestPersistQueueRetriesUntilSuccess(t *testing.T) {
	q := NewPersistQueue(1, 4, fastRetry(3), discardLogger(), nil)
	q.Start()

	var calls atomic.Int32
	require.NoError(t, q.Submit(PersistTask{Name: "save", Run: func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}}))
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, int32(3), calls.Load())
}

func TestPersistQueueGivesUp(t *testing.T) {
	q := NewPersistQueue(1, 4, fastRetry(4), discardLogger(), nil)
	q.Start()

	var calls atomic.Int32
	require.NoError(t, q.Submit(PersistTask{Name: "save", Run: func(context.Context) error {
		calls.Add(1)
		return errors.New("down")
	}}))
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, int32(4), calls.Load())
}

func TestPersistQueueDropsWhenFull(t *testing.T) {
	// No workers started, so nothing drains the buffer
	q := NewPersistQueue(1, 1, fastRetry(1), discardLogger(), nil)
	noop := PersistTask{Name: "save", Run: func(context.Context) error { return nil }}

	require.NoError(t, q.Submit(noop))
	assert.Error(t, q.Submit(noop))
}

func TestPersistQueueSurvivesPanic(t *testing.T) {
	q := NewPersistQueue(1, 4, fastRetry(1), discardLogger(), nil)
	q.Start()

	var ran atomic.Bool
	require.NoError(t, q.Submit(PersistTask{Name: "boom", Run: func(context.Context) error { panic("bad task") }}))
	require.NoError(t, q.Submit(PersistTask{Name: "after", Run: func(context.Context) error {
		ran.Store(true)
		return nil
	}}))
	require.NoError(t, q.Close(context.Background()))

	assert.True(t, ran.Load())
}

func TestPersistQueueClose(t *testing.T) {
	q := NewPersistQueue(2, 8, fastRetry(1), discardLogger(), nil)
	q.Start()

	var done atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Submit(PersistTask{Name: "save", Run: func(context.Context) error {
			done.Add(1)
			return nil
		}}))
	}
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, int32(5), done.Load(), "close drains queued tasks")

	assert.ErrorIs(t, q.Submit(PersistTask{Name: "late"}), ErrQueueClosed)
	assert.NoError(t, q.Close(context.Background()))
}

func TestPersistQueueCloseCancelsRetries(t *testing.T) {
	q := NewPersistQueue(1, 1, RetryConfig{MaxAttempts: 100, BackoffBase: 50 * time.Millisecond, MaxBackoff: 50 * time.Millisecond}, discardLogger(), nil)
	q.Start()

	require.NoError(t, q.Submit(PersistTask{Name: "stuck", Run: func(context.Context) error {
		return errors.New("down")
	}}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)
}
