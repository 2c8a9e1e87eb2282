package wait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestUntil(t *testing.T) {
	t.Run("succeeds immediately", func(t *testing.T) {
		ok, err := Until(context.Background(), time.Second, 10*time.Millisecond, func(context.Context) (bool, error) {
			return true, nil
		})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("succeeds after a few polls", func(t *testing.T) {
		var calls atomic.Int32
		ok, err := Until(context.Background(), time.Second, 5*time.Millisecond, func(context.Context) (bool, error) {
			return calls.Add(1) >= 3, nil
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("times out without error", func(t *testing.T) {
		start := time.Now()
		ok, err := Until(context.Background(), 50*time.Millisecond, 10*time.Millisecond, func(context.Context) (bool, error) {
			return false, nil
		})
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("transient errors do not stop polling", func(t *testing.T) {
		var calls atomic.Int32
		ok, err := Until(context.Background(), time.Second, 5*time.Millisecond, func(context.Context) (bool, error) {
			if calls.Add(1) < 3 {
				return false, errors.New("node detached")
			}
			return true, nil
		})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("persistent errors surface on timeout", func(t *testing.T) {
		boom := errors.New("no document")
		ok, err := Until(context.Background(), 30*time.Millisecond, 5*time.Millisecond, func(context.Context) (bool, error) {
			return false, boom
		})
		assert.False(t, ok)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)
		ok, err := Until(ctx, time.Minute, 5*time.Millisecond, func(context.Context) (bool, error) {
			return false, nil
		})
		assert.False(t, ok)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Minute), context.Canceled)
}
