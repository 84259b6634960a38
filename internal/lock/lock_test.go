package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(context.Background(), "a")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, k.Len(), "idle keys are dropped")
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	unlockA, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := k.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Equal(t, 0, k.Len())
}

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	l, err := NewRedisLocker("redis://"+mr.Addr(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	l.RetryDelay = time.Millisecond
	return l, mr
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "assignment:1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("leadflow:lock:assignment:1"))
	assert.Equal(t, time.Second, mr.TTL("leadflow:lock:assignment:1"))

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "assignment:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.False(t, mr.Exists("leadflow:lock:assignment:1"))

	unlock2, err := l.Lock(ctx, "assignment:1")
	require.NoError(t, err)
	unlock2()
}

func TestRedisLocker_ReleaseKeepsForeignLease(t *testing.T) {
	l, mr := newRedisLocker(t)
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// Lease expired and someone else took it.
	require.NoError(t, mr.Set("leadflow:lock:k", "other-token"))
	unlock()

	v, err := mr.Get("leadflow:lock:k")
	require.NoError(t, err)
	assert.Equal(t, "other-token", v)
}

func TestNewRedisLocker_BadURL(t *testing.T) {
	_, err := NewRedisLocker("not a url", time.Second)
	assert.Error(t, err)
}
