package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/reelchain/internal/domain"
)

func TestNewResourcePoolRejectsBadLimits(t *testing.T) {
	t.Parallel()
	_, err := NewResourcePool(map[ResourceClass]int{ClassAudio: 0})
	require.Error(t, err)
}

func TestResourcePoolBoundsHolders(t *testing.T) {
	t.Parallel()
	pool, err := NewResourcePool(map[ResourceClass]int{ClassAudio: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, pool.Limit(ClassAudio))

	ctx := context.Background()
	r1, err := pool.Acquire(ctx, ClassAudio, time.Second)
	require.NoError(t, err)
	r2, err := pool.Acquire(ctx, ClassAudio, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, pool.InUse(ClassAudio))

	_, err = pool.Acquire(ctx, ClassAudio, 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, domain.KindResourceExhaustion, domain.KindOf(err))

	r1()
	r1() // idempotent
	assert.Equal(t, 1, pool.InUse(ClassAudio))

	r3, err := pool.Acquire(ctx, ClassAudio, time.Second)
	require.NoError(t, err)
	r2()
	r3()
	assert.Equal(t, 0, pool.InUse(ClassAudio))
	assert.Equal(t, 2, pool.Peak(ClassAudio))
}

func TestResourcePoolWaitersProceed(t *testing.T) {
	t.Parallel()
	pool, err := NewResourcePool(map[ResourceClass]int{ClassImage: 5})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := pool.Acquire(context.Background(), ClassImage, 5*time.Second)
			if err != nil {
				errs <- err
				return
			}
			defer release()
			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected acquire error: %v", err)
	}
	assert.LessOrEqual(t, pool.Peak(ClassImage), 5)
	assert.Equal(t, 0, pool.InUse(ClassImage))
}

func TestResourcePoolCancellation(t *testing.T) {
	t.Parallel()
	pool, err := NewResourcePool(map[ResourceClass]int{ClassAudio: 1})
	require.NoError(t, err)

	hold, err := pool.Acquire(context.Background(), ClassAudio, 0)
	require.NoError(t, err)
	defer hold()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pool.Acquire(ctx, ClassAudio, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, domain.KindResourceExhaustion, domain.KindOf(err))
}

func TestResourcePoolUnboundedClasses(t *testing.T) {
	t.Parallel()
	pool, err := NewResourcePool(map[ResourceClass]int{ClassAudio: 1})
	require.NoError(t, err)

	for range 10 {
		release, err := pool.Acquire(context.Background(), ClassText, time.Millisecond)
		require.NoError(t, err)
		defer release()
	}
	assert.Equal(t, 0, pool.Limit(ClassText))

	var nilPool *ResourcePool
	release, err := nilPool.Acquire(context.Background(), ClassAudio, time.Millisecond)
	require.NoError(t, err)
	release()
	assert.Equal(t, 0, nilPool.InUse(ClassAudio))
}
