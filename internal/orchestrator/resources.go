package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/phrazzld/reelchain/internal/domain"
)

// ResourcePool bounds concurrent holders per resource class across all chain
// runs. Waiters are admitted in FIFO order. Classes without a limit are
// unbounded.
type ResourcePool struct {
	classes map[ResourceClass]*classSlot
}

type classSlot struct {
	limit int64
	sem   *semaphore.Weighted
	inUse atomic.Int64
	peak  atomic.Int64
}

// NewResourcePool creates a pool with the given per-class limits.
func NewResourcePool(limits map[ResourceClass]int) (*ResourcePool, error) {
	p := &ResourcePool{classes: make(map[ResourceClass]*classSlot, len(limits))}
	for class, limit := range limits {
		if limit <= 0 {
			return nil, fmt.Errorf("resource class %q: limit must be positive, got %d", class, limit)
		}
		p.classes[class] = &classSlot{limit: int64(limit), sem: semaphore.NewWeighted(int64(limit))}
	}
	return p, nil
}

// Acquire takes one slot of class, waiting at most timeout. The returned
// release function is idempotent and must be called on every exit path.
// A wait that exceeds timeout is a resource exhaustion error; a cancelled
// ctx is returned as is.
func (p *ResourcePool) Acquire(ctx context.Context, class ResourceClass, timeout time.Duration) (func(), error) {
	if p == nil {
		return func() {}, nil
	}
	slot, ok := p.classes[class]
	if !ok {
		return func() {}, nil
	}

	actx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := slot.sem.Acquire(actx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.Errorf(domain.KindResourceExhaustion, "acquire "+string(class),
				"no %s slot free within %s (limit %d)", class, timeout, slot.limit)
		}
		return nil, err
	}

	n := slot.inUse.Add(1)
	for {
		peak := slot.peak.Load()
		if n <= peak || slot.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			slot.inUse.Add(-1)
			slot.sem.Release(1)
		})
	}, nil
}

// InUse returns the number of held slots of class.
func (p *ResourcePool) InUse(class ResourceClass) int {
	if p == nil {
		return 0
	}
	if slot, ok := p.classes[class]; ok {
		return int(slot.inUse.Load())
	}
	return 0
}

// Peak returns the highest number of simultaneously held slots of class.
func (p *ResourcePool) Peak(class ResourceClass) int {
	if p == nil {
		return 0
	}
	if slot, ok := p.classes[class]; ok {
		return int(slot.peak.Load())
	}
	return 0
}

// Limit returns the limit of class, or 0 when unbounded.
func (p *ResourcePool) Limit(class ResourceClass) int {
	if p == nil {
		return 0
	}
	if slot, ok := p.classes[class]; ok {
		return int(slot.limit)
	}
	return 0
}
