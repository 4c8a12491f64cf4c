package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/retry"
)

// FanOutReport summarizes a fan-out.
type FanOutReport struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Dropped   int `json:"dropped"`
}

// FanOut processes items concurrently. Each item holds one slot of the
// task's resource class per attempt and retries independently under the
// task's retry policy. Items that exhaust their attempts are dropped; the
// surviving results keep input order. An error is returned only when ctx
// ends before every item has finished.
func FanOut[T, R any](ctx context.Context, tc *TaskContext, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, FanOutReport, error) {
	type outcome struct {
		value R
		ok    bool
	}

	report := FanOutReport{Total: len(items)}
	results := make([]outcome, len(items))

	var g errgroup.Group
	for i, item := range items {
		g.Go(func() error {
			v, err := retry.DoValue(ctx, tc.retry, "task "+tc.TaskID.String()+" item", func(ctx context.Context) (R, error) {
				var zero R
				start := time.Now()
				release, err := tc.pool.Acquire(ctx, tc.class, tc.acquireTimeout)
				tc.metrics.waited(tc.class, time.Since(start))
				if err != nil {
					return zero, err
				}
				defer release()
				return fn(ctx, item)
			})
			if err != nil {
				tc.Logger.WarnContext(ctx, "sub-item dropped",
					"item", i,
					"error_kind", domain.KindOf(err).String(),
					"error", err)
				return nil
			}
			results[i] = outcome{value: v, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, report, err
	}

	out := make([]R, 0, len(items))
	for _, r := range results {
		if r.ok {
			out = append(out, r.value)
		}
	}
	report.Succeeded = len(out)
	report.Dropped = report.Total - report.Succeeded
	return out, report, nil
}
