package redisconn

import (
	"context"

	"github.com/phrazzld/reelchain/internal/platform/scheduler"
)

// HealthJobName is the scheduler entry used for periodic health checks.
const HealthJobName = "store-health-check"

// Schedule registers the periodic health check on s.
func (m *Manager) Schedule(s *scheduler.Scheduler) error {
	return s.Every(HealthJobName, m.opts.HealthInterval, func(ctx context.Context) {
		if err := m.CheckHealth(ctx); err != nil {
			m.logger.ErrorContext(ctx, "store health check failed", "error", err)
		}
	})
}
