package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sync/semaphore"

	"github.com/phrazzld/reelchain/internal/domain"
)

// Admitter decides whether a chain run may start. On success it returns a
// release function that the run calls when it ends.
type Admitter interface {
	Admit(ctx context.Context) (release func(), err error)
}

// AdmitterFunc adapts a function to Admitter.
type AdmitterFunc func(ctx context.Context) (func(), error)

// Admit implements Admitter.
func (f AdmitterFunc) Admit(ctx context.Context) (func(), error) {
	return f(ctx)
}

// AlwaysAdmit admits every run.
var AlwaysAdmit Admitter = AdmitterFunc(func(context.Context) (func(), error) {
	return func() {}, nil
})

// UsageSampler reports system memory and CPU utilization in percent.
type UsageSampler interface {
	Sample(ctx context.Context) (memPercent, cpuPercent float64, err error)
}

// HostSampler reads host utilization through gopsutil.
type HostSampler struct {
	// CPUInterval is the window over which CPU usage is measured.
	CPUInterval time.Duration
}

// Sample implements UsageSampler.
func (s HostSampler) Sample(ctx context.Context) (float64, float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("read memory usage: %w", err)
	}
	cpus, err := cpu.PercentWithContext(ctx, s.CPUInterval, false)
	if err != nil {
		return 0, 0, fmt.Errorf("read cpu usage: %w", err)
	}
	var cpuPct float64
	if len(cpus) > 0 {
		cpuPct = cpus[0]
	}
	return vm.UsedPercent, cpuPct, nil
}

// SystemAdmitter rejects runs while memory or CPU utilization is above the
// threshold, and optionally caps the number of concurrent chain runs.
type SystemAdmitter struct {
	sampler   UsageSampler
	threshold float64
	slots     *semaphore.Weighted
	logger    *slog.Logger
}

// NewSystemAdmitter creates an admitter. maxChains <= 0 means no cap.
func NewSystemAdmitter(sampler UsageSampler, thresholdPercent float64, maxChains int, logger *slog.Logger) *SystemAdmitter {
	a := &SystemAdmitter{
		sampler:   sampler,
		threshold: thresholdPercent,
		logger:    logger.With("component", "admission"),
	}
	if maxChains > 0 {
		a.slots = semaphore.NewWeighted(int64(maxChains))
	}
	return a
}

// Admit implements Admitter.
func (a *SystemAdmitter) Admit(ctx context.Context) (func(), error) {
	const op = "orchestrator.Admit"

	memPct, cpuPct, err := a.sampler.Sample(ctx)
	if err != nil {
		// Sampling failures admit the run.
		a.logger.WarnContext(ctx, "resource sampling failed, admitting run", "error", err)
	} else if memPct > a.threshold || cpuPct > a.threshold {
		return nil, domain.Errorf(domain.KindResourceExhaustion, op,
			"system utilization too high (memory %.1f%%, cpu %.1f%%, threshold %.0f%%)",
			memPct, cpuPct, a.threshold)
	}

	if a.slots == nil {
		return func() {}, nil
	}
	if !a.slots.TryAcquire(1) {
		return nil, domain.Errorf(domain.KindResourceExhaustion, op, "too many concurrent chain runs")
	}
	released := false
	return func() {
		if !released {
			released = true
			a.slots.Release(1)
		}
	}, nil
}
