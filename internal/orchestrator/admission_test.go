package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/reelchain/internal/domain"
)

type stubSampler struct {
	mem, cpu float64
	err      error
}

func (s stubSampler) Sample(context.Context) (float64, float64, error) {
	return s.mem, s.cpu, s.err
}

func TestSystemAdmitter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sampler stubSampler
		admit   bool
	}{
		{name: "low utilization", sampler: stubSampler{mem: 40, cpu: 20}, admit: true},
		{name: "at threshold", sampler: stubSampler{mem: 90, cpu: 90}, admit: true},
		{name: "memory pressure", sampler: stubSampler{mem: 93.5, cpu: 10}, admit: false},
		{name: "cpu pressure", sampler: stubSampler{mem: 10, cpu: 99}, admit: false},
		{name: "sampling error", sampler: stubSampler{err: errors.New("no /proc")}, admit: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewSystemAdmitter(tt.sampler, 90, 0, discardLogger())
			release, err := a.Admit(context.Background())
			if !tt.admit {
				require.Error(t, err)
				assert.Equal(t, domain.KindResourceExhaustion, domain.KindOf(err))
				return
			}
			require.NoError(t, err)
			release()
		})
	}
}

func TestSystemAdmitterCapsConcurrentChains(t *testing.T) {
	t.Parallel()
	a := NewSystemAdmitter(stubSampler{}, 90, 2, discardLogger())
	ctx := context.Background()

	r1, err := a.Admit(ctx)
	require.NoError(t, err)
	r2, err := a.Admit(ctx)
	require.NoError(t, err)

	_, err = a.Admit(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many concurrent chain runs")

	r1()
	r1()
	r3, err := a.Admit(ctx)
	require.NoError(t, err)
	r2()
	r3()
}

func TestHostSamplerReportsPercentages(t *testing.T) {
	if testing.Short() {
		t.Skip("reads host utilization")
	}
	memPct, cpuPct, err := HostSampler{CPUInterval: 50 * time.Millisecond}.Sample(context.Background())
	if err != nil {
		t.Skipf("host metrics unavailable: %v", err)
	}
	assert.GreaterOrEqual(t, memPct, 0.0)
	assert.LessOrEqual(t, memPct, 100.0)
	assert.GreaterOrEqual(t, cpuPct, 0.0)
}
