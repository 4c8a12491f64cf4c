package redisconn

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/retry"
)

func testOptions(instances ...InstanceConfig) Options {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return Options{
		Instances: instances,
		ConnectPolicy: retry.Policy{
			MaxAttempts: 2,
			Base:        2,
			Unit:        time.Millisecond,
			Logger:      logger,
		},
		PingTimeout: 200 * time.Millisecond,
		DialTimeout: 200 * time.Millisecond,
		Logger:      logger,
	}
}

func redisURL(mr *miniredis.Miniredis) string {
	return "redis://" + mr.Addr()
}

// deadURL points at a port nothing listens on, so dials are refused.
func deadURL(*testing.T) string {
	return "redis://127.0.0.1:1"
}

func newManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(testOptions())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))

	_, err = New(testOptions(
		InstanceConfig{Name: "a", URL: "redis://localhost:6379"},
		InstanceConfig{Name: "a", URL: "redis://localhost:6380"},
	))
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))

	_, err = New(testOptions(InstanceConfig{Name: "a", URL: "://bad"}))
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))
}

func TestInitSelectsFirstReachableInstance(t *testing.T) {
	t.Parallel()

	second := miniredis.RunT(t)
	third := miniredis.RunT(t)

	m := newManager(t, testOptions(
		InstanceConfig{Name: "primary", URL: deadURL(t)},
		InstanceConfig{Name: "secondary", URL: redisURL(second)},
		InstanceConfig{Name: "tertiary", URL: redisURL(third)},
	))

	require.NoError(t, m.Init(context.Background()))
	assert.Equal(t, "secondary", m.ActiveName())

	h, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, "secondary", h.Name)
	require.NoError(t, h.Text.Set(context.Background(), "k", "v", 0).Err())
	assert.Equal(t, "v", mustGet(t, second, "k"))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestInitFailsWhenNoInstanceReachable(t *testing.T) {
	t.Parallel()

	m := newManager(t, testOptions(
		InstanceConfig{Name: "a", URL: deadURL(t)},
		InstanceConfig{Name: "b", URL: deadURL(t)},
	))

	err := m.Init(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))
	assert.Equal(t, "", m.ActiveName())

	_, err = m.Current()
	assert.True(t, domain.IsKind(err, domain.KindConnection))
	assert.ErrorIs(t, err, ErrNoActiveInstance)
}

func TestCheckHealthFailsOverToFirstHealthyStandby(t *testing.T) {
	primary := miniredis.RunT(t)
	standbyA := miniredis.RunT(t)
	standbyB := miniredis.RunT(t)

	var mu sync.Mutex
	var switches [][2]string
	opts := testOptions(
		InstanceConfig{Name: "primary", URL: redisURL(primary)},
		InstanceConfig{Name: "standby-a", URL: redisURL(standbyA)},
		InstanceConfig{Name: "standby-b", URL: redisURL(standbyB)},
	)
	opts.OnSwitch = func(from, to string) {
		mu.Lock()
		defer mu.Unlock()
		switches = append(switches, [2]string{from, to})
	}
	m := newManager(t, opts)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))
	require.Equal(t, "primary", m.ActiveName())

	old, err := m.Current()
	require.NoError(t, err)

	primary.Close()
	standbyA.Close()

	// In-flight style call against the dead instance surfaces a connection error.
	require.Error(t, old.Text.Ping(ctx).Err())

	require.NoError(t, m.CheckHealth(ctx))
	assert.Equal(t, "standby-b", m.ActiveName())

	h, err := m.Current()
	require.NoError(t, err)
	require.NoError(t, h.Text.Set(ctx, "after", "failover", 0).Err())
	assert.Equal(t, "failover", mustGet(t, standbyB, "after"))
	assert.Equal(t, "standby-b", standbyB.HGet(StatusKey, "active"))

	mu.Lock()
	assert.Equal(t, [][2]string{{"primary", "standby-b"}}, switches)
	mu.Unlock()

	for _, s := range m.Status() {
		switch s.Name {
		case "standby-b":
			assert.True(t, s.Active)
			assert.True(t, s.Healthy)
		default:
			assert.False(t, s.Active)
			assert.False(t, s.Healthy)
		}
	}
}

func TestCheckHealthKeepsPointerWhenAllInstancesDead(t *testing.T) {
	primary := miniredis.RunT(t)
	standby := miniredis.RunT(t)
	m := newManager(t, testOptions(
		InstanceConfig{Name: "primary", URL: redisURL(primary)},
		InstanceConfig{Name: "standby", URL: redisURL(standby)},
	))
	require.NoError(t, m.Init(context.Background()))

	primary.Close()
	standby.Close()

	err := m.CheckHealth(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConnection))
	assert.Equal(t, "primary", m.ActiveName())

	// The pointer stays put but reports the failed check.
	for _, s := range m.Status() {
		assert.False(t, s.Healthy, s.Name)
		assert.Equal(t, s.Name == "primary", s.Active, s.Name)
	}
}

func TestReconnectIsNoopWhenActiveHealthy(t *testing.T) {
	t.Parallel()

	primary := miniredis.RunT(t)
	standby := miniredis.RunT(t)
	m := newManager(t, testOptions(
		InstanceConfig{Name: "primary", URL: redisURL(primary)},
		InstanceConfig{Name: "standby", URL: redisURL(standby)},
	))
	require.NoError(t, m.Init(context.Background()))

	require.NoError(t, m.Reconnect(context.Background()))
	assert.Equal(t, "primary", m.ActiveName())
}

func TestSwitch(t *testing.T) {
	primary := miniredis.RunT(t)
	standby := miniredis.RunT(t)
	down := miniredis.RunT(t)
	m := newManager(t, testOptions(
		InstanceConfig{Name: "primary", URL: redisURL(primary)},
		InstanceConfig{Name: "standby", URL: redisURL(standby)},
		InstanceConfig{Name: "down", URL: redisURL(down)},
	))
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))
	down.Close()

	require.NoError(t, m.Switch(ctx, "standby"))
	assert.Equal(t, "standby", m.ActiveName())

	err := m.Switch(ctx, "missing")
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.ErrorIs(t, err, ErrUnknownInstance)

	err = m.Switch(ctx, "down")
	assert.True(t, domain.IsKind(err, domain.KindConnection))
	assert.Equal(t, "standby", m.ActiveName())
}

func TestConcurrentReadersSeeWholeHandles(t *testing.T) {
	t.Parallel()

	a := miniredis.RunT(t)
	b := miniredis.RunT(t)
	m := newManager(t, testOptions(
		InstanceConfig{Name: "a", URL: redisURL(a)},
		InstanceConfig{Name: "b", URL: redisURL(b)},
	))
	ctx := context.Background()
	require.NoError(t, m.Init(ctx))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				h, err := m.Current()
				if !assert.NoError(t, err) {
					return
				}
				if !assert.Equal(t, h.Name, h.Text.Options().ClientName[len("reelchain-"):]) {
					return
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		name := "a"
		if i%2 == 0 {
			name = "b"
		}
		require.NoError(t, m.Switch(ctx, name))
	}
	close(stop)
	wg.Wait()
}

func TestPing(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	m := newManager(t, testOptions(InstanceConfig{Name: "main", URL: redisURL(mr)}))

	err := m.Ping(context.Background())
	assert.True(t, domain.IsKind(err, domain.KindConnection), "ping before init")

	require.NoError(t, m.Init(context.Background()))
	require.NoError(t, m.Ping(context.Background()))

	mr.Close()
	err = m.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConnection))
	assert.Equal(t, "main", m.ActiveName())
}
