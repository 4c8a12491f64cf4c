// Package redisconn manages a set of redundant Redis instances and keeps one
// of them "active" for every consumer in the process.
//
// Init connects to each configured instance in configuration order; the first
// one that answers becomes active. A periodic health check pings the active
// instance and fails over to the first healthy standby when it stops
// answering. Operations already issued against a dead instance are not
// replayed: they fail with a connection error and the caller retries, at
// which point Current returns the new active instance.
package redisconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/retry"
)

// Default values for Options.
const (
	DefaultHealthInterval = 60 * time.Second
	DefaultPingTimeout    = 5 * time.Second
	DefaultDialTimeout    = 10 * time.Second
)

// ErrNoActiveInstance is returned by Current before a successful Init.
var ErrNoActiveInstance = errors.New("no active store instance")

// ErrUnknownInstance is returned when a name does not match any configured instance.
var ErrUnknownInstance = errors.New("unknown store instance")

// InstanceConfig names one Redis endpoint.
type InstanceConfig struct {
	Name string
	URL  string
}

// Options configures a Manager.
type Options struct {
	Instances      []InstanceConfig
	ConnectPolicy  retry.Policy
	HealthInterval time.Duration
	PingTimeout    time.Duration
	DialTimeout    time.Duration
	Logger         *slog.Logger

	// OnSwitch, when set, is called after the active instance changes.
	OnSwitch func(from, to string)
}

// Handles are the clients bound to one instance. Text is used for small
// keyed values and streams; Binary has its own pool for large payloads.
type Handles struct {
	Name   string
	Text   *redis.Client
	Binary *redis.Client
}

// InstanceStatus is a snapshot of one instance's health.
type InstanceStatus struct {
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

type instance struct {
	name    string
	handles Handles

	mu        sync.Mutex
	healthy   bool
	lastCheck time.Time
	lastErr   error
}

func (i *instance) record(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.healthy = err == nil
	i.lastCheck = time.Now().UTC()
	i.lastErr = err
}

func (i *instance) status() InstanceStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := InstanceStatus{Name: i.name, Healthy: i.healthy, LastCheck: i.lastCheck}
	if i.lastErr != nil {
		s.LastError = i.lastErr.Error()
	}
	return s
}

// Manager owns the instance set and the active pointer.
type Manager struct {
	opts      Options
	logger    *slog.Logger
	instances []*instance

	active   atomic.Pointer[instance]
	switchMu sync.Mutex
	group    singleflight.Group
}

// New validates options and builds clients for every instance.
// No network I/O happens until Init.
func New(opts Options) (*Manager, error) {
	const op = "redisconn.New"

	if len(opts.Instances) == 0 {
		return nil, domain.Errorf(domain.KindConfiguration, op, "no store instances configured")
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = DefaultHealthInterval
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = DefaultPingTimeout
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.ConnectPolicy.MaxAttempts == 0 {
		opts.ConnectPolicy = retry.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "redisconn")
	opts.ConnectPolicy = opts.ConnectPolicy.WithLogger(logger)

	m := &Manager{opts: opts, logger: logger}
	seen := make(map[string]bool, len(opts.Instances))
	for _, ic := range opts.Instances {
		name := strings.TrimSpace(ic.Name)
		if name == "" {
			return nil, domain.Errorf(domain.KindConfiguration, op, "store instance name is empty")
		}
		if seen[name] {
			return nil, domain.Errorf(domain.KindConfiguration, op, "duplicate store instance %q", name)
		}
		seen[name] = true

		handles, err := newHandles(name, ic.URL, opts.DialTimeout)
		if err != nil {
			return nil, domain.E(domain.KindConfiguration, op, err)
		}
		m.instances = append(m.instances, &instance{name: name, handles: handles})
	}
	return m, nil
}

func newHandles(name, url string, dialTimeout time.Duration) (Handles, error) {
	textOpts, err := redis.ParseURL(url)
	if err != nil {
		return Handles{}, fmt.Errorf("instance %q: parse url: %w", name, err)
	}
	textOpts.DialTimeout = dialTimeout
	textOpts.ClientName = "reelchain-" + name

	binOpts := *textOpts
	binOpts.ReadTimeout = 30 * time.Second
	binOpts.WriteTimeout = 30 * time.Second
	binOpts.PoolSize = 4

	return Handles{
		Name:   name,
		Text:   redis.NewClient(textOpts),
		Binary: redis.NewClient(&binOpts),
	}, nil
}

// Init connects to every instance in configuration order, each with its own
// retry budget. The first instance to answer becomes active. If none answers,
// Init returns a configuration error and no active instance is set.
func (m *Manager) Init(ctx context.Context) error {
	const op = "redisconn.Init"

	var failures []string
	connected := 0
	for _, inst := range m.instances {
		err := m.opts.ConnectPolicy.Do(ctx, "connect "+inst.name, func(ctx context.Context) error {
			return m.ping(ctx, inst)
		})
		inst.record(err)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", inst.name, err))
			m.logger.WarnContext(ctx, "store instance unreachable at startup",
				"instance", inst.name,
				"error", err)
			continue
		}

		connected++
		if m.active.CompareAndSwap(nil, inst) {
			m.logger.InfoContext(ctx, "active store instance selected", "instance", inst.name)
		}
	}

	if connected == 0 {
		m.active.Store(nil)
		return domain.Errorf(domain.KindConfiguration, op,
			"no store instance reachable: %s", strings.Join(failures, "; "))
	}

	m.logger.InfoContext(ctx, "store connections initialized",
		"connected", connected,
		"configured", len(m.instances),
		"active", m.active.Load().name)
	return nil
}

// Current returns the handles of the active instance.
func (m *Manager) Current() (Handles, error) {
	inst := m.active.Load()
	if inst == nil {
		return Handles{}, domain.E(domain.KindConnection, "redisconn.Current", ErrNoActiveInstance)
	}
	return inst.handles, nil
}

// ActiveName returns the active instance name, or "" before Init.
func (m *Manager) ActiveName() string {
	if inst := m.active.Load(); inst != nil {
		return inst.name
	}
	return ""
}

// Switch makes the named instance active after confirming it answers a ping.
func (m *Manager) Switch(ctx context.Context, name string) error {
	const op = "redisconn.Switch"

	target := m.lookup(name)
	if target == nil {
		return domain.E(domain.KindValidation, op, fmt.Errorf("%w: %q", ErrUnknownInstance, name))
	}

	err := m.ping(ctx, target)
	target.record(err)
	if err != nil {
		return domain.E(domain.KindConnection, op, err)
	}

	m.switchMu.Lock()
	defer m.switchMu.Unlock()
	m.swap(ctx, m.active.Load(), target, "manual switch")
	return nil
}

// Reconnect verifies the active instance and fails over if it is dead.
// Concurrent callers share a single attempt.
func (m *Manager) Reconnect(ctx context.Context) error {
	_, err, _ := m.group.Do("reconnect", func() (any, error) {
		return nil, m.ensureActive(ctx, "reconnect requested")
	})
	return err
}

// CheckHealth pings the active instance, fails over if it does not answer,
// and refreshes the health of every standby.
func (m *Manager) CheckHealth(ctx context.Context) error {
	_, err, _ := m.group.Do("reconnect", func() (any, error) {
		return nil, m.ensureActive(ctx, "health check failed")
	})
	m.pingStandbys(ctx)
	return err
}

// ensureActive pings the active instance and switches to the first healthy
// standby when it fails. With no healthy instance at all the pointer stays
// where it is, marked unhealthy, and a connection error is returned.
func (m *Manager) ensureActive(ctx context.Context, reason string) error {
	const op = "redisconn.ensureActive"

	current := m.active.Load()
	if current == nil {
		return domain.E(domain.KindConnection, op, ErrNoActiveInstance)
	}

	err := m.ping(ctx, current)
	current.record(err)
	if err == nil {
		return nil
	}

	m.logger.WarnContext(ctx, "active store instance not answering",
		"instance", current.name,
		"error", err)

	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	// Another routine may have switched while we were pinging.
	if m.active.Load() != current {
		return nil
	}

	for _, candidate := range m.instances {
		if candidate == current {
			continue
		}
		perr := m.ping(ctx, candidate)
		candidate.record(perr)
		if perr != nil {
			continue
		}
		m.swap(ctx, current, candidate, reason)
		return nil
	}

	m.logger.ErrorContext(ctx, "no healthy store instance available",
		"active", current.name)
	return domain.Errorf(domain.KindConnection, op, "no healthy store instance: %w", err)
}

// swap must be called with switchMu held.
func (m *Manager) swap(ctx context.Context, from, to *instance, reason string) {
	m.active.Store(to)

	fromName := ""
	if from != nil {
		fromName = from.name
	}
	if fromName == to.name {
		return
	}

	m.logger.WarnContext(ctx, "active store instance switched",
		"from", fromName,
		"to", to.name,
		"reason", reason)

	if m.opts.OnSwitch != nil {
		m.opts.OnSwitch(fromName, to.name)
	}

	status := map[string]any{
		"active":    to.name,
		"previous":  fromName,
		"reason":    reason,
		"switched":  time.Now().UTC().Format(time.RFC3339Nano),
		"instances": len(m.instances),
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.PingTimeout)
	defer cancel()
	if err := to.handles.Text.HSet(sctx, StatusKey, status).Err(); err != nil {
		m.logger.DebugContext(ctx, "failed to record store status", "error", err)
	}
}

// StatusKey is the hash where the active instance records switch events.
const StatusKey = "reelchain:store:status"

func (m *Manager) pingStandbys(ctx context.Context) {
	active := m.active.Load()
	g, gctx := errgroup.WithContext(ctx)
	for _, inst := range m.instances {
		if inst == active {
			continue
		}
		g.Go(func() error {
			err := m.ping(gctx, inst)
			inst.record(err)
			if err != nil {
				m.logger.DebugContext(ctx, "standby store instance not answering",
					"instance", inst.name,
					"error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Manager) ping(ctx context.Context, inst *instance) error {
	pctx, cancel := context.WithTimeout(ctx, m.opts.PingTimeout)
	defer cancel()
	if err := inst.handles.Text.Ping(pctx).Err(); err != nil {
		return domain.E(domain.KindConnection, "ping "+inst.name, err)
	}
	return nil
}

// Ping checks the active instance without changing any health state.
func (m *Manager) Ping(ctx context.Context) error {
	inst := m.active.Load()
	if inst == nil {
		return domain.E(domain.KindConnection, "redisconn.Ping", ErrNoActiveInstance)
	}
	return m.ping(ctx, inst)
}

func (m *Manager) lookup(name string) *instance {
	for _, inst := range m.instances {
		if inst.name == name {
			return inst
		}
	}
	return nil
}

// Status returns a health snapshot of every instance in configuration order.
func (m *Manager) Status() []InstanceStatus {
	active := m.active.Load()
	out := make([]InstanceStatus, 0, len(m.instances))
	for _, inst := range m.instances {
		s := inst.status()
		s.Active = inst == active
		out = append(out, s)
	}
	return out
}

// HealthInterval is the configured period between health checks.
func (m *Manager) HealthInterval() time.Duration {
	return m.opts.HealthInterval
}

// Close closes every client. The manager must not be used afterwards.
func (m *Manager) Close() error {
	var errs []error
	for _, inst := range m.instances {
		if err := inst.handles.Text.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s text client: %w", inst.name, err))
		}
		if err := inst.handles.Binary.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s binary client: %w", inst.name, err))
		}
	}
	m.logger.Info("store connections closed", "instances", len(m.instances))
	return errors.Join(errs...)
}
