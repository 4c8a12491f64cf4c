// Package redisstore implements the store contracts on top of whichever Redis
// instance the connection manager currently reports as active.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/platform/redisconn"
	"github.com/phrazzld/reelchain/internal/store"
)

// KeyPrefix namespaces every key written by this package.
const KeyPrefix = "reelchain:"

// HandleSource yields the handles of the active instance.
// *redisconn.Manager satisfies it.
type HandleSource interface {
	Current() (redisconn.Handles, error)
}

// Store implements TaskResultStore, ChainStore, AudioStore and CredentialStore.
type Store struct {
	source HandleSource
}

var (
	_ store.TaskResultStore = (*Store)(nil)
	_ store.ChainStore      = (*Store)(nil)
	_ store.AudioStore      = (*Store)(nil)
	_ store.CredentialStore = (*Store)(nil)
)

// New creates a Store reading handles from source on every call.
func New(source HandleSource) *Store {
	return &Store{source: source}
}

// TaskKey is the cache key of one task result.
func TaskKey(runID uuid.UUID, taskID domain.TaskID) string {
	return fmt.Sprintf("%srun:%s:task:%d", KeyPrefix, runID, taskID)
}

// ChainKey is the hash holding a chain summary.
func ChainKey(runID uuid.UUID) string {
	return KeyPrefix + "chain:" + runID.String()
}

// AudioKey is the binary key holding synthesized audio.
func AudioKey(runID uuid.UUID) string {
	return KeyPrefix + "run:" + runID.String() + ":audio"
}

// CredentialsKey is the hash holding sealed credentials.
const CredentialsKey = KeyPrefix + "credentials"

// SaveTaskRun stores the run as JSON with a TTL.
func (s *Store) SaveTaskRun(ctx context.Context, runID uuid.UUID, run *domain.TaskRun, ttl time.Duration) error {
	h, err := s.source.Current()
	if err != nil {
		return store.NewStoreError("task_result", "save", "no active instance", err)
	}
	data, err := json.Marshal(run)
	if err != nil {
		return store.NewStoreError("task_result", "save", "marshal", err)
	}
	if err := h.Text.Set(ctx, TaskKey(runID, run.TaskID), data, ttl).Err(); err != nil {
		return mapError("task_result", "save", err, nil)
	}
	return nil
}

// GetTaskRun reads a cached task result.
func (s *Store) GetTaskRun(ctx context.Context, runID uuid.UUID, taskID domain.TaskID) (*domain.TaskRun, error) {
	h, err := s.source.Current()
	if err != nil {
		return nil, store.NewStoreError("task_result", "get", "no active instance", err)
	}
	data, err := h.Text.Get(ctx, TaskKey(runID, taskID)).Bytes()
	if err != nil {
		return nil, mapError("task_result", "get", err, store.ErrTaskResultNotFound)
	}
	var run domain.TaskRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, store.NewStoreError("task_result", "get", "decode", err)
	}
	return &run, nil
}

// SaveChain writes the chain summary hash and refreshes its TTL.
func (s *Store) SaveChain(ctx context.Context, chain *domain.ChainRun, ttl time.Duration) error {
	h, err := s.source.Current()
	if err != nil {
		return store.NewStoreError("chain", "save", "no active instance", err)
	}
	fields, err := chainFields(chain)
	if err != nil {
		return store.NewStoreError("chain", "save", "encode", err)
	}
	key := ChainKey(chain.RunID)
	_, err = h.Text.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return mapError("chain", "save", err, nil)
	}
	return nil
}

// GetChain reads a chain summary.
func (s *Store) GetChain(ctx context.Context, runID uuid.UUID) (*domain.ChainRun, error) {
	h, err := s.source.Current()
	if err != nil {
		return nil, store.NewStoreError("chain", "get", "no active instance", err)
	}
	fields, err := h.Text.HGetAll(ctx, ChainKey(runID)).Result()
	if err != nil {
		return nil, mapError("chain", "get", err, store.ErrRunNotFound)
	}
	if len(fields) == 0 {
		return nil, store.ErrRunNotFound
	}
	chain, err := parseChain(runID, fields)
	if err != nil {
		return nil, store.NewStoreError("chain", "get", "decode", err)
	}
	return chain, nil
}

// SaveAudio stores audio bytes through the binary handle.
func (s *Store) SaveAudio(ctx context.Context, runID uuid.UUID, audio []byte, ttl time.Duration) (string, error) {
	h, err := s.source.Current()
	if err != nil {
		return "", store.NewStoreError("audio", "save", "no active instance", err)
	}
	key := AudioKey(runID)
	if err := h.Binary.Set(ctx, key, audio, ttl).Err(); err != nil {
		return "", mapError("audio", "save", err, nil)
	}
	return key, nil
}

// GetAudio reads audio bytes through the binary handle.
func (s *Store) GetAudio(ctx context.Context, runID uuid.UUID) ([]byte, error) {
	h, err := s.source.Current()
	if err != nil {
		return nil, store.NewStoreError("audio", "get", "no active instance", err)
	}
	data, err := h.Binary.Get(ctx, AudioKey(runID)).Bytes()
	if err != nil {
		return nil, mapError("audio", "get", err, store.ErrAudioNotFound)
	}
	return data, nil
}

// SaveCredentials replaces the stored credential blobs.
func (s *Store) SaveCredentials(ctx context.Context, sealed map[string][]byte) error {
	h, err := s.source.Current()
	if err != nil {
		return store.NewStoreError("credentials", "save", "no active instance", err)
	}
	values := make(map[string]any, len(sealed))
	for name, blob := range sealed {
		values[name] = blob
	}
	_, err = h.Binary.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, CredentialsKey)
		pipe.HSet(ctx, CredentialsKey, values)
		return nil
	})
	if err != nil {
		return mapError("credentials", "save", err, nil)
	}
	return nil
}

// LoadCredentials reads every stored credential blob.
func (s *Store) LoadCredentials(ctx context.Context) (map[string][]byte, error) {
	h, err := s.source.Current()
	if err != nil {
		return nil, store.NewStoreError("credentials", "load", "no active instance", err)
	}
	fields, err := h.Binary.HGetAll(ctx, CredentialsKey).Result()
	if err != nil {
		return nil, mapError("credentials", "load", err, store.ErrCredentialsNotFound)
	}
	if len(fields) == 0 {
		return nil, store.ErrCredentialsNotFound
	}
	out := make(map[string][]byte, len(fields))
	for name, v := range fields {
		out[name] = []byte(v)
	}
	return out, nil
}

// mapError converts redis failures into store errors. redis.Nil becomes
// notFound when given; context errors keep their identity; anything else is
// a connection error so callers can trigger failover.
func mapError(entity, operation string, err error, notFound error) error {
	switch {
	case errors.Is(err, redis.Nil) && notFound != nil:
		return notFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return store.NewStoreError(entity, operation, "interrupted", err)
	default:
		return store.NewStoreError(entity, operation, "redis command failed",
			domain.E(domain.KindConnection, "redis", err))
	}
}

func chainFields(c *domain.ChainRun) (map[string]any, error) {
	completed, err := json.Marshal(c.Completed)
	if err != nil {
		return nil, err
	}
	failed, err := json.Marshal(c.Failed)
	if err != nil {
		return nil, err
	}
	skipped, err := json.Marshal(c.Skipped)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{
		"status":      string(c.Status),
		"topic":       c.Topic,
		"started_at":  c.StartedAt.UTC().Format(time.RFC3339Nano),
		"completed":   string(completed),
		"failed":      string(failed),
		"skipped":     string(skipped),
		"duration_ms": strconv.FormatInt(c.DurationMillis, 10),
		"error":       c.Error,
	}
	if c.EndedAt != nil {
		fields["ended_at"] = c.EndedAt.UTC().Format(time.RFC3339Nano)
	}
	return fields, nil
}

func parseChain(runID uuid.UUID, f map[string]string) (*domain.ChainRun, error) {
	c := &domain.ChainRun{
		RunID:  runID,
		Topic:  f["topic"],
		Status: domain.ChainStatus(f["status"]),
		Error:  f["error"],
	}
	var err error
	if c.StartedAt, err = time.Parse(time.RFC3339Nano, f["started_at"]); err != nil {
		return nil, fmt.Errorf("started_at: %w", err)
	}
	if v := f["ended_at"]; v != "" {
		end, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("ended_at: %w", err)
		}
		c.EndedAt = &end
	}
	if v := f["duration_ms"]; v != "" {
		if c.DurationMillis, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("duration_ms: %w", err)
		}
	}
	for field, dst := range map[string]*[]domain.TaskID{
		"completed": &c.Completed,
		"failed":    &c.Failed,
		"skipped":   &c.Skipped,
	} {
		*dst = []domain.TaskID{}
		if v := f[field]; v != "" {
			if err := json.Unmarshal([]byte(v), dst); err != nil {
				return nil, fmt.Errorf("%s: %w", field, err)
			}
		}
	}
	return c, nil
}
