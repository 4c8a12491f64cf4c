package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/platform/redisconn"
	"github.com/phrazzld/reelchain/internal/store"
)

type staticSource struct {
	handles redisconn.Handles
	err     error
}

func (s staticSource) Current() (redisconn.Handles, error) {
	return s.handles, s.err
}

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	text := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	binary := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = text.Close()
		_ = binary.Close()
	})
	return New(staticSource{handles: redisconn.Handles{Name: "test", Text: text, Binary: binary}}), mr
}

func TestTaskRunRoundTrip(t *testing.T) {
	t.Parallel()
	s, mr := newTestStore(t)
	ctx := context.Background()
	runID := uuid.New()

	run := domain.NewTaskRun(3)
	run.Status = domain.TaskStatusCompleted
	run.Result = &domain.TaskResult{
		Status:    domain.ResultStatusSuccess,
		Content:   json.RawMessage(`{"outline":"intro"}`),
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	require.NoError(t, s.SaveTaskRun(ctx, runID, run, time.Hour))
	assert.Equal(t, time.Hour, mr.TTL(TaskKey(runID, 3)))

	first, err := s.GetTaskRun(ctx, runID, 3)
	require.NoError(t, err)
	second, err := s.GetTaskRun(ctx, runID, 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, domain.TaskStatusCompleted, first.Status)
	assert.JSONEq(t, `{"outline":"intro"}`, string(first.Result.Content))

	mr.FastForward(2 * time.Hour)
	_, err = s.GetTaskRun(ctx, runID, 3)
	assert.ErrorIs(t, err, store.ErrTaskResultNotFound)
}

func TestChainRoundTrip(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	chain := domain.NewChainRun(uuid.New(), "deep sea", start)
	chain.Completed = []domain.TaskID{1, 2, 3}
	chain.Failed = []domain.TaskID{4}
	chain.Skipped = []domain.TaskID{5, 6}
	chain.Error = "task 4 failed"
	chain.Finalize(domain.ChainStatusAborted, start.Add(90*time.Second))

	require.NoError(t, s.SaveChain(ctx, chain, time.Hour))

	got, err := s.GetChain(ctx, chain.RunID)
	require.NoError(t, err)
	assert.Equal(t, chain, got)

	_, err = s.GetChain(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestAudioUsesBinaryHandle(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()
	runID := uuid.New()

	audio := []byte{0xFF, 0xFB, 0x90, 0x00, 0x01}
	key, err := s.SaveAudio(ctx, runID, audio, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, AudioKey(runID), key)

	got, err := s.GetAudio(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, audio, got)

	_, err = s.GetAudio(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrAudioNotFound)
}

func TestCredentialsReplace(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadCredentials(ctx)
	assert.ErrorIs(t, err, store.ErrCredentialsNotFound)

	require.NoError(t, s.SaveCredentials(ctx, map[string][]byte{"a": {1, 2}, "b": {3}}))
	require.NoError(t, s.SaveCredentials(ctx, map[string][]byte{"a": {9}}))

	got, err := s.LoadCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": {9}}, got)
}

func TestErrorsClassifiedAsConnection(t *testing.T) {
	t.Parallel()
	s, mr := newTestStore(t)
	mr.Close()

	_, err := s.GetTaskRun(context.Background(), uuid.New(), 1)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConnection))
	assert.False(t, store.IsNotFoundError(err))

	var se *store.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "task_result", se.Entity)
}

func TestNoActiveInstance(t *testing.T) {
	t.Parallel()
	cause := domain.E(domain.KindConnection, "redisconn.Current", redisconn.ErrNoActiveInstance)
	s := New(staticSource{err: cause})

	err := s.SaveChain(context.Background(), domain.NewChainRun(uuid.New(), "x", time.Now()), 0)
	assert.True(t, domain.IsKind(err, domain.KindConnection))
	assert.ErrorIs(t, err, redisconn.ErrNoActiveInstance)
}
