package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/platform/redisconn"
)

// HandleSource yields the handles of the active store instance.
type HandleSource interface {
	Current() (redisconn.Handles, error)
}

// RedisBackend stores each run as a capped Redis stream whose entry ids are
// "<sequence>-0". The sequence counter and the XADD run in one script so ids
// stay ordered under concurrent publishers.
//
// The counter lives on whichever instance is active, so after a failover the
// new instance knows nothing of ids issued before the switch. A run is
// published by one process, so the backend remembers the highest id it has
// issued per run and passes it as a floor; the script never issues an id at
// or below it. A subscriber resuming from a pre-failover cursor therefore
// still sees every later entry.
type RedisBackend struct {
	source   HandleSource
	capacity int

	mu     sync.Mutex
	floors map[uuid.UUID]uint64
}

var appendScript = redis.NewScript(`
local seq = tonumber(redis.call('GET', KEYS[2]) or '0')
local floor = tonumber(ARGV[3])
if seq < floor then
  seq = floor
end
seq = seq + 1
redis.call('SET', KEYS[2], seq)
redis.call('XADD', KEYS[1], 'MAXLEN', ARGV[2], seq .. '-0', 'entry', ARGV[1])
return seq
`)

// NewRedisBackend creates a backend retaining at most capacity entries per run.
func NewRedisBackend(source HandleSource, capacity int) *RedisBackend {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RedisBackend{
		source:   source,
		capacity: capacity,
		floors:   make(map[uuid.UUID]uint64),
	}
}

// StreamKey is the stream holding a run's entries.
func StreamKey(runID uuid.UUID) string {
	return "reelchain:events:" + runID.String()
}

func seqKey(runID uuid.UUID) string {
	return StreamKey(runID) + ":seq"
}

func (b *RedisBackend) floor(runID uuid.UUID) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.floors[runID]
}

func (b *RedisBackend) observe(runID uuid.UUID, seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if seq > b.floors[runID] {
		b.floors[runID] = seq
	}
}

func (b *RedisBackend) client() (*redis.Client, error) {
	h, err := b.source.Current()
	if err != nil {
		return nil, err
	}
	return h.Text, nil
}

func (b *RedisBackend) Append(ctx context.Context, e Entry) (Entry, error) {
	c, err := b.client()
	if err != nil {
		return Entry{}, err
	}

	stored := e
	stored.SequenceID = 0
	data, err := json.Marshal(stored)
	if err != nil {
		return Entry{}, fmt.Errorf("eventlog: encode entry: %w", err)
	}

	seq, err := appendScript.Run(ctx, c,
		[]string{StreamKey(e.RunID), seqKey(e.RunID)},
		string(data), b.capacity, b.floor(e.RunID),
	).Int64()
	if err != nil {
		return Entry{}, redisError("append", err)
	}
	e.SequenceID = uint64(seq)
	b.observe(e.RunID, e.SequenceID)
	return e, nil
}

func (b *RedisBackend) Read(ctx context.Context, runID uuid.UUID, after uint64, limit int, wait time.Duration) ([]Entry, error) {
	c, err := b.client()
	if err != nil {
		return nil, err
	}

	block := time.Duration(-1)
	if wait > 0 {
		block = wait
	}
	args := &redis.XReadArgs{
		Streams: []string{StreamKey(runID), fmt.Sprintf("%d-0", after)},
		Block:   block,
	}
	if limit > 0 {
		args.Count = int64(limit)
	}

	streams, err := c.XRead(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, redisError("read", err)
	}

	var out []Entry
	for _, s := range streams {
		for _, msg := range s.Messages {
			e, err := decodeMessage(msg)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
	}
	return out, nil
}

func decodeMessage(msg redis.XMessage) (Entry, error) {
	seqPart, _, _ := strings.Cut(msg.ID, "-")
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("eventlog: bad stream id %q: %w", msg.ID, err)
	}
	raw, ok := msg.Values["entry"].(string)
	if !ok {
		return Entry{}, fmt.Errorf("eventlog: stream entry %s has no payload", msg.ID)
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Entry{}, fmt.Errorf("eventlog: decode entry %s: %w", msg.ID, err)
	}
	e.SequenceID = seq
	return e, nil
}

func (b *RedisBackend) Len(ctx context.Context, runID uuid.UUID) (int, error) {
	c, err := b.client()
	if err != nil {
		return 0, err
	}
	n, err := c.XLen(ctx, StreamKey(runID)).Result()
	if err != nil {
		return 0, redisError("len", err)
	}
	return int(n), nil
}

func (b *RedisBackend) Expire(ctx context.Context, runID uuid.UUID, ttl time.Duration) error {
	c, err := b.client()
	if err != nil {
		return err
	}
	_, err = c.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, StreamKey(runID), ttl)
		pipe.Expire(ctx, seqKey(runID), ttl)
		return nil
	})
	if err != nil {
		return redisError("expire", err)
	}
	b.mu.Lock()
	delete(b.floors, runID)
	b.mu.Unlock()
	return nil
}

func redisError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.E(domain.KindConnection, "eventlog."+op, err)
}
