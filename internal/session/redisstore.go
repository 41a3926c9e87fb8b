package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/graphmind/graphmind/internal/graphmodel"
)

// DebugSnapshot is one timestamped record mirrored to Redis alongside the
// on-disk debug_<ts>_<phase>.json file, so a debug UI can list recent
// snapshots across sessions without scanning the filesystem.
type DebugSnapshot struct {
	SessionID string                `json:"session_id"`
	Phase     string                `json:"phase"`
	Graph     *graphmodel.GraphState `json:"graph"`
	Timestamp time.Time             `json:"timestamp"`
}

const (
	debugSnapshotKeyPrefix = "graphmind:debug:"
	debugSnapshotIndexKey  = "graphmind:debug:index"
	defaultSnapshotTTL     = 24 * time.Hour
)

// RedisStore mirrors debug snapshots to Redis, keyed by session+timestamp
// and indexed in a sorted set for recency listing. Grounded on
// orchestration/redis_execution_store.go's key/index/TTL pattern (record
// key + ZADD into a by-time sorted set), adapted from go-redis v8 to the
// v9 client the rest of this module pins.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore dials addr (host:port, no auth) and returns a RedisStore.
// Connectivity is not verified until the first call — session persistence
// to disk (FileStore) must never depend on Redis being reachable.
func NewRedisStore(addr string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func recordKey(sessionID string, ts time.Time) string {
	return fmt.Sprintf("%s%s:%d", debugSnapshotKeyPrefix, sessionID, ts.UnixNano())
}

// Store persists one debug snapshot with a TTL and records it in the
// recency index. Failures here are non-fatal to the session (the debug
// mirror is a convenience, not the system of record — the filesystem is).
func (r *RedisStore) Store(ctx context.Context, snap DebugSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("session: marshal debug snapshot: %w", err)
	}
	key := recordKey(snap.SessionID, snap.Timestamp)
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set failed: %w", err)
	}
	if err := r.client.ZAdd(ctx, debugSnapshotIndexKey, redis.Z{
		Score:  float64(snap.Timestamp.UnixNano()),
		Member: key,
	}).Err(); err != nil {
		return fmt.Errorf("session: redis index failed: %w", err)
	}
	return nil
}

// ListRecent returns up to limit of the most recently stored debug
// snapshots across all sessions, newest first. Keys that expired between
// the index read and the fetch are skipped rather than treated as an
// error.
func (r *RedisStore) ListRecent(ctx context.Context, limit int) ([]DebugSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	keys, err := r.client.ZRevRange(ctx, debugSnapshotIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis index scan failed: %w", err)
	}

	out := make([]DebugSnapshot, 0, len(keys))
	for _, key := range keys {
		data, err := r.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			_ = r.client.ZRem(ctx, debugSnapshotIndexKey, key).Err()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("session: redis get failed: %w", err)
		}
		var snap DebugSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("session: decode debug snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
