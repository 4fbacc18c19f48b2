package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// SnapshotKeyPrefix namespaces presence snapshots in the key-value store
const SnapshotKeyPrefix = "debatehall:presence:"

// SnapshotStore receives serialized presence snapshots with an expiry
type SnapshotStore interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// SessionSnapshot is the observability view of one session's presence
type SessionSnapshot struct {
	SessionID   int64     `json:"session_id"`
	OnlineCount int       `json:"online_count"`
	UserIDs     []int64   `json:"user_ids"`
	TakenAt     time.Time `json:"taken_at"`
}

// Snapshotter periodically publishes presence to a SnapshotStore.
// Snapshots are informational; a restart legitimately resets presence.
type Snapshotter struct {
	tracker  *Tracker
	store    SnapshotStore
	interval time.Duration
	ttl      time.Duration
}

func NewSnapshotter(tracker *Tracker, store SnapshotStore, interval, ttl time.Duration) *Snapshotter {
	return &Snapshotter{
		tracker:  tracker,
		store:    store,
		interval: interval,
		ttl:      ttl,
	}
}

// Run publishes a snapshot every interval until ctx is canceled
func (s *Snapshotter) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := s.Publish(ctx, now); err != nil {
				log.Printf("Presence snapshot failed: %v", err)
			}
		}
	}
}

// Publish writes one snapshot per session that has anyone online
func (s *Snapshotter) Publish(ctx context.Context, now time.Time) error {
	for sessionID, records := range s.tracker.Snapshot() {
		snap := SessionSnapshot{
			SessionID:   sessionID,
			OnlineCount: len(records),
			UserIDs:     make([]int64, 0, len(records)),
			TakenAt:     now,
		}
		for _, rec := range records {
			snap.UserIDs = append(snap.UserIDs, rec.UserID)
		}

		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		if err := s.store.Set(ctx, SnapshotKey(sessionID), string(data), s.ttl); err != nil {
			return fmt.Errorf("failed to store snapshot for session %d: %w", sessionID, err)
		}
	}
	return nil
}

func SnapshotKey(sessionID int64) string {
	return fmt.Sprintf("%s%d", SnapshotKeyPrefix, sessionID)
}

// RedisStore is a SnapshotStore backed by go-redis
type RedisStore struct {
	client *redis.Client
}

var _ SnapshotStore = (*RedisStore)(nil)

// NewRedisStore connects to url and verifies the server answers a ping
func NewRedisStore(url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisStore{client: c}, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
