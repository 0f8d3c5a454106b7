package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// DefaultSnapshotTTL bounds how long an idle session stays visible.
const DefaultSnapshotTTL = 40 * time.Minute

const redisKeyPrefix = "droidpilot:session:"

// RedisMirror publishes session snapshots for external observers. A nil
// mirror accepts every call and does nothing.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions parses url into client options.
func RedisOptions(url string) (*redis.Options, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("redis url is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}

// NewRedisMirror connects to url and verifies the connection with a ping.
func NewRedisMirror(ctx context.Context, url string, ttl time.Duration) (*RedisMirror, error) {
	opts, err := RedisOptions(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RedisMirror{client: client, ttl: ttl}, nil
}

// SnapshotKey is the key a session snapshot is stored under.
func SnapshotKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}

// Publish stores snap under the session key with the mirror's TTL.
func (m *RedisMirror) Publish(ctx context.Context, sessionID string, snap Snapshot) error {
	if m == nil || m.client == nil {
		return nil
	}
	data, err := sonic.ConfigStd.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := m.client.Set(ctx, SnapshotKey(sessionID), data, m.ttl).Err(); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// Fetch reads a published snapshot back.
func (m *RedisMirror) Fetch(ctx context.Context, sessionID string) (Snapshot, error) {
	if m == nil || m.client == nil {
		return Snapshot{}, fmt.Errorf("redis mirror disabled")
	}
	data, err := m.client.Get(ctx, SnapshotKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return Snapshot{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func (m *RedisMirror) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}
