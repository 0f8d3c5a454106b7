package storage

import (
	"context"
	"testing"
	"time"
)

func TestRedisOptions(t *testing.T) {
	opts, err := RedisOptions("redis://:secret@localhost:6380/2")
	if err != nil {
		t.Fatalf("RedisOptions: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 2 || opts.Password != "secret" {
		t.Fatalf("opts addr=%q db=%d password=%q", opts.Addr, opts.DB, opts.Password)
	}
	for _, bad := range []string{"", "   ", "http://localhost:6379", "redis://localhost:6379/notadb"} {
		if _, err := RedisOptions(bad); err == nil {
			t.Fatalf("RedisOptions(%q) should fail", bad)
		}
	}
}

func TestNewRedisMirrorUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisMirror(ctx, "redis://127.0.0.1:1/0", time.Minute); err == nil {
		t.Fatal("expected ping failure against a closed port")
	}
}

func TestNilMirrorIsNoop(t *testing.T) {
	var m *RedisMirror
	if err := m.Publish(context.Background(), "sess_1", Snapshot{}); err != nil {
		t.Fatalf("Publish on nil mirror: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close on nil mirror: %v", err)
	}
	if _, err := m.Fetch(context.Background(), "sess_1"); err == nil {
		t.Fatal("Fetch on nil mirror should report it is disabled")
	}
}

func TestSnapshotKey(t *testing.T) {
	if got := SnapshotKey("sess_1_ab"); got != "droidpilot:session:sess_1_ab" {
		t.Fatalf("SnapshotKey=%q", got)
	}
}
