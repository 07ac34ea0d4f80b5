package auth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// Runs against a real Redis when TEST_REDIS_ADDR is set
func TestRedisSessions_SetGetDelete(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	defer rdb.Close()
	s := NewRedisSessions(rdb)
	ctx := context.Background()

	if err := s.Set(ctx, "operator", "session_test_token", 2*time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Get(ctx, "operator")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "session_test_token" {
		t.Errorf("expected token %q, got %q", "session_test_token", got)
	}
	if err := s.Delete(ctx, "operator"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "operator"); err != ErrNoSession {
		t.Errorf("expected ErrNoSession for deleted session, got %v", err)
	}
}
