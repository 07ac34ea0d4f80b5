package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyFmt = "session:%s"

// ErrNoSession is returned when a user has no live session
var ErrNoSession = errors.New("no session")

// Sessions tracks the token each user is currently logged in with
type Sessions interface {
	Set(ctx context.Context, username, token string, ttl time.Duration) error
	Get(ctx context.Context, username string) (string, error)
	Delete(ctx context.Context, username string) error
}

type sessionKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisSessions stores sessions under session:<username>
type RedisSessions struct {
	rdb sessionKV
}

func NewRedisSessions(rdb sessionKV) *RedisSessions {
	return &RedisSessions{rdb: rdb}
}

func (s *RedisSessions) Set(ctx context.Context, username, token string, ttl time.Duration) error {
	return s.rdb.Set(ctx, fmt.Sprintf(sessionKeyFmt, username), token, ttl).Err()
}

func (s *RedisSessions) Get(ctx context.Context, username string) (string, error) {
	token, err := s.rdb.Get(ctx, fmt.Sprintf(sessionKeyFmt, username)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoSession
	}
	return token, err
}

func (s *RedisSessions) Delete(ctx context.Context, username string) error {
	return s.rdb.Del(ctx, fmt.Sprintf(sessionKeyFmt, username)).Err()
}

// MemorySessions is used when no Redis is configured
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

type memorySession struct {
	token   string
	expires time.Time
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: map[string]memorySession{}, now: time.Now}
}

func (s *MemorySessions) Set(ctx context.Context, username, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[username] = memorySession{token: token, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemorySessions) Get(ctx context.Context, username string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[username]
	if !ok || !s.now().Before(sess.expires) {
		delete(s.sessions, username)
		return "", ErrNoSession
	}
	return sess.token, nil
}

func (s *MemorySessions) Delete(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, username)
	return nil
}
