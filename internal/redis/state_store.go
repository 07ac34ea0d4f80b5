package redisdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"go-journey/internal/journey"
)

const stateKeyFmt = "journey:state:%s"

type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// StateStore keeps a JSON snapshot of each member's journey state in Redis
type StateStore struct {
	rdb    kv
	ttl    time.Duration
	logger *zap.Logger
}

// NewStateStore creates a snapshot store; ttl 0 keeps snapshots forever
func NewStateStore(rdb kv, ttl time.Duration, logger *zap.Logger) *StateStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateStore{rdb: rdb, ttl: ttl, logger: logger.Named("state_store")}
}

// Load returns the stored snapshot, if any
func (s *StateStore) Load(ctx context.Context, memberID string) (journey.State, bool, error) {
	raw, err := s.rdb.Get(ctx, fmt.Sprintf(stateKeyFmt, memberID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return journey.State{}, false, nil
	}
	if err != nil {
		return journey.State{}, false, fmt.Errorf("failed to load state: %w", err)
	}
	var st journey.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return journey.State{}, false, fmt.Errorf("failed to decode state: %w", err)
	}
	return st, true, nil
}

// Save overwrites the member's snapshot
func (s *StateStore) Save(ctx context.Context, st journey.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := s.rdb.Set(ctx, fmt.Sprintf(stateKeyFmt, st.MemberID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	s.logger.Debug("Saved snapshot", zap.String("member_id", st.MemberID), zap.Uint64("version", st.Version))
	return nil
}
