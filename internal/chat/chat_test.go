package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupChatDB(t *testing.T) *Store {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	dbConn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	s := NewStore(dbConn)
	if err := s.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return s
}

func TestBuildSlidingWindow_KeepsNewest(t *testing.T) {
	msgs := []Message{
		{Content: strings.Repeat("a", 40)},
		{Content: strings.Repeat("b", 40)},
		{Content: strings.Repeat("c", 40)},
	}
	// 25 tokens -> int(21.25)=21 * 4 = 84 chars: room for the last two only
	window := BuildSlidingWindow(msgs, 25)
	if len(window) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(window))
	}
	if window[0].Content[0] != 'b' || window[1].Content[0] != 'c' {
		t.Errorf("window not in chronological order: %+v", window)
	}
}

func TestStore_AppendAndFetch(t *testing.T) {
	s := setupChatDB(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, "M001", RoleUser, "What is a SIP?"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := s.Append(ctx, "M001", RoleAssistant, "A systematic investment plan."); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := s.Append(ctx, "M002", "bot", "other member"); err != nil {
		t.Fatalf("append: %v", err)
	}

	history, err := s.FetchHistory(ctx, "M001")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Role != RoleUser || history[1].Role != RoleAssistant {
		t.Errorf("unexpected order/roles: %+v", history)
	}

	other, _ := s.FetchHistory(ctx, "M002")
	if len(other) != 1 || other[0].Role != RoleUser {
		t.Errorf("unknown roles should normalise to user, got %+v", other)
	}

	n, err := s.Count(ctx, "M001")
	if err != nil || n != 2 {
		t.Errorf("expected count 2, got %d (%v)", n, err)
	}
}

func TestStore_AppendRejectsBlank(t *testing.T) {
	s := setupChatDB(t)
	if _, err := s.Append(context.Background(), "M001", RoleUser, "   "); err != ErrEmptyMessage {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}
