package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyMessage is returned when appending a blank message
var ErrEmptyMessage = errors.New("message content is empty")

type Message struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	MemberID  string         `json:"member_id" gorm:"size:32;index;not null"`
	Role      string         `json:"role" gorm:"size:16;not null"` // "user" or "assistant"
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"createdAt"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// Sliding window for context limitation
func BuildSlidingWindow(messages []Message, contextSize int) []Message {
	maxChars := int(float64(contextSize)*0.85) * 4 // Use 85% of context, 4 chars/token
	var window []Message
	totalChars := 0

	// Start from the end (latest message), prepend to window
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		msgLen := len(m.Content)
		if totalChars+msgLen > maxChars {
			break
		}
		window = append([]Message{m}, window...)
		totalChars += msgLen
	}
	return window
}

// Store keeps conversation transcripts per member
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the messages table
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Message{})
}

// Append stores one message for a member
func (s *Store) Append(ctx context.Context, memberID, role, content string) (Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, ErrEmptyMessage
	}
	if role != RoleAssistant {
		role = RoleUser
	}
	m := Message{MemberID: memberID, Role: role, Content: content}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return Message{}, fmt.Errorf("failed to store message: %w", err)
	}
	return m, nil
}

// FetchHistory returns the member's transcript, oldest first
func (s *Store) FetchHistory(ctx context.Context, memberID string) ([]Message, error) {
	var messages []Message
	err := s.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("created_at asc, id asc").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", memberID, err)
	}
	return messages, nil
}

// Count returns the number of messages stored for the member
func (s *Store) Count(ctx context.Context, memberID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Message{}).Where("member_id = ?", memberID).Count(&n).Error
	return n, err
}
