package memory

import (
	"context"
	"errors"

	"go-journey/internal/chat"
)

// HistorySource serves remembered facts as a conversation transcript
type HistorySource struct {
	facts *FactStore
}

// NewHistorySource wraps a fact store
func NewHistorySource(facts *FactStore) *HistorySource {
	return &HistorySource{facts: facts}
}

// FetchHistory returns the member's facts as chat messages, oldest first
func (h *HistorySource) FetchHistory(ctx context.Context, memberID string) ([]chat.Message, error) {
	facts, err := h.facts.All(ctx, memberID)
	if err != nil {
		return nil, err
	}
	out := make([]chat.Message, 0, len(facts))
	for _, f := range facts {
		out = append(out, factToMessage(f))
	}
	return out, nil
}

// Append records a new utterance
func (h *HistorySource) Append(ctx context.Context, memberID, role, content string) (chat.Message, error) {
	f, err := h.facts.Add(ctx, memberID, role, content)
	if err != nil {
		if errors.Is(err, ErrEmptyFact) {
			return chat.Message{}, chat.ErrEmptyMessage
		}
		return chat.Message{}, err
	}
	return factToMessage(f), nil
}

func factToMessage(f Fact) chat.Message {
	role := f.Role
	if role == "" {
		role = chat.RoleUser
	}
	return chat.Message{
		MemberID:  f.MemberID,
		Role:      role,
		Content:   f.Content,
		CreatedAt: f.CreatedAt,
	}
}
