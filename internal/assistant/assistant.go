package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go-journey/internal/chat"
	"go-journey/internal/llm"
	"go-journey/internal/member"
	"go-journey/internal/memory"

	"go.uber.org/zap"
)

var (
	// ErrEmptyQuestion is returned for a blank question
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrUnavailable means the model call failed or returned nothing usable
	ErrUnavailable = errors.New("assistant unavailable")
)

// NoHistorySummary is the summary of a member with no conversation yet
const NoHistorySummary = "No conversation history yet."

const (
	SystemPrompt = "You are a helpful financial AI assistant for a member-owned institution. " +
		"When past conversation history is provided, continue the conversation naturally and build on what was discussed " +
		"without announcing that you remember it. " +
		"Give personalized, professional and accurate guidance grounded in the reference material when it is relevant."

	summarySystemPrompt = "You are a helpful assistant that creates concise summaries."
	summaryInstruction  = "Summarize the following conversation history in bullet points, " +
		"highlighting key topics discussed and important details:"
)

// Generator is the chat completion call
type Generator interface {
	Chat(ctx context.Context, messages []llm.Message, temperature float64) (string, error)
}

// Transcript stores and replays member conversations
type Transcript interface {
	Append(ctx context.Context, memberID, role, content string) (chat.Message, error)
	FetchHistory(ctx context.Context, memberID string) ([]chat.Message, error)
}

// ProfileSource looks up members
type ProfileSource interface {
	Get(ctx context.Context, id string) (member.Member, error)
}

// Retriever supplies knowledge snippets for a question
type Retriever interface {
	Retrieve(query string, limit int) []string
}

// Recall searches a member's long-term memory
type Recall interface {
	Search(ctx context.Context, memberID, query string, limit int) ([]memory.ScoredFact, error)
}

// Reply is one answered question
type Reply struct {
	Question chat.Message `json:"question"`
	Answer   chat.Message `json:"answer"`
	Sources  int          `json:"sources"`
}

// Summary is a digest of a member's conversation
type Summary struct {
	MemberID string `json:"member_id"`
	Text     string `json:"summary"`
	Messages int    `json:"message_count"`
}

// Assistant answers member questions with knowledge and memory context, and
// writes both turns to the transcript the classifier reads.
type Assistant struct {
	model       Generator
	transcript  Transcript
	profiles    ProfileSource
	knowledge   Retriever
	recall      Recall
	snippets    int
	facts       int
	contextSize int
	temperature float64
	logger      *zap.Logger
}

// Option configures an Assistant
type Option func(*Assistant)

// WithKnowledge adds reference snippets to each prompt
func WithKnowledge(r Retriever, limit int) Option {
	return func(a *Assistant) {
		a.knowledge = r
		if limit > 0 {
			a.snippets = limit
		}
	}
}

// WithRecall adds the member's most relevant remembered facts to each prompt
func WithRecall(r Recall, limit int) Option {
	return func(a *Assistant) {
		a.recall = r
		if limit > 0 {
			a.facts = limit
		}
	}
}

// WithContextSize bounds the history window, in tokens
func WithContextSize(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.contextSize = n
		}
	}
}

// New creates an assistant
func New(model Generator, transcript Transcript, profiles ProfileSource, logger *zap.Logger, opts ...Option) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Assistant{
		model:       model,
		transcript:  transcript,
		profiles:    profiles,
		snippets:    3,
		facts:       5,
		contextSize: 4096,
		temperature: 0.3,
		logger:      logger.Named("assistant"),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Ask answers a question for a member. The question and answer are only
// appended to the transcript once the model has answered.
func (a *Assistant) Ask(ctx context.Context, memberID, question string) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, ErrEmptyQuestion
	}
	m, err := a.profiles.Get(ctx, memberID)
	if err != nil {
		return Reply{}, err
	}
	history, err := a.transcript.FetchHistory(ctx, memberID)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to load history for %s: %w", memberID, err)
	}

	var snippets []string
	if a.knowledge != nil {
		snippets = a.knowledge.Retrieve(question, a.snippets)
	}
	var facts []memory.ScoredFact
	if a.recall != nil {
		facts, err = a.recall.Search(ctx, memberID, question, a.facts)
		if err != nil {
			// degrade to no recall
			a.logger.Warn("Memory search failed", zap.String("member_id", memberID), zap.Error(err))
			facts = nil
		}
	}

	messages := []llm.Message{
		{Role: "system", Content: a.systemPrompt(m, chat.BuildSlidingWindow(history, a.contextSize), snippets, facts)},
		{Role: chat.RoleUser, Content: question},
	}
	answer, err := a.model.Chat(ctx, messages, a.temperature)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Reply{}, fmt.Errorf("%w: empty answer", ErrUnavailable)
	}

	q, err := a.transcript.Append(ctx, memberID, chat.RoleUser, question)
	if err != nil {
		return Reply{}, err
	}
	ans, err := a.transcript.Append(ctx, memberID, chat.RoleAssistant, answer)
	if err != nil {
		return Reply{}, err
	}
	a.logger.Info("Answered question",
		zap.String("member_id", memberID),
		zap.Int("history", len(history)),
		zap.Int("snippets", len(snippets)),
		zap.Int("facts", len(facts)))
	return Reply{Question: q, Answer: ans, Sources: len(snippets) + len(facts)}, nil
}

func (a *Assistant) systemPrompt(m member.Member, history []chat.Message, snippets []string, facts []memory.ScoredFact) string {
	var b strings.Builder
	b.WriteString(SystemPrompt)
	b.WriteString("\n\n=== Member ===\n")
	b.WriteString(m.ProfileText())

	if len(history) > 0 {
		b.WriteString("\n=== Conversation History ===\n")
		for _, msg := range history {
			fmt.Fprintf(&b, "- %s: %s\n", msg.Role, msg.Content)
		}
		b.WriteString("=== End of History ===\n")
	} else {
		b.WriteString("\nThis is a new conversation with no prior history. Greet the member warmly and help them get started.\n")
	}

	if len(facts) > 0 {
		b.WriteString("\n=== Remembered ===\n")
		for _, f := range facts {
			fmt.Fprintf(&b, "- %s\n", f.Content)
		}
	}
	if len(snippets) > 0 {
		b.WriteString("\n=== Reference Material ===\n")
		for _, s := range snippets {
			b.WriteString(s)
			b.WriteString("\n---\n")
		}
	}
	return b.String()
}

// Summarize digests the member's conversation. A member with no history gets
// NoHistorySummary without a model call.
func (a *Assistant) Summarize(ctx context.Context, memberID string) (Summary, error) {
	if _, err := a.profiles.Get(ctx, memberID); err != nil {
		return Summary{}, err
	}
	history, err := a.transcript.FetchHistory(ctx, memberID)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load history for %s: %w", memberID, err)
	}
	if len(history) == 0 {
		return Summary{MemberID: memberID, Text: NoHistorySummary}, nil
	}

	var b strings.Builder
	b.WriteString(summaryInstruction)
	b.WriteString("\n\n")
	for _, msg := range chat.BuildSlidingWindow(history, a.contextSize) {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	text, err := a.model.Chat(ctx, []llm.Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: chat.RoleUser, Content: b.String()},
	}, a.temperature)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return Summary{MemberID: memberID, Text: strings.TrimSpace(text), Messages: len(history)}, nil
}
