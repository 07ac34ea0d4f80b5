package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-journey/internal/chat"
	"go-journey/internal/member"
	"go-journey/internal/mission"
	"go-journey/internal/signal"

	"go.uber.org/zap"
)

var (
	// ErrClassificationUnavailable means the external classifier failed or timed out.
	ErrClassificationUnavailable = errors.New("classification unavailable")
	// ErrClassificationInvalid means the classifier answered with ids or values outside the catalog.
	ErrClassificationInvalid = errors.New("classification invalid")
	// ErrEmptyHistory is returned when there is no conversation to classify.
	ErrEmptyHistory = errors.New("conversation history is empty")
)

// Model is the external intent-classification call: prompt in, raw model text out.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ModelFunc adapts a function to Model
type ModelFunc func(ctx context.Context, prompt string) (string, error)

func (f ModelFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Retriever supplies knowledge snippets relevant to the conversation
type Retriever interface {
	Retrieve(query string, limit int) []string
}

// Input is everything the classifier sees for one member
type Input struct {
	Member        member.Member
	History       []chat.Message
	RecentSignals []signal.Signal
	Candidates    []mission.Mission
}

// SignalNote is a signal proposed by the classifier
type SignalNote struct {
	Tag         signal.Tag `json:"tag"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
}

// Classification is a validated classifier decision; its ids always exist in the catalog.
type Classification struct {
	MissionID        string       `json:"mission_id"`
	StageID          string       `json:"stage_id"`
	ChurnProbability float64      `json:"churn_probability"`
	Recommendation   string       `json:"recommendation"`
	Signals          []SignalNote `json:"signals,omitempty"`
	Explanation      string       `json:"explanation,omitempty"`
}

// Tags returns the tags of the proposed signals
func (c Classification) Tags() []signal.Tag {
	out := make([]signal.Tag, len(c.Signals))
	for i, s := range c.Signals {
		out[i] = s.Tag
	}
	return out
}

// Adapter wraps a Model and turns its raw output into a validated Classification.
type Adapter struct {
	model       Model
	catalog     *mission.Catalog
	knowledge   Retriever
	snippets    int
	contextSize int
	timeout     time.Duration
	logger      *zap.Logger
}

// Option configures an Adapter
type Option func(*Adapter)

// WithKnowledge adds retrieved snippets to the prompt
func WithKnowledge(r Retriever) Option {
	return func(a *Adapter) { a.knowledge = r }
}

// WithSnippetLimit caps the knowledge snippets per prompt
func WithSnippetLimit(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.snippets = n
		}
	}
}

// WithContextSize bounds the history included in the prompt (in tokens)
func WithContextSize(tokens int) Option {
	return func(a *Adapter) {
		if tokens > 0 {
			a.contextSize = tokens
		}
	}
}

// WithTimeout bounds a single model call
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// NewAdapter creates a classifier adapter over the given model and catalog
func NewAdapter(model Model, catalog *mission.Catalog, logger *zap.Logger, opts ...Option) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{
		model:       model,
		catalog:     catalog,
		snippets:    3,
		contextSize: 4096,
		logger:      logger.Named("classifier"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Classify asks the model for the member's mission, stage, churn and next action.
// Results may differ between identical calls; callers must not assume determinism.
func (a *Adapter) Classify(ctx context.Context, in Input) (Classification, error) {
	if len(in.History) == 0 {
		return Classification{}, ErrEmptyHistory
	}
	candidates := in.Candidates
	if len(candidates) == 0 {
		candidates = a.catalog.ListMissions()
	}

	history := chat.BuildSlidingWindow(in.History, a.contextSize)
	if len(history) == 0 {
		// a single oversized message still has to be classified
		history = in.History[len(in.History)-1:]
	}

	var snippets []string
	if a.knowledge != nil {
		snippets = a.knowledge.Retrieve(history[len(history)-1].Content, a.snippets)
	}
	prompt := buildPrompt(in.Member, history, in.RecentSignals, candidates, snippets)

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := a.model.Complete(ctx, prompt)
	if err != nil {
		a.logger.Warn("Classifier call failed",
			zap.String("member_id", in.Member.ID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return Classification{}, fmt.Errorf("%w: %w", ErrClassificationUnavailable, err)
	}
	a.logger.Debug("Raw classification response", zap.String("member_id", in.Member.ID), zap.String("raw", raw))

	cls, err := a.validate(raw, candidates)
	if err != nil {
		a.logger.Error("Rejected classification",
			zap.String("member_id", in.Member.ID),
			zap.String("raw", raw),
			zap.Error(err))
		return Classification{}, err
	}

	a.logger.Info("Classified member",
		zap.String("member_id", in.Member.ID),
		zap.String("mission_id", cls.MissionID),
		zap.String("stage_id", cls.StageID),
		zap.Float64("churn_probability", cls.ChurnProbability),
		zap.Int("signals", len(cls.Signals)))
	return cls, nil
}
