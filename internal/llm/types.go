package llm

import (
	"context"
	"time"
)

// Priority levels (just 2)
type Priority int

const (
	PriorityInteractive Priority = 0 // Operator-triggered refreshes
	PrioritySweep       Priority = 1 // Scheduled background refreshes
)

func (p Priority) String() string {
	if p == PriorityInteractive {
		return "interactive"
	}
	return "sweep"
}

type priorityKey struct{}

// WithPriority marks calls made under ctx with p, overriding the client's own priority
func WithPriority(ctx context.Context, p Priority) context.Context {
	return context.WithValue(ctx, priorityKey{}, p)
}

// PriorityFrom returns the priority stored in ctx, if any
func PriorityFrom(ctx context.Context) (Priority, bool) {
	p, ok := ctx.Value(priorityKey{}).(Priority)
	return p, ok
}

// Request encapsulates an LLM call
type Request struct {
	ID       string
	Priority Priority
	Context  context.Context

	URL     string
	Headers map[string]string
	Payload map[string]interface{}

	// Response handling
	ResponseCh chan<- *Response
	ErrorCh    chan<- error

	SubmitTime time.Time
	Timeout    time.Duration
}

// Response encapsulates LLM output
type Response struct {
	StatusCode int
	Body       []byte
}

// Metrics tracks queue performance
type Metrics struct {
	InteractiveEnqueued  int64
	InteractiveProcessed int64
	InteractiveDropped   int64
	SweepEnqueued        int64
	SweepProcessed       int64
	SweepDropped         int64
	CurrentQueueDepth    map[Priority]int
}
