package llm

import "time"

// Config controls queue behavior
type Config struct {
	// Concurrency control
	MaxConcurrent int // Total concurrent LLM requests

	// Queue sizes
	InteractiveQueueSize int
	SweepQueueSize       int

	// Breaker
	BreakerFailures int
	BreakerReset    time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent:        2,
		InteractiveQueueSize: 20,
		SweepQueueSize:       100,
		BreakerFailures:      5,
		BreakerReset:         time.Minute,
	}
}
